// Package worker consumes the expense event stream, records an audit trail,
// and mirrors changes to the optional exporter.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fintrack/internal/amqp"
	"fintrack/internal/export"
	"fintrack/internal/storage"
)

// EventWorker processes one expense event at a time. Every event is recorded
// in the audit table; created and updated events additionally mirror the
// current record to the exporter, deleted events remove it. A nil exporter
// keeps the audit trail and skips mirroring.
type EventWorker struct {
	storage  *storage.SQLiteRepository
	exporter export.ExpenseExporter
}

func NewEventWorker(store *storage.SQLiteRepository, exporter export.ExpenseExporter) *EventWorker {
	return &EventWorker{
		storage:  store,
		exporter: exporter,
	}
}

// HandleEvent is the AMQP consume handler. Returning an error requeues the
// delivery, so only transient failures are propagated; a missing expense on a
// create or update event means a later delete already won and is dropped.
func (w *EventWorker) HandleEvent(ctx context.Context, msg *amqp.ExpenseEventMessage) error {
	slog.InfoContext(ctx, "Processing expense event",
		"event_type", msg.Type,
		"expense_id", msg.ExpenseID,
		"user_id", msg.UserID)

	if err := w.storage.RecordExpenseEvent(ctx, &storage.ExpenseEvent{
		EventType:  msg.Type,
		ExpenseID:  msg.ExpenseID,
		UserID:     msg.UserID,
		OccurredAt: msg.Timestamp,
	}); err != nil {
		return fmt.Errorf("record audit entry: %w", err)
	}

	if w.exporter == nil {
		return nil
	}

	switch msg.Type {
	case amqp.EventExpenseCreated, amqp.EventExpenseUpdated:
		return w.mirrorExpense(ctx, msg.ExpenseID)
	case amqp.EventExpenseDeleted:
		if err := w.exporter.RemoveExpense(ctx, msg.ExpenseID); err != nil {
			return fmt.Errorf("remove exported expense: %w", err)
		}
		return nil
	default:
		// Validate on decode keeps this unreachable; drop rather than requeue.
		slog.WarnContext(ctx, "Dropping event with unknown type", "event_type", msg.Type)
		return nil
	}
}

func (w *EventWorker) mirrorExpense(ctx context.Context, expenseID string) error {
	expense, err := w.storage.GetExpense(ctx, expenseID)
	if errors.Is(err, storage.ErrNotFound) {
		slog.InfoContext(ctx, "Expense gone before mirroring, skipping",
			"expense_id", expenseID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load expense: %w", err)
	}

	if err := w.exporter.AppendExpense(ctx, *expense); err != nil {
		return fmt.Errorf("export expense: %w", err)
	}
	return nil
}
