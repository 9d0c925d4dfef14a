// Package services orchestrates expense operations across storage, the event
// stream, and the summary cache.
package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/storage"

	"github.com/google/uuid"
)

// EventPublisher publishes expense change events. A nil publisher disables
// the event stream without affecting request handling.
type EventPublisher interface {
	PublishExpenseEvent(ctx context.Context, msg *amqp.ExpenseEventMessage) error
}

// ExpenseService owns all expense reads and writes. Writes publish an event
// and invalidate the owner's cached stats; publish failures are logged and
// never fail the request.
type ExpenseService struct {
	storage    *storage.SQLiteRepository
	publisher  EventPublisher
	statsCache *cache.LRUCache[core.StatsReport]
}

func NewExpenseService(store *storage.SQLiteRepository, publisher EventPublisher) *ExpenseService {
	return &ExpenseService{
		storage:    store,
		publisher:  publisher,
		statsCache: cache.NewLRUCache[core.StatsReport](500, 5*time.Minute),
	}
}

// StatsCache exposes the cache for cleanup registration.
func (s *ExpenseService) StatsCache() *cache.LRUCache[core.StatsReport] {
	return s.statsCache
}

// Create validates and stores a new expense owned by userID, filling in the
// generated id and timestamps.
func (s *ExpenseService) Create(ctx context.Context, e *core.Expense) error {
	now := time.Now().UTC()
	e.ID = uuid.NewString()
	e.CreatedAt = now
	e.UpdatedAt = now
	if e.Date.IsZero() {
		e.Date = core.Today()
	}

	if err := e.Validate(); err != nil {
		return err
	}
	if err := s.storage.CreateExpense(ctx, e); err != nil {
		return fmt.Errorf("save expense: %w", err)
	}

	s.statsCache.Delete(e.UserID)
	s.publish(ctx, amqp.EventExpenseCreated, e.ID, e.UserID)
	return nil
}

// Get returns a single expense; ownership is the caller's concern since the
// distinction between 403 and 404 needs the stored record.
func (s *ExpenseService) Get(ctx context.Context, id string) (*core.Expense, error) {
	return s.storage.GetExpense(ctx, id)
}

// Update replaces all mutable fields of an expense the caller has already
// authorized.
func (s *ExpenseService) Update(ctx context.Context, e *core.Expense) error {
	e.UpdatedAt = time.Now().UTC()
	if err := e.Validate(); err != nil {
		return err
	}
	if err := s.storage.UpdateExpense(ctx, e); err != nil {
		return err
	}

	s.statsCache.Delete(e.UserID)
	s.publish(ctx, amqp.EventExpenseUpdated, e.ID, e.UserID)
	return nil
}

// Delete removes an expense the caller has already authorized.
func (s *ExpenseService) Delete(ctx context.Context, id, userID string) error {
	if err := s.storage.DeleteExpense(ctx, id); err != nil {
		return err
	}

	s.statsCache.Delete(userID)
	s.publish(ctx, amqp.EventExpenseDeleted, id, userID)
	return nil
}

// List returns the owner's matching expenses with the summary derived from
// the same result set, so the reported total always equals the sum over the
// returned records.
func (s *ExpenseService) List(ctx context.Context, userID string, f storage.ExpenseFilter) ([]core.Expense, core.Summary, error) {
	expenses, err := s.storage.ListExpenses(ctx, userID, f)
	if err != nil {
		return nil, core.Summary{}, err
	}
	return expenses, core.Summarize(expenses), nil
}

// Stats returns per-category and overall rollups for the owner, cached until
// the next mutation or TTL expiry.
func (s *ExpenseService) Stats(ctx context.Context, userID string) (core.StatsReport, error) {
	if report, ok := s.statsCache.Get(userID); ok {
		slog.DebugContext(ctx, "Stats cache hit", "user_id", userID)
		return report, nil
	}

	categoryStats, err := s.storage.CategoryStats(ctx, userID)
	if err != nil {
		return core.StatsReport{}, err
	}
	overall, err := s.storage.OverallStats(ctx, userID)
	if err != nil {
		return core.StatsReport{}, err
	}

	report := core.StatsReport{CategoryStats: categoryStats, Overall: overall}
	s.statsCache.Set(userID, report)
	return report, nil
}

func (s *ExpenseService) publish(ctx context.Context, eventType, expenseID, userID string) {
	if s.publisher == nil {
		return
	}
	msg := amqp.NewExpenseEvent(eventType, expenseID, userID)
	if err := s.publisher.PublishExpenseEvent(ctx, msg); err != nil {
		// The write already succeeded locally; the worker catches up later.
		slog.ErrorContext(ctx, "Failed to publish expense event",
			"error", err,
			"event_type", eventType,
			"expense_id", expenseID)
	}
}

// Close closes the storage handle and, when the publisher owns a connection,
// that too.
func (s *ExpenseService) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if closer, ok := s.publisher.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close expense service: %v", errs)
	}
	return nil
}
