// Package export defines the optional downstream mirror for expense records.
package export

import (
	"context"

	"fintrack/internal/core"
)

// ExpenseExporter mirrors expense changes to an external destination. The
// worker drives it from the event stream; implementations must tolerate
// replays since deliveries are at-least-once.
type ExpenseExporter interface {
	// AppendExpense adds (or re-adds) a record to the destination.
	AppendExpense(ctx context.Context, e core.Expense) error
	// RemoveExpense deletes a record by id. Removing an absent record is
	// not an error.
	RemoveExpense(ctx context.Context, expenseID string) error
}
