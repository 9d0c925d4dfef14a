package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExporter struct {
	appended []core.Expense
	removed  []string
	err      error
}

func (f *fakeExporter) AppendExpense(_ context.Context, e core.Expense) error {
	if f.err != nil {
		return f.err
	}
	f.appended = append(f.appended, e)
	return nil
}

func (f *fakeExporter) RemoveExpense(_ context.Context, expenseID string) error {
	if f.err != nil {
		return f.err
	}
	f.removed = append(f.removed, expenseID)
	return nil
}

func newTestRepo(t *testing.T) (*storage.SQLiteRepository, *core.User) {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	user := &core.User{
		ID:           uuid.NewString(),
		Name:         "Alice",
		Email:        "alice@example.com",
		PasswordHash: "hash",
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, repo.CreateUser(context.Background(), user))
	return repo, user
}

func storeExpense(t *testing.T, repo *storage.SQLiteRepository, userID string) *core.Expense {
	t.Helper()
	now := time.Now().UTC()
	e := &core.Expense{
		ID:        uuid.NewString(),
		Title:     "Coffee",
		Amount:    core.Money{Cents: 450},
		Category:  core.CategoryFood,
		Date:      core.NewDate(2024, 3, 10),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, repo.CreateExpense(context.Background(), e))
	return e
}

func TestHandleEventCreatedMirrorsAndAudits(t *testing.T) {
	repo, user := newTestRepo(t)
	e := storeExpense(t, repo, user.ID)
	exp := &fakeExporter{}
	w := NewEventWorker(repo, exp)

	msg := amqp.NewExpenseEvent(amqp.EventExpenseCreated, e.ID, user.ID)
	require.NoError(t, w.HandleEvent(context.Background(), msg))

	require.Len(t, exp.appended, 1)
	assert.Equal(t, e.ID, exp.appended[0].ID)

	events, err := repo.ListExpenseEvents(context.Background(), user.ID, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, amqp.EventExpenseCreated, events[0].EventType)
	assert.Equal(t, e.ID, events[0].ExpenseID)
}

func TestHandleEventDeletedRemovesFromExport(t *testing.T) {
	repo, user := newTestRepo(t)
	exp := &fakeExporter{}
	w := NewEventWorker(repo, exp)

	msg := amqp.NewExpenseEvent(amqp.EventExpenseDeleted, "gone-id", user.ID)
	require.NoError(t, w.HandleEvent(context.Background(), msg))

	assert.Equal(t, []string{"gone-id"}, exp.removed)
	assert.Empty(t, exp.appended)
}

func TestHandleEventSkipsMissingExpense(t *testing.T) {
	repo, user := newTestRepo(t)
	exp := &fakeExporter{}
	w := NewEventWorker(repo, exp)

	// create event arriving after the record was deleted must not requeue
	msg := amqp.NewExpenseEvent(amqp.EventExpenseCreated, uuid.NewString(), user.ID)
	require.NoError(t, w.HandleEvent(context.Background(), msg))
	assert.Empty(t, exp.appended)

	events, err := repo.ListExpenseEvents(context.Background(), user.ID, 10)
	require.NoError(t, err)
	assert.Len(t, events, 1, "audit entry is still recorded")
}

func TestHandleEventExporterFailureRequeues(t *testing.T) {
	repo, user := newTestRepo(t)
	e := storeExpense(t, repo, user.ID)
	exp := &fakeExporter{err: errors.New("sheets unavailable")}
	w := NewEventWorker(repo, exp)

	msg := amqp.NewExpenseEvent(amqp.EventExpenseUpdated, e.ID, user.ID)
	err := w.HandleEvent(context.Background(), msg)
	assert.Error(t, err, "transient export failures propagate for redelivery")
}

func TestHandleEventNilExporterAuditsOnly(t *testing.T) {
	repo, user := newTestRepo(t)
	e := storeExpense(t, repo, user.ID)
	w := NewEventWorker(repo, nil)

	msg := amqp.NewExpenseEvent(amqp.EventExpenseCreated, e.ID, user.ID)
	require.NoError(t, w.HandleEvent(context.Background(), msg))

	events, err := repo.ListExpenseEvents(context.Background(), user.ID, 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}
