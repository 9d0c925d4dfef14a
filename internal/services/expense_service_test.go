package services

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

type recordingPublisher struct {
	events []*amqp.ExpenseEventMessage
	err    error
}

func (p *recordingPublisher) PublishExpenseEvent(_ context.Context, msg *amqp.ExpenseEventMessage) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, msg)
	return nil
}

func newTestService(t *testing.T, pub EventPublisher) (*ExpenseService, *core.User) {
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

	return NewExpenseService(repo, pub), user
}

func TestCreatePublishesEvent(t *testing.T) {
	pub := &recordingPublisher{}
	svc, user := newTestService(t, pub)

	e := &core.Expense{
		Title:    "Coffee",
		Amount:   core.Money{Cents: 450},
		Category: core.CategoryFood,
		UserID:   user.ID,
	}
	require.NoError(t, svc.Create(context.Background(), e))

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, core.Today().String(), e.Date.String(), "date defaults to today")
	require.Len(t, pub.events, 1)
	assert.Equal(t, amqp.EventExpenseCreated, pub.events[0].Type)
	assert.Equal(t, e.ID, pub.events[0].ExpenseID)
}

func TestCreateRejectsInvalid(t *testing.T) {
	pub := &recordingPublisher{}
	svc, user := newTestService(t, pub)

	bad := &core.Expense{
		Title:    "x", // too short
		Amount:   core.Money{Cents: 450},
		Category: core.CategoryFood,
		UserID:   user.ID,
	}
	err := svc.Create(context.Background(), bad)
	assert.ErrorIs(t, err, core.ErrTitleLength)
	assert.Empty(t, pub.events, "nothing published for rejected writes")

	// nothing persisted either
	expenses, _, lerr := svc.List(context.Background(), user.ID, storage.ExpenseFilter{})
	require.NoError(t, lerr)
	assert.Empty(t, expenses)
}

func TestCreateSurvivesPublishFailure(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc, user := newTestService(t, pub)

	e := &core.Expense{
		Title:    "Coffee",
		Amount:   core.Money{Cents: 450},
		Category: core.CategoryFood,
		UserID:   user.ID,
	}
	require.NoError(t, svc.Create(context.Background(), e), "publish failure must not fail the write")

	got, err := svc.Get(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, "Coffee", got.Title)
}

func TestListSummaryMatchesResultSet(t *testing.T) {
	svc, user := newTestService(t, nil)
	ctx := context.Background()

	for _, tc := range []struct {
		title    string
		cents    int64
		category core.Category
		date     core.Date
	}{
		{"Coffee", 450, core.CategoryFood, core.NewDate(2024, 1, 1)},
		{"Bus", 250, core.CategoryTransport, core.NewDate(2024, 1, 2)},
		{"Lunch", 1050, core.CategoryFood, core.NewDate(2024, 1, 3)},
	} {
		require.NoError(t, svc.Create(ctx, &core.Expense{
			Title:    tc.title,
			Amount:   core.Money{Cents: tc.cents},
			Category: tc.category,
			Date:     tc.date,
			UserID:   user.ID,
		}))
	}

	expenses, summary, err := svc.List(ctx, user.ID, storage.ExpenseFilter{Category: core.CategoryFood})
	require.NoError(t, err)
	require.Len(t, expenses, 2)

	var sum int64
	for _, e := range expenses {
		sum += e.Amount.Cents
	}
	assert.Equal(t, sum, summary.Total.Cents)
	assert.Equal(t, sum, summary.ByCategory[core.CategoryFood].Cents)
	_, hasTransport := summary.ByCategory[core.CategoryTransport]
	assert.False(t, hasTransport, "filtered-out categories are absent")
}

func TestStatsCacheInvalidatedOnMutation(t *testing.T) {
	svc, user := newTestService(t, nil)
	ctx := context.Background()

	e := &core.Expense{
		Title:    "Coffee",
		Amount:   core.Money{Cents: 450},
		Category: core.CategoryFood,
		UserID:   user.ID,
	}
	require.NoError(t, svc.Create(ctx, e))

	report, err := svc.Stats(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(450), report.Overall.Total.Cents)
	assert.Equal(t, 1, report.Overall.Count)

	// a second expense must be visible immediately, despite the cache
	require.NoError(t, svc.Create(ctx, &core.Expense{
		Title:    "Lunch",
		Amount:   core.Money{Cents: 1000},
		Category: core.CategoryFood,
		UserID:   user.ID,
	}))
	report, err = svc.Stats(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1450), report.Overall.Total.Cents)
	assert.Equal(t, 2, report.Overall.Count)

	require.NoError(t, svc.Delete(ctx, e.ID, user.ID))
	report, err = svc.Stats(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), report.Overall.Total.Cents)
}

func TestUpdatePublishesEvent(t *testing.T) {
	pub := &recordingPublisher{}
	svc, user := newTestService(t, pub)
	ctx := context.Background()

	e := &core.Expense{
		Title:    "Coffee",
		Amount:   core.Money{Cents: 450},
		Category: core.CategoryFood,
		UserID:   user.ID,
	}
	require.NoError(t, svc.Create(ctx, e))

	e.Title = "Espresso"
	require.NoError(t, svc.Update(ctx, e))

	require.Len(t, pub.events, 2)
	assert.Equal(t, amqp.EventExpenseUpdated, pub.events[1].Type)

	got, err := svc.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "Espresso", got.Title)
}
