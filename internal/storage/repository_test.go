package storage

import (
	"context"
	"testing"
	"time"

	"fintrack/internal/core"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type RepositoryTestSuite struct {
	suite.Suite
	repo *SQLiteRepository
	ctx  context.Context
}

func (s *RepositoryTestSuite) SetupTest() {
	repo, err := NewSQLiteRepository(":memory:")
	require.NoError(s.T(), err, "failed to open test database")
	s.repo = repo
	s.ctx = context.Background()
}

func (s *RepositoryTestSuite) TearDownTest() {
	if s.repo != nil {
		s.repo.Close()
	}
}

func (s *RepositoryTestSuite) newUser(email string) *core.User {
	u := &core.User{
		ID:           uuid.NewString(),
		Name:         "Test User",
		Email:        email,
		PasswordHash: "hash",
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(s.T(), s.repo.CreateUser(s.ctx, u))
	return u
}

func (s *RepositoryTestSuite) newExpense(userID, title string, cents int64, category core.Category, date core.Date) *core.Expense {
	now := time.Now().UTC()
	e := &core.Expense{
		ID:        uuid.NewString(),
		Title:     title,
		Amount:    core.Money{Cents: cents},
		Category:  category,
		Date:      date,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(s.T(), s.repo.CreateExpense(s.ctx, e))
	return e
}

func (s *RepositoryTestSuite) TestCreateUserDuplicateEmail() {
	s.newUser("alice@example.com")

	dup := &core.User{
		ID:           uuid.NewString(),
		Name:         "Other",
		Email:        "alice@example.com",
		PasswordHash: "hash2",
		CreatedAt:    time.Now().UTC(),
	}
	err := s.repo.CreateUser(s.ctx, dup)
	assert.ErrorIs(s.T(), err, ErrDuplicateEmail)

	// the existing account is unchanged
	got, err := s.repo.GetUserByEmail(s.ctx, "alice@example.com")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "Test User", got.Name)
}

func (s *RepositoryTestSuite) TestGetUserNotFound() {
	_, err := s.repo.GetUserByEmail(s.ctx, "missing@example.com")
	assert.ErrorIs(s.T(), err, ErrNotFound)

	_, err = s.repo.GetUserByID(s.ctx, "missing")
	assert.ErrorIs(s.T(), err, ErrNotFound)
}

func (s *RepositoryTestSuite) TestExpenseRoundTrip() {
	u := s.newUser("alice@example.com")
	created := s.newExpense(u.ID, "Coffee", 450, core.CategoryFood, core.NewDate(2024, 1, 1))

	got, err := s.repo.GetExpense(s.ctx, created.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), created.Title, got.Title)
	assert.Equal(s.T(), created.Amount, got.Amount)
	assert.Equal(s.T(), created.Category, got.Category)
	assert.Equal(s.T(), created.Date.String(), got.Date.String())
	assert.Equal(s.T(), created.UserID, got.UserID)
	assert.Equal(s.T(), created.Description, got.Description)
}

func (s *RepositoryTestSuite) TestUpdateExpense() {
	u := s.newUser("alice@example.com")
	e := s.newExpense(u.ID, "Coffee", 450, core.CategoryFood, core.NewDate(2024, 1, 1))

	e.Title = "Lunch"
	e.Amount = core.Money{Cents: 1200}
	e.Category = core.CategoryOther
	e.Description = "team lunch"
	e.UpdatedAt = time.Now().UTC()
	require.NoError(s.T(), s.repo.UpdateExpense(s.ctx, e))

	got, err := s.repo.GetExpense(s.ctx, e.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "Lunch", got.Title)
	assert.Equal(s.T(), int64(1200), got.Amount.Cents)
	assert.Equal(s.T(), core.CategoryOther, got.Category)
	assert.Equal(s.T(), "team lunch", got.Description)

	missing := *e
	missing.ID = uuid.NewString()
	assert.ErrorIs(s.T(), s.repo.UpdateExpense(s.ctx, &missing), ErrNotFound)
}

func (s *RepositoryTestSuite) TestDeleteExpense() {
	u := s.newUser("alice@example.com")
	e := s.newExpense(u.ID, "Coffee", 450, core.CategoryFood, core.NewDate(2024, 1, 1))

	require.NoError(s.T(), s.repo.DeleteExpense(s.ctx, e.ID))
	_, err := s.repo.GetExpense(s.ctx, e.ID)
	assert.ErrorIs(s.T(), err, ErrNotFound)
	assert.ErrorIs(s.T(), s.repo.DeleteExpense(s.ctx, e.ID), ErrNotFound)
}

func (s *RepositoryTestSuite) TestListExpensesOwnershipIsolation() {
	alice := s.newUser("alice@example.com")
	bob := s.newUser("bob@example.com")
	s.newExpense(alice.ID, "Coffee", 450, core.CategoryFood, core.NewDate(2024, 1, 1))
	s.newExpense(bob.ID, "Taxi", 900, core.CategoryTransport, core.NewDate(2024, 1, 2))

	got, err := s.repo.ListExpenses(s.ctx, alice.ID, ExpenseFilter{})
	require.NoError(s.T(), err)
	require.Len(s.T(), got, 1)
	assert.Equal(s.T(), "Coffee", got[0].Title)
	assert.Equal(s.T(), alice.ID, got[0].UserID)
}

func (s *RepositoryTestSuite) TestListExpensesFilters() {
	u := s.newUser("alice@example.com")
	s.newExpense(u.ID, "Morning Coffee", 450, core.CategoryFood, core.NewDate(2024, 1, 1))
	s.newExpense(u.ID, "Bus ticket", 250, core.CategoryTransport, core.NewDate(2024, 1, 15))
	s.newExpense(u.ID, "Coffee beans", 1200, core.CategoryShopping, core.NewDate(2024, 2, 1))

	// category equality
	got, err := s.repo.ListExpenses(s.ctx, u.ID, ExpenseFilter{Category: core.CategoryFood})
	require.NoError(s.T(), err)
	require.Len(s.T(), got, 1)
	assert.Equal(s.T(), "Morning Coffee", got[0].Title)

	// "All" sentinel means no category filter
	got, err = s.repo.ListExpenses(s.ctx, u.ID, ExpenseFilter{Category: core.CategoryAll})
	require.NoError(s.T(), err)
	assert.Len(s.T(), got, 3)

	// inclusive date range
	got, err = s.repo.ListExpenses(s.ctx, u.ID, ExpenseFilter{
		StartDate: core.NewDate(2024, 1, 15),
		EndDate:   core.NewDate(2024, 2, 1),
	})
	require.NoError(s.T(), err)
	assert.Len(s.T(), got, 2)

	// case-insensitive substring on title
	got, err = s.repo.ListExpenses(s.ctx, u.ID, ExpenseFilter{Search: "coffee"})
	require.NoError(s.T(), err)
	assert.Len(s.T(), got, 2)

	// combined
	got, err = s.repo.ListExpenses(s.ctx, u.ID, ExpenseFilter{
		Category: core.CategoryShopping,
		Search:   "COFFEE",
	})
	require.NoError(s.T(), err)
	require.Len(s.T(), got, 1)
	assert.Equal(s.T(), "Coffee beans", got[0].Title)
}

func (s *RepositoryTestSuite) TestListExpensesOrderedByDateDescending() {
	u := s.newUser("alice@example.com")
	s.newExpense(u.ID, "Oldest", 100, core.CategoryOther, core.NewDate(2024, 1, 1))
	s.newExpense(u.ID, "Newest", 100, core.CategoryOther, core.NewDate(2024, 3, 1))
	s.newExpense(u.ID, "Middle", 100, core.CategoryOther, core.NewDate(2024, 2, 1))

	got, err := s.repo.ListExpenses(s.ctx, u.ID, ExpenseFilter{})
	require.NoError(s.T(), err)
	require.Len(s.T(), got, 3)
	assert.Equal(s.T(), "Newest", got[0].Title)
	assert.Equal(s.T(), "Middle", got[1].Title)
	assert.Equal(s.T(), "Oldest", got[2].Title)
}

func (s *RepositoryTestSuite) TestStats() {
	u := s.newUser("alice@example.com")
	s.newExpense(u.ID, "Coffee", 450, core.CategoryFood, core.NewDate(2024, 1, 1))
	s.newExpense(u.ID, "Lunch", 1050, core.CategoryFood, core.NewDate(2024, 1, 2))
	s.newExpense(u.ID, "Bus", 250, core.CategoryTransport, core.NewDate(2024, 1, 3))

	stats, err := s.repo.CategoryStats(s.ctx, u.ID)
	require.NoError(s.T(), err)
	require.Len(s.T(), stats, 2)
	// ordered by total descending
	assert.Equal(s.T(), core.CategoryFood, stats[0].Category)
	assert.Equal(s.T(), int64(1500), stats[0].Total.Cents)
	assert.Equal(s.T(), 2, stats[0].Count)
	assert.Equal(s.T(), core.CategoryTransport, stats[1].Category)

	overall, err := s.repo.OverallStats(s.ctx, u.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(1750), overall.Total.Cents)
	assert.Equal(s.T(), 3, overall.Count)
}

func (s *RepositoryTestSuite) TestOverallStatsEmpty() {
	u := s.newUser("alice@example.com")
	overall, err := s.repo.OverallStats(s.ctx, u.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(0), overall.Total.Cents)
	assert.Equal(s.T(), 0, overall.Count)
}

func (s *RepositoryTestSuite) TestExpenseEvents() {
	u := s.newUser("alice@example.com")
	occurred := time.Now().UTC().Add(-time.Minute)
	require.NoError(s.T(), s.repo.RecordExpenseEvent(s.ctx, &ExpenseEvent{
		EventType:  "created",
		ExpenseID:  "e1",
		UserID:     u.ID,
		OccurredAt: occurred,
	}))
	require.NoError(s.T(), s.repo.RecordExpenseEvent(s.ctx, &ExpenseEvent{
		EventType:  "deleted",
		ExpenseID:  "e1",
		UserID:     u.ID,
		OccurredAt: occurred.Add(30 * time.Second),
	}))

	events, err := s.repo.ListExpenseEvents(s.ctx, u.ID, 10)
	require.NoError(s.T(), err)
	require.Len(s.T(), events, 2)
	assert.Equal(s.T(), "deleted", events[0].EventType)
	assert.Equal(s.T(), "created", events[1].EventType)
	assert.False(s.T(), events[0].RecordedAt.IsZero())
}

func TestRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(RepositoryTestSuite))
}
