package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fintrack/internal/core"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateEmail is returned when registering an email already in use.
	ErrDuplicateEmail = errors.New("email already registered")
)

const timeLayout = time.RFC3339Nano

// SQLiteRepository is the single persistent store: users, expenses, and the
// audit trail written by the event worker.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens (creating if needed) the database at dbPath and
// applies migrations. Pass ":memory:" for an ephemeral database in tests.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// A single connection sidesteps SQLITE_BUSY under the pure-Go driver and
	// keeps :memory: databases on one handle.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database handle is usable. Readiness probes use it.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// CreateUser inserts a new account. The email must already be normalized.
func (r *SQLiteRepository) CreateUser(ctx context.Context, u *core.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("create user: %w", err)
	}

	slog.InfoContext(ctx, "User created", "user_id", u.ID, "email", u.Email)
	return nil
}

func (r *SQLiteRepository) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, email, password_hash, created_at FROM users WHERE email = ?`, email)
	return scanUser(row)
}

func (r *SQLiteRepository) GetUserByID(ctx context.Context, id string) (*core.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, email, password_hash, created_at FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*core.User, error) {
	var u core.User
	var createdAt string
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.CreatedAt = parseStoredTime(createdAt)
	return &u, nil
}

// CreateExpense inserts a fully populated, validated expense.
func (r *SQLiteRepository) CreateExpense(ctx context.Context, e *core.Expense) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO expenses (id, user_id, title, amount_cents, category, expense_date, description, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Title, e.Amount.Cents, string(e.Category), e.Date.String(),
		e.Description, e.CreatedAt.UTC().Format(timeLayout), e.UpdatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("create expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved",
		"expense_id", e.ID,
		"user_id", e.UserID,
		"category", e.Category,
		"amount_cents", e.Amount.Cents)
	return nil
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, id string) (*core.Expense, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, amount_cents, category, expense_date, description, created_at, updated_at
		 FROM expenses WHERE id = ?`, id)

	e, err := scanExpense(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get expense: %w", err)
	}
	return e, nil
}

// UpdateExpense replaces all mutable fields of an existing expense.
func (r *SQLiteRepository) UpdateExpense(ctx context.Context, e *core.Expense) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET title = ?, amount_cents = ?, category = ?, expense_date = ?, description = ?, updated_at = ?
		 WHERE id = ?`,
		e.Title, e.Amount.Cents, string(e.Category), e.Date.String(), e.Description,
		e.UpdatedAt.UTC().Format(timeLayout), e.ID,
	)
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ExpenseFilter narrows a listing. Zero values leave the dimension open; the
// "All" category sentinel is treated as no filter.
type ExpenseFilter struct {
	Category  core.Category
	StartDate core.Date
	EndDate   core.Date
	Search    string
}

// ListExpenses returns the owner's matching expenses ordered by date
// descending (creation time breaks ties). No pagination: the full result set
// is returned and summarized by the caller.
func (r *SQLiteRepository) ListExpenses(ctx context.Context, userID string, f ExpenseFilter) ([]core.Expense, error) {
	query := `SELECT id, user_id, title, amount_cents, category, expense_date, description, created_at, updated_at
	          FROM expenses WHERE user_id = ?`
	args := []any{userID}

	if f.Category != "" && f.Category != core.CategoryAll {
		query += ` AND category = ?`
		args = append(args, string(f.Category))
	}
	if !f.StartDate.IsZero() {
		query += ` AND expense_date >= ?`
		args = append(args, f.StartDate.String())
	}
	if !f.EndDate.IsZero() {
		query += ` AND expense_date <= ?`
		args = append(args, f.EndDate.String())
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		query += ` AND LOWER(title) LIKE '%' || LOWER(?) || '%'`
		args = append(args, s)
	}
	query += ` ORDER BY expense_date DESC, created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var expenses []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		expenses = append(expenses, *e)
	}
	return expenses, rows.Err()
}

// CategoryStats aggregates the owner's expenses per category, largest total
// first.
func (r *SQLiteRepository) CategoryStats(ctx context.Context, userID string) ([]core.CategoryStat, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT category, SUM(amount_cents), COUNT(*) FROM expenses
		 WHERE user_id = ? GROUP BY category ORDER BY SUM(amount_cents) DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("category stats: %w", err)
	}
	defer rows.Close()

	var stats []core.CategoryStat
	for rows.Next() {
		var s core.CategoryStat
		var category string
		var cents int64
		if err := rows.Scan(&category, &cents, &s.Count); err != nil {
			return nil, fmt.Errorf("scan category stat: %w", err)
		}
		s.Category = core.Category(category)
		s.Total = core.Money{Cents: cents}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// OverallStats aggregates across all of the owner's expenses.
func (r *SQLiteRepository) OverallStats(ctx context.Context, userID string) (core.OverallStat, error) {
	var stat core.OverallStat
	var cents sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT SUM(amount_cents), COUNT(*) FROM expenses WHERE user_id = ?`, userID).
		Scan(&cents, &stat.Count)
	if err != nil {
		return core.OverallStat{}, fmt.Errorf("overall stats: %w", err)
	}
	stat.Total = core.Money{Cents: cents.Int64}
	return stat, nil
}

// ExpenseEvent is one audit-trail entry recorded by the event worker.
type ExpenseEvent struct {
	ID         int64
	EventType  string
	ExpenseID  string
	UserID     string
	OccurredAt time.Time
	RecordedAt time.Time
}

// RecordExpenseEvent appends an audit entry. Events are append-only.
func (r *SQLiteRepository) RecordExpenseEvent(ctx context.Context, ev *ExpenseEvent) error {
	if ev.RecordedAt.IsZero() {
		ev.RecordedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO expense_events (event_type, expense_id, user_id, occurred_at, recorded_at)
		 VALUES (?, ?, ?, ?, ?)`,
		ev.EventType, ev.ExpenseID, ev.UserID,
		ev.OccurredAt.UTC().Format(timeLayout), ev.RecordedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("record expense event: %w", err)
	}
	return nil
}

// ListExpenseEvents returns the most recent audit entries for one user.
func (r *SQLiteRepository) ListExpenseEvents(ctx context.Context, userID string, limit int) ([]ExpenseEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, event_type, expense_id, user_id, occurred_at, recorded_at
		 FROM expense_events WHERE user_id = ? ORDER BY occurred_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list expense events: %w", err)
	}
	defer rows.Close()

	var events []ExpenseEvent
	for rows.Next() {
		var ev ExpenseEvent
		var occurred, recorded string
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.ExpenseID, &ev.UserID, &occurred, &recorded); err != nil {
			return nil, fmt.Errorf("scan expense event: %w", err)
		}
		ev.OccurredAt = parseStoredTime(occurred)
		ev.RecordedAt = parseStoredTime(recorded)
		events = append(events, ev)
	}
	return events, rows.Err()
}

func scanExpense(scan func(dest ...any) error) (*core.Expense, error) {
	var e core.Expense
	var category, date, createdAt, updatedAt string
	var cents int64
	err := scan(&e.ID, &e.UserID, &e.Title, &cents, &category, &date, &e.Description, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	e.Amount = core.Money{Cents: cents}
	e.Category = core.Category(category)
	if d, perr := core.ParseDate(date); perr == nil {
		e.Date = d
	}
	e.CreatedAt = parseStoredTime(createdAt)
	e.UpdatedAt = parseStoredTime(updatedAt)
	return &e, nil
}

func parseStoredTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
