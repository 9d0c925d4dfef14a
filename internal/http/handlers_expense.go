package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

// expenseRequest is the write payload for create and update. Date is a
// pointer so an omitted date can fall back to today on create and to the
// stored value on update.
type expenseRequest struct {
	Title       string     `json:"title"`
	Amount      core.Money `json:"amount"`
	Category    string     `json:"category"`
	Date        *core.Date `json:"date"`
	Description string     `json:"description"`
}

type listPayload struct {
	Expenses []core.Expense `json:"expenses"`
	core.Summary
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	filter, errs := parseExpenseFilter(r)
	if len(errs) > 0 {
		respondValidation(w, errs)
		return
	}

	expenses, summary, err := s.expenses.List(r.Context(), user.ID, filter)
	if err != nil {
		slog.ErrorContext(r.Context(), "Expense list failed", "error", err, "user_id", user.ID)
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if expenses == nil {
		expenses = []core.Expense{}
	}

	respondList(w, len(expenses), listPayload{Expenses: expenses, Summary: summary})
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	var req expenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	expense := req.toExpense(user.ID)
	if errs := expenseFieldErrors(expense, req.Date != nil); len(errs) > 0 {
		respondValidation(w, errs)
		return
	}

	if err := s.expenses.Create(r.Context(), expense); err != nil {
		slog.ErrorContext(r.Context(), "Expense create failed", "error", err, "user_id", user.ID)
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondMessage(w, http.StatusCreated, "Expense created successfully", expense)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	expense, ok := s.ownedExpense(w, r)
	if !ok {
		return
	}
	respondData(w, http.StatusOK, expense)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	stored, ok := s.ownedExpense(w, r)
	if !ok {
		return
	}

	var req expenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	expense := req.toExpense(stored.UserID)
	expense.ID = stored.ID
	expense.CreatedAt = stored.CreatedAt
	if req.Date == nil {
		expense.Date = stored.Date
	}

	if errs := expenseFieldErrors(expense, true); len(errs) > 0 {
		respondValidation(w, errs)
		return
	}

	if err := s.expenses.Update(r.Context(), expense); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Expense not found")
			return
		}
		slog.ErrorContext(r.Context(), "Expense update failed", "error", err, "expense_id", expense.ID)
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondMessage(w, http.StatusOK, "Expense updated successfully", expense)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	expense, ok := s.ownedExpense(w, r)
	if !ok {
		return
	}

	if err := s.expenses.Delete(r.Context(), expense.ID, expense.UserID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Expense not found")
			return
		}
		slog.ErrorContext(r.Context(), "Expense delete failed", "error", err, "expense_id", expense.ID)
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	respondMessage(w, http.StatusOK, "Expense deleted successfully", nil)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	report, err := s.expenses.Stats(r.Context(), user.ID)
	if err != nil {
		slog.ErrorContext(r.Context(), "Stats failed", "error", err, "user_id", user.ID)
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if report.CategoryStats == nil {
		report.CategoryStats = []core.CategoryStat{}
	}

	respondData(w, http.StatusOK, report)
}

// ownedExpense loads the path expense and enforces ownership: absent records
// are 404, records owned by someone else are 403.
func (s *Server) ownedExpense(w http.ResponseWriter, r *http.Request) (*core.Expense, bool) {
	id := r.PathValue("id")
	expense, err := s.expenses.Get(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Expense not found")
		return nil, false
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "Expense lookup failed", "error", err, "expense_id", id)
		respondError(w, http.StatusInternalServerError, "Internal server error")
		return nil, false
	}
	if expense.UserID != userFromContext(r.Context()).ID {
		respondError(w, http.StatusForbidden, "Not authorized to access this expense")
		return nil, false
	}
	return expense, true
}

func (req expenseRequest) toExpense(userID string) *core.Expense {
	e := &core.Expense{
		Title:       strings.TrimSpace(req.Title),
		Amount:      req.Amount,
		Category:    core.Category(strings.TrimSpace(req.Category)),
		Description: strings.TrimSpace(req.Description),
		UserID:      userID,
	}
	if req.Date != nil {
		e.Date = *req.Date
	}
	return e
}

// expenseFieldErrors accumulates every failing field so the client can show
// them all at once. checkDate is false when the date was omitted and a
// default will be applied downstream.
func expenseFieldErrors(e *core.Expense, checkDate bool) []fieldError {
	var errs []fieldError
	if l := len(e.Title); l < 2 || l > 100 {
		errs = append(errs, fieldError{Field: "title", Message: core.ErrTitleLength.Error()})
	}
	if err := e.Amount.Validate(); err != nil {
		errs = append(errs, fieldError{Field: "amount", Message: "amount must be greater than 0"})
	}
	if _, err := core.ParseCategory(string(e.Category)); err != nil {
		errs = append(errs, fieldError{Field: "category", Message: "category must be one of the known categories"})
	}
	if checkDate {
		if err := e.Date.Validate(); err != nil {
			errs = append(errs, fieldError{Field: "date", Message: "date must be a valid calendar date"})
		}
	}
	if len(e.Description) > 500 {
		errs = append(errs, fieldError{Field: "description", Message: core.ErrDescriptionTooLong.Error()})
	}
	return errs
}

// parseExpenseFilter reads the list query parameters. The category value
// "All" means no category filter; dates are inclusive bounds.
func parseExpenseFilter(r *http.Request) (storage.ExpenseFilter, []fieldError) {
	var filter storage.ExpenseFilter
	var errs []fieldError
	q := r.URL.Query()

	if raw := strings.TrimSpace(q.Get("category")); raw != "" && raw != string(core.CategoryAll) {
		c, err := core.ParseCategory(raw)
		if err != nil {
			errs = append(errs, fieldError{Field: "category", Message: "unknown category filter"})
		} else {
			filter.Category = c
		}
	}
	if raw := strings.TrimSpace(q.Get("startDate")); raw != "" {
		d, err := core.ParseDate(raw)
		if err != nil {
			errs = append(errs, fieldError{Field: "startDate", Message: "startDate must be YYYY-MM-DD"})
		} else {
			filter.StartDate = d
		}
	}
	if raw := strings.TrimSpace(q.Get("endDate")); raw != "" {
		d, err := core.ParseDate(raw)
		if err != nil {
			errs = append(errs, fieldError{Field: "endDate", Message: "endDate must be YYYY-MM-DD"})
		} else {
			filter.EndDate = d
		}
	}
	filter.Search = strings.TrimSpace(q.Get("search"))

	return filter, errs
}
