// Package sheets mirrors expense records into a Google Sheets spreadsheet
// using service-account credentials.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"fintrack/internal/core"
	"fintrack/internal/export"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Client appends and removes expense rows on a single sheet. Column A holds
// the expense id, which RemoveExpense uses to locate rows.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

var _ export.ExpenseExporter = (*Client)(nil)

// NewFromEnv builds a client from the environment.
// Required: SHEETS_SPREADSHEET_ID.
// Credentials: SHEETS_SERVICE_ACCOUNT_JSON, SHEETS_SERVICE_ACCOUNT_FILE, or
// GOOGLE_APPLICATION_CREDENTIALS.
// Optional: SHEETS_SHEET_NAME (default "Expenses").
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("SHEETS_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing SHEETS_SPREADSHEET_ID")
	}

	sheetName := strings.TrimSpace(os.Getenv("SHEETS_SHEET_NAME"))
	if sheetName == "" {
		sheetName = "Expenses"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
	}, nil
}

func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	accountJSON := strings.TrimSpace(os.Getenv("SHEETS_SERVICE_ACCOUNT_JSON"))
	accountFile := strings.TrimSpace(os.Getenv("SHEETS_SERVICE_ACCOUNT_FILE"))
	if accountJSON == "" && accountFile == "" {
		accountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case accountJSON != "":
		return gsheet.NewService(ctx,
			goption.WithCredentialsJSON([]byte(accountJSON)),
			goption.WithScopes(gsheet.SpreadsheetsScope))
	case accountFile != "":
		return gsheet.NewService(ctx,
			goption.WithCredentialsFile(accountFile),
			goption.WithScopes(gsheet.SpreadsheetsScope))
	default:
		return nil, errors.New("no service account credentials configured")
	}
}

// AppendExpense appends one row; on replay the row is de-duplicated by
// removing any stale copy first.
func (c *Client) AppendExpense(ctx context.Context, e core.Expense) error {
	if err := c.RemoveExpense(ctx, e.ID); err != nil {
		return fmt.Errorf("remove stale row: %w", err)
	}

	row := []interface{}{
		e.ID,
		e.UserID,
		e.Date.String(),
		e.Title,
		string(e.Category),
		e.Amount.Decimal(),
		e.Description,
	}
	valueRange := &gsheet.ValueRange{Values: [][]interface{}{row}}

	_, err := c.svc.Spreadsheets.Values.
		Append(c.spreadsheetID, c.sheetName+"!A:G", valueRange).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append row: %w", err)
	}

	slog.InfoContext(ctx, "Expense exported to sheet",
		"expense_id", e.ID,
		"sheet", c.sheetName)
	return nil
}

// RemoveExpense deletes every row whose id column matches expenseID.
func (c *Client) RemoveExpense(ctx context.Context, expenseID string) error {
	resp, err := c.svc.Spreadsheets.Values.
		Get(c.spreadsheetID, c.sheetName+"!A:A").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("read id column: %w", err)
	}

	// Collect matching row indexes (0-based), bottom-up so earlier deletes
	// don't shift later ones.
	var rows []int64
	for i, row := range resp.Values {
		if len(row) > 0 && fmt.Sprint(row[0]) == expenseID {
			rows = append(rows, int64(i))
		}
	}
	if len(rows) == 0 {
		return nil
	}

	sheetID, err := c.lookupSheetID(ctx)
	if err != nil {
		return err
	}

	var requests []*gsheet.Request
	for i := len(rows) - 1; i >= 0; i-- {
		requests = append(requests, &gsheet.Request{
			DeleteDimension: &gsheet.DeleteDimensionRequest{
				Range: &gsheet.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "ROWS",
					StartIndex: rows[i],
					EndIndex:   rows[i] + 1,
				},
			},
		})
	}

	_, err = c.svc.Spreadsheets.
		BatchUpdate(c.spreadsheetID, &gsheet.BatchUpdateSpreadsheetRequest{Requests: requests}).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("delete rows: %w", err)
	}

	slog.InfoContext(ctx, "Expense rows removed from sheet",
		"expense_id", expenseID,
		"rows", len(rows))
	return nil
}

func (c *Client) lookupSheetID(ctx context.Context) (int64, error) {
	meta, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("get spreadsheet metadata: %w", err)
	}
	for _, sheet := range meta.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == c.sheetName {
			return sheet.Properties.SheetId, nil
		}
	}
	return 0, fmt.Errorf("sheet %q not found in spreadsheet", c.sheetName)
}
