package core

import (
	"errors"
	"net/mail"
	"strings"
	"time"
)

// Category is one label from the closed expense taxonomy.
type Category string

const (
	CategoryFood          Category = "Food"
	CategoryTransport     Category = "Transport"
	CategoryEntertainment Category = "Entertainment"
	CategoryShopping      Category = "Shopping"
	CategoryBills         Category = "Bills"
	CategoryHealthcare    Category = "Healthcare"
	CategoryEducation     Category = "Education"
	CategoryOther         Category = "Other"

	// CategoryAll is a filter sentinel, never stored on a record.
	CategoryAll Category = "All"
)

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidCategory    = errors.New("invalid category")
	ErrInvalidDate        = errors.New("invalid date")
	ErrTitleLength        = errors.New("title must be 2-100 characters")
	ErrDescriptionTooLong = errors.New("description cannot exceed 500 characters")
	ErrInvalidName        = errors.New("name must be 2-50 characters")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrPasswordTooShort   = errors.New("password must be at least 6 characters")
	ErrMissingOwner       = errors.New("missing owner")
)

// Categories returns the closed enumeration in display order.
func Categories() []Category {
	return []Category{
		CategoryFood,
		CategoryTransport,
		CategoryEntertainment,
		CategoryShopping,
		CategoryBills,
		CategoryHealthcare,
		CategoryEducation,
		CategoryOther,
	}
}

// ParseCategory validates a raw category value against the enumeration.
// The "All" sentinel is rejected here: it is only meaningful as a filter.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.TrimSpace(s))
	for _, known := range Categories() {
		if c == known {
			return c, nil
		}
	}
	return "", ErrInvalidCategory
}

type (
	// User is a registered account. PasswordHash never leaves the server.
	User struct {
		ID           string    `json:"id"`
		Name         string    `json:"name"`
		Email        string    `json:"email"`
		PasswordHash string    `json:"-"`
		CreatedAt    time.Time `json:"createdAt"`
	}

	// Expense is a single spending record owned by exactly one user.
	Expense struct {
		ID          string    `json:"id"`
		Title       string    `json:"title"`
		Amount      Money     `json:"amount"`
		Category    Category  `json:"category"`
		Date        Date      `json:"date"`
		UserID      string    `json:"userId"`
		Description string    `json:"description,omitempty"`
		CreatedAt   time.Time `json:"createdAt"`
		UpdatedAt   time.Time `json:"updatedAt"`
	}
)

// Validate checks registration fields. The password is validated separately
// because only its hash lives on the struct.
func (u User) Validate() error {
	name := strings.TrimSpace(u.Name)
	if len(name) < 2 || len(name) > 50 {
		return ErrInvalidName
	}
	if _, err := mail.ParseAddress(u.Email); err != nil {
		return ErrInvalidEmail
	}
	return nil
}

// ValidatePassword enforces the minimum length on the cleartext password
// before it is hashed.
func ValidatePassword(password string) error {
	if len(strings.TrimSpace(password)) < 6 {
		return ErrPasswordTooShort
	}
	return nil
}

// NormalizeEmail lowercases and trims an email for uniqueness comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (e Expense) Validate() error {
	title := strings.TrimSpace(e.Title)
	if len(title) < 2 || len(title) > 100 {
		return ErrTitleLength
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if _, err := ParseCategory(string(e.Category)); err != nil {
		return err
	}
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if len(e.Description) > 500 {
		return ErrDescriptionTooLong
	}
	if e.UserID == "" {
		return ErrMissingOwner
	}
	return nil
}
