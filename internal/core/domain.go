package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	Food          Category = "Food"
	Travel        Category = "Travel"
	Shopping      Category = "Shopping"
	Bills         Category = "Bills"
	Entertainment Category = "Entertainment"
	Others        Category = "Others"
)

// DateLayout is the calendar date format used for storage and transport.
const DateLayout = "2006-01-02"

// MaxDescriptionLength bounds the free-text description of an entry, in characters.
const MaxDescriptionLength = 200

// MaxCredentialBytes is the longest credential bcrypt can hash.
const MaxCredentialBytes = 72

type (
	// Category classifies an entry. The set is closed.
	Category string

	Date struct {
		time.Time
	}

	// MonthKey identifies a calendar month bucket.
	MonthKey struct {
		Year  int
		Month time.Month
	}

	Account struct {
		ID        int64
		Username  string
		CreatedAt time.Time
	}

	// Entry is one recorded expense owned by an account.
	Entry struct {
		ID          int64
		AccountID   int64
		Date        Date
		Category    Category
		Description string
		Amount      Money
		CreatedAt   time.Time
	}
)

var (
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrNegativeAmount     = errors.New("amount must not be negative")
	ErrUnknownCategory    = errors.New("unknown category")
	ErrDescriptionTooLong = fmt.Errorf("description too long (max %d characters)", MaxDescriptionLength)
	ErrEmptyUsername      = errors.New("empty username")
	ErrEmptyCredential    = errors.New("empty credential")
	ErrInvalidAccount     = errors.New("invalid account id")
	ErrUsernameTooLong    = errors.New("username too long (max 64 characters)")
	ErrCredentialTooLong  = fmt.Errorf("credential too long (max %d bytes)", MaxCredentialBytes)
)

var categories = []Category{Food, Travel, Shopping, Bills, Entertainment, Others}

// Categories returns the closed category set in display order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// ParseCategory matches s against the category set, ignoring case and surrounding space.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	for _, c := range categories {
		if strings.EqualFold(string(c), s) {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

func (c Category) Valid() bool {
	for _, known := range categories {
		if c == known {
			return true
		}
	}
	return false
}

// Index returns the display position of c, or -1 when c is not in the set.
func (c Category) Index() int {
	for i, known := range categories {
		if c == known {
			return i
		}
	}
	return -1
}

func (c Category) String() string {
	return string(c)
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

// MonthKey returns the calendar month the date falls in.
func (d Date) MonthKey() MonthKey {
	return MonthKey{Year: d.Year(), Month: d.Month()}
}

func (k MonthKey) String() string {
	return fmt.Sprintf("%04d-%02d", k.Year, int(k.Month))
}

// Before reports whether k is chronologically earlier than other.
func (k MonthKey) Before(other MonthKey) bool {
	if k.Year != other.Year {
		return k.Year < other.Year
	}
	return k.Month < other.Month
}

// ValidateCredentials checks the shape of a username/credential pair before it reaches storage.
func ValidateCredentials(username, credential string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return ErrEmptyUsername
	}
	if len(username) > 64 {
		return ErrUsernameTooLong
	}
	if credential == "" {
		return ErrEmptyCredential
	}
	if len(credential) > MaxCredentialBytes {
		return ErrCredentialTooLong
	}
	return nil
}

func (e Entry) Validate() error {
	if e.AccountID <= 0 {
		return ErrInvalidAccount
	}
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if !e.Category.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, string(e.Category))
	}
	if utf8.RuneCountInString(e.Description) > MaxDescriptionLength {
		return ErrDescriptionTooLong
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	return nil
}
