package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Default expense categories. Any other non-empty category is stored as given.
const (
	CategoryFood      = "Food"
	CategoryTransport = "Transport"
	CategoryShopping  = "Shopping"
	CategoryBills     = "Bills"
	CategoryInternet  = "Internet"
	CategoryOthers    = "Others"
)

// Categories lists the default categories in display order.
var Categories = []string{
	CategoryFood,
	CategoryTransport,
	CategoryShopping,
	CategoryBills,
	CategoryInternet,
	CategoryOthers,
}

// Date layouts.
const (
	DayKeyLayout    = "2006-01-02"
	ShortDateLayout = "02/01/06"
)

// dateLayouts are tried in order when decoding a stored date. The slash
// layouts cover records written with a locale-formatted date.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	DayKeyLayout,
	"1/2/2006, 3:04:05 PM",
	"1/2/2006",
	"2/1/2006",
}

// Expense is a single spending record owned by exactly one user.
type Expense struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Amount   float64   `json:"amount"`
	Category string    `json:"category"`
	Date     time.Time `json:"date"`
}

// NewExpenseID returns a fresh synthetic expense identifier.
func NewExpenseID() string {
	return uuid.NewString()
}

// DayKey returns the expense date truncated to the day, e.g. 2025-01-05.
func (e Expense) DayKey() string {
	if e.Date.IsZero() {
		return ""
	}
	return e.Date.Format(DayKeyLayout)
}

// ShortDate returns the date the way lists display it (DD/MM/YY).
func (e Expense) ShortDate() string {
	if e.Date.IsZero() {
		return ""
	}
	return e.Date.Format(ShortDateLayout)
}

// Validate checks the user supplied fields of an expense.
func (e Expense) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return &ValidationError{Field: "name", Message: "name is required"}
	}
	if math.IsNaN(e.Amount) || math.IsInf(e.Amount, 0) || e.Amount <= 0 {
		return &ValidationError{Field: "amount", Message: "amount must be a positive number"}
	}
	if strings.TrimSpace(e.Category) == "" {
		return &ValidationError{Field: "category", Message: "category is required"}
	}
	return nil
}

// NormalizeCategory maps a category onto the default spelling when it matches
// one case-insensitively. Empty input becomes Others.
func NormalizeCategory(category string) string {
	category = strings.TrimSpace(category)
	if category == "" {
		return CategoryOthers
	}
	for _, c := range Categories {
		if strings.EqualFold(c, category) {
			return c
		}
	}
	return category
}

// ParseAmount parses an amount typed by a user. Both "12.5" and "12,5" are accepted.
func ParseAmount(s string) (float64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" {
		return 0, &ValidationError{Field: "amount", Message: "amount is required"}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &ValidationError{Field: "amount", Message: fmt.Sprintf("invalid amount %q", s)}
	}
	return v, nil
}

// ParseDate decodes any date representation found in stored records.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

type expenseJSON struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Amount   any    `json:"amount"`
	Category string `json:"category"`
	Date     string `json:"date"`
}

// MarshalJSON writes the canonical form: RFC 3339 UTC dates and numeric amounts.
func (e Expense) MarshalJSON() ([]byte, error) {
	date := ""
	if !e.Date.IsZero() {
		date = e.Date.UTC().Format(time.RFC3339)
	}
	return json.Marshal(expenseJSON{
		ID:       e.ID,
		Name:     e.Name,
		Amount:   e.Amount,
		Category: e.Category,
		Date:     date,
	})
}

// UnmarshalJSON accepts amounts stored as strings and every date layout in
// dateLayouts. Values that cannot be interpreted decode as zero values.
func (e *Expense) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID       json.RawMessage `json:"id"`
		Name     json.RawMessage `json:"name"`
		Amount   json.RawMessage `json:"amount"`
		Category json.RawMessage `json:"category"`
		Date     json.RawMessage `json:"date"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = Expense{
		ID:       looseString(raw.ID),
		Name:     looseString(raw.Name),
		Amount:   looseNumber(raw.Amount),
		Category: looseString(raw.Category),
	}
	if s := looseString(raw.Date); s != "" {
		e.Date, _ = ParseDate(s)
	}
	return nil
}

func looseString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func looseNumber(raw json.RawMessage) float64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
		if v, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
			return v
		}
	}
	return 0
}
