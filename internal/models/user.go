package models

import (
	"encoding/json"
	"math"
	"strings"
)

// User is a registered account together with the expenses it owns.
type User struct {
	Email              string    `json:"email"`
	Name               string    `json:"name"`
	FirstName          string    `json:"firstName,omitempty"`
	LastName           string    `json:"lastName,omitempty"`
	Phone              string    `json:"phone,omitempty"`
	Address            string    `json:"address,omitempty"`
	About              string    `json:"about,omitempty"`
	ProfilePic         string    `json:"profilePic,omitempty"`
	FrequentCategories string    `json:"frequentCategories,omitempty"`
	Password           string    `json:"password"`
	Budget             float64   `json:"budget"`
	Expenses           []Expense `json:"expenses"`
}

// NormalizeIdentity turns an email into the key users are matched on.
func NormalizeIdentity(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Identity returns the normalized identity key of the user.
func (u *User) Identity() string {
	return NormalizeIdentity(u.Email)
}

// FrequentCategoryList splits the comma separated frequent categories.
func (u *User) FrequentCategoryList() []string {
	var out []string
	for _, c := range strings.Split(u.FrequentCategories, ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// Clone returns a deep copy so callers can patch it without aliasing.
func (u *User) Clone() *User {
	c := *u
	c.Expenses = append([]Expense(nil), u.Expenses...)
	if c.Expenses == nil {
		c.Expenses = []Expense{}
	}
	return &c
}

// Normalize repairs values a well formed record must hold: a non-nil expense
// list, ids on every expense, a non-negative budget. It reports whether
// anything had to change.
func (u *User) Normalize() bool {
	changed := false
	if u.Expenses == nil {
		u.Expenses = []Expense{}
	}
	for i := range u.Expenses {
		if u.Expenses[i].ID == "" {
			u.Expenses[i].ID = NewExpenseID()
			changed = true
		}
	}
	if math.IsNaN(u.Budget) || math.IsInf(u.Budget, 0) || u.Budget < 0 {
		u.Budget = 0
		changed = true
	}
	return changed
}

// ExpenseIndex returns the position of the expense with the given id, or -1.
func (u *User) ExpenseIndex(id string) int {
	for i, e := range u.Expenses {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// UnmarshalJSON tolerates a budget stored as a string and an expense list that
// is missing, not a list, or holds entries that are not objects.
func (u *User) UnmarshalJSON(data []byte) error {
	type plain User
	var raw struct {
		plain
		Budget   json.RawMessage `json:"budget"`
		Expenses json.RawMessage `json:"expenses"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*u = User(raw.plain)
	u.Budget = looseNumber(raw.Budget)
	u.Expenses = decodeExpenses(raw.Expenses)
	return nil
}

func decodeExpenses(raw json.RawMessage) []Expense {
	expenses := []Expense{}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return expenses
	}
	for _, item := range items {
		var e Expense
		if err := json.Unmarshal(item, &e); err != nil {
			continue
		}
		expenses = append(expenses, e)
	}
	return expenses
}

// DecodeUsers parses the stored users collection. Entries that are not
// objects are dropped.
func DecodeUsers(data []byte) ([]User, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, err
	}
	users := make([]User, 0, len(items))
	for _, item := range items {
		var u User
		if err := json.Unmarshal(item, &u); err != nil {
			continue
		}
		users = append(users, u)
	}
	return users, nil
}
