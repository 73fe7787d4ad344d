package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2025-01-05T10:30:00Z", time.Date(2025, 1, 5, 10, 30, 0, 0, time.UTC)},
		{"2025-01-05", time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)},
		{"2025-01-05T10:30", time.Date(2025, 1, 5, 10, 30, 0, 0, time.UTC)},
		{"1/5/2025", time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)},
		{"25/12/2024", time.Date(2024, 12, 25, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDate(tt.in)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v", got)
		})
	}

	_, err := ParseDate("yesterday")
	assert.Error(t, err)
}

func TestExpenseJSONCanonicalForm(t *testing.T) {
	e := Expense{
		ID:       "abc",
		Name:     "Lunch",
		Amount:   12.5,
		Category: CategoryFood,
		Date:     time.Date(2025, 1, 5, 12, 0, 0, 0, time.FixedZone("WAT", 3600)),
	}
	data, err := json.Marshal(e)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"abc","name":"Lunch","amount":12.5,"category":"Food","date":"2025-01-05T11:00:00Z"}`, string(data))
}

func TestExpenseUnmarshalLegacyValues(t *testing.T) {
	var e Expense
	err := json.Unmarshal([]byte(`{"name":"Bus","amount":"2000","category":"Transport","date":"1/6/2025"}`), &e)
	require.NoError(t, err)

	assert.Equal(t, "", e.ID)
	assert.Equal(t, 2000.0, e.Amount)
	assert.Equal(t, "2025-01-06", e.DayKey())
	assert.Equal(t, "06/01/25", e.ShortDate())

	err = json.Unmarshal([]byte(`{"name":"Odd","amount":"lots","date":"someday"}`), &e)
	require.NoError(t, err)
	assert.Zero(t, e.Amount)
	assert.True(t, e.Date.IsZero())
}

func TestExpenseValidate(t *testing.T) {
	good := Expense{Name: "Lunch", Amount: 3, Category: CategoryFood}
	assert.NoError(t, good.Validate())

	bad := []Expense{
		{Name: " ", Amount: 3, Category: CategoryFood},
		{Name: "Lunch", Amount: 0, Category: CategoryFood},
		{Name: "Lunch", Amount: -1, Category: CategoryFood},
		{Name: "Lunch", Amount: 1, Category: ""},
	}
	for i, e := range bad {
		var verr *ValidationError
		assert.ErrorAs(t, e.Validate(), &verr, "case %d", i)
	}
}

func TestParseAmount(t *testing.T) {
	v, err := ParseAmount(" 12,50 ")
	require.NoError(t, err)
	assert.Equal(t, 12.5, v)

	_, err = ParseAmount("")
	assert.Error(t, err)
	_, err = ParseAmount("ten")
	assert.Error(t, err)
}

func TestNormalizeCategory(t *testing.T) {
	assert.Equal(t, CategoryFood, NormalizeCategory("food"))
	assert.Equal(t, CategoryOthers, NormalizeCategory(""))
	assert.Equal(t, "Gifts", NormalizeCategory(" Gifts "))
}

func TestUserUnmarshalTolerance(t *testing.T) {
	var u User
	err := json.Unmarshal([]byte(`{"email":"A@x.io","name":"Ann","budget":"1500","expenses":"oops"}`), &u)
	require.NoError(t, err)
	assert.Equal(t, 1500.0, u.Budget)
	assert.NotNil(t, u.Expenses)
	assert.Empty(t, u.Expenses)
	assert.Equal(t, "a@x.io", u.Identity())

	err = json.Unmarshal([]byte(`{"email":"a@x.io","budget":{},"expenses":[1,{"name":"Tea","amount":2}]}`), &u)
	require.NoError(t, err)
	assert.Zero(t, u.Budget)
	require.Len(t, u.Expenses, 1)
	assert.Equal(t, "Tea", u.Expenses[0].Name)
}

func TestUserNormalize(t *testing.T) {
	u := User{Email: "a@x.io", Budget: -5, Expenses: []Expense{{Name: "Tea"}, {ID: "keep", Name: "Bus"}}}
	assert.True(t, u.Normalize())
	assert.NotEmpty(t, u.Expenses[0].ID)
	assert.Equal(t, "keep", u.Expenses[1].ID)
	assert.Zero(t, u.Budget)

	assert.False(t, u.Normalize(), "second pass must be a no-op")
}

func TestUserClone(t *testing.T) {
	u := &User{Email: "a@x.io", Expenses: []Expense{{ID: "1", Name: "Tea"}}}
	c := u.Clone()
	c.Expenses[0].Name = "Coffee"
	assert.Equal(t, "Tea", u.Expenses[0].Name)
}

func TestFrequentCategoryList(t *testing.T) {
	u := User{FrequentCategories: "Food, Transport,, Bills "}
	assert.Equal(t, []string{"Food", "Transport", "Bills"}, u.FrequentCategoryList())
}

func TestDecodePointer(t *testing.T) {
	p, err := DecodePointer("ann@x.io")
	require.NoError(t, err)
	assert.Equal(t, PointerIdentifier, p.Kind)
	assert.Equal(t, "ann@x.io", p.Identity)

	p, err = DecodePointer(`"Ann@X.io"`)
	require.NoError(t, err)
	assert.Equal(t, PointerIdentifier, p.Kind)
	assert.Equal(t, "ann@x.io", p.Identity)

	p, err = DecodePointer(`{"email":"ann@x.io","name":"Ann","budget":10}`)
	require.NoError(t, err)
	assert.Equal(t, PointerSnapshot, p.Kind)
	assert.Equal(t, "ann@x.io", p.Identity)
	require.NotNil(t, p.Snapshot)
	assert.Equal(t, 10.0, p.Snapshot.Budget)

	p, err = DecodePointer(`{broken`)
	require.NoError(t, err)
	assert.Equal(t, PointerIdentifier, p.Kind)

	_, err = DecodePointer("  ")
	assert.Error(t, err)
}

func TestEncodePointerRoundTrip(t *testing.T) {
	u := &User{Email: "ann@x.io", Name: "Ann", Budget: 100, Expenses: []Expense{{ID: "1", Name: "Tea", Amount: 2, Category: CategoryFood}}}
	raw, err := EncodePointer(u)
	require.NoError(t, err)

	p, err := DecodePointer(raw)
	require.NoError(t, err)
	assert.Equal(t, PointerSnapshot, p.Kind)
	assert.Equal(t, *u, *p.Snapshot)
}

func TestStaleSessionIsUnauthenticated(t *testing.T) {
	assert.ErrorIs(t, ErrStaleSession, ErrUnauthenticated)
}
