// Package aggregate computes totals, breakdowns and budget alerts over an
// expense list. Every function is pure: the same list always gives the same
// result, and no function keeps state between calls.
package aggregate

import (
	"math"
	"sort"
	"strings"
	"time"

	"spendbook/internal/models"
)

// Alert is the budget threshold signal shown next to the totals.
type Alert int

const (
	AlertNone Alert = iota
	AlertApproaching
	AlertMet
	AlertExceeded
)

// approachingRatio is the share of the budget above which spending is
// reported as approaching the limit.
const approachingRatio = 0.8

func (a Alert) String() string {
	switch a {
	case AlertApproaching:
		return "approaching"
	case AlertMet:
		return "met"
	case AlertExceeded:
		return "exceeded"
	default:
		return "none"
	}
}

// Message is the user facing text for the alert, empty for AlertNone.
func (a Alert) Message() string {
	switch a {
	case AlertApproaching:
		return "Approaching budget limit"
	case AlertMet:
		return "Budget limit reached"
	case AlertExceeded:
		return "Budget exceeded!"
	default:
		return ""
	}
}

// CategoryTotal is the amount spent in one category.
type CategoryTotal struct {
	Category string
	Total    float64
	Count    int
}

// DayTotal is the amount spent on one calendar day. Day is empty for
// expenses without a usable date.
type DayTotal struct {
	Day   string
	Total float64
	Count int
}

// Share is a category total as a percentage of all spending.
type Share struct {
	Category   string
	Total      float64
	Percentage float64
}

// Total sums the amounts. The result does not depend on the order of the list.
func Total(expenses []models.Expense) float64 {
	amounts := make([]float64, len(expenses))
	for i, e := range expenses {
		amounts[i] = e.Amount
	}
	return sum(amounts)
}

// Remaining is what is left of the budget. It is negative once the budget is exceeded.
func Remaining(budget, total float64) float64 {
	return budget - total
}

// BudgetAlert evaluates the threshold signal. Exceeded is checked before Met,
// and Met before Approaching. A zero budget never alerts.
func BudgetAlert(total, budget float64) Alert {
	if budget <= 0 {
		return AlertNone
	}
	switch {
	case total > budget:
		return AlertExceeded
	case total == budget:
		return AlertMet
	case total > approachingRatio*budget:
		return AlertApproaching
	default:
		return AlertNone
	}
}

// ByCategory groups amounts per category in order of first occurrence.
func ByCategory(expenses []models.Expense) []CategoryTotal {
	index := make(map[string]int)
	var amounts [][]float64
	out := []CategoryTotal{}

	for _, e := range expenses {
		i, ok := index[e.Category]
		if !ok {
			i = len(out)
			index[e.Category] = i
			out = append(out, CategoryTotal{Category: e.Category})
			amounts = append(amounts, nil)
		}
		amounts[i] = append(amounts[i], e.Amount)
		out[i].Count++
	}
	for i := range out {
		out[i].Total = sum(amounts[i])
	}
	return out
}

// ByDay groups amounts per calendar day, ascending by date. Undated
// expenses are grouped last under an empty day.
func ByDay(expenses []models.Expense) []DayTotal {
	amounts := make(map[string][]float64)
	for _, e := range expenses {
		amounts[e.DayKey()] = append(amounts[e.DayKey()], e.Amount)
	}

	out := make([]DayTotal, 0, len(amounts))
	for day, a := range amounts {
		out = append(out, DayTotal{Day: day, Total: sum(a), Count: len(a)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Day == "" || out[j].Day == "" {
			return out[j].Day == "" && out[i].Day != ""
		}
		return out[i].Day < out[j].Day
	})
	return out
}

// Filter keeps expenses whose name, category or date contains search
// (case-insensitive; empty matches all) and whose category equals category
// when category is not empty. The date matches in both DD/MM/YY and
// YYYY-MM-DD form.
func Filter(expenses []models.Expense, search, category string) []models.Expense {
	query := strings.ToLower(search)
	out := []models.Expense{}
	for _, e := range expenses {
		if category != "" && e.Category != category {
			continue
		}
		if query == "" ||
			strings.Contains(strings.ToLower(e.Name), query) ||
			strings.Contains(strings.ToLower(e.Category), query) ||
			strings.Contains(e.ShortDate(), query) ||
			strings.Contains(e.DayKey(), query) {
			out = append(out, e)
		}
	}
	return out
}

// FilterRange keeps expenses dated within [from, to] at day granularity. A
// zero bound is open. Undated expenses are dropped once any bound is set.
func FilterRange(expenses []models.Expense, from, to time.Time) []models.Expense {
	if from.IsZero() && to.IsZero() {
		return append([]models.Expense{}, expenses...)
	}
	lo, hi := "", ""
	if !from.IsZero() {
		lo = from.Format(models.DayKeyLayout)
	}
	if !to.IsZero() {
		hi = to.Format(models.DayKeyLayout)
	}

	out := []models.Expense{}
	for _, e := range expenses {
		day := e.DayKey()
		if day == "" {
			continue
		}
		if lo != "" && day < lo {
			continue
		}
		if hi != "" && day > hi {
			continue
		}
		out = append(out, e)
	}
	return out
}

// TopCategory returns the category with the largest total. Ties go to the
// category seen first.
func TopCategory(expenses []models.Expense) (string, bool) {
	best := -1
	totals := ByCategory(expenses)
	for i, ct := range totals {
		if best < 0 || ct.Total > totals[best].Total {
			best = i
		}
	}
	if best < 0 {
		return "", false
	}
	return totals[best].Category, true
}

// AverageDaily divides the total by the number of distinct days with spending.
func AverageDaily(expenses []models.Expense) float64 {
	days := ByDay(expenses)
	if len(days) == 0 {
		return 0
	}
	return Total(expenses) / float64(len(days))
}

// Shares returns each category's percentage of total spending.
func Shares(expenses []models.Expense) []Share {
	totals := ByCategory(expenses)
	total := Total(expenses)

	out := make([]Share, 0, len(totals))
	for _, ct := range totals {
		pct := 0.0
		if total > 0 {
			pct = (ct.Total / total) * 100
		}
		out = append(out, Share{Category: ct.Category, Total: ct.Total, Percentage: pct})
	}
	return out
}

// Summary bundles the aggregates a dashboard or report shows.
type Summary struct {
	Budget       float64
	Total        float64
	Remaining    float64
	Count        int
	Alert        Alert
	ByCategory   []CategoryTotal
	ByDay        []DayTotal
	TopCategory  string
	AverageDaily float64
}

// Summarize computes every aggregate for expenses against budget.
func Summarize(expenses []models.Expense, budget float64) Summary {
	total := Total(expenses)
	top, _ := TopCategory(expenses)
	return Summary{
		Budget:       budget,
		Total:        total,
		Remaining:    Remaining(budget, total),
		Count:        len(expenses),
		Alert:        BudgetAlert(total, budget),
		ByCategory:   ByCategory(expenses),
		ByDay:        ByDay(expenses),
		TopCategory:  top,
		AverageDaily: AverageDaily(expenses),
	}
}

// sum adds values in ascending order with Neumaier compensation, so the
// result depends only on the multiset of values.
func sum(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	var s, c float64
	for _, v := range sorted {
		t := s + v
		if math.Abs(s) >= math.Abs(v) {
			c += (s - t) + v
		} else {
			c += (v - t) + s
		}
		s = t
	}
	return s + c
}
