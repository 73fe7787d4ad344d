package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"spendbook/internal/models"
	"spendbook/internal/tracker"
)

// DashboardViewModel is the data passed to the dashboard template.
type DashboardViewModel struct {
	Page
	View       *tracker.View
	Search     string
	Category   string
	Categories []string
	Today      string
}

// Dashboard renders the expense list with the budget summary.
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	h.dashboard(w, r, http.StatusOK, "")
}

func (h *Handlers) dashboard(w http.ResponseWriter, r *http.Request, status int, message string) {
	q := tracker.Query{
		Search:   r.URL.Query().Get("search"),
		Category: r.URL.Query().Get("category"),
	}
	view, err := h.svc.Dashboard(r.Context(), q)
	if err != nil {
		if !h.fail(w, r, "dashboard", err) {
			h.serverError(w, r, "dashboard", err)
		}
		return
	}

	vm := DashboardViewModel{
		Page:       h.page(r, "Dashboard"),
		View:       view,
		Search:     q.Search,
		Category:   q.Category,
		Categories: models.Categories,
		Today:      h.now().UTC().Format(models.DayKeyLayout),
	}
	vm.Error = message
	h.render(w, r, status, "dashboard.html", vm)
}

// expenseForm reads the expense fields of a form. Fields left empty keep the
// values of base.
func expenseForm(r *http.Request, base *models.Expense) (tracker.ExpenseInput, error) {
	var in tracker.ExpenseInput
	if base != nil {
		in = tracker.ExpenseInput{Name: base.Name, Amount: base.Amount, Category: base.Category, Date: base.Date}
	}
	if v := strings.TrimSpace(r.FormValue("name")); v != "" || base == nil {
		in.Name = v
	}
	if v := r.FormValue("amount"); v != "" || base == nil {
		amount, err := models.ParseAmount(v)
		if err != nil {
			return in, err
		}
		in.Amount = amount
	}
	if v := r.FormValue("category"); v != "" {
		in.Category = v
	}
	if v := r.FormValue("date"); v != "" {
		d, err := models.ParseDate(v)
		if err != nil {
			return in, &models.ValidationError{Field: "date", Message: err.Error()}
		}
		in.Date = d
	}
	return in, nil
}

// CreateExpense handles the creation of a new expense.
func (h *Handlers) CreateExpense(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.dashboard(w, r, http.StatusBadRequest, "Invalid form submission")
		return
	}
	in, err := expenseForm(r, nil)
	if err == nil {
		_, err = h.svc.AddExpense(r.Context(), in)
	}
	if err != nil {
		if !h.fail(w, r, "add expense", err) {
			h.dashboard(w, r, statusFor(err), userMessage(err))
		}
		return
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// UpdateExpense handles the update of an existing expense.
func (h *Handlers) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := r.ParseForm(); err != nil {
		h.dashboard(w, r, http.StatusBadRequest, "Invalid form submission")
		return
	}

	user := SurfaceFromContext(r).User()
	if user == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	i := user.ExpenseIndex(id)
	if i < 0 {
		http.Error(w, "Expense not found", http.StatusNotFound)
		return
	}

	in, err := expenseForm(r, &user.Expenses[i])
	if err == nil {
		_, err = h.svc.EditExpense(r.Context(), id, in)
	}
	if err != nil {
		if statusFor(err) == http.StatusNotFound {
			http.Error(w, "Expense not found", http.StatusNotFound)
			return
		}
		if !h.fail(w, r, "edit expense", err) {
			h.dashboard(w, r, statusFor(err), userMessage(err))
		}
		return
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// DeleteExpense removes an expense by id.
func (h *Handlers) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	err := h.svc.DeleteExpense(r.Context(), r.PathValue("id"))
	if statusFor(err) == http.StatusNotFound {
		http.Error(w, "Expense not found", http.StatusNotFound)
		return
	}
	if err != nil {
		if !h.fail(w, r, "delete expense", err) {
			h.dashboard(w, r, statusFor(err), userMessage(err))
		}
		return
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

// SetBudget updates the monthly budget.
func (h *Handlers) SetBudget(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.dashboard(w, r, http.StatusBadRequest, "Invalid form submission")
		return
	}
	raw := strings.ReplaceAll(strings.TrimSpace(r.FormValue("budget")), ",", ".")
	budget, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		h.dashboard(w, r, http.StatusUnprocessableEntity, "Please enter a valid budget")
		return
	}
	if _, err := h.svc.SetBudget(r.Context(), budget); err != nil {
		if !h.fail(w, r, "set budget", err) {
			h.dashboard(w, r, statusFor(err), userMessage(err))
		}
		return
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}
