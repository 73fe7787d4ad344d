package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"spendbook/internal/export"
	"spendbook/internal/models"
	"spendbook/internal/tracker"
)

const monthLayout = "2006-01"

// ReportCategoryItem is a category row of the report with its display style.
type ReportCategoryItem struct {
	Category      string
	Total         float64
	Percentage    float64
	CategoryStyle CategoryStyle
}

// ReportViewModel is the data passed to the reports template.
type ReportViewModel struct {
	Page
	View       *tracker.View
	Items      []ReportCategoryItem
	MonthName  string
	From       string
	To         string
	Category   string
	Categories []string
	PrevMonth  string
	NextMonth  string
	ExportCSV  string
	ExportPDF  string
}

// reportQuery reads the report filter. Without from or to, the range is the
// month named by the month parameter, or the current month.
func (h *Handlers) reportQuery(r *http.Request) (tracker.Query, time.Time, error) {
	params := r.URL.Query()
	now := h.now().UTC()
	month := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	if v := params.Get("month"); v != "" {
		m, err := time.ParseInLocation(monthLayout, v, time.UTC)
		if err != nil {
			return tracker.Query{}, month, &models.ValidationError{Field: "month", Message: fmt.Sprintf("invalid month %q", v)}
		}
		month = m
	}

	q := tracker.Query{
		Search:   params.Get("search"),
		Category: params.Get("category"),
	}
	from, to := params.Get("from"), params.Get("to")
	if from == "" && to == "" {
		q.From = month
		q.To = month.AddDate(0, 1, -1)
		return q, month, nil
	}

	var err error
	if q.From, err = parseDay("from", from); err != nil {
		return q, month, err
	}
	if q.To, err = parseDay("to", to); err != nil {
		return q, month, err
	}
	return q, month, nil
}

func parseDay(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(models.DayKeyLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, &models.ValidationError{Field: field, Message: fmt.Sprintf("invalid date %q", s)}
	}
	return t, nil
}

func dayOrEmpty(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(models.DayKeyLayout)
}

// Reports renders the per-category totals for a date range.
func (h *Handlers) Reports(w http.ResponseWriter, r *http.Request) {
	vm := ReportViewModel{Page: h.page(r, "Reports"), Categories: models.Categories}

	q, month, err := h.reportQuery(r)
	if err != nil {
		vm.Error = userMessage(err)
		h.render(w, r, http.StatusUnprocessableEntity, "reports.html", vm)
		return
	}
	view, err := h.svc.Report(r.Context(), q)
	if err != nil {
		if !h.fail(w, r, "report", err) {
			h.serverError(w, r, "report", err)
		}
		return
	}

	vm.View = view
	vm.From = dayOrEmpty(q.From)
	vm.To = dayOrEmpty(q.To)
	vm.Category = q.Category
	vm.MonthName = month.Format("January 2006")
	vm.PrevMonth = month.AddDate(0, -1, 0).Format(monthLayout)
	vm.NextMonth = month.AddDate(0, 1, 0).Format(monthLayout)
	for _, sh := range view.Shares {
		vm.Items = append(vm.Items, ReportCategoryItem{
			Category:      sh.Category,
			Total:         sh.Total,
			Percentage:    sh.Percentage,
			CategoryStyle: categoryStyle(sh.Category),
		})
	}

	exportQuery := url.Values{"from": {vm.From}, "to": {vm.To}, "category": {q.Category}, "search": {q.Search}}
	exportQuery.Set("format", string(export.FormatCSV))
	vm.ExportCSV = "/reports/export?" + exportQuery.Encode()
	exportQuery.Set("format", string(export.FormatPDF))
	vm.ExportPDF = "/reports/export?" + exportQuery.Encode()

	h.render(w, r, http.StatusOK, "reports.html", vm)
}

// Export downloads the report rows as CSV or PDF.
func (h *Handlers) Export(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	q, _, err := h.reportQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	view, err := h.svc.Report(r.Context(), q)
	if err != nil {
		if !h.fail(w, r, "export", err) {
			h.serverError(w, r, "export", err)
		}
		return
	}

	var buf bytes.Buffer
	title := fmt.Sprintf("Expenses for %s", view.User.Name)
	if err := export.Write(&buf, format, title, view.Expenses); err != nil {
		h.serverError(w, r, "export", err)
		return
	}

	filename := "expenses." + string(format)
	contentType := "text/csv; charset=utf-8"
	if format == export.FormatPDF {
		contentType = "application/pdf"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.DebugContext(r.Context(), "write export", "error", err)
	}
}
