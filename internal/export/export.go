// Package export writes a user's expenses as CSV or PDF.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"spendbook/internal/aggregate"
	"spendbook/internal/models"

	"github.com/go-pdf/fpdf"
)

// Header is the first CSV row.
var Header = []string{"Date", "Name", "Category", "Amount"}

// Format selects an export format.
type Format string

const (
	FormatCSV Format = "csv"
	FormatPDF Format = "pdf"
)

// ParseFormat accepts "csv" and "pdf".
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatCSV, FormatPDF:
		return Format(s), nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// Write writes expenses to w in format f.
func Write(w io.Writer, f Format, title string, expenses []models.Expense) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, expenses)
	case FormatPDF:
		return WritePDF(w, title, expenses)
	}
	return fmt.Errorf("unknown export format %q", f)
}

// WriteCSV writes one row per expense in list order.
func WriteCSV(w io.Writer, expenses []models.Expense) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, e := range expenses {
		row := []string{
			e.DayKey(),
			e.Name,
			e.Category,
			strconv.FormatFloat(e.Amount, 'f', 2, 64),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

var columnWidths = []float64{35, 75, 40, 30}

// WritePDF renders a table of expenses with a total row.
func WritePDF(w io.Writer, title string, expenses []models.Expense) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetCreationDate(time.Now())
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, tr(title), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetFillColor(230, 230, 230)
	for i, h := range Header {
		align := "L"
		if i == len(Header)-1 {
			align = "R"
		}
		pdf.CellFormat(columnWidths[i], 8, h, "1", 0, align, true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 10)
	for _, e := range expenses {
		pdf.CellFormat(columnWidths[0], 7, e.DayKey(), "1", 0, "L", false, 0, "")
		pdf.CellFormat(columnWidths[1], 7, tr(e.Name), "1", 0, "L", false, 0, "")
		pdf.CellFormat(columnWidths[2], 7, tr(e.Category), "1", 0, "L", false, 0, "")
		pdf.CellFormat(columnWidths[3], 7, strconv.FormatFloat(e.Amount, 'f', 2, 64), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	pdf.SetFont("Helvetica", "B", 10)
	label := columnWidths[0] + columnWidths[1] + columnWidths[2]
	pdf.CellFormat(label, 8, "Total", "1", 0, "R", true, 0, "")
	pdf.CellFormat(columnWidths[3], 8, strconv.FormatFloat(aggregate.Total(expenses), 'f', 2, 64), "1", 0, "R", true, 0, "")
	pdf.Ln(-1)

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}
