package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"facemark/internal/model"
)

// WriteSummaryCSV renders a summary as CSV: one column per day, one row
// per student. Days before a student's registration stay blank.
func WriteSummaryCSV(w io.Writer, sum model.AttendanceSummary) error {
	cw := csv.NewWriter(w)

	header := append([]string{"ID", "Name"}, sum.Days...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing summary header: %w", err)
	}

	for _, row := range sum.Rows {
		rec := make([]string, 0, len(header))
		rec = append(rec, row.StudentID, row.Name)
		for _, day := range sum.Days {
			rec = append(rec, string(row.Marks[day]))
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("writing summary row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

type summaryJSON struct {
	Subject string           `json:"subject"`
	From    string           `json:"from"`
	To      string           `json:"to"`
	Days    []string         `json:"days"`
	Rows    []summaryRowJSON `json:"rows"`
}

type summaryRowJSON struct {
	ID    string                            `json:"id"`
	Name  string                            `json:"name"`
	Marks map[string]model.AttendanceStatus `json:"marks"`
}

// WriteSummaryJSON renders a summary as indented JSON.
func WriteSummaryJSON(w io.Writer, sum model.AttendanceSummary) error {
	out := summaryJSON{
		Subject: sum.Subject,
		From:    sum.From,
		To:      sum.To,
		Days:    sum.Days,
		Rows:    make([]summaryRowJSON, 0, len(sum.Rows)),
	}
	for _, row := range sum.Rows {
		out.Rows = append(out.Rows, summaryRowJSON{
			ID:    row.StudentID,
			Name:  row.Name,
			Marks: row.Marks,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encoding summary: %w", err)
	}
	return nil
}

// BuildSummaryXLSX renders a summary as a single-sheet workbook.
func BuildSummaryXLSX(sum model.AttendanceSummary) ([]byte, error) {
	f := excelize.NewFile()
	sheet := "attendance"
	f.SetSheetName("Sheet1", sheet)

	_ = f.SetCellValue(sheet, "A1", "ID")
	_ = f.SetCellValue(sheet, "B1", "Name")
	for i, day := range sum.Days {
		cell, err := excelize.CoordinatesToCellName(i+3, 1)
		if err != nil {
			return nil, err
		}
		_ = f.SetCellValue(sheet, cell, day)
	}

	for r, row := range sum.Rows {
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", r+2), row.StudentID)
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", r+2), row.Name)
		for i, day := range sum.Days {
			cell, err := excelize.CoordinatesToCellName(i+3, r+2)
			if err != nil {
				return nil, err
			}
			_ = f.SetCellValue(sheet, cell, string(row.Marks[day]))
		}
	}

	_ = f.SetColWidth(sheet, "B", "B", 24)
	if len(sum.Days) > 0 {
		last, err := excelize.ColumnNumberToName(len(sum.Days) + 2)
		if err != nil {
			return nil, err
		}
		_ = f.SetColWidth(sheet, "C", last, 12)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildSummaryPDF renders a summary as a landscape table.
func BuildSummaryPDF(sum model.AttendanceSummary) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	title := "Attendance"
	if sum.Subject != "" {
		title += ": " + sum.Subject
	}
	pdf.Cell(0, 8, title)
	pdf.Ln(8)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("%s to %s", sum.From, sum.To))
	pdf.Ln(10)

	const idWidth, nameWidth = 18.0, 48.0
	pageWidth, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	dayWidth := 14.0
	if n := len(sum.Days); n > 0 {
		if w := (pageWidth - left - right - idWidth - nameWidth) / float64(n); w < dayWidth {
			dayWidth = w
		}
	}

	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(idWidth, 6, "ID", "1", 0, "C", false, 0, "")
	pdf.CellFormat(nameWidth, 6, "Name", "1", 0, "C", false, 0, "")
	for _, day := range sum.Days {
		label := day
		if len(label) == len(model.DayFormat) {
			// Month and day only, the range line above carries the year.
			label = label[5:]
		}
		pdf.CellFormat(dayWidth, 6, label, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, row := range sum.Rows {
		pdf.CellFormat(idWidth, 6, row.StudentID, "1", 0, "C", false, 0, "")
		pdf.CellFormat(nameWidth, 6, row.Name, "1", 0, "L", false, 0, "")
		for _, day := range sum.Days {
			cell := ""
			switch row.Marks[day] {
			case model.StatusPresent:
				cell = "P"
			case model.StatusAbsent:
				cell = "A"
			}
			pdf.CellFormat(dayWidth, 6, cell, "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
