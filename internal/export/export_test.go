package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"

	"github.com/xuri/excelize/v2"

	"facemark/internal/model"
)

func testSummary() model.AttendanceSummary {
	return model.AttendanceSummary{
		Subject: "physics",
		From:    "2026-03-01",
		To:      "2026-03-03",
		Days:    []string{"2026-03-01", "2026-03-02", "2026-03-03"},
		Rows: []model.SummaryRow{
			{
				StudentID: "42",
				Name:      "Ada",
				Marks: map[string]model.AttendanceStatus{
					"2026-03-01": model.StatusPresent,
					"2026-03-02": model.StatusAbsent,
					"2026-03-03": model.StatusPresent,
				},
			},
			{
				// Registered on the second day, so the first stays blank.
				StudentID: "7",
				Name:      "Grace",
				Marks: map[string]model.AttendanceStatus{
					"2026-03-02": model.StatusPresent,
					"2026-03-03": model.StatusAbsent,
				},
			},
		},
	}
}

func TestWriteSummaryCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSummaryCSV(&buf, testSummary()); err != nil {
		t.Fatalf("WriteSummaryCSV() error = %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("reading csv output: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}

	wantHeader := []string{"ID", "Name", "2026-03-01", "2026-03-02", "2026-03-03"}
	for i, field := range wantHeader {
		if records[0][i] != field {
			t.Errorf("header[%d] = %q, want %q", i, records[0][i], field)
		}
	}

	ada := records[1]
	if ada[0] != "42" || ada[1] != "Ada" {
		t.Errorf("row = %v, want student 42 Ada", ada)
	}
	if ada[2] != "Present" || ada[3] != "Absent" || ada[4] != "Present" {
		t.Errorf("marks = %v, want Present/Absent/Present", ada[2:])
	}

	grace := records[2]
	if grace[2] != "" {
		t.Errorf("pre-registration cell = %q, want empty", grace[2])
	}
	if grace[3] != "Present" {
		t.Errorf("marks[1] = %q, want Present", grace[3])
	}
}

func TestWriteSummaryCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	err := WriteSummaryCSV(&buf, model.AttendanceSummary{Subject: "physics"})
	if err != nil {
		t.Fatalf("WriteSummaryCSV() error = %v", err)
	}
	if got := buf.String(); got != "ID,Name\n" {
		t.Errorf("output = %q, want header only", got)
	}
}

func TestWriteSummaryJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSummaryJSON(&buf, testSummary()); err != nil {
		t.Fatalf("WriteSummaryJSON() error = %v", err)
	}

	var got struct {
		Subject string   `json:"subject"`
		From    string   `json:"from"`
		To      string   `json:"to"`
		Days    []string `json:"days"`
		Rows    []struct {
			ID    string            `json:"id"`
			Name  string            `json:"name"`
			Marks map[string]string `json:"marks"`
		} `json:"rows"`
	}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decoding output: %v", err)
	}

	if got.Subject != "physics" || got.From != "2026-03-01" || got.To != "2026-03-03" {
		t.Errorf("summary fields = %q %q %q", got.Subject, got.From, got.To)
	}
	if len(got.Days) != 3 || len(got.Rows) != 2 {
		t.Fatalf("got %d days and %d rows, want 3 and 2", len(got.Days), len(got.Rows))
	}
	if got.Rows[0].Marks["2026-03-02"] != "Absent" {
		t.Errorf("marks[2026-03-02] = %q, want Absent", got.Rows[0].Marks["2026-03-02"])
	}
	if _, ok := got.Rows[1].Marks["2026-03-01"]; ok {
		t.Error("pre-registration day present in marks map")
	}
}

func TestBuildSummaryXLSX(t *testing.T) {
	b, err := BuildSummaryXLSX(testSummary())
	if err != nil {
		t.Fatalf("BuildSummaryXLSX() error = %v", err)
	}
	if len(b) == 0 {
		t.Fatal("got empty workbook")
	}

	f, err := excelize.OpenReader(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("reopening workbook: %v", err)
	}
	defer f.Close()

	cells := map[string]string{
		"A1": "ID",
		"B1": "Name",
		"C1": "2026-03-01",
		"A2": "42",
		"B2": "Ada",
		"D2": "Absent",
		"C3": "",
		"D3": "Present",
	}
	for cell, want := range cells {
		got, err := f.GetCellValue("attendance", cell)
		if err != nil {
			t.Fatalf("GetCellValue(%s) error = %v", cell, err)
		}
		if got != want {
			t.Errorf("cell %s = %q, want %q", cell, got, want)
		}
	}
}

func TestBuildSummaryPDF(t *testing.T) {
	b, err := BuildSummaryPDF(testSummary())
	if err != nil {
		t.Fatalf("BuildSummaryPDF() error = %v", err)
	}
	if !bytes.HasPrefix(b, []byte("%PDF")) {
		t.Errorf("output does not start with %%PDF, got %q", b[:min(len(b), 8)])
	}
}

func TestBuildSummaryPDF_Empty(t *testing.T) {
	b, err := BuildSummaryPDF(model.AttendanceSummary{})
	if err != nil {
		t.Fatalf("BuildSummaryPDF() error = %v", err)
	}
	if len(b) == 0 {
		t.Fatal("got empty document")
	}
}
