package ingest

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
)

var testNow = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func newWorkbook(t *testing.T, sheet string, rows [][]any) *excelize.File {
	t.Helper()
	f := excelize.NewFile()
	t.Cleanup(func() { f.Close() })
	if sheet != "Sheet1" {
		if err := f.SetSheetName("Sheet1", sheet); err != nil {
			t.Fatal(err)
		}
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		r := row
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			t.Fatal(err)
		}
	}
	return f
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParseWorkbook_Basic(t *testing.T) {
	f := newWorkbook(t, "Brent", [][]any{
		{"Date", "Price"},
		{date(2020, 1, 3), 68.6},
		{"2020-01-02", "66.25"},
		{"06/01/2020", "68,91"},
	})

	res, err := parseWorkbook(f, testNow)
	if err != nil {
		t.Fatalf("parseWorkbook: %v", err)
	}
	if res.Sheet != "Brent" {
		t.Errorf("Sheet = %q, want Brent", res.Sheet)
	}
	if len(res.Rejected) != 0 {
		t.Errorf("Rejected = %+v, want none", res.Rejected)
	}

	want := []struct {
		date  time.Time
		price float64
	}{
		{date(2020, 1, 2), 66.25},
		{date(2020, 1, 3), 68.6},
		{date(2020, 1, 6), 68.91},
	}
	if len(res.Observations) != len(want) {
		t.Fatalf("len(Observations) = %d, want %d", len(res.Observations), len(want))
	}
	for i, w := range want {
		got := res.Observations[i]
		if !got.Date.Equal(w.date) || got.Price != w.price {
			t.Errorf("Observations[%d] = %s %.2f, want %s %.2f", i, got.Date.Format("2006-01-02"), got.Price, w.date.Format("2006-01-02"), w.price)
		}
	}
}

func TestParseWorkbook_HeaderAfterTitleRows(t *testing.T) {
	f := newWorkbook(t, "Sheet1", [][]any{
		{"Europe Brent Spot Price FOB"},
		{},
		{"Data", "Preço (US$)"},
		{"2023-01-03", "US$ 82,10"},
	})

	res, err := parseWorkbook(f, testNow)
	if err != nil {
		t.Fatalf("parseWorkbook: %v", err)
	}
	if len(res.Observations) != 1 || res.Observations[0].Price != 82.10 {
		t.Errorf("Observations = %+v", res.Observations)
	}
}

func TestParseWorkbook_RejectsBadRows(t *testing.T) {
	f := newWorkbook(t, "Sheet1", [][]any{
		{"date", "price"},
		{"2020-01-02", "66.25"},
		{"not a date", "70"},
		{"2020-01-03", "n/a"},
		{"2020-01-06", "-5"},
		{"2030-01-01", "80"},
		{"2020-01-07", "NaN"},
		{"2020-01-08", "+Inf"},
		{"2020-01-02", "67.00"},
	})

	res, err := parseWorkbook(f, testNow)
	if err != nil {
		t.Fatalf("parseWorkbook: %v", err)
	}
	if len(res.Rejected) != 7 {
		t.Errorf("len(Rejected) = %d, want 7: %+v", len(res.Rejected), res.Rejected)
	}
	if len(res.Observations) != 1 {
		t.Fatalf("len(Observations) = %d, want 1", len(res.Observations))
	}
	// The later duplicate wins.
	if res.Observations[0].Price != 67.00 {
		t.Errorf("Price = %v, want 67", res.Observations[0].Price)
	}
	if res.Rejected[0].Row != 3 {
		t.Errorf("first rejected row = %d, want 3", res.Rejected[0].Row)
	}
	last := res.Rejected[len(res.Rejected)-1]
	if last.Reason != FlagDuplicateDate {
		t.Errorf("last reason = %q, want %q", last.Reason, FlagDuplicateDate)
	}
}

func TestParseWorkbook_NoPriceSheet(t *testing.T) {
	f := newWorkbook(t, "Sheet1", [][]any{
		{"when", "how much"},
		{"2020-01-02", "66.25"},
	})
	if _, err := parseWorkbook(f, testNow); !errors.Is(err, ErrNoPriceSheet) {
		t.Errorf("err = %v, want ErrNoPriceSheet", err)
	}
}

func TestParseFile(t *testing.T) {
	f := newWorkbook(t, "Sheet1", [][]any{
		{"Date", "Price"},
		{"2020-01-02", 66.25},
	})
	path := filepath.Join(t.TempDir(), "brent.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}

	res, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(res.Observations) != 1 {
		t.Errorf("len(Observations) = %d, want 1", len(res.Observations))
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"66.25", 66.25},
		{"66,25", 66.25},
		{"1,066.25", 1066.25},
		{"1.066,25", 1066.25},
		{"$ 70", 70},
	}
	for _, tt := range tests {
		got, err := parsePrice(tt.in)
		if err != nil {
			t.Errorf("parsePrice(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parsePrice(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	for _, bad := range []string{"", "NaN", "nan", "Inf", "-Inf", "infinity"} {
		if v, err := parsePrice(bad); err == nil {
			t.Errorf("parsePrice(%q) = %v, want error", bad, v)
		}
	}
}

func TestParseDate_ExcelSerial(t *testing.T) {
	got, err := parseDate("43832")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(date(2020, 1, 2)) {
		t.Errorf("parseDate(43832) = %v, want 2020-01-02", got)
	}
}
