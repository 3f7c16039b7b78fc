package ingest

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/lox/brentwatch/internal/models"
)

// ErrNoPriceSheet means no worksheet had recognisable date and price headers.
var ErrNoPriceSheet = errors.New("no sheet with date and price columns")

var (
	dateHeaders  = []string{"date", "data", "dia"}
	priceHeaders = []string{"price", "preço", "preco", "value", "valor"}

	dateLayouts = []string{
		"2006-01-02",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05Z07:00",
		"02/01/2006",
		"2/1/2006",
		"02.01.2006",
	}
)

// RowError describes a spreadsheet row that was skipped.
type RowError struct {
	Row    int    // 1-based, as shown in a spreadsheet
	Reason string
}

// SheetResult is the parsed content of a price workbook.
type SheetResult struct {
	Sheet        string
	Observations []models.PriceObservation // sorted by date, one per day
	Rejected     []RowError
}

// ParseFile opens an .xlsx workbook on disk and parses its price sheet.
func ParseFile(path string) (*SheetResult, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	return parseWorkbook(f, time.Now())
}

// ParseReader parses a workbook from r.
func ParseReader(r io.Reader) (*SheetResult, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	return parseWorkbook(f, time.Now())
}

func parseWorkbook(f *excelize.File, now time.Time) (*SheetResult, error) {
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			continue
		}
		header, dateCol, priceCol, ok := findHeader(rows)
		if !ok {
			continue
		}
		res := parseRows(rows, header, dateCol, priceCol, now)
		res.Sheet = name
		return res, nil
	}
	return nil, ErrNoPriceSheet
}

// findHeader scans the first rows for a header naming both columns.
func findHeader(rows [][]string) (header, dateCol, priceCol int, ok bool) {
	for r := 0; r < len(rows) && r < 10; r++ {
		dateCol, priceCol = -1, -1
		for c, cell := range rows[r] {
			name := strings.ToLower(strings.TrimSpace(cell))
			if dateCol < 0 && matchesHeader(name, dateHeaders) {
				dateCol = c
			} else if priceCol < 0 && matchesHeader(name, priceHeaders) {
				priceCol = c
			}
		}
		if dateCol >= 0 && priceCol >= 0 {
			return r, dateCol, priceCol, true
		}
	}
	return 0, 0, 0, false
}

func matchesHeader(name string, candidates []string) bool {
	for _, c := range candidates {
		if name == c || strings.HasPrefix(name, c+" ") || strings.HasPrefix(name, c+"(") {
			return true
		}
	}
	return false
}

func parseRows(rows [][]string, header, dateCol, priceCol int, now time.Time) *SheetResult {
	res := &SheetResult{}
	byDate := make(map[time.Time]int)

	for r := header + 1; r < len(rows); r++ {
		row := rows[r]
		rowNum := r + 1
		if isBlank(row) {
			continue
		}
		if dateCol >= len(row) || priceCol >= len(row) {
			res.Rejected = append(res.Rejected, RowError{Row: rowNum, Reason: "missing cells"})
			continue
		}
		d, err := parseDate(row[dateCol])
		if err != nil {
			res.Rejected = append(res.Rejected, RowError{Row: rowNum, Reason: err.Error()})
			continue
		}
		p, err := parsePrice(row[priceCol])
		if err != nil {
			res.Rejected = append(res.Rejected, RowError{Row: rowNum, Reason: err.Error()})
			continue
		}
		obs := models.PriceObservation{Date: d, Price: p}
		if flags := ValidateObservation(obs, now); len(flags) > 0 {
			res.Rejected = append(res.Rejected, RowError{Row: rowNum, Reason: strings.Join(flags, ",")})
			continue
		}
		if i, dup := byDate[d]; dup {
			res.Observations[i] = obs
			res.Rejected = append(res.Rejected, RowError{Row: rowNum, Reason: FlagDuplicateDate})
			continue
		}
		byDate[d] = len(res.Observations)
		res.Observations = append(res.Observations, obs)
	}

	sort.Slice(res.Observations, func(i, j int) bool {
		return res.Observations[i].Date.Before(res.Observations[j].Date)
	})
	return res
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func parseDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, errors.New("empty date")
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, fmt.Errorf("date serial %q: %w", s, err)
		}
		return truncateDay(t), nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return truncateDay(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// parsePrice accepts dot or comma decimals, with the other as a thousands
// separator.
func parsePrice(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "US$")
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty price")
	}
	switch {
	case strings.Contains(s, ",") && strings.Contains(s, "."):
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case strings.Contains(s, ","):
		s = strings.Replace(s, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("unrecognised price %q", raw)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite price %q", raw)
	}
	return v, nil
}
