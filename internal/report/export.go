package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/lox/brentwatch/internal/models"
)

// Workbook sheet names.
const (
	SheetSummary = "Summary"
	SheetYears   = "By year"
	SheetHistory = "History"
)

// WriteXLSX writes the report's aggregate tables as a workbook.
func (r *Report) WriteXLSX(w io.Writer) error {
	f, err := r.workbook()
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

// SaveXLSX writes the workbook to path.
func (r *Report) SaveXLSX(path string) error {
	f, err := r.workbook()
	if err != nil {
		return err
	}
	defer f.Close()
	return f.SaveAs(path)
}

func (r *Report) workbook() (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		f.Close()
		return nil, err
	}

	summary := [][]any{
		{"Interval start", FormatDate(r.Start)},
		{"Interval end", FormatDate(r.End)},
		{"Prices loaded", r.Observations},
		{"Latest price date", FormatDate(r.Latest)},
		{"Data revision", r.Revision},
	}
	if s := r.Summary; s != nil {
		summary = append(summary,
			[]any{"Prices in interval", s.Count},
			[]any{"Min", s.Min},
			[]any{"Max", s.Max},
			[]any{"Mean", s.Mean},
			[]any{"Median", s.Median},
		)
	} else {
		summary = append(summary, []any{"Statistics", InsufficientData})
	}
	if fc := r.Forecast; fc != nil {
		summary = append(summary,
			[]any{"Forecast cutoff", FormatDate(fc.Cutoff)},
			[]any{"Forecast target", FormatDate(fc.TargetDate)},
			[]any{"Predicted price", fc.PredictedPrice},
		)
		if ev := fc.Evaluation; ev != nil {
			summary = append(summary, []any{"MSE", ev.MSE}, []any{"RMSE", ev.RMSE}, []any{"MAE", ev.MAE})
		} else {
			summary = append(summary, []any{"MSE", InsufficientData})
		}
	} else {
		summary = append(summary, []any{"Predicted price", InsufficientData})
	}
	if err := writeRows(f, SheetSummary, summary); err != nil {
		f.Close()
		return nil, err
	}

	years := [][]any{{"Year", "Prices", "Min", "Max", "Mean", "Median"}}
	for _, y := range r.Years {
		years = append(years, []any{y.Year, y.Count, y.Min, y.Max, y.Mean, y.Median})
	}
	if err := newSheet(f, SheetYears, years); err != nil {
		f.Close()
		return nil, err
	}

	history := [][]any{{"Date", "Price"}}
	for _, o := range r.History {
		history = append(history, []any{o.Date.Format(models.DateLayout), o.Price})
	}
	if err := newSheet(f, SheetHistory, history); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func newSheet(f *excelize.File, name string, rows [][]any) error {
	if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("new sheet %q: %w", name, err)
	}
	return writeRows(f, name, rows)
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
