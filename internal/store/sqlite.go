package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lox/brentwatch/internal/models"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// ReplacePrices swaps the stored series for obs and records the import,
// all in one transaction. The spreadsheet is the source of truth so rows
// missing from it are removed.
func (s *Store) ReplacePrices(batch models.ImportBatch, obs []models.PriceObservation) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO imports (id, source, rows, rejected, imported_at)
		VALUES (?, ?, ?, ?, ?)
	`, batch.ID, batch.Source, batch.Rows, batch.Rejected, batch.ImportedAt.UTC()); err != nil {
		return fmt.Errorf("insert import: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM prices`); err != nil {
		return fmt.Errorf("clear prices: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO prices (date, price, import_id) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, o := range obs {
		if _, err := stmt.Exec(o.Date.Format(models.DateLayout), o.Price, batch.ID); err != nil {
			return fmt.Errorf("insert price %s: %w", o.Date.Format(models.DateLayout), err)
		}
	}

	return tx.Commit()
}

// GetAllPrices returns the stored series in date order.
func (s *Store) GetAllPrices() ([]models.PriceObservation, error) {
	return s.queryPrices(`SELECT date, price FROM prices ORDER BY date ASC`)
}

// GetPrices returns prices with start <= date <= end in date order.
func (s *Store) GetPrices(start, end time.Time) ([]models.PriceObservation, error) {
	return s.queryPrices(`
		SELECT date, price FROM prices
		WHERE date >= ? AND date <= ?
		ORDER BY date ASC
	`, start.Format(models.DateLayout), end.Format(models.DateLayout))
}

func (s *Store) queryPrices(query string, args ...any) ([]models.PriceObservation, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.PriceObservation
	for rows.Next() {
		var day string
		var o models.PriceObservation
		if err := rows.Scan(&day, &o.Price); err != nil {
			return nil, err
		}
		d, err := time.Parse(models.DateLayout, day)
		if err != nil {
			return nil, fmt.Errorf("parse stored date %q: %w", day, err)
		}
		o.Date = d
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) CountPrices() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM prices`).Scan(&n)
	return n, err
}

// LatestImport returns the most recent import, or nil if none.
func (s *Store) LatestImport() (*models.ImportBatch, error) {
	row := s.db.QueryRow(`
		SELECT id, source, rows, rejected, imported_at
		FROM imports
		ORDER BY imported_at DESC
		LIMIT 1
	`)
	var b models.ImportBatch
	err := row.Scan(&b.ID, &b.Source, &b.Rows, &b.Rejected, &b.ImportedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Store) InsertForecastRun(r models.ForecastRun) error {
	_, err := s.db.Exec(`
		INSERT INTO forecast_runs (created_at, fingerprint, cutoff, target_date, predicted, mse, train_rows, eval_rows, fit_millis)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.CreatedAt.UTC(), r.Fingerprint, r.Cutoff.Format(models.DateLayout), r.TargetDate.Format(models.DateLayout),
		r.Predicted, r.MSE, r.TrainRows, r.EvalRows, r.FitMillis)
	return err
}

// RecentForecastRuns returns up to limit runs, newest first.
func (s *Store) RecentForecastRuns(limit int) ([]models.ForecastRun, error) {
	rows, err := s.db.Query(`
		SELECT id, created_at, fingerprint, cutoff, target_date, predicted, mse, train_rows, eval_rows, fit_millis
		FROM forecast_runs
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.ForecastRun
	for rows.Next() {
		var r models.ForecastRun
		var cutoff, target string
		if err := rows.Scan(&r.ID, &r.CreatedAt, &r.Fingerprint, &cutoff, &target, &r.Predicted, &r.MSE, &r.TrainRows, &r.EvalRows, &r.FitMillis); err != nil {
			return nil, err
		}
		if r.Cutoff, err = time.Parse(models.DateLayout, cutoff); err != nil {
			return nil, fmt.Errorf("parse cutoff: %w", err)
		}
		if r.TargetDate, err = time.Parse(models.DateLayout, target); err != nil {
			return nil, fmt.Errorf("parse target: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ForecastRunFromResult builds the audit row for a fitted result.
func ForecastRunFromResult(res *models.ForecastResult, at time.Time) models.ForecastRun {
	run := models.ForecastRun{
		CreatedAt:   at,
		Fingerprint: res.Fingerprint,
		Cutoff:      res.Cutoff,
		TargetDate:  res.TargetDate,
		Predicted:   res.PredictedPrice,
		TrainRows:   res.TrainRows,
		FitMillis:   res.FitDuration.Milliseconds(),
	}
	if res.Evaluation != nil {
		run.MSE = sql.NullFloat64{Float64: res.Evaluation.MSE, Valid: true}
		run.EvalRows = res.Evaluation.Rows
	}
	return run
}
