package models

import (
	"database/sql"
	"time"
)

// DateLayout is the canonical day format used in storage, URLs and JSON.
const DateLayout = "2006-01-02"

// PriceObservation is one row of the source spreadsheet. Date is always
// normalised to midnight UTC.
type PriceObservation struct {
	Date  time.Time `json:"date"`
	Price float64   `json:"price"`
}

// FeatureRow is the model input derived from a date.
type FeatureRow struct {
	Year      int `json:"year"`
	Month     int `json:"month"`       // 1-12
	DayOfWeek int `json:"day_of_week"` // 0=Monday .. 6=Sunday
}

// Values returns the row as a feature vector in a fixed column order.
func (f FeatureRow) Values() []float64 {
	return []float64{float64(f.Year), float64(f.Month), float64(f.DayOfWeek)}
}

// FeatureNames matches the column order of FeatureRow.Values.
var FeatureNames = []string{"year", "month", "day_of_week"}

// Summary holds the four aggregates over a set of prices.
type Summary struct {
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
}

// YearStat is a Summary for one calendar year.
type YearStat struct {
	Year int `json:"year"`
	Summary
}

// Evaluation is the model error over the evaluation subset.
type Evaluation struct {
	Rows int     `json:"rows"`
	MSE  float64 `json:"mse"`
	RMSE float64 `json:"rmse"`
	MAE  float64 `json:"mae"`
}

// ForecastResult is the outcome of one forecast procedure.
type ForecastResult struct {
	Fingerprint    string        `json:"fingerprint"`
	Cutoff         time.Time     `json:"cutoff"`
	TargetDate     time.Time     `json:"target_date"`
	TargetFeatures FeatureRow    `json:"target_features"`
	PredictedPrice float64       `json:"predicted_price"`
	TrainRows      int           `json:"train_rows"`
	Evaluation     *Evaluation   `json:"evaluation,omitempty"` // nil when the evaluation subset is empty
	Importance     []float64     `json:"importance"`           // split gain share, FeatureNames order
	FitDuration    time.Duration `json:"fit_duration"`
}

// ImportBatch records one spreadsheet import into the store.
type ImportBatch struct {
	ID         string
	Source     string
	Rows       int
	Rejected   int
	ImportedAt time.Time
}

// ForecastRun is the audit row written for every fitted model.
type ForecastRun struct {
	ID          int64
	CreatedAt   time.Time
	Fingerprint string
	Cutoff      time.Time
	TargetDate  time.Time
	Predicted   float64
	MSE         sql.NullFloat64
	TrainRows   int
	EvalRows    int
	FitMillis   int64
}
