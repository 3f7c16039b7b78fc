// Package forecast fits a gradient-boosted tree model on calendar features
// of the price series and extrapolates a single future price.
package forecast

import (
	"fmt"
	"math"
	"time"

	"github.com/lox/brentwatch/internal/models"
	"github.com/lox/brentwatch/internal/stats"
)

// ErrInsufficientData is shared with stats so callers can test either with
// errors.Is.
var ErrInsufficientData = stats.ErrInsufficientData

// Config fixes one forecast: the train/evaluation boundary, the date to
// predict and the model hyperparameters.
type Config struct {
	Cutoff time.Time
	Target time.Time
	Params Params
}

// DefaultConfig predicts 2024-12-31 from a model trained on everything
// before 2024-01-16.
func DefaultConfig() Config {
	return Config{
		Cutoff: time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC),
		Target: time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		Params: DefaultParams(),
	}
}

// Run executes the full procedure: derive features, split at the cutoff,
// fit on the training rows, predict the target date and evaluate on the
// rows on or after the cutoff.
//
// An empty training subset is ErrInsufficientData. An empty evaluation
// subset still yields a prediction, with a nil Evaluation.
func Run(obs []models.PriceObservation, cfg Config) (*models.ForecastResult, error) {
	train, eval := Split(obs, cfg.Cutoff)
	if len(train) == 0 {
		return nil, fmt.Errorf("%w: no prices before cutoff %s", ErrInsufficientData, cfg.Cutoff.Format(models.DateLayout))
	}

	x, y := Matrix(train)
	start := time.Now()
	model, err := Fit(x, y, cfg.Params)
	if err != nil {
		return nil, fmt.Errorf("fit model: %w", err)
	}

	target := Features(cfg.Target)
	res := &models.ForecastResult{
		Fingerprint:    Fingerprint(cfg, Revision(obs)),
		Cutoff:         cfg.Cutoff,
		TargetDate:     cfg.Target,
		TargetFeatures: target,
		PredictedPrice: model.Predict(target.Values()),
		TrainRows:      len(train),
		Evaluation:     Evaluate(model, eval),
		Importance:     model.Importance(),
		FitDuration:    time.Since(start),
	}
	return res, nil
}

// Evaluate scores the model on observations it did not see. Each row is
// predicted from its own features. Returns nil for an empty set.
func Evaluate(m *Model, obs []models.PriceObservation) *models.Evaluation {
	if len(obs) == 0 {
		return nil
	}
	var sq, abs float64
	for _, o := range obs {
		diff := o.Price - m.Predict(Features(o.Date).Values())
		sq += diff * diff
		abs += math.Abs(diff)
	}
	n := float64(len(obs))
	mse := sq / n
	return &models.Evaluation{
		Rows: len(obs),
		MSE:  mse,
		RMSE: math.Sqrt(mse),
		MAE:  abs / n,
	}
}
