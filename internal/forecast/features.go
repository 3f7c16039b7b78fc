package forecast

import (
	"sort"
	"time"

	"github.com/lox/brentwatch/internal/models"
)

// Features derives the model input for a date. Day of week counts from
// Monday=0 so that Sunday is 6.
func Features(d time.Time) models.FeatureRow {
	return models.FeatureRow{
		Year:      d.Year(),
		Month:     int(d.Month()),
		DayOfWeek: (int(d.Weekday()) + 6) % 7,
	}
}

// Matrix converts observations into a feature matrix and target vector.
func Matrix(obs []models.PriceObservation) ([][]float64, []float64) {
	x := make([][]float64, len(obs))
	y := make([]float64, len(obs))
	for i, o := range obs {
		x[i] = Features(o.Date).Values()
		y[i] = o.Price
	}
	return x, y
}

// Split partitions observations into rows strictly before cutoff and rows on
// or after it. Both halves are sorted by date.
func Split(obs []models.PriceObservation, cutoff time.Time) (train, eval []models.PriceObservation) {
	for _, o := range sortByDate(obs) {
		if o.Date.Before(cutoff) {
			train = append(train, o)
		} else {
			eval = append(eval, o)
		}
	}
	return train, eval
}

func sortByDate(obs []models.PriceObservation) []models.PriceObservation {
	sorted := make([]models.PriceObservation, len(obs))
	copy(sorted, obs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})
	return sorted
}
