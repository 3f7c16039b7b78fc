// Package stats computes the descriptive aggregates shown in the report.
package stats

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/lox/brentwatch/internal/models"
)

// ErrInsufficientData is returned when an interval contains no prices.
var ErrInsufficientData = errors.New("insufficient data")

// Window returns the observations whose date lies in [start, end], both
// inclusive. Input order is preserved.
func Window(obs []models.PriceObservation, start, end time.Time) ([]models.PriceObservation, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("interval end %s before start %s", end.Format(models.DateLayout), start.Format(models.DateLayout))
	}
	var out []models.PriceObservation
	for _, o := range obs {
		if o.Date.Before(start) || o.Date.After(end) {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

// Summarize reduces prices to min, max, mean and median.
func Summarize(prices []float64) (models.Summary, error) {
	if len(prices) == 0 {
		return models.Summary{}, ErrInsufficientData
	}
	s := models.Summary{
		Count: len(prices),
		Min:   prices[0],
		Max:   prices[0],
	}
	sum := 0.0
	for _, p := range prices {
		if p < s.Min {
			s.Min = p
		}
		if p > s.Max {
			s.Max = p
		}
		sum += p
	}
	s.Mean = clamp(sum/float64(len(prices)), s.Min, s.Max)
	s.Median = median(prices)
	return s, nil
}

// Interval summarizes the observations inside [start, end].
func Interval(obs []models.PriceObservation, start, end time.Time) (models.Summary, error) {
	in, err := Window(obs, start, end)
	if err != nil {
		return models.Summary{}, err
	}
	return Summarize(prices(in))
}

// ByYear groups observations by calendar year and summarizes each group.
// Years are returned in ascending order.
func ByYear(obs []models.PriceObservation) ([]models.YearStat, error) {
	if len(obs) == 0 {
		return nil, ErrInsufficientData
	}
	groups := make(map[int][]float64)
	for _, o := range obs {
		groups[o.Date.Year()] = append(groups[o.Date.Year()], o.Price)
	}
	years := make([]int, 0, len(groups))
	for y := range groups {
		years = append(years, y)
	}
	sort.Ints(years)

	out := make([]models.YearStat, 0, len(years))
	for _, y := range years {
		s, err := Summarize(groups[y])
		if err != nil {
			return nil, err
		}
		out = append(out, models.YearStat{Year: y, Summary: s})
	}
	return out, nil
}

func prices(obs []models.PriceObservation) []float64 {
	out := make([]float64, len(obs))
	for i, o := range obs {
		out[i] = o.Price
	}
	return out
}

func median(vals []float64) float64 {
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}

// clamp guards the mean against float rounding pushing it past the extremes.
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
