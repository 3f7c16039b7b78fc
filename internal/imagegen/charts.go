package imagegen

import (
	"errors"
	"strconv"
	"time"

	"github.com/vicanso/go-charts/v2"

	"github.com/lox/brentwatch/internal/models"
)

const (
	ChartWidth  = 800
	ChartHeight = 400
)

var ErrNoData = errors.New("no data to chart")

// YearBarChart renders one bar per year using value to pick the statistic.
func YearBarChart(title string, years []models.YearStat, value func(models.YearStat) float64) ([]byte, error) {
	if len(years) == 0 {
		return nil, ErrNoData
	}
	labels := make([]string, len(years))
	vals := make([]float64, len(years))
	for i, y := range years {
		labels[i] = strconv.Itoa(y.Year)
		vals[i] = value(y)
	}

	painter, err := charts.BarRender([][]float64{vals},
		charts.TitleTextOptionFunc(title),
		charts.XAxisOptionFunc(charts.XAxisOption{Data: labels}),
		charts.YAxisOptionFunc(charts.YAxisOption{DivideCount: 5}),
		charts.ThemeOptionFunc(charts.ThemeLight),
		charts.WidthOptionFunc(ChartWidth),
		charts.HeightOptionFunc(ChartHeight),
	)
	if err != nil {
		return nil, err
	}
	return painter.Bytes()
}

// MonthPoint is the mean price over one calendar month.
type MonthPoint struct {
	Month time.Time
	Price float64
}

// MonthlyMeans downsamples daily prices to one point per month, in order.
// obs must be sorted by date.
func MonthlyMeans(obs []models.PriceObservation) []MonthPoint {
	var out []MonthPoint
	var sum float64
	var n int
	for i, o := range obs {
		m := time.Date(o.Date.Year(), o.Date.Month(), 1, 0, 0, 0, 0, time.UTC)
		if i > 0 && !m.Equal(out[len(out)-1].Month) {
			out[len(out)-1].Price = sum / float64(n)
			sum, n = 0, 0
		}
		if n == 0 {
			out = append(out, MonthPoint{Month: m})
		}
		sum += o.Price
		n++
	}
	if n > 0 {
		out[len(out)-1].Price = sum / float64(n)
	}
	return out
}

// HistoryChart draws monthly mean prices and, when forecast is set, the
// predicted price as a separate series at the target month.
func HistoryChart(title string, history []models.PriceObservation, forecast *models.ForecastResult) ([]byte, error) {
	points := MonthlyMeans(history)
	if len(points) == 0 {
		return nil, ErrNoData
	}

	axis := monthAxis(points, forecast)
	yMin, yMax := points[0].Price, points[0].Price
	for _, p := range points {
		yMin, yMax = minMax(yMin, yMax, p.Price)
	}

	series := [][]float64{axis.history}
	names := []string{"Monthly mean"}
	if forecast != nil {
		series = append(series, axis.forecast)
		names = append(names, "Forecast "+forecast.TargetDate.Format(models.DateLayout))
		yMin, yMax = minMax(yMin, yMax, forecast.PredictedPrice)
	}
	labels := axis.labels

	pad := (yMax - yMin) * 0.05
	yMin -= pad
	if yMin < 0 {
		yMin = 0
	}
	yMax += pad

	painter, err := charts.LineRender(series,
		charts.TitleTextOptionFunc(title),
		charts.XAxisOptionFunc(charts.XAxisOption{Data: labels, BoundaryGap: charts.FalseFlag(), SplitNumber: 10}),
		charts.YAxisOptionFunc(charts.YAxisOption{Min: &yMin, Max: &yMax, DivideCount: 5}),
		charts.LegendOptionFunc(charts.LegendOption{Data: names, Left: charts.PositionRight}),
		charts.ThemeOptionFunc(charts.ThemeLight),
		charts.WidthOptionFunc(ChartWidth*5/4),
		charts.HeightOptionFunc(ChartHeight),
	)
	if err != nil {
		return nil, err
	}
	return painter.Bytes()
}

// timeAxis is one slot per calendar month. Months without a value hold
// charts.GetNullValue() so gaps are drawn to scale.
type timeAxis struct {
	labels   []string
	history  []float64
	forecast []float64
}

// monthAxis spans every month from the earliest to the latest of the
// history and the forecast target. forecast is nil when f is nil.
func monthAxis(points []MonthPoint, f *models.ForecastResult) timeAxis {
	first, last := points[0].Month, points[len(points)-1].Month
	var target time.Time
	if f != nil {
		target = time.Date(f.TargetDate.Year(), f.TargetDate.Month(), 1, 0, 0, 0, 0, time.UTC)
		if target.Before(first) {
			first = target
		}
		if target.After(last) {
			last = target
		}
	}

	n := (last.Year()-first.Year())*12 + int(last.Month()-first.Month()) + 1
	var axis timeAxis
	axis.labels = make([]string, n)
	axis.history = make([]float64, n)
	for i := range axis.labels {
		axis.labels[i] = first.AddDate(0, i, 0).Format("2006-01")
		axis.history[i] = charts.GetNullValue()
	}
	index := func(m time.Time) int {
		return (m.Year()-first.Year())*12 + int(m.Month()-first.Month())
	}
	for _, p := range points {
		axis.history[index(p.Month)] = p.Price
	}
	if f != nil {
		axis.forecast = make([]float64, n)
		for i := range axis.forecast {
			axis.forecast[i] = charts.GetNullValue()
		}
		axis.forecast[index(target)] = f.PredictedPrice
	}
	return axis
}

func minMax(lo, hi, v float64) (float64, float64) {
	if v < lo {
		lo = v
	}
	if v > hi {
		hi = v
	}
	return lo, hi
}
