// Package report assembles everything a page shows from a price series.
// Build is pure: the same observations and options give the same report.
package report

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/lox/brentwatch/internal/content"
	"github.com/lox/brentwatch/internal/forecast"
	"github.com/lox/brentwatch/internal/models"
	"github.com/lox/brentwatch/internal/stats"
)

// Section ids, shared with the content tabs.
const (
	SectionObjective   = "objective"
	SectionAnalysis    = "analysis"
	SectionForecast    = "forecast"
	SectionBI          = "bi"
	SectionConclusions = "conclusions"
)

// Forecaster produces a forecast for obs. forecast.Run fits every call;
// servers pass a cache-backed function.
type Forecaster func(obs []models.PriceObservation, cfg forecast.Config) (*models.ForecastResult, error)

type Options struct {
	Start        time.Time
	End          time.Time
	Forecast     forecast.Config
	HistoryYears int
	Forecaster   Forecaster
	Content      *content.Content
}

// DefaultOptions covers the ten years to 2024-01-16.
func DefaultOptions() Options {
	return Options{
		Start:        time.Date(2014, 1, 16, 0, 0, 0, 0, time.UTC),
		End:          time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC),
		Forecast:     forecast.DefaultConfig(),
		HistoryYears: 10,
	}
}

type Notice struct {
	Section string `json:"section"`
	Message string `json:"message"`
}

// Extreme is a single price and the day it was recorded.
type Extreme struct {
	Date  time.Time `json:"date"`
	Price float64   `json:"price"`
}

type Report struct {
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Revision     string    `json:"revision"`
	Observations int       `json:"observations"`
	Latest       time.Time `json:"latest"`
	Cutoff       time.Time `json:"cutoff"`
	Target       time.Time `json:"target"`

	// Nil or empty when the interval holds no prices.
	Summary     *models.Summary   `json:"summary,omitempty"`
	Years       []models.YearStat `json:"years,omitempty"`
	Lowest      *Extreme          `json:"lowest,omitempty"`
	Highest     *Extreme          `json:"highest,omitempty"`
	LowestYear  *models.YearStat  `json:"lowest_year,omitempty"`
	HighestYear *models.YearStat  `json:"highest_year,omitempty"`

	History  []models.PriceObservation `json:"-"`
	Forecast *models.ForecastResult    `json:"forecast,omitempty"`
	Notices  []Notice                  `json:"notices,omitempty"`

	Content *content.Content `json:"-"`
}

// Build computes the report. Missing data never fails the build; it is
// reported through Notices. Errors are reserved for invalid options and
// unexpected forecast failures.
func Build(obs []models.PriceObservation, opts Options) (*Report, error) {
	if opts.HistoryYears <= 0 {
		opts.HistoryYears = 10
	}
	if opts.Forecaster == nil {
		opts.Forecaster = forecast.Run
	}

	sorted := make([]models.PriceObservation, len(obs))
	copy(sorted, obs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	r := &Report{
		Start:        opts.Start,
		End:          opts.End,
		Revision:     forecast.Revision(sorted),
		Observations: len(sorted),
		Cutoff:       opts.Forecast.Cutoff,
		Target:       opts.Forecast.Target,
	}
	if len(sorted) > 0 {
		r.Latest = sorted[len(sorted)-1].Date
	}

	window, err := stats.Window(sorted, opts.Start, opts.End)
	if err != nil {
		return nil, err
	}
	if len(window) == 0 {
		r.notice(SectionAnalysis, fmt.Sprintf("No prices between %s and %s.", FormatDate(opts.Start), FormatDate(opts.End)))
	} else if err := r.summarize(window); err != nil {
		return nil, err
	}

	r.History = history(sorted, opts.HistoryYears)

	res, err := opts.Forecaster(sorted, opts.Forecast)
	switch {
	case errors.Is(err, forecast.ErrInsufficientData):
		r.notice(SectionForecast, fmt.Sprintf("No prices before the cutoff %s to train on.", FormatDate(opts.Forecast.Cutoff)))
	case err != nil:
		return nil, fmt.Errorf("forecast: %w", err)
	default:
		r.Forecast = res
		if res.Evaluation == nil {
			r.notice(SectionForecast, fmt.Sprintf("No prices on or after the cutoff %s, so the model error is unavailable.", FormatDate(opts.Forecast.Cutoff)))
		}
	}

	if opts.Content != nil {
		rendered, err := opts.Content.Render(r.Vars())
		if err != nil {
			return nil, fmt.Errorf("render content: %w", err)
		}
		r.Content = rendered
	}
	return r, nil
}

func (r *Report) summarize(window []models.PriceObservation) error {
	s, err := stats.Summarize(prices(window))
	if err != nil {
		return err
	}
	r.Summary = &s

	years, err := stats.ByYear(window)
	if err != nil {
		return err
	}
	r.Years = years

	// First occurrence wins for ties.
	lo, hi := window[0], window[0]
	for _, o := range window[1:] {
		if o.Price < lo.Price {
			lo = o
		}
		if o.Price > hi.Price {
			hi = o
		}
	}
	r.Lowest = &Extreme{Date: lo.Date, Price: lo.Price}
	r.Highest = &Extreme{Date: hi.Date, Price: hi.Price}

	loYear, hiYear := years[0], years[0]
	for _, y := range years[1:] {
		if y.Mean < loYear.Mean {
			loYear = y
		}
		if y.Mean > hiYear.Mean {
			hiYear = y
		}
	}
	r.LowestYear = &loYear
	r.HighestYear = &hiYear
	return nil
}

func (r *Report) notice(section, msg string) {
	r.Notices = append(r.Notices, Notice{Section: section, Message: msg})
}

// NoticesFor returns the notices attached to one section.
func (r *Report) NoticesFor(section string) []Notice {
	var out []Notice
	for _, n := range r.Notices {
		if n.Section == section {
			out = append(out, n)
		}
	}
	return out
}

// Vars are the formatted values narrative templates may reference.
func (r *Report) Vars() map[string]string {
	v := map[string]string{
		"Start":        FormatDate(r.Start),
		"End":          FormatDate(r.End),
		"Observations": FormatCount(r.Observations),
		"Latest":       FormatDate(r.Latest),
		"Min":          InsufficientData,
		"Max":          InsufficientData,
		"Mean":         InsufficientData,
		"Median":       InsufficientData,
		"LowestYear":   InsufficientData,
		"HighestYear":  InsufficientData,
		"Predicted":    InsufficientData,
		"MSE":          InsufficientData,
		"Cutoff":       FormatDate(r.Cutoff),
		"Target":       FormatDate(r.Target),
	}
	if s := r.Summary; s != nil {
		v["Min"] = FormatPrice(s.Min)
		v["Max"] = FormatPrice(s.Max)
		v["Mean"] = FormatPrice(s.Mean)
		v["Median"] = FormatPrice(s.Median)
	}
	if r.LowestYear != nil {
		v["LowestYear"] = fmt.Sprintf("%s (%s)", strconv.Itoa(r.LowestYear.Year), FormatPrice(r.LowestYear.Mean))
	}
	if r.HighestYear != nil {
		v["HighestYear"] = fmt.Sprintf("%s (%s)", strconv.Itoa(r.HighestYear.Year), FormatPrice(r.HighestYear.Mean))
	}
	if f := r.Forecast; f != nil {
		v["Predicted"] = FormatPrice(f.PredictedPrice)
		if f.Evaluation != nil {
			v["MSE"] = FormatNumber(f.Evaluation.MSE)
		}
	}
	return v
}

// history returns the observations within years of the latest one.
func history(sorted []models.PriceObservation, years int) []models.PriceObservation {
	if len(sorted) == 0 {
		return nil
	}
	from := sorted[len(sorted)-1].Date.AddDate(-years, 0, 0)
	i := sort.Search(len(sorted), func(i int) bool { return !sorted[i].Date.Before(from) })
	return sorted[i:]
}

func prices(obs []models.PriceObservation) []float64 {
	out := make([]float64, len(obs))
	for i, o := range obs {
		out[i] = o.Price
	}
	return out
}
