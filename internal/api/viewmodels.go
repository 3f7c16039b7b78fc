package api

import (
	"github.com/lox/brentwatch/internal/content"
	"github.com/lox/brentwatch/internal/models"
	"github.com/lox/brentwatch/internal/report"
)

// TabLink is one entry of the page navigation.
type TabLink struct {
	ID     string
	Title  string
	Href   string
	Active bool
}

// PageData is passed to every page template.
type PageData struct {
	Title      string
	Tabs       []TabLink
	Tab        content.Tab
	Report     *report.Report
	Notices    []report.Notice
	Query      string // query string suffix forwarded to charts and links
	LastImport *models.ImportBatch
	Commentary string
	Prices     []models.PriceObservation
	Importance []FeatureWeight
}

// FeatureWeight is one model input and its share of the split gain.
type FeatureWeight struct {
	Name   string
	Weight float64
}

var tabPaths = map[string]string{
	report.SectionObjective:   "/",
	report.SectionAnalysis:    "/analysis",
	report.SectionForecast:    "/forecast",
	report.SectionBI:          "/bi",
	report.SectionConclusions: "/conclusions",
}

func (s *Server) pageData(section string, rep *report.Report, q reportQuery) PageData {
	query := q.encode()
	data := PageData{
		Title:   rep.Content.Title,
		Report:  rep,
		Notices: rep.NoticesFor(section),
		Query:   query,
	}
	for _, t := range rep.Content.Tabs {
		data.Tabs = append(data.Tabs, TabLink{
			ID:     t.ID,
			Title:  t.Title,
			Href:   tabPaths[t.ID] + query,
			Active: t.ID == section,
		})
		if t.ID == section {
			data.Tab = t
		}
	}
	return data
}

// SummaryResponse is the JSON body of /api/summary.
type SummaryResponse struct {
	Start       string            `json:"start"`
	End         string            `json:"end"`
	Revision    string            `json:"revision"`
	Summary     *models.Summary   `json:"summary"`
	Years       []models.YearStat `json:"years"`
	Lowest      *report.Extreme   `json:"lowest,omitempty"`
	Highest     *report.Extreme   `json:"highest,omitempty"`
	LowestYear  *models.YearStat  `json:"lowest_year,omitempty"`
	HighestYear *models.YearStat  `json:"highest_year,omitempty"`
	Notices     []report.Notice   `json:"notices,omitempty"`
}

// ForecastResponse is the JSON body of /api/forecast.
type ForecastResponse struct {
	Cutoff         string             `json:"cutoff"`
	TargetDate     string             `json:"target_date"`
	Fingerprint    string             `json:"fingerprint"`
	TargetFeatures models.FeatureRow  `json:"target_features"`
	PredictedPrice float64            `json:"predicted_price"`
	TrainRows      int                `json:"train_rows"`
	Evaluation     *models.Evaluation `json:"evaluation"`
	Importance     map[string]float64 `json:"importance"`
	FitMillis      int64              `json:"fit_millis"`
	Notices        []report.Notice    `json:"notices,omitempty"`
}

// RunResponse is one row of /api/runs.
type RunResponse struct {
	ID          int64    `json:"id"`
	CreatedAt   string   `json:"created_at"`
	Fingerprint string   `json:"fingerprint"`
	Cutoff      string   `json:"cutoff"`
	TargetDate  string   `json:"target_date"`
	Predicted   float64  `json:"predicted"`
	MSE         *float64 `json:"mse"`
	TrainRows   int      `json:"train_rows"`
	EvalRows    int      `json:"eval_rows"`
	FitMillis   int64    `json:"fit_millis"`
}

func featureWeights(res *models.ForecastResult) []FeatureWeight {
	if res == nil {
		return nil
	}
	out := make([]FeatureWeight, 0, len(res.Importance))
	for i, w := range res.Importance {
		if i < len(models.FeatureNames) {
			out = append(out, FeatureWeight{Name: models.FeatureNames[i], Weight: w})
		}
	}
	return out
}

// PriceRow is one stored observation in /api/prices.
type PriceRow struct {
	Date  string  `json:"date"`
	Price float64 `json:"price"`
}

// PricesResponse is the JSON body of /api/prices.
type PricesResponse struct {
	Start  string     `json:"start"`
	End    string     `json:"end"`
	Total  int        `json:"total"`
	Offset int        `json:"offset"`
	Prices []PriceRow `json:"prices"`
}
