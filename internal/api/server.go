package api

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/lox/brentwatch/internal/content"
	"github.com/lox/brentwatch/internal/forecast"
	"github.com/lox/brentwatch/internal/imagegen"
	"github.com/lox/brentwatch/internal/models"
	"github.com/lox/brentwatch/internal/narrative"
	"github.com/lox/brentwatch/internal/report"
	"github.com/lox/brentwatch/internal/store"
)

type Server struct {
	store       *store.Store
	port        string
	defaults    report.Options
	tmpl        *template.Template
	content     *content.Content
	forecasts   *forecast.Cache
	images      *imagegen.Cache
	commentator *narrative.Commentator
}

// NewServer builds a server reading prices from st. defaults supplies the
// interval and forecast window used when a request does not override them.
func NewServer(st *store.Store, port string, defaults report.Options) (*Server, error) {
	c, err := content.Default()
	if err != nil {
		return nil, err
	}

	s := &Server{
		store:     st,
		port:      port,
		defaults:  defaults,
		tmpl:      newTemplates(),
		content:   c,
		forecasts: forecast.NewCache(8),
		images:    imagegen.NewCache(time.Hour),
	}
	s.forecasts.OnFit = s.recordForecastRun
	return s, nil
}

// SetCommentator enables generated commentary on the forecast page.
func (s *Server) SetCommentator(c *narrative.Commentator) {
	s.commentator = c
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleObjective)
	mux.HandleFunc("/analysis", s.handleAnalysis)
	mux.HandleFunc("/forecast", s.handleForecast)
	mux.HandleFunc("/bi", s.handleBI)
	mux.HandleFunc("/conclusions", s.handleConclusions)
	mux.HandleFunc("/charts/mean-by-year.png", s.handleMeanByYearChart)
	mux.HandleFunc("/charts/median-by-year.png", s.handleMedianByYearChart)
	mux.HandleFunc("/charts/history.png", s.handleHistoryChart)
	mux.HandleFunc("/og-image.png", s.handleOGImage)
	mux.HandleFunc("/export.xlsx", s.handleExport)
	mux.HandleFunc("/api/summary", s.handleAPISummary)
	mux.HandleFunc("/api/forecast", s.handleAPIForecast)
	mux.HandleFunc("/api/runs", s.handleAPIRuns)
	mux.HandleFunc("/api/prices", s.handleAPIPrices)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", server.Addr).Msg("http: listening")
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// buildReport loads the stored series and builds the report for the
// request's query. The returned query is echoed into links.
func (s *Server) buildReport(r *http.Request) (*report.Report, reportQuery, error) {
	var q reportQuery
	if err := bindQuery(r.URL.Query(), &q); err != nil {
		return nil, q, &requestError{err}
	}

	opts := s.defaults
	opts.Start = dateOr(q.Start, s.defaults.Start)
	opts.End = dateOr(q.End, s.defaults.End)
	opts.Forecast.Cutoff = dateOr(q.Cutoff, s.defaults.Forecast.Cutoff)
	opts.Forecast.Target = dateOr(q.Target, s.defaults.Forecast.Target)
	opts.Forecaster = s.forecasts.Forecast
	opts.Content = s.content
	if opts.End.Before(opts.Start) {
		return nil, q, &requestError{errors.New("invalid query: end before start")}
	}

	obs, err := s.store.GetAllPrices()
	if err != nil {
		return nil, q, err
	}
	rep, err := report.Build(obs, opts)
	if err != nil {
		return nil, q, err
	}
	return rep, q, nil
}

func (s *Server) recordForecastRun(res *models.ForecastResult) {
	if err := s.store.InsertForecastRun(store.ForecastRunFromResult(res, time.Now())); err != nil {
		log.Error().Err(err).Msg("forecast: record run")
		return
	}
	ev := log.Info().
		Str("fingerprint", res.Fingerprint).
		Str("target", res.TargetDate.Format(models.DateLayout)).
		Float64("predicted", res.PredictedPrice).
		Dur("fit", res.FitDuration)
	if res.Evaluation != nil {
		ev = ev.Float64("mse", res.Evaluation.MSE)
	}
	ev.Msg("forecast: fitted model")
}

// requestError marks errors caused by the caller's input.
type requestError struct{ err error }

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func statusFor(err error) int {
	var re *requestError
	if errors.As(err, &re) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

type HealthStatus struct {
	Status           string     `json:"status"`
	Prices           int        `json:"prices"`
	LatestImport     *time.Time `json:"latest_import,omitempty"`
	ImportSource     string     `json:"import_source,omitempty"`
	MigrationVersion int        `json:"migration_version"`
	CachedModels     int        `json:"cached_models"`
	Errors           []string   `json:"errors,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthStatus{Status: "ok", CachedModels: s.forecasts.Len()}

	n, err := s.store.CountPrices()
	if err != nil {
		health.Errors = append(health.Errors, "prices: "+err.Error())
	}
	health.Prices = n
	if n == 0 {
		health.Status = "degraded"
	}

	if batch, err := s.store.LatestImport(); err != nil {
		health.Errors = append(health.Errors, "imports: "+err.Error())
	} else if batch != nil {
		health.LatestImport = &batch.ImportedAt
		health.ImportSource = batch.Source
	}

	if v, err := s.store.MigrationVersion(); err != nil {
		health.Errors = append(health.Errors, "migrations: "+err.Error())
	} else {
		health.MigrationVersion = v
	}

	w.Header().Set("Content-Type", "application/json")
	if len(health.Errors) > 0 {
		health.Status = "error"
		w.WriteHeader(http.StatusInternalServerError)
	}
	json.NewEncoder(w).Encode(health)
}
