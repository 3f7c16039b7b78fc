package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lox/brentwatch/internal/metrics"
	"github.com/lox/brentwatch/internal/report"
)

func (s *Server) handleObjective(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	s.renderPage(w, r, report.SectionObjective, "objective.html", nil)
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, report.SectionAnalysis, "analysis.html", func(data *PageData) {
		obs, err := s.store.GetPrices(data.Report.Start, data.Report.End)
		if err != nil {
			log.Warn().Err(err).Msg("analysis: load prices")
			return
		}
		data.Prices = obs
	})
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, report.SectionForecast, "forecast.html", func(data *PageData) {
		data.Commentary = s.commentary(r.Context(), data.Report)
		data.Importance = featureWeights(data.Report.Forecast)
	})
}

func (s *Server) handleBI(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, report.SectionBI, "bi.html", func(data *PageData) {
		batch, err := s.store.LatestImport()
		if err != nil {
			log.Warn().Err(err).Msg("bi: latest import")
			return
		}
		data.LastImport = batch
	})
}

func (s *Server) handleConclusions(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, report.SectionConclusions, "conclusions.html", nil)
}

func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, section, name string, extra func(*PageData)) {
	rep, q, err := s.buildReport(r)
	if err != nil {
		status := statusFor(err)
		metrics.PageRenders.WithLabelValues(section, strconv.Itoa(status)).Inc()
		if status == http.StatusInternalServerError {
			log.Error().Err(err).Str("page", section).Msg("http: build report")
		}
		http.Error(w, err.Error(), status)
		return
	}

	data := s.pageData(section, rep, q)
	if extra != nil {
		extra(&data)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, name, data); err != nil {
		metrics.PageRenders.WithLabelValues(section, "500").Inc()
		log.Error().Err(err).Str("template", name).Msg("http: template error")
		return
	}
	metrics.PageRenders.WithLabelValues(section, "200").Inc()
}

// commentary returns generated text, or "" when disabled or unavailable so
// the page falls back to the static narrative.
func (s *Server) commentary(ctx context.Context, rep *report.Report) string {
	if s.commentator == nil || rep.Summary == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	text, err := s.commentator.Commentary(ctx, rep)
	if err != nil {
		log.Warn().Err(err).Msg("narrative: falling back to static content")
		return ""
	}
	return text
}
