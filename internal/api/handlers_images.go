package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/lox/brentwatch/internal/imagegen"
	"github.com/lox/brentwatch/internal/models"
	"github.com/lox/brentwatch/internal/report"
)

func (s *Server) handleMeanByYearChart(w http.ResponseWriter, r *http.Request) {
	s.serveChart(w, r, "mean-by-year", func(rep *report.Report) ([]byte, error) {
		return imagegen.YearBarChart("Mean price by year", rep.Years, func(y models.YearStat) float64 { return y.Mean })
	})
}

func (s *Server) handleMedianByYearChart(w http.ResponseWriter, r *http.Request) {
	s.serveChart(w, r, "median-by-year", func(rep *report.Report) ([]byte, error) {
		return imagegen.YearBarChart("Median price by year", rep.Years, func(y models.YearStat) float64 { return y.Median })
	})
}

func (s *Server) handleHistoryChart(w http.ResponseWriter, r *http.Request) {
	s.serveChart(w, r, "history", func(rep *report.Report) ([]byte, error) {
		title := "Price history, last " + strconv.Itoa(s.historyYears()) + " years"
		return imagegen.HistoryChart(title, rep.History, rep.Forecast)
	})
}

func (s *Server) handleOGImage(w http.ResponseWriter, r *http.Request) {
	s.serveChart(w, r, "og", func(rep *report.Report) ([]byte, error) {
		data := imagegen.OGImageData{
			Headline: "Brent crude",
			Caption:  "No forecast available",
			Footer:   "brentwatch",
		}
		if f := rep.Forecast; f != nil {
			data.Headline = report.FormatPrice(f.PredictedPrice)
			data.Caption = "Brent forecast for " + report.FormatDate(f.TargetDate)
		}
		if rep.Observations > 0 {
			data.Footer = "brentwatch  |  " + report.FormatCount(rep.Observations) + " prices to " + report.FormatDate(rep.Latest)
		}
		return imagegen.GenerateOGImage(data)
	})
}

func (s *Server) historyYears() int {
	if s.defaults.HistoryYears > 0 {
		return s.defaults.HistoryYears
	}
	return 10
}

// serveChart renders a PNG for the request's report, cached by chart name,
// data revision and query.
func (s *Server) serveChart(w http.ResponseWriter, r *http.Request, name string, render func(*report.Report) ([]byte, error)) {
	rep, q, err := s.buildReport(r)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	fp := ""
	if rep.Forecast != nil {
		fp = rep.Forecast.Fingerprint
	}
	key := strings.Join([]string{name, rep.Revision, fp, q.encode()}, "|")

	data, err := s.images.GetOrRender(key, func() ([]byte, error) { return render(rep) })
	if errors.Is(err, imagegen.ErrNoData) {
		http.Error(w, report.InsufficientData, http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("chart", name).Msg("http: render chart")
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.Write(data)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	rep, _, err := s.buildReport(r)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="brent-report.xlsx"`)
	if err := rep.WriteXLSX(w); err != nil {
		log.Error().Err(err).Msg("http: export workbook")
	}
}
