package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/lox/brentwatch/internal/models"
	"github.com/lox/brentwatch/internal/report"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("http: encode json")
	}
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleAPISummary(w http.ResponseWriter, r *http.Request) {
	rep, _, err := s.buildReport(r)
	if err != nil {
		writeJSONError(w, statusFor(err), err)
		return
	}

	resp := SummaryResponse{
		Start:       report.FormatDate(rep.Start),
		End:         report.FormatDate(rep.End),
		Revision:    rep.Revision,
		Summary:     rep.Summary,
		Years:       rep.Years,
		Lowest:      rep.Lowest,
		Highest:     rep.Highest,
		LowestYear:  rep.LowestYear,
		HighestYear: rep.HighestYear,
		Notices:     rep.NoticesFor(report.SectionAnalysis),
	}
	status := http.StatusOK
	if rep.Summary == nil {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleAPIForecast(w http.ResponseWriter, r *http.Request) {
	rep, _, err := s.buildReport(r)
	if err != nil {
		writeJSONError(w, statusFor(err), err)
		return
	}

	notices := rep.NoticesFor(report.SectionForecast)
	f := rep.Forecast
	if f == nil {
		writeJSON(w, http.StatusUnprocessableEntity, ForecastResponse{
			Cutoff:     report.FormatDate(rep.Cutoff),
			TargetDate: report.FormatDate(rep.Target),
			Notices:    notices,
		})
		return
	}
	importance := make(map[string]float64)
	for _, fw := range featureWeights(f) {
		importance[fw.Name] = fw.Weight
	}
	writeJSON(w, http.StatusOK, ForecastResponse{
		Cutoff:         f.Cutoff.Format(models.DateLayout),
		TargetDate:     f.TargetDate.Format(models.DateLayout),
		Fingerprint:    f.Fingerprint,
		TargetFeatures: f.TargetFeatures,
		PredictedPrice: f.PredictedPrice,
		TrainRows:      f.TrainRows,
		Evaluation:     f.Evaluation,
		Importance:     importance,
		FitMillis:      f.FitDuration.Milliseconds(),
		Notices:        notices,
	})
}

func (s *Server) handleAPIRuns(w http.ResponseWriter, r *http.Request) {
	var q runsQuery
	if err := bindQuery(r.URL.Query(), &q); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	runs, err := s.store.RecentForecastRuns(q.Limit)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}

	out := make([]RunResponse, 0, len(runs))
	for _, run := range runs {
		rr := RunResponse{
			ID:          run.ID,
			CreatedAt:   run.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
			Fingerprint: run.Fingerprint,
			Cutoff:      run.Cutoff.Format(models.DateLayout),
			TargetDate:  run.TargetDate.Format(models.DateLayout),
			Predicted:   run.Predicted,
			TrainRows:   run.TrainRows,
			EvalRows:    run.EvalRows,
			FitMillis:   run.FitMillis,
		}
		if run.MSE.Valid {
			mse := run.MSE.Float64
			rr.MSE = &mse
		}
		out = append(out, rr)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAPIPrices(w http.ResponseWriter, r *http.Request) {
	var q pricesQuery
	if err := bindQuery(r.URL.Query(), &q); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	start := dateOr(q.Start, s.defaults.Start)
	end := dateOr(q.End, s.defaults.End)
	if end.Before(start) {
		writeJSONError(w, http.StatusBadRequest, errors.New("invalid query: end before start"))
		return
	}

	obs, err := s.store.GetPrices(start, end)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}

	resp := PricesResponse{
		Start:  start.Format(models.DateLayout),
		End:    end.Format(models.DateLayout),
		Total:  len(obs),
		Offset: q.Offset,
		Prices: []PriceRow{},
	}
	if q.Offset < len(obs) {
		page := obs[q.Offset:min(q.Offset+q.Limit, len(obs))]
		for _, o := range page {
			resp.Prices = append(resp.Prices, PriceRow{Date: o.Date.Format(models.DateLayout), Price: o.Price})
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
