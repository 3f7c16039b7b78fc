package api_test

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/lox/brentwatch/internal/api"
	"github.com/lox/brentwatch/internal/models"
	"github.com/lox/brentwatch/internal/report"
	"github.com/lox/brentwatch/internal/store"

	_ "modernc.org/sqlite"
)

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s := store.New(db)
	if err := s.Migrate(); err != nil {
		t.Fatal(err)
	}
	return s
}

// seedPrices stores a daily series from 2023-06-01 to 2024-03-31 that
// straddles the default forecast cutoff.
func seedPrices(t *testing.T, s *store.Store) {
	t.Helper()
	var obs []models.PriceObservation
	start := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	for d, i := start, 0; !d.After(end); d, i = d.AddDate(0, 0, 1), i+1 {
		obs = append(obs, models.PriceObservation{Date: d, Price: 70 + float64(i%30)/3})
	}
	batch := models.ImportBatch{ID: "seed", Source: "brent.xlsx", Rows: len(obs), ImportedAt: end}
	if err := s.ReplacePrices(batch, obs); err != nil {
		t.Fatal(err)
	}
}

func newServer(t *testing.T, s *store.Store) *api.Server {
	t.Helper()
	srv, err := api.NewServer(s, "8080", report.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	return srv
}

func get(t *testing.T, srv *api.Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint_DegradedWithoutData(t *testing.T) {
	t.Parallel()
	srv := newServer(t, setupTestStore(t))

	w := get(t, srv, "/health")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var health api.HealthStatus
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil {
		t.Fatal(err)
	}
	if health.Status != "degraded" {
		t.Errorf("status = %q, want degraded", health.Status)
	}
	if health.MigrationVersion < 1 {
		t.Errorf("migration_version = %d", health.MigrationVersion)
	}
}

func TestHealthEndpoint_OK(t *testing.T) {
	t.Parallel()
	s := setupTestStore(t)
	seedPrices(t, s)
	srv := newServer(t, s)

	var health api.HealthStatus
	if err := json.Unmarshal(get(t, srv, "/health").Body.Bytes(), &health); err != nil {
		t.Fatal(err)
	}
	if health.Status != "ok" || health.Prices == 0 || health.ImportSource != "brent.xlsx" {
		t.Errorf("health = %+v", health)
	}
}

func TestPages_NoData(t *testing.T) {
	t.Parallel()
	srv := newServer(t, setupTestStore(t))

	for _, path := range []string{"/", "/analysis", "/forecast", "/bi", "/conclusions"} {
		w := get(t, srv, path)
		if w.Code != 200 {
			t.Fatalf("%s: expected 200, got %d", path, w.Code)
		}
		if !strings.Contains(w.Body.String(), "<nav>") {
			t.Errorf("%s: expected navigation", path)
		}
	}

	body := get(t, srv, "/analysis").Body.String()
	if !strings.Contains(body, "insufficient data") {
		t.Error("expected insufficient data in analysis")
	}
	if strings.Contains(body, "mean-by-year.png") {
		t.Error("expected no chart when no data")
	}
	if !strings.Contains(get(t, srv, "/forecast").Body.String(), `class="notice"`) {
		t.Error("expected forecast notice when no data")
	}
}

func TestPages_WithData(t *testing.T) {
	t.Parallel()
	s := setupTestStore(t)
	seedPrices(t, s)
	srv := newServer(t, s)

	body := get(t, srv, "/analysis?start=2024-01-01&end=2024-01-02").Body.String()
	for _, want := range []string{`id="prices"`, "<td>2024-01-01</td>", "<td>2024-01-02</td>"} {
		if !strings.Contains(body, want) {
			t.Errorf("analysis price table missing %q", want)
		}
	}
	if strings.Contains(body, "<td>2024-01-03</td>") {
		t.Error("analysis price table includes a day outside the interval")
	}

	body = get(t, srv, "/analysis").Body.String()
	for _, want := range []string{"mean-by-year.png", "median-by-year.png", "<td>2023</td>", "<td>2024</td>", "US$ "} {
		if !strings.Contains(body, want) {
			t.Errorf("analysis missing %q", want)
		}
	}

	body = get(t, srv, "/forecast").Body.String()
	if !strings.Contains(body, "history.png") {
		t.Error("forecast page missing history chart")
	}
	if !strings.Contains(body, "Predicted price on 2024-12-31") {
		t.Error("forecast page missing prediction")
	}
	if strings.Contains(body, "{{") {
		t.Error("unexpanded narrative placeholders")
	}

	if !strings.Contains(body, `id="importance"`) || !strings.Contains(body, "<td>month</td>") {
		t.Error("forecast page missing feature importance")
	}

	if !strings.Contains(get(t, srv, "/bi").Body.String(), "brent.xlsx") {
		t.Error("bi page missing last import")
	}
}

func TestUnknownPath(t *testing.T) {
	t.Parallel()
	srv := newServer(t, setupTestStore(t))
	if w := get(t, srv, "/nope"); w.Code != 404 {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestBadQuery(t *testing.T) {
	t.Parallel()
	srv := newServer(t, setupTestStore(t))

	tests := []string{
		"/analysis?start=yesterday",
		"/api/summary?end=2024-13-01",
		"/api/forecast?target=31/12/2024",
		"/api/summary?start=2024-01-02&end=2024-01-01",
		"/api/runs?limit=0",
		"/api/runs?limit=abc",
		"/api/prices?offset=-1",
		"/api/prices?start=2024-02-01&end=2024-01-01",
	}
	for _, path := range tests {
		if w := get(t, srv, path); w.Code != 400 {
			t.Errorf("%s: expected 400, got %d", path, w.Code)
		}
	}
}

func TestAPISummary(t *testing.T) {
	t.Parallel()
	srv := newServer(t, setupTestStore(t))
	if w := get(t, srv, "/api/summary"); w.Code != 422 {
		t.Errorf("empty store: expected 422, got %d", w.Code)
	}

	s := setupTestStore(t)
	seedPrices(t, s)
	srv = newServer(t, s)

	w := get(t, srv, "/api/summary?start=2024-01-01&end=2024-01-31")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp api.SummaryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Summary == nil || resp.Summary.Count != 31 {
		t.Fatalf("summary = %+v, want 31 prices", resp.Summary)
	}
	if resp.Summary.Min > resp.Summary.Mean || resp.Summary.Mean > resp.Summary.Max {
		t.Errorf("min <= mean <= max violated: %+v", resp.Summary)
	}
	if len(resp.Years) != 1 || resp.Years[0].Year != 2024 {
		t.Errorf("years = %+v", resp.Years)
	}
}

func TestAPIForecastAndRuns(t *testing.T) {
	t.Parallel()
	s := setupTestStore(t)
	seedPrices(t, s)
	srv := newServer(t, s)

	w := get(t, srv, "/api/forecast")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var fc api.ForecastResponse
	if err := json.Unmarshal(w.Body.Bytes(), &fc); err != nil {
		t.Fatal(err)
	}
	if fc.TargetDate != "2024-12-31" || fc.Evaluation == nil || fc.Evaluation.Rows == 0 {
		t.Errorf("forecast = %+v", fc)
	}
	if len(fc.Importance) != 3 {
		t.Errorf("importance = %v, want year, month and day_of_week", fc.Importance)
	}
	if fc.TargetFeatures.DayOfWeek != 1 {
		t.Errorf("target day of week = %d, want 1 (Tuesday)", fc.TargetFeatures.DayOfWeek)
	}

	// Second request is served from the cache and logs no new run.
	get(t, srv, "/api/forecast")

	var runs []api.RunResponse
	if err := json.Unmarshal(get(t, srv, "/api/runs").Body.Bytes(), &runs); err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	if runs[0].Fingerprint != fc.Fingerprint || runs[0].MSE == nil {
		t.Errorf("run = %+v", runs[0])
	}
}

func TestAPIPrices(t *testing.T) {
	t.Parallel()
	s := setupTestStore(t)
	seedPrices(t, s)
	srv := newServer(t, s)

	w := get(t, srv, "/api/prices?start=2024-01-01&end=2024-01-31&limit=10&offset=25")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp api.PricesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 31 || resp.Offset != 25 {
		t.Errorf("total/offset = %d/%d, want 31/25", resp.Total, resp.Offset)
	}
	if len(resp.Prices) != 6 {
		t.Fatalf("page = %d prices, want 6", len(resp.Prices))
	}
	if resp.Prices[0].Date != "2024-01-26" || resp.Prices[5].Date != "2024-01-31" {
		t.Errorf("page spans %s..%s", resp.Prices[0].Date, resp.Prices[5].Date)
	}

	var empty api.PricesResponse
	if err := json.Unmarshal(get(t, srv, "/api/prices?start=2024-01-01&end=2024-01-31&offset=100").Body.Bytes(), &empty); err != nil {
		t.Fatal(err)
	}
	if empty.Total != 31 || len(empty.Prices) != 0 {
		t.Errorf("past the end = %+v", empty)
	}
}

func TestAPIForecast_NoTrainingData(t *testing.T) {
	t.Parallel()
	s := setupTestStore(t)
	seedPrices(t, s)
	srv := newServer(t, s)

	if w := get(t, srv, "/api/forecast?cutoff=2020-01-01"); w.Code != 422 {
		t.Errorf("expected 422, got %d", w.Code)
	}
}

func TestCharts(t *testing.T) {
	t.Parallel()
	srv := newServer(t, setupTestStore(t))
	if w := get(t, srv, "/charts/mean-by-year.png"); w.Code != 404 {
		t.Errorf("empty store: expected 404, got %d", w.Code)
	}

	s := setupTestStore(t)
	seedPrices(t, s)
	srv = newServer(t, s)

	pngMagic := []byte("\x89PNG")
	for _, path := range []string{"/charts/mean-by-year.png", "/charts/median-by-year.png", "/charts/history.png", "/og-image.png"} {
		w := get(t, srv, path)
		if w.Code != 200 {
			t.Errorf("%s: expected 200, got %d", path, w.Code)
			continue
		}
		if ct := w.Header().Get("Content-Type"); ct != "image/png" {
			t.Errorf("%s: content type %q", path, ct)
		}
		if !bytes.HasPrefix(w.Body.Bytes(), pngMagic) {
			t.Errorf("%s: body is not a PNG", path)
		}
	}
}

func TestExport(t *testing.T) {
	t.Parallel()
	s := setupTestStore(t)
	seedPrices(t, s)
	srv := newServer(t, s)

	w := get(t, srv, "/export.xlsx")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), "brent-report.xlsx") {
		t.Error("missing attachment filename")
	}
	f, err := excelize.OpenReader(w.Body)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(report.SheetYears)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Errorf("by year rows = %d, want header plus 2023 and 2024", len(rows))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	srv := newServer(t, setupTestStore(t))
	get(t, srv, "/analysis")

	w := get(t, srv, "/metrics")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "brentwatch_page_renders_total") {
		t.Error("expected page render counter")
	}
}
