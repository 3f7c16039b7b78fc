package ingest

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lox/brentwatch/internal/models"
)

type fakeWriter struct {
	batches []models.ImportBatch
	obs     []models.PriceObservation
	err     error
}

func (w *fakeWriter) ReplacePrices(batch models.ImportBatch, obs []models.PriceObservation) error {
	if w.err != nil {
		return w.err
	}
	w.batches = append(w.batches, batch)
	w.obs = obs
	return nil
}

func workbookBytes(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := newWorkbook(t, "Sheet1", rows)
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestImporter_ImportBytes(t *testing.T) {
	w := &fakeWriter{}
	im := NewImporter(w)
	im.now = func() time.Time { return time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC) }

	data := workbookBytes(t, [][]any{
		{"Date", "Price"},
		{"2020-01-02", 66.25},
		{"2020-01-03", 68.6},
		{"bad", 1},
	})
	batch, err := im.ImportBytes("example.com/brent.xlsx", data)
	if err != nil {
		t.Fatalf("ImportBytes: %v", err)
	}
	if batch.Rows != 2 || batch.Rejected != 1 {
		t.Errorf("batch rows/rejected = %d/%d, want 2/1", batch.Rows, batch.Rejected)
	}
	if batch.ID == "" || batch.Source != "example.com/brent.xlsx" {
		t.Errorf("batch = %+v", batch)
	}
	if len(w.obs) != 2 {
		t.Errorf("stored %d observations, want 2", len(w.obs))
	}
}

func TestImporter_NonFinitePriceIsRejectedRow(t *testing.T) {
	w := &fakeWriter{}
	im := NewImporter(w)

	data := workbookBytes(t, [][]any{
		{"Date", "Price"},
		{"2020-01-02", "NaN"},
		{"2020-01-03", 50},
	})
	batch, err := im.ImportBytes("brent.xlsx", data)
	if err != nil {
		t.Fatalf("ImportBytes: %v", err)
	}
	if batch.Rows != 1 || batch.Rejected != 1 {
		t.Errorf("batch rows/rejected = %d/%d, want 1/1", batch.Rows, batch.Rejected)
	}
	if len(w.obs) != 1 || w.obs[0].Price != 50 {
		t.Errorf("stored %+v, want only the 50 row", w.obs)
	}
}

func TestImporter_NoValidRowsKeepsStore(t *testing.T) {
	w := &fakeWriter{}
	im := NewImporter(w)

	data := workbookBytes(t, [][]any{
		{"Date", "Price"},
		{"bad", 1},
	})
	if _, err := im.ImportBytes("x", data); !errors.Is(err, ErrNoValidRows) {
		t.Fatalf("err = %v, want ErrNoValidRows", err)
	}
	if len(w.batches) != 0 {
		t.Error("ReplacePrices called for an empty import")
	}
}

func TestImporter_StoreError(t *testing.T) {
	w := &fakeWriter{err: errors.New("disk full")}
	im := NewImporter(w)
	data := workbookBytes(t, [][]any{{"Date", "Price"}, {"2020-01-02", 66.25}})
	if _, err := im.ImportBytes("x", data); err == nil {
		t.Fatal("expected error")
	}
}

func testFetcher() *Fetcher {
	f := NewFetcher()
	f.maxRetries = 3
	f.newBackOff = func() backoff.BackOff {
		return backoff.NewConstantBackOff(time.Millisecond)
	}
	return f
}

func TestFetcher_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("workbook"))
	}))
	defer srv.Close()

	body, err := testFetcher().Fetch(context.Background(), srv.URL+"/brent.xlsx")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(body) != "workbook" {
		t.Errorf("body = %q", body)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestFetcher_NotFoundIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	if _, err := testFetcher().Fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestFetcher_UnsupportedScheme(t *testing.T) {
	if _, err := testFetcher().Fetch(context.Background(), "file:///tmp/brent.xlsx"); err == nil {
		t.Fatal("expected error")
	}
}

type staticSource struct {
	body []byte
	err  error
	urls []string
}

func (s *staticSource) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	s.urls = append(s.urls, rawURL)
	return s.body, s.err
}

func TestScheduler_RefreshOnce(t *testing.T) {
	src := &staticSource{body: workbookBytes(t, [][]any{{"Date", "Price"}, {"2020-01-02", 66.25}})}
	w := &fakeWriter{}
	s := NewScheduler(src, NewImporter(w), "https://example.com/data/brent.xlsx", "")

	batch, err := s.RefreshOnce(context.Background())
	if err != nil {
		t.Fatalf("RefreshOnce: %v", err)
	}
	if batch.Source != "example.com/brent.xlsx" {
		t.Errorf("Source = %q", batch.Source)
	}
	if len(w.batches) != 1 || w.batches[0].ID != batch.ID {
		t.Errorf("stored batches = %+v, want %s", w.batches, batch.ID)
	}
	if s.spec != DefaultRefresh {
		t.Errorf("spec = %q, want default", s.spec)
	}
}

func TestScheduler_RefreshFetchError(t *testing.T) {
	src := &staticSource{err: errors.New("offline")}
	w := &fakeWriter{}
	s := NewScheduler(src, NewImporter(w), "https://example.com/brent.xlsx", "")
	if _, err := s.RefreshOnce(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(w.batches) != 0 {
		t.Errorf("stored %d batches after failure, want 0", len(w.batches))
	}
}

func TestScheduler_RunRejectsBadSchedule(t *testing.T) {
	s := NewScheduler(&staticSource{}, NewImporter(&fakeWriter{}), "https://example.com/x.xlsx", "not a cron spec")
	if err := s.Run(context.Background()); err == nil {
		t.Fatal("expected schedule parse error")
	}
}
