package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/lox/brentwatch/internal/metrics"
	"github.com/lox/brentwatch/internal/models"
)

// ErrNoValidRows means a workbook parsed but every row was rejected. The
// stored series is left untouched.
var ErrNoValidRows = errors.New("workbook has no valid price rows")

// PriceWriter is the storage side of an import.
type PriceWriter interface {
	ReplacePrices(batch models.ImportBatch, obs []models.PriceObservation) error
}

type Importer struct {
	prices PriceWriter
	now    func() time.Time
}

func NewImporter(store PriceWriter) *Importer {
	return &Importer{prices: store, now: time.Now}
}

// ImportFile parses the workbook at path and replaces the stored series.
func (im *Importer) ImportFile(path string) (*models.ImportBatch, error) {
	res, err := ParseFile(path)
	if err != nil {
		metrics.PricesImported.WithLabelValues("failed").Inc()
		return nil, err
	}
	return im.persist(filepath.Base(path), res)
}

// ImportBytes parses an in-memory workbook, as downloaded by a Fetcher.
func (im *Importer) ImportBytes(source string, data []byte) (*models.ImportBatch, error) {
	res, err := ParseReader(bytes.NewReader(data))
	if err != nil {
		metrics.PricesImported.WithLabelValues("failed").Inc()
		return nil, err
	}
	return im.persist(source, res)
}

func (im *Importer) persist(source string, res *SheetResult) (*models.ImportBatch, error) {
	for _, rej := range res.Rejected {
		log.Debug().Str("source", source).Int("row", rej.Row).Str("reason", rej.Reason).Msg("import: rejected row")
	}
	metrics.PricesImported.WithLabelValues("rejected").Add(float64(len(res.Rejected)))

	if len(res.Observations) == 0 {
		metrics.PricesImported.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("%s: %w (%d rejected)", source, ErrNoValidRows, len(res.Rejected))
	}

	batch := models.ImportBatch{
		ID:         uuid.NewString(),
		Source:     source,
		Rows:       len(res.Observations),
		Rejected:   len(res.Rejected),
		ImportedAt: im.now().UTC(),
	}
	if err := im.prices.ReplacePrices(batch, res.Observations); err != nil {
		metrics.PricesImported.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("store prices: %w", err)
	}
	metrics.PricesImported.WithLabelValues("stored").Add(float64(batch.Rows))

	first, last := res.Observations[0].Date, res.Observations[len(res.Observations)-1].Date
	log.Info().
		Str("source", source).
		Str("sheet", res.Sheet).
		Int("rows", batch.Rows).
		Int("rejected", batch.Rejected).
		Str("from", first.Format(models.DateLayout)).
		Str("to", last.Format(models.DateLayout)).
		Msg("import: stored prices")
	return &batch, nil
}
