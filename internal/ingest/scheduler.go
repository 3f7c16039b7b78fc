package ingest

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/lox/brentwatch/internal/models"
)

// DefaultRefresh re-fetches the source every morning.
const DefaultRefresh = "0 6 * * *"

// Source fetches raw workbook bytes.
type Source interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// Scheduler periodically downloads the source workbook and re-imports it.
type Scheduler struct {
	source    Source
	importer  *Importer
	sourceURL string
	spec      string
	timeout   time.Duration

	mu sync.Mutex
}

func NewScheduler(source Source, importer *Importer, sourceURL, spec string) *Scheduler {
	if spec == "" {
		spec = DefaultRefresh
	}
	return &Scheduler{
		source:    source,
		importer:  importer,
		sourceURL: sourceURL,
		spec:      spec,
		timeout:   10 * time.Minute,
	}
}

// Run refreshes once, then on every tick of the cron schedule until ctx is
// done.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(s.spec, func() {
		if _, err := s.RefreshOnce(ctx); err != nil {
			log.Error().Err(err).Msg("scheduler: refresh failed")
		}
	}); err != nil {
		return fmt.Errorf("parse refresh schedule %q: %w", s.spec, err)
	}

	if _, err := s.RefreshOnce(ctx); err != nil {
		log.Error().Err(err).Msg("scheduler: initial refresh failed")
	}

	c.Start()
	log.Info().Str("schedule", s.spec).Str("source", s.sourceURL).Msg("scheduler: started")

	<-ctx.Done()
	<-c.Stop().Done()
	log.Info().Msg("scheduler: shutting down")
	return nil
}

// RefreshOnce downloads and imports the source. Concurrent calls are
// serialized.
func (s *Scheduler) RefreshOnce(ctx context.Context) (*models.ImportBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	body, err := s.source.Fetch(ctx, s.sourceURL)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	batch, err := s.importer.ImportBytes(sourceName(s.sourceURL), body)
	if err != nil {
		return nil, fmt.Errorf("import: %w", err)
	}
	return batch, nil
}


func sourceName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return rawURL
	}
	return u.Host + "/" + path.Base(u.Path)
}
