package forecast

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"math"
	"sync"

	"github.com/lox/brentwatch/internal/metrics"
	"github.com/lox/brentwatch/internal/models"
)

// Revision hashes a price series so a changed import yields a new
// fingerprint. Order-sensitive; callers pass the series as stored.
func Revision(obs []models.PriceObservation) string {
	h := fnv.New64a()
	var buf [16]byte
	for _, o := range obs {
		binary.LittleEndian.PutUint64(buf[:8], uint64(o.Date.Unix()))
		binary.LittleEndian.PutUint64(buf[8:], math.Float64bits(o.Price))
		h.Write(buf[:])
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// Fingerprint identifies a fitted model: training window, target,
// hyperparameters and dataset revision.
func Fingerprint(cfg Config, revision string) string {
	p := cfg.Params
	key := fmt.Sprintf("%s|%s|%d|%g|%d|%g|%g|%g|%d|%s",
		cfg.Cutoff.Format(models.DateLayout), cfg.Target.Format(models.DateLayout),
		p.NumTrees, p.LearningRate, p.MaxDepth, p.Lambda, p.MinChildWeight, p.Subsample, p.Seed,
		revision)
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:8])
}

type cacheEntry struct {
	done   chan struct{}
	result *models.ForecastResult
	err    error
}

// Cache holds fitted results by fingerprint so the service does not refit
// on every request. Concurrent callers for the same key share one fit.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	order   []string
	max     int

	// OnFit, when set, is called after every successful fit.
	OnFit func(*models.ForecastResult)
}

// NewCache creates a cache that keeps at most max fitted models.
func NewCache(max int) *Cache {
	if max < 1 {
		max = 1
	}
	return &Cache{
		entries: make(map[string]*cacheEntry),
		max:     max,
	}
}

// Forecast returns the cached result for (obs, cfg), fitting it on a miss.
// It has the signature of Run.
func (c *Cache) Forecast(obs []models.PriceObservation, cfg Config) (*models.ForecastResult, error) {
	key := Fingerprint(cfg, Revision(obs))

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		c.mu.Unlock()
		<-e.done
		metrics.ForecastCacheLookups.WithLabelValues("hit").Inc()
		return e.result, e.err
	}
	e := &cacheEntry{done: make(chan struct{})}
	c.entries[key] = e
	c.order = append(c.order, key)
	c.evictLocked()
	c.mu.Unlock()

	metrics.ForecastCacheLookups.WithLabelValues("miss").Inc()
	e.result, e.err = Run(obs, cfg)
	close(e.done)

	if e.err != nil {
		c.mu.Lock()
		if c.entries[key] == e {
			c.removeLocked(key)
		}
		c.mu.Unlock()
		return nil, e.err
	}

	metrics.ForecastFits.Inc()
	metrics.ForecastFitDuration.Observe(e.result.FitDuration.Seconds())
	if c.OnFit != nil {
		c.OnFit(e.result)
	}
	return e.result, nil
}

// Len reports how many entries are cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) evictLocked() {
	for len(c.order) > c.max {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}

func (c *Cache) removeLocked(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
