package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jlaffaye/ftp"
	"github.com/rs/zerolog/log"

	"github.com/lox/brentwatch/internal/httputil"
	"github.com/lox/brentwatch/internal/metrics"
)

// maxSourceBytes caps a downloaded workbook.
const maxSourceBytes = 32 << 20

// Fetcher downloads the source workbook over http(s) or ftp.
type Fetcher struct {
	client     *http.Client
	maxRetries uint64
	ftpTimeout time.Duration
	newBackOff func() backoff.BackOff
}

func NewFetcher() *Fetcher {
	return &Fetcher{
		client:     httputil.WithTimeout(2 * time.Minute),
		maxRetries: 5,
		ftpTimeout: 30 * time.Second,
		newBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.MaxElapsedTime = 5 * time.Minute
			return bo
		},
	}
}

// Fetch returns the body at rawURL, retrying transient failures.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse source url: %w", err)
	}

	var get func(context.Context, *url.URL) ([]byte, error)
	switch u.Scheme {
	case "http", "https":
		get = f.fetchHTTP
	case "ftp":
		get = f.fetchFTP
	default:
		return nil, fmt.Errorf("unsupported source scheme %q", u.Scheme)
	}

	start := time.Now()
	var body []byte
	operation := func() error {
		b, err := get(ctx, u)
		if err != nil {
			return err
		}
		body = b
		return nil
	}
	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).Dur("wait", wait).Str("url", redact(u)).Msg("fetch: retrying")
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(f.newBackOff(), f.maxRetries), ctx)
	err = backoff.RetryNotify(operation, bo, notify)
	metrics.SourceFetchLatency.WithLabelValues(u.Scheme).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SourceFetches.WithLabelValues(u.Scheme, "error").Inc()
		return nil, err
	}
	metrics.SourceFetches.WithLabelValues(u.Scheme, "ok").Inc()
	log.Info().Str("url", redact(u)).Int("bytes", len(body)).Dur("took", time.Since(start)).Msg("fetch: downloaded source")
	return body, nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, u *url.URL) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch source: %w", err)
	}
	defer resp.Body.Close()

	// 5xx and throttling are worth retrying, everything else is not.
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, fmt.Errorf("fetch source: status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, backoff.Permanent(fmt.Errorf("fetch source: status %d: %s", resp.StatusCode, strings.TrimSpace(string(b))))
	}

	return readLimited(resp.Body)
}

func (f *Fetcher) fetchFTP(ctx context.Context, u *url.URL) ([]byte, error) {
	host := u.Host
	if u.Port() == "" {
		host += ":21"
	}
	conn, err := ftp.Dial(host, ftp.DialWithTimeout(f.ftpTimeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("ftp dial: %w", err)
	}
	defer conn.Quit()

	user, pass := "anonymous", "anonymous"
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			pass = p
		}
	}
	if err := conn.Login(user, pass); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("ftp login: %w", err))
	}

	resp, err := conn.Retr(u.Path)
	if err != nil {
		return nil, fmt.Errorf("ftp retr: %w", err)
	}
	defer resp.Close()

	return readLimited(resp)
}

func readLimited(r io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, maxSourceBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if n > maxSourceBytes {
		return nil, backoff.Permanent(fmt.Errorf("source larger than %d bytes", maxSourceBytes))
	}
	return buf.Bytes(), nil
}

// redact strips credentials from u for logging.
func redact(u *url.URL) string {
	c := *u
	c.User = nil
	return c.String()
}
