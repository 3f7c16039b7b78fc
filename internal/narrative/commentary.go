// Package narrative writes short market commentary for a report using the
// OpenAI chat API.
package narrative

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/rs/zerolog/log"

	"github.com/lox/brentwatch/internal/metrics"
	"github.com/lox/brentwatch/internal/report"
)

const systemPrompt = `You are an energy market analyst writing for a business audience.
Given summary statistics of the Brent crude spot price and a model forecast,
write two short paragraphs of plain-English commentary. Mention the lowest and
highest periods and what the forecast implies. Do not invent figures that are
not in the input. No headings, no bullet points.`

// DefaultCacheSize bounds how many commentaries are kept. Keys include the
// requested interval, so the cache evicts oldest first.
const DefaultCacheSize = 64

// ErrNoFigures means the report interval held no prices to comment on.
var ErrNoFigures = errors.New("report has no figures")

// Commentator generates and caches commentary per report revision.
type Commentator struct {
	client     openai.Client
	model      openai.ChatModel
	maxRetries uint64
	newBackOff func() backoff.BackOff

	mu       sync.Mutex
	cache    map[string]string
	order    []string
	maxCache int
}

// New creates a Commentator. Extra options are passed to the OpenAI client.
func New(apiKey string, opts ...option.RequestOption) *Commentator {
	opts = append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)
	return &Commentator{
		client:     openai.NewClient(opts...),
		model:      openai.ChatModelGPT4oMini,
		maxRetries: 3,
		newBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.MaxElapsedTime = time.Minute
			return bo
		},
		cache:    make(map[string]string),
		maxCache: DefaultCacheSize,
	}
}

// Commentary returns generated text for r. Results are cached by the
// report's data revision, interval and forecast.
func (c *Commentator) Commentary(ctx context.Context, r *report.Report) (string, error) {
	if r.Summary == nil {
		return "", ErrNoFigures
	}
	key := cacheKey(r)

	c.mu.Lock()
	if text, ok := c.cache[key]; ok {
		c.mu.Unlock()
		return text, nil
	}
	c.mu.Unlock()

	text, err := c.generate(ctx, Prompt(r))
	if err != nil {
		metrics.CommentaryRequests.WithLabelValues("error").Inc()
		return "", err
	}
	metrics.CommentaryRequests.WithLabelValues("ok").Inc()

	c.mu.Lock()
	c.storeLocked(key, text)
	c.mu.Unlock()
	return text, nil
}

func (c *Commentator) storeLocked(key, text string) {
	if _, ok := c.cache[key]; !ok {
		c.order = append(c.order, key)
	}
	c.cache[key] = text
	for len(c.order) > c.maxCache {
		delete(c.cache, c.order[0])
		c.order = c.order[1:]
	}
}

// Len reports how many commentaries are cached.
func (c *Commentator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

func (c *Commentator) generate(ctx context.Context, prompt string) (string, error) {
	var text string
	operation := func() error {
		resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model: c.model,
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage(systemPrompt),
				openai.UserMessage(prompt),
			},
			MaxCompletionTokens: openai.Int(400),
		})
		if err != nil {
			var apiErr *openai.Error
			if errors.As(err, &apiErr) && !retryable(apiErr.StatusCode) {
				return backoff.Permanent(fmt.Errorf("commentary: %w", err))
			}
			return fmt.Errorf("commentary: %w", err)
		}
		if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
			return backoff.Permanent(errors.New("commentary: empty response"))
		}
		text = strings.TrimSpace(resp.Choices[0].Message.Content)
		return nil
	}
	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).Dur("wait", wait).Msg("narrative: retrying")
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), c.maxRetries), ctx)
	if err := backoff.RetryNotify(operation, bo, notify); err != nil {
		return "", err
	}
	return text, nil
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// Prompt lists the report figures the model may use.
func Prompt(r *report.Report) string {
	v := r.Vars()
	var b strings.Builder
	fmt.Fprintf(&b, "Interval: %s to %s\n", v["Start"], v["End"])
	fmt.Fprintf(&b, "Lowest price: %s", v["Min"])
	if r.Lowest != nil {
		fmt.Fprintf(&b, " on %s", report.FormatDate(r.Lowest.Date))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Highest price: %s", v["Max"])
	if r.Highest != nil {
		fmt.Fprintf(&b, " on %s", report.FormatDate(r.Highest.Date))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Mean: %s\nMedian: %s\n", v["Mean"], v["Median"])
	fmt.Fprintf(&b, "Cheapest year on average: %s\nMost expensive year on average: %s\n", v["LowestYear"], v["HighestYear"])
	for _, y := range r.Years {
		fmt.Fprintf(&b, "  %d: mean %s, median %s\n", y.Year, report.FormatPrice(y.Mean), report.FormatPrice(y.Median))
	}
	fmt.Fprintf(&b, "Forecast for %s: %s (model trained on prices before %s, MSE %s)\n", v["Target"], v["Predicted"], v["Cutoff"], v["MSE"])
	return b.String()
}

func cacheKey(r *report.Report) string {
	fp := ""
	if r.Forecast != nil {
		fp = r.Forecast.Fingerprint
	}
	return strings.Join([]string{r.Revision, report.FormatDate(r.Start), report.FormatDate(r.End), fp}, "|")
}
