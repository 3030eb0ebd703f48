package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	errs "github.com/nitrodev1/telegram-gift-parser/pkg/errors"
	"github.com/nitrodev1/telegram-gift-parser/pkg/logger"
	"github.com/nitrodev1/telegram-gift-parser/pkg/ratelimit"
)

// PageOptions configures a PageFetcher
type PageOptions struct {
	UserAgent string
	Timeout   time.Duration
	// Limiter throttles every fetch; nil means unthrottled
	Limiter *ratelimit.RequestLimiter
}

// PageFetcher downloads public gift pages with a colly collector
type PageFetcher struct {
	base    *colly.Collector
	limiter *ratelimit.RequestLimiter
	logger  logger.Logger
}

// NewPageFetcher constructs a configured colly-based fetcher
func NewPageFetcher(opts PageOptions, log logger.Logger) *PageFetcher {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	base := colly.NewCollector(colly.UserAgent(opts.UserAgent))
	// Replayed batches fetch the same page again
	base.AllowURLRevisit = true
	base.ParseHTTPErrorResponse = true
	base.SetRequestTimeout(opts.Timeout)

	return &PageFetcher{
		base:    base,
		limiter: opts.Limiter,
		logger:  log.WithField("component", "page_fetcher"),
	}
}

// FetchPage retrieves rawURL and returns the HTTP status and body. A 429
// answer is reported as a rate limit error carrying the Retry-After wait.
func (f *PageFetcher) FetchPage(ctx context.Context, rawURL string) (int, []byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return 0, nil, err
	}

	collector := f.base.Clone()
	collector.Context = ctx

	var (
		once     sync.Once
		status   int
		body     []byte
		header   http.Header
		fetchErr error
	)

	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml")
		r.Headers.Set("Accept-Language", "ru,en;q=0.9")
	})

	collector.OnResponse(func(r *colly.Response) {
		once.Do(func() {
			status = r.StatusCode
			body = append([]byte{}, r.Body...)
			if r.Headers != nil {
				header = r.Headers.Clone()
			}
		})
	})

	collector.OnError(func(r *colly.Response, err error) {
		once.Do(func() {
			if err == nil {
				err = errors.New("unknown colly error")
			}
			fetchErr = err
		})
	})

	start := time.Now()
	if err := collector.Visit(rawURL); err != nil && fetchErr == nil {
		fetchErr = err
	}
	collector.Wait()

	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	if fetchErr != nil {
		f.logger.DebugWithFields("page fetch failed", map[string]interface{}{
			"url":   rawURL,
			"error": fetchErr.Error(),
		})
		return 0, nil, &errs.Error{
			Type:    errs.ErrorTypeNetwork,
			Message: fmt.Sprintf("page fetch failed: %v", fetchErr),
			Cause:   fetchErr,
		}
	}

	f.logger.DebugWithFields("page fetched", map[string]interface{}{
		"url":      rawURL,
		"status":   status,
		"size":     len(body),
		"duration": time.Since(start),
	})

	if status == http.StatusTooManyRequests {
		wait := time.Duration(0)
		if secs, err := strconv.Atoi(strings.TrimSpace(header.Get("Retry-After"))); err == nil && secs > 0 {
			wait = time.Duration(secs) * time.Second
		}
		return status, nil, errs.RateLimited(wait, status)
	}

	return status, body, nil
}
