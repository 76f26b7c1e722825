package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/user/autolist-service/internal/entity"
	"github.com/user/autolist-service/internal/repository"
	"github.com/user/autolist-service/pkg/metrics"
)

const jitterFactor = 0.2 // +/- 20%

// FetchError means the source failed in a way retrying will not fix.
// The stream stops at Page.
type FetchError struct {
	Page int
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch page %d: %v", e.Page, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// FetchIncompleteError means Page kept failing transiently until retries ran out.
// Listings from earlier pages were already delivered.
type FetchIncompleteError struct {
	Page     int
	Attempts int
	Err      error
}

func (e *FetchIncompleteError) Error() string {
	return fmt.Sprintf("fetch incomplete at page %d after %d attempts: %v", e.Page, e.Attempts, e.Err)
}

func (e *FetchIncompleteError) Unwrap() error { return e.Err }

// FetcherConfig controls retries and per-page deadlines.
type FetcherConfig struct {
	MaxRetries  int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	PageTimeout time.Duration
}

// Fetcher turns a keyword into a stream of raw listings.
type Fetcher interface {
	Fetch(ctx context.Context, keyword string, maxPages int) *ListingStream
}

type fetcher struct {
	source  repository.ListingSource
	limiter repository.RateLimiter
	cfg     FetcherConfig
	logger  *slog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewFetcher creates a Fetcher over a listing source. limiter may be nil.
func NewFetcher(source repository.ListingSource, limiter repository.RateLimiter, cfg FetcherConfig, logger *slog.Logger) Fetcher {
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	if cfg.BackoffMax < cfg.BackoffBase {
		cfg.BackoffMax = cfg.BackoffBase
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &fetcher{
		source:  source,
		limiter: limiter,
		cfg:     cfg,
		logger:  logger,
		sleep:   sleepContext,
	}
}

// Fetch starts a new stream. Nothing is requested until the stream is
// created; each call begins again from page 1.
func (f *fetcher) Fetch(ctx context.Context, keyword string, maxPages int) *ListingStream {
	streamCtx, cancel := context.WithCancel(ctx)
	s := &ListingStream{
		ctx:    streamCtx,
		cancel: cancel,
		pages:  make(chan pageResult),
		done:   make(chan struct{}),
	}
	go f.produce(streamCtx, s, keyword, maxPages)
	return s
}

func (f *fetcher) produce(ctx context.Context, s *ListingStream, keyword string, maxPages int) {
	defer close(s.done)
	defer close(s.pages)

	for page := 1; page <= maxPages; page++ {
		result, err := f.fetchPage(ctx, keyword, page)
		if !s.send(ctx, pageResult{page: result, err: err}) {
			return
		}
		if err != nil || len(result.Listings) == 0 || !result.HasMore {
			return
		}
	}
}

// fetchPage requests one page, retrying transient failures with backoff.
func (f *fetcher) fetchPage(ctx context.Context, keyword string, page int) (*entity.ListingPage, error) {
	source := f.source.Name()
	attempts := f.cfg.MaxRetries + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := f.backoff(attempt-1, repository.RetryAfter(lastErr))
			metrics.SourceRetriesTotal.WithLabelValues(source).Inc()
			f.logger.Warn("Retrying page after transient failure",
				"source", source, "keyword", keyword, "page", page,
				"attempt", attempt, "delay_ms", delay.Milliseconds(), "error", lastErr)
			if err := f.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		if f.limiter != nil {
			if err := f.limiter.Wait(ctx, source); err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				// Fail open: a broken limiter should not stop collection.
				f.logger.Warn("Rate limiter unavailable", "source", source, "error", err)
			}
		}

		result, err := f.requestPage(ctx, keyword, page)
		if err == nil {
			metrics.SourceRequestsTotal.WithLabelValues(source, "ok").Inc()
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = &repository.SourceError{Kind: repository.ErrSourceUnavailable, Err: err}
		}
		if !repository.IsTransient(err) {
			metrics.SourceRequestsTotal.WithLabelValues(source, "error").Inc()
			return nil, &FetchError{Page: page, Err: err}
		}
		metrics.SourceRequestsTotal.WithLabelValues(source, "transient").Inc()
		lastErr = err
	}

	return nil, &FetchIncompleteError{Page: page, Attempts: attempts, Err: lastErr}
}

func (f *fetcher) requestPage(ctx context.Context, keyword string, page int) (*entity.ListingPage, error) {
	if f.cfg.PageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.PageTimeout)
		defer cancel()
	}

	start := time.Now()
	result, err := f.source.FetchPage(ctx, keyword, page)
	metrics.SourceRequestDuration.WithLabelValues(f.source.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = &entity.ListingPage{Page: page}
	}
	return result, nil
}

// backoff returns the wait before retry number n (1-based): base doubled per
// retry, capped, with jitter. A source hint lengthens the wait up to the cap.
func (f *fetcher) backoff(n int, hint time.Duration) time.Duration {
	delay := f.cfg.BackoffBase
	for i := 1; i < n && delay < f.cfg.BackoffMax; i++ {
		delay *= 2
	}
	delay = min(delay, f.cfg.BackoffMax)

	jitter := time.Duration(float64(delay) * jitterFactor * (rand.Float64()*2 - 1))
	delay += jitter

	if hint > delay {
		delay = min(hint, f.cfg.BackoffMax)
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type pageResult struct {
	page *entity.ListingPage
	err  error
}

// ListingStream is a lazily fetched sequence of raw listings. The next page
// is requested while the current one is consumed, never more than one ahead.
// Listings come back in page order.
type ListingStream struct {
	ctx    context.Context
	cancel context.CancelFunc
	pages  chan pageResult
	done   chan struct{}

	buf          []entity.RawListing
	cur          entity.RawListing
	err          error
	finished     bool
	pagesFetched int
}

func (s *ListingStream) send(ctx context.Context, r pageResult) bool {
	select {
	case s.pages <- r:
		return true
	case <-ctx.Done():
		return false
	}
}

// Next advances to the next listing. It returns false when the stream is
// exhausted or failed; check Err afterwards.
func (s *ListingStream) Next() bool {
	if s.err != nil || s.finished {
		return false
	}
	if err := s.ctx.Err(); err != nil {
		s.err = err
		return false
	}

	for len(s.buf) == 0 {
		select {
		case res, ok := <-s.pages:
			if !ok {
				s.finished = true
				return false
			}
			if res.err != nil {
				s.err = res.err
				return false
			}
			s.pagesFetched++
			s.buf = res.page.Listings
		case <-s.ctx.Done():
			s.err = s.ctx.Err()
			return false
		}
	}

	s.cur = s.buf[0]
	s.buf = s.buf[1:]
	return true
}

// Listing returns the current listing.
func (s *ListingStream) Listing() entity.RawListing { return s.cur }

// Err returns the error that ended the stream, if any.
// It is nil when the source simply ran out of pages.
func (s *ListingStream) Err() error { return s.err }

// PagesFetched counts pages handed to the consumer.
func (s *ListingStream) PagesFetched() int { return s.pagesFetched }

// Close stops the prefetch goroutine and waits for it to exit.
func (s *ListingStream) Close() {
	s.cancel()
	<-s.done
}
