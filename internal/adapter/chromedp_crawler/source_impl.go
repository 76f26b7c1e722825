package chromedp_crawler

import (
	"context"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/user/autolist-service/internal/adapter/htmlsource"
	"github.com/user/autolist-service/internal/adapter/httpsource"
	"github.com/user/autolist-service/internal/entity"
	"github.com/user/autolist-service/internal/repository"
)

// BrowserSourceImpl renders search pages in headless Chrome before parsing
// them, for sources that build results with JavaScript.
type BrowserSourceImpl struct {
	name       string
	searchURL  string
	extractor  *htmlsource.Extractor
	rotator    *httpsource.Rotator
	allocators chan context.Context
	cancels    []context.CancelFunc
	waitFor    string
}

// NewBrowserSource starts poolSize browser allocators. Each allocator serves
// one page at a time. waitFor is the selector that signals results rendered.
func NewBrowserSource(name, searchURL, waitFor string, poolSize int, extractor *htmlsource.Extractor, rotator *httpsource.Rotator) *BrowserSourceImpl {
	if poolSize <= 0 {
		poolSize = 1
	}
	if rotator == nil {
		rotator = httpsource.NewRotator(nil, nil)
	}
	if waitFor == "" {
		waitFor = "body"
	}

	s := &BrowserSourceImpl{
		name:       name,
		searchURL:  searchURL,
		extractor:  extractor,
		rotator:    rotator,
		allocators: make(chan context.Context, poolSize),
		waitFor:    waitFor,
	}

	for i := 0; i < poolSize; i++ {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.UserAgent(rotator.UserAgent()),
		)
		if proxy := rotator.Proxy(); proxy != "" {
			opts = append(opts, chromedp.ProxyServer(proxy))
		}
		allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
		s.allocators <- allocCtx
		s.cancels = append(s.cancels, cancel)
	}
	return s
}

func (s *BrowserSourceImpl) Name() string { return s.name }

// FetchPage renders one result page and extracts its listings.
func (s *BrowserSourceImpl) FetchPage(ctx context.Context, keyword string, page int) (*entity.ListingPage, error) {
	var allocCtx context.Context
	select {
	case allocCtx = <-s.allocators:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { s.allocators <- allocCtx }()

	taskCtx, cancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...any) {
		slog.Debug("chromedp", "detail", format, "args", args)
	}))
	defer cancel()

	// chromedp contexts do not inherit the caller's deadline, so mirror it.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		taskCtx, cancelDeadline = context.WithDeadline(taskCtx, deadline)
		defer cancelDeadline()
	}

	target := httpsource.SearchURL(s.searchURL, keyword, page)
	start := time.Now()

	var html string
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(target),
		chromedp.WaitReady(s.waitFor, chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		slog.Warn("Failed to render page", "source", s.name, "url", target, "error", err)
		// Navigation failures and render timeouts are worth another attempt.
		return nil, &repository.SourceError{Kind: repository.ErrSourceUnavailable, Err: err}
	}

	slog.Debug("Rendered page", "source", s.name, "url", target, "duration_ms", time.Since(start).Milliseconds())

	result, err := s.extractor.Extract(target, []byte(html), s.name, keyword, page)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Close shuts down every browser in the pool.
func (s *BrowserSourceImpl) Close() {
	for _, cancel := range s.cancels {
		cancel()
	}
}
