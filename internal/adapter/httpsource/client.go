package httpsource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/user/autolist-service/internal/repository"
)

// maxBodySize caps how much of a response is read.
const maxBodySize = 10 << 20

// Client performs GET requests against listing sources and classifies
// failures into repository source errors.
type Client struct {
	rotator *Rotator
	direct  *http.Client

	mu      sync.Mutex
	proxied map[string]*http.Client
}

// NewClient creates a Client. rotator may be nil.
func NewClient(rotator *Rotator) *Client {
	if rotator == nil {
		rotator = NewRotator(nil, nil)
	}
	return &Client{
		rotator: rotator,
		direct:  &http.Client{Transport: newTransport(nil)},
		proxied: make(map[string]*http.Client),
	}
}

func newTransport(proxy *url.URL) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	if proxy != nil {
		t.Proxy = http.ProxyURL(proxy)
	}
	t.MaxIdleConnsPerHost = 4
	t.ResponseHeaderTimeout = 30 * time.Second
	return t
}

func (c *Client) httpClient() (*http.Client, error) {
	proxy := c.rotator.Proxy()
	if proxy == "" {
		return c.direct, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if hc, ok := c.proxied[proxy]; ok {
		return hc, nil
	}
	u, err := url.Parse(proxy)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy %q: %w", proxy, err)
	}
	hc := &http.Client{Transport: newTransport(u)}
	c.proxied[proxy] = hc
	return hc, nil
}

// Get fetches target and returns the body of a 2xx response. Other statuses
// and transport failures come back as *repository.SourceError.
func (c *Client) Get(ctx context.Context, target string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &repository.SourceError{Kind: repository.ErrKeywordRejected, Err: err}
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("User-Agent", c.rotator.UserAgent())
	if req.Header.Get("Accept-Language") == "" {
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	}

	hc, err := c.httpClient()
	if err != nil {
		return nil, err
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, &repository.SourceError{Kind: repository.ErrSourceUnavailable, Err: err}
	}
	defer resp.Body.Close()

	if err := ClassifyStatus(resp.StatusCode, resp.Header); err != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &repository.SourceError{Kind: repository.ErrSourceUnavailable, StatusCode: resp.StatusCode, Err: err}
	}
	return body, nil
}

// ClassifyStatus maps an HTTP status to a source error, or nil for 2xx.
func ClassifyStatus(status int, header http.Header) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests || status == http.StatusForbidden:
		return &repository.SourceError{Kind: repository.ErrRateLimited, StatusCode: status, RetryAfter: ParseRetryAfter(header)}
	case status == http.StatusRequestTimeout || status >= 500:
		return &repository.SourceError{Kind: repository.ErrSourceUnavailable, StatusCode: status, RetryAfter: ParseRetryAfter(header)}
	default:
		return &repository.SourceError{Kind: repository.ErrKeywordRejected, StatusCode: status}
	}
}

// ParseRetryAfter reads a Retry-After header in seconds or HTTP-date form.
func ParseRetryAfter(header http.Header) time.Duration {
	v := strings.TrimSpace(header.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// SearchURL fills the {keyword} and {page} placeholders of a URL template.
func SearchURL(template, keyword string, page int) string {
	r := strings.NewReplacer(
		"{keyword}", url.QueryEscape(keyword),
		"{page}", strconv.Itoa(page),
	)
	return r.Replace(template)
}
