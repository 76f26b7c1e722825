package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/autolist-service/internal/adapter/memory"
	"github.com/user/autolist-service/internal/delivery/http/handler"
	"github.com/user/autolist-service/internal/entity"
	"github.com/user/autolist-service/internal/repository"
	"github.com/user/autolist-service/internal/usecase"
)

var dashboardOrigins = []string{"http://localhost:3000"}

type staticSource struct {
	listings []entity.RawListing
	err      error
}

func (s *staticSource) Name() string { return "test" }

func (s *staticSource) FetchPage(ctx context.Context, keyword string, page int) (*entity.ListingPage, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]entity.RawListing, len(s.listings))
	for i, l := range s.listings {
		l.Keyword = keyword
		l.Page = page
		out[i] = l
	}
	return &entity.ListingPage{Page: page, Listings: out}, nil
}

func rawListing(id, title, price string) entity.RawListing {
	payload, _ := json.Marshal(map[string]string{"external_id": id, "title": title, "price": price})
	return entity.RawListing{Source: "test", Payload: payload, FetchedAt: time.Now()}
}

type stubCollector struct {
	run *entity.CollectionRun
	err error
}

func (c *stubCollector) Collect(ctx context.Context, req usecase.CollectRequest) (*entity.CollectionRun, error) {
	return c.run, c.err
}

type testServer struct {
	handler  http.Handler
	products *memory.ProductRepoImpl
	runs     *memory.RunRepoImpl
}

func newTestServer(t *testing.T, source repository.ListingSource, checks map[string]handler.Pinger) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	products := memory.NewProductRepo()
	runs := memory.NewRunRepo()

	fetcher := usecase.NewFetcher(source, nil, usecase.FetcherConfig{
		MaxRetries:  1,
		BackoffBase: time.Millisecond,
		BackoffMax:  2 * time.Millisecond,
		PageTimeout: time.Second,
	}, logger)
	collector := usecase.NewCollectorUseCase(fetcher, products, runs, nil, usecase.CollectorConfig{
		SourceName:                  "test",
		MaxPages:                    3,
		RunTimeout:                  5 * time.Second,
		MaxConsecutiveStoreFailures: 3,
	}, logger)

	h := handler.NewHandler(collector, products, runs, checks)
	return &testServer{handler: New(h, dashboardOrigins), products: products, runs: runs}
}

func newStubServer(collector usecase.Collector) http.Handler {
	h := handler.NewHandler(collector, memory.NewProductRepo(), memory.NewRunRepo(), nil)
	return New(h, dashboardOrigins)
}

func do(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var decoded map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestCollectProductsSucceeded(t *testing.T) {
	srv := newTestServer(t, &staticSource{listings: []entity.RawListing{
		rawListing("B001", "Wireless Mouse", "$19.99"),
		rawListing("B002", "Gaming Mouse", "$49.50"),
	}}, nil)

	rec, body := do(t, srv.handler, http.MethodPost, "/api/collect-products", `{"keyword":"  Wireless   Mouse "}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.NotContains(t, body, "error")

	run := body["run"].(map[string]any)
	assert.Equal(t, "succeeded", run["status"])
	assert.Equal(t, "wireless mouse", run["keyword"])
	assert.EqualValues(t, 2, run["fetched"])
	assert.EqualValues(t, 2, run["stored"])
	assert.EqualValues(t, 2, run["inserted"])
	assert.Contains(t, run, "duration_ms")

	rec, body = do(t, srv.handler, http.MethodGet, "/api/runs/"+run["id"].(string), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "succeeded", body["run"].(map[string]any)["status"])

	rec, body = do(t, srv.handler, http.MethodGet, "/api/products?keyword=Wireless%20Mouse", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["count"])

	rec, body = do(t, srv.handler, http.MethodGet, "/api/products/B002", "")
	require.Equal(t, http.StatusOK, rec.Code)
	product := body["product"].(map[string]any)
	assert.Equal(t, "Gaming Mouse", product["title"])
	assert.Equal(t, map[string]any{"amount": "49.5", "currency": "USD"}, product["price"])
}

func TestCollectProductsFailedRun(t *testing.T) {
	srv := newTestServer(t, &staticSource{err: &repository.SourceError{Kind: repository.ErrKeywordRejected, StatusCode: http.StatusBadRequest}}, nil)

	rec, body := do(t, srv.handler, http.MethodPost, "/api/collect-products", `{"keyword":"mouse"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "rejected keyword")

	run := body["run"].(map[string]any)
	assert.Equal(t, "failed", run["status"])
	assert.EqualValues(t, 0, run["stored"])
}

func TestCollectProductsValidation(t *testing.T) {
	srv := newTestServer(t, &staticSource{}, nil)

	tests := []struct {
		name string
		body string
	}{
		{"malformed body", `{"keyword":`},
		{"missing keyword", `{}`},
		{"blank keyword", `{"keyword":"   "}`},
		{"negative max pages", `{"keyword":"mouse","max_pages":-1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := do(t, srv.handler, http.MethodPost, "/api/collect-products", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, false, body["success"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestCollectProductsStartErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"cooldown", usecase.ErrKeywordRecentlyCollected, http.StatusConflict},
		{"run store down", fmt.Errorf("failed to start collection run: %w", errors.New("connection refused")), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newStubServer(&stubCollector{err: tt.err})
			rec, body := do(t, h, http.MethodPost, "/api/collect-products", `{"keyword":"mouse"}`)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, false, body["success"])
		})
	}
}

func TestGetRunErrors(t *testing.T) {
	srv := newTestServer(t, &staticSource{}, nil)

	rec, body := do(t, srv.handler, http.MethodGet, "/api/runs/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, body["success"])

	rec, _ = do(t, srv.handler, http.MethodGet, "/api/runs/7c9e6679-7425-40de-944b-e07fc1f90ae7", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, srv.handler, http.MethodGet, "/api/products/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListRunsLimit(t *testing.T) {
	srv := newTestServer(t, &staticSource{listings: []entity.RawListing{rawListing("B001", "Mouse", "$5")}}, nil)
	for i := 0; i < 3; i++ {
		rec, _ := do(t, srv.handler, http.MethodPost, "/api/collect-products", `{"keyword":"mouse"}`)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec, body := do(t, srv.handler, http.MethodGet, "/api/runs?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["count"])

	rec, _ = do(t, srv.handler, http.MethodGet, "/api/runs?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownRoutesReturnJSON(t *testing.T) {
	srv := newTestServer(t, &staticSource{}, nil)

	rec, body := do(t, srv.handler, http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, false, body["success"])

	rec, body = do(t, srv.handler, http.MethodGet, "/api/collect-products", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, false, body["success"])
}

func TestHealthCheck(t *testing.T) {
	healthy := newTestServer(t, &staticSource{}, map[string]handler.Pinger{
		"postgres": func(ctx context.Context) error { return nil },
	})
	for _, path := range []string{"/health", "/api/health"} {
		rec, body := do(t, healthy.handler, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ok", body["status"])
		assert.Equal(t, "AutoList API", body["service"])
		assert.Equal(t, map[string]any{"postgres": "ok"}, body["checks"])
	}

	degraded := newTestServer(t, &staticSource{}, map[string]handler.Pinger{
		"redis": func(ctx context.Context) error { return errors.New("dial tcp: connection refused") },
	})
	rec, body := do(t, degraded.handler, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", body["status"])
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, &staticSource{}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/collect-products", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodOptions, "/api/collect-products", nil)
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, &staticSource{}, nil)
	do(t, srv.handler, http.MethodGet, "/api/runs", "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `autolist_http_requests_total{method="GET",path="/api/runs",status="200"}`)
}
