package apisource

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/autolist-service/internal/adapter/httpsource"
	"github.com/user/autolist-service/internal/repository"
)

func newTestSource(t *testing.T, handler http.HandlerFunc) *SourceImpl {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewSource("shop-api", srv.URL+"/search?q={keyword}&page={page}", "key-123", httpsource.NewClient(nil))
}

func TestFetchPageWrappedList(t *testing.T) {
	var gotQuery, gotPage, gotKey string
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotPage = r.URL.Query().Get("page")
		gotKey = r.Header.Get("X-API-Key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[{"id":"A1","title":"Mouse"},{"id":"A2","title":"Pad"}],"total_pages":3}`))
	})

	page, err := src.FetchPage(context.Background(), "wireless mouse", 2)
	require.NoError(t, err)

	assert.Equal(t, "wireless mouse", gotQuery)
	assert.Equal(t, "2", gotPage)
	assert.Equal(t, "key-123", gotKey)
	require.Len(t, page.Listings, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, "shop-api", page.Listings[0].Source)
	assert.Equal(t, 2, page.Listings[0].Page)
	assert.Equal(t, "wireless mouse", page.Listings[0].Keyword)
	assert.JSONEq(t, `{"id":"A1","title":"Mouse"}`, string(page.Listings[0].Payload))
}

func TestFetchPageBareArray(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"sku":"S1","name":"Mouse"}]`))
	})

	page, err := src.FetchPage(context.Background(), "mouse", 1)
	require.NoError(t, err)
	assert.Len(t, page.Listings, 1)
	assert.True(t, page.HasMore)
}

func TestFetchPageHonorsHasMore(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items":[{"id":"A1","title":"Mouse"}],"has_more":false}`))
	})

	page, err := src.FetchPage(context.Background(), "mouse", 1)
	require.NoError(t, err)
	assert.False(t, page.HasMore)
}

func TestFetchPageNullNextPage(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"products":[{"id":"A1","title":"Mouse"}],"next_page":null}`))
	})

	page, err := src.FetchPage(context.Background(), "mouse", 1)
	require.NoError(t, err)
	assert.False(t, page.HasMore)
}

func TestFetchPageEmptyList(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items":[],"has_more":true}`))
	})

	page, err := src.FetchPage(context.Background(), "mouse", 4)
	require.NoError(t, err)
	assert.Empty(t, page.Listings)
	assert.False(t, page.HasMore)
}

func TestFetchPageMalformed(t *testing.T) {
	for _, body := range []string{`<html>oops</html>`, `{"message":"ok"}`, `{"items":"nope"}`, ``} {
		src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		})

		_, err := src.FetchPage(context.Background(), "mouse", 1)
		assert.ErrorIs(t, err, repository.ErrMalformedResponse, body)
		assert.False(t, repository.IsTransient(err), body)
	}
}

func TestFetchPagePropagatesRateLimit(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := src.FetchPage(context.Background(), "mouse", 1)
	assert.ErrorIs(t, err, repository.ErrRateLimited)
	assert.True(t, repository.IsTransient(err))
}
