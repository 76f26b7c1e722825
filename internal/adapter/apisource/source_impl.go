package apisource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/user/autolist-service/internal/adapter/httpsource"
	"github.com/user/autolist-service/internal/entity"
	"github.com/user/autolist-service/internal/repository"
)

// listKeys are the envelope fields that may hold the result list.
var listKeys = []string{"items", "results", "products", "listings", "data"}

// SourceImpl reads listings from a paginated JSON search API.
type SourceImpl struct {
	name      string
	searchURL string
	apiKey    string
	client    *httpsource.Client
}

// NewSource creates a JSON API source. searchURL must contain {keyword} and {page}.
func NewSource(name, searchURL, apiKey string, client *httpsource.Client) *SourceImpl {
	return &SourceImpl{
		name:      name,
		searchURL: searchURL,
		apiKey:    apiKey,
		client:    client,
	}
}

func (s *SourceImpl) Name() string { return s.name }

// FetchPage requests one page of results.
func (s *SourceImpl) FetchPage(ctx context.Context, keyword string, page int) (*entity.ListingPage, error) {
	header := http.Header{"Accept": {"application/json"}}
	if s.apiKey != "" {
		header.Set("X-API-Key", s.apiKey)
	}

	body, err := s.client.Get(ctx, httpsource.SearchURL(s.searchURL, keyword, page), header)
	if err != nil {
		return nil, err
	}

	items, hasMore, err := decodePage(body, page)
	if err != nil {
		return nil, &repository.SourceError{Kind: repository.ErrMalformedResponse, StatusCode: http.StatusOK, Err: err}
	}

	fetchedAt := time.Now().UTC()
	listings := make([]entity.RawListing, 0, len(items))
	for _, item := range items {
		listings = append(listings, entity.RawListing{
			Source:    s.name,
			Keyword:   keyword,
			Page:      page,
			Payload:   item,
			FetchedAt: fetchedAt,
		})
	}

	return &entity.ListingPage{
		Page:       page,
		Listings:   listings,
		HasMore:    hasMore && len(listings) > 0,
		StatusCode: http.StatusOK,
	}, nil
}

type envelope struct {
	HasMore    *bool           `json:"has_more"`
	NextPage   json.RawMessage `json:"next_page"`
	TotalPages *int            `json:"total_pages"`
}

// decodePage accepts a bare array or an object wrapping the list under one of
// listKeys. Without paging hints a non-empty page implies more may follow.
func decodePage(body []byte, page int) ([]json.RawMessage, bool, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, false, fmt.Errorf("empty body")
	}

	if trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, false, err
		}
		return items, len(items) > 0, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, false, err
	}

	var items []json.RawMessage
	found := false
	for _, key := range listKeys {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, false, fmt.Errorf("field %q is not a list: %w", key, err)
		}
		found = true
		break
	}
	if !found {
		return nil, false, fmt.Errorf("no result list in response")
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, false, err
	}

	hasMore := len(items) > 0
	switch {
	case env.HasMore != nil:
		hasMore = *env.HasMore
	case env.TotalPages != nil:
		hasMore = page < *env.TotalPages
	case len(env.NextPage) > 0:
		hasMore = string(env.NextPage) != "null"
	}
	return items, hasMore, nil
}
