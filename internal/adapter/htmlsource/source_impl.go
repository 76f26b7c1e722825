package htmlsource

import (
	"context"
	"net/http"

	"github.com/user/autolist-service/internal/adapter/httpsource"
	"github.com/user/autolist-service/internal/entity"
)

// SourceImpl reads server-rendered search result pages over plain HTTP.
type SourceImpl struct {
	name      string
	searchURL string
	client    *httpsource.Client
	extractor *Extractor
}

// NewSource creates an HTML source. searchURL must contain {keyword} and {page}.
func NewSource(name, searchURL string, client *httpsource.Client, extractor *Extractor) *SourceImpl {
	return &SourceImpl{
		name:      name,
		searchURL: searchURL,
		client:    client,
		extractor: extractor,
	}
}

func (s *SourceImpl) Name() string { return s.name }

// FetchPage downloads and parses one result page.
func (s *SourceImpl) FetchPage(ctx context.Context, keyword string, page int) (*entity.ListingPage, error) {
	target := httpsource.SearchURL(s.searchURL, keyword, page)
	body, err := s.client.Get(ctx, target, http.Header{
		"Accept": {"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"},
	})
	if err != nil {
		return nil, err
	}

	result, err := s.extractor.Extract(target, body, s.name, keyword, page)
	if err != nil {
		return nil, err
	}
	result.StatusCode = http.StatusOK
	return result, nil
}
