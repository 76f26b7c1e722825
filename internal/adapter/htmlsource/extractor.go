package htmlsource

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/user/autolist-service/internal/entity"
	"github.com/user/autolist-service/internal/repository"
	"github.com/user/autolist-service/pkg/utils"
)

// Selectors are the CSS selectors used to read a search result page.
// Title, Price, Link and Image are evaluated inside each Item.
type Selectors struct {
	Item   string
	IDAttr string
	Title  string
	Price  string
	Link   string
	Image  string
	Next   string
}

// Extractor turns search result HTML into raw listings.
type Extractor struct {
	sel Selectors
}

// NewExtractor creates an Extractor for the given selectors.
func NewExtractor(sel Selectors) *Extractor {
	return &Extractor{sel: sel}
}

// Extract parses a search result page. pageURL resolves relative links.
// Bot-check interstitials are reported as rate limiting.
func (e *Extractor) Extract(pageURL string, html []byte, source, keyword string, page int) (*entity.ListingPage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, &repository.SourceError{Kind: repository.ErrMalformedResponse, Err: err}
	}
	if isBotCheck(doc) {
		return nil, &repository.SourceError{Kind: repository.ErrRateLimited}
	}

	base, _ := url.Parse(pageURL)
	fetchedAt := time.Now().UTC()
	result := &entity.ListingPage{Page: page}

	doc.Find(e.sel.Item).Each(func(i int, s *goquery.Selection) {
		fields := e.fields(s, base)
		if fields["external_id"] == "" && fields["title"] == "" {
			return
		}
		payload, err := json.Marshal(fields)
		if err != nil {
			return
		}
		result.Listings = append(result.Listings, entity.RawListing{
			Source:    source,
			Keyword:   keyword,
			Page:      page,
			Payload:   payload,
			FetchedAt: fetchedAt,
		})
	})

	if e.sel.Next != "" {
		next := doc.Find(e.sel.Next).First()
		disabled, _ := next.Attr("aria-disabled")
		result.HasMore = next.Length() > 0 && disabled != "true"
	} else {
		result.HasMore = len(result.Listings) > 0
	}
	return result, nil
}

func (e *Extractor) fields(s *goquery.Selection, base *url.URL) map[string]string {
	fields := map[string]string{
		"title":      text(s, e.sel.Title),
		"price_text": text(s, e.sel.Price),
	}
	if e.sel.IDAttr != "" {
		fields["external_id"] = strings.TrimSpace(s.AttrOr(e.sel.IDAttr, ""))
	}
	if href := attr(s, e.sel.Link, "href"); href != "" {
		fields["url"] = resolve(base, href)
	}
	if src := attr(s, e.sel.Image, "src"); src != "" {
		fields["image_url"] = resolve(base, src)
	}
	return fields
}

func text(s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.TrimSpace(s.Find(selector).First().Text())
}

func attr(s *goquery.Selection, selector, name string) string {
	if selector == "" {
		return ""
	}
	return strings.TrimSpace(s.Find(selector).First().AttrOr(name, ""))
}

func resolve(base *url.URL, ref string) string {
	if base == nil {
		return ref
	}
	abs, err := utils.ToAbsoluteURL(base, ref)
	if err != nil {
		return ref
	}
	return abs
}

func isBotCheck(doc *goquery.Document) bool {
	if doc.Find(`form[action*="validateCaptcha"]`).Length() > 0 {
		return true
	}
	title := strings.ToLower(doc.Find("title").First().Text())
	return strings.Contains(title, "robot check") || strings.Contains(title, "captcha")
}
