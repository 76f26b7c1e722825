package usecase

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/user/autolist-service/internal/entity"
	"github.com/user/autolist-service/pkg/utils"
)

const defaultCurrency = "USD"

// SkipReason explains why a raw listing was not turned into a product.
type SkipReason string

const (
	SkipMissingExternalID SkipReason = "missing_external_id"
	SkipMissingTitle      SkipReason = "missing_title"
	SkipInvalidPayload    SkipReason = "invalid_payload"
)

// SkipError is returned by Normalize for listings that cannot be stored.
type SkipError struct {
	Reason SkipReason
	Page   int
	Err    error
}

func (e *SkipError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("skip listing on page %d: %s: %v", e.Page, e.Reason, e.Err)
	}
	return fmt.Sprintf("skip listing on page %d: %s", e.Page, e.Reason)
}

func (e *SkipError) Unwrap() error { return e.Err }

var (
	idFields    = []string{"external_id", "id", "asin", "listing_id", "sku"}
	titleFields = []string{"title", "name"}
	priceFields = []string{"price", "price_text", "amount"}
	urlFields   = []string{"url", "link", "href"}
	imageFields = []string{"image_url", "image", "thumbnail"}
)

var currencySymbols = []struct {
	symbol string
	code   string
}{
	{"€", "EUR"},
	{"£", "GBP"},
	{"₩", "KRW"},
	{"₹", "INR"},
	{"฿", "THB"},
	{"¥", "JPY"},
	{"$", "USD"},
}

var (
	isoCodePattern = regexp.MustCompile(`\b[A-Z]{3}\b`)
	isoHintPattern = regexp.MustCompile(`^[A-Z]{3}$`)
	numberPattern  = regexp.MustCompile(`\d[\d.,\s]*`)
)

var knownCurrencies = map[string]struct{}{
	"USD": {}, "EUR": {}, "GBP": {}, "JPY": {}, "KRW": {}, "INR": {}, "THB": {},
	"CAD": {}, "AUD": {}, "CNY": {}, "CHF": {}, "SEK": {}, "MXN": {}, "BRL": {},
}

// Normalize converts a raw listing into a canonical product. It has no side
// effects and leaves CollectedAt and FirstSeenAt unset.
func Normalize(raw entity.RawListing) (*entity.CanonicalProduct, error) {
	fields, err := decodePayload(raw.Payload)
	if err != nil {
		return nil, &SkipError{Reason: SkipInvalidPayload, Page: raw.Page, Err: err}
	}

	externalID := cleanText(firstString(fields, idFields))
	if externalID == "" {
		return nil, &SkipError{Reason: SkipMissingExternalID, Page: raw.Page}
	}
	title := cleanText(firstString(fields, titleFields))
	if title == "" {
		return nil, &SkipError{Reason: SkipMissingTitle, Page: raw.Page}
	}

	return &entity.CanonicalProduct{
		ExternalID: externalID,
		Source:     raw.Source,
		Title:      title,
		Price:      extractPrice(fields),
		URL:        utils.CanonicalURL(firstString(fields, urlFields)),
		ImageURL:   utils.CanonicalURL(firstString(fields, imageFields)),
		Keyword:    raw.Keyword,
	}, nil
}

func decodePayload(payload json.RawMessage) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, fmt.Errorf("payload is not an object")
	}
	return fields, nil
}

func firstString(fields map[string]any, keys []string) string {
	for _, key := range keys {
		if s := stringValue(fields[key]); s != "" {
			return s
		}
	}
	return ""
}

func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func extractPrice(fields map[string]any) *entity.Money {
	hint := stringValue(fields["currency"])
	for _, key := range priceFields {
		switch v := fields[key].(type) {
		case json.Number:
			return moneyFromDecimal(v.String(), hint)
		case string:
			if m := ParsePrice(v, hint); m != nil {
				return m
			}
		case map[string]any:
			nestedHint := stringValue(v["currency"])
			if nestedHint == "" {
				nestedHint = hint
			}
			for _, inner := range []string{"amount", "value", "raw"} {
				switch n := v[inner].(type) {
				case json.Number:
					return moneyFromDecimal(n.String(), nestedHint)
				case string:
					if m := ParsePrice(n, nestedHint); m != nil {
						return m
					}
				}
			}
		}
	}
	return nil
}

func moneyFromDecimal(s, currency string) *entity.Money {
	amount, err := decimal.NewFromString(s)
	if err != nil || amount.IsNegative() {
		return nil
	}
	return &entity.Money{Amount: amount, Currency: currencyCode(currency, "")}
}

// ParsePrice reads a display price such as "$1,299.99", "1.234,56 €" or
// "$10.99 - $15.99" (the first figure wins). It returns nil for text without
// a usable non-negative amount.
func ParsePrice(text, currencyHint string) *entity.Money {
	text = strings.TrimSpace(text)
	loc := numberPattern.FindStringIndex(text)
	if loc == nil {
		return nil
	}
	if strings.Contains(text[:loc[0]], "-") {
		return nil
	}

	number := strings.TrimRight(text[loc[0]:loc[1]], ".,  ")
	amount, err := decimal.NewFromString(normalizeSeparators(number))
	if err != nil {
		return nil
	}
	return &entity.Money{Amount: amount, Currency: currencyCode(currencyHint, text)}
}

// normalizeSeparators rewrites a grouped number to plain "1234.56" form.
// When both separators appear, the last one is the decimal mark. A lone
// comma followed by exactly three digits is a thousands separator.
func normalizeSeparators(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case lastComma >= 0:
		if strings.Count(s, ",") == 1 && len(s)-lastComma-1 != 3 {
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case strings.Count(s, ".") > 1:
		return strings.ReplaceAll(s, ".", "")
	default:
		return s
	}
}

func currencyCode(hint, text string) string {
	// A hint counts as a code only when it is three ASCII letters; "€" or "US$" fall through to detection.
	if code := strings.ToUpper(strings.TrimSpace(hint)); isoHintPattern.MatchString(code) {
		return code
	}
	if hint != "" {
		text = hint + " " + text
	}
	for _, match := range isoCodePattern.FindAllString(strings.ToUpper(text), -1) {
		if _, ok := knownCurrencies[match]; ok {
			return match
		}
	}
	for _, cs := range currencySymbols {
		if strings.Contains(text, cs.symbol) {
			return cs.code
		}
	}
	return defaultCurrency
}
