package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"regexp"
	"strings"
)

// trackingParams are query parameters that identify a click, not a product.
var trackingParams = map[string]struct{}{
	"gclid":        {},
	"fbclid":       {},
	"msclkid":      {},
	"ref":          {},
	"ref_":         {},
	"tag":          {},
	"qid":          {},
	"sr":           {},
	"psc":          {},
	"spm":          {},
	"mc_cid":       {},
	"mc_eid":       {},
	"_encoding":    {},
	"content-id":   {},
	"crid":         {},
	"sprefix":      {},
	"dib":          {},
	"dib_tag":      {},
	"th":           {},
	"smid":         {},
	"linkcode":     {},
	"linkid":       {},
	"camp":         {},
	"creative":     {},
	"creativeasin": {},
}

var trackingPrefixes = []string{"utm_", "pd_rd_", "pf_rd_"}

// refPathSuffix matches Amazon style "/ref=sr_1_3" path segments.
var refPathSuffix = regexp.MustCompile(`/ref=[^/]*$`)

// HashKey creates a SHA256 hash of a string.
// This is useful for creating consistent, safe keys for Redis.
func HashKey(s string) string {
	h := sha256.New()
	h.Write([]byte(s))
	return hex.EncodeToString(h.Sum(nil))
}

// ToAbsoluteURL converts a relative URL to an absolute URL given a base URL.
func ToAbsoluteURL(base *url.URL, relative string) (string, error) {
	relURL, err := url.Parse(relative)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(relURL).String(), nil
}

// CanonicalURL strips tracking parameters and fragments from an absolute
// http(s) URL and sorts the remaining query. Anything else yields "".
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ""
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil

	if refPathSuffix.MatchString(u.Path) {
		u.Path = refPathSuffix.ReplaceAllString(u.Path, "")
		u.RawPath = ""
	}

	query := u.Query()
	for key := range query {
		if isTrackingParam(key) {
			query.Del(key)
		}
	}
	// Encode sorts by key.
	u.RawQuery = query.Encode()
	u.ForceQuery = false

	return u.String()
}

func isTrackingParam(key string) bool {
	key = strings.ToLower(key)
	if _, ok := trackingParams[key]; ok {
		return true
	}
	for _, prefix := range trackingPrefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}
