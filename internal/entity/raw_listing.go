package entity

import (
	"encoding/json"
	"time"
)

// RawListing is one record as returned by a listing source, before normalization.
// Payload is an opaque JSON object whose shape depends on the source.
type RawListing struct {
	Source    string
	Keyword   string
	Page      int
	Payload   json.RawMessage
	FetchedAt time.Time
}

// ListingPage is a single page of results returned by a listing source.
type ListingPage struct {
	Page       int
	Listings   []RawListing
	HasMore    bool
	StatusCode int
}
