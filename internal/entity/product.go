package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Money is a decimal amount tagged with an ISO 4217 currency code.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// CanonicalProduct mirrors the `products` PostgreSQL table schema.
type CanonicalProduct struct {
	ExternalID  string    `json:"external_id"`
	Source      string    `json:"source"`
	Title       string    `json:"title"`
	Price       *Money    `json:"price,omitempty"`
	URL         string    `json:"url,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	Keyword     string    `json:"keyword"`
	CollectedAt time.Time `json:"collected_at"`
	FirstSeenAt time.Time `json:"first_seen_at"`
}

// UpsertOutcome tells whether an upsert created or refreshed a product row.
type UpsertOutcome string

const (
	UpsertInserted UpsertOutcome = "inserted"
	UpsertUpdated  UpsertOutcome = "updated"
)

// UpsertResult is returned by the product store for each persisted record.
type UpsertResult struct {
	Outcome     UpsertOutcome
	FirstSeenAt time.Time
}
