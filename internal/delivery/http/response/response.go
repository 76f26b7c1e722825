package response

import (
	"time"

	"github.com/user/autolist-service/internal/entity"
)

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type HealthResponse struct {
	Status    string            `json:"status"` // "ok" or "degraded"
	Timestamp time.Time         `json:"timestamp"`
	Service   string            `json:"service"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// RunResponse is a DTO for a collection run, mirroring entity.CollectionRun.
type RunResponse struct {
	ID           string     `json:"id"`
	Keyword      string     `json:"keyword"`
	Source       string     `json:"source"`
	Status       string     `json:"status"`
	Reason       string     `json:"reason,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	DurationMS   *int64     `json:"duration_ms,omitempty"`
	Fetched      int        `json:"fetched"`
	Normalized   int        `json:"normalized"`
	Stored       int        `json:"stored"`
	Failed       int        `json:"failed"`
	Inserted     int        `json:"inserted"`
	Updated      int        `json:"updated"`
	Skipped      int        `json:"skipped"`
	PagesFetched int        `json:"pages_fetched"`
}

func NewRunResponse(run *entity.CollectionRun) RunResponse {
	resp := RunResponse{
		ID:           run.ID.String(),
		Keyword:      run.Keyword,
		Source:       run.Source,
		Status:       string(run.Status),
		Reason:       run.Reason,
		StartedAt:    run.StartedAt,
		FinishedAt:   run.FinishedAt,
		Fetched:      run.Fetched,
		Normalized:   run.Normalized,
		Stored:       run.Stored,
		Failed:       run.Failed,
		Inserted:     run.Inserted,
		Updated:      run.Updated,
		Skipped:      run.Skipped,
		PagesFetched: run.PagesFetched,
	}
	if run.FinishedAt != nil {
		ms := run.FinishedAt.Sub(run.StartedAt).Milliseconds()
		resp.DurationMS = &ms
	}
	return resp
}

// CollectProductsResponse is returned for every run that started.
// Success is false only for failed runs, with the run's reason in Error.
type CollectProductsResponse struct {
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
	Run     RunResponse `json:"run"`
}

type RunResponseItem struct {
	Success bool        `json:"success"`
	Run     RunResponse `json:"run"`
}

type RunListResponse struct {
	Success bool          `json:"success"`
	Count   int           `json:"count"`
	Runs    []RunResponse `json:"runs"`
}

type PriceResponse struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// ProductResponse is a DTO for a stored product.
type ProductResponse struct {
	ExternalID  string         `json:"external_id"`
	Source      string         `json:"source"`
	Title       string         `json:"title"`
	Price       *PriceResponse `json:"price,omitempty"`
	URL         string         `json:"url,omitempty"`
	ImageURL    string         `json:"image_url,omitempty"`
	Keyword     string         `json:"keyword"`
	CollectedAt time.Time      `json:"collected_at"`
	FirstSeenAt time.Time      `json:"first_seen_at"`
}

func NewProductResponse(p *entity.CanonicalProduct) ProductResponse {
	resp := ProductResponse{
		ExternalID:  p.ExternalID,
		Source:      p.Source,
		Title:       p.Title,
		URL:         p.URL,
		ImageURL:    p.ImageURL,
		Keyword:     p.Keyword,
		CollectedAt: p.CollectedAt,
		FirstSeenAt: p.FirstSeenAt,
	}
	if p.Price != nil {
		resp.Price = &PriceResponse{Amount: p.Price.Amount.String(), Currency: p.Price.Currency}
	}
	return resp
}

type ProductResponseItem struct {
	Success bool            `json:"success"`
	Product ProductResponse `json:"product"`
}

type ProductListResponse struct {
	Success  bool              `json:"success"`
	Count    int               `json:"count"`
	Products []ProductResponse `json:"products"`
}
