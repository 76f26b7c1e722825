package entity

import (
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	RunPending    RunStatus = "pending"
	RunFetching   RunStatus = "fetching"
	RunProcessing RunStatus = "processing"
	RunSucceeded  RunStatus = "succeeded"
	RunPartial    RunStatus = "partial"
	RunFailed     RunStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s RunStatus) IsTerminal() bool {
	return s == RunSucceeded || s == RunPartial || s == RunFailed
}

// RunCounts tracks per-stage progress of a collection run.
// Stored is Inserted+Updated; Failed includes Skipped.
type RunCounts struct {
	Fetched      int `json:"fetched"`
	Normalized   int `json:"normalized"`
	Stored       int `json:"stored"`
	Failed       int `json:"failed"`
	Inserted     int `json:"inserted"`
	Updated      int `json:"updated"`
	Skipped      int `json:"skipped"`
	PagesFetched int `json:"pages_fetched"`
}

// CollectionRun mirrors the `collection_runs` PostgreSQL table schema.
type CollectionRun struct {
	ID         uuid.UUID  `json:"id"`
	Keyword    string     `json:"keyword"`
	Source     string     `json:"source"`
	Status     RunStatus  `json:"status"`
	Reason     string     `json:"reason,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	RunCounts
}
