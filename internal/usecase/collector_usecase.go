package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/user/autolist-service/internal/entity"
	"github.com/user/autolist-service/internal/repository"
	"github.com/user/autolist-service/pkg/metrics"
)

const finalizeTimeout = 10 * time.Second

var (
	// ErrInvalidKeyword is returned when the keyword is empty after trimming.
	ErrInvalidKeyword = errors.New("keyword is required")
	// ErrKeywordRecentlyCollected is returned while a keyword is cooling down.
	ErrKeywordRecentlyCollected = errors.New("keyword was collected recently")
	// ErrRunTimeout is recorded as the reason of runs cut short by the wall clock.
	ErrRunTimeout = errors.New("collection run timed out")
	// ErrStoreUnavailable is recorded when too many upserts fail in a row.
	ErrStoreUnavailable = errors.New("product store unavailable")
)

// CollectRequest asks for one collection run.
type CollectRequest struct {
	Keyword  string
	MaxPages int
	// Force bypasses the keyword cooldown.
	Force bool
}

// CollectorConfig holds run-level limits.
type CollectorConfig struct {
	SourceName string
	// MaxPages is the default page budget and the upper bound for requests.
	MaxPages                    int
	RunTimeout                  time.Duration
	MaxConsecutiveStoreFailures int
	// KeywordCooldown of zero disables the cooldown check.
	KeywordCooldown time.Duration
}

// Collector runs the fetch, normalize and store pipeline for a keyword.
type Collector interface {
	Collect(ctx context.Context, req CollectRequest) (*entity.CollectionRun, error)
}

type collectorUseCase struct {
	fetcher  Fetcher
	products repository.ProductRepository
	runs     repository.RunRepository
	cooldown repository.CooldownRepository
	cfg      CollectorConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewCollectorUseCase creates a new instance of the collector use case.
// cooldown may be nil when KeywordCooldown is zero.
func NewCollectorUseCase(
	fetcher Fetcher,
	products repository.ProductRepository,
	runs repository.RunRepository,
	cooldown repository.CooldownRepository,
	cfg CollectorConfig,
	logger *slog.Logger,
) Collector {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &collectorUseCase{
		fetcher:  fetcher,
		products: products,
		runs:     runs,
		cooldown: cooldown,
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// NormalizeKeyword trims, collapses inner whitespace and lower-cases a keyword.
func NormalizeKeyword(keyword string) string {
	return strings.ToLower(strings.Join(strings.Fields(keyword), " "))
}

// Collect executes one run. Errors are returned only when the run cannot
// start; every other outcome is reported through the run's status.
func (uc *collectorUseCase) Collect(ctx context.Context, req CollectRequest) (*entity.CollectionRun, error) {
	keyword := NormalizeKeyword(req.Keyword)
	if keyword == "" {
		return nil, ErrInvalidKeyword
	}

	if uc.cooldownEnabled() {
		if err := uc.checkCooldown(ctx, keyword, req.Force); err != nil {
			return nil, err
		}
	}

	maxPages := req.MaxPages
	if maxPages <= 0 || maxPages > uc.cfg.MaxPages {
		maxPages = uc.cfg.MaxPages
	}

	run := &entity.CollectionRun{
		ID:        uuid.New(),
		Keyword:   keyword,
		Source:    uc.cfg.SourceName,
		Status:    entity.RunPending,
		StartedAt: uc.now(),
	}
	if err := uc.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to start collection run: %w", err)
	}

	uc.logger.Info("Collection run started", "run_id", run.ID, "keyword", keyword, "max_pages", maxPages)
	metrics.RunsInFlight.Inc()
	defer metrics.RunsInFlight.Dec()

	runCtx, cancel := uc.runContext(ctx)
	defer cancel()

	uc.execute(runCtx, run, maxPages)
	uc.finalize(ctx, run)

	return run, nil
}

func (uc *collectorUseCase) cooldownEnabled() bool {
	return uc.cooldown != nil && uc.cfg.KeywordCooldown > 0
}

// checkCooldown only fails for a keyword that is still cooling down.
// Cooldown store errors are logged and ignored.
func (uc *collectorUseCase) checkCooldown(ctx context.Context, keyword string, force bool) error {
	if force {
		if err := uc.cooldown.Clear(ctx, keyword); err != nil {
			uc.logger.Warn("Failed to clear keyword cooldown", "keyword", keyword, "error", err)
		}
		return nil
	}

	recent, err := uc.cooldown.IsRecentlyCollected(ctx, keyword)
	if err != nil {
		uc.logger.Warn("Failed to check keyword cooldown", "keyword", keyword, "error", err)
		return nil
	}
	if recent {
		return ErrKeywordRecentlyCollected
	}
	return nil
}

func (uc *collectorUseCase) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if uc.cfg.RunTimeout > 0 {
		return context.WithTimeout(ctx, uc.cfg.RunTimeout)
	}
	return context.WithCancel(ctx)
}

// execute streams listings through normalization and storage, updating the
// run's counts and deciding its terminal status.
func (uc *collectorUseCase) execute(ctx context.Context, run *entity.CollectionRun, maxPages int) {
	run.Status = entity.RunFetching
	stream := uc.fetcher.Fetch(ctx, run.Keyword, maxPages)
	defer stream.Close()

	consecutiveFailures := 0
	storeFailures := 0
	var lastStoreErr error

	for stream.Next() {
		listing := stream.Listing()
		run.Status = entity.RunProcessing
		run.Fetched++
		metrics.RecordsTotal.WithLabelValues("fetched").Inc()

		product, err := Normalize(listing)
		if err != nil {
			run.Skipped++
			run.Failed++
			metrics.RecordsTotal.WithLabelValues("skipped").Inc()
			uc.logger.Debug("Listing skipped", "run_id", run.ID, "page", listing.Page, "error", err)
			continue
		}
		run.Normalized++
		metrics.RecordsTotal.WithLabelValues("normalized").Inc()

		product.CollectedAt = uc.now()
		result, err := uc.products.Upsert(ctx, product, run.ID)
		if err != nil {
			if ctx.Err() != nil {
				// Interrupted by the deadline; the record was rolled back, not failed.
				break
			}
			run.Failed++
			consecutiveFailures++
			storeFailures++
			lastStoreErr = err
			metrics.RecordsTotal.WithLabelValues("failed").Inc()
			uc.logger.Warn("Failed to store product", "run_id", run.ID, "external_id", product.ExternalID, "error", err)

			if limit := uc.cfg.MaxConsecutiveStoreFailures; limit > 0 && consecutiveFailures >= limit {
				run.PagesFetched = stream.PagesFetched()
				run.Status = entity.RunFailed
				run.Reason = fmt.Errorf("%w: %d consecutive failures: %v", ErrStoreUnavailable, consecutiveFailures, lastStoreErr).Error()
				return
			}
			continue
		}

		consecutiveFailures = 0
		run.Stored++
		switch result.Outcome {
		case entity.UpsertInserted:
			run.Inserted++
		case entity.UpsertUpdated:
			run.Updated++
		}
		metrics.RecordsTotal.WithLabelValues(string(result.Outcome)).Inc()
	}

	run.PagesFetched = stream.PagesFetched()
	if ctx.Err() == nil && storeFailures > 0 && storeFailures == run.Normalized {
		// Nothing normalized could be stored; the store is down even if the cap was not reached.
		run.Status = entity.RunFailed
		run.Reason = fmt.Errorf("%w: all %d records failed: %v", ErrStoreUnavailable, storeFailures, lastStoreErr).Error()
		return
	}
	run.Status, run.Reason = uc.outcome(ctx, run, stream.Err())
}

func (uc *collectorUseCase) outcome(ctx context.Context, run *entity.CollectionRun, fetchErr error) (entity.RunStatus, string) {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return entity.RunPartial, ErrRunTimeout.Error()
		}
		return entity.RunPartial, err.Error()
	}

	var incomplete *FetchIncompleteError
	var fatal *FetchError
	switch {
	case fetchErr == nil:
		return entity.RunSucceeded, ""
	case errors.As(fetchErr, &incomplete):
		return entity.RunPartial, fetchErr.Error()
	case errors.As(fetchErr, &fatal) && run.Fetched == 0:
		return entity.RunFailed, fetchErr.Error()
	default:
		return entity.RunPartial, fetchErr.Error()
	}
}

// finalize persists the terminal state. It uses a fresh context so runs cut
// short by their deadline are still recorded.
func (uc *collectorUseCase) finalize(parent context.Context, run *entity.CollectionRun) {
	finishedAt := uc.now()
	run.FinishedAt = &finishedAt

	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), finalizeTimeout)
	defer cancel()

	if err := uc.runs.Finalize(ctx, run); err != nil {
		uc.logger.Error("Failed to finalize collection run", "run_id", run.ID, "error", err)
	}

	if run.Status == entity.RunSucceeded && uc.cooldownEnabled() {
		if err := uc.cooldown.MarkCollected(ctx, run.Keyword, uc.cfg.KeywordCooldown); err != nil {
			uc.logger.Warn("Failed to mark keyword as collected", "keyword", run.Keyword, "error", err)
		}
	}

	duration := finishedAt.Sub(run.StartedAt)
	metrics.RunsTotal.WithLabelValues(string(run.Status)).Inc()
	metrics.RunDuration.WithLabelValues(string(run.Status)).Observe(duration.Seconds())

	uc.logger.Info("Collection run finished",
		"run_id", run.ID,
		"keyword", run.Keyword,
		"status", run.Status,
		"reason", run.Reason,
		"fetched", run.Fetched,
		"normalized", run.Normalized,
		"stored", run.Stored,
		"failed", run.Failed,
		"pages_fetched", run.PagesFetched,
		"duration_ms", duration.Milliseconds(),
	)
}
