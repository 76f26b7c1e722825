package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/user/autolist-service/internal/entity"
	"github.com/user/autolist-service/internal/repository"
)

// scriptedSource serves pre-built pages. errs[page] holds errors returned in
// order before the page succeeds; a page with more errors than attempts never
// succeeds.
type scriptedSource struct {
	mu       sync.Mutex
	pages    map[int][]entity.RawListing
	lastPage int
	errs     map[int][]error
	calls    map[int]int
	delay    time.Duration
}

func newScriptedSource(lastPage int) *scriptedSource {
	return &scriptedSource{
		pages:    map[int][]entity.RawListing{},
		lastPage: lastPage,
		errs:     map[int][]error{},
		calls:    map[int]int{},
	}
}

func (s *scriptedSource) Name() string { return "test" }

func (s *scriptedSource) FetchPage(ctx context.Context, keyword string, page int) (*entity.ListingPage, error) {
	s.mu.Lock()
	s.calls[page]++
	call := s.calls[page]
	errs := s.errs[page]
	listings := s.pages[page]
	s.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if call <= len(errs) {
		return nil, errs[call-1]
	}
	return &entity.ListingPage{Page: page, Listings: listings, HasMore: page < s.lastPage}, nil
}

func (s *scriptedSource) callsFor(page int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[page]
}

func (s *scriptedSource) totalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}

func listing(page int, fields map[string]any) entity.RawListing {
	payload, err := json.Marshal(fields)
	if err != nil {
		panic(err)
	}
	return entity.RawListing{
		Source:    "test",
		Keyword:   "wireless mouse",
		Page:      page,
		Payload:   payload,
		FetchedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

// validListings builds n listings with distinct ids for a page.
func validListings(page, n int) []entity.RawListing {
	out := make([]entity.RawListing, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, listing(page, map[string]any{
			"asin":  fmt.Sprintf("B%03d%03d", page, i),
			"title": fmt.Sprintf("Wireless Mouse %d-%d", page, i),
			"price": "$19.99",
			"url":   fmt.Sprintf("https://www.amazon.com/dp/B%03d%03d/ref=sr_1_%d", page, i, i),
		}))
	}
	return out
}

func unavailable() error {
	return &repository.SourceError{Kind: repository.ErrSourceUnavailable, StatusCode: 503}
}

type fakeProductStore struct {
	mu       sync.Mutex
	products map[string]*entity.CanonicalProduct
	order    []string
	err      error
	failFor  map[string]bool
	onUpsert func(ctx context.Context)
}

func newFakeProductStore() *fakeProductStore {
	return &fakeProductStore{products: map[string]*entity.CanonicalProduct{}, failFor: map[string]bool{}}
}

func (f *fakeProductStore) Upsert(ctx context.Context, p *entity.CanonicalProduct, runID uuid.UUID) (*entity.UpsertResult, error) {
	if f.onUpsert != nil {
		f.onUpsert(ctx)
	}
	if err := ctx.Err(); err != nil {
		return nil, &repository.StoreError{Op: "upsert", Err: err}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil || f.failFor[p.ExternalID] {
		return nil, &repository.StoreError{Op: "upsert", Err: fmt.Errorf("connection refused")}
	}

	f.order = append(f.order, p.ExternalID)
	if existing, ok := f.products[p.ExternalID]; ok {
		stored := *p
		stored.FirstSeenAt = existing.FirstSeenAt
		f.products[p.ExternalID] = &stored
		return &entity.UpsertResult{Outcome: entity.UpsertUpdated, FirstSeenAt: stored.FirstSeenAt}, nil
	}
	stored := *p
	stored.FirstSeenAt = p.CollectedAt
	f.products[p.ExternalID] = &stored
	return &entity.UpsertResult{Outcome: entity.UpsertInserted, FirstSeenAt: stored.FirstSeenAt}, nil
}

func (f *fakeProductStore) FindByExternalID(ctx context.Context, externalID string) (*entity.CanonicalProduct, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[externalID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return p, nil
}

func (f *fakeProductStore) List(ctx context.Context, keyword string, limit int) ([]*entity.CanonicalProduct, error) {
	return nil, nil
}

func (f *fakeProductStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.products)
}

type fakeRunStore struct {
	mu        sync.Mutex
	created   []*entity.CollectionRun
	finalized []entity.CollectionRun
	createErr error
	// finalErr is the context error seen while finalizing.
	finalErr error
}

func (f *fakeRunStore) Create(ctx context.Context, run *entity.CollectionRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, run)
	return nil
}

func (f *fakeRunStore) Finalize(ctx context.Context, run *entity.CollectionRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalErr = ctx.Err()
	f.finalized = append(f.finalized, *run)
	return nil
}

func (f *fakeRunStore) FindByID(ctx context.Context, id uuid.UUID) (*entity.CollectionRun, error) {
	return nil, repository.ErrNotFound
}

func (f *fakeRunStore) ListRecent(ctx context.Context, keyword string, limit int) ([]*entity.CollectionRun, error) {
	return nil, nil
}

type fakeCooldown struct {
	mu      sync.Mutex
	marked  map[string]time.Duration
	cleared []string
	err     error
}

func newFakeCooldown() *fakeCooldown {
	return &fakeCooldown{marked: map[string]time.Duration{}}
}

func (f *fakeCooldown) MarkCollected(ctx context.Context, keyword string, expiry time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked[keyword] = expiry
	return nil
}

func (f *fakeCooldown) IsRecentlyCollected(ctx context.Context, keyword string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	_, ok := f.marked[keyword]
	return ok, nil
}

func (f *fakeCooldown) Clear(ctx context.Context, keyword string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.marked, keyword)
	f.cleared = append(f.cleared, keyword)
	return nil
}

type countingLimiter struct {
	mu    sync.Mutex
	waits int
	err   error
}

func (l *countingLimiter) Wait(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.waits++
	return l.err
}

func fastFetcherConfig() FetcherConfig {
	return FetcherConfig{
		MaxRetries:  2,
		BackoffBase: time.Millisecond,
		BackoffMax:  4 * time.Millisecond,
		PageTimeout: time.Second,
	}
}
