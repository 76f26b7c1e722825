package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/user/autolist-service/internal/entity"
	"github.com/user/autolist-service/internal/repository"
)

// Observation records one sighting of a product during a run.
type Observation struct {
	RunID      uuid.UUID
	ExternalID string
	Keyword    string
	Price      *entity.Money
	ObservedAt time.Time
}

// ProductRepoImpl is an in-process ProductRepository used for local runs and tests.
type ProductRepoImpl struct {
	mu           sync.RWMutex
	products     map[string]*entity.CanonicalProduct
	observations []Observation
}

// NewProductRepo creates an empty in-memory product store.
func NewProductRepo() *ProductRepoImpl {
	return &ProductRepoImpl{products: make(map[string]*entity.CanonicalProduct)}
}

// Upsert inserts or refreshes a product under a single lock, so concurrent
// writers for the same external ID never create two entries.
func (r *ProductRepoImpl) Upsert(ctx context.Context, product *entity.CanonicalProduct, runID uuid.UUID) (*entity.UpsertResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, &repository.StoreError{Op: "upsert product", Err: err}
	}

	stored := cloneProduct(product)
	if stored.CollectedAt.IsZero() {
		stored.CollectedAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	outcome := entity.UpsertInserted
	if existing, ok := r.products[stored.ExternalID]; ok {
		outcome = entity.UpsertUpdated
		stored.FirstSeenAt = existing.FirstSeenAt
	} else {
		stored.FirstSeenAt = stored.CollectedAt
	}
	r.products[stored.ExternalID] = stored
	r.observations = append(r.observations, Observation{
		RunID:      runID,
		ExternalID: stored.ExternalID,
		Keyword:    stored.Keyword,
		Price:      cloneMoney(stored.Price),
		ObservedAt: stored.CollectedAt,
	})

	return &entity.UpsertResult{Outcome: outcome, FirstSeenAt: stored.FirstSeenAt}, nil
}

// FindByExternalID returns a copy of the stored product.
func (r *ProductRepoImpl) FindByExternalID(ctx context.Context, externalID string) (*entity.CanonicalProduct, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[externalID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneProduct(p), nil
}

// List returns products newest first. An empty keyword matches everything.
func (r *ProductRepoImpl) List(ctx context.Context, keyword string, limit int) ([]*entity.CanonicalProduct, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*entity.CanonicalProduct, 0, len(r.products))
	for _, p := range r.products {
		if keyword != "" && p.Keyword != keyword {
			continue
		}
		out = append(out, cloneProduct(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CollectedAt.Equal(out[j].CollectedAt) {
			return out[i].ExternalID < out[j].ExternalID
		}
		return out[i].CollectedAt.After(out[j].CollectedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Observations returns every recorded sighting of a product, oldest first.
func (r *ProductRepoImpl) Observations(externalID string) []Observation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Observation
	for _, o := range r.observations {
		if o.ExternalID == externalID {
			o.Price = cloneMoney(o.Price)
			out = append(out, o)
		}
	}
	return out
}

// cloneProduct copies p including its price, so callers never share state with the store.
func cloneProduct(p *entity.CanonicalProduct) *entity.CanonicalProduct {
	c := *p
	c.Price = cloneMoney(p.Price)
	return &c
}

func cloneMoney(m *entity.Money) *entity.Money {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}
