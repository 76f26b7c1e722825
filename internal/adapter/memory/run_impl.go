package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/user/autolist-service/internal/entity"
	"github.com/user/autolist-service/internal/repository"
)

// RunRepoImpl keeps collection runs in memory.
type RunRepoImpl struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]entity.CollectionRun
}

// NewRunRepo creates an empty in-memory run store.
func NewRunRepo() *RunRepoImpl {
	return &RunRepoImpl{runs: make(map[uuid.UUID]entity.CollectionRun)}
}

func (r *RunRepoImpl) Create(ctx context.Context, run *entity.CollectionRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = *run
	return nil
}

func (r *RunRepoImpl) Finalize(ctx context.Context, run *entity.CollectionRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.runs[run.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if existing.Status.IsTerminal() {
		return repository.ErrRunFinalized
	}
	stored := *run
	if run.FinishedAt != nil {
		finishedAt := *run.FinishedAt
		stored.FinishedAt = &finishedAt
	}
	r.runs[run.ID] = stored
	return nil
}

func (r *RunRepoImpl) FindByID(ctx context.Context, id uuid.UUID) (*entity.CollectionRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.runs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &run, nil
}

func (r *RunRepoImpl) ListRecent(ctx context.Context, keyword string, limit int) ([]*entity.CollectionRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*entity.CollectionRun, 0, len(r.runs))
	for _, run := range r.runs {
		if keyword != "" && run.Keyword != keyword {
			continue
		}
		found := run
		out = append(out, &found)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
