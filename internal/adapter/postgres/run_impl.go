package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/autolist-service/internal/entity"
	"github.com/user/autolist-service/internal/repository"
)

// RunRepoImpl stores collection runs in PostgreSQL.
type RunRepoImpl struct {
	db *pgxpool.Pool
}

// NewRunRepo creates a new instance of RunRepoImpl.
func NewRunRepo(db *pgxpool.Pool) *RunRepoImpl {
	return &RunRepoImpl{db: db}
}

const selectRunColumns = `
	SELECT id, keyword, source, status, reason, fetched, normalized, stored, failed,
	       inserted, updated, skipped, pages_fetched, started_at, finished_at
	FROM collection_runs
`

// Create inserts a run in its initial state.
func (r *RunRepoImpl) Create(ctx context.Context, run *entity.CollectionRun) error {
	query := `
		INSERT INTO collection_runs (id, keyword, source, status, started_at)
		VALUES ($1, $2, $3, $4, $5);
	`
	_, err := r.db.Exec(ctx, query, run.ID, run.Keyword, run.Source, string(run.Status), run.StartedAt)
	if err != nil {
		return &repository.StoreError{Op: "create run", Err: err}
	}
	return nil
}

// Finalize writes the terminal state. Rows that are already terminal are left untouched.
func (r *RunRepoImpl) Finalize(ctx context.Context, run *entity.CollectionRun) error {
	query := `
		UPDATE collection_runs SET
			status = $2, reason = $3,
			fetched = $4, normalized = $5, stored = $6, failed = $7,
			inserted = $8, updated = $9, skipped = $10, pages_fetched = $11,
			finished_at = $12
		WHERE id = $1 AND status NOT IN ('succeeded', 'partial', 'failed');
	`
	tag, err := r.db.Exec(ctx, query,
		run.ID,
		string(run.Status),
		run.Reason,
		run.Fetched,
		run.Normalized,
		run.Stored,
		run.Failed,
		run.Inserted,
		run.Updated,
		run.Skipped,
		run.PagesFetched,
		run.FinishedAt,
	)
	if err != nil {
		return &repository.StoreError{Op: "finalize run", Err: err}
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	if _, err := r.FindByID(ctx, run.ID); err != nil {
		return err
	}
	return repository.ErrRunFinalized
}

// FindByID retrieves a run by its ID.
func (r *RunRepoImpl) FindByID(ctx context.Context, id uuid.UUID) (*entity.CollectionRun, error) {
	run, err := scanRun(r.db.QueryRow(ctx, selectRunColumns+` WHERE id = $1;`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, &repository.StoreError{Op: "find run", Err: err}
	}
	return run, nil
}

// ListRecent retrieves runs ordered by start time, newest first.
func (r *RunRepoImpl) ListRecent(ctx context.Context, keyword string, limit int) ([]*entity.CollectionRun, error) {
	query := selectRunColumns + `
		WHERE ($1 = '' OR keyword = $1)
		ORDER BY started_at DESC
		LIMIT $2;
	`
	rows, err := r.db.Query(ctx, query, keyword, limitOrAll(limit))
	if err != nil {
		return nil, &repository.StoreError{Op: "list runs", Err: err}
	}
	defer rows.Close()

	var runs []*entity.CollectionRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, &repository.StoreError{Op: "list runs", Err: err}
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, &repository.StoreError{Op: "list runs", Err: err}
	}
	return runs, nil
}

func scanRun(row pgx.Row) (*entity.CollectionRun, error) {
	var run entity.CollectionRun
	var status string
	if err := row.Scan(
		&run.ID,
		&run.Keyword,
		&run.Source,
		&status,
		&run.Reason,
		&run.Fetched,
		&run.Normalized,
		&run.Stored,
		&run.Failed,
		&run.Inserted,
		&run.Updated,
		&run.Skipped,
		&run.PagesFetched,
		&run.StartedAt,
		&run.FinishedAt,
	); err != nil {
		return nil, err
	}
	run.Status = entity.RunStatus(status)
	return &run, nil
}
