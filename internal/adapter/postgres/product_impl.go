package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/user/autolist-service/internal/entity"
	"github.com/user/autolist-service/internal/repository"
)

// ProductRepoImpl provides a concrete implementation for the ProductRepository interface using PostgreSQL.
type ProductRepoImpl struct {
	db *pgxpool.Pool
}

// NewProductRepo creates a new instance of ProductRepoImpl.
func NewProductRepo(db *pgxpool.Pool) *ProductRepoImpl {
	return &ProductRepoImpl{db: db}
}

const upsertProductQuery = `
	INSERT INTO products (external_id, source, title, price_amount, price_currency, url, image_url, keyword, collected_at, first_seen_at)
	VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9, $9)
	ON CONFLICT (external_id) DO UPDATE SET
		source = EXCLUDED.source,
		title = EXCLUDED.title,
		price_amount = EXCLUDED.price_amount,
		price_currency = EXCLUDED.price_currency,
		url = EXCLUDED.url,
		image_url = EXCLUDED.image_url,
		keyword = EXCLUDED.keyword,
		collected_at = EXCLUDED.collected_at
	RETURNING first_seen_at, (xmax = 0) AS inserted;
`

const insertObservationQuery = `
	INSERT INTO product_observations (run_id, external_id, keyword, price_amount, price_currency, observed_at)
	VALUES ($1, $2, $3, $4::numeric, $5, $6);
`

const selectProductColumns = `
	SELECT external_id, source, title, price_amount::text, price_currency, url, image_url, keyword, collected_at, first_seen_at
	FROM products
`

// Upsert writes the product row and its observation in one transaction.
// The row lock taken by ON CONFLICT serializes concurrent writers per external ID.
func (r *ProductRepoImpl) Upsert(ctx context.Context, product *entity.CanonicalProduct, runID uuid.UUID) (*entity.UpsertResult, error) {
	amount, currency := priceParams(product.Price)

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, &repository.StoreError{Op: "upsert product", Err: err}
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	batch.Queue(upsertProductQuery,
		product.ExternalID,
		product.Source,
		product.Title,
		amount,
		currency,
		product.URL,
		product.ImageURL,
		product.Keyword,
		product.CollectedAt,
	)
	batch.Queue(insertObservationQuery,
		runID,
		product.ExternalID,
		product.Keyword,
		amount,
		currency,
		product.CollectedAt,
	)

	br := tx.SendBatch(ctx, batch)
	var result entity.UpsertResult
	var inserted bool
	if err := br.QueryRow().Scan(&result.FirstSeenAt, &inserted); err != nil {
		br.Close()
		return nil, &repository.StoreError{Op: "upsert product", Err: err}
	}
	if _, err := br.Exec(); err != nil {
		br.Close()
		return nil, &repository.StoreError{Op: "insert observation", Err: err}
	}
	if err := br.Close(); err != nil {
		return nil, &repository.StoreError{Op: "upsert product", Err: err}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, &repository.StoreError{Op: "commit product", Err: err}
	}

	result.Outcome = entity.UpsertUpdated
	if inserted {
		result.Outcome = entity.UpsertInserted
	}
	return &result, nil
}

// FindByExternalID retrieves a single product from the database.
func (r *ProductRepoImpl) FindByExternalID(ctx context.Context, externalID string) (*entity.CanonicalProduct, error) {
	row := r.db.QueryRow(ctx, selectProductColumns+` WHERE external_id = $1;`, externalID)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, &repository.StoreError{Op: "find product", Err: err}
	}
	return p, nil
}

// List retrieves products ordered by collected_at, newest first.
func (r *ProductRepoImpl) List(ctx context.Context, keyword string, limit int) ([]*entity.CanonicalProduct, error) {
	query := selectProductColumns + `
		WHERE ($1 = '' OR keyword = $1)
		ORDER BY collected_at DESC, external_id
		LIMIT $2;
	`
	rows, err := r.db.Query(ctx, query, keyword, limitOrAll(limit))
	if err != nil {
		return nil, &repository.StoreError{Op: "list products", Err: err}
	}
	defer rows.Close()

	var products []*entity.CanonicalProduct
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, &repository.StoreError{Op: "list products", Err: err}
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, &repository.StoreError{Op: "list products", Err: err}
	}
	return products, nil
}

func scanProduct(row pgx.Row) (*entity.CanonicalProduct, error) {
	var p entity.CanonicalProduct
	var amount, currency *string
	if err := row.Scan(
		&p.ExternalID,
		&p.Source,
		&p.Title,
		&amount,
		&currency,
		&p.URL,
		&p.ImageURL,
		&p.Keyword,
		&p.CollectedAt,
		&p.FirstSeenAt,
	); err != nil {
		return nil, err
	}

	if amount != nil {
		d, err := decimal.NewFromString(*amount)
		if err != nil {
			return nil, fmt.Errorf("parse price_amount %q: %w", *amount, err)
		}
		p.Price = &entity.Money{Amount: d}
		if currency != nil {
			p.Price.Currency = *currency
		}
	}
	return &p, nil
}

func priceParams(price *entity.Money) (amount, currency *string) {
	if price == nil {
		return nil, nil
	}
	a := price.Amount.StringFixed(2)
	c := price.Currency
	return &a, &c
}

// limitOrAll maps a non-positive limit to NULL, which Postgres treats as no limit.
func limitOrAll(limit int) *int {
	if limit <= 0 {
		return nil
	}
	return &limit
}
