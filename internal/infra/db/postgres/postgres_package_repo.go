package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"vendor-billing/internal/domain"
	"vendor-billing/internal/domain/model"
	"vendor-billing/internal/domain/ports/repository"
)

// Ensure interface compliance
var _ repository.PackageRepository = (*PostgresPackageRepo)(nil)

const packageColumns = `id, name, description, price, currency, duration, duration_unit, product_limit,
  featured_products_limit, is_active, created_at, updated_at`

type PostgresPackageRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresPackageRepo(pool *pgxpool.Pool) *PostgresPackageRepo {
	return &PostgresPackageRepo{pool: pool}
}

func (r *PostgresPackageRepo) Save(ctx context.Context, tx repository.Tx, p *model.Package) error {
	const q = `
INSERT INTO packages (` + packageColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (id) DO UPDATE
  SET name                    = EXCLUDED.name,
      description             = EXCLUDED.description,
      price                   = EXCLUDED.price,
      currency                = EXCLUDED.currency,
      duration                = EXCLUDED.duration,
      duration_unit           = EXCLUDED.duration_unit,
      product_limit           = EXCLUDED.product_limit,
      featured_products_limit = EXCLUDED.featured_products_limit,
      is_active               = EXCLUDED.is_active,
      updated_at              = EXCLUDED.updated_at;`

	_, err := execSQL(ctx, r.pool, tx, q,
		p.ID, p.Name, p.Description, p.Price, p.Currency, p.Duration, string(p.DurationUnit),
		p.ProductLimit, p.FeaturedProductsLimit, p.IsActive, p.CreatedAt, p.UpdatedAt)
	return mapErr(err)
}

func (r *PostgresPackageRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Package, error) {
	const q = `SELECT ` + packageColumns + ` FROM packages WHERE id = $1;`
	return r.queryOne(ctx, tx, q, id)
}

func (r *PostgresPackageRepo) FindActiveByID(ctx context.Context, tx repository.Tx, id string) (*model.Package, error) {
	const q = `SELECT ` + packageColumns + ` FROM packages WHERE id = $1 AND is_active;`
	return r.queryOne(ctx, tx, q, id)
}

func (r *PostgresPackageRepo) ListActive(ctx context.Context, tx repository.Tx) ([]*model.Package, error) {
	const q = `SELECT ` + packageColumns + ` FROM packages WHERE is_active ORDER BY price ASC, name ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []*model.Package
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *PostgresPackageRepo) queryOne(ctx context.Context, tx repository.Tx, sql string, args ...any) (*model.Package, error) {
	row, err := pickRow(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, err
	}
	p, err := scanPackage(row)
	if err != nil {
		return nil, scanErr(err)
	}
	return p, nil
}

func scanPackage(row pgx.Row) (*model.Package, error) {
	var p model.Package
	var unit string
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Currency, &p.Duration, &unit,
		&p.ProductLimit, &p.FeaturedProductsLimit, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.DurationUnit = model.DurationUnit(unit)
	return &p, nil
}
