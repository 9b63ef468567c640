package postgres

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v4/pgxpool"

	"vendor-billing/internal/domain"
	"vendor-billing/internal/domain/model"
	"vendor-billing/internal/domain/ports/repository"
)

var _ repository.VendorRepository = (*PostgresVendorRepo)(nil)

// TokenCipher seals card tokens; the vendor id is the associated data.
type TokenCipher interface {
	Encrypt(plaintext, associatedData string) (string, error)
	Decrypt(ciphertext, associatedData string) (string, error)
}

const vendorColumns = `id, email, display_name, phone_number, role, card_token_enc, locale, created_at, updated_at`

type PostgresVendorRepo struct {
	pool   *pgxpool.Pool
	cipher TokenCipher
}

func NewPostgresVendorRepo(pool *pgxpool.Pool, cipher TokenCipher) *PostgresVendorRepo {
	return &PostgresVendorRepo{pool: pool, cipher: cipher}
}

func (r *PostgresVendorRepo) Save(ctx context.Context, tx repository.Tx, v *model.Vendor) error {
	const q = `
INSERT INTO vendors (` + vendorColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO UPDATE SET
  email=$2, display_name=$3, phone_number=$4, role=$5, card_token_enc=$6, locale=$7, updated_at=$9;`

	enc, err := r.seal(v.ID, v.CardToken)
	if err != nil {
		return err
	}
	_, err = execSQL(ctx, r.pool, tx, q,
		v.ID, strings.ToLower(v.Email), v.DisplayName, v.PhoneNumber, string(v.Role), enc, v.Locale, v.CreatedAt, v.UpdatedAt)
	return mapErr(err)
}

func (r *PostgresVendorRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Vendor, error) {
	const q = `SELECT ` + vendorColumns + ` FROM vendors WHERE id=$1;`
	return r.queryOne(ctx, tx, q, id)
}

func (r *PostgresVendorRepo) FindByEmail(ctx context.Context, tx repository.Tx, email string) (*model.Vendor, error) {
	const q = `SELECT ` + vendorColumns + ` FROM vendors WHERE email=$1;`
	return r.queryOne(ctx, tx, q, strings.ToLower(strings.TrimSpace(email)))
}

func (r *PostgresVendorRepo) SaveCardToken(ctx context.Context, tx repository.Tx, vendorID, token string) error {
	enc, err := r.seal(vendorID, token)
	if err != nil {
		return err
	}
	cmd, err := execSQL(ctx, r.pool, tx, `UPDATE vendors SET card_token_enc=$2, updated_at=NOW() WHERE id=$1;`, vendorID, enc)
	if err != nil {
		return mapErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostgresVendorRepo) seal(vendorID, token string) (string, error) {
	if token == "" {
		return "", nil
	}
	if r.cipher == nil {
		return "", domain.ErrInvalidArgument
	}
	enc, err := r.cipher.Encrypt(token, vendorID)
	if err != nil {
		return "", domain.ErrOperationFailed
	}
	return enc, nil
}

func (r *PostgresVendorRepo) queryOne(ctx context.Context, tx repository.Tx, sql string, args ...any) (*model.Vendor, error) {
	row, err := pickRow(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, err
	}
	var v model.Vendor
	var role, enc string
	if err := row.Scan(&v.ID, &v.Email, &v.DisplayName, &v.PhoneNumber, &role, &enc, &v.Locale, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return nil, scanErr(err)
	}
	v.Role = model.Role(role)
	if enc != "" && r.cipher != nil {
		tok, err := r.cipher.Decrypt(enc, v.ID)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		v.CardToken = tok
	}
	return &v, nil
}
