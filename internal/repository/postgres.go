package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/apercky/documinds-sub000/internal/domain"
)

// Compile-time interface assertions.
var (
	_ BrandRepository   = (*PostgresBrandRepo)(nil)
	_ SettingRepository = (*PostgresSettingRepo)(nil)
)

// PostgresBrandRepo implements BrandRepository on pgx.
type PostgresBrandRepo struct {
	db *pgxpool.Pool
}

func NewPostgresBrandRepo(pool *pgxpool.Pool) *PostgresBrandRepo {
	return &PostgresBrandRepo{db: pool}
}

const getCompanyByCodeSQL = `
SELECT id, name, brand_code, description, is_active, created_at, updated_at
FROM companies
WHERE brand_code = $1
LIMIT 1`

func (r *PostgresBrandRepo) GetByCode(ctx context.Context, brandCode string) (domain.Company, error) {
	var (
		company     domain.Company
		description sql.NullString
	)
	if err := r.db.QueryRow(ctx, getCompanyByCodeSQL, brandCode).Scan(
		&company.ID,
		&company.Name,
		&company.BrandCode,
		&description,
		&company.IsActive,
		&company.CreatedAt,
		&company.UpdatedAt,
	); err != nil {
		return domain.Company{}, fmt.Errorf("get company: %w", err)
	}
	company.Description = description.String
	return company, nil
}

// The no-op conflict update keeps RETURNING populated when another instance
// seeded the same brand first; the winner's row comes back either way.
const insertCompanySQL = `
INSERT INTO companies (id, name, brand_code, description, is_active)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (brand_code) DO UPDATE SET brand_code = EXCLUDED.brand_code
RETURNING id, name, brand_code, description, is_active, created_at, updated_at`

func (r *PostgresBrandRepo) Create(ctx context.Context, company domain.Company) (domain.Company, error) {
	var (
		inserted    domain.Company
		description sql.NullString
	)
	if err := r.db.QueryRow(ctx, insertCompanySQL,
		company.ID,
		company.Name,
		company.BrandCode,
		nullableString(company.Description),
		company.IsActive,
	).Scan(
		&inserted.ID,
		&inserted.Name,
		&inserted.BrandCode,
		&description,
		&inserted.IsActive,
		&inserted.CreatedAt,
		&inserted.UpdatedAt,
	); err != nil {
		return domain.Company{}, fmt.Errorf("create company: %w", err)
	}
	inserted.Description = description.String
	return inserted, nil
}

// PostgresSettingRepo implements SettingRepository on pgx.
type PostgresSettingRepo struct {
	db *pgxpool.Pool
}

func NewPostgresSettingRepo(pool *pgxpool.Pool) *PostgresSettingRepo {
	return &PostgresSettingRepo{db: pool}
}

const upsertSettingSQL = `
INSERT INTO brand_settings (id, brand_code, setting_key, encrypted_value, plain_value, is_encrypted, created_by, updated_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7, $8, $8)
ON CONFLICT (brand_code, setting_key) DO UPDATE SET
	encrypted_value = EXCLUDED.encrypted_value,
	plain_value = EXCLUDED.plain_value,
	is_encrypted = EXCLUDED.is_encrypted,
	updated_by = EXCLUDED.updated_by,
	updated_at = EXCLUDED.updated_at
RETURNING id, brand_code, setting_key, encrypted_value, plain_value, is_encrypted, created_by, updated_by, created_at, updated_at`

func (r *PostgresSettingRepo) Upsert(ctx context.Context, setting domain.Setting) (domain.Setting, error) {
	row := r.db.QueryRow(ctx, upsertSettingSQL,
		setting.ID,
		setting.BrandCode,
		string(setting.Key),
		setting.EncryptedValue,
		setting.PlainValue,
		setting.IsEncrypted,
		setting.UpdatedBy,
		time.Now().UTC(),
	)
	stored, err := scanSetting(row)
	if err != nil {
		return domain.Setting{}, fmt.Errorf("upsert setting: %w", err)
	}
	return stored, nil
}

const getSettingSQL = `
SELECT id, brand_code, setting_key, encrypted_value, plain_value, is_encrypted, created_by, updated_by, created_at, updated_at
FROM brand_settings
WHERE brand_code = $1 AND setting_key = $2
LIMIT 1`

func (r *PostgresSettingRepo) Get(ctx context.Context, brandCode string, key domain.SettingKey) (domain.Setting, error) {
	row := r.db.QueryRow(ctx, getSettingSQL, brandCode, string(key))
	setting, err := scanSetting(row)
	if err != nil {
		return domain.Setting{}, fmt.Errorf("get setting: %w", err)
	}
	return setting, nil
}

const listSettingsSQL = `
SELECT id, brand_code, setting_key, encrypted_value, plain_value, is_encrypted, created_by, updated_by, created_at, updated_at
FROM brand_settings
WHERE brand_code = $1
ORDER BY setting_key`

func (r *PostgresSettingRepo) List(ctx context.Context, brandCode string) ([]domain.Setting, error) {
	rows, err := r.db.Query(ctx, listSettingsSQL, brandCode)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	var settings []domain.Setting
	for rows.Next() {
		setting, err := scanSetting(rows)
		if err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		settings = append(settings, setting)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settings: %w", err)
	}
	return settings, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSetting(row rowScanner) (domain.Setting, error) {
	var (
		setting   domain.Setting
		key       string
		encrypted sql.NullString
		plain     sql.NullString
	)
	if err := row.Scan(
		&setting.ID,
		&setting.BrandCode,
		&key,
		&encrypted,
		&plain,
		&setting.IsEncrypted,
		&setting.CreatedBy,
		&setting.UpdatedBy,
		&setting.CreatedAt,
		&setting.UpdatedAt,
	); err != nil {
		return domain.Setting{}, err
	}
	setting.Key = domain.SettingKey(key)
	if encrypted.Valid {
		value := encrypted.String
		setting.EncryptedValue = &value
	}
	if plain.Valid {
		value := plain.String
		setting.PlainValue = &value
	}
	return setting, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
