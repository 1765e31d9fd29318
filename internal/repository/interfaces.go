package repository

import (
	"context"

	"github.com/apercky/documinds-sub000/internal/domain"
)

// BrandRepository exposes tenant lookups. Missing rows surface as
// pgx.ErrNoRows wrapped in the returned error.
type BrandRepository interface {
	GetByCode(ctx context.Context, brandCode string) (domain.Company, error)
	Create(ctx context.Context, company domain.Company) (domain.Company, error)
}

// SettingRepository persists brand configuration rows. Writes are keyed on
// (brand_code, setting_key) with upsert semantics.
type SettingRepository interface {
	Upsert(ctx context.Context, setting domain.Setting) (domain.Setting, error)
	Get(ctx context.Context, brandCode string, key domain.SettingKey) (domain.Setting, error)
	List(ctx context.Context, brandCode string) ([]domain.Setting, error)
}
