// Package brand gates every brand-scoped operation behind a live tenant
// check against the companies table.
package brand

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/apercky/documinds-sub000/internal/domain"
	"github.com/apercky/documinds-sub000/internal/repository"
)

// Resolver maps an opaque brand code to a validated, active tenant record.
type Resolver struct {
	repo   repository.BrandRepository
	logger *zap.Logger
}

// NewResolver creates a brand resolver.
func NewResolver(repo repository.BrandRepository, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.L()
	}
	return &Resolver{repo: repo, logger: logger}
}

// Resolve returns the active company for brandCode, or (nil, nil) when the
// code is unknown or the tenant is inactive. Absence is an expected
// condition for misconfigured tenants, not an error.
func (r *Resolver) Resolve(ctx context.Context, brandCode string) (*domain.Company, error) {
	cleaned := strings.TrimSpace(brandCode)
	if cleaned == "" {
		return nil, nil
	}

	company, err := r.repo.GetByCode(ctx, cleaned)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug("brand not found", zap.String("brand", cleaned))
			return nil, nil
		}
		r.logger.Error("brand lookup failed", zap.String("brand", cleaned), zap.Error(err))
		return nil, fmt.Errorf("resolve brand: %w", err)
	}

	if !company.IsActive {
		r.logger.Warn("inactive brand rejected", zap.String("brand", cleaned))
		return nil, nil
	}
	return &company, nil
}
