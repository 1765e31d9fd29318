// Package bootstrap seeds the minimum rows a fresh deployment needs.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/apercky/documinds-sub000/internal/config"
	"github.com/apercky/documinds-sub000/internal/domain"
	"github.com/apercky/documinds-sub000/internal/repository"
)

// EnsureDefaultBrand creates the configured default brand if missing.
func EnsureDefaultBrand(lc fx.Lifecycle, cfg config.Config, brands repository.BrandRepository, node *snowflake.Node, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return ensureDefaultBrand(ctx, cfg, brands, node, logger)
		},
	})
}

func ensureDefaultBrand(ctx context.Context, cfg config.Config, brands repository.BrandRepository, node *snowflake.Node, logger *zap.Logger) error {
	code := strings.TrimSpace(cfg.DefaultBrandCode)
	if code == "" {
		return fmt.Errorf("brand bootstrap missing DEFAULT_BRAND_CODE")
	}

	if _, err := brands.GetByCode(ctx, code); err == nil {
		return nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("bootstrap brand lookup: %w", err)
	}

	created, err := brands.Create(ctx, domain.Company{
		ID:        node.Generate().Int64(),
		Name:      cfg.DefaultBrandName,
		BrandCode: code,
		IsActive:  true,
	})
	if err != nil {
		return fmt.Errorf("bootstrap create brand: %w", err)
	}

	if logger != nil {
		logger.Info("bootstrap brand created",
			zap.String("brand_code", created.BrandCode),
			zap.Int64("company_id", created.ID),
		)
	}
	return nil
}
