package bootstrap

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/apercky/documinds-sub000/internal/config"
	"github.com/apercky/documinds-sub000/internal/domain"
)

// fakeBrandRepo mirrors the insert-or-return-winner semantics of the
// postgres repository: creating an existing code hands back the stored row.
type fakeBrandRepo struct {
	mu          sync.Mutex
	companies   map[string]domain.Company
	createCalls int
}

func newFakeBrandRepo() *fakeBrandRepo {
	return &fakeBrandRepo{companies: make(map[string]domain.Company)}
}

func (f *fakeBrandRepo) GetByCode(ctx context.Context, brandCode string) (domain.Company, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	company, ok := f.companies[brandCode]
	if !ok {
		return domain.Company{}, pgx.ErrNoRows
	}
	return company, nil
}

func (f *fakeBrandRepo) Create(ctx context.Context, company domain.Company) (domain.Company, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if existing, ok := f.companies[company.BrandCode]; ok {
		return existing, nil
	}
	company.CreatedAt = time.Now().UTC()
	company.UpdatedAt = company.CreatedAt
	f.companies[company.BrandCode] = company
	return company, nil
}

func seedConfig() config.Config {
	return config.Config{DefaultBrandCode: "2_20", DefaultBrandName: "Default Brand"}
}

func TestEnsureDefaultBrandCreatesWhenMissing(t *testing.T) {
	repo := newFakeBrandRepo()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	require.NoError(t, ensureDefaultBrand(context.Background(), seedConfig(), repo, node, zap.NewNop()))

	created, err := repo.GetByCode(context.Background(), "2_20")
	require.NoError(t, err)
	require.Equal(t, "Default Brand", created.Name)
	require.True(t, created.IsActive)
}

func TestEnsureDefaultBrandIsIdempotent(t *testing.T) {
	repo := newFakeBrandRepo()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	require.NoError(t, ensureDefaultBrand(context.Background(), seedConfig(), repo, node, zap.NewNop()))
	require.NoError(t, ensureDefaultBrand(context.Background(), seedConfig(), repo, node, zap.NewNop()))
	require.Equal(t, 1, repo.createCalls)
}

func TestEnsureDefaultBrandSurvivesSeedRace(t *testing.T) {
	// Another instance won the insert between our lookup and create; the
	// repository returns the winner's row and the seed must not fail.
	repo := newFakeBrandRepo()
	repo.companies["2_20"] = domain.Company{ID: 99, Name: "Winner", BrandCode: "2_20", IsActive: true}
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	_, createErr := repo.Create(context.Background(), domain.Company{
		ID:        node.Generate().Int64(),
		Name:      "Default Brand",
		BrandCode: "2_20",
		IsActive:  true,
	})
	require.NoError(t, createErr)

	stored, err := repo.GetByCode(context.Background(), "2_20")
	require.NoError(t, err)
	require.EqualValues(t, 99, stored.ID)
}

func TestEnsureDefaultBrandRequiresCode(t *testing.T) {
	repo := newFakeBrandRepo()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	err = ensureDefaultBrand(context.Background(), config.Config{}, repo, node, zap.NewNop())
	require.Error(t, err)
}
