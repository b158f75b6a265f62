package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-asset/pkg/simpleasset"
	"github.com/tendant/simple-asset/pkg/simpleasset/repo/postgres"
)

// newTestPool connects to TEST_DATABASE_URL and applies the schema. Tests
// are skipped when no database is configured.
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres test in short mode")
	}
	connString := os.Getenv("TEST_DATABASE_URL")
	if connString == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, connString)
	require.NoError(t, err, "Failed to connect to test database")
	require.NoError(t, pool.Ping(ctx), "Failed to ping test database")
	require.NoError(t, postgres.Migrate(ctx, pool))
	require.NoError(t, postgres.Migrate(ctx, pool), "Migrate must be idempotent")

	t.Cleanup(pool.Close)
	return pool
}

// withRollback runs fn in a unit of work that is always rolled back, so
// tests leave no rows behind.
func withRollback(t *testing.T, repo *postgres.Repository, fn func(uow simpleasset.UnitOfWork)) {
	t.Helper()
	ctx := context.Background()
	uow, err := repo.Begin(ctx)
	require.NoError(t, err)
	defer func() {
		_ = uow.Rollback(ctx)
	}()
	fn(uow)
}

func newAsset(name string, public bool) *simpleasset.Asset {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &simpleasset.Asset{
		Kind:        simpleasset.AssetKindPhoto,
		Filename:    name,
		ContentType: "image/jpeg",
		Size:        2048,
		DateTaken:   now.Add(-time.Hour),
		IsPublic:    public,
		ObjectKey:   "user/42/" + name,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestRepository_CreateAndGet(t *testing.T) {
	repo := postgres.New(newTestPool(t))
	ctx := context.Background()

	withRollback(t, repo, func(uow simpleasset.UnitOfWork) {
		asset := newAsset("beach.jpg", true)
		require.NoError(t, repo.CreateAsset(ctx, uow, asset, 42))
		assert.NotZero(t, asset.ID)

		got, err := repo.GetVisibleAsset(ctx, uow, asset.ID)
		require.NoError(t, err)
		assert.Equal(t, asset.Filename, got.Filename)
		assert.Equal(t, asset.ObjectKey, got.ObjectKey)
		assert.Equal(t, simpleasset.AssetKindPhoto, got.Kind)
		assert.True(t, asset.DateTaken.Equal(got.DateTaken))

		rel, err := repo.GetOwnershipRelation(ctx, uow, asset.ID, 42)
		require.NoError(t, err)
		assert.Equal(t, int64(42), rel.OwnerID)

		_, err = repo.GetOwnershipRelation(ctx, uow, asset.ID, 7)
		assert.ErrorIs(t, err, simpleasset.ErrRelationNotFound)

		private := newAsset("private.jpg", false)
		require.NoError(t, repo.CreateAsset(ctx, uow, private, 42))
		_, err = repo.GetVisibleAsset(ctx, uow, private.ID)
		assert.ErrorIs(t, err, simpleasset.ErrAssetNotFound)
		_, err = repo.GetAnyAsset(ctx, uow, private.ID)
		assert.NoError(t, err)
	})
}

func TestRepository_ListOwnerAssets(t *testing.T) {
	repo := postgres.New(newTestPool(t))
	ctx := context.Background()

	withRollback(t, repo, func(uow simpleasset.UnitOfWork) {
		// An owner id unlikely to collide with rows left by other runs
		owner := time.Now().UnixNano()

		var ids []int64
		for _, name := range []string{"a.jpg", "b.jpg", "c.jpg"} {
			asset := newAsset(name, true)
			require.NoError(t, repo.CreateAsset(ctx, uow, asset, owner))
			ids = append(ids, asset.ID)
		}
		require.NoError(t, repo.ToggleSoftDelete(ctx, uow, ids[0], true))

		assets, total, err := repo.ListOwnerAssets(ctx, uow, owner, 0, 10)
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		require.Len(t, assets, 2)
		assert.Equal(t, ids[1], assets[0].ID)
		assert.Equal(t, ids[2], assets[1].ID)

		assets, total, err = repo.ListOwnerAssets(ctx, uow, owner, 1, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		require.Len(t, assets, 1)
		assert.Equal(t, ids[2], assets[0].ID)
	})
}

func TestRepository_Delete(t *testing.T) {
	repo := postgres.New(newTestPool(t))
	ctx := context.Background()

	withRollback(t, repo, func(uow simpleasset.UnitOfWork) {
		asset := newAsset("beach.jpg", true)
		require.NoError(t, repo.CreateAsset(ctx, uow, asset, 42))

		require.NoError(t, repo.ToggleSoftDelete(ctx, uow, asset.ID, true))
		got, err := repo.GetAnyAsset(ctx, uow, asset.ID)
		require.NoError(t, err)
		assert.True(t, got.IsDeleted)

		require.NoError(t, repo.HardDeleteAsset(ctx, uow, asset.ID))
		_, err = repo.GetAnyAsset(ctx, uow, asset.ID)
		assert.ErrorIs(t, err, simpleasset.ErrAssetNotFound)
		_, err = repo.GetOwnershipRelation(ctx, uow, asset.ID, 42)
		assert.ErrorIs(t, err, simpleasset.ErrRelationNotFound)

		assert.ErrorIs(t, repo.HardDeleteAsset(ctx, uow, asset.ID), simpleasset.ErrAssetNotFound)
		assert.ErrorIs(t, repo.ToggleSoftDelete(ctx, uow, asset.ID, true), simpleasset.ErrAssetNotFound)
	})
}

func TestRepository_RollbackDiscardsWrites(t *testing.T) {
	repo := postgres.New(newTestPool(t))
	ctx := context.Background()

	var id int64
	withRollback(t, repo, func(uow simpleasset.UnitOfWork) {
		asset := newAsset("discarded.jpg", true)
		require.NoError(t, repo.CreateAsset(ctx, uow, asset, 42))
		id = asset.ID
	})

	withRollback(t, repo, func(uow simpleasset.UnitOfWork) {
		_, err := repo.GetAnyAsset(ctx, uow, id)
		assert.ErrorIs(t, err, simpleasset.ErrAssetNotFound)
	})
}

func TestRepository_RejectsForeignUnitOfWork(t *testing.T) {
	repo := postgres.New(nil)

	_, err := repo.GetAnyAsset(context.Background(), fakeUnitOfWork{}, 1)
	assert.Error(t, err)
}

type fakeUnitOfWork struct{}

func (fakeUnitOfWork) Commit(context.Context) error   { return nil }
func (fakeUnitOfWork) Rollback(context.Context) error { return nil }
