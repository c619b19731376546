package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepositoryStatus(t *testing.T) {
	pool, _ := setupPostgres(t)
	ctx := context.Background()

	repo, err := NewRepository(pool)
	require.NoError(t, err)

	require.NoError(t, repo.Ping(ctx))

	version, dirty, err := repo.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, version, int64(1))
	assert.False(t, dirty)

	_, ok, err := repo.ActiveJobs(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "river tables are only installed by the job runner")
}

func TestNewRepository_NilPool(t *testing.T) {
	_, err := NewRepository(nil)
	assert.Error(t, err)
}
