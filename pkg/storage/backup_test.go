package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yurykabanov/baqup/pkg/domain"
)

func openTestRepository(t *testing.T) *BackupRepository {
	db, err := Open(filepath.Join(t.TempDir(), "baqup.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewBackupRepository(db)
}

func record(container, instance string, success bool, at time.Time) domain.Backup {
	return domain.Backup{
		ContainerId:    "id-" + container,
		ContainerName:  container,
		TargetType:     string(domain.TargetPostgres),
		TargetInstance: instance,
		Schedule:       "daily",
		TriggeredAt:    at,
		FinishedAt:     at.Add(time.Minute),
		Success:        success,
		Stage:          string(domain.StageDone),
		Size:           1024,
		DurationMs:     60000,
	}
}

func TestBackupRepository_MigrateTwice(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "baqup.db"))
	require.NoError(t, err)
	defer db.Close()

	assert.NoError(t, Migrate(db))
}

func TestBackupRepository_CreateAndFindLastSuccessful(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 3, 0, 0, 0, time.UTC)

	first, err := repo.Create(ctx, record("app", "main", true, base))
	require.NoError(t, err)
	assert.NotZero(t, first.Id)

	_, err = repo.Create(ctx, record("app", "main", true, base.Add(24*time.Hour)))
	require.NoError(t, err)
	_, err = repo.Create(ctx, record("app", "main", false, base.Add(48*time.Hour)))
	require.NoError(t, err)
	_, err = repo.Create(ctx, record("api", "users", true, base))
	require.NoError(t, err)
	_, err = repo.Create(ctx, record("api", "orders", false, base))
	require.NoError(t, err)

	last, err := repo.FindLastSuccessful(ctx)
	require.NoError(t, err)
	require.Len(t, last, 2)

	assert.Equal(t, "api", last[0].ContainerName)
	assert.Equal(t, "users", last[0].TargetInstance)

	assert.Equal(t, "app", last[1].ContainerName)
	assert.True(t, last[1].Success)
	assert.True(t, base.Add(24*time.Hour).Equal(last[1].TriggeredAt))
	assert.Equal(t, int64(1024), last[1].Size)
}

func TestBackupRepository_FindRecent(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 3, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_, err := repo.Create(ctx, record("app", "main", i%2 == 0, base.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}

	recent, err := repo.FindRecent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.True(t, recent[0].Id > recent[1].Id)
}
