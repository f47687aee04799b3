package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yurykabanov/baqup/pkg/domain"
	"github.com/yurykabanov/baqup/pkg/state"
)

// region backupRepositoryMock
type backupRepositoryMock struct {
	mock.Mock
}

func (m *backupRepositoryMock) FindLastSuccessful(ctx context.Context) ([]domain.Backup, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Backup), args.Error(1)
}

// endregion

func TestBackupMetricHandler(t *testing.T) {
	logger, _ := test.NewNullLogger()
	repo := &backupRepositoryMock{}

	at := time.Date(2024, 3, 1, 3, 0, 0, 0, time.UTC)

	repo.On("FindLastSuccessful", mock.Anything).Return([]domain.Backup{{
		ContainerName:  "app",
		TargetType:     "postgres",
		TargetInstance: "main",
		Schedule:       "daily",
		TriggeredAt:    at,
		Success:        true,
		RemotePath:     "app/postgres-main/20240301T030000Z.sql.gz",
		Size:           2048,
		DurationMs:     1500,
	}}, nil)

	rec := httptest.NewRecorder()
	NewBackupMetricHandler(logger, repo).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics/backups", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body []backupMetricResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1)

	assert.Equal(t, "postgres-main", body[0].Target)
	assert.Equal(t, int64(2048), body[0].BackupSize)
	assert.Equal(t, "2.0 kB", body[0].BackupSizeHuman)
	assert.Equal(t, at.UnixNano()/1e6, body[0].LastSuccessfulAt)
	assert.Equal(t, int64(1500), body[0].LastCompletion)
}

func TestBackupMetricHandler_RepositoryError(t *testing.T) {
	logger, hook := test.NewNullLogger()
	repo := &backupRepositoryMock{}

	repo.On("FindLastSuccessful", mock.Anything).Return([]domain.Backup(nil), errors.New("database is locked"))

	rec := httptest.NewRecorder()
	NewBackupMetricHandler(logger, repo).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics/backups", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Unable to query last successful backups", hook.LastEntry().Message)
}

func TestTargetMetricHandler(t *testing.T) {
	logger, _ := test.NewNullLogger()
	now := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)

	store := state.New(10)
	store.Reconcile(now, []domain.ContainerBackupConfig{{
		ContainerID:   "c1",
		ContainerName: "app",
		Enabled:       true,
		Targets:       []domain.TargetConfig{{Type: domain.TargetRedis, Instance: "cache"}},
	}})

	key := domain.TargetKey{ContainerID: "c1", Type: domain.TargetRedis, Instance: "cache"}
	store.SetNextRun(key, now.Add(time.Hour), "0 3 * * *")

	rec := httptest.NewRecorder()
	NewTargetMetricHandler(logger, store).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics/targets", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body targetMetricResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	require.Len(t, body.Targets, 1)
	assert.Equal(t, "redis-cache", body.Targets[0].Target)
	assert.Equal(t, "0 3 * * *", body.Targets[0].Cron)
	require.NotNil(t, body.Targets[0].NextRun)
	assert.True(t, now.Add(time.Hour).Equal(*body.Targets[0].NextRun))

	require.NotEmpty(t, body.Events)
	assert.Equal(t, domain.EventDiscovered, body.Events[0].Type)
}
