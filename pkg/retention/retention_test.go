package retention

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/yurykabanov/baqup/pkg/staging"
	"github.com/yurykabanov/baqup/pkg/transfer"
)

// region remoteMock
type remoteMock struct {
	mock.Mock
}

func (m *remoteMock) List(ctx context.Context, dir string) ([]string, error) {
	args := m.Called(ctx, dir)

	if r := args.Get(0); r != nil {
		return r.([]string), args.Error(1)
	}

	return nil, args.Error(1)
}

func (m *remoteMock) Delete(ctx context.Context, remotePath string) error {
	args := m.Called(ctx, remotePath)
	return args.Error(0)
}

// endregion

func names(n int) []string {
	var out []string
	// shuffled on purpose
	for _, d := range []int{7, 2, 9, 1, 10, 4, 3, 8, 5, 6}[:n] {
		out = append(out, fmt.Sprintf("202401%02dT030000Z.sql.gz", d))
	}
	return out
}

func TestExcess(t *testing.T) {
	assert.Equal(t,
		[]string{"20240101T030000Z.sql.gz", "20240102T030000Z.sql.gz", "20240103T030000Z.sql.gz"},
		Excess(names(10), 7),
	)

	assert.Empty(t, Excess(names(5), 7))
	assert.Empty(t, Excess(names(7), 7))

	// foreign files are never candidates
	assert.Equal(t,
		[]string{"20240101T030000Z.sql.gz"},
		Excess([]string{"README", "20240101T030000Z.sql.gz", "20240102T030000Z.sql.gz", "x.partial"}, 1),
	)
}

func TestEnforcer_TenToSevenRemote(t *testing.T) {
	logger, _ := test.NewNullLogger()

	remote := &remoteMock{}
	remote.On("List", mock.Anything, "app/postgres-main").Return(names(10), nil)
	remote.On("Delete", mock.Anything, mock.Anything).Return(nil)

	e := NewEnforcer(logger, remote, staging.New(t.TempDir()))

	report, err := e.Enforce(context.Background(), filepath.Join("app", "postgres-main"), 7)

	require.NoError(t, err)
	assert.Equal(t, []string{"20240101T030000Z.sql.gz", "20240102T030000Z.sql.gz", "20240103T030000Z.sql.gz"}, report.RemoteDeleted)
	remote.AssertCalled(t, "Delete", mock.Anything, "app/postgres-main/20240101T030000Z.sql.gz")
	remote.AssertNumberOfCalls(t, "Delete", 3)
}

func TestEnforcer_LocalKeepsUnuploaded(t *testing.T) {
	logger, _ := test.NewNullLogger()
	root := t.TempDir()
	lineage := filepath.Join("app", "fs-data")

	require.NoError(t, os.MkdirAll(filepath.Join(root, lineage), 0o755))
	for _, n := range []string{"20240101T030000Z.tar", "20240102T030000Z.tar", "20240103T030000Z.tar"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, lineage, n), nil, 0o644))
	}

	remoteRoot := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(remoteRoot, lineage), 0o755))
	// only the newest made it out
	require.NoError(t, os.WriteFile(filepath.Join(remoteRoot, lineage, "20240103T030000Z.tar"), nil, 0o644))

	local := staging.New(root)
	e := NewEnforcer(logger, transfer.NewLocalBackend(remoteRoot), local)

	report, err := e.Enforce(context.Background(), lineage, 1)

	require.NoError(t, err)
	assert.Empty(t, report.LocalDeleted)

	left, _ := local.List(lineage)
	assert.Len(t, left, 3)
}

func TestEnforcer_DeletionFailuresAreCollected(t *testing.T) {
	logger, _ := test.NewNullLogger()

	remote := &remoteMock{}
	remote.On("List", mock.Anything, "app/redis-cache").Return(names(4), nil)
	remote.On("Delete", mock.Anything, "app/redis-cache/20240102T030000Z.sql.gz").Return(errors.New("403"))
	remote.On("Delete", mock.Anything, mock.Anything).Return(nil)

	e := NewEnforcer(logger, remote, staging.New(t.TempDir()))

	report, err := e.Enforce(context.Background(), "app/redis-cache", 1)

	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 1)
	assert.Equal(t, []string{"20240101T030000Z.sql.gz", "20240107T030000Z.sql.gz"}, report.RemoteDeleted)
}
