package transfer

import (
	"context"
	"sort"

	"github.com/pkg/errors"
)

var (
	ErrBackendDoesNotExist = errors.New("requested upload backend doesn't exist")
)

// Backend is a remote store addressed by paths relative to its configured root.
type Backend interface {
	Upload(ctx context.Context, localPath, remotePath string) error

	// List returns the file names directly under dir; a missing dir is empty.
	List(ctx context.Context, dir string) ([]string, error)

	Delete(ctx context.Context, remotePath string) error
}

type Manager struct {
	backends map[string]Backend
}

func NewManager(backends map[string]Backend) *Manager {
	return &Manager{
		backends: backends,
	}
}

func (m *Manager) Backend(name string) (Backend, error) {
	if b, ok := m.backends[name]; ok {
		return b, nil
	}
	return nil, errors.Wrapf(ErrBackendDoesNotExist, "backend %q", name)
}

func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.backends))
	for name := range m.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
