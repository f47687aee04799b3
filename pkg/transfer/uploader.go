package transfer

import (
	"context"
	"path"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ErrRemoteExists is returned when the artifact of the current job is already present
// remotely, written by another job under the same name.
var ErrRemoteExists = errors.New("artifact already present remotely")

type LocalStore interface {
	List(lineage string) ([]string, error)
	Abs(rel string) string
	Remove(rel string) error
}

type SyncResult struct {
	// Uploaded holds the relative paths uploaded by this sync, oldest first.
	Uploaded []string

	// Remote holds the lineage's remote artifact names after the sync, sorted.
	Remote []string
}

// Uploader mirrors a lineage's staged artifacts to the backend. Local artifacts are only
// removed once present remotely.
type Uploader struct {
	logger logrus.FieldLogger

	backend Backend
	local   LocalStore
	cleanup bool
}

func NewUploader(logger logrus.FieldLogger, backend Backend, local LocalStore, cleanup bool) *Uploader {
	return &Uploader{
		logger:  logger,
		backend: backend,
		local:   local,
		cleanup: cleanup,
	}
}

// Sync uploads every staged artifact of lineage missing remotely, oldest first, stopping at
// the first failure so the remote lineage never has gaps before newer artifacts.
//
// current names the artifact the calling job has just staged. It must be uploaded by this
// sync; finding it already present remotely is a failure, not a skip.
func (u *Uploader) Sync(ctx context.Context, lineage, current string) (SyncResult, error) {
	var result SyncResult

	remoteDir := filepath.ToSlash(lineage)

	remote, err := u.backend.List(ctx, remoteDir)
	if err != nil {
		return result, errors.Wrap(err, "unable to list remote lineage")
	}

	present := make(map[string]struct{}, len(remote))
	for _, name := range remote {
		present[name] = struct{}{}
	}

	local, err := u.local.List(lineage)
	if err != nil {
		return result, err
	}

	for _, name := range local {
		rel := filepath.Join(lineage, name)

		_, ok := present[name]
		if ok && name == current {
			result.Remote = sortedNames(present)
			return result, errors.Wrap(ErrRemoteExists, path.Join(remoteDir, name))
		}

		if !ok {
			err = u.backend.Upload(ctx, u.local.Abs(rel), path.Join(remoteDir, name))
			if err != nil {
				result.Remote = sortedNames(present)
				return result, errors.Wrapf(err, "unable to upload %s", rel)
			}

			u.logger.WithField("artifact", rel).Info("Artifact uploaded")

			present[name] = struct{}{}
			result.Uploaded = append(result.Uploaded, rel)
		}

		if !u.cleanup {
			continue
		}

		if err := u.local.Remove(rel); err != nil {
			u.logger.WithError(err).WithField("artifact", rel).Warn("Unable to remove uploaded artifact")
		}
	}

	result.Remote = sortedNames(present)
	return result, nil
}

func sortedNames(set map[string]struct{}) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
