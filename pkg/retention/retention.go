// Package retention trims a lineage down to its schedule's retention count, remotely and
// locally.
package retention

import (
	"context"
	"path"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// artifactName matches names led by domain.TimestampFormat; anything else in a lineage
// directory is not ours to delete.
var artifactName = regexp.MustCompile(`^\d{8}T\d{6}Z\.`)

type Remote interface {
	List(ctx context.Context, dir string) ([]string, error)
	Delete(ctx context.Context, remotePath string) error
}

type Local interface {
	List(lineage string) ([]string, error)
	Remove(rel string) error
}

type Report struct {
	RemoteDeleted []string
	LocalDeleted  []string
}

func (r Report) Empty() bool {
	return len(r.RemoteDeleted) == 0 && len(r.LocalDeleted) == 0
}

type Enforcer struct {
	logger logrus.FieldLogger

	remote Remote
	local  Local
}

func NewEnforcer(logger logrus.FieldLogger, remote Remote, local Local) *Enforcer {
	return &Enforcer{
		logger: logger,
		remote: remote,
		local:  local,
	}
}

// Excess returns the artifacts beyond the newest keep, oldest first. The embedded
// timestamps sort lexicographically in chronological order.
func Excess(names []string, keep int) []string {
	var artifacts []string
	for _, n := range names {
		if artifactName.MatchString(n) {
			artifacts = append(artifacts, n)
		}
	}

	sort.Strings(artifacts)

	if keep < 0 {
		keep = 0
	}
	if len(artifacts) <= keep {
		return nil
	}
	return artifacts[:len(artifacts)-keep]
}

// Enforce deletes the oldest artifacts of lineage beyond keep. A local artifact is only
// deleted when it is also present remotely. Deletion failures are collected and returned;
// the remaining deletions still run.
func (e *Enforcer) Enforce(ctx context.Context, lineage string, keep int) (Report, error) {
	var report Report
	var errs error

	remoteDir := filepath.ToSlash(lineage)

	remote, err := e.remote.List(ctx, remoteDir)
	if err != nil {
		return report, errors.Wrap(err, "unable to list remote lineage")
	}

	uploaded := make(map[string]struct{}, len(remote))
	for _, name := range remote {
		uploaded[name] = struct{}{}
	}

	for _, name := range Excess(remote, keep) {
		if err := e.remote.Delete(ctx, path.Join(remoteDir, name)); err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "unable to delete remote %s", name))
			continue
		}
		report.RemoteDeleted = append(report.RemoteDeleted, name)
	}

	local, err := e.local.List(lineage)
	if err != nil {
		return report, multierr.Append(errs, err)
	}

	for _, name := range Excess(local, keep) {
		if _, ok := uploaded[name]; !ok {
			continue
		}

		if err := e.local.Remove(filepath.Join(lineage, name)); err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "unable to delete local %s", name))
			continue
		}
		report.LocalDeleted = append(report.LocalDeleted, name)
	}

	if !report.Empty() {
		e.logger.WithFields(logrus.Fields{
			"lineage":        lineage,
			"remote_deleted": len(report.RemoteDeleted),
			"local_deleted":  len(report.LocalDeleted),
		}).Info("Retention enforced")
	}

	return report, errs
}
