// Package staging owns the local artifact tree:
//
//	{root}/{container}/{type}-{instance}/{timestamp}.{ext}
//
// Artifacts are written to a ".partial" sibling and renamed into place on commit, so a
// lineage directory never lists a half-written artifact. Every filesystem error raised
// while writing is reported as domain.ErrStagingFailure.
package staging

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"

	"github.com/yurykabanov/baqup/pkg/domain"
)

const partialSuffix = ".partial"

// ErrArtifactExists is returned when a job would replace an artifact committed by an
// earlier job. It is contained to the job.
var ErrArtifactExists = errors.New("artifact already staged")

type Manager struct {
	root string
}

func New(root string) *Manager {
	return &Manager{
		root: root,
	}
}

func (m *Manager) Root() string {
	return m.root
}

// Lineage returns the path of a lineage relative to the root; the remote layout uses the
// same relative paths.
func Lineage(container string, t domain.TargetConfig) string {
	return filepath.Join(container, t.Dir())
}

// Name is the artifact path of job relative to the root.
func Name(job domain.BackupJob, ext string) string {
	return filepath.Join(Lineage(job.Container.ContainerName, job.Target), job.Timestamp()+"."+ext)
}

func (m *Manager) Abs(rel string) string {
	return filepath.Join(m.root, rel)
}

func fail(err error, msg string) error {
	return errors.Wrapf(domain.ErrStagingFailure, "%s: %v", msg, err)
}

// Create opens the partial file for the artifact at rel, truncating any leftover from a
// previous attempt. A committed artifact at rel is never replaced.
func (m *Manager) Create(rel string, compress bool) (*Artifact, error) {
	final := m.Abs(rel)

	if err := exists(final, rel); err != nil {
		return nil, err
	}

	err := os.MkdirAll(filepath.Dir(final), 0o750)
	if err != nil {
		return nil, fail(err, "unable to create lineage directory")
	}

	partial := final + partialSuffix

	f, err := os.OpenFile(partial, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fail(err, "unable to create artifact")
	}

	a := &Artifact{
		file:    f,
		out:     &countingWriter{w: f},
		rel:     rel,
		final:   final,
		partial: partial,
	}

	if compress {
		a.gz = gzip.NewWriter(a.out)
	}

	return a, nil
}

// List returns the committed artifact names of a lineage in timestamp order. A missing
// lineage directory is empty, not an error.
func (m *Manager) List(lineage string) ([]string, error) {
	entries, err := os.ReadDir(m.Abs(lineage))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "unable to list lineage")
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), partialSuffix) {
			continue
		}
		names = append(names, e.Name())
	}

	sort.Strings(names)
	return names, nil
}

func exists(final, rel string) error {
	_, err := os.Lstat(final)
	if err == nil {
		return errors.Wrap(ErrArtifactExists, rel)
	}
	if !os.IsNotExist(err) {
		return fail(err, "unable to stat artifact")
	}
	return nil
}

func (m *Manager) Remove(rel string) error {
	err := os.Remove(m.Abs(rel))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "unable to remove staged artifact")
	}
	return nil
}

type Artifact struct {
	file *os.File
	out  *countingWriter
	gz   *gzip.Writer

	rel     string
	final   string
	partial string
}

func (a *Artifact) Writer() io.Writer {
	if a.gz != nil {
		return a.gz
	}
	return a.out
}

// Commit flushes the artifact and moves it into place, returning its size on disk.
func (a *Artifact) Commit() (int64, error) {
	if a.gz != nil {
		if err := a.gz.Close(); err != nil {
			_ = a.Abort()
			return 0, err
		}
	}

	if err := a.file.Sync(); err != nil {
		_ = a.Abort()
		return 0, fail(err, "unable to sync artifact")
	}

	if err := a.file.Close(); err != nil {
		_ = os.Remove(a.partial)
		return 0, fail(err, "unable to close artifact")
	}

	if err := exists(a.final, a.rel); err != nil {
		_ = os.Remove(a.partial)
		return 0, err
	}

	if err := os.Rename(a.partial, a.final); err != nil {
		_ = os.Remove(a.partial)
		return 0, fail(err, "unable to commit artifact")
	}

	return a.out.n, nil
}

// Abort discards the partial file.
func (a *Artifact) Abort() error {
	_ = a.file.Close()

	err := os.Remove(a.partial)
	if err != nil && !os.IsNotExist(err) {
		return fail(err, "unable to discard partial artifact")
	}
	return nil
}

func (a *Artifact) Path() string {
	return a.final
}

func (a *Artifact) Rel() string {
	return a.rel
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	if err != nil {
		return n, fail(err, "unable to write artifact")
	}
	return n, nil
}
