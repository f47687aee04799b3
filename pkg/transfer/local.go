package transfer

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// LocalBackend mirrors artifacts into a directory, e.g. a mounted NAS share.
type LocalBackend struct {
	root string
}

func NewLocalBackend(root string) *LocalBackend {
	return &LocalBackend{
		root: root,
	}
}

func (b *LocalBackend) Upload(_ context.Context, localPath, remotePath string) error {
	dst := filepath.Join(b.root, filepath.FromSlash(remotePath))

	err := os.MkdirAll(filepath.Dir(dst), 0o750)
	if err != nil {
		return errors.Wrap(err, "unable to create remote directory")
	}

	// Rename doesn't work across different mount points, so copy next to the
	// destination and rename there.
	tmp := dst + ".upload"

	err = copyFile(localPath, tmp)
	if err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, "unable to copy artifact")
	}

	return errors.Wrap(os.Rename(tmp, dst), "unable to move artifact into place")
}

func (b *LocalBackend) List(_ context.Context, dir string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(b.root, filepath.FromSlash(dir)))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "unable to list remote directory")
	}

	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && filepath.Ext(e.Name()) != ".upload" {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func (b *LocalBackend) Delete(_ context.Context, remotePath string) error {
	err := os.Remove(filepath.Join(b.root, filepath.FromSlash(remotePath)))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "unable to delete remote artifact")
	}
	return nil
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return
	}
	defer func() {
		if e := out.Close(); e != nil && err == nil {
			err = e
		}
	}()

	_, err = io.Copy(out, in)
	if err != nil {
		return
	}

	return out.Sync()
}
