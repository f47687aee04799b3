package capture

import (
	"archive/tar"
	"context"
	"io"
	"path"
	"strings"

	"github.com/pkg/errors"

	"github.com/yurykabanov/baqup/pkg/domain"
)

type filesystemCapturer struct {
	runtime Runtime
}

// Capture re-packs the runtime's tar stream of the configured path, dropping excluded
// entries. Excluding a directory drops everything below it.
func (c *filesystemCapturer) Capture(ctx context.Context, job domain.BackupJob, w io.Writer) error {
	p, ok := job.Target.Properties.(domain.FilesystemProperties)
	if !ok || p.Path == "" {
		return errors.New("filesystem target has no path")
	}

	rc, err := c.runtime.CopyFrom(ctx, job.Container.ContainerID, p.Path)
	if err != nil {
		return err
	}
	defer rc.Close()

	tr := tar.NewReader(rc)
	tw := tar.NewWriter(w)

	var skipped []string

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrap(err, "unable to read archive")
		}

		if under(hdr.Name, skipped) {
			continue
		}

		if excluded(hdr.Name, p.Exclude) {
			if hdr.Typeflag == tar.TypeDir {
				skipped = append(skipped, strings.TrimSuffix(hdr.Name, "/")+"/")
			}
			continue
		}

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}

		if _, err := io.Copy(tw, tr); err != nil {
			return errors.Wrapf(err, "unable to copy %s", hdr.Name)
		}
	}

	return tw.Close()
}

func under(name string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// excluded matches a glob against the entry path relative to the captured root and against
// the entry's base name. The runtime prefixes every entry with the root's base name.
func excluded(name string, globs []string) bool {
	name = strings.TrimSuffix(name, "/")

	rel := name
	if i := strings.IndexByte(name, '/'); i >= 0 {
		rel = name[i+1:]
	} else {
		// the root itself is never excluded
		return false
	}

	base := path.Base(name)

	for _, g := range globs {
		if ok, _ := path.Match(g, rel); ok {
			return true
		}
		if ok, _ := path.Match(g, base); ok {
			return true
		}
	}
	return false
}
