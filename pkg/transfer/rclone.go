package transfer

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// rclone exits with 3 when the directory does not exist
const rcloneExitDirNotFound = 3

type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	out, err := cmd.Output()
	if err != nil {
		return out, &commandError{err: err, stderr: strings.TrimSpace(stderr.String())}
	}
	return out, nil
}

type commandError struct {
	err    error
	stderr string
}

func (e *commandError) Error() string {
	if e.stderr == "" {
		return e.err.Error()
	}
	return e.err.Error() + ": " + e.stderr
}

func (e *commandError) Unwrap() error {
	return e.err
}

// RcloneBackend shells out to rclone; root is an rclone path such as "s3:bucket/backups".
type RcloneBackend struct {
	logger logrus.FieldLogger

	binary string
	config string
	root   string

	run commandRunner
}

func NewRcloneBackend(logger logrus.FieldLogger, binary, config, root string) *RcloneBackend {
	if binary == "" {
		binary = "rclone"
	}

	return &RcloneBackend{
		logger: logger,
		binary: binary,
		config: config,
		root:   root,
		run:    runCommand,
	}
}

func (b *RcloneBackend) remote(p string) string {
	p = strings.TrimPrefix(p, "/")

	if b.root == "" || strings.HasSuffix(b.root, ":") || strings.HasSuffix(b.root, "/") {
		return b.root + p
	}
	return b.root + "/" + p
}

func (b *RcloneBackend) exec(ctx context.Context, args ...string) ([]byte, error) {
	if b.config != "" {
		args = append([]string{"--config", b.config}, args...)
	}

	b.logger.WithField("args", args).Debug("Running rclone")

	return b.run(ctx, b.binary, args...)
}

func (b *RcloneBackend) Upload(ctx context.Context, localPath, remotePath string) error {
	_, err := b.exec(ctx, "copyto", localPath, b.remote(remotePath))
	if err != nil {
		return errors.Wrap(err, "rclone copyto failed")
	}
	return nil
}

func (b *RcloneBackend) List(ctx context.Context, dir string) ([]string, error) {
	out, err := b.exec(ctx, "lsf", "--files-only", b.remote(dir))
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == rcloneExitDirNotFound {
			return nil, nil
		}
		return nil, errors.Wrap(err, "rclone lsf failed")
	}

	var names []string
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

func (b *RcloneBackend) Delete(ctx context.Context, remotePath string) error {
	_, err := b.exec(ctx, "deletefile", b.remote(remotePath))
	if err != nil {
		return errors.Wrap(err, "rclone deletefile failed")
	}
	return nil
}
