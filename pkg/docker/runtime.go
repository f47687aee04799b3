// Package docker implements the container runtime collaborator on top of the Docker API.
package docker

import (
	"bytes"
	"context"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	docker "github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/baqup/pkg/domain"
)

const (
	defaultStopTimeout = 30 * time.Second
	maxStderr          = 4096
)

type apiClient interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
	ContainerExecCreate(ctx context.Context, containerID string, options container.ExecOptions) (container.ExecCreateResponse, error)
	ContainerExecAttach(ctx context.Context, execID string, config container.ExecAttachOptions) (types.HijackedResponse, error)
	ContainerExecInspect(ctx context.Context, execID string) (container.ExecInspect, error)
	CopyFromContainer(ctx context.Context, containerID, srcPath string) (io.ReadCloser, container.PathStat, error)
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	Ping(ctx context.Context) (types.Ping, error)
}

var _ apiClient = (*docker.Client)(nil)

type Runtime struct {
	logger      logrus.FieldLogger
	client      apiClient
	labelFilter string
	stopTimeout time.Duration
}

// NewRuntime lists only containers carrying labelFilter (a label key, optionally "key=value").
func NewRuntime(logger logrus.FieldLogger, client apiClient, labelFilter string) *Runtime {
	return &Runtime{
		logger:      logger,
		client:      client,
		labelFilter: labelFilter,
		stopTimeout: defaultStopTimeout,
	}
}

// wrap turns daemon connection failures into domain.ErrRuntimeUnreachable so callers
// can tell a dead daemon apart from a failing container.
func wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	if docker.IsErrConnectionFailed(err) {
		return errors.Wrapf(domain.ErrRuntimeUnreachable, "%s: %v", msg, err)
	}
	return errors.Wrap(err, msg)
}

func (r *Runtime) Ping(ctx context.Context) error {
	_, err := r.client.Ping(ctx)
	if err != nil {
		// any ping failure means the daemon is not usable
		return errors.Wrapf(domain.ErrRuntimeUnreachable, "ping: %v", err)
	}
	return nil
}

// ListContainers returns every labelled container, stopped ones included: a container
// stopped for its own backup must not vanish from discovery.
func (r *Runtime) ListContainers(ctx context.Context) ([]domain.Container, error) {
	summaries, err := r.client.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", r.labelFilter)),
	})
	if err != nil {
		return nil, wrap(err, "unable to list containers")
	}

	result := make([]domain.Container, 0, len(summaries))

	for _, s := range summaries {
		c, err := r.inspect(ctx, s.ID)
		if errdefs.IsNotFound(err) {
			r.logger.WithField("container_id", s.ID).Debug("Container disappeared before inspection")
			continue
		}
		if err != nil {
			return nil, err
		}

		result = append(result, c)
	}

	return result, nil
}

func (r *Runtime) inspect(ctx context.Context, id string) (domain.Container, error) {
	resp, err := r.client.ContainerInspect(ctx, id)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return domain.Container{}, err
		}
		return domain.Container{}, wrap(err, "unable to inspect container")
	}

	c := domain.Container{
		ID:     id,
		Labels: map[string]string{},
		Env:    map[string]string{},
	}

	if resp.ContainerJSONBase != nil {
		c.Name = strings.TrimPrefix(resp.Name, "/")
	}

	if resp.Config != nil {
		for k, v := range resp.Config.Labels {
			c.Labels[k] = v
		}
		for _, kv := range resp.Config.Env {
			if i := strings.IndexByte(kv, '='); i > 0 {
				c.Env[kv[:i]] = kv[i+1:]
			}
		}
	}

	for _, m := range resp.Mounts {
		c.Mounts = append(c.Mounts, m.Destination)
	}

	return c, nil
}

// Exec runs cmd inside the container, streaming its stdout into stdout. A non-zero exit
// code is reported in the result, not as an error.
func (r *Runtime) Exec(ctx context.Context, containerID string, cmd []string, env []string, stdout io.Writer) (domain.ExecResult, error) {
	logger := r.logger.WithFields(logrus.Fields{"container_id": containerID, "cmd": cmd[0]})

	exec, err := r.client.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		Cmd:          cmd,
		Env:          env,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return domain.ExecResult{}, wrap(err, "unable to create exec")
	}

	att, err := r.client.ContainerExecAttach(ctx, exec.ID, container.ExecAttachOptions{})
	if err != nil {
		return domain.ExecResult{}, wrap(err, "unable to attach to exec")
	}
	defer att.Close()

	// the hijacked connection ignores ctx once established
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			att.Close()
		case <-done:
		}
	}()

	if stdout == nil {
		stdout = io.Discard
	}

	stderr := &bytes.Buffer{}
	_, err = stdcopy.StdCopy(stdout, stderr, att.Reader)
	if ctx.Err() != nil {
		return domain.ExecResult{}, ctx.Err()
	}
	if err != nil {
		return domain.ExecResult{}, errors.Wrap(err, "exec stream interrupted")
	}

	inspect, err := r.client.ContainerExecInspect(ctx, exec.ID)
	if err != nil {
		return domain.ExecResult{}, wrap(err, "unable to inspect exec")
	}

	logger.WithField("exit_code", inspect.ExitCode).Debug("Exec finished")

	return domain.ExecResult{
		ExitCode: inspect.ExitCode,
		Stderr:   tail(stderr.String(), maxStderr),
	}, nil
}

// CopyFrom streams srcPath out of the container as a tar archive.
func (r *Runtime) CopyFrom(ctx context.Context, containerID, srcPath string) (io.ReadCloser, error) {
	rc, _, err := r.client.CopyFromContainer(ctx, containerID, srcPath)
	if err != nil {
		return nil, wrap(err, "unable to copy from container")
	}
	return rc, nil
}

func (r *Runtime) Stop(ctx context.Context, containerID string) error {
	timeout := int(r.stopTimeout.Seconds())

	err := r.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout})
	if err != nil {
		return wrap(err, "unable to stop container")
	}

	r.logger.WithField("container_id", containerID).Info("Container stopped")
	return nil
}

func (r *Runtime) Start(ctx context.Context, containerID string) error {
	err := r.client.ContainerStart(ctx, containerID, container.StartOptions{})
	if err != nil {
		return wrap(err, "unable to start container")
	}

	r.logger.WithField("container_id", containerID).Info("Container started")
	return nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
