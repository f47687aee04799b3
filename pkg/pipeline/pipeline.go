// Package pipeline executes a single backup job through its stages:
//
//	stop? -> pre_exec -> capture (compress, stage) -> restart?
//
// Capture is the only retried stage. Staging failures and an unreachable runtime are
// returned as fatal errors; every other failure is contained to the job.
package pipeline

import (
	"context"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/baqup/pkg/appcontext"
	"github.com/yurykabanov/baqup/pkg/capture"
	"github.com/yurykabanov/baqup/pkg/domain"
	"github.com/yurykabanov/baqup/pkg/staging"
)

const (
	captureAttempts       = 3
	DefaultCaptureTimeout = time.Hour
	restartTimeout        = 2 * time.Minute
)

type Runtime interface {
	Exec(ctx context.Context, containerID string, cmd []string, env []string, stdout io.Writer) (domain.ExecResult, error)
	Stop(ctx context.Context, containerID string) error
	Start(ctx context.Context, containerID string) error
}

type Capturers interface {
	For(domain.TargetType) (capture.Capturer, error)
}

type Stager interface {
	Create(rel string, compress bool) (*staging.Artifact, error)
}

type Pipeline struct {
	logger logrus.FieldLogger

	runtime   Runtime
	capturers Capturers
	stager    Stager

	captureTimeout time.Duration
	newBackOff     func() backoff.BackOff
	now            func() time.Time
}

func New(
	logger logrus.FieldLogger,
	runtime Runtime,
	capturers Capturers,
	stager Stager,
	captureTimeout time.Duration,
) *Pipeline {
	if captureTimeout <= 0 {
		captureTimeout = DefaultCaptureTimeout
	}

	return &Pipeline{
		logger:         logger,
		runtime:        runtime,
		capturers:      capturers,
		stager:         stager,
		captureTimeout: captureTimeout,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 5 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
		now: time.Now,
	}
}

// JobContext carries the job's identity for LoggerFromContext.
func JobContext(ctx context.Context, job domain.BackupJob) context.Context {
	ctx = appcontext.WithContainer(ctx, job.Container.ContainerName)
	ctx = appcontext.WithTarget(ctx, job.Target.Dir())
	return appcontext.WithTrigger(ctx, job.Timestamp())
}

// Execute runs job to completion. The returned error is a *domain.StageError when the job
// failed; domain.IsFatal tells whether the controller must halt.
func (p *Pipeline) Execute(ctx context.Context, job domain.BackupJob) (result domain.BackupResult, err error) {
	ctx = JobContext(ctx, job)
	logger := appcontext.LoggerFromContext(p.logger, ctx)

	started := p.now()
	result = domain.BackupResult{Job: job, Stage: domain.StageQueued}

	defer func() {
		result.Duration = p.now().Sub(started)
		result.Success = err == nil

		if err != nil {
			result.Stage = domain.StageOf(err)
			result.Error = err.Error()
			return
		}
		result.Stage = domain.StageDone
	}()

	containerID := job.Container.ContainerID

	if job.Container.Stop {
		if err = p.runtime.Stop(ctx, containerID); err != nil {
			return result, domain.NewStageError(domain.StageStop, err)
		}

		defer func() {
			restartErr := p.restart(ctx, containerID)
			if restartErr == nil {
				return
			}

			logger.WithError(restartErr).Error("Unable to restart container")

			// an earlier failure is the one to report, unless the restart one is fatal
			if err == nil || domain.IsFatal(restartErr) {
				err = domain.NewStageError(domain.StageRestart, restartErr)
			}
		}()
	}

	if err = p.preExec(ctx, job); err != nil {
		return result, domain.NewStageError(domain.StagePreExec, err)
	}

	path, size, err := p.capture(ctx, job)
	if err != nil {
		stage := domain.StageCapture
		if errors.Is(err, domain.ErrStagingFailure) || errors.Is(err, staging.ErrArtifactExists) {
			stage = domain.StageStage
		}
		return result, domain.NewStageError(stage, err)
	}

	result.StagingPath = path
	result.Size = size

	logger.WithFields(logrus.Fields{
		"path": path,
		"size": humanize.Bytes(uint64(size)),
	}).Info("Artifact staged")

	return result, nil
}

func (p *Pipeline) restart(ctx context.Context, containerID string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), restartTimeout)
	defer cancel()

	return p.runtime.Start(ctx, containerID)
}

func (p *Pipeline) preExec(ctx context.Context, job domain.BackupJob) error {
	props, ok := job.Target.Properties.(domain.FilesystemProperties)
	if !ok || props.PreExec == "" {
		return nil
	}

	logger := appcontext.LoggerFromContext(p.logger, ctx)
	logger.WithField("command", props.PreExec).Debug("Running pre-exec command")

	res, err := p.runtime.Exec(ctx, job.Container.ContainerID, []string{"sh", "-c", props.PreExec}, nil, io.Discard)
	if err != nil {
		return err
	}

	if res.ExitCode != 0 {
		return errors.Errorf("command exited with code %d: %s", res.ExitCode, res.Stderr)
	}
	return nil
}

func (p *Pipeline) capture(ctx context.Context, job domain.BackupJob) (string, int64, error) {
	logger := appcontext.LoggerFromContext(p.logger, ctx)

	capturer, err := p.capturers.For(job.Target.Type)
	if err != nil {
		return "", 0, err
	}

	rel := staging.Name(job, capture.Extension(job.Target.Type, job.Target.Compress))

	var path string
	var size int64

	attempt := 0
	op := func() error {
		attempt++

		attemptCtx, cancel := context.WithTimeout(ctx, p.captureTimeout)
		defer cancel()

		artifact, err := p.stager.Create(rel, job.Target.Compress)
		if err != nil {
			return backoff.Permanent(err)
		}

		err = capturer.Capture(attemptCtx, job, artifact.Writer())
		if err != nil {
			if abortErr := artifact.Abort(); abortErr != nil {
				return backoff.Permanent(abortErr)
			}
			if domain.IsFatal(err) {
				return backoff.Permanent(err)
			}
			if attemptCtx.Err() == context.DeadlineExceeded {
				return errors.Wrapf(err, "attempt timed out after %s", p.captureTimeout)
			}
			return err
		}

		size, err = artifact.Commit()
		if err != nil {
			return backoff.Permanent(err)
		}

		path = artifact.Path()
		return nil
	}

	notify := func(err error, wait time.Duration) {
		logger.WithError(err).WithFields(logrus.Fields{
			"attempt":  attempt,
			"retry_in": wait,
		}).Warn("Capture attempt failed")
	}

	b := backoff.WithContext(backoff.WithMaxRetries(p.newBackOff(), captureAttempts-1), ctx)

	err = backoff.RetryNotify(op, b, notify)
	if err != nil {
		return "", 0, err
	}

	return path, size, nil
}
