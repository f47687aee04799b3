// Package controller runs the two activities of the backup controller: the poll loop that
// discovers containers and schedules jobs, and the single worker that executes them.
package controller

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/yurykabanov/baqup/pkg/appcontext"
	"github.com/yurykabanov/baqup/pkg/domain"
	"github.com/yurykabanov/baqup/pkg/notify"
	"github.com/yurykabanov/baqup/pkg/pipeline"
	"github.com/yurykabanov/baqup/pkg/queue"
	"github.com/yurykabanov/baqup/pkg/retention"
	"github.com/yurykabanov/baqup/pkg/schedule"
	"github.com/yurykabanov/baqup/pkg/staging"
	"github.com/yurykabanov/baqup/pkg/state"
	"github.com/yurykabanov/baqup/pkg/transfer"
)

const DefaultPollInterval = 60 * time.Second

type Runtime interface {
	ListContainers(ctx context.Context) ([]domain.Container, error)
	Ping(ctx context.Context) error
}

type Resolver interface {
	Resolve(c domain.Container) (domain.ContainerBackupConfig, error)
}

type Evaluator interface {
	Evaluate(now time.Time, c domain.ContainerBackupConfig, lookup schedule.StateLookup) ([]schedule.Decision, []error)
}

type Executor interface {
	Execute(ctx context.Context, job domain.BackupJob) (domain.BackupResult, error)
}

type Uploader interface {
	Sync(ctx context.Context, lineage, current string) (transfer.SyncResult, error)
}

type RetentionEnforcer interface {
	Enforce(ctx context.Context, lineage string, keep int) (retention.Report, error)
}

type BackupRepository interface {
	Create(context.Context, domain.Backup) (domain.Backup, error)
}

type Notifier interface {
	Result(ctx context.Context, r domain.BackupResult)
	Alert(ctx context.Context, severity notify.Severity, message string)
}

type Controller struct {
	logger logrus.FieldLogger

	pollInterval time.Duration

	runtime   Runtime
	resolver  Resolver
	evaluator Evaluator
	store     *state.Store
	queue     *queue.Queue

	executor  Executor
	uploader  Uploader
	retention RetentionEnforcer
	history   BackupRepository
	notifier  Notifier

	// last reported configuration problems per container id, so a broken label is
	// reported once rather than on every tick
	reported map[string]string

	now func() time.Time
}

func New(
	logger logrus.FieldLogger,
	pollInterval time.Duration,
	runtime Runtime,
	resolver Resolver,
	evaluator Evaluator,
	store *state.Store,
	queue *queue.Queue,
	executor Executor,
	uploader Uploader,
	retention RetentionEnforcer,
	history BackupRepository,
	notifier Notifier,
) *Controller {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	return &Controller{
		logger:       logger,
		pollInterval: pollInterval,
		runtime:      runtime,
		resolver:     resolver,
		evaluator:    evaluator,
		store:        store,
		queue:        queue,
		executor:     executor,
		uploader:     uploader,
		retention:    retention,
		history:      history,
		notifier:     notifier,
		reported:     make(map[string]string),
		now:          time.Now,
	}
}

// Run polls and works until ctx is done or a fatal error occurs. A fatal error is alerted
// and returned; a cancelled ctx returns nil.
func (c *Controller) Run(ctx context.Context) error {
	err := c.runtime.Ping(ctx)
	if err != nil {
		c.halt(ctx, err)
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return c.poll(gctx) })
	g.Go(func() error { return c.work(gctx) })

	err = g.Wait()
	if err != nil {
		c.halt(ctx, err)
	}
	return err
}

func (c *Controller) halt(ctx context.Context, err error) {
	msg := fmt.Sprintf("controller halted: %v", err)

	c.logger.WithError(err).Error("Fatal error, halting controller")

	c.store.AppendEvent(domain.Event{
		Timestamp: c.now(),
		Type:      domain.EventHalted,
		Message:   err.Error(),
	})

	c.notifier.Alert(context.WithoutCancel(ctx), notify.SeverityCritical, msg)
}

func (c *Controller) poll(ctx context.Context) error {
	c.logger.WithField("interval", c.pollInterval).Info("Starting poll loop")

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		if err := c.Tick(ctx, c.now()); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Tick runs one discovery and scheduling pass. Only fatal errors are returned.
func (c *Controller) Tick(ctx context.Context, now time.Time) error {
	containers, err := c.runtime.ListContainers(ctx)
	if err != nil {
		if domain.IsFatal(err) {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}

		c.logger.WithError(err).Error("Unable to list containers, skipping tick")
		return nil
	}

	configs := make([]domain.ContainerBackupConfig, 0, len(containers))
	problems := make(map[string]error, len(containers))

	for _, container := range containers {
		cfg, err := c.resolver.Resolve(container)
		if err != nil {
			problems[container.ID] = err
		}

		if !cfg.Enabled {
			continue
		}
		configs = append(configs, cfg)
	}

	for _, e := range c.store.Reconcile(now, configs) {
		c.logger.WithFields(logrus.Fields{"container": e.ContainerName, "event": e.Type}).Info("Container configuration changed")
	}

	for _, cfg := range configs {
		decisions, errs := c.evaluator.Evaluate(now, cfg, c.store.TargetState)

		for _, err := range errs {
			problems[cfg.ContainerID] = multierr.Append(problems[cfg.ContainerID], err)

			var ce *domain.ConfigurationError
			if errors.As(err, &ce) {
				c.store.MarkError(domain.TargetKey{
					ContainerID: cfg.ContainerID,
					Type:        domain.TargetType(ce.Type),
					Instance:    ce.Instance,
				}, ce.Reason)
			}
		}

		for _, d := range decisions {
			c.store.SetNextRun(d.Key, d.NextRun, d.Schedule.Cron)

			if d.Job != nil {
				c.enqueue(ctx, now, *d.Job)
			}
		}
	}

	c.reportProblems(now, containers, problems)

	return nil
}

func (c *Controller) enqueue(ctx context.Context, now time.Time, job domain.BackupJob) {
	logger := appcontext.LoggerFromContext(c.logger, pipeline.JobContext(ctx, job))

	if c.queue.Enqueue(job) {
		logger.Info("Backup job queued")
		return
	}

	logger.Warn("Previous job of the target is still pending, skipping")
	c.store.AppendEvent(jobEvent(now, domain.EventSkipped, job, "previous job still pending"))
}

// reportProblems logs and records configuration errors whenever a container's set of
// problems changes.
func (c *Controller) reportProblems(now time.Time, containers []domain.Container, problems map[string]error) {
	names := make(map[string]string, len(containers))
	for _, container := range containers {
		names[container.ID] = strings.TrimPrefix(container.Name, "/")
	}

	for id := range c.reported {
		if _, ok := problems[id]; !ok {
			delete(c.reported, id)
		}
	}

	ids := make([]string, 0, len(problems))
	for id := range problems {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		errs := multierr.Errors(problems[id])

		msgs := make([]string, 0, len(errs))
		for _, err := range errs {
			msgs = append(msgs, err.Error())
		}
		summary := strings.Join(msgs, "; ")

		if c.reported[id] == summary {
			continue
		}
		c.reported[id] = summary

		for _, msg := range msgs {
			c.logger.WithField("container", names[id]).Warn(msg)
			c.store.AppendEvent(domain.Event{
				Timestamp:     now,
				Type:          domain.EventConfigError,
				ContainerName: names[id],
				Message:       msg,
			})
		}
	}
}

func (c *Controller) work(ctx context.Context) error {
	c.logger.Info("Starting worker")

	for {
		err := c.step(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// step takes one job off the queue and processes it. Only fatal errors are returned.
// A started job is not interrupted by ctx being cancelled.
func (c *Controller) step(ctx context.Context) error {
	job, err := c.queue.Dequeue(ctx)
	if err != nil {
		return nil
	}
	defer c.queue.Done(job.Key())

	return c.process(context.WithoutCancel(ctx), job)
}

func (c *Controller) process(ctx context.Context, job domain.BackupJob) error {
	ctx = pipeline.JobContext(ctx, job)
	logger := appcontext.LoggerFromContext(c.logger, ctx)

	logger.Info("Starting backup")
	c.store.AppendEvent(jobEvent(c.now(), domain.EventStarted, job, ""))

	result, err := c.executor.Execute(ctx, job)

	var warning string

	if result.Success {
		warning = c.publish(ctx, job, &result)
	}

	finished := c.now()

	c.store.RecordResult(finished, result)
	if warning != "" {
		c.store.MarkWarning(job.Key(), warning)
	}

	if _, herr := c.history.Create(ctx, domain.BackupFromResult(result, finished)); herr != nil {
		logger.WithError(herr).Error("Unable to record backup history")
	}

	if result.Success {
		logger.WithField("duration", result.Duration).Info("Backup completed")
		c.store.AppendEvent(jobEvent(finished, domain.EventCompleted, job, result.RemotePath))
	} else {
		logger.WithField("stage", result.Stage).Error("Backup failed: " + result.Error)
		c.store.AppendEvent(jobEvent(finished, domain.EventFailed, job, result.Error))
	}

	c.notifier.Result(ctx, result)

	if err != nil && domain.IsFatal(err) {
		return err
	}
	return nil
}

// publish uploads the job's lineage and enforces retention on it. An upload failure turns
// the result into a failure; a retention failure is returned as a warning.
func (c *Controller) publish(ctx context.Context, job domain.BackupJob, result *domain.BackupResult) string {
	logger := appcontext.LoggerFromContext(c.logger, ctx)
	lineage := staging.Lineage(job.Container.ContainerName, job.Target)
	artifact := filepath.Base(result.StagingPath)

	synced, err := c.uploader.Sync(ctx, lineage, artifact)
	if err != nil {
		result.Success = false
		result.Stage = domain.StageUpload
		result.Error = domain.NewStageError(domain.StageUpload, err).Error()

		c.store.AppendEvent(jobEvent(c.now(), domain.EventUploadFailed, job, err.Error()))
		return ""
	}

	result.RemotePath = path.Join(filepath.ToSlash(lineage), artifact)

	if len(synced.Uploaded) > 0 {
		c.store.AppendEvent(jobEvent(c.now(), domain.EventUploaded, job,
			fmt.Sprintf("%d artifact(s) uploaded", len(synced.Uploaded))))
	}

	report, err := c.retention.Enforce(ctx, lineage, job.Schedule.Retention)
	if err != nil {
		msg := "retention failed: " + err.Error()

		logger.WithError(err).Warn("Unable to enforce retention")
		c.store.AppendEvent(jobEvent(c.now(), domain.EventRetention, job, msg))
		c.notifier.Alert(ctx, notify.SeverityWarning, fmt.Sprintf("%s: %s", job, msg))
		return msg
	}

	if !report.Empty() {
		c.store.AppendEvent(jobEvent(c.now(), domain.EventRetention, job,
			fmt.Sprintf("deleted %d remote, %d local", len(report.RemoteDeleted), len(report.LocalDeleted))))
	}

	return ""
}

func jobEvent(now time.Time, typ domain.EventType, job domain.BackupJob, msg string) domain.Event {
	return domain.Event{
		Timestamp:      now,
		Type:           typ,
		ContainerName:  job.Container.ContainerName,
		TargetType:     string(job.Target.Type),
		TargetInstance: job.Target.Instance,
		Message:        msg,
	}
}
