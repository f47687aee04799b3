// Package notify dispatches backup outcomes and controller alerts to external channels.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"github.com/yurykabanov/baqup/pkg/domain"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

type Channel interface {
	Send(ctx context.Context, message string, severity Severity) error
}

type Notifier struct {
	logger logrus.FieldLogger

	channels  []Channel
	onSuccess bool
}

func New(logger logrus.FieldLogger, onSuccess bool, channels ...Channel) *Notifier {
	return &Notifier{
		logger:    logger,
		channels:  channels,
		onSuccess: onSuccess,
	}
}

// Result reports a pipeline outcome: always on failure, on success only when enabled.
func (n *Notifier) Result(ctx context.Context, r domain.BackupResult) {
	if r.Success {
		if !n.onSuccess {
			return
		}
		n.Alert(ctx, SeverityInfo, fmt.Sprintf("backup %s succeeded (%s in %s)",
			r.Job, humanize.Bytes(uint64(r.Size)), r.Duration.Round(time.Millisecond)))
		return
	}

	n.Alert(ctx, SeverityError, fmt.Sprintf("backup %s of %s failed at %s: %s",
		r.Job, r.Job.Container.ContainerName, r.Stage, r.Error))
}

// Alert sends message to every channel. Delivery failures are logged, never returned:
// a broken channel must not affect backups.
func (n *Notifier) Alert(ctx context.Context, severity Severity, message string) {
	var errs error

	for _, ch := range n.channels {
		errs = multierr.Append(errs, ch.Send(ctx, message, severity))
	}

	if errs != nil {
		n.logger.WithError(errs).WithField("severity", severity).Error("Unable to deliver notification")
	}
}

// LogChannel writes notifications to the process log.
type LogChannel struct {
	logger logrus.FieldLogger
}

func NewLogChannel(logger logrus.FieldLogger) *LogChannel {
	return &LogChannel{logger: logger}
}

func (c *LogChannel) Send(_ context.Context, message string, severity Severity) error {
	entry := c.logger.WithField("severity", severity)

	switch severity {
	case SeverityCritical, SeverityError:
		entry.Error(message)
	case SeverityWarning:
		entry.Warn(message)
	default:
		entry.Info(message)
	}
	return nil
}
