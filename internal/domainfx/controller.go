package domainfx

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"go.uber.org/fx"

	"github.com/yurykabanov/baqup/pkg/controller"
	"github.com/yurykabanov/baqup/pkg/docker"
	"github.com/yurykabanov/baqup/pkg/domain"
	"github.com/yurykabanov/baqup/pkg/labels"
	"github.com/yurykabanov/baqup/pkg/notify"
	"github.com/yurykabanov/baqup/pkg/pipeline"
	"github.com/yurykabanov/baqup/pkg/queue"
	"github.com/yurykabanov/baqup/pkg/retention"
	"github.com/yurykabanov/baqup/pkg/schedule"
	"github.com/yurykabanov/baqup/pkg/state"
	"github.com/yurykabanov/baqup/pkg/transfer"
)

const (
	ConfigPollInterval   = "controller.poll_interval"
	ConfigEventsCapacity = "controller.events_capacity"
)

type ControllerConfig struct {
	PollInterval   time.Duration
	EventsCapacity int
}

func ControllerConfigProvider(v *viper.Viper) *ControllerConfig {
	return &ControllerConfig{
		PollInterval:   time.Duration(v.GetInt(ConfigPollInterval)) * time.Second,
		EventsCapacity: v.GetInt(ConfigEventsCapacity),
	}
}

func Resolver(defaults domain.Defaults) *labels.Resolver {
	return labels.NewResolver(defaults)
}

func Evaluator(defaults domain.Defaults) *schedule.Evaluator {
	return schedule.NewEvaluator(defaults, time.Now())
}

func StateStore(config *ControllerConfig) *state.Store {
	return state.New(config.EventsCapacity)
}

func Controller(
	config *ControllerConfig,
	logger *logrus.Logger,
	runtime *docker.Runtime,
	resolver *labels.Resolver,
	evaluator *schedule.Evaluator,
	store *state.Store,
	jobs *queue.Queue,
	executor *pipeline.Pipeline,
	uploader *transfer.Uploader,
	enforcer *retention.Enforcer,
	history controller.BackupRepository,
	notifier *notify.Notifier,
) *controller.Controller {
	return controller.New(
		logger,
		config.PollInterval,
		runtime,
		resolver,
		evaluator,
		store,
		jobs,
		executor,
		uploader,
		enforcer,
		history,
		notifier,
	)
}

// RunController runs the controller for the app's lifetime. A fatal controller error shuts
// the app down with a non-zero exit code.
func RunController(lc fx.Lifecycle, shutdowner fx.Shutdowner, logger *logrus.Logger, c *controller.Controller) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)

				if err := c.Run(ctx); err != nil {
					if shutdownErr := shutdowner.Shutdown(fx.ExitCode(1)); shutdownErr != nil {
						logger.WithError(shutdownErr).Error("Unable to shut down")
					}
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()

			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}
