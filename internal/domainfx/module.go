package domainfx

import (
	"go.uber.org/fx"

	"github.com/yurykabanov/baqup/pkg/queue"
)

var Module = fx.Module(
	"domain",
	fx.Provide(LoadDefaults),
	fx.Provide(Resolver),
	fx.Provide(Evaluator),

	fx.Provide(StagingConfigProvider),
	fx.Provide(StagingManager),
	fx.Provide(CaptureSet),
	fx.Provide(Pipeline),

	fx.Provide(TransferConfigProvider),
	fx.Provide(TransferManager),
	fx.Provide(TransferBackend),
	fx.Provide(Uploader),
	fx.Provide(RetentionEnforcer),

	fx.Provide(NotifierConfigProvider),
	fx.Provide(Notifier),

	fx.Provide(ControllerConfigProvider),
	fx.Provide(StateStore),
	fx.Provide(queue.New),
	fx.Provide(Controller),
	fx.Invoke(RunController),
)
