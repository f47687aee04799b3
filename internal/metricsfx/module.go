package metricsfx

import (
	"go.uber.org/fx"
)

var Module = fx.Module(
	"metrics",
	fx.Provide(HttpServerConfigProvider),
	fx.Provide(HttpServer),
	fx.Provide(HttpRouter),
	fx.Invoke(RunServer),

	fx.Provide(LatestBackupMetricHandler),
	fx.Provide(TargetMetricHandler),
	fx.Invoke(RegisterMetricHandlers),
)
