package loggerfx

import (
	"go.uber.org/fx"
)

var Module = fx.Module(
	"logger",
	fx.Provide(Logger),
	fx.Provide(DefaultLoggerAdapter),
	fx.Invoke(ConfigureLogger),
)
