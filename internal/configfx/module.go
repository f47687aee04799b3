package configfx

import (
	"go.uber.org/fx"
)

var Module = fx.Module(
	"config",
	fx.Provide(PFlags),
	fx.Provide(ViperProvider),
	fx.Invoke(LogConfigSource),
)
