package dockerfx

import (
	"go.uber.org/fx"
)

var Module = fx.Module(
	"docker",
	fx.Provide(DockerConnectionConfigProvider),
	fx.Provide(DockerClient),
	fx.Provide(DockerRuntime),
	fx.Invoke(CloseDockerClient),
)
