package main

import (
	"time"

	"go.uber.org/fx"

	"github.com/yurykabanov/baqup/internal/configfx"
	"github.com/yurykabanov/baqup/internal/dockerfx"
	"github.com/yurykabanov/baqup/internal/domainfx"
	"github.com/yurykabanov/baqup/internal/loggerfx"
	"github.com/yurykabanov/baqup/internal/metricsfx"
	"github.com/yurykabanov/baqup/internal/sqlfx"
)

func modules() fx.Option {
	return fx.Options(
		loggerfx.Module,
		configfx.Module,
		sqlfx.Module,
		dockerfx.Module,
		domainfx.Module,
		metricsfx.Module,
	)
}

func main() {
	logger := loggerfx.Logger()

	app := fx.New(
		fx.StartTimeout(15*time.Second),
		// the worker finishes the running job and restarts a stopped container
		fx.StopTimeout(3*time.Minute),

		fx.Logger(logger),

		modules(),
	)

	app.Run()
}
