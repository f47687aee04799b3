package domainfx

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/yurykabanov/baqup/pkg/capture"
	"github.com/yurykabanov/baqup/pkg/docker"
	"github.com/yurykabanov/baqup/pkg/pipeline"
	"github.com/yurykabanov/baqup/pkg/staging"
)

const (
	ConfigStagingRoot    = "staging.root"
	ConfigCaptureTimeout = "capture.timeout"
)

type StagingConfig struct {
	Root string
}

func StagingConfigProvider(v *viper.Viper) *StagingConfig {
	return &StagingConfig{
		Root: v.GetString(ConfigStagingRoot),
	}
}

func StagingManager(config *StagingConfig, logger *logrus.Logger) *staging.Manager {
	logger.WithField("root", config.Root).Debug("Using staging directory")

	return staging.New(config.Root)
}

func CaptureSet(runtime *docker.Runtime) *capture.Set {
	return capture.NewSet(runtime)
}

func Pipeline(
	logger *logrus.Logger,
	v *viper.Viper,
	runtime *docker.Runtime,
	capturers *capture.Set,
	stager *staging.Manager,
) *pipeline.Pipeline {
	return pipeline.New(logger, runtime, capturers, stager, v.GetDuration(ConfigCaptureTimeout))
}
