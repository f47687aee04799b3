package dockerfx

import (
	"context"
	"time"

	docker "github.com/docker/docker/client"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"go.uber.org/fx"

	dockerruntime "github.com/yurykabanov/baqup/pkg/docker"
	"github.com/yurykabanov/baqup/pkg/labels"
)

const (
	ConfigDockerHost    = "docker.host"
	ConfigDockerVersion = "docker.version"
)

type DockerConnectionConfig struct {
	Host    string
	Version string
}

func DockerConnectionConfigProvider(v *viper.Viper) (*DockerConnectionConfig, error) {
	return &DockerConnectionConfig{
		Host:    v.GetString(ConfigDockerHost),
		Version: v.GetString(ConfigDockerVersion),
	}, nil
}

// DockerClient honours DOCKER_HOST and friends unless docker.host is set; the API version
// is negotiated unless docker.version pins it.
func DockerClient(config *DockerConnectionConfig, logger *logrus.Logger) (*docker.Client, error) {
	opts := []docker.Opt{docker.FromEnv}

	if config.Host != "" {
		opts = append(opts, docker.WithHost(config.Host))
	}

	if config.Version != "" {
		opts = append(opts, docker.WithVersion(config.Version))
	} else {
		opts = append(opts, docker.WithAPIVersionNegotiation())
	}

	client, err := docker.NewClientWithOpts(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to create docker client")
	}

	logger.WithField("host", client.DaemonHost()).Debug("Connecting to docker")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err = client.Ping(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to ping docker")
	}

	return client, nil
}

func DockerRuntime(logger *logrus.Logger, client *docker.Client) *dockerruntime.Runtime {
	return dockerruntime.NewRuntime(logger, client, labels.EnabledLabel)
}

func CloseDockerClient(lc fx.Lifecycle, client *docker.Client) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
}
