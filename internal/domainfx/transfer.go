package domainfx

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/yurykabanov/baqup/pkg/retention"
	"github.com/yurykabanov/baqup/pkg/staging"
	"github.com/yurykabanov/baqup/pkg/transfer"
)

const (
	ConfigUploadBackend      = "upload.backend"
	ConfigUploadRemoteRoot   = "upload.remote_root"
	ConfigUploadRcloneBinary = "upload.rclone.binary"
	ConfigUploadRcloneConfig = "upload.rclone.config"
	ConfigStagingCleanup     = "staging.cleanup_after_upload"
)

type TransferConfig struct {
	Backend      string
	RemoteRoot   string
	RcloneBinary string
	RcloneConfig string
	Cleanup      bool
}

func TransferConfigProvider(v *viper.Viper) (*TransferConfig, error) {
	config := &TransferConfig{
		Backend:      v.GetString(ConfigUploadBackend),
		RemoteRoot:   v.GetString(ConfigUploadRemoteRoot),
		RcloneBinary: v.GetString(ConfigUploadRcloneBinary),
		RcloneConfig: v.GetString(ConfigUploadRcloneConfig),
		Cleanup:      v.GetBool(ConfigStagingCleanup),
	}

	if config.RemoteRoot == "" {
		return nil, errors.Errorf("%s is required", ConfigUploadRemoteRoot)
	}

	return config, nil
}

func TransferManager(config *TransferConfig, logger *logrus.Logger) *transfer.Manager {
	return transfer.NewManager(map[string]transfer.Backend{
		"rclone": transfer.NewRcloneBackend(logger, config.RcloneBinary, config.RcloneConfig, config.RemoteRoot),
		"local":  transfer.NewLocalBackend(config.RemoteRoot),
	})
}

func TransferBackend(config *TransferConfig, manager *transfer.Manager, logger *logrus.Logger) (transfer.Backend, error) {
	backend, err := manager.Backend(config.Backend)
	if err != nil {
		return nil, errors.Wrapf(err, "available backends: %v", manager.Names())
	}

	logger.WithFields(logrus.Fields{
		"backend": config.Backend,
		"root":    config.RemoteRoot,
	}).Info("Using upload backend")

	return backend, nil
}

func Uploader(
	config *TransferConfig,
	logger *logrus.Logger,
	backend transfer.Backend,
	stager *staging.Manager,
) *transfer.Uploader {
	return transfer.NewUploader(logger, backend, stager, config.Cleanup)
}

func RetentionEnforcer(logger *logrus.Logger, backend transfer.Backend, stager *staging.Manager) *retention.Enforcer {
	return retention.NewEnforcer(logger, backend, stager)
}
