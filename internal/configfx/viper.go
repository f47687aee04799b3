package configfx

import (
	"path"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix              = "baqup"
	DefaultConfigDirectory = "baqup"
	DefaultConfigFile      = "baqup"
)

var (
	defaultConfigPaths = []string{
		".",
		"./config",
		path.Join("/etc", DefaultConfigDirectory),
	}

	defaults = map[string]interface{}{
		"log.level":  "info",
		"log.format": "text",

		"controller.poll_interval":   60,
		"controller.events_capacity": 100,

		"defaults.target.schedule": "daily",
		"defaults.target.compress": true,

		"staging.root":                 "/var/lib/baqup/staging",
		"staging.cleanup_after_upload": true,

		"upload.backend":       "rclone",
		"upload.rclone.binary": "rclone",

		"capture.timeout": time.Hour,

		"notifications.on_success":      false,
		"notifications.webhook.timeout": 10 * time.Second,

		"db.dsn": "/var/lib/baqup/baqup.db",

		"server.timeout.read":  10 * time.Second,
		"server.timeout.write": 10 * time.Second,
	}
)

func ViperProvider(logger *logrus.Logger, flagSet *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	// Only flags given on the command line override the config file
	var err error
	flagSet.Visit(func(f *pflag.Flag) {
		if err == nil {
			err = v.BindPFlag(f.Name, f)
		}
	})
	if err != nil {
		return nil, err
	}

	v.AutomaticEnv()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config from config file
	if configFile, _ := flagSet.GetString("config"); configFile != "" {
		// If user do specify config file, then this file MUST exist and be valid
		// so missing file is a fatal error

		v.SetConfigFile(configFile)

		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	} else {
		// If user does not specify config file, then we'll still try to find appropriate config,
		// but missing file is not an error

		v.SetConfigName(DefaultConfigFile)

		for _, dir := range defaultConfigPaths {
			v.AddConfigPath(dir)
		}

		if err := v.ReadInConfig(); err != nil {
			logger.WithError(err).Warn("Couldn't read config file")
		}
	}

	return v, nil
}

func LogConfigSource(logger *logrus.Logger, v *viper.Viper) {
	if file := v.ConfigFileUsed(); file != "" {
		logger.WithField("file", file).Info("Using config file")
		return
	}

	logger.Info("No config file found, using defaults and environment")
}
