package domainfx

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/yurykabanov/baqup/pkg/notify"
)

const (
	ConfigNotifyOnSuccess      = "notifications.on_success"
	ConfigNotifyWebhookUrl     = "notifications.webhook.url"
	ConfigNotifyWebhookTimeout = "notifications.webhook.timeout"
)

type NotifierConfig struct {
	OnSuccess      bool
	WebhookUrl     string
	WebhookTimeout time.Duration
}

func NotifierConfigProvider(v *viper.Viper) *NotifierConfig {
	return &NotifierConfig{
		OnSuccess:      v.GetBool(ConfigNotifyOnSuccess),
		WebhookUrl:     v.GetString(ConfigNotifyWebhookUrl),
		WebhookTimeout: v.GetDuration(ConfigNotifyWebhookTimeout),
	}
}

func Notifier(config *NotifierConfig, logger *logrus.Logger) *notify.Notifier {
	channels := []notify.Channel{notify.NewLogChannel(logger)}

	if config.WebhookUrl != "" {
		channels = append(channels, notify.NewWebhookChannel(logger, config.WebhookUrl, config.WebhookTimeout))
	}

	return notify.New(logger, config.OnSuccess, channels...)
}
