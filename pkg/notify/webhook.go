package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type webhookPayload struct {
	Timestamp time.Time `json:"timestamp"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
}

// WebhookChannel POSTs a JSON payload to url, retrying on transport errors and 5xx.
type WebhookChannel struct {
	client *retryablehttp.Client
	url    string
	now    func() time.Time
}

func NewWebhookChannel(logger logrus.FieldLogger, url string, timeout time.Duration) *WebhookChannel {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.Logger = leveledLogger{logger: logger}

	if timeout > 0 {
		client.HTTPClient.Timeout = timeout
	}

	return &WebhookChannel{
		client: client,
		url:    url,
		now:    time.Now,
	}
}

func (c *WebhookChannel) Send(ctx context.Context, message string, severity Severity) error {
	body, err := json.Marshal(webhookPayload{
		Timestamp: c.now().UTC(),
		Severity:  severity,
		Message:   message,
	})
	if err != nil {
		return err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return errors.Wrap(err, "unable to build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "webhook delivery failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return errors.Errorf("webhook responded with %s", resp.Status)
	}
	return nil
}

// leveledLogger adapts logrus to retryablehttp.LeveledLogger.
type leveledLogger struct {
	logger logrus.FieldLogger
}

func (l leveledLogger) entry(kv []interface{}) logrus.FieldLogger {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			fields[k] = kv[i+1]
		}
	}
	return l.logger.WithFields(fields)
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.entry(kv).Error(msg) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.entry(kv).Debug(msg) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.entry(kv).Debug(msg) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.entry(kv).Warn(msg) }
