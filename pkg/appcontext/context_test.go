package appcontext

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
)

func TestLoggerFromContext(t *testing.T) {
	logger, hook := test.NewNullLogger()

	ctx := WithTrigger(WithTarget(WithContainer(context.Background(), "app"), "postgres-main"), "20240301T030000Z")

	LoggerFromContext(logger, ctx).Info("hello")

	assert.Equal(t, logrus.Fields{
		"container": "app",
		"target":    "postgres-main",
		"trigger":   "20240301T030000Z",
	}, hook.LastEntry().Data)
}

func TestLoggerFromContext_NilContext(t *testing.T) {
	logger, _ := test.NewNullLogger()

	assert.Equal(t, logrus.FieldLogger(logger), LoggerFromContext(logger, nil))
}
