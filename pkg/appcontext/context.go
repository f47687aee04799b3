package appcontext

import (
	"context"

	"github.com/sirupsen/logrus"
)

type contextId int

const (
	containerKeyId contextId = iota
	targetKeyId
	triggerKeyId
	requestIdKeyId
)

func WithRequestId(ctx context.Context, requestId string) context.Context {
	return context.WithValue(ctx, requestIdKeyId, requestId)
}

func WithContainer(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, containerKeyId, name)
}

// WithTarget stores the "{type}-{instance}" name of a target.
func WithTarget(ctx context.Context, target string) context.Context {
	return context.WithValue(ctx, targetKeyId, target)
}

// WithTrigger stores the job's formatted trigger timestamp.
func WithTrigger(ctx context.Context, ts string) context.Context {
	return context.WithValue(ctx, triggerKeyId, ts)
}

func LoggerFromContext(logger logrus.FieldLogger, ctx context.Context) logrus.FieldLogger {
	if ctx == nil {
		return logger
	}

	result := logger

	if container, ok := ctx.Value(containerKeyId).(string); ok && container != "" {
		result = result.WithField("container", container)
	}

	if target, ok := ctx.Value(targetKeyId).(string); ok && target != "" {
		result = result.WithField("target", target)
	}

	if trigger, ok := ctx.Value(triggerKeyId).(string); ok && trigger != "" {
		result = result.WithField("trigger", trigger)
	}

	if ctxRequestId, ok := ctx.Value(requestIdKeyId).(string); ok && ctxRequestId != "" {
		result = result.WithField("request_id", ctxRequestId)
	}

	return result
}
