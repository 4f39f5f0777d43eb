package sentry

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"

	"pairwatch/pkg/errors"
)

// Tracker reports errors to Sentry
type Tracker struct {
	hub *sentry.Hub
}

// New initializes the Sentry SDK and returns a tracker bound to the
// current hub
func New(dsn, environment, release string) (*Tracker, error) {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
		Release:     release,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init sentry")
	}

	return &Tracker{hub: sentry.CurrentHub()}, nil
}

// CaptureError sends an error to Sentry with the given tags
func (t *Tracker) CaptureError(ctx context.Context, err error, tags map[string]string) error {
	hub := t.hub.Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
	})
	hub.CaptureException(err)
	return nil
}

// CaptureMessage sends a message to Sentry at the given level
func (t *Tracker) CaptureMessage(ctx context.Context, message string, level errors.Level, tags map[string]string) error {
	hub := t.hub.Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		scope.SetLevel(convertLevel(level))
	})
	hub.CaptureMessage(message)
	return nil
}

// Flush blocks until buffered events are delivered
func (t *Tracker) Flush(ctx context.Context) error {
	if !sentry.Flush(2 * time.Second) {
		return errors.Wrap(errors.ErrTimeout, "sentry flush")
	}
	return nil
}

func convertLevel(level errors.Level) sentry.Level {
	switch level {
	case errors.LevelDebug:
		return sentry.LevelDebug
	case errors.LevelWarning:
		return sentry.LevelWarning
	case errors.LevelError:
		return sentry.LevelError
	case errors.LevelFatal:
		return sentry.LevelFatal
	default:
		return sentry.LevelInfo
	}
}
