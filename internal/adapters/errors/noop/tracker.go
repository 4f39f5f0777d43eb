package noop

import (
	"context"

	"pairwatch/pkg/errors"
)

// Tracker discards every event. Used when error tracking is disabled
// and in tests.
type Tracker struct{}

// New creates a no-op tracker
func New() *Tracker {
	return &Tracker{}
}

// CaptureError does nothing
func (t *Tracker) CaptureError(ctx context.Context, err error, tags map[string]string) error {
	return nil
}

// CaptureMessage does nothing
func (t *Tracker) CaptureMessage(ctx context.Context, message string, level errors.Level, tags map[string]string) error {
	return nil
}

// Flush does nothing
func (t *Tracker) Flush(ctx context.Context) error {
	return nil
}
