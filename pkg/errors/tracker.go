package errors

import (
	"context"
)

// Tracker reports captured errors and messages to an external tracking
// service. The logger forwards Error-and-above records through this
// interface, so implementations must be safe for concurrent use.
type Tracker interface {
	// CaptureError reports an error with optional tags
	CaptureError(ctx context.Context, err error, tags map[string]string) error

	// CaptureMessage reports a plain message at the given level
	CaptureMessage(ctx context.Context, message string, level Level, tags map[string]string) error

	// Flush blocks until buffered events are delivered or ctx expires
	Flush(ctx context.Context) error
}

// Level is the severity attached to a captured event
type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelFatal   Level = "fatal"
)

func (l Level) String() string {
	return string(l)
}
