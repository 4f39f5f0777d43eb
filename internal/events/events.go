package events

import (
	"fmt"
	"time"
)

// Event type identifiers
const (
	TypeStatusChanged = "correlation.status_changed"
	TypeDivergence    = "correlation.divergence"
	TypeMonitorState  = "system.monitor_state"
)

// BaseEvent carries the fields shared by every published event
type BaseEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Version   string    `json:"version"`
}

// NewBaseEvent creates a new base event with defaults
func NewBaseEvent(eventType, source string) BaseEvent {
	now := time.Now().UTC()
	return BaseEvent{
		ID:        fmt.Sprintf("%d_%d", now.Unix(), now.Nanosecond()),
		Type:      eventType,
		Timestamp: now,
		Source:    source,
		Version:   "1.0",
	}
}

// StatusChangedEvent is emitted whenever a monitored pair moves between
// correlation statuses
type StatusChangedEvent struct {
	BaseEvent
	Symbol1     string   `json:"symbol1"`
	Symbol2     string   `json:"symbol2"`
	From        string   `json:"from"`
	To          string   `json:"to"`
	Coefficient *float64 `json:"coefficient,omitempty"`
}

// DivergenceEvent is emitted when a pair enters a divergent status. It
// duplicates the status change on purpose so consumers interested only in
// actionable divergences do not have to track transition state themselves.
type DivergenceEvent struct {
	BaseEvent
	Symbol1     string   `json:"symbol1"`
	Symbol2     string   `json:"symbol2"`
	Status      string   `json:"status"`
	Coefficient *float64 `json:"coefficient,omitempty"`
}

// MonitorStateEvent is emitted when the background monitor starts or stops
type MonitorStateEvent struct {
	BaseEvent
	Running  bool   `json:"running"`
	Interval string `json:"interval,omitempty"`
	Windows  int    `json:"windows,omitempty"`
}
