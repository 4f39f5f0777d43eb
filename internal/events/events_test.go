package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBaseEvent(t *testing.T) {
	event := NewBaseEvent(TypeStatusChanged, "monitor")

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, "correlation.status_changed", event.Type)
	assert.Equal(t, "monitor", event.Source)
	assert.Equal(t, "1.0", event.Version)
	assert.False(t, event.Timestamp.IsZero())
}

func TestStatusChangedEventJSON(t *testing.T) {
	coefficient := 0.42
	event := StatusChangedEvent{
		BaseEvent:   NewBaseEvent(TypeStatusChanged, "monitor"),
		Symbol1:     "EURUSD",
		Symbol2:     "GBPUSD",
		From:        "CORRELATED",
		To:          "DIVERGED",
		Coefficient: &coefficient,
	}

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))

	// Embedded base fields flatten into the payload
	assert.Equal(t, "correlation.status_changed", decoded["type"])
	assert.Equal(t, "EURUSD", decoded["symbol1"])
	assert.Equal(t, "DIVERGED", decoded["to"])
	assert.InDelta(t, 0.42, decoded["coefficient"].(float64), 1e-9)
}

func TestStatusChangedEventOmitsNilCoefficient(t *testing.T) {
	event := StatusChangedEvent{
		BaseEvent: NewBaseEvent(TypeStatusChanged, "monitor"),
		Symbol1:   "EURUSD",
		Symbol2:   "GBPUSD",
		From:      "CORRELATED",
		To:        "NOT_CALCULATED",
	}

	data, err := json.Marshal(event)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "coefficient")
}

func TestMonitorStateEventJSON(t *testing.T) {
	stopped := MonitorStateEvent{
		BaseEvent: NewBaseEvent(TypeMonitorState, "monitor"),
		Running:   false,
	}

	data, err := json.Marshal(stopped)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"running":false`)
	assert.NotContains(t, string(data), "interval")
}
