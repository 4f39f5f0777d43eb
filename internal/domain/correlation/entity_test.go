package correlation

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSymbolPairKey(t *testing.T) {
	ab := NewPair("EURUSD", "GBPUSD")
	ba := NewPair("GBPUSD", "EURUSD")

	assert.Equal(t, ab.Key(), ba.Key())
	assert.Equal(t, "EURUSD:GBPUSD", ab.Key())
	assert.Equal(t, "EURUSD:GBPUSD", ab.String())
	assert.Equal(t, "GBPUSD:EURUSD", ba.String())
}

func TestSymbolPairContains(t *testing.T) {
	pair := NewPair("EURUSD", "GBPUSD")

	assert.True(t, pair.Contains("EURUSD"))
	assert.True(t, pair.Contains("GBPUSD"))
	assert.False(t, pair.Contains("USDJPY"))
}

func TestWindowSpan(t *testing.T) {
	assert.Equal(t, 15*time.Minute, Window{LookbackMinutes: 15}.Span())
	assert.Equal(t, 30*time.Second, Window{LookbackMinutes: 0.5}.Span())
}

func TestStatusCodes(t *testing.T) {
	assert.Equal(t, "CORRELATED", StatusCorrelated.String())
	assert.Equal(t, "NOT_CALCULATED", StatusNotCalculated.String())
	assert.Equal(t, "DIVERGING", StatusDiverging.String())

	parsed, err := ParseStatus("DIVERGED")
	require.NoError(t, err)
	assert.Equal(t, StatusDiverged, parsed)

	_, err = ParseStatus("WOBBLY")
	assert.Error(t, err)
}

func TestStatusDivergent(t *testing.T) {
	assert.True(t, StatusDiverged.Divergent())
	assert.True(t, StatusDiverging.Divergent())
	assert.True(t, StatusConverging.Divergent())
	assert.False(t, StatusCorrelated.Divergent())
	assert.False(t, StatusInconsistent.Divergent())
	assert.False(t, StatusNotCalculated.Divergent())
}

func TestStatusJSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(StatusDiverging)
	require.NoError(t, err)
	assert.Equal(t, `"DIVERGING"`, string(data))

	var s Status
	require.NoError(t, json.Unmarshal(data, &s))
	assert.Equal(t, StatusDiverging, s)

	assert.Error(t, json.Unmarshal([]byte(`"WOBBLY"`), &s))
}

func TestRecordJSONOmitsEmptyLiveFields(t *testing.T) {
	rec := Record{
		SymbolPair:      NewPair("EURUSD", "GBPUSD"),
		BaseCoefficient: 0.95,
		DateFrom:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		DateTo:          time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "last_checked_at")
	assert.NotContains(t, string(data), "last_coefficient")
	assert.Contains(t, string(data), `"status":"NOT_CALCULATED"`)
}
