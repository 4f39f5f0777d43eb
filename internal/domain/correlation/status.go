package correlation

import (
	"encoding/json"
	"fmt"
)

// Status classifies a pair's live correlation across the monitoring windows
type Status int

const (
	// StatusNotCalculated means at least one window produced no coefficient
	StatusNotCalculated Status = iota
	// StatusCorrelated means every window is at or above the threshold
	StatusCorrelated
	// StatusDiverged means every window is below the threshold
	StatusDiverged
	// StatusInconsistent means the windows disagree with no monotonic trend
	StatusInconsistent
	// StatusDiverging means correlation weakens from the longest window to
	// the shortest
	StatusDiverging
	// StatusConverging means correlation strengthens from the longest window
	// to the shortest
	StatusConverging
)

var statusCodes = map[Status]string{
	StatusNotCalculated: "NOT_CALCULATED",
	StatusCorrelated:    "CORRELATED",
	StatusDiverged:      "DIVERGED",
	StatusInconsistent:  "INCONSISTENT",
	StatusDiverging:     "DIVERGING",
	StatusConverging:    "CONVERGING",
}

var statusDescriptions = map[Status]string{
	StatusNotCalculated: "Not calculated",
	StatusCorrelated:    "Correlated across all timeframes",
	StatusDiverged:      "Diverged across all timeframes",
	StatusInconsistent:  "Inconsistent across timeframes",
	StatusDiverging:     "Correlation weakening towards the present",
	StatusConverging:    "Correlation recovering towards the present",
}

// String returns the short status code
func (s Status) String() string {
	if code, ok := statusCodes[s]; ok {
		return code
	}
	return fmt.Sprintf("STATUS(%d)", int(s))
}

// Description returns a human-readable explanation of the status
func (s Status) Description() string {
	if desc, ok := statusDescriptions[s]; ok {
		return desc
	}
	return "Unknown"
}

// Divergent reports whether the status counts towards the diverged-symbols
// summary
func (s Status) Divergent() bool {
	switch s {
	case StatusDiverged, StatusDiverging, StatusConverging:
		return true
	}
	return false
}

// ParseStatus converts a short code back into a Status
func ParseStatus(code string) (Status, error) {
	for s, c := range statusCodes {
		if c == code {
			return s, nil
		}
	}
	return StatusNotCalculated, fmt.Errorf("unknown correlation status %q", code)
}

// MarshalJSON encodes the status as its short code
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a status from its short code
func (s *Status) UnmarshalJSON(data []byte) error {
	var code string
	if err := json.Unmarshal(data, &code); err != nil {
		return err
	}
	parsed, err := ParseStatus(code)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
