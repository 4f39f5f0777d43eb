package correlation

import (
	domain "pairwatch/internal/domain/correlation"
)

// Classify derives a pair's live status from its per-window coefficients,
// ordered longest window first. A nil coefficient in any window means the
// status cannot be determined.
//
// For a pair monitored in inverse mode the sequence is negated and judged
// against the same threshold, so a strong negative correlation counts as
// correlated and a weakening one as diverging.
func Classify(coefficients []*float64, threshold float64, inverse bool) domain.Status {
	if len(coefficients) == 0 {
		return domain.StatusNotCalculated
	}

	values := make([]float64, len(coefficients))
	for i, c := range coefficients {
		if c == nil {
			return domain.StatusNotCalculated
		}
		if inverse {
			values[i] = -*c
		} else {
			values[i] = *c
		}
	}

	allAbove, allBelow := true, true
	for _, v := range values {
		if v >= threshold {
			allBelow = false
		} else {
			allAbove = false
		}
	}
	if allAbove {
		return domain.StatusCorrelated
	}
	if allBelow {
		return domain.StatusDiverged
	}

	// Mixed against the threshold: look for a monotonic trend from the
	// longest window towards the shortest.
	nonIncreasing, nonDecreasing := true, true
	for i := 1; i < len(values); i++ {
		if values[i] > values[i-1] {
			nonIncreasing = false
		}
		if values[i] < values[i-1] {
			nonDecreasing = false
		}
	}
	if nonIncreasing {
		return domain.StatusDiverging
	}
	if nonDecreasing {
		return domain.StatusConverging
	}

	return domain.StatusInconsistent
}
