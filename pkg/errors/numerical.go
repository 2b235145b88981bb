package errors

import (
	"math"
)

// IsFinite reports whether v is an ordinary floating point value.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// CheckScalar checks a single metric value for numerical instability.
func CheckScalar(metric string, value float64, epoch int) error {
	if !IsFinite(value) {
		return NewNumericalInstabilityError(metric, value, epoch)
	}
	return nil
}

// CheckMetricValues checks every value in an epoch's metric map and returns
// the first instability found. Iteration order over the map is not stable,
// so callers that need deterministic reporting should check named metrics
// individually with CheckScalar.
func CheckMetricValues(values map[string]float64, epoch int) error {
	for name, v := range values {
		if !IsFinite(v) {
			return NewNumericalInstabilityError(name, v, epoch)
		}
	}
	return nil
}
