// Package floatutils provides utilities for working with floats
package floatutils

import "math"

// Clip clips value to the interval [min, max]
func Clip(value, min, max float64) float64 {
	return math.Max(math.Min(value, max), min)
}

// ClipAbs clips value to [-limit, limit]. If limit <= 0, value is
// returned unchanged.
func ClipAbs(value, limit float64) float64 {
	if limit <= 0 {
		return value
	}
	return Clip(value, -limit, limit)
}

// Finite returns whether x is neither NaN nor infinite
func Finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// FirstNonFinite returns the index of the first NaN or infinite value
// in values, or -1 if all values are finite
func FirstNonFinite(values []float64) int {
	for i, v := range values {
		if !Finite(v) {
			return i
		}
	}
	return -1
}
