// Package telemetry turns executor stage timings into display strings.
package telemetry

import (
	"strconv"

	"github.com/teslashibe/go-superres/pkg/executor"
)

// Unit is appended by Label.
const Unit = " ms"

// Format returns the inference-only time and the total of all three stages,
// both in milliseconds with exactly two decimals.
func Format(p executor.Prediction) (inference, total string) {
	return FormatNanos(p.Inference), FormatNanos(p.Total())
}

// FormatNanos renders ns as milliseconds with two decimals, never in
// exponent form. Negative durations render as 0.00.
func FormatNanos(ns int64) string {
	return strconv.FormatFloat(Millis(ns), 'f', 2, 64)
}

// Millis converts nanoseconds to milliseconds, clamping negatives to zero.
func Millis(ns int64) float64 {
	if ns < 0 {
		return 0
	}
	return float64(ns) / 1e6
}

// Label appends the unit suffix shown next to each timing.
func Label(text string) string {
	return text + Unit
}
