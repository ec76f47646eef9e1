package telemetry

import (
	"math"
	"regexp"
	"testing"

	"github.com/teslashibe/go-superres/pkg/executor"
)

var twoDecimals = regexp.MustCompile(`^[0-9]+\.[0-9]{2}$`)

func TestFormat(t *testing.T) {
	tests := []struct {
		name      string
		pred      executor.Prediction
		wantInfer string
		wantTotal string
	}{
		{
			name:      "zero",
			pred:      executor.Prediction{},
			wantInfer: "0.00",
			wantTotal: "0.00",
		},
		{
			name:      "mock timings",
			pred:      executor.Prediction{Preprocess: 1_250_000, Inference: 8_500_000, Postprocess: 750_000},
			wantInfer: "8.50",
			wantTotal: "10.50",
		},
		{
			name:      "sub-millisecond",
			pred:      executor.Prediction{Inference: 4_000},
			wantInfer: "0.00",
			wantTotal: "0.00",
		},
		{
			name:      "rounds to nearest",
			pred:      executor.Prediction{Inference: 12_345_678},
			wantInfer: "12.35",
			wantTotal: "12.35",
		},
		{
			name:      "tie rounds half even",
			pred:      executor.Prediction{Inference: 125_000},
			wantInfer: "0.12",
			wantTotal: "0.12",
		},
		{
			name:      "tie rounds half even upward",
			pred:      executor.Prediction{Inference: 375_000},
			wantInfer: "0.38",
			wantTotal: "0.38",
		},
		{
			name:      "multi-second",
			pred:      executor.Prediction{Preprocess: 1_000_000_000, Inference: 3_210_000_000, Postprocess: 5_000_000},
			wantInfer: "3210.00",
			wantTotal: "4215.00",
		},
		{
			name:      "negative clamps",
			pred:      executor.Prediction{Inference: -5_000_000},
			wantInfer: "0.00",
			wantTotal: "0.00",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			infer, total := Format(tc.pred)
			if infer != tc.wantInfer {
				t.Errorf("inference = %q, want %q", infer, tc.wantInfer)
			}
			if total != tc.wantTotal {
				t.Errorf("total = %q, want %q", total, tc.wantTotal)
			}
		})
	}
}

func TestFormatNanos_AlwaysTwoDecimals(t *testing.T) {
	inputs := []int64{0, 1, 999, 1_000, 499_999, 500_000, 1_000_000, 99_999_999, 1_000_000_000, 59_999_999_999, math.MaxInt32, 1 << 40}
	for _, ns := range inputs {
		got := FormatNanos(ns)
		if !twoDecimals.MatchString(got) {
			t.Errorf("FormatNanos(%d) = %q, want digits with two decimals", ns, got)
		}
	}
}

func TestLabel(t *testing.T) {
	if got := Label("8.50"); got != "8.50 ms" {
		t.Errorf("Label = %q, want %q", got, "8.50 ms")
	}
}
