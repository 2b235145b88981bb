package convergence

import (
	"math"
	"testing"
)

func TestPlateauDetector(t *testing.T) {
	d := plateauDetector{window: 5, minDelta: 1e-5}

	descending := make([]float64, 10)
	for i := range descending {
		descending[i] = 1.0 - 0.05*float64(i)
	}

	flatAfterDescent := append([]float64{1.0, 0.9, 0.8, 0.7, 0.6}, 0.5, 0.5, 0.5, 0.5, 0.5)

	constant := make([]float64, 10)
	for i := range constant {
		constant[i] = 0.5
	}

	tests := []struct {
		name    string
		history []float64
		want    bool
	}{
		{"too few observations", []float64{1, 2, 3}, false},
		{"still descending", descending, false},
		{"flat after descent", flatAfterDescent, true},
		// Both halves are identically flat, so the relative-collapse
		// condition cannot hold.
		{"constant from the start", constant, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.detect(tt.history); got != tt.want {
				t.Errorf("detect(%v) = %v, want %v", tt.history, got, tt.want)
			}
		})
	}
}

func TestPlateauDetectorUsesTrailingWindow(t *testing.T) {
	d := plateauDetector{window: 3, minDelta: 1e-5}

	// Long-cold start followed by a fresh descent: the trailing six values
	// still move, so no plateau despite earlier flatness.
	history := []float64{1, 1, 1, 1, 1, 1, 0.9, 0.8, 0.7, 0.6, 0.5, 0.4}
	if d.detect(history) {
		t.Error("plateau flagged during an active descent")
	}
}

func TestOverfitDetector(t *testing.T) {
	d := overfitDetector{gapThreshold: 0.1, minEpochs: 10}

	tests := []struct {
		name       string
		values     map[string]float64
		epochsSeen int
		want       bool
		wantGap    float64
	}{
		{
			"missing train loss",
			map[string]float64{ValLossMetric: 0.9},
			20, false, 0,
		},
		{
			"missing val loss",
			map[string]float64{TrainLossMetric: 0.2},
			20, false, 0,
		},
		{
			"gap below threshold",
			map[string]float64{TrainLossMetric: 0.50, ValLossMetric: 0.55},
			20, false, 0.05,
		},
		{
			"gap above threshold but too early",
			map[string]float64{TrainLossMetric: 0.2, ValLossMetric: 0.5},
			9, false, 0.3,
		},
		{
			"diverging",
			map[string]float64{TrainLossMetric: 0.2, ValLossMetric: 0.5},
			10, true, 0.3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, gap := d.detect(tt.values, tt.epochsSeen)
			if got != tt.want {
				t.Errorf("detect = %v, want %v", got, tt.want)
			}
			if math.Abs(gap-tt.wantGap) > 1e-12 {
				t.Errorf("gap = %v, want %v", gap, tt.wantGap)
			}
		})
	}
}

func TestDecideOrder(t *testing.T) {
	tests := []struct {
		name          string
		wait          int
		patience      int
		plateauStreak int
		overfitting   bool
		wantAction    Action
		wantReason    StopReason
	}{
		{"continue", 3, 20, 0, false, Continue, ""},
		{"patience exhausted", 20, 20, 0, false, Stop, ReasonPatienceExhausted},
		// Patience exhaustion outranks the other rules even when they fire.
		{"patience beats overfitting", 20, 20, 10, true, Stop, ReasonPatienceExhausted},
		{"overfitting at half patience", 10, 20, 0, true, Stop, ReasonOverfitting},
		{"overfitting below half patience", 9, 20, 0, true, Continue, ""},
		{"overfitting at half of odd patience", 11, 21, 0, true, Stop, ReasonOverfitting},
		{"plateau at a third", 3, 20, 7, false, Stop, ReasonPlateau},
		{"plateau below a third", 3, 20, 6, false, Continue, ""},
		{"overfitting beats plateau", 10, 20, 7, true, Stop, ReasonOverfitting},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, reason := decide(tt.wait, tt.patience, tt.plateauStreak, tt.overfitting)
			if action != tt.wantAction || reason != tt.wantReason {
				t.Errorf("decide = %v, %q; want %v, %q", action, reason, tt.wantAction, tt.wantReason)
			}
		})
	}
}

func TestSmoothedWindowMean(t *testing.T) {
	m := newMetricState(MetricSpec{Name: ValLossMetric, Direction: Minimize}, 3)

	values := []float64{4, 2, 6, 8}
	wants := []float64{4, 3, 4, 16.0 / 3.0}
	for i, v := range values {
		m.append(i+1, v)
		if got := m.smoothed(); math.Abs(got-wants[i]) > 1e-12 {
			t.Errorf("after %d values: smoothed = %v, want %v", i+1, got, wants[i])
		}
	}
}
