package convergence

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// metricState tracks one monitored metric across the run: its full raw
// history, the best value seen so far, and the epoch where it occurred.
type metricState struct {
	spec   MetricSpec
	window int

	history []float64 // one raw value per evaluated epoch
	epochs  []int     // epoch number for each history entry

	best      float64 // best raw value so far, per direction
	bestEpoch int     // epoch of best, -1 until the first improvement
}

func newMetricState(spec MetricSpec, defaultWindow int) *metricState {
	window := spec.Window
	if window == 0 {
		window = defaultWindow
	}
	best := math.Inf(1)
	if spec.Direction == Maximize {
		best = math.Inf(-1)
	}
	return &metricState{
		spec:      spec,
		window:    window,
		best:      best,
		bestEpoch: -1,
	}
}

func (m *metricState) append(epoch int, value float64) {
	m.history = append(m.history, value)
	m.epochs = append(m.epochs, epoch)
}

// smoothed returns the mean of the trailing window raw values. Early in the
// run, while fewer than window values exist, it averages what is available.
func (m *metricState) smoothed() float64 {
	n := len(m.history)
	if n == 0 {
		return math.NaN()
	}
	start := n - m.window
	if start < 0 {
		start = 0
	}
	return stat.Mean(m.history[start:], nil)
}

// improved reports whether value beats the current best by more than
// minDelta in this metric's direction. It does not update state.
func (m *metricState) improved(value, minDelta float64) bool {
	if m.spec.Direction == Maximize {
		return value-m.best > minDelta
	}
	return m.best-value > minDelta
}

// markBest records value as the new best.
func (m *metricState) markBest(epoch int, value float64) {
	m.best = value
	m.bestEpoch = epoch
}
