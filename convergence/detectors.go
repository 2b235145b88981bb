package convergence

import (
	"gonum.org/v1/gonum/stat"
)

// The controller's per-epoch pipeline is update → detect → adapt → decide.
// Each detector is a small strategy over the recorded state; the decision
// reducer in decide() fuses their flags in a fixed priority order.

// plateauDetector flags a metric whose recent trend has gone flat. It splits
// the trailing 2×window raw values into an older and a recent half: the
// metric plateaus when the recent half's spread collapses both in absolute
// terms (below minDelta) and relative to the older half.
type plateauDetector struct {
	window   int
	minDelta float64
}

func (d plateauDetector) detect(history []float64) bool {
	need := 2 * d.window
	if len(history) < need {
		return false
	}
	tail := history[len(history)-need:]
	older := tail[:d.window]
	recent := tail[d.window:]

	olderStd := stat.StdDev(older, nil)
	recentStd := stat.StdDev(recent, nil)

	return recentStd < d.minDelta && recentStd < 0.5*olderStd
}

// overfitDetector watches the raw gap between validation and training loss.
// It deliberately skips the moving-average smoothing: the signal of interest
// is immediate divergence, not long-run trend.
type overfitDetector struct {
	gapThreshold float64
	minEpochs    int
}

// detect requires both reserved loss metrics in the epoch's values and at
// least minEpochs of history; otherwise it reports false.
func (d overfitDetector) detect(values map[string]float64, epochsSeen int) (flagged bool, gap float64) {
	trainLoss, hasTrain := values[TrainLossMetric]
	valLoss, hasVal := values[ValLossMetric]
	if !hasTrain || !hasVal {
		return false, 0
	}
	gap = valLoss - trainLoss
	if epochsSeen < d.minEpochs {
		return false, gap
	}
	return gap > d.gapThreshold, gap
}

// decide fuses the counters and detector flags into a single action. The
// order is fixed: patience exhaustion wins over the overfitting short-circuit,
// which wins over the plateau cut-off. The /2 and /3 thresholds compare in
// real-valued form, hence the multiplications.
func decide(wait, patience, plateauStreak int, overfitting bool) (Action, StopReason) {
	switch {
	case wait >= patience:
		return Stop, ReasonPatienceExhausted
	case overfitting && 2*wait >= patience:
		return Stop, ReasonOverfitting
	case 3*plateauStreak >= patience:
		return Stop, ReasonPlateau
	default:
		return Continue, ""
	}
}
