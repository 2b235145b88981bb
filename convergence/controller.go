// Package convergence implements the adaptive, multi-criteria
// training-convergence controller used when fitting the crop-classification
// models.
//
// A Controller is consumed by a single synchronous training loop: Evaluate is
// called strictly once per epoch, in increasing epoch order, and answers
// Continue or Stop. Internally each epoch runs a layered pipeline: update
// metric state, run the improvement/plateau/overfitting detectors, adapt
// patience, then reduce to a decision. On improvement the controller captures
// an exclusively owned snapshot of the model parameters through the supplied
// provider, so the best-performing weights can be restored when training
// stops.
//
// Controllers are not safe for concurrent use; parallel model-comparison runs
// take one Controller per model variant.
package convergence

import (
	"log/slog"

	"github.com/RALE0/croptrain/pkg/errors"
	croplog "github.com/RALE0/croptrain/pkg/log"
)

// SnapshotProvider produces an opaque, independently owned copy of the
// current model parameters. The controller invokes it only on epochs where a
// monitored metric improves, never on ordinary epochs.
type SnapshotProvider func() (interface{}, error)

// Controller owns all convergence-monitoring state for one training run.
type Controller struct {
	cfg Config

	// metrics holds one state per monitored metric, in MonitorMetrics order.
	metrics []*metricState
	byName  map[string]*metricState

	overfit overfitDetector

	wait             int
	patience         int // current, possibly adapted
	originalPatience int
	plateauStreak    int

	lastEpoch  int
	epochsSeen int

	bestEpoch  int
	bestMetric string

	snapshot    interface{}
	hasSnapshot bool

	records         []DecisionRecord
	numericalEvents int

	stopped    bool
	stopEpoch  int
	stopReason StopReason

	logger *slog.Logger
}

// New constructs a Controller from a validated configuration. Malformed
// configuration fails here, never at the first Evaluate call.
func New(cfg Config) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Controller{
		cfg:              cfg,
		byName:           make(map[string]*metricState, len(cfg.MonitorMetrics)),
		overfit:          overfitDetector{gapThreshold: overfitGapThreshold, minEpochs: overfitMinEpochs},
		patience:         cfg.Patience,
		originalPatience: cfg.Patience,
		lastEpoch:        -1,
		bestEpoch:        -1,
		stopEpoch:        -1,
		logger:           slog.Default(),
	}
	for _, spec := range cfg.MonitorMetrics {
		m := newMetricState(spec, cfg.WindowSize)
		c.metrics = append(c.metrics, m)
		c.byName[spec.Name] = m
	}
	return c, nil
}

// Evaluate runs the per-epoch pipeline and decides whether training should
// continue. epoch must be strictly greater than any previously seen epoch;
// values must contain every configured monitored metric; provider must be
// non-nil. Violations fail the call without mutating controller state, as
// does a snapshot-provider failure: the epoch stays unconsumed and may be
// retried.
//
// NaN or Inf in a monitored metric (or in the reserved loss pair) also fails
// the call: non-finite values are counted and reported distinctly so
// operators can tell numerical instability from a legitimate plateau, never
// silently coerced into "no improvement".
func (c *Controller) Evaluate(epoch int, values map[string]float64, provider SnapshotProvider) (Action, error) {
	if err := c.checkUsage(epoch, values, provider); err != nil {
		return Continue, err
	}
	if err := c.checkFinite(epoch, values); err != nil {
		return Continue, err
	}

	var improved []string
	for _, m := range c.metrics {
		if m.improved(values[m.spec.Name], c.cfg.MinDelta) {
			improved = append(improved, m.spec.Name)
		}
	}

	// Capture the snapshot before any state mutation: a failing provider must
	// leave the epoch unconsumed and retryable, and the best epoch must never
	// advance past the snapshot that backs it.
	var snap interface{}
	if len(improved) > 0 {
		s, err := provider()
		if err != nil {
			return Continue, errors.Wrapf(err, "snapshot provider failed at epoch %d", epoch)
		}
		snap = s
	}

	// Update: append raw values and refresh best-value bookkeeping.
	c.lastEpoch = epoch
	c.epochsSeen++
	for _, m := range c.metrics {
		m.append(epoch, values[m.spec.Name])
	}

	if len(improved) > 0 {
		for _, name := range improved {
			c.byName[name].markBest(epoch, values[name])
		}
		c.wait = 0
		c.bestEpoch = epoch
		c.bestMetric = improved[0]
		// Exclusive ownership: the previous best is discarded here.
		c.snapshot = snap
		c.hasSnapshot = true
	} else {
		c.wait++
	}

	// Detect: plateau per metric (any metric extends the streak) and the raw
	// train/validation loss gap.
	plateaued := false
	for _, m := range c.metrics {
		d := plateauDetector{window: m.window, minDelta: c.cfg.MinDelta}
		if d.detect(m.history) {
			plateaued = true
			break
		}
	}
	if plateaued {
		c.plateauStreak++
	} else {
		c.plateauStreak = 0
	}

	overfitting, gap := c.overfit.detect(values, c.epochsSeen)

	// Adapt: extend patience while some metric still made recent progress.
	adapted := c.adaptPatience()

	// Decide.
	action, reason := decide(c.wait, c.patience, c.plateauStreak, overfitting)

	c.appendRecord(epoch, values, improved, plateaued, overfitting, gap, adapted, action, reason)
	c.logDecision(epoch, action, reason)

	if action == Stop {
		c.stopped = true
		c.stopEpoch = epoch
		c.stopReason = reason
		if c.cfg.RestoreBestWeights && !c.hasSnapshot {
			errors.Warn(errors.NewRestoreWarning(c.epochsSeen, "no monitored metric ever improved"))
		}
		c.persistArtifacts()
	}
	return action, nil
}

func (c *Controller) checkUsage(epoch int, values map[string]float64, provider SnapshotProvider) error {
	if c.stopped {
		return errors.NewUsageErrorf("Evaluate", "controller already stopped at epoch %d", c.stopEpoch)
	}
	if provider == nil {
		return errors.NewUsageError("Evaluate", "snapshot provider must not be nil")
	}
	if epoch < 0 {
		return errors.NewUsageErrorf("Evaluate", "epoch must be non-negative, got %d", epoch)
	}
	if epoch <= c.lastEpoch {
		return errors.NewUsageErrorf("Evaluate", "epoch %d is not greater than last seen epoch %d", epoch, c.lastEpoch)
	}
	for _, m := range c.metrics {
		if _, ok := values[m.spec.Name]; !ok {
			return errors.NewUsageErrorf("Evaluate", "missing value for monitored metric '%s' at epoch %d", m.spec.Name, epoch)
		}
	}
	return nil
}

func (c *Controller) checkFinite(epoch int, values map[string]float64) error {
	check := func(name string) error {
		v, ok := values[name]
		if !ok {
			return nil
		}
		if err := errors.CheckScalar(name, v, epoch); err != nil {
			c.numericalEvents++
			return err
		}
		return nil
	}
	for _, m := range c.metrics {
		if err := check(m.spec.Name); err != nil {
			return err
		}
	}
	// The reserved loss pair feeds the overfitting detector even when it is
	// not monitored, so it gets the same finiteness contract.
	for _, name := range []string{TrainLossMetric, ValLossMetric} {
		if _, monitored := c.byName[name]; monitored {
			continue
		}
		if err := check(name); err != nil {
			return err
		}
	}
	return nil
}

// adaptPatience grows the patience threshold when the primary criterion is
// close to exhaustion but some monitored metric still improved within the
// most recent window. Growth is bounded at adaptMaxFactor times the original
// patience so a trickle of marginal improvements cannot stall termination
// forever.
func (c *Controller) adaptPatience() bool {
	if !c.cfg.AdaptivePatience {
		return false
	}
	if float64(c.wait) <= adaptTriggerRatio*float64(c.patience) {
		return false
	}
	if c.recentImprovedMetrics(c.cfg.WindowSize) == 0 {
		return false
	}
	limit := adaptMaxFactor * c.originalPatience
	if c.patience >= limit {
		return false
	}
	c.patience += adaptStep
	if c.patience > limit {
		c.patience = limit
	}
	return true
}

// recentImprovedMetrics counts distinct monitored metrics that improved in
// the last n decision records.
func (c *Controller) recentImprovedMetrics(n int) int {
	start := len(c.records) - n
	if start < 0 {
		start = 0
	}
	seen := make(map[string]struct{})
	for _, rec := range c.records[start:] {
		for _, name := range rec.Improved {
			seen[name] = struct{}{}
		}
	}
	return len(seen)
}

func (c *Controller) appendRecord(epoch int, values map[string]float64, improved []string,
	plateaued, overfitting bool, gap float64, adapted bool, action Action, reason StopReason) {

	raw := make(map[string]float64, len(c.metrics))
	smoothed := make(map[string]float64, len(c.metrics))
	for _, m := range c.metrics {
		raw[m.spec.Name] = values[m.spec.Name]
		smoothed[m.spec.Name] = m.smoothed()
	}
	// Carry the reserved loss pair into the record when supplied, so run
	// logs can show the gap the overfitting detector saw.
	for _, name := range []string{TrainLossMetric, ValLossMetric} {
		if v, ok := values[name]; ok {
			raw[name] = v
		}
	}

	c.records = append(c.records, DecisionRecord{
		Epoch:           epoch,
		Raw:             raw,
		Smoothed:        smoothed,
		Improved:        append([]string(nil), improved...),
		Plateau:         plateaued,
		Overfitting:     overfitting,
		LossGap:         gap,
		Wait:            c.wait,
		Patience:        c.patience,
		PatienceAdapted: adapted,
		Action:          action.String(),
		Reason:          string(reason),
	})
}

func (c *Controller) logDecision(epoch int, action Action, reason StopReason) {
	if action == Stop {
		c.logger.Info("training stop signalled",
			croplog.OperationKey, "evaluate",
			croplog.EpochKey, epoch,
			croplog.WaitKey, c.wait,
			croplog.PatienceKey, c.patience,
			croplog.PlateauStreakKey, c.plateauStreak,
			croplog.BestEpochKey, c.bestEpoch,
			croplog.ActionKey, action.String(),
			croplog.ReasonKey, string(reason),
		)
		return
	}
	c.logger.Debug("epoch evaluated",
		croplog.OperationKey, "evaluate",
		croplog.EpochKey, epoch,
		croplog.WaitKey, c.wait,
		croplog.PatienceKey, c.patience,
		croplog.PlateauStreakKey, c.plateauStreak,
		croplog.ActionKey, action.String(),
	)
}

// Restore returns the best snapshot captured during the run. Reading does not
// consume the snapshot: calling Restore twice yields the same value. When no
// snapshot was ever recorded (zero epochs, or no metric ever improved) it
// reports false and raises a RestoreWarning rather than failing silently.
func (c *Controller) Restore() (interface{}, bool) {
	if !c.hasSnapshot {
		errors.Warn(errors.NewRestoreWarning(c.epochsSeen, "no best snapshot was recorded"))
		return nil, false
	}
	return c.snapshot, true
}

// Config returns the controller's configuration.
func (c *Controller) Config() Config { return c.cfg }

// BestEpoch returns the epoch of the current best snapshot, or -1 when no
// metric has improved yet.
func (c *Controller) BestEpoch() int { return c.bestEpoch }

// BestMetric returns the metric that confirmed the current best epoch. Ties
// between simultaneously improving metrics go to the first in MonitorMetrics
// order.
func (c *Controller) BestMetric() string { return c.bestMetric }

// BestValues returns the best raw value recorded per monitored metric.
// Metrics that never improved are omitted.
func (c *Controller) BestValues() map[string]float64 {
	out := make(map[string]float64, len(c.metrics))
	for _, m := range c.metrics {
		if m.bestEpoch >= 0 {
			out[m.spec.Name] = m.best
		}
	}
	return out
}

// Wait returns the current count of epochs without improvement.
func (c *Controller) Wait() int { return c.wait }

// Patience returns the current (possibly adapted) patience threshold.
func (c *Controller) Patience() int { return c.patience }

// PlateauStreak returns the current run of consecutive plateau epochs.
func (c *Controller) PlateauStreak() int { return c.plateauStreak }

// NumericalEvents returns how many evaluate calls were rejected for
// non-finite metric values.
func (c *Controller) NumericalEvents() int { return c.numericalEvents }

// Stopped reports whether the controller has signalled a stop, and why.
func (c *Controller) Stopped() (bool, StopReason) { return c.stopped, c.stopReason }

// StopEpoch returns the epoch at which the stop fired, or -1.
func (c *Controller) StopEpoch() int { return c.stopEpoch }

// Records returns a copy of the decision log.
func (c *Controller) Records() []DecisionRecord {
	return append([]DecisionRecord(nil), c.records...)
}
