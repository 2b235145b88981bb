// Package training provides a driver that runs a trainable model under the
// convergence controller: one Evaluate call per epoch, best-weights
// restoration on stop, and callback hooks for progress reporting.
package training

import (
	"log/slog"
	"sort"

	"github.com/RALE0/croptrain/convergence"
	"github.com/RALE0/croptrain/pkg/errors"
	croplog "github.com/RALE0/croptrain/pkg/log"
)

// Trainable is the capability surface the driver needs from a model: run one
// optimization epoch and report its metrics, produce an independently owned
// copy of the current parameters, and accept such a copy back.
type Trainable interface {
	// RunEpoch performs one epoch of optimization and returns the epoch's
	// metric values (at minimum the metrics the controller monitors).
	RunEpoch(epoch int) (map[string]float64, error)

	// Snapshot returns a deep, independently mutable copy of the current
	// model parameters.
	Snapshot() (interface{}, error)

	// RestoreSnapshot replaces the current parameters with a snapshot
	// previously produced by Snapshot.
	RestoreSnapshot(snapshot interface{}) error
}

// EpochEnv is the environment passed to callbacks after each epoch.
type EpochEnv struct {
	Epoch    int
	Metrics  map[string]float64
	Action   convergence.Action
	Wait     int
	Patience int
}

// Callback observes training progress. Returning an error aborts the run.
type Callback func(env *EpochEnv) error

// LogProgress returns a callback that logs metric values every period epochs.
// Metric values are grouped under one attribute, keyed by metric name, so
// every record key stays unique.
func LogProgress(logger *slog.Logger, period int) Callback {
	return func(env *EpochEnv) error {
		if period <= 0 || env.Epoch%period != 0 {
			return nil
		}

		names := make([]string, 0, len(env.Metrics))
		for name := range env.Metrics {
			names = append(names, name)
		}
		sort.Strings(names)
		metricAttrs := make([]any, 0, len(names))
		for _, name := range names {
			metricAttrs = append(metricAttrs, slog.Float64(name, env.Metrics[name]))
		}

		logger.Info("epoch completed",
			croplog.EpochKey, env.Epoch,
			croplog.WaitKey, env.Wait,
			croplog.PatienceKey, env.Patience,
			slog.Group("metrics", metricAttrs...),
		)
		return nil
	}
}

// RecordHistory returns a callback that appends every metric value to the
// given history map.
func RecordHistory(history *map[string][]float64) Callback {
	return func(env *EpochEnv) error {
		if *history == nil {
			*history = make(map[string][]float64)
		}
		for name, value := range env.Metrics {
			(*history)[name] = append((*history)[name], value)
		}
		return nil
	}
}

// RunSummary reports how a training run ended.
type RunSummary struct {
	EpochsRun    int
	StoppedEarly bool
	StopEpoch    int
	StopReason   convergence.StopReason
	BestEpoch    int
	BestValues   map[string]float64
	Restored     bool
}

// Run trains model for at most maxEpochs epochs under ctl's control. Epochs
// are numbered from 1. When the controller signals a stop, or the epoch
// budget runs out, the best snapshot is restored into the model if the
// controller tracked one.
func Run(model Trainable, ctl *convergence.Controller, maxEpochs int, callbacks ...Callback) (*RunSummary, error) {
	if model == nil {
		return nil, errors.NewUsageError("Run", "model must not be nil")
	}
	if ctl == nil {
		return nil, errors.NewUsageError("Run", "controller must not be nil")
	}
	if maxEpochs <= 0 {
		return nil, errors.NewValidationError("max_epochs", "must be positive", maxEpochs)
	}

	summary := &RunSummary{StopEpoch: -1}

	for epoch := 1; epoch <= maxEpochs; epoch++ {
		metrics, err := model.RunEpoch(epoch)
		if err != nil {
			return nil, errors.Wrapf(err, "epoch %d failed", epoch)
		}

		action, err := ctl.Evaluate(epoch, metrics, model.Snapshot)
		if err != nil {
			return nil, err
		}
		summary.EpochsRun = epoch

		env := &EpochEnv{
			Epoch:    epoch,
			Metrics:  metrics,
			Action:   action,
			Wait:     ctl.Wait(),
			Patience: ctl.Patience(),
		}
		for _, cb := range callbacks {
			if err := runCallback(cb, env); err != nil {
				return nil, errors.Wrapf(err, "callback failed at epoch %d", epoch)
			}
		}

		if action == convergence.Stop {
			summary.StoppedEarly = true
			summary.StopEpoch = epoch
			_, summary.StopReason = ctl.Stopped()
			break
		}
	}

	summary.BestEpoch = ctl.BestEpoch()
	summary.BestValues = ctl.BestValues()

	if ctl.Config().RestoreBestWeights {
		if snapshot, ok := ctl.Restore(); ok {
			if err := model.RestoreSnapshot(snapshot); err != nil {
				return nil, errors.Wrap(err, "failed to restore best snapshot")
			}
			summary.Restored = true
		}
	}
	return summary, nil
}

// runCallback shields the driver from panicking callbacks.
func runCallback(cb Callback, env *EpochEnv) (err error) {
	defer errors.Recover(&err, "callback")
	return cb(env)
}
