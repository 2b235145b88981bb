// Package croptrain provides adaptive training-convergence control for
// crop-classification models: a multi-criteria early-stopping controller,
// a training driver, and classification metrics.
//
// The library watches one or more validation metrics across training epochs
// and decides, after every epoch, whether training should continue or stop.
// It combines the classic patience counter with plateau detection over a
// smoothing window, train/validation overfitting detection, and adaptive
// patience extension when a run is still making occasional progress.
//
// # Quick Start
//
// Wrap a model in the training.Trainable interface and hand it to the
// driver:
//
//	cfg := convergence.DefaultConfig()
//	cfg.MonitorMetrics = []convergence.MetricSpec{
//	    {Name: convergence.ValLossMetric, Direction: convergence.Minimize},
//	}
//	cfg.SaveDir = "artifacts"
//
//	ctl, err := convergence.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	summary, err := training.Run(model, ctl, 500)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("stopped at epoch", summary.StopEpoch, "reason:", summary.StopReason)
//
// The controller can also be driven directly, one Evaluate call per epoch,
// for training loops that already exist.
//
// # Packages
//
//   - convergence: the ConvergenceController, its configuration, decision
//     records, run-artifact persistence, and trajectory plotting
//   - training: a driver that runs a Trainable model under the controller
//     with callback hooks and best-weights restoration
//   - metrics: classification metrics (accuracy, log loss, F1)
//   - pkg/errors: structured error and warning types
//   - pkg/log: slog setup with stacktrace-aware formatting
package croptrain
