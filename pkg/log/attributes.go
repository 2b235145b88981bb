// Standard attribute keys for convergence-control logging.
//
// Using fixed keys keeps run logs consistent across training drivers and lets
// operators filter on the same fields whether a run was launched from the
// model-comparison workflow or a one-off script.
package log

// Run and operation context.
const (
	// ModelNameKey identifies the model variant being trained.
	// Examples: "crop-mlp-baseline", "crop-cnn-wide"
	ModelNameKey = "model.name"

	// OperationKey names the controller operation being performed.
	// Standard values: "evaluate", "restore", "persist"
	OperationKey = "ctl.operation"
)

// Epoch-level training state.
const (
	// EpochKey is the epoch number supplied by the training loop.
	EpochKey = "train.epoch"

	// WaitKey is the current count of epochs without improvement.
	WaitKey = "ctl.wait"

	// PatienceKey is the current (possibly adapted) patience threshold.
	PatienceKey = "ctl.patience"

	// PlateauStreakKey is the current run of consecutive plateau epochs.
	PlateauStreakKey = "ctl.plateau_streak"
)

// Decision outcomes.
const (
	// ActionKey is the controller decision: "continue" or "stop".
	ActionKey = "decision.action"

	// ReasonKey carries the stop reason when a run terminates.
	ReasonKey = "decision.reason"

	// BestEpochKey is the epoch holding the best snapshot so far.
	BestEpochKey = "decision.best_epoch"
)
