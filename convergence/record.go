package convergence

// Action is the controller's per-epoch verdict for the training loop.
type Action int

const (
	Continue Action = iota
	Stop
)

// String returns the lowercase action name used in run logs.
func (a Action) String() string {
	if a == Stop {
		return "stop"
	}
	return "continue"
}

// StopReason names the first stop rule that fired.
type StopReason string

const (
	ReasonPatienceExhausted StopReason = "patience exhausted"
	ReasonOverfitting       StopReason = "overfitting with partial patience consumed"
	ReasonPlateau           StopReason = "prolonged plateau"
)

// DecisionRecord is the immutable per-epoch entry in the decision log. It is
// written once per successful Evaluate call and never mutated; it exists for
// diagnostics and plotting, never for control decisions (those read from the
// controller's live state).
type DecisionRecord struct {
	Epoch    int                `json:"epoch"`
	Raw      map[string]float64 `json:"raw"`
	Smoothed map[string]float64 `json:"smoothed"`

	// Improved lists the monitored metrics that set a snapshot-candidate
	// flag this epoch, in MonitorMetrics order.
	Improved []string `json:"improved,omitempty"`

	Plateau     bool    `json:"plateau"`
	Overfitting bool    `json:"overfitting"`
	LossGap     float64 `json:"loss_gap"`

	Wait     int `json:"wait"`
	Patience int `json:"patience"`

	// PatienceAdapted marks epochs where the adaptive-patience rule grew
	// the threshold.
	PatienceAdapted bool `json:"patience_adapted,omitempty"`

	Action string `json:"action"`
	Reason string `json:"reason,omitempty"`
}
