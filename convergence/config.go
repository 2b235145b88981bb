package convergence

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/RALE0/croptrain/pkg/errors"
)

// Default construction parameters. They match the tuning used by the
// crop-classification model-comparison workflow.
const (
	DefaultPatience   = 20
	DefaultMinDelta   = 1e-5
	DefaultWindowSize = 10
)

// Reserved metric names for the overfitting detector. When both appear in an
// epoch's metric values, the controller watches the raw gap between them.
const (
	TrainLossMetric = "train_loss"
	ValLossMetric   = "val_loss"
)

// Overfitting detector thresholds: the raw validation-minus-training loss gap
// that counts as divergence, and the minimum history before the check fires.
const (
	overfitGapThreshold = 0.1
	overfitMinEpochs    = 10
)

// Adaptive patience tuning: adaptation is considered once wait exceeds
// adaptTriggerRatio of the current patience, grows patience by adaptStep, and
// never exceeds adaptMaxFactor times the configured patience.
const (
	adaptTriggerRatio = 0.7
	adaptStep         = 5
	adaptMaxFactor    = 2
)

// Direction tells the controller whether a metric improves by decreasing
// (losses) or increasing (accuracy, F1).
type Direction int

const (
	Minimize Direction = iota
	Maximize
)

// String returns the lowercase name used in config files and run logs.
func (d Direction) String() string {
	switch d {
	case Minimize:
		return "minimize"
	case Maximize:
		return "maximize"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// ParseDirection converts a config-file direction name.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "minimize", "min":
		return Minimize, nil
	case "maximize", "max":
		return Maximize, nil
	default:
		return Minimize, errors.NewValidationError("direction", "must be 'minimize' or 'maximize'", s)
	}
}

// MarshalJSON encodes the direction as its name.
func (d Direction) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes a direction name.
func (d *Direction) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDirection(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalYAML encodes the direction as its name.
func (d Direction) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// UnmarshalYAML decodes a direction name.
func (d *Direction) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseDirection(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MetricSpec describes one monitored metric: its name in the per-epoch value
// map, its optimization direction, and an optional per-metric smoothing
// window. A zero Window falls back to Config.WindowSize.
type MetricSpec struct {
	Name      string    `yaml:"name" json:"name"`
	Direction Direction `yaml:"direction" json:"direction"`
	Window    int       `yaml:"window,omitempty" json:"window,omitempty"`
}

// Config holds the construction parameters of a Controller. It is validated
// once at construction; an invalid config never produces a partially usable
// controller.
type Config struct {
	// Patience is the number of epochs tolerated without improvement in any
	// monitored metric before stopping.
	Patience int `yaml:"patience" json:"patience"`

	// MinDelta is the minimum change that counts as improvement; smaller
	// changes are treated as noise.
	MinDelta float64 `yaml:"min_delta" json:"min_delta"`

	// WindowSize is the number of trailing raw values averaged to form the
	// smoothed trend used for plateau detection and reporting.
	WindowSize int `yaml:"window_size" json:"window_size"`

	// MonitorMetrics is the ordered, non-empty list of metrics the
	// controller watches. Order matters: best-epoch ties are broken by the
	// first metric in this list.
	MonitorMetrics []MetricSpec `yaml:"monitor_metrics" json:"monitor_metrics"`

	// RestoreBestWeights makes the best snapshot available through Restore
	// when the controller stops.
	RestoreBestWeights bool `yaml:"restore_best_weights" json:"restore_best_weights"`

	// AdaptivePatience lets the controller extend patience while secondary
	// metrics keep making slow progress.
	AdaptivePatience bool `yaml:"adaptive_patience" json:"adaptive_patience"`

	// SaveDir is the destination for run artifacts (run log, checkpoint,
	// trajectory plot). Empty disables persistence but not in-memory
	// best-snapshot tracking.
	SaveDir string `yaml:"save_dir,omitempty" json:"save_dir,omitempty"`
}

// DefaultConfig returns a Config with the standard tuning. Callers still need
// to fill MonitorMetrics.
func DefaultConfig() Config {
	return Config{
		Patience:           DefaultPatience,
		MinDelta:           DefaultMinDelta,
		WindowSize:         DefaultWindowSize,
		RestoreBestWeights: true,
		AdaptivePatience:   true,
	}
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "failed to read config file %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "failed to parse config file %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks all construction parameters. It returns a ValidationError
// describing the first violation found.
func (c Config) Validate() error {
	if c.Patience <= 0 {
		return errors.NewValidationError("patience", "must be positive", c.Patience)
	}
	if c.MinDelta <= 0 {
		return errors.NewValidationError("min_delta", "must be positive", c.MinDelta)
	}
	if c.WindowSize <= 0 {
		return errors.NewValidationError("window_size", "must be positive", c.WindowSize)
	}
	if len(c.MonitorMetrics) == 0 {
		return errors.NewValidationError("monitor_metrics", "must not be empty", c.MonitorMetrics)
	}

	seen := make(map[string]struct{}, len(c.MonitorMetrics))
	for _, spec := range c.MonitorMetrics {
		if spec.Name == "" {
			return errors.NewValidationError("monitor_metrics", "metric name must not be empty", spec)
		}
		if spec.Direction != Minimize && spec.Direction != Maximize {
			return errors.NewValidationError("monitor_metrics", "invalid direction", spec)
		}
		if spec.Window < 0 {
			return errors.NewValidationError("monitor_metrics", "window must not be negative", spec)
		}
		if _, dup := seen[spec.Name]; dup {
			return errors.NewValidationError("monitor_metrics", "duplicate metric name", spec.Name)
		}
		seen[spec.Name] = struct{}{}
	}
	return nil
}
