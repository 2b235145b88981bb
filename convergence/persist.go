package convergence

import (
	"encoding/gob"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/RALE0/croptrain/pkg/errors"
)

// Artifact filenames written under Config.SaveDir when a run stops.
const (
	RunLogFileName     = "run_log.json"
	CheckpointFileName = "best_checkpoint.gob"
	PlotFileName       = "metrics.png"
)

// RunLog is the self-describing document persisted once per training run: the
// full ordered decision log plus a summary of how the run ended. It is a
// write-only artifact for human inspection; the controller never reads it
// back.
type RunLog struct {
	CreatedAt time.Time `json:"created_at"`
	Config    Config    `json:"config"`

	Decisions []DecisionRecord `json:"decisions"`

	BestEpoch       int                `json:"best_epoch"`
	BestMetric      string             `json:"best_metric,omitempty"`
	BestValues      map[string]float64 `json:"best_values"`
	StopEpoch       int                `json:"stop_epoch"`
	StopReason      string             `json:"stop_reason,omitempty"`
	EpochsEvaluated int                `json:"epochs_evaluated"`
	NumericalEvents int                `json:"numerical_events"`
}

// RunLog assembles the persistable view of the run so far.
func (c *Controller) RunLog() RunLog {
	return RunLog{
		CreatedAt:       time.Now().UTC(),
		Config:          c.cfg,
		Decisions:       c.Records(),
		BestEpoch:       c.bestEpoch,
		BestMetric:      c.bestMetric,
		BestValues:      c.BestValues(),
		StopEpoch:       c.stopEpoch,
		StopReason:      string(c.stopReason),
		EpochsEvaluated: c.epochsSeen,
		NumericalEvents: c.numericalEvents,
	}
}

// WriteRunLog serializes the run log as one indented JSON object.
func (c *Controller) WriteRunLog(path string) error {
	data, err := json.MarshalIndent(c.RunLog(), "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode run log")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write run log to %s", path)
	}
	return nil
}

// SaveCheckpoint persists the current best snapshot with gob encoding. The
// snapshot type must be gob-encodable (exported fields, registered concrete
// types). It fails when no snapshot has been captured yet.
func (c *Controller) SaveCheckpoint(path string) error {
	if !c.hasSnapshot {
		return errors.NewUsageError("SaveCheckpoint", "no best snapshot has been captured")
	}

	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create checkpoint file %s", path)
	}
	defer file.Close()

	encoder := gob.NewEncoder(file)
	if err := encoder.Encode(&c.snapshot); err != nil {
		return errors.Wrapf(err, "failed to encode snapshot to %s", path)
	}
	return nil
}

// LoadCheckpoint reads a snapshot previously written by SaveCheckpoint.
func LoadCheckpoint(path string) (interface{}, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open checkpoint file %s", path)
	}
	defer file.Close()

	var snapshot interface{}
	decoder := gob.NewDecoder(file)
	if err := decoder.Decode(&snapshot); err != nil {
		return nil, errors.Wrapf(err, "failed to decode checkpoint from %s", path)
	}
	return snapshot, nil
}

// persistArtifacts writes the run log, checkpoint, and trajectory plot under
// SaveDir. Persistence failures degrade to warnings: the in-memory decision
// logic never depends on successful I/O.
func (c *Controller) persistArtifacts() {
	if c.cfg.SaveDir == "" {
		return
	}
	if err := os.MkdirAll(c.cfg.SaveDir, 0o755); err != nil {
		errors.Warn(errors.NewPersistenceWarning("run artifacts", c.cfg.SaveDir, err))
		return
	}

	logPath := filepath.Join(c.cfg.SaveDir, RunLogFileName)
	if err := c.WriteRunLog(logPath); err != nil {
		errors.Warn(errors.NewPersistenceWarning("run log", logPath, err))
	}

	if c.hasSnapshot {
		ckptPath := filepath.Join(c.cfg.SaveDir, CheckpointFileName)
		if err := c.SaveCheckpoint(ckptPath); err != nil {
			errors.Warn(errors.NewPersistenceWarning("checkpoint", ckptPath, err))
		}
	}

	plotPath := filepath.Join(c.cfg.SaveDir, PlotFileName)
	if err := c.SavePlot(plotPath); err != nil {
		errors.Warn(errors.NewPersistenceWarning("trajectory plot", plotPath, err))
	}
}
