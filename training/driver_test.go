package training

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/RALE0/croptrain/convergence"
	"github.com/RALE0/croptrain/pkg/errors"
)

// scriptedModel replays a fixed validation-loss schedule and tracks snapshot
// and restore traffic. Its "parameters" are just the epoch they were captured
// at.
type scriptedModel struct {
	losses     func(epoch int) float64
	current    int
	snapshots  int
	restoredTo int
}

func (m *scriptedModel) RunEpoch(epoch int) (map[string]float64, error) {
	m.current = epoch
	return map[string]float64{convergence.ValLossMetric: m.losses(epoch)}, nil
}

func (m *scriptedModel) Snapshot() (interface{}, error) {
	m.snapshots++
	return m.current, nil
}

func (m *scriptedModel) RestoreSnapshot(snapshot interface{}) error {
	epoch, ok := snapshot.(int)
	if !ok {
		return errors.Newf("unexpected snapshot type %T", snapshot)
	}
	m.restoredTo = epoch
	return nil
}

func testConfig(patience, window int) convergence.Config {
	cfg := convergence.DefaultConfig()
	cfg.Patience = patience
	cfg.WindowSize = window
	cfg.AdaptivePatience = false
	cfg.MonitorMetrics = []convergence.MetricSpec{
		{Name: convergence.ValLossMetric, Direction: convergence.Minimize},
	}
	return cfg
}

func TestRunStopsEarlyAndRestoresBest(t *testing.T) {
	model := &scriptedModel{
		losses: func(epoch int) float64 {
			if epoch <= 10 {
				return 1.0 - 0.05*float64(epoch)
			}
			return 0.5
		},
		restoredTo: -1,
	}

	ctl, err := convergence.New(testConfig(3, 2))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var history map[string][]float64
	summary, err := Run(model, ctl, 50, RecordHistory(&history))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !summary.StoppedEarly {
		t.Error("run did not stop early")
	}
	if summary.BestEpoch != 10 {
		t.Errorf("best epoch = %d, want 10", summary.BestEpoch)
	}
	if !summary.Restored || model.restoredTo != 10 {
		t.Errorf("model restored to epoch %d (restored=%v), want 10", model.restoredTo, summary.Restored)
	}
	if model.snapshots != 10 {
		t.Errorf("snapshot taken %d times, want 10 (once per improvement)", model.snapshots)
	}
	if got := len(history[convergence.ValLossMetric]); got != summary.EpochsRun {
		t.Errorf("history has %d entries, want %d", got, summary.EpochsRun)
	}
}

func TestRunExhaustsBudgetAndStillRestores(t *testing.T) {
	model := &scriptedModel{
		losses:     func(epoch int) float64 { return 1.0 / float64(epoch) },
		restoredTo: -1,
	}

	ctl, err := convergence.New(testConfig(5, 3))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	summary, err := Run(model, ctl, 7)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.StoppedEarly {
		t.Error("run reported an early stop on an always-improving loss")
	}
	if summary.EpochsRun != 7 {
		t.Errorf("epochs run = %d, want 7", summary.EpochsRun)
	}
	if model.restoredTo != 7 {
		t.Errorf("model restored to epoch %d, want 7", model.restoredTo)
	}
}

func TestRunSkipsRestoreWhenDisabled(t *testing.T) {
	model := &scriptedModel{
		losses:     func(epoch int) float64 { return 1.0 / float64(epoch) },
		restoredTo: -1,
	}

	cfg := testConfig(5, 3)
	cfg.RestoreBestWeights = false
	ctl, err := convergence.New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	summary, err := Run(model, ctl, 5)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Restored || model.restoredTo != -1 {
		t.Error("restore happened despite RestoreBestWeights=false")
	}
}

func TestRunRejectsInvalidArguments(t *testing.T) {
	ctl, err := convergence.New(testConfig(5, 3))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	model := &scriptedModel{losses: func(int) float64 { return 1 }}

	if _, err := Run(nil, ctl, 10); err == nil {
		t.Error("Run accepted nil model")
	}
	if _, err := Run(model, nil, 10); err == nil {
		t.Error("Run accepted nil controller")
	}
	if _, err := Run(model, ctl, 0); err == nil {
		t.Error("Run accepted zero epoch budget")
	}
}

func TestRunSurfacesCallbackPanicAsError(t *testing.T) {
	model := &scriptedModel{losses: func(int) float64 { return 1 }}
	ctl, err := convergence.New(testConfig(5, 3))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	boom := func(*EpochEnv) error { panic("observer bug") }
	if _, err := Run(model, ctl, 10, boom); err == nil {
		t.Error("callback panic was not surfaced as an error")
	}
}

func TestLogProgressGroupsMetricsWithoutDuplicateKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	cb := LogProgress(logger, 1)
	err := cb(&EpochEnv{
		Epoch: 4,
		Metrics: map[string]float64{
			convergence.ValLossMetric: 0.42,
			"val_accuracy":            0.91,
		},
		Wait:     2,
		Patience: 20,
	})
	if err != nil {
		t.Fatalf("LogProgress callback: %v", err)
	}

	var record map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("log output is not one JSON object: %v (output: %q)", err, buf.String())
	}
	group, ok := record["metrics"].(map[string]interface{})
	if !ok {
		t.Fatalf("missing metrics group: %v", record)
	}
	if group[convergence.ValLossMetric] != 0.42 {
		t.Errorf("metrics.%s = %v, want 0.42", convergence.ValLossMetric, group[convergence.ValLossMetric])
	}
	if group["val_accuracy"] != 0.91 {
		t.Errorf("metrics.val_accuracy = %v, want 0.91", group["val_accuracy"])
	}
}
