package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/RALE0/croptrain/pkg/errors"
)

func TestInstallWarningBridgeEmitsStructuredWarning(t *testing.T) {
	var buf bytes.Buffer
	InstallWarningBridge(zerolog.New(&buf))
	defer errors.SetZerologWarnFunc(nil)

	errors.Warn(errors.NewRestoreWarning(12, "no monitored metric ever improved"))

	var event map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &event); err != nil {
		t.Fatalf("warning output is not one JSON object: %v (output: %q)", err, buf.String())
	}
	if event["level"] != "warn" {
		t.Errorf("level = %v, want warn", event["level"])
	}
	warning, ok := event["warning"].(map[string]interface{})
	if !ok {
		t.Fatalf("missing structured warning object: %v", event)
	}
	if warning["type"] != "RestoreWarning" {
		t.Errorf("warning type = %v, want RestoreWarning", warning["type"])
	}
	if warning["epochs"] != float64(12) {
		t.Errorf("warning epochs = %v, want 12", warning["epochs"])
	}
}

func TestInstallWarningBridgeFallsBackForPlainErrors(t *testing.T) {
	var buf bytes.Buffer
	InstallWarningBridge(zerolog.New(&buf))
	defer errors.SetZerologWarnFunc(nil)

	errors.Warn(errors.New("disk full"))

	if !strings.Contains(buf.String(), "disk full") {
		t.Errorf("plain warning not logged: %q", buf.String())
	}
}

func TestErrFmtHandlerAddsStacktrace(t *testing.T) {
	var buf bytes.Buffer
	handler := WrapByErrFmtHandler(slog.NewJSONHandler(&buf, nil))
	logger := slog.New(handler)

	logger.Error("evaluate failed", ErrAttr(errors.New("snapshot provider failed")))

	var record map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("log output is not one JSON object: %v", err)
	}
	if _, ok := record[StacktraceAttrKey]; !ok {
		t.Errorf("missing %s attribute: %v", StacktraceAttrKey, record)
	}
}
