package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestSetupLoggerWithWriters(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)

	logger.Info("workflow started", "workflow_id", "wf-1234")

	text := stderr.String()
	if !strings.Contains(text, "workflow started") || !strings.Contains(text, "workflow_id=wf-1234") {
		t.Errorf("stderr output missing fields: %q", text)
	}

	var record map[string]any
	if err := json.Unmarshal(file.Bytes(), &record); err != nil {
		t.Fatalf("file output is not JSON: %v (%q)", err, file.String())
	}
	if record["msg"] != "workflow started" {
		t.Errorf("msg = %v, want %q", record["msg"], "workflow started")
	}
	if record["workflow_id"] != "wf-1234" {
		t.Errorf("workflow_id = %v, want %q", record["workflow_id"], "wf-1234")
	}
}

func TestSetupLoggerWithWriters_LevelFilter(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelWarn)

	logger.Debug("claim contention", "job_id", "j1")
	logger.Info("job complete", "job_id", "j1")

	if stderr.Len() != 0 || file.Len() != 0 {
		t.Errorf("records below warn leaked: stderr=%q file=%q", stderr.String(), file.String())
	}

	logger.Warn("workflow finished with failures")
	if !strings.Contains(stderr.String(), "workflow finished with failures") {
		t.Errorf("warn record missing from stderr: %q", stderr.String())
	}
}
