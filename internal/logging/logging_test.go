package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestConfigureWriterLevels(t *testing.T) {
	var buf bytes.Buffer
	if err := ConfigureWriter(&buf, LevelWarn, FormatText); err != nil {
		t.Fatalf("ConfigureWriter: %v", err)
	}

	slog.Info("hidden")
	slog.Warn("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info record emitted at warn level")
	}
	if !strings.Contains(out, "visible") {
		t.Error("warn record missing")
	}
}

func TestConfigureWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := ConfigureWriter(&buf, LevelInfo, FormatJSON); err != nil {
		t.Fatalf("ConfigureWriter: %v", err)
	}

	slog.Info("scan complete", "environments", 3)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if record["msg"] != "scan complete" {
		t.Errorf("msg = %v", record["msg"])
	}
	if record["environments"].(float64) != 3 {
		t.Errorf("environments = %v", record["environments"])
	}
}

func TestConfigureRejectsUnknownLevel(t *testing.T) {
	var buf bytes.Buffer
	if err := ConfigureWriter(&buf, "loud", FormatText); err == nil {
		t.Fatal("unknown level accepted")
	}
}

func TestConfigureRejectsUnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := ConfigureWriter(&buf, LevelInfo, "xml"); err == nil {
		t.Fatal("unknown format accepted")
	}
}
