package core

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestProductionLoggerJSONFormat(t *testing.T) {
	logger := NewProductionLogger(LoggingConfig{Level: "info", Format: "json"}, "paperspine-test")
	var buf bytes.Buffer
	logger.SetOutput(&buf)

	logger.Info("Snapshot saved", map[string]interface{}{
		"doc_id": "doc-1",
		"page":   3,
	})

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if entry["level"] != "INFO" {
		t.Errorf("level = %v, want INFO", entry["level"])
	}
	if entry["message"] != "Snapshot saved" {
		t.Errorf("message = %v", entry["message"])
	}
	if entry["doc_id"] != "doc-1" {
		t.Errorf("doc_id = %v, want doc-1", entry["doc_id"])
	}
	if entry["service"] != "paperspine-test" {
		t.Errorf("service = %v", entry["service"])
	}
}

func TestProductionLoggerTextFormatSortsFields(t *testing.T) {
	logger := NewProductionLogger(LoggingConfig{Level: "info", Format: "text"}, "paperspine-test")
	var buf bytes.Buffer
	logger.SetOutput(&buf)

	logger.Warn("Tier downgrade requested", map[string]interface{}{
		"to":   "cpu_only",
		"from": "accelerated",
	})

	out := buf.String()
	if !strings.Contains(out, "[WARN]") {
		t.Errorf("missing level label: %q", out)
	}
	fromIdx := strings.Index(out, "from=accelerated")
	toIdx := strings.Index(out, "to=cpu_only")
	if fromIdx == -1 || toIdx == -1 || fromIdx > toIdx {
		t.Errorf("fields should appear in sorted order: %q", out)
	}
}

func TestProductionLoggerLevelFiltering(t *testing.T) {
	logger := NewProductionLogger(LoggingConfig{Level: "warn", Format: "text"}, "paperspine-test")
	var buf bytes.Buffer
	logger.SetOutput(&buf)

	logger.Debug("noise", nil)
	logger.Info("more noise", nil)
	if buf.Len() != 0 {
		t.Errorf("below-threshold entries were written: %q", buf.String())
	}

	logger.Error("real problem", nil)
	if !strings.Contains(buf.String(), "real problem") {
		t.Error("error entry should pass the warn threshold")
	}
}
