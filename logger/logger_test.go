package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWithComponent(t *testing.T) {
	log := Logger()
	entry := log.WithComponent("test")
	if v, ok := entry.Entry.Data["component"]; !ok || v != "test" {
		t.Fatalf("component field missing: %v", entry.Entry.Data)
	}
}

func TestConfigureInvalidLevel(t *testing.T) {
	// Ensure environment variables do not override the provided level
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("invalid", "json", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

func TestConfigureInvalidFormat(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("info", "xml", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid format")
	}
}

func TestConfigureFileOutput(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	path := filepath.Join(t.TempDir(), "energylink.log")
	log := Logger()
	if err := log.Configure("debug", "json", path, 0); err != nil {
		t.Fatalf("Configure returned error: %v", err)
	}
	log.WithComponent("compliance").Info("hello")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !bytes.Contains(data, []byte(`"component":"compliance"`)) {
		t.Fatalf("log line missing component: %s", data)
	}
}

func TestWithEnv(t *testing.T) {
	t.Setenv("FOO", "bar")
	log := Logger()
	entry := log.WithEnv("FOO")
	if v, ok := entry.Entry.Data["FOO"]; !ok || v != "bar" {
		t.Fatalf("env field not set: %v", entry.Entry.Data)
	}
}

func TestJSONFieldNames(t *testing.T) {
	var buf bytes.Buffer
	log := Logger()
	log.SetOutput(&buf)
	log.WithFields(Fields{"regulation": "CFTC"}).Info("submitted")

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if line["message"] != "submitted" || line["regulation"] != "CFTC" {
		t.Fatalf("unexpected log line: %v", line)
	}
	if _, ok := line["timestamp"]; !ok {
		t.Fatalf("timestamp missing: %v", line)
	}
}

func TestActivityCounters(t *testing.T) {
	before := reportFields()
	IncrementSubmission(true)
	IncrementSubmission(false)
	IncrementPriceFetch(false)
	IncrementAuditAppend()
	after := reportFields()

	if after["submissions_ok"].(int64) != before["submissions_ok"].(int64)+1 {
		t.Fatalf("submissions_ok not incremented")
	}
	if after["submissions_failed"].(int64) != before["submissions_failed"].(int64)+1 {
		t.Fatalf("submissions_failed not incremented")
	}
	if after["price_fetch_failed"].(int64) != before["price_fetch_failed"].(int64)+1 {
		t.Fatalf("price_fetch_failed not incremented")
	}
	if after["audit_appends"].(int64) != before["audit_appends"].(int64)+1 {
		t.Fatalf("audit_appends not incremented")
	}
}

func TestRedactsCredentialFields(t *testing.T) {
	var buf bytes.Buffer
	log := Logger()
	log.SetOutput(&buf)
	log.WithFields(Fields{
		"bearer_token": "s3cret",
		"X-API-Key":    "abc123",
		"api_key":      "",
		"regulation":   "MAS",
	}).Info("submitting")

	out := buf.String()
	if strings.Contains(out, "s3cret") || strings.Contains(out, "abc123") {
		t.Fatalf("credential leaked into log output: %s", out)
	}
	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if line["bearer_token"] != redacted || line["regulation"] != "MAS" || line["api_key"] != "" {
		t.Fatalf("unexpected redaction result: %v", line)
	}
}

func TestCallerSkipsWrappers(t *testing.T) {
	if !isWrapperFrame("energylink/logger.(*Entry).Warn") || !isWrapperFrame("github.com/sirupsen/logrus.(*Entry).log") {
		t.Fatal("wrapper frames should be skipped")
	}
	if isWrapperFrame("energylink/compliance.(*Service).SubmitReport") {
		t.Fatal("application frames must be kept")
	}
}
