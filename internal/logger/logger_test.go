package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "json")

	Info("upload created", KeyUploadID, "abc123", KeySize, 42)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if entry["msg"] != "upload created" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry[KeyUploadID] != "abc123" {
		t.Errorf("upload_id = %v", entry[KeyUploadID])
	}
	if entry[KeySize] != float64(42) {
		t.Errorf("size = %v", entry[KeySize])
	}
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text")

	Info("chunk stored", KeyChunk, 7)

	out := buf.String()
	if !strings.Contains(out, "[INFO] chunk stored") {
		t.Errorf("missing level/message: %q", out)
	}
	if !strings.Contains(out, "chunk=7") {
		t.Errorf("missing attribute: %q", out)
	}
	if strings.Contains(out, "\033[") {
		t.Errorf("color codes leaked into non-terminal output: %q", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "WARN", "text")

	Debug("too quiet")
	Info("still too quiet")
	Warn("audible")

	out := buf.String()
	if strings.Contains(out, "too quiet") {
		t.Errorf("low levels not filtered: %q", out)
	}
	if !strings.Contains(out, "audible") {
		t.Errorf("warn level missing: %q", out)
	}
}

func TestSetLevelAtRuntime(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text")

	Debug("invisible")
	SetLevel("DEBUG")
	Debug("visible")

	out := buf.String()
	if strings.Contains(out, "invisible") {
		t.Errorf("debug leaked before SetLevel: %q", out)
	}
	if !strings.Contains(out, "visible") {
		t.Errorf("debug missing after SetLevel: %q", out)
	}
	if Level() != "DEBUG" {
		t.Errorf("Level() = %q, want DEBUG", Level())
	}

	SetLevel("nonsense")
	if Level() != "DEBUG" {
		t.Errorf("invalid SetLevel changed level to %q", Level())
	}
}

func TestWithAttributes(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text")

	l := With(KeyUserKey, "u1")
	l.Info("snapshot served")

	if !strings.Contains(buf.String(), "user_key=u1") {
		t.Errorf("pre-bound attribute missing: %q", buf.String())
	}
}

func TestQuotedValues(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text")

	Info("artifact written", KeyFileName, "my report.pdf")

	if !strings.Contains(buf.String(), `file_name="my report.pdf"`) {
		t.Errorf("value with spaces not quoted: %q", buf.String())
	}
}
