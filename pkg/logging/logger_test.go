package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func newTestLogger(t *testing.T) (*Logger, *bytes.Buffer) {
	t.Helper()
	l, err := New("test", DEBUG, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	buf := &bytes.Buffer{}
	l.output = buf
	return l, buf
}

func TestLoggerWritesJSONEntry(t *testing.T) {
	l, buf := newTestLogger(t)
	l.Info("endpoint opened", Fields{"device": "feth1"})

	var e entry
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &e); err != nil {
		t.Fatalf("unmarshal: %v (raw: %s)", err, buf.String())
	}
	if e.Level != "INFO" || e.Message != "endpoint opened" || e.Fields["device"] != "feth1" {
		t.Errorf("unexpected entry: %+v", e)
	}
}

func TestLoggerFiltersBelowLevel(t *testing.T) {
	l, buf := newTestLogger(t)
	l.SetLevel(WARN)
	l.Debug("should not appear")
	l.Info("should not appear either")
	if buf.Len() != 0 {
		t.Errorf("expected no output below configured level, got %q", buf.String())
	}
	l.Warn("should appear")
	if !strings.Contains(buf.String(), "should appear") {
		t.Errorf("expected warning to be logged")
	}
}

func TestLoggerWithFieldPersistsAcrossCalls(t *testing.T) {
	l, buf := newTestLogger(t)
	l.WithField("component", "forwarder")
	l.Info("first")
	l.Info("second")

	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var e entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if e.Fields["component"] != "forwarder" {
			t.Errorf("expected persistent field on every entry: %+v", e)
		}
	}
}
