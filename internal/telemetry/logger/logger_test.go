package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func newTestLogger(t *testing.T, cfg Config) (Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	cfg.Output = &buf
	l, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l, &buf
}

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var m map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &m); err != nil {
		t.Fatalf("unmarshal log line %q: %v", lines[len(lines)-1], err)
	}
	return m
}

func TestJSONOutput(t *testing.T) {
	l, buf := newTestLogger(t, Config{Level: "info", Format: "json"})
	l.Info("peer connected", "peer_id", 7)

	m := lastLine(t, buf)
	if m["msg"] != "peer connected" {
		t.Errorf("msg = %v, want %q", m["msg"], "peer connected")
	}
	if m["peer_id"] != float64(7) {
		t.Errorf("peer_id = %v, want 7", m["peer_id"])
	}
}

func TestLevelFiltersDebug(t *testing.T) {
	l, buf := newTestLogger(t, Config{Level: "info", Format: "json"})
	l.Debug("noise")
	if buf.Len() != 0 {
		t.Errorf("debug line emitted at info level: %q", buf.String())
	}
}

func TestSetLevelTakesEffect(t *testing.T) {
	l, buf := newTestLogger(t, Config{Level: "info", Format: "json"})
	SetLevel("debug")
	defer SetLevel("info")

	l.Debug("now visible")
	if buf.Len() == 0 {
		t.Error("debug line missing after SetLevel(debug)")
	}
	if got := GetLevel(); got != "debug" {
		t.Errorf("GetLevel() = %q, want debug", got)
	}
}

func TestSessionTokenMasked(t *testing.T) {
	l, buf := newTestLogger(t, Config{Level: "info", Format: "json"})
	l.Info("session opened", "session", "ms_01HZXK7Q2M4R5T6Y8A9B0C1D2E")

	m := lastLine(t, buf)
	got, _ := m["session"].(string)
	if strings.Contains(got, "01HZXK7Q2M4R5T6Y8A9B0C1D2E") {
		t.Errorf("full token leaked into log: %q", got)
	}
	if !strings.HasPrefix(got, "ms_") {
		t.Errorf("masked token lost its prefix: %q", got)
	}
}

func TestSensitiveKeyRedacted(t *testing.T) {
	l, buf := newTestLogger(t, Config{Level: "info", Format: "json"})
	l.Info("auth", "password", "hunter2")

	m := lastLine(t, buf)
	if m["password"] != redactedValue {
		t.Errorf("password = %v, want %q", m["password"], redactedValue)
	}
}

func TestWithPreservesAttrs(t *testing.T) {
	l, buf := newTestLogger(t, Config{Level: "info", Format: "json"})
	l.With("component", "server").Info("tick")

	m := lastLine(t, buf)
	if m["component"] != "server" {
		t.Errorf("component = %v, want server", m["component"])
	}
}

func TestContextPeerEnrichment(t *testing.T) {
	l, buf := newTestLogger(t, Config{Level: "info", Format: "json"})
	ctx := WithLogger(context.Background(), l)
	ctx = WithPeerID(ctx, 42)

	L(ctx).Info("input applied")
	m := lastLine(t, buf)
	if m["peer_id"] != float64(42) {
		t.Errorf("peer_id = %v, want 42", m["peer_id"])
	}
}

func TestRedactString(t *testing.T) {
	cases := []struct {
		in       string
		wantMask bool
	}{
		{"ms_01HZXK7Q2M4R5T6Y", true},
		{"plain text", false},
		{"ms_abc", true},
	}
	for _, tc := range cases {
		got := RedactString(tc.in)
		if tc.wantMask && got == tc.in {
			t.Errorf("RedactString(%q) unchanged, want masked", tc.in)
		}
		if !tc.wantMask && got != tc.in {
			t.Errorf("RedactString(%q) = %q, want unchanged", tc.in, got)
		}
	}
}
