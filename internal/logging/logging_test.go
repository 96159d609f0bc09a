package logging

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"
)

func TestNewReturnsUsableLogger(t *testing.T) {
	l := New("test-service")
	if l == nil {
		t.Fatal("New returned nil")
	}
	l.Debug("debug %d", 1)
	l.Info("info %s", "ok")
	l.Warning("warning")
	l.Error("error: %v", "boom")
}

func captureStderr(t *testing.T, fn func()) string {
	t.Helper()
	orig := os.Stderr
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stderr = w
	defer func() { os.Stderr = orig }()

	fn()
	w.Close()

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	return buf.String()
}

func TestNilHandleFallsBackToStderr(t *testing.T) {
	l := &Logger{service: "fallback-svc"}
	out := captureStderr(t, func() {
		l.Warning("disk at %d%%", 90)
	})
	if !strings.Contains(out, "fallback-svc") || !strings.Contains(out, "WARN") || !strings.Contains(out, "disk at 90%") {
		t.Errorf("unexpected fallback log line: %q", out)
	}
}
