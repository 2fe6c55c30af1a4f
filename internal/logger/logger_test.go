package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/oggyb/wetogether/internal/config"
)

// captureOutput redirects the logger's writer to a buffer during f()
func captureOutput(t *testing.T, f func()) string {
	t.Helper()

	var buf bytes.Buffer
	mu.Lock()
	old := out
	out = &buf
	mu.Unlock()

	t.Cleanup(func() {
		mu.Lock()
		out = old
		mu.Unlock()
		Init(&Config{Level: "info", Format: FormatText})
	})

	f()
	return buf.String()
}

func logConfig(level, format, component string, source bool) *config.Config {
	c := &config.Config{}
	c.Log.Level = level
	c.Log.Format = format
	c.Log.Component = component
	c.Log.Source = source
	return c
}

func TestLogger_TextFormat(t *testing.T) {
	got := captureOutput(t, func() {
		InitFromConfig(logConfig("debug", "text", "test", false))
		Info("match created", "key", "value")
	})

	if !strings.Contains(got, "match created") {
		t.Errorf("expected message, got: %s", got)
	}
	if !strings.Contains(got, "component=test") {
		t.Errorf("expected component field, got: %s", got)
	}
	if !strings.Contains(got, "key=value") {
		t.Errorf("expected structured field, got: %s", got)
	}
}

func TestLogger_JSONFormat(t *testing.T) {
	got := captureOutput(t, func() {
		InitFromConfig(logConfig("info", "json", "json_test", false))
		Info("json log", "foo", "bar")
	})

	if !strings.Contains(got, `"msg":"json log"`) {
		t.Errorf("expected JSON message, got: %s", got)
	}
	if !strings.Contains(got, `"component":"json_test"`) {
		t.Errorf("expected component in JSON, got: %s", got)
	}
	if !strings.Contains(got, `"foo":"bar"`) {
		t.Errorf("expected structured field in JSON, got: %s", got)
	}
}

func TestLogger_LevelFilter(t *testing.T) {
	got := captureOutput(t, func() {
		InitFromConfig(logConfig("error", "text", "", false))
		Info("should not appear")
		Error("should appear")
	})

	if strings.Contains(got, "should not appear") {
		t.Errorf("info log should not appear, got: %s", got)
	}
	if !strings.Contains(got, "should appear") {
		t.Errorf("error log should appear, got: %s", got)
	}
}

func TestLogger_MatchAndUserFields(t *testing.T) {
	got := captureOutput(t, func() {
		InitFromConfig(logConfig("debug", "text", "", false))
		log := ForUser(ForMatch(nil, 7), 42)
		log.Info("answer stored")
	})

	if !strings.Contains(got, "match_id=7") {
		t.Errorf("expected match_id field, got: %s", got)
	}
	if !strings.Contains(got, "user_id=42") {
		t.Errorf("expected user_id field, got: %s", got)
	}
}

func TestLogger_NilConfigKeepsDefaults(t *testing.T) {
	got := captureOutput(t, func() {
		InitFromConfig(nil)
		With("req_id", "123").Info("processing request")
	})

	if !strings.Contains(got, "req_id=123") {
		t.Errorf("expected req_id field, got: %s", got)
	}
}
