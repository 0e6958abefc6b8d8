package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != "info" {
		t.Errorf("DefaultConfig().Level = %q, want \"info\"", cfg.Level)
	}
	if cfg.Format != "auto" {
		t.Errorf("DefaultConfig().Format = %q, want \"auto\"", cfg.Format)
	}
	if cfg.Output == nil {
		t.Error("DefaultConfig().Output should not be nil")
	}
	if cfg.AddSource {
		t.Error("DefaultConfig().AddSource should be false")
	}
}

func TestLogger_NilOutput(t *testing.T) {
	logger := New(Config{Level: "info", Format: "text"})
	if logger == nil {
		t.Fatal("New() with nil output should not return nil")
	}
	logger.Info("test message")
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{
		Level:  "info",
		Format: "json",
		Output: &buf,
	})

	logger.With("key1", "value1", "key2", 42).Info("test message")

	output := buf.String()
	if !strings.Contains(output, "key1") || !strings.Contains(output, "value1") {
		t.Errorf("expected key1=value1 in output, got: %s", output)
	}
}

func TestLogger_WithContextFallback(t *testing.T) {
	logger := New(DefaultConfig())

	if got := logger.WithContext(context.Background()); got != logger {
		t.Error("WithContext() without a stored logger should return the receiver")
	}

	other := NewNop()
	ctx := NewContext(context.Background(), other)
	if got := logger.WithContext(ctx); got != other {
		t.Error("WithContext() should prefer the logger stored in ctx")
	}
}

func TestLogger_SanitizerAccess(t *testing.T) {
	logger := New(DefaultConfig())

	sanitizer := logger.Sanitizer()
	if sanitizer == nil {
		t.Fatal("Sanitizer() should not return nil")
	}
	if !strings.Contains(sanitizer.Sanitize("http://u:p4ss@h"), "[REDACTED]") {
		t.Error("Sanitizer should redact URL credentials")
	}
}

func TestLogger_ChainedWith(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{
		Level:  "info",
		Format: "json",
		Output: &buf,
	})

	logger.
		WithCycle(3).
		WithTask("task:abc").
		WithOperation("run").
		WithNode("n-1", "http://kb-1:5601").
		Info("chained log")

	output := buf.String()
	for _, want := range []string{`"cycle":3`, `"task_id":"task:abc"`, `"operation":"run"`, `"node_id":"n-1"`} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %s in output, got: %s", want, output)
		}
	}
}

func TestParseLevel_AllLevels(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"debug", "DEBUG"},
		{"DEBUG", "DEBUG"},
		{" info ", "INFO"},
		{"warn", "WARN"},
		{"warning", "WARN"},
		{"error", "ERROR"},
		{"err", "INFO"},
		{"fatal", "INFO"},
		{"", "INFO"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got.String() != tt.want {
				t.Errorf("ParseLevel(%q) = %s, want %s", tt.input, got.String(), tt.want)
			}
		})
	}
}

func TestSanitizer_MultiplePatterns(t *testing.T) {
	sanitizer := NewSanitizer()

	input := "es=http://elastic:changeme@es:9200 auth=Basic ZWxhc3RpYzpjaGFuZ2VtZQ=="
	result := sanitizer.Sanitize(input)

	if strings.Contains(result, "changeme") {
		t.Error("URL password should be redacted")
	}
	if strings.Contains(result, "ZWxhc3Rp") {
		t.Error("basic credentials should be redacted")
	}
}

func TestSanitizer_EmptyInput(t *testing.T) {
	if NewSanitizer().Sanitize("") != "" {
		t.Error("Empty input should produce empty output")
	}
}

func TestSanitizer_SanitizeMap_NilValue(t *testing.T) {
	sanitizer := NewSanitizer()

	result := sanitizer.SanitizeMap(map[string]interface{}{
		"null_key": nil,
		"string":   "value",
	})
	if result["null_key"] != nil {
		t.Error("Nil value should remain nil")
	}
	if result["string"] != "value" {
		t.Error("String value should be unchanged")
	}
}

func TestSanitizer_Placeholder(t *testing.T) {
	sanitizer := NewSanitizer()
	sanitizer.SetRedactedPlaceholder("***")

	if got := sanitizer.Sanitize("password=changeme"); got != "***" {
		t.Errorf("Sanitize() = %q, want ***", got)
	}
}

func TestNewNop_Operations(t *testing.T) {
	logger := NewNop()

	logger.Debug("debug")
	logger.Info("info")
	logger.Warn("warn")
	logger.Error("error")
	logger.With("key", "value").Info("with key")
	logger.WithTask("task-1").Info("with task")
	logger.WithNode("n", "http://kb").Info("with node")
	logger.WithCycle(1).Info("with cycle")
	logger.WithOperation("fail").Info("with operation")
	logger.WithContext(context.Background()).Info("with context")
}

func TestPrettyHandler_AllLevels(t *testing.T) {
	var buf bytes.Buffer

	logger := &Logger{
		Logger:    slog.New(NewPrettyHandler(&buf, ParseLevel("debug"))),
		sanitizer: NewSanitizer(),
	}

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	output := buf.String()
	for _, marker := range []string{"DBG", "INF", "WRN", "ERR"} {
		if !strings.Contains(output, marker) {
			t.Errorf("Expected %s level marker", marker)
		}
	}
}

func TestPrettyHandler_LeadingKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewPrettyHandler(&buf, slog.LevelInfo)).With("extra", "x")

	logger.Info("claimed", "elapsed", 1500*time.Millisecond, "task_id", "t-1", "cycle", 2, "note", "two words")

	line := buf.String()
	cycle := strings.Index(line, "cycle")
	task := strings.Index(line, "task_id")
	extra := strings.Index(line, "extra")
	if cycle < 0 || task < 0 || extra < 0 || !(cycle < task && task < extra) {
		t.Errorf("expected cycle, task_id, then other attrs: %q", line)
	}
	if !strings.Contains(line, "=1.5s") {
		t.Errorf("expected duration formatting: %q", line)
	}
	if !strings.Contains(line, `="two words"`) {
		t.Errorf("expected quoted string with spaces: %q", line)
	}
}

func TestIsTerminal_NonFile(t *testing.T) {
	var buf bytes.Buffer
	if isTerminal(&buf) {
		t.Error("bytes.Buffer should not be detected as terminal")
	}
}
