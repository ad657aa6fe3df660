package logging_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jamesainslie/logsweep/pkg/logsweep/logging"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    logging.Level
		wantErr bool
	}{
		{"debug", logging.LevelDebug, false},
		{"INFO", logging.LevelInfo, false},
		{"", logging.LevelInfo, false},
		{"warning", logging.LevelWarn, false},
		{"warn", logging.LevelWarn, false},
		{"error", logging.LevelError, false},
		{"verbose", logging.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got, err := logging.ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, logging.ErrInvalidLevel) {
				t.Errorf("ParseLevel(%q) error = %v, want ErrInvalidLevel", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLevelString(t *testing.T) {
	t.Parallel()

	if logging.LevelWarn.String() != "warn" {
		t.Errorf("LevelWarn.String() = %q", logging.LevelWarn.String())
	}
	if logging.Level(42).String() != "unknown" {
		t.Errorf("Level(42).String() = %q", logging.Level(42).String())
	}
}

func TestNew_WritesToWriter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := logging.New(&buf, "engine", logging.LevelInfo)

	l.Debug("hidden")
	l.Log(logging.LevelWarn, "rule skipped", "rule", "app")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug message written at info level: %s", out)
	}
	if !strings.Contains(out, "rule skipped") || !strings.Contains(out, "rule=app") {
		t.Errorf("missing warn message: %s", out)
	}

	var _ logging.Sink = l
}

func TestInit_UpdatesEarlierLoggers(t *testing.T) {
	// No t.Parallel() - uses global state

	early := logging.Get("early")

	logPath := filepath.Join(t.TempDir(), "early.log")
	if err := logging.Init(logging.Config{Level: "info", Path: logPath}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	early.Info("captured before init")

	if err := logging.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(content), "captured before init") {
		t.Errorf("logger obtained before Init did not write to file, got: %s", content)
	}
}

func TestComponentLevels(t *testing.T) {
	// No t.Parallel() - uses global state

	logPath := filepath.Join(t.TempDir(), "components.log")
	cfg := logging.Config{
		Level:      "warn",
		Path:       logPath,
		Components: map[string]string{"discover": "debug"},
	}
	if err := logging.Init(cfg); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	logging.Get("discover").Debug("discover debug visible")
	logging.Get("archive").Info("archive info hidden")
	logging.Get("archive").Error("archive error visible")

	if err := logging.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	got := string(content)

	if !strings.Contains(got, "discover debug visible") {
		t.Error("component override not applied")
	}
	if strings.Contains(got, "archive info hidden") {
		t.Error("default level not applied")
	}
	if !strings.Contains(got, "archive error visible") {
		t.Error("error message missing")
	}
}

func TestInit_InvalidLevels(t *testing.T) {
	// No t.Parallel() - uses global state

	dir := t.TempDir()
	tests := []struct {
		name string
		cfg  logging.Config
	}{
		{"bad default", logging.Config{Level: "loud", Path: filepath.Join(dir, "a.log")}},
		{"bad component", logging.Config{Path: filepath.Join(dir, "b.log"), Components: map[string]string{"x": "loud"}}},
		{"bad console", logging.Config{Path: filepath.Join(dir, "c.log"), ConsoleLevel: "loud"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := logging.Init(tt.cfg); err == nil {
				_ = logging.Close()
				t.Fatal("Init() error = nil, want error")
			}
		})
	}
}

func TestDefaultLogPath(t *testing.T) {
	t.Parallel()

	p := logging.DefaultLogPath()
	if filepath.Base(p) != "logsweep.log" {
		t.Errorf("DefaultLogPath() = %q", p)
	}
}
