package plog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLevelFromString(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"notice", LevelNotice},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := LevelFromString(tc.in); got != tc.want {
			t.Errorf("LevelFromString(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestSetOutputAndLevels(t *testing.T) {
	// Arrange
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)
	SetLevel(slog.LevelInfo)

	// Act
	Debug("hidden")
	Info("visible", "key", "value")

	// Assert
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug message leaked at info level: %q", out)
	}
	if !strings.Contains(out, "visible") || !strings.Contains(out, "key=value") {
		t.Errorf("info message missing from output: %q", out)
	}

	// Act: lower the level, notice should now pass.
	buf.Reset()
	SetLevel(LevelNotice)
	Notice("progress", "file", "a.txt")

	// Assert
	if !strings.Contains(buf.String(), "progress") {
		t.Errorf("notice message missing at notice level: %q", buf.String())
	}
	SetLevel(slog.LevelInfo)
}

func TestEnableFileLogging(t *testing.T) {
	// Arrange
	logDir := filepath.Join(t.TempDir(), "logs")

	if err := EnableFileLogging(logDir); err != nil {
		t.Fatalf("EnableFileLogging() error = %v", err)
	}
	defer CloseFileLogging()

	// Act
	Info("run started", "config", "docs")
	Warn("file skipped", "path", "b.txt")
	CloseFileLogging()

	// Assert: one dated file exists and holds valid JSON lines.
	name := "smartbackup_" + time.Now().Format("20060102") + ".log"
	f, err := os.Open(filepath.Join(logDir, name))
	if err != nil {
		t.Fatalf("expected log file %s: %v", name, err)
	}
	defer f.Close()

	var msgs []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec map[string]any
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("log line is not valid JSON: %v", err)
		}
		if msg, ok := rec["msg"].(string); ok {
			msgs = append(msgs, msg)
		}
	}
	if len(msgs) != 2 || msgs[0] != "run started" || msgs[1] != "file skipped" {
		t.Errorf("unexpected log file contents: %v", msgs)
	}
}
