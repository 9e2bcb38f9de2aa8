package logger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	var lines []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var entry map[string]any
		if err := json.Unmarshal(sc.Bytes(), &entry); err != nil {
			t.Fatalf("line %q is not JSON: %v", sc.Text(), err)
		}
		lines = append(lines, entry)
	}
	return lines
}

func TestNew_WritesFile(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     string
	}{
		{"default filename", "", "robocop.log"},
		{"custom filename", "serve.log", "serve.log"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "nested", "logs")
			log := New(Config{Level: "info", LogDir: dir, Filename: tt.filename})
			log.Info().Msg("hello")
			if err := log.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			lines := readLines(t, filepath.Join(dir, tt.want))
			if len(lines) != 1 || lines[0]["message"] != "hello" {
				t.Errorf("log lines = %v", lines)
			}
		})
	}
}

func TestNew_Fields(t *testing.T) {
	dir := t.TempDir()
	log := New(Config{LogDir: dir, Fields: map[string]string{"version": "1.2.3", "guild_id": "42"}})
	log.WithStr("component", "bot").Warn().Msg("reconnecting")
	_ = log.Close()

	lines := readLines(t, filepath.Join(dir, "robocop.log"))
	if len(lines) != 1 {
		t.Fatalf("got %d lines", len(lines))
	}
	for k, want := range map[string]string{"version": "1.2.3", "guild_id": "42", "component": "bot", "level": "warn"} {
		if lines[0][k] != want {
			t.Errorf("%s = %v, want %s", k, lines[0][k], want)
		}
	}
	if _, ok := lines[0]["caller"]; !ok {
		t.Error("file lines should carry the caller")
	}
}

func TestNew_Console(t *testing.T) {
	var console bytes.Buffer
	dir := t.TempDir()
	log := New(Config{Level: "debug", LogDir: dir, Console: true, ConsoleOut: &console})
	log.Debug().Str("channel", "1234").Msg("Upload accepted")
	_ = log.Close()

	out := console.String()
	if !strings.Contains(out, "Upload accepted") || strings.HasPrefix(out, "{") {
		t.Errorf("console output should be human readable, got %q", out)
	}
	if lines := readLines(t, filepath.Join(dir, "robocop.log")); len(lines) != 1 {
		t.Errorf("file got %d lines, want 1", len(lines))
	}
}

func TestNew_LevelFilters(t *testing.T) {
	dir := t.TempDir()
	log := New(Config{Level: "warn", LogDir: dir})
	log.Info().Msg("dropped")
	log.Error().Msg("kept")
	_ = log.Close()
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.DebugLevel) })

	lines := readLines(t, filepath.Join(dir, "robocop.log"))
	if len(lines) != 1 || lines[0]["message"] != "kept" {
		t.Errorf("log lines = %v", lines)
	}
}

func TestNew_UnwritableDirectory(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	log := New(Config{LogDir: filepath.Join(blocker, "logs")})
	if log == nil {
		t.Fatal("expected a stderr logger")
	}
	if err := log.Close(); err != nil {
		t.Errorf("Close on stderr logger: %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level  string
		want   zerolog.Level
		wantOK bool
	}{
		{"debug", zerolog.DebugLevel, true},
		{"Info", zerolog.InfoLevel, true},
		{"WARN", zerolog.WarnLevel, true},
		{"warning", zerolog.WarnLevel, true},
		{" error ", zerolog.ErrorLevel, true},
		{"trace", zerolog.InfoLevel, false},
		{"", zerolog.InfoLevel, false},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			got, ok := ParseLevel(tt.level)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", tt.level, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestWithStr_LeavesParent(t *testing.T) {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	var buf bytes.Buffer
	base := NewWriter(&buf)
	child := base.WithStr("component", "fetch")
	base.Info().Msg("parent")
	child.Info().Msg("child")

	dec := json.NewDecoder(&buf)
	var parent, derived map[string]any
	if err := dec.Decode(&parent); err != nil {
		t.Fatal(err)
	}
	if err := dec.Decode(&derived); err != nil {
		t.Fatal(err)
	}
	if _, ok := parent["component"]; ok {
		t.Error("WithStr must not modify the parent logger")
	}
	if derived["component"] != "fetch" {
		t.Errorf("component = %v, want fetch", derived["component"])
	}
}

func TestNop(t *testing.T) {
	log := Nop()
	log.Error().Msg("discarded")
	if err := log.Close(); err != nil {
		t.Errorf("Nop Close should not fail: %v", err)
	}
}
