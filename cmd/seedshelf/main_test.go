package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestConfig(t *testing.T, base string) string {
	t.Helper()
	configPath := filepath.Join(base, "config.toml")
	content := fmt.Sprintf(`[paths]
library_dir = %q
log_dir = %q
state_dir = %q

[library]
enabled = true

[conversion]
max_concurrent = 2

[logging]
format = "json"
level = "info"
`,
		filepath.Join(base, "library"),
		filepath.Join(base, "logs"),
		filepath.Join(base, "state"),
	)
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return configPath
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommandShowsHelp(t *testing.T) {
	base := t.TempDir()
	configPath := writeTestConfig(t, base)

	output, err := runCommand(t, "--config", configPath)
	if err != nil {
		t.Fatalf("root command failed: %v", err)
	}
	for _, sub := range []string{"organize", "analyze", "queue", "history", "config"} {
		if !strings.Contains(output, sub) {
			t.Errorf("expected help to list %q, got:\n%s", sub, output)
		}
	}
}

func TestQueueStatusEmpty(t *testing.T) {
	base := t.TempDir()
	configPath := writeTestConfig(t, base)

	output, err := runCommand(t, "--config", configPath, "queue", "status")
	if err != nil {
		t.Fatalf("queue status failed: %v", err)
	}
	if !strings.Contains(output, "No conversion tasks recorded") {
		t.Fatalf("expected empty-queue message, got:\n%s", output)
	}
}

func TestHistoryEmpty(t *testing.T) {
	base := t.TempDir()
	configPath := writeTestConfig(t, base)

	output, err := runCommand(t, "--config", configPath, "history")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if !strings.Contains(output, "No organization history recorded") {
		t.Fatalf("expected empty-history message, got:\n%s", output)
	}
}

func TestConfigInitWritesSample(t *testing.T) {
	base := t.TempDir()
	target := filepath.Join(base, "config.toml")

	output, err := runCommand(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	if !strings.Contains(output, target) {
		t.Fatalf("expected output to mention %s, got:\n%s", target, output)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read sample config: %v", err)
	}
	if !strings.Contains(string(data), "[conversion]") {
		t.Fatalf("expected sample config sections, got:\n%s", data)
	}

	if _, err := runCommand(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected error when config already exists without --overwrite")
	}
	if _, err := runCommand(t, "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite failed: %v", err)
	}
}

func TestCollectFilesSniffsMediaType(t *testing.T) {
	base := t.TempDir()
	video := filepath.Join(base, "movie.mkv")
	other := filepath.Join(base, "notes.txt")
	for _, path := range []string{video, other} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}

	files, err := collectFiles([]string{base})
	if err != nil {
		t.Fatalf("collectFiles failed: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 descriptors, got %d", len(files))
	}
	byName := make(map[string]string, len(files))
	for _, file := range files {
		byName[file.Name] = file.MediaType
	}
	if byName["movie.mkv"] != "video" {
		t.Fatalf("expected video sniff for movie.mkv, got %q", byName["movie.mkv"])
	}
	if byName["notes.txt"] != "other" {
		t.Fatalf("expected non-video sniff for notes.txt, got %q", byName["notes.txt"])
	}
}

func TestCollectFilesKeepsMissingPathForReporting(t *testing.T) {
	files, err := collectFiles([]string{"/nonexistent/clip.mkv"})
	if err != nil {
		t.Fatalf("collectFiles failed: %v", err)
	}
	if len(files) != 1 || files[0].MediaType != "video" {
		t.Fatalf("expected missing path to pass through for per-file failure reporting, got %+v", files)
	}
}
