package logging_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"seedshelf/internal/logging"
	"seedshelf/internal/services"
)

func TestNewWritesToFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "seedshelf.log")

	logger, err := logging.New(logging.Options{
		Format:      "json",
		Level:       "info",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("organization started", logging.Int("files", 3))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "organization started") {
		t.Fatalf("expected log message in output, got %q", content)
	}
	if !strings.Contains(string(content), `"files":3`) {
		t.Fatalf("expected structured attribute in output, got %q", content)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestLevelFiltering(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "level.log")

	logger, err := logging.New(logging.Options{
		Format:      "console",
		Level:       "warn",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("quiet")
	logger.Warn("loud")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), "quiet") {
		t.Fatalf("info message should be filtered at warn level, got %q", content)
	}
	if !strings.Contains(string(content), "loud") {
		t.Fatalf("warn message missing from output, got %q", content)
	}
}

func TestWithContextAddsTaskFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "ctx.log")

	base, err := logging.New(logging.Options{
		Format:      "json",
		Level:       "info",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithTaskID(context.Background(), "task-123")
	ctx = services.WithBatchID(ctx, "batch-7")
	logging.WithContext(ctx, base).Info("progress")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	for _, fragment := range []string{"task-123", "batch-7"} {
		if !strings.Contains(string(content), fragment) {
			t.Fatalf("expected %q in log output %q", fragment, content)
		}
	}
}

func TestNewNopDiscards(t *testing.T) {
	logger := logging.NewNop()
	logger.Error("never seen", logging.Error(os.ErrNotExist))
}
