package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDisabledLoggingWritesNothing(t *testing.T) {
	dir := t.TempDir()
	if err := Initialize(dir, Settings{DebugMode: false}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer CloseAll()

	Rounds("should not appear")

	if _, err := os.Stat(filepath.Join(dir, ".redqueen", "logs")); !os.IsNotExist(err) {
		t.Fatalf("logs directory should not exist in production mode")
	}
}

func TestCategoryFileCreated(t *testing.T) {
	dir := t.TempDir()
	err := Initialize(dir, Settings{DebugMode: true, Level: "debug"})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer func() {
		CloseAll()
		logsDir = ""
	}()

	Arena("round %d begins", 1)
	CloseAll()

	entries, err := os.ReadDir(filepath.Join(dir, ".redqueen", "logs"))
	if err != nil {
		t.Fatalf("reading logs dir: %v", err)
	}
	var found bool
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), "_arena.log") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an arena log file, got %v", entries)
	}
}

func TestCategoryFilter(t *testing.T) {
	dir := t.TempDir()
	err := Initialize(dir, Settings{
		DebugMode:  true,
		Level:      "info",
		Categories: map[string]bool{"novelty": false},
	})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer func() {
		CloseAll()
		logsDir = ""
	}()

	if IsCategoryEnabled(CategoryNovelty) {
		t.Fatalf("novelty category should be disabled")
	}
	if !IsCategoryEnabled(CategoryArena) {
		t.Fatalf("unlisted categories should default to enabled")
	}
}
