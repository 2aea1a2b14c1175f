package curriculum_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/p-n-ai/pai-pathways/internal/curriculum"
)

func TestLoader_LoadPaths(t *testing.T) {
	dir := setupTestPaths(t)

	loader, err := curriculum.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	paths := loader.AllPaths()
	if len(paths) != 1 {
		t.Fatalf("AllPaths() = %d paths, want 1", len(paths))
	}
}

func TestLoader_GetPath(t *testing.T) {
	dir := setupTestPaths(t)

	loader, err := curriculum.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	path, found := loader.GetPath("go-basics")
	if !found {
		t.Fatal("GetPath(go-basics) not found")
	}
	if path.Topic != "Go Programming" {
		t.Errorf("Topic = %q, want Go Programming", path.Topic)
	}
	if len(path.Subtopics) != 4 {
		t.Errorf("len(Subtopics) = %d, want 4", len(path.Subtopics))
	}
	if path.Overview != "# Overview\n\nLonger overview from markdown.\n" {
		t.Errorf("Overview = %q, want markdown sidecar content", path.Overview)
	}
}

func TestLoader_RecomputesProgress(t *testing.T) {
	dir := setupTestPaths(t)

	loader, err := curriculum.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	path, _ := loader.GetPath("go-basics")
	// The file claims 90% and lists an unknown subtopic plus a duplicate.
	if len(path.CompletedSubtopics) != 1 || path.CompletedSubtopics[0] != "Variables" {
		t.Errorf("CompletedSubtopics = %v, want [Variables]", path.CompletedSubtopics)
	}
	if path.Progress != 25 {
		t.Errorf("Progress = %v, want 25", path.Progress)
	}
}

func TestLoader_GetPath_NotFound(t *testing.T) {
	dir := setupTestPaths(t)

	loader, err := curriculum.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	if _, found := loader.GetPath("NONEXISTENT"); found {
		t.Error("GetPath(NONEXISTENT) should not be found")
	}
}

func TestLoader_SkipsInvalidYAML(t *testing.T) {
	dir := setupTestPaths(t)
	os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("id: [unterminated"), 0o644)
	os.WriteFile(filepath.Join(dir, "notes.yaml"), []byte("title: not a path\n"), 0o644)

	loader, err := curriculum.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	if got := len(loader.AllPaths()); got != 1 {
		t.Errorf("AllPaths() = %d, want 1 (invalid and id-less YAML skipped)", got)
	}
}

func TestLoader_MissingDir(t *testing.T) {
	loader, err := curriculum.NewLoader(filepath.Join(t.TempDir(), "missing"))
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}
	if got := len(loader.AllPaths()); got != 0 {
		t.Errorf("AllPaths() = %d, want 0", got)
	}
}

func setupTestPaths(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	os.WriteFile(filepath.Join(dir, "go-basics.yaml"), []byte(`
id: go-basics
topic: Go Programming
level: beginner
overview: Short overview
estimated_hours: 6
progress: 90
completed_subtopics:
  - Variables
  - Variables
  - Generics
subtopics:
  - name: Variables
    explanation: Named storage for values.
  - name: Functions
    explanation: Reusable blocks of code.
  - name: Structs
    explanation: Composite types grouping fields.
  - name: Interfaces
    explanation: Sets of method signatures.
`), 0o644)
	os.WriteFile(filepath.Join(dir, "go-basics.overview.md"), []byte("# Overview\n\nLonger overview from markdown.\n"), 0o644)

	return dir
}
