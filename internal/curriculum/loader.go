package curriculum

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Loader loads and caches learning-path seed files from the filesystem.
//
// Each path lives in a YAML file. An optional sibling "<name>.overview.md"
// replaces the overview field with longer markdown text.
type Loader struct {
	rootDir string
	paths   map[string]LearningPath
	mu      sync.RWMutex
}

// NewLoader creates a new loader and loads every path under rootDir.
func NewLoader(rootDir string) (*Loader, error) {
	l := &Loader{
		rootDir: rootDir,
		paths:   make(map[string]LearningPath),
	}

	if err := l.loadAll(); err != nil {
		return nil, fmt.Errorf("loading learning paths: %w", err)
	}

	slog.Info("learning paths loaded", "paths", len(l.paths), "dir", rootDir)
	return l, nil
}

// GetPath returns a path by ID.
func (l *Loader) GetPath(id string) (LearningPath, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.paths[id]
	return p, ok
}

// AllPaths returns all loaded paths ordered by ID.
func (l *Loader) AllPaths() []LearningPath {
	l.mu.RLock()
	defer l.mu.RUnlock()
	paths := make([]LearningPath, 0, len(l.paths))
	for _, p := range l.paths {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i].ID < paths[j].ID })
	return paths
}

func (l *Loader) loadAll() error {
	if _, err := os.Stat(l.rootDir); os.IsNotExist(err) {
		slog.Warn("learning path directory does not exist", "dir", l.rootDir)
		return nil
	}
	return filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
			return l.loadPath(path)
		}
		return nil
	})
}

func (l *Loader) loadPath(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var lp LearningPath
	if err := yaml.Unmarshal(data, &lp); err != nil {
		slog.Warn("skipping invalid learning path YAML", "path", path, "error", err)
		return nil
	}

	if lp.ID == "" {
		return nil // Not a path file
	}

	ext := filepath.Ext(path)
	if overview, err := os.ReadFile(strings.TrimSuffix(path, ext) + ".overview.md"); err == nil {
		lp.Overview = string(overview)
	}

	for i := range lp.Subtopics {
		lp.Subtopics[i].Name = NormalizeName(lp.Subtopics[i].Name)
	}
	lp.CompletedSubtopics = normalizeCompleted(lp)
	lp.Progress = ProgressRatio(len(lp.CompletedSubtopics), len(lp.Subtopics))

	l.mu.Lock()
	l.paths[lp.ID] = lp
	l.mu.Unlock()

	return nil
}

// normalizeCompleted drops duplicates and names that are not subtopics of
// the path, so the stored ratio always matches the stored set.
func normalizeCompleted(lp LearningPath) []string {
	seen := make(map[string]bool, len(lp.CompletedSubtopics))
	out := make([]string, 0, len(lp.CompletedSubtopics))
	for _, name := range lp.CompletedSubtopics {
		key := NormalizeName(name)
		if seen[key] || !lp.HasSubtopic(key) {
			continue
		}
		seen[key] = true
		out = append(out, key)
	}
	return out
}
