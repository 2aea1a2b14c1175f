package backend

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/p-n-ai/pai-pathways/internal/curriculum"
)

type resourceKey struct {
	pathID     string
	subtopicID int
}

// MemoryBackend is an in-memory Backend, seeded from curriculum files.
type MemoryBackend struct {
	paths     map[string]curriculum.LearningPath
	resources map[resourceKey][]curriculum.Resource
	uploads   map[string][]byte
	nextID    int64
	mu        sync.RWMutex
}

// NewMemoryBackend creates a backend holding the given paths.
func NewMemoryBackend(paths ...curriculum.LearningPath) *MemoryBackend {
	b := &MemoryBackend{
		paths:     make(map[string]curriculum.LearningPath),
		resources: make(map[resourceKey][]curriculum.Resource),
		uploads:   make(map[string][]byte),
	}
	for _, p := range paths {
		b.paths[p.ID] = clonePath(p)
	}
	return b
}

func (b *MemoryBackend) FetchPath(_ context.Context, pathID string) (curriculum.LearningPath, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	p, ok := b.paths[pathID]
	if !ok {
		return curriculum.LearningPath{}, fmt.Errorf("%w: %s", curriculum.ErrPathNotFound, pathID)
	}
	return clonePath(p), nil
}

func (b *MemoryBackend) FetchResources(_ context.Context, pathID string, subtopicID int) ([]curriculum.Resource, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if err := b.checkSubtopic(pathID, subtopicID); err != nil {
		return nil, err
	}
	out := slices.Clone(b.resources[resourceKey{pathID, subtopicID}])
	if out == nil {
		out = []curriculum.Resource{}
	}
	return out, nil
}

func (b *MemoryBackend) SubmitResource(_ context.Context, pathID string, subtopicID int, res curriculum.Resource) (curriculum.Resource, error) {
	if err := validateSubmission(res); err != nil {
		return curriculum.Resource{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkSubtopic(pathID, subtopicID); err != nil {
		return curriculum.Resource{}, err
	}
	b.nextID++
	res.ID = b.nextID
	key := resourceKey{pathID, subtopicID}
	b.resources[key] = append(b.resources[key], res)
	return res, nil
}

func (b *MemoryBackend) PersistProgress(_ context.Context, pathID string, update curriculum.ProgressUpdate) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.paths[pathID]
	if !ok {
		return fmt.Errorf("%w: %s", curriculum.ErrPathNotFound, pathID)
	}
	p.CompletedSubtopics = slices.Clone(update.CompletedSubtopics)
	p.Progress = update.Progress
	b.paths[pathID] = p
	return nil
}

func (b *MemoryBackend) UploadFile(_ context.Context, filename string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("upload is empty")
	}
	name := uploadName(filename, data)

	b.mu.Lock()
	b.uploads[name] = slices.Clone(data)
	b.mu.Unlock()

	return UploadPrefix + name, nil
}

func (b *MemoryBackend) ReadUpload(_ context.Context, name string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, ok := b.uploads[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUploadNotFound, name)
	}
	return data, nil
}

func (b *MemoryBackend) checkSubtopic(pathID string, subtopicID int) error {
	p, ok := b.paths[pathID]
	if !ok {
		return fmt.Errorf("%w: %s", curriculum.ErrPathNotFound, pathID)
	}
	if _, ok := p.Subtopic(subtopicID); !ok {
		return fmt.Errorf("%w: %d", curriculum.ErrSubtopicNotFound, subtopicID)
	}
	return nil
}

func clonePath(p curriculum.LearningPath) curriculum.LearningPath {
	p.Subtopics = slices.Clone(p.Subtopics)
	p.CompletedSubtopics = slices.Clone(p.CompletedSubtopics)
	return p
}
