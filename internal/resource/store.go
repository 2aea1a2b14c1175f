// Package resource caches, fetches and synthesizes the auxiliary material
// shown for each subtopic of a learning path.
package resource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/p-n-ai/pai-pathways/internal/activity"
	"github.com/p-n-ai/pai-pathways/internal/curriculum"
)

// Remote is the part of the backend the store talks to.
type Remote interface {
	FetchResources(ctx context.Context, pathID string, subtopicID int) ([]curriculum.Resource, error)
	SubmitResource(ctx context.Context, pathID string, subtopicID int, res curriculum.Resource) (curriculum.Resource, error)
	UploadFile(ctx context.Context, filename string, data []byte) (string, error)
}

// Store is the sole owner of resource collections. Its local cache and
// explanation memo live until Reset.
type Store struct {
	remote    Remote
	local     *MemoryCache
	cache     Cache
	synth     Synthesizer
	validator *Validator
	events    activity.Logger

	mu   sync.Mutex
	memo map[cacheKey]string
}

// Option configures a Store.
type Option func(*Store)

// WithSharedCache adds a shared tier, such as RedisCache, behind the local
// cache.
func WithSharedCache(c Cache) Option {
	return func(s *Store) {
		s.cache = &tiered{local: s.local, shared: c}
	}
}

// WithSynthesizer replaces the default TemplateSynthesizer.
func WithSynthesizer(syn Synthesizer) Option {
	return func(s *Store) { s.synth = syn }
}

// WithEventLogger records resource and synthesis activity.
func WithEventLogger(l activity.Logger) Option {
	return func(s *Store) { s.events = l }
}

// WithValidator replaces the default submission validator.
func WithValidator(v *Validator) Option {
	return func(s *Store) { s.validator = v }
}

// NewStore creates a store over remote.
func NewStore(remote Remote, opts ...Option) (*Store, error) {
	if remote == nil {
		return nil, errors.New("resource store needs a remote")
	}
	local := NewMemoryCache()
	s := &Store{
		remote: remote,
		local:  local,
		cache:  &tiered{local: local},
		synth:  TemplateSynthesizer{},
		events: activity.NopLogger{},
		memo:   make(map[cacheKey]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.validator == nil {
		v, err := NewValidator()
		if err != nil {
			return nil, err
		}
		s.validator = v
	}
	return s, nil
}

// Get returns the resources of a subtopic. Cached lists, empty ones
// included, are returned without a fetch. A failed fetch returns an empty
// list with a *curriculum.FetchError and caches nothing.
func (s *Store) Get(ctx context.Context, pathID string, subtopicID int) ([]curriculum.Resource, error) {
	if res, ok, _ := s.cache.Get(ctx, pathID, subtopicID); ok {
		return res, nil
	}

	res, err := s.remote.FetchResources(ctx, pathID, subtopicID)
	if err != nil {
		slog.Warn("resource fetch failed",
			"path_id", pathID,
			"subtopic_id", subtopicID,
			"error", err,
		)
		return []curriculum.Resource{}, &curriculum.FetchError{PathID: pathID, SubtopicID: subtopicID, Err: err}
	}
	if res == nil {
		res = []curriculum.Resource{}
	}
	_ = s.cache.Set(ctx, pathID, subtopicID, res)
	return cloneResources(res), nil
}

// EnsureContent returns a detailed explanation for a subtopic without
// resources. Results are memoized per subtopic and never enter the resource
// cache.
func (s *Store) EnsureContent(ctx context.Context, pathID string, subtopicID int, topic, name, basic string) (string, error) {
	key := cacheKey{pathID, subtopicID}
	s.mu.Lock()
	text, ok := s.memo[key]
	s.mu.Unlock()
	if ok {
		return text, nil
	}

	text, err := s.synth.Synthesize(ctx, SynthesisRequest{
		PathID:           pathID,
		Topic:            topic,
		Subtopic:         name,
		BasicExplanation: basic,
	})
	if err != nil {
		activity.Record(ctx, s.events, activity.Event{
			PathID:    pathID,
			EventType: activity.SynthesisFailed,
			Data:      map[string]any{"subtopic_id": subtopicID, "error": err.Error()},
		})
		return "", &curriculum.SynthesisError{Subtopic: name, Err: err}
	}

	s.mu.Lock()
	s.memo[key] = text
	s.mu.Unlock()

	activity.Record(ctx, s.events, activity.Event{
		PathID:    pathID,
		EventType: activity.ExplanationSynthesized,
		Data:      map[string]any{"subtopic_id": subtopicID, "synthesizer": fmt.Sprintf("%T", s.synth)},
	})
	return text, nil
}

// Add validates and submits a draft, uploading image data first, then
// replaces the cached list with a fresh fetch. When that fetch fails the
// entry is dropped so the next Get retries.
func (s *Store) Add(ctx context.Context, pathID string, subtopicID int, d Draft) ([]curriculum.Resource, error) {
	if err := s.validator.Validate(d); err != nil {
		return nil, err
	}

	res := d.resource()
	if len(d.Data) > 0 {
		url, err := s.remote.UploadFile(ctx, d.Filename, d.Data)
		if err != nil {
			return nil, fmt.Errorf("upload %q: %w", d.Filename, err)
		}
		res.Content = url
	}

	saved, err := s.remote.SubmitResource(ctx, pathID, subtopicID, res)
	if err != nil {
		return nil, fmt.Errorf("submit resource: %w", err)
	}
	activity.Record(ctx, s.events, activity.Event{
		PathID:    pathID,
		EventType: activity.ResourceAdded,
		Data:      map[string]any{"subtopic_id": subtopicID, "resource_id": saved.ID, "type": string(saved.Kind)},
	})

	fresh, err := s.remote.FetchResources(ctx, pathID, subtopicID)
	if err != nil {
		_ = s.cache.Delete(ctx, pathID, subtopicID)
		slog.Warn("resource refetch after submit failed",
			"path_id", pathID,
			"subtopic_id", subtopicID,
			"error", err,
		)
		return nil, &curriculum.FetchError{PathID: pathID, SubtopicID: subtopicID, Err: err}
	}
	if fresh == nil {
		fresh = []curriculum.Resource{}
	}
	_ = s.cache.Set(ctx, pathID, subtopicID, fresh)
	return cloneResources(fresh), nil
}

// Reset drops the local cache and explanation memo. The shared tier is left
// alone since other sessions read it.
func (s *Store) Reset() {
	s.local.Clear()
	s.mu.Lock()
	clear(s.memo)
	s.mu.Unlock()
}
