// Package session scopes the engine state of one opened learning path:
// its snapshot, progress tracker, resource store and panel. Everything a
// session holds is released when it closes.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-pathways/internal/activity"
	"github.com/p-n-ai/pai-pathways/internal/backend"
	"github.com/p-n-ai/pai-pathways/internal/curriculum"
	"github.com/p-n-ai/pai-pathways/internal/panel"
	"github.com/p-n-ai/pai-pathways/internal/progress"
	"github.com/p-n-ai/pai-pathways/internal/resource"
)

// ErrSessionNotFound is returned for unknown or closed session ids.
var ErrSessionNotFound = errors.New("session not found")

// Update types pushed to subscribers.
const (
	UpdatePanel    = "panel"
	UpdateProgress = "progress"
)

// Update is one change pushed to subscribers.
type Update struct {
	Type     string           `json:"type"`
	Panel    *panel.ViewModel `json:"panel,omitempty"`
	Progress *progress.State  `json:"progress,omitempty"`
}

const subscriberBuffer = 16

// Session is one opened learning path.
type Session struct {
	ID        string
	Path      curriculum.LearningPath
	Tracker   *progress.Tracker
	Store     *resource.Store
	Panel     *panel.Controller
	CreatedAt time.Time

	mu      sync.Mutex
	subs    map[int]chan Update
	nextSub int
	closed  bool
}

// Subscribe returns a channel of updates and a function that ends the
// subscription. The channel is closed when either is called or the
// session closes. Slow subscribers miss updates rather than block.
func (s *Session) Subscribe() (<-chan Update, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Update, subscriberBuffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

func (s *Session) publish(u Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- u:
		default:
			slog.Debug("dropping update for slow subscriber", "session_id", s.ID, "type", u.Type)
		}
	}
}

func (s *Session) teardown() {
	s.Panel.Close()
	s.Store.Reset()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

// Option configures a Manager.
type Option func(*Manager)

// WithStoreOptions applies opts to every session's resource store.
func WithStoreOptions(opts ...resource.Option) Option {
	return func(m *Manager) {
		m.storeOpts = append(m.storeOpts, opts...)
	}
}

// WithEventLogger records activity from every session.
func WithEventLogger(l activity.Logger) Option {
	return func(m *Manager) {
		m.events = l
	}
}

// Manager opens, finds and closes sessions.
type Manager struct {
	backend   backend.Backend
	storeOpts []resource.Option
	events    activity.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a manager whose sessions read and write through b.
func NewManager(b backend.Backend, opts ...Option) *Manager {
	m := &Manager{
		backend:  b,
		events:   activity.NopLogger{},
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open fetches a path and builds its session. An unknown path yields an
// error wrapping curriculum.ErrPathNotFound; any other read failure is a
// *curriculum.FetchError.
func (m *Manager) Open(ctx context.Context, pathID string) (*Session, error) {
	path, err := m.backend.FetchPath(ctx, pathID)
	if err != nil {
		if errors.Is(err, curriculum.ErrPathNotFound) {
			return nil, err
		}
		return nil, &curriculum.FetchError{PathID: pathID, Err: err}
	}

	s := &Session{
		ID:        uuid.NewString(),
		Path:      path,
		CreatedAt: time.Now(),
		subs:      make(map[int]chan Update),
	}

	storeOpts := append([]resource.Option{resource.WithEventLogger(m.events)}, m.storeOpts...)
	store, err := resource.NewStore(m.backend, storeOpts...)
	if err != nil {
		return nil, fmt.Errorf("create resource store: %w", err)
	}
	s.Store = store
	s.Tracker = progress.NewTracker(path, m.backend,
		progress.WithEventLogger(m.events),
		progress.WithObserver(func(st progress.State) {
			s.publish(Update{Type: UpdateProgress, Progress: &st})
		}),
	)
	s.Panel = panel.NewController(path, store,
		panel.WithObserver(func(vm panel.ViewModel) {
			s.publish(Update{Type: UpdatePanel, Panel: &vm})
		}),
	)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	slog.Info("session opened", "session_id", s.ID, "path_id", pathID, "subtopics", len(path.Subtopics))
	return s, nil
}

// Get returns an open session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Close tears a session down: the panel returns to idle, the scoped cache
// and explanation memo are dropped and subscribers are released.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	s.teardown()
	slog.Info("session closed", "session_id", id, "path_id", s.Path.ID)
	return nil
}

// CloseAll tears down every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.teardown()
	}
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
