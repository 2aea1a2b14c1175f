// Package progress tracks which subtopics of a learning path are complete,
// applying toggles optimistically and rolling them back when the write is
// rejected.
package progress

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/p-n-ai/pai-pathways/internal/activity"
	"github.com/p-n-ai/pai-pathways/internal/curriculum"
)

// Persister writes progress to the backend.
type Persister interface {
	PersistProgress(ctx context.Context, pathID string, update curriculum.ProgressUpdate) error
}

// State is the completion state exposed to the presentation layer.
type State struct {
	Completed []string `json:"completed_subtopics"`
	Progress  float64  `json:"progress"`
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithEventLogger records toggles and rollbacks.
func WithEventLogger(l activity.Logger) Option {
	return func(t *Tracker) {
		t.events = l
	}
}

// WithObserver registers a callback invoked on every state change. It runs
// while the tracker lock is held and must not call back into the tracker.
func WithObserver(fn func(State)) Option {
	return func(t *Tracker) {
		t.observer = fn
	}
}

// Tracker owns the completed set of one open path.
type Tracker struct {
	pathID    string
	names     map[string]bool
	total     int
	persister Persister
	events    activity.Logger
	observer  func(State)

	mu           sync.Mutex
	completed    []string
	version      uint64
	acked        State
	ackedVersion uint64
	pending      int
}

// NewTracker seeds a tracker from the persisted state of path.
func NewTracker(path curriculum.LearningPath, persister Persister, opts ...Option) *Tracker {
	t := &Tracker{
		pathID:    path.ID,
		names:     make(map[string]bool, len(path.Subtopics)),
		total:     len(path.Subtopics),
		persister: persister,
		events:    activity.NopLogger{},
	}
	for _, s := range path.Subtopics {
		t.names[curriculum.NormalizeName(s.Name)] = true
	}
	for _, name := range path.CompletedSubtopics {
		key := curriculum.NormalizeName(name)
		if t.names[key] && !slices.Contains(t.completed, key) {
			t.completed = append(t.completed, key)
		}
	}
	for _, opt := range opts {
		opt(t)
	}
	t.acked = t.stateLocked()
	return t
}

// State returns the current, possibly unacknowledged, state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stateLocked()
}

// Acknowledged returns the state of the newest toggle the backend accepted.
func (t *Tracker) Acknowledged() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return State{Completed: append([]string{}, t.acked.Completed...), Progress: t.acked.Progress}
}

// Toggle flips the completion of name, applies the new state immediately and
// persists it. If persistence fails the toggle is rolled back and a
// *curriculum.PersistError is returned together with the rolled-back state.
//
// Toggles may overlap. A failure undoes only its own flip: when no other
// toggle landed in between, the pre-toggle snapshot is restored exactly.
// Every write carries the full completed set, so once the last overlapping
// write settles the tracker re-persists its state if the backend holds a
// different one.
func (t *Tracker) Toggle(ctx context.Context, name string) (State, error) {
	key := curriculum.NormalizeName(name)
	if !t.names[key] {
		return t.State(), fmt.Errorf("%w: %q", curriculum.ErrSubtopicNotFound, name)
	}

	t.mu.Lock()
	before := slices.Clone(t.completed)
	wasCompleted := slices.Contains(before, key)
	t.completed = flip(t.completed, key, !wasCompleted)
	t.version++
	t.pending++
	version := t.version
	applied := t.stateLocked()
	t.notifyLocked(applied)
	t.mu.Unlock()

	err := t.persist(ctx, applied)
	if err == nil {
		t.mu.Lock()
		t.pending--
		t.ackLocked(applied, version)
		pendingFix, fixVersion, fix := t.settleLocked()
		t.mu.Unlock()

		activity.Record(ctx, t.events, activity.Event{
			PathID:    t.pathID,
			EventType: activity.SubtopicToggled,
			Data: map[string]any{
				"subtopic":  key,
				"completed": !wasCompleted,
				"progress":  applied.Progress,
			},
		})
		if fix {
			return t.reconcile(ctx, pendingFix, fixVersion), nil
		}
		return applied, nil
	}

	t.mu.Lock()
	t.pending--
	if t.version == version {
		t.completed = before
	} else if slices.Contains(t.completed, key) != wasCompleted {
		t.completed = flip(t.completed, key, wasCompleted)
	}
	t.version++
	rolledBack := t.stateLocked()
	t.notifyLocked(rolledBack)
	pendingFix, fixVersion, fix := t.settleLocked()
	t.mu.Unlock()

	slog.Warn("progress update rejected, rolled back",
		"path_id", t.pathID,
		"subtopic", key,
		"error", err,
	)
	activity.Record(ctx, t.events, activity.Event{
		PathID:    t.pathID,
		EventType: activity.ProgressRolledBack,
		Data: map[string]any{
			"subtopic": key,
			"error":    err.Error(),
		},
	})
	if fix {
		rolledBack = t.reconcile(ctx, pendingFix, fixVersion)
	}
	return rolledBack, &curriculum.PersistError{PathID: t.pathID, Err: err}
}

func (t *Tracker) persist(ctx context.Context, st State) error {
	return t.persister.PersistProgress(ctx, t.pathID, curriculum.ProgressUpdate{
		Progress:           st.Progress,
		CompletedSubtopics: st.Completed,
	})
}

func (t *Tracker) ackLocked(st State, version uint64) {
	if version > t.ackedVersion {
		t.acked = st
		t.ackedVersion = version
	}
}

// settleLocked reports the state to re-persist when no write is in flight
// and the acknowledged set differs from the local one. A newer toggle may
// have stored the flip of an older one that later failed.
func (t *Tracker) settleLocked() (State, uint64, bool) {
	if t.pending > 0 || sameSet(t.acked.Completed, t.completed) {
		return State{}, 0, false
	}
	t.version++
	t.pending++
	return t.stateLocked(), t.version, true
}

// reconcile writes st. If that fails too and nothing newer happened, the
// local state falls back to what the backend last acknowledged.
func (t *Tracker) reconcile(ctx context.Context, st State, version uint64) State {
	err := t.persist(ctx, st)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending--
	if err == nil {
		t.ackLocked(st, version)
		return t.stateLocked()
	}

	slog.Warn("progress reconcile failed, showing saved state",
		"path_id", t.pathID,
		"error", err,
	)
	if t.version == version {
		t.completed = slices.Clone(t.acked.Completed)
		t.version++
		t.notifyLocked(t.stateLocked())
	}
	return t.stateLocked()
}

func (t *Tracker) stateLocked() State {
	return State{
		Completed: append([]string{}, t.completed...),
		Progress:  curriculum.ProgressRatio(len(t.completed), t.total),
	}
}

func (t *Tracker) notifyLocked(s State) {
	if t.observer != nil {
		t.observer(s)
	}
}

// flip returns completed with key present (add=true) or absent.
func flip(completed []string, key string, add bool) []string {
	if add {
		if slices.Contains(completed, key) {
			return completed
		}
		return append(completed, key)
	}
	return slices.DeleteFunc(completed, func(s string) bool { return s == key })
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for _, s := range a {
		if !slices.Contains(b, s) {
			return false
		}
	}
	return true
}

// IsCompleted reports whether name is in the completed set.
func (s State) IsCompleted(name string) bool {
	return slices.Contains(s.Completed, curriculum.NormalizeName(name))
}
