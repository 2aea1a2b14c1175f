// Package panel drives the subtopic inspection panel: which subtopic is
// open, whether its data has arrived, and what the learner sees.
package panel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/p-n-ai/pai-pathways/internal/content"
	"github.com/p-n-ai/pai-pathways/internal/curriculum"
	"github.com/p-n-ai/pai-pathways/internal/resource"
)

// State is the panel lifecycle state.
type State int

const (
	Idle State = iota
	Loading
	Loaded
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for st := Idle; st <= Error; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown panel state %q", text)
}

const (
	loadFailedMessage    = "Failed to load detailed content"
	synthesisUnavailable = "A detailed explanation is not available right now."
)

// ErrSuperseded is returned by Select when a newer selection or a close
// arrived before this one finished. Its result was discarded.
var ErrSuperseded = errors.New("selection superseded")

// ViewModel is everything the presentation layer may read about the panel.
// A new selection replaces it wholesale.
type ViewModel struct {
	State       State                 `json:"state"`
	SubtopicID  int                   `json:"subtopic_id,omitempty"`
	Title       string                `json:"title,omitempty"`
	Explanation string                `json:"explanation,omitempty"`
	Detailed    []content.Node        `json:"detailed,omitempty"`
	Resources   []curriculum.Resource `json:"resources"`
	Notice      string                `json:"notice,omitempty"`
	Error       string                `json:"error,omitempty"`
}

// Resources is the resource store as seen by the panel.
type Resources interface {
	Get(ctx context.Context, pathID string, subtopicID int) ([]curriculum.Resource, error)
	EnsureContent(ctx context.Context, pathID string, subtopicID int, topic, name, basic string) (string, error)
	Add(ctx context.Context, pathID string, subtopicID int, d resource.Draft) ([]curriculum.Resource, error)
}

// Option configures a Controller.
type Option func(*Controller)

// WithObserver registers fn to receive every view model the panel commits,
// in order. fn runs with the controller locked and must not call back
// into it.
func WithObserver(fn func(ViewModel)) Option {
	return func(c *Controller) { c.observer = fn }
}

// Controller is the panel state machine for one open learning path.
type Controller struct {
	path     curriculum.LearningPath
	store    Resources
	observer func(ViewModel)

	mu      sync.Mutex
	seq     uint64
	current ViewModel
}

// NewController creates an idle panel for path.
func NewController(path curriculum.LearningPath, store Resources, opts ...Option) *Controller {
	c := &Controller{
		path:    path,
		store:   store,
		current: ViewModel{State: Idle},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Current returns the committed view model.
func (c *Controller) Current() ViewModel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Select opens the subtopic at index. Loading is committed before any I/O.
// If another Select or Close lands first, the result is dropped and
// ErrSuperseded returned alongside the newer view model.
func (c *Controller) Select(ctx context.Context, index int) (ViewModel, error) {
	if index < 0 || index >= len(c.path.Subtopics) {
		return c.Current(), fmt.Errorf("%w: index %d", curriculum.ErrSubtopicNotFound, index)
	}
	sub := c.path.Subtopics[index]

	loading := ViewModel{
		State:       Loading,
		SubtopicID:  curriculum.SubtopicID(index),
		Title:       sub.Name,
		Explanation: sub.Explanation,
	}
	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.commitLocked(loading)
	c.mu.Unlock()

	return c.resolve(ctx, seq, loading)
}

// Close returns the panel to Idle and abandons any selection in flight.
func (c *Controller) Close() ViewModel {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.commitLocked(ViewModel{State: Idle})
	return c.current
}

// SubmitResource adds a resource to a subtopic. When that subtopic is the
// one open, its resources are looked up again and the panel reloaded.
func (c *Controller) SubmitResource(ctx context.Context, subtopicID int, d resource.Draft) ([]curriculum.Resource, error) {
	res, err := c.store.Add(ctx, c.path.ID, subtopicID, d)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	cur := c.current
	if cur.State == Idle || cur.SubtopicID != subtopicID {
		c.mu.Unlock()
		return res, nil
	}
	c.seq++
	seq := c.seq
	c.mu.Unlock()

	base := ViewModel{
		SubtopicID:  cur.SubtopicID,
		Title:       cur.Title,
		Explanation: cur.Explanation,
	}
	if _, err := c.resolve(ctx, seq, base); err != nil && !errors.Is(err, ErrSuperseded) {
		slog.Warn("panel reload after resource submit failed",
			"path_id", c.path.ID,
			"subtopic_id", subtopicID,
			"error", err,
		)
	}
	return res, nil
}

// resolve looks up resources for base's subtopic, falling back to a
// synthesized explanation, and commits the outcome if seq is still current.
func (c *Controller) resolve(ctx context.Context, seq uint64, base ViewModel) (ViewModel, error) {
	sub, _ := c.path.Subtopic(base.SubtopicID)

	res, fetchErr := c.store.Get(ctx, c.path.ID, base.SubtopicID)
	if c.stale(seq) {
		return c.discard(base)
	}

	vm := base
	vm.State = Loaded
	vm.Resources = res
	if len(res) > 0 {
		return c.commit(seq, vm)
	}
	vm.Resources = []curriculum.Resource{}

	text, synthErr := c.store.EnsureContent(ctx, c.path.ID, base.SubtopicID, c.path.Topic, sub.Name, sub.Explanation)
	switch {
	case synthErr == nil:
		vm.Detailed = content.Format(text)
	case fetchErr != nil:
		vm.State = Error
		vm.Error = loadFailedMessage
		slog.Warn("panel load failed",
			"path_id", c.path.ID,
			"subtopic_id", base.SubtopicID,
			"fetch_error", fetchErr,
			"synthesis_error", synthErr,
		)
	default:
		vm.Notice = synthesisUnavailable
	}
	return c.commit(seq, vm)
}

func (c *Controller) commit(seq uint64, vm ViewModel) (ViewModel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.seq || c.current.SubtopicID != vm.SubtopicID {
		slog.Debug("discarding stale panel result",
			"path_id", c.path.ID,
			"subtopic_id", vm.SubtopicID,
		)
		return c.current, ErrSuperseded
	}
	c.commitLocked(vm)
	return vm, nil
}

func (c *Controller) stale(seq uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return seq != c.seq
}

func (c *Controller) discard(base ViewModel) (ViewModel, error) {
	slog.Debug("discarding stale panel result",
		"path_id", c.path.ID,
		"subtopic_id", base.SubtopicID,
	)
	return c.Current(), ErrSuperseded
}

func (c *Controller) commitLocked(vm ViewModel) {
	c.current = vm
	if c.observer != nil {
		c.observer(vm)
	}
}
