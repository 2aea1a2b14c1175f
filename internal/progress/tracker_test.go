package progress_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/p-n-ai/pai-pathways/internal/activity"
	"github.com/p-n-ai/pai-pathways/internal/curriculum"
	"github.com/p-n-ai/pai-pathways/internal/progress"
)

// fakePersister records updates and can fail or block individual calls.
type fakePersister struct {
	mu      sync.Mutex
	err     error
	updates []curriculum.ProgressUpdate
	gates   map[int]chan error // call index -> result delivered later
	calls   int
	entered chan int
}

func (f *fakePersister) PersistProgress(_ context.Context, _ string, u curriculum.ProgressUpdate) error {
	f.mu.Lock()
	idx := f.calls
	f.calls++
	gate := f.gates[idx]
	err := f.err
	f.mu.Unlock()

	if f.entered != nil {
		f.entered <- idx
	}
	if gate != nil {
		err = <-gate
	}
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.updates = append(f.updates, u)
	f.mu.Unlock()
	return nil
}

func fourSubtopicPath() curriculum.LearningPath {
	return curriculum.LearningPath{
		ID:    "go-basics",
		Topic: "Go Programming",
		Subtopics: []curriculum.Subtopic{
			{Name: "Variables"}, {Name: "Functions"}, {Name: "Structs"}, {Name: "Interfaces"},
		},
	}
}

func TestTracker_ToggleScenario(t *testing.T) {
	p := &fakePersister{}
	tr := progress.NewTracker(fourSubtopicPath(), p)

	st, err := tr.Toggle(context.Background(), "Variables")
	if err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	if st.Progress != 25 {
		t.Errorf("Progress = %v, want 25", st.Progress)
	}
	if !slices.Equal(st.Completed, []string{"Variables"}) {
		t.Errorf("Completed = %v, want [Variables]", st.Completed)
	}

	st, err = tr.Toggle(context.Background(), "Variables")
	if err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	if st.Progress != 0 || len(st.Completed) != 0 {
		t.Errorf("after second toggle: %+v, want empty and 0", st)
	}

	if len(p.updates) != 2 || p.updates[0].Progress != 25 || p.updates[1].Progress != 0 {
		t.Errorf("persisted updates = %+v", p.updates)
	}
}

func TestTracker_ProgressInvariant(t *testing.T) {
	for n := 1; n <= 6; n++ {
		path := curriculum.LearningPath{ID: "p"}
		for i := range n {
			path.Subtopics = append(path.Subtopics, curriculum.Subtopic{Name: fmt.Sprintf("s%d", i)})
		}
		tr := progress.NewTracker(path, &fakePersister{})
		for i := range n {
			st, err := tr.Toggle(context.Background(), fmt.Sprintf("s%d", i))
			if err != nil {
				t.Fatalf("Toggle() error = %v", err)
			}
			want := 100 * float64(len(st.Completed)) / float64(n)
			if st.Progress != want {
				t.Errorf("n=%d |C|=%d: Progress = %v, want %v", n, len(st.Completed), st.Progress, want)
			}
		}
	}
}

func TestTracker_EmptyPath(t *testing.T) {
	tr := progress.NewTracker(curriculum.LearningPath{ID: "empty"}, &fakePersister{})
	if st := tr.State(); st.Progress != 0 || st.Completed == nil {
		t.Errorf("State() = %+v, want 0 and non-nil empty set", st)
	}
	if _, err := tr.Toggle(context.Background(), "anything"); !errors.Is(err, curriculum.ErrSubtopicNotFound) {
		t.Errorf("Toggle() error = %v, want ErrSubtopicNotFound", err)
	}
}

func TestTracker_SeedsFromPersistedState(t *testing.T) {
	path := fourSubtopicPath()
	path.CompletedSubtopics = []string{"Structs", "Structs", "Unknown"}
	tr := progress.NewTracker(path, &fakePersister{})

	st := tr.State()
	if !slices.Equal(st.Completed, []string{"Structs"}) || st.Progress != 25 {
		t.Errorf("State() = %+v", st)
	}
	if !st.IsCompleted(" Structs ") || st.IsCompleted("Variables") {
		t.Error("IsCompleted() mismatch")
	}
}

func TestTracker_RollbackLaw(t *testing.T) {
	path := fourSubtopicPath()
	path.CompletedSubtopics = []string{"Functions", "Structs"}
	events := activity.NewMemoryLogger()
	p := &fakePersister{err: errors.New("503 from backend")}
	tr := progress.NewTracker(path, p, progress.WithEventLogger(events))

	before := tr.State()
	for _, name := range []string{"Variables", "Functions"} {
		st, err := tr.Toggle(context.Background(), name)
		var perr *curriculum.PersistError
		if !errors.As(err, &perr) {
			t.Fatalf("Toggle(%s) error = %v, want *PersistError", name, err)
		}
		if !slices.Equal(st.Completed, before.Completed) || st.Progress != before.Progress {
			t.Errorf("Toggle(%s) returned %+v, want %+v", name, st, before)
		}
		if got := tr.State(); !slices.Equal(got.Completed, before.Completed) || got.Progress != before.Progress {
			t.Errorf("State() after failed toggle = %+v, want %+v", got, before)
		}
	}
	if got := len(events.OfType(activity.ProgressRolledBack)); got != 2 {
		t.Errorf("rollback events = %d, want 2", got)
	}
}

func TestTracker_FailedToggleKeepsNewerToggle(t *testing.T) {
	slow := make(chan error)
	p := &fakePersister{gates: map[int]chan error{0: slow}, entered: make(chan int, 4)}
	tr := progress.NewTracker(fourSubtopicPath(), p)

	done := make(chan error)
	go func() {
		_, err := tr.Toggle(context.Background(), "Variables")
		done <- err
	}()
	<-p.entered // Variables applied, write in flight

	if _, err := tr.Toggle(context.Background(), "Functions"); err != nil {
		t.Fatalf("Toggle(Functions) error = %v", err)
	}
	<-p.entered

	slow <- errors.New("timeout")
	if err := <-done; err == nil {
		t.Fatal("Toggle(Variables) should fail")
	}

	st := tr.State()
	if !slices.Equal(st.Completed, []string{"Functions"}) || st.Progress != 25 {
		t.Errorf("State() = %+v, want only Functions at 25", st)
	}
	if ack := tr.Acknowledged(); !slices.Contains(ack.Completed, "Functions") {
		t.Errorf("Acknowledged() = %+v, want Functions acknowledged", ack)
	}
}

func TestTracker_FailedToggleRepersistsWhenNewerWriteStoredIt(t *testing.T) {
	slow := make(chan error)
	p := &fakePersister{gates: map[int]chan error{0: slow}, entered: make(chan int, 4)}
	tr := progress.NewTracker(fourSubtopicPath(), p)

	done := make(chan progress.State)
	go func() {
		st, _ := tr.Toggle(context.Background(), "Variables")
		done <- st
	}()
	<-p.entered

	// This write carries Variables too.
	if _, err := tr.Toggle(context.Background(), "Functions"); err != nil {
		t.Fatalf("Toggle(Functions) error = %v", err)
	}
	<-p.entered

	slow <- errors.New("timeout")
	st := <-done

	want := progress.State{Completed: []string{"Functions"}, Progress: 25}
	if !slices.Equal(st.Completed, want.Completed) || st.Progress != want.Progress {
		t.Errorf("Toggle(Variables) returned %+v, want %+v", st, want)
	}
	if got := tr.State(); !slices.Equal(got.Completed, want.Completed) || got.Progress != want.Progress {
		t.Errorf("State() = %+v, want %+v", got, want)
	}

	p.mu.Lock()
	last := p.updates[len(p.updates)-1]
	p.mu.Unlock()
	if !slices.Equal(last.CompletedSubtopics, want.Completed) || last.Progress != want.Progress {
		t.Errorf("last persisted = %+v, want %+v", last, want)
	}
	if ack := tr.Acknowledged(); !slices.Equal(ack.Completed, want.Completed) {
		t.Errorf("Acknowledged() = %+v, want %+v", ack, want)
	}
}

func TestTracker_FailedRepersistShowsSavedState(t *testing.T) {
	slow := make(chan error)
	fixFails := make(chan error, 1)
	fixFails <- errors.New("still down")
	p := &fakePersister{gates: map[int]chan error{0: slow, 2: fixFails}, entered: make(chan int, 4)}
	tr := progress.NewTracker(fourSubtopicPath(), p)

	done := make(chan error)
	go func() {
		_, err := tr.Toggle(context.Background(), "Variables")
		done <- err
	}()
	<-p.entered

	if _, err := tr.Toggle(context.Background(), "Functions"); err != nil {
		t.Fatalf("Toggle(Functions) error = %v", err)
	}
	<-p.entered

	slow <- errors.New("timeout")
	if err := <-done; err == nil {
		t.Fatal("Toggle(Variables) should fail")
	}

	// The backend kept both flips, so the display follows it.
	st := tr.State()
	if len(st.Completed) != 2 || !st.IsCompleted("Variables") || st.Progress != 50 {
		t.Errorf("State() = %+v, want the saved set at 50", st)
	}
}

func TestTracker_LateAckDoesNotOverrideNewer(t *testing.T) {
	slow := make(chan error)
	p := &fakePersister{gates: map[int]chan error{0: slow}, entered: make(chan int, 4)}
	tr := progress.NewTracker(fourSubtopicPath(), p)

	done := make(chan error)
	go func() {
		_, err := tr.Toggle(context.Background(), "Variables")
		done <- err
	}()
	<-p.entered

	if _, err := tr.Toggle(context.Background(), "Structs"); err != nil {
		t.Fatalf("Toggle(Structs) error = %v", err)
	}
	<-p.entered
	slow <- nil
	if err := <-done; err != nil {
		t.Fatalf("Toggle(Variables) error = %v", err)
	}

	ack := tr.Acknowledged()
	if ack.Progress != 50 || len(ack.Completed) != 2 {
		t.Errorf("Acknowledged() = %+v, want both subtopics at 50", ack)
	}
}

func TestTracker_Observer(t *testing.T) {
	var seen []float64
	tr := progress.NewTracker(fourSubtopicPath(), &fakePersister{err: errors.New("down")},
		progress.WithObserver(func(s progress.State) { seen = append(seen, s.Progress) }))

	tr.Toggle(context.Background(), "Variables")

	if !slices.Equal(seen, []float64{25, 0}) {
		t.Errorf("observer saw %v, want [25 0] (optimistic then rollback)", seen)
	}
}
