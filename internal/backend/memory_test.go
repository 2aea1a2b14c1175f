package backend

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/p-n-ai/pai-pathways/internal/curriculum"
)

func testPath() curriculum.LearningPath {
	return curriculum.LearningPath{
		ID:    "go-basics",
		Topic: "Go Programming",
		Subtopics: []curriculum.Subtopic{
			{Name: "Variables", Explanation: "Named storage."},
			{Name: "Functions", Explanation: "Reusable code."},
		},
	}
}

func TestMemoryBackend_FetchPath(t *testing.T) {
	b := NewMemoryBackend(testPath())
	ctx := context.Background()

	p, err := b.FetchPath(ctx, "go-basics")
	if err != nil {
		t.Fatalf("FetchPath() error = %v", err)
	}
	if p.Topic != "Go Programming" || len(p.Subtopics) != 2 {
		t.Errorf("FetchPath() = %+v", p)
	}

	// Mutating the returned copy must not leak into the backend.
	p.Subtopics[0].Name = "changed"
	again, _ := b.FetchPath(ctx, "go-basics")
	if again.Subtopics[0].Name != "Variables" {
		t.Error("FetchPath() returned shared slice")
	}

	if _, err := b.FetchPath(ctx, "missing"); !errors.Is(err, curriculum.ErrPathNotFound) {
		t.Errorf("FetchPath(missing) error = %v, want ErrPathNotFound", err)
	}
}

func TestMemoryBackend_Resources(t *testing.T) {
	b := NewMemoryBackend(testPath())
	ctx := context.Background()

	got, err := b.FetchResources(ctx, "go-basics", 1)
	if err != nil {
		t.Fatalf("FetchResources() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("FetchResources() = %v, want empty non-nil slice", got)
	}

	first, err := b.SubmitResource(ctx, "go-basics", 1, curriculum.Resource{Kind: curriculum.KindCode, Content: "x := 1", Language: "go"})
	if err != nil {
		t.Fatalf("SubmitResource() error = %v", err)
	}
	second, err := b.SubmitResource(ctx, "go-basics", 1, curriculum.Resource{Kind: curriculum.KindReference, Content: "Tour of Go", URL: "https://go.dev/tour"})
	if err != nil {
		t.Fatalf("SubmitResource() error = %v", err)
	}
	if first.ID == 0 || second.ID <= first.ID {
		t.Errorf("IDs = %d, %d; want increasing", first.ID, second.ID)
	}

	got, _ = b.FetchResources(ctx, "go-basics", 1)
	if len(got) != 2 || got[0].Kind != curriculum.KindCode || got[1].Kind != curriculum.KindReference {
		t.Errorf("FetchResources() = %+v, want insertion order", got)
	}
}

func TestMemoryBackend_SubmitResource_Invalid(t *testing.T) {
	b := NewMemoryBackend(testPath())
	ctx := context.Background()

	tests := []struct {
		name       string
		subtopicID int
		res        curriculum.Resource
		want       error
	}{
		{"unknown kind", 1, curriculum.Resource{Kind: "podcast", Content: "x"}, curriculum.ErrInvalidResource},
		{"empty", 1, curriculum.Resource{Kind: curriculum.KindCode}, curriculum.ErrInvalidResource},
		{"bad subtopic", 9, curriculum.Resource{Kind: curriculum.KindCode, Content: "x"}, curriculum.ErrSubtopicNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.SubmitResource(ctx, "go-basics", tt.subtopicID, tt.res)
			if !errors.Is(err, tt.want) {
				t.Errorf("SubmitResource() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestMemoryBackend_PersistProgress(t *testing.T) {
	b := NewMemoryBackend(testPath())
	ctx := context.Background()

	update := curriculum.ProgressUpdate{Progress: 50, CompletedSubtopics: []string{"Variables"}}
	for range 2 {
		if err := b.PersistProgress(ctx, "go-basics", update); err != nil {
			t.Fatalf("PersistProgress() error = %v", err)
		}
	}

	p, _ := b.FetchPath(ctx, "go-basics")
	if p.Progress != 50 || len(p.CompletedSubtopics) != 1 {
		t.Errorf("after persist: progress=%v completed=%v", p.Progress, p.CompletedSubtopics)
	}

	if err := b.PersistProgress(ctx, "missing", update); !errors.Is(err, curriculum.ErrPathNotFound) {
		t.Errorf("PersistProgress(missing) error = %v", err)
	}
}

func TestMemoryBackend_Upload(t *testing.T) {
	b := NewMemoryBackend()
	ctx := context.Background()

	url1, err := b.UploadFile(ctx, "diagram.PNG", []byte("png-bytes"))
	if err != nil {
		t.Fatalf("UploadFile() error = %v", err)
	}
	url2, _ := b.UploadFile(ctx, "copy.png", []byte("png-bytes"))
	if url1 != url2 {
		t.Errorf("identical content should share a URL: %q vs %q", url1, url2)
	}
	if !strings.HasPrefix(url1, UploadPrefix) || !strings.HasSuffix(url1, ".png") {
		t.Errorf("UploadFile() = %q", url1)
	}

	data, err := b.ReadUpload(ctx, strings.TrimPrefix(url1, UploadPrefix))
	if err != nil || string(data) != "png-bytes" {
		t.Errorf("ReadUpload() = %q, %v", data, err)
	}
	if _, err := b.ReadUpload(ctx, "nope"); !errors.Is(err, ErrUploadNotFound) {
		t.Errorf("ReadUpload(nope) error = %v", err)
	}
	if _, err := b.UploadFile(ctx, "empty.png", nil); err == nil {
		t.Error("UploadFile() should reject empty content")
	}
}
