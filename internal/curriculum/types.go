package curriculum

import (
	"encoding/json"
	"net/url"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// LearningPath is one generated curriculum: a topic at a level, broken into
// ordered subtopics, plus the learner's persisted completion state.
type LearningPath struct {
	ID                 string     `json:"id" yaml:"id"`
	Topic              string     `json:"topic" yaml:"topic"`
	Level              string     `json:"level" yaml:"level"`
	Overview           string     `json:"overview" yaml:"overview"`
	Roadmap            string     `json:"roadmap,omitempty" yaml:"roadmap"`
	Subtopics          []Subtopic `json:"subtopics" yaml:"subtopics"`
	EstimatedHours     float64    `json:"estimated_hours" yaml:"estimated_hours"`
	Progress           float64    `json:"progress" yaml:"progress"`
	CompletedSubtopics []string   `json:"completed_subtopics" yaml:"completed_subtopics"`
}

// Subtopic is one learning unit within a path. Its Name is the completion key.
type Subtopic struct {
	Name        string `json:"name" yaml:"name"`
	Explanation string `json:"explanation" yaml:"explanation"`
}

// SubtopicID converts a zero-based position into the external 1-based id.
// Ids are positional, so reordering subtopics server-side changes them.
func SubtopicID(index int) int {
	return index + 1
}

// Subtopic returns the subtopic addressed by a 1-based id.
func (p LearningPath) Subtopic(id int) (Subtopic, bool) {
	if id < 1 || id > len(p.Subtopics) {
		return Subtopic{}, false
	}
	return p.Subtopics[id-1], true
}

// HasSubtopic reports whether name (after normalisation) belongs to the path.
func (p LearningPath) HasSubtopic(name string) bool {
	key := NormalizeName(name)
	for _, s := range p.Subtopics {
		if NormalizeName(s.Name) == key {
			return true
		}
	}
	return false
}

// ProgressRatio returns 100*completed/total, or 0 when total is 0.
func ProgressRatio(completed, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(completed) / float64(total) * 100
}

// NormalizeName returns the canonical form of a subtopic name used as a
// completion key. Names typed on different platforms may differ only in
// Unicode composition, so keys are compared in NFC.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// ResourceKind enumerates the auxiliary material types.
type ResourceKind string

const (
	KindImage     ResourceKind = "image"
	KindCode      ResourceKind = "code"
	KindReference ResourceKind = "reference"
	KindVideo     ResourceKind = "video"
)

// Valid reports whether k is one of the known kinds.
func (k ResourceKind) Valid() bool {
	switch k {
	case KindImage, KindCode, KindReference, KindVideo:
		return true
	}
	return false
}

// Resource is auxiliary material attached to one (path, subtopic) pair.
type Resource struct {
	ID       int64        `json:"id,omitempty"`
	Kind     ResourceKind `json:"type"`
	Title    string       `json:"title,omitempty"`
	Content  string       `json:"content"`
	URL      string       `json:"url,omitempty"`
	Language string       `json:"language,omitempty"`
}

// EmbedURL returns an embeddable player URL for YouTube videos, or "" when
// the resource is not an embeddable video.
func (r Resource) EmbedURL() string {
	if r.Kind != KindVideo || r.URL == "" {
		return ""
	}
	u, err := url.Parse(r.URL)
	if err != nil || !strings.Contains(u.Host, "youtube.com") {
		return ""
	}
	v := u.Query().Get("v")
	if v == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host + "/embed/" + v
}

// MarshalJSON adds the derived embed_url so clients never rewrite URLs.
func (r Resource) MarshalJSON() ([]byte, error) {
	type plain Resource
	return json.Marshal(struct {
		plain
		EmbedURL string `json:"embed_url,omitempty"`
	}{plain(r), r.EmbedURL()})
}

// ProgressUpdate is the payload persisted after a completion toggle.
type ProgressUpdate struct {
	Progress           float64  `json:"progress"`
	CompletedSubtopics []string `json:"completed_subtopics"`
}
