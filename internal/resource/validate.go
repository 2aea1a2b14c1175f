package resource

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/p-n-ai/pai-pathways/internal/curriculum"
)

//go:embed submission.schema.json
var submissionSchema string

// Draft is a resource as submitted by a learner. Data, when set, is image
// content to upload before the resource is stored.
type Draft struct {
	Kind     curriculum.ResourceKind `json:"type"`
	Title    string                  `json:"title,omitempty"`
	Content  string                  `json:"content,omitempty"`
	URL      string                  `json:"url,omitempty"`
	Language string                  `json:"language,omitempty"`
	Filename string                  `json:"-"`
	Data     []byte                  `json:"-"`
}

// Validator checks drafts against the submission schema.
type Validator struct {
	schema *gojsonschema.Schema
}

// NewValidator compiles the embedded submission schema.
func NewValidator() (*Validator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(submissionSchema))
	if err != nil {
		return nil, fmt.Errorf("compile submission schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// Validate returns an error wrapping curriculum.ErrInvalidResource that
// lists every violation.
func (v *Validator) Validate(d Draft) error {
	doc := map[string]any{
		"type":       string(d.Kind),
		"has_upload": len(d.Data) > 0,
	}
	for k, s := range map[string]string{"title": d.Title, "content": d.Content, "url": d.URL, "language": d.Language} {
		if s != "" {
			doc[k] = s
		}
	}

	result, err := v.schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("validate submission: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: %s", curriculum.ErrInvalidResource, strings.Join(msgs, "; "))
}

func (d Draft) resource() curriculum.Resource {
	return curriculum.Resource{
		Kind:     d.Kind,
		Title:    strings.TrimSpace(d.Title),
		Content:  d.Content,
		URL:      strings.TrimSpace(d.URL),
		Language: strings.TrimSpace(d.Language),
	}
}
