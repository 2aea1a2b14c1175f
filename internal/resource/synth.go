package resource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/p-n-ai/pai-pathways/internal/ai"
)

// SynthesisRequest carries what a synthesizer may use to expand a subtopic.
type SynthesisRequest struct {
	PathID           string
	Topic            string
	Subtopic         string
	BasicExplanation string
}

// Synthesizer produces a detailed explanation for a subtopic that has no
// resources.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (string, error)
}

// TemplateSynthesizer expands the basic explanation with fixed prose. It is
// deterministic and never blocks.
type TemplateSynthesizer struct{}

func (TemplateSynthesizer) Synthesize(_ context.Context, req SynthesisRequest) (string, error) {
	name, topic := req.Subtopic, req.Topic
	var b strings.Builder
	if basic := strings.TrimSpace(req.BasicExplanation); basic != "" {
		b.WriteString(basic)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Let's explore %s in more detail:\n\n", name)
	fmt.Fprintf(&b, "%s is a crucial concept within %s. Understanding this concept helps you build a solid foundation for mastering %s as a whole.\n\n", name, topic, topic)
	fmt.Fprintf(&b, "Key points to remember about %s:\n", name)
	fmt.Fprintf(&b, "- It forms an essential part of %s fundamentals\n", topic)
	b.WriteString("- Mastering this concept will help you understand more advanced topics\n")
	fmt.Fprintf(&b, "- Practice is important for truly understanding %s\n", name)
	fmt.Fprintf(&b, "- Real-world applications include various scenarios in %s implementation\n\n", topic)
	fmt.Fprintf(&b, "As you continue learning, you'll discover how %s connects with other concepts in %s.", name, topic)
	return b.String(), nil
}

const explanationPrompt = `You are an educational assistant. Provide a detailed explanation about %q as part of the broader topic %q.

The basic explanation is: %q

Expand on this with a comprehensive explanation that would help someone understand this concept in depth.
Include key points, examples, and practical applications where relevant.

Format your response as a well-structured educational text with:
- Clear headings using markdown (### for headings)
- Concise paragraphs
- Bullet points for lists where appropriate
- Bold text for key terms
- Examples where helpful

Keep your response under %d tokens and format it for readability like a textbook.`

var excessNewlines = regexp.MustCompile(`\n{3,}`)

// AISynthesizer asks a completion gateway for the explanation, charging the
// tokens to the path's budget.
type AISynthesizer struct {
	completer ai.Completer
	budget    ai.BudgetChecker
	model     string
	maxTokens int
}

// AIOption configures an AISynthesizer.
type AIOption func(*AISynthesizer)

// WithBudget enforces a per-path token budget.
func WithBudget(b ai.BudgetChecker) AIOption {
	return func(s *AISynthesizer) { s.budget = b }
}

// WithModel overrides the provider's default model.
func WithModel(model string) AIOption {
	return func(s *AISynthesizer) { s.model = model }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) AIOption {
	return func(s *AISynthesizer) { s.maxTokens = n }
}

// NewAISynthesizer creates a synthesizer that asks c for the explanation.
func NewAISynthesizer(c ai.Completer, opts ...AIOption) *AISynthesizer {
	s := &AISynthesizer{completer: c, maxTokens: 2500}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *AISynthesizer) Synthesize(ctx context.Context, req SynthesisRequest) (string, error) {
	if s.budget != nil {
		ok, err := s.budget.Check(ctx, req.PathID)
		if err != nil {
			return "", fmt.Errorf("check budget: %w", err)
		}
		if !ok {
			return "", ai.ErrBudgetExceeded
		}
	}

	resp, err := s.completer.Complete(ctx, ai.CompletionRequest{
		Messages: []ai.Message{{
			Role:    "user",
			Content: fmt.Sprintf(explanationPrompt, req.Subtopic, req.Topic, req.BasicExplanation, s.maxTokens),
		}},
		Model:       s.model,
		MaxTokens:   s.maxTokens,
		Temperature: 0.7,
		Task:        ai.TaskExplanation,
	})
	if err != nil {
		return "", err
	}

	if s.budget != nil {
		if err := s.budget.Record(ctx, req.PathID, resp.TotalTokens()); err != nil {
			slog.Warn("failed to record AI token usage",
				"path_id", req.PathID,
				"tokens", resp.TotalTokens(),
				"error", err,
			)
		}
	}

	text := strings.TrimSpace(excessNewlines.ReplaceAllString(resp.Content, "\n\n"))
	if text == "" {
		return "", errors.New("empty completion")
	}
	return text, nil
}
