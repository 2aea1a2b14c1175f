package content

import (
	"iter"
	"regexp"
	"slices"
	"strings"
)

const (
	fence       = "```"
	maxHeading  = 6
	ruleMarker  = "---"
	boldMarker  = "**"
	emphasisTag = '*'
)

var (
	// A list needs a line break followed by a marker at column zero.
	listLine      = regexp.MustCompile(`\n(?:-|\d+\.)`)
	orderedMarker = regexp.MustCompile(`^\d+\.`)
	itemMarker    = regexp.MustCompile(`^(?:-|\d+\.)\s*`)
)

// Format converts text into render nodes. It never fails: malformed input
// degrades to paragraph text, and empty input yields no nodes.
func Format(text string) []Node {
	return slices.Collect(Nodes(text))
}

// Nodes lazily yields the render nodes of text in order.
func Nodes(text string) iter.Seq[Node] {
	return func(yield func(Node) bool) {
		for block := range Blocks(text) {
			for _, n := range classify(block) {
				if !yield(n) {
					return
				}
			}
		}
	}
}

// Blocks yields the non-empty blank-line separated blocks of text. Blank
// lines inside a closed code fence do not end a block. A fence still open
// at the end of the input joins nothing: its lines split on blank lines
// like any other text.
func Blocks(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		text = strings.ReplaceAll(text, "\r\n", "\n")
		var lines []string
		inFence := false
		fenceStart := 0

		flush := func(lines []string) bool {
			block := strings.Trim(strings.Join(lines, "\n"), "\n")
			if strings.TrimSpace(block) == "" {
				return true
			}
			return yield(block)
		}

		for line := range strings.Lines(text) {
			line = strings.TrimSuffix(line, "\n")
			if strings.Count(line, fence)%2 == 1 {
				inFence = !inFence
				fenceStart = len(lines)
			}
			if !inFence && strings.TrimSpace(line) == "" {
				if !flush(lines) {
					return
				}
				lines = lines[:0]
				continue
			}
			lines = append(lines, line)
		}

		if !inFence {
			flush(lines)
			return
		}
		start := 0
		for i := fenceStart; i < len(lines); i++ {
			if strings.TrimSpace(lines[i]) != "" {
				continue
			}
			if !flush(lines[start:i]) {
				return
			}
			start = i + 1
		}
		flush(lines[start:])
	}
}

// classify applies the block rules in priority order: heading, list, fenced
// code, paragraph.
func classify(block string) []Node {
	switch {
	case strings.HasPrefix(block, "#"):
		return []Node{heading(block)}
	case listLine.MatchString(block):
		return []Node{list(block)}
	case strings.Contains(block, fence):
		return fenced(block)
	default:
		return []Node{Paragraph{Segments: Inline(block)}}
	}
}

func heading(block string) Heading {
	level := len(block) - len(strings.TrimLeft(block, "#"))
	text := strings.TrimLeft(block, "# \t")
	text = strings.ReplaceAll(text, boldMarker, "")
	text = strings.ReplaceAll(text, string(emphasisTag), "")
	return Heading{
		Level: min(level, maxHeading),
		Text:  strings.Join(strings.Fields(text), " "),
	}
}

func list(block string) List {
	var items []string
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		items = append(items, line)
	}
	l := List{Ordered: orderedMarker.MatchString(items[0])}
	for _, item := range items {
		l.Items = append(l.Items, itemMarker.ReplaceAllString(item, ""))
	}
	return l
}

// fenced splits a block on code fences. Even segments are prose, odd ones
// code whose first line is the language tag. A trailing unterminated fence
// stays prose.
func fenced(block string) []Node {
	parts := strings.Split(block, fence)
	unterminated := len(parts)%2 == 0

	var nodes []Node
	for i, part := range parts {
		switch {
		case i%2 == 0:
			if text := strings.Trim(part, "\n"); strings.TrimSpace(text) != "" {
				nodes = append(nodes, plain(text))
			}
		case unterminated && i == len(parts)-1:
			nodes = append(nodes, plain(fence+part))
		default:
			lang, body, _ := strings.Cut(part, "\n")
			nodes = append(nodes, CodeBlock{
				Language: strings.TrimSpace(lang),
				Body:     strings.TrimRight(body, "\n"),
			})
		}
	}
	return nodes
}

func plain(text string) Paragraph {
	return Paragraph{Segments: []Segment{{Type: SegmentText, Text: text}}}
}
