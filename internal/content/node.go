// Package content turns semi-structured explanation text into typed render
// nodes. Output is data, never markup: the presentation layer renders each
// variant itself.
package content

import "encoding/json"

// NodeType names a render node variant.
type NodeType string

const (
	TypeHeading   NodeType = "heading"
	TypeList      NodeType = "list"
	TypeCode      NodeType = "code"
	TypeParagraph NodeType = "paragraph"
)

// Node is one rendered block: Heading, List, CodeBlock or Paragraph.
type Node interface {
	Type() NodeType
}

// Heading is a "#"-prefixed block.
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// List is a block of "-" or "N." lines.
type List struct {
	Ordered bool     `json:"ordered"`
	Items   []string `json:"items"`
}

// CodeBlock is the inside of a fenced code section.
type CodeBlock struct {
	Language string `json:"language"`
	Body     string `json:"body"`
}

// Paragraph is prose split into inline segments.
type Paragraph struct {
	Segments []Segment `json:"segments"`
}

func (Heading) Type() NodeType   { return TypeHeading }
func (List) Type() NodeType      { return TypeList }
func (CodeBlock) Type() NodeType { return TypeCode }
func (Paragraph) Type() NodeType { return TypeParagraph }

// SegmentType names an inline segment variant.
type SegmentType string

const (
	SegmentText   SegmentType = "text"
	SegmentBold   SegmentType = "bold"
	SegmentItalic SegmentType = "italic"
	SegmentRule   SegmentType = "rule"
)

// Segment is a run of inline content. Rule segments carry no text.
type Segment struct {
	Type SegmentType `json:"type"`
	Text string      `json:"text,omitempty"`
}

func (h Heading) MarshalJSON() ([]byte, error) {
	type alias Heading
	return json.Marshal(struct {
		Type NodeType `json:"type"`
		alias
	}{TypeHeading, alias(h)})
}

func (l List) MarshalJSON() ([]byte, error) {
	type alias List
	return json.Marshal(struct {
		Type NodeType `json:"type"`
		alias
	}{TypeList, alias(l)})
}

func (c CodeBlock) MarshalJSON() ([]byte, error) {
	type alias CodeBlock
	return json.Marshal(struct {
		Type NodeType `json:"type"`
		alias
	}{TypeCode, alias(c)})
}

func (p Paragraph) MarshalJSON() ([]byte, error) {
	type alias Paragraph
	return json.Marshal(struct {
		Type NodeType `json:"type"`
		alias
	}{TypeParagraph, alias(p)})
}
