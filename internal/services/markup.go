package services

import (
	"sort"
	"strings"
)

type markupTag struct {
	pos   int
	text  string
	close bool
	seq   int
}

// MarkupText collects tags to insert into a text without changing the text
// itself. Spans are byte offsets into the original text.
type MarkupText struct {
	text  string
	tags  []markupTag
	spans [][2]int
}

// NewMarkupText wraps text for annotation
func NewMarkupText(text string) *MarkupText {
	return &MarkupText{text: text}
}

// Text returns the unannotated text
func (m *MarkupText) Text() string {
	return m.text
}

// Covered reports whether [start, end) overlaps a span already wrapped
func (m *MarkupText) Covered(start, end int) bool {
	for _, s := range m.spans {
		if start < s[1] && s[0] < end {
			return true
		}
	}
	return false
}

// AddMarkup wraps [start, end) between open and close. It returns false and
// leaves the text unchanged when the span is out of range or overlaps a span
// wrapped earlier.
func (m *MarkupText) AddMarkup(start, end int, open, close string) bool {
	if start < 0 || end > len(m.text) || start >= end || m.Covered(start, end) {
		return false
	}
	seq := len(m.tags)
	m.tags = append(m.tags,
		markupTag{pos: start, text: open, seq: seq},
		markupTag{pos: end, text: close, close: true, seq: seq + 1},
	)
	m.spans = append(m.spans, [2]int{start, end})
	return true
}

// String renders the text with every tag inserted
func (m *MarkupText) String() string {
	if len(m.tags) == 0 {
		return m.text
	}

	tags := make([]markupTag, len(m.tags))
	copy(tags, m.tags)
	sort.SliceStable(tags, func(i, j int) bool {
		if tags[i].pos != tags[j].pos {
			return tags[i].pos < tags[j].pos
		}
		if tags[i].close != tags[j].close {
			return tags[i].close
		}
		return tags[i].seq < tags[j].seq
	})

	var b strings.Builder
	last := 0
	for _, t := range tags {
		b.WriteString(m.text[last:t.pos])
		b.WriteString(t.text)
		last = t.pos
	}
	b.WriteString(m.text[last:])
	return b.String()
}
