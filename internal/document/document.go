// Package document holds the structured form of mention-bearing text: an
// ordered sequence of literal text runs and atomic entity mentions, its flat
// rendering, and its storage codec.
package document

import "strings"

// Segment is one run of a Document. It is either Text or Mention.
type Segment interface {
	// Flat returns the segment as it appears in the edit surface.
	Flat() string
	isSegment()
}

// Text is a literal run.
type Text struct {
	Content string
}

// Mention is an atomic reference. Its anchor is never split by an edit.
// A Mention without a Token renders as nothing and is ignored by Anchors
// and Mentions.
type Mention struct {
	Token Token
}

func (t Text) Flat() string { return t.Content }
func (Text) isSegment()     {}

func (m Mention) Flat() string { return Anchor(m.Token) }
func (Mention) isSegment()     {}

// Document is an ordered sequence of segments.
type Document []Segment

// Empty returns the Document of an edit surface with no content.
func Empty() Document {
	return Document{Text{}}
}

// Span locates the anchor of the mention at Index within the flat text.
// Start and End are byte offsets, End exclusive.
type Span struct {
	Index int
	Start int
	End   int
}

// Render concatenates the flat form of every segment.
func Render(doc Document) string {
	var b strings.Builder
	for _, s := range doc {
		b.WriteString(s.Flat())
	}
	return b.String()
}

// Anchors returns the span of every mention in doc, in order.
func Anchors(doc Document) []Span {
	var spans []Span
	offset := 0
	for i, s := range doc {
		n := len(s.Flat())
		if m, ok := s.(Mention); ok && m.Token != nil {
			spans = append(spans, Span{Index: i, Start: offset, End: offset + n})
		}
		offset += n
	}
	return spans
}

// Mentions returns the tokens of doc in document order.
func Mentions(doc Document) []Token {
	var tokens []Token
	for _, s := range doc {
		if m, ok := s.(Mention); ok && m.Token != nil {
			tokens = append(tokens, m.Token)
		}
	}
	return tokens
}

// MentionAt returns the mention whose anchor contains the byte offset.
func MentionAt(doc Document, offset int) (Mention, Span, bool) {
	for _, span := range Anchors(doc) {
		if offset >= span.Start && offset < span.End {
			return doc[span.Index].(Mention), span, true
		}
	}
	return Mention{}, Span{}, false
}

// Normalize merges adjacent text runs and drops empty ones. A Document that
// ends up with no segments becomes Empty().
func Normalize(doc Document) Document {
	out := make(Document, 0, len(doc))
	for _, s := range doc {
		t, ok := s.(Text)
		if !ok {
			out = append(out, s)
			continue
		}
		if t.Content == "" {
			continue
		}
		if n := len(out); n > 0 {
			if prev, ok := out[n-1].(Text); ok {
				out[n-1] = Text{Content: prev.Content + t.Content}
				continue
			}
		}
		out = append(out, t)
	}
	if len(out) == 0 {
		return Empty()
	}
	return out
}
