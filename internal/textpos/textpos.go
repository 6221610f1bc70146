// Package textpos converts between LSP positions (line, UTF-16 column) and
// byte offsets, and applies content changes to a flat text.
package textpos

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
	lsp "github.com/tliron/glsp/protocol_3_16"
)

// Offset computes the byte offset of an LSP Position in document.
// Lines past the end clamp to the last line, columns past the end of a line
// clamp to its end.
func Offset(document string, pos lsp.Position) int {
	lines := strings.Split(document, "\n")
	// Clamp line number
	if int(pos.Line) >= len(lines) {
		pos.Line = uint32(len(lines) - 1)
	}
	offset := 0
	// Sum bytes for all lines before the target line (including newline)
	for i := uint32(0); i < pos.Line; i++ {
		offset += len(lines[i]) + 1
	}
	// Traverse runes in target line to match UTF-16 character count
	var charCount int
	for _, r := range lines[pos.Line] {
		// Each codepoint uses 1 or 2 UTF-16 code units
		unitCount := 1
		if r > 0xFFFF {
			unitCount = 2
		}
		if uint32(charCount+unitCount) > pos.Character {
			break
		}
		charCount += unitCount
		offset += utf8.RuneLen(r)
	}
	return offset
}

// Position converts a byte offset in document to an LSP Position.
func Position(document string, offset int) lsp.Position {
	if offset > len(document) {
		offset = len(document)
	}
	if offset < 0 {
		offset = 0
	}
	prefix := document[:offset]
	line := uint32(strings.Count(prefix, "\n"))
	if i := strings.LastIndexByte(prefix, '\n'); i >= 0 {
		prefix = prefix[i+1:]
	}
	// Count UTF-16 code units in prefix
	var charCount uint32
	for _, r := range prefix {
		if r > 0xFFFF {
			charCount += 2
		} else {
			charCount += 1
		}
	}
	return lsp.Position{Line: line, Character: charCount}
}

// Range converts the byte range [start, end) of document to an LSP Range.
func Range(document string, start, end int) lsp.Range {
	return lsp.Range{Start: Position(document, start), End: Position(document, end)}
}

// Apply applies one content change event to document and returns the new
// text together with the caret: the byte offset just after the inserted
// text. Whole-document replacements estimate the caret with a diff.
func Apply(document string, change any) (string, int, error) {
	switch c := change.(type) {
	case lsp.TextDocumentContentChangeEvent:
		if c.Range == nil {
			return c.Text, Caret(document, c.Text), nil
		}
		start := Offset(document, c.Range.Start)
		end := Offset(document, c.Range.End)
		if end < start {
			start, end = end, start
		}
		// Splice the string at byte-indices; Offset only stops on rune
		// boundaries.
		return document[:start] + c.Text + document[end:], start + len(c.Text), nil
	case lsp.TextDocumentContentChangeEventWhole:
		return c.Text, Caret(document, c.Text), nil
	default:
		return document, 0, fmt.Errorf("unexpected change event type %T", change)
	}
}

// Caret estimates where the caret sits after document was replaced by
// updated: the end of the last inserted run, or the point of the last
// deletion when nothing was inserted. An unchanged text puts the caret at
// its end.
func Caret(document, updated string) int {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(document, updated, false)

	caret, offset := -1, 0
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			offset += len(d.Text)
		case diffmatchpatch.DiffInsert:
			offset += len(d.Text)
			caret = offset
		case diffmatchpatch.DiffDelete:
			caret = offset
		}
	}
	if caret < 0 {
		return len(updated)
	}
	return caret
}
