// Package compose implements the "@query" insertion protocol: trigger
// detection, the Idle/Composing state machine, debounced entity search and
// committing a selected candidate as a mention.
package compose

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"mentions/internal/document"
)

// DefaultQueryLimit is the longest query, in runes, that keeps composing.
const DefaultQueryLimit = 50

// Trigger is an in-progress "@query" gesture. Offset is the byte offset of
// the "@", Caret the byte offset the query ends at.
type Trigger struct {
	Offset int
	Caret  int
	Query  string
}

// Detect looks backward from caret for an "@" at the start of the text or
// after whitespace. The text between it and the caret is the query; it must
// hold no whitespace and at most limit runes. An "@" that starts the anchor
// of an existing mention never triggers.
func Detect(flat string, caret int, spans []document.Span, limit int) (Trigger, bool) {
	if caret < 0 || caret > len(flat) {
		return Trigger{}, false
	}
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	before := flat[:caret]
	at := strings.LastIndexByte(before, '@')
	if at < 0 {
		return Trigger{}, false
	}
	if at > 0 {
		r, _ := utf8.DecodeLastRuneInString(before[:at])
		if !unicode.IsSpace(r) {
			return Trigger{}, false
		}
	}
	query := before[at+1:]
	if strings.IndexFunc(query, unicode.IsSpace) >= 0 {
		return Trigger{}, false
	}
	if utf8.RuneCountInString(query) > limit {
		return Trigger{}, false
	}
	for _, s := range spans {
		if at >= s.Start && at < s.End {
			return Trigger{}, false
		}
	}
	return Trigger{Offset: at, Caret: caret, Query: query}, true
}
