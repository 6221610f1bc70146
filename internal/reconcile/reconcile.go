// Package reconcile maps edits of the flat text back onto a structured
// document. Mentions whose anchors survive an edit are kept; everything else
// folds into text runs.
package reconcile

import (
	"strings"

	"mentions/internal/document"
)

// Result is the outcome of a reconciliation.
type Result struct {
	Document document.Document
	// Preserved holds, for every mention kept, its index among the
	// mentions of the previous document.
	Preserved []int
	// Dropped holds the tokens whose anchors no longer matched.
	Dropped []document.Token
}

// Reconcile rebuilds prev so that it renders exactly as flat.
//
// Mentions are matched left to right: each one searches flat for its anchor
// starting at the end of the previous match, and the first occurrence wins.
// A mention whose anchor is not found is dropped without moving the cursor.
// Reconcile never fails and never returns an empty document.
func Reconcile(prev document.Document, flat string) Result {
	var (
		res    Result
		out    document.Document
		cursor int
	)
	for i, token := range document.Mentions(prev) {
		anchor := document.Anchor(token)
		k := strings.Index(flat[cursor:], anchor)
		if k < 0 {
			res.Dropped = append(res.Dropped, token)
			continue
		}
		k += cursor
		if k > cursor {
			out = append(out, document.Text{Content: flat[cursor:k]})
		}
		out = append(out, document.Mention{Token: token})
		res.Preserved = append(res.Preserved, i)
		cursor = k + len(anchor)
	}
	if cursor < len(flat) {
		out = append(out, document.Text{Content: flat[cursor:]})
	}
	if len(out) == 0 {
		out = document.Empty()
	}
	res.Document = out
	return res
}

// Changed reports whether the reconciliation lost any mention.
func (r Result) Changed() bool {
	return len(r.Dropped) > 0
}
