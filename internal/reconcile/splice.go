package reconcile

import (
	"fmt"

	"mentions/internal/document"
)

// Splice replaces the flat byte range [start, end) of doc with insert.
//
// Text runs that straddle either boundary are split; a mention overlapping
// the range is removed as a whole since its anchor cannot be cut. The result
// is normalized.
func Splice(doc document.Document, start, end int, insert ...document.Segment) (document.Document, error) {
	total := len(document.Render(doc))
	if start < 0 || end < start || end > total {
		return nil, fmt.Errorf("splice range [%d,%d) outside text of length %d", start, end, total)
	}

	out := make(document.Document, 0, len(doc)+len(insert)+1)
	inserted := false
	place := func() {
		if !inserted {
			out = append(out, insert...)
			inserted = true
		}
	}

	offset := 0
	for _, s := range doc {
		flat := s.Flat()
		segStart, segEnd := offset, offset+len(flat)
		offset = segEnd

		switch v := s.(type) {
		case document.Text:
			if segEnd <= start {
				out = append(out, v)
				continue
			}
			if segStart >= end && segStart > start {
				place()
				out = append(out, v)
				continue
			}
			if segStart < start {
				out = append(out, document.Text{Content: flat[:start-segStart]})
			}
			if segEnd >= end && segStart <= end {
				place()
				if segEnd > end {
					out = append(out, document.Text{Content: flat[end-segStart:]})
				}
			}
		case document.Mention:
			switch {
			case segEnd <= start:
				out = append(out, v)
			case segStart >= end:
				place()
				out = append(out, v)
			default:
				// overlaps the replaced range
			}
		}
	}
	place()
	return document.Normalize(out), nil
}
