package search

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// distanceLimit is the number of typos tolerated for a query of the given
// length in runes.
func distanceLimit(length int) int {
	switch {
	case length <= 2:
		return 0
	case length <= 4:
		return 1
	case length <= 8:
		return 2
	default:
		return 3
	}
}

// prefixDistance compares query with the start of name, so that a partially
// typed name still matches.
func prefixDistance(query, name string) int {
	q := strings.ToLower(query)
	n := []rune(strings.ToLower(name))
	if k := utf8.RuneCountInString(q); len(n) > k {
		n = n[:k]
	}
	return levenshtein.ComputeDistance(q, string(n))
}

type scored struct {
	candidate Candidate
	distance  int
}

// fuzzy returns up to max candidates whose names start with something
// within typo distance of query, closest first.
func fuzzy(query string, pool []Candidate, max int) []Candidate {
	limit := distanceLimit(utf8.RuneCountInString(query))
	var hits []scored
	for _, c := range pool {
		d := prefixDistance(query, c.Name)
		if d > limit {
			continue
		}
		hits = append(hits, scored{candidate: c, distance: d})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].distance != hits[j].distance {
			return hits[i].distance < hits[j].distance
		}
		return hits[i].candidate.Name < hits[j].candidate.Name
	})
	out := make([]Candidate, 0, max)
	for _, h := range hits {
		if len(out) == max {
			break
		}
		out = append(out, h.candidate)
	}
	return out
}
