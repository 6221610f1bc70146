// Package search provides entity candidates for "@query" completion.
package search

import (
	"context"
	"fmt"

	"mentions/internal/document"
)

// Candidate is a single search hit. Only the fields its category uses are
// copied into a token on selection; the candidate itself is never stored.
type Candidate struct {
	Category    document.Category `json:"category"`
	ID          int               `json:"id"`
	Name        string            `json:"name"`
	Icon        string            `json:"icon,omitempty"`
	SecondaryID int               `json:"secondaryId,omitempty"`
	Kind        string            `json:"kind,omitempty"`
	Class       string            `json:"class,omitempty"`
}

// Token snapshots the candidate into a validated mention token.
func (c Candidate) Token() (document.Token, error) {
	switch c.Category {
	case document.CategoryCreature:
		return document.NewCreature(c.ID, c.Name, c.Icon, c.SecondaryID)
	case document.CategoryMove:
		return document.NewMove(c.ID, c.Name, c.Kind, c.Class)
	case document.CategoryItem:
		return document.NewItem(c.ID, c.Name, c.Icon)
	case document.CategoryAbility:
		return document.NewAbility(c.ID, c.Name)
	}
	return nil, fmt.Errorf("%w: category %d", document.ErrInvalidToken, int(c.Category))
}

// Results holds candidates partitioned by category.
type Results struct {
	Creatures []Candidate `json:"creatures"`
	Moves     []Candidate `json:"moves"`
	Items     []Candidate `json:"items"`
	Abilities []Candidate `json:"abilities"`
}

// Of returns the candidates of one category.
func (r Results) Of(c document.Category) []Candidate {
	switch c {
	case document.CategoryCreature:
		return r.Creatures
	case document.CategoryMove:
		return r.Moves
	case document.CategoryItem:
		return r.Items
	case document.CategoryAbility:
		return r.Abilities
	}
	return nil
}

func (r *Results) set(c document.Category, candidates []Candidate) {
	switch c {
	case document.CategoryCreature:
		r.Creatures = candidates
	case document.CategoryMove:
		r.Moves = candidates
	case document.CategoryItem:
		r.Items = candidates
	case document.CategoryAbility:
		r.Abilities = candidates
	}
}

// Filter flattens the results of the given categories, in the order given.
// No categories means all of them.
func (r Results) Filter(categories ...document.Category) []Candidate {
	if len(categories) == 0 {
		categories = document.Categories
	}
	var out []Candidate
	for _, c := range categories {
		out = append(out, r.Of(c)...)
	}
	return out
}

// Len counts candidates across all categories.
func (r Results) Len() int {
	return len(r.Creatures) + len(r.Moves) + len(r.Items) + len(r.Abilities)
}

// Provider answers free-text queries with typed candidates.
type Provider interface {
	Search(ctx context.Context, query string) (Results, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, query string) (Results, error)

func (f ProviderFunc) Search(ctx context.Context, query string) (Results, error) {
	return f(ctx, query)
}
