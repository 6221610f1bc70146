// Package render turns a Document into display nodes: plain text and
// mention chips that navigate to the referenced entity.
package render

import (
	"strconv"
	"strings"

	"mentions/internal/document"
)

// Node is a TextNode or a ChipNode.
type Node interface {
	isNode()
}

type TextNode struct {
	Text string
}

// ChipNode is a rendered mention.
type ChipNode struct {
	Category document.Category
	ID       int
	Name     string
	Icon     string
	Href     string
	// Kind and Class are set for moves only.
	Kind  string
	Class string
}

func (TextNode) isNode() {}
func (ChipNode) isNode() {}

// Routes are the navigation templates. "{id}" is replaced by the entity's
// route identifier and "{category}" by its category name.
type Routes struct {
	Creature string `json:"creature"`
	Catalog  string `json:"catalog"`
	// Base is prepended to every target, e.g. "https://dex.example.org".
	Base string `json:"base"`
}

func DefaultRoutes() Routes {
	return Routes{
		Creature: "/entity/{id}",
		Catalog:  "/catalog/{category}/{id}",
	}
}

// Href is the navigation target of t. Creatures route by national number
// when they carry one.
func (r Routes) Href(t document.Token) string {
	defaults := DefaultRoutes()
	tmpl, id := r.Catalog, t.EntityID()
	if tmpl == "" {
		tmpl = defaults.Catalog
	}
	if c, ok := t.(document.Creature); ok {
		tmpl, id = r.Creature, c.RouteID()
		if tmpl == "" {
			tmpl = defaults.Creature
		}
	}
	path := strings.NewReplacer(
		"{id}", strconv.Itoa(id),
		"{category}", t.Category().String(),
	).Replace(tmpl)
	return strings.TrimSuffix(r.Base, "/") + path
}

// Nodes maps every segment of doc to a node, in order.
func Nodes(doc document.Document, routes Routes) []Node {
	nodes := make([]Node, 0, len(doc))
	for _, seg := range doc {
		switch s := seg.(type) {
		case document.Text:
			if s.Content != "" {
				nodes = append(nodes, TextNode{Text: s.Content})
			}
		case document.Mention:
			nodes = append(nodes, Chip(s.Token, routes))
		}
	}
	return nodes
}

// Chip renders a single token.
func Chip(t document.Token, routes Routes) ChipNode {
	chip := ChipNode{
		Category: t.Category(),
		ID:       t.EntityID(),
		Name:     t.DisplayName(),
		Icon:     t.Icon(),
		Href:     routes.Href(t),
	}
	if m, ok := t.(document.Move); ok {
		chip.Kind = m.Kind
		chip.Class = m.Class
	}
	return chip
}

// Plain renders nodes back to text, chips as their anchors.
func Plain(nodes []Node) string {
	var b strings.Builder
	for _, n := range nodes {
		switch n := n.(type) {
		case TextNode:
			b.WriteString(n.Text)
		case ChipNode:
			b.WriteString("@" + n.Name)
		}
	}
	return b.String()
}
