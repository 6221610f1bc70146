package render

import (
	"strings"

	"mentions/internal/document"

	"github.com/charmbracelet/lipgloss"
)

var chipColors = map[document.Category]lipgloss.Color{
	document.CategoryCreature: lipgloss.Color("#E3350D"),
	document.CategoryMove:     lipgloss.Color("#30A7D7"),
	document.CategoryItem:     lipgloss.Color("#EED535"),
	document.CategoryAbility:  lipgloss.Color("#4DAD5B"),
}

// ANSI renders nodes for a terminal, chips as bold colored anchors. The
// renderer decides the color profile; nil uses lipgloss' default.
func ANSI(nodes []Node, r *lipgloss.Renderer) string {
	if r == nil {
		r = lipgloss.DefaultRenderer()
	}
	var b strings.Builder
	for _, n := range nodes {
		switch n := n.(type) {
		case TextNode:
			b.WriteString(n.Text)
		case ChipNode:
			style := r.NewStyle().Bold(true).Foreground(chipColors[n.Category])
			b.WriteString(style.Render("@" + n.Name))
		}
	}
	return b.String()
}
