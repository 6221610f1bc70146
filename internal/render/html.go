package render

import (
	"bytes"
	"fmt"
	"strconv"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// HTML renders nodes inside a single <div class="mentions"> element. Chips
// become <a class="mention mention-{category}"> links, with an <img> when
// the entity has an icon.
func HTML(nodes []Node) (string, error) {
	root := element(atom.Div, html.Attribute{Key: "class", Val: "mentions"})
	for _, n := range nodes {
		switch n := n.(type) {
		case TextNode:
			root.AppendChild(&html.Node{Type: html.TextNode, Data: n.Text})
		case ChipNode:
			root.AppendChild(chipElement(n))
		}
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, root); err != nil {
		return "", fmt.Errorf("failed to render html: %w", err)
	}
	return buf.String(), nil
}

func chipElement(c ChipNode) *html.Node {
	attrs := []html.Attribute{
		{Key: "class", Val: "mention mention-" + c.Category.String()},
		{Key: "href", Val: c.Href},
		{Key: "data-id", Val: strconv.Itoa(c.ID)},
	}
	if c.Kind != "" {
		attrs = append(attrs, html.Attribute{Key: "data-kind", Val: c.Kind})
	}
	if c.Class != "" {
		attrs = append(attrs, html.Attribute{Key: "data-class", Val: c.Class})
	}
	a := element(atom.A, attrs...)
	if c.Icon != "" {
		a.AppendChild(element(atom.Img,
			html.Attribute{Key: "class", Val: "mention-icon"},
			html.Attribute{Key: "src", Val: c.Icon},
			html.Attribute{Key: "alt", Val: ""},
		))
	}
	a.AppendChild(&html.Node{Type: html.TextNode, Data: c.Name})
	return a
}

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		DataAtom: a,
		Data:     a.String(),
		Attr:     attrs,
	}
}
