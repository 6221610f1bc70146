package server

import (
	"fmt"
	"strings"

	"mentions/internal/document"
	"mentions/internal/manager"
	"mentions/internal/textpos"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// mentionAt finds the mention under pos. The client buffer and the
// Document disagree between a commit and the change that echoes it; no
// mention is reported then.
func (s *Server) mentionAt(uri string, pos protocol.Position) (document.Mention, protocol.Range, bool) {
	snap, err := s.manager.Snapshot(uri)
	if err != nil {
		return document.Mention{}, protocol.Range{}, false
	}
	if !inSync(snap) {
		return document.Mention{}, protocol.Range{}, false
	}
	m, span, ok := document.MentionAt(snap.Doc, textpos.Offset(snap.Flat, pos))
	if !ok {
		return document.Mention{}, protocol.Range{}, false
	}
	return m, textpos.Range(snap.Flat, span.Start, span.End), true
}

func inSync(snap manager.Snapshot) bool {
	return document.Render(snap.Doc) == snap.Flat
}

func (s *Server) textDocumentHover(
	context *glsp.Context,
	params *protocol.HoverParams,
) (*protocol.Hover, error) {
	m, r, ok := s.mentionAt(params.TextDocument.URI, params.Position)
	if !ok {
		return nil, nil
	}
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: s.hoverMarkdown(m.Token),
		},
		Range: &r,
	}, nil
}

func (s *Server) hoverMarkdown(t document.Token) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s**\n\n", t.DisplayName())
	fmt.Fprintf(&b, "%s #%d", t.Category(), t.EntityID())
	switch t := t.(type) {
	case document.Creature:
		if t.NationalNumber > 0 {
			fmt.Fprintf(&b, " (No. %d)", t.NationalNumber)
		}
	case document.Move:
		if t.Kind != "" || t.Class != "" {
			fmt.Fprintf(&b, " · %s %s", t.Kind, t.Class)
		}
	}
	b.WriteString("\n")
	if icon := t.Icon(); icon != "" {
		fmt.Fprintf(&b, "\n![%s](%s)\n", t.DisplayName(), icon)
	}
	if s.config.Routes.Base != "" {
		fmt.Fprintf(&b, "\n[Open](%s)\n", s.config.Routes.Href(t))
	}
	return b.String()
}

func (s *Server) textDocumentDocumentLink(
	context *glsp.Context,
	params *protocol.DocumentLinkParams,
) ([]protocol.DocumentLink, error) {
	if s.config.Routes.Base == "" {
		return nil, nil
	}
	snap, err := s.manager.Snapshot(params.TextDocument.URI)
	if err != nil {
		return nil, err
	}
	if !inSync(snap) {
		return nil, nil
	}

	var links []protocol.DocumentLink
	for _, span := range document.Anchors(snap.Doc) {
		m := snap.Doc[span.Index].(document.Mention)
		target := s.config.Routes.Href(m.Token)
		tooltip := fmt.Sprintf("%s %s", m.Token.Category(), m.Token.DisplayName())
		links = append(links, protocol.DocumentLink{
			Range:   textpos.Range(snap.Flat, span.Start, span.End),
			Target:  &target,
			Tooltip: &tooltip,
		})
	}
	return links, nil
}

// textDocumentDefinition opens the entity page of the mention under the
// cursor in the client's browser.
func (s *Server) textDocumentDefinition(
	context *glsp.Context,
	params *protocol.DefinitionParams,
) (any, error) {
	if s.config.Routes.Base == "" {
		return nil, nil
	}
	m, _, ok := s.mentionAt(params.TextDocument.URI, params.Position)
	if !ok {
		return nil, nil
	}
	context.Notify(
		"window/showDocument",
		protocol.ShowDocumentParams{
			URI:      protocol.URI(s.config.Routes.Href(m.Token)),
			External: &protocol.True,
		},
	)
	return nil, nil
}
