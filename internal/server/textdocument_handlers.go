package server

import (
	"context"
	"fmt"
	"unicode/utf8"

	"mentions/internal/document"
	"mentions/internal/manager"
	"mentions/internal/textpos"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

func (s *Server) textDocumentDidOpen(
	ctx *glsp.Context,
	params *protocol.DidOpenTextDocumentParams,
) error {
	doc := params.TextDocument
	snap, err := s.manager.Open(context.Background(), doc.URI, doc.Version, doc.Text)
	if err != nil {
		return err
	}
	publishDiagnostics(ctx, doc.URI, s.diagnostics(snap))
	return nil
}

func (s *Server) textDocumentDidChange(
	ctx *glsp.Context,
	params *protocol.DidChangeTextDocumentParams,
) error {
	uri := params.TextDocument.URI
	snap, err := s.manager.ApplyChanges(uri, params.TextDocument.Version, params.ContentChanges)
	if err != nil {
		return fmt.Errorf("unexpected error during edit: %w", err)
	}
	publishDiagnostics(ctx, uri, s.diagnostics(snap))
	return nil
}

func (s *Server) textDocumentDidSave(
	ctx *glsp.Context,
	params *protocol.DidSaveTextDocumentParams,
) error {
	return s.manager.Save(context.Background(), params.TextDocument.URI)
}

func (s *Server) textDocumentDidClose(
	ctx *glsp.Context,
	params *protocol.DidCloseTextDocumentParams,
) error {
	uri := params.TextDocument.URI
	err := s.manager.Close(context.Background(), uri)
	publishDiagnostics(ctx, uri, nil)
	return err
}

func publishDiagnostics(
	context *glsp.Context,
	uri string,
	diagnostics []protocol.Diagnostic,
) {
	if diagnostics == nil {
		diagnostics = []protocol.Diagnostic{}
	}
	context.Notify("textDocument/publishDiagnostics", protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

// diagnostics lists one hint per mention and a warning when the text is
// longer than the configured maximum.
func (s *Server) diagnostics(snap manager.Snapshot) []protocol.Diagnostic {
	var diagnostics []protocol.Diagnostic
	source := Name
	flat := document.Render(snap.Doc)

	info := protocol.DiagnosticSeverityInformation
	for _, span := range document.Anchors(snap.Doc) {
		m := snap.Doc[span.Index].(document.Mention)
		diagnostics = append(diagnostics, protocol.Diagnostic{
			Range:    textpos.Range(flat, span.Start, span.End),
			Severity: &info,
			Source:   &source,
			Message:  fmt.Sprintf("> %s %s (#%d)", m.Token.Category(), m.Token.DisplayName(), m.Token.EntityID()),
		})
	}

	if snap.Overflow {
		warning := protocol.DiagnosticSeverityWarning
		start := runeOffset(flat, s.config.MaxLength)
		diagnostics = append(diagnostics, protocol.Diagnostic{
			Range:    textpos.Range(flat, start, len(flat)),
			Severity: &warning,
			Source:   &source,
			Message: fmt.Sprintf("text is %d characters long, the limit is %d",
				utf8.RuneCountInString(flat), s.config.MaxLength),
		})
	}
	return diagnostics
}

// runeOffset is the byte offset of the n-th rune of text.
func runeOffset(text string, n int) int {
	for i := range text {
		if n == 0 {
			return i
		}
		n--
	}
	return len(text)
}
