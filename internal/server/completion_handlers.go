package server

import (
	"context"
	"fmt"
	"time"

	"mentions/internal/compose"
	"mentions/internal/document"
	"mentions/internal/manager"
	"mentions/internal/textpos"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// completionTimeout bounds how long a completion request waits for the
// debounced search to land.
const completionTimeout = 2 * time.Second

var completionKinds = map[document.Category]protocol.CompletionItemKind{
	document.CategoryCreature: protocol.CompletionItemKindClass,
	document.CategoryMove:     protocol.CompletionItemKindFunction,
	document.CategoryItem:     protocol.CompletionItemKindValue,
	document.CategoryAbility:  protocol.CompletionItemKindProperty,
}

// textDocumentCompletion offers the candidates of the active "@query". Items
// insert nothing themselves: accepting one runs CommandCommit, which splices
// the mention into the Document and pushes the flat edit back.
func (s *Server) textDocumentCompletion(
	ctx *glsp.Context,
	params *protocol.CompletionParams,
) (any, error) {
	uri := params.TextDocument.URI

	wait, cancel := context.WithTimeout(context.Background(), completionTimeout)
	defer cancel()
	snap, err := s.manager.Completion(wait, uri)
	if err != nil {
		return nil, err
	}
	return completionList(snap), nil
}

func completionList(snap manager.Snapshot) protocol.CompletionList {
	list := protocol.CompletionList{
		IsIncomplete: true,
		Items:        []protocol.CompletionItem{},
	}
	if snap.Compose.State != compose.Composing {
		return list
	}

	caret := textpos.Position(snap.Flat, snap.Caret)
	preselect := true
	for i, cand := range snap.Compose.Candidates {
		kind := completionKinds[cand.Category]
		detail := cand.Category.String()
		sortText := fmt.Sprintf("%04d", i)
		item := protocol.CompletionItem{
			Label:    cand.Name,
			Kind:     &kind,
			Detail:   &detail,
			SortText: &sortText,
			TextEdit: protocol.TextEdit{
				Range:   protocol.Range{Start: caret, End: caret},
				NewText: "",
			},
			Command: &protocol.Command{
				Title:     "Insert mention",
				Command:   CommandCommit,
				Arguments: []any{snap.URI, snap.Compose.Seq, i},
			},
		}
		if i == snap.Compose.Selected {
			item.Preselect = &preselect
		}
		list.Items = append(list.Items, item)
	}
	return list
}
