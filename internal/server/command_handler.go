package server

import (
	"fmt"

	"mentions/internal/compose"
	"mentions/internal/document"
	"mentions/internal/manager"
	"mentions/internal/textpos"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

func (s *Server) workspaceExecuteCommand(
	context *glsp.Context,
	params *protocol.ExecuteCommandParams,
) (any, error) {
	switch params.Command {
	case CommandCommit:
		return nil, s.commit(context, params.Arguments)
	case CommandCancel:
		uri, err := stringArg(params.Arguments, 0)
		if err != nil {
			return nil, err
		}
		return nil, s.manager.Cancel(uri)
	case CommandKey:
		return nil, s.key(context, params.Arguments)
	case CommandSerialize:
		uri, err := stringArg(params.Arguments, 0)
		if err != nil {
			return nil, err
		}
		snap, err := s.manager.Snapshot(uri)
		if err != nil {
			return nil, err
		}
		return document.Serialize(snap.Doc)
	case CommandPreview:
		return nil, s.showPreview(context)
	}
	return nil, fmt.Errorf("unknown command %q", params.Command)
}

// commit inserts the candidate picked from a completion list. Arguments are
// the document URI, the result set sequence and the candidate index.
func (s *Server) commit(context *glsp.Context, args []any) error {
	uri, err := stringArg(args, 0)
	if err != nil {
		return err
	}
	seq, err := intArg(args, 1)
	if err != nil {
		return err
	}
	index, err := intArg(args, 2)
	if err != nil {
		return err
	}

	edit, err := s.manager.Commit(uri, uint64(seq), index)
	if err != nil {
		return err
	}

	s.applyEdit(context, uri, edit)
	return nil
}

var keys = map[string]compose.Key{
	"up":     compose.KeyUp,
	"down":   compose.KeyDown,
	"enter":  compose.KeyEnter,
	"escape": compose.KeyEscape,
}

// key drives the composer from clients that render their own candidate
// list. Arguments are the document URI and one of up, down, enter, escape.
func (s *Server) key(context *glsp.Context, args []any) error {
	uri, err := stringArg(args, 0)
	if err != nil {
		return err
	}
	name, err := stringArg(args, 1)
	if err != nil {
		return err
	}
	k, ok := keys[name]
	if !ok {
		return fmt.Errorf("unknown key %q", name)
	}

	action, edit, err := s.manager.Key(uri, k)
	if err != nil {
		return err
	}
	if action == compose.ActionCommit {
		s.applyEdit(context, uri, edit)
	}
	return nil
}

// applyEdit asks the client to mirror a commit in its buffer.
func (s *Server) applyEdit(context *glsp.Context, uri string, edit manager.Edit) {
	params := protocol.ApplyWorkspaceEditParams{
		Edit: protocol.WorkspaceEdit{
			Changes: map[protocol.DocumentUri][]protocol.TextEdit{
				uri: {{
					Range:   textpos.Range(edit.Before, edit.Start, edit.End),
					NewText: edit.Text,
				}},
			},
		},
	}
	// The client answers applyEdit only after this request returns.
	go func() {
		var resp protocol.ApplyWorkspaceEditResponse
		context.Call("workspace/applyEdit", params, &resp)
		if !resp.Applied {
			reason := ""
			if resp.FailureReason != nil {
				reason = *resp.FailureReason
			}
			log.Warningf("%s: client rejected mention edit: %s", uri, reason)
		}
	}()
}
