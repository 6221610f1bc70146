package server

import (
	"context"
	"errors"
	"sort"

	"mentions/internal/document"
	"mentions/internal/manager"
	"mentions/internal/preview"
	"mentions/internal/store"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// showPreview starts the preview server on first use and asks the client
// to open it.
func (s *Server) showPreview(context *glsp.Context) error {
	s.previewMu.Lock()
	if s.preview == nil {
		addr := s.config.PreviewAddr
		if addr == "" {
			addr = ":0"
		}
		p := preview.New(previewSource{s}, s.provider, s.config.Routes)
		url, err := p.Start(addr)
		if err != nil {
			s.previewMu.Unlock()
			return err
		}
		s.preview, s.previewAddr = p, url
	}
	url := s.previewAddr
	s.previewMu.Unlock()

	context.Notify(
		"window/showDocument",
		protocol.ShowDocumentParams{
			URI:      protocol.URI(url),
			External: &protocol.True,
		},
	)
	return nil
}

// publishPreview forwards document events to connected preview clients.
func (s *Server) publishPreview(ev manager.Event) {
	s.previewMu.Lock()
	p := s.preview
	s.previewMu.Unlock()
	if p == nil {
		return
	}

	var err error
	switch ev.Op {
	case manager.EventOpen, manager.EventChange, manager.EventCommit:
		err = p.Publish(ev.URI, ev.Doc)
	case manager.EventClose:
		err = p.Remove(ev.URI)
	}
	if err != nil {
		log.Warningf("preview %s %s: %v", ev.Op, ev.URI, err)
	}
}

// previewSource lists open documents first and falls back to the store for
// documents that are only persisted.
type previewSource struct {
	s *Server
}

func (ps previewSource) Keys(ctx context.Context) ([]string, error) {
	keys := ps.s.manager.URIs()
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		seen[k] = true
	}
	stored, err := ps.s.store.Keys(ctx)
	if err != nil {
		return nil, err
	}
	for _, k := range stored {
		if !seen[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (ps previewSource) Document(ctx context.Context, key string) (document.Document, error) {
	if snap, err := ps.s.manager.Snapshot(key); err == nil {
		return snap.Doc, nil
	}
	content, err := ps.s.store.Load(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, preview.ErrNotFound
	} else if err != nil {
		return nil, err
	}
	return document.Deserialize(content), nil
}
