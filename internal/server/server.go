package server

import (
	"sync"

	"mentions/internal/config"
	"mentions/internal/manager"
	"mentions/internal/preview"
	"mentions/internal/scheduler"
	"mentions/internal/search"
	"mentions/internal/store"

	"github.com/tliron/commonlog"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"
)

// Name is the server name reported to clients and used for the state dir.
const Name = "mentions"

var log = commonlog.GetLogger("mentions.server")

// Commands understood by workspace/executeCommand.
const (
	CommandCommit    = "mentions.commit"
	CommandCancel    = "mentions.cancel"
	CommandKey       = "mentions.key"
	CommandPreview   = "mentions.preview"
	CommandSerialize = "mentions.serialize"
)

type Server struct {
	handler *protocol.Handler
	config  config.Config

	scheduler *scheduler.Scheduler
	manager   *manager.DocumentManager
	store     *store.Store
	catalog   *search.Catalog
	provider  *search.Cached
	wg        sync.WaitGroup // catalog imports

	previewMu   sync.Mutex
	preview     *preview.Server
	previewAddr string
}

// New creates a server with cfg as the base configuration. Initialization
// options sent by the client are layered on top of it.
func New(cfg config.Config) *Server {
	s := &Server{config: cfg}
	s.handler = &protocol.Handler{
		Initialize:               s.initialize,
		Initialized:              s.initialized,
		Shutdown:                 s.shutdown,
		SetTrace:                 s.setTrace,
		TextDocumentDidOpen:      s.textDocumentDidOpen,
		TextDocumentDidChange:    s.textDocumentDidChange,
		TextDocumentDidSave:      s.textDocumentDidSave,
		TextDocumentDidClose:     s.textDocumentDidClose,
		TextDocumentCompletion:   s.textDocumentCompletion,
		TextDocumentHover:        s.textDocumentHover,
		TextDocumentDefinition:   s.textDocumentDefinition,
		TextDocumentDocumentLink: s.textDocumentDocumentLink,
		WorkspaceExecuteCommand:  s.workspaceExecuteCommand,
	}
	return s
}

// RunStdio serves the language server protocol over stdin/stdout.
func (s *Server) RunStdio() error {
	return glspserver.NewServer(s.handler, Name, false).RunStdio()
}
