// Package preview serves a live HTML rendering of documents over HTTP and
// pushes updates to browsers over a WebSocket.
package preview

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"

	"mentions/internal/document"
	"mentions/internal/metrics"
	"mentions/internal/render"
	"mentions/internal/search"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("mentions.preview")

// ErrNotFound is returned by a Source for unknown keys.
var ErrNotFound = errors.New("document not found")

//go:embed static/*
var staticFiles embed.FS

// Source supplies the documents to preview.
type Source interface {
	Keys(ctx context.Context) ([]string, error)
	Document(ctx context.Context, key string) (document.Document, error)
}

// Message is sent over the WebSocket to update clients.
type Message struct {
	Op   string `json:"op"` // "update" or "remove"
	Key  string `json:"key"`
	HTML string `json:"html,omitempty"`
}

type Server struct {
	source   Source
	provider search.Provider
	routes   render.Routes

	engine   *gin.Engine
	upgrader websocket.Upgrader

	clientsMu sync.Mutex
	clients   map[*websocket.Conn]*sync.Mutex

	httpServer *http.Server
}

// New builds the preview router. provider may be nil, in which case
// /search is not served.
func New(source Source, provider search.Provider, routes render.Routes) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		source:   source,
		provider: provider,
		routes:   routes,
		engine:   engine,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:  make(map[*websocket.Conn]*sync.Mutex),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/", func(c *gin.Context) {
		index, err := staticFiles.ReadFile("static/index.html")
		if err != nil {
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", index)
	})
	s.engine.GET("/documents", s.handleList)
	s.engine.GET("/documents/*key", s.handleDocument)
	s.engine.GET("/ws", s.handleWS)
	if s.provider != nil {
		s.engine.GET("/search", s.handleSearch)
	}
	s.engine.GET("/metrics", gin.WrapH(metrics.Handler()))
}

// Handler exposes the router, e.g. for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start listens on addr (":0" picks a free port) and serves in the
// background. It returns the URL of the preview page.
func (s *Server) Start(addr string) (string, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("could not start listener: %w", err)
	}
	s.httpServer = &http.Server{Handler: s.engine}

	go func() {
		if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("preview server error: %v", err)
		}
	}()

	url := "http://" + l.Addr().String() + "/"
	log.Infof("preview listening on %s", url)
	return url, nil
}

// Shutdown stops the HTTP server and disconnects every client.
func (s *Server) Shutdown(ctx context.Context) error {
	s.clientsMu.Lock()
	for conn := range s.clients {
		conn.Close()
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Render renders doc to the HTML fragment shown for it.
func (s *Server) Render(doc document.Document) (string, error) {
	return render.HTML(render.Nodes(doc, s.routes))
}

// Publish pushes the rendering of doc under key to every client.
func (s *Server) Publish(key string, doc document.Document) error {
	html, err := s.Render(doc)
	if err != nil {
		return err
	}
	return s.broadcast(Message{Op: "update", Key: key, HTML: html})
}

// Remove tells clients key is gone.
func (s *Server) Remove(key string) error {
	return s.broadcast(Message{Op: "remove", Key: key})
}

func (s *Server) broadcast(msg Message) error {
	s.clientsMu.Lock()
	conns := make(map[*websocket.Conn]*sync.Mutex, len(s.clients))
	for conn, mu := range s.clients {
		conns[conn] = mu
	}
	s.clientsMu.Unlock()

	for conn, mu := range conns {
		mu.Lock()
		err := conn.WriteJSON(msg)
		mu.Unlock()
		if err != nil {
			log.Warningf("broadcast error: %v", err)
			s.drop(conn)
		}
	}
	return nil
}

func (s *Server) drop(conn *websocket.Conn) {
	s.clientsMu.Lock()
	delete(s.clients, conn)
	s.clientsMu.Unlock()
	conn.Close()
}

func (s *Server) handleList(c *gin.Context) {
	keys, err := s.source.Keys(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if keys == nil {
		keys = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"documents": keys})
}

func (s *Server) handleDocument(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	doc, err := s.source.Document(c.Request.Context(), key)
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	} else if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	html, err := s.Render(doc)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}

func (s *Server) handleSearch(c *gin.Context) {
	res, err := s.provider.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

// handleWS upgrades the connection and sends the current rendering of
// every document.
func (s *Server) handleWS(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warningf("WS upgrade error: %v", err)
		return
	}
	mu := &sync.Mutex{}
	s.clientsMu.Lock()
	s.clients[conn] = mu
	s.clientsMu.Unlock()
	defer s.drop(conn)

	ctx := c.Request.Context()
	keys, err := s.source.Keys(ctx)
	if err != nil {
		log.Warningf("failed to list documents: %v", err)
	}
	for _, key := range keys {
		doc, err := s.source.Document(ctx, key)
		if err != nil {
			continue
		}
		html, err := s.Render(doc)
		if err != nil {
			continue
		}
		mu.Lock()
		err = conn.WriteJSON(Message{Op: "update", Key: key, HTML: html})
		mu.Unlock()
		if err != nil {
			return
		}
	}

	// keep connection open
	for {
		if _, _, err := conn.NextReader(); err != nil {
			break
		}
	}
}
