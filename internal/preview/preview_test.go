package preview_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"mentions/internal/document"
	"mentions/internal/preview"
	"mentions/internal/render"
	"mentions/internal/search"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapSource struct {
	mu   sync.Mutex
	docs map[string]document.Document
}

func (m *mapSource) Keys(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.docs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *mapSource) Document(_ context.Context, key string) (document.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[key]
	if !ok {
		return nil, preview.ErrNotFound
	}
	return doc, nil
}

var charcoal = document.Item{ID: 197, Name: "Charcoal"}

func newTestServer(t *testing.T, provider search.Provider) (*preview.Server, *httptest.Server) {
	t.Helper()
	src := &mapSource{docs: map[string]document.Document{
		"file:///notes/team.md": {document.Text{Content: "Hold "}, document.Mention{Token: charcoal}},
	}}
	p := preview.New(src, provider, render.DefaultRoutes())
	ts := httptest.NewServer(p.Handler())
	t.Cleanup(func() {
		p.Shutdown(context.Background())
		ts.Close()
	})
	return p, ts
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestDocumentRoutes(t *testing.T) {
	_, ts := newTestServer(t, nil)

	code, body := get(t, ts.URL+"/")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "new WebSocket")

	code, body = get(t, ts.URL+"/documents")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"documents":["file:///notes/team.md"]}`, body)

	code, body = get(t, ts.URL+"/documents/"+url.PathEscape("file:///notes/team.md"))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, `<div class="mentions">Hold <a class="mention mention-item" href="/catalog/item/197" data-id="197">Charcoal</a></div>`, body)

	code, _ = get(t, ts.URL+"/documents/missing")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = get(t, ts.URL+"/search?q=x")
	assert.Equal(t, http.StatusNotFound, code, "no provider, no search route")

	code, body = get(t, ts.URL+"/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "mentions_open_documents")
}

func TestSearchRoute(t *testing.T) {
	provider := search.ProviderFunc(func(ctx context.Context, query string) (search.Results, error) {
		if query == "fail" {
			return search.Results{}, errors.New("catalog offline")
		}
		return search.Results{Items: []search.Candidate{{Category: document.CategoryItem, ID: 197, Name: "Charcoal"}}}, nil
	})
	_, ts := newTestServer(t, provider)

	code, body := get(t, ts.URL+"/search?q=char")
	assert.Equal(t, http.StatusOK, code)
	var res search.Results
	require.NoError(t, json.Unmarshal([]byte(body), &res))
	require.Len(t, res.Items, 1)
	assert.Equal(t, document.CategoryItem, res.Items[0].Category)

	code, _ = get(t, ts.URL+"/search?q=fail")
	assert.Equal(t, http.StatusBadGateway, code)
}

func TestWebSocketBroadcast(t *testing.T) {
	p, ts := newTestServer(t, nil)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var msg preview.Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "update", msg.Op)
	assert.Equal(t, "file:///notes/team.md", msg.Key)
	assert.Contains(t, msg.HTML, "Charcoal")

	require.NoError(t, p.Publish("file:///b.md", document.Document{document.Text{Content: "plain"}}))
	msg = preview.Message{}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, preview.Message{Op: "update", Key: "file:///b.md", HTML: `<div class="mentions">plain</div>`}, msg)

	require.NoError(t, p.Remove("file:///b.md"))
	msg = preview.Message{}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, preview.Message{Op: "remove", Key: "file:///b.md"}, msg)
}
