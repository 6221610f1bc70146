package manager_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"mentions/internal/compose"
	"mentions/internal/document"
	"mentions/internal/manager"
	"mentions/internal/scheduler"
	"mentions/internal/search"
	"mentions/internal/store"
	"mentions/internal/textpos"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lsp "github.com/tliron/glsp/protocol_3_16"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const uri = "file:///notes/team.md"

var charmander = document.Creature{ID: 4, Name: "Charmander", Sprite: "https://img/4.png", NationalNumber: 4}

var provider = search.ProviderFunc(func(ctx context.Context, query string) (search.Results, error) {
	return search.Results{Creatures: []search.Candidate{
		{Category: document.CategoryCreature, ID: 4, Name: "Charmander", Icon: "https://img/4.png", SecondaryID: 4},
		{Category: document.CategoryCreature, ID: 6, Name: "Charizard", SecondaryID: 6},
	}}, nil
})

// countingStore counts writes to a real store.
type countingStore struct {
	*store.Store
	mu    sync.Mutex
	saves int
}

func (c *countingStore) Save(ctx context.Context, key, content string) (bool, error) {
	c.mu.Lock()
	c.saves++
	c.mu.Unlock()
	return c.Store.Save(ctx, key, content)
}

func (c *countingStore) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saves
}

func newManager(t *testing.T, maxLength int) (*manager.DocumentManager, *countingStore) {
	t.Helper()
	sched := scheduler.NewScheduler()
	t.Cleanup(sched.Stop)

	st, err := store.Open(filepath.Join(t.TempDir(), "documents.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	cs := &countingStore{Store: st}

	dm := manager.NewDocumentManager(manager.Options{
		Provider:  provider,
		Scheduler: sched,
		Store:     cs,
		MaxLength: maxLength,
		Debounce:  time.Millisecond,
	})
	return dm, cs
}

func change(flat string, start, end int, text string) lsp.TextDocumentContentChangeEvent {
	r := textpos.Range(flat, start, end)
	return lsp.TextDocumentContentChangeEvent{Range: &r, Text: text}
}

func completion(t *testing.T, dm *manager.DocumentManager) manager.Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := dm.Completion(ctx, uri)
	require.NoError(t, err)
	return snap
}

// insertCharmander types "@char" after "Use ", commits the first candidate
// and echoes the edit back the way an editor does.
func insertCharmander(t *testing.T, dm *manager.DocumentManager) manager.Edit {
	t.Helper()
	ctx := context.Background()
	_, err := dm.Open(ctx, uri, 1, "Use ")
	require.NoError(t, err)

	snap, err := dm.ApplyChanges(uri, 2, []any{change("Use ", 4, 4, "@char")})
	require.NoError(t, err)
	assert.Equal(t, 9, snap.Caret)

	snap = completion(t, dm)
	require.Len(t, snap.Compose.Candidates, 2)

	edit, err := dm.Commit(uri, snap.Compose.Seq, 0)
	require.NoError(t, err)

	_, err = dm.ApplyChanges(uri, 3, []any{change(edit.Before, edit.Start, edit.End, edit.Text)})
	require.NoError(t, err)
	return edit
}

func TestKeyNavigationCommits(t *testing.T) {
	dm, _ := newManager(t, 0)
	ctx := context.Background()
	_, err := dm.Open(ctx, uri, 1, "Use ")
	require.NoError(t, err)

	action, _, err := dm.Key(uri, compose.KeyEnter)
	require.NoError(t, err)
	assert.Equal(t, compose.ActionNone, action)

	_, err = dm.ApplyChanges(uri, 2, []any{change("Use ", 4, 4, "@char")})
	require.NoError(t, err)
	require.Len(t, completion(t, dm).Compose.Candidates, 2)

	action, _, err = dm.Key(uri, compose.KeyDown)
	require.NoError(t, err)
	assert.Equal(t, compose.ActionMove, action)

	action, edit, err := dm.Key(uri, compose.KeyEnter)
	require.NoError(t, err)
	assert.Equal(t, compose.ActionCommit, action)
	assert.Equal(t, "@Charizard ", edit.Text)
	assert.Equal(t, 4, edit.Start)
	assert.Equal(t, 9, edit.End)

	snap, err := dm.Snapshot(uri)
	require.NoError(t, err)
	assert.Equal(t, "Use @Charizard ", document.Render(snap.Doc))
	assert.Equal(t, compose.Idle, snap.Compose.State)

	_, _, err = dm.Key("file:///missing.md", compose.KeyUp)
	assert.ErrorIs(t, err, manager.ErrNotOpen)
}

func TestCommitFlow(t *testing.T) {
	dm, _ := newManager(t, 0)

	edit := insertCharmander(t, dm)
	assert.Equal(t, manager.Edit{Start: 4, End: 9, Text: "@Charmander ", Before: "Use @char", Caret: 16, Token: charmander}, edit)

	snap, err := dm.Snapshot(uri)
	require.NoError(t, err)
	want := document.Document{
		document.Text{Content: "Use "},
		document.Mention{Token: charmander},
		document.Text{Content: " "},
	}
	if diff := cmp.Diff(want, snap.Doc); diff != "" {
		t.Errorf("document mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "Use @Charmander ", snap.Flat)
	assert.Equal(t, int32(3), snap.Version)
	assert.False(t, snap.Overflow)

	// typing after the mention keeps it
	snap, err = dm.ApplyChanges(uri, 4, []any{change(snap.Flat, 16, 16, "first")})
	require.NoError(t, err)
	assert.Equal(t, []document.Token{charmander}, document.Mentions(snap.Doc))
	assert.Equal(t, snap.Flat, document.Render(snap.Doc))
}

func TestCommitStale(t *testing.T) {
	dm, _ := newManager(t, 0)
	ctx := context.Background()

	_, err := dm.Commit(uri, 1, 0)
	assert.ErrorIs(t, err, manager.ErrNotOpen)

	_, err = dm.Open(ctx, uri, 1, "")
	require.NoError(t, err)
	_, err = dm.Commit(uri, 1, 0)
	assert.ErrorIs(t, err, manager.ErrStaleCompletion)

	_, err = dm.ApplyChanges(uri, 2, []any{change("", 0, 0, "@ch")})
	require.NoError(t, err)
	snap := completion(t, dm)

	_, err = dm.Commit(uri, snap.Compose.Seq+1, 0)
	assert.ErrorIs(t, err, manager.ErrStaleCompletion)

	_, err = dm.Commit(uri, snap.Compose.Seq, 0)
	require.NoError(t, err)
	_, err = dm.Commit(uri, snap.Compose.Seq, 0)
	assert.ErrorIs(t, err, manager.ErrStaleCompletion, "a committed result set cannot be committed twice")
}

func TestRejectedEditSelfHeals(t *testing.T) {
	dm, _ := newManager(t, 0)
	ctx := context.Background()

	_, err := dm.Open(ctx, uri, 1, "@pi")
	require.NoError(t, err)
	_, err = dm.ApplyChanges(uri, 2, []any{change("@pi", 3, 3, "k")})
	require.NoError(t, err)
	snap := completion(t, dm)
	_, err = dm.Commit(uri, snap.Compose.Seq, 0)
	require.NoError(t, err)

	// the editor never applied the edit and the user kept typing
	snap, err = dm.ApplyChanges(uri, 3, []any{change("@pik", 4, 4, "a")})
	require.NoError(t, err)
	assert.Equal(t, "@pika", snap.Flat)
	assert.Empty(t, document.Mentions(snap.Doc))
	assert.Equal(t, snap.Flat, document.Render(snap.Doc))
}

func TestPersistence(t *testing.T) {
	dm, cs := newManager(t, 0)
	ctx := context.Background()

	insertCharmander(t, dm)
	require.NoError(t, dm.Close(ctx, uri))
	assert.Equal(t, 1, cs.count())

	stored, err := cs.Load(ctx, uri)
	require.NoError(t, err)
	assert.Contains(t, stored, `"name":"Charmander"`)

	snap, err := dm.Open(ctx, uri, 1, "Use @Charmander ")
	require.NoError(t, err)
	assert.Equal(t, []document.Token{charmander}, document.Mentions(snap.Doc))

	// the buffer was edited outside the editor while closed
	require.NoError(t, dm.Close(ctx, uri))
	snap, err = dm.Open(ctx, uri, 1, "Use @Charmandr ")
	require.NoError(t, err)
	assert.Empty(t, document.Mentions(snap.Doc))
	assert.Equal(t, "Use @Charmandr ", document.Render(snap.Doc))
}

func TestSaveAllOnlyDirty(t *testing.T) {
	dm, cs := newManager(t, 0)
	ctx := context.Background()

	_, err := dm.Open(ctx, uri, 1, "hello")
	require.NoError(t, err)
	_, err = dm.Open(ctx, "file:///other.md", 1, "")
	require.NoError(t, err)

	require.NoError(t, dm.SaveAll(ctx))
	assert.Equal(t, 0, cs.count(), "freshly opened documents are clean")

	_, err = dm.ApplyChanges(uri, 2, []any{change("hello", 5, 5, " world")})
	require.NoError(t, err)
	require.NoError(t, dm.SaveAll(ctx))
	assert.Equal(t, 1, cs.count())

	require.NoError(t, dm.SaveAll(ctx))
	assert.Equal(t, 1, cs.count())

	require.NoError(t, dm.CloseAll(ctx))
	assert.Empty(t, dm.URIs())
}

func TestOverflowAndErrors(t *testing.T) {
	dm, _ := newManager(t, 5)
	ctx := context.Background()

	_, err := dm.ApplyChanges(uri, 1, []any{change("", 0, 0, "x")})
	assert.ErrorIs(t, err, manager.ErrNotOpen)
	_, err = dm.Snapshot(uri)
	assert.ErrorIs(t, err, manager.ErrNotOpen)
	assert.ErrorIs(t, dm.Save(ctx, uri), manager.ErrNotOpen)
	assert.ErrorIs(t, dm.Close(ctx, uri), manager.ErrNotOpen)
	assert.ErrorIs(t, dm.Cancel(uri), manager.ErrNotOpen)

	snap, err := dm.Open(ctx, uri, 1, "héllo")
	require.NoError(t, err)
	assert.False(t, snap.Overflow, "length counts characters")

	snap, err = dm.ApplyChanges(uri, 2, []any{lsp.TextDocumentContentChangeEventWhole{Text: "héllo!"}})
	require.NoError(t, err)
	assert.True(t, snap.Overflow)
	assert.Equal(t, "héllo!", document.Render(snap.Doc))

	_, err = dm.ApplyChanges(uri, 3, []any{"bogus"})
	assert.Error(t, err)
}

func TestEvents(t *testing.T) {
	dm, _ := newManager(t, 0)

	var mu sync.Mutex
	var ops []manager.EventOp
	dm.Subscribe(func(e manager.Event) {
		assert.Equal(t, uri, e.URI)
		mu.Lock()
		ops = append(ops, e.Op)
		mu.Unlock()
	})

	insertCharmander(t, dm)
	require.NoError(t, dm.Close(context.Background(), uri))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []manager.EventOp{
		manager.EventOpen,
		manager.EventChange,
		manager.EventResults,
		manager.EventCommit,
		manager.EventChange,
		manager.EventSave,
		manager.EventClose,
	}, ops)
}
