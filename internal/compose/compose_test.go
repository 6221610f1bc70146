package compose_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"mentions/internal/compose"
	"mentions/internal/document"
	"mentions/internal/scheduler"
	"mentions/internal/search"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	charmander = search.Candidate{Category: document.CategoryCreature, ID: 4, Name: "Charmander", Icon: "https://img/4.png", SecondaryID: 4}
	charizard  = search.Candidate{Category: document.CategoryCreature, ID: 6, Name: "Charizard", SecondaryID: 6}
	charcoal   = search.Candidate{Category: document.CategoryItem, ID: 197, Name: "Charcoal"}
	chargeBeam = search.Candidate{Category: document.CategoryMove, ID: 451, Name: "Charge Beam", Kind: "electric", Class: "special"}
)

func fixedProvider(res search.Results) search.Provider {
	return search.ProviderFunc(func(ctx context.Context, query string) (search.Results, error) {
		return res, nil
	})
}

func newComposer(t *testing.T, provider search.Provider, opts compose.Options) (*compose.Composer, *scheduler.Scheduler) {
	t.Helper()
	sched := scheduler.NewScheduler()
	t.Cleanup(sched.Stop)
	opts.Provider = provider
	opts.Scheduler = sched
	if opts.Debounce == 0 {
		opts.Debounce = time.Millisecond
	}
	return compose.New(opts), sched
}

func waitResults(t *testing.T, c *compose.Composer) compose.Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := c.Results(ctx)
	require.NoError(t, err)
	return snap
}

func TestDetect(t *testing.T) {
	long := strings.Repeat("a", compose.DefaultQueryLimit)

	tests := []struct {
		name  string
		flat  string
		caret int
		spans []document.Span
		want  compose.Trigger
		ok    bool
	}{
		{"after text", "Use @char", 9, nil, compose.Trigger{Offset: 4, Caret: 9, Query: "char"}, true},
		{"bare at", "@", 1, nil, compose.Trigger{Offset: 0, Caret: 1, Query: ""}, true},
		{"after newline", "a\n@pi", 5, nil, compose.Trigger{Offset: 2, Caret: 5, Query: "pi"}, true},
		{"caret mid query", "@pikachu", 3, nil, compose.Trigger{Offset: 0, Caret: 3, Query: "pi"}, true},
		{"limit", "@" + long, 1 + len(long), nil, compose.Trigger{Offset: 0, Caret: 1 + len(long), Query: long}, true},
		{"over limit", "@" + long + "a", 2 + len(long), nil, compose.Trigger{}, false},
		{"email", "mail@host", 9, nil, compose.Trigger{}, false},
		{"whitespace in query", "@pi ka", 6, nil, compose.Trigger{}, false},
		{"no at", "hello", 5, nil, compose.Trigger{}, false},
		{"existing anchor", "Hi @Pikachu", 11, []document.Span{{Index: 1, Start: 3, End: 11}}, compose.Trigger{}, false},
		{"caret out of range", "@a", 5, nil, compose.Trigger{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := compose.Detect(tt.flat, tt.caret, tt.spans, compose.DefaultQueryLimit)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestComposeAndCommit(t *testing.T) {
	c, _ := newComposer(t, fixedProvider(search.Results{Creatures: []search.Candidate{charmander, charizard}}), compose.Options{})

	doc := document.Document{document.Text{Content: "Use @char"}}
	assert.Equal(t, compose.Composing, c.Update("Use @char", 9, nil))

	snap := waitResults(t, c)
	require.Len(t, snap.Candidates, 2)
	assert.False(t, snap.Pending)

	action, cand := c.Key(compose.KeyEnter)
	require.Equal(t, compose.ActionCommit, action)
	assert.Equal(t, charmander, cand)

	out, caret, err := c.Commit(doc, cand)
	require.NoError(t, err)
	want := document.Document{
		document.Text{Content: "Use "},
		document.Mention{Token: document.Creature{ID: 4, Name: "Charmander", Sprite: "https://img/4.png", NationalNumber: 4}},
		document.Text{Content: " "},
	}
	if diff := cmp.Diff(want, out); diff != "" {
		t.Errorf("committed document mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "Use @Charmander ", document.Render(out))
	assert.Equal(t, len("Use @Charmander "), caret)
	assert.Equal(t, compose.Idle, c.State())

	// the committed anchor does not retrigger
	assert.Equal(t, compose.Idle, c.Update(document.Render(out), caret-1, document.Anchors(out)))
}

func TestComposeKeyNavigation(t *testing.T) {
	res := search.Results{Creatures: []search.Candidate{charmander}, Moves: []search.Candidate{chargeBeam}, Items: []search.Candidate{charcoal}}
	c, _ := newComposer(t, fixedProvider(res), compose.Options{})

	action, _ := c.Key(compose.KeyDown)
	assert.Equal(t, compose.ActionNone, action, "idle composer ignores keys")

	c.Update("@char", 5, nil)
	snap := waitResults(t, c)
	assert.Equal(t, []search.Candidate{charmander, chargeBeam, charcoal}, snap.Candidates)

	for range 5 {
		c.Key(compose.KeyDown)
	}
	assert.Equal(t, 2, c.Snapshot().Selected)
	c.Key(compose.KeyUp)
	action, cand := c.Key(compose.KeyEnter)
	assert.Equal(t, compose.ActionCommit, action)
	assert.Equal(t, chargeBeam, cand)

	action, _ = c.Key(compose.KeyEscape)
	assert.Equal(t, compose.ActionCancel, action)
	assert.Equal(t, compose.Idle, c.State())
	assert.Empty(t, c.Snapshot().Candidates)
}

func TestComposeAfterSchedulerStop(t *testing.T) {
	res := search.Results{Creatures: []search.Candidate{charmander}}
	c, sched := newComposer(t, fixedProvider(res), compose.Options{})
	sched.Stop()

	assert.Equal(t, compose.Composing, c.Update("@char", 5, nil))

	// Results must not wait for a search that will never run.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	start := time.Now()
	snap, err := c.Results(ctx)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, snap.Pending)
	assert.Empty(t, snap.Candidates)
	assert.Equal(t, compose.Composing, snap.State)
}

func TestComposeCategoryFilter(t *testing.T) {
	res := search.Results{Creatures: []search.Candidate{charmander}, Moves: []search.Candidate{chargeBeam}, Items: []search.Candidate{charcoal}}
	c, _ := newComposer(t, fixedProvider(res), compose.Options{
		Categories: []document.Category{document.CategoryItem, document.CategoryMove},
	})

	c.Update("@char", 5, nil)
	snap := waitResults(t, c)
	assert.Equal(t, []search.Candidate{charcoal, chargeBeam}, snap.Candidates)

	_, _, err := c.Commit(document.Document{document.Text{Content: "@char"}}, charmander)
	assert.ErrorIs(t, err, compose.ErrCategoryDisabled)
}

func TestComposeDiscardsStaleResults(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	provider := search.ProviderFunc(func(ctx context.Context, query string) (search.Results, error) {
		if query == "a" {
			close(started)
			<-release
		}
		return search.Results{Abilities: []search.Candidate{{Category: document.CategoryAbility, ID: len(query), Name: query}}}, nil
	})
	c, sched := newComposer(t, provider, compose.Options{})

	c.Update("@a", 2, nil)
	<-started
	c.Update("@ab", 3, nil)

	snap := waitResults(t, c)
	require.Len(t, snap.Candidates, 1)
	assert.Equal(t, "ab", snap.Candidates[0].Name)

	close(release)
	sched.Stop()

	snap = c.Snapshot()
	require.Len(t, snap.Candidates, 1)
	assert.Equal(t, "ab", snap.Candidates[0].Name)
}

func TestComposeSearchErrorDegrades(t *testing.T) {
	provider := search.ProviderFunc(func(ctx context.Context, query string) (search.Results, error) {
		return search.Results{}, errors.New("catalog offline")
	})
	c, _ := newComposer(t, provider, compose.Options{})

	c.Update("x @pi", 5, nil)
	snap := waitResults(t, c)
	assert.Equal(t, compose.Composing, snap.State)
	assert.Empty(t, snap.Candidates)

	action, _ := c.Key(compose.KeyEnter)
	assert.Equal(t, compose.ActionNone, action)
}

func TestComposeLosesTrigger(t *testing.T) {
	c, _ := newComposer(t, fixedProvider(search.Results{}), compose.Options{})

	assert.Equal(t, compose.Composing, c.Update("@pi", 3, nil))
	assert.Equal(t, compose.Idle, c.Update("@pi x", 5, nil))

	_, _, err := c.Commit(document.Document{document.Text{Content: "@pi x"}}, charmander)
	assert.ErrorIs(t, err, compose.ErrNotComposing)

	c.Update("@pi", 3, nil)
	c.Blur()
	assert.Equal(t, compose.Idle, c.State())
}

func TestComposeCandidateBySeq(t *testing.T) {
	c, _ := newComposer(t, fixedProvider(search.Results{Creatures: []search.Candidate{charmander}}), compose.Options{})

	_, err := c.Candidate(1, 0)
	assert.ErrorIs(t, err, compose.ErrNotComposing)

	c.Update("@ch", 3, nil)
	snap := waitResults(t, c)

	cand, err := c.Candidate(snap.Seq, 0)
	require.NoError(t, err)
	assert.Equal(t, charmander, cand)

	_, err = c.Candidate(snap.Seq+1, 0)
	assert.ErrorIs(t, err, compose.ErrStale)
	_, err = c.Candidate(snap.Seq, 3)
	assert.ErrorIs(t, err, compose.ErrNoSuchCandidate)
}

func TestComposeNotifiesResults(t *testing.T) {
	got := make(chan compose.Snapshot, 1)
	c, _ := newComposer(t, fixedProvider(search.Results{Items: []search.Candidate{charcoal}}), compose.Options{
		OnResults: func(s compose.Snapshot) { got <- s },
	})

	c.Update("@coal", 5, nil)
	select {
	case s := <-got:
		assert.Equal(t, []search.Candidate{charcoal}, s.Candidates)
	case <-time.After(2 * time.Second):
		t.Fatal("no results delivered")
	}
}
