package compose

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"mentions/internal/document"
	"mentions/internal/metrics"
	"mentions/internal/reconcile"
	"mentions/internal/scheduler"
	"mentions/internal/search"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("mentions.compose")

var (
	ErrNotComposing     = errors.New("not composing")
	ErrStale            = errors.New("stale completion")
	ErrCategoryDisabled = errors.New("category disabled")
	ErrNoSuchCandidate  = errors.New("no such candidate")
)

// DefaultDebounce is the quiet period before a query is searched.
const DefaultDebounce = 300 * time.Millisecond

type State int

const (
	Idle State = iota
	Composing
)

func (s State) String() string {
	if s == Composing {
		return "composing"
	}
	return "idle"
}

// Key is a navigation key the composer reacts to while composing.
type Key int

const (
	KeyUp Key = iota + 1
	KeyDown
	KeyEnter
	KeyEscape
)

// Action tells the caller what a key press resolved to.
type Action int

const (
	ActionNone Action = iota
	ActionMove
	ActionCommit
	ActionCancel
)

type Options struct {
	Provider  search.Provider
	Scheduler *scheduler.Scheduler
	// Key identifies this composer's debounce slot; one per editing surface.
	Key        string
	Debounce   time.Duration
	QueryLimit int
	// Categories the composer offers, in display order. Empty means all.
	Categories []document.Category
	// OnResults, if set, is called outside the lock whenever fresh
	// candidates arrive.
	OnResults func(Snapshot)
}

// Snapshot is a copy of the composer's visible state.
type Snapshot struct {
	State      State
	Trigger    Trigger
	Candidates []search.Candidate
	Selected   int
	// Seq identifies the search the candidates came from.
	Seq     uint64
	Pending bool
}

type request struct {
	seq   uint64
	done  chan struct{}
	query string
}

// Composer drives one "@query" gesture at a time.
type Composer struct {
	opts Options

	mu         sync.Mutex
	state      State
	trigger    Trigger
	candidates []search.Candidate
	selected   int
	seq        uint64
	req        *request
}

func New(opts Options) *Composer {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.QueryLimit <= 0 {
		opts.QueryLimit = DefaultQueryLimit
	}
	if len(opts.Categories) == 0 {
		opts.Categories = document.Categories
	}
	if opts.Key == "" {
		opts.Key = "compose"
	}
	return &Composer{opts: opts}
}

// Update feeds the composer the current flat text and caret. spans are the
// anchor spans of the mentions already in the document. A new or changed
// query schedules a debounced search; losing the trigger returns to Idle.
func (c *Composer) Update(flat string, caret int, spans []document.Span) State {
	t, ok := Detect(flat, caret, spans, c.opts.QueryLimit)

	c.mu.Lock()
	defer c.mu.Unlock()

	if !ok {
		if c.state == Composing {
			c.cancelLocked()
		}
		return c.state
	}
	if c.state == Composing && t.Offset == c.trigger.Offset && t.Query == c.trigger.Query {
		c.trigger.Caret = t.Caret
		return c.state
	}

	c.state = Composing
	c.trigger = t
	c.selected = 0
	c.searchLocked(t.Query)
	return c.state
}

func (c *Composer) searchLocked(query string) {
	c.releaseLocked()
	req := &request{done: make(chan struct{}), query: query}
	c.req = req
	req.seq = c.opts.Scheduler.Debounce(c.opts.Key, c.opts.Debounce, scheduler.Task{
		Name: "search " + query,
		Execute: func(ctx context.Context) error {
			start := time.Now()
			res, err := c.opts.Provider.Search(ctx, query)
			metrics.SearchDuration.Observe(time.Since(start).Seconds())
			c.deliver(req, res, err)
			return err
		},
	})
	if c.opts.Scheduler.Stopped() {
		// nothing will deliver; don't leave Results waiting
		log.Debugf("scheduler stopped, dropping search %q", query)
		c.releaseLocked()
	}
}

func (c *Composer) deliver(req *request, res search.Results, err error) {
	c.mu.Lock()
	if c.req != req || c.state != Composing {
		c.mu.Unlock()
		metrics.Searches.WithLabelValues("stale").Inc()
		return
	}
	if err != nil {
		log.Warningf("search %q failed: %v", req.query, err)
		metrics.Searches.WithLabelValues("error").Inc()
		c.candidates = nil
	} else {
		metrics.Searches.WithLabelValues("ok").Inc()
		c.candidates = res.Filter(c.opts.Categories...)
	}
	c.seq = req.seq
	c.selected = 0
	snap := c.snapshotLocked()
	snap.Pending = false
	c.mu.Unlock()

	// waiters in Results are released only after the listener has seen the
	// candidates
	if c.opts.OnResults != nil {
		c.opts.OnResults(snap)
	}

	c.mu.Lock()
	if c.req == req {
		c.releaseLocked()
	}
	c.mu.Unlock()
}

// releaseLocked wakes anyone waiting on the in-flight request.
func (c *Composer) releaseLocked() {
	if c.req != nil {
		close(c.req.done)
		c.req = nil
	}
}

// Results waits for the in-flight search, if any, and returns the state it
// left behind. A cancelled ctx returns the current state with ctx's error.
func (c *Composer) Results(ctx context.Context) (Snapshot, error) {
	for {
		c.mu.Lock()
		if c.req == nil || c.state != Composing {
			snap := c.snapshotLocked()
			c.mu.Unlock()
			return snap, nil
		}
		done := c.req.done
		c.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return c.Snapshot(), ctx.Err()
		}
	}
}

func (c *Composer) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Composer) snapshotLocked() Snapshot {
	return Snapshot{
		State:      c.state,
		Trigger:    c.trigger,
		Candidates: slices.Clone(c.candidates),
		Selected:   c.selected,
		Seq:        c.seq,
		Pending:    c.req != nil,
	}
}

func (c *Composer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Key moves the selection, or resolves to a commit or cancel. On
// ActionCommit the selected candidate is returned; the caller commits it.
func (c *Composer) Key(k Key) (Action, search.Candidate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Composing {
		return ActionNone, search.Candidate{}
	}

	switch k {
	case KeyUp:
		if c.selected > 0 {
			c.selected--
		}
		return ActionMove, search.Candidate{}
	case KeyDown:
		if c.selected < len(c.candidates)-1 {
			c.selected++
		}
		return ActionMove, search.Candidate{}
	case KeyEnter:
		if len(c.candidates) == 0 {
			return ActionNone, search.Candidate{}
		}
		return ActionCommit, c.candidates[c.selected]
	case KeyEscape:
		c.cancelLocked()
		return ActionCancel, search.Candidate{}
	}
	return ActionNone, search.Candidate{}
}

// Candidate returns the index-th candidate of the search numbered seq.
func (c *Composer) Candidate(seq uint64, index int) (search.Candidate, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Composing {
		return search.Candidate{}, ErrNotComposing
	}
	if seq != c.seq {
		return search.Candidate{}, fmt.Errorf("%w: seq %d, current %d", ErrStale, seq, c.seq)
	}
	if index < 0 || index >= len(c.candidates) {
		return search.Candidate{}, fmt.Errorf("%w: %d", ErrNoSuchCandidate, index)
	}
	return c.candidates[index], nil
}

// Commit replaces the "@query" range of doc with a mention of cand followed
// by a single space and returns to Idle. doc must render to the flat text
// last passed to Update. The returned caret sits after the space.
func (c *Composer) Commit(doc document.Document, cand search.Candidate) (document.Document, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Composing {
		return nil, 0, ErrNotComposing
	}
	if !slices.Contains(c.opts.Categories, cand.Category) {
		return nil, 0, fmt.Errorf("%w: %s", ErrCategoryDisabled, cand.Category)
	}
	tok, err := cand.Token()
	if err != nil {
		return nil, 0, err
	}

	t := c.trigger
	out, err := reconcile.Splice(doc, t.Offset, t.Caret, document.Mention{Token: tok}, document.Text{Content: " "})
	if err != nil {
		return nil, 0, err
	}
	caret := t.Offset + len(document.Anchor(tok)) + 1

	c.cancelLocked()
	metrics.InsertedMentions.WithLabelValues(cand.Category.String()).Inc()
	log.Debugf("committed %s %d at %d", cand.Category, cand.ID, t.Offset)
	return out, caret, nil
}

// Cancel abandons the gesture. The typed "@query" stays as plain text.
func (c *Composer) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelLocked()
}

// Blur is Cancel on focus loss.
func (c *Composer) Blur() {
	c.Cancel()
}

func (c *Composer) cancelLocked() {
	if c.req != nil {
		c.opts.Scheduler.Cancel(c.opts.Key)
	}
	c.releaseLocked()
	c.state = Idle
	c.trigger = Trigger{}
	c.candidates = nil
	c.selected = 0
}
