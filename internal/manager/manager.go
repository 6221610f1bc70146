package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"mentions/internal/compose"
	"mentions/internal/document"
	"mentions/internal/metrics"
	"mentions/internal/reconcile"
	"mentions/internal/scheduler"
	"mentions/internal/search"
	"mentions/internal/store"
	"mentions/internal/textpos"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("mentions.manager")

var (
	ErrNotOpen         = errors.New("document not open")
	ErrStaleCompletion = errors.New("stale completion")
)

// Store persists serialized documents by key.
type Store interface {
	Load(ctx context.Context, key string) (string, error)
	Save(ctx context.Context, key, content string) (bool, error)
}

type Options struct {
	Provider  search.Provider
	Scheduler *scheduler.Scheduler
	// Store is optional; without one documents live only while open.
	Store      Store
	MaxLength  int
	QueryLimit int
	Debounce   time.Duration
	Categories []document.Category
}

type session struct {
	uri      string
	version  int32
	doc      document.Document
	flat     string
	caret    int
	rev      uint64
	savedRev uint64
	composer *compose.Composer
}

// Snapshot is a copy of a session's state.
type Snapshot struct {
	URI     string
	Version int32
	Doc     document.Document
	Flat    string
	Caret   int
	// Overflow is set when Flat is longer than the configured maximum.
	Overflow bool
	Compose  compose.Snapshot
}

// DocumentManager holds one session per open URI: its structured
// Document, the flat text mirror of the editor buffer and a composer.
type DocumentManager struct {
	opts Options

	mu        sync.Mutex
	sessions  map[string]*session
	listeners []func(Event)
}

func NewDocumentManager(opts Options) *DocumentManager {
	if opts.MaxLength <= 0 {
		opts.MaxLength = 2000
	}
	return &DocumentManager{
		opts:     opts,
		sessions: make(map[string]*session),
	}
}

// Open starts a session for uri. The stored serialization, if any, is
// reconciled with text so mentions survive across editor restarts.
func (dm *DocumentManager) Open(ctx context.Context, uri string, version int32, text string) (Snapshot, error) {
	prev := document.Empty()
	if dm.opts.Store != nil {
		stored, err := dm.opts.Store.Load(ctx, uri)
		switch {
		case err == nil:
			prev = document.Deserialize(stored)
		case errors.Is(err, store.ErrNotFound):
		default:
			log.Warningf("failed to load %s, starting without mentions: %v", uri, err)
		}
	}
	res := reconcile.Reconcile(prev, text)

	dm.mu.Lock()
	if old, ok := dm.sessions[uri]; ok {
		old.composer.Cancel()
	} else {
		metrics.OpenDocuments.Inc()
	}
	s := &session{
		uri:     uri,
		version: version,
		doc:     res.Document,
		flat:    text,
		caret:   len(text),
		composer: compose.New(compose.Options{
			Provider:   dm.opts.Provider,
			Scheduler:  dm.opts.Scheduler,
			Key:        uri,
			Debounce:   dm.opts.Debounce,
			QueryLimit: dm.opts.QueryLimit,
			Categories: dm.opts.Categories,
			OnResults: func(snap compose.Snapshot) {
				dm.notify(Event{Op: EventResults, URI: uri, Compose: snap})
			},
		}),
	}
	if res.Changed() {
		s.rev++
	}
	dm.sessions[uri] = s
	snap := dm.snapshotLocked(s)
	dm.mu.Unlock()

	log.Infof("opened %s with %d mentions", uri, len(document.Mentions(snap.Doc)))
	dm.notify(Event{Op: EventOpen, URI: uri, Doc: snap.Doc})
	return snap, nil
}

// ApplyChanges applies LSP content changes in order, then reconciles the
// Document with the resulting text and feeds the composer.
func (dm *DocumentManager) ApplyChanges(uri string, version int32, changes []any) (Snapshot, error) {
	dm.mu.Lock()
	s, ok := dm.sessions[uri]
	if !ok {
		dm.mu.Unlock()
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNotOpen, uri)
	}

	flat, caret := s.flat, s.caret
	for _, change := range changes {
		var err error
		flat, caret, err = textpos.Apply(flat, change)
		if err != nil {
			dm.mu.Unlock()
			return Snapshot{}, fmt.Errorf("failed to apply change to %s: %w", uri, err)
		}
	}

	res := reconcile.Reconcile(s.doc, flat)
	metrics.Reconciliations.Inc()
	metrics.DroppedMentions.Add(float64(len(res.Dropped)))
	for _, tok := range res.Dropped {
		log.Debugf("%s: dropped %s mention %q", uri, tok.Category(), tok.DisplayName())
	}

	if res.Changed() || flat != s.flat {
		s.rev++
	}
	s.doc, s.flat, s.caret, s.version = res.Document, flat, caret, version
	s.composer.Update(flat, caret, document.Anchors(s.doc))
	snap := dm.snapshotLocked(s)
	dm.mu.Unlock()

	dm.notify(Event{Op: EventChange, URI: uri, Doc: snap.Doc})
	return snap, nil
}

// Edit is a flat-text replacement of [Start, End) by Text, in byte offsets
// of Before.
type Edit struct {
	Start  int
	End    int
	Text   string
	Before string
	// Caret is where the editor caret belongs after the edit.
	Caret int
	Token document.Token
}

// Commit inserts candidate index of result set seq as a mention. The
// Document is updated immediately; the returned Edit is what the editor
// buffer must apply to stay in sync. The flat mirror follows once the
// editor reports the edit back as a change.
func (dm *DocumentManager) Commit(uri string, seq uint64, index int) (Edit, error) {
	dm.mu.Lock()
	s, ok := dm.sessions[uri]
	if !ok {
		dm.mu.Unlock()
		return Edit{}, fmt.Errorf("%w: %s", ErrNotOpen, uri)
	}

	cand, err := s.composer.Candidate(seq, index)
	if errors.Is(err, compose.ErrStale) || errors.Is(err, compose.ErrNotComposing) {
		dm.mu.Unlock()
		return Edit{}, fmt.Errorf("%w: %v", ErrStaleCompletion, err)
	} else if err != nil {
		dm.mu.Unlock()
		return Edit{}, err
	}

	return dm.commitLocked(uri, s, cand)
}

// commitLocked splices cand into the session and unlocks dm.mu.
func (dm *DocumentManager) commitLocked(uri string, s *session, cand search.Candidate) (Edit, error) {
	trigger := s.composer.Snapshot().Trigger
	doc, caret, err := s.composer.Commit(s.doc, cand)
	if err != nil {
		dm.mu.Unlock()
		return Edit{}, fmt.Errorf("failed to commit %s: %w", cand.Name, err)
	}
	tok, _ := cand.Token()
	edit := Edit{
		Start:  trigger.Offset,
		End:    trigger.Caret,
		Text:   document.Anchor(tok) + " ",
		Before: s.flat,
		Caret:  caret,
		Token:  tok,
	}
	s.doc = doc
	s.rev++
	dm.mu.Unlock()

	log.Infof("%s: inserted %s %q", uri, tok.Category(), tok.DisplayName())
	dm.notify(Event{Op: EventCommit, URI: uri, Doc: doc})
	return edit, nil
}

// Key forwards a navigation key to the composer of uri. Enter commits the
// selected candidate and returns its Edit; every other action returns a
// zero Edit.
func (dm *DocumentManager) Key(uri string, k compose.Key) (compose.Action, Edit, error) {
	dm.mu.Lock()
	s, ok := dm.sessions[uri]
	if !ok {
		dm.mu.Unlock()
		return compose.ActionNone, Edit{}, fmt.Errorf("%w: %s", ErrNotOpen, uri)
	}

	action, cand := s.composer.Key(k)
	if action != compose.ActionCommit {
		dm.mu.Unlock()
		return action, Edit{}, nil
	}
	edit, err := dm.commitLocked(uri, s, cand)
	return action, edit, err
}

// Cancel abandons the composer gesture of uri, if any.
func (dm *DocumentManager) Cancel(uri string) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	s, ok := dm.sessions[uri]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotOpen, uri)
	}
	s.composer.Cancel()
	return nil
}

// Completion waits for the pending search of uri and returns the session.
func (dm *DocumentManager) Completion(ctx context.Context, uri string) (Snapshot, error) {
	dm.mu.Lock()
	s, ok := dm.sessions[uri]
	dm.mu.Unlock()
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNotOpen, uri)
	}

	if _, err := s.composer.Results(ctx); err != nil {
		log.Debugf("%s: completion returned before search finished: %v", uri, err)
	}
	return dm.Snapshot(uri)
}

func (dm *DocumentManager) Snapshot(uri string) (Snapshot, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	s, ok := dm.sessions[uri]
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNotOpen, uri)
	}
	return dm.snapshotLocked(s), nil
}

// URIs lists the open documents.
func (dm *DocumentManager) URIs() []string {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	uris := make([]string, 0, len(dm.sessions))
	for uri := range dm.sessions {
		uris = append(uris, uri)
	}
	return uris
}

func (dm *DocumentManager) snapshotLocked(s *session) Snapshot {
	return Snapshot{
		URI:      s.uri,
		Version:  s.version,
		Doc:      append(document.Document(nil), s.doc...),
		Flat:     s.flat,
		Caret:    s.caret,
		Overflow: utf8.RuneCountInString(s.flat) > dm.opts.MaxLength,
		Compose:  s.composer.Snapshot(),
	}
}

// Save persists the Document of uri if it changed since the last save.
func (dm *DocumentManager) Save(ctx context.Context, uri string) error {
	dm.mu.Lock()
	s, ok := dm.sessions[uri]
	if !ok {
		dm.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotOpen, uri)
	}
	rev, doc := s.rev, s.doc
	dirty := s.rev != s.savedRev
	dm.mu.Unlock()

	if !dirty || dm.opts.Store == nil {
		return nil
	}
	return dm.save(ctx, s, rev, doc)
}

func (dm *DocumentManager) save(ctx context.Context, s *session, rev uint64, doc document.Document) error {
	content, err := document.Serialize(doc)
	if err != nil {
		return fmt.Errorf("failed to serialize %s: %w", s.uri, err)
	}
	if _, err := dm.opts.Store.Save(ctx, s.uri, content); err != nil {
		return fmt.Errorf("failed to save %s: %w", s.uri, err)
	}

	dm.mu.Lock()
	if rev > s.savedRev {
		s.savedRev = rev
	}
	dm.mu.Unlock()
	dm.notify(Event{Op: EventSave, URI: s.uri, Doc: doc})
	return nil
}

// SaveAll persists every changed session. It is the autosave task.
func (dm *DocumentManager) SaveAll(ctx context.Context) error {
	if dm.opts.Store == nil {
		return nil
	}

	type pendingSave struct {
		s   *session
		rev uint64
		doc document.Document
	}
	dm.mu.Lock()
	var todo []pendingSave
	for _, s := range dm.sessions {
		if s.rev != s.savedRev {
			todo = append(todo, pendingSave{s: s, rev: s.rev, doc: s.doc})
		}
	}
	dm.mu.Unlock()

	var errs []error
	for _, p := range todo {
		if err := dm.save(ctx, p.s, p.rev, p.doc); err != nil {
			errs = append(errs, err)
		}
	}
	if len(todo) > 0 {
		log.Debugf("autosaved %d documents", len(todo)-len(errs))
	}
	return errors.Join(errs...)
}

// Close saves and releases the session of uri.
func (dm *DocumentManager) Close(ctx context.Context, uri string) error {
	err := dm.Save(ctx, uri)
	if errors.Is(err, ErrNotOpen) {
		return err
	}

	dm.mu.Lock()
	if s, ok := dm.sessions[uri]; ok {
		s.composer.Cancel()
		delete(dm.sessions, uri)
		metrics.OpenDocuments.Dec()
	}
	dm.mu.Unlock()

	dm.notify(Event{Op: EventClose, URI: uri})
	return err
}

// CloseAll saves and releases every session.
func (dm *DocumentManager) CloseAll(ctx context.Context) error {
	var errs []error
	for _, uri := range dm.URIs() {
		if err := dm.Close(ctx, uri); err != nil && !errors.Is(err, ErrNotOpen) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
