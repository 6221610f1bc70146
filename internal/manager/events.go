package manager

import (
	"slices"

	"mentions/internal/compose"
	"mentions/internal/document"
)

type EventOp string

const (
	EventOpen    EventOp = "open"
	EventChange  EventOp = "change"
	EventCommit  EventOp = "commit"
	EventSave    EventOp = "save"
	EventClose   EventOp = "close"
	EventResults EventOp = "results"
)

// Event describes a session mutation. Doc is set for open, change, commit
// and save; Compose for results.
type Event struct {
	Op      EventOp
	URI     string
	Doc     document.Document
	Compose compose.Snapshot
}

// Subscribe registers fn for every subsequent event. fn runs on the
// goroutine that caused the event, outside the manager's lock.
func (dm *DocumentManager) Subscribe(fn func(Event)) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.listeners = append(dm.listeners, fn)
}

func (dm *DocumentManager) notify(e Event) {
	dm.mu.Lock()
	listeners := slices.Clone(dm.listeners)
	dm.mu.Unlock()

	for _, fn := range listeners {
		fn(e)
	}
}
