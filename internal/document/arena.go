package document

import (
	"fmt"
	"sync"

	"github.com/orbitinghail/sqlsync/internal/journal"
)

// Arena is the coordinator daemon's registry of open documents, indexed
// by document ID, so an incoming connection can be routed to the right
// CoordinatorDocument (or spin up a fresh one).
type Arena struct {
	mu   sync.Mutex
	docs map[journal.ID]*CoordinatorDocument
}

// NewArena returns an empty arena.
func NewArena() *Arena {
	return &Arena{docs: make(map[journal.ID]*CoordinatorDocument)}
}

// GetOrCreate returns the existing document for id, or calls create and
// registers its result if none exists yet.
func (a *Arena) GetOrCreate(id journal.ID, create func() (*CoordinatorDocument, error)) (*CoordinatorDocument, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if d, ok := a.docs[id]; ok {
		return d, nil
	}
	d, err := create()
	if err != nil {
		return nil, fmt.Errorf("arena: create document %s: %w", id, err)
	}
	a.docs[id] = d
	return d, nil
}

// Get returns the document for id, if open.
func (a *Arena) Get(id journal.ID) (*CoordinatorDocument, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	d, ok := a.docs[id]
	return d, ok
}

// Len reports how many documents are currently open.
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.docs)
}
