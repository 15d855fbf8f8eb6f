package repository

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/spec-kit/support-bot/internal/domain"
)

// SelectionTable correlates a user with the category their next private message is about.
type SelectionTable interface {
	Put(owner string, category domain.Category) domain.PendingSelection
	Take(owner string) (domain.PendingSelection, bool)
	Sweep() int
	Len() int
}

type selectionTable struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	ttl     time.Duration
	entries map[string]domain.PendingSelection
}

// NewSelectionTable builds a table whose entries expire after ttl.
func NewSelectionTable(clock clockwork.Clock, ttl time.Duration) SelectionTable {
	return &selectionTable{
		clock:   clock,
		ttl:     ttl,
		entries: make(map[string]domain.PendingSelection),
	}
}

// Put records a selection, replacing any unconsumed one.
func (t *selectionTable) Put(owner string, category domain.Category) domain.PendingSelection {
	now := t.clock.Now()
	sel := domain.PendingSelection{
		Owner:     owner,
		Category:  category,
		CreatedAt: now,
		ExpiresAt: now.Add(t.ttl),
	}
	t.mu.Lock()
	t.entries[owner] = sel
	t.mu.Unlock()
	return sel
}

// Take consumes the selection of owner. Expired entries are dropped and reported as absent.
func (t *selectionTable) Take(owner string) (domain.PendingSelection, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sel, ok := t.entries[owner]
	if !ok {
		return domain.PendingSelection{}, false
	}
	delete(t.entries, owner)
	if sel.Expired(t.clock.Now()) {
		return domain.PendingSelection{}, false
	}
	return sel, true
}

// Sweep evicts expired entries and returns how many were removed.
func (t *selectionTable) Sweep() int {
	now := t.clock.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	evicted := 0
	for owner, sel := range t.entries {
		if sel.Expired(now) {
			delete(t.entries, owner)
			evicted++
		}
	}
	return evicted
}

func (t *selectionTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
