// Package catalog holds the in-memory collection of registered book covers.
package catalog

import (
	"errors"
	"sync"

	"github.com/example/bookcover/internal/descriptor"
)

var (
	// ErrDuplicateID is returned when a book id is already registered.
	ErrDuplicateID = errors.New("catalog: book id already registered")

	// ErrNotFound is returned when a book id is not in the catalog.
	ErrNotFound = errors.New("catalog: book not found")
)

// Entry is one registered book cover. Entries are immutable after
// registration; they are replaced, never mutated.
type Entry struct {
	// BookID uniquely identifies the book.
	BookID string

	// Name is the display name of the book.
	Name string

	// ImageSHA1 references the cover image the descriptors were extracted
	// from.
	ImageSHA1 string

	// Descriptors is the feature set extracted at registration time.
	Descriptors descriptor.Set
}

// Catalog maps book ids to entries and preserves insertion order, which is
// the iteration order recognition scans see. It is safe for concurrent use;
// scans operate on snapshots so writers never interleave with an in-flight
// scan.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	order   []string
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{entries: make(map[string]*Entry)}
}

// Add registers an entry. It fails with ErrDuplicateID if the id is already
// present, leaving the catalog unchanged.
func (c *Catalog) Add(entry *Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[entry.BookID]; ok {
		return ErrDuplicateID
	}
	c.entries[entry.BookID] = entry
	c.order = append(c.order, entry.BookID)
	return nil
}

// Remove deletes an entry by id.
func (c *Catalog) Remove(bookID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[bookID]; !ok {
		return ErrNotFound
	}
	delete(c.entries, bookID)
	for i, id := range c.order {
		if id == bookID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

// Get returns the entry for a book id.
func (c *Catalog) Get(bookID string) (*Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[bookID]
	if !ok {
		return nil, ErrNotFound
	}
	return entry, nil
}

// Len returns the number of registered entries.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Snapshot returns the entries in insertion order. The returned slice is a
// copy; the entries themselves are shared but immutable.
func (c *Catalog) Snapshot() []*Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Entry, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.entries[id])
	}
	return out
}
