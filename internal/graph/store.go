// Store wraps the pure graph core with locking and change notification.

package graph

import (
	"sync"
	"time"

	"conceptarium/internal/models"
)

// Change describes one applied command: which entities now differ from the
// previous snapshot. Detection is by pointer inequality on the map entries,
// not deep comparison.
type Change struct {
	Gen       uint64
	Documents []string
	Drawings  []string
}

// Listener receives change notifications. Called synchronously under no
// lock, after the mutation committed.
type Listener func(Change)

// Store is the process-scoped live graph. All components read and mutate
// the graph through it, never by direct field access, so the invariants the
// pure core maintains are preserved.
//
// The zero value is not usable; call NewStore.
type Store struct {
	mu        sync.RWMutex
	graph     Graph
	gen       uint64
	listeners []Listener

	catMu      sync.RWMutex
	categories map[string]*models.Category
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		graph:      NewGraph(),
		categories: map[string]*models.Category{},
	}
}

// Reset clears all state. Intended for tests and for full reloads.
func (s *Store) Reset() {
	s.mu.Lock()
	s.graph = NewGraph()
	s.gen++
	s.mu.Unlock()
	s.catMu.Lock()
	s.categories = map[string]*models.Category{}
	s.catMu.Unlock()
}

// Subscribe registers a change listener. Must be called before mutations
// begin; there is no unsubscribe.
func (s *Store) Subscribe(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Apply runs a command against the live graph.
func (s *Store) Apply(cmd Command) error {
	s.mu.Lock()
	prev := s.graph
	next, err := Apply(prev, cmd)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	var change Change
	changed := false
	for name, d := range next.Documents {
		if prev.Documents[name] != d {
			change.Documents = append(change.Documents, name)
			changed = true
		}
	}
	for name := range prev.Documents {
		if _, ok := next.Documents[name]; !ok {
			change.Documents = append(change.Documents, name)
			changed = true
		}
	}
	for name, d := range next.Drawings {
		if prev.Drawings[name] != d {
			change.Drawings = append(change.Drawings, name)
			changed = true
		}
	}
	for name := range prev.Drawings {
		if _, ok := next.Drawings[name]; !ok {
			change.Drawings = append(change.Drawings, name)
			changed = true
		}
	}
	if !changed {
		// No-op update: nothing to notify, generation unchanged.
		s.mu.Unlock()
		return nil
	}
	s.graph = next
	s.gen++
	change.Gen = s.gen
	listeners := s.listeners
	s.mu.Unlock()

	for _, l := range listeners {
		l(change)
	}
	return nil
}

// Snapshot returns the current immutable graph. Safe to hold and read
// concurrently with later mutations; callers must not mutate it.
func (s *Store) Snapshot() Graph {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph
}

// Gen returns the current mutation generation.
func (s *Store) Gen() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

// Document returns a copy of the named document.
func (s *Store) Document(name string) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.graph.Documents[name]
	if !ok {
		return nil, &models.NotFoundError{Name: name}
	}
	return d.Clone(), nil
}

// Drawing returns a copy of the named drawing.
func (s *Store) Drawing(name string) (*models.Drawing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.graph.Drawings[name]
	if !ok {
		return nil, &models.NotFoundError{Name: name}
	}
	return d.Clone(), nil
}

// Navigate implements lazy creation: it returns the named document,
// creating an empty one first when it does not exist. backrefFrom names the
// entity the user navigated from, or is empty.
func (s *Store) Navigate(name, backrefFrom string) (*models.Document, error) {
	if d, err := s.Document(name); err == nil {
		return d, nil
	}
	err := s.Apply(CreateDocument{
		Name:        name,
		Content:     models.EmptyContent(),
		BackrefFrom: backrefFrom,
		Now:         time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return s.Document(name)
}

// Cleanup applies the navigate-away rule: a document is deleted when its
// content is empty and nothing references it; otherwise it is retained as a
// stub. Reports whether the document was removed.
func (s *Store) Cleanup(name string) (bool, error) {
	s.mu.RLock()
	d, ok := s.graph.Documents[name]
	var empty, referenced bool
	if ok {
		empty = models.IsEmptyContent(d.Content)
		referenced = len(d.BackReferences) > 0
	}
	s.mu.RUnlock()
	if !ok {
		return false, &models.NotFoundError{Name: name}
	}
	if !empty || referenced {
		return false, nil
	}
	if err := s.Apply(DeleteDocument{Name: name}); err != nil {
		return false, err
	}
	return true, nil
}

// Categories are a flat cosmetic table, local to this client and excluded
// from sync and merge.

// UpsertCategory stores a category.
func (s *Store) UpsertCategory(c models.Category) {
	s.catMu.Lock()
	defer s.catMu.Unlock()
	cc := c
	s.categories[c.ID] = &cc
}

// Categories returns a copy of all categories.
func (s *Store) Categories() []models.Category {
	s.catMu.RLock()
	defer s.catMu.RUnlock()
	out := make([]models.Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, *c)
	}
	return out
}

// DeleteCategory removes a category. Documents keep their CategoryID; a
// dangling id renders as uncategorized.
func (s *Store) DeleteCategory(id string) {
	s.catMu.Lock()
	defer s.catMu.Unlock()
	delete(s.categories, id)
}
