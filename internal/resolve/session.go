// Package resolve implements the manual conflict resolution contract.
//
// When the automatic merge leaves conflicts, a Session captures exactly the
// flagged entities with their local and remote versions; everything else is
// already resolved in the merged graph and is not re-shown. The user picks
// or edits a winner per entity; Finalize folds the picks back into the
// merged graph and hands it to the sync engine for upload.
package resolve

import (
	"fmt"
	"slices"
	"sync"

	"conceptarium/internal/graph"
	"conceptarium/internal/merge"
	"conceptarium/internal/models"
)

// Choice is a user decision for one conflicted entity.
type Choice string

const (
	// ChoiceLeft keeps the local version (or the local deletion).
	ChoiceLeft Choice = "left"
	// ChoiceRight keeps the remote version (or the remote deletion).
	ChoiceRight Choice = "right"
	// ChoiceEdit replaces the entity with user-edited content.
	ChoiceEdit Choice = "edit"
)

// Conflict is one entity awaiting resolution. Nil versions mean the entity
// does not exist on that side (deletion conflicts).
type Conflict struct {
	Name string             `json:"name"`
	Kind merge.ConflictKind `json:"kind"`

	LeftDocument   *models.Document `json:"leftDocument,omitempty"`
	RightDocument  *models.Document `json:"rightDocument,omitempty"`
	MergedDocument *models.Document `json:"mergedDocument,omitempty"`

	LeftDrawing   *models.Drawing `json:"leftDrawing,omitempty"`
	RightDrawing  *models.Drawing `json:"rightDrawing,omitempty"`
	MergedDrawing *models.Drawing `json:"mergedDrawing,omitempty"`

	// Diff is a human-readable rendering of left vs right for display.
	Diff string `json:"diff"`

	Choice Choice `json:"choice,omitempty"`
}

type pick struct {
	choice   Choice
	content  []*models.Node   // ChoiceEdit, documents
	elements []*models.Element // ChoiceEdit, drawings
}

// Session tracks the resolution of one merge attempt.
type Session struct {
	mu        sync.Mutex
	merged    graph.Graph
	conflicts []*Conflict
	byName    map[string]*Conflict
	drawings  map[string]bool // conflict name → is drawing
	picks     map[string]pick
}

// NewSession builds a session from a merge result and the two divergent
// graphs it was computed from.
func NewSession(result merge.Result, left, right graph.Graph) *Session {
	s := &Session{
		merged:   result.Merged,
		byName:   map[string]*Conflict{},
		drawings: map[string]bool{},
		picks:    map[string]pick{},
	}
	for _, c := range result.DocumentConflicts {
		conflict := &Conflict{
			Name:           c.Name,
			Kind:           c.Kind,
			LeftDocument:   left.Documents[c.Name].Clone(),
			RightDocument:  right.Documents[c.Name].Clone(),
			MergedDocument: result.Merged.Documents[c.Name].Clone(),
		}
		conflict.Diff = documentDiff(conflict.LeftDocument, conflict.RightDocument)
		s.conflicts = append(s.conflicts, conflict)
		s.byName[c.Name] = conflict
	}
	for _, c := range result.DrawingConflicts {
		conflict := &Conflict{
			Name:          c.Name,
			Kind:          c.Kind,
			LeftDrawing:   left.Drawings[c.Name].Clone(),
			RightDrawing:  right.Drawings[c.Name].Clone(),
			MergedDrawing: result.Merged.Drawings[c.Name].Clone(),
		}
		conflict.Diff = drawingDiff(conflict.LeftDrawing, conflict.RightDrawing)
		s.conflicts = append(s.conflicts, conflict)
		s.byName[c.Name] = conflict
		s.drawings[c.Name] = true
	}
	slices.SortFunc(s.conflicts, func(a, b *Conflict) int {
		if a.Name < b.Name {
			return -1
		}
		if a.Name > b.Name {
			return 1
		}
		return 0
	})
	return s
}

// Conflicts returns the flagged entities in name order.
func (s *Session) Conflicts() []Conflict {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Conflict, len(s.conflicts))
	for i, c := range s.conflicts {
		out[i] = *c
	}
	return out
}

// ChooseLeft keeps the local version of the named entity.
func (s *Session) ChooseLeft(name string) error {
	return s.choose(name, ChoiceLeft)
}

// ChooseRight keeps the remote version of the named entity.
func (s *Session) ChooseRight(name string) error {
	return s.choose(name, ChoiceRight)
}

func (s *Session) choose(name string, choice Choice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byName[name]
	if !ok {
		return &models.NotFoundError{Name: name}
	}
	c.Choice = choice
	s.picks[name] = pick{choice: choice}
	return nil
}

// EditDocument resolves a document conflict with user-edited content.
func (s *Session) EditDocument(name string, content []*models.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byName[name]
	if !ok || s.drawings[name] {
		return &models.NotFoundError{Name: name}
	}
	c.Choice = ChoiceEdit
	s.picks[name] = pick{choice: ChoiceEdit, content: models.CloneNodes(content)}
	return nil
}

// EditDrawing resolves a drawing conflict with user-edited elements.
func (s *Session) EditDrawing(name string, elements []*models.Element) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byName[name]
	if !ok || !s.drawings[name] {
		return &models.NotFoundError{Name: name}
	}
	c.Choice = ChoiceEdit
	els := make([]*models.Element, len(elements))
	for i, e := range elements {
		el := *e
		els[i] = &el
	}
	s.picks[name] = pick{choice: ChoiceEdit, elements: els}
	return nil
}

// Resolved reports whether every conflict has a decision.
func (s *Session) Resolved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.picks) == len(s.conflicts)
}

// Finalize folds the decisions into the merged graph. Fails unless every
// conflict is resolved. The result is rebuilt through the store operations
// so hashes and back-references are consistent.
func (s *Session) Finalize() (graph.Graph, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.picks) != len(s.conflicts) {
		return graph.Graph{}, fmt.Errorf("%d of %d conflicts still unresolved", len(s.conflicts)-len(s.picks), len(s.conflicts))
	}

	docs := map[string]*models.Document{}
	drawings := map[string]*models.Drawing{}
	for name, d := range s.merged.Documents {
		docs[name] = d
	}
	for name, d := range s.merged.Drawings {
		drawings[name] = d
	}

	for _, c := range s.conflicts {
		p := s.picks[c.Name]
		if s.drawings[c.Name] {
			chosen := resolveDrawing(c, p)
			if chosen == nil {
				delete(drawings, c.Name)
			} else {
				drawings[c.Name] = chosen
			}
			continue
		}
		chosen := resolveDocument(c, p)
		if chosen == nil {
			delete(docs, c.Name)
		} else {
			docs[c.Name] = chosen
		}
	}
	return merge.Rebuild(docs, drawings)
}

func resolveDocument(c *Conflict, p pick) *models.Document {
	switch p.choice {
	case ChoiceLeft:
		return c.LeftDocument
	case ChoiceRight:
		return c.RightDocument
	default:
		base := c.MergedDocument
		if base == nil {
			base = c.LeftDocument
		}
		if base == nil {
			base = c.RightDocument
		}
		out := base.Clone()
		out.Content = p.content
		return out
	}
}

func resolveDrawing(c *Conflict, p pick) *models.Drawing {
	switch p.choice {
	case ChoiceLeft:
		return c.LeftDrawing
	case ChoiceRight:
		return c.RightDrawing
	default:
		base := c.MergedDrawing
		if base == nil {
			base = c.LeftDrawing
		}
		if base == nil {
			base = c.RightDrawing
		}
		out := base.Clone()
		out.Elements = p.elements
		return out
	}
}
