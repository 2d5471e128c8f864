// Tagged commands and the pure transition function that applies them.

package graph

import (
	"time"

	"conceptarium/internal/models"
	"conceptarium/internal/refs"
)

// Command is the closed set of graph mutations. Apply switches exhaustively
// over it.
type Command interface {
	isCommand()
}

// CreateDocument creates a document under a not-yet-used name.
type CreateDocument struct {
	Name        string
	DisplayName string
	CategoryID  string
	Content     []*models.Node
	// BackrefFrom optionally seeds the new document's back-references with
	// the entity the user navigated from.
	BackrefFrom string
	Now         time.Time
}

// UpdateDocument replaces a document's content.
type UpdateDocument struct {
	Name    string
	Content []*models.Node
	Now     time.Time
}

// DeleteDocument removes a document if nothing references it.
type DeleteDocument struct {
	Name string
}

// CreateDrawing creates a drawing under a not-yet-used name.
type CreateDrawing struct {
	Name        string
	Elements    []*models.Element
	Size        models.Size
	FilesIDs    []string
	BackrefFrom string
	Now         time.Time
}

// UpdateDrawing replaces a drawing's canvas state.
type UpdateDrawing struct {
	Name     string
	Elements []*models.Element
	Size     models.Size
	FilesIDs []string
	Now      time.Time
}

// DeleteDrawing removes a drawing if nothing references it.
type DeleteDrawing struct {
	Name string
}

// ReplaceAll swaps in a complete graph, bypassing incremental bookkeeping.
// The loaded graph is assumed already consistent (it comes from a fetch or
// a merge, both of which produce consistent graphs).
type ReplaceAll struct {
	Documents map[string]*models.Document
	Drawings  map[string]*models.Drawing
}

func (CreateDocument) isCommand() {}
func (UpdateDocument) isCommand() {}
func (DeleteDocument) isCommand() {}
func (CreateDrawing) isCommand()  {}
func (UpdateDrawing) isCommand()  {}
func (DeleteDrawing) isCommand()  {}
func (ReplaceAll) isCommand()     {}

// Apply runs a command against a snapshot and returns the next snapshot.
// It never mutates its input; on error the input graph is returned
// unchanged. The back-reference symmetry invariant holds on every graph
// Apply returns.
func Apply(g Graph, cmd Command) (Graph, error) {
	switch c := cmd.(type) {
	case CreateDocument:
		return applyCreateDocument(g, c)
	case UpdateDocument:
		return applyUpdateDocument(g, c)
	case DeleteDocument:
		return applyDeleteDocument(g, c)
	case CreateDrawing:
		return applyCreateDrawing(g, c)
	case UpdateDrawing:
		return applyUpdateDrawing(g, c)
	case DeleteDrawing:
		return applyDeleteDrawing(g, c)
	case ReplaceAll:
		return applyReplaceAll(c)
	}
	// Command is a closed set; reaching here means a new variant was added
	// without extending this switch.
	panic("graph: unknown command")
}

func applyCreateDocument(g Graph, c CreateDocument) (Graph, error) {
	if g.Has(c.Name) {
		return g, &models.DuplicateNameError{Name: c.Name}
	}
	references := refs.Extract(c.Content)
	backRefs := g.seedBackRefs(c.Name, c.BackrefFrom)
	doc := &models.Document{
		Name:               c.Name,
		DisplayName:        c.DisplayName,
		CategoryID:         c.CategoryID,
		Content:            models.CloneNodes(c.Content),
		ContentHash:        refs.HashContent(c.Content),
		References:         references,
		ReferencesHash:     refs.HashNames(references),
		BackReferences:     backRefs,
		BackReferencesHash: refs.HashNames(backRefs),
		CreatedDate:        c.Now,
		LastUpdatedDate:    c.Now,
	}
	next := g.shallow()
	next.Documents[c.Name] = doc
	for _, target := range references {
		if target != c.Name {
			next.addBackRef(target, c.Name)
		}
	}
	return next, nil
}

func applyUpdateDocument(g Graph, c UpdateDocument) (Graph, error) {
	old, ok := g.Documents[c.Name]
	if !ok {
		return g, &models.NotFoundError{Name: c.Name}
	}
	newHash := refs.HashContent(c.Content)
	if newHash == old.ContentHash {
		// No-churn guarantee: identical content leaves the graph, including
		// LastUpdatedDate, untouched.
		return g, nil
	}
	newRefs := refs.Extract(c.Content)
	doc := old.Clone()
	doc.Content = models.CloneNodes(c.Content)
	doc.ContentHash = newHash
	doc.References = newRefs
	doc.ReferencesHash = refs.HashNames(newRefs)
	doc.LastUpdatedDate = c.Now

	next := g.shallow()
	next.Documents[c.Name] = doc
	for _, target := range newRefs {
		if target != c.Name && !contains(old.References, target) {
			next.addBackRef(target, c.Name)
		}
	}
	for _, target := range old.References {
		if target != c.Name && !contains(newRefs, target) {
			next.removeBackRef(target, c.Name)
		}
	}
	return next, nil
}

func applyDeleteDocument(g Graph, c DeleteDocument) (Graph, error) {
	if _, ok := g.Documents[c.Name]; !ok {
		return g, &models.NotFoundError{Name: c.Name}
	}
	if referrers := g.referrers(c.Name); len(referrers) > 0 {
		return g, &models.ReferencedEntityError{Name: c.Name, Referrers: referrers}
	}
	next := g.shallow()
	delete(next.Documents, c.Name)
	next.stripBackRef(c.Name)
	return next, nil
}

func applyCreateDrawing(g Graph, c CreateDrawing) (Graph, error) {
	if g.Has(c.Name) {
		return g, &models.DuplicateNameError{Name: c.Name}
	}
	backRefs := g.seedBackRefs(c.Name, c.BackrefFrom)
	drw := &models.Drawing{
		Name:               c.Name,
		Elements:           cloneElements(c.Elements),
		Size:               c.Size,
		FilesIDs:           cloneStrings(c.FilesIDs),
		ContentHash:        refs.HashElements(c.Elements, c.Size, c.FilesIDs),
		BackReferences:     backRefs,
		BackReferencesHash: refs.HashNames(backRefs),
		CreatedDate:        c.Now,
		LastUpdatedDate:    c.Now,
	}
	next := g.shallow()
	next.Drawings[c.Name] = drw
	return next, nil
}

func applyUpdateDrawing(g Graph, c UpdateDrawing) (Graph, error) {
	old, ok := g.Drawings[c.Name]
	if !ok {
		return g, &models.NotFoundError{Name: c.Name}
	}
	newHash := refs.HashElements(c.Elements, c.Size, c.FilesIDs)
	if newHash == old.ContentHash {
		return g, nil
	}
	drw := old.Clone()
	drw.Elements = cloneElements(c.Elements)
	drw.Size = c.Size
	drw.FilesIDs = cloneStrings(c.FilesIDs)
	drw.ContentHash = newHash
	drw.LastUpdatedDate = c.Now
	next := g.shallow()
	next.Drawings[c.Name] = drw
	return next, nil
}

func applyDeleteDrawing(g Graph, c DeleteDrawing) (Graph, error) {
	if _, ok := g.Drawings[c.Name]; !ok {
		return g, &models.NotFoundError{Name: c.Name}
	}
	if referrers := g.referrers(c.Name); len(referrers) > 0 {
		return g, &models.ReferencedEntityError{Name: c.Name, Referrers: referrers}
	}
	next := g.shallow()
	delete(next.Drawings, c.Name)
	next.stripBackRef(c.Name)
	return next, nil
}

func applyReplaceAll(c ReplaceAll) (Graph, error) {
	next := NewGraph()
	for name, d := range c.Documents {
		next.Documents[name] = d.Clone()
	}
	for name, d := range c.Drawings {
		next.Drawings[name] = d.Clone()
	}
	return next, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

func cloneElements(els []*models.Element) []*models.Element {
	if els == nil {
		return nil
	}
	out := make([]*models.Element, len(els))
	for i, e := range els {
		c := *e
		out[i] = &c
	}
	return out
}
