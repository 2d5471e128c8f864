// Package graph implements the normalized in-memory document graph.
//
// The graph is a pair of name-keyed collections (documents and drawings)
// whose reference and back-reference sets are kept mutually consistent on
// every mutation. Mutations are expressed as tagged commands applied by a
// pure transition function over immutable snapshots; the Store type wraps
// that core with locking and change notification for live use.
package graph

import (
	"slices"

	"conceptarium/internal/models"
	"conceptarium/internal/refs"
)

// Graph is an immutable snapshot of the document graph. The maps and the
// entities they hold must not be mutated in place; Apply copies on write.
type Graph struct {
	Documents map[string]*models.Document
	Drawings  map[string]*models.Drawing
}

// NewGraph returns an empty graph.
func NewGraph() Graph {
	return Graph{
		Documents: map[string]*models.Document{},
		Drawings:  map[string]*models.Drawing{},
	}
}

// Clone returns a deep copy of the graph.
func (g Graph) Clone() Graph {
	out := Graph{
		Documents: make(map[string]*models.Document, len(g.Documents)),
		Drawings:  make(map[string]*models.Drawing, len(g.Drawings)),
	}
	for name, d := range g.Documents {
		out.Documents[name] = d.Clone()
	}
	for name, d := range g.Drawings {
		out.Drawings[name] = d.Clone()
	}
	return out
}

// shallow returns a new graph sharing entity pointers. Callers clone the
// individual entities they are about to mutate.
func (g Graph) shallow() Graph {
	out := Graph{
		Documents: make(map[string]*models.Document, len(g.Documents)),
		Drawings:  make(map[string]*models.Drawing, len(g.Drawings)),
	}
	for name, d := range g.Documents {
		out.Documents[name] = d
	}
	for name, d := range g.Drawings {
		out.Drawings[name] = d
	}
	return out
}

// Has reports whether any entity (document or drawing) exists under name.
func (g Graph) Has(name string) bool {
	_, doc := g.Documents[name]
	_, drw := g.Drawings[name]
	return doc || drw
}

// BackReferences returns the back-reference set of the named entity and
// whether the entity exists.
func (g Graph) BackReferences(name string) ([]string, bool) {
	if d, ok := g.Documents[name]; ok {
		return d.BackReferences, true
	}
	if d, ok := g.Drawings[name]; ok {
		return d.BackReferences, true
	}
	return nil, false
}

// referrers returns the names of documents whose reference set contains
// name, excluding name itself. Sorted for stable error messages.
func (g Graph) referrers(name string) []string {
	var out []string
	for docName, d := range g.Documents {
		if docName == name {
			continue
		}
		if slices.Contains(d.References, name) {
			out = append(out, docName)
		}
	}
	slices.Sort(out)
	return out
}

// addBackRef records source in target's back-reference set. No-op when the
// target does not exist (references to not-yet-created entities are legal)
// or when the entry is already present. The graph must be a shallow copy
// owned by the caller.
func (g Graph) addBackRef(target, source string) {
	if d, ok := g.Documents[target]; ok {
		if !slices.Contains(d.BackReferences, source) {
			c := d.Clone()
			c.BackReferences = append(c.BackReferences, source)
			c.BackReferencesHash = refs.HashNames(c.BackReferences)
			g.Documents[target] = c
		}
		return
	}
	if d, ok := g.Drawings[target]; ok {
		if !slices.Contains(d.BackReferences, source) {
			c := d.Clone()
			c.BackReferences = append(c.BackReferences, source)
			c.BackReferencesHash = refs.HashNames(c.BackReferences)
			g.Drawings[target] = c
		}
	}
}

// removeBackRef removes source from target's back-reference set.
func (g Graph) removeBackRef(target, source string) {
	if d, ok := g.Documents[target]; ok {
		if slices.Contains(d.BackReferences, source) {
			c := d.Clone()
			c.BackReferences = slices.DeleteFunc(c.BackReferences, func(s string) bool { return s == source })
			if len(c.BackReferences) == 0 {
				c.BackReferences = nil
			}
			c.BackReferencesHash = refs.HashNames(c.BackReferences)
			g.Documents[target] = c
		}
		return
	}
	if d, ok := g.Drawings[target]; ok {
		if slices.Contains(d.BackReferences, source) {
			c := d.Clone()
			c.BackReferences = slices.DeleteFunc(c.BackReferences, func(s string) bool { return s == source })
			if len(c.BackReferences) == 0 {
				c.BackReferences = nil
			}
			c.BackReferencesHash = refs.HashNames(c.BackReferences)
			g.Drawings[target] = c
		}
	}
}

// stripBackRef removes name from every entity's back-reference set. Used on
// delete so no dangling back-references survive even if the loaded graph
// was not perfectly symmetric.
func (g Graph) stripBackRef(name string) {
	for target := range g.Documents {
		g.removeBackRef(target, name)
	}
	for target := range g.Drawings {
		g.removeBackRef(target, name)
	}
}

// seedBackRefs computes the initial back-reference set for a newly created
// entity: the optional creating referrer plus every existing document that
// already references the name.
func (g Graph) seedBackRefs(name, backrefFrom string) []string {
	var out []string
	if backrefFrom != "" {
		out = append(out, backrefFrom)
	}
	for docName, d := range g.Documents {
		if docName == name {
			continue
		}
		if slices.Contains(d.References, name) && !slices.Contains(out, docName) {
			out = append(out, docName)
		}
	}
	return out
}
