// Package models defines the core domain types shared across the storage,
// sync and merge packages.
//
// It contains the document and drawing entities, the rich-text node tree
// they are built from, and the typed error taxonomy used throughout the
// application.
package models

import (
	"slices"
	"time"
)

// Document is a single concept: a named rich-text tree plus the derived
// bookkeeping fields the graph store maintains.
//
// Name is the primary key and is globally unique across documents and
// drawings (references form one namespace). The hash fields are derived:
// ContentHash fingerprints Content, ReferencesHash and BackReferencesHash
// fingerprint their respective sets. Two entities with equal ContentHash are
// treated as content-identical without deep comparison.
type Document struct {
	Name               string    `json:"name"`
	DisplayName        string    `json:"displayName,omitempty"`
	Content            []*Node   `json:"content"`
	ContentHash        string    `json:"contentHash"`
	References         []string  `json:"references,omitempty"`
	ReferencesHash     string    `json:"referencesHash"`
	BackReferences     []string  `json:"backReferences,omitempty"`
	BackReferencesHash string    `json:"backReferencesHash"`
	CategoryID         string    `json:"categoryId,omitempty"`
	CreatedDate        time.Time `json:"createdDate"`
	LastUpdatedDate    time.Time `json:"lastUpdatedDate"`
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	c.Content = CloneNodes(d.Content)
	c.References = slices.Clone(d.References)
	c.BackReferences = slices.Clone(d.BackReferences)
	return &c
}

// Size is a drawing canvas size in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Element is a single canvas element of a drawing. The merge engine never
// reconciles inside an element list; it is carried as a unit.
type Element struct {
	ID          string  `json:"id"`
	Type        string  `json:"type"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
	Angle       float64 `json:"angle,omitempty"`
	StrokeColor string  `json:"strokeColor,omitempty"`
	FillColor   string  `json:"fillColor,omitempty"`
	Text        string  `json:"text,omitempty"`
	FileID      string  `json:"fileId,omitempty"`
}

// Drawing is a named canvas: an element list, a canvas size and the ids of
// attached binary files. The hash and back-reference fields mirror
// Document's.
type Drawing struct {
	Name               string     `json:"name"`
	Elements           []*Element `json:"elements"`
	Size               Size       `json:"size"`
	FilesIDs           []string   `json:"filesIds,omitempty"`
	ContentHash        string     `json:"contentHash"`
	BackReferences     []string   `json:"backReferences,omitempty"`
	BackReferencesHash string     `json:"backReferencesHash"`
	CreatedDate        time.Time  `json:"createdDate"`
	LastUpdatedDate    time.Time  `json:"lastUpdatedDate"`
}

// Clone returns a deep copy of the drawing.
func (d *Drawing) Clone() *Drawing {
	if d == nil {
		return nil
	}
	c := *d
	if d.Elements != nil {
		c.Elements = make([]*Element, len(d.Elements))
		for i, e := range d.Elements {
			el := *e
			c.Elements[i] = &el
		}
	}
	c.FilesIDs = slices.Clone(d.FilesIDs)
	c.BackReferences = slices.Clone(d.BackReferences)
	return &c
}

// Category is a cosmetic label documents can be filed under. Categories are
// carried through sync but excluded from merge conflict logic.
type Category struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}
