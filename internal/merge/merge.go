// Package merge reconciles divergent edits from multiple clients.
//
// Given the graph at the last common synced revision (initial), the local
// graph (left) and the freshly fetched remote graph (right), it computes a
// merged graph automatically wherever possible and flags the entities that
// need manual resolution. Merging is per entity: one entity failing to
// auto-merge never blocks the others.
package merge

import (
	"errors"
	"log/slog"
	"slices"

	"conceptarium/internal/graph"
	"conceptarium/internal/models"
)

// ConflictKind classifies why an entity needs manual resolution. The
// deleted-vs-edited cases are explicit kinds rather than generic conflicts
// so the resolution surface can phrase them properly.
type ConflictKind string

const (
	// KindBothEdited means both sides changed the entity in ways the
	// structural merge could not reconcile.
	KindBothEdited ConflictKind = "both-edited"
	// KindEditedRemotelyDeleted means the local side edited an entity the
	// remote side deleted.
	KindEditedRemotelyDeleted ConflictKind = "edited-remotely-deleted"
	// KindDeletedRemotelyEdited means the local side deleted an entity the
	// remote side edited.
	KindDeletedRemotelyEdited ConflictKind = "deleted-remotely-edited"
	// KindDrawingBothEdited means both sides changed a drawing's canvas;
	// canvas element lists are never merged automatically.
	KindDrawingBothEdited ConflictKind = "drawing-both-edited"
)

// Conflict names one entity needing manual resolution.
type Conflict struct {
	Name   string
	Kind   ConflictKind
	Reason string // diagnostic detail from the failed structural merge
}

// Result is the outcome of a three-way graph merge. When both conflict
// lists are empty, Merged is complete and can be uploaded as-is.
type Result struct {
	Merged            graph.Graph
	DocumentConflicts []Conflict
	DrawingConflicts  []Conflict
}

// NeedsManual reports whether any entity requires manual resolution.
func (r *Result) NeedsManual() bool {
	return len(r.DocumentConflicts) > 0 || len(r.DrawingConflicts) > 0
}

// Graphs merges left and right against their common ancestor.
//
// The merged graph always contains a version of every conflicted entity
// (the local one where it exists, otherwise the remote one) so the graph
// stays internally consistent while conflicts await resolution;
// back-references in the result are rebuilt through the same create
// operations the live store uses.
func Graphs(initial, left, right graph.Graph) Result {
	mergedDocs := map[string]*models.Document{}
	mergedDrawings := map[string]*models.Drawing{}
	var docConflicts, drawingConflicts []Conflict

	for _, name := range unionNames(keysD(left.Documents), keysD(right.Documents)) {
		doc, conflict := mergeDocument(name, initial.Documents[name], left.Documents[name], right.Documents[name])
		if doc != nil {
			mergedDocs[name] = doc
		}
		if conflict != nil {
			docConflicts = append(docConflicts, *conflict)
		}
	}
	for _, name := range unionNames(keysW(left.Drawings), keysW(right.Drawings)) {
		drw, conflict := mergeDrawing(name, initial.Drawings[name], left.Drawings[name], right.Drawings[name])
		if drw != nil {
			mergedDrawings[name] = drw
		}
		if conflict != nil {
			drawingConflicts = append(drawingConflicts, *conflict)
		}
	}

	merged, err := Rebuild(mergedDocs, mergedDrawings)
	if err != nil {
		// rebuildGraph only fails on duplicate names, which the per-name
		// loop above cannot produce.
		panic("merge: rebuild failed: " + err.Error())
	}
	if len(docConflicts) > 0 || len(drawingConflicts) > 0 {
		slog.Info("Automatic merge left conflicts",
			"documents", len(docConflicts), "drawings", len(drawingConflicts))
	}
	return Result{Merged: merged, DocumentConflicts: docConflicts, DrawingConflicts: drawingConflicts}
}

// mergeDocument applies the per-entity decision rules. A nil document means
// the entity does not survive into the merged graph.
func mergeDocument(name string, base, left, right *models.Document) (*models.Document, *Conflict) {
	switch {
	case left != nil && right != nil:
		if left.ContentHash == right.ContentHash {
			return mergeDocumentScalars(base, left, right), nil
		}
		if base == nil {
			// Added independently on both sides with different content;
			// there is no ancestor to merge against.
			return left.Clone(), &Conflict{Name: name, Kind: KindBothEdited, Reason: "added on both sides"}
		}
		if left.ContentHash == base.ContentHash {
			return adoptDocument(right, base, left), nil
		}
		if right.ContentHash == base.ContentHash {
			return adoptDocument(left, base, right), nil
		}
		merged, err := mergeDocumentTrees(base, left, right)
		if err != nil {
			var um *models.UnresolvableMergeError
			reason := err.Error()
			if errors.As(err, &um) {
				reason = um.Msg
			}
			return left.Clone(), &Conflict{Name: name, Kind: KindBothEdited, Reason: reason}
		}
		return merged, nil

	case left != nil: // absent from right
		if base == nil {
			return left.Clone(), nil // just added locally
		}
		if left.ContentHash == base.ContentHash {
			return nil, nil // unchanged here, deleted remotely: safe delete
		}
		return left.Clone(), &Conflict{Name: name, Kind: KindEditedRemotelyDeleted}

	default: // absent from left, present on right
		if base == nil {
			return right.Clone(), nil // added remotely
		}
		if right.ContentHash == base.ContentHash {
			return nil, nil // deleted locally, unchanged remotely
		}
		return right.Clone(), &Conflict{Name: name, Kind: KindDeletedRemotelyEdited}
	}
}

// adoptDocument takes winner's content wholesale (the other side did not
// change content) while still merging the cosmetic scalar fields.
func adoptDocument(winner, base, loser *models.Document) *models.Document {
	out := winner.Clone()
	out.DisplayName = pickScalar(base.DisplayName, loser.DisplayName, winner.DisplayName)
	out.CategoryID = pickScalar(base.CategoryID, loser.CategoryID, winner.CategoryID)
	if loser.LastUpdatedDate.After(out.LastUpdatedDate) {
		out.LastUpdatedDate = loser.LastUpdatedDate
	}
	return out
}

// mergeDocumentScalars handles equal-content documents whose cosmetic
// fields may still differ.
func mergeDocumentScalars(base, left, right *models.Document) *models.Document {
	out := left.Clone()
	var baseDisplay, baseCategory string
	if base != nil {
		baseDisplay = base.DisplayName
		baseCategory = base.CategoryID
	}
	out.DisplayName = pickScalar(baseDisplay, left.DisplayName, right.DisplayName)
	out.CategoryID = pickScalar(baseCategory, left.CategoryID, right.CategoryID)
	if right.LastUpdatedDate.After(out.LastUpdatedDate) {
		out.LastUpdatedDate = right.LastUpdatedDate
	}
	return out
}

// pickScalar is a lenient three-way pick for cosmetic fields: a divergent
// double edit takes the local value instead of conflicting, since these
// fields are not worth a manual merge.
func pickScalar(base, local, remote string) string {
	if local == remote || remote == base {
		return local
	}
	if local == base {
		return remote
	}
	return local
}

// mergeDocumentTrees structurally merges content and the scalar fields.
func mergeDocumentTrees(base, left, right *models.Document) (*models.Document, error) {
	content, err := mergeNodeLists(base.Content, left.Content, right.Content, "")
	if err != nil {
		return nil, err
	}
	out := left.Clone()
	out.Content = content
	out.DisplayName = pickScalar(base.DisplayName, left.DisplayName, right.DisplayName)
	out.CategoryID = pickScalar(base.CategoryID, left.CategoryID, right.CategoryID)
	if right.LastUpdatedDate.After(out.LastUpdatedDate) {
		out.LastUpdatedDate = right.LastUpdatedDate
	}
	// Hashes and reference sets are recomputed when the merged graph is
	// rebuilt through the store operations.
	return out, nil
}

// mergeDrawing applies the coarser drawing rules: canvas element lists are
// never structurally merged, so any double edit is flagged.
func mergeDrawing(name string, base, left, right *models.Drawing) (*models.Drawing, *Conflict) {
	switch {
	case left != nil && right != nil:
		if left.ContentHash == right.ContentHash {
			return left.Clone(), nil
		}
		if base == nil {
			return left.Clone(), &Conflict{Name: name, Kind: KindDrawingBothEdited, Reason: "added on both sides"}
		}
		if left.ContentHash == base.ContentHash {
			return right.Clone(), nil
		}
		if right.ContentHash == base.ContentHash {
			return left.Clone(), nil
		}
		return left.Clone(), &Conflict{Name: name, Kind: KindDrawingBothEdited}

	case left != nil:
		if base == nil {
			return left.Clone(), nil
		}
		if left.ContentHash == base.ContentHash {
			return nil, nil
		}
		return left.Clone(), &Conflict{Name: name, Kind: KindEditedRemotelyDeleted}

	default:
		if base == nil {
			return right.Clone(), nil
		}
		if right.ContentHash == base.ContentHash {
			return nil, nil
		}
		return right.Clone(), &Conflict{Name: name, Kind: KindDeletedRemotelyEdited}
	}
}

func unionNames(a, b []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, s := range a {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	for _, s := range b {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return out
}

func keysD(m map[string]*models.Document) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func keysW(m map[string]*models.Drawing) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
