// Rebuilds a consistent graph from merged entities.
//
// Back-references are not merged field-by-field; they are recomputed by
// feeding every merged entity through the same create operation the live
// store uses, so the symmetry invariant holds by construction even while
// some entities sit in the manual-merge bucket.

package merge

import (
	"slices"

	"conceptarium/internal/graph"
	"conceptarium/internal/models"
)

// Rebuild constructs a consistent graph from bare entity maps, recomputing
// hashes, reference sets and back-references. The resolution surface uses
// it to fold user picks back into a merged graph.
func Rebuild(docs map[string]*models.Document, drawings map[string]*models.Drawing) (graph.Graph, error) {
	g := graph.NewGraph()

	docNames := make([]string, 0, len(docs))
	for name := range docs {
		docNames = append(docNames, name)
	}
	slices.Sort(docNames)
	for _, name := range docNames {
		doc := docs[name]
		next, err := graph.Apply(g, graph.CreateDocument{
			Name:        name,
			DisplayName: doc.DisplayName,
			CategoryID:  doc.CategoryID,
			Content:     doc.Content,
			Now:         doc.LastUpdatedDate,
		})
		if err != nil {
			return g, err
		}
		g = next
		// Create stamps both dates with Now; restore the original creation
		// date. The entity was freshly built by Apply, so this in-place fix
		// is safe.
		g.Documents[name].CreatedDate = doc.CreatedDate
	}

	drawingNames := make([]string, 0, len(drawings))
	for name := range drawings {
		drawingNames = append(drawingNames, name)
	}
	slices.Sort(drawingNames)
	for _, name := range drawingNames {
		drw := drawings[name]
		next, err := graph.Apply(g, graph.CreateDrawing{
			Name:     name,
			Elements: drw.Elements,
			Size:     drw.Size,
			FilesIDs: drw.FilesIDs,
			Now:      drw.LastUpdatedDate,
		})
		if err != nil {
			return g, err
		}
		g = next
		g.Drawings[name].CreatedDate = drw.CreatedDate
	}
	return g, nil
}
