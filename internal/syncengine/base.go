// Local persistence of the last-synced base snapshot.
//
// The base is the `initial` leg of the merge triple: the graph as of the
// last successful sync, plus the revision tokens observed then. Persisting
// it locally keeps resync idempotent across restarts.

package syncengine

import (
	"conceptarium/internal/collection"
	"conceptarium/internal/graph"
	"conceptarium/internal/models"
)

type baseSnapshot struct {
	Documents     map[string]*models.Document `json:"documents"`
	Drawings      map[string]*models.Drawing  `json:"drawings"`
	Revisions     collection.Revisions        `json:"revisions"`
	UploadedFiles []string                    `json:"uploadedFiles"`
}

func newBaseSnapshot() baseSnapshot {
	return baseSnapshot{
		Documents: map[string]*models.Document{},
		Drawings:  map[string]*models.Drawing{},
		Revisions: collection.Revisions{
			Documents: map[string]string{},
			Drawings:  map[string]string{},
		},
	}
}

func (b *baseSnapshot) graph() graph.Graph {
	return graph.Graph{Documents: b.Documents, Drawings: b.Drawings}
}

func (b *baseSnapshot) setGraph(g graph.Graph) {
	b.Documents = g.Documents
	b.Drawings = g.Drawings
}
