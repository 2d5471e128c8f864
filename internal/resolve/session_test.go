package resolve

import (
	"slices"
	"testing"
	"time"

	"conceptarium/internal/graph"
	"conceptarium/internal/merge"
	"conceptarium/internal/models"
)

func when() time.Time {
	return time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC)
}

func docGraph(t *testing.T, name, nodeID, textID, text string) graph.Graph {
	t.Helper()
	s := graph.NewStore()
	content := []*models.Node{{
		ID: nodeID, Kind: models.NodeParagraph,
		Children: []*models.Node{{ID: textID, Kind: models.NodeText, Text: text}},
	}}
	if err := s.Apply(graph.CreateDocument{Name: name, Content: content, Now: when()}); err != nil {
		t.Fatal(err)
	}
	return s.Snapshot()
}

// conflictedSession builds a session with one both-edited document conflict.
func conflictedSession(t *testing.T) (*Session, graph.Graph, graph.Graph) {
	t.Helper()
	base := docGraph(t, "doc", "p1", "t1", "base")
	left := docGraph(t, "doc", "p1", "t1", "mine")
	right := docGraph(t, "doc", "p1", "t1", "theirs")
	result := merge.Graphs(base, left, right)
	if !result.NeedsManual() {
		t.Fatal("expected a conflict")
	}
	return NewSession(result, left, right), left, right
}

func firstText(d *models.Document) string {
	return d.Content[0].Children[0].Text
}

func TestSessionExposesBothVersions(t *testing.T) {
	s, _, _ := conflictedSession(t)
	conflicts := s.Conflicts()
	if len(conflicts) != 1 {
		t.Fatalf("got %d conflicts, want 1", len(conflicts))
	}
	c := conflicts[0]
	if c.Name != "doc" || c.Kind != merge.KindBothEdited {
		t.Fatalf("conflict = %+v", c)
	}
	if firstText(c.LeftDocument) != "mine" || firstText(c.RightDocument) != "theirs" {
		t.Fatal("left/right versions not captured")
	}
	if c.Diff == "" {
		t.Fatal("no diff rendered")
	}
	if s.Resolved() {
		t.Fatal("session resolved before any decision")
	}
}

func TestFinalizeRequiresAllDecisions(t *testing.T) {
	s, _, _ := conflictedSession(t)
	if _, err := s.Finalize(); err == nil {
		t.Fatal("finalize succeeded with unresolved conflicts")
	}
}

func TestChooseLeft(t *testing.T) {
	s, _, _ := conflictedSession(t)
	if err := s.ChooseLeft("doc"); err != nil {
		t.Fatal(err)
	}
	if !s.Resolved() {
		t.Fatal("not resolved after the only decision")
	}
	g, err := s.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if got := firstText(g.Documents["doc"]); got != "mine" {
		t.Fatalf("final text = %q, want mine", got)
	}
}

func TestChooseRight(t *testing.T) {
	s, _, _ := conflictedSession(t)
	if err := s.ChooseRight("doc"); err != nil {
		t.Fatal(err)
	}
	g, err := s.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if got := firstText(g.Documents["doc"]); got != "theirs" {
		t.Fatalf("final text = %q, want theirs", got)
	}
}

func TestEditDocument(t *testing.T) {
	s, _, _ := conflictedSession(t)
	custom := []*models.Node{{
		ID: "p1", Kind: models.NodeParagraph,
		Children: []*models.Node{{ID: "t1", Kind: models.NodeText, Text: "hand merged"}},
	}}
	if err := s.EditDocument("doc", custom); err != nil {
		t.Fatal(err)
	}
	g, err := s.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	d := g.Documents["doc"]
	if got := firstText(d); got != "hand merged" {
		t.Fatalf("final text = %q", got)
	}
	// Rebuild recomputed the hash for the edited content.
	if d.ContentHash == "" {
		t.Fatal("content hash not recomputed")
	}
}

func TestChooseUnknownName(t *testing.T) {
	s, _, _ := conflictedSession(t)
	if err := s.ChooseLeft("nope"); !models.IsNotFound(err) {
		t.Fatalf("err = %v, want not found", err)
	}
	if err := s.EditDrawing("doc", nil); !models.IsNotFound(err) {
		t.Fatalf("EditDrawing on a document conflict: err = %v, want not found", err)
	}
}

func TestDeletionConflictChoices(t *testing.T) {
	// Local edited, remote deleted.
	base := docGraph(t, "doc", "p1", "t1", "base")
	left := docGraph(t, "doc", "p1", "t1", "edited")
	right := graph.NewGraph()
	result := merge.Graphs(base, left, right)
	if len(result.DocumentConflicts) != 1 {
		t.Fatalf("conflicts = %+v", result.DocumentConflicts)
	}

	s := NewSession(result, left, right)
	c := s.Conflicts()[0]
	if c.RightDocument != nil {
		t.Fatal("deleted side should be nil")
	}

	// Keeping the remote side applies the deletion.
	if err := s.ChooseRight("doc"); err != nil {
		t.Fatal(err)
	}
	g, err := s.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := g.Documents["doc"]; ok {
		t.Fatal("document survived a chosen deletion")
	}
}

func TestFinalizeRebuildsBackRefs(t *testing.T) {
	// The conflicted document references another entity; after resolution
	// the back-reference set must be consistent again.
	mk := func(t *testing.T, text string) graph.Graph {
		t.Helper()
		s := graph.NewStore()
		if err := s.Apply(graph.CreateDocument{Name: "target", Content: models.EmptyContent(), Now: when()}); err != nil {
			t.Fatal(err)
		}
		content := []*models.Node{{
			ID: "p1", Kind: models.NodeParagraph,
			Children: []*models.Node{
				{ID: "t1", Kind: models.NodeText, Text: text},
				{ID: "r1", Kind: models.NodeReference, Ref: "target"},
			},
		}}
		if err := s.Apply(graph.CreateDocument{Name: "doc", Content: content, Now: when()}); err != nil {
			t.Fatal(err)
		}
		return s.Snapshot()
	}
	base := mk(t, "base")
	left := mk(t, "mine")
	right := mk(t, "theirs")
	result := merge.Graphs(base, left, right)
	s := NewSession(result, left, right)
	if err := s.ChooseLeft("doc"); err != nil {
		t.Fatal(err)
	}
	g, err := s.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	target := g.Documents["target"]
	if !slices.Contains(target.BackReferences, "doc") {
		t.Fatalf("target.BackReferences = %v, want to contain doc", target.BackReferences)
	}
}

func TestDrawingConflictChoice(t *testing.T) {
	mk := func(t *testing.T, stroke string) graph.Graph {
		t.Helper()
		s := graph.NewStore()
		err := s.Apply(graph.CreateDrawing{
			Name:     "sketch",
			Elements: []*models.Element{{ID: "e1", Type: "rect", StrokeColor: stroke}},
			Size:     models.Size{Width: 50, Height: 50},
			Now:      when(),
		})
		if err != nil {
			t.Fatal(err)
		}
		return s.Snapshot()
	}
	base := mk(t, "black")
	left := mk(t, "red")
	right := mk(t, "blue")
	result := merge.Graphs(base, left, right)
	s := NewSession(result, left, right)

	conflicts := s.Conflicts()
	if len(conflicts) != 1 || conflicts[0].LeftDrawing == nil || conflicts[0].RightDrawing == nil {
		t.Fatalf("conflicts = %+v", conflicts)
	}
	if err := s.EditDocument("sketch", nil); !models.IsNotFound(err) {
		t.Fatalf("EditDocument on a drawing conflict: err = %v, want not found", err)
	}
	if err := s.ChooseRight("sketch"); err != nil {
		t.Fatal(err)
	}
	g, err := s.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if got := g.Drawings["sketch"].Elements[0].StrokeColor; got != "blue" {
		t.Fatalf("final stroke = %q, want blue", got)
	}
}
