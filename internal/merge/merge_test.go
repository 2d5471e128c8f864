package merge

import (
	"slices"
	"strings"
	"testing"
	"time"

	"conceptarium/internal/graph"
	"conceptarium/internal/models"
)

func when() time.Time {
	return time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC)
}

// buildGraph creates a graph containing one document per (name, content)
// pair, with all derived fields computed.
func buildGraph(t *testing.T, docs map[string][]*models.Node) graph.Graph {
	t.Helper()
	s := graph.NewStore()
	names := make([]string, 0, len(docs))
	for name := range docs {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		err := s.Apply(graph.CreateDocument{Name: name, Content: docs[name], Now: when()})
		if err != nil {
			t.Fatal(err)
		}
	}
	return s.Snapshot()
}

func para(id string, children ...*models.Node) *models.Node {
	return &models.Node{ID: id, Kind: models.NodeParagraph, Children: children}
}

func text(id, s string) *models.Node {
	return &models.Node{ID: id, Kind: models.NodeText, Text: s}
}

func docText(t *testing.T, g graph.Graph, name string) string {
	t.Helper()
	d, ok := g.Documents[name]
	if !ok {
		t.Fatalf("document %q missing", name)
	}
	var b strings.Builder
	var walk func(nodes []*models.Node)
	walk = func(nodes []*models.Node) {
		for _, n := range nodes {
			b.WriteString(n.Text)
			walk(n.Children)
		}
	}
	walk(d.Content)
	return b.String()
}

func TestDisjointEditsConverge(t *testing.T) {
	base := buildGraph(t, map[string][]*models.Node{
		"doc": {para("p1", text("t1", "base"))},
	})
	left := buildGraph(t, map[string][]*models.Node{
		"doc": {para("p1", text("t1", "left"))},
	})
	right := buildGraph(t, map[string][]*models.Node{
		"doc": {para("p1", text("t1", "base")), para("p2", text("t2", "added"))},
	})

	result := Graphs(base, left, right)
	if result.NeedsManual() {
		t.Fatalf("unexpected conflicts: %+v %+v", result.DocumentConflicts, result.DrawingConflicts)
	}
	merged := result.Merged.Documents["doc"]
	if len(merged.Content) != 2 {
		t.Fatalf("merged has %d blocks, want 2", len(merged.Content))
	}
	if got := merged.Content[0].Children[0].Text; got != "left" {
		t.Fatalf("first block text = %q, want %q", got, "left")
	}
	if merged.Content[1].ID != "p2" {
		t.Fatalf("second block = %q, want p2", merged.Content[1].ID)
	}
}

func TestThreeBlockScenario(t *testing.T) {
	// Shared ancestor: one block. One side edits it and appends a block;
	// the other side appends a different block. All three survive.
	base := buildGraph(t, map[string][]*models.Node{
		"doc": {para("foo", text("ft", ""))},
	})
	left := buildGraph(t, map[string][]*models.Node{
		"doc": {para("foo", text("ft", "1")), para("foo2", text("t2", "a"))},
	})
	right := buildGraph(t, map[string][]*models.Node{
		"doc": {para("foo", text("ft", "")), para("foo3", text("t3", "b"))},
	})

	result := Graphs(base, left, right)
	if result.NeedsManual() {
		t.Fatalf("unexpected conflicts: %+v", result.DocumentConflicts)
	}
	merged := result.Merged.Documents["doc"]
	var ids []string
	for _, n := range merged.Content {
		ids = append(ids, n.ID)
	}
	slices.Sort(ids)
	if !slices.Equal(ids, []string{"foo", "foo2", "foo3"}) {
		t.Fatalf("merged blocks = %v, want foo, foo2, foo3", ids)
	}
	if got := docText(t, result.Merged, "doc"); !strings.Contains(got, "1") ||
		!strings.Contains(got, "a") || !strings.Contains(got, "b") {
		t.Fatalf("merged text = %q, want all three edits", got)
	}
}

func TestSameLeafConflict(t *testing.T) {
	base := buildGraph(t, map[string][]*models.Node{
		"doc": {para("p1", text("t1", "base"))},
	})
	left := buildGraph(t, map[string][]*models.Node{
		"doc": {para("p1", text("t1", "L"))},
	})
	right := buildGraph(t, map[string][]*models.Node{
		"doc": {para("p1", text("t1", "R"))},
	})

	result := Graphs(base, left, right)
	if len(result.DocumentConflicts) != 1 {
		t.Fatalf("conflicts = %+v, want 1", result.DocumentConflicts)
	}
	c := result.DocumentConflicts[0]
	if c.Name != "doc" || c.Kind != KindBothEdited {
		t.Fatalf("conflict = %+v", c)
	}
	// The merged graph still carries a version of the conflicted entity.
	if got := docText(t, result.Merged, "doc"); got != "L" {
		t.Fatalf("merged carries %q, want local version", got)
	}
}

func TestOneSideUnchangedAdoptsOther(t *testing.T) {
	base := buildGraph(t, map[string][]*models.Node{
		"doc": {para("p1", text("t1", "base"))},
	})
	right := buildGraph(t, map[string][]*models.Node{
		"doc": {para("p1", text("t1", "remote edit"))},
	})

	result := Graphs(base, base.Clone(), right)
	if result.NeedsManual() {
		t.Fatalf("unexpected conflicts: %+v", result.DocumentConflicts)
	}
	if got := docText(t, result.Merged, "doc"); got != "remote edit" {
		t.Fatalf("merged = %q, want remote edit", got)
	}
}

func TestSafeDelete(t *testing.T) {
	base := buildGraph(t, map[string][]*models.Node{
		"keep": {para("k1", text("kt", "stay"))},
		"gone": {para("g1", text("gt", "x"))},
	})
	left := base.Clone()
	right := buildGraph(t, map[string][]*models.Node{
		"keep": {para("k1", text("kt", "stay"))},
	})

	result := Graphs(base, left, right)
	if result.NeedsManual() {
		t.Fatalf("unexpected conflicts: %+v", result.DocumentConflicts)
	}
	if _, ok := result.Merged.Documents["gone"]; ok {
		t.Fatal("remotely deleted unchanged document survived")
	}
}

func TestEditedRemotelyDeleted(t *testing.T) {
	base := buildGraph(t, map[string][]*models.Node{
		"doc": {para("p1", text("t1", "base"))},
	})
	left := buildGraph(t, map[string][]*models.Node{
		"doc": {para("p1", text("t1", "local edit"))},
	})
	right := graph.NewGraph()

	result := Graphs(base, left, right)
	if len(result.DocumentConflicts) != 1 || result.DocumentConflicts[0].Kind != KindEditedRemotelyDeleted {
		t.Fatalf("conflicts = %+v, want edited-remotely-deleted", result.DocumentConflicts)
	}
	// The edited version is preserved while awaiting resolution.
	if got := docText(t, result.Merged, "doc"); got != "local edit" {
		t.Fatalf("merged = %q", got)
	}
}

func TestDeletedRemotelyEdited(t *testing.T) {
	base := buildGraph(t, map[string][]*models.Node{
		"doc": {para("p1", text("t1", "base"))},
	})
	left := graph.NewGraph()
	right := buildGraph(t, map[string][]*models.Node{
		"doc": {para("p1", text("t1", "remote edit"))},
	})

	result := Graphs(base, left, right)
	if len(result.DocumentConflicts) != 1 || result.DocumentConflicts[0].Kind != KindDeletedRemotelyEdited {
		t.Fatalf("conflicts = %+v, want deleted-remotely-edited", result.DocumentConflicts)
	}
	if got := docText(t, result.Merged, "doc"); got != "remote edit" {
		t.Fatalf("merged = %q", got)
	}
}

func TestIndependentAddsConverge(t *testing.T) {
	base := graph.NewGraph()
	left := buildGraph(t, map[string][]*models.Node{
		"a": {para("p1", text("t1", "from left"))},
	})
	right := buildGraph(t, map[string][]*models.Node{
		"b": {para("p2", text("t2", "from right"))},
	})

	result := Graphs(base, left, right)
	if result.NeedsManual() {
		t.Fatalf("unexpected conflicts: %+v", result.DocumentConflicts)
	}
	if len(result.Merged.Documents) != 2 {
		t.Fatalf("merged has %d documents, want 2", len(result.Merged.Documents))
	}
}

func TestSameNameAddedTwiceConflicts(t *testing.T) {
	base := graph.NewGraph()
	left := buildGraph(t, map[string][]*models.Node{
		"doc": {para("p1", text("t1", "mine"))},
	})
	right := buildGraph(t, map[string][]*models.Node{
		"doc": {para("p2", text("t2", "theirs"))},
	})

	result := Graphs(base, left, right)
	if len(result.DocumentConflicts) != 1 || result.DocumentConflicts[0].Kind != KindBothEdited {
		t.Fatalf("conflicts = %+v, want both-edited", result.DocumentConflicts)
	}
}

func TestDeleteVsEditInsideTree(t *testing.T) {
	base := buildGraph(t, map[string][]*models.Node{
		"doc": {para("p1", text("t1", "one")), para("p2", text("t2", "two"))},
	})
	// Local deletes p1; remote edits p1's text.
	left := buildGraph(t, map[string][]*models.Node{
		"doc": {para("p2", text("t2", "two"))},
	})
	right := buildGraph(t, map[string][]*models.Node{
		"doc": {para("p1", text("t1", "edited")), para("p2", text("t2", "two"))},
	})

	result := Graphs(base, left, right)
	if len(result.DocumentConflicts) != 1 || result.DocumentConflicts[0].Kind != KindBothEdited {
		t.Fatalf("conflicts = %+v, want both-edited", result.DocumentConflicts)
	}
	if result.DocumentConflicts[0].Reason == "" {
		t.Fatal("conflict has no diagnostic reason")
	}
}

func TestMergedBackRefsRebuilt(t *testing.T) {
	base := buildGraph(t, map[string][]*models.Node{
		"target": {para("p1", text("t1", "hi"))},
	})
	left := base.Clone()
	// Remote adds a document referencing target.
	right := buildGraph(t, map[string][]*models.Node{
		"target": {para("p1", text("t1", "hi"))},
		"source": {{ID: "pr", Kind: models.NodeParagraph, Children: []*models.Node{
			{ID: "r1", Kind: models.NodeReference, Ref: "target"},
		}}},
	})

	result := Graphs(base, left, right)
	if result.NeedsManual() {
		t.Fatalf("unexpected conflicts: %+v", result.DocumentConflicts)
	}
	target := result.Merged.Documents["target"]
	if !slices.Contains(target.BackReferences, "source") {
		t.Fatalf("target.BackReferences = %v, want to contain source", target.BackReferences)
	}
}

func TestDrawingDoubleEditConflicts(t *testing.T) {
	mk := func(t *testing.T, stroke string) graph.Graph {
		t.Helper()
		s := graph.NewStore()
		err := s.Apply(graph.CreateDrawing{
			Name:     "sketch",
			Elements: []*models.Element{{ID: "e1", Type: "rect", StrokeColor: stroke}},
			Size:     models.Size{Width: 100, Height: 100},
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

	result := Graphs(base, left, right)
	if len(result.DrawingConflicts) != 1 || result.DrawingConflicts[0].Kind != KindDrawingBothEdited {
		t.Fatalf("conflicts = %+v, want drawing-both-edited", result.DrawingConflicts)
	}
}

func TestDrawingOneSideEditAdopted(t *testing.T) {
	mk := func(t *testing.T, stroke string) graph.Graph {
		t.Helper()
		s := graph.NewStore()
		err := s.Apply(graph.CreateDrawing{
			Name:     "sketch",
			Elements: []*models.Element{{ID: "e1", Type: "rect", StrokeColor: stroke}},
			Size:     models.Size{Width: 100, Height: 100},
			Now:      when(),
		})
		if err != nil {
			t.Fatal(err)
		}
		return s.Snapshot()
	}
	base := mk(t, "black")
	right := mk(t, "blue")

	result := Graphs(base, base.Clone(), right)
	if result.NeedsManual() {
		t.Fatalf("unexpected conflicts: %+v", result.DrawingConflicts)
	}
	if got := result.Merged.Drawings["sketch"].Elements[0].StrokeColor; got != "blue" {
		t.Fatalf("merged stroke = %q, want blue", got)
	}
}

func TestRebuildRestoresCreatedDate(t *testing.T) {
	created := when().Add(-24 * time.Hour)
	s := graph.NewStore()
	if err := s.Apply(graph.CreateDocument{Name: "doc", Content: []*models.Node{para("p1", text("t1", "x"))}, Now: created}); err != nil {
		t.Fatal(err)
	}
	if err := s.Apply(graph.UpdateDocument{Name: "doc", Content: []*models.Node{para("p1", text("t1", "y"))}, Now: when()}); err != nil {
		t.Fatal(err)
	}
	g := s.Snapshot()

	rebuilt, err := Rebuild(g.Documents, g.Drawings)
	if err != nil {
		t.Fatal(err)
	}
	d := rebuilt.Documents["doc"]
	if !d.CreatedDate.Equal(created) {
		t.Fatalf("CreatedDate = %v, want %v", d.CreatedDate, created)
	}
	if !d.LastUpdatedDate.Equal(when()) {
		t.Fatalf("LastUpdatedDate = %v, want %v", d.LastUpdatedDate, when())
	}
}
