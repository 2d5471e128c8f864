package graph

import (
	"errors"
	"slices"
	"testing"
	"time"

	"conceptarium/internal/models"
)

func contentWithRefs(text string, targets ...string) []*models.Node {
	children := []*models.Node{models.TextNode(text)}
	for _, t := range targets {
		children = append(children, models.ReferenceNode(t))
	}
	return []*models.Node{models.Paragraph(children...)}
}

func mustApply(t *testing.T, s *Store, cmd Command) {
	t.Helper()
	if err := s.Apply(cmd); err != nil {
		t.Fatal(err)
	}
}

func now() time.Time {
	return time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
}

func TestCreateSetsDerivedFields(t *testing.T) {
	s := NewStore()
	mustApply(t, s, CreateDocument{Name: "a", Content: contentWithRefs("x", "b", "b", "c"), Now: now()})
	doc, err := s.Document("a")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(doc.References, []string{"b", "c"}) {
		t.Fatalf("References = %v, want [b c]", doc.References)
	}
	if doc.ContentHash == "" || doc.ReferencesHash == "" || doc.BackReferencesHash == "" {
		t.Fatal("derived hashes not populated")
	}
	if !doc.CreatedDate.Equal(now()) || !doc.LastUpdatedDate.Equal(now()) {
		t.Fatal("dates not set")
	}
}

func TestBackrefSymmetryOnCreate(t *testing.T) {
	s := NewStore()
	mustApply(t, s, CreateDocument{Name: "a", Content: contentWithRefs("", "b"), Now: now()})
	// b does not exist yet; creating it later must pick up the pending
	// referrer.
	mustApply(t, s, CreateDocument{Name: "b", Content: models.EmptyContent(), Now: now()})
	b, err := s.Document("b")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Contains(b.BackReferences, "a") {
		t.Fatalf("b.BackReferences = %v, want to contain a", b.BackReferences)
	}
}

func TestBackrefDiffOnUpdate(t *testing.T) {
	s := NewStore()
	mustApply(t, s, CreateDocument{Name: "b", Content: models.EmptyContent(), Now: now()})
	mustApply(t, s, CreateDocument{Name: "c", Content: models.EmptyContent(), Now: now()})
	mustApply(t, s, CreateDocument{Name: "a", Content: contentWithRefs("", "b"), Now: now()})

	b, _ := s.Document("b")
	if !slices.Contains(b.BackReferences, "a") {
		t.Fatal("b missing backref to a after create")
	}

	mustApply(t, s, UpdateDocument{Name: "a", Content: contentWithRefs("", "c"), Now: now().Add(time.Minute)})
	b, _ = s.Document("b")
	c, _ := s.Document("c")
	if slices.Contains(b.BackReferences, "a") {
		t.Fatalf("b.BackReferences = %v, a should be gone", b.BackReferences)
	}
	if !slices.Contains(c.BackReferences, "a") {
		t.Fatalf("c.BackReferences = %v, want to contain a", c.BackReferences)
	}
}

func TestNoOpUpdateLeavesGraphUntouched(t *testing.T) {
	s := NewStore()
	content := contentWithRefs("hello")
	mustApply(t, s, CreateDocument{Name: "a", Content: content, Now: now()})
	gen := s.Gen()
	before, _ := s.Document("a")

	mustApply(t, s, UpdateDocument{Name: "a", Content: content, Now: now().Add(time.Hour)})
	if s.Gen() != gen {
		t.Fatal("no-op update bumped the generation")
	}
	after, _ := s.Document("a")
	if !after.LastUpdatedDate.Equal(before.LastUpdatedDate) {
		t.Fatal("no-op update touched LastUpdatedDate")
	}
}

func TestDeleteGuardedByReferrers(t *testing.T) {
	s := NewStore()
	mustApply(t, s, CreateDocument{Name: "b", Content: models.EmptyContent(), Now: now()})
	mustApply(t, s, CreateDocument{Name: "a", Content: contentWithRefs("", "b"), Now: now()})

	err := s.Apply(DeleteDocument{Name: "b"})
	var refErr *models.ReferencedEntityError
	if !errors.As(err, &refErr) {
		t.Fatalf("err = %v, want ReferencedEntityError", err)
	}
	if !slices.Equal(refErr.Referrers, []string{"a"}) {
		t.Fatalf("Referrers = %v, want [a]", refErr.Referrers)
	}

	// Removing the reference unblocks the delete.
	mustApply(t, s, UpdateDocument{Name: "a", Content: contentWithRefs("no more refs"), Now: now()})
	mustApply(t, s, DeleteDocument{Name: "b"})
	if _, err := s.Document("b"); !models.IsNotFound(err) {
		t.Fatalf("b still present: %v", err)
	}
}

func TestDeleteStripsBackRefs(t *testing.T) {
	s := NewStore()
	mustApply(t, s, CreateDocument{Name: "b", Content: models.EmptyContent(), Now: now()})
	mustApply(t, s, CreateDocument{Name: "a", Content: contentWithRefs("", "b"), Now: now()})
	mustApply(t, s, UpdateDocument{Name: "a", Content: contentWithRefs("plain"), Now: now()})
	mustApply(t, s, DeleteDocument{Name: "a"})
	b, _ := s.Document("b")
	if len(b.BackReferences) != 0 {
		t.Fatalf("b.BackReferences = %v after referrer deleted", b.BackReferences)
	}
}

func TestDuplicateNameAcrossKinds(t *testing.T) {
	s := NewStore()
	mustApply(t, s, CreateDocument{Name: "shared", Content: models.EmptyContent(), Now: now()})
	err := s.Apply(CreateDrawing{Name: "shared", Now: now()})
	var dup *models.DuplicateNameError
	if !errors.As(err, &dup) {
		t.Fatalf("err = %v, want DuplicateNameError", err)
	}
}

func TestDrawingBackrefs(t *testing.T) {
	s := NewStore()
	mustApply(t, s, CreateDrawing{Name: "sketch", Size: models.Size{Width: 100, Height: 100}, Now: now()})
	content := []*models.Node{models.Paragraph(models.DrawingNode("sketch"))}
	mustApply(t, s, CreateDocument{Name: "a", Content: content, Now: now()})

	d, err := s.Drawing("sketch")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Contains(d.BackReferences, "a") {
		t.Fatalf("sketch.BackReferences = %v, want to contain a", d.BackReferences)
	}

	err = s.Apply(DeleteDrawing{Name: "sketch"})
	var refErr *models.ReferencedEntityError
	if !errors.As(err, &refErr) {
		t.Fatalf("err = %v, want ReferencedEntityError", err)
	}
}

func TestNavigateLazyCreate(t *testing.T) {
	s := NewStore()
	doc, err := s.Navigate("fresh", "origin")
	if err != nil {
		t.Fatal(err)
	}
	if !models.IsEmptyContent(doc.Content) {
		t.Fatal("lazily created document is not empty")
	}
	if !slices.Contains(doc.BackReferences, "origin") {
		t.Fatalf("BackReferences = %v, want to contain origin", doc.BackReferences)
	}

	// Second navigate returns the same document without re-creating.
	gen := s.Gen()
	if _, err := s.Navigate("fresh", "other"); err != nil {
		t.Fatal(err)
	}
	if s.Gen() != gen {
		t.Fatal("navigate to existing document mutated the graph")
	}
}

func TestCleanup(t *testing.T) {
	s := NewStore()
	mustApply(t, s, CreateDocument{Name: "empty", Content: models.EmptyContent(), Now: now()})
	deleted, err := s.Cleanup("empty")
	if err != nil || !deleted {
		t.Fatalf("Cleanup = %v, %v; want true, nil", deleted, err)
	}

	mustApply(t, s, CreateDocument{Name: "full", Content: contentWithRefs("text"), Now: now()})
	deleted, err = s.Cleanup("full")
	if err != nil || deleted {
		t.Fatalf("Cleanup = %v, %v; want false, nil", deleted, err)
	}

	// Empty but referenced: retained as a stub.
	mustApply(t, s, CreateDocument{Name: "stub", Content: models.EmptyContent(), Now: now()})
	mustApply(t, s, UpdateDocument{Name: "full", Content: contentWithRefs("text", "stub"), Now: now()})
	deleted, err = s.Cleanup("stub")
	if err != nil || deleted {
		t.Fatalf("Cleanup = %v, %v; want false, nil", deleted, err)
	}
}

func TestListenerReportsChangedNames(t *testing.T) {
	s := NewStore()
	var got []Change
	s.Subscribe(func(c Change) { got = append(got, c) })

	mustApply(t, s, CreateDocument{Name: "b", Content: models.EmptyContent(), Now: now()})
	mustApply(t, s, CreateDocument{Name: "a", Content: contentWithRefs("", "b"), Now: now()})

	if len(got) != 2 {
		t.Fatalf("got %d changes, want 2", len(got))
	}
	// Creating a also rewrote b's back-references.
	last := got[1]
	slices.Sort(last.Documents)
	if !slices.Equal(last.Documents, []string{"a", "b"}) {
		t.Fatalf("changed = %v, want [a b]", last.Documents)
	}
}

func TestSnapshotImmutable(t *testing.T) {
	s := NewStore()
	mustApply(t, s, CreateDocument{Name: "a", Content: contentWithRefs("v1"), Now: now()})
	snap := s.Snapshot()
	mustApply(t, s, UpdateDocument{Name: "a", Content: contentWithRefs("v2"), Now: now()})
	if snap.Documents["a"].Content[0].Children[0].Text != "v1" {
		t.Fatal("earlier snapshot changed under a later mutation")
	}
}

func TestCategories(t *testing.T) {
	s := NewStore()
	s.UpsertCategory(models.Category{ID: "c1", Name: "Work", Color: "#f00"})
	s.UpsertCategory(models.Category{ID: "c1", Name: "Work2"})
	cats := s.Categories()
	if len(cats) != 1 || cats[0].Name != "Work2" {
		t.Fatalf("Categories = %v", cats)
	}
	s.DeleteCategory("c1")
	if len(s.Categories()) != 0 {
		t.Fatal("category not deleted")
	}
}
