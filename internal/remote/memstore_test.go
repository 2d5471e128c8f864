package remote

import (
	"context"
	"errors"
	"testing"

	"conceptarium/internal/models"
)

func TestUploadModes(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	rev1, err := m.Upload(ctx, "a.json", []byte("v1"), Add())
	if err != nil {
		t.Fatal(err)
	}
	if rev1 == "" {
		t.Fatal("no revision returned")
	}

	// Add on an existing path fails.
	if _, err := m.Upload(ctx, "a.json", []byte("v2"), Add()); !models.IsConflict(err) {
		t.Fatalf("err = %v, want conflict", err)
	}

	// Update against the wrong revision fails.
	if _, err := m.Upload(ctx, "a.json", []byte("v2"), Update("bogus")); !models.IsConflict(err) {
		t.Fatalf("err = %v, want conflict", err)
	}

	rev2, err := m.Upload(ctx, "a.json", []byte("v2"), Update(rev1))
	if err != nil {
		t.Fatal(err)
	}
	if rev2 == rev1 {
		t.Fatal("revision did not advance")
	}

	// Overwrite ignores the current revision.
	if _, err := m.Upload(ctx, "a.json", []byte("v3"), Overwrite()); err != nil {
		t.Fatal(err)
	}
}

func TestDownloadByRev(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	if _, err := m.Download(ctx, "a.json", ""); !models.IsNotFound(err) {
		t.Fatalf("err = %v, want not found", err)
	}

	rev1, _ := m.Upload(ctx, "a.json", []byte("v1"), Add())
	rev2, _ := m.Upload(ctx, "a.json", []byte("v2"), Update(rev1))

	latest, err := m.Download(ctx, "a.json", "")
	if err != nil {
		t.Fatal(err)
	}
	if string(latest.Data) != "v2" || latest.Rev != rev2 {
		t.Fatalf("latest = %q@%s", latest.Data, latest.Rev)
	}

	old, err := m.Download(ctx, "a.json", rev1)
	if err != nil {
		t.Fatal(err)
	}
	if string(old.Data) != "v1" {
		t.Fatalf("old = %q", old.Data)
	}

	if _, err := m.Download(ctx, "a.json", "bogus"); !models.IsNotFound(err) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()
	if _, err := m.Upload(ctx, "a.json", []byte("v1"), Add()); err != nil {
		t.Fatal(err)
	}
	if err := m.Delete(ctx, "a.json"); err != nil {
		t.Fatal(err)
	}
	if err := m.Delete(ctx, "a.json"); err != nil {
		t.Fatal(err)
	}
	if m.Rev("a.json") != "" {
		t.Fatal("file still present after delete")
	}
	// Delete also clears the history, so a fresh Add succeeds.
	if _, err := m.Upload(ctx, "a.json", []byte("v2"), Add()); err != nil {
		t.Fatal(err)
	}
}

func TestListRevisionsNewestFirst(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()
	rev1, _ := m.Upload(ctx, "a.json", []byte("v1"), Add())
	rev2, _ := m.Upload(ctx, "a.json", []byte("longer v2"), Update(rev1))

	revs, err := m.ListRevisions(ctx, "a.json")
	if err != nil {
		t.Fatal(err)
	}
	if len(revs) != 2 || revs[0].Rev != rev2 || revs[1].Rev != rev1 {
		t.Fatalf("revs = %+v", revs)
	}
	if revs[0].Size != int64(len("longer v2")) {
		t.Fatalf("Size = %d", revs[0].Size)
	}

	if _, err := m.ListRevisions(ctx, "missing"); !models.IsNotFound(err) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestFailHook(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()
	boom := errors.New("injected")
	m.SetFailHook(func(op, path string) error {
		if op == "upload" {
			return boom
		}
		return nil
	})
	if _, err := m.Upload(ctx, "a.json", []byte("v1"), Add()); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want injected failure", err)
	}
	m.SetFailHook(nil)
	if _, err := m.Upload(ctx, "a.json", []byte("v1"), Add()); err != nil {
		t.Fatal(err)
	}
}
