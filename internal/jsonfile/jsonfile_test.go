package jsonfile

import (
	"os"
	"path/filepath"
	"testing"
)

type payload struct {
	Name  string   `json:"name"`
	Count int      `json:"count"`
	Tags  []string `json:"tags"`
}

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	in := payload{Name: "base", Count: 3, Tags: []string{"a", "b"}}
	if err := Save(path, &in); err != nil {
		t.Fatal(err)
	}

	var out payload
	ok, err := Load(path, &out)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("Load reported the file as missing")
	}
	if out.Name != in.Name || out.Count != in.Count || len(out.Tags) != 2 {
		t.Fatalf("out = %+v", out)
	}
}

func TestLoadMissingFile(t *testing.T) {
	var out payload
	ok, err := Load(filepath.Join(t.TempDir(), "absent.json"), &out)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("missing file reported as loaded")
	}
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	var out payload
	if _, err := Load(path, &out); err == nil {
		t.Fatal("corrupt file decoded without error")
	}
}

func TestSaveReplacesAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := Save(path, &payload{Name: "v1"}); err != nil {
		t.Fatal(err)
	}
	if err := Save(path, &payload{Name: "v2"}); err != nil {
		t.Fatal(err)
	}
	var out payload
	if _, err := Load(path, &out); err != nil {
		t.Fatal(err)
	}
	if out.Name != "v2" {
		t.Fatalf("Name = %q, want v2", out.Name)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatal("temp file left behind")
	}
}
