// Package collection translates between the in-memory document graph and
// the remote file layout.
//
// The layout under the collection folder is one manifest (index.json)
// mapping every entity name to its last-synced content hash and remote
// revision, one JSON file per document or drawing, and one blob file per
// uploaded binary file. The manifest is the optimistic-concurrency anchor:
// it is always written compare-and-swap against the revision observed
// before the upload began.
package collection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"sync"

	"golang.org/x/sync/errgroup"

	"conceptarium/internal/graph"
	"conceptarium/internal/models"
	"conceptarium/internal/remote"
)

// fetchConcurrency bounds the entity-file fan-out on fetch and upload.
const fetchConcurrency = 16

// EntityStamp is one manifest entry: the entity's content hash at last sync
// and the remote revision of its file.
type EntityStamp struct {
	Hash string `json:"hash"`
	Rev  string `json:"rev"`
}

type indexFile struct {
	Documents     map[string]EntityStamp `json:"documents"`
	Drawings      map[string]EntityStamp `json:"drawings"`
	UploadedFiles []string               `json:"uploadedFiles"`
}

// Revisions tracks the remote revision tokens the client last observed.
type Revisions struct {
	Index     string            `json:"index"`
	Documents map[string]string `json:"documents"`
	Drawings  map[string]string `json:"drawings"`
}

// Clone returns a deep copy.
func (r Revisions) Clone() Revisions {
	out := Revisions{Index: r.Index, Documents: map[string]string{}, Drawings: map[string]string{}}
	for k, v := range r.Documents {
		out.Documents[k] = v
	}
	for k, v := range r.Drawings {
		out.Drawings[k] = v
	}
	return out
}

// Collection is a fully fetched remote state.
type Collection struct {
	Graph         graph.Graph
	Revisions     Revisions
	UploadedFiles []string
}

// PendingSets names the entities that must be uploaded.
type PendingSets struct {
	Documents []string
	Drawings  []string
}

// UploadResult reports the revision bookkeeping after a successful upload.
type UploadResult struct {
	Revisions Revisions
}

// Codec reads and writes a collection under a remote folder.
type Codec struct {
	files remote.Files
	dir   string
}

// New returns a codec rooted at dir on the given remote.
func New(files remote.Files, dir string) *Codec {
	return &Codec{files: files, dir: dir}
}

func (c *Codec) indexPath() string {
	return path.Join(c.dir, "index.json")
}

func (c *Codec) entityPath(name string) string {
	return path.Join(c.dir, name+".json")
}

func (c *Codec) blobPath(id string) string {
	return path.Join(c.dir, "file_"+id+".json")
}

// Fetch downloads the manifest and every entity file it references, in
// parallel. Each entity is read at the revision the manifest pins, never at
// latest: a concurrent writer overwrites entity files before it attempts
// its own manifest write, so latest may hold content the winning manifest
// never referenced. A single entity failure fails the whole fetch; a
// missing or unreadable pinned revision indicates a larger problem and is
// surfaced rather than papered over with a partial graph.
//
// A missing manifest means the collection was never synced; an empty
// Collection with no index revision is returned.
func (c *Codec) Fetch(ctx context.Context) (*Collection, error) {
	content, err := c.files.Download(ctx, c.indexPath(), "")
	if err != nil {
		if models.IsNotFound(err) {
			return &Collection{Graph: graph.NewGraph(), Revisions: Revisions{
				Documents: map[string]string{},
				Drawings:  map[string]string{},
			}}, nil
		}
		return nil, fmt.Errorf("fetch index: %w", err)
	}
	var idx indexFile
	if err := json.Unmarshal(content.Data, &idx); err != nil {
		return nil, fmt.Errorf("decode index %s: %w", c.indexPath(), err)
	}

	out := &Collection{
		Graph: graph.NewGraph(),
		Revisions: Revisions{
			Index:     content.Rev,
			Documents: map[string]string{},
			Drawings:  map[string]string{},
		},
		UploadedFiles: idx.UploadedFiles,
	}

	var mu sync.Mutex
	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(fetchConcurrency)
	for name, stamp := range idx.Documents {
		eg.Go(func() error {
			data, err := c.files.Download(ectx, c.entityPath(name), stamp.Rev)
			if err != nil {
				return fmt.Errorf("fetch document %q: %w", name, err)
			}
			var doc models.Document
			if err := json.Unmarshal(data.Data, &doc); err != nil {
				return fmt.Errorf("decode document %q: %w", name, err)
			}
			mu.Lock()
			out.Graph.Documents[name] = &doc
			out.Revisions.Documents[name] = data.Rev
			mu.Unlock()
			return nil
		})
	}
	for name, stamp := range idx.Drawings {
		eg.Go(func() error {
			data, err := c.files.Download(ectx, c.entityPath(name), stamp.Rev)
			if err != nil {
				return fmt.Errorf("fetch drawing %q: %w", name, err)
			}
			var drw models.Drawing
			if err := json.Unmarshal(data.Data, &drw); err != nil {
				return fmt.Errorf("decode drawing %q: %w", name, err)
			}
			mu.Lock()
			out.Graph.Drawings[name] = &drw
			out.Revisions.Drawings[name] = data.Rev
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	slog.Debug("Fetched collection", "dir", c.dir,
		"documents", len(out.Graph.Documents), "drawings", len(out.Graph.Drawings))
	return out, nil
}

// UploadChanged uploads the named pending entities, then rewrites the
// manifest compare-and-swap against indexRev (or create-only when indexRev
// is empty, i.e. first sync). A ConflictError from the manifest write means
// another client synced first; the caller reacts by merging, never by
// retrying the write as-is.
//
// Entities present in prior but absent from g were deleted locally; their
// remote files are removed after the manifest write succeeds, so a manifest
// race never orphans data the winning manifest still references.
func (c *Codec) UploadChanged(ctx context.Context, indexRev string, g graph.Graph, pending PendingSets, prior Revisions, uploadedFiles []string) (*UploadResult, error) {
	next := prior.Clone()
	next.Index = indexRev

	var mu sync.Mutex
	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(fetchConcurrency)
	for _, name := range pending.Documents {
		doc, ok := g.Documents[name]
		if !ok {
			continue // deleted since being marked; handled below
		}
		eg.Go(func() error {
			rev, err := c.uploadEntity(ectx, name, doc)
			if err != nil {
				return err
			}
			mu.Lock()
			next.Documents[name] = rev
			mu.Unlock()
			return nil
		})
	}
	for _, name := range pending.Drawings {
		drw, ok := g.Drawings[name]
		if !ok {
			continue
		}
		eg.Go(func() error {
			rev, err := c.uploadEntity(ectx, name, drw)
			if err != nil {
				return err
			}
			mu.Lock()
			next.Drawings[name] = rev
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var deletedDocs, deletedDrawings []string
	for name := range prior.Documents {
		if _, ok := g.Documents[name]; !ok {
			delete(next.Documents, name)
			deletedDocs = append(deletedDocs, name)
		}
	}
	for name := range prior.Drawings {
		if _, ok := g.Drawings[name]; !ok {
			delete(next.Drawings, name)
			deletedDrawings = append(deletedDrawings, name)
		}
	}

	idx := indexFile{
		Documents:     map[string]EntityStamp{},
		Drawings:      map[string]EntityStamp{},
		UploadedFiles: uploadedFiles,
	}
	for name, doc := range g.Documents {
		idx.Documents[name] = EntityStamp{Hash: doc.ContentHash, Rev: next.Documents[name]}
	}
	for name, drw := range g.Drawings {
		idx.Drawings[name] = EntityStamp{Hash: drw.ContentHash, Rev: next.Drawings[name]}
	}
	data, err := json.Marshal(&idx)
	if err != nil {
		return nil, fmt.Errorf("encode index: %w", err)
	}
	mode := remote.Update(indexRev)
	if indexRev == "" {
		mode = remote.Add()
	}
	newIndexRev, err := c.files.Upload(ctx, c.indexPath(), data, mode)
	if err != nil {
		return nil, err
	}
	next.Index = newIndexRev

	for _, name := range append(deletedDocs, deletedDrawings...) {
		if err := c.files.Delete(ctx, c.entityPath(name)); err != nil {
			// The manifest no longer references the file; a leftover is
			// harmless and will be overwritten if the name is reused.
			slog.Warn("Failed to delete remote entity file", "name", name, "err", err)
		}
	}

	slog.Debug("Uploaded collection changes", "dir", c.dir,
		"documents", len(pending.Documents), "drawings", len(pending.Drawings),
		"deleted", len(deletedDocs)+len(deletedDrawings))
	return &UploadResult{Revisions: next}, nil
}

func (c *Codec) uploadEntity(ctx context.Context, name string, entity any) (string, error) {
	data, err := json.Marshal(entity)
	if err != nil {
		return "", fmt.Errorf("encode entity %q: %w", name, err)
	}
	// Per-entity files are not the concurrency anchor; last write wins here
	// and divergence is caught by the manifest write.
	rev, err := c.files.Upload(ctx, c.entityPath(name), data, remote.Overwrite())
	if err != nil {
		return "", fmt.Errorf("upload entity %q: %w", name, err)
	}
	return rev, nil
}
