// Package remote defines the object-storage contract the sync core talks
// to, plus the adapters that implement it.
//
// The store is treated as an opaque remote filesystem with per-file
// revision tokens. Writes can be unconditional (overwrite), create-only
// (add) or compare-and-swap against an expected revision (update); a stale
// update revision yields a ConflictError, which is the sole
// conflict-detection mechanism of the whole sync design.
package remote

import (
	"context"
	"time"
)

// Content is a downloaded file: its bytes and the revision token it was
// read at.
type Content struct {
	Data []byte
	Rev  string
}

// Revision describes one historical revision of a file.
type Revision struct {
	Rev      string
	Modified time.Time
	Size     int64
}

type modeKind int

const (
	modeOverwrite modeKind = iota
	modeAdd
	modeUpdate
)

// Mode selects upload semantics. Use the Overwrite, Add and Update
// constructors.
type Mode struct {
	kind modeKind
	rev  string
}

// Overwrite replaces the file unconditionally.
func Overwrite() Mode { return Mode{kind: modeOverwrite} }

// Add creates the file and fails with a ConflictError when it already
// exists.
func Add() Mode { return Mode{kind: modeAdd} }

// Update replaces the file only if its current revision equals rev,
// otherwise fails with a ConflictError.
func Update(rev string) Mode { return Mode{kind: modeUpdate, rev: rev} }

// IsUpdate reports whether the mode is a compare-and-swap and returns the
// expected revision.
func (m Mode) IsUpdate() (string, bool) {
	return m.rev, m.kind == modeUpdate
}

// IsAdd reports whether the mode is create-only.
func (m Mode) IsAdd() bool { return m.kind == modeAdd }

// Files is the remote object-storage API.
//
// Implementations return the typed errors from the models package:
// NotFoundError for missing paths, ConflictError for failed preconditions,
// and TransientError for network or rate-limit failures that a caller may
// retry.
type Files interface {
	// Download fetches a file. An empty rev fetches the latest revision;
	// a non-empty rev fetches that specific revision.
	Download(ctx context.Context, path, rev string) (Content, error)
	// Upload writes a file under the given mode and returns the new
	// revision token.
	Upload(ctx context.Context, path string, data []byte, mode Mode) (string, error)
	// Delete removes a file. Deleting a missing file is not an error.
	Delete(ctx context.Context, path string) error
	// ListRevisions returns the known revisions of a file, newest first.
	ListRevisions(ctx context.Context, path string) ([]Revision, error)
}
