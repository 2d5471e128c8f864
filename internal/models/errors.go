// Typed error taxonomy for the graph, sync and merge subsystems.

package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// NotFoundError reports an operation on an entity that does not exist.
// This is a programmer or data error in normal operation and is expected to
// fail loudly rather than no-op.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("entity %q not found", e.Name)
}

// DuplicateNameError reports a create for a name that already exists.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("entity %q already exists", e.Name)
}

// ReferencedEntityError blocks deletion of an entity that other entities
// still reference. Referrers lists the blocking entity names for display.
type ReferencedEntityError struct {
	Name      string
	Referrers []string
}

func (e *ReferencedEntityError) Error() string {
	return fmt.Sprintf("entity %q is still referenced by %s", e.Name, strings.Join(e.Referrers, ", "))
}

// ConflictError reports an optimistic-concurrency failure: the revision the
// write carried is no longer the latest one. It is expected, drives the
// merge flow, and is never surfaced raw to the user.
type ConflictError struct {
	Path        string
	ExpectedRev string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("revision conflict on %q (expected rev %s)", e.Path, e.ExpectedRev)
}

// TransientError wraps a network or rate-limit failure that is safe to
// retry. RetryAfter is a server-suggested delay, zero when absent.
type TransientError struct {
	Op         string
	Err        error
	RetryAfter time.Duration
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// UnresolvableMergeError reports that the structural merge of a single
// entity could not be computed automatically. It is not fatal to the overall
// merge; only the affected entity is deferred to manual resolution.
type UnresolvableMergeError struct {
	Name string
	Path string // node path inside the tree, for diagnostics
	Msg  string
}

func (e *UnresolvableMergeError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("cannot auto-merge %q at %s: %s", e.Name, e.Path, e.Msg)
	}
	return fmt.Sprintf("cannot auto-merge %q: %s", e.Name, e.Msg)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}

// IsTransient reports whether err is a TransientError.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}
