// In-memory Files implementation with revision history.
//
// Backs local development and the test suites: it honors the same mode and
// error semantics as the real adapters and supports fault injection.

package remote

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"conceptarium/internal/models"
)

type memVersion struct {
	data     []byte
	rev      string
	modified time.Time
}

// MemStore is an in-memory Files implementation.
type MemStore struct {
	mu       sync.Mutex
	files    map[string][]memVersion // oldest first
	uploads  uint64
	failHook func(op, path string) error
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{files: map[string][]memVersion{}}
}

// SetFailHook installs a hook consulted before every operation; a non-nil
// return aborts the operation with that error. Pass nil to clear.
func (m *MemStore) SetFailHook(hook func(op, path string) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failHook = hook
}

func (m *MemStore) checkFail(op, path string) error {
	if m.failHook != nil {
		return m.failHook(op, path)
	}
	return nil
}

// Download implements Files.
func (m *MemStore) Download(ctx context.Context, path, rev string) (Content, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkFail("download", path); err != nil {
		return Content{}, err
	}
	versions := m.files[path]
	if len(versions) == 0 {
		return Content{}, &models.NotFoundError{Name: path}
	}
	if rev == "" {
		latest := versions[len(versions)-1]
		return Content{Data: slices.Clone(latest.data), Rev: latest.rev}, nil
	}
	for _, v := range versions {
		if v.rev == rev {
			return Content{Data: slices.Clone(v.data), Rev: v.rev}, nil
		}
	}
	return Content{}, &models.NotFoundError{Name: path + "@" + rev}
}

// Upload implements Files.
func (m *MemStore) Upload(ctx context.Context, path string, data []byte, mode Mode) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkFail("upload", path); err != nil {
		return "", err
	}
	versions := m.files[path]
	if mode.IsAdd() && len(versions) > 0 {
		return "", &models.ConflictError{Path: path}
	}
	if expected, ok := mode.IsUpdate(); ok {
		var current string
		if len(versions) > 0 {
			current = versions[len(versions)-1].rev
		}
		if current != expected {
			return "", &models.ConflictError{Path: path, ExpectedRev: expected}
		}
	}
	m.uploads++
	rev := fmt.Sprintf("%d-%08x", m.uploads, xxhash.Sum64(data)&0xffffffff)
	m.files[path] = append(versions, memVersion{
		data:     slices.Clone(data),
		rev:      rev,
		modified: time.Now().UTC(),
	})
	return rev, nil
}

// Delete implements Files.
func (m *MemStore) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkFail("delete", path); err != nil {
		return err
	}
	delete(m.files, path)
	return nil
}

// ListRevisions implements Files.
func (m *MemStore) ListRevisions(ctx context.Context, path string) ([]Revision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkFail("list_revisions", path); err != nil {
		return nil, err
	}
	versions := m.files[path]
	if len(versions) == 0 {
		return nil, &models.NotFoundError{Name: path}
	}
	out := make([]Revision, 0, len(versions))
	for i := len(versions) - 1; i >= 0; i-- {
		v := versions[i]
		out = append(out, Revision{Rev: v.rev, Modified: v.modified, Size: int64(len(v.data))})
	}
	return out, nil
}

// Rev returns the current revision of a path, or empty when absent. Test
// helper.
func (m *MemStore) Rev(path string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	versions := m.files[path]
	if len(versions) == 0 {
		return ""
	}
	return versions[len(versions)-1].rev
}

// Paths returns all stored paths, sorted. Test helper.
func (m *MemStore) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.files))
	for p := range m.files {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}
