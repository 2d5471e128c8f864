// Package syncengine drives the debounced upload cycle and the conflict
// reconciliation flow between the live graph store and the remote
// collection.
//
// The engine observes the store, coalesces edits within a quiet window,
// uploads the dirty entities, and reacts to an optimistic-concurrency
// conflict on the manifest by fetching the divergent remote graph and
// running the three-way merge. A fully automatic merge is uploaded
// transparently; residual conflicts are parked in a resolution session.
package syncengine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"conceptarium/internal/collection"
	"conceptarium/internal/graph"
	"conceptarium/internal/jsonfile"
	"conceptarium/internal/merge"
	"conceptarium/internal/models"
	"conceptarium/internal/resolve"
)

// State is the sync state machine position.
type State string

const (
	// StateIdle means there is nothing to upload.
	StateIdle State = "idle"
	// StateDebouncedPending means local changes are waiting out the quiet
	// window.
	StateDebouncedPending State = "debounced_pending"
	// StateRequestPending means an upload is in flight.
	StateRequestPending State = "request_pending"
	// StateSuccess means the last upload completed; re-enters on change.
	StateSuccess State = "success"
	// StateFailure means the last upload failed; the user may retry.
	StateFailure State = "failure"
)

// MergeState is the reconciliation state machine position.
type MergeState string

const (
	// MergeResolved means no merge is in progress.
	MergeResolved MergeState = "resolved"
	// MergeAttempting means a conflict was detected and the automatic
	// merge is running.
	MergeAttempting MergeState = "attempting_resolution"
	// MergeConflict means manual resolution is required.
	MergeConflict MergeState = "conflict"
)

// Status is a point-in-time view of the sync state machine.
type Status struct {
	State       State     `json:"state"`
	LastSync    time.Time `json:"lastSync,omitzero"`
	LastError   string    `json:"lastError,omitempty"`
	LastFailure time.Time `json:"lastFailure,omitzero"`
}

// MergeStatus is a point-in-time view of the merge state machine.
type MergeStatus struct {
	State             MergeState `json:"state"`
	DocumentConflicts []string   `json:"documentConflicts,omitempty"`
	DrawingConflicts  []string   `json:"drawingConflicts,omitempty"`
}

// Config tunes the engine. The timing constants are configuration, not
// contract.
type Config struct {
	// Debounce is the quiet window edits are coalesced within.
	Debounce time.Duration
	// MaxMergeRounds bounds how many times a merged graph is re-merged
	// when its own upload races yet another remote writer.
	MaxMergeRounds int
	// DataDir holds the persisted base snapshot.
	DataDir string
}

// DefaultConfig returns the built-in tuning.
func DefaultConfig(dataDir string) Config {
	return Config{
		Debounce:       2 * time.Second,
		MaxMergeRounds: 3,
		DataDir:        dataDir,
	}
}

// Engine synchronizes one collection.
type Engine struct {
	store *graph.Store
	codec *collection.Codec
	cfg   Config

	ctx context.Context

	// syncMu serializes upload/merge cycles (single flight).
	syncMu sync.Mutex

	mu              sync.Mutex
	status          Status
	mergeStatus     MergeStatus
	pendingDocs     map[string]time.Time
	pendingDrawings map[string]time.Time
	timer           *time.Timer
	base            baseSnapshot
	session         *resolve.Session
	sessionRemote   *collection.Collection
	suppress        bool
	statusListeners []func(Status)
	mergeListeners  []func(MergeStatus)
}

// New creates an engine bound to a store and codec. Call Start before use.
func New(store *graph.Store, codec *collection.Codec, cfg Config) *Engine {
	if cfg.MaxMergeRounds < 1 {
		cfg.MaxMergeRounds = 1
	}
	return &Engine{
		store:           store,
		codec:           codec,
		cfg:             cfg,
		status:          Status{State: StateIdle},
		mergeStatus:     MergeStatus{State: MergeResolved},
		pendingDocs:     map[string]time.Time{},
		pendingDrawings: map[string]time.Time{},
		base:            newBaseSnapshot(),
	}
}

func (e *Engine) basePath() string {
	return filepath.Join(e.cfg.DataDir, "base.json")
}

// Start loads the persisted base snapshot, performs the initial fetch when
// the local graph is empty, and subscribes to store changes. ctx bounds all
// background work the engine starts.
func (e *Engine) Start(ctx context.Context) error {
	e.ctx = ctx

	base := newBaseSnapshot()
	if _, err := jsonfile.Load(e.basePath(), &base); err != nil {
		return fmt.Errorf("load base snapshot: %w", err)
	}
	if base.Documents == nil {
		base = newBaseSnapshot()
	}
	e.mu.Lock()
	e.base = base
	e.mu.Unlock()

	if len(base.Documents) > 0 || len(base.Drawings) > 0 {
		// Resume from the persisted base; local edits made offline are
		// detected below by hash comparison.
		e.loadIntoStore(base.graph())
		e.markDivergence(base.graph())
	} else {
		fetched, err := e.codec.Fetch(ctx)
		if err != nil {
			return fmt.Errorf("initial fetch: %w", err)
		}
		e.loadIntoStore(fetched.Graph)
		e.mu.Lock()
		e.base.setGraph(fetched.Graph)
		e.base.Revisions = fetched.Revisions
		e.base.UploadedFiles = fetched.UploadedFiles
		e.mu.Unlock()
		if err := e.persistBase(); err != nil {
			return err
		}
	}

	e.store.Subscribe(e.onChange)
	slog.Info("Sync engine started", "documents", len(base.Documents), "drawings", len(base.Drawings))
	return nil
}

// loadIntoStore replaces the store content without marking everything
// dirty.
func (e *Engine) loadIntoStore(g graph.Graph) {
	e.mu.Lock()
	e.suppress = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.suppress = false
		e.mu.Unlock()
	}()
	if err := e.store.Apply(graph.ReplaceAll{Documents: g.Documents, Drawings: g.Drawings}); err != nil {
		// ReplaceAll cannot fail.
		slog.Error("Failed to load graph into store", "err", err)
	}
}

// markDivergence marks every entity whose hash differs from the base, so
// edits made while the engine was not running are synced.
func (e *Engine) markDivergence(base graph.Graph) {
	g := e.store.Snapshot()
	now := time.Now()
	e.mu.Lock()
	for name, d := range g.Documents {
		if b, ok := base.Documents[name]; !ok || b.ContentHash != d.ContentHash {
			e.pendingDocs[name] = now
		}
	}
	for name := range base.Documents {
		if _, ok := g.Documents[name]; !ok {
			e.pendingDocs[name] = now
		}
	}
	for name, d := range g.Drawings {
		if b, ok := base.Drawings[name]; !ok || b.ContentHash != d.ContentHash {
			e.pendingDrawings[name] = now
		}
	}
	for name := range base.Drawings {
		if _, ok := g.Drawings[name]; !ok {
			e.pendingDrawings[name] = now
		}
	}
	dirty := len(e.pendingDocs)+len(e.pendingDrawings) > 0
	e.mu.Unlock()
	if dirty {
		e.armDebounce()
	}
}

// onChange is the store listener: it marks the changed entities pending
// and (re)arms the debounce timer.
func (e *Engine) onChange(change graph.Change) {
	now := time.Now()
	e.mu.Lock()
	if e.suppress {
		e.mu.Unlock()
		return
	}
	for _, name := range change.Documents {
		e.pendingDocs[name] = now
	}
	for _, name := range change.Drawings {
		e.pendingDrawings[name] = now
	}
	e.mu.Unlock()
	e.armDebounce()
}

// armDebounce schedules a flush after the quiet window, collapsing
// multiple edits within the window into one upload.
func (e *Engine) armDebounce() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setStatusLocked(Status{State: StateDebouncedPending, LastSync: e.status.LastSync})
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(e.cfg.Debounce, func() {
		if e.ctx != nil && e.ctx.Err() != nil {
			return
		}
		e.Flush()
	})
}

// Flush runs one upload cycle immediately. Safe to call concurrently; a
// cycle already in flight makes the call a no-op (the pending marks survive
// and re-arm).
func (e *Engine) Flush() {
	if !e.syncMu.TryLock() {
		return
	}
	defer e.syncMu.Unlock()
	e.flushLocked()
}

func (e *Engine) flushLocked() {
	ctx := e.ctx
	snapshotTime := time.Now()
	g := e.store.Snapshot()

	e.mu.Lock()
	pending := collection.PendingSets{
		Documents: keysOf(e.pendingDocs),
		Drawings:  keysOf(e.pendingDrawings),
	}
	indexRev := e.base.Revisions.Index
	prior := e.base.Revisions.Clone()
	uploadedFiles := e.base.UploadedFiles
	e.setStatusLocked(Status{State: StateRequestPending, LastSync: e.status.LastSync})
	e.mu.Unlock()

	if len(pending.Documents) == 0 && len(pending.Drawings) == 0 && !e.deletionsPending(g, prior) {
		e.mu.Lock()
		e.setStatusLocked(Status{State: StateIdle, LastSync: e.status.LastSync})
		e.mu.Unlock()
		return
	}

	result, err := e.codec.UploadChanged(ctx, indexRev, g, pending, prior, uploadedFiles)
	if err == nil {
		e.mu.Lock()
		e.clearMarksLocked(snapshotTime)
		e.base.setGraph(g)
		e.base.Revisions = result.Revisions
		rearm := len(e.pendingDocs)+len(e.pendingDrawings) > 0
		e.setStatusLocked(Status{State: StateSuccess, LastSync: time.Now()})
		e.mu.Unlock()
		if perr := e.persistBase(); perr != nil {
			slog.Error("Failed to persist base snapshot", "err", perr)
		}
		if rearm {
			// Edits arrived during the upload; they kept their marks.
			e.armDebounce()
		}
		return
	}

	if models.IsConflict(err) {
		slog.Info("Manifest conflict detected, merging", "err", err)
		e.reconcile(ctx, g, snapshotTime)
		return
	}

	slog.Error("Sync upload failed", "err", err)
	e.mu.Lock()
	e.setStatusLocked(Status{
		State:       StateFailure,
		LastSync:    e.status.LastSync,
		LastError:   err.Error(),
		LastFailure: time.Now(),
	})
	e.mu.Unlock()
}

// deletionsPending reports whether an entity present in the last-synced
// revisions no longer exists locally.
func (e *Engine) deletionsPending(g graph.Graph, prior collection.Revisions) bool {
	for name := range prior.Documents {
		if _, ok := g.Documents[name]; !ok {
			return true
		}
	}
	for name := range prior.Drawings {
		if _, ok := g.Drawings[name]; !ok {
			return true
		}
	}
	return false
}

// reconcile handles a manifest conflict: fetch the divergent remote state,
// three-way merge against the base, and either upload the merged graph or
// park the residual conflicts for manual resolution.
func (e *Engine) reconcile(ctx context.Context, local graph.Graph, snapshotTime time.Time) {
	e.setMergeStatus(MergeStatus{State: MergeAttempting})

	for round := 0; round < e.cfg.MaxMergeRounds; round++ {
		fetched, err := e.codec.Fetch(ctx)
		if err != nil {
			e.failMerge(fmt.Errorf("fetch remote for merge: %w", err))
			return
		}

		e.mu.Lock()
		initial := e.base.graph()
		e.mu.Unlock()

		result := merge.Graphs(initial, local, fetched.Graph)
		if result.NeedsManual() {
			session := resolve.NewSession(result, local, fetched.Graph)
			status := MergeStatus{State: MergeConflict}
			for _, c := range result.DocumentConflicts {
				status.DocumentConflicts = append(status.DocumentConflicts, c.Name)
			}
			for _, c := range result.DrawingConflicts {
				status.DrawingConflicts = append(status.DrawingConflicts, c.Name)
			}
			e.mu.Lock()
			e.session = session
			e.sessionRemote = fetched
			e.setStatusLocked(Status{State: StateFailure, LastSync: e.status.LastSync,
				LastError: "sync conflict requires manual resolution", LastFailure: time.Now()})
			e.mu.Unlock()
			e.setMergeStatus(status)
			return
		}

		err = e.uploadMerged(ctx, result.Merged, fetched, snapshotTime)
		if err == nil {
			e.setMergeStatus(MergeStatus{State: MergeResolved})
			return
		}
		if !models.IsConflict(err) {
			e.failMerge(err)
			return
		}
		// Lost another race while uploading the merged graph: merge again
		// with the merged result as the local side.
		local = result.Merged
	}
	e.failMerge(fmt.Errorf("merge upload kept conflicting after %d rounds", e.cfg.MaxMergeRounds))
}

// uploadMerged writes a fully merged graph against the fetched remote
// revisions and installs it as the new local and base state.
func (e *Engine) uploadMerged(ctx context.Context, merged graph.Graph, fetched *collection.Collection, snapshotTime time.Time) error {
	pending := diffPending(merged, fetched)
	e.mu.Lock()
	uploadedFiles := unionStrings(e.base.UploadedFiles, fetched.UploadedFiles)
	e.mu.Unlock()

	result, err := e.codec.UploadChanged(ctx, fetched.Revisions.Index, merged, pending, fetched.Revisions.Clone(), uploadedFiles)
	if err != nil {
		return err
	}

	e.loadIntoStore(merged)
	e.mu.Lock()
	e.clearMarksLocked(snapshotTime)
	e.base.setGraph(merged)
	e.base.Revisions = result.Revisions
	e.base.UploadedFiles = uploadedFiles
	rearm := len(e.pendingDocs)+len(e.pendingDrawings) > 0
	e.setStatusLocked(Status{State: StateSuccess, LastSync: time.Now()})
	e.mu.Unlock()
	if perr := e.persistBase(); perr != nil {
		slog.Error("Failed to persist base snapshot", "err", perr)
	}
	if rearm {
		// Edits arrived during the merge upload; they kept their marks.
		e.armDebounce()
	}
	return nil
}

func (e *Engine) failMerge(err error) {
	slog.Error("Merge failed", "err", err)
	e.mu.Lock()
	e.setStatusLocked(Status{
		State:       StateFailure,
		LastSync:    e.status.LastSync,
		LastError:   err.Error(),
		LastFailure: time.Now(),
	})
	e.mu.Unlock()
	e.setMergeStatus(MergeStatus{State: MergeResolved})
}

// Session returns the active resolution session, or nil.
func (e *Engine) Session() *resolve.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

// SubmitResolution finalizes the active session and uploads the result
// against the remote state the conflicts were computed from.
func (e *Engine) SubmitResolution(ctx context.Context) error {
	e.mu.Lock()
	session := e.session
	sessionRemote := e.sessionRemote
	e.mu.Unlock()
	if session == nil {
		return fmt.Errorf("no resolution session active")
	}
	final, err := session.Finalize()
	if err != nil {
		return err
	}

	e.syncMu.Lock()
	defer e.syncMu.Unlock()

	// The CAS anchor is the session's remote snapshot. If the remote moved
	// again while the user was resolving, the write conflicts and the
	// resolved graph re-enters the merge flow as the local side; the session
	// is spent either way, and reconcile opens a fresh one if manual work
	// remains.
	if err := e.uploadMerged(ctx, final, sessionRemote, time.Now()); err != nil {
		if models.IsConflict(err) {
			e.clearSession()
			e.reconcile(ctx, final, time.Now())
			return nil
		}
		return err
	}
	e.clearSession()
	e.setMergeStatus(MergeStatus{State: MergeResolved})
	return nil
}

func (e *Engine) clearSession() {
	e.mu.Lock()
	e.session = nil
	e.sessionRemote = nil
	e.mu.Unlock()
}

// Retry re-runs a failed upload immediately. Re-marking from the base is
// idempotent; marks from the failed cycle are still in place.
func (e *Engine) Retry() {
	e.mu.Lock()
	base := e.base.graph()
	e.mu.Unlock()
	e.markDivergence(base)
	e.Flush()
}

// RegisterUploadedFile records a blob id in the manifest's uploaded-files
// list; it is written with the next index upload.
func (e *Engine) RegisterUploadedFile(id string) {
	e.mu.Lock()
	e.base.UploadedFiles = unionStrings(e.base.UploadedFiles, []string{id})
	e.mu.Unlock()
	e.armDebounce()
}

// Status returns the current sync status.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// MergeStatusNow returns the current merge status.
func (e *Engine) MergeStatusNow() MergeStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mergeStatus
}

// OnStatus registers a sync-state listener.
func (e *Engine) OnStatus(l func(Status)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.statusListeners = append(e.statusListeners, l)
}

// OnMergeStatus registers a merge-state listener.
func (e *Engine) OnMergeStatus(l func(MergeStatus)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mergeListeners = append(e.mergeListeners, l)
}

// setStatusLocked updates the status and notifies listeners. Caller holds
// e.mu; listeners are invoked without it.
func (e *Engine) setStatusLocked(s Status) {
	e.status = s
	listeners := e.statusListeners
	go func() {
		for _, l := range listeners {
			l(s)
		}
	}()
}

func (e *Engine) setMergeStatus(s MergeStatus) {
	e.mu.Lock()
	e.mergeStatus = s
	listeners := e.mergeListeners
	e.mu.Unlock()
	for _, l := range listeners {
		l(s)
	}
}

// clearMarksLocked clears pending marks recorded at or before the upload
// snapshot. A mark refreshed during the in-flight upload is newer than the
// snapshot and survives, so the edit is picked up by the next cycle
// instead of being silently dropped.
func (e *Engine) clearMarksLocked(snapshotTime time.Time) {
	for name, t := range e.pendingDocs {
		if !t.After(snapshotTime) {
			delete(e.pendingDocs, name)
		}
	}
	for name, t := range e.pendingDrawings {
		if !t.After(snapshotTime) {
			delete(e.pendingDrawings, name)
		}
	}
}

func (e *Engine) persistBase() error {
	e.mu.Lock()
	snap := baseSnapshot{
		Documents:     e.base.Documents,
		Drawings:      e.base.Drawings,
		Revisions:     e.base.Revisions,
		UploadedFiles: e.base.UploadedFiles,
	}
	e.mu.Unlock()
	return jsonfile.Save(e.basePath(), &snap)
}

// diffPending computes the entities whose content differs between the
// merged graph and the fetched remote graph.
func diffPending(merged graph.Graph, fetched *collection.Collection) collection.PendingSets {
	var out collection.PendingSets
	for name, d := range merged.Documents {
		if r, ok := fetched.Graph.Documents[name]; !ok || r.ContentHash != d.ContentHash ||
			r.BackReferencesHash != d.BackReferencesHash {
			out.Documents = append(out.Documents, name)
		}
	}
	for name, d := range merged.Drawings {
		if r, ok := fetched.Graph.Drawings[name]; !ok || r.ContentHash != d.ContentHash ||
			r.BackReferencesHash != d.BackReferencesHash {
			out.Drawings = append(out.Drawings, name)
		}
	}
	return out
}

func keysOf(m map[string]time.Time) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func unionStrings(a, b []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, s := range a {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	for _, s := range b {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
