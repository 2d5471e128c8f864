// Typed request handlers for the HTTP API.

package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"conceptarium/internal/collection"
	"conceptarium/internal/graph"
	"conceptarium/internal/models"
	"conceptarium/internal/resolve"
	"conceptarium/internal/syncengine"
)

// Handlers bundles the services the API exposes.
type Handlers struct {
	Store  *graph.Store
	Engine *syncengine.Engine
	Codec  *collection.Codec
}

var errNameRequired = errors.New("name is required")

// validEntityName rejects names that would collide with or escape the
// remote collection layout: "index" is the manifest file, the "file_"
// prefix is the blob namespace, and path separators would traverse
// directories on the remote.
func validEntityName(name string) error {
	if name == "" {
		return errNameRequired
	}
	if strings.ContainsAny(name, "/\\") {
		return errors.New("name must not contain path separators")
	}
	if name == "index" || strings.HasPrefix(name, "file_") {
		return fmt.Errorf("name %q is reserved", name)
	}
	return nil
}

// Empty is the request/response type for endpoints with no payload.
type Empty struct{}

func (*Empty) Validate() error { return nil }

// --- Health ---

// HealthResponse reports liveness and version.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

func (h *Handlers) health(version string) func(context.Context, *Empty) (*HealthResponse, error) {
	return func(ctx context.Context, _ *Empty) (*HealthResponse, error) {
		return &HealthResponse{Status: "ok", Version: version}, nil
	}
}

// --- Documents ---

// ListEntry is one row in the document or drawing listing.
type ListEntry struct {
	Name            string    `json:"name"`
	DisplayName     string    `json:"displayName,omitempty"`
	CategoryID      string    `json:"categoryId,omitempty"`
	LastUpdatedDate time.Time `json:"lastUpdatedDate"`
}

// ListResponse is the listing payload.
type ListResponse struct {
	Documents []ListEntry `json:"documents,omitempty"`
	Drawings  []ListEntry `json:"drawings,omitempty"`
}

// ListDocuments returns every document and drawing by name.
func (h *Handlers) ListDocuments(ctx context.Context, _ *Empty) (*ListResponse, error) {
	g := h.Store.Snapshot()
	out := &ListResponse{}
	for name, d := range g.Documents {
		out.Documents = append(out.Documents, ListEntry{
			Name:            name,
			DisplayName:     d.DisplayName,
			CategoryID:      d.CategoryID,
			LastUpdatedDate: d.LastUpdatedDate,
		})
	}
	for name, d := range g.Drawings {
		out.Drawings = append(out.Drawings, ListEntry{
			Name:            name,
			LastUpdatedDate: d.LastUpdatedDate,
		})
	}
	return out, nil
}

// GetDocumentRequest fetches one document.
type GetDocumentRequest struct {
	Name string `path:"name"`
}

func (r *GetDocumentRequest) Validate() error {
	return validEntityName(r.Name)
}

// GetDocument returns one document with content and back-references.
func (h *Handlers) GetDocument(ctx context.Context, req *GetDocumentRequest) (*models.Document, error) {
	return h.Store.Document(req.Name)
}

// NavigateRequest opens a document, lazily creating it.
type NavigateRequest struct {
	Name string `path:"name"`
	// From names the entity navigation originated at; it seeds the new
	// document's back-references when creation happens.
	From string `json:"from,omitempty"`
}

func (r *NavigateRequest) Validate() error {
	return validEntityName(r.Name)
}

// Navigate returns the named document, creating an empty one when absent.
func (h *Handlers) Navigate(ctx context.Context, req *NavigateRequest) (*models.Document, error) {
	return h.Store.Navigate(req.Name, req.From)
}

// CreateDocumentRequest creates a document under a new name.
type CreateDocumentRequest struct {
	Name        string         `path:"name"`
	DisplayName string         `json:"displayName,omitempty"`
	CategoryID  string         `json:"categoryId,omitempty"`
	Content     []*models.Node `json:"content"`
}

func (r *CreateDocumentRequest) Validate() error {
	return validEntityName(r.Name)
}

// CreateDocument creates a document.
func (h *Handlers) CreateDocument(ctx context.Context, req *CreateDocumentRequest) (*models.Document, error) {
	content := req.Content
	if len(content) == 0 {
		content = models.EmptyContent()
	}
	err := h.Store.Apply(graph.CreateDocument{
		Name:        req.Name,
		DisplayName: req.DisplayName,
		CategoryID:  req.CategoryID,
		Content:     content,
		Now:         time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return h.Store.Document(req.Name)
}

// UpdateDocumentRequest replaces a document's content.
type UpdateDocumentRequest struct {
	Name    string         `path:"name"`
	Content []*models.Node `json:"content"`
}

func (r *UpdateDocumentRequest) Validate() error {
	if err := validEntityName(r.Name); err != nil {
		return err
	}
	if len(r.Content) == 0 {
		return errors.New("content is required")
	}
	return nil
}

// UpdateDocument replaces a document's content.
func (h *Handlers) UpdateDocument(ctx context.Context, req *UpdateDocumentRequest) (*models.Document, error) {
	err := h.Store.Apply(graph.UpdateDocument{
		Name:    req.Name,
		Content: req.Content,
		Now:     time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return h.Store.Document(req.Name)
}

// DeleteRequest deletes a document or drawing by name.
type DeleteRequest struct {
	Name string `path:"name"`
}

func (r *DeleteRequest) Validate() error {
	return validEntityName(r.Name)
}

// DeleteDocument removes a document; fails while other entities reference
// it.
func (h *Handlers) DeleteDocument(ctx context.Context, req *DeleteRequest) (*Empty, error) {
	if err := h.Store.Apply(graph.DeleteDocument{Name: req.Name}); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}

// CleanupResponse reports whether the navigate-away rule removed the
// document.
type CleanupResponse struct {
	Deleted bool `json:"deleted"`
}

// CleanupDocument applies the navigate-away rule to the named document.
func (h *Handlers) CleanupDocument(ctx context.Context, req *DeleteRequest) (*CleanupResponse, error) {
	deleted, err := h.Store.Cleanup(req.Name)
	if err != nil {
		return nil, err
	}
	return &CleanupResponse{Deleted: deleted}, nil
}

// --- Drawings ---

// GetDrawing returns one drawing.
func (h *Handlers) GetDrawing(ctx context.Context, req *GetDocumentRequest) (*models.Drawing, error) {
	return h.Store.Drawing(req.Name)
}

// SaveDrawingRequest creates or replaces a drawing's canvas.
type SaveDrawingRequest struct {
	Name     string            `path:"name"`
	Elements []*models.Element `json:"elements"`
	Size     models.Size       `json:"size"`
	FilesIDs []string          `json:"filesIds,omitempty"`
}

func (r *SaveDrawingRequest) Validate() error {
	return validEntityName(r.Name)
}

// SaveDrawing creates the drawing when absent, otherwise replaces its
// canvas state.
func (h *Handlers) SaveDrawing(ctx context.Context, req *SaveDrawingRequest) (*models.Drawing, error) {
	now := time.Now().UTC()
	var err error
	if _, derr := h.Store.Drawing(req.Name); models.IsNotFound(derr) {
		err = h.Store.Apply(graph.CreateDrawing{
			Name:     req.Name,
			Elements: req.Elements,
			Size:     req.Size,
			FilesIDs: req.FilesIDs,
			Now:      now,
		})
	} else {
		err = h.Store.Apply(graph.UpdateDrawing{
			Name:     req.Name,
			Elements: req.Elements,
			Size:     req.Size,
			FilesIDs: req.FilesIDs,
			Now:      now,
		})
	}
	if err != nil {
		return nil, err
	}
	return h.Store.Drawing(req.Name)
}

// DeleteDrawing removes a drawing; fails while other entities reference it.
func (h *Handlers) DeleteDrawing(ctx context.Context, req *DeleteRequest) (*Empty, error) {
	if err := h.Store.Apply(graph.DeleteDrawing{Name: req.Name}); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}

// --- Categories ---

// CategoriesResponse lists the local category table.
type CategoriesResponse struct {
	Categories []models.Category `json:"categories"`
}

// ListCategories returns all categories.
func (h *Handlers) ListCategories(ctx context.Context, _ *Empty) (*CategoriesResponse, error) {
	return &CategoriesResponse{Categories: h.Store.Categories()}, nil
}

// UpsertCategoryRequest creates or updates a category.
type UpsertCategoryRequest struct {
	ID    string `path:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

func (r *UpsertCategoryRequest) Validate() error {
	if r.ID == "" {
		return errors.New("id is required")
	}
	if r.Name == "" {
		return errNameRequired
	}
	return nil
}

// UpsertCategory stores a category.
func (h *Handlers) UpsertCategory(ctx context.Context, req *UpsertCategoryRequest) (*models.Category, error) {
	c := models.Category{ID: req.ID, Name: req.Name, Color: req.Color}
	h.Store.UpsertCategory(c)
	return &c, nil
}

// DeleteCategoryRequest removes a category.
type DeleteCategoryRequest struct {
	ID string `path:"id"`
}

func (r *DeleteCategoryRequest) Validate() error {
	if r.ID == "" {
		return errors.New("id is required")
	}
	return nil
}

// DeleteCategory removes a category; documents keep their id.
func (h *Handlers) DeleteCategory(ctx context.Context, req *DeleteCategoryRequest) (*Empty, error) {
	h.Store.DeleteCategory(req.ID)
	return &Empty{}, nil
}

// --- Files ---

// UploadFileRequest uploads a binary attachment.
type UploadFileRequest struct {
	Name string `json:"name,omitempty"`
	Mime string `json:"mime,omitempty"`
	Data []byte `json:"data"`
}

func (r *UploadFileRequest) Validate() error {
	if len(r.Data) == 0 {
		return errors.New("data is required")
	}
	return nil
}

// UploadFileResponse returns the assigned file id.
type UploadFileResponse struct {
	ID string `json:"id"`
}

// UploadFile stores a blob on the remote and registers its id for the next
// manifest write.
func (h *Handlers) UploadFile(ctx context.Context, req *UploadFileRequest) (*UploadFileResponse, error) {
	blob := collection.Blob{
		ID:   collection.NewBlobID(),
		Name: req.Name,
		Mime: req.Mime,
		Data: req.Data,
	}
	if err := h.Codec.UploadBlob(ctx, blob); err != nil {
		return nil, err
	}
	h.Engine.RegisterUploadedFile(blob.ID)
	return &UploadFileResponse{ID: blob.ID}, nil
}

// GetFileRequest fetches a blob by id.
type GetFileRequest struct {
	ID string `path:"id"`
}

func (r *GetFileRequest) Validate() error {
	if r.ID == "" {
		return errors.New("id is required")
	}
	if strings.ContainsAny(r.ID, "/\\") {
		return errors.New("id must not contain path separators")
	}
	return nil
}

// GetFile returns a stored blob.
func (h *Handlers) GetFile(ctx context.Context, req *GetFileRequest) (*collection.Blob, error) {
	return h.Codec.DownloadBlob(ctx, req.ID)
}

// --- Sync ---

// SyncStatusResponse combines the sync and merge state machines.
type SyncStatusResponse struct {
	Sync  syncengine.Status      `json:"sync"`
	Merge syncengine.MergeStatus `json:"merge"`
}

// SyncStatus returns the current sync and merge states.
func (h *Handlers) SyncStatus(ctx context.Context, _ *Empty) (*SyncStatusResponse, error) {
	return &SyncStatusResponse{
		Sync:  h.Engine.Status(),
		Merge: h.Engine.MergeStatusNow(),
	}, nil
}

// SyncFlush forces an upload cycle without waiting out the quiet window.
func (h *Handlers) SyncFlush(ctx context.Context, _ *Empty) (*SyncStatusResponse, error) {
	h.Engine.Flush()
	return h.SyncStatus(ctx, nil)
}

// SyncRetry re-runs a failed upload.
func (h *Handlers) SyncRetry(ctx context.Context, _ *Empty) (*SyncStatusResponse, error) {
	h.Engine.Retry()
	return h.SyncStatus(ctx, nil)
}

// --- Conflict resolution ---

// ConflictsResponse lists the entities awaiting manual resolution.
type ConflictsResponse struct {
	Conflicts []resolve.Conflict `json:"conflicts"`
	Resolved  bool               `json:"resolved"`
}

var errNoSession = &models.NotFoundError{Name: "conflict resolution session"}

// ListConflicts returns the active resolution session's conflicts. An empty
// list with Resolved=true means no resolution is in progress.
func (h *Handlers) ListConflicts(ctx context.Context, _ *Empty) (*ConflictsResponse, error) {
	session := h.Engine.Session()
	if session == nil {
		return &ConflictsResponse{Resolved: true}, nil
	}
	return &ConflictsResponse{Conflicts: session.Conflicts(), Resolved: session.Resolved()}, nil
}

// ChooseRequest resolves one conflict.
type ChooseRequest struct {
	Name   string         `path:"name"`
	Choice resolve.Choice `json:"choice"`
	// Content replaces the document content when Choice is "edit".
	Content []*models.Node `json:"content,omitempty"`
	// Elements replaces the drawing canvas when Choice is "edit".
	Elements []*models.Element `json:"elements,omitempty"`
}

func (r *ChooseRequest) Validate() error {
	if r.Name == "" {
		return errNameRequired
	}
	switch r.Choice {
	case resolve.ChoiceLeft, resolve.ChoiceRight:
		return nil
	case resolve.ChoiceEdit:
		if len(r.Content) == 0 && len(r.Elements) == 0 {
			return errors.New("edit choice requires content or elements")
		}
		return nil
	}
	return errors.New("choice must be left, right or edit")
}

// Choose records a decision for one conflicted entity.
func (h *Handlers) Choose(ctx context.Context, req *ChooseRequest) (*ConflictsResponse, error) {
	session := h.Engine.Session()
	if session == nil {
		return nil, errNoSession
	}
	var err error
	switch req.Choice {
	case resolve.ChoiceLeft:
		err = session.ChooseLeft(req.Name)
	case resolve.ChoiceRight:
		err = session.ChooseRight(req.Name)
	case resolve.ChoiceEdit:
		if len(req.Elements) > 0 {
			err = session.EditDrawing(req.Name, req.Elements)
		} else {
			err = session.EditDocument(req.Name, req.Content)
		}
	}
	if err != nil {
		return nil, err
	}
	return h.ListConflicts(ctx, nil)
}

// SubmitResolution finalizes the session and uploads the resolved graph.
func (h *Handlers) SubmitResolution(ctx context.Context, _ *Empty) (*SyncStatusResponse, error) {
	if h.Engine.Session() == nil {
		return nil, errNoSession
	}
	if err := h.Engine.SubmitResolution(ctx); err != nil {
		return nil, err
	}
	return h.SyncStatus(ctx, nil)
}
