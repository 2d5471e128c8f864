// Package server implements the HTTP server and routing logic.
package server

import (
	"log/slog"
	"net/http"
	"time"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(h *Handlers, version string) http.Handler {
	mux := &http.ServeMux{}

	// Health check
	mux.Handle("GET /api/health", Wrap(h.health(version)))

	// Document endpoints
	mux.Handle("GET /api/documents", Wrap(h.ListDocuments))
	mux.Handle("GET /api/documents/{name}", Wrap(h.GetDocument))
	mux.Handle("POST /api/documents/{name}", Wrap(h.CreateDocument))
	mux.Handle("PUT /api/documents/{name}", Wrap(h.UpdateDocument))
	mux.Handle("DELETE /api/documents/{name}", Wrap(h.DeleteDocument))
	mux.Handle("POST /api/documents/{name}/navigate", Wrap(h.Navigate))
	mux.Handle("POST /api/documents/{name}/cleanup", Wrap(h.CleanupDocument))

	// Drawing endpoints
	mux.Handle("GET /api/drawings/{name}", Wrap(h.GetDrawing))
	mux.Handle("PUT /api/drawings/{name}", Wrap(h.SaveDrawing))
	mux.Handle("DELETE /api/drawings/{name}", Wrap(h.DeleteDrawing))

	// Category endpoints
	mux.Handle("GET /api/categories", Wrap(h.ListCategories))
	mux.Handle("PUT /api/categories/{id}", Wrap(h.UpsertCategory))
	mux.Handle("DELETE /api/categories/{id}", Wrap(h.DeleteCategory))

	// File endpoints
	mux.Handle("POST /api/files", Wrap(h.UploadFile))
	mux.Handle("GET /api/files/{id}", Wrap(h.GetFile))

	// Sync endpoints
	mux.Handle("GET /api/sync/status", Wrap(h.SyncStatus))
	mux.Handle("POST /api/sync/flush", Wrap(h.SyncFlush))
	mux.Handle("POST /api/sync/retry", Wrap(h.SyncRetry))

	// Conflict resolution endpoints
	mux.Handle("GET /api/sync/conflicts", Wrap(h.ListConflicts))
	mux.Handle("POST /api/sync/conflicts/{name}", Wrap(h.Choose))
	mux.Handle("POST /api/sync/conflicts/submit", Wrap(h.SubmitResolution))

	return logRequests(mux)
}

// logRequests logs each request with its status and duration.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		slog.DebugContext(r.Context(), "HTTP",
			"method", r.Method, "path", r.URL.Path,
			"status", sw.status, "dur", time.Since(start).Round(time.Microsecond))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
