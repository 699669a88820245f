// Package api exposes the certificate validation service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/Lllllllleong/certificateflow/internal/models"
	"github.com/Lllllllleong/certificateflow/internal/services"
	"github.com/Lllllllleong/certificateflow/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxUploadMemory is the multipart form size kept in memory; larger parts spill to disk.
const maxUploadMemory = 32 << 20

// Service defines the validation operations served over HTTP.
type Service interface {
	Submit(ctx context.Context, uploads []services.Upload) (*models.UploadResponse, error)
	Status(ctx context.Context, id string) (*models.Session, error)
	Results(ctx context.Context, id string) (*models.ResultsResponse, error)
	Download(ctx context.Context, id, kind string) (io.ReadCloser, string, error)
	Sessions(ctx context.Context) ([]models.SessionSummary, error)
	Delete(ctx context.Context, id string) error
}

// Handler wires validation endpoints to the service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// Register mounts the validation endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/", h.HandleInfo)
	r.Post("/upload-certificates/", h.HandleUpload)
	r.Post("/upload-certificates", h.HandleUpload)
	r.Get("/status/{sessionID}", h.HandleStatus)
	r.Get("/results/{sessionID}", h.HandleResults)
	r.Get("/download/{sessionID}/{kind}", h.HandleDownload)
	r.Get("/sessions", h.HandleSessions)
	r.Delete("/session/{sessionID}", h.HandleDelete)
}

// Router builds the complete HTTP surface, including /metrics when gatherer is set.
func Router(h *Handler, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	h.Register(r)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// HandleInfo handles GET /.
func (h *Handler) HandleInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message":     "Certificate Validation API",
		"version":     "1.0.0",
		"description": "Upload certificates for AI-powered validation and verification",
		"endpoints": map[string]string{
			"upload":   "/upload-certificates/",
			"status":   "/status/{session_id}",
			"results":  "/results/{session_id}",
			"download": "/download/{session_id}/{accepted|rejected}",
			"sessions": "/sessions",
			"delete":   "/session/{session_id}",
		},
	})
}

// HandleUpload handles POST /upload-certificates/ with multipart "files".
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeDetail(w, http.StatusBadRequest, "No files uploaded")
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["files"]
	uploads := make([]services.Upload, 0, len(headers))
	for _, fh := range headers {
		content, err := readPart(fh)
		if err != nil {
			writeDetail(w, http.StatusBadRequest, fmt.Sprintf("Error reading file %s: %v", fh.Filename, err))
			return
		}
		uploads = append(uploads, services.Upload{Name: fh.Filename, Content: content})
	}

	resp, err := h.service.Submit(r.Context(), uploads)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.logger.Info("Certificates queued.", "sessionId", resp.SessionID, "files", len(resp.UploadedFiles))
	writeJSON(w, http.StatusOK, resp)
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// HandleStatus handles GET /status/{sessionID}.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	s, err := h.service.Status(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// HandleResults handles GET /results/{sessionID}.
func (h *Handler) HandleResults(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Results(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleDownload handles GET /download/{sessionID}/{kind}.
func (h *Handler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	rc, filename, err := h.service.Download(r.Context(), chi.URLParam(r, "sessionID"), chi.URLParam(r, "kind"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Error("Failed to stream archive.", "file", filename, "error", err)
	}
}

// HandleSessions handles GET /sessions.
func (h *Handler) HandleSessions(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.Sessions(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": list})
}

// HandleDelete handles DELETE /session/{sessionID}.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("Session %s deleted successfully", id)})
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrSessionNotFound), errors.Is(err, services.ErrNoResults):
		return http.StatusNotFound
	case errors.Is(err, services.ErrNoFiles),
		errors.Is(err, services.ErrUnsupportedFile),
		errors.Is(err, services.ErrNotCompleted),
		errors.Is(err, services.ErrInvalidKind):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	detail := err.Error()
	if code == http.StatusInternalServerError {
		h.logger.Error("Request failed.", "method", r.Method, "path", r.URL.Path, "error", err)
		detail = "Internal Server Error"
	}
	writeDetail(w, code, detail)
}

func writeDetail(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write response.", "error", err)
	}
}
