package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ytsnap/ytsnap/internal/domain"
	"github.com/ytsnap/ytsnap/internal/service"
)

// DownloadHandler exposes download runs over HTTP.
type DownloadHandler struct {
	runs   *service.RunService
	logger *slog.Logger
}

func NewDownloadHandler(runs *service.RunService, logger *slog.Logger) *DownloadHandler {
	return &DownloadHandler{runs: runs, logger: logger}
}

// SubmitRequest is the JSON body for POST /downloads. Exactly one of
// playlist and video must be set; omitting max_workers uses the server's
// configured default.
type SubmitRequest struct {
	Playlist   string `json:"playlist,omitempty"`
	Video      string `json:"video,omitempty"`
	OutputDir  string `json:"output_dir,omitempty"`
	Quality    string `json:"quality,omitempty"`
	Itag       int    `json:"itag,omitempty"`
	MaxWorkers *int   `json:"max_workers,omitempty"`
	NoResume   bool   `json:"no_resume,omitempty"`
}

// ListResponse wraps the run list.
type ListResponse struct {
	Runs  []*service.Run `json:"runs"`
	Total int            `json:"total"`
}

// Submit handles POST /api/v1/downloads
func (h *DownloadHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Playlist == "" && req.Video == "" {
		h.writeError(w, http.StatusBadRequest, "playlist or video is required")
		return
	}

	run, err := h.runs.Submit(service.SubmitRequest{
		Playlist:   req.Playlist,
		Video:      req.Video,
		OutputDir:  req.OutputDir,
		Quality:    req.Quality,
		Itag:       req.Itag,
		MaxWorkers: req.MaxWorkers,
		Resume:     !req.NoResume,
	})
	if err != nil {
		var resErr *domain.ResolutionError
		var cfgErr *domain.ConfigurationError
		switch {
		case errors.As(err, &resErr), errors.As(err, &cfgErr):
			h.writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("submit run", "error", err)
			h.writeError(w, http.StatusInternalServerError, "failed to start run")
		}
		return
	}

	h.writeJSON(w, http.StatusAccepted, run)
}

// Get handles GET /api/v1/downloads/{runID}
func (h *DownloadHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := service.RunID(chi.URLParam(r, "runID"))

	run, err := h.runs.Get(id)
	if err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			h.writeError(w, http.StatusNotFound, "run not found")
			return
		}
		h.logger.Error("get run", "run_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}

	h.writeJSON(w, http.StatusOK, run)
}

// List handles GET /api/v1/downloads
func (h *DownloadHandler) List(w http.ResponseWriter, r *http.Request) {
	runs := h.runs.List()
	h.writeJSON(w, http.StatusOK, ListResponse{Runs: runs, Total: len(runs)})
}

// Cancel handles DELETE /api/v1/downloads/{runID}
func (h *DownloadHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := service.RunID(chi.URLParam(r, "runID"))

	if err := h.runs.Cancel(id); err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			h.writeError(w, http.StatusNotFound, "run not found")
			return
		}
		h.logger.Error("cancel run", "run_id", id, "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to cancel run")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "canceling"})
}

func (h *DownloadHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", "error", err)
	}
}

func (h *DownloadHandler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}
