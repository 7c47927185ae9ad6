package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ytsnap/ytsnap/internal/history"
)

// HistoryHandler serves the persisted download history.
type HistoryHandler struct {
	store  *history.Store // nil when history is disabled
	logger *slog.Logger
}

func NewHistoryHandler(store *history.Store, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{store: store, logger: logger}
}

// HistoryResponse wraps the history entry list.
type HistoryResponse struct {
	Entries []history.Entry `json:"entries"`
	Total   int             `json:"total"`
}

// List handles GET /api/v1/history?limit=N
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"limit must be a positive integer"}`))
			return
		}
		limit = n
	}

	entries, err := h.store.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("list history", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"failed to list history"}`))
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(HistoryResponse{Entries: entries, Total: len(entries)})
}
