package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"livingdoc/internal/audit"
	"livingdoc/internal/httputil"
)

// AuditHandler serves audit trails.
type AuditHandler struct {
	recorder *audit.Recorder
	logger   *slog.Logger
}

// NewAuditHandler creates a new audit handler
func NewAuditHandler(recorder *audit.Recorder, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{recorder: recorder, logger: logger}
}

// Trail returns an entity's audit history, newest first
func (h *AuditHandler) Trail(w http.ResponseWriter, r *http.Request) {
	kind := r.PathValue("kind")
	switch kind {
	case "version", "comment", "suggestion", "publication":
	default:
		httputil.RespondError(w, http.StatusBadRequest, "unknown entity kind")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	entries, err := h.recorder.Trail(r.Context(), kind, r.PathValue("id"), limit)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}
