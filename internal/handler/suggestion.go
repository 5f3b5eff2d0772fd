package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"livingdoc/internal/domain/models"
	"livingdoc/internal/domain/services"
	"livingdoc/internal/httputil"
)

// SuggestionHandler handles the AI suggestion pipeline.
type SuggestionHandler struct {
	pipeline services.SuggestionPipeline
	logger   *slog.Logger
}

// NewSuggestionHandler creates a new suggestion handler
func NewSuggestionHandler(pipeline services.SuggestionPipeline, logger *slog.Logger) *SuggestionHandler {
	return &SuggestionHandler{pipeline: pipeline, logger: logger}
}

// Generate runs the model over a version and stores pending
// suggestions
func (h *SuggestionHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req services.GenerateRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Actor = httputil.GetActor(r)
	req.VersionID = r.PathValue("id")

	suggestions, err := h.pipeline.Generate(r.Context(), &req)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, map[string]interface{}{"suggestions": suggestions})
}

// ListSuggestions returns suggestions for a version
func (h *SuggestionHandler) ListSuggestions(w http.ResponseWriter, r *http.Request) {
	status := models.SuggestionStatus(r.URL.Query().Get("status"))

	suggestions, err := h.pipeline.ListSuggestions(r.Context(), r.PathValue("id"), status)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{"suggestions": suggestions})
}

// Approve turns a pending suggestion into a comment. An optional
// edited body replaces the model's text.
func (h *SuggestionHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EditedBody string `json:"edited_body,omitempty"`
	}
	// An empty body means approve as-is.
	if err := httputil.ParseJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	actor := httputil.GetActor(r)
	id := r.PathValue("id")

	var (
		c   *models.Comment
		err error
	)
	if req.EditedBody != "" {
		c, err = h.pipeline.ModifyAndApprove(r.Context(), actor, id, req.EditedBody)
	} else {
		c, err = h.pipeline.Approve(r.Context(), actor, id)
	}
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, c)
}

// Reject marks a pending suggestion terminal
func (h *SuggestionHandler) Reject(w http.ResponseWriter, r *http.Request) {
	if err := h.pipeline.Reject(r.Context(), httputil.GetActor(r), r.PathValue("id")); err != nil {
		handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
