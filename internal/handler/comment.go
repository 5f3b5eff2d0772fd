package handler

import (
	"log/slog"
	"net/http"

	"livingdoc/internal/commenttypes"
	"livingdoc/internal/domain/models"
	"livingdoc/internal/domain/services"
	"livingdoc/internal/httputil"
)

// CommentHandler handles the moderated comment workflow.
type CommentHandler struct {
	workflow services.CommentWorkflow
	types    *commenttypes.Registry
	logger   *slog.Logger
}

// NewCommentHandler creates a new comment handler
func NewCommentHandler(workflow services.CommentWorkflow, types *commenttypes.Registry, logger *slog.Logger) *CommentHandler {
	return &CommentHandler{workflow: workflow, types: types, logger: logger}
}

// SubmitComment admits a comment on a version
func (h *CommentHandler) SubmitComment(w http.ResponseWriter, r *http.Request) {
	var req services.SubmitCommentRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Actor = httputil.GetActor(r)
	req.VersionID = r.PathValue("id")

	c, err := h.workflow.SubmitComment(r.Context(), &req)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, c)
}

// ListComments returns comments on a version, optionally filtered
func (h *CommentHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := services.ListCommentsFilter{
		Type:      models.CommentTypeCode(q.Get("type")),
		Status:    models.CommentStatus(q.Get("status")),
		ParentID:  q.Get("parent_id"),
		RootsOnly: q.Get("roots_only") == "true",
	}

	comments, err := h.workflow.ListComments(r.Context(), r.PathValue("id"), filter)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{"comments": comments})
}

// GetComment returns one comment
func (h *CommentHandler) GetComment(w http.ResponseWriter, r *http.Request) {
	c, err := h.workflow.GetComment(r.Context(), r.PathValue("id"))
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, c)
}

// ModerateComment records a moderation decision
func (h *CommentHandler) ModerateComment(w http.ResponseWriter, r *http.Request) {
	var req services.ModerateCommentRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.CommentID = r.PathValue("id")

	c, err := h.workflow.ModerateComment(r.Context(), httputil.GetActor(r), &req)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, c)
}

// ResubmitComment re-enters a draft returned for revision
func (h *CommentHandler) ResubmitComment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Body string `json:"body"`
	}
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := h.workflow.ResubmitComment(r.Context(), httputil.GetActor(r), r.PathValue("id"), req.Body)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, c)
}

// RetractComment soft-marks a published comment
func (h *CommentHandler) RetractComment(w http.ResponseWriter, r *http.Request) {
	if err := h.workflow.RetractComment(r.Context(), httputil.GetActor(r), r.PathValue("id")); err != nil {
		handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListCommentTypes returns the fixed comment type vocabulary
func (h *CommentHandler) ListCommentTypes(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{"types": h.types.All()})
}
