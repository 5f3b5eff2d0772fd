// Package handler exposes the lifecycle over HTTP. Handlers decode,
// delegate to a service and encode; every rule lives below them.
package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"livingdoc/internal/domain/models"
	"livingdoc/internal/domain/services"
	"livingdoc/internal/httputil"
)

// PublicationHandler handles publication and version lifecycle
// requests.
type PublicationHandler struct {
	versions services.VersionManager
	logger   *slog.Logger
}

// NewPublicationHandler creates a new publication handler
func NewPublicationHandler(versions services.VersionManager, logger *slog.Logger) *PublicationHandler {
	return &PublicationHandler{versions: versions, logger: logger}
}

// CreatePublication creates the stable identity for a line of work
func (h *PublicationHandler) CreatePublication(w http.ResponseWriter, r *http.Request) {
	var req services.CreatePublicationRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Actor = httputil.GetActor(r)

	pub, err := h.versions.CreatePublication(r.Context(), &req)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, pub)
}

// GetPublication returns one publication
func (h *PublicationHandler) GetPublication(w http.ResponseWriter, r *http.Request) {
	pub, err := h.versions.GetPublication(r.Context(), r.PathValue("id"))
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, pub)
}

// ListPublications returns a page of publications
func (h *PublicationHandler) ListPublications(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	pubs, err := h.versions.ListPublications(r.Context(), limit, offset)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{"publications": pubs})
}

// CreateDraft adds a new draft version to a publication
func (h *PublicationHandler) CreateDraft(w http.ResponseWriter, r *http.Request) {
	var req services.CreateDraftRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Actor = httputil.GetActor(r)
	req.PublicationID = r.PathValue("id")

	v, err := h.versions.CreateDraft(r.Context(), &req)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, v)
}

// ListVersions returns all versions of a publication
func (h *PublicationHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.versions.ListVersions(r.Context(), r.PathValue("id"))
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{"versions": versions})
}

// GetVersion returns one document version
func (h *PublicationHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	v, err := h.versions.GetVersion(r.Context(), r.PathValue("id"))
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, v)
}

// SubmitForReview moves a draft into review
func (h *PublicationHandler) SubmitForReview(w http.ResponseWriter, r *http.Request) {
	v, err := h.versions.SubmitForReview(r.Context(), httputil.GetActor(r), r.PathValue("id"))
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, v)
}

// InviteReviewer adds a reviewer invitation to a version under review
func (h *PublicationHandler) InviteReviewer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	reviewer, err := h.versions.InviteReviewer(r.Context(), httputil.GetActor(r), r.PathValue("id"), req.UserID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, reviewer)
}

// RespondToInvitation records the caller's accept or decline
func (h *PublicationHandler) RespondToInvitation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Accept bool `json:"accept"`
	}
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	reviewer, err := h.versions.RespondToInvitation(r.Context(), httputil.GetActor(r), r.PathValue("id"), req.Accept)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, reviewer)
}

// ListReviewers returns the reviewers of a version
func (h *PublicationHandler) ListReviewers(w http.ResponseWriter, r *http.Request) {
	reviewers, err := h.versions.ListReviewers(r.Context(), r.PathValue("id"))
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{"reviewers": reviewers})
}

// CompleteReview records the editor's decision
func (h *PublicationHandler) CompleteReview(w http.ResponseWriter, r *http.Request) {
	var req services.CompleteReviewRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.VersionID = r.PathValue("id")

	result, err := h.versions.CompleteReview(r.Context(), httputil.GetActor(r), &req)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, result)
}

// Publish moves an accepted version to published and runs the
// identifier path
func (h *PublicationHandler) Publish(w http.ResponseWriter, r *http.Request) {
	v, err := h.versions.Publish(r.Context(), httputil.GetActor(r), r.PathValue("id"))
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, v)
}

// Rollback restores a prior published version's content as a new draft
func (h *PublicationHandler) Rollback(w http.ResponseWriter, r *http.Request) {
	var req services.RollbackRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.PublicationID = r.PathValue("id")

	draft, err := h.versions.Rollback(r.Context(), httputil.GetActor(r), &req)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, draft)
}

// SetDiscussionStatus opens, closes or withdraws the discussion on a
// version
func (h *PublicationHandler) SetDiscussionStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status models.DiscussionStatus `json:"status"`
	}
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.versions.CloseDiscussion(r.Context(), httputil.GetActor(r), r.PathValue("id"), req.Status); err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{"status": req.Status})
}

// HealthCheck reports liveness
func (h *PublicationHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
