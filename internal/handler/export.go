package handler

import (
	"log/slog"
	"net/http"

	"livingdoc/internal/domain"
	"livingdoc/internal/domain/models"
	"livingdoc/internal/domain/repositories"
	"livingdoc/internal/httputil"
)

// ExportHandler serves the read-only export view of a published
// version: content, byline, identifiers and the published discussion.
type ExportHandler struct {
	pubs     repositories.PublicationRepository
	versions repositories.VersionRepository
	comments repositories.CommentRepository
	logger   *slog.Logger
}

// NewExportHandler creates a new export handler
func NewExportHandler(
	pubs repositories.PublicationRepository,
	versions repositories.VersionRepository,
	comments repositories.CommentRepository,
	logger *slog.Logger,
) *ExportHandler {
	return &ExportHandler{pubs: pubs, versions: versions, comments: comments, logger: logger}
}

type exportedComment struct {
	models.Comment
	References []models.CommentReference `json:"references,omitempty"`
}

type exportView struct {
	Publication *models.Publication     `json:"publication"`
	Version     *models.DocumentVersion `json:"version"`
	Authors     []models.VersionAuthor  `json:"authors"`
	Comments    []exportedComment       `json:"comments"`
}

// Export returns the full public record of a published version.
// Retracted comments stay in the record with their mark; that is the
// point of soft retraction.
func (h *ExportHandler) Export(w http.ResponseWriter, r *http.Request) {
	v, err := h.versions.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		handleError(w, err)
		return
	}
	if v.Status != models.VersionPublished {
		handleError(w, &domain.InvalidStateTransitionError{
			Entity: "version", From: string(v.Status), Attempted: "export",
		})
		return
	}

	pub, err := h.pubs.GetByID(r.Context(), v.PublicationID)
	if err != nil {
		handleError(w, err)
		return
	}

	authors, err := h.versions.ListAuthors(r.Context(), v.ID)
	if err != nil {
		handleError(w, err)
		return
	}

	published, err := h.comments.ListByVersion(r.Context(), v.ID, repositories.CommentFilter{
		Status: models.CommentPublished,
	})
	if err != nil {
		handleError(w, err)
		return
	}

	comments := make([]exportedComment, 0, len(published))
	for _, c := range published {
		refs, err := h.comments.ListReferences(r.Context(), c.ID)
		if err != nil {
			handleError(w, err)
			return
		}
		comments = append(comments, exportedComment{Comment: c, References: refs})
	}

	httputil.RespondJSON(w, http.StatusOK, exportView{
		Publication: pub,
		Version:     v,
		Authors:     authors,
		Comments:    comments,
	})
}
