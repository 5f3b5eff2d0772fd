// Package service implements the lifecycle core: version management,
// the moderated comment workflow and the AI suggestion pipeline.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"livingdoc/internal/audit"
	"livingdoc/internal/domain"
	"livingdoc/internal/domain/models"
	"livingdoc/internal/domain/repositories"
	"livingdoc/internal/domain/services"
	"livingdoc/internal/metrics"
	"livingdoc/internal/policy"
)

// DOIRegistrar is the slice of the identifier registrar the lifecycle
// services need.
type DOIRegistrar interface {
	RegisterVersion(ctx context.Context, versionID string) (models.DOIStatus, error)
	RegisterComment(ctx context.Context, commentID string) (models.DOIStatus, error)
	MetaDOI(publicationID string) string
}

// versionManager implements the VersionManager interface
type versionManager struct {
	pubs      repositories.PublicationRepository
	versions  repositories.VersionRepository
	reviews   repositories.ReviewRepository
	comments  repositories.CommentRepository
	txManager repositories.TransactionManager
	registrar DOIRegistrar
	audit     *audit.Recorder
	logger    *slog.Logger
}

// NewVersionManager creates a new version manager
func NewVersionManager(
	pubs repositories.PublicationRepository,
	versions repositories.VersionRepository,
	reviews repositories.ReviewRepository,
	comments repositories.CommentRepository,
	txManager repositories.TransactionManager,
	registrar DOIRegistrar,
	recorder *audit.Recorder,
	logger *slog.Logger,
) services.VersionManager {
	return &versionManager{
		pubs:      pubs,
		versions:  versions,
		reviews:   reviews,
		comments:  comments,
		txManager: txManager,
		registrar: registrar,
		audit:     recorder,
		logger:    logger,
	}
}

// CreatePublication creates the stable identity for a line of work
// and assigns its grouping identifier.
func (s *versionManager) CreatePublication(ctx context.Context, req *services.CreatePublicationRequest) (*models.Publication, error) {
	if err := req.Actor.Caps.Require(policy.SubmitVersion); err != nil {
		return nil, err
	}

	if err := validation.ValidateStruct(req,
		validation.Field(&req.Title, validation.Required, validation.Length(1, 500)),
		validation.Field(&req.ShortTitle, validation.Length(0, 100)),
	); err != nil {
		return nil, &domain.ValidationError{Violations: violations(err)}
	}

	pub := &models.Publication{
		ID:         uuid.NewString(),
		Title:      req.Title,
		ShortTitle: req.ShortTitle,
		CreatedBy:  req.Actor.UserID,
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.pubs.Create(ctx, pub); err != nil {
		return nil, err
	}

	// The grouping identifier is deterministic and assigned once.
	pub.MetaDOI = s.registrar.MetaDOI(pub.ID)
	if err := s.pubs.SetMetaDOI(ctx, pub.ID, pub.MetaDOI); err != nil {
		return nil, err
	}

	s.logger.Info("publication created", "id", pub.ID, "title", pub.Title)
	return pub, nil
}

func (s *versionManager) GetPublication(ctx context.Context, id string) (*models.Publication, error) {
	return s.pubs.GetByID(ctx, id)
}

func (s *versionManager) ListPublications(ctx context.Context, limit, offset int) ([]models.Publication, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.pubs.List(ctx, limit, offset)
}

// CreateDraft adds a new draft version. Numbering is strict: the
// publication advisory lock serializes max+1 against concurrent
// creators.
func (s *versionManager) CreateDraft(ctx context.Context, req *services.CreateDraftRequest) (*models.DocumentVersion, error) {
	if err := req.Actor.Caps.Require(policy.SubmitVersion); err != nil {
		return nil, err
	}

	if err := validation.ValidateStruct(req,
		validation.Field(&req.PublicationID, validation.Required),
		validation.Field(&req.Content, validation.Required),
	); err != nil {
		return nil, &domain.ValidationError{Violations: violations(err)}
	}

	if _, err := s.pubs.GetByID(ctx, req.PublicationID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	v := &models.DocumentVersion{
		ID:               uuid.NewString(),
		PublicationID:    req.PublicationID,
		Status:           models.VersionDraft,
		Content:          req.Content,
		Abstract:         req.Abstract,
		DiscussionStatus: models.DiscussionOpen,
		StatusChangedBy:  req.Actor.UserID,
		StatusChangedAt:  now,
		CreatedAt:        now,
	}

	err := s.txManager.ExecTx(ctx, func(ctx context.Context) error {
		if err := s.versions.LockPublication(ctx, req.PublicationID); err != nil {
			return err
		}

		n, err := s.versions.NextVersionNumber(ctx, req.PublicationID)
		if err != nil {
			return err
		}
		v.VersionNumber = n

		if err := s.versions.Create(ctx, v); err != nil {
			return err
		}

		for i, a := range req.Authors {
			a.ID = uuid.NewString()
			a.VersionID = v.ID
			if a.Order == 0 {
				a.Order = i + 1
			}
			if err := s.versions.AddAuthor(ctx, &a); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("draft created",
		"version_id", v.ID,
		"publication_id", v.PublicationID,
		"version_number", v.VersionNumber,
	)
	return v, nil
}

func (s *versionManager) GetVersion(ctx context.Context, id string) (*models.DocumentVersion, error) {
	return s.versions.GetByID(ctx, id)
}

func (s *versionManager) ListVersions(ctx context.Context, publicationID string) ([]models.DocumentVersion, error) {
	return s.versions.ListByPublication(ctx, publicationID)
}

// SubmitForReview moves draft -> submitted and opens the review
// process for the version.
func (s *versionManager) SubmitForReview(ctx context.Context, actor policy.Actor, versionID string) (*models.DocumentVersion, error) {
	if err := actor.Caps.Require(policy.SubmitVersion); err != nil {
		return nil, err
	}

	v, err := s.versions.GetByID(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if v.Status != models.VersionDraft {
		return nil, &domain.InvalidStateTransitionError{
			Entity: "version", From: string(v.Status), Attempted: "submit_for_review",
		}
	}

	err = s.txManager.ExecTx(ctx, func(ctx context.Context) error {
		if err := s.versions.UpdateStatusCAS(ctx, versionID, models.VersionDraft, models.VersionSubmitted, actor.UserID); err != nil {
			return err
		}
		return s.reviews.CreateProcess(ctx, &models.ReviewProcess{
			ID:        uuid.NewString(),
			VersionID: versionID,
			Status:    models.ReviewPending,
			StartedAt: time.Now().UTC(),
		})
	})
	if err != nil {
		if errors.Is(err, domain.ErrStateConflict) {
			metrics.StateConflicts.WithLabelValues("version").Inc()
		}
		return nil, err
	}

	s.audit.Transition(ctx, actor.UserID, models.ActionVersionSubmitted,
		"version", versionID, string(models.VersionDraft), string(models.VersionSubmitted))

	return s.versions.GetByID(ctx, versionID)
}

// InviteReviewer records a reviewer invitation on the version's open
// review process.
func (s *versionManager) InviteReviewer(ctx context.Context, actor policy.Actor, versionID, reviewerUserID string) (*models.Reviewer, error) {
	if err := actor.Caps.Require(policy.CompleteReview); err != nil {
		return nil, err
	}
	if reviewerUserID == "" {
		return nil, &domain.ValidationError{Violations: []string{"reviewer user id is required"}}
	}

	v, err := s.versions.GetByID(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if v.Status != models.VersionSubmitted && v.Status != models.VersionUnderReview {
		return nil, &domain.InvalidStateTransitionError{
			Entity: "version", From: string(v.Status), Attempted: "invite_reviewer",
		}
	}

	process, err := s.reviews.GetProcessByVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}

	existing, err := s.reviews.ListReviewers(ctx, process.ID)
	if err != nil {
		return nil, err
	}
	for _, rev := range existing {
		if rev.UserID == reviewerUserID {
			return nil, &domain.ValidationError{Violations: []string{
				fmt.Sprintf("user %s is already a reviewer on this version", reviewerUserID),
			}}
		}
	}

	reviewer := &models.Reviewer{
		ID:        uuid.NewString(),
		ProcessID: process.ID,
		UserID:    reviewerUserID,
		State:     models.ReviewerInvited,
		InvitedAt: time.Now().UTC(),
	}
	if err := s.reviews.AddReviewer(ctx, reviewer); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, models.AuditEntry{
		Actor: actor.UserID, Action: models.ActionReviewerInvited,
		EntityKind: "version", EntityID: versionID,
		Detail: map[string]any{"reviewer": reviewerUserID},
	})
	return reviewer, nil
}

// RespondToInvitation records the caller's accept or decline of their
// own invitation. The first acceptance moves the version from
// submitted into under_review.
func (s *versionManager) RespondToInvitation(ctx context.Context, actor policy.Actor, versionID string, accept bool) (*models.Reviewer, error) {
	v, err := s.versions.GetByID(ctx, versionID)
	if err != nil {
		return nil, err
	}

	process, err := s.reviews.GetProcessByVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}

	reviewers, err := s.reviews.ListReviewers(ctx, process.ID)
	if err != nil {
		return nil, err
	}
	var reviewer *models.Reviewer
	for i := range reviewers {
		if reviewers[i].UserID == actor.UserID {
			reviewer = &reviewers[i]
			break
		}
	}
	if reviewer == nil {
		return nil, &domain.NotFoundError{Message: "no invitation for this user on this version"}
	}
	if reviewer.State != models.ReviewerInvited {
		return nil, &domain.InvalidStateTransitionError{
			Entity: "reviewer", From: string(reviewer.State), Attempted: "respond_to_invitation",
		}
	}

	state := models.ReviewerDeclined
	if accept {
		state = models.ReviewerAccepted
	}
	if err := s.reviews.UpdateReviewerState(ctx, reviewer.ID, state); err != nil {
		return nil, err
	}
	reviewer.State = state

	if accept && v.Status == models.VersionSubmitted {
		err := s.versions.UpdateStatusCAS(ctx, versionID, models.VersionSubmitted, models.VersionUnderReview, actor.UserID)
		if err != nil && !errors.Is(err, domain.ErrStateConflict) {
			return nil, err
		}
		// A racing acceptance already moved it; either way the
		// version is under review now.
	}

	s.audit.Record(ctx, models.AuditEntry{
		Actor: actor.UserID, Action: models.ActionReviewerResponded,
		EntityKind: "version", EntityID: versionID,
		ToStatus: string(state),
	})
	return reviewer, nil
}

// ListReviewers returns the reviewers of a version's review process.
func (s *versionManager) ListReviewers(ctx context.Context, versionID string) ([]models.Reviewer, error) {
	process, err := s.reviews.GetProcessByVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	return s.reviews.ListReviewers(ctx, process.ID)
}

// CompleteReview records the editor's decision. accepted and rejected
// are terminal for the content lifecycle until publish;
// revision_required leaves the reviewed version untouched and spawns
// a successor draft linked through revised_from.
func (s *versionManager) CompleteReview(ctx context.Context, actor policy.Actor, req *services.CompleteReviewRequest) (*services.CompleteReviewResult, error) {
	if err := actor.Caps.Require(policy.CompleteReview); err != nil {
		return nil, err
	}

	switch req.Outcome {
	case models.OutcomeAccepted, models.OutcomeRejected, models.OutcomeRevisionRequired:
	default:
		return nil, &domain.ValidationError{Violations: []string{
			fmt.Sprintf("outcome must be one of accepted, rejected, revision_required (got %q)", req.Outcome),
		}}
	}

	v, err := s.versions.GetByID(ctx, req.VersionID)
	if err != nil {
		return nil, err
	}
	if v.Status != models.VersionSubmitted && v.Status != models.VersionUnderReview {
		return nil, &domain.InvalidStateTransitionError{
			Entity: "version", From: string(v.Status), Attempted: "complete_review",
		}
	}

	result := &services.CompleteReviewResult{}

	err = s.txManager.ExecTx(ctx, func(ctx context.Context) error {
		switch req.Outcome {
		case models.OutcomeAccepted:
			if err := s.versions.UpdateStatusCAS(ctx, v.ID, v.Status, models.VersionAccepted, actor.UserID); err != nil {
				return err
			}
		case models.OutcomeRejected:
			if err := s.versions.UpdateStatusCAS(ctx, v.ID, v.Status, models.VersionRejected, actor.UserID); err != nil {
				return err
			}
		case models.OutcomeRevisionRequired:
			revision, err := s.createSuccessorDraft(ctx, actor, v)
			if err != nil {
				return err
			}
			result.Revision = revision
		}

		if process, err := s.reviews.GetProcessByVersion(ctx, v.ID); err == nil {
			reviewers, err := s.reviews.ListReviewers(ctx, process.ID)
			if err != nil {
				return err
			}
			for _, rev := range reviewers {
				if rev.State != models.ReviewerAccepted {
					continue
				}
				if err := s.reviews.UpdateReviewerState(ctx, rev.ID, models.ReviewerDoneReviewing); err != nil {
					return err
				}
			}
			if err := s.reviews.CompleteProcess(ctx, process.ID, string(req.Outcome)); err != nil {
				return err
			}
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrStateConflict) {
			metrics.StateConflicts.WithLabelValues("version").Inc()
		}
		return nil, err
	}

	s.audit.Record(ctx, models.AuditEntry{
		Actor: actor.UserID, Action: models.ActionReviewCompleted,
		EntityKind: "version", EntityID: v.ID,
		FromStatus: string(v.Status), ToStatus: string(req.Outcome),
		Detail: map[string]any{"reason": req.EditorReason},
	})
	if result.Revision != nil {
		s.audit.Record(ctx, models.AuditEntry{
			Actor: actor.UserID, Action: models.ActionRevisionCreated,
			EntityKind: "version", EntityID: result.Revision.ID,
			Detail: map[string]any{"revised_from": v.ID},
		})
	}

	result.Version, err = s.versions.GetByID(ctx, v.ID)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// createSuccessorDraft copies a version's content into a new draft
// with the next number. Runs inside the caller's transaction.
func (s *versionManager) createSuccessorDraft(ctx context.Context, actor policy.Actor, from *models.DocumentVersion) (*models.DocumentVersion, error) {
	if err := s.versions.LockPublication(ctx, from.PublicationID); err != nil {
		return nil, err
	}

	n, err := s.versions.NextVersionNumber(ctx, from.PublicationID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	revision := &models.DocumentVersion{
		ID:               uuid.NewString(),
		PublicationID:    from.PublicationID,
		VersionNumber:    n,
		Status:           models.VersionDraft,
		Content:          from.Content,
		Abstract:         from.Abstract,
		DiscussionStatus: models.DiscussionOpen,
		RevisedFromID:    from.ID,
		StatusChangedBy:  actor.UserID,
		StatusChangedAt:  now,
		CreatedAt:        now,
	}
	if err := s.versions.Create(ctx, revision); err != nil {
		return nil, err
	}

	authors, err := s.versions.ListAuthors(ctx, from.ID)
	if err != nil {
		return nil, err
	}
	for _, a := range authors {
		a.ID = uuid.NewString()
		a.VersionID = revision.ID
		if err := s.versions.AddAuthor(ctx, &a); err != nil {
			return nil, err
		}
	}

	if err := s.carryAcceptedComments(ctx, from.ID, revision.ID); err != nil {
		return nil, err
	}

	return revision, nil
}

// carryAcceptedComments copies the accepted discussion from a
// reviewed version onto its revision so the feedback that drove the
// revision travels with it. Only accepted and published comments
// carry; response links are remapped onto the copies, and a response
// whose parent did not survive moderation becomes a root. The
// originals keep their identifiers; copies are never re-minted.
func (s *versionManager) carryAcceptedComments(ctx context.Context, fromID, toID string) error {
	all, err := s.comments.ListByVersion(ctx, fromID, repositories.CommentFilter{})
	if err != nil {
		return err
	}

	var carried []models.Comment
	for _, c := range all {
		if c.Status == models.CommentAccepted || c.Status == models.CommentPublished {
			carried = append(carried, c)
		}
	}
	// Parents were created before their responses, so creation order
	// guarantees a parent's copy exists before its children need it.
	sort.Slice(carried, func(i, j int) bool {
		return carried[i].CreatedAt.Before(carried[j].CreatedAt)
	})

	remapped := make(map[string]string, len(carried))
	for _, c := range carried {
		copyAuthors, err := s.comments.ListAuthors(ctx, c.ID)
		if err != nil {
			return err
		}
		copyRefs, err := s.comments.ListReferences(ctx, c.ID)
		if err != nil {
			return err
		}

		cp := c
		cp.ID = uuid.NewString()
		cp.VersionID = toID
		cp.ParentID = remapped[c.ParentID]
		remapped[c.ID] = cp.ID

		for i := range copyAuthors {
			copyAuthors[i].ID = uuid.NewString()
			copyAuthors[i].CommentID = cp.ID
		}
		for i := range copyRefs {
			copyRefs[i].ID = uuid.NewString()
			copyRefs[i].CommentID = cp.ID
		}

		if err := s.comments.Create(ctx, &cp, copyAuthors, copyRefs, nil); err != nil {
			return err
		}
	}

	return nil
}

// Publish runs the identifier path and then moves accepted ->
// published. Registration failure degrades to doi_status=error; the
// background sweep picks it up, and publication proceeds.
func (s *versionManager) Publish(ctx context.Context, actor policy.Actor, versionID string) (*models.DocumentVersion, error) {
	if err := actor.Caps.Require(policy.PublishVersion); err != nil {
		return nil, err
	}

	v, err := s.versions.GetByID(ctx, versionID)
	if err != nil {
		return nil, err
	}

	// Idempotent: an already-published version returns its existing
	// identifier; a second mint never happens.
	if v.Status == models.VersionPublished {
		return v, nil
	}
	if v.Status != models.VersionAccepted {
		return nil, &domain.InvalidStateTransitionError{
			Entity: "version", From: string(v.Status), Attempted: "publish",
		}
	}

	if doiStatus, err := s.registrar.RegisterVersion(ctx, versionID); err != nil {
		s.logger.Warn("publishing without findable doi",
			"version_id", versionID, "doi_status", doiStatus, "error", err)
	}

	if err := s.versions.UpdateStatusCAS(ctx, versionID, models.VersionAccepted, models.VersionPublished, actor.UserID); err != nil {
		if errors.Is(err, domain.ErrStateConflict) {
			metrics.StateConflicts.WithLabelValues("version").Inc()
		}
		return nil, err
	}

	s.audit.Transition(ctx, actor.UserID, models.ActionVersionPublished,
		"version", versionID, string(models.VersionAccepted), string(models.VersionPublished))

	return s.versions.GetByID(ctx, versionID)
}

// Rollback restores a prior published version's content as a new
// draft. History is append-only; nothing is rewritten or deleted.
func (s *versionManager) Rollback(ctx context.Context, actor policy.Actor, req *services.RollbackRequest) (*models.DocumentVersion, error) {
	if err := actor.Caps.Require(policy.RollbackVersion); err != nil {
		return nil, err
	}

	if err := validation.ValidateStruct(req,
		validation.Field(&req.PublicationID, validation.Required),
		validation.Field(&req.TargetVersionID, validation.Required),
		validation.Field(&req.Reason, validation.Required, validation.Length(1, 2000)),
	); err != nil {
		return nil, &domain.ValidationError{Violations: violations(err)}
	}

	target, err := s.versions.GetByID(ctx, req.TargetVersionID)
	if err != nil {
		return nil, err
	}
	if target.PublicationID != req.PublicationID {
		return nil, &domain.ValidationError{Violations: []string{
			"target version does not belong to the publication",
		}}
	}
	if target.Status != models.VersionPublished {
		return nil, &domain.InvalidStateTransitionError{
			Entity: "version", From: string(target.Status), Attempted: "rollback",
		}
	}

	var draft *models.DocumentVersion
	err = s.txManager.ExecTx(ctx, func(ctx context.Context) error {
		draft, err = s.createSuccessorDraft(ctx, actor, target)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, models.AuditEntry{
		Actor: actor.UserID, Action: models.ActionVersionRolledBack,
		EntityKind: "version", EntityID: draft.ID,
		Detail: map[string]any{
			"target_version_id": target.ID,
			"reason":            req.Reason,
		},
	})

	s.logger.Info("rollback draft created",
		"draft_id", draft.ID,
		"target_version_id", target.ID,
		"version_number", draft.VersionNumber,
	)
	return draft, nil
}

// CloseDiscussion gates further comment submissions on a version.
func (s *versionManager) CloseDiscussion(ctx context.Context, actor policy.Actor, versionID string, status models.DiscussionStatus) error {
	if err := actor.Caps.Require(policy.ManageDiscussion); err != nil {
		return err
	}

	switch status {
	case models.DiscussionOpen, models.DiscussionClosed, models.DiscussionWithdrawn:
	default:
		return &domain.ValidationError{Violations: []string{
			fmt.Sprintf("unknown discussion status %q", status),
		}}
	}

	v, err := s.versions.GetByID(ctx, versionID)
	if err != nil {
		return err
	}

	if err := s.versions.SetDiscussionStatus(ctx, versionID, status, actor.UserID); err != nil {
		return err
	}

	s.audit.Record(ctx, models.AuditEntry{
		Actor: actor.UserID, Action: "version.discussion_changed",
		EntityKind: "version", EntityID: versionID,
		FromStatus: string(v.DiscussionStatus), ToStatus: string(status),
	})
	return nil
}

// violations flattens an ozzo validation error into one message per
// violated field, so every problem is reported in a single response.
func violations(err error) []string {
	var errs validation.Errors
	if errors.As(err, &errs) {
		out := make([]string, 0, len(errs))
		for field, ferr := range errs {
			out = append(out, fmt.Sprintf("%s: %v", field, ferr))
		}
		sort.Strings(out)
		return out
	}
	return []string{err.Error()}
}
