package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"livingdoc/internal/audit"
	"livingdoc/internal/commenttypes"
	"livingdoc/internal/config"
	"livingdoc/internal/domain"
	"livingdoc/internal/domain/models"
	"livingdoc/internal/domain/repositories"
	"livingdoc/internal/domain/services"
	"livingdoc/internal/metrics"
	"livingdoc/internal/policy"
)

// commentWorkflow implements the CommentWorkflow interface
type commentWorkflow struct {
	versions  repositories.VersionRepository
	comments  repositories.CommentRepository
	types     *commenttypes.Registry
	txManager repositories.TransactionManager
	registrar DOIRegistrar
	audit     *audit.Recorder
	logger    *slog.Logger
}

// NewCommentWorkflow creates a new comment workflow
func NewCommentWorkflow(
	versions repositories.VersionRepository,
	comments repositories.CommentRepository,
	types *commenttypes.Registry,
	txManager repositories.TransactionManager,
	registrar DOIRegistrar,
	recorder *audit.Recorder,
	logger *slog.Logger,
) services.CommentWorkflow {
	return &commentWorkflow{
		versions:  versions,
		comments:  comments,
		types:     types,
		txManager: txManager,
		registrar: registrar,
		audit:     recorder,
		logger:    logger,
	}
}

// SubmitComment validates, rate-checks and inserts in one atomic
// step. The advisory lock on the version serializes racing
// submissions so the counters and the insert cannot drift apart.
func (s *commentWorkflow) SubmitComment(ctx context.Context, req *services.SubmitCommentRequest) (*models.Comment, error) {
	if err := req.Actor.Caps.Require(policy.SubmitComment); err != nil {
		return nil, err
	}

	v, err := s.versions.GetByID(ctx, req.VersionID)
	if err != nil {
		return nil, err
	}
	// Commentary starts once a version enters review and continues
	// after publication. Drafts and decided-but-unpublished versions
	// take no comments.
	switch v.Status {
	case models.VersionSubmitted, models.VersionUnderReview, models.VersionPublished:
	default:
		return nil, &domain.InvalidStateTransitionError{
			Entity: "version", From: string(v.Status), Attempted: "submit_comment",
		}
	}
	if v.DiscussionStatus != models.DiscussionOpen {
		return nil, &domain.InvalidStateTransitionError{
			Entity: "discussion", From: string(v.DiscussionStatus), Attempted: "submit_comment",
		}
	}

	if err := s.validateSubmission(ctx, req); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	c := &models.Comment{
		ID:              uuid.NewString(),
		VersionID:       req.VersionID,
		ParentID:        req.ParentID,
		Type:            req.Type,
		Body:            req.Body,
		Anchor:          req.Anchor,
		Status:          models.CommentSubmitted,
		AIGenerated:     req.AIGenerated,
		SuggestionID:    req.SuggestionID,
		StatusChangedBy: req.Actor.UserID,
		StatusChangedAt: now,
		CreatedAt:       now,
	}

	authors := []models.CommentAuthor{{
		ID: uuid.NewString(), CommentID: c.ID,
		UserID: req.Actor.UserID, Corresponding: true, CreatedAt: now,
	}}
	for _, userID := range req.CoAuthors {
		if userID == req.Actor.UserID {
			continue
		}
		authors = append(authors, models.CommentAuthor{
			ID: uuid.NewString(), CommentID: c.ID, UserID: userID, CreatedAt: now,
		})
	}

	refs := make([]models.CommentReference, 0, len(req.References))
	for _, ref := range req.References {
		ref.ID = uuid.NewString()
		ref.CommentID = c.ID
		refs = append(refs, ref)
	}

	var coi *models.ConflictOfInterest
	if req.Conflict != nil {
		coi = req.Conflict
		coi.CommentID = c.ID
	}

	err = s.txManager.ExecTx(ctx, func(ctx context.Context) error {
		if err := s.comments.LockVersionForCounting(ctx, req.VersionID); err != nil {
			return err
		}

		counts, err := s.comments.Counts(ctx, req.VersionID, req.Anchor.Key(), req.Actor.UserID, now)
		if err != nil {
			return err
		}
		if err := checkLimits(req.AIGenerated, counts); err != nil {
			return err
		}

		return s.comments.Create(ctx, c, authors, refs, coi)
	})
	if err != nil {
		return nil, err
	}

	origin := "human"
	if c.AIGenerated {
		origin = "ai"
	}
	metrics.CommentsSubmitted.WithLabelValues(origin).Inc()

	s.audit.Record(ctx, models.AuditEntry{
		Actor: req.Actor.UserID, Action: models.ActionCommentSubmitted,
		EntityKind: "comment", EntityID: c.ID,
		ToStatus: string(models.CommentSubmitted),
		Detail:   map[string]any{"type": c.Type, "ai_generated": c.AIGenerated},
	})

	s.logger.Info("comment submitted",
		"comment_id", c.ID,
		"version_id", c.VersionID,
		"type", c.Type,
		"ai_generated", c.AIGenerated,
	)
	return c, nil
}

// checkLimits enforces the submission-time rate limits against a
// snapshot taken under the version's advisory lock.
func checkLimits(aiGenerated bool, counts repositories.CommentCounts) error {
	if aiGenerated {
		if counts.AITotal >= config.MaxAICommentsPerVersion {
			metrics.RateLimitRejections.WithLabelValues("ai_per_version").Inc()
			return &domain.RateLimitError{
				Rule: "ai_per_version", Current: counts.AITotal, Limit: config.MaxAICommentsPerVersion,
			}
		}
		if counts.AISection >= config.MaxAICommentsPerSection {
			metrics.RateLimitRejections.WithLabelValues("ai_per_section").Inc()
			return &domain.RateLimitError{
				Rule: "ai_per_section", Current: counts.AISection, Limit: config.MaxAICommentsPerSection,
			}
		}
		return nil
	}

	if counts.UserDaySect >= config.MaxHumanCommentsPerSectionDay {
		metrics.RateLimitRejections.WithLabelValues("user_section_day").Inc()
		return &domain.RateLimitError{
			Rule: "user_section_day", Current: counts.UserDaySect, Limit: config.MaxHumanCommentsPerSectionDay,
		}
	}
	return nil
}

// validateSubmission checks every content rule and reports all
// violations at once. The interrogative-form rule applies to human
// and AI submissions alike.
func (s *commentWorkflow) validateSubmission(ctx context.Context, req *services.SubmitCommentRequest) error {
	var violations []string

	ctype, known := s.types.Get(req.Type)
	if !known {
		violations = append(violations, fmt.Sprintf("unknown comment type %q", req.Type))
	}

	body := strings.TrimSpace(req.Body)
	switch {
	case body == "":
		violations = append(violations, "body is required")
	case len(req.Body) > config.MaxCommentBodyLength:
		violations = append(violations, fmt.Sprintf("body exceeds %d characters", config.MaxCommentBodyLength))
	case !strings.HasSuffix(body, "?"):
		violations = append(violations, "body must be phrased as a question")
	}

	if req.Anchor.Empty() {
		violations = append(violations, "anchor is required: name a section or a line range")
	} else if req.Anchor.Section == "" && req.Anchor.LineEnd < req.Anchor.LineStart {
		violations = append(violations, "anchor line range is inverted")
	}

	if len(req.References) > config.MaxReferencesPerComment {
		violations = append(violations, fmt.Sprintf("at most %d references allowed", config.MaxReferencesPerComment))
	}
	for i, ref := range req.References {
		if strings.TrimSpace(ref.Title) == "" {
			violations = append(violations, fmt.Sprintf("reference %d: title is required", i+1))
		}
		switch ref.TrustLevel {
		case models.TrustHigh, models.TrustMedium, models.TrustLow:
		default:
			violations = append(violations, fmt.Sprintf("reference %d: trust level must be high, medium or low", i+1))
		}
	}

	if known {
		switch ctype.Code {
		case models.TypeResponse:
			if req.ParentID == "" {
				violations = append(violations, "rSC requires a parent comment")
			} else if v := s.validateParent(ctx, req); v != "" {
				violations = append(violations, v)
			}
		case models.TypeAdditionalData, models.TypeNewPublication:
			if len(req.References) == 0 {
				violations = append(violations, fmt.Sprintf("%s requires at least one reference", ctype.Code))
			}
		}
		if ctype.Code != models.TypeResponse && req.ParentID != "" {
			violations = append(violations, fmt.Sprintf("%s comments cannot have a parent", ctype.Code))
		}
	}

	if len(violations) > 0 {
		return &domain.ValidationError{Violations: violations}
	}
	return nil
}

// validateParent checks that an rSC's parent is an SC or rSC on the
// same version. Returns the violation message, or "".
func (s *commentWorkflow) validateParent(ctx context.Context, req *services.SubmitCommentRequest) string {
	parent, err := s.comments.GetByID(ctx, req.ParentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "parent comment does not exist"
		}
		return fmt.Sprintf("parent comment lookup failed: %v", err)
	}
	if parent.VersionID != req.VersionID {
		return "parent comment belongs to a different version"
	}
	if parent.Type != models.TypeScientificComment && parent.Type != models.TypeResponse {
		return fmt.Sprintf("parent must be an SC or rSC, not %s", parent.Type)
	}
	return ""
}

// ResubmitComment re-enters a draft returned by needs_revision. The
// comment keeps its identity and thread position.
func (s *commentWorkflow) ResubmitComment(ctx context.Context, actor policy.Actor, commentID, body string) (*models.Comment, error) {
	if err := actor.Caps.Require(policy.SubmitComment); err != nil {
		return nil, err
	}

	c, err := s.comments.GetByID(ctx, commentID)
	if err != nil {
		return nil, err
	}
	if c.Status != models.CommentDraft {
		return nil, &domain.InvalidStateTransitionError{
			Entity: "comment", From: string(c.Status), Attempted: "resubmit",
		}
	}

	if err := s.requireCorresponding(ctx, c.ID, actor.UserID); err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(body)
	var violations []string
	switch {
	case trimmed == "":
		violations = append(violations, "body is required")
	case len(body) > config.MaxCommentBodyLength:
		violations = append(violations, fmt.Sprintf("body exceeds %d characters", config.MaxCommentBodyLength))
	case !strings.HasSuffix(trimmed, "?"):
		violations = append(violations, "body must be phrased as a question")
	}
	if len(violations) > 0 {
		return nil, &domain.ValidationError{Violations: violations}
	}

	err = s.txManager.ExecTx(ctx, func(ctx context.Context) error {
		if err := s.comments.UpdateBody(ctx, c.ID, body); err != nil {
			return err
		}
		return s.comments.UpdateStatusCAS(ctx, c.ID, models.CommentDraft, models.CommentSubmitted, actor.UserID)
	})
	if err != nil {
		if errors.Is(err, domain.ErrStateConflict) {
			metrics.StateConflicts.WithLabelValues("comment").Inc()
		}
		return nil, err
	}

	s.audit.Transition(ctx, actor.UserID, models.ActionCommentSubmitted,
		"comment", c.ID, string(models.CommentDraft), string(models.CommentSubmitted))

	return s.comments.GetByID(ctx, c.ID)
}

// ModerateComment decides a submitted or under_review comment.
// Approval of a DOI-bearing type runs the identifier path and ends in
// published; ER publishes without one. Concurrent moderators race on
// the compare-and-set: exactly one decision lands.
func (s *commentWorkflow) ModerateComment(ctx context.Context, actor policy.Actor, req *services.ModerateCommentRequest) (*models.Comment, error) {
	if err := actor.Caps.Require(policy.ModerateComment); err != nil {
		return nil, err
	}

	c, err := s.comments.GetByID(ctx, req.CommentID)
	if err != nil {
		return nil, err
	}
	if c.Status != models.CommentSubmitted && c.Status != models.CommentUnderReview {
		return nil, &domain.InvalidStateTransitionError{
			Entity: "comment", From: string(c.Status), Attempted: "moderate",
		}
	}

	var target models.CommentStatus
	switch req.Decision {
	case models.DecisionApproved:
		target = models.CommentAccepted
	case models.DecisionRejected:
		if strings.TrimSpace(req.Reason) == "" {
			return nil, &domain.ValidationError{Violations: []string{"rejection requires a reason"}}
		}
		target = models.CommentRejected
	case models.DecisionNeedsRevision:
		target = models.CommentDraft
	default:
		return nil, &domain.ValidationError{Violations: []string{
			fmt.Sprintf("unknown decision %q", req.Decision),
		}}
	}

	err = s.txManager.ExecTx(ctx, func(ctx context.Context) error {
		if err := s.comments.UpdateStatusCAS(ctx, c.ID, c.Status, target, actor.UserID); err != nil {
			return err
		}
		return s.comments.CreateModeration(ctx, &models.CommentModeration{
			ID:        uuid.NewString(),
			CommentID: c.ID,
			Moderator: actor.UserID,
			Decision:  req.Decision,
			Reason:    req.Reason,
			DecidedAt: time.Now().UTC(),
		})
	})
	if err != nil {
		if errors.Is(err, domain.ErrStateConflict) {
			metrics.StateConflicts.WithLabelValues("comment").Inc()
		}
		return nil, err
	}

	s.audit.Record(ctx, models.AuditEntry{
		Actor: actor.UserID, Action: models.ActionCommentModerated,
		EntityKind: "comment", EntityID: c.ID,
		FromStatus: string(c.Status), ToStatus: string(target),
		Detail: map[string]any{"decision": req.Decision, "reason": req.Reason},
	})

	if req.Decision == models.DecisionApproved {
		if err := s.publishAccepted(ctx, actor, c); err != nil {
			return nil, err
		}
	}

	return s.comments.GetByID(ctx, c.ID)
}

// publishAccepted finishes an approved comment: identifier first for
// DOI-bearing types, then accepted -> published. A registry failure
// parks the identifier in error and never blocks publication.
func (s *commentWorkflow) publishAccepted(ctx context.Context, actor policy.Actor, c *models.Comment) error {
	if s.types.RequiresDOI(c.Type) {
		if doiStatus, err := s.registrar.RegisterComment(ctx, c.ID); err != nil {
			s.logger.Warn("publishing comment without findable doi",
				"comment_id", c.ID, "doi_status", doiStatus, "error", err)
		}
	}

	if err := s.comments.UpdateStatusCAS(ctx, c.ID, models.CommentAccepted, models.CommentPublished, actor.UserID); err != nil {
		if errors.Is(err, domain.ErrStateConflict) {
			metrics.StateConflicts.WithLabelValues("comment").Inc()
		}
		return err
	}

	s.audit.Transition(ctx, actor.UserID, models.ActionCommentPublished,
		"comment", c.ID, string(models.CommentAccepted), string(models.CommentPublished))
	return nil
}

// RetractComment soft-marks a published comment. The row and any
// minted identifier survive so citations keep resolving.
func (s *commentWorkflow) RetractComment(ctx context.Context, actor policy.Actor, commentID string) error {
	if err := actor.Caps.Require(policy.RetractComment); err != nil {
		return err
	}

	c, err := s.comments.GetByID(ctx, commentID)
	if err != nil {
		return err
	}
	if c.Status != models.CommentPublished {
		return &domain.InvalidStateTransitionError{
			Entity: "comment", From: string(c.Status), Attempted: "retract",
		}
	}
	if c.Retracted {
		return nil
	}

	if err := s.comments.MarkRetracted(ctx, c.ID, actor.UserID); err != nil {
		return err
	}

	s.audit.Record(ctx, models.AuditEntry{
		Actor: actor.UserID, Action: models.ActionCommentRetracted,
		EntityKind: "comment", EntityID: c.ID,
	})
	return nil
}

func (s *commentWorkflow) GetComment(ctx context.Context, id string) (*models.Comment, error) {
	return s.comments.GetByID(ctx, id)
}

func (s *commentWorkflow) ListComments(ctx context.Context, versionID string, filter services.ListCommentsFilter) ([]models.Comment, error) {
	return s.comments.ListByVersion(ctx, versionID, repositories.CommentFilter{
		Type:      filter.Type,
		Status:    filter.Status,
		ParentID:  filter.ParentID,
		RootsOnly: filter.RootsOnly,
	})
}

// requireCorresponding checks the actor is the comment's
// corresponding author.
func (s *commentWorkflow) requireCorresponding(ctx context.Context, commentID, userID string) error {
	authors, err := s.comments.ListAuthors(ctx, commentID)
	if err != nil {
		return err
	}
	for _, a := range authors {
		if a.Corresponding && a.UserID == userID {
			return nil
		}
	}
	return &domain.ForbiddenError{Capability: "corresponding_author"}
}
