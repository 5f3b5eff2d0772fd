package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"livingdoc/internal/audit"
	"livingdoc/internal/config"
	"livingdoc/internal/domain"
	"livingdoc/internal/domain/models"
	"livingdoc/internal/domain/repositories"
	"livingdoc/internal/domain/services"
	"livingdoc/internal/metrics"
	"livingdoc/internal/policy"
	"livingdoc/internal/prompts"
)

const defaultMaxSuggestions = 5

// suggestionPipeline implements the SuggestionPipeline interface.
// Model output is never a comment by itself: approval routes through
// the same submission path, rules and limits as a human comment.
type suggestionPipeline struct {
	versions    repositories.VersionRepository
	suggestions repositories.SuggestionRepository
	sources     repositories.ContextSourceRepository
	comments    repositories.CommentRepository
	workflow    services.CommentWorkflow
	provider    services.LLMProvider
	prompts     *prompts.Registry
	txManager   repositories.TransactionManager
	audit       *audit.Recorder
	model       string
	logger      *slog.Logger
}

// NewSuggestionPipeline creates a new suggestion pipeline
func NewSuggestionPipeline(
	versions repositories.VersionRepository,
	suggestions repositories.SuggestionRepository,
	sources repositories.ContextSourceRepository,
	comments repositories.CommentRepository,
	workflow services.CommentWorkflow,
	provider services.LLMProvider,
	promptRegistry *prompts.Registry,
	txManager repositories.TransactionManager,
	recorder *audit.Recorder,
	model string,
	logger *slog.Logger,
) services.SuggestionPipeline {
	return &suggestionPipeline{
		versions:    versions,
		suggestions: suggestions,
		sources:     sources,
		comments:    comments,
		workflow:    workflow,
		provider:    provider,
		prompts:     promptRegistry,
		txManager:   txManager,
		audit:       recorder,
		model:       model,
		logger:      logger,
	}
}

// Generate invokes the model over the pre-approved retrieval corpus
// and stores the surviving candidates as pending suggestions. The
// invocation is logged whether it succeeds, fails or gets cancelled.
func (s *suggestionPipeline) Generate(ctx context.Context, req *services.GenerateRequest) ([]models.AICommentSuggestion, error) {
	if err := req.Actor.Caps.Require(policy.GenerateSuggestions); err != nil {
		return nil, err
	}

	v, err := s.versions.GetByID(ctx, req.VersionID)
	if err != nil {
		return nil, err
	}
	// Suggestions feed reviewer activity during review and open
	// discussion after publication.
	switch v.Status {
	case models.VersionSubmitted, models.VersionUnderReview, models.VersionPublished:
	default:
		return nil, &domain.InvalidStateTransitionError{
			Entity: "version", From: string(v.Status), Attempted: "generate_suggestions",
		}
	}

	promptName := req.PromptName
	if promptName == "" {
		promptName = "review-questions"
	}
	tmpl, ok := s.prompts.Get(promptName)
	if !ok {
		return nil, &domain.ValidationError{Violations: []string{
			fmt.Sprintf("unknown prompt %q", promptName),
		}}
	}

	max := req.MaxSuggestions
	if max <= 0 || max > defaultMaxSuggestions {
		max = defaultMaxSuggestions
	}

	// Pending suggestions are provisional AI comments: together with
	// the AI comments already admitted they must leave headroom under
	// the per-version cap, or a run would surface suggestions that no
	// approval could ever admit.
	pending, err := s.suggestions.CountPending(ctx, req.VersionID)
	if err != nil {
		return nil, err
	}
	counts, err := s.comments.Counts(ctx, req.VersionID, "", req.Actor.UserID, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	occupied := pending + counts.AITotal
	if occupied >= config.MaxAICommentsPerVersion {
		metrics.RateLimitRejections.WithLabelValues("ai_pending").Inc()
		return nil, &domain.RateLimitError{
			Rule: "ai_pending", Current: occupied, Limit: config.MaxAICommentsPerVersion,
		}
	}
	if remaining := config.MaxAICommentsPerVersion - occupied; max > remaining {
		max = remaining
	}

	// The retrieval context is the pre-approved corpus, nothing else.
	docs, err := s.sources.ListForVersion(ctx, req.VersionID, models.TrustMedium)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, &domain.ValidationError{Violations: []string{
			"no approved context sources for this version",
		}}
	}

	sourceLines := make([]string, 0, len(docs))
	contextIDs := make([]string, 0, len(docs))
	for _, d := range docs {
		sourceLines = append(sourceLines, fmt.Sprintf("%s (trust: %s) — %s", d.Title, d.TrustLevel, d.Excerpt))
		contextIDs = append(contextIDs, d.ID)
	}

	prompt := tmpl.Render(v.Content, sourceLines, max)

	callCtx, cancel := context.WithTimeout(ctx, config.ModelCallTimeout)
	defer cancel()

	start := time.Now()
	result, callErr := s.provider.Complete(callCtx, &services.CompletionRequest{
		Model:  s.model,
		System: tmpl.System,
		Prompt: prompt,
	})
	elapsed := time.Since(start)

	log := &models.GenerationLog{
		ID:          uuid.NewString(),
		VersionID:   req.VersionID,
		RequestedBy: req.Actor.UserID,
		Model:       s.model,
		PromptName:  promptName,
		Prompt:      prompt,
		ContextIDs:  contextIDs,
		Duration:    elapsed,
		CreatedAt:   time.Now().UTC(),
	}
	if callErr != nil {
		log.Err = callErr.Error()
	} else {
		log.Output = result.Text
		log.TokenCount = result.TokenCount
	}
	// The log is written no matter how the run ended; use a fresh
	// context so a cancelled run still leaves its trace.
	if err := s.suggestions.AppendLog(context.WithoutCancel(ctx), log); err != nil {
		s.logger.Error("generation log append failed", "version_id", req.VersionID, "error", err)
	}

	if callErr != nil {
		metrics.SuggestionRuns.WithLabelValues("error").Inc()
		if errors.Is(callErr, context.Canceled) || errors.Is(callErr, context.DeadlineExceeded) {
			return nil, callErr
		}
		return nil, &domain.ExternalServiceError{Service: s.provider.Name(), Err: callErr}
	}

	candidates := parseSuggestions(result.Text, docs)

	created := make([]models.AICommentSuggestion, 0, max)
	for _, cand := range candidates {
		if len(created) >= max {
			break
		}

		// Per-section headroom counts admitted AI comments alongside
		// pending suggestions, same as the version-level check.
		sectionPending, err := s.suggestions.CountPendingForSection(ctx, req.VersionID, cand.suggestion.Anchor.Key())
		if err != nil {
			return nil, err
		}
		sectionCounts, err := s.comments.Counts(ctx, req.VersionID, cand.suggestion.Anchor.Key(), req.Actor.UserID, time.Now().UTC())
		if err != nil {
			return nil, err
		}
		if sectionPending+sectionCounts.AISection >= config.MaxAICommentsPerSection {
			continue
		}

		cand.suggestion.ID = uuid.NewString()
		cand.suggestion.VersionID = req.VersionID
		cand.suggestion.Status = models.SuggestionPending
		cand.suggestion.Model = s.model
		cand.suggestion.PromptName = promptName
		cand.suggestion.CreatedAt = time.Now().UTC()

		for i := range cand.sources {
			cand.sources[i].ID = uuid.NewString()
			cand.sources[i].SuggestionID = cand.suggestion.ID
		}

		if err := s.suggestions.Create(ctx, &cand.suggestion, cand.sources); err != nil {
			return nil, err
		}
		created = append(created, cand.suggestion)
	}

	if len(created) == 0 {
		metrics.SuggestionRuns.WithLabelValues("empty").Inc()
	} else {
		metrics.SuggestionRuns.WithLabelValues("ok").Inc()
	}

	s.audit.Record(ctx, models.AuditEntry{
		Actor: req.Actor.UserID, Action: models.ActionSuggestionGenerate,
		EntityKind: "version", EntityID: req.VersionID,
		Detail: map[string]any{
			"prompt":    promptName,
			"returned":  len(candidates),
			"surfaced":  len(created),
			"discarded": len(candidates) - len(created),
		},
	})

	s.logger.Info("suggestion run finished",
		"version_id", req.VersionID,
		"candidates", len(candidates),
		"surfaced", len(created),
		"duration_ms", elapsed.Milliseconds(),
	)
	return created, nil
}

// Approve turns a pending suggestion into a real comment. The
// resolve and the comment insert share one transaction, so a race on
// the suggestion or a tripped rate limit leaves nothing behind.
func (s *suggestionPipeline) Approve(ctx context.Context, actor policy.Actor, suggestionID string) (*models.Comment, error) {
	return s.approve(ctx, actor, suggestionID, "")
}

// ModifyAndApprove approves with an edited body. The edit must still
// satisfy every comment rule, the interrogative form included.
func (s *suggestionPipeline) ModifyAndApprove(ctx context.Context, actor policy.Actor, suggestionID, editedBody string) (*models.Comment, error) {
	if strings.TrimSpace(editedBody) == "" {
		return nil, &domain.ValidationError{Violations: []string{"edited body is required"}}
	}
	return s.approve(ctx, actor, suggestionID, editedBody)
}

func (s *suggestionPipeline) approve(ctx context.Context, actor policy.Actor, suggestionID, editedBody string) (*models.Comment, error) {
	if err := actor.Caps.Require(policy.ReviewSuggestions); err != nil {
		return nil, err
	}

	sug, err := s.suggestions.GetByID(ctx, suggestionID)
	if err != nil {
		return nil, err
	}
	if sug.Status != models.SuggestionPending {
		return nil, &domain.InvalidStateTransitionError{
			Entity: "suggestion", From: string(sug.Status), Attempted: "approve",
		}
	}

	sources, err := s.suggestions.ListSources(ctx, suggestionID)
	if err != nil {
		return nil, err
	}
	refs := make([]models.CommentReference, 0, len(sources))
	for _, src := range sources {
		refs = append(refs, models.CommentReference{
			Title:        src.Title,
			DOI:          src.DOI,
			CitationText: src.CitationText,
			TrustLevel:   src.TrustLevel,
		})
	}

	body := sug.Body
	if editedBody != "" {
		body = editedBody
	}

	var comment *models.Comment
	err = s.txManager.ExecTx(ctx, func(ctx context.Context) error {
		if err := s.suggestions.ResolveCAS(ctx, suggestionID, models.SuggestionApproved, actor.UserID); err != nil {
			return err
		}

		comment, err = s.workflow.SubmitComment(ctx, &services.SubmitCommentRequest{
			Actor:        actor,
			VersionID:    sug.VersionID,
			Type:         models.TypeScientificComment,
			Body:         body,
			Anchor:       sug.Anchor,
			References:   refs,
			AIGenerated:  true,
			SuggestionID: sug.ID,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrStateConflict) {
			metrics.StateConflicts.WithLabelValues("suggestion").Inc()
		}
		return nil, err
	}

	s.audit.Record(ctx, models.AuditEntry{
		Actor: actor.UserID, Action: models.ActionSuggestionApproved,
		EntityKind: "suggestion", EntityID: sug.ID,
		Detail: map[string]any{"comment_id": comment.ID, "edited": editedBody != ""},
	})
	return comment, nil
}

// Reject marks the suggestion terminal. No comment is ever created
// from a rejected suggestion.
func (s *suggestionPipeline) Reject(ctx context.Context, actor policy.Actor, suggestionID string) error {
	if err := actor.Caps.Require(policy.ReviewSuggestions); err != nil {
		return err
	}

	sug, err := s.suggestions.GetByID(ctx, suggestionID)
	if err != nil {
		return err
	}
	if sug.Status != models.SuggestionPending {
		return &domain.InvalidStateTransitionError{
			Entity: "suggestion", From: string(sug.Status), Attempted: "reject",
		}
	}

	if err := s.suggestions.ResolveCAS(ctx, suggestionID, models.SuggestionRejected, actor.UserID); err != nil {
		if errors.Is(err, domain.ErrStateConflict) {
			metrics.StateConflicts.WithLabelValues("suggestion").Inc()
		}
		return err
	}

	s.audit.Record(ctx, models.AuditEntry{
		Actor: actor.UserID, Action: models.ActionSuggestionRejected,
		EntityKind: "suggestion", EntityID: sug.ID,
	})
	return nil
}

func (s *suggestionPipeline) ListSuggestions(ctx context.Context, versionID string, status models.SuggestionStatus) ([]models.AICommentSuggestion, error) {
	return s.suggestions.ListByVersion(ctx, versionID, status)
}

type candidate struct {
	suggestion models.AICommentSuggestion
	sources    []models.SuggestionSource
}

// parseSuggestions reads the model's pipe-delimited lines
// (SECTION | QUESTION | SOURCES) against the retrieval corpus.
// Lines that are malformed, not phrased as a question, or cite no
// resolvable source are discarded, never surfaced.
func parseSuggestions(output string, docs []models.ContextDocument) []candidate {
	var out []candidate

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		parts := strings.SplitN(line, "|", 3)
		if len(parts) != 3 {
			continue
		}

		section := strings.TrimSpace(parts[0])
		question := strings.TrimSpace(parts[1])
		if section == "" || question == "" || !strings.HasSuffix(question, "?") {
			continue
		}

		sources := resolveSources(strings.TrimSpace(parts[2]), docs)
		if len(sources) == 0 {
			continue
		}

		out = append(out, candidate{
			suggestion: models.AICommentSuggestion{
				Body:   question,
				Anchor: models.Anchor{Section: section},
			},
			sources: sources,
		})
	}

	return out
}

// resolveSources maps the model's source field back to context
// documents, accepting 1-based indices ("1", "[2]", "src-3") in a
// comma-separated list. Unresolvable entries are dropped.
func resolveSources(field string, docs []models.ContextDocument) []models.SuggestionSource {
	var out []models.SuggestionSource
	seen := make(map[int]bool)

	for _, token := range strings.Split(field, ",") {
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, token)
		if digits == "" {
			continue
		}

		idx, err := strconv.Atoi(digits)
		if err != nil || idx < 1 || idx > len(docs) || seen[idx] {
			continue
		}
		seen[idx] = true

		doc := docs[idx-1]
		out = append(out, models.SuggestionSource{
			Title:        doc.Title,
			CitationText: doc.Excerpt,
			DOI:          doc.DOI,
			TrustLevel:   doc.TrustLevel,
		})
	}

	return out
}
