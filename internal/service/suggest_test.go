package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"livingdoc/internal/audit"
	"livingdoc/internal/commenttypes"
	"livingdoc/internal/config"
	"livingdoc/internal/domain"
	"livingdoc/internal/domain/models"
	"livingdoc/internal/domain/services"
	"livingdoc/internal/policy"
	"livingdoc/internal/prompts"
)

type suggestFixture struct {
	versions    *fakeVersionRepo
	comments    *fakeCommentRepo
	suggestions *fakeSuggestionRepo
	sources     *fakeContextRepo
	provider    *fakeProvider
	pipeline    services.SuggestionPipeline
	workflow    services.CommentWorkflow
}

func newSuggestFixture(t *testing.T) *suggestFixture {
	t.Helper()
	types, err := commenttypes.NewRegistry()
	if err != nil {
		t.Fatalf("commenttypes.NewRegistry: %v", err)
	}
	promptRegistry, err := prompts.NewRegistry()
	if err != nil {
		t.Fatalf("prompts.NewRegistry: %v", err)
	}

	f := &suggestFixture{
		versions:    newFakeVersionRepo(),
		comments:    newFakeCommentRepo(),
		suggestions: newFakeSuggestionRepo(),
		sources:     newFakeContextRepo(),
		provider:    &fakeProvider{},
	}
	registrar := &fakeRegistrar{versions: f.versions, comments: f.comments}
	recorder := audit.NewRecorder(&fakeAuditRepo{}, discardLogger())
	f.workflow = NewCommentWorkflow(f.versions, f.comments, types, fakeTxManager{}, registrar, recorder, discardLogger())
	f.pipeline = NewSuggestionPipeline(f.versions, f.suggestions, f.sources, f.comments, f.workflow,
		f.provider, promptRegistry, fakeTxManager{}, recorder, "mock-reviewer", discardLogger())
	return f
}

func (f *suggestFixture) seedPublishedVersion(t *testing.T) *models.DocumentVersion {
	t.Helper()
	now := time.Now().UTC()
	v := &models.DocumentVersion{
		ID:               "version-1",
		PublicationID:    "publication-1",
		VersionNumber:    1,
		Status:           models.VersionPublished,
		Content:          "# Methods\n\nDetails.",
		DiscussionStatus: models.DiscussionOpen,
		StatusChangedAt:  now,
		CreatedAt:        now,
	}
	if err := f.versions.Create(context.Background(), v); err != nil {
		t.Fatalf("seed version: %v", err)
	}
	f.sources.docs[v.ID] = []models.ContextDocument{
		{ID: "doc-1", Title: "Prior replication study", Excerpt: "n=200 cohort", TrustLevel: models.TrustHigh},
		{ID: "doc-2", Title: "Methodology handbook", Excerpt: "controls chapter", TrustLevel: models.TrustMedium},
	}
	return v
}

func generatorActor() policy.Actor {
	return policy.Actor{UserID: "user-editor", Caps: policy.FromRoles([]string{"editor"})}
}

func TestGenerateStoresPendingSuggestions(t *testing.T) {
	f := newSuggestFixture(t)
	v := f.seedPublishedVersion(t)
	f.provider.text = "Methods | Was the control group randomized? | 1\n" +
		"Results | Do the error bars reflect variance across runs? | 1, 2\n"

	created, err := f.pipeline.Generate(context.Background(), &services.GenerateRequest{
		Actor: generatorActor(), VersionID: v.ID,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("got %d suggestions, want 2", len(created))
	}
	for _, s := range created {
		if s.Status != models.SuggestionPending {
			t.Errorf("suggestion %s status = %q, want pending", s.ID, s.Status)
		}
	}

	sources, err := f.suggestions.ListSources(context.Background(), created[1].ID)
	if err != nil {
		t.Fatalf("ListSources: %v", err)
	}
	if len(sources) != 2 {
		t.Errorf("second suggestion has %d sources, want 2", len(sources))
	}

	if len(f.suggestions.logs) != 1 {
		t.Fatalf("got %d generation logs, want 1", len(f.suggestions.logs))
	}
	if f.suggestions.logs[0].Output == "" {
		t.Error("generation log should record the model output")
	}
}

func TestGenerateDiscardsUnusableLines(t *testing.T) {
	f := newSuggestFixture(t)
	v := f.seedPublishedVersion(t)
	f.provider.text = "Methods | Was the control group randomized? | 1\n" +
		"Methods | This is a statement, not a question. | 1\n" + // not interrogative
		"Results | Why is the baseline missing? |\n" + // no source
		"Results | Why no third source? | 3\n" + // source out of range
		"just some prose without any delimiters\n"

	created, err := f.pipeline.Generate(context.Background(), &services.GenerateRequest{
		Actor: generatorActor(), VersionID: v.ID,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("got %d suggestions, want 1 (rest discarded)", len(created))
	}
	if created[0].Body != "Was the control group randomized?" {
		t.Errorf("surviving suggestion = %q", created[0].Body)
	}
}

func TestGenerateLogsProviderFailure(t *testing.T) {
	f := newSuggestFixture(t)
	v := f.seedPublishedVersion(t)
	f.provider.err = errors.New("model overloaded")

	_, err := f.pipeline.Generate(context.Background(), &services.GenerateRequest{
		Actor: generatorActor(), VersionID: v.ID,
	})
	if !errors.Is(err, domain.ErrExternalService) {
		t.Fatalf("expected external service error, got %v", err)
	}

	// The invocation is logged no matter how it ended.
	if len(f.suggestions.logs) != 1 {
		t.Fatalf("got %d generation logs, want 1", len(f.suggestions.logs))
	}
	if f.suggestions.logs[0].Err == "" {
		t.Error("generation log should record the provider error")
	}
}

func TestGenerateRequiresReviewableVersion(t *testing.T) {
	f := newSuggestFixture(t)
	v := f.seedPublishedVersion(t)
	if err := f.versions.UpdateStatusCAS(context.Background(), v.ID, models.VersionPublished, models.VersionDraft, "test"); err != nil {
		t.Fatalf("UpdateStatusCAS: %v", err)
	}

	_, err := f.pipeline.Generate(context.Background(), &services.GenerateRequest{
		Actor: generatorActor(), VersionID: v.ID,
	})
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

// Suggestions may feed reviewer activity before the editor decides.
func TestGenerateAllowedDuringReview(t *testing.T) {
	f := newSuggestFixture(t)
	v := f.seedPublishedVersion(t)
	if err := f.versions.UpdateStatusCAS(context.Background(), v.ID, models.VersionPublished, models.VersionUnderReview, "test"); err != nil {
		t.Fatalf("UpdateStatusCAS: %v", err)
	}
	f.provider.text = "Methods | Was the control group randomized? | 1\n"

	created, err := f.pipeline.Generate(context.Background(), &services.GenerateRequest{
		Actor: generatorActor(), VersionID: v.ID,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("created %d suggestions, want 1", len(created))
	}
}

// seedAIComment inserts an admitted AI comment directly so the
// pre-check can be observed against a saturated version.
func (f *suggestFixture) seedAIComment(t *testing.T, versionID, id, section string, status models.CommentStatus) {
	t.Helper()
	now := time.Now().UTC()
	c := &models.Comment{
		ID: id, VersionID: versionID, Type: models.TypeScientificComment,
		Body: "Was this already checked?", Anchor: models.Anchor{Section: section},
		Status: status, AIGenerated: true,
		StatusChangedAt: now, CreatedAt: now,
	}
	if err := f.comments.Create(context.Background(), c, nil, nil, nil); err != nil {
		t.Fatalf("seed AI comment: %v", err)
	}
}

// Admitted AI comments occupy the same headroom as pending
// suggestions: a version at the cap gets no model call at all.
func TestGenerateCountsAdmittedAIComments(t *testing.T) {
	f := newSuggestFixture(t)
	v := f.seedPublishedVersion(t)
	for i := 0; i < config.MaxAICommentsPerVersion; i++ {
		f.seedAIComment(t, v.ID, fmt.Sprintf("ai-%d", i), fmt.Sprintf("Section-%d", i/2), models.CommentAccepted)
	}

	_, err := f.pipeline.Generate(context.Background(), &services.GenerateRequest{
		Actor: generatorActor(), VersionID: v.ID,
	})
	var rle *domain.RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("got %v, want rate limit error", err)
	}
	if rle.Rule != "ai_pending" || rle.Current != config.MaxAICommentsPerVersion {
		t.Errorf("rule = %q current = %d, want ai_pending at %d", rle.Rule, rle.Current, config.MaxAICommentsPerVersion)
	}
	if f.provider.lastReq != nil {
		t.Error("model was invoked despite exhausted headroom")
	}
}

// A section holding its two admitted AI comments cannot take another
// suggestion, even with version-level headroom left.
func TestGenerateSkipsSectionsAtAICap(t *testing.T) {
	f := newSuggestFixture(t)
	v := f.seedPublishedVersion(t)
	f.seedAIComment(t, v.ID, "ai-m1", "Methods", models.CommentAccepted)
	f.seedAIComment(t, v.ID, "ai-m2", "Methods", models.CommentSubmitted)
	f.provider.text = "Methods | Was the buffer concentration controlled? | 1\n" +
		"Results | Do the error bars reflect variance across runs? | 2\n"

	created, err := f.pipeline.Generate(context.Background(), &services.GenerateRequest{
		Actor: generatorActor(), VersionID: v.ID,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("created %d suggestions, want 1", len(created))
	}
	if created[0].Anchor.Section != "Results" {
		t.Errorf("surviving suggestion anchored at %q, want Results", created[0].Anchor.Section)
	}
}

func TestGenerateRequiresContextSources(t *testing.T) {
	f := newSuggestFixture(t)
	v := f.seedPublishedVersion(t)
	f.sources.docs[v.ID] = nil

	_, err := f.pipeline.Generate(context.Background(), &services.GenerateRequest{
		Actor: generatorActor(), VersionID: v.ID,
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error without sources, got %v", err)
	}
	if f.provider.lastReq != nil {
		t.Error("provider must not be invoked without approved sources")
	}
}

func TestGenerateHonorsPendingHeadroom(t *testing.T) {
	f := newSuggestFixture(t)
	v := f.seedPublishedVersion(t)

	// Fill the pending queue to the version-wide AI cap.
	for i := 0; i < 10; i++ {
		s := &models.AICommentSuggestion{
			ID: fmt.Sprintf("sugg-%d", i), VersionID: v.ID,
			Body: "Pending?", Anchor: models.Anchor{Section: fmt.Sprintf("S%d", i)},
			Status: models.SuggestionPending,
		}
		if err := f.suggestions.Create(context.Background(), s, nil); err != nil {
			t.Fatalf("seed suggestion: %v", err)
		}
	}

	_, err := f.pipeline.Generate(context.Background(), &services.GenerateRequest{
		Actor: generatorActor(), VersionID: v.ID,
	})
	var rerr *domain.RateLimitError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected rate limit error, got %v", err)
	}
	if rerr.Rule != "ai_pending" {
		t.Errorf("rule = %q, want ai_pending", rerr.Rule)
	}
}

func TestApproveCreatesAIComment(t *testing.T) {
	f := newSuggestFixture(t)
	v := f.seedPublishedVersion(t)
	f.provider.text = "Methods | Was the control group randomized? | 1\n"

	created, err := f.pipeline.Generate(context.Background(), &services.GenerateRequest{
		Actor: generatorActor(), VersionID: v.ID,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	comment, err := f.pipeline.Approve(context.Background(), generatorActor(), created[0].ID)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}

	if !comment.AIGenerated {
		t.Error("approved suggestion must yield an ai_generated comment")
	}
	if comment.SuggestionID != created[0].ID {
		t.Errorf("comment links suggestion %q, want %q", comment.SuggestionID, created[0].ID)
	}
	if comment.Status != models.CommentSubmitted {
		t.Errorf("status = %q, want %q: approval never skips moderation", comment.Status, models.CommentSubmitted)
	}

	refs, err := f.comments.ListReferences(context.Background(), comment.ID)
	if err != nil {
		t.Fatalf("ListReferences: %v", err)
	}
	if len(refs) != 1 || refs[0].Title != "Prior replication study" {
		t.Errorf("references = %+v, want the suggestion's source carried over", refs)
	}

	sug, err := f.suggestions.GetByID(context.Background(), created[0].ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if sug.Status != models.SuggestionApproved {
		t.Errorf("suggestion status = %q, want approved", sug.Status)
	}
}

func TestModifyAndApproveKeepsRules(t *testing.T) {
	f := newSuggestFixture(t)
	v := f.seedPublishedVersion(t)
	f.provider.text = "Methods | Was the control group randomized? | 1\n"

	created, err := f.pipeline.Generate(context.Background(), &services.GenerateRequest{
		Actor: generatorActor(), VersionID: v.ID,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	comment, err := f.pipeline.ModifyAndApprove(context.Background(), generatorActor(), created[0].ID,
		"Was the control group randomized, and how was allocation concealed?")
	if err != nil {
		t.Fatalf("ModifyAndApprove: %v", err)
	}
	if comment.Body != "Was the control group randomized, and how was allocation concealed?" {
		t.Errorf("body = %q, want the edited text", comment.Body)
	}
}

func TestModifyAndApproveRefusesStatement(t *testing.T) {
	f := newSuggestFixture(t)
	v := f.seedPublishedVersion(t)
	f.provider.text = "Methods | Was the control group randomized? | 1\n"

	created, err := f.pipeline.Generate(context.Background(), &services.GenerateRequest{
		Actor: generatorActor(), VersionID: v.ID,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	// An edit must still satisfy every comment rule, the
	// interrogative form included.
	_, err = f.pipeline.ModifyAndApprove(context.Background(), generatorActor(), created[0].ID,
		"The control group was not randomized.")
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for edited statement, got %v", err)
	}

	comments, err := f.workflow.ListComments(context.Background(), v.ID, services.ListCommentsFilter{})
	if err != nil {
		t.Fatalf("ListComments: %v", err)
	}
	if len(comments) != 0 {
		t.Errorf("got %d comments, want 0: a refused edit leaves nothing behind", len(comments))
	}
}

func TestRejectIsTerminal(t *testing.T) {
	f := newSuggestFixture(t)
	v := f.seedPublishedVersion(t)
	f.provider.text = "Methods | Was the control group randomized? | 1\n"

	created, err := f.pipeline.Generate(context.Background(), &services.GenerateRequest{
		Actor: generatorActor(), VersionID: v.ID,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if err := f.pipeline.Reject(context.Background(), generatorActor(), created[0].ID); err != nil {
		t.Fatalf("Reject: %v", err)
	}

	if _, err := f.pipeline.Approve(context.Background(), generatorActor(), created[0].ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition approving a rejected suggestion, got %v", err)
	}

	comments, err := f.workflow.ListComments(context.Background(), v.ID, services.ListCommentsFilter{})
	if err != nil {
		t.Fatalf("ListComments: %v", err)
	}
	if len(comments) != 0 {
		t.Errorf("got %d comments, want 0: rejection never creates a comment", len(comments))
	}
}

func TestParseSuggestions(t *testing.T) {
	docs := []models.ContextDocument{
		{ID: "doc-1", Title: "A", Excerpt: "ex-a", TrustLevel: models.TrustHigh},
		{ID: "doc-2", Title: "B", Excerpt: "ex-b", TrustLevel: models.TrustMedium},
	}

	tests := []struct {
		name   string
		output string
		want   int
	}{
		{name: "empty output", output: "", want: 0},
		{name: "single valid line", output: "Methods | Why? | 1", want: 1},
		{name: "bracketed source", output: "Methods | Why? | [2]", want: 1},
		{name: "src prefix", output: "Methods | Why? | src-1, src-2", want: 1},
		{name: "missing question mark", output: "Methods | Because. | 1", want: 0},
		{name: "missing section", output: " | Why? | 1", want: 0},
		{name: "too few fields", output: "Methods | Why?", want: 0},
		{name: "source out of range", output: "Methods | Why? | 5", want: 0},
		{name: "duplicate sources collapse", output: "Methods | Why? | 1, 1, 1", want: 1},
		{name: "blank lines skipped", output: "\n\nMethods | Why? | 1\n\n", want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseSuggestions(tt.output, docs)
			if len(got) != tt.want {
				t.Fatalf("got %d candidates, want %d", len(got), tt.want)
			}
			for _, cand := range got {
				if len(cand.sources) == 0 {
					t.Error("candidate survived without a source")
				}
			}
		})
	}
}

func TestResolveSources(t *testing.T) {
	docs := []models.ContextDocument{
		{ID: "doc-1", Title: "A", Excerpt: "ex-a", DOI: "10.1/a", TrustLevel: models.TrustHigh},
		{ID: "doc-2", Title: "B", Excerpt: "ex-b", TrustLevel: models.TrustMedium},
	}

	got := resolveSources("2, 1", docs)
	if len(got) != 2 {
		t.Fatalf("got %d sources, want 2", len(got))
	}
	if got[0].Title != "B" || got[1].Title != "A" {
		t.Errorf("sources resolved out of order: %+v", got)
	}
	if got[1].DOI != "10.1/a" {
		t.Errorf("DOI not carried over: %+v", got[1])
	}

	if out := resolveSources("zero, none", docs); len(out) != 0 {
		t.Errorf("non-numeric tokens resolved: %+v", out)
	}
}
