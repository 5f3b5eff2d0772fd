package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"livingdoc/internal/audit"
	"livingdoc/internal/commenttypes"
	"livingdoc/internal/domain"
	"livingdoc/internal/domain/models"
	"livingdoc/internal/domain/services"
	"livingdoc/internal/policy"
)

type commentFixture struct {
	versions  *fakeVersionRepo
	comments  *fakeCommentRepo
	registrar *fakeRegistrar
	workflow  services.CommentWorkflow
}

func newCommentFixture(t *testing.T) *commentFixture {
	t.Helper()
	types, err := commenttypes.NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	f := &commentFixture{
		versions: newFakeVersionRepo(),
		comments: newFakeCommentRepo(),
	}
	f.registrar = &fakeRegistrar{versions: f.versions, comments: f.comments}
	recorder := audit.NewRecorder(&fakeAuditRepo{}, discardLogger())
	f.workflow = NewCommentWorkflow(f.versions, f.comments, types, fakeTxManager{}, f.registrar, recorder, discardLogger())
	return f
}

// seedVersion inserts a version in the given lifecycle status with an
// open discussion, skipping the lifecycle for brevity.
func (f *commentFixture) seedVersion(t *testing.T, status models.VersionStatus) *models.DocumentVersion {
	t.Helper()
	now := time.Now().UTC()
	v := &models.DocumentVersion{
		ID:               "version-1",
		PublicationID:    "publication-1",
		VersionNumber:    1,
		Status:           status,
		Content:          "# Methods\n\nDetails.",
		DiscussionStatus: models.DiscussionOpen,
		StatusChangedAt:  now,
		CreatedAt:        now,
	}
	if err := f.versions.Create(context.Background(), v); err != nil {
		t.Fatalf("seed version: %v", err)
	}
	return v
}

// seedPublishedVersion inserts a published version with an open
// discussion, skipping the lifecycle for brevity.
func (f *commentFixture) seedPublishedVersion(t *testing.T) *models.DocumentVersion {
	t.Helper()
	return f.seedVersion(t, models.VersionPublished)
}

func commenterActor(userID string) policy.Actor {
	return policy.Actor{UserID: userID, Caps: policy.FromRoles([]string{"reviewer"})}
}

func moderatorActor() policy.Actor {
	return policy.Actor{UserID: "user-moderator", Caps: policy.FromRoles([]string{"moderator"})}
}

func validSubmission(versionID string) *services.SubmitCommentRequest {
	return &services.SubmitCommentRequest{
		Actor:     commenterActor("user-alice"),
		VersionID: versionID,
		Type:      models.TypeScientificComment,
		Body:      "Could the temperature drift explain the outliers in table 2?",
		Anchor:    models.Anchor{Section: "Methods"},
	}
}

func TestSubmitCommentHappyPath(t *testing.T) {
	f := newCommentFixture(t)
	v := f.seedPublishedVersion(t)

	c, err := f.workflow.SubmitComment(context.Background(), validSubmission(v.ID))
	if err != nil {
		t.Fatalf("SubmitComment: %v", err)
	}
	if c.Status != models.CommentSubmitted {
		t.Errorf("status = %q, want %q", c.Status, models.CommentSubmitted)
	}

	authors, err := f.comments.ListAuthors(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("ListAuthors: %v", err)
	}
	if len(authors) != 1 || !authors[0].Corresponding {
		t.Errorf("expected a single corresponding author, got %+v", authors)
	}
}

// Commentary opens when a version enters review, not only after
// publication: reviewer questions feed the editor's decision.
func TestSubmitCommentVersionStatusGate(t *testing.T) {
	cases := []struct {
		status  models.VersionStatus
		allowed bool
	}{
		{models.VersionSubmitted, true},
		{models.VersionUnderReview, true},
		{models.VersionPublished, true},
		{models.VersionDraft, false},
		{models.VersionAccepted, false},
		{models.VersionRejected, false},
	}
	for _, tc := range cases {
		t.Run(string(tc.status), func(t *testing.T) {
			f := newCommentFixture(t)
			v := f.seedVersion(t, tc.status)

			_, err := f.workflow.SubmitComment(context.Background(), validSubmission(v.ID))
			if tc.allowed && err != nil {
				t.Fatalf("SubmitComment on %s version: %v", tc.status, err)
			}
			if !tc.allowed && !errors.Is(err, domain.ErrInvalidTransition) {
				t.Fatalf("SubmitComment on %s version: got %v, want invalid transition", tc.status, err)
			}
		})
	}
}

func TestSubmitCommentReportsAllViolations(t *testing.T) {
	f := newCommentFixture(t)
	v := f.seedPublishedVersion(t)

	req := &services.SubmitCommentRequest{
		Actor:     commenterActor("user-alice"),
		VersionID: v.ID,
		Type:      "XX",
		Body:      "This is a statement, not a question.",
	}
	_, err := f.workflow.SubmitComment(context.Background(), req)

	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	// Unknown type, non-interrogative body, and missing anchor must
	// all be reported in one response.
	if len(verr.Violations) != 3 {
		t.Fatalf("got %d violations, want 3: %v", len(verr.Violations), verr.Violations)
	}
}

func TestSubmitCommentInterrogativeRule(t *testing.T) {
	tests := []struct {
		name string
		body string
		ok   bool
	}{
		{name: "question", body: "Is the sample size sufficient?", ok: true},
		{name: "trailing whitespace", body: "Is the sample size sufficient?  ", ok: true},
		{name: "statement", body: "The sample size is too small.", ok: false},
		{name: "empty", body: "", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCommentFixture(t)
			v := f.seedPublishedVersion(t)

			req := validSubmission(v.ID)
			req.Body = tt.body
			_, err := f.workflow.SubmitComment(context.Background(), req)

			if tt.ok && err != nil {
				t.Fatalf("SubmitComment: %v", err)
			}
			if !tt.ok && !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestSubmitCommentAppliesInterrogativeRuleToAI(t *testing.T) {
	f := newCommentFixture(t)
	v := f.seedPublishedVersion(t)

	req := validSubmission(v.ID)
	req.Body = "The methodology appears flawed."
	req.AIGenerated = true
	_, err := f.workflow.SubmitComment(context.Background(), req)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for AI statement, got %v", err)
	}
}

func TestSubmitCommentRejectsClosedDiscussion(t *testing.T) {
	f := newCommentFixture(t)
	v := f.seedPublishedVersion(t)
	if err := f.versions.SetDiscussionStatus(context.Background(), v.ID, models.DiscussionClosed, "mod"); err != nil {
		t.Fatalf("SetDiscussionStatus: %v", err)
	}

	_, err := f.workflow.SubmitComment(context.Background(), validSubmission(v.ID))
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestSubmitCommentResponseNeedsParent(t *testing.T) {
	f := newCommentFixture(t)
	v := f.seedPublishedVersion(t)

	req := validSubmission(v.ID)
	req.Type = models.TypeResponse
	_, err := f.workflow.SubmitComment(context.Background(), req)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	parent, err := f.workflow.SubmitComment(context.Background(), validSubmission(v.ID))
	if err != nil {
		t.Fatalf("parent SubmitComment: %v", err)
	}

	req = validSubmission(v.ID)
	req.Type = models.TypeResponse
	req.ParentID = parent.ID
	if _, err := f.workflow.SubmitComment(context.Background(), req); err != nil {
		t.Fatalf("rSC with valid parent: %v", err)
	}
}

func TestSubmitCommentAdditionalDataNeedsReference(t *testing.T) {
	f := newCommentFixture(t)
	v := f.seedPublishedVersion(t)

	req := validSubmission(v.ID)
	req.Type = models.TypeAdditionalData
	_, err := f.workflow.SubmitComment(context.Background(), req)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error without references, got %v", err)
	}

	req.References = []models.CommentReference{{
		Title: "Replication dataset", TrustLevel: models.TrustHigh,
	}}
	if _, err := f.workflow.SubmitComment(context.Background(), req); err != nil {
		t.Fatalf("AD with reference: %v", err)
	}
}

// submitAI pushes an AI comment through submission with a distinct
// anchor per call index, staying under the per-section cap.
func submitAI(t *testing.T, f *commentFixture, versionID, section string) (*models.Comment, error) {
	t.Helper()
	req := validSubmission(versionID)
	req.AIGenerated = true
	req.Anchor = models.Anchor{Section: section}
	return f.workflow.SubmitComment(context.Background(), req)
}

func TestSubmitCommentAIVersionCap(t *testing.T) {
	f := newCommentFixture(t)
	v := f.seedPublishedVersion(t)

	// Ten AI comments spread so no single section exceeds its cap.
	for i := 0; i < 10; i++ {
		section := fmt.Sprintf("Section-%d", i/2)
		if _, err := submitAI(t, f, v.ID, section); err != nil {
			t.Fatalf("AI comment %d: %v", i+1, err)
		}
	}

	_, err := submitAI(t, f, v.ID, "Section-fresh")
	var rerr *domain.RateLimitError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected rate limit error on 11th AI comment, got %v", err)
	}
	if rerr.Rule != "ai_per_version" {
		t.Errorf("rule = %q, want ai_per_version", rerr.Rule)
	}
	if rerr.Current != 10 || rerr.Limit != 10 {
		t.Errorf("counts = %d/%d, want 10/10", rerr.Current, rerr.Limit)
	}
}

func TestSubmitCommentAISectionCap(t *testing.T) {
	f := newCommentFixture(t)
	v := f.seedPublishedVersion(t)

	for i := 0; i < 2; i++ {
		if _, err := submitAI(t, f, v.ID, "Results"); err != nil {
			t.Fatalf("AI comment %d: %v", i+1, err)
		}
	}

	_, err := submitAI(t, f, v.ID, "Results")
	var rerr *domain.RateLimitError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected rate limit error on 3rd AI comment for section, got %v", err)
	}
	if rerr.Rule != "ai_per_section" {
		t.Errorf("rule = %q, want ai_per_section", rerr.Rule)
	}
}

func TestSubmitCommentHumanDailySectionCap(t *testing.T) {
	f := newCommentFixture(t)
	v := f.seedPublishedVersion(t)

	for i := 0; i < 2; i++ {
		if _, err := f.workflow.SubmitComment(context.Background(), validSubmission(v.ID)); err != nil {
			t.Fatalf("comment %d: %v", i+1, err)
		}
	}

	_, err := f.workflow.SubmitComment(context.Background(), validSubmission(v.ID))
	var rerr *domain.RateLimitError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected rate limit error on 3rd daily comment, got %v", err)
	}
	if rerr.Rule != "user_section_day" {
		t.Errorf("rule = %q, want user_section_day", rerr.Rule)
	}

	// A different user and a different section are both still open.
	other := validSubmission(v.ID)
	other.Actor = commenterActor("user-bob")
	if _, err := f.workflow.SubmitComment(context.Background(), other); err != nil {
		t.Errorf("different user: %v", err)
	}
	elsewhere := validSubmission(v.ID)
	elsewhere.Anchor = models.Anchor{Section: "Discussion"}
	if _, err := f.workflow.SubmitComment(context.Background(), elsewhere); err != nil {
		t.Errorf("different section: %v", err)
	}
}

func TestModerateApprovedCommentGetsDOI(t *testing.T) {
	f := newCommentFixture(t)
	v := f.seedPublishedVersion(t)
	c, err := f.workflow.SubmitComment(context.Background(), validSubmission(v.ID))
	if err != nil {
		t.Fatalf("SubmitComment: %v", err)
	}

	moderated, err := f.workflow.ModerateComment(context.Background(), moderatorActor(), &services.ModerateCommentRequest{
		CommentID: c.ID, Decision: models.DecisionApproved,
	})
	if err != nil {
		t.Fatalf("ModerateComment: %v", err)
	}

	if moderated.Status != models.CommentPublished {
		t.Errorf("status = %q, want %q", moderated.Status, models.CommentPublished)
	}
	if moderated.DOI == "" {
		t.Error("approved SC should carry a DOI")
	}
	if moderated.DOIStatus != models.DOIStatusFindable {
		t.Errorf("doi status = %q, want %q", moderated.DOIStatus, models.DOIStatusFindable)
	}
}

func TestModerateErrorCorrectionPublishesWithoutDOI(t *testing.T) {
	f := newCommentFixture(t)
	v := f.seedPublishedVersion(t)

	req := validSubmission(v.ID)
	req.Type = models.TypeErrorCorrection
	req.Body = "Should the units in equation 4 be mmol rather than mol?"
	c, err := f.workflow.SubmitComment(context.Background(), req)
	if err != nil {
		t.Fatalf("SubmitComment: %v", err)
	}

	moderated, err := f.workflow.ModerateComment(context.Background(), moderatorActor(), &services.ModerateCommentRequest{
		CommentID: c.ID, Decision: models.DecisionApproved,
	})
	if err != nil {
		t.Fatalf("ModerateComment: %v", err)
	}

	if moderated.Status != models.CommentPublished {
		t.Errorf("status = %q, want %q", moderated.Status, models.CommentPublished)
	}
	if moderated.DOI != "" {
		t.Errorf("ER must publish without a DOI, got %q", moderated.DOI)
	}
	if len(f.registrar.commentCalls) != 0 {
		t.Errorf("registrar called %d times for an ER, want 0", len(f.registrar.commentCalls))
	}
}

func TestModerateRejectionRequiresReason(t *testing.T) {
	f := newCommentFixture(t)
	v := f.seedPublishedVersion(t)
	c, err := f.workflow.SubmitComment(context.Background(), validSubmission(v.ID))
	if err != nil {
		t.Fatalf("SubmitComment: %v", err)
	}

	_, err = f.workflow.ModerateComment(context.Background(), moderatorActor(), &services.ModerateCommentRequest{
		CommentID: c.ID, Decision: models.DecisionRejected,
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error without a reason, got %v", err)
	}

	moderated, err := f.workflow.ModerateComment(context.Background(), moderatorActor(), &services.ModerateCommentRequest{
		CommentID: c.ID, Decision: models.DecisionRejected, Reason: "unsupported claim",
	})
	if err != nil {
		t.Fatalf("ModerateComment: %v", err)
	}
	if moderated.Status != models.CommentRejected {
		t.Errorf("status = %q, want %q", moderated.Status, models.CommentRejected)
	}
}

func TestModerateConcurrentDecisionsOneWins(t *testing.T) {
	f := newCommentFixture(t)
	v := f.seedPublishedVersion(t)
	c, err := f.workflow.SubmitComment(context.Background(), validSubmission(v.ID))
	if err != nil {
		t.Fatalf("SubmitComment: %v", err)
	}

	decisions := []*services.ModerateCommentRequest{
		{CommentID: c.ID, Decision: models.DecisionApproved},
		{CommentID: c.ID, Decision: models.DecisionRejected, Reason: "duplicate"},
	}

	var wg sync.WaitGroup
	errs := make([]error, len(decisions))
	for i, req := range decisions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.workflow.ModerateComment(context.Background(), moderatorActor(), req)
		}()
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, domain.ErrStateConflict) || errors.Is(err, domain.ErrInvalidTransition):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if won != 1 || lost != 1 {
		t.Fatalf("got %d winners and %d losers, want exactly one of each", won, lost)
	}
}

func TestNeedsRevisionRoundTrip(t *testing.T) {
	f := newCommentFixture(t)
	v := f.seedPublishedVersion(t)
	c, err := f.workflow.SubmitComment(context.Background(), validSubmission(v.ID))
	if err != nil {
		t.Fatalf("SubmitComment: %v", err)
	}

	moderated, err := f.workflow.ModerateComment(context.Background(), moderatorActor(), &services.ModerateCommentRequest{
		CommentID: c.ID, Decision: models.DecisionNeedsRevision, Reason: "please cite the dataset",
	})
	if err != nil {
		t.Fatalf("ModerateComment: %v", err)
	}
	if moderated.Status != models.CommentDraft {
		t.Fatalf("status = %q, want %q", moderated.Status, models.CommentDraft)
	}

	resubmitted, err := f.workflow.ResubmitComment(context.Background(), commenterActor("user-alice"), c.ID,
		"Could the temperature drift explain the outliers, per dataset X?")
	if err != nil {
		t.Fatalf("ResubmitComment: %v", err)
	}
	if resubmitted.ID != c.ID {
		t.Error("resubmission must keep the comment's identity")
	}
	if resubmitted.Status != models.CommentSubmitted {
		t.Errorf("status = %q, want %q", resubmitted.Status, models.CommentSubmitted)
	}
	if !strings.Contains(resubmitted.Body, "dataset X") {
		t.Error("resubmission should carry the revised body")
	}
}

func TestResubmitRequiresCorrespondingAuthor(t *testing.T) {
	f := newCommentFixture(t)
	v := f.seedPublishedVersion(t)
	c, err := f.workflow.SubmitComment(context.Background(), validSubmission(v.ID))
	if err != nil {
		t.Fatalf("SubmitComment: %v", err)
	}
	if _, err := f.workflow.ModerateComment(context.Background(), moderatorActor(), &services.ModerateCommentRequest{
		CommentID: c.ID, Decision: models.DecisionNeedsRevision,
	}); err != nil {
		t.Fatalf("ModerateComment: %v", err)
	}

	_, err = f.workflow.ResubmitComment(context.Background(), commenterActor("user-mallory"), c.ID, "Is this mine now?")
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestRetractCommentKeepsDOI(t *testing.T) {
	f := newCommentFixture(t)
	v := f.seedPublishedVersion(t)
	c, err := f.workflow.SubmitComment(context.Background(), validSubmission(v.ID))
	if err != nil {
		t.Fatalf("SubmitComment: %v", err)
	}
	published, err := f.workflow.ModerateComment(context.Background(), moderatorActor(), &services.ModerateCommentRequest{
		CommentID: c.ID, Decision: models.DecisionApproved,
	})
	if err != nil {
		t.Fatalf("ModerateComment: %v", err)
	}

	if err := f.workflow.RetractComment(context.Background(), moderatorActor(), c.ID); err != nil {
		t.Fatalf("RetractComment: %v", err)
	}
	// Idempotent.
	if err := f.workflow.RetractComment(context.Background(), moderatorActor(), c.ID); err != nil {
		t.Fatalf("second RetractComment: %v", err)
	}

	got, err := f.workflow.GetComment(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("GetComment: %v", err)
	}
	if !got.Retracted {
		t.Error("comment should be marked retracted")
	}
	if got.Status != models.CommentPublished {
		t.Errorf("status = %q, want %q: retraction is a soft mark", got.Status, models.CommentPublished)
	}
	if got.DOI != published.DOI {
		t.Errorf("DOI changed on retraction: %q -> %q", published.DOI, got.DOI)
	}
}
