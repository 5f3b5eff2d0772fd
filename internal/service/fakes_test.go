package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"livingdoc/internal/domain"
	"livingdoc/internal/domain/models"
	"livingdoc/internal/domain/repositories"
	"livingdoc/internal/domain/services"
)

// fakeTxManager runs the function directly; the fakes below guard
// their own state.
type fakeTxManager struct{}

func (fakeTxManager) ExecTx(ctx context.Context, fn repositories.TxFn) error {
	return fn(ctx)
}

type fakePubRepo struct {
	mu   sync.Mutex
	pubs map[string]*models.Publication
}

func newFakePubRepo() *fakePubRepo {
	return &fakePubRepo{pubs: make(map[string]*models.Publication)}
}

func (r *fakePubRepo) Create(ctx context.Context, pub *models.Publication) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *pub
	r.pubs[pub.ID] = &cp
	return nil
}

func (r *fakePubRepo) GetByID(ctx context.Context, id string) (*models.Publication, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pub, ok := r.pubs[id]
	if !ok {
		return nil, &domain.NotFoundError{Message: "publication not found"}
	}
	cp := *pub
	return &cp, nil
}

func (r *fakePubRepo) List(ctx context.Context, limit, offset int) ([]models.Publication, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Publication
	for _, p := range r.pubs {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakePubRepo) SetMetaDOI(ctx context.Context, id, doi string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pub, ok := r.pubs[id]
	if !ok {
		return &domain.NotFoundError{Message: "publication not found"}
	}
	if pub.MetaDOI != "" && pub.MetaDOI != doi {
		return &domain.StateConflictError{Entity: "publication", ID: id}
	}
	pub.MetaDOI = doi
	return nil
}

type fakeVersionRepo struct {
	mu       sync.Mutex
	versions map[string]*models.DocumentVersion
	authors  map[string][]models.VersionAuthor
}

func newFakeVersionRepo() *fakeVersionRepo {
	return &fakeVersionRepo{
		versions: make(map[string]*models.DocumentVersion),
		authors:  make(map[string][]models.VersionAuthor),
	}
}

func (r *fakeVersionRepo) Create(ctx context.Context, v *models.DocumentVersion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.versions {
		if existing.PublicationID == v.PublicationID && existing.VersionNumber == v.VersionNumber {
			return fmt.Errorf("duplicate version number: %w", domain.ErrStateConflict)
		}
	}
	cp := *v
	r.versions[v.ID] = &cp
	return nil
}

func (r *fakeVersionRepo) GetByID(ctx context.Context, id string) (*models.DocumentVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.versions[id]
	if !ok {
		return nil, &domain.NotFoundError{Message: "version not found"}
	}
	cp := *v
	return &cp, nil
}

func (r *fakeVersionRepo) ListByPublication(ctx context.Context, publicationID string) ([]models.DocumentVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.DocumentVersion
	for _, v := range r.versions {
		if v.PublicationID == publicationID {
			out = append(out, *v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VersionNumber < out[j].VersionNumber })
	return out, nil
}

func (r *fakeVersionRepo) LockPublication(ctx context.Context, publicationID string) error {
	return nil
}

func (r *fakeVersionRepo) NextVersionNumber(ctx context.Context, publicationID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	max := 0
	for _, v := range r.versions {
		if v.PublicationID == publicationID && v.VersionNumber > max {
			max = v.VersionNumber
		}
	}
	return max + 1, nil
}

func (r *fakeVersionRepo) CurrentPublished(ctx context.Context, publicationID string) (*models.DocumentVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *models.DocumentVersion
	for _, v := range r.versions {
		if v.PublicationID == publicationID && v.Status == models.VersionPublished {
			if latest == nil || v.VersionNumber > latest.VersionNumber {
				latest = v
			}
		}
	}
	if latest == nil {
		return nil, &domain.NotFoundError{Message: "no published version"}
	}
	cp := *latest
	return &cp, nil
}

func (r *fakeVersionRepo) UpdateStatusCAS(ctx context.Context, id string, from, to models.VersionStatus, actor string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.versions[id]
	if !ok {
		return &domain.NotFoundError{Message: "version not found"}
	}
	if v.Status != from {
		return &domain.StateConflictError{Entity: "version", ID: id}
	}
	v.Status = to
	v.StatusChangedBy = actor
	v.StatusChangedAt = time.Now().UTC()
	return nil
}

func (r *fakeVersionRepo) SetDOI(ctx context.Context, id, doi string, status models.DOIStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.versions[id]
	if !ok {
		return &domain.NotFoundError{Message: "version not found"}
	}
	v.DOI = doi
	v.DOIStatus = status
	return nil
}

func (r *fakeVersionRepo) UpdateDOIStatus(ctx context.Context, id string, status models.DOIStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.versions[id]
	if !ok {
		return &domain.NotFoundError{Message: "version not found"}
	}
	v.DOIStatus = status
	return nil
}

func (r *fakeVersionRepo) ListDOIErrored(ctx context.Context, limit int) ([]models.DocumentVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.DocumentVersion
	for _, v := range r.versions {
		if v.DOIStatus == models.DOIStatusError {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (r *fakeVersionRepo) SetDiscussionStatus(ctx context.Context, id string, status models.DiscussionStatus, actor string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.versions[id]
	if !ok {
		return &domain.NotFoundError{Message: "version not found"}
	}
	v.DiscussionStatus = status
	return nil
}

func (r *fakeVersionRepo) ListAuthors(ctx context.Context, versionID string) ([]models.VersionAuthor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.VersionAuthor(nil), r.authors[versionID]...), nil
}

func (r *fakeVersionRepo) AddAuthor(ctx context.Context, author *models.VersionAuthor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.authors[author.VersionID] = append(r.authors[author.VersionID], *author)
	return nil
}

type fakeReviewRepo struct {
	mu        sync.Mutex
	processes map[string]*models.ReviewProcess
	reviewers map[string]*models.Reviewer
}

func newFakeReviewRepo() *fakeReviewRepo {
	return &fakeReviewRepo{
		processes: make(map[string]*models.ReviewProcess),
		reviewers: make(map[string]*models.Reviewer),
	}
}

func (r *fakeReviewRepo) CreateProcess(ctx context.Context, p *models.ReviewProcess) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.processes[p.ID] = &cp
	return nil
}

func (r *fakeReviewRepo) GetProcessByVersion(ctx context.Context, versionID string) (*models.ReviewProcess, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.processes {
		if p.VersionID == versionID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, &domain.NotFoundError{Message: "review process not found"}
}

func (r *fakeReviewRepo) CompleteProcess(ctx context.Context, processID, decision string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.processes[processID]
	if !ok {
		return &domain.NotFoundError{Message: "review process not found"}
	}
	now := time.Now().UTC()
	p.Status = models.ReviewCompleted
	p.Decision = decision
	p.CompletedAt = &now
	return nil
}

func (r *fakeReviewRepo) AddReviewer(ctx context.Context, rev *models.Reviewer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.reviewers {
		if existing.ProcessID == rev.ProcessID && existing.UserID == rev.UserID {
			return fmt.Errorf("reviewer already assigned: %w", domain.ErrStateConflict)
		}
	}
	cp := *rev
	r.reviewers[rev.ID] = &cp
	return nil
}

// UpdateReviewerState mirrors the SQL: the timestamp that matches the
// new state is stamped, the others are left alone.
func (r *fakeReviewRepo) UpdateReviewerState(ctx context.Context, reviewerID string, state models.ReviewerState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rev, ok := r.reviewers[reviewerID]
	if !ok {
		return &domain.NotFoundError{Message: "reviewer not found"}
	}
	now := time.Now().UTC()
	rev.State = state
	switch state {
	case models.ReviewerAccepted:
		rev.AcceptedAt = &now
	case models.ReviewerDoneReviewing:
		rev.CompletedAt = &now
	}
	return nil
}

func (r *fakeReviewRepo) ListReviewers(ctx context.Context, processID string) ([]models.Reviewer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Reviewer
	for _, rev := range r.reviewers {
		if rev.ProcessID == processID {
			out = append(out, *rev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InvitedAt.Before(out[j].InvitedAt) })
	return out, nil
}

type fakeCommentRepo struct {
	mu          sync.Mutex
	comments    map[string]*models.Comment
	authors     map[string][]models.CommentAuthor
	refs        map[string][]models.CommentReference
	moderations map[string]*models.CommentModeration
}

func newFakeCommentRepo() *fakeCommentRepo {
	return &fakeCommentRepo{
		comments:    make(map[string]*models.Comment),
		authors:     make(map[string][]models.CommentAuthor),
		refs:        make(map[string][]models.CommentReference),
		moderations: make(map[string]*models.CommentModeration),
	}
}

func (r *fakeCommentRepo) Create(ctx context.Context, c *models.Comment, authors []models.CommentAuthor, refs []models.CommentReference, coi *models.ConflictOfInterest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.comments[c.ID] = &cp
	r.authors[c.ID] = append([]models.CommentAuthor(nil), authors...)
	r.refs[c.ID] = append([]models.CommentReference(nil), refs...)
	return nil
}

func (r *fakeCommentRepo) GetByID(ctx context.Context, id string) (*models.Comment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.comments[id]
	if !ok {
		return nil, &domain.NotFoundError{Message: "comment not found"}
	}
	cp := *c
	return &cp, nil
}

func (r *fakeCommentRepo) ListByVersion(ctx context.Context, versionID string, filter repositories.CommentFilter) ([]models.Comment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Comment
	for _, c := range r.comments {
		if c.VersionID != versionID {
			continue
		}
		if filter.Type != "" && c.Type != filter.Type {
			continue
		}
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		if filter.ParentID != "" && c.ParentID != filter.ParentID {
			continue
		}
		if filter.RootsOnly && c.ParentID != "" {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeCommentRepo) ListReferences(ctx context.Context, commentID string) ([]models.CommentReference, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.CommentReference(nil), r.refs[commentID]...), nil
}

func (r *fakeCommentRepo) ListAuthors(ctx context.Context, commentID string) ([]models.CommentAuthor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.CommentAuthor(nil), r.authors[commentID]...), nil
}

func (r *fakeCommentRepo) LockVersionForCounting(ctx context.Context, versionID string) error {
	return nil
}

// Counts mirrors the SQL snapshot: pending and accepted AI comments
// count; rejected ones do not.
func (r *fakeCommentRepo) Counts(ctx context.Context, versionID, anchorKey, userID string, day time.Time) (repositories.CommentCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counted := map[models.CommentStatus]bool{
		models.CommentSubmitted:   true,
		models.CommentUnderReview: true,
		models.CommentAccepted:    true,
		models.CommentPublished:   true,
	}
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	var counts repositories.CommentCounts
	for _, c := range r.comments {
		if c.VersionID != versionID {
			continue
		}
		if c.AIGenerated && counted[c.Status] {
			counts.AITotal++
			if c.Anchor.Key() == anchorKey {
				counts.AISection++
			}
		}
		if !c.AIGenerated && c.Anchor.Key() == anchorKey &&
			!c.CreatedAt.Before(dayStart) && c.CreatedAt.Before(dayEnd) {
			for _, a := range r.authors[c.ID] {
				if a.Corresponding && a.UserID == userID {
					counts.UserDaySect++
				}
			}
		}
	}
	return counts, nil
}

func (r *fakeCommentRepo) UpdateStatusCAS(ctx context.Context, id string, from, to models.CommentStatus, actor string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.comments[id]
	if !ok {
		return &domain.NotFoundError{Message: "comment not found"}
	}
	if c.Status != from {
		return &domain.StateConflictError{Entity: "comment", ID: id}
	}
	c.Status = to
	c.StatusChangedBy = actor
	c.StatusChangedAt = time.Now().UTC()
	return nil
}

func (r *fakeCommentRepo) SetDOI(ctx context.Context, id, doi string, status models.DOIStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.comments[id]
	if !ok {
		return &domain.NotFoundError{Message: "comment not found"}
	}
	c.DOI = doi
	c.DOIStatus = status
	return nil
}

func (r *fakeCommentRepo) UpdateDOIStatus(ctx context.Context, id string, status models.DOIStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.comments[id]
	if !ok {
		return &domain.NotFoundError{Message: "comment not found"}
	}
	c.DOIStatus = status
	return nil
}

func (r *fakeCommentRepo) ListDOIErrored(ctx context.Context, limit int) ([]models.Comment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Comment
	for _, c := range r.comments {
		if c.DOIStatus == models.DOIStatusError {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *fakeCommentRepo) UpdateBody(ctx context.Context, id, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.comments[id]
	if !ok {
		return &domain.NotFoundError{Message: "comment not found"}
	}
	c.Body = body
	return nil
}

func (r *fakeCommentRepo) MarkRetracted(ctx context.Context, id, actor string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.comments[id]
	if !ok {
		return &domain.NotFoundError{Message: "comment not found"}
	}
	c.Retracted = true
	return nil
}

func (r *fakeCommentRepo) CreateModeration(ctx context.Context, m *models.CommentModeration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *m
	r.moderations[m.CommentID] = &cp
	return nil
}

func (r *fakeCommentRepo) GetModeration(ctx context.Context, commentID string) (*models.CommentModeration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.moderations[commentID]
	if !ok {
		return nil, &domain.NotFoundError{Message: "moderation not found"}
	}
	cp := *m
	return &cp, nil
}

type fakeSuggestionRepo struct {
	mu          sync.Mutex
	suggestions map[string]*models.AICommentSuggestion
	sources     map[string][]models.SuggestionSource
	logs        []models.GenerationLog
}

func newFakeSuggestionRepo() *fakeSuggestionRepo {
	return &fakeSuggestionRepo{
		suggestions: make(map[string]*models.AICommentSuggestion),
		sources:     make(map[string][]models.SuggestionSource),
	}
}

func (r *fakeSuggestionRepo) Create(ctx context.Context, s *models.AICommentSuggestion, sources []models.SuggestionSource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.suggestions[s.ID] = &cp
	r.sources[s.ID] = append([]models.SuggestionSource(nil), sources...)
	return nil
}

func (r *fakeSuggestionRepo) GetByID(ctx context.Context, id string) (*models.AICommentSuggestion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.suggestions[id]
	if !ok {
		return nil, &domain.NotFoundError{Message: "suggestion not found"}
	}
	cp := *s
	return &cp, nil
}

func (r *fakeSuggestionRepo) ListByVersion(ctx context.Context, versionID string, status models.SuggestionStatus) ([]models.AICommentSuggestion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.AICommentSuggestion
	for _, s := range r.suggestions {
		if s.VersionID != versionID {
			continue
		}
		if status != "" && s.Status != status {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeSuggestionRepo) ListSources(ctx context.Context, suggestionID string) ([]models.SuggestionSource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.SuggestionSource(nil), r.sources[suggestionID]...), nil
}

func (r *fakeSuggestionRepo) CountPending(ctx context.Context, versionID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.suggestions {
		if s.VersionID == versionID && s.Status == models.SuggestionPending {
			n++
		}
	}
	return n, nil
}

func (r *fakeSuggestionRepo) CountPendingForSection(ctx context.Context, versionID, anchorKey string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.suggestions {
		if s.VersionID == versionID && s.Status == models.SuggestionPending && s.Anchor.Key() == anchorKey {
			n++
		}
	}
	return n, nil
}

func (r *fakeSuggestionRepo) ResolveCAS(ctx context.Context, id string, to models.SuggestionStatus, reviewer string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.suggestions[id]
	if !ok {
		return &domain.NotFoundError{Message: "suggestion not found"}
	}
	if s.Status != models.SuggestionPending {
		return &domain.StateConflictError{Entity: "suggestion", ID: id}
	}
	now := time.Now().UTC()
	s.Status = to
	s.ReviewedBy = reviewer
	s.ReviewedAt = &now
	return nil
}

func (r *fakeSuggestionRepo) AppendLog(ctx context.Context, log *models.GenerationLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, *log)
	return nil
}

type fakeContextRepo struct {
	docs map[string][]models.ContextDocument
}

func newFakeContextRepo() *fakeContextRepo {
	return &fakeContextRepo{docs: make(map[string][]models.ContextDocument)}
}

func (r *fakeContextRepo) ListForVersion(ctx context.Context, versionID string, minTrust models.TrustLevel) ([]models.ContextDocument, error) {
	return append([]models.ContextDocument(nil), r.docs[versionID]...), nil
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []models.AuditEntry
}

func (r *fakeAuditRepo) Append(ctx context.Context, entry *models.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *fakeAuditRepo) ListByEntity(ctx context.Context, entityKind, entityID string, limit int) ([]models.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.AuditEntry
	for _, e := range r.entries {
		if e.EntityKind == entityKind && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

// fakeRegistrar mimics the real registrar's contract: it always
// assigns the deterministic identifier and records the resulting
// doi_status on the repository, succeeding unless told to fail.
type fakeRegistrar struct {
	mu       sync.Mutex
	versions repositories.VersionRepository
	comments repositories.CommentRepository
	fail     bool

	versionCalls []string
	commentCalls []string
}

func (f *fakeRegistrar) RegisterVersion(ctx context.Context, versionID string) (models.DOIStatus, error) {
	f.mu.Lock()
	f.versionCalls = append(f.versionCalls, versionID)
	fail := f.fail
	f.mu.Unlock()

	status := models.DOIStatusFindable
	if fail {
		status = models.DOIStatusError
	}
	if err := f.versions.SetDOI(ctx, versionID, "10.1234/lsd.version."+versionID, status); err != nil {
		return models.DOIStatusError, err
	}
	if fail {
		return status, fmt.Errorf("registry unavailable")
	}
	return status, nil
}

func (f *fakeRegistrar) RegisterComment(ctx context.Context, commentID string) (models.DOIStatus, error) {
	f.mu.Lock()
	f.commentCalls = append(f.commentCalls, commentID)
	fail := f.fail
	f.mu.Unlock()

	status := models.DOIStatusFindable
	if fail {
		status = models.DOIStatusError
	}
	if err := f.comments.SetDOI(ctx, commentID, "10.1234/lsd.comment."+commentID, status); err != nil {
		return models.DOIStatusError, err
	}
	if fail {
		return status, fmt.Errorf("registry unavailable")
	}
	return status, nil
}

func (f *fakeRegistrar) MetaDOI(publicationID string) string {
	return "10.1234/lsd.pub." + publicationID
}

// fakeProvider returns a scripted completion.
type fakeProvider struct {
	text string
	err  error

	lastReq *services.CompletionRequest
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Complete(ctx context.Context, req *services.CompletionRequest) (*services.CompletionResult, error) {
	p.lastReq = req
	if p.err != nil {
		return nil, p.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &services.CompletionResult{Text: p.text, TokenCount: 42}, nil
}
