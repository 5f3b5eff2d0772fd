package doi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"

	"livingdoc/internal/audit"
	"livingdoc/internal/config"
	"livingdoc/internal/domain/models"
	"livingdoc/internal/domain/repositories"
	"livingdoc/internal/domain/services"
)

// Registrar drives an identifier from draft to findable: draft,
// metadata, landing-page check, publish, resolution check. Every step
// failure parks the item in doi_status=error for the background sweep
// to retry; the content lifecycle is never blocked on the registry.
type Registrar struct {
	svc      services.DOIService
	pubs     repositories.PublicationRepository
	versions repositories.VersionRepository
	comments repositories.CommentRepository
	audit    *audit.Recorder
	cfg      *config.Config
	logger   *slog.Logger
	cron     *cron.Cron
}

// NewRegistrar creates a new registrar
func NewRegistrar(
	svc services.DOIService,
	pubs repositories.PublicationRepository,
	versions repositories.VersionRepository,
	comments repositories.CommentRepository,
	recorder *audit.Recorder,
	cfg *config.Config,
	logger *slog.Logger,
) *Registrar {
	return &Registrar{
		svc:      svc,
		pubs:     pubs,
		versions: versions,
		comments: comments,
		audit:    recorder,
		cfg:      cfg,
		logger:   logger,
	}
}

// VersionDOI builds the deterministic identifier for a version, so
// repeated publish attempts always mint the same string.
func (r *Registrar) VersionDOI(versionID string) string {
	return fmt.Sprintf("%s/lsd.version.%s", r.cfg.DOIPrefix, versionID)
}

// CommentDOI builds the deterministic identifier for a comment.
func (r *Registrar) CommentDOI(commentID string) string {
	return fmt.Sprintf("%s/lsd.comment.%s", r.cfg.DOIPrefix, commentID)
}

// MetaDOI builds the grouping identifier for a publication.
func (r *Registrar) MetaDOI(publicationID string) string {
	return fmt.Sprintf("%s/lsd.pub.%s", r.cfg.DOIPrefix, publicationID)
}

// RegisterVersion runs the full registration for a version and
// records the resulting doi_status. The returned status is findable
// on success and error on any registry-side failure; the error, if
// any, is informational for the caller's log line.
func (r *Registrar) RegisterVersion(ctx context.Context, versionID string) (models.DOIStatus, error) {
	v, err := r.versions.GetByID(ctx, versionID)
	if err != nil {
		return models.DOIStatusError, err
	}

	doi := v.DOI
	if doi == "" {
		doi = r.VersionDOI(v.ID)
		if err := r.versions.SetDOI(ctx, v.ID, doi, models.DOIStatusDraft); err != nil {
			return models.DOIStatusError, err
		}
	}

	meta, err := r.versionMetadata(ctx, v)
	if err != nil {
		return models.DOIStatusError, err
	}

	r.audit.Record(ctx, models.AuditEntry{
		Actor: "system", Action: models.ActionDOIRequested,
		EntityKind: "version", EntityID: v.ID,
		Detail: map[string]any{"doi": doi},
	})

	status := r.register(ctx, doi, meta)
	if err := r.versions.UpdateDOIStatus(ctx, v.ID, status); err != nil {
		return models.DOIStatusError, err
	}

	if status == models.DOIStatusFindable {
		r.audit.Record(ctx, models.AuditEntry{
			Actor: "system", Action: models.ActionDOIFindable,
			EntityKind: "version", EntityID: v.ID,
			Detail: map[string]any{"doi": doi},
		})
		return status, nil
	}

	r.audit.Record(ctx, models.AuditEntry{
		Actor: "system", Action: models.ActionDOIFailed,
		EntityKind: "version", EntityID: v.ID,
		Detail: map[string]any{"doi": doi},
	})
	return status, fmt.Errorf("register doi %s: registry unavailable", doi)
}

// RegisterComment runs the full registration for an accepted comment.
func (r *Registrar) RegisterComment(ctx context.Context, commentID string) (models.DOIStatus, error) {
	c, err := r.comments.GetByID(ctx, commentID)
	if err != nil {
		return models.DOIStatusError, err
	}

	doi := c.DOI
	if doi == "" {
		doi = r.CommentDOI(c.ID)
		if err := r.comments.SetDOI(ctx, c.ID, doi, models.DOIStatusDraft); err != nil {
			return models.DOIStatusError, err
		}
	}

	meta, err := r.commentMetadata(ctx, c)
	if err != nil {
		return models.DOIStatusError, err
	}

	r.audit.Record(ctx, models.AuditEntry{
		Actor: "system", Action: models.ActionDOIRequested,
		EntityKind: "comment", EntityID: c.ID,
		Detail: map[string]any{"doi": doi},
	})

	status := r.register(ctx, doi, meta)
	if err := r.comments.UpdateDOIStatus(ctx, c.ID, status); err != nil {
		return models.DOIStatusError, err
	}

	action := models.ActionDOIFindable
	if status != models.DOIStatusFindable {
		action = models.ActionDOIFailed
	}
	r.audit.Record(ctx, models.AuditEntry{
		Actor: "system", Action: action,
		EntityKind: "comment", EntityID: c.ID,
		Detail: map[string]any{"doi": doi},
	})

	if status != models.DOIStatusFindable {
		return status, fmt.Errorf("register doi %s: registry unavailable", doi)
	}
	return status, nil
}

// register runs the five-step flow for one identifier. Each step is
// already retried inside the client; a step that still fails parks
// the identifier in error.
func (r *Registrar) register(ctx context.Context, doi string, meta services.DOIMetadata) models.DOIStatus {
	ctx = WithCorrelationID(ctx, CorrelationID(ctx))

	if _, err := r.svc.CreateDraft(ctx, doi); err != nil {
		r.logger.Error("doi draft failed", "doi", doi, "error", err)
		return models.DOIStatusError
	}

	if err := r.svc.UpdateMetadata(ctx, doi, meta); err != nil {
		r.logger.Error("doi metadata failed", "doi", doi, "error", err)
		return models.DOIStatusError
	}

	if !r.landingResponds(ctx, doi) {
		r.logger.Error("doi landing page not reachable", "doi", doi, "url", meta.URL)
		return models.DOIStatusError
	}

	if err := r.svc.MakeFindable(ctx, doi); err != nil {
		r.logger.Error("doi publish failed", "doi", doi, "error", err)
		return models.DOIStatusError
	}

	if !r.landingResponds(ctx, doi) {
		r.logger.Error("doi does not resolve after publish", "doi", doi)
		return models.DOIStatusError
	}

	return models.DOIStatusFindable
}

// landingResponds checks resolution with bounded retries. Registries
// propagate a fresh identifier with some lag, so one failed probe is
// not final.
func (r *Registrar) landingResponds(ctx context.Context, doi string) bool {
	backoff := config.ExternalCallBackoff
	for attempt := 0; attempt < config.ExternalCallRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return false
			}
			backoff *= 2
		}

		status, err := r.svc.Resolve(ctx, doi)
		if err == nil && status < http.StatusBadRequest {
			return true
		}
	}
	return false
}

func (r *Registrar) versionMetadata(ctx context.Context, v *models.DocumentVersion) (services.DOIMetadata, error) {
	pub, err := r.pubs.GetByID(ctx, v.PublicationID)
	if err != nil {
		return services.DOIMetadata{}, err
	}

	authors, err := r.versions.ListAuthors(ctx, v.ID)
	if err != nil {
		return services.DOIMetadata{}, err
	}
	creators := make([]string, 0, len(authors))
	for _, a := range authors {
		creators = append(creators, a.Name)
	}

	return services.DOIMetadata{
		Title:        fmt.Sprintf("%s (version %d)", pub.Title, v.VersionNumber),
		Creators:     creators,
		Publisher:    "Living Science Documents",
		Year:         time.Now().UTC().Year(),
		ResourceType: "Text",
		URL:          fmt.Sprintf("%s/publications/%s/versions/%d", r.cfg.LandingPrefix, pub.ID, v.VersionNumber),
	}, nil
}

func (r *Registrar) commentMetadata(ctx context.Context, c *models.Comment) (services.DOIMetadata, error) {
	v, err := r.versions.GetByID(ctx, c.VersionID)
	if err != nil {
		return services.DOIMetadata{}, err
	}
	pub, err := r.pubs.GetByID(ctx, v.PublicationID)
	if err != nil {
		return services.DOIMetadata{}, err
	}

	authors, err := r.comments.ListAuthors(ctx, c.ID)
	if err != nil {
		return services.DOIMetadata{}, err
	}
	creators := make([]string, 0, len(authors))
	for _, a := range authors {
		creators = append(creators, a.UserID)
	}

	return services.DOIMetadata{
		Title:        fmt.Sprintf("Comment [%s] on %s (version %d)", c.Type, pub.Title, v.VersionNumber),
		Creators:     creators,
		Publisher:    "Living Science Documents",
		Year:         time.Now().UTC().Year(),
		ResourceType: "Text",
		URL:          fmt.Sprintf("%s/comments/%s", r.cfg.LandingPrefix, c.ID),
	}, nil
}

// Sweep retries every item parked in doi_status=error. Called on a
// schedule; safe to run concurrently with publishes because every
// registry call is idempotent by identifier.
func (r *Registrar) Sweep(ctx context.Context) {
	const batch = 20

	vs, err := r.versions.ListDOIErrored(ctx, batch)
	if err != nil {
		r.logger.Error("doi sweep: list versions failed", "error", err)
	}
	for _, v := range vs {
		if status, err := r.RegisterVersion(ctx, v.ID); err != nil {
			r.logger.Warn("doi sweep: version retry failed",
				"version_id", v.ID, "doi_status", status, "error", err)
		} else {
			r.logger.Info("doi sweep: version recovered", "version_id", v.ID, "doi", v.DOI)
		}
	}

	cs, err := r.comments.ListDOIErrored(ctx, batch)
	if err != nil {
		r.logger.Error("doi sweep: list comments failed", "error", err)
	}
	for _, c := range cs {
		if status, err := r.RegisterComment(ctx, c.ID); err != nil {
			r.logger.Warn("doi sweep: comment retry failed",
				"comment_id", c.ID, "doi_status", status, "error", err)
		} else {
			r.logger.Info("doi sweep: comment recovered", "comment_id", c.ID, "doi", c.DOI)
		}
	}
}

// Start schedules the background retry sweep.
func (r *Registrar) Start() error {
	r.cron = cron.New()

	spec := fmt.Sprintf("@every %dm", r.cfg.DOIRetrySweepMinutes)
	if _, err := r.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		r.Sweep(ctx)
	}); err != nil {
		return fmt.Errorf("schedule doi sweep: %w", err)
	}

	r.cron.Start()
	r.logger.Info("doi retry sweep scheduled", "interval_minutes", r.cfg.DOIRetrySweepMinutes)
	return nil
}

// Stop halts the sweep and waits for a running iteration.
func (r *Registrar) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
}
