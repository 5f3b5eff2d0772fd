package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"livingdoc/internal/audit"
	"livingdoc/internal/auth"
	"livingdoc/internal/commenttypes"
	"livingdoc/internal/config"
	"livingdoc/internal/domain/services"
	"livingdoc/internal/handler"
	"livingdoc/internal/metrics"
	"livingdoc/internal/middleware"
	"livingdoc/internal/prompts"
	"livingdoc/internal/repository/postgres"
	"livingdoc/internal/service"
	servicedoi "livingdoc/internal/service/doi"
	servicellm "livingdoc/internal/service/llm"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	cfg := config.Load()

	logLevel := slog.LevelInfo
	if cfg.Environment == "dev" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"table_prefix", cfg.TablePrefix,
	)

	verifier, err := auth.NewJWKSVerifier(cfg.JWKSURL, logger)
	if err != nil {
		log.Fatalf("Failed to create identity verifier: %v", err)
	}
	defer verifier.Close()

	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to create connection pool: %v", err)
	}
	defer pool.Close()

	tables := postgres.NewTableNames(cfg.TablePrefix)
	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: tables,
		Logger: logger,
	}

	pubRepo := postgres.NewPublicationRepository(repoConfig)
	versionRepo := postgres.NewVersionRepository(repoConfig)
	reviewRepo := postgres.NewReviewRepository(repoConfig)
	commentRepo := postgres.NewCommentRepository(repoConfig)
	suggestionRepo := postgres.NewSuggestionRepository(repoConfig)
	contextRepo := postgres.NewContextSourceRepository(repoConfig)
	auditRepo := postgres.NewAuditRepository(repoConfig)
	txManager := postgres.NewTransactionManager(pool, logger)

	typeRegistry, err := commenttypes.NewRegistry()
	if err != nil {
		log.Fatalf("Failed to load comment type vocabulary: %v", err)
	}
	promptRegistry, err := prompts.NewRegistry()
	if err != nil {
		log.Fatalf("Failed to load prompt templates: %v", err)
	}

	metrics.Register()

	recorder := audit.NewRecorder(auditRepo, logger)

	doiClient := servicedoi.NewClient(cfg, logger)
	registrar := servicedoi.NewRegistrar(doiClient, pubRepo, versionRepo, commentRepo, recorder, cfg, logger)
	if err := registrar.Start(); err != nil {
		log.Fatalf("Failed to start DOI retry sweep: %v", err)
	}
	defer registrar.Stop()

	var provider services.LLMProvider
	model := cfg.DefaultModel
	if cfg.AnthropicAPIKey != "" {
		provider, err = servicellm.NewAnthropicProvider(cfg.AnthropicAPIKey)
		if err != nil {
			log.Fatalf("Failed to create model provider: %v", err)
		}
	} else {
		provider = servicellm.NewMockProvider()
		model = "mock-reviewer"
		logger.Warn("no model API key configured, using mock provider")
	}

	versionManager := service.NewVersionManager(
		pubRepo, versionRepo, reviewRepo, commentRepo, txManager, registrar, recorder, logger)
	commentWorkflow := service.NewCommentWorkflow(
		versionRepo, commentRepo, typeRegistry, txManager, registrar, recorder, logger)
	suggestionPipeline := service.NewSuggestionPipeline(
		versionRepo, suggestionRepo, contextRepo, commentRepo, commentWorkflow,
		provider, promptRegistry, txManager, recorder, model, logger)

	pubHandler := handler.NewPublicationHandler(versionManager, logger)
	commentHandler := handler.NewCommentHandler(commentWorkflow, typeRegistry, logger)
	suggestionHandler := handler.NewSuggestionHandler(suggestionPipeline, logger)
	exportHandler := handler.NewExportHandler(pubRepo, versionRepo, commentRepo, logger)
	auditHandler := handler.NewAuditHandler(recorder, logger)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", pubHandler.HealthCheck)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Publications and versions
	mux.HandleFunc("POST /api/publications", pubHandler.CreatePublication)
	mux.HandleFunc("GET /api/publications", pubHandler.ListPublications)
	mux.HandleFunc("GET /api/publications/{id}", pubHandler.GetPublication)
	mux.HandleFunc("POST /api/publications/{id}/versions", pubHandler.CreateDraft)
	mux.HandleFunc("GET /api/publications/{id}/versions", pubHandler.ListVersions)
	mux.HandleFunc("POST /api/publications/{id}/rollback", pubHandler.Rollback)

	mux.HandleFunc("GET /api/versions/{id}", pubHandler.GetVersion)
	mux.HandleFunc("POST /api/versions/{id}/submit", pubHandler.SubmitForReview)
	mux.HandleFunc("POST /api/versions/{id}/reviewers", pubHandler.InviteReviewer)
	mux.HandleFunc("GET /api/versions/{id}/reviewers", pubHandler.ListReviewers)
	mux.HandleFunc("POST /api/versions/{id}/reviewers/respond", pubHandler.RespondToInvitation)
	mux.HandleFunc("POST /api/versions/{id}/review", pubHandler.CompleteReview)
	mux.HandleFunc("POST /api/versions/{id}/publish", pubHandler.Publish)
	mux.HandleFunc("POST /api/versions/{id}/discussion", pubHandler.SetDiscussionStatus)
	mux.HandleFunc("GET /api/versions/{id}/export", exportHandler.Export)

	// Comments
	mux.HandleFunc("GET /api/comment-types", commentHandler.ListCommentTypes)
	mux.HandleFunc("POST /api/versions/{id}/comments", commentHandler.SubmitComment)
	mux.HandleFunc("GET /api/versions/{id}/comments", commentHandler.ListComments)
	mux.HandleFunc("GET /api/comments/{id}", commentHandler.GetComment)
	mux.HandleFunc("POST /api/comments/{id}/moderate", commentHandler.ModerateComment)
	mux.HandleFunc("POST /api/comments/{id}/resubmit", commentHandler.ResubmitComment)
	mux.HandleFunc("POST /api/comments/{id}/retract", commentHandler.RetractComment)

	// AI suggestions
	mux.HandleFunc("POST /api/versions/{id}/suggestions", suggestionHandler.Generate)
	mux.HandleFunc("GET /api/versions/{id}/suggestions", suggestionHandler.ListSuggestions)
	mux.HandleFunc("POST /api/suggestions/{id}/approve", suggestionHandler.Approve)
	mux.HandleFunc("POST /api/suggestions/{id}/reject", suggestionHandler.Reject)

	// Audit trails
	mux.HandleFunc("GET /api/audit/{kind}/{id}", auditHandler.Trail)

	// Apply middleware in reverse order (they wrap each other)
	// Order: CORS -> Recovery -> Auth -> Routes
	var root http.Handler = mux
	root = middleware.Auth(verifier, logger, "/health", "/metrics")(root)
	root = middleware.Recovery(logger)(root)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
	})
	root = corsHandler.Handler(root)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("listening", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start server: %v", err)
	}
}
