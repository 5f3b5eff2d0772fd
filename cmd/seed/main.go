package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"livingdoc/internal/config"
	"livingdoc/internal/repository/postgres"
)

func main() {
	dropTables := flag.Bool("drop-tables", false, "Drop all tables before seeding (fresh start)")
	schemaOnly := flag.Bool("schema-only", false, "Only set up schema, don't seed sample data")
	flag.Parse()

	_ = godotenv.Load()

	cfg := config.Load()

	// SAFETY: Prevent destructive operations in production
	if cfg.Environment == "prod" && *dropTables {
		log.Fatalf("BLOCKED: cannot run --drop-tables in production environment")
	}

	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	tables := postgres.NewTableNames(cfg.TablePrefix)

	if *dropTables {
		log.Println("Dropping all tables...")
		if err := dropAllTables(ctx, pool, tables); err != nil {
			log.Fatalf("Failed to drop tables: %v", err)
		}
	}

	log.Printf("Ensuring schema (environment: %s, prefix: %s)", cfg.Environment, cfg.TablePrefix)
	if err := runSchema(ctx, pool, tables, cfg.TablePrefix); err != nil {
		log.Fatalf("Failed to run schema: %v", err)
	}
	log.Println("Schema ready")

	if *schemaOnly {
		return
	}

	if err := seedSampleData(ctx, pool, tables, cfg); err != nil {
		log.Fatalf("Failed to seed sample data: %v", err)
	}
	log.Println("Sample data seeded")
}

// dropAllTables drops all tables in reverse order (to respect foreign keys)
func dropAllTables(ctx context.Context, pool *pgxpool.Pool, tables *postgres.TableNames) error {
	names := []string{
		tables.AuditLog,
		tables.GenerationLogs,
		tables.ContextSources,
		tables.SuggestionSources,
		tables.Suggestions,
		tables.CommentModerations,
		tables.CommentConflicts,
		tables.CommentReferences,
		tables.CommentAuthors,
		tables.Comments,
		tables.Reviewers,
		tables.ReviewProcesses,
		tables.VersionAuthors,
		tables.Versions,
		tables.Publications,
	}

	for _, table := range names {
		if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE"); err != nil {
			return err
		}
		log.Printf("  dropped %s", table)
	}

	return nil
}

// seedSampleData creates one publication with a published version and
// a small retrieval corpus, enough to exercise every endpoint locally.
func seedSampleData(ctx context.Context, pool *pgxpool.Pool, tables *postgres.TableNames, cfg *config.Config) error {
	now := time.Now().UTC()
	pubID := uuid.NewString()
	versionID := uuid.NewString()
	seedUser := uuid.NewString()

	_, err := pool.Exec(ctx, `
		INSERT INTO `+tables.Publications+` (id, title, short_title, meta_doi, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, pubID, "Thermal Tolerance Limits in Alpine Pollinators", "alpine-pollinators",
		cfg.DOIPrefix+"/lsd.pub."+pubID, seedUser, now)
	if err != nil {
		return err
	}

	content := "# Introduction\n\nAlpine pollinators operate near their thermal limits.\n\n" +
		"# Methods\n\nWe measured critical thermal maxima across 14 bumblebee populations.\n\n" +
		"# Results\n\nPopulations above 2000m showed a 1.8C lower CTmax.\n"

	_, err = pool.Exec(ctx, `
		INSERT INTO `+tables.Versions+` (id, publication_id, version_number, status, doi, doi_status,
			content, abstract, discussion_status, status_changed_by, status_changed_at, created_at)
		VALUES ($1, $2, 1, 'published', $3, 'findable', $4, $5, 'open', $6, $7, $7)
	`, versionID, pubID, cfg.DOIPrefix+"/lsd.version."+versionID, content,
		"Thermal tolerance narrows with altitude in alpine bumblebees.", seedUser, now)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `
		INSERT INTO `+tables.VersionAuthors+` (id, version_id, name, institution, author_order, corresponding)
		VALUES ($1, $2, 'R. Alvarez', 'Institute for Alpine Ecology', 1, true)
	`, uuid.NewString(), versionID)
	if err != nil {
		return err
	}

	sources := []struct {
		title, excerpt, doi, trust string
	}{
		{"Critical thermal limits in Bombus", "CTmax declines with elevation across Bombus species.", "10.5555/ctmax-bombus", "high"},
		{"Pollinator decline meta-analysis", "Warming explains 40% of observed range contraction.", "10.5555/pollinator-meta", "medium"},
	}
	for _, s := range sources {
		_, err = pool.Exec(ctx, `
			INSERT INTO `+tables.ContextSources+` (id, version_id, title, excerpt, doi, trust_level, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, uuid.NewString(), versionID, s.title, s.excerpt, s.doi, s.trust, now)
		if err != nil {
			return err
		}
	}

	log.Printf("  publication %s, version %s", pubID, versionID)
	return nil
}
