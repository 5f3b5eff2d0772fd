package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"livingdoc/internal/repository/postgres"
)

// runSchema creates every table the service needs. Idempotent; safe
// to run on every deploy.
func runSchema(ctx context.Context, pool *pgxpool.Pool, tables *postgres.TableNames, tablePrefix string) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS ` + tables.Publications + ` (
			id UUID PRIMARY KEY,
			title TEXT NOT NULL,
			short_title TEXT,
			meta_doi TEXT UNIQUE,
			created_by TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS ` + tables.Versions + ` (
			id UUID PRIMARY KEY,
			publication_id UUID NOT NULL REFERENCES ` + tables.Publications + `(id),
			version_number INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'draft',
			doi TEXT UNIQUE,
			doi_status TEXT,
			content TEXT NOT NULL,
			abstract TEXT,
			discussion_status TEXT NOT NULL DEFAULT 'open',
			revised_from_id UUID REFERENCES ` + tables.Versions + `(id),
			status_changed_by TEXT,
			status_changed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (publication_id, version_number)
		)`,

		`CREATE TABLE IF NOT EXISTS ` + tables.VersionAuthors + ` (
			id UUID PRIMARY KEY,
			version_id UUID NOT NULL REFERENCES ` + tables.Versions + `(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			institution TEXT,
			email TEXT,
			orcid TEXT,
			user_id TEXT,
			author_order INTEGER NOT NULL DEFAULT 1,
			corresponding BOOLEAN NOT NULL DEFAULT false
		)`,

		`CREATE TABLE IF NOT EXISTS ` + tables.ReviewProcesses + ` (
			id UUID PRIMARY KEY,
			version_id UUID NOT NULL UNIQUE REFERENCES ` + tables.Versions + `(id) ON DELETE CASCADE,
			handling_editor TEXT,
			status TEXT NOT NULL DEFAULT 'pending',
			decision TEXT,
			started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			completed_at TIMESTAMPTZ
		)`,

		`CREATE TABLE IF NOT EXISTS ` + tables.Reviewers + ` (
			id UUID PRIMARY KEY,
			process_id UUID NOT NULL REFERENCES ` + tables.ReviewProcesses + `(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL,
			state TEXT NOT NULL DEFAULT 'invited',
			invited_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			accepted_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ,
			UNIQUE (process_id, user_id)
		)`,

		`CREATE TABLE IF NOT EXISTS ` + tables.Comments + ` (
			id UUID PRIMARY KEY,
			version_id UUID NOT NULL REFERENCES ` + tables.Versions + `(id),
			parent_id UUID REFERENCES ` + tables.Comments + `(id),
			comment_type TEXT NOT NULL,
			body TEXT NOT NULL,
			section_ref TEXT,
			line_start INTEGER NOT NULL DEFAULT 0,
			line_end INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'submitted',
			doi TEXT UNIQUE,
			doi_status TEXT,
			ai_generated BOOLEAN NOT NULL DEFAULT false,
			suggestion_id UUID,
			retracted BOOLEAN NOT NULL DEFAULT false,
			status_changed_by TEXT,
			status_changed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS ` + tables.CommentAuthors + ` (
			id UUID PRIMARY KEY,
			comment_id UUID NOT NULL REFERENCES ` + tables.Comments + `(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL,
			corresponding BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (comment_id, user_id)
		)`,

		`CREATE TABLE IF NOT EXISTS ` + tables.CommentReferences + ` (
			id UUID PRIMARY KEY,
			comment_id UUID NOT NULL REFERENCES ` + tables.Comments + `(id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			authors TEXT,
			doi TEXT,
			url TEXT,
			citation_text TEXT,
			trust_level TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS ` + tables.CommentConflicts + ` (
			comment_id UUID PRIMARY KEY REFERENCES ` + tables.Comments + `(id) ON DELETE CASCADE,
			statement TEXT NOT NULL,
			has_conflict BOOLEAN NOT NULL DEFAULT false
		)`,

		`CREATE TABLE IF NOT EXISTS ` + tables.CommentModerations + ` (
			id UUID PRIMARY KEY,
			comment_id UUID NOT NULL REFERENCES ` + tables.Comments + `(id) ON DELETE CASCADE,
			moderator TEXT NOT NULL,
			decision TEXT NOT NULL,
			reason TEXT,
			decided_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS ` + tables.Suggestions + ` (
			id UUID PRIMARY KEY,
			version_id UUID NOT NULL REFERENCES ` + tables.Versions + `(id),
			body TEXT NOT NULL,
			section_ref TEXT,
			line_start INTEGER NOT NULL DEFAULT 0,
			line_end INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'pending',
			model TEXT NOT NULL,
			prompt_name TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			reviewed_by TEXT,
			reviewed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS ` + tables.SuggestionSources + ` (
			id UUID PRIMARY KEY,
			suggestion_id UUID NOT NULL REFERENCES ` + tables.Suggestions + `(id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			citation_text TEXT,
			doi TEXT,
			trust_level TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS ` + tables.ContextSources + ` (
			id UUID PRIMARY KEY,
			version_id UUID NOT NULL REFERENCES ` + tables.Versions + `(id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			excerpt TEXT NOT NULL,
			doi TEXT,
			trust_level TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS ` + tables.GenerationLogs + ` (
			id UUID PRIMARY KEY,
			version_id UUID NOT NULL,
			requested_by TEXT NOT NULL,
			model TEXT NOT NULL,
			prompt_name TEXT NOT NULL,
			prompt TEXT NOT NULL,
			output TEXT,
			context_ids TEXT[],
			duration_ms BIGINT NOT NULL DEFAULT 0,
			token_count INTEGER NOT NULL DEFAULT 0,
			error TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS ` + tables.AuditLog + ` (
			id UUID PRIMARY KEY,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			entity_kind TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			from_status TEXT,
			to_status TEXT,
			detail JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_` + tablePrefix + `versions_publication ON ` + tables.Versions + `(publication_id)`,
		`CREATE INDEX IF NOT EXISTS idx_` + tablePrefix + `versions_doi_status ON ` + tables.Versions + `(doi_status) WHERE doi_status = 'error'`,
		`CREATE INDEX IF NOT EXISTS idx_` + tablePrefix + `comments_version ON ` + tables.Comments + `(version_id)`,
		`CREATE INDEX IF NOT EXISTS idx_` + tablePrefix + `comments_parent ON ` + tables.Comments + `(parent_id)`,
		`CREATE INDEX IF NOT EXISTS idx_` + tablePrefix + `comments_doi_status ON ` + tables.Comments + `(doi_status) WHERE doi_status = 'error'`,
		`CREATE INDEX IF NOT EXISTS idx_` + tablePrefix + `suggestions_version_status ON ` + tables.Suggestions + `(version_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_` + tablePrefix + `audit_entity ON ` + tables.AuditLog + `(entity_kind, entity_id, created_at DESC)`,
	}

	for _, stmt := range indexes {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}

	return nil
}
