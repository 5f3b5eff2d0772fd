package postgres

import "fmt"

// TableNames holds dynamically prefixed table names
type TableNames struct {
	Publications       string
	Versions           string
	VersionAuthors     string
	ReviewProcesses    string
	Reviewers          string
	Comments           string
	CommentAuthors     string
	CommentReferences  string
	CommentConflicts   string
	CommentModerations string
	Suggestions        string
	SuggestionSources  string
	ContextSources     string
	GenerationLogs     string
	AuditLog           string
}

// NewTableNames creates table names with the given prefix
func NewTableNames(prefix string) *TableNames {
	return &TableNames{
		Publications:       fmt.Sprintf("%spublications", prefix),
		Versions:           fmt.Sprintf("%sdocument_versions", prefix),
		VersionAuthors:     fmt.Sprintf("%sversion_authors", prefix),
		ReviewProcesses:    fmt.Sprintf("%sreview_processes", prefix),
		Reviewers:          fmt.Sprintf("%sreviewers", prefix),
		Comments:           fmt.Sprintf("%scomments", prefix),
		CommentAuthors:     fmt.Sprintf("%scomment_authors", prefix),
		CommentReferences:  fmt.Sprintf("%scomment_references", prefix),
		CommentConflicts:   fmt.Sprintf("%scomment_conflicts", prefix),
		CommentModerations: fmt.Sprintf("%scomment_moderations", prefix),
		Suggestions:        fmt.Sprintf("%sai_suggestions", prefix),
		SuggestionSources:  fmt.Sprintf("%sai_suggestion_sources", prefix),
		ContextSources:     fmt.Sprintf("%scontext_sources", prefix),
		GenerationLogs:     fmt.Sprintf("%sgeneration_logs", prefix),
		AuditLog:           fmt.Sprintf("%saudit_log", prefix),
	}
}
