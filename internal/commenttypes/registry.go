// Package commenttypes loads the fixed comment-type vocabulary from
// an embedded YAML file. The vocabulary is closed: SC, rSC, ER, AD,
// NP, with ER the only type that publishes without a DOI.
package commenttypes

import (
	"embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"livingdoc/internal/domain/models"
)

//go:embed config/*.yaml
var configFiles embed.FS

// Registry holds the comment type vocabulary
type Registry struct {
	types map[models.CommentTypeCode]models.CommentType
	order []models.CommentTypeCode
	mu    sync.RWMutex
}

type typesFile struct {
	Types []models.CommentType `yaml:"types"`
}

// NewRegistry creates a registry from the embedded YAML file
func NewRegistry() (*Registry, error) {
	data, err := configFiles.ReadFile("config/types.yaml")
	if err != nil {
		return nil, fmt.Errorf("read comment types config: %w", err)
	}

	var file typesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("unmarshal comment types config: %w", err)
	}
	if len(file.Types) == 0 {
		return nil, fmt.Errorf("comment types config is empty")
	}

	r := &Registry{types: make(map[models.CommentTypeCode]models.CommentType, len(file.Types))}
	for _, t := range file.Types {
		if _, dup := r.types[t.Code]; dup {
			return nil, fmt.Errorf("duplicate comment type %q", t.Code)
		}
		r.types[t.Code] = t
		r.order = append(r.order, t.Code)
	}

	return r, nil
}

// Get returns one type, or false for a code outside the vocabulary
func (r *Registry) Get(code models.CommentTypeCode) (models.CommentType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[code]
	return t, ok
}

// RequiresDOI reports whether an accepted comment of this type gets
// an identifier. Unknown codes never do.
func (r *Registry) RequiresDOI(code models.CommentTypeCode) bool {
	t, ok := r.Get(code)
	return ok && t.RequiresDOI
}

// All returns the vocabulary in file order
func (r *Registry) All() []models.CommentType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.CommentType, 0, len(r.order))
	for _, code := range r.order {
		out = append(out, r.types[code])
	}
	return out
}
