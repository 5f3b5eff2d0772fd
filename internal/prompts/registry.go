// Package prompts loads the suggestion prompt templates from an
// embedded YAML file. Templates are fixed at build time; there is no
// open-ended prompt surface.
package prompts

import (
	"embed"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed config/*.yaml
var configFiles embed.FS

// Template is one named prompt template.
type Template struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	System      string `yaml:"system"`
	Template    string `yaml:"template"`
}

// Render fills the placeholders with the document, the numbered
// source list, and the suggestion cap.
func (t Template) Render(document string, sources []string, max int) string {
	var list strings.Builder
	for i, s := range sources {
		fmt.Fprintf(&list, "[%d] %s\n", i+1, s)
	}

	out := strings.ReplaceAll(t.Template, "{{document}}", document)
	out = strings.ReplaceAll(out, "{{sources}}", list.String())
	out = strings.ReplaceAll(out, "{{max}}", strconv.Itoa(max))
	return out
}

// Registry holds the prompt templates
type Registry struct {
	templates map[string]Template
	mu        sync.RWMutex
}

type templatesFile struct {
	Templates []Template `yaml:"templates"`
}

// NewRegistry creates a registry from the embedded YAML file
func NewRegistry() (*Registry, error) {
	data, err := configFiles.ReadFile("config/templates.yaml")
	if err != nil {
		return nil, fmt.Errorf("read prompt templates config: %w", err)
	}

	var file templatesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("unmarshal prompt templates config: %w", err)
	}
	if len(file.Templates) == 0 {
		return nil, fmt.Errorf("prompt templates config is empty")
	}

	r := &Registry{templates: make(map[string]Template, len(file.Templates))}
	for _, t := range file.Templates {
		if _, dup := r.templates[t.Name]; dup {
			return nil, fmt.Errorf("duplicate prompt template %q", t.Name)
		}
		r.templates[t.Name] = t
	}

	return r, nil
}

// Get returns one template by name
func (r *Registry) Get(name string) (Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[name]
	return t, ok
}

// Names lists the available template names
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	return names
}
