package grammar

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/bash"
	"github.com/smacker/go-tree-sitter/css"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/html"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
	"github.com/smacker/go-tree-sitter/yaml"
)

// Grammar binds a tree-sitter language to its highlight query.
type Grammar struct {
	// ID doubles as the language identifier sent to analyzers.
	ID         string
	Extensions []string
	Aliases    []string

	language   func() *sitter.Language
	highlights string
}

// Language returns the tree-sitter language.
func (g *Grammar) Language() *sitter.Language { return g.language() }

// HighlightQuery compiles the highlight query. Every caller owns the result
// and must Close it.
func (g *Grammar) HighlightQuery() (*sitter.Query, error) {
	q, err := sitter.NewQuery([]byte(g.highlights), g.language())
	if err != nil {
		return nil, fmt.Errorf("compile %s highlights: %w", g.ID, err)
	}
	return q, nil
}

func builtins() []*Grammar {
	return []*Grammar{
		{ID: "go", Aliases: []string{"golang"}, Extensions: []string{"go"},
			language: golang.GetLanguage, highlights: goHighlights},
		{ID: "javascript", Aliases: []string{"js"}, Extensions: []string{"js", "mjs", "cjs", "jsx"},
			language: javascript.GetLanguage, highlights: javascriptHighlights + javascriptKeywords},
		{ID: "typescript", Aliases: []string{"ts"}, Extensions: []string{"ts", "mts", "cts"},
			language: typescript.GetLanguage, highlights: typescriptHighlights},
		{ID: "typescriptreact", Aliases: []string{"tsx"}, Extensions: []string{"tsx"},
			language: tsx.GetLanguage, highlights: typescriptHighlights},
		{ID: "python", Aliases: []string{"py"}, Extensions: []string{"py", "pyw"},
			language: python.GetLanguage, highlights: pythonHighlights},
		{ID: "rust", Aliases: []string{"rs"}, Extensions: []string{"rs"},
			language: rust.GetLanguage, highlights: rustHighlights},
		{ID: "yaml", Aliases: []string{"yml"}, Extensions: []string{"yaml", "yml"},
			language: yaml.GetLanguage, highlights: yamlHighlights},
		{ID: "shellscript", Aliases: []string{"bash", "sh"}, Extensions: []string{"sh", "bash"},
			language: bash.GetLanguage, highlights: bashHighlights},
		{ID: "css", Extensions: []string{"css"},
			language: css.GetLanguage, highlights: cssHighlights},
		{ID: "html", Aliases: []string{"htm"}, Extensions: []string{"html", "htm"},
			language: html.GetLanguage, highlights: htmlHighlights},
	}
}

// WithHighlights returns a copy of g that highlights with query instead of
// the built-in one.
func (g *Grammar) WithHighlights(query string) *Grammar {
	c := *g
	c.highlights = query
	return &c
}

// Registry maps file extensions and language names to grammars. Each editor
// instance owns its own registry.
type Registry struct {
	byID  map[string]*Grammar
	byExt map[string]*Grammar
}

// NewRegistry returns a registry holding the built-in grammars.
func NewRegistry() *Registry {
	r := &Registry{
		byID:  make(map[string]*Grammar),
		byExt: make(map[string]*Grammar),
	}
	for _, g := range builtins() {
		r.byID[g.ID] = g
		for _, ext := range g.Extensions {
			r.byExt[ext] = g
		}
	}
	return r
}

// Lookup finds a grammar by id or alias, case-insensitively.
func (r *Registry) Lookup(name string) (*Grammar, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if g, ok := r.byID[name]; ok {
		return g, nil
	}
	for _, g := range r.byID {
		for _, a := range g.Aliases {
			if a == name {
				return g, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownLanguage, name)
}

// Override maps a file extension to the grammar named by language.
func (r *Registry) Override(ext, language string) error {
	g, err := r.Lookup(language)
	if err != nil {
		return err
	}
	r.byExt[normalizeExt(ext)] = g
	return nil
}

// Detect picks a grammar from the extension of path.
func (r *Registry) Detect(path string) (*Grammar, bool) {
	ext := normalizeExt(filepath.Ext(path))
	if ext == "" {
		return nil, false
	}
	g, ok := r.byExt[ext]
	return g, ok
}

// IDs lists the registered grammar ids in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
