// Package resolver maps between file paths and document URIs.
package resolver

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

var ErrNotFileURI = errors.New("not a file uri")

// Document names one file three ways.
type Document struct {
	URI          protocol.DocumentUri
	AbsolutePath string
	// RelativePath is relative to the resolver's root; it starts with ".."
	// for files outside it.
	RelativePath string
}

type Resolver struct {
	root string
}

// New returns a resolver for root, which is made absolute.
func New(root string) (*Resolver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %q: %w", root, err)
	}
	return &Resolver{root: filepath.Clean(abs)}, nil
}

func (r *Resolver) Root() string { return r.root }

// Resolve accepts a file:// URI, an absolute path or a path relative to the
// root.
func (r *Resolver) Resolve(base string) (Document, error) {
	if u, err := url.Parse(base); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		if u.Scheme != "file" {
			return Document{}, fmt.Errorf("%w: %s", ErrNotFileURI, base)
		}
		return r.resolveAbsolute(filepath.FromSlash(u.Path))
	}
	if filepath.IsAbs(base) {
		return r.resolveAbsolute(base)
	}
	return r.resolveAbsolute(filepath.Join(r.root, base))
}

func (r *Resolver) resolveAbsolute(absolutepath string) (Document, error) {
	cleaned := filepath.Clean(absolutepath)
	u := url.URL{
		Scheme: "file",
		Path:   filepath.ToSlash(cleaned),
	}
	rel, err := filepath.Rel(r.root, cleaned)
	if err != nil {
		return Document{}, err
	}
	return Document{
		URI:          u.String(),
		AbsolutePath: cleaned,
		RelativePath: rel,
	}, nil
}

// PathFromURI returns the local path of a file URI.
func PathFromURI(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("parse uri: %w", err)
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("%w: %s", ErrNotFileURI, uri)
	}
	return filepath.FromSlash(u.Path), nil
}
