package resolver

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	root := t.TempDir()
	r, err := New(root)
	require.NoError(t, err)

	abs := filepath.Join(root, "src", "main.go")
	tests := []struct {
		name string
		base string
	}{
		{"relative", filepath.Join("src", "main.go")},
		{"absolute", abs},
		{"uri", "file://" + filepath.ToSlash(abs)},
		{"unclean", filepath.Join(root, "src", "..", "src", "main.go")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := r.Resolve(tt.base)
			require.NoError(t, err)
			assert.Equal(t, abs, doc.AbsolutePath)
			assert.Equal(t, filepath.Join("src", "main.go"), doc.RelativePath)
			assert.Equal(t, "file://"+filepath.ToSlash(abs), doc.URI)
		})
	}
}

func TestResolveRejectsOtherSchemes(t *testing.T) {
	r, err := New(t.TempDir())
	require.NoError(t, err)
	_, err = r.Resolve("https://example.com/main.go")
	assert.ErrorIs(t, err, ErrNotFileURI)
}

func TestPathFromURI(t *testing.T) {
	p, err := PathFromURI("file:///tmp/a%20b/main.rs")
	require.NoError(t, err)
	assert.Equal(t, filepath.FromSlash("/tmp/a b/main.rs"), p)

	_, err = PathFromURI("untitled:1")
	assert.ErrorIs(t, err, ErrNotFileURI)
}
