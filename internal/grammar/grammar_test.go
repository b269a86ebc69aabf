package grammar_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simplide/internal/grammar"
)

func TestDetect(t *testing.T) {
	r := grammar.NewRegistry()

	tests := []struct {
		path string
		want string
	}{
		{"main.go", "go"},
		{"/src/app.MJS", "javascript"},
		{"lib.rs", "rust"},
		{"view.tsx", "typescriptreact"},
		{"ci.yml", "yaml"},
	}
	for _, tt := range tests {
		g, ok := r.Detect(tt.path)
		require.True(t, ok, tt.path)
		assert.Equal(t, tt.want, g.ID, tt.path)
	}

	_, ok := r.Detect("Makefile")
	assert.False(t, ok)
	_, ok = r.Detect("notes.txt")
	assert.False(t, ok)
}

func TestOverride(t *testing.T) {
	r := grammar.NewRegistry()

	require.NoError(t, r.Override(".gotmpl", "golang"))
	g, ok := r.Detect("page.gotmpl")
	require.True(t, ok)
	assert.Equal(t, "go", g.ID)

	err := r.Override("x", "cobol")
	assert.ErrorIs(t, err, grammar.ErrUnknownLanguage)
}

func TestHighlightQueriesCompile(t *testing.T) {
	r := grammar.NewRegistry()
	for _, id := range r.IDs() {
		t.Run(id, func(t *testing.T) {
			g, err := r.Lookup(id)
			require.NoError(t, err)
			q, err := g.HighlightQuery()
			require.NoError(t, err)
			defer q.Close()
			for i := uint32(0); i < q.CaptureCount(); i++ {
				_, ok := grammar.CategoryForCapture(q.CaptureNameForId(i))
				assert.True(t, ok, "capture %q", q.CaptureNameForId(i))
			}
		})
	}
}

func TestCategoryForCapture(t *testing.T) {
	c, ok := grammar.CategoryForCapture("function.method.call")
	require.True(t, ok)
	assert.Equal(t, "function", c.String())

	c, ok = grammar.CategoryForCapture("string.escape")
	require.True(t, ok)
	assert.Equal(t, "string.escape", c.String())

	_, ok = grammar.CategoryForCapture("spell")
	assert.False(t, ok)
}
