package parser_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simplide/internal/parser"
)

const goSource = "package main\n\nfunc main() {\n\tx := \"(\"\n\t_ = x\n}\n"

func TestNodeAt(t *testing.T) {
	tr, _ := newTracker(t, "go", goSource)

	n, ok := tr.NodeAt(strings.Index(goSource, "x :="))
	require.True(t, ok)
	assert.Equal(t, "identifier", n.Type)
	assert.Equal(t, 3, n.Start.Line)
	assert.Contains(t, n.Ancestors, "function_declaration")
	assert.Equal(t, "source_file", n.Ancestors[len(n.Ancestors)-1])

	_, ok = tr.NodeAt(len(goSource) + 1)
	assert.False(t, ok)
}

func TestMatchingBracket(t *testing.T) {
	tr, _ := newTracker(t, "go", goSource)

	open := strings.Index(goSource, "{")
	closing := strings.LastIndex(goSource, "}")
	got, ok := tr.MatchingBracket(open)
	require.True(t, ok)
	assert.Equal(t, closing, got)

	got, ok = tr.MatchingBracket(closing)
	require.True(t, ok)
	assert.Equal(t, open, got)

	paren := strings.Index(goSource, "()")
	got, ok = tr.MatchingBracket(paren)
	require.True(t, ok)
	assert.Equal(t, paren+1, got)

	// the bracket inside the string literal is not a token
	_, ok = tr.MatchingBracket(strings.Index(goSource, "\"(\"") + 1)
	assert.False(t, ok)
}

func TestFoldingRanges(t *testing.T) {
	tr, _ := newTracker(t, "go", goSource)
	folds := tr.FoldingRanges()
	assert.Contains(t, folds, parser.Fold{StartLine: 2, EndLine: 5, Type: "function_declaration"})
}

func TestProblems(t *testing.T) {
	src := "let x = 1;\n)\nlet y = 2;\n"
	tr, _ := newTracker(t, "javascript", src)

	problems := tr.Problems()
	require.NotEmpty(t, problems)
	paren := strings.Index(src, ")")
	found := false
	for _, p := range problems {
		if p.Range.Contains(paren) {
			found = true
			assert.Equal(t, "syntax error", p.Message())
		}
	}
	assert.True(t, found)

	clean, _ := newTracker(t, "go", goSource)
	assert.Empty(t, clean.Problems())
}

func TestMissingProblemMessage(t *testing.T) {
	p := parser.Problem{Missing: true, Expected: ";"}
	assert.Equal(t, `missing ";"`, p.Message())
}

func TestIdentifiers(t *testing.T) {
	tr, _ := newTracker(t, "go", goSource)

	assert.Equal(t, []string{"main"}, tr.Identifiers("m"))
	all := tr.Identifiers("")
	assert.Contains(t, all, "x")
	assert.Contains(t, all, "main")
	assert.Empty(t, tr.Identifiers("main"))
}
