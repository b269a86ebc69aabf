package parser

import (
	"sort"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"simplide/internal/buffer"
	"simplide/internal/sitteradapter"
)

// Node describes a syntax node without exposing the tree.
type Node struct {
	Type    string
	Range   buffer.Range
	Start   buffer.Position
	End     buffer.Position
	Named   bool
	Error   bool
	Missing bool
	Depth   int
	// Ancestors lists the enclosing named node types, innermost first.
	Ancestors []string
}

// NodeAt returns the innermost named node containing offset.
func (t *Tracker) NodeAt(offset int) (Node, bool) {
	if t.Stale() || offset < 0 || offset > t.snap.Len() {
		return Node{}, false
	}
	n := t.tree.RootNode()
	path := []*sitter.Node{n}
	for {
		var next *sitter.Node
		for i := 0; i < int(n.NamedChildCount()); i++ {
			c := n.NamedChild(i)
			if int(c.StartByte()) <= offset && offset < int(c.EndByte()) {
				next = c
				break
			}
		}
		if next == nil {
			break
		}
		n = next
		path = append(path, n)
	}
	ancestors := make([]string, 0, len(path)-1)
	for i := len(path) - 2; i >= 0; i-- {
		ancestors = append(ancestors, path[i].Type())
	}
	return describe(n, len(path)-1, ancestors), true
}

func describe(n *sitter.Node, depth int, ancestors []string) Node {
	return Node{
		Type:      n.Type(),
		Range:     sitteradapter.NodeRange(n),
		Start:     sitteradapter.Position(n.StartPoint()),
		End:       sitteradapter.Position(n.EndPoint()),
		Named:     n.IsNamed(),
		Error:     n.Type() == "ERROR",
		Missing:   n.IsMissing(),
		Depth:     depth,
		Ancestors: ancestors,
	}
}

var brackets = map[string]string{
	"(": ")", "[": "]", "{": "}",
	")": "(", "]": "[", "}": "{",
}

// MatchingBracket returns the offset of the bracket paired with the one
// starting at offset. Pairs are found among siblings in the tree, so
// brackets inside strings and comments are ignored.
func (t *Tracker) MatchingBracket(offset int) (int, bool) {
	if t.Stale() || offset < 0 || offset >= t.snap.Len() {
		return 0, false
	}
	leaf := t.tree.RootNode()
	for leaf.ChildCount() > 0 {
		var next *sitter.Node
		for i := 0; i < int(leaf.ChildCount()); i++ {
			c := leaf.Child(i)
			if int(c.StartByte()) <= offset && offset < int(c.EndByte()) {
				next = c
				break
			}
		}
		if next == nil {
			return 0, false
		}
		leaf = next
	}
	open := leaf.Type()
	closeType, ok := brackets[open]
	if !ok || int(leaf.StartByte()) != offset || leaf.IsMissing() {
		return 0, false
	}
	parent := leaf.Parent()
	if parent == nil {
		return 0, false
	}
	forward := strings.Contains("([{", open)
	count := int(parent.ChildCount())
	idx := -1
	for i := 0; i < count; i++ {
		if parent.Child(i).StartByte() == leaf.StartByte() && parent.Child(i).Type() == open {
			idx = i
			break
		}
	}
	if idx < 0 {
		return 0, false
	}
	depth := 0
	for i := idx; i >= 0 && i < count; {
		c := parent.Child(i)
		switch c.Type() {
		case open:
			depth++
		case closeType:
			depth--
			if depth == 0 {
				if c.IsMissing() {
					return 0, false
				}
				return int(c.StartByte()), true
			}
		}
		if forward {
			i++
		} else {
			i--
		}
	}
	return 0, false
}

// Fold is a collapsible line region.
type Fold struct {
	StartLine int
	EndLine   int
	Type      string
}

var foldKinds = []string{
	"block", "body", "declaration", "statement", "function", "method",
	"class", "struct", "interface", "enum", "object", "array", "map",
	"list", "switch", "case", "if", "else", "for", "while", "loop",
	"try", "catch", "impl", "namespace", "comment", "element",
}

// FoldingRanges returns multi-line named nodes worth collapsing, ordered by
// start line.
func (t *Tracker) FoldingRanges() []Fold {
	if t.Stale() {
		return nil
	}
	seen := make(map[[2]int]bool)
	var out []Fold
	var walk func(n *sitter.Node, root bool)
	walk = func(n *sitter.Node, root bool) {
		if !root && n.IsNamed() {
			start, end := int(n.StartPoint().Row), int(n.EndPoint().Row)
			key := [2]int{start, end}
			if end > start && foldable(n) && !seen[key] {
				seen[key] = true
				out = append(out, Fold{StartLine: start, EndLine: end, Type: n.Type()})
			}
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i), false)
		}
	}
	walk(t.tree.RootNode(), true)
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartLine == out[j].StartLine {
			return out[i].EndLine < out[j].EndLine
		}
		return out[i].StartLine < out[j].StartLine
	})
	return out
}

func foldable(n *sitter.Node) bool {
	typ := n.Type()
	if typ == "comment" {
		return true
	}
	if n.NamedChildCount() == 0 {
		return false
	}
	for _, kw := range foldKinds {
		if strings.Contains(typ, kw) {
			return true
		}
	}
	return n.NamedChildCount() >= 2
}

// Problem is a syntax error found in the tree: an ERROR node, or a token the
// parser had to insert.
type Problem struct {
	Range   buffer.Range
	Start   buffer.Position
	End     buffer.Position
	Missing bool
	// Expected is the inserted token's type when Missing is set.
	Expected string
}

func (p Problem) Message() string {
	if p.Missing {
		return "missing " + strconv.Quote(p.Expected)
	}
	return "syntax error"
}

// Problems lists syntax errors in document order.
func (t *Tracker) Problems() []Problem {
	if t.Stale() || !t.tree.RootNode().HasError() {
		return nil
	}
	var out []Problem
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		switch {
		case n.Type() == "ERROR":
			out = append(out, problem(n, false))
			return
		case n.IsMissing():
			out = append(out, problem(n, true))
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			if c := n.Child(i); c.HasError() || c.IsMissing() {
				walk(c)
			}
		}
	}
	walk(t.tree.RootNode())
	return out
}

func problem(n *sitter.Node, missing bool) Problem {
	p := Problem{
		Range:   sitteradapter.NodeRange(n),
		Start:   sitteradapter.Position(n.StartPoint()),
		End:     sitteradapter.Position(n.EndPoint()),
		Missing: missing,
	}
	if missing {
		p.Expected = n.Type()
	}
	return p
}

// Identifiers returns the distinct identifier texts in the document that
// start with prefix, sorted.
func (t *Tracker) Identifiers(prefix string) []string {
	if t.Stale() {
		return nil
	}
	seen := make(map[string]bool)
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n.ChildCount() == 0 {
			if n.IsNamed() && strings.HasSuffix(n.Type(), "identifier") {
				text, err := t.snap.Read(sitteradapter.NodeRange(n))
				if err == nil && text != prefix && strings.HasPrefix(text, prefix) {
					seen[text] = true
				}
			}
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(t.tree.RootNode())
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
