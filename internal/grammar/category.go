package grammar

import "strings"

// Category is a highlight class understood by the renderer.
type Category int

// categoryNames is indexed by Category.
var categoryNames = [...]string{
	"keyword",
	"function",
	"type",
	"string",
	"number",
	"comment",
	"variable",
	"operator",
	"punctuation",
	"constant",
	"attribute",
	"property",
	"text.title",
	"text.literal",
	"text.uri",
	"text.reference",
	"text.emphasis",
	"text.strong",
	"punctuation.special",
	"punctuation.delimiter",
	"string.escape",
	"markup.heading",
	"markup.link",
	"markup.list",
	"markup.raw",
	"tag",
	"label",
	"namespace",
	"module",
	"parameter",
	"field",
}

var categoryByName = func() map[string]Category {
	m := make(map[string]Category, len(categoryNames))
	for i, n := range categoryNames {
		m[n] = Category(i)
	}
	return m
}()

func (c Category) String() string {
	if c < 0 || int(c) >= len(categoryNames) {
		return "unknown"
	}
	return categoryNames[c]
}

// Categories lists every known category in display order.
func Categories() []Category {
	out := make([]Category, len(categoryNames))
	for i := range out {
		out[i] = Category(i)
	}
	return out
}

// CategoryForCapture resolves a query capture name to the category with the
// longest matching dotted prefix, so "function.method" maps to "function".
func CategoryForCapture(name string) (Category, bool) {
	for {
		if c, ok := categoryByName[name]; ok {
			return c, true
		}
		i := strings.LastIndexByte(name, '.')
		if i < 0 {
			return 0, false
		}
		name = name[:i]
	}
}
