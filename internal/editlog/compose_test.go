package editlog_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simplide/internal/buffer"
	"simplide/internal/editlog"
)

func TestComposeTyping(t *testing.T) {
	b := buffer.New("let x = 1;", buffer.Options{})
	l := editlog.New(0)
	for i, ch := range []string{"2", "3", "4", "5", "6"} {
		apply(t, b, l, 9+i, 9+i, ch)
	}
	edits, _ := l.Since(0)

	span, ok := editlog.Compose(edits)
	require.True(t, ok)
	assert.Equal(t, editlog.Span{Start: 9, OldEnd: 9, NewEnd: 14}, span)
	assert.True(t, editlog.Overlapping(edits))
}

func TestComposeMatchesReplay(t *testing.T) {
	base := "0123456789abcdef"
	tests := []struct {
		name  string
		specs []buffer.EditSpec
	}{
		{"grow then delete", []buffer.EditSpec{
			{Range: buffer.Range{Start: 4, End: 6}, Text: "XYZW"},
			{Range: buffer.Range{Start: 2, End: 5}, Text: ""},
			{Range: buffer.Range{Start: 6, End: 9}, Text: "q"},
		}},
		{"disjoint", []buffer.EditSpec{
			{Range: buffer.Range{Start: 1, End: 2}, Text: "AA"},
			{Range: buffer.Range{Start: 12, End: 14}, Text: ""},
		}},
		{"before first", []buffer.EditSpec{
			{Range: buffer.Range{Start: 10, End: 10}, Text: "++"},
			{Range: buffer.Range{Start: 0, End: 3}, Text: "-"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := buffer.New(base, buffer.Options{})
			l := editlog.New(0)
			for _, s := range tt.specs {
				apply(t, b, l, s.Range.Start, s.Range.End, s.Text)
			}
			edits, _ := l.Since(0)
			span, ok := editlog.Compose(edits)
			require.True(t, ok)

			final := b.Text()
			rebuilt := base[:span.Start] + final[span.Start:span.NewEnd] + base[span.OldEnd:]
			assert.Equal(t, final, rebuilt)
		})
	}
}

func TestOverlapping(t *testing.T) {
	b := buffer.New("aaaa bbbb cccc", buffer.Options{})
	l := editlog.New(0)
	apply(t, b, l, 0, 1, "X")
	apply(t, b, l, 10, 11, "Y")
	edits, _ := l.Since(0)
	assert.False(t, editlog.Overlapping(edits))
	assert.False(t, editlog.Overlapping(nil))
}
