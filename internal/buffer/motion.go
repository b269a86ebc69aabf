package buffer

import (
	"unicode"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
	"github.com/rivo/uniseg"
)

// graphemeWindow is how far motion looks around the cursor for a cluster.
const graphemeWindow = 256

// NextGrapheme returns the offset just after the grapheme cluster starting
// at offset. At the end of the document it returns offset unchanged.
func (s Snapshot) NextGrapheme(offset int) (int, error) {
	if err := s.checkOffset(offset); err != nil {
		return 0, err
	}
	if offset == s.Len() {
		return offset, nil
	}
	end := s.alignBack(min(s.Len(), offset+graphemeWindow))
	if end <= offset {
		end = s.Len()
	}
	window := string(appendRange(nil, s.rope(), offset, end))
	cluster, _, _, _ := uniseg.FirstGraphemeClusterInString(window, -1)
	return offset + len(cluster), nil
}

// PrevGrapheme returns the start of the grapheme cluster ending at offset.
func (s Snapshot) PrevGrapheme(offset int) (int, error) {
	if err := s.checkOffset(offset); err != nil {
		return 0, err
	}
	if offset == 0 {
		return 0, nil
	}
	start := s.alignForward(max(0, offset-graphemeWindow))
	window := string(appendRange(nil, s.rope(), start, offset))
	last, state := start, -1
	for pos := start; len(window) > 0; {
		var cluster string
		cluster, window, _, state = uniseg.FirstGraphemeClusterInString(window, state)
		last = pos
		pos += len(cluster)
	}
	return last, nil
}

// DisplayColumn returns the terminal cell column of offset within its line.
func (s Snapshot) DisplayColumn(offset int) (int, error) {
	p, err := s.PositionAt(offset)
	if err != nil {
		return 0, err
	}
	prefix := appendRange(nil, s.rope(), offset-p.Column, offset)
	col := 0
	for len(prefix) > 0 {
		r, w := utf8.DecodeRune(prefix)
		col += cellWidth(r)
		prefix = prefix[w:]
	}
	return col, nil
}

// OffsetAtDisplayColumn maps a terminal cell column on line to the offset of
// the last character that starts at or before it, clamped to the line end.
func (s Snapshot) OffsetAtDisplayColumn(line, column int) (int, error) {
	lr, err := s.LineRange(line)
	if err != nil {
		return 0, err
	}
	text := appendRange(nil, s.rope(), lr.Start, lr.End)
	width, i := 0, 0
	for i < len(text) {
		r, w := utf8.DecodeRune(text[i:])
		cw := cellWidth(r)
		if width+cw > column {
			break
		}
		width += cw
		i += w
	}
	return lr.Start + i, nil
}

func cellWidth(r rune) int {
	w := runewidth.RuneWidth(r)
	if w == 0 && unicode.IsControl(r) {
		return 1
	}
	return w
}

func (s Snapshot) alignBack(offset int) int {
	for offset > 0 && !s.boundary(offset) {
		offset--
	}
	return offset
}

func (s Snapshot) alignForward(offset int) int {
	for offset < s.Len() && !s.boundary(offset) {
		offset++
	}
	return offset
}
