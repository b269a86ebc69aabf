package buffer

import (
	"fmt"
	"unicode/utf8"
)

var emptyRope = newLeaf(nil)

// Snapshot is an immutable view of a document at one version. Taking a
// snapshot is O(1) and the result may be read from any goroutine.
type Snapshot struct {
	root    *node
	version uint64
}

// NewSnapshot builds a standalone snapshot of text.
func NewSnapshot(text string, version uint64) Snapshot {
	return Snapshot{root: build([]byte(text)), version: version}
}

func (s Snapshot) rope() *node {
	if s.root == nil {
		return emptyRope
	}
	return s.root
}

func (s Snapshot) Version() uint64 { return s.version }

func (s Snapshot) Len() int { return s.rope().bytes }

// LineCount is the number of lines, counting a trailing empty line.
func (s Snapshot) LineCount() int { return s.rope().lines + 1 }

// Read returns the text inside r.
func (s Snapshot) Read(r Range) (string, error) {
	if err := s.checkRange(r); err != nil {
		return "", err
	}
	return string(appendRange(nil, s.rope(), r.Start, r.End)), nil
}

// Bytes returns a copy of the whole document.
func (s Snapshot) Bytes() []byte {
	return appendRange(make([]byte, 0, s.Len()), s.rope(), 0, s.Len())
}

func (s Snapshot) Text() string { return string(s.Bytes()) }

func (s Snapshot) checkRange(r Range) error {
	if r.Start < 0 || r.End < r.Start || r.End > s.Len() {
		return fmt.Errorf("%w: %v in document of %d bytes", ErrOutOfBounds, r, s.Len())
	}
	return nil
}

// boundary reports whether offset falls between two characters.
func (s Snapshot) boundary(offset int) bool {
	if offset == 0 || offset == s.Len() {
		return true
	}
	return utf8.RuneStart(byteAt(s.rope(), offset))
}

func (s Snapshot) checkOffset(offset int) error {
	if offset < 0 || offset > s.Len() {
		return fmt.Errorf("%w: offset %d outside [0,%d]", ErrInvalidCoordinate, offset, s.Len())
	}
	if !s.boundary(offset) {
		return fmt.Errorf("%w: offset %d splits a character", ErrInvalidCoordinate, offset)
	}
	return nil
}

// LineRange returns the byte range of line, excluding its newline.
func (s Snapshot) LineRange(line int) (Range, error) {
	if line < 0 || line >= s.LineCount() {
		return Range{}, fmt.Errorf("%w: line %d of %d", ErrInvalidCoordinate, line, s.LineCount())
	}
	start := 0
	if line > 0 {
		start = offsetAfterNewline(s.rope(), line)
	}
	end := s.Len()
	if line+1 < s.LineCount() {
		end = offsetAfterNewline(s.rope(), line+1) - 1
	}
	return Range{Start: start, End: end}, nil
}

// PositionAt converts a byte offset into a line and byte column.
func (s Snapshot) PositionAt(offset int) (Position, error) {
	if err := s.checkOffset(offset); err != nil {
		return Position{}, err
	}
	line := newlinesBefore(s.rope(), offset)
	start := 0
	if line > 0 {
		start = offsetAfterNewline(s.rope(), line)
	}
	return Position{Line: line, Column: offset - start}, nil
}

// OffsetAt converts a line and byte column into a byte offset.
func (s Snapshot) OffsetAt(p Position) (int, error) {
	lr, err := s.LineRange(p.Line)
	if err != nil {
		return 0, err
	}
	if p.Column < 0 || p.Column > lr.Len() {
		return 0, fmt.Errorf("%w: column %d on line %d of %d bytes", ErrInvalidCoordinate, p.Column, p.Line, lr.Len())
	}
	offset := lr.Start + p.Column
	if !s.boundary(offset) {
		return 0, fmt.Errorf("%w: %v splits a character", ErrInvalidCoordinate, p)
	}
	return offset, nil
}

// CodeUnitAt converts a byte offset into a line and UTF-16 column.
func (s Snapshot) CodeUnitAt(offset int) (CodeUnitPosition, error) {
	p, err := s.PositionAt(offset)
	if err != nil {
		return CodeUnitPosition{}, err
	}
	prefix := appendRange(nil, s.rope(), offset-p.Column, offset)
	return CodeUnitPosition{Line: p.Line, Character: utf16Len(prefix)}, nil
}

// OffsetAtCodeUnit converts a line and UTF-16 column into a byte offset.
func (s Snapshot) OffsetAtCodeUnit(p CodeUnitPosition) (int, error) {
	lr, err := s.LineRange(p.Line)
	if err != nil {
		return 0, err
	}
	if p.Character < 0 {
		return 0, fmt.Errorf("%w: negative character %d", ErrInvalidCoordinate, p.Character)
	}
	line := appendRange(nil, s.rope(), lr.Start, lr.End)
	units, i := 0, 0
	for units < p.Character && i < len(line) {
		r, w := utf8.DecodeRune(line[i:])
		units += runeUnits(r)
		i += w
	}
	if units != p.Character {
		return 0, fmt.Errorf("%w: character %d on line %d", ErrInvalidCoordinate, p.Character, p.Line)
	}
	return lr.Start + i, nil
}

func runeUnits(r rune) int {
	if r >= 0x10000 && r <= utf8.MaxRune {
		return 2
	}
	return 1
}

func utf16Len(b []byte) int {
	n := 0
	for len(b) > 0 {
		r, w := utf8.DecodeRune(b)
		n += runeUnits(r)
		b = b[w:]
	}
	return n
}
