package buffer

import (
	"fmt"
	"strings"
	"time"
)

// Options configures a Buffer.
type Options struct {
	// HistoryLimit caps the undo stack. Zero means unlimited.
	HistoryLimit int
	// BaseVersion is the version of the initial text.
	BaseVersion uint64
	// Clock stamps edits. Defaults to time.Now.
	Clock func() time.Time
}

// Buffer is the versioned text store of one document. It is not safe for
// concurrent use; readers on other goroutines take a Snapshot.
type Buffer struct {
	snap Snapshot
	undo []Edit
	redo []Edit
	opts Options
}

// New creates a buffer holding text.
func New(text string, opts Options) *Buffer {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Buffer{
		snap: NewSnapshot(text, opts.BaseVersion),
		opts: opts,
	}
}

func (b *Buffer) Version() uint64 { return b.snap.version }

func (b *Buffer) Len() int { return b.snap.Len() }

func (b *Buffer) LineCount() int { return b.snap.LineCount() }

// Snapshot returns an immutable view of the current document.
func (b *Buffer) Snapshot() Snapshot { return b.snap }

func (b *Buffer) Read(r Range) (string, error) { return b.snap.Read(r) }

func (b *Buffer) Text() string { return b.snap.Text() }

func (b *Buffer) PositionAt(offset int) (Position, error) { return b.snap.PositionAt(offset) }

func (b *Buffer) OffsetAt(p Position) (int, error) { return b.snap.OffsetAt(p) }

func (b *Buffer) CodeUnitAt(offset int) (CodeUnitPosition, error) { return b.snap.CodeUnitAt(offset) }

func (b *Buffer) OffsetAtCodeUnit(p CodeUnitPosition) (int, error) {
	return b.snap.OffsetAtCodeUnit(p)
}

func (b *Buffer) CanUndo() bool { return len(b.undo) > 0 }

func (b *Buffer) CanRedo() bool { return len(b.redo) > 0 }

// Apply replaces spec.Range with spec.Text and returns the recorded edit.
// Applying a new edit clears the redo history.
func (b *Buffer) Apply(spec EditSpec) (Edit, error) {
	e, err := b.apply(spec, OriginLocal)
	if err != nil {
		return Edit{}, err
	}
	b.pushUndo(e)
	b.redo = b.redo[:0]
	return e, nil
}

// Undo reverts the most recent edit. It reports false when there is nothing
// to undo.
func (b *Buffer) Undo() (Edit, bool) {
	if len(b.undo) == 0 {
		return Edit{}, false
	}
	last := b.undo[len(b.undo)-1]
	e, err := b.apply(last.Inverse(), OriginUndo)
	if err != nil {
		// history entries are always valid against the current text
		panic(fmt.Sprintf("buffer: undo of %v failed: %v", last.Range, err))
	}
	b.undo = b.undo[:len(b.undo)-1]
	b.redo = append(b.redo, last)
	return e, true
}

// Redo reapplies the most recently undone edit.
func (b *Buffer) Redo() (Edit, bool) {
	if len(b.redo) == 0 {
		return Edit{}, false
	}
	last := b.redo[len(b.redo)-1]
	e, err := b.apply(EditSpec{Range: last.Range, Text: last.NewText}, OriginRedo)
	if err != nil {
		panic(fmt.Sprintf("buffer: redo of %v failed: %v", last.Range, err))
	}
	b.redo = b.redo[:len(b.redo)-1]
	b.pushUndo(e)
	return e, true
}

func (b *Buffer) pushUndo(e Edit) {
	b.undo = append(b.undo, e)
	if limit := b.opts.HistoryLimit; limit > 0 && len(b.undo) > limit {
		n := copy(b.undo, b.undo[len(b.undo)-limit:])
		clear(b.undo[n:])
		b.undo = b.undo[:n]
	}
}

func (b *Buffer) apply(spec EditSpec, origin Origin) (Edit, error) {
	old := b.snap
	if err := old.checkRange(spec.Range); err != nil {
		return Edit{}, err
	}
	if spec.Range.Empty() && spec.Text == "" {
		return Edit{}, ErrEmptyEdit
	}
	start, err := old.PositionAt(spec.Range.Start)
	if err != nil {
		return Edit{}, err
	}
	oldEnd, err := old.PositionAt(spec.Range.End)
	if err != nil {
		return Edit{}, err
	}
	startCU, _ := old.CodeUnitAt(spec.Range.Start)
	oldEndCU, _ := old.CodeUnitAt(spec.Range.End)
	oldText, _ := old.Read(spec.Range)

	b.snap = Snapshot{
		root:    replace(old.rope(), spec.Range.Start, spec.Range.End, []byte(spec.Text)),
		version: old.version + 1,
	}
	return Edit{
		VersionBefore:  old.version,
		VersionAfter:   b.snap.version,
		Range:          spec.Range,
		OldText:        oldText,
		NewText:        spec.Text,
		Timestamp:      b.opts.Clock(),
		Origin:         origin,
		StartPosition:  start,
		OldEndPosition: oldEnd,
		NewEndPosition: advance(start, spec.Text),
		StartCodeUnit:  startCU,
		OldEndCodeUnit: oldEndCU,
	}, nil
}

// advance returns the position reached after writing text at p.
func advance(p Position, text string) Position {
	nl := strings.Count(text, "\n")
	if nl == 0 {
		return Position{Line: p.Line, Column: p.Column + len(text)}
	}
	return Position{Line: p.Line + nl, Column: len(text) - strings.LastIndexByte(text, '\n') - 1}
}
