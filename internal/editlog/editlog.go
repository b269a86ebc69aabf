package editlog

import (
	"errors"
	"fmt"

	"simplide/internal/buffer"
)

var (
	// ErrVersionGap is returned when an appended edit does not continue the
	// chain of recorded versions.
	ErrVersionGap = errors.New("edit does not follow log head")
	// ErrUnknownVersion is returned when a version lies outside the log.
	ErrUnknownVersion = errors.New("version not covered by log")
)

// Log is the append-only record of edits of one document. Entries are
// contiguous, so the entry leaving version v sits at index v-base.
type Log struct {
	base    uint64
	entries []buffer.Edit
}

// New creates an empty log starting at version base.
func New(base uint64) *Log {
	return &Log{base: base}
}

// Base is the version the log starts from.
func (l *Log) Base() uint64 { return l.base }

// Head is the version reached after the last entry.
func (l *Log) Head() uint64 { return l.base + uint64(len(l.entries)) }

func (l *Log) Len() int { return len(l.entries) }

// Append records e. The edit must leave exactly the head version.
func (l *Log) Append(e buffer.Edit) error {
	if e.VersionBefore != l.Head() || e.VersionAfter != e.VersionBefore+1 {
		return fmt.Errorf("%w: edit %d->%d, head %d", ErrVersionGap, e.VersionBefore, e.VersionAfter, l.Head())
	}
	l.entries = append(l.entries, e)
	return nil
}

// Since returns the edits that move the document from version to the head,
// in order. The returned slice must not be modified.
func (l *Log) Since(version uint64) ([]buffer.Edit, error) {
	if version < l.base || version > l.Head() {
		return nil, fmt.Errorf("%w: %d not in [%d,%d]", ErrUnknownVersion, version, l.base, l.Head())
	}
	i := version - l.base
	return l.entries[i:len(l.entries):len(l.entries)], nil
}

// Cursor tracks how far one consumer has read the log.
type Cursor struct {
	log     *Log
	version uint64
}

// NewCursor returns a cursor positioned at version from.
func (l *Log) NewCursor(from uint64) *Cursor {
	return &Cursor{log: l, version: from}
}

// Version is the last version the consumer has seen.
func (c *Cursor) Version() uint64 { return c.version }

// Pending returns the edits not yet consumed without advancing.
func (c *Cursor) Pending() []buffer.Edit {
	edits, err := c.log.Since(c.version)
	if err != nil {
		return nil
	}
	return edits
}

// Next returns the unconsumed edits and advances to the head.
func (c *Cursor) Next() []buffer.Edit {
	edits := c.Pending()
	c.version = c.log.Head()
	return edits
}

// Reset moves the cursor to version, typically after a consumer rebuilt its
// state from a snapshot.
func (c *Cursor) Reset(version uint64) error {
	if version < c.log.base || version > c.log.Head() {
		return fmt.Errorf("%w: %d", ErrUnknownVersion, version)
	}
	c.version = version
	return nil
}
