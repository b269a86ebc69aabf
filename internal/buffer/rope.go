package buffer

import "bytes"

// maxLeaf bounds the size of a single leaf chunk in bytes.
const maxLeaf = 1024

// node is an immutable rope node. Leaves hold bytes, inner nodes hold the
// aggregated weights of their children. Nodes are never modified once built,
// so any root can be shared freely as a snapshot.
type node struct {
	left, right *node
	leaf        []byte
	bytes       int
	lines       int
	height      int
}

func newLeaf(b []byte) *node {
	return &node{
		leaf:  b,
		bytes: len(b),
		lines: bytes.Count(b, newline),
	}
}

var newline = []byte{'\n'}

func (n *node) isLeaf() bool { return n.left == nil }

func height(n *node) int {
	if n == nil {
		return -1
	}
	return n.height
}

func size(n *node) int {
	if n == nil {
		return 0
	}
	return n.bytes
}

func mk(l, r *node) *node {
	h := height(l)
	if hr := height(r); hr > h {
		h = hr
	}
	return &node{
		left:   l,
		right:  r,
		bytes:  l.bytes + r.bytes,
		lines:  l.lines + r.lines,
		height: h + 1,
	}
}

// build creates a balanced rope for b. The slice is copied.
func build(b []byte) *node {
	if len(b) <= maxLeaf {
		c := make([]byte, len(b))
		copy(c, b)
		return newLeaf(c)
	}
	mid := len(b) / 2
	return mk(build(b[:mid]), build(b[mid:]))
}

func balance(l, r *node) *node {
	switch d := height(l) - height(r); {
	case d > 1:
		if height(l.left) >= height(l.right) {
			return mk(l.left, mk(l.right, r))
		}
		return mk(mk(l.left, l.right.left), mk(l.right.right, r))
	case d < -1:
		if height(r.right) >= height(r.left) {
			return mk(mk(l, r.left), r.right)
		}
		return mk(mk(l, r.left.left), mk(r.left.right, r.right))
	}
	return mk(l, r)
}

// join concatenates two ropes, keeping the result height balanced.
func join(l, r *node) *node {
	switch {
	case size(l) == 0:
		if r == nil {
			return newLeaf(nil)
		}
		return r
	case size(r) == 0:
		return l
	}
	if l.isLeaf() && r.isLeaf() && l.bytes+r.bytes <= maxLeaf {
		c := make([]byte, 0, l.bytes+r.bytes)
		c = append(c, l.leaf...)
		c = append(c, r.leaf...)
		return newLeaf(c)
	}
	switch {
	case l.height > r.height+1:
		return balance(l.left, join(l.right, r))
	case r.height > l.height+1:
		return balance(join(l, r.left), r.right)
	}
	return mk(l, r)
}

// split divides n at byte offset i.
func split(n *node, i int) (*node, *node) {
	if n.isLeaf() {
		return newLeaf(n.leaf[:i:i]), newLeaf(n.leaf[i:])
	}
	switch {
	case i < n.left.bytes:
		ll, lr := split(n.left, i)
		return ll, join(lr, n.right)
	case i > n.left.bytes:
		rl, rr := split(n.right, i-n.left.bytes)
		return join(n.left, rl), rr
	}
	return n.left, n.right
}

// replace returns a rope with bytes [start, end) replaced by text.
func replace(n *node, start, end int, text []byte) *node {
	head, rest := split(n, start)
	_, tail := split(rest, end-start)
	if len(text) == 0 {
		return join(head, tail)
	}
	return join(join(head, build(text)), tail)
}

// appendRange appends bytes [start, end) of n to dst.
func appendRange(dst []byte, n *node, start, end int) []byte {
	if start >= end {
		return dst
	}
	if n.isLeaf() {
		return append(dst, n.leaf[start:end]...)
	}
	lb := n.left.bytes
	if start < lb {
		dst = appendRange(dst, n.left, start, min(end, lb))
	}
	if end > lb {
		dst = appendRange(dst, n.right, max(start-lb, 0), end-lb)
	}
	return dst
}

func byteAt(n *node, i int) byte {
	for !n.isLeaf() {
		if i < n.left.bytes {
			n = n.left
		} else {
			i -= n.left.bytes
			n = n.right
		}
	}
	return n.leaf[i]
}

// newlinesBefore counts the newlines in [0, i).
func newlinesBefore(n *node, i int) int {
	count := 0
	for !n.isLeaf() {
		if i <= n.left.bytes {
			n = n.left
			continue
		}
		count += n.left.lines
		i -= n.left.bytes
		n = n.right
	}
	return count + bytes.Count(n.leaf[:i], newline)
}

// offsetAfterNewline returns the offset just past the k-th newline (k >= 1).
func offsetAfterNewline(n *node, k int) int {
	off := 0
	for !n.isLeaf() {
		if k <= n.left.lines {
			n = n.left
			continue
		}
		k -= n.left.lines
		off += n.left.bytes
		n = n.right
	}
	for i, b := range n.leaf {
		if b == '\n' {
			k--
			if k == 0 {
				return off + i + 1
			}
		}
	}
	return off + len(n.leaf)
}
