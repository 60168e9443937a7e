// Package pkg is a package that provides utilities for covfold.
package pkg

import "sort"

// LineIndex maps byte offsets in a text to zero-based line/column pairs
// and back. Build it once per text; lookups are read-only and safe for
// concurrent use.
type LineIndex struct {
	starts []int // byte offset of each line start
	length int
}

// NewLineIndex builds the index for text. Lines are split on '\n' only;
// a trailing newline opens a final empty line, matching how editors and
// source maps count lines.
func NewLineIndex(text []byte) *LineIndex {
	starts := []int{0}

	for i, b := range text {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}

	return &LineIndex{starts: starts, length: len(text)}
}

// Lines returns the number of lines in the indexed text.
func (ix *LineIndex) Lines() int {
	return len(ix.starts)
}

// Position returns the zero-based line and byte column for a byte offset.
// Offsets outside the text are clamped to its bounds.
func (ix *LineIndex) Position(offset int) (line, column int) {
	if offset < 0 {
		offset = 0
	}

	if offset > ix.length {
		offset = ix.length
	}

	// First line start strictly past the offset; the offset's line is the
	// one before it.
	line = sort.Search(len(ix.starts), func(i int) bool {
		return ix.starts[i] > offset
	}) - 1

	return line, offset - ix.starts[line]
}

// Offset returns the byte offset of a zero-based line/column pair. Lines
// and columns outside the text are clamped to its bounds.
func (ix *LineIndex) Offset(line, column int) int {
	if line < 0 {
		line = 0
	}

	if line >= len(ix.starts) {
		line = len(ix.starts) - 1
	}

	if column < 0 {
		column = 0
	}

	offset := ix.starts[line] + column

	end := ix.length
	if line+1 < len(ix.starts) {
		end = ix.starts[line+1] - 1 // stay before the newline
	}

	if offset > end {
		offset = end
	}

	return offset
}
