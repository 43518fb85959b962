// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package tiffdir

import (
	"fmt"
	"slices"
)

// checkDirOffset reports whether the IFD at off should be read.
// Zero ends the chain. An offset seen before is a loop, which also ends it.
func (s *Session) checkDirOffset(off uint32) bool {
	if off == 0 {
		return false
	}
	if slices.Contains(s.visited, off) {
		return false
	}
	s.visited = append(s.visited, off)
	return true
}

// fetchDirectory reads the raw entries of the IFD at off and the offset of the next IFD.
// A missing next offset is not an error, some writers omit it.
func (s *Session) fetchDirectory(off uint32) ([]Entry, uint32, error) {
	const module = "fetchDirectory"

	if err := s.sr.seek(int64(off)); err != nil {
		s.errorf(module, "seek error accessing TIFF directory")
		return nil, 0, fmt.Errorf("seek to directory at %d: %w", off, err)
	}

	count, err := s.sr.read2()
	if err != nil {
		s.errorf(module, "can not read TIFF directory count")
		return nil, 0, fmt.Errorf("read directory count at %d: %w", off, err)
	}
	if count > s.opts.LimitNumEntries {
		s.errorf(module, "TIFF directory with %d entries exceeds limit %d", count, s.opts.LimitNumEntries)
		return nil, 0, fmt.Errorf("%w: directory at %d has %d entries", ErrTooLarge, off, count)
	}

	n := int(count) * entrySize
	buf := getBuffer(n)
	defer putBuffer(buf)

	if err := s.sr.readFull(buf.b); err != nil {
		s.errorf(module, "can not read TIFF directory")
		return nil, 0, fmt.Errorf("read directory at %d: %w", off, err)
	}

	entries := make([]Entry, count)
	pos := int64(off) + 2
	for i := range entries {
		entries[i] = parseEntry(buf.b[i*entrySize:], s.sr.byteOrder, pos)
		pos += entrySize
	}

	next, err := s.sr.read4()
	if err != nil {
		next = 0
	}

	return entries, next, nil
}
