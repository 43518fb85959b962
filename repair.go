// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package tiffdir

import (
	"fmt"
	"math"
)

// byteCountLooksBad reports whether the byte count of a single strip is
// implausible: zero with a non-zero offset, larger than the rest of the
// file, or (when reading) smaller than the uncompressed image.
func (s *Session) byteCountLooksBad(d *Directory) bool {
	bc, off := d.StripByteCounts[0], d.StripOffsets[0]
	size := uint64(s.sr.fileSize())

	if bc == 0 && off != 0 {
		return true
	}
	if d.Compression != CompressionNone {
		return false
	}
	if off > size || bc > size-off {
		return true
	}
	// A file being written may not have all of its data yet.
	return s.opts.Mode == ModeRead && bc < d.ScanlineSize()*uint64(d.ImageLength)
}

// estimateStripByteCounts replaces the byte counts with values derived
// from the image geometry or, for compressed data, from the file layout.
func (s *Session) estimateStripByteCounts(d *Directory) error {
	counts := make([]uint64, d.NStrips)
	fileSize := uint64(s.sr.fileSize())

	switch {
	case d.Compression != CompressionNone:
		space := uint64(headerSize + 2 + len(d.Entries)*entrySize + 4)
		for _, e := range d.Entries {
			n, err := e.Size()
			if err != nil {
				return fmt.Errorf("cannot determine size of tag %d of type %d: %w", e.Tag, e.Type, err)
			}
			if n > 4 {
				space += uint64(n)
			}
		}

		var avail uint64
		if space < fileSize {
			avail = fileSize - space
		}
		if d.PlanarConfig == PlanarConfigSeparate {
			avail /= uint64(d.SamplesPerPixel)
		}
		for i := range counts {
			counts[i] = avail
		}

		// Strips are contiguous, so the last one cannot run past the end of the file.
		last := len(counts) - 1
		off := d.StripOffsets[last]
		if off+counts[last] > fileSize {
			if off > fileSize {
				counts[last] = 0
			} else {
				counts[last] = fileSize - off
			}
		}
	case d.IsTiled():
		tileSize := d.TileSize()
		for i := range counts {
			counts[i] = tileSize
		}
	default:
		rowBytes := d.ScanlineSize()
		rowsPerStrip := uint64(d.ImageLength) / uint64(d.StripsPerImage)
		for i := range counts {
			counts[i] = rowBytes * rowsPerStrip
		}
	}

	d.StripByteCounts = counts
	d.haveByteCounts = true
	if !d.set[TagRowsPerStrip] {
		d.RowsPerStrip = d.ImageLength
	}
	return nil
}

// chopUpSingleUncompressedStrip replaces a single uncompressed strip with
// multiple strips of about StripChopSize bytes each, so it can be read
// with bounded memory.
func (s *Session) chopUpSingleUncompressedStrip(d *Directory) {
	bytecount := d.StripByteCounts[0]
	if bytecount == 0 && s.opts.Mode != ModeRead {
		return
	}
	offset := d.StripOffsets[0]

	// Every strip holds at least one row.
	budget := uint64(s.opts.StripChopSize)
	rowBytes := d.VStripSize(1)

	var (
		stripBytes   uint64
		rowsPerStrip uint32
	)
	switch {
	case rowBytes > budget:
		stripBytes = rowBytes
		rowsPerStrip = 1
	case rowBytes > 0:
		rowsPerStrip = uint32(budget / rowBytes)
		stripBytes = rowBytes * uint64(rowsPerStrip)
	default:
		return
	}

	// Never increase the number of strips in an image.
	if rowsPerStrip >= d.RowsPerStrip {
		return
	}

	nstrips := howMany(bytecount, stripBytes)
	if nstrips == 0 || nstrips > math.MaxUint32 || nstrips*8 > uint64(s.opts.LimitTagSize) {
		return
	}

	counts := make([]uint64, nstrips)
	offsets := make([]uint64, nstrips)
	for i := range counts {
		if stripBytes > bytecount {
			stripBytes = bytecount
		}
		counts[i] = stripBytes
		offsets[i] = offset
		offset += stripBytes
		bytecount -= stripBytes
	}

	d.NStrips = uint32(nstrips)
	d.StripsPerImage = uint32(nstrips)
	d.RowsPerStrip = rowsPerStrip
	d.set[TagRowsPerStrip] = true
	d.StripByteCounts = counts
	d.StripOffsets = offsets
}
