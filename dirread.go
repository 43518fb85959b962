// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package tiffdir

import (
	"fmt"
)

// dirField is an entry paired with its registry description.
type dirField struct {
	fi     FieldInfo
	e      Entry
	ignore bool
}

// ReadDirectory reads the next IFD in the chain, the first call reads the
// IFD the header points to. It returns ErrNoMoreDirectories when the chain ends
// or loops back to a directory already read.
//
// Failures in single fields are reported to Diagnostics and collected in
// the directory's FieldErrors; only failures that make the whole directory
// unusable are returned.
func (s *Session) ReadDirectory() (d *Directory, err error) {
	defer func() {
		if r := recover(); r != nil {
			d, err = nil, errFromRecover(r)
		}
	}()

	off := s.nextOffset
	if !s.checkDirOffset(off) {
		return nil, ErrNoMoreDirectories
	}

	d, err = s.readImageDirectory(off)
	if d != nil {
		s.nextOffset = d.NextOffset
	} else {
		s.nextOffset = 0
	}
	if err != nil {
		if isInvalidFormatErrorCandidate(err) {
			err = newInvalidFormatError(err)
		}
		return nil, err
	}
	return d, nil
}

// ReadDirectoryAt reads the IFD at offset outside of the main chain, e.g. one of
// a directory's SubIFDs or its ExifIFD.
//
// If reg is nil, the IFD is read as an image directory using the session's
// registry. Otherwise it is read as a private directory described by reg,
// e.g. ExifRegistry(), without any strip handling.
//
// Offsets already read in this session return ErrNoMoreDirectories.
func (s *Session) ReadDirectoryAt(offset uint32, reg *Registry) (d *Directory, err error) {
	defer func() {
		if r := recover(); r != nil {
			d, err = nil, errFromRecover(r)
		}
	}()

	if !s.checkDirOffset(offset) {
		return nil, ErrNoMoreDirectories
	}

	if reg == nil {
		d, err = s.readImageDirectory(offset)
	} else {
		d, err = s.readCustomDirectory(offset, reg)
	}
	if err != nil {
		if isInvalidFormatErrorCandidate(err) {
			err = newInvalidFormatError(err)
		}
		return nil, err
	}
	return d, nil
}

// ReadExifDirectory reads the EXIF private IFD d points to.
func (s *Session) ReadExifDirectory(d *Directory) (*Directory, error) {
	if d.ExifIFD == 0 {
		return nil, ErrNoMoreDirectories
	}
	return s.ReadDirectoryAt(d.ExifIFD, ExifRegistry())
}

// prepareFields looks up every entry in reg. Entries that cannot be
// decoded (unknown tags, wrong types and duplicates) are marked ignored.
func (s *Session) prepareFields(d *Directory, reg *Registry, entries []Entry) []dirField {
	module := reg.Name()
	fields := make([]dirField, len(entries))
	seen := make(map[uint16]bool, len(entries))

	var prev uint16
	warnedOrder := false

	for i, e := range entries {
		f := &fields[i]
		f.e = e

		if i > 0 && e.Tag < prev && !warnedOrder {
			s.warnf(module, "invalid TIFF directory; tags are not sorted in ascending order")
			warnedOrder = true
		}
		prev = e.Tag

		fi, ok := reg.Lookup(e.Tag)
		if !ok {
			s.warnf(module, "unknown field with tag %d (0x%x) encountered", e.Tag, e.Tag)
			f.fi = FieldInfo{Tag: e.Tag, Name: reg.TagName(e.Tag)}
			f.ignore = true
			continue
		}
		f.fi = fi

		if seen[e.Tag] {
			s.warnf(module, "duplicate field %q (tag %d); later value ignored", fi.Name, e.Tag)
			f.ignore = true
			continue
		}
		seen[e.Tag] = true

		if !fi.Accepts(e.Type) {
			s.warnf(module, "wrong data type %d for %q; tag ignored", e.Type, fi.Name)
			f.ignore = true
			continue
		}
	}

	return fields
}

func isSetupTag(tag uint16) bool {
	switch tag {
	case TagSamplesPerPixel,
		TagImageWidth, TagImageLength, TagImageDepth,
		TagTileWidth, TagTileLength, TagTileDepth,
		TagPlanarConfiguration, TagRowsPerStrip, TagExtraSamples:
		return true
	}
	return false
}

// readImageDirectory decodes the IFD at off as an image directory.
// The directory is returned on failure too if its entries could be read,
// so the chain can be followed.
func (s *Session) readImageDirectory(off uint32) (*Directory, error) {
	const module = "ReadDirectory"

	entries, next, err := s.fetchDirectory(off)
	if err != nil {
		return nil, err
	}

	reg := s.opts.Registry
	d := newDirectory(off, reg.Name())
	d.NextOffset = next
	d.Entries = entries

	fields := s.prepareFields(d, reg, entries)

	fetch := func(f *dirField, fn func(*Directory, FieldInfo, Entry) error) {
		if err := fn(d, f.fi, f.e); err != nil {
			s.fieldFailed(d, f.fi, err)
		}
		f.ignore = true
	}

	// The compression scheme and the geometry must be known
	// before the strip layout can be computed.
	for i := range fields {
		if f := &fields[i]; !f.ignore && f.e.Tag == TagCompression {
			fetch(f, s.fetchNormalTag)
		}
	}
	for i := range fields {
		if f := &fields[i]; !f.ignore && isSetupTag(f.e.Tag) {
			fetch(f, s.fetchNormalTag)
		}
	}

	if !d.set[TagImageLength] {
		s.errorf(module, "TIFF directory is missing required %q field", "ImageLength")
		return d, newInvalidFormatErrorf("missing required ImageLength field")
	}

	if d.IsTiled() {
		d.NStrips = d.NumberOfTiles()
	} else {
		d.NStrips = d.NumberOfStrips()
	}
	d.StripsPerImage = d.NStrips
	if d.NStrips == 0 {
		s.errorf(module, "cannot handle zero number of %s", d.layoutName())
		return d, newInvalidFormatErrorf("zero number of %s", d.layoutName())
	}
	if uint64(d.NStrips)*8 > uint64(s.opts.LimitTagSize) {
		return d, fmt.Errorf("%w: %d %s", ErrTooLarge, d.NStrips, d.layoutName())
	}
	if d.PlanarConfig == PlanarConfigSeparate {
		d.StripsPerImage /= uint32(d.SamplesPerPixel)
	}

	for i := range fields {
		f := &fields[i]
		if f.ignore {
			continue
		}
		switch f.e.Tag {
		case TagMinSampleValue, TagMaxSampleValue, TagBitsPerSample, TagSampleFormat,
			TagSMinSampleValue, TagSMaxSampleValue:
			fetch(f, s.fetchPerSample)
		case TagStripOffsets, TagTileOffsets:
			fetch(f, func(d *Directory, fi FieldInfo, e Entry) error {
				v, err := s.fetchStripThing(d, fi, e, d.NStrips)
				if err != nil {
					return err
				}
				d.StripOffsets = v
				d.haveOffsets = true
				return nil
			})
		case TagStripByteCounts, TagTileByteCounts:
			fetch(f, func(d *Directory, fi FieldInfo, e Entry) error {
				v, err := s.fetchStripThing(d, fi, e, d.NStrips)
				if err != nil {
					return err
				}
				d.StripByteCounts = v
				d.haveByteCounts = true
				return nil
			})
		case TagReferenceBlackWhite:
			fetch(f, s.fetchRefBlackWhite)
		case TagPageNumber, TagHalftoneHints, TagYCbCrSubsampling, TagDotRange:
			fetch(f, s.fetchShortPair)
		case TagSubjectDistance:
			fetch(f, s.fetchSubjectDistance)
		default:
			fetch(f, s.fetchNormalTag)
		}
	}

	if !d.haveOffsets {
		// Old-style JPEG files may carry the data in the JPEGInterchangeFormat tag instead.
		if d.Compression != CompressionOJPEG || d.IsTiled() || d.NStrips != 1 {
			name := d.layoutName()
			s.errorf(module, "TIFF directory is missing required %q field", d.offsetsName())
			return d, newInvalidFormatErrorf("missing required %s offsets", name)
		}
		d.StripOffsets = make([]uint64, d.NStrips)
		d.haveOffsets = true
	}

	if !d.set[TagPhotometricInterpretation] {
		d.Photometric = PhotometricMinIsBlack
		if d.SamplesPerPixel >= 3 {
			d.Photometric = PhotometricRGB
		}
		s.warnf(module, "photometric interpretation missing, assuming %d", d.Photometric)
	}

	if !d.haveByteCounts {
		if (d.PlanarConfig == PlanarConfigContig && d.NStrips > 1) ||
			(d.PlanarConfig == PlanarConfigSeparate && d.NStrips != uint32(d.SamplesPerPixel)) {
			s.errorf(module, "TIFF directory is missing required %q field", d.byteCountsName())
			return d, newInvalidFormatErrorf("missing required %s byte counts", d.layoutName())
		}
		s.warnf(module, "TIFF directory is missing required %q field, calculating from imagelength", d.byteCountsName())
		if err := s.estimateStripByteCounts(d); err != nil {
			s.errorf(module, "%v", err)
			return d, err
		}
	} else if d.NStrips == 1 && d.StripOffsets[0] != 0 && s.byteCountLooksBad(d) {
		s.warnf(module, "bogus %q field, ignoring and calculating from imagelength", d.byteCountsName())
		if err := s.estimateStripByteCounts(d); err != nil {
			s.errorf(module, "%v", err)
			return d, err
		}
	}

	if !s.opts.NoChop &&
		d.PlanarConfig == PlanarConfigContig &&
		d.NStrips == 1 &&
		d.Compression == CompressionNone &&
		!d.IsTiled() {
		s.chopUpSingleUncompressedStrip(d)
	}

	s.commitStrips(d)

	return d, nil
}

// commitStrips stores the final strip arrays and RowsPerStrip as tags.
func (s *Session) commitStrips(d *Directory) {
	reg := s.opts.Registry
	offTag, bcTag := TagStripOffsets, TagStripByteCounts
	if d.IsTiled() {
		offTag, bcTag = TagTileOffsets, TagTileByteCounts
	}

	// Tags not present in the file are committed as LONG with count values.
	commit := func(tag uint16, count int, v any) {
		ti := TagInfo{
			ID:        tag,
			Tag:       reg.TagName(tag),
			Namespace: d.Namespace,
			Type:      TypeLong,
			Count:     uint32(count),
			Value:     v,
		}
		for _, e := range d.Entries {
			if e.Tag == tag {
				ti.Type, ti.Count = e.Type, e.Count
				break
			}
		}
		if err := s.opts.HandleTag(ti); err != nil {
			d.addFieldError(&fieldError{Tag: tag, Name: ti.Tag, Err: err})
			return
		}
		d.Tags[tag] = ti
		d.set[tag] = true
	}

	commit(offTag, len(d.StripOffsets), d.StripOffsets)
	commit(bcTag, len(d.StripByteCounts), d.StripByteCounts)
	// Chopping may have set or changed RowsPerStrip.
	if d.set[TagRowsPerStrip] {
		if ti, ok := d.Tags[TagRowsPerStrip]; !ok || ti.Value != any(d.RowsPerStrip) {
			commit(TagRowsPerStrip, 1, d.RowsPerStrip)
		}
	}
}

// readCustomDirectory decodes a private IFD such as the EXIF IFD.
func (s *Session) readCustomDirectory(off uint32, reg *Registry) (*Directory, error) {
	entries, next, err := s.fetchDirectory(off)
	if err != nil {
		return nil, err
	}

	d := newDirectory(off, reg.Name())
	d.NextOffset = next
	d.Entries = entries

	for _, f := range s.prepareFields(d, reg, entries) {
		if f.ignore {
			continue
		}
		var err error
		switch f.e.Tag {
		case TagSubjectDistance:
			err = s.fetchSubjectDistance(d, f.fi, f.e)
		default:
			err = s.fetchNormalTag(d, f.fi, f.e)
		}
		if err != nil {
			s.fieldFailed(d, f.fi, err)
		}
	}

	return d, nil
}

func (d *Directory) layoutName() string {
	if d.IsTiled() {
		return "tiles"
	}
	return "strips"
}

func (d *Directory) offsetsName() string {
	if d.IsTiled() {
		return "TileOffsets"
	}
	return "StripOffsets"
}

func (d *Directory) byteCountsName() string {
	if d.IsTiled() {
		return "TileByteCounts"
	}
	return "StripByteCounts"
}
