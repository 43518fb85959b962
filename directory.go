// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package tiffdir

import (
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/hashicorp/go-multierror"
)

// rowsPerStripUnset is the RowsPerStrip value of a directory without the tag.
const rowsPerStripUnset = math.MaxUint32

// Directory is the decoded record of one IFD.
type Directory struct {
	// Offset is the file offset of the IFD.
	Offset uint32
	// NextOffset is the offset of the next IFD in the chain, 0 if none.
	NextOffset uint32
	// Namespace is the name of the registry used, e.g. "TIFF" or "EXIF".
	Namespace string

	// Entries holds the raw entries as read from the file.
	Entries []Entry

	ImageWidth  uint32
	ImageLength uint32
	ImageDepth  uint32
	TileWidth   uint32
	TileLength  uint32
	TileDepth   uint32

	BitsPerSample   uint16
	SampleFormat    uint16
	Compression     uint16
	Photometric     uint16
	SamplesPerPixel uint16
	PlanarConfig    uint16
	ExtraSamples    []uint16

	// YCbCrSubsampling holds the horizontal and vertical subsampling factors.
	YCbCrSubsampling [2]uint16

	// RowsPerStrip is math.MaxUint32 if not set.
	RowsPerStrip uint32

	// NStrips is the number of strips (or tiles) in the image.
	NStrips uint32
	// StripsPerImage is NStrips divided by SamplesPerPixel for separate planes.
	StripsPerImage uint32

	// StripOffsets and StripByteCounts hold one value per strip (or tile).
	StripOffsets    []uint64
	StripByteCounts []uint64

	SMinSampleValue     float64
	SMaxSampleValue     float64
	ReferenceBlackWhite []float64

	// SubIFDs holds the offsets of child IFDs, if any.
	SubIFDs []uint32
	// ExifIFD is the offset of the EXIF private IFD, 0 if none.
	ExifIFD uint32
	// GPSIFD is the offset of the GPS private IFD, 0 if none.
	GPSIFD uint32

	// Tags holds every committed value keyed by tag id.
	Tags map[uint16]TagInfo

	set    map[uint16]bool
	errors *multierror.Error

	// Whether the strip (or tile) arrays have been loaded or estimated.
	haveOffsets    bool
	haveByteCounts bool
}

func newDirectory(offset uint32, namespace string) *Directory {
	return &Directory{
		Offset:           offset,
		Namespace:        namespace,
		BitsPerSample:    1,
		SampleFormat:     1,
		Compression:      CompressionNone,
		SamplesPerPixel:  1,
		PlanarConfig:     PlanarConfigContig,
		YCbCrSubsampling: [2]uint16{2, 2},
		RowsPerStrip:     rowsPerStripUnset,
		ImageDepth:       1,
		TileDepth:        1,
		Tags:             make(map[uint16]TagInfo),
		set:              make(map[uint16]bool),
	}
}

// IsSet reports whether tag has been committed to the directory.
func (d *Directory) IsSet(tag uint16) bool {
	return d.set[tag]
}

// Value returns the committed value of tag.
func (d *Directory) Value(tag uint16) (any, bool) {
	ti, ok := d.Tags[tag]
	if !ok {
		return nil, false
	}
	return ti.Value, true
}

// TagByName returns the committed tag with the given display name.
func (d *Directory) TagByName(name string) (TagInfo, bool) {
	for _, ti := range d.Tags {
		if ti.Tag == name {
			return ti, true
		}
	}
	return TagInfo{}, false
}

// SortedTags returns the committed tags sorted by id.
func (d *Directory) SortedTags() []TagInfo {
	ids := slices.Sorted(maps.Keys(d.Tags))
	tags := make([]TagInfo, len(ids))
	for i, id := range ids {
		tags[i] = d.Tags[id]
	}
	return tags
}

// FieldErrors returns the per-field failures collected while decoding,
// or nil if there were none.
func (d *Directory) FieldErrors() error {
	return d.errors.ErrorOrNil()
}

func (d *Directory) addFieldError(err error) {
	d.errors = multierror.Append(d.errors, err)
}

// IsTiled reports whether the image is organized in tiles.
func (d *Directory) IsTiled() bool {
	return d.set[TagTileWidth] || d.set[TagTileLength]
}

// setField validates v and stores it in the directory.
// It is the store all decoded values are committed through.
func (d *Directory) setField(s *Session, fi FieldInfo, e Entry, v any) error {
	if err := d.setKnownField(s, fi.Tag, v); err != nil {
		return err
	}

	ti := TagInfo{
		ID:        fi.Tag,
		Tag:       fi.Name,
		Namespace: d.Namespace,
		Type:      e.Type,
		Count:     e.Count,
		Value:     v,
	}
	if err := s.opts.HandleTag(ti); err != nil {
		return err
	}

	d.Tags[fi.Tag] = ti
	d.set[fi.Tag] = true
	return nil
}

func (d *Directory) setKnownField(s *Session, tag uint16, v any) error {
	switch tag {
	case TagImageWidth:
		return setUint(&d.ImageWidth, v)
	case TagImageLength:
		return setUint(&d.ImageLength, v)
	case TagImageDepth:
		return setUint(&d.ImageDepth, v)
	case TagTileWidth, TagTileLength:
		var n uint32
		if err := setUint(&n, v); err != nil {
			return err
		}
		what := "width"
		if tag == TagTileLength {
			what = "length"
		}
		if n%16 != 0 {
			s.warnf(d.Namespace, "nonstandard tile %s %d, convert file", what, n)
		}
		if tag == TagTileWidth {
			d.TileWidth = n
		} else {
			d.TileLength = n
		}
	case TagTileDepth:
		return setUint(&d.TileDepth, v)
	case TagRowsPerStrip:
		var n uint32
		if err := setUint(&n, v); err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("bad value %d for RowsPerStrip", n)
		}
		d.RowsPerStrip = n
	case TagSamplesPerPixel:
		var n uint32
		if err := setUint(&n, v); err != nil {
			return err
		}
		if n == 0 || n > math.MaxUint16 {
			return fmt.Errorf("bad value %d for SamplesPerPixel", n)
		}
		d.SamplesPerPixel = uint16(n)
	case TagPlanarConfiguration:
		var n uint32
		if err := setUint(&n, v); err != nil {
			return err
		}
		if n != PlanarConfigContig && n != PlanarConfigSeparate {
			return fmt.Errorf("bad value %d for PlanarConfiguration", n)
		}
		d.PlanarConfig = uint16(n)
	case TagCompression:
		return setUint16(&d.Compression, v)
	case TagPhotometricInterpretation:
		return setUint16(&d.Photometric, v)
	case TagBitsPerSample:
		return setUint16(&d.BitsPerSample, v)
	case TagSampleFormat:
		var n uint16
		if err := setUint16(&n, v); err != nil {
			return err
		}
		if n < 1 || n > 6 {
			return fmt.Errorf("bad value %d for SampleFormat", n)
		}
		d.SampleFormat = n
	case TagSMinSampleValue:
		f, ok := v.(float64)
		if !ok {
			return fmt.Errorf("expected float64, got %T", v)
		}
		d.SMinSampleValue = f
	case TagSMaxSampleValue:
		f, ok := v.(float64)
		if !ok {
			return fmt.Errorf("expected float64, got %T", v)
		}
		d.SMaxSampleValue = f
	case TagExtraSamples:
		var vals []uint16
		switch vv := v.(type) {
		case CountedArray:
			vals, _ = vv.Values.([]uint16)
		case uint16:
			vals = []uint16{vv}
		}
		if len(vals) > int(d.SamplesPerPixel) {
			return fmt.Errorf("bad value %d for ExtraSamples", len(vals))
		}
		d.ExtraSamples = vals
	case TagYCbCrSubsampling:
		p, ok := v.([2]uint16)
		if !ok {
			return fmt.Errorf("expected pair, got %T", v)
		}
		d.YCbCrSubsampling = p
	case TagReferenceBlackWhite:
		f, ok := v.([]float64)
		if !ok {
			return fmt.Errorf("expected []float64, got %T", v)
		}
		d.ReferenceBlackWhite = f
	case TagSubIFDs:
		switch vv := v.(type) {
		case CountedArray:
			d.SubIFDs, _ = vv.Values.([]uint32)
		case uint32:
			d.SubIFDs = []uint32{vv}
		}
	case TagExifIFD:
		return setUint(&d.ExifIFD, v)
	case TagGPSIFD:
		return setUint(&d.GPSIFD, v)
	}
	return nil
}

func setUint(dst *uint32, v any) error {
	switch vv := v.(type) {
	case uint32:
		*dst = vv
	case uint16:
		*dst = uint32(vv)
	default:
		return fmt.Errorf("expected an unsigned integer, got %T", v)
	}
	return nil
}

func setUint16(dst *uint16, v any) error {
	var n uint32
	if err := setUint(&n, v); err != nil {
		return err
	}
	if n > math.MaxUint16 {
		return fmt.Errorf("value %d out of range", n)
	}
	*dst = uint16(n)
	return nil
}

// ScanlineSize returns the number of bytes in one decoded row.
func (d *Directory) ScanlineSize() uint64 {
	bits := uint64(d.BitsPerSample) * uint64(d.ImageWidth)
	if d.PlanarConfig == PlanarConfigContig {
		bits *= uint64(d.SamplesPerPixel)
	}
	return howMany8(bits)
}

// VStripSize returns the number of bytes in a strip of nrows rows.
func (d *Directory) VStripSize(nrows uint32) uint64 {
	if nrows == rowsPerStripUnset {
		nrows = d.ImageLength
	}
	if d.PlanarConfig == PlanarConfigContig && d.Photometric == PhotometricYCbCr && !d.IsTiled() {
		return d.ycbcrSize(uint64(d.ImageWidth), uint64(nrows))
	}
	return uint64(nrows) * d.ScanlineSize()
}

// StripSize returns the number of bytes in a full strip.
func (d *Directory) StripSize() uint64 {
	rps := d.RowsPerStrip
	if rps > d.ImageLength {
		rps = d.ImageLength
	}
	return d.VStripSize(rps)
}

// TileRowSize returns the number of bytes in one row of a tile.
func (d *Directory) TileRowSize() uint64 {
	if d.TileLength == 0 || d.TileWidth == 0 {
		return 0
	}
	bits := uint64(d.BitsPerSample) * uint64(d.TileWidth)
	if d.PlanarConfig == PlanarConfigContig {
		bits *= uint64(d.SamplesPerPixel)
	}
	return howMany8(bits)
}

// VTileSize returns the number of bytes in a tile of nrows rows.
func (d *Directory) VTileSize(nrows uint32) uint64 {
	if d.TileLength == 0 || d.TileWidth == 0 || d.TileDepth == 0 {
		return 0
	}
	var size uint64
	if d.PlanarConfig == PlanarConfigContig && d.Photometric == PhotometricYCbCr {
		size = d.ycbcrSize(uint64(d.TileWidth), uint64(nrows))
	} else {
		size = uint64(nrows) * d.TileRowSize()
	}
	return size * uint64(d.TileDepth)
}

// TileSize returns the number of bytes in a full tile.
func (d *Directory) TileSize() uint64 {
	return d.VTileSize(d.TileLength)
}

// ycbcrSize is the packed size of subsampled YCbCr data: each sampling
// area holds its luma samples followed by one Cb and one Cr sample.
func (d *Directory) ycbcrSize(width, nrows uint64) uint64 {
	hs, vs := uint64(d.YCbCrSubsampling[0]), uint64(d.YCbCrSubsampling[1])
	if hs == 0 || vs == 0 {
		return nrows * d.ScanlineSize()
	}
	w := roundUp(width, hs)
	scanline := howMany8(w * uint64(d.BitsPerSample))
	nrows = roundUp(nrows, vs)
	size := nrows * scanline
	return size + 2*(size/(hs*vs))
}

// NumberOfStrips returns the number of strips implied by the image geometry.
func (d *Directory) NumberOfStrips() uint32 {
	var n uint64
	if d.RowsPerStrip == rowsPerStripUnset {
		n = 1
	} else {
		n = howMany(uint64(d.ImageLength), uint64(d.RowsPerStrip))
	}
	if d.PlanarConfig == PlanarConfigSeparate {
		n *= uint64(d.SamplesPerPixel)
	}
	return clamp32(n)
}

// NumberOfTiles returns the number of tiles implied by the image geometry.
func (d *Directory) NumberOfTiles() uint32 {
	dx, dy, dz := d.TileWidth, d.TileLength, d.TileDepth
	if !d.set[TagTileWidth] {
		dx = d.ImageWidth
	}
	if !d.set[TagTileLength] {
		dy = d.ImageLength
	}
	if dx == 0 || dy == 0 || dz == 0 {
		return 0
	}
	n := howMany(uint64(d.ImageWidth), uint64(dx)) *
		howMany(uint64(d.ImageLength), uint64(dy)) *
		howMany(uint64(d.ImageDepth), uint64(dz))
	if d.PlanarConfig == PlanarConfigSeparate {
		n *= uint64(d.SamplesPerPixel)
	}
	return clamp32(n)
}

func clamp32(n uint64) uint32 {
	if n > math.MaxUint32 {
		return 0
	}
	return uint32(n)
}

func howMany(x, y uint64) uint64 {
	if y == 0 {
		return 0
	}
	return (x + (y - 1)) / y
}

func howMany8(x uint64) uint64 {
	if x&0x07 != 0 {
		return (x >> 3) + 1
	}
	return x >> 3
}

func roundUp(x, y uint64) uint64 {
	return howMany(x, y) * y
}
