// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package tiffdir

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/zlib"
	exiftiff "github.com/rwcarlsen/goexif/tiff"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/image/tiff"
)

func TestOpenHeader(t *testing.T) {
	c := qt.New(t)

	for _, test := range []struct {
		name string
		b    []byte
		err  string
	}{
		{"Bad byte order", []byte("XX\x2a\x00\x08\x00\x00\x00"), `.*bad byte order marker "XX"`},
		{"BigTIFF", []byte("II\x2b\x00\x08\x00\x00\x00"), ".*BigTIFF files are not supported"},
		{"Bad version", []byte("MM\x00\x29\x00\x00\x00\x08"), `.*bad version number 41 \(0x29\)`},
		{"Short", []byte("II\x2a\x00"), ".*cannot read TIFF header.*"},
		{"Empty", nil, ".*cannot read TIFF header.*"},
	} {
		c.Run(test.name, func(c *qt.C) {
			_, err := Open(Options{R: bytes.NewReader(test.b)})
			c.Assert(err, qt.ErrorMatches, test.err)
			c.Assert(IsInvalidFormat(err), qt.IsTrue)

			_, err = Decode(Options{R: bytes.NewReader(test.b)})
			c.Assert(IsInvalidFormat(err), qt.IsTrue)
		})
	}

	c.Run("No reader", func(c *qt.C) {
		_, err := Open(Options{})
		c.Assert(err, qt.ErrorMatches, "no reader provided")
		c.Assert(IsInvalidFormat(err), qt.IsFalse)
	})

	c.Run("Header", func(c *qt.C) {
		for _, order := range byteOrders {
			b := newTIFFBuilder(order)
			off := b.ifd(b.longs(TagImageWidth, 1))
			s, _ := openTestSession(c, b.bytes(), Options{})
			h := s.Header()
			c.Assert(h.ByteOrder, qt.Equals, order)
			c.Assert(h.Magic, qt.Equals, uint16(42))
			c.Assert(h.FirstOffset, qt.Equals, off)
		}
	})

	c.Run("No directories", func(c *qt.C) {
		b := newTIFFBuilder(binary.LittleEndian)
		dirs, err := Decode(Options{R: bytes.NewReader(b.bytes())})
		c.Assert(err, qt.IsNil)
		c.Assert(dirs, qt.HasLen, 0)
	})
}

func encodeTIFF(c *qt.C, img image.Image, opts *tiff.Options) []byte {
	c.Helper()
	var buf bytes.Buffer
	c.Assert(tiff.Encode(&buf, img, opts), qt.IsNil)
	return buf.Bytes()
}

func newTestGray(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(i * 7)
	}
	return img
}

func decodeAll(c *qt.C, b []byte, opts Options) ([]*Directory, *recorder) {
	c.Helper()
	rec := &recorder{}
	opts.R = bytes.NewReader(b)
	opts.Diagnostics = rec
	dirs, err := Decode(opts)
	c.Assert(err, qt.IsNil)
	return dirs, rec
}

func TestDecodeImageTIFF(t *testing.T) {
	c := qt.New(t)

	c.Run("Gray", func(c *qt.C) {
		img := newTestGray(64, 256)
		b := encodeTIFF(c, img, nil)

		dirs, rec := decodeAll(c, b, Options{})
		c.Assert(rec.warnings, qt.HasLen, 0)
		c.Assert(rec.errors, qt.HasLen, 0)
		c.Assert(dirs, qt.HasLen, 1)

		d := dirs[0]
		c.Assert(d.ImageWidth, qt.Equals, uint32(64))
		c.Assert(d.ImageLength, qt.Equals, uint32(256))
		c.Assert(d.BitsPerSample, qt.Equals, uint16(8))
		c.Assert(d.Photometric, qt.Equals, uint16(PhotometricMinIsBlack))
		c.Assert(d.FieldErrors(), qt.IsNil)

		// The single 16 kB strip is chopped in two.
		c.Assert(d.NStrips, qt.Equals, uint32(2))
		c.Assert(d.RowsPerStrip, qt.Equals, uint32(128))

		var pix []byte
		for i, off := range d.StripOffsets {
			pix = append(pix, b[off:off+d.StripByteCounts[i]]...)
		}
		c.Assert(pix, qt.DeepEquals, img.Pix)

		ti, ok := d.TagByName("XResolution")
		c.Assert(ok, qt.IsTrue)
		c.Assert(ti.Value, qt.Equals, float64(72))
		c.Assert(ti.Namespace, qt.Equals, "TIFF")
	})

	c.Run("Deflate", func(c *qt.C) {
		img := newTestGray(64, 256)
		b := encodeTIFF(c, img, &tiff.Options{Compression: tiff.Deflate})

		dirs, rec := decodeAll(c, b, Options{})
		c.Assert(rec.warnings, qt.HasLen, 0)
		d := dirs[0]
		c.Assert(d.Compression, qt.Equals, uint16(CompressionDeflate))
		c.Assert(d.NStrips, qt.Equals, uint32(1))

		off, n := d.StripOffsets[0], d.StripByteCounts[0]
		r, err := zlib.NewReader(bytes.NewReader(b[off : off+n]))
		c.Assert(err, qt.IsNil)
		pix, err := io.ReadAll(r)
		c.Assert(err, qt.IsNil)
		c.Assert(pix, qt.DeepEquals, img.Pix)
	})

	c.Run("NRGBA", func(c *qt.C) {
		img := image.NewNRGBA(image.Rect(0, 0, 10, 10))
		b := encodeTIFF(c, img, nil)

		dirs, rec := decodeAll(c, b, Options{})
		c.Assert(rec.warnings, qt.HasLen, 0)
		d := dirs[0]
		c.Assert(d.SamplesPerPixel, qt.Equals, uint16(4))
		c.Assert(d.BitsPerSample, qt.Equals, uint16(8))
		c.Assert(d.Photometric, qt.Equals, uint16(PhotometricRGB))
		c.Assert(d.ExtraSamples, qt.DeepEquals, []uint16{2})
		c.Assert(d.StripByteCounts, qt.DeepEquals, []uint64{400})
	})

	c.Run("Paletted", func(c *qt.C) {
		img := image.NewPaletted(image.Rect(0, 0, 8, 8), color.Palette{color.Black, color.White})
		b := encodeTIFF(c, img, nil)

		dirs, rec := decodeAll(c, b, Options{})
		c.Assert(rec.warnings, qt.HasLen, 0)
		d := dirs[0]
		c.Assert(d.Photometric, qt.Equals, uint16(PhotometricPalette))
		v, ok := d.Value(TagColorMap)
		c.Assert(ok, qt.IsTrue)
		cm := v.([]uint16)
		c.Assert(len(cm)%3, qt.Equals, 0)
		c.Assert(cm[0], qt.Equals, uint16(0))
		c.Assert(cm[1], qt.Equals, uint16(0xffff))
	})
}

// toUint64s flattens the integer values we commit.
func toUint64s(v any) []uint64 {
	switch vv := v.(type) {
	case uint16:
		return []uint64{uint64(vv)}
	case uint32:
		return []uint64{uint64(vv)}
	case []uint16:
		var s []uint64
		for _, x := range vv {
			s = append(s, uint64(x))
		}
		return s
	case []uint32:
		var s []uint64
		for _, x := range vv {
			s = append(s, uint64(x))
		}
		return s
	case []uint64:
		return vv
	case CountedArray:
		return toUint64s(vv.Values)
	}
	return nil
}

func TestDecodeMatchesGoexif(t *testing.T) {
	c := qt.New(t)

	for _, opts := range []*tiff.Options{nil, {Compression: tiff.Deflate, Predictor: true}} {
		b := encodeTIFF(c, newTestGray(32, 32), opts)

		want, err := exiftiff.Decode(bytes.NewReader(b))
		c.Assert(err, qt.IsNil)

		dirs, _ := decodeAll(c, b, Options{NoChop: true})
		c.Assert(dirs, qt.HasLen, len(want.Dirs))
		d := dirs[0]

		c.Assert(want.Dirs[0].Tags, qt.HasLen, len(d.Tags))
		for _, tag := range want.Dirs[0].Tags {
			ti, ok := d.Tags[tag.Id]
			c.Assert(ok, qt.IsTrue, qt.Commentf("tag %d", tag.Id))
			c.Assert(uint16(ti.Type), qt.Equals, uint16(tag.Type))
			c.Assert(ti.Count, qt.Equals, tag.Count)

			switch tag.Format() {
			case exiftiff.IntVal:
				got := toUint64s(ti.Value)
				c.Assert(got, qt.HasLen, int(tag.Count))
				for i := range got {
					n, err := tag.Int(i)
					c.Assert(err, qt.IsNil)
					c.Assert(got[i], qt.Equals, uint64(n), qt.Commentf("tag %d", tag.Id))
				}
			case exiftiff.RatVal:
				num, den, err := tag.Rat2(0)
				c.Assert(err, qt.IsNil)
				c.Assert(ti.Value, qt.Equals, float64(num)/float64(den))
			}
		}
	}
}

func TestZapDiagnostics(t *testing.T) {
	c := qt.New(t)

	core, logs := observer.New(zapcore.WarnLevel)
	logger := zap.New(core).Sugar()

	b := newTIFFBuilder(binary.BigEndian)
	off := b.data(make([]byte, 5000))
	b.ifd(
		b.longs(TagImageWidth, 50),
		b.longs(TagImageLength, 100),
		b.longs(TagStripOffsets, off),
		b.longs(TagStripByteCounts, 5000),
		b.shorts(60000, 1),
	)

	dirs, err := Decode(Options{R: bytes.NewReader(b.bytes()), Diagnostics: NewZapDiagnostics(logger)})
	c.Assert(err, qt.IsNil)
	c.Assert(dirs, qt.HasLen, 1)

	type logEntry struct {
		Module string
		Msg    string
	}
	var got []logEntry
	for _, e := range logs.All() {
		c.Assert(e.Level, qt.Equals, zapcore.WarnLevel)
		got = append(got, logEntry{Module: e.ContextMap()["module"].(string), Msg: e.Message})
	}
	c.Assert(got, qt.DeepEquals, []logEntry{
		{"TIFF", "unknown field with tag 60000 (0xea60) encountered"},
		{"ReadDirectory", "photometric interpretation missing, assuming 1"},
	})
	c.Assert(logs.FilterMessageSnippet("photometric").Len(), qt.Equals, 1)
}

func TestDiagnosticsFuncs(t *testing.T) {
	c := qt.New(t)

	var warnings []string
	diag := DiagnosticsFuncs{
		WarningFunc: func(module, msg string) {
			warnings = append(warnings, module+": "+msg)
		},
	}
	// A nil ErrorFunc is allowed.
	diag.Error("m", "ignored")

	b := newTIFFBuilder(binary.LittleEndian)
	off := b.data(make([]byte, 4))
	b.ifd(
		b.longs(TagImageWidth, 2),
		b.longs(TagImageLength, 2),
		b.shorts(TagBitsPerSample, 8),
		b.shorts(TagPhotometricInterpretation, PhotometricMinIsBlack),
		b.longs(TagStripOffsets, off),
		b.longs(TagStripByteCounts, 4),
		b.shorts(60000, 1),
	)
	_, err := Decode(Options{R: bytes.NewReader(b.bytes()), Diagnostics: diag})
	c.Assert(err, qt.IsNil)
	c.Assert(warnings, qt.DeepEquals, []string{"TIFF: unknown field with tag 60000 (0xea60) encountered"})
}

func TestOpenFile(t *testing.T) {
	c := qt.New(t)

	img := newTestGray(16, 16)
	filename := filepath.Join(c.TempDir(), "gray.tif")
	c.Assert(os.WriteFile(filename, encodeTIFF(c, img, nil), 0o644), qt.IsNil)

	f, err := OpenFile(filename)
	c.Assert(err, qt.IsNil)
	defer f.Close()

	dirs, err := Decode(Options{R: f})
	c.Assert(err, qt.IsNil)
	c.Assert(dirs, qt.HasLen, 1)
	c.Assert(dirs[0].ImageWidth, qt.Equals, uint32(16))
	c.Assert(dirs[0].StripByteCounts, qt.DeepEquals, []uint64{256})

	_, err = OpenFile(filepath.Join(c.TempDir(), "nope.tif"))
	c.Assert(err, qt.IsNotNil)
}

func TestSortedTags(t *testing.T) {
	c := qt.New(t)

	dirs, _ := decodeAll(c, encodeTIFF(c, newTestGray(8, 8), nil), Options{})
	var ids []uint16
	for _, ti := range dirs[0].SortedTags() {
		ids = append(ids, ti.ID)
	}
	want := []uint16{256, 257, 258, 259, 262, 273, 277, 278, 279, 282, 283, 296}
	c.Assert(cmp.Diff(want, ids), qt.Equals, "")
}

func TestDecodeFixtures(t *testing.T) {
	c := qt.New(t)

	decodeFile := func(c *qt.C, filename string) ([]*Directory, *recorder) {
		c.Helper()
		return decodeAll(c, readTestDataFileAll(c, filename), Options{})
	}

	c.Run("gray.tif", func(c *qt.C) {
		dirs, rec := decodeFile(c, "gray.tif")
		c.Assert(rec.warnings, qt.HasLen, 0)
		c.Assert(dirs, qt.HasLen, 1)
		c.Assert(dirs[0].ImageWidth, qt.Equals, uint32(64))
		c.Assert(dirs[0].NStrips, qt.Equals, uint32(2))
		c.Assert(dirs[0].StripByteCounts, qt.DeepEquals, []uint64{8192, 8192})
	})

	c.Run("deflate.tif", func(c *qt.C) {
		b := readTestDataFileAll(c, "deflate.tif")
		dirs, rec := decodeAll(c, b, Options{})
		c.Assert(rec.warnings, qt.HasLen, 0)
		d := dirs[0]
		c.Assert(d.Compression, qt.Equals, uint16(CompressionDeflate))
		c.Assert(d.NStrips, qt.Equals, uint32(1))
		v, _ := d.Value(TagPredictor)
		c.Assert(v, qt.Equals, uint16(2))

		off, n := d.StripOffsets[0], d.StripByteCounts[0]
		r, err := zlib.NewReader(bytes.NewReader(b[off : off+n]))
		c.Assert(err, qt.IsNil)
		pix, err := io.ReadAll(r)
		c.Assert(err, qt.IsNil)
		c.Assert(pix, qt.HasLen, 64*256)

		// Undo the horizontal predictor.
		for y := 0; y < 256; y++ {
			row := pix[y*64 : (y+1)*64]
			for x := 1; x < len(row); x++ {
				row[x] += row[x-1]
			}
		}
		for i, p := range pix {
			c.Assert(p, qt.Equals, uint8(i), qt.Commentf("pixel %d", i))
		}
	})

	c.Run("nrgba.tif", func(c *qt.C) {
		dirs, rec := decodeFile(c, "nrgba.tif")
		c.Assert(rec.warnings, qt.HasLen, 0)
		d := dirs[0]
		c.Assert(d.SamplesPerPixel, qt.Equals, uint16(4))
		c.Assert(d.ExtraSamples, qt.DeepEquals, []uint16{2})
		c.Assert(d.StripByteCounts, qt.DeepEquals, []uint64{1024})
	})

	c.Run("zero_bytecount.tif", func(c *qt.C) {
		dirs, rec := decodeFile(c, "zero_bytecount.tif")
		c.Assert(rec.warnings, qt.DeepEquals, []string{
			`bogus "StripByteCounts" field, ignoring and calculating from imagelength`,
		})
		c.Assert(dirs[0].StripByteCounts, qt.DeepEquals, []uint64{64 * 64})
	})

	c.Run("loop.tif", func(c *qt.C) {
		dirs, rec := decodeFile(c, "loop.tif")
		c.Assert(dirs, qt.HasLen, 1)
		c.Assert(rec.errors, qt.HasLen, 0)
		c.Assert(dirs[0].NextOffset, qt.Equals, dirs[0].Offset)
	})
}
