// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

//go:generate go run main.go
package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"

	"github.com/bep/tiffdir"
	"golang.org/x/image/tiff"
)

// fixture is a TIFF file written to testdata/images.
type fixture struct {
	name  string
	img   image.Image
	opts  *tiff.Options
	patch func(b []byte, order binary.ByteOrder, d *tiffdir.Directory) error
}

func main() {
	outDir := filepath.Join("..", "testdata", "images")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		log.Fatal(err)
	}

	fixtures := []fixture{
		{name: "gray.tif", img: gray(64, 256)},
		{name: "deflate.tif", img: gray(64, 256), opts: &tiff.Options{Compression: tiff.Deflate, Predictor: true}},
		{name: "nrgba.tif", img: image.NewNRGBA(image.Rect(0, 0, 16, 16))},
		{name: "zero_bytecount.tif", img: gray(64, 64), patch: zeroByteCount},
		{name: "loop.tif", img: gray(8, 8), patch: selfLoop},
	}

	for _, f := range fixtures {
		if err := write(outDir, f); err != nil {
			log.Fatalf("%s: %v", f.name, err)
		}
	}
}

func write(outDir string, f fixture) error {
	var buf bytes.Buffer
	if err := tiff.Encode(&buf, f.img, f.opts); err != nil {
		return err
	}
	b := buf.Bytes()

	if f.patch != nil {
		s, err := tiffdir.Open(tiffdir.Options{R: bytes.NewReader(b), NoChop: true})
		if err != nil {
			return err
		}
		d, err := s.ReadDirectory()
		if err != nil {
			return err
		}
		if err := f.patch(b, s.Header().ByteOrder, d); err != nil {
			return err
		}
	}

	// Make sure the result still decodes.
	if _, err := tiffdir.Decode(tiffdir.Options{R: bytes.NewReader(b)}); err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(outDir, f.name), b, 0o644)
}

func gray(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(i)
	}
	return img
}

// zeroByteCount sets the StripByteCounts value to 0.
func zeroByteCount(b []byte, _ binary.ByteOrder, d *tiffdir.Directory) error {
	for _, e := range d.Entries {
		if e.Tag != tiffdir.TagStripByteCounts {
			continue
		}
		if !e.IsInline() {
			return fmt.Errorf("expected a single inline byte count, got %d", e.Count)
		}
		clear(b[e.Pos+8 : e.Pos+12])
		return nil
	}
	return fmt.Errorf("no StripByteCounts entry")
}

// selfLoop points the next IFD offset back at the directory itself.
func selfLoop(b []byte, order binary.ByteOrder, d *tiffdir.Directory) error {
	pos := int(d.Offset) + 2 + len(d.Entries)*12
	if pos+4 > len(b) {
		return fmt.Errorf("next IFD offset out of range")
	}
	order.PutUint32(b[pos:], d.Offset)
	return nil
}
