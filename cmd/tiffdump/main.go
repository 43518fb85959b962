// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

// Command tiffdump prints the directories of a TIFF file.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/bep/tiffdir"
	"go.uber.org/zap"
)

func main() {
	var (
		quiet  bool
		noChop bool
	)
	flag.BoolVar(&quiet, "q", false, "do not log warnings")
	flag.BoolVar(&noChop, "nochop", false, "do not split large uncompressed strips")
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [-q] [-nochop] file\n", os.Args[0])
		os.Exit(2)
	}

	logger, err := newLogger(quiet)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	if err := dump(os.Stdout, flag.Arg(0), logger.Sugar(), noChop); err != nil {
		logger.Sugar().Fatalw("dump failed", "file", flag.Arg(0), "error", err)
	}
}

func newLogger(quiet bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true
	if quiet {
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}
	return cfg.Build()
}

func dump(w io.Writer, filename string, logger *zap.SugaredLogger, noChop bool) error {
	f, err := tiffdir.OpenFile(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	s, err := tiffdir.Open(tiffdir.Options{
		R:           f,
		Diagnostics: tiffdir.NewZapDiagnostics(logger),
		NoChop:      noChop,
	})
	if err != nil {
		return err
	}

	h := s.Header()
	fmt.Fprintf(w, "Byte order: %v\nMagic: %d\n", h.ByteOrder, h.Magic)

	for i := 0; ; i++ {
		d, err := s.ReadDirectory()
		if err != nil {
			if errors.Is(err, tiffdir.ErrNoMoreDirectories) {
				return nil
			}
			return err
		}
		printDirectory(w, fmt.Sprintf("Directory %d", i), d)

		for j, off := range d.SubIFDs {
			sub, err := s.ReadDirectoryAt(off, nil)
			if err != nil {
				logger.Warnw("cannot read SubIFD", "offset", off, "error", err)
				continue
			}
			printDirectory(w, fmt.Sprintf("SubIFD %d.%d", i, j), sub)
		}

		if d.ExifIFD != 0 {
			exif, err := s.ReadExifDirectory(d)
			if err != nil {
				logger.Warnw("cannot read EXIF IFD", "offset", d.ExifIFD, "error", err)
			} else {
				printDirectory(w, fmt.Sprintf("EXIF %d", i), exif)
			}
		}
	}
}

func printDirectory(w io.Writer, title string, d *tiffdir.Directory) {
	fmt.Fprintf(w, "\n%s at offset %d, %d entries:\n", title, d.Offset, len(d.Entries))
	for _, ti := range d.SortedTags() {
		fmt.Fprintf(w, "  %s (%d) %s %d: %s\n", ti.Tag, ti.ID, ti.Type, ti.Count, tiffdir.FormatValue(ti.Value))
	}
	if err := d.FieldErrors(); err != nil {
		fmt.Fprintf(w, "  Field errors: %v\n", err)
	}
	if d.Namespace == tiffdir.DefaultRegistry().Name() {
		fmt.Fprintf(w, "  %dx%d, %d strips, %d rows per strip\n", d.ImageWidth, d.ImageLength, d.NStrips, d.RowsPerStrip)
	}
}
