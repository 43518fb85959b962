// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

// Package tiffdir decodes TIFF image file directories (IFDs).
//
// It resolves every entry's typed values, validates them against a tag
// registry and repairs missing or implausible strip metadata so the pixel
// data can be located safely.
package tiffdir

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Mode tells the decoder how the file is being accessed.
type Mode int

const (
	// ModeRead is used for files opened for reading. This is the default.
	ModeRead Mode = iota
	// ModeWrite is used for files that may still be written to.
	// Strip byte counts smaller than the image are then trusted.
	ModeWrite
)

const (
	defaultStripChopSize   = 8192
	defaultLimitTagSize    = 10 << 20
	defaultLimitNumEntries = 5000
)

// HandleTagFunc is the function that is called for each decoded tag.
// A non-nil error rejects the value; the tag is then skipped and the
// error recorded in the directory's FieldErrors.
type HandleTagFunc func(info TagInfo) error

// Options contains the options for Open and Decode.
type Options struct {
	// The Reader (typically a *os.File or a *File) to read from.
	R io.ReadSeeker

	// Size is the file size in bytes.
	// If not set, it is determined from R.
	Size int64

	// Mode is the access mode, see ModeRead and ModeWrite.
	Mode Mode

	// Registry describes the tags of the main IFD chain.
	// Default is DefaultRegistry().
	Registry *Registry

	// Diagnostics receives warnings and errors.
	// If not set, they are discarded.
	Diagnostics Diagnostics

	// HandleTag is called for every value committed to a directory.
	HandleTag HandleTagFunc

	// NoChop disables splitting single uncompressed strips into smaller strips.
	NoChop bool

	// StripChopSize is the approximate size in bytes of the strips
	// a single uncompressed strip is split into.
	// Default value is 8192.
	StripChopSize uint32

	// LimitTagSize is the maximum size in bytes of a tag value.
	// Default value is 10 MB.
	LimitTagSize uint32

	// LimitNumEntries is the maximum number of entries in one IFD.
	// Default value is 5000.
	LimitNumEntries uint16
}

// TagInfo contains information about a committed tag.
type TagInfo struct {
	// The tag ID.
	ID uint16
	// The tag name.
	Tag string
	// The tag namespace, the name of the registry, e.g. "TIFF" or "EXIF".
	Namespace string
	// The on-disk type.
	Type FieldType
	// The number of values on disk.
	Count uint32
	// The decoded value.
	Value any
}

// Header is the TIFF file header.
type Header struct {
	ByteOrder   binary.ByteOrder
	Magic       uint16
	FirstOffset uint32
}

const (
	headerSize  = 8
	magicTIFF   = 42
	magicBigTIF = 43
)

// Session holds the state of one open TIFF file.
// A Session is not safe for concurrent use.
type Session struct {
	opts   Options
	sr     *streamReader
	header Header

	// Offsets of all IFDs visited so far.
	visited    []uint32
	nextOffset uint32
}

// Open reads the TIFF header from opts.R and returns a Session
// positioned before the first directory.
func Open(opts Options) (s *Session, err error) {
	defer func() {
		if err != nil && isInvalidFormatErrorCandidate(err) {
			err = newInvalidFormatError(err)
		}
	}()

	if opts.R == nil {
		return nil, errors.New("no reader provided")
	}
	if opts.Registry == nil {
		opts.Registry = DefaultRegistry()
	}
	if opts.Diagnostics == nil {
		opts.Diagnostics = nopDiagnostics{}
	}
	if opts.HandleTag == nil {
		opts.HandleTag = func(TagInfo) error { return nil }
	}
	if opts.StripChopSize == 0 {
		opts.StripChopSize = defaultStripChopSize
	}
	if opts.LimitTagSize == 0 {
		opts.LimitTagSize = defaultLimitTagSize
	}
	if opts.LimitNumEntries == 0 {
		opts.LimitNumEntries = defaultLimitNumEntries
	}

	sr, err := newStreamReader(opts.R, opts.Size)
	if err != nil {
		return nil, err
	}

	s = &Session{
		opts: opts,
		sr:   sr,
	}
	if err := s.readHeader(); err != nil {
		return nil, err
	}
	s.nextOffset = s.header.FirstOffset
	return s, nil
}

func (s *Session) readHeader() error {
	var b [headerSize]byte
	if err := s.sr.readAt(b[:], 0); err != nil {
		return newInvalidFormatErrorf("cannot read TIFF header: %v", err)
	}

	var order binary.ByteOrder
	switch string(b[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return newInvalidFormatErrorf("not a TIFF file, bad byte order marker %q", b[:2])
	}

	magic := order.Uint16(b[2:4])
	switch magic {
	case magicTIFF:
	case magicBigTIF:
		return newInvalidFormatErrorf("BigTIFF files are not supported")
	default:
		return newInvalidFormatErrorf("not a TIFF file, bad version number %d (0x%x)", magic, magic)
	}

	s.sr.setByteOrder(order)
	s.header = Header{
		ByteOrder:   order,
		Magic:       magic,
		FirstOffset: order.Uint32(b[4:8]),
	}
	return nil
}

// Header returns the file header.
func (s *Session) Header() Header {
	return s.header
}

// Decode reads every directory in the IFD chain of opts.R.
// On failure the directories read so far are returned with the error.
func Decode(opts Options) (dirs []*Directory, err error) {
	s, err := Open(opts)
	if err != nil {
		return nil, err
	}
	for {
		d, err := s.ReadDirectory()
		if err != nil {
			if errors.Is(err, ErrNoMoreDirectories) {
				return dirs, nil
			}
			return dirs, err
		}
		dirs = append(dirs, d)
	}
}

func errFromRecover(r any) error {
	if r == nil {
		return nil
	}
	if err, ok := r.(error); ok {
		if isInvalidFormatErrorCandidate(err) {
			return newInvalidFormatError(err)
		}
		return err
	}
	return fmt.Errorf("unknown panic: %v", r)
}
