// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package tiffdir

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"golang.org/x/exp/mmap"
)

type byteBuffer struct {
	b []byte
}

var bufferPool = &sync.Pool{
	New: func() any {
		return &byteBuffer{
			b: make([]byte, 1024),
		}
	},
}

func getBuffer(length int) *byteBuffer {
	b := bufferPool.Get().(*byteBuffer)
	if length > cap(b.b) {
		b.b = make([]byte, length)
	}
	b.b = b.b[:length]
	return b
}

func putBuffer(b *byteBuffer) {
	b.b = b.b[:0]
	bufferPool.Put(b)
}

// streamReader is the byte stream all directory reads go through.
// All reads are absolute: seek, then read exactly n bytes.
// Note that this is not thread safe.
type streamReader struct {
	r         io.ReadSeeker
	byteOrder binary.ByteOrder
	size      int64

	// Whether multi-byte values must be swabbed into host order.
	swab bool

	buf [8]byte
}

func newStreamReader(r io.ReadSeeker, size int64) (*streamReader, error) {
	if size <= 0 {
		if sz, ok := r.(interface{ Size() int64 }); ok {
			size = sz.Size()
		} else {
			end, err := r.Seek(0, io.SeekEnd)
			if err != nil {
				return nil, fmt.Errorf("determine file size: %w", err)
			}
			size = end
		}
	}
	return &streamReader{
		r:         r,
		byteOrder: binary.BigEndian,
		size:      size,
	}, nil
}

func (e *streamReader) setByteOrder(order binary.ByteOrder) {
	e.byteOrder = order
	e.swab = order != hostOrder
}

func (e *streamReader) fileSize() int64 {
	return e.size
}

func (e *streamReader) seek(pos int64) error {
	if pos < 0 {
		return newInvalidFormatErrorf("negative offset %d", pos)
	}
	_, err := e.r.Seek(pos, io.SeekStart)
	return err
}

func (e *streamReader) readFull(b []byte) error {
	n, err := io.ReadFull(e.r, b)
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return err
	}
	if n != len(b) {
		return errShortRead
	}
	return nil
}

// readAt seeks to pos and reads exactly len(b) bytes.
func (e *streamReader) readAt(b []byte, pos int64) error {
	if err := e.seek(pos); err != nil {
		return err
	}
	return e.readFull(b)
}

func (e *streamReader) read2() (uint16, error) {
	const n = 2
	if err := e.readFull(e.buf[:n]); err != nil {
		return 0, err
	}
	return e.byteOrder.Uint16(e.buf[:n]), nil
}

func (e *streamReader) read4() (uint32, error) {
	const n = 4
	if err := e.readFull(e.buf[:n]); err != nil {
		return 0, err
	}
	return e.byteOrder.Uint32(e.buf[:n]), nil
}

// File is a read-only memory mapped TIFF file.
type File struct {
	*io.SectionReader
	m *mmap.ReaderAt
}

// OpenFile memory maps the named file for reading.
// It's important to call Close when done.
func OpenFile(filename string) (*File, error) {
	m, err := mmap.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("mmap %q: %w", filename, err)
	}
	return &File{
		SectionReader: io.NewSectionReader(m, 0, int64(m.Len())),
		m:             m,
	}, nil
}

// Close unmaps the file.
func (f *File) Close() error {
	return f.m.Close()
}
