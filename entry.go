// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package tiffdir

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// The size of a classic TIFF directory entry.
const entrySize = 12

var errZeroCount = errors.New("zero value count")

// Entry is a raw directory entry.
// A tag is represented in 12 bytes:
//   - 2 bytes for the tag ID
//   - 2 bytes for the data type
//   - 4 bytes for the number of data values of the specified type
//   - 4 bytes for the value itself, if it fits, otherwise for a pointer to another location where the data may be found.
type Entry struct {
	Tag   uint16
	Type  FieldType
	Count uint32

	// Slot holds the last 4 bytes of the entry as stored in the file.
	Slot [4]byte

	// Pos is the file offset of the entry itself.
	Pos int64
}

func parseEntry(b []byte, order binary.ByteOrder, pos int64) Entry {
	e := Entry{
		Tag:   order.Uint16(b[0:2]),
		Type:  FieldType(order.Uint16(b[2:4])),
		Count: order.Uint32(b[4:8]),
		Pos:   pos,
	}
	copy(e.Slot[:], b[8:12])
	return e
}

// Offset interprets the value slot as a file offset.
func (e Entry) Offset(order binary.ByteOrder) uint32 {
	return order.Uint32(e.Slot[:])
}

// Size returns the total byte size of the entry's values.
func (e Entry) Size() (uint32, error) {
	return e.Type.dataSize(e.Count)
}

// IsInline reports whether the values are stored in the value slot.
func (e Entry) IsInline() bool {
	n, err := e.Size()
	return err == nil && n <= 4
}

// withData calls f with the entry's value bytes swabbed into host byte order.
// The buffer is only valid for the duration of the call.
func (s *Session) withData(e Entry, f func(b []byte) error) error {
	if e.Count == 0 {
		return errZeroCount
	}
	n, err := e.Size()
	if err != nil {
		return err
	}
	if n > s.opts.LimitTagSize {
		return fmt.Errorf("%w: %d bytes exceeds limit %d", ErrTooLarge, n, s.opts.LimitTagSize)
	}
	info := e.Type.info()

	if n <= 4 {
		slot := e.Slot
		b := slot[:n]
		if s.sr.swab && info.swab != nil {
			info.swab(b)
		}
		return f(b)
	}

	off := int64(e.Offset(s.sr.byteOrder))
	if off+int64(n) > s.sr.fileSize() {
		return newInvalidFormatErrorf("value of %d bytes at offset %d is past end of file", n, off)
	}

	buf := getBuffer(int(n))
	defer putBuffer(buf)

	if err := s.sr.readAt(buf.b, off); err != nil {
		return err
	}
	if s.sr.swab && info.swab != nil {
		info.swab(buf.b)
	}
	return f(buf.b)
}

func (s *Session) fetchBytes(e Entry) ([]byte, error) {
	if e.Type.Width() != 1 {
		return nil, fmt.Errorf("cannot read %s as bytes", e.Type)
	}
	var v []byte
	err := s.withData(e, func(b []byte) error {
		v = make([]byte, len(b))
		copy(v, b)
		return nil
	})
	return v, err
}

func (s *Session) fetchShorts(e Entry) ([]uint16, error) {
	if e.Type.Width() != 2 {
		return nil, fmt.Errorf("cannot read %s as shorts", e.Type)
	}
	var v []uint16
	err := s.withData(e, func(b []byte) error {
		v = make([]uint16, e.Count)
		for i := range v {
			v[i] = hostOrder.Uint16(b[2*i:])
		}
		return nil
	})
	return v, err
}

func (s *Session) fetchLongs(e Entry) ([]uint32, error) {
	if e.Type != TypeLong && e.Type != TypeSLong {
		return nil, fmt.Errorf("cannot read %s as longs", e.Type)
	}
	var v []uint32
	err := s.withData(e, func(b []byte) error {
		v = make([]uint32, e.Count)
		for i := range v {
			v[i] = hostOrder.Uint32(b[4*i:])
		}
		return nil
	})
	return v, err
}

// fetchRationalPairs returns numerator and denominator interleaved.
func (s *Session) fetchRationalPairs(e Entry) ([]uint32, error) {
	if !e.Type.IsRational() {
		return nil, fmt.Errorf("cannot read %s as rationals", e.Type)
	}
	var v []uint32
	err := s.withData(e, func(b []byte) error {
		v = make([]uint32, 2*int(e.Count))
		for i := range v {
			v[i] = hostOrder.Uint32(b[4*i:])
		}
		return nil
	})
	return v, err
}

func (s *Session) fetchRationals(e Entry) ([]float64, error) {
	pairs, err := s.fetchRationalPairs(e)
	if err != nil {
		return nil, err
	}
	v := make([]float64, len(pairs)/2)
	for i := range v {
		if v[i], err = cvtRational(e.Type, pairs[2*i], pairs[2*i+1]); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func (s *Session) fetchFloats(e Entry) ([]float32, error) {
	if e.Type != TypeFloat {
		return nil, fmt.Errorf("cannot read %s as floats", e.Type)
	}
	var v []float32
	err := s.withData(e, func(b []byte) error {
		v = make([]float32, e.Count)
		for i := range v {
			v[i] = math.Float32frombits(hostOrder.Uint32(b[4*i:]))
		}
		return nil
	})
	return v, err
}

func (s *Session) fetchDoubles(e Entry) ([]float64, error) {
	if e.Type != TypeDouble {
		return nil, fmt.Errorf("cannot read %s as doubles", e.Type)
	}
	var v []float64
	err := s.withData(e, func(b []byte) error {
		v = make([]float64, e.Count)
		for i := range v {
			v[i] = math.Float64frombits(hostOrder.Uint64(b[8*i:]))
		}
		return nil
	})
	return v, err
}

// fetchAny returns the values of any numeric entry as float64.
func (s *Session) fetchAny(e Entry) ([]float64, error) {
	var v []float64
	switch e.Type {
	case TypeByte, TypeSByte:
		b, err := s.fetchBytes(e)
		if err != nil {
			return nil, err
		}
		v = make([]float64, len(b))
		for i, x := range b {
			if e.Type == TypeSByte {
				v[i] = float64(int8(x))
			} else {
				v[i] = float64(x)
			}
		}
	case TypeShort, TypeSShort:
		u, err := s.fetchShorts(e)
		if err != nil {
			return nil, err
		}
		v = make([]float64, len(u))
		for i, x := range u {
			if e.Type == TypeSShort {
				v[i] = float64(int16(x))
			} else {
				v[i] = float64(x)
			}
		}
	case TypeLong, TypeSLong:
		l, err := s.fetchLongs(e)
		if err != nil {
			return nil, err
		}
		v = make([]float64, len(l))
		for i, x := range l {
			if e.Type == TypeSLong {
				v[i] = float64(int32(x))
			} else {
				v[i] = float64(x)
			}
		}
	case TypeRational, TypeSRational:
		return s.fetchRationals(e)
	case TypeFloat:
		f, err := s.fetchFloats(e)
		if err != nil {
			return nil, err
		}
		v = make([]float64, len(f))
		for i, x := range f {
			v[i] = float64(x)
		}
	case TypeDouble:
		return s.fetchDoubles(e)
	default:
		return nil, fmt.Errorf("cannot read %s as a numeric array", e.Type)
	}
	return v, nil
}

// fetchString reads an ASCII (or UNDEFINED) entry.
// Producers do not always NUL-terminate, so one is always appended.
func (s *Session) fetchString(e Entry) (string, error) {
	if e.Type.Width() != 1 {
		return "", fmt.Errorf("cannot read %s as a string", e.Type)
	}
	var b []byte
	err := s.withData(e, func(data []byte) error {
		b = make([]byte, len(data)+1)
		copy(b, data)
		return nil
	})
	if err != nil {
		return "", err
	}
	b[len(b)-1] = 0
	return decodeASCII(b), nil
}

// cvtRational converts a numerator/denominator pair of type typ to a float.
func cvtRational(typ FieldType, num, den uint32) (float64, error) {
	if den == 0 {
		return 0, fmt.Errorf("%w (num = %d)", ErrZeroDenominator, num)
	}
	if typ == TypeSRational {
		return float64(int32(num)) / float64(int32(den)), nil
	}
	return float64(num) / float64(den), nil
}
