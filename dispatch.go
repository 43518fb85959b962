// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package tiffdir

import (
	"fmt"
)

// CountedArray is committed for fields whose values are passed with their count.
type CountedArray struct {
	Count  uint32
	Values any
}

// fieldFailed reports and records a fatal-for-field failure.
func (s *Session) fieldFailed(d *Directory, fi FieldInfo, err error) {
	s.errorf(d.Namespace, "error fetching data for field %q: %v", fi.Name, err)
	d.addFieldError(&fieldError{Tag: fi.Tag, Name: fi.Name, Err: err})
}

// checkDirCount checks the entry's count against want.
// It returns false if the tag should be ignored.
// If the entry holds more values than wanted the caller should use the first want values.
func (s *Session) checkDirCount(d *Directory, fi FieldInfo, e Entry, want uint32) bool {
	switch {
	case want > e.Count:
		s.warnf(d.Namespace, "incorrect count for field %q (%d, expecting %d); tag ignored", fi.Name, e.Count, want)
		return false
	case want < e.Count:
		s.warnf(d.Namespace, "incorrect count for field %q (%d, expecting %d); tag trimmed", fi.Name, e.Count, want)
	}
	return true
}

// fetchNormalTag decodes and commits a tag that needs no special handling.
func (s *Session) fetchNormalTag(d *Directory, fi FieldInfo, e Entry) error {
	count := e.Count
	if fi.ReadCount > 0 {
		if !s.checkDirCount(d, fi, e, uint32(fi.ReadCount)) {
			return nil
		}
		count = uint32(fi.ReadCount)
	} else if count == 0 {
		s.checkDirCount(d, fi, e, 1)
		return nil
	}

	if e.Type == TypeASCII {
		str, err := s.fetchString(e)
		if err != nil {
			return err
		}
		if fi.PassCount {
			return d.setField(s, fi, e, CountedArray{Count: count, Values: str})
		}
		return d.setField(s, fi, e, str)
	}

	vals, err := s.fetchValues(e, count)
	if err != nil {
		return err
	}

	var v any
	switch {
	case fi.PassCount:
		v = CountedArray{Count: count, Values: vals}
	case count == 1 && e.Type != TypeUndefined:
		v = scalarOf(fi, e.Type, vals)
	default:
		v = vals
	}

	return d.setField(s, fi, e, v)
}

// fetchValues returns the first count values of e as a typed slice.
func (s *Session) fetchValues(e Entry, count uint32) (any, error) {
	switch e.Type {
	case TypeByte, TypeUndefined:
		v, err := s.fetchBytes(e)
		if err != nil {
			return nil, err
		}
		return v[:count], nil
	case TypeSByte:
		b, err := s.fetchBytes(e)
		if err != nil {
			return nil, err
		}
		v := make([]int8, count)
		for i := range v {
			v[i] = int8(b[i])
		}
		return v, nil
	case TypeShort:
		v, err := s.fetchShorts(e)
		if err != nil {
			return nil, err
		}
		return v[:count], nil
	case TypeSShort:
		u, err := s.fetchShorts(e)
		if err != nil {
			return nil, err
		}
		v := make([]int16, count)
		for i := range v {
			v[i] = int16(u[i])
		}
		return v, nil
	case TypeLong:
		v, err := s.fetchLongs(e)
		if err != nil {
			return nil, err
		}
		return v[:count], nil
	case TypeSLong:
		u, err := s.fetchLongs(e)
		if err != nil {
			return nil, err
		}
		v := make([]int32, count)
		for i := range v {
			v[i] = int32(u[i])
		}
		return v, nil
	case TypeRational, TypeSRational:
		v, err := s.fetchRationals(e)
		if err != nil {
			return nil, err
		}
		return v[:count], nil
	case TypeFloat:
		v, err := s.fetchFloats(e)
		if err != nil {
			return nil, err
		}
		return v[:count], nil
	case TypeDouble:
		v, err := s.fetchDoubles(e)
		if err != nil {
			return nil, err
		}
		return v[:count], nil
	default:
		return nil, fmt.Errorf("%w %d", ErrUnknownType, e.Type)
	}
}

// scalarOf returns the first value in vals.
// Integers are widened to the widest type the field accepts,
// so consumers see one Go type per field regardless of the on-disk type.
func scalarOf(fi FieldInfo, t FieldType, vals any) any {
	var (
		n      int64
		signed bool
	)
	switch vv := vals.(type) {
	case []byte:
		n = int64(vv[0])
	case []int8:
		n, signed = int64(vv[0]), true
	case []uint16:
		n = int64(vv[0])
	case []int16:
		n, signed = int64(vv[0]), true
	case []uint32:
		n = int64(vv[0])
	case []int32:
		n, signed = int64(vv[0]), true
	case []float32:
		return float64(vv[0])
	case []float64:
		return vv[0]
	default:
		return vals
	}

	if t.Width() == 4 || fi.Type().Width() == 4 {
		if signed {
			return int32(n)
		}
		return uint32(n)
	}
	if signed {
		return int16(n)
	}
	return uint16(n)
}

// fetchPerSample decodes a field that holds one value per sample,
// all of which must be equal. The common value is committed.
func (s *Session) fetchPerSample(d *Directory, fi FieldInfo, e Entry) error {
	if e.Count != 1 && !s.checkDirCount(d, fi, e, uint32(d.SamplesPerPixel)) {
		return nil
	}

	vals, err := s.fetchAny(e)
	if err != nil {
		return err
	}

	n := min(len(vals), int(d.SamplesPerPixel))
	for i := 1; i < n; i++ {
		if vals[i] != vals[0] {
			s.errorf(d.Namespace, "cannot handle different per-sample values for field %q", fi.Name)
			return ErrPerSampleMismatch
		}
	}

	var v any
	switch fi.Type().Width() {
	case 0:
		v = vals[0]
	case 4:
		v = uint32(vals[0])
	default:
		v = uint16(vals[0])
	}
	return d.setField(s, fi, e, v)
}

// fetchStripThing reads strip or tile offsets or byte counts into a slice
// of exactly nstrips values. Missing values are zero.
func (s *Session) fetchStripThing(d *Directory, fi FieldInfo, e Entry, nstrips uint32) ([]uint64, error) {
	// A mismatch is only reported, the values present are still used.
	s.checkDirCount(d, fi, e, nstrips)

	v := make([]uint64, nstrips)
	switch e.Type {
	case TypeShort:
		src, err := s.fetchShorts(e)
		if err != nil {
			return nil, err
		}
		for i := 0; i < len(v) && i < len(src); i++ {
			v[i] = uint64(src[i])
		}
	case TypeLong:
		src, err := s.fetchLongs(e)
		if err != nil {
			return nil, err
		}
		for i := 0; i < len(v) && i < len(src); i++ {
			v[i] = uint64(src[i])
		}
	default:
		return nil, fmt.Errorf("cannot read %s as strip values", e.Type)
	}
	return v, nil
}

// fetchRefBlackWhite accepts integer encodings written by older software
// and widens them to floats.
func (s *Session) fetchRefBlackWhite(d *Directory, fi FieldInfo, e Entry) error {
	if e.Type == TypeRational {
		return s.fetchNormalTag(d, fi, e)
	}

	if !s.checkDirCount(d, fi, e, uint32(fi.ReadCount)) {
		return nil
	}

	vals, err := s.fetchAny(e)
	if err != nil {
		return err
	}
	return d.setField(s, fi, e, vals[:fi.ReadCount])
}

// fetchSubjectDistance decodes the EXIF SubjectDistance.
// A numerator of 0xFFFFFFFF means infinite distance, stored as a negative value.
func (s *Session) fetchSubjectDistance(d *Directory, fi FieldInfo, e Entry) error {
	if !s.checkDirCount(d, fi, e, 1) {
		return nil
	}
	l, err := s.fetchRationalPairs(e)
	if err != nil {
		return err
	}
	v, err := cvtRational(e.Type, l[0], l[1])
	if err != nil {
		return err
	}
	if l[0] == 0xFFFFFFFF {
		v = -v
	}
	return d.setField(s, fi, e, v)
}

// fetchShortPair reads tags with two BYTE or SHORT values.
func (s *Session) fetchShortPair(d *Directory, fi FieldInfo, e Entry) error {
	if e.Count > 2 {
		s.warnf(d.Namespace, "unexpected count for field %q, %d, expected 2; ignored", fi.Name, e.Count)
		return nil
	}
	if !s.checkDirCount(d, fi, e, 2) {
		return nil
	}

	var v [2]uint16
	switch e.Type {
	case TypeByte, TypeSByte:
		b, err := s.fetchBytes(e)
		if err != nil {
			return err
		}
		v[0], v[1] = uint16(b[0]), uint16(b[1])
	case TypeShort, TypeSShort:
		u, err := s.fetchShorts(e)
		if err != nil {
			return err
		}
		v[0], v[1] = u[0], u[1]
	default:
		return fmt.Errorf("cannot read %s as a pair", e.Type)
	}
	return d.setField(s, fi, e, v)
}
