// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package tiffdir

import (
	"encoding/binary"
	"math/bits"
)

// FieldType is the on-disk type of a directory entry's value(s).
//
//go:generate stringer -type=FieldType
type FieldType uint16

const (
	TypeNoType    FieldType = iota // Placeholder, width 0.
	TypeByte                       // 8-bit unsigned integer.
	TypeASCII                      // 8-bit bytes with a terminating NUL.
	TypeShort                      // 16-bit unsigned integer.
	TypeLong                       // 32-bit unsigned integer.
	TypeRational                   // Two LONGs: numerator and denominator.
	TypeSByte                      // 8-bit signed integer.
	TypeUndefined                  // 8-bit opaque bytes.
	TypeSShort                     // 16-bit signed integer.
	TypeSLong                      // 32-bit signed integer.
	TypeSRational                  // Two SLONGs: numerator and denominator.
	TypeFloat                      // IEEE 754 single precision.
	TypeDouble                     // IEEE 754 double precision.
)

// TypeAny is used in the registry for fields that accept any numeric type.
const TypeAny = TypeNoType

// fieldTypeInfo describes how values of one field type are sized and swabbed.
type fieldTypeInfo struct {
	width uint32

	// swab reorders the bytes of a value buffer between the file's byte order
	// and the host's. Nil for single byte types.
	swab func(b []byte)
}

var fieldTypes = [...]fieldTypeInfo{
	TypeNoType:    {},
	TypeByte:      {width: 1},
	TypeASCII:     {width: 1},
	TypeShort:     {width: 2, swab: swab16},
	TypeLong:      {width: 4, swab: swab32},
	TypeRational:  {width: 8, swab: swab32},
	TypeSByte:     {width: 1},
	TypeUndefined: {width: 1},
	TypeSShort:    {width: 2, swab: swab16},
	TypeSLong:     {width: 4, swab: swab32},
	TypeSRational: {width: 8, swab: swab32},
	TypeFloat:     {width: 4, swab: swab32},
	TypeDouble:    {width: 8, swab: swab64},
}

func (t FieldType) info() fieldTypeInfo {
	if int(t) >= len(fieldTypes) {
		return fieldTypeInfo{}
	}
	return fieldTypes[t]
}

// Width returns the size in bytes of a single value of type t.
// Unknown types have width 0.
func (t FieldType) Width() uint32 {
	return t.info().width
}

// IsRational reports whether t is one of the numerator/denominator types.
func (t FieldType) IsRational() bool {
	return t == TypeRational || t == TypeSRational
}

// IsSigned reports whether t holds signed values.
func (t FieldType) IsSigned() bool {
	switch t {
	case TypeSByte, TypeSShort, TypeSLong, TypeSRational, TypeFloat, TypeDouble:
		return true
	}
	return false
}

// IsInteger reports whether t is one of the integer types.
func (t FieldType) IsInteger() bool {
	switch t {
	case TypeByte, TypeSByte, TypeShort, TypeSShort, TypeLong, TypeSLong:
		return true
	}
	return false
}

// dataSize returns count*width, failing on an unknown type or overflow.
func (t FieldType) dataSize(count uint32) (uint32, error) {
	w := t.Width()
	if w == 0 {
		return 0, ErrUnknownType
	}
	hi, lo := bits.Mul32(count, w)
	if hi != 0 {
		return 0, ErrTooLarge
	}
	return lo, nil
}

// The host byte order. Values are swabbed into this order after reading.
var hostOrder = func() binary.ByteOrder {
	var b [2]byte
	binary.NativeEndian.PutUint16(b[:], 1)
	if b[0] == 1 {
		return binary.LittleEndian
	}
	return binary.BigEndian
}()

func swab16(b []byte) {
	for i := 0; i+1 < len(b); i += 2 {
		b[i], b[i+1] = b[i+1], b[i]
	}
}

func swab32(b []byte) {
	for i := 0; i+3 < len(b); i += 4 {
		b[i], b[i+1], b[i+2], b[i+3] = b[i+3], b[i+2], b[i+1], b[i]
	}
}

func swab64(b []byte) {
	for i := 0; i+7 < len(b); i += 8 {
		b[i], b[i+1], b[i+2], b[i+3], b[i+4], b[i+5], b[i+6], b[i+7] = b[i+7], b[i+6], b[i+5], b[i+4], b[i+3], b[i+2], b[i+1], b[i]
	}
}
