// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package tiffdir

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// decodeASCII returns the string up to the first NUL in b.
// Bytes that are not valid UTF-8 are read as ISO-8859-1, which is
// what most writers of non-ASCII TIFF strings use.
func decodeASCII(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	if utf8.Valid(b) {
		return string(b)
	}
	s, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(s)
}

func printableString(s string) string {
	ss := strings.Map(func(r rune) rune {
		if unicode.IsGraphic(r) {
			return r
		}
		return -1
	}, s)

	return strings.TrimSpace(ss)
}

func trimBytesNulls(b []byte) []byte {
	var lo, hi int
	for lo = 0; lo < len(b) && b[lo] == 0; lo++ {
	}
	for hi = len(b) - 1; hi >= 0 && b[hi] == 0; hi-- {
	}
	if lo > hi {
		return nil
	}
	return b[lo : hi+1]
}

// FormatValue formats a committed tag value for display.
// Long arrays and binary data are abbreviated.
func FormatValue(v any) string {
	const maxValues = 16

	switch vv := v.(type) {
	case string:
		return strconv.Quote(printableString(vv))
	case []byte:
		b := trimBytesNulls(vv)
		if isPrintable(b) {
			return strconv.Quote(printableString(string(b)))
		}
		return fmt.Sprintf("(Binary data %d bytes)", len(vv))
	case CountedArray:
		return fmt.Sprintf("[%d] %s", vv.Count, FormatValue(vv.Values))
	case float64:
		return strconv.FormatFloat(vv, 'f', -1, 64)
	case []uint64:
		return formatSlice(vv, maxValues)
	case []uint32:
		return formatSlice(vv, maxValues)
	case []uint16:
		return formatSlice(vv, maxValues)
	case []int32:
		return formatSlice(vv, maxValues)
	case []int16:
		return formatSlice(vv, maxValues)
	case []int8:
		return formatSlice(vv, maxValues)
	case []float32:
		return formatSlice(vv, maxValues)
	case []float64:
		return formatSlice(vv, maxValues)
	default:
		return fmt.Sprintf("%v", vv)
	}
}

func formatSlice[T any](s []T, max int) string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, v := range s {
		if i == max {
			fmt.Fprintf(&sb, " ... (%d more)", len(s)-max)
			break
		}
		if i > 0 {
			sb.WriteString(" ")
		}
		fmt.Fprintf(&sb, "%v", v)
	}
	sb.WriteString("]")
	return sb.String()
}

func isPrintable(b []byte) bool {
	if len(b) == 0 || !utf8.Valid(b) {
		return false
	}
	for _, r := range string(b) {
		if !unicode.IsPrint(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
