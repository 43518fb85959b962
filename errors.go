// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package tiffdir

import (
	"errors"
	"fmt"
	"io"
)

var (
	// ErrNoMoreDirectories is returned by ReadDirectory when the IFD chain ends,
	// either normally (a zero next offset) or because it loops back to an
	// already visited directory.
	ErrNoMoreDirectories = errors.New("tiffdir: no more directories")

	// ErrZeroDenominator is reported for rational values with a zero denominator.
	ErrZeroDenominator = errors.New("rational with zero denominator")

	// ErrUnknownType is reported for entries with a field type we cannot size.
	ErrUnknownType = errors.New("unknown field type")

	// ErrTooLarge is reported when an entry's value exceeds the configured limit
	// or overflows the byte count.
	ErrTooLarge = errors.New("value too large")

	// ErrPerSampleMismatch is reported when a per-sample field has differing
	// values across samples.
	ErrPerSampleMismatch = errors.New("cannot handle different per-sample values")

	errInvalidFormat = errors.New("tiffdir: invalid format")
	errShortRead     = errors.New("short read")
)

// InvalidFormatError is returned when the file is not a valid TIFF file.
type InvalidFormatError struct {
	Err error
}

func (e *InvalidFormatError) Error() string {
	return fmt.Sprintf("%s: %v", errInvalidFormat, e.Err)
}

// Is reports whether the target error is of the same type as e.
func (e *InvalidFormatError) Is(target error) bool {
	_, ok := target.(*InvalidFormatError)
	return ok || target == errInvalidFormat
}

func (e *InvalidFormatError) Unwrap() error {
	return e.Err
}

// IsInvalidFormat reports whether the error was an InvalidFormatError.
func IsInvalidFormat(err error) bool {
	return errors.Is(err, errInvalidFormat)
}

func newInvalidFormatError(err error) error {
	if err == nil {
		return nil
	}
	if IsInvalidFormat(err) {
		return err
	}
	return &InvalidFormatError{Err: err}
}

func newInvalidFormatErrorf(format string, args ...any) error {
	return newInvalidFormatError(fmt.Errorf(format, args...))
}

// These are errors caused by malformed input, not by the environment.
func isInvalidFormatErrorCandidate(err error) bool {
	return errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, errShortRead) ||
		errors.Is(err, ErrUnknownType) ||
		errors.Is(err, ErrTooLarge)
}

// fieldError is a fatal-for-field failure. The directory decode continues.
type fieldError struct {
	Tag  uint16
	Name string
	Err  error
}

func (e *fieldError) Error() string {
	return fmt.Sprintf("field %q (tag %d): %v", e.Name, e.Tag, e.Err)
}

func (e *fieldError) Unwrap() error {
	return e.Err
}
