// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package tiffdir

import (
	"fmt"

	"go.uber.org/zap"
)

// Diagnostics receives warnings and errors while decoding.
// Notifications never change how decoding proceeds.
type Diagnostics interface {
	Warning(module, msg string)
	Error(module, msg string)
}

// DiagnosticsFuncs adapts a pair of functions to Diagnostics.
// Either may be nil.
type DiagnosticsFuncs struct {
	WarningFunc func(module, msg string)
	ErrorFunc   func(module, msg string)
}

func (d DiagnosticsFuncs) Warning(module, msg string) {
	if d.WarningFunc != nil {
		d.WarningFunc(module, msg)
	}
}

func (d DiagnosticsFuncs) Error(module, msg string) {
	if d.ErrorFunc != nil {
		d.ErrorFunc(module, msg)
	}
}

type nopDiagnostics struct{}

func (nopDiagnostics) Warning(string, string) {}
func (nopDiagnostics) Error(string, string)   {}

// NewZapDiagnostics returns a Diagnostics that logs to l.
func NewZapDiagnostics(l *zap.SugaredLogger) Diagnostics {
	return zapDiagnostics{l: l}
}

type zapDiagnostics struct {
	l *zap.SugaredLogger
}

func (d zapDiagnostics) Warning(module, msg string) {
	d.l.Warnw(msg, "module", module)
}

func (d zapDiagnostics) Error(module, msg string) {
	d.l.Errorw(msg, "module", module)
}

func (s *Session) warnf(module, format string, args ...any) {
	s.opts.Diagnostics.Warning(module, fmt.Sprintf(format, args...))
}

func (s *Session) errorf(module, format string, args ...any) {
	s.opts.Diagnostics.Error(module, fmt.Sprintf(format, args...))
}
