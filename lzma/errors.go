// Package lzma implements the LZMA compression algorithm: the range
// coder, the probability model, the 12-state symbol coder, the HC4 and
// BT4 match finders, and the raw (headerless or LZMA1-headered) byte
// stream codec that LZMA2, LZIP and XZ all build on.
package lzma

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code classifies an error the way callers across the module need to
// distinguish it, independent of its textual message.
type Code int

const (
	// CodeInvalidInput marks a caller-supplied parameter out of range.
	CodeInvalidInput Code = iota
	// CodeInvalidData marks a stream framing or encoding violation.
	CodeInvalidData
	// CodeUnexpectedEOF marks a source that ended mid-frame.
	CodeUnexpectedEOF
	// CodeUnsupported marks a recognized but unimplemented feature.
	CodeUnsupported
)

// Error is the error type returned by this package; lzma2's chunk
// errors report the same Code values through a Code method, while the
// lzip and xz packages use their own error values. The Code field lets
// callers use errors.As to branch on the failure class; Error still
// carries a human-readable message via the embedded cause.
type Error struct {
	Code Code
	Msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("lzma: %s: %s", e.Msg, e.err)
	}
	return "lzma: " + e.Msg
}

func (e *Error) Unwrap() error { return e.err }

func newErr(code Code, msg string) error {
	return &Error{Code: code, Msg: msg}
}

func wrapErr(code Code, err error, msg string) error {
	return &Error{Code: code, Msg: msg, err: errors.Wrap(err, msg)}
}

// rangeError reports a parameter outside its permitted range, mirroring
// the shape of the value so %v formats usefully in a wrapped message.
type rangeError struct {
	Name  string
	Value interface{}
}

func (e rangeError) Error() string {
	return fmt.Sprintf("%s value %v out of range", e.Name, e.Value)
}

func errRange(name string, value interface{}) error {
	return &Error{Code: CodeInvalidInput, Msg: rangeError{name, value}.Error()}
}

var (
	errShortInput  = newErr(CodeUnexpectedEOF, "input ends mid-symbol")
	errBadDistance = newErr(CodeInvalidData, "distance beyond dictionary")
	errBadState    = newErr(CodeInvalidData, "rep0 used before a literal was coded")
)
