package lzip

import "fmt"

type lzipError struct{ msg string }

func (e *lzipError) Error() string { return "lzip: " + e.msg }

func newLzipErr(msg string) error { return &lzipError{msg: msg} }

func newLzipErrf(format string, args ...interface{}) error {
	return &lzipError{msg: fmt.Sprintf(format, args...)}
}

var (
	errWorkersRange    = newLzipErr("Workers must be positive")
	errTrailerMismatch = newLzipErr("trailer size or checksum does not match decoded data")
	errMemberTooSmall  = newLzipErr("member shorter than header+trailer")
	errFileTooSmall    = newLzipErr("file too small to contain a member")
	errUnexpectedData  = newLzipErr("unexpected data after last member")
)
