package lzma2

import "github.com/lzmaio/xzmt/lzma"

// lzma2Err reports a malformed chunk stream, reusing the lzma
// package's InvalidData error code rather than inventing a parallel
// taxonomy (spec §7).
func lzma2Err(msg string) error {
	return &chunkError{msg: msg}
}

type chunkError struct{ msg string }

func (e *chunkError) Error() string { return "lzma2: " + e.msg }

// Code reports the taxonomy code for this error (spec §7), letting
// callers classify it the same way as a lzma package error.
func (e *chunkError) Code() lzma.Code { return lzma.CodeInvalidData }
