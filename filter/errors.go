package filter

import "fmt"

type unsupportedError struct{ id ID }

func (e *unsupportedError) Error() string {
	return fmt.Sprintf("filter: unsupported filter id 0x%x", uint64(e.id))
}

func unsupportedFilter(id ID) error { return &unsupportedError{id: id} }

type propError struct{ msg string }

func (e *propError) Error() string { return "filter: " + e.msg }
