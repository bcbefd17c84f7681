package ingest

import "fmt"

// Class separates failures the submitter can fix from upstream registry
// outages and internal faults. Transport status mapping happens at the HTTP
// boundary, never here.
type Class int

const (
	ClassClient Class = iota
	ClassUpstream
	ClassInternal
)

type Error struct {
	Class   Class
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func clientErrf(format string, args ...any) *Error {
	return &Error{Class: ClassClient, Message: fmt.Sprintf(format, args...)}
}

func upstreamErrf(format string, args ...any) *Error {
	return &Error{Class: ClassUpstream, Message: fmt.Sprintf(format, args...)}
}

func internalErrf(format string, args ...any) *Error {
	return &Error{Class: ClassInternal, Message: fmt.Sprintf(format, args...)}
}
