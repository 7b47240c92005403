package staticfile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strings"
	"syscall"
)

// ErrorKind classifies a pipeline failure; it alone decides the HTTP status.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindNotFound
	KindForbidden
	KindBadRequest
	KindUnauthorized
	KindMethodNotAllowed
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindForbidden:
		return "forbidden"
	case KindBadRequest:
		return "bad request"
	case KindUnauthorized:
		return "unauthorized"
	case KindMethodNotAllowed:
		return "method not allowed"
	default:
		return "internal"
	}
}

// Status maps the kind to its HTTP status code.
func (k ErrorKind) Status() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	default:
		return http.StatusInternalServerError
	}
}

// Error is the single failure type carried between pipeline stages.
// Err holds the underlying cause, which may itself wrap further causes.
type Error struct {
	Kind   ErrorKind
	Path   string
	Reason string
	Err    error
}

func newError(kind ErrorKind, path, reason string, cause error) *Error {
	return &Error{Kind: kind, Path: path, Reason: reason, Err: cause}
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.String())
	if e.Path != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Path)
	}
	if e.Reason != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Reason)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Causes lists the messages of the wrapped error chain, outermost first.
func (e *Error) Causes() []string {
	var causes []string
	for err := e.Err; err != nil; err = errors.Unwrap(err) {
		causes = append(causes, err.Error())
	}
	return causes
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ioError classifies a file-system error. Missing files, and paths that run
// through a regular file as if it were a directory, are not found; anything
// else is internal.
func ioError(path string, err error) *Error {
	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, syscall.ENOTDIR):
		return newError(KindNotFound, path, "file not found", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return newError(KindInternal, path, "request cancelled", err)
	default:
		return newError(KindInternal, path, "I/O error", fmt.Errorf("accessing file: %w", err))
	}
}
