package staticfile

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
)

// Response is a fully decided response whose body has not been sent yet.
type Response struct {
	Status        int
	Header        http.Header
	ContentLength int64 // -1 when unknown
	Body          io.ReadCloser

	// Path is the local file the body comes from; empty for generated bodies.
	Path string
}

func (r *Response) close() {
	if r != nil && r.Body != nil {
		r.Body.Close()
		r.Body = nil
	}
}

// OutcomeKind tags which variant an Outcome holds.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeRedirect
	OutcomeFailure
)

// Outcome is the result of running the pipeline for one request: a
// response to send, a redirect, or a failure for the error translator.
type Outcome struct {
	Kind     OutcomeKind
	Response *Response
	Err      *Error
}

// Success wraps a response.
func Success(r *Response) Outcome { return Outcome{Kind: OutcomeSuccess, Response: r} }

// Failure wraps a pipeline error.
func Failure(err *Error) Outcome { return Outcome{Kind: OutcomeFailure, Err: err} }

// RedirectTo builds a 302 Found with an empty body.
func RedirectTo(location string) Outcome {
	h := http.Header{}
	h.Set("Location", location)
	return Outcome{Kind: OutcomeRedirect, Response: &Response{
		Status:        http.StatusFound,
		Header:        h,
		ContentLength: 0,
	}}
}

// IsFailure reports whether o is a failure of the given kind.
func (o Outcome) IsFailure(kind ErrorKind) bool {
	return o.Kind == OutcomeFailure && o.Err != nil && o.Err.Kind == kind
}

// Close releases the body of an outcome that will not be sent.
func (o Outcome) Close() {
	o.Response.close()
}

// htmlResponse builds a 200 text/html response over an in-memory body.
func htmlResponse(body []byte) *Response {
	h := http.Header{}
	h.Set("Content-Type", htmlContentType)
	h.Set("Content-Length", strconv.Itoa(len(body)))
	return &Response{
		Status:        http.StatusOK,
		Header:        h,
		ContentLength: int64(len(body)),
		Body:          io.NopCloser(bytes.NewReader(body)),
	}
}
