package staticfile

import (
	"fmt"
	"net/http"
	"strconv"

	"example.com/basichttpd/internal/config"
	"example.com/basichttpd/internal/logger"
)

// statusLine formats a status as "404 Not Found".
func statusLine(status int) string {
	return fmt.Sprintf("%d %s", status, http.StatusText(status))
}

// writeError translates a pipeline failure into an HTTP error response. It
// always writes a response: if the HTML page cannot be rendered the error
// message goes out as plain text with the same status.
func (s *StaticFileServer) writeError(w http.ResponseWriter, r *http.Request, e *Error) {
	status := e.Kind.Status()
	s.logFailure(r, e, status)

	h := w.Header()
	switch e.Kind {
	case KindUnauthorized:
		h.Set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q, charset=\"UTF-8\"", s.opts.Realm))
	case KindMethodNotAllowed:
		h.Set("Allow", http.MethodGet)
	}

	body, err := renderPageFunc(statusLine(status), "")
	if err != nil {
		s.log.Error("StaticFileServer: failed to render error page, falling back to plain text", logger.LogFields{
			"status": status,
			"error":  err,
		})
		body = []byte(e.Error() + "\n")
		h.Set("Content-Type", plainTextContentType)
	} else {
		h.Set("Content-Type", htmlContentType)
	}
	h.Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	w.Write(body)
}

// logFailure logs the error with its cause chain. Server faults are errors,
// forbidden paths are warnings, other client errors are informational.
func (s *StaticFileServer) logFailure(r *http.Request, e *Error, status int) {
	fields := logger.LogFields{
		"status": status,
		"kind":   e.Kind.String(),
		"uri":    r.RequestURI,
		"method": r.Method,
		"error":  e.Error(),
	}
	if e.Path != "" {
		fields["path"] = e.Path
	}
	if causes := e.Causes(); len(causes) > 0 {
		fields["causes"] = causes
	}

	switch {
	case status >= http.StatusInternalServerError:
		s.log.Error("StaticFileServer: request failed", fields)
	case e.Kind == KindForbidden:
		s.log.Warn("StaticFileServer: request refused", fields)
	default:
		s.log.Info("StaticFileServer: request failed", fields)
	}
}

// realmOrDefault returns realm, or the default realm when it is empty.
func realmOrDefault(realm string) string {
	if realm == "" {
		return config.DefaultRealm
	}
	return realm
}
