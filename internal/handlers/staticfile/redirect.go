package staticfile

import (
	"context"
	"strings"

	"example.com/basichttpd/internal/logger"
)

// MaybeRedirect returns a 302 to the same URL with a trailing slash when the
// request names a directory without one. Relative links in a served
// index.html only resolve against the directory once the URL ends in '/'.
// A nil outcome with a nil error means no redirect applies.
func (s *StaticFileServer) MaybeRedirect(ctx context.Context, requestURI string) (*Outcome, *Error) {
	rawPath, query, hasQuery := splitRequestURI(requestURI)
	if strings.HasSuffix(rawPath, "/") {
		return nil, nil
	}

	p, perr := s.Resolve(ctx, requestURI)
	if perr != nil {
		return nil, perr
	}
	fi, err := s.pool.Stat(ctx, p)
	if err != nil || !fi.IsDir() {
		return nil, nil
	}

	// The Location must stay on this host: browsers read a leading "//" or
	// "/\" as protocol-relative.
	location := "/" + strings.ReplaceAll(strings.TrimLeft(rawPath, "/"), `\`, "%5C") + "/"
	if hasQuery {
		location += "?" + query
	}
	s.log.Info("StaticFileServer: redirecting directory request", logger.LogFields{
		"from": requestURI,
		"to":   location,
	})
	o := RedirectTo(location)
	return &o, nil
}
