package staticfile

import (
	"context"
	"path/filepath"

	"example.com/basichttpd/internal/logger"
)

// ApplyExtensions runs the developer extensions over the primary outcome.
// The first that applies wins:
//
//  1. markdown files are rendered to HTML, whatever primary was
//  2. in single-page-app mode a not-found becomes the root index.html
//  3. a not-found on a directory becomes a directory listing
//  4. a successful response for a source or text file is forced to text/plain
//
// Without extensions, or when the request does not resolve, primary is
// returned untouched.
func (s *StaticFileServer) ApplyExtensions(ctx context.Context, requestURI string, primary Outcome) Outcome {
	if !s.opts.Extensions {
		return primary
	}
	p, perr := s.Resolve(ctx, requestURI)
	if perr != nil {
		return primary
	}

	if filepath.Ext(p) == ".md" {
		s.log.Debug("StaticFileServer: using markdown extension", logger.LogFields{"path": p})
		primary.Close()
		return s.renderMarkdown(ctx, p)
	}

	if s.opts.SinglePageApp && primary.IsFailure(KindNotFound) {
		if o, ok := s.spaFallback(ctx); ok {
			s.log.Debug("StaticFileServer: using single-page-app fallback", logger.LogFields{"path": p})
			return o
		}
	}

	if primary.IsFailure(KindNotFound) && s.isDirectory(ctx, p) {
		webPath, perr := cleanRequestPath(requestURI)
		if perr != nil {
			return Failure(perr)
		}
		s.log.Debug("StaticFileServer: using directory list extension", logger.LogFields{"path": p})
		return s.listDirectory(ctx, p, webPath)
	}

	if primary.Kind == OutcomeSuccess && primary.Response.Path != "" && s.mime.IsPlainText(primary.Response.Path) {
		primary.Response.Header.Set("Content-Type", plainTextContentType)
	}
	return primary
}

// spaFallback serves the root index.html, if there is one.
func (s *StaticFileServer) spaFallback(ctx context.Context) (Outcome, bool) {
	o := s.ServeFile(ctx, filepath.Join(s.opts.Root, indexFile))
	if o.Kind != OutcomeSuccess {
		return Outcome{}, false
	}
	return o, true
}
