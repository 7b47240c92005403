// Package staticfile serves a directory tree over HTTP. A request passes
// through the redirect policy, path resolution, the file responder and the
// optional developer extensions; any failure is turned into an HTML error
// page at the end.
package staticfile

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"

	"example.com/basichttpd/internal/config"
	"example.com/basichttpd/internal/fileio"
	"example.com/basichttpd/internal/logger"
)

// Options is the read-only configuration shared by all requests.
type Options struct {
	// Root must be absolute and canonical (see config.CanonicalRoot).
	Root            string
	Extensions      bool
	AllowEscapeRoot bool
	SinglePageApp   bool
	Credentials     *config.Credentials
	Realm           string

	MimeTypes           map[string]string
	PlainTextExtensions []string
}

// OptionsFromConfig extracts handler options from a validated configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Root:                cfg.Files.RootDir,
		Extensions:          config.Enabled(cfg.Files.Extensions),
		AllowEscapeRoot:     config.Enabled(cfg.Files.AllowEscapeRoot),
		SinglePageApp:       config.Enabled(cfg.Files.SinglePageApp),
		Credentials:         cfg.Server.Credentials,
		Realm:               config.DefaultRealm,
		MimeTypes:           cfg.Files.MimeTypes,
		PlainTextExtensions: cfg.Files.PlainTextExtensions,
	}
}

// StaticFileServer is an http.Handler for a single root directory.
type StaticFileServer struct {
	opts Options
	log  *logger.Logger
	pool *fileio.Pool
	mime *MimeTypeResolver
}

// New creates a new StaticFileServer. All blocking file-system calls go
// through pool.
func New(opts Options, pool *fileio.Pool, lg *logger.Logger) (*StaticFileServer, error) {
	if opts.Root == "" || !filepath.IsAbs(opts.Root) {
		return nil, fmt.Errorf("staticfile: root directory must be an absolute path, got %q", opts.Root)
	}
	if pool == nil {
		return nil, fmt.Errorf("staticfile: file I/O pool cannot be nil")
	}
	if lg == nil {
		lg = logger.NewDiscardLogger()
	}
	opts.Root = filepath.Clean(opts.Root)
	opts.Realm = realmOrDefault(opts.Realm)
	return &StaticFileServer{
		opts: opts,
		log:  lg,
		pool: pool,
		mime: NewMimeTypeResolver(opts.MimeTypes, opts.PlainTextExtensions),
	}, nil
}

// ServeHTTP implements http.Handler. It works on the raw request URI so
// that percent-decoding and path checks happen exactly once, here.
func (s *StaticFileServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.WriteOutcome(w, r, Failure(newError(KindMethodNotAllowed, r.RequestURI, fmt.Sprintf("method %s not allowed", r.Method), nil)))
		return
	}
	if perr := s.checkAuth(r); perr != nil {
		s.WriteOutcome(w, r, Failure(perr))
		return
	}
	s.WriteOutcome(w, r, s.Serve(r.Context(), r.RequestURI))
}

// Serve runs the pipeline for a raw request URI: redirect policy, path
// resolution with the index step, file responder and extensions.
func (s *StaticFileServer) Serve(ctx context.Context, requestURI string) Outcome {
	redirect, perr := s.MaybeRedirect(ctx, requestURI)
	if redirect != nil {
		return *redirect
	}

	var primary Outcome
	if perr != nil {
		primary = Failure(perr)
	} else if p, perr := s.Resolve(ctx, requestURI); perr != nil {
		primary = Failure(perr)
	} else {
		primary = s.ServeFile(ctx, s.WithIndex(ctx, p))
	}
	return s.ApplyExtensions(ctx, requestURI, primary)
}

// WriteOutcome sends o to the client. Failures go through the error
// translator; everything else is streamed as is.
func (s *StaticFileServer) WriteOutcome(w http.ResponseWriter, r *http.Request, o Outcome) {
	if o.Kind == OutcomeFailure {
		s.writeError(w, r, o.Err)
		return
	}
	s.writeResponse(w, r, o.Response)
}
