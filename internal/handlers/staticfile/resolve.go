package staticfile

import (
	"context"
	"errors"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"syscall"
	"unicode/utf8"

	"example.com/basichttpd/internal/logger"
)

const indexFile = "index.html"

// maxSymlinkHops bounds link following during the containment check.
const maxSymlinkHops = 40

// splitRequestURI separates the raw path from the query. hasQuery is true
// whenever a '?' was present, even with an empty query.
func splitRequestURI(requestURI string) (rawPath, query string, hasQuery bool) {
	rawPath, query, hasQuery = strings.Cut(requestURI, "?")
	return rawPath, query, hasQuery
}

// decodeRequestPath validates and percent-decodes the path of a raw request
// URI, returning a slash-separated absolute path.
func decodeRequestPath(requestURI string) (string, *Error) {
	if !strings.HasPrefix(requestURI, "/") {
		return "", newError(KindBadRequest, requestURI, "request path is not absolute", nil)
	}
	rawPath, _, _ := splitRequestURI(requestURI)

	decoded, err := url.PathUnescape(rawPath)
	if err != nil {
		return "", newError(KindBadRequest, rawPath, "malformed percent-encoding", err)
	}
	if !utf8.ValidString(decoded) {
		return "", newError(KindBadRequest, rawPath, "request path is not valid UTF-8", nil)
	}
	if strings.IndexByte(decoded, 0) >= 0 {
		return "", newError(KindBadRequest, rawPath, "request path contains a NUL byte", nil)
	}
	return decoded, nil
}

// LocalPathForRequest maps a raw request URI (path plus optional query) to a
// cleaned path under root. It performs no file-system access, so the result
// may still escape root through ".." or symlinks; see CheckInRootDir.
func LocalPathForRequest(requestURI, root string) (string, *Error) {
	decoded, perr := decodeRequestPath(requestURI)
	if perr != nil {
		return "", perr
	}
	return filepath.Join(root, filepath.FromSlash(decoded)), nil
}

// Resolve maps requestURI to a local path and, unless escaping the root is
// allowed, verifies it stays inside the root.
func (s *StaticFileServer) Resolve(ctx context.Context, requestURI string) (string, *Error) {
	p, perr := LocalPathForRequest(requestURI, s.opts.Root)
	if perr != nil {
		return "", perr
	}
	if perr := s.CheckInRootDir(ctx, p); perr != nil {
		return "", perr
	}
	return p, nil
}

// WithIndex appends index.html when p names a directory. Stat failures
// leave p unchanged; opening it will report the real error.
func (s *StaticFileServer) WithIndex(ctx context.Context, p string) string {
	fi, err := s.pool.Stat(ctx, p)
	if err == nil && fi.IsDir() {
		s.log.Debug("StaticFileServer: trying index file for directory", logger.LogFields{"path": p})
		return filepath.Join(p, indexFile)
	}
	return p
}

// CheckInRootDir fails with KindForbidden when p, after symlink evaluation,
// is neither the root nor below it. Only the existing prefix of p is
// evaluated, so the answer is the same whether or not the target exists.
func (s *StaticFileServer) CheckInRootDir(ctx context.Context, p string) *Error {
	if s.opts.AllowEscapeRoot {
		return nil
	}
	var resolved string
	var evalErr error
	if err := s.pool.Do(ctx, func() { resolved, evalErr = evalExistingPrefix(p) }); err != nil {
		return ioError(p, err)
	}
	if evalErr != nil {
		return newError(KindInternal, p, "failed to evaluate symlinks", evalErr)
	}
	if !isWithin(resolved, s.opts.Root) {
		return newError(KindForbidden, p, "path escapes the root directory", nil)
	}
	return nil
}

// isWithin reports whether p equals root or is a descendant of it. Both
// must be clean absolute paths.
func isWithin(p, root string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// evalExistingPrefix resolves every symlink along p, including dangling
// ones, and re-attaches whatever part of p does not exist.
func evalExistingPrefix(p string) (string, error) {
	p = filepath.Clean(p)
	rest := ""
	for hops := 0; ; {
		resolved, err := filepath.EvalSymlinks(p)
		if err == nil {
			return filepath.Join(resolved, rest), nil
		}
		if !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, syscall.ENOTDIR) {
			return "", err
		}

		// A dangling link still points somewhere; follow it lexically.
		if fi, lerr := os.Lstat(p); lerr == nil && fi.Mode()&fs.ModeSymlink != 0 {
			if hops++; hops > maxSymlinkHops {
				return "", &fs.PathError{Op: "evalsymlinks", Path: p, Err: syscall.ELOOP}
			}
			target, rerr := os.Readlink(p)
			if rerr != nil {
				return "", rerr
			}
			if !filepath.IsAbs(target) {
				target = filepath.Join(filepath.Dir(p), target)
			}
			p = filepath.Clean(target)
			continue
		}

		parent := filepath.Dir(p)
		if parent == p {
			return filepath.Join(p, rest), nil
		}
		rest = filepath.Join(filepath.Base(p), rest)
		p = parent
	}
}

// cleanRequestPath returns the decoded, cleaned request path used for
// building links, always starting with '/'.
func cleanRequestPath(requestURI string) (string, *Error) {
	decoded, perr := decodeRequestPath(requestURI)
	if perr != nil {
		return "", perr
	}
	return path.Clean(decoded), nil
}
