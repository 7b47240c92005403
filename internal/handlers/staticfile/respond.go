package staticfile

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"

	"example.com/basichttpd/internal/logger"
)

// chunkSize is the read size used when streaming file bodies.
const chunkSize = 32 * 1024

// ServeFile opens p and builds a 200 response that streams it. Containment
// is checked again here because the file may have changed since the path
// was resolved.
func (s *StaticFileServer) ServeFile(ctx context.Context, p string) Outcome {
	if perr := s.CheckInRootDir(ctx, p); perr != nil {
		return Failure(perr)
	}

	f, err := s.pool.Open(ctx, p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.log.Debug("StaticFileServer: file not found", logger.LogFields{"path": p})
		}
		return Failure(ioError(p, err))
	}
	fi, err := s.pool.FileStat(ctx, f)
	if err != nil {
		f.Close()
		return Failure(ioError(p, err))
	}
	if fi.IsDir() {
		f.Close()
		return Failure(newError(KindNotFound, p, "path is a directory", nil))
	}

	h := http.Header{}
	h.Set("Content-Type", s.mime.Resolve(p))
	h.Set("Content-Length", strconv.FormatInt(fi.Size(), 10))
	return Success(&Response{
		Status:        http.StatusOK,
		Header:        h,
		ContentLength: fi.Size(),
		Body:          f,
		Path:          p,
	})
}

// writeResponse sends headers and streams the body. The body is always
// closed.
func (s *StaticFileServer) writeResponse(w http.ResponseWriter, r *http.Request, resp *Response) {
	defer resp.close()

	h := w.Header()
	for k, v := range resp.Header {
		h[k] = v
	}
	if resp.ContentLength >= 0 {
		h.Set("Content-Length", strconv.FormatInt(resp.ContentLength, 10))
	}
	w.WriteHeader(resp.Status)
	if resp.Body == nil {
		return
	}

	ctx := r.Context()
	var src io.Reader = resp.Body
	if _, onDisk := resp.Body.(*os.File); onDisk {
		src = s.pool.NewReader(ctx, resp.Body)
	}

	buf := make([]byte, chunkSize)
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				s.log.Debug("StaticFileServer: client went away while streaming", logger.LogFields{
					"path":  resp.Path,
					"error": writeErr,
				})
				return
			}
		}
		if readErr == io.EOF {
			return
		}
		if readErr != nil {
			if ctx.Err() != nil {
				s.log.Debug("StaticFileServer: request cancelled, abandoning stream", logger.LogFields{
					"path": resp.Path,
				})
			} else {
				s.log.Error("StaticFileServer: error reading file content", logger.LogFields{
					"path":  resp.Path,
					"error": readErr,
				})
			}
			return
		}
	}
}
