package staticfile

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/basichttpd/internal/config"
	"example.com/basichttpd/internal/fileio"
	"example.com/basichttpd/internal/logger"
)

// testEnv is a root directory with a sibling directory outside of it.
type testEnv struct {
	base   string // parent of root
	root   string
	logBuf *bytes.Buffer
	sfs    *StaticFileServer
	pool   *fileio.Pool
}

func newTestEnv(t *testing.T, mutate func(*Options)) *testEnv {
	t.Helper()
	base, err := config.CanonicalRoot(t.TempDir())
	require.NoError(t, err)
	root := filepath.Join(base, "root")
	require.NoError(t, os.Mkdir(root, 0o755))

	opts := Options{Root: root}
	if mutate != nil {
		mutate(&opts)
	}

	var logBuf bytes.Buffer
	pool := fileio.NewPool(4, 0)
	t.Cleanup(pool.Close)
	sfs, err := New(opts, pool, logger.New(&logBuf, nil, config.LogLevelDebug))
	require.NoError(t, err)
	return &testEnv{base: base, root: root, logBuf: &logBuf, sfs: sfs, pool: pool}
}

// write creates a file under root, making parent directories as needed.
func (e *testEnv) write(t *testing.T, rel, content string) string {
	t.Helper()
	p := filepath.Join(e.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func (e *testEnv) mkdir(t *testing.T, rel string) string {
	t.Helper()
	p := filepath.Join(e.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(p, 0o755))
	return p
}

func (e *testEnv) symlink(t *testing.T, target, rel string) {
	t.Helper()
	if err := os.Symlink(target, filepath.Join(e.root, filepath.FromSlash(rel))); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}
}

// get issues a GET for a raw request URI, which need not be parseable.
func (e *testEnv) get(t *testing.T, requestURI string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, http.MethodGet, requestURI, nil)
}

func (e *testEnv) do(t *testing.T, method, requestURI string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, "/", nil)
	req.RequestURI = requestURI
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	e.sfs.ServeHTTP(rec, req)
	return rec
}
