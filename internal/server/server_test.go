package server

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/basichttpd/internal/config"
	"example.com/basichttpd/internal/logger"
)

// syncBuffer is a bytes.Buffer safe for the concurrent writes of a live server.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestConfig(t *testing.T, root string, mutate func(*config.Config)) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Server: &config.ServerConfig{
			Address:                 config.StrPtr("127.0.0.1:0"),
			GracefulShutdownTimeout: config.StrPtr("2s"),
		},
		Files: &config.FilesConfig{RootDir: root},
	}
	if mutate != nil {
		mutate(cfg)
	}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())
	return cfg
}

// startServer runs srv until the test ends and returns its base URL.
func startServer(t *testing.T, srv *Server) string {
	t.Helper()
	require.NoError(t, srv.Listen())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not shut down")
		}
	})
	return "http://" + srv.Addr().String()
}

func fetch(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

// scrape is fetch for use inside assert.Eventually, where require must not be called.
func scrape(url string) string {
	resp, err := http.Get(url)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return string(body)
}

func TestNewServer_NilArgs(t *testing.T) {
	_, err := NewServer(nil, logger.NewDiscardLogger())
	assert.Error(t, err)
	_, err = NewServer(newTestConfig(t, t.TempDir(), nil), nil)
	assert.Error(t, err)
	_, err = NewServer(&config.Config{}, logger.NewDiscardLogger())
	assert.Error(t, err)
}

func TestServer_ServesFilesWithMiddleware(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("hello"), 0o644))

	var errLog, accessLog syncBuffer
	lg := logger.New(&errLog, &accessLog, config.LogLevelDebug)
	cfg := newTestConfig(t, root, func(c *config.Config) {
		c.Server.MetricsAddress = config.StrPtr("127.0.0.1:0")
		c.Server.MaxConnections = config.IntPtr(2)
	})
	srv, err := NewServer(cfg, lg)
	require.NoError(t, err)
	base := startServer(t, srv)

	resp, body := fetch(t, base+"/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello", body)
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))

	resp, _ = fetch(t, base+"/missing")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Metrics and access log entries are recorded after the response is sent.
	require.NotNil(t, srv.MetricsAddr())
	metricsURL := "http://" + srv.MetricsAddr().String() + "/metrics"
	assert.Eventually(t, func() bool {
		metrics := scrape(metricsURL)
		return strings.Contains(metrics, `basichttpd_requests_total{code="200"} 1`) &&
			strings.Contains(metrics, `basichttpd_requests_total{code="404"} 1`) &&
			strings.Contains(metrics, "basichttpd_fileio_inflight")
	}, time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		return strings.Count(accessLog.String(), "\n") >= 2
	}, time.Second, 10*time.Millisecond)
	assert.Contains(t, accessLog.String(), `"status":404`)
}

func TestServer_NoMetricsListenerByDefault(t *testing.T) {
	srv, err := NewServer(newTestConfig(t, t.TempDir(), nil), logger.NewDiscardLogger())
	require.NoError(t, err)
	startServer(t, srv)
	assert.Nil(t, srv.MetricsAddr())
}

func TestServer_ListenError(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	cfg := newTestConfig(t, t.TempDir(), func(c *config.Config) {
		c.Server.Address = config.StrPtr(taken.Addr().String())
	})
	srv, err := NewServer(cfg, logger.NewDiscardLogger())
	require.NoError(t, err)
	assert.Error(t, srv.Listen())
	assert.Nil(t, srv.Addr())
}

func TestServer_ServeWithoutListen(t *testing.T) {
	srv, err := NewServer(newTestConfig(t, t.TempDir(), nil), logger.NewDiscardLogger())
	require.NoError(t, err)
	assert.Error(t, srv.Serve(context.Background()))
}

func TestServer_ShutdownReleasesPool(t *testing.T) {
	srv, err := NewServer(newTestConfig(t, t.TempDir(), nil), logger.NewDiscardLogger())
	require.NoError(t, err)
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	cancel()
	require.NoError(t, <-done)

	err = srv.pool.Do(context.Background(), func() {})
	assert.Error(t, err)
	_, err = net.DialTimeout("tcp", srv.Addr().String(), 200*time.Millisecond)
	assert.Error(t, err)
}
