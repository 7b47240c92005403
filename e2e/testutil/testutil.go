// Package testutil runs a real basichttpd server in-process and talks to it
// over TCP with hand-written requests, so that request targets reach the
// server byte for byte.
package testutil

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BurntSushi/toml"

	"example.com/basichttpd/internal/config"
	"example.com/basichttpd/internal/logger"
	"example.com/basichttpd/internal/server"
)

// TestRequest models an HTTP request for E2E testing.
type TestRequest struct {
	Method  string
	Path    string // raw request target, sent as is, e.g. "/a%20b?x=1"
	Headers http.Header
}

// HeaderMatcher maps header names to their expected exact values.
type HeaderMatcher map[string]string

// BodyMatcher defines a way to match the response body.
type BodyMatcher interface {
	Match(body []byte) (bool, string) // match status and a description of the mismatch
}

// ExactBodyMatcher matches the body exactly.
type ExactBodyMatcher struct {
	ExpectedBody []byte
}

func (m *ExactBodyMatcher) Match(body []byte) (bool, string) {
	if bytes.Equal(m.ExpectedBody, body) {
		return true, ""
	}
	return false, fmt.Sprintf("bodies do not match exactly. Expected: %q, Got: %q", string(m.ExpectedBody), string(body))
}

// StringContainsBodyMatcher checks if the body contains a specific substring.
type StringContainsBodyMatcher struct {
	Substring string
}

func (m *StringContainsBodyMatcher) Match(body []byte) (bool, string) {
	if bytes.Contains(body, []byte(m.Substring)) {
		return true, ""
	}
	return false, fmt.Sprintf("body does not contain substring: %q. Body: %q", m.Substring, string(body))
}

// ExpectedResponse models the expected outcome of an HTTP request.
type ExpectedResponse struct {
	StatusCode   int
	Headers      HeaderMatcher
	BodyMatcher  BodyMatcher
	ExpectNoBody bool // if true, BodyMatcher is ignored and the body must be empty
}

// ActualResponse stores what the server sent back.
type ActualResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// syncBuffer collects server logs written from many goroutines.
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

// ServerInstance is a running test server.
type ServerInstance struct {
	Config  *config.Config
	Address string // e.g. "127.0.0.1:41234"
	Logs    *syncBuffer

	cancel context.CancelFunc
	done   chan error
}

// LogOutput returns everything logged so far.
func (s *ServerInstance) LogOutput() string { return s.Logs.String() }

// Stop shuts the server down and waits for it.
func (s *ServerInstance) Stop() error {
	s.cancel()
	select {
	case err := <-s.done:
		return err
	case <-time.After(10 * time.Second):
		return fmt.Errorf("server did not stop within 10s")
	}
}

// WriteTempConfig writes configData as a JSON or TOML file under t.TempDir()
// and returns its path.
func WriteTempConfig(t *testing.T, configData interface{}, format string) string {
	t.Helper()
	var data []byte
	var err error
	switch strings.ToLower(format) {
	case "json":
		data, err = json.MarshalIndent(configData, "", "  ")
	case "toml":
		buf := new(bytes.Buffer)
		if err = toml.NewEncoder(buf).Encode(configData); err == nil {
			data = buf.Bytes()
		}
	default:
		err = fmt.Errorf("unsupported config format: %s", format)
	}
	if err != nil {
		t.Fatalf("failed to marshal config data to %s: %v", format, err)
	}
	path := filepath.Join(t.TempDir(), "basichttpd."+strings.ToLower(format))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write temp config file: %v", err)
	}
	return path
}

// StartTestServer loads configPath, binds an ephemeral port and serves until
// the test ends.
func StartTestServer(t *testing.T, configPath string) *ServerInstance {
	t.Helper()
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Server == nil {
		cfg.Server = &config.ServerConfig{}
	}
	cfg.Server.Address = config.StrPtr("127.0.0.1:0")
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("invalid config: %v", err)
	}

	logs := &syncBuffer{}
	srv, err := server.NewServer(cfg, logger.New(logs, logs, config.LogLevelDebug))
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	if err := srv.Listen(); err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	inst := &ServerInstance{
		Config:  cfg,
		Address: srv.Addr().String(),
		Logs:    logs,
		cancel:  cancel,
		done:    make(chan error, 1),
	}
	go func() { inst.done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		if err := inst.Stop(); err != nil {
			t.Errorf("error stopping server: %v", err)
		}
		if t.Failed() {
			t.Logf("server logs:\n%s", inst.LogOutput())
		}
	})
	return inst
}

// RawHTTPClient writes HTTP/1.1 requests by hand. Unlike net/http's client
// it never cleans or re-encodes the request target.
type RawHTTPClient struct {
	Timeout time.Duration
}

// Do sends one request on a fresh connection and reads the response.
func (c *RawHTTPClient) Do(serverAddr string, request TestRequest) (ActualResponse, error) {
	timeout := c.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	conn, err := net.DialTimeout("tcp", serverAddr, timeout)
	if err != nil {
		return ActualResponse{}, fmt.Errorf("dial %s: %w", serverAddr, err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(timeout))

	method := request.Method
	if method == "" {
		method = http.MethodGet
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s HTTP/1.1\r\nHost: %s\r\nConnection: close\r\n", method, request.Path, serverAddr)
	for name, values := range request.Headers {
		for _, v := range values {
			fmt.Fprintf(&sb, "%s: %s\r\n", name, v)
		}
	}
	sb.WriteString("\r\n")
	if _, err := io.WriteString(conn, sb.String()); err != nil {
		return ActualResponse{}, fmt.Errorf("write request: %w", err)
	}

	resp, err := http.ReadResponse(bufio.NewReader(conn), &http.Request{Method: method})
	if err != nil {
		return ActualResponse{}, fmt.Errorf("read response: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ActualResponse{}, fmt.Errorf("read body: %w", err)
	}
	return ActualResponse{StatusCode: resp.StatusCode, Headers: resp.Header, Body: body}, nil
}

// AssertResponse checks actual against expected and reports every mismatch.
func AssertResponse(t *testing.T, name string, actual ActualResponse, expected ExpectedResponse) {
	t.Helper()
	if actual.StatusCode != expected.StatusCode {
		t.Errorf("%s: status = %d, want %d (body %q)", name, actual.StatusCode, expected.StatusCode, string(actual.Body))
	}
	for k, v := range expected.Headers {
		if got := actual.Headers.Get(k); got != v {
			t.Errorf("%s: header %s = %q, want %q", name, k, got, v)
		}
	}
	if expected.ExpectNoBody {
		if len(actual.Body) != 0 {
			t.Errorf("%s: expected empty body, got %q", name, string(actual.Body))
		}
		return
	}
	if expected.BodyMatcher != nil {
		if ok, msg := expected.BodyMatcher.Match(actual.Body); !ok {
			t.Errorf("%s: %s", name, msg)
		}
	}
}
