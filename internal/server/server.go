package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/net/netutil"

	"example.com/basichttpd/internal/config"
	"example.com/basichttpd/internal/fileio"
	"example.com/basichttpd/internal/handlers/staticfile"
	"example.com/basichttpd/internal/logger"
)

// readHeaderTimeout bounds how long a client may take to send request headers.
const readHeaderTimeout = 10 * time.Second

// Server manages the HTTP server lifecycle: listening sockets, the file I/O
// pool, the optional metrics listener and graceful shutdown.
type Server struct {
	cfg     *config.Config
	log     *logger.Logger
	pool    *fileio.Pool
	metrics *Metrics

	httpServer    *http.Server
	metricsServer *http.Server

	mu              sync.Mutex
	listener        net.Listener
	metricsListener net.Listener
}

// NewServer builds a server from a defaulted and validated configuration.
func NewServer(cfg *config.Config, lg *logger.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if lg == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.Server == nil || cfg.Files == nil {
		return nil, fmt.Errorf("config has not been defaulted")
	}

	pool := fileio.NewPool(*cfg.Server.FileIOWorkers, 0)
	sfs, err := staticfile.New(staticfile.OptionsFromConfig(cfg), pool, lg)
	if err != nil {
		pool.Close()
		return nil, err
	}

	s := &Server{
		cfg:     cfg,
		log:     lg,
		pool:    pool,
		metrics: NewMetrics(pool),
	}
	s.httpServer = &http.Server{
		Handler:           s.wrap(sfs),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	if s.metricsEnabled() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", s.metrics.Handler())
		s.metricsServer = &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: readHeaderTimeout,
		}
	}
	return s, nil
}

// wrap installs the middleware chain around h. The outermost layer runs
// first: request ID, access log, metrics, then panic recovery, so that a
// recovered panic is still logged and counted as a 500.
func (s *Server) wrap(h http.Handler) http.Handler {
	h = RecoveryMiddleware(s.log)(h)
	h = MetricsMiddleware(s.metrics)(h)
	h = AccessLogMiddleware(s.log)(h)
	h = RequestIDMiddleware()(h)
	return h
}

func (s *Server) metricsEnabled() bool {
	return s.cfg.Server.MetricsAddress != nil && *s.cfg.Server.MetricsAddress != ""
}

// Listen binds the configured addresses. Binding happens before serving so
// that address errors surface as startup failures.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	addr := *s.cfg.Server.Address
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if limit := *s.cfg.Server.MaxConnections; limit > 0 {
		ln = netutil.LimitListener(ln, limit)
	}
	s.listener = ln
	s.log.Info("Listening", logger.LogFields{
		"address":         ln.Addr().String(),
		"root":            s.cfg.Files.RootDir,
		"max_connections": *s.cfg.Server.MaxConnections,
	})

	if s.metricsServer != nil {
		maddr := *s.cfg.Server.MetricsAddress
		mln, err := net.Listen("tcp", maddr)
		if err != nil {
			s.listener.Close()
			s.listener = nil
			return fmt.Errorf("failed to listen for metrics on %s: %w", maddr, err)
		}
		s.metricsListener = mln
		s.log.Info("Metrics listening", logger.LogFields{"address": mln.Addr().String()})
	}
	return nil
}

// Addr returns the bound address of the main listener, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// MetricsAddr returns the bound address of the metrics listener, or nil.
func (s *Server) MetricsAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.metricsListener == nil {
		return nil
	}
	return s.metricsListener.Addr()
}

// Serve accepts connections until ctx is done or a listener fails, then
// shuts down gracefully. Listen must have been called.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln, mln := s.listener, s.metricsListener
	s.mu.Unlock()
	if ln == nil {
		return fmt.Errorf("server is not listening")
	}

	errCh := make(chan error, 2)
	go func() { errCh <- s.httpServer.Serve(ln) }()
	if mln != nil {
		go func() { errCh <- s.metricsServer.Serve(mln) }()
	}

	var serveErr error
	select {
	case <-ctx.Done():
		s.log.Info("Shutting down server", logger.LogFields{"timeout": s.cfg.ShutdownTimeout().String()})
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
			s.log.Error("Server stopped unexpectedly", logger.LogFields{"error": err})
		}
	}

	if err := s.shutdown(); err != nil && serveErr == nil {
		serveErr = err
	}
	return serveErr
}

// Start listens and serves until SIGINT or SIGTERM.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Serve(ctx)
}

// shutdown stops accepting, waits up to the configured timeout for in-flight
// requests and then releases the file I/O pool.
func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout())
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	if err != nil {
		s.log.Warn("Graceful shutdown timed out, closing remaining connections", logger.LogFields{"error": err})
		s.httpServer.Close()
	}
	if s.metricsServer != nil {
		if merr := s.metricsServer.Shutdown(ctx); merr != nil {
			s.metricsServer.Close()
		}
	}
	s.pool.Close()
	s.log.Info("Server shut down", nil)
	return err
}
