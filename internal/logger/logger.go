package logger

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"example.com/basichttpd/internal/config"
)

// LevelEnvVar overrides the configured log level when set (debug, info, warn, error).
const LevelEnvVar = "BASIC_HTTP_SERVER_LOG"

// LogFields carries structured key/value pairs for a single log line.
type LogFields map[string]interface{}

// parsedProxiesContainer holds pre-parsed trusted proxy IP addresses and CIDR blocks.
type parsedProxiesContainer struct {
	cidrs []*net.IPNet
	ips   []net.IP
}

// Logger writes error-log lines and access-log lines. Both are zerolog
// loggers; the access logger is nil when access logging is disabled.
type Logger struct {
	errorLog  zerolog.Logger
	accessLog *zerolog.Logger

	accessFormat  string
	realIPHeader  string
	parsedProxies parsedProxiesContainer

	mu      sync.Mutex
	closers []io.Closer
}

// NewLogger creates and configures a new Logger instance. The level from
// LevelEnvVar, when set and valid, takes precedence over cfg.LogLevel.
func NewLogger(cfg *config.LoggingConfig) (*Logger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("logging configuration cannot be nil")
	}

	l := &Logger{}

	errTarget := "stderr"
	if cfg.ErrorLog != nil && cfg.ErrorLog.Target != "" {
		errTarget = cfg.ErrorLog.Target
	}
	errOut, err := l.openTarget(errTarget)
	if err != nil {
		return nil, fmt.Errorf("failed to open error log target %s: %w", errTarget, err)
	}

	var accessOut io.Writer
	if cfg.AccessLog != nil && (cfg.AccessLog.Enabled == nil || *cfg.AccessLog.Enabled) {
		target := cfg.AccessLog.Target
		if target == "" {
			target = "stdout"
		}
		accessOut, err = l.openTarget(target)
		if err != nil {
			l.CloseLogFiles()
			return nil, fmt.Errorf("failed to open access log target %s: %w", target, err)
		}

		parsed, errP := preParseTrustedProxies(cfg.AccessLog.TrustedProxies)
		if errP != nil {
			l.CloseLogFiles()
			return nil, fmt.Errorf("failed to parse trusted proxies for access log: %w", errP)
		}
		l.parsedProxies = parsed
		l.accessFormat = cfg.AccessLog.Format
		if cfg.AccessLog.RealIPHeader != nil {
			l.realIPHeader = *cfg.AccessLog.RealIPHeader
		}
	}

	level := cfg.LogLevel
	if envLevel, ok := levelFromEnv(); ok {
		level = envLevel
	}

	l.errorLog = newZerolog(errOut, level)
	if accessOut != nil {
		al := zerolog.New(accessOut).With().Timestamp().Logger()
		l.accessLog = &al
	}
	return l, nil
}

// New builds a Logger over arbitrary writers. accessOut may be nil to
// disable access logging.
func New(errOut, accessOut io.Writer, level config.LogLevel) *Logger {
	l := &Logger{errorLog: newZerolog(errOut, level), accessFormat: "json"}
	if accessOut != nil {
		al := zerolog.New(accessOut).With().Timestamp().Logger()
		l.accessLog = &al
	}
	return l
}

// NewDiscardLogger returns a logger that drops everything.
func NewDiscardLogger() *Logger {
	return &Logger{errorLog: zerolog.Nop()}
}

func newZerolog(w io.Writer, level config.LogLevel) zerolog.Logger {
	return zerolog.New(w).Level(toZerologLevel(level)).With().Timestamp().Logger()
}

func toZerologLevel(level config.LogLevel) zerolog.Level {
	switch level {
	case config.LogLevelDebug:
		return zerolog.DebugLevel
	case config.LogLevelWarning:
		return zerolog.WarnLevel
	case config.LogLevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// levelFromEnv reads LevelEnvVar using zerolog's level names.
func levelFromEnv() (config.LogLevel, bool) {
	raw := strings.TrimSpace(os.Getenv(LevelEnvVar))
	if raw == "" {
		return "", false
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(raw))
	if err != nil {
		return "", false
	}
	switch {
	case lvl <= zerolog.DebugLevel:
		return config.LogLevelDebug, true
	case lvl == zerolog.InfoLevel:
		return config.LogLevelInfo, true
	case lvl == zerolog.WarnLevel:
		return config.LogLevelWarning, true
	default:
		return config.LogLevelError, true
	}
}

func (l *Logger) openTarget(target string) (io.Writer, error) {
	switch target {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	if !config.IsFilePath(target) {
		return nil, fmt.Errorf("invalid log target: %q", target)
	}
	f, err := os.OpenFile(target, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.closers = append(l.closers, f)
	l.mu.Unlock()
	return f, nil
}

func (l *Logger) emit(ev *zerolog.Event, msg string, fields []LogFields) {
	if ev == nil {
		return
	}
	for _, f := range fields {
		for k, v := range f {
			if err, ok := v.(error); ok {
				ev = ev.Str(k, err.Error())
				continue
			}
			ev = ev.Interface(k, v)
		}
	}
	ev.Msg(msg)
}

func (l *Logger) Debug(msg string, fields ...LogFields) { l.emit(l.errorLog.Debug(), msg, fields) }
func (l *Logger) Info(msg string, fields ...LogFields)  { l.emit(l.errorLog.Info(), msg, fields) }
func (l *Logger) Warn(msg string, fields ...LogFields)  { l.emit(l.errorLog.Warn(), msg, fields) }
func (l *Logger) Error(msg string, fields ...LogFields) { l.emit(l.errorLog.Error(), msg, fields) }

// DebugEnabled reports whether debug lines would be written.
func (l *Logger) DebugEnabled() bool {
	return l.errorLog.GetLevel() <= zerolog.DebugLevel
}

// Access writes one access-log entry for a completed request.
func (l *Logger) Access(req *http.Request, requestID string, status int, responseBytes int64, duration time.Duration) {
	if l.accessLog == nil {
		return
	}

	_, clientPort, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		clientPort = "0"
	}
	remote := getRealClientIP(req.RemoteAddr, req.Header, l.realIPHeader, l.parsedProxies)

	if l.accessFormat == "text" {
		l.accessLog.Log().Msg(fmt.Sprintf("%s %s %s %d %d %dms %s",
			remote, req.Method, req.RequestURI, status, responseBytes, duration.Milliseconds(), requestID))
		return
	}

	ev := l.accessLog.Log().
		Str("request_id", requestID).
		Str("remote_addr", remote).
		Str("remote_port", clientPort).
		Str("protocol", req.Proto).
		Str("method", req.Method).
		Str("uri", req.RequestURI).
		Int("status", status).
		Int64("resp_bytes", responseBytes).
		Int64("duration_ms", duration.Milliseconds())
	if ua := req.UserAgent(); ua != "" {
		ev = ev.Str("user_agent", ua)
	}
	if ref := req.Referer(); ref != "" {
		ev = ev.Str("referer", ref)
	}
	ev.Send()
}

// CloseLogFiles closes any log files opened by NewLogger.
func (l *Logger) CloseLogFiles() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	for _, c := range l.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.closers = nil
	return firstErr
}

// preParseTrustedProxies converts string representations of IPs and CIDRs
// into net.IP and *net.IPNet objects for efficient checking.
func preParseTrustedProxies(proxyStrings []string) (parsedProxiesContainer, error) {
	var container parsedProxiesContainer
	for _, pStr := range proxyStrings {
		pStr = strings.TrimSpace(pStr)
		if pStr == "" {
			continue
		}
		if strings.Contains(pStr, "/") {
			_, ipNet, err := net.ParseCIDR(pStr)
			if err != nil {
				return parsedProxiesContainer{}, fmt.Errorf("invalid CIDR string in trusted_proxies '%s': %w", pStr, err)
			}
			container.cidrs = append(container.cidrs, ipNet)
		} else {
			ip := net.ParseIP(pStr)
			if ip == nil {
				return parsedProxiesContainer{}, fmt.Errorf("invalid IP string in trusted_proxies '%s'", pStr)
			}
			container.ips = append(container.ips, ip)
		}
	}
	return container, nil
}

func isIPTrusted(ip net.IP, trustedProxies parsedProxiesContainer) bool {
	if ip == nil {
		return false
	}
	for _, trustedCIDR := range trustedProxies.cidrs {
		if trustedCIDR.Contains(ip) {
			return true
		}
	}
	for _, trustedIP := range trustedProxies.ips {
		if trustedIP.Equal(ip) {
			return true
		}
	}
	return false
}

// getRealClientIP determines the client's address. The real-IP header is
// walked right to left and the first address that is not a trusted proxy
// wins; a malformed entry makes the direct peer address win.
func getRealClientIP(remoteAddr string, headers http.Header, realIPHeaderName string, trustedProxies parsedProxiesContainer) string {
	peer := remoteAddr
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		peer = host
	} else if ip := net.ParseIP(remoteAddr); ip != nil {
		peer = ip.String()
	}

	if realIPHeaderName == "" {
		return peer
	}
	headerValue := headers.Get(realIPHeaderName)
	if headerValue == "" {
		return peer
	}

	ipsInHeader := strings.Split(headerValue, ",")
	for i := len(ipsInHeader) - 1; i >= 0; i-- {
		ipStr := strings.TrimSpace(ipsInHeader[i])
		if ipStr == "" {
			continue
		}
		ip := net.ParseIP(ipStr)
		if ip == nil {
			return peer
		}
		if !isIPTrusted(ip, trustedProxies) {
			return ipStr
		}
	}
	return peer
}
