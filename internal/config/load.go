package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// ConfigError reports a problem with a configuration file or value.
type ConfigError struct {
	FilePath string
	Field    string
	Message  string
	Err      error
}

func (e *ConfigError) Error() string {
	var sb strings.Builder
	sb.WriteString("config")
	if e.FilePath != "" {
		sb.WriteString(" ")
		sb.WriteString(e.FilePath)
	}
	if e.Field != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Field)
	}
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *ConfigError) Unwrap() error { return e.Err }

// IsFilePath reports whether a log target names a file rather than a standard stream.
func IsFilePath(target string) bool {
	return target != "" && target != "stdout" && target != "stderr"
}

// LoadConfig reads a configuration file. The format is chosen by extension
// (.toml or .json); files with any other extension are sniffed, a leading
// '{' meaning JSON.
func LoadConfig(filePath string) (*Config, error) {
	if filePath == "" {
		return nil, &ConfigError{Message: "configuration file path cannot be empty"}
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, &ConfigError{FilePath: filePath, Message: "failed to read configuration file", Err: err}
	}

	format := strings.ToLower(filepath.Ext(filePath))
	if format != ".json" && format != ".toml" {
		if bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
			format = ".json"
		} else {
			format = ".toml"
		}
	}

	var cfg Config
	switch format {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return nil, &ConfigError{FilePath: filePath, Message: "failed to parse JSON configuration", Err: err}
		}
	default:
		md, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return nil, &ConfigError{FilePath: filePath, Message: "failed to parse TOML configuration", Err: err}
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, &ConfigError{FilePath: filePath, Message: fmt.Sprintf("unknown configuration keys: %v", undecoded)}
		}
	}

	// Relative roots in a config file are relative to the file, not the CWD.
	if cfg.Files != nil && cfg.Files.RootDir != "" && !filepath.IsAbs(cfg.Files.RootDir) {
		cfg.Files.RootDir = filepath.Join(filepath.Dir(filePath), cfg.Files.RootDir)
	}
	return &cfg, nil
}

// ApplyDefaults fills every unset field with its default value.
func (c *Config) ApplyDefaults() {
	if c.Server == nil {
		c.Server = &ServerConfig{}
	}
	if c.Server.Address == nil {
		c.Server.Address = StrPtr(DefaultAddress)
	}
	if c.Server.MaxConnections == nil {
		c.Server.MaxConnections = IntPtr(0)
	}
	if c.Server.FileIOWorkers == nil {
		c.Server.FileIOWorkers = IntPtr(DefaultFileIOWorkers)
	}
	if c.Server.GracefulShutdownTimeout == nil {
		c.Server.GracefulShutdownTimeout = StrPtr(DefaultGracefulShutdownTimeout)
	}

	if c.Files == nil {
		c.Files = &FilesConfig{}
	}
	if c.Files.RootDir == "" {
		c.Files.RootDir = DefaultRootDir
	}
	if c.Files.Extensions == nil {
		c.Files.Extensions = BoolPtr(false)
	}
	if c.Files.AllowEscapeRoot == nil {
		c.Files.AllowEscapeRoot = BoolPtr(false)
	}
	if c.Files.SinglePageApp == nil {
		c.Files.SinglePageApp = BoolPtr(false)
	}

	if c.Logging == nil {
		c.Logging = &LoggingConfig{}
	}
	if c.Logging.LogLevel == "" {
		c.Logging.LogLevel = LogLevelInfo
	}
	if c.Logging.AccessLog == nil {
		c.Logging.AccessLog = &AccessLogConfig{}
	}
	if c.Logging.AccessLog.Enabled == nil {
		c.Logging.AccessLog.Enabled = BoolPtr(true)
	}
	if c.Logging.AccessLog.Target == "" {
		c.Logging.AccessLog.Target = "stdout"
	}
	if c.Logging.AccessLog.Format == "" {
		c.Logging.AccessLog.Format = "json"
	}
	if c.Logging.ErrorLog == nil {
		c.Logging.ErrorLog = &ErrorLogConfig{}
	}
	if c.Logging.ErrorLog.Target == "" {
		c.Logging.ErrorLog.Target = "stderr"
	}
}

// Validate checks a defaulted configuration and resolves derived values: the
// root directory becomes absolute with symlinks evaluated, and the auth
// string is parsed into Credentials. Call ApplyDefaults first.
func (c *Config) Validate() error {
	if c.Server == nil || c.Files == nil || c.Logging == nil {
		return &ConfigError{Message: "configuration has not been defaulted"}
	}

	if _, _, err := net.SplitHostPort(*c.Server.Address); err != nil {
		return &ConfigError{Field: "server.address", Message: fmt.Sprintf("invalid address %q", *c.Server.Address), Err: err}
	}
	if c.Server.MetricsAddress != nil && *c.Server.MetricsAddress != "" {
		if _, _, err := net.SplitHostPort(*c.Server.MetricsAddress); err != nil {
			return &ConfigError{Field: "server.metrics_address", Message: fmt.Sprintf("invalid address %q", *c.Server.MetricsAddress), Err: err}
		}
	}
	if *c.Server.MaxConnections < 0 {
		return &ConfigError{Field: "server.max_connections", Message: "must not be negative"}
	}
	if *c.Server.FileIOWorkers <= 0 {
		return &ConfigError{Field: "server.file_io_workers", Message: "must be positive"}
	}
	if _, err := time.ParseDuration(*c.Server.GracefulShutdownTimeout); err != nil {
		return &ConfigError{Field: "server.graceful_shutdown_timeout", Message: "invalid duration", Err: err}
	}
	if c.Server.Auth != nil && *c.Server.Auth != "" {
		creds, err := ParseCredentials(*c.Server.Auth)
		if err != nil {
			return &ConfigError{Field: "server.auth", Message: "invalid credentials", Err: err}
		}
		c.Server.Credentials = creds
	}

	root, err := CanonicalRoot(c.Files.RootDir)
	if err != nil {
		return &ConfigError{Field: "files.root_dir", Message: "invalid root directory", Err: err}
	}
	c.Files.RootDir = root

	if c.Files.MimeTypesFile != nil && *c.Files.MimeTypesFile != "" {
		fromFile, err := LoadMimeTypesFile(*c.Files.MimeTypesFile)
		if err != nil {
			return &ConfigError{Field: "files.mime_types_file", Message: "cannot load MIME types", Err: err}
		}
		for ext, mimeType := range c.Files.MimeTypes {
			fromFile[strings.ToLower(ext)] = mimeType
		}
		c.Files.MimeTypes = fromFile
	}
	for ext, mimeType := range c.Files.MimeTypes {
		if !strings.HasPrefix(ext, ".") {
			return &ConfigError{Field: "files.mime_types", Message: fmt.Sprintf("extension %q must start with a '.'", ext)}
		}
		if mimeType == "" {
			return &ConfigError{Field: "files.mime_types", Message: fmt.Sprintf("empty MIME type for extension %q", ext)}
		}
	}

	switch c.Logging.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError:
	default:
		return &ConfigError{Field: "logging.log_level", Message: fmt.Sprintf("unknown level %q", c.Logging.LogLevel)}
	}
	if f := c.Logging.AccessLog.Format; f != "json" && f != "text" {
		return &ConfigError{Field: "logging.access_log.format", Message: fmt.Sprintf("unknown format %q", f)}
	}
	if t := c.Logging.AccessLog.Target; IsFilePath(t) && !filepath.IsAbs(t) {
		return &ConfigError{Field: "logging.access_log.target", Message: "file targets must be absolute paths"}
	}
	if t := c.Logging.ErrorLog.Target; IsFilePath(t) && !filepath.IsAbs(t) {
		return &ConfigError{Field: "logging.error_log.target", Message: "file targets must be absolute paths"}
	}
	return nil
}

// ShutdownTimeout returns the parsed graceful shutdown timeout.
// LoadMimeTypesFile reads a JSON object mapping ".ext" to a MIME type.
// Extensions are lowercased; each must start with '.' and map to a
// non-empty type.
func LoadMimeTypesFile(filePath string) (map[string]string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read MIME types file %q: %w", filePath, err)
	}
	var parsed map[string]string
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse JSON from MIME types file %q: %w", filePath, err)
	}
	mimeTypes := make(map[string]string, len(parsed))
	for ext, mimeType := range parsed {
		if !strings.HasPrefix(ext, ".") {
			return nil, fmt.Errorf("invalid extension %q in MIME types file %q: must start with a '.'", ext, filePath)
		}
		if mimeType == "" {
			return nil, fmt.Errorf("empty MIME type for extension %q in MIME types file %q", ext, filePath)
		}
		mimeTypes[strings.ToLower(ext)] = mimeType
	}
	return mimeTypes, nil
}

func (c *Config) ShutdownTimeout() time.Duration {
	if c.Server == nil || c.Server.GracefulShutdownTimeout == nil {
		d, _ := time.ParseDuration(DefaultGracefulShutdownTimeout)
		return d
	}
	d, err := time.ParseDuration(*c.Server.GracefulShutdownTimeout)
	if err != nil {
		d, _ = time.ParseDuration(DefaultGracefulShutdownTimeout)
	}
	return d
}

// CanonicalRoot makes dir absolute, evaluates symlinks and checks that the
// result is a directory.
func CanonicalRoot(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	fi, err := os.Stat(canonical)
	if err != nil {
		return "", err
	}
	if !fi.IsDir() {
		return "", fmt.Errorf("%s is not a directory", canonical)
	}
	return canonical, nil
}

// ParseCredentials splits "USER:PASS" on the first colon. The password may
// itself contain colons; the user may not be empty.
func ParseCredentials(s string) (*Credentials, error) {
	user, pass, ok := strings.Cut(s, ":")
	if !ok {
		return nil, fmt.Errorf("expected USER:PASS")
	}
	if user == "" {
		return nil, fmt.Errorf("user must not be empty")
	}
	return &Credentials{User: user, Password: pass}, nil
}
