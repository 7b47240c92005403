package config

// LogLevel defines the minimum severity for error logs.
type LogLevel string

const (
	LogLevelDebug   LogLevel = "DEBUG"
	LogLevelInfo    LogLevel = "INFO"
	LogLevelWarning LogLevel = "WARNING"
	LogLevelError   LogLevel = "ERROR"
)

// Default values applied by ApplyDefaults.
const (
	DefaultAddress                 = "127.0.0.1:4000"
	DefaultRootDir                 = "."
	DefaultFileIOWorkers           = 100
	DefaultGracefulShutdownTimeout = "10s"
	DefaultRealm                   = "basic-http-server"
)

// Config is the top-level configuration structure for the server.
type Config struct {
	Server  *ServerConfig  `json:"server,omitempty" toml:"server,omitempty"`
	Files   *FilesConfig   `json:"files,omitempty" toml:"files,omitempty"`
	Logging *LoggingConfig `json:"logging,omitempty" toml:"logging,omitempty"`
}

// ServerConfig holds general server settings.
type ServerConfig struct {
	Address                 *string `json:"address,omitempty" toml:"address,omitempty"`
	MetricsAddress          *string `json:"metrics_address,omitempty" toml:"metrics_address,omitempty"` // empty disables the metrics listener
	MaxConnections          *int    `json:"max_connections,omitempty" toml:"max_connections,omitempty"` // 0 means unlimited
	FileIOWorkers           *int    `json:"file_io_workers,omitempty" toml:"file_io_workers,omitempty"`
	GracefulShutdownTimeout *string `json:"graceful_shutdown_timeout,omitempty" toml:"graceful_shutdown_timeout,omitempty"` // e.g., "10s"
	Auth                    *string `json:"auth,omitempty" toml:"auth,omitempty"`                       // "USER:PASS"

	// Populated by Validate.
	Credentials *Credentials `json:"-" toml:"-"`
}

// FilesConfig describes what is served and which developer extensions are on.
type FilesConfig struct {
	RootDir             string            `json:"root_dir" toml:"root_dir"`
	Extensions          *bool             `json:"extensions,omitempty" toml:"extensions,omitempty"`
	AllowEscapeRoot     *bool             `json:"allow_escape_root,omitempty" toml:"allow_escape_root,omitempty"`
	SinglePageApp       *bool             `json:"single_page_app,omitempty" toml:"single_page_app,omitempty"`
	MimeTypes           map[string]string `json:"mime_types,omitempty" toml:"mime_types,omitempty"`           // ".ext" -> "type/subtype"
	MimeTypesFile       *string           `json:"mime_types_file,omitempty" toml:"mime_types_file,omitempty"` // JSON object of the same shape; mime_types wins
	PlainTextExtensions []string          `json:"plain_text_extensions,omitempty" toml:"plain_text_extensions,omitempty"`
}

// LoggingConfig holds logging configurations.
type LoggingConfig struct {
	LogLevel  LogLevel         `json:"log_level,omitempty" toml:"log_level,omitempty"`
	AccessLog *AccessLogConfig `json:"access_log,omitempty" toml:"access_log,omitempty"`
	ErrorLog  *ErrorLogConfig  `json:"error_log,omitempty" toml:"error_log,omitempty"`
}

// AccessLogConfig configures access logging.
type AccessLogConfig struct {
	Enabled        *bool    `json:"enabled,omitempty" toml:"enabled,omitempty"`
	Target         string   `json:"target,omitempty" toml:"target,omitempty"` // "stdout", "stderr" or an absolute file path
	Format         string   `json:"format,omitempty" toml:"format,omitempty"` // "json" or "text"
	TrustedProxies []string `json:"trusted_proxies,omitempty" toml:"trusted_proxies,omitempty"`
	RealIPHeader   *string  `json:"real_ip_header,omitempty" toml:"real_ip_header,omitempty"`
}

// ErrorLogConfig configures error logging.
type ErrorLogConfig struct {
	Target string `json:"target,omitempty" toml:"target,omitempty"`
}

// Credentials is a parsed HTTP Basic auth pair.
type Credentials struct {
	User     string
	Password string
}

// Enabled reports whether the flag pointer is set and true.
func Enabled(b *bool) bool {
	return b != nil && *b
}

// BoolPtr returns a pointer to b.
func BoolPtr(b bool) *bool { return &b }

// StrPtr returns a pointer to s.
func StrPtr(s string) *string { return &s }

// IntPtr returns a pointer to i.
func IntPtr(i int) *int { return &i }
