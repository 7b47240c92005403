package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
)

// writeTempFile creates a file with the given content and extension in a
// per-test temporary directory and returns its path.
func writeTempFile(t *testing.T, content string, ext string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test-config"+ext)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}
	return path
}

// checkErrorContains checks if the error is not nil and its message contains the expected substring.
func checkErrorContains(t *testing.T, err error, expectedSubstring string) {
	t.Helper()
	if err == nil {
		t.Fatalf("Expected an error containing %q, but got nil", expectedSubstring)
	}
	if !strings.Contains(err.Error(), expectedSubstring) {
		t.Fatalf("Expected error message to contain %q, but got: %v", expectedSubstring, err)
	}
}

func defaulted(t *testing.T, cfg *Config) *Config {
	t.Helper()
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	_, err := LoadConfig("")
	checkErrorContains(t, err, "configuration file path cannot be empty")
}

func TestLoadConfig_NonExistentFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "non_existent_file.json"))
	checkErrorContains(t, err, "failed to read configuration file")

	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Expected *ConfigError, got %T", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected error to wrap os.ErrNotExist, got %v", err)
	}
}

func TestLoadConfig_ValidJSON(t *testing.T) {
	content := `{"server": {"address": ":8080", "auth": "user:pass"}, "files": {"root_dir": "/srv/www", "extensions": true}}`
	path := writeTempFile(t, content, ".json")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed for valid JSON: %v", err)
	}
	if cfg.Server == nil || cfg.Server.Address == nil || *cfg.Server.Address != ":8080" {
		t.Errorf("Expected server address to be :8080, got %v", cfg.Server)
	}
	if cfg.Files == nil || cfg.Files.RootDir != "/srv/www" {
		t.Errorf("Expected root_dir /srv/www, got %+v", cfg.Files)
	}
	if !Enabled(cfg.Files.Extensions) {
		t.Error("Expected extensions to be enabled")
	}
}

func TestLoadConfig_ValidTOML(t *testing.T) {
	content := `
[server]
address = "0.0.0.0:9000"
file_io_workers = 8

[files]
root_dir = "site"
single_page_app = true
plain_text_extensions = ["nix"]

[files.mime_types]
".wasm" = "application/wasm"

[logging]
log_level = "DEBUG"
`
	path := writeTempFile(t, content, ".toml")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed for valid TOML: %v", err)
	}
	if *cfg.Server.Address != "0.0.0.0:9000" {
		t.Errorf("Expected address 0.0.0.0:9000, got %s", *cfg.Server.Address)
	}
	if *cfg.Server.FileIOWorkers != 8 {
		t.Errorf("Expected 8 workers, got %d", *cfg.Server.FileIOWorkers)
	}
	// Relative root is resolved against the config file's directory.
	wantRoot := filepath.Join(filepath.Dir(path), "site")
	if cfg.Files.RootDir != wantRoot {
		t.Errorf("Expected root %s, got %s", wantRoot, cfg.Files.RootDir)
	}
	if cfg.Files.MimeTypes[".wasm"] != "application/wasm" {
		t.Errorf("Expected .wasm mapping, got %v", cfg.Files.MimeTypes)
	}
	if cfg.Logging.LogLevel != LogLevelDebug {
		t.Errorf("Expected DEBUG, got %s", cfg.Logging.LogLevel)
	}
}

func TestLoadConfig_UnknownTOMLKey(t *testing.T) {
	path := writeTempFile(t, "[server]\nadress = \"x\"\n", ".toml")
	_, err := LoadConfig(path)
	checkErrorContains(t, err, "unknown configuration keys")
}

func TestLoadConfig_UnknownJSONKey(t *testing.T) {
	path := writeTempFile(t, `{"server": {"adress": "x"}}`, ".json")
	_, err := LoadConfig(path)
	checkErrorContains(t, err, "failed to parse JSON configuration")
}

func TestLoadConfig_SniffsFormatWithoutExtension(t *testing.T) {
	jsonPath := writeTempFile(t, `{"server": {"address": ":1"}}`, ".conf")
	cfg, err := LoadConfig(jsonPath)
	if err != nil {
		t.Fatalf("LoadConfig failed for sniffed JSON: %v", err)
	}
	if *cfg.Server.Address != ":1" {
		t.Errorf("Expected :1, got %s", *cfg.Server.Address)
	}

	tomlPath := writeTempFile(t, "[server]\naddress = \":2\"\n", "")
	cfg, err = LoadConfig(tomlPath)
	if err != nil {
		t.Fatalf("LoadConfig failed for sniffed TOML: %v", err)
	}
	if *cfg.Server.Address != ":2" {
		t.Errorf("Expected :2, got %s", *cfg.Server.Address)
	}
}

func TestLoadConfig_TOMLRoundTripOfDefaults(t *testing.T) {
	cfg := defaulted(t, nil)
	var sb strings.Builder
	if err := toml.NewEncoder(&sb).Encode(cfg); err != nil {
		t.Fatalf("Failed to encode defaults as TOML: %v", err)
	}
	path := writeTempFile(t, sb.String(), ".toml")
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed for encoded defaults: %v\n%s", err, sb.String())
	}
	if *loaded.Server.Address != DefaultAddress {
		t.Errorf("Expected default address after round trip, got %s", *loaded.Server.Address)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := defaulted(t, nil)

	if *cfg.Server.Address != DefaultAddress {
		t.Errorf("Expected default address %s, got %s", DefaultAddress, *cfg.Server.Address)
	}
	if *cfg.Server.FileIOWorkers != DefaultFileIOWorkers {
		t.Errorf("Expected %d workers, got %d", DefaultFileIOWorkers, *cfg.Server.FileIOWorkers)
	}
	if cfg.Files.RootDir != "." {
		t.Errorf("Expected root '.', got %q", cfg.Files.RootDir)
	}
	if Enabled(cfg.Files.Extensions) || Enabled(cfg.Files.AllowEscapeRoot) || Enabled(cfg.Files.SinglePageApp) {
		t.Errorf("Expected all feature flags off by default, got %+v", cfg.Files)
	}
	if cfg.Logging.LogLevel != LogLevelInfo {
		t.Errorf("Expected INFO, got %s", cfg.Logging.LogLevel)
	}
	if cfg.Logging.AccessLog.Target != "stdout" || cfg.Logging.ErrorLog.Target != "stderr" {
		t.Errorf("Unexpected log targets: %+v %+v", cfg.Logging.AccessLog, cfg.Logging.ErrorLog)
	}
	if cfg.ShutdownTimeout() != 10*time.Second {
		t.Errorf("Expected 10s shutdown timeout, got %s", cfg.ShutdownTimeout())
	}
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	cfg := defaulted(t, &Config{
		Server: &ServerConfig{Address: StrPtr(":1234")},
		Files:  &FilesConfig{RootDir: "/tmp", Extensions: BoolPtr(true)},
	})
	if *cfg.Server.Address != ":1234" {
		t.Errorf("Expected explicit address to be kept, got %s", *cfg.Server.Address)
	}
	if !Enabled(cfg.Files.Extensions) {
		t.Error("Expected explicit extensions flag to be kept")
	}
}

func TestValidate_CanonicalisesRoot(t *testing.T) {
	realRoot := t.TempDir()
	link := filepath.Join(t.TempDir(), "link")
	if err := os.Symlink(realRoot, link); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	cfg := defaulted(t, &Config{Files: &FilesConfig{RootDir: link}})
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	want, _ := filepath.EvalSymlinks(realRoot)
	if cfg.Files.RootDir != want {
		t.Errorf("Expected canonical root %s, got %s", want, cfg.Files.RootDir)
	}
}

func TestValidate_Errors(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "file.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"bad address", func(c *Config) { c.Server.Address = StrPtr("nonsense") }, "server.address"},
		{"bad metrics address", func(c *Config) { c.Server.MetricsAddress = StrPtr("nope") }, "server.metrics_address"},
		{"negative connections", func(c *Config) { c.Server.MaxConnections = IntPtr(-1) }, "server.max_connections"},
		{"zero workers", func(c *Config) { c.Server.FileIOWorkers = IntPtr(0) }, "server.file_io_workers"},
		{"bad timeout", func(c *Config) { c.Server.GracefulShutdownTimeout = StrPtr("soon") }, "server.graceful_shutdown_timeout"},
		{"bad auth", func(c *Config) { c.Server.Auth = StrPtr("nocolon") }, "server.auth"},
		{"missing root", func(c *Config) { c.Files.RootDir = filepath.Join(root, "missing") }, "files.root_dir"},
		{"root is file", func(c *Config) { c.Files.RootDir = file }, "not a directory"},
		{"mime without dot", func(c *Config) { c.Files.MimeTypes = map[string]string{"wasm": "application/wasm"} }, "must start with"},
		{"empty mime", func(c *Config) { c.Files.MimeTypes = map[string]string{".wasm": ""} }, "empty MIME type"},
		{"bad level", func(c *Config) { c.Logging.LogLevel = "LOUD" }, "logging.log_level"},
		{"bad access format", func(c *Config) { c.Logging.AccessLog.Format = "xml" }, "logging.access_log.format"},
		{"relative log file", func(c *Config) { c.Logging.ErrorLog.Target = "errors.log" }, "logging.error_log.target"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaulted(t, &Config{Files: &FilesConfig{RootDir: root}})
			tt.mutate(cfg)
			checkErrorContains(t, cfg.Validate(), tt.wantErr)
		})
	}
}

func TestValidate_MimeTypesFile(t *testing.T) {
	mimeFile := writeTempFile(t, `{".WASM": "application/x-wasm-file", ".dat": "application/x-dat"}`, ".json")
	cfg := defaulted(t, &Config{Files: &FilesConfig{
		RootDir:       t.TempDir(),
		MimeTypesFile: StrPtr(mimeFile),
		MimeTypes:     map[string]string{".dat": "application/x-inline"},
	}})
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}
	if got := cfg.Files.MimeTypes[".wasm"]; got != "application/x-wasm-file" {
		t.Errorf("Expected .wasm from file, got %q", got)
	}
	if got := cfg.Files.MimeTypes[".dat"]; got != "application/x-inline" {
		t.Errorf("Expected inline .dat to win over the file, got %q", got)
	}

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"no dot", `{"wasm": "application/wasm"}`, "must start with a '.'"},
		{"empty type", `{".wasm": ""}`, "empty MIME type"},
		{"not json", `.wasm = "application/wasm"`, "failed to parse JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaulted(t, &Config{Files: &FilesConfig{
				RootDir:       t.TempDir(),
				MimeTypesFile: StrPtr(writeTempFile(t, tt.content, ".json")),
			}})
			err := cfg.Validate()
			checkErrorContains(t, err, "files.mime_types_file")
			checkErrorContains(t, err, tt.wantErr)
		})
	}

	cfg = defaulted(t, &Config{Files: &FilesConfig{
		RootDir:       t.TempDir(),
		MimeTypesFile: StrPtr(filepath.Join(t.TempDir(), "missing.json")),
	}})
	checkErrorContains(t, cfg.Validate(), "failed to read MIME types file")
}

func TestValidate_ParsesCredentials(t *testing.T) {
	cfg := defaulted(t, &Config{
		Server: &ServerConfig{Auth: StrPtr("user:pa:ss")},
		Files:  &FilesConfig{RootDir: t.TempDir()},
	})
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if cfg.Server.Credentials == nil {
		t.Fatal("Expected credentials to be parsed")
	}
	if cfg.Server.Credentials.User != "user" || cfg.Server.Credentials.Password != "pa:ss" {
		t.Errorf("Unexpected credentials: %+v", cfg.Server.Credentials)
	}
}

func TestParseCredentials(t *testing.T) {
	if _, err := ParseCredentials(":pass"); err == nil {
		t.Error("Expected error for empty user")
	}
	creds, err := ParseCredentials("user:")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if creds.Password != "" {
		t.Errorf("Expected empty password, got %q", creds.Password)
	}
}

func TestConfigError_Message(t *testing.T) {
	err := &ConfigError{FilePath: "/etc/x.toml", Field: "server.address", Message: "bad", Err: errors.New("boom")}
	if got, want := err.Error(), "config /etc/x.toml: server.address: bad: boom"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, err.Err) {
		t.Error("Expected ConfigError to unwrap to its cause")
	}
}
