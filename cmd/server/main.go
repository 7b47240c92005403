package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"example.com/basichttpd/internal/config"
	"example.com/basichttpd/internal/logger"
	"example.com/basichttpd/internal/server"
)

// cliFlags are the command-line overrides. A flag only replaces a config
// file value when it was given explicitly.
type cliFlags struct {
	configPath      string
	addr            string
	metricsAddr     string
	auth            string
	extensions      bool
	allowEscapeRoot bool
	spa             bool
}

func main() {
	if err := newRootCommand(run).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "basichttpd: %v\n", err)
		os.Exit(1)
	}
}

// newRootCommand builds the CLI; runFn receives the validated configuration.
func newRootCommand(runFn func(*config.Config) error) *cobra.Command {
	var flags cliFlags
	cmd := &cobra.Command{
		Use:   "basichttpd [ROOT]",
		Short: "Serve a directory over HTTP",
		Long: `basichttpd serves the files under ROOT (default ".") over HTTP/1.1.

With --extensions it also renders markdown, lists directories and serves
source files as plain text. Set BASIC_HTTP_SERVER_LOG to debug, info, warn
or error to change the log level.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildConfig(cmd, &flags, args)
			if err != nil {
				return err
			}
			return runFn(cfg)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.configPath, "config", "c", "", "configuration file (TOML or JSON)")
	f.StringVarP(&flags.addr, "addr", "a", config.DefaultAddress, "address to listen on")
	f.StringVar(&flags.metricsAddr, "metrics-addr", "", "address for the Prometheus metrics listener (disabled when empty)")
	f.StringVar(&flags.auth, "auth", "", "require HTTP Basic auth as USER:PASS")
	f.BoolVarP(&flags.extensions, "extensions", "x", false, "enable markdown, directory listings and plain-text source files")
	f.BoolVar(&flags.allowEscapeRoot, "allow-escape-root", false, "follow symlinks and '..' out of the root directory")
	f.BoolVar(&flags.spa, "spa", false, "serve the root index.html for missing paths (needs --extensions)")
	return cmd
}

// buildConfig merges the config file, explicit flags and the positional
// root, then applies defaults and validates.
func buildConfig(cmd *cobra.Command, flags *cliFlags, args []string) (*config.Config, error) {
	cfg := &config.Config{}
	if flags.configPath != "" {
		loaded, err := config.LoadConfig(flags.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if cfg.Server == nil {
		cfg.Server = &config.ServerConfig{}
	}
	if cfg.Files == nil {
		cfg.Files = &config.FilesConfig{}
	}

	changed := cmd.Flags().Changed
	if changed("addr") {
		cfg.Server.Address = config.StrPtr(flags.addr)
	}
	if changed("metrics-addr") {
		cfg.Server.MetricsAddress = config.StrPtr(flags.metricsAddr)
	}
	if changed("auth") {
		cfg.Server.Auth = config.StrPtr(flags.auth)
	}
	if changed("extensions") {
		cfg.Files.Extensions = config.BoolPtr(flags.extensions)
	}
	if changed("allow-escape-root") {
		cfg.Files.AllowEscapeRoot = config.BoolPtr(flags.allowEscapeRoot)
	}
	if changed("spa") {
		cfg.Files.SinglePageApp = config.BoolPtr(flags.spa)
	}
	if len(args) == 1 {
		cfg.Files.RootDir = args[0]
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(cfg *config.Config) error {
	lg, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		if err := lg.CloseLogFiles(); err != nil {
			fmt.Fprintf(os.Stderr, "basichttpd: closing log files: %v\n", err)
		}
	}()

	srv, err := server.NewServer(cfg, lg)
	if err != nil {
		lg.Error("Failed to create server", logger.LogFields{"error": err})
		return err
	}
	lg.Info("Starting basichttpd", logger.LogFields{
		"address":     *cfg.Server.Address,
		"root":        cfg.Files.RootDir,
		"extensions":  config.Enabled(cfg.Files.Extensions),
		"spa":         config.Enabled(cfg.Files.SinglePageApp),
		"auth":        cfg.Server.Credentials != nil,
		"escape_root": config.Enabled(cfg.Files.AllowEscapeRoot),
	})
	if err := srv.Start(); err != nil {
		lg.Error("Server stopped with error", logger.LogFields{"error": err})
		return err
	}
	return nil
}
