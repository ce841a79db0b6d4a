// Package cmd implements the kmoe command line interface.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kmoe-dl/kmoe/internal/auth"
	"github.com/kmoe-dl/kmoe/internal/config"
	"github.com/kmoe-dl/kmoe/internal/journal"
	"github.com/kmoe-dl/kmoe/internal/library"
	"github.com/kmoe-dl/kmoe/internal/logging"
	"github.com/kmoe-dl/kmoe/internal/mirror"
)

// Version information - set via ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// app bundles the long-lived objects every command needs. It is built once
// in PersistentPreRunE and torn down in PersistentPostRun.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	router  *mirror.Router
	store   *library.Store
	auth    *auth.Client
	journal *journal.Store
}

var (
	cfgFile      string
	logLevelFlag string
	application  *app
)

var rootCmd = &cobra.Command{
	Use:     "kmoe",
	Short:   "Mirror-aware comic downloader and library manager",
	Long:    `kmoe downloads comic volumes from the Kmoe mirror network and keeps a reconciled local library of what you have.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		application = a
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if application != nil && application.journal != nil {
			application.journal.Close()
		}
	},
}

func buildApp() (*app, error) {
	path := cfgFile
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	level := cfg.LogLevel
	if logLevelFlag != "" {
		level = logLevelFlag
	}
	log, err := logging.New(logging.Options{Level: level, Format: cfg.LogFormat})
	if err != nil {
		return nil, err
	}

	// No client-level timeout: volume transfers can run for minutes and are
	// bounded by the command context instead.
	httpClient, err := mirror.NewHTTPClient(cfg.ProxyURL, 0)
	if err != nil {
		return nil, err
	}

	router, err := mirror.NewRouter(mirror.Options{
		Endpoints:  cfg.Mirrors,
		Preferred:  cfg.PreferredMirror,
		MaxRetries: cfg.MaxRetries,
		RateLimit:  cfg.RateLimit(),
		Failover:   cfg.MirrorFailover,
		Client:     httpClient,
		Logger:     log,
	})
	if err != nil {
		return nil, err
	}

	sessionStore := auth.NewStore(filepath.Join(config.DataDir(), "session.json"))

	jrnl, err := journal.Open(filepath.Join(config.DataDir(), "journal.db"))
	if err != nil {
		// The journal is bookkeeping, not a prerequisite for downloading.
		log.Warn("transfer journal unavailable", "error", err)
		jrnl = nil
	}

	return &app{
		cfg:     cfg,
		log:     log,
		router:  router,
		store:   library.NewStore(log),
		auth:    auth.NewClient(router, sessionStore, log),
		journal: jrnl,
	}, nil
}

// Execute runs the root command. Ctrl-C cancels the command context, which
// stops in-flight downloads at the next safe point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/kmoe/config.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "override configured log level (debug, info, warn, error)")
	rootCmd.SetVersionTemplate("kmoe version {{.Version}}\n")
}
