package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kmoe-dl/kmoe/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the default settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = config.DefaultPath()
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s", path)
		}
		if err := config.Save(path, config.Default()); err != nil {
			return err
		}
		fmt.Printf("Wrote default config to %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := application.cfg
		fmt.Printf("download_dir         = %s\n", cfg.DownloadDir)
		fmt.Printf("default_format       = %s\n", cfg.DefaultFormat)
		fmt.Printf("preferred_mirror     = %s\n", cfg.PreferredMirror)
		fmt.Printf("mirrors              = %v\n", cfg.Mirrors)
		fmt.Printf("mirror_failover      = %v\n", cfg.MirrorFailover)
		fmt.Printf("rate_limit_delay     = %.2fs\n", cfg.RateLimitDelay)
		fmt.Printf("max_retries          = %d\n", cfg.MaxRetries)
		fmt.Printf("max_download_workers = %d\n", cfg.MaxDownloadWorkers)
		fmt.Printf("proxy_url            = %s\n", cfg.ProxyURL)
		fmt.Printf("log_level            = %s\n", cfg.LogLevel)
		fmt.Printf("log_format           = %s\n", cfg.LogFormat)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
