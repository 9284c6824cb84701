package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	clientcmd "github.com/kevadb/keva/internal/cmd/client"
	serverrun "github.com/kevadb/keva/internal/cmd/server"
	cfgpkg "github.com/kevadb/keva/internal/config"
	logpkg "github.com/kevadb/keva/pkg/log"
)

func main() {
	level := os.Getenv("KEVA_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)
	logpkg.RedirectStdLog(logger)

	rootCmd := &cobra.Command{
		Use:   "keva",
		Short: "keva versioned knowledge store CLI",
		Long:  "keva is a single-binary versioned, append-only knowledge store. This CLI manages the server and talks to a running instance.",
	}

	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start the keva server",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			cfg, err := cfgpkg.Load(configPath)
			if err != nil {
				return err
			}
			cfg = cfgpkg.FromEnv(cfg)

			// Explicit flags override file and env.
			if cmd.Flags().Changed("data-dir") {
				cfg.DataDir, _ = cmd.Flags().GetString("data-dir")
			}
			if cmd.Flags().Changed("http") {
				cfg.HTTPAddr, _ = cmd.Flags().GetString("http")
			}
			if cmd.Flags().Changed("auth-token") {
				cfg.AuthToken, _ = cmd.Flags().GetString("auth-token")
			}
			if cmd.Flags().Changed("keep-last") {
				cfg.RetentionKeepLast, _ = cmd.Flags().GetInt("keep-last")
			}
			if cmd.Flags().Changed("archive-trimmed") {
				cfg.ArchiveTrimmed, _ = cmd.Flags().GetBool("archive-trimmed")
			}
			if cmd.Flags().Changed("payload-max-bytes") {
				cfg.PayloadMaxBytes, _ = cmd.Flags().GetInt("payload-max-bytes")
			}
			if cmd.Flags().Changed("fsync") {
				cfg.Fsync, _ = cmd.Flags().GetString("fsync")
			}
			if cmd.Flags().Changed("fsync-interval-ms") {
				cfg.FsyncIntervalMs, _ = cmd.Flags().GetInt("fsync-interval-ms")
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Log.Level, _ = cmd.Flags().GetString("log-level")
			}
			if cmd.Flags().Changed("log-format") {
				cfg.Log.Format, _ = cmd.Flags().GetString("log-format")
			}

			return serverrun.Run(cmd.Context(), serverrun.Options{Config: cfg})
		},
	}
	serverStartCmd.Flags().String("config", "", "Config file (JSON or YAML)")
	serverStartCmd.Flags().String("data-dir", "", "Data directory (default OS data dir)")
	serverStartCmd.Flags().String("http", ":8787", "HTTP listen address")
	serverStartCmd.Flags().String("auth-token", "", "Single authorized bearer token (empty disables auth)")
	serverStartCmd.Flags().Int("keep-last", 0, "Retention: keep last N versions per key (0 = unlimited)")
	serverStartCmd.Flags().Bool("archive-trimmed", true, "Relocate trimmed records to the archive area")
	serverStartCmd.Flags().Int("payload-max-bytes", 1<<20, "Reject store values above this size (0 = unlimited)")
	serverStartCmd.Flags().String("fsync", "always", "Fsync mode: always|interval|never")
	serverStartCmd.Flags().Int("fsync-interval-ms", 5, "Fsync interval for interval mode")
	serverStartCmd.Flags().String("log-level", "info", "Log level: debug|info|warn|error")
	serverStartCmd.Flags().String("log-format", "text", "Log format: text|json")
	serverCmd.AddCommand(serverStartCmd)
	rootCmd.AddCommand(serverCmd)

	rootCmd.AddCommand(clientcmd.NewKBCommand(nil))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
