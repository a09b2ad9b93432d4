package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/adrg/xdg"
	"github.com/spf13/cobra"

	"github.com/schaermu/optolinkctl/internal/backup"
	"github.com/schaermu/optolinkctl/internal/changeset"
	"github.com/schaermu/optolinkctl/internal/config"
	"github.com/schaermu/optolinkctl/internal/install"
	"github.com/schaermu/optolinkctl/internal/mirror"
	"github.com/schaermu/optolinkctl/internal/release"
	"github.com/schaermu/optolinkctl/internal/systemdsvc"
	"github.com/schaermu/optolinkctl/internal/update"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string

	// Update command flags
	dryRun    bool
	assumeYes bool

	// Logs command flags
	followLogs bool
	logLines   int
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "optolinkctl",
	Short: "Install, update and operate an Optolink-Splitter installation",
	Long: `optolinkctl manages a local installation of the Optolink-Splitter service:
installing it from the upstream GitHub repository, backing it up, updating it
with interactive per-file change selection, and operating its systemd unit.

Updates never touch files listed under update.protect in the configuration,
and every update run is preceded by a rotating backup of the installation.`,
	SilenceUsage: true,
}

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Download the upstream release and set up the service",
	Long: `Install downloads the configured release tarball from GitHub, extracts it
into the installation directory, writes the systemd unit file and enables the
service.

Re-running install over an existing installation overwrites its files but
leaves extra local files (logs, local settings) alone.`,
	RunE: runInstall,
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update the installation from the upstream release",
	Long: `Update creates a backup, downloads the upstream release, and compares it
against the installed tree. Changed, new and deleted files are listed for
interactive selection; protected files that upstream changed are reported but
never modified. The selected changes are applied while the service is
stopped, then the service is started again.`,
	RunE: runUpdate,
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create a backup of the installation and rotate old ones",
	RunE:  runBackup,
}

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Operate the Optolink-Splitter systemd unit",
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("optolinkctl %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/optolinkctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	// Update command flags
	updateCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would change without applying anything")
	updateCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "apply all changes without prompting")

	// Service subcommands
	for _, action := range []string{"start", "stop", "restart", "status"} {
		serviceCmd.AddCommand(newServiceActionCmd(action))
	}

	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the service journal",
		RunE:  runServiceLogs,
	}
	logsCmd.Flags().BoolVarP(&followLogs, "follow", "f", false, "keep streaming new journal entries")
	logsCmd.Flags().IntVarP(&logLines, "lines", "n", 50, "number of journal lines to show")
	serviceCmd.AddCommand(logsCmd)

	// Add commands
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(serviceCmd)
	rootCmd.AddCommand(versionCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()
	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fetcher := release.NewHTTPFetcher(cfg.TarballURL(), cfg.Release.Ref, logger)
	installer := install.NewInstaller(cfg, fetcher, systemdsvc.NewClient(), logger)

	if err := installer.Run(ctx); err != nil {
		logger.Error("install failed", "error", err)
		return err
	}
	return nil
}

func runUpdate(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()
	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fetcher := release.NewHTTPFetcher(cfg.TarballURL(), cfg.Release.Ref, logger)
	analyzer := changeset.NewAnalyzer(mirror.NewShellDiffer(logger), logger)
	engine := update.NewEngine(cfg, fetcher, analyzer, systemdsvc.NewClient(), logger, dryRun, assumeYes)

	if err := engine.Run(ctx); err != nil {
		logger.Error("update failed", "error", err)
		return err
	}
	return nil
}

func runBackup(cmd *cobra.Command, args []string) error {
	logger := setupLogger()
	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	backups := backup.NewManager(logger)
	path, err := backups.Create(cfg.Paths.InstallDir, cfg.Paths.BackupDir)
	if err != nil {
		return fmt.Errorf("failed to create backup: %w", err)
	}
	fmt.Printf("Backup created: %s\n", path)

	removed, err := backups.Rotate(cfg.Paths.BackupDir, cfg.Update.KeepBackups)
	if err != nil {
		return fmt.Errorf("failed to rotate backups: %w", err)
	}
	for _, name := range removed {
		fmt.Printf("Removed old backup: %s\n", name)
	}
	return nil
}

// newServiceActionCmd builds one of the start/stop/restart/status commands
func newServiceActionCmd(action string) *cobra.Command {
	return &cobra.Command{
		Use:   action,
		Short: fmt.Sprintf("%s the service", action),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := setupSignalHandler()
			defer cancel()

			logger := setupLogger()
			cfg, err := loadConfig(logger)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			svc := systemdsvc.NewClient()
			unit := cfg.Service.Unit

			switch action {
			case "start":
				return svc.Start(ctx, unit)
			case "stop":
				return svc.Stop(ctx, unit)
			case "restart":
				return svc.Restart(ctx, unit)
			case "status":
				state, err := svc.IsActive(ctx, unit)
				if err != nil {
					return err
				}
				fmt.Printf("%s: %s\n", unit, state)
				return nil
			default:
				return fmt.Errorf("unknown service action: %s", action)
			}
		},
	}
}

func runServiceLogs(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()
	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	return systemdsvc.NewClient().Logs(ctx, cfg.Service.Unit, logLines, followLogs)
}

func setupLogger() *slog.Logger {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Create handler based on format
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

func loadConfig(logger *slog.Logger) (*config.Config, error) {
	// Determine config file path
	configPath := cfgFile
	if configPath == "" {
		configPath = filepath.Join(xdg.ConfigHome, "optolinkctl", "config.yaml")
	}

	logger.Info("loading configuration", "path", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger.Debug("configuration loaded",
		"repo", cfg.Release.Repo,
		"ref", cfg.Release.Ref,
		"install_dir", cfg.Paths.InstallDir,
		"state_dir", cfg.Paths.StateDir)

	return cfg, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
