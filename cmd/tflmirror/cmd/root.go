// Package cmd provides the CLI commands for tflmirror.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dalenewman/tflmirror/internal/config"
	mirrorerrors "github.com/dalenewman/tflmirror/internal/errors"
	"github.com/dalenewman/tflmirror/internal/logging"
	"github.com/dalenewman/tflmirror/pkg/version"
)

// Global flags
var (
	configPath     string
	debugMode      bool
	noColor        bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the tflmirror CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tflmirror",
		Short: "Mirror tabular data into bleve search indexes",
		Long: `tflmirror keeps a bleve full-text index in step with a tabular source.

Each entity in the process file is read from its input, encoded field by
field, and upserted into the output index by primary key. Rows that leave
the input are flagged as deleted rather than removed.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("tflmirror version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultFile, "Process file")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.tflmirror/logs/")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newReadCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startLogging installs the stderr logger, or the debug file logger.
func startLogging(_ *cobra.Command, _ []string) error {
	cfg := logging.DefaultConfig()
	if debugMode {
		cfg = logging.DebugConfig()
	}
	return installLogger(cfg)
}

// stopLogging flushes and closes the log file.
func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

func installLogger(cfg logging.Config) error {
	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	if loggingCleanup != nil {
		loggingCleanup()
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	if cfg.FilePath != "" {
		slog.Debug("file logging enabled", slog.String("log_file", cfg.FilePath))
	}
	return nil
}

// loadProcess loads the process file and applies its log settings unless
// --debug already chose them.
func loadProcess() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if !debugMode {
		logCfg := logging.DefaultConfig()
		logCfg.Level = cfg.Log.Level
		logCfg.FilePath = cfg.ResolvePath(cfg.Log.File)
		logCfg.MaxSizeMB = cfg.Log.MaxSizeMB
		logCfg.MaxFiles = cfg.Log.MaxFiles
		logCfg.Buffered = cfg.Log.Buffered
		if err := installLogger(logCfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Execute runs the root command and prints failures.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, mirrorerrors.FormatForCLI(err))
	}
	return err
}
