package main

import (
	"fmt"
	"os"

	"github.com/easzlab/netfix/pkg/fixture"
	"github.com/easzlab/netfix/pkg/nlctl"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	version = "dev"
	dryRun  bool
)

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "netfix",
		Short: "netfix - fixture manager for network configuration tests",
		Long:  "Utilities around the netfix test fixtures: clean up resources leaked by crashed test runs.",
	}

	rootCmd.AddCommand(newPurgeCommand())
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

func newPurgeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove leaked fixture interfaces and network namespaces",
		RunE:  runPurge,
	}
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "report leaked resources without removing them")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("netfix version %s\n", version)
		},
	}
}

// runPurge scans for fixture-named interfaces and namespaces left behind
// by crashed test runs and removes them.
func runPurge(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	defer logger.Sync()

	result, err := fixture.Purge(
		nlctl.NewFactory(),
		nlctl.NewNamespaces(),
		fixture.PurgeOptions{DryRun: dryRun},
		logger,
	)
	if err != nil {
		logger.Error("purge finished with errors", zap.Error(err))
		return err
	}

	logger.Info("purge complete",
		zap.Int("interfaces", len(result.Interfaces)),
		zap.Int("namespaces", len(result.Namespaces)),
		zap.Bool("dry_run", dryRun),
	)
	return nil
}

// newLogger creates a production zap logger with console encoding for readability.
func newLogger() *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	loggerConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(zap.InfoLevel),
		Encoding:         "console",
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := loggerConfig.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to create logger: %v", err))
	}
	return logger
}
