// Command slawatch monitors scheduled operational tasks against their SLA
// windows and drives the notification lifecycle.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nhle/slawatch/internal/model"
)

var (
	configPath string
	actor      string
	jsonOutput bool

	cfg     *model.AppConfig
	logger  *zap.Logger
	rootCtx context.Context
)

var rootCmd = &cobra.Command{
	Use:           "slawatch",
	Short:         "SLA deadline monitoring and alert lifecycle",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = model.LoadConfig(configPath)
		if err != nil {
			return err
		}
		logger, err = buildLogger(cfg.Log)
		if err != nil {
			return err
		}
		rootCtx = cmd.Context()
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", model.DefaultConfigPath(), "path to config file")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", defaultActor(), "identity recorded on reads, archives, and justifications")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print JSON instead of tables")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

func defaultActor() string {
	for _, key := range []string{"SLAWATCH_ACTOR", "USER", "USERNAME"} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return ""
}

// buildLogger creates the process logger from the log section of the
// config. Development mode switches to the console encoder.
func buildLogger(lc model.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(lc.Level)
	if err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}

	zc := zap.NewProductionConfig()
	if lc.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}

	l, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return l, nil
}

// usageError marks errors caused by bad flags or arguments.
type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func exitCode(err error) int {
	var ue usageError
	if errors.As(err, &ue) {
		return 2
	}
	return 1
}
