package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/etnz/stagedeb/internal/logger"
	"github.com/etnz/stagedeb/internal/version"
	"github.com/etnz/stagedeb/stage"
)

// envPrefix prefixes the environment variables read by viper,
// e.g. STAGEDEB_LOG_LEVEL.
const envPrefix = "STAGEDEB"

// rootCmd is the base command; the work happens in its subcommands.
var rootCmd = &cobra.Command{
	Use:           "stagedeb",
	Short:         "Build Debian binary packages from a staging directory",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		v, err := newConfig(cmd)
		if err != nil {
			return err
		}
		level, ok := logger.ParseLogLevel(v.GetString("log-level"))
		if !ok {
			return fmt.Errorf("unknown log level %q", v.GetString("log-level"))
		}
		logger.SetLevel(level)
		return nil
	},
}

// Execute runs the stagedeb CLI. The first error is reported as one log
// line and the process exits with status 1.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		report(ctx, err)
		logger.Sync()
		os.Exit(1)
	}
}

func report(ctx context.Context, err error) {
	var pe *stage.PhaseError
	if errors.As(err, &pe) {
		logger.ErrorKV(ctx, "Build failed", "phase", string(pe.Phase), "class", pe.Kind.Error(), "error", pe.Err.Error())
		return
	}
	logger.Error(ctx, err)
}

// newConfig layers the command flags over STAGEDEB_* environment variables.
func newConfig(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("binding flags: %w", err)
	}
	return v, nil
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn or error")
}
