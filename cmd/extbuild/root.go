package main

import (
	"context"
	"io"

	"github.com/contriboss/extbuild-go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// cliState is shared by the subcommands of one invocation.
type cliState struct {
	v        *viper.Viper
	cfg      *cliConfig
	logger   *zap.Logger
	shutdown func(context.Context) error
}

// NewRootCommand returns the extbuild command tree.
func NewRootCommand(version string) *cobra.Command {
	state := &cliState{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "extbuild",
		Short: "Best-effort native extension builds",
		Long: `extbuild installs a package with its optional native extensions.

Extensions are collected from the build descriptors of the vendored
sub-projects and built with the host toolchain. An extension that fails to
build is skipped with a warning; if the install itself fails, the package is
installed again without native extensions. Set EXTBUILD_BUILD_RAISE=TRUE to
make any failure fatal instead.`,
		Version:      version,
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(state.v, cmd.Flags())
			if err != nil {
				return err
			}
			state.cfg = cfg

			state.logger = newLogger(cmd.ErrOrStderr(), cfg.Verbose)
			extbuild.SetLogger(state.logger)

			if cfg.Trace {
				shutdown, err := setupTracing(cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				state.shutdown = shutdown
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if state.shutdown != nil {
				if err := state.shutdown(cmd.Context()); err != nil {
					return err
				}
			}
			if state.logger != nil {
				_ = state.logger.Sync()
			}
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Config file path (default is <root>/extbuild.yaml)")
	flags.String("root", ".", "Project root containing the package and vendored descriptors")
	flags.BoolP("verbose", "v", false, "Enable debug logging and record tool commands")
	flags.Bool("trace", false, "Write OpenTelemetry spans to stderr")

	rootCmd.AddCommand(newInstallCommand(state))
	rootCmd.AddCommand(newListCommand(state))
	rootCmd.AddCommand(newCleanCommand(state))

	return rootCmd
}

// newLogger returns a console logger without timestamps writing to w.
func newLogger(w io.Writer, verbose bool) *zap.Logger {
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.TimeKey = ""
	encoderConfig.CallerKey = ""

	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(w), level)
	return zap.New(core)
}
