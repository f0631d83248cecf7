package main

import (
	"fmt"

	"github.com/contriboss/extbuild-go"
	"github.com/spf13/cobra"
)

func newInstallCommand(state *cliState) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install the package, building whichever extensions compile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := state.cfg
			if cfg.Package.Name == "" {
				return fmt.Errorf("package.name is not set in %s", configFileHint(state))
			}

			opts := []extbuild.Option{
				extbuild.WithSources(cfg.sources()...),
				extbuild.WithLogger(state.logger),
				extbuild.WithEnv(cfg.getenv),
			}
			if strict {
				opts = append(opts, extbuild.WithStrict(true))
			}

			orchestrator := extbuild.New(cfg.Package, cfg.buildConfig(), cfg.Dest, opts...)
			report, err := orchestrator.Run(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderInstallReport(report))
			return nil
		},
	}

	flags := cmd.Flags()
	flags.String("dest", "", "Destination directory (default <root>/build/install)")
	flags.String("build-dir", "", "Directory for built libraries (default <root>/build/lib)")
	flags.String("goos", "", "Target platform (default host)")
	flags.IntP("jobs", "j", 0, "Parallel jobs for make, cmake and cargo")
	flags.Bool("clean-first", false, "Clean extension build artifacts before building")
	flags.BoolVar(&strict, "strict", false, "Fail instead of installing without extensions (same as EXTBUILD_BUILD_RAISE=TRUE)")

	return cmd
}

func configFileHint(state *cliState) string {
	if used := state.v.ConfigFileUsed(); used != "" {
		return used
	}
	return "extbuild.yaml"
}
