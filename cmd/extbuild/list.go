package main

import (
	"fmt"

	"github.com/contriboss/extbuild-go"
	"github.com/spf13/cobra"
)

func newListCommand(state *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the extensions each vendored source contributes on this platform",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := state.cfg
			build := cfg.buildConfig()

			aggregator := &extbuild.Aggregator{
				Loader: extbuild.Loader{Root: cfg.Root},
				GOOS:   build.Platform(),
				Logger: state.logger,
			}
			collection := aggregator.Collect(cmd.Context(), cfg.sources())

			fmt.Fprintln(cmd.OutOrStdout(), renderCollection(collection, extbuild.NewBuilderFactory(), build.Platform()))
			return nil
		},
	}

	cmd.Flags().String("goos", "", "Target platform (default host)")
	return cmd
}
