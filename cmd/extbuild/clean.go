package main

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/contriboss/extbuild-go"
	"github.com/magefile/mage/sh"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newCleanCommand(state *cliState) *cobra.Command {
	var installed bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove extension build artifacts",
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

			if err := extbuild.NewBuilderFactory().Clean(cmd.Context(), &build, collection.Extensions); err != nil {
				return err
			}

			if installed && cfg.Package.Name != "" {
				return removeInstalled(state.logger, cfg)
			}
			return nil
		},
	}

	cmd.Flags().String("dest", "", "Destination directory of a previous install")
	cmd.Flags().BoolVar(&installed, "installed", false, "Also remove the files listed in the install manifest")
	return cmd
}

// removeInstalled deletes every file recorded in the install manifest, then
// the manifest itself.
func removeInstalled(logger *zap.Logger, cfg *cliConfig) error {
	manifestPath := filepath.Join(cfg.Dest, extbuild.ManifestName(cfg.Package))
	manifest, err := extbuild.ReadManifest(manifestPath)
	if errors.Is(err, os.ErrNotExist) {
		logger.Info("no install manifest found", zap.String("path", manifestPath))
		return nil
	}
	if err != nil {
		return err
	}

	for _, file := range manifest.Files {
		if err := sh.Rm(filepath.Join(cfg.Dest, filepath.FromSlash(file))); err != nil {
			return err
		}
	}
	logger.Info("removed installed files", zap.Int("files", len(manifest.Files)))
	return sh.Rm(manifestPath)
}
