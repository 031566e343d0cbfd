// Command release-packager cross-builds screencast and writes the release
// archives and their SHA256SUMS.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"go2tv.app/screencast/internal/buildinfo"
	"go2tv.app/screencast/internal/logging"
	"go2tv.app/screencast/internal/release"
)

func main() {
	var outDir, version string

	cmd := &cobra.Command{
		Use:           "release-packager",
		Short:         "Build screencast release archives",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New("info", logging.FormatConsole)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			artifacts, err := release.BuildArtifacts(cmd.Context(), release.Options{
				OutDir:   outDir,
				RepoRoot: ".",
				Version:  version,
				Targets:  release.DefaultTargets,
				Logger:   logger,
			})
			if err != nil {
				return err
			}
			for _, artifact := range artifacts {
				fmt.Fprintln(cmd.OutOrStdout(), artifact.ArchiveName)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "SHA256SUMS")
			logger.Info("release_done", zap.Int("artifacts", len(artifacts)), zap.String("out", outDir))
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "dist", "output directory for release artifacts")
	cmd.Flags().StringVar(&version, "version", buildinfo.Version, "version stamped into the binaries")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
