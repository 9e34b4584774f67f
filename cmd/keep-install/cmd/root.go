package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/keep-tools/keep-install/internal/logger"
	"github.com/keep-tools/keep-install/internal/service/installer"
	"github.com/keep-tools/keep-install/internal/version"
)

const (
	// envTag pins the release tag when the --tag flag is not given.
	envTag = "KEEP_INSTALL_TAG"
	// envVersion pins the release version when the --release-version flag is not given.
	envVersion = "KEEP_INSTALL_VERSION"
)

var (
	// configPath to the optional configuration YAML file.
	configPath string

	// tagOverride pins the release tag verbatim.
	tagOverride string

	// versionOverride pins the release version (without the leading "v").
	versionOverride string

	// logLevel selects the minimum diagnostics level.
	logLevel string

	// rootCmd represents the base command that installs the keep CLI.
	rootCmd = &cobra.Command{
		Use:          "keep-install",
		Short:        "Download, verify and install a keep release",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			if lvl, ok := logger.ParseLogLevel(logLevel); ok {
				logger.SetLevel(lvl)
			}

			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &installer.Options{
				ConfigPath: configPath,
				Tag:        resolveOverride(tagOverride, envTag),
				Version:    resolveOverride(versionOverride, envVersion),
			}

			return installer.Run(ctx, options)
		},
	}
)

// resolveOverride prefers the flag value over the environment variable.
func resolveOverride(flagValue, envName string) string {
	if flagValue != "" {
		return flagValue
	}

	return os.Getenv(envName)
}

// Execute runs the keep-install CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to configuration file")
	rootCmd.Flags().StringVar(&tagOverride, "tag", "", "release tag to install (e.g. v1.4.0)")
	rootCmd.Flags().StringVar(&versionOverride, "release-version", "", "release version to install (e.g. 1.4.0)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "minimum log level (debug, info, warn, error)")
}
