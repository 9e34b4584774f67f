package installer

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/mitchellh/go-ps"

	"github.com/keep-tools/keep-install/internal/config"
	"github.com/keep-tools/keep-install/internal/fetch"
	"github.com/keep-tools/keep-install/internal/logger"
	"github.com/keep-tools/keep-install/internal/platform"
	"github.com/keep-tools/keep-install/internal/release"
	"github.com/keep-tools/keep-install/internal/version"
)

// Options are inputs accepted by the installer entry point. Tag and Version
// are explicit release overrides; when both are empty the mirror's
// latest-release metadata endpoint decides.
type Options struct {
	// ConfigPath is the optional path to a settings YAML file.
	ConfigPath string
	// Tag pins the release tag verbatim (e.g. "v1.4.0").
	Tag string
	// Version pins the release version without the leading "v" (e.g. "1.4.0").
	Version string
}

// runner holds the state and injected capabilities for a single install run.
// It is intentionally unexported; call Run(ctx, Options) from callers.
type runner struct {
	cfg      *config.Config
	platform platform.Platform
	release  release.Release

	archiveAsset  release.Asset
	checksumAsset release.Asset
	archiveDigest string

	workspace    string
	archivePath  string
	extractedDir string

	resolver       *release.Resolver
	fetcher        *fetch.Fetcher
	detectPlatform func() (platform.Platform, error)
	listProcesses  func() ([]ps.Process, error)
	runCommand     func(ctx context.Context, name string, args ...string) error
	now            func() time.Time
}

// Run executes the full install pipeline and is the public entry point for
// the CLI. The scratch workspace is removed on every exit path.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "keep-install")

	r, err := newRunner(opts)
	if err != nil {
		return err
	}

	defer r.cleanup(ctx)

	if err = r.run(ctx, release.Overrides{Tag: opts.Tag, Version: opts.Version}); err != nil {
		logger.ErrorKV(ctx, "Install failed", "error", err)
		return err
	}

	logger.InfoKV(ctx, "Install completed",
		"version", r.release.Version, "entry_point", r.entryPointPath())

	return nil
}

// newRunner loads settings and wires default capabilities.
func newRunner(opts *Options) (*runner, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	userAgent := fmt.Sprintf("keep-install/%s", version.Short())

	return &runner{
		cfg: cfg,
		resolver: release.NewResolver(cfg.MirrorAPI, cfg.MirrorRepo, userAgent,
			release.WithTimeout(cfg.Timeout)),
		fetcher:        fetch.NewFetcher(userAgent, fetch.WithTimeout(cfg.Timeout)),
		detectPlatform: platform.DetectHost,
		listProcesses:  ps.Processes,
		runCommand: func(ctx context.Context, name string, args ...string) error {
			return exec.CommandContext(ctx, name, args...).Run()
		},
		now: time.Now,
	}, nil
}

// run executes the pipeline stages in order. Every stage failure is terminal.
func (r *runner) run(ctx context.Context, overrides release.Overrides) error {
	logger.Info(ctx, "Detecting host platform")

	detected, err := r.detectPlatform()
	if err != nil {
		return err
	}

	r.platform = detected
	logger.InfoKV(ctx, "Detected platform", "platform", r.platform.ID())

	logger.Info(ctx, "Resolving release to install")

	if r.release, err = r.resolver.Resolve(ctx, overrides); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Resolved release", "tag", r.release.Tag)

	r.archiveAsset, r.checksumAsset = release.Assets(
		r.cfg.MirrorHost, r.cfg.MirrorRepo, r.cfg.ToolName, r.platform.ID(), r.release)

	logger.Info(ctx, "Checking install preconditions")

	if err = r.ensurePreconditions(ctx); err != nil {
		return err
	}

	logger.Info(ctx, "Preparing scratch workspace")

	if err = r.createWorkspace(); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Downloading release assets", "asset", r.archiveAsset.Name)

	if err = r.downloadAssets(ctx); err != nil {
		return err
	}

	logger.Info(ctx, "Verifying archive checksum")

	if err = r.verifyArchive(); err != nil {
		return err
	}

	logger.Info(ctx, "Extracting archive")

	if err = r.extractArchive(); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Installing", "root", r.installRoot())

	if err = r.install(ctx); err != nil {
		return err
	}

	logger.Info(ctx, "Verifying installed entry point")

	return r.verifyEntryPoint(ctx)
}
