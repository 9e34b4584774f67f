package installer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/keep-tools/keep-install/internal/archive"
	"github.com/keep-tools/keep-install/internal/logger"
	"github.com/keep-tools/keep-install/internal/verify"
)

// createWorkspace allocates a uniquely named scratch directory owned by this
// run. It is removed by cleanup on both success and failure paths.
func (r *runner) createWorkspace() error {
	workspace, err := os.MkdirTemp("", "keep-install-")
	if err != nil {
		return fmt.Errorf("create scratch workspace: %w", err)
	}

	r.workspace = workspace

	return nil
}

// downloadAssets fetches the archive and its checksum sidecar into the
// scratch workspace. Two independent single-attempt downloads.
func (r *runner) downloadAssets(ctx context.Context) error {
	r.archivePath = filepath.Join(r.workspace, r.archiveAsset.Name)
	if err := r.fetcher.Download(ctx, r.archiveAsset.DownloadURL, r.archivePath); err != nil {
		return err
	}

	sidecarPath := filepath.Join(r.workspace, r.checksumAsset.Name)

	return r.fetcher.Download(ctx, r.checksumAsset.DownloadURL, sidecarPath)
}

// verifyArchive compares the archive digest with the published one and
// records the verified digest for the installation receipt.
func (r *runner) verifyArchive() error {
	sidecar, err := os.ReadFile(filepath.Join(r.workspace, r.checksumAsset.Name))
	if err != nil {
		return fmt.Errorf("read checksum sidecar: %w", err)
	}

	if err = verify.File(r.archivePath, sidecar); err != nil {
		return err
	}

	digest, err := verify.ParseDigest(sidecar)
	if err != nil {
		return err
	}

	r.archiveDigest = digest

	return nil
}

// extractArchive unpacks the verified archive and validates its layout.
func (r *runner) extractArchive() error {
	r.extractedDir = filepath.Join(r.workspace, "extracted")
	if err := os.MkdirAll(r.extractedDir, 0o755); err != nil {
		return fmt.Errorf("create extraction directory: %w", err)
	}

	if err := archive.ExtractTarGz(r.archivePath, r.extractedDir); err != nil {
		return err
	}

	return archive.ValidateLayout(r.extractedDir, r.cfg.ToolName)
}

// cleanup removes the scratch workspace. Best effort; a failure here must not
// mask the pipeline outcome.
func (r *runner) cleanup(ctx context.Context) {
	if r.workspace == "" {
		return
	}

	if err := os.RemoveAll(r.workspace); err != nil {
		logger.WarnKV(ctx, "Could not remove scratch workspace",
			"path", r.workspace, "error", err)
		return
	}

	logger.DebugKV(ctx, "Removed scratch workspace", "path", r.workspace)
}
