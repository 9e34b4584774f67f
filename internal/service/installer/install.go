package installer

import (
	"bytes"
	"context"
	"crypto"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/keep-tools/keep-install/internal/logger"
)

// DefaultBinaryMode is the permission set for installed binaries.
const DefaultBinaryMode os.FileMode = 0o755

// install materializes the verified, extracted artifacts under a fresh
// versioned install root, writes the receipt, and atomically repoints the
// entry-point symlink. No rollback is attempted after the root is created; a
// partially created root is left for manual inspection.
func (r *runner) install(ctx context.Context) error {
	root := r.installRoot()

	// Re-checked here even though the guard already refused: the guard ran
	// before the downloads, and this is the last moment before mutation.
	if _, err := os.Stat(root); err == nil {
		return fmt.Errorf("%w: %s (remove it manually to reinstall this version)",
			ErrInstallRootExists, root)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat install root %s: %w", root, err)
	}

	for _, dir := range []string{filepath.Join(root, "bin"), filepath.Join(root, "templates")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	installedBinary := filepath.Join(root, "bin", r.cfg.ToolName)
	if err := r.placeBinary(installedBinary); err != nil {
		return err
	}

	if err := copyTree(filepath.Join(r.extractedDir, "templates"), filepath.Join(root, "templates")); err != nil {
		return err
	}

	receiptPath := filepath.Join(root, receiptFilename)
	if err := r.writeReceipt(receiptPath); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Wrote installation receipt", "path", receiptPath)

	if err := repointSymlink(installedBinary, r.entryPointPath()); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Repointed entry point",
		"link", r.entryPointPath(), "target", installedBinary)

	return nil
}

// placeBinary applies the extracted binary into the install root, re-checking
// the copied bytes against their own digest so a torn copy cannot pass.
func (r *runner) placeBinary(target string) error {
	data, err := os.ReadFile(filepath.Join(r.extractedDir, "bin", r.cfg.ToolName))
	if err != nil {
		return fmt.Errorf("read extracted binary: %w", err)
	}

	sum := sha256.Sum256(data)

	opts := goupdate.Options{
		TargetPath: target,
		TargetMode: DefaultBinaryMode,
		Checksum:   sum[:],
		Hash:       crypto.SHA256,
	}

	if err = goupdate.Apply(bytes.NewReader(data), opts); err != nil {
		return fmt.Errorf("place binary at %s: %w", target, err)
	}

	// A fresh root has no previous binary, but Apply leaves one behind when
	// the target already existed.
	oldBinary := target + ".old"
	if _, err = os.Stat(oldBinary); err == nil {
		_ = os.Remove(oldBinary)
	}

	return nil
}

// copyTree recursively copies the directory tree at src into dst,
// preserving file modes.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("walk %s: %w", path, err)
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return fmt.Errorf("relativize %s: %w", path, err)
		}

		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("inspect %s: %w", path, err)
		}

		if d.IsDir() {
			if err = os.MkdirAll(target, info.Mode().Perm()); err != nil {
				return fmt.Errorf("mkdir %s: %w", target, err)
			}

			return nil
		}

		return copyFile(path, target, info.Mode().Perm())
	})
}

// copyFile copies a single regular file with the provided permissions.
func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}

	defer func() {
		_ = in.Close()
	}()

	out, err := os.OpenFile(filepath.Clean(dst), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	if _, err = io.Copy(out, in); err != nil {
		_ = out.Close()

		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}

	return out.Close()
}

// repointSymlink atomically replaces (or creates) the symlink at linkPath so
// there is no window with a missing entry point: the new link is created
// under a temporary name and renamed over the old one.
func repointSymlink(target, linkPath string) error {
	staging := fmt.Sprintf("%s.new.%d", linkPath, os.Getpid())

	if err := os.Symlink(target, staging); err != nil {
		return fmt.Errorf("stage entry point symlink: %w", err)
	}

	if err := os.Rename(staging, linkPath); err != nil {
		_ = os.Remove(staging)

		return fmt.Errorf("repoint entry point %s: %w", linkPath, err)
	}

	return nil
}
