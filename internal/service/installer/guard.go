package installer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/keep-tools/keep-install/internal/logger"
)

var (
	// ErrEntryPointConflict indicates the stable entry-point path is occupied
	// by something other than a symlink.
	ErrEntryPointConflict = errors.New("entry point exists and is not a symlink")
	// ErrInstallRootExists indicates a versioned install root is already present.
	ErrInstallRootExists = errors.New("install root already exists")
	// errNotWritable indicates the process cannot write a target directory.
	errNotWritable = errors.New("directory is not writable")
)

// entryPointPath is the stable, version-independent path users invoke.
func (r *runner) entryPointPath() string {
	return filepath.Join(r.cfg.BinaryDir, r.cfg.ToolName)
}

// installRoot is the versioned directory receiving this release.
func (r *runner) installRoot() string {
	return filepath.Join(r.cfg.LibraryDir, r.release.Version)
}

// ensurePreconditions verifies, before any filesystem mutation outside the
// scratch workspace, that:
//   - both target directories are writable (or the process runs as root),
//   - the entry-point path, if present, is a symlink,
//   - no install root exists yet for the resolved version.
//
// It also warns when the tool is currently running, since the entry point is
// about to be repointed underneath it.
func (r *runner) ensurePreconditions(ctx context.Context) error {
	for _, dir := range []string{r.cfg.BinaryDir, r.cfg.LibraryDir} {
		if err := ensureWritableDir(dir); err != nil {
			return err
		}
	}

	if err := ensureSymlinkOrAbsent(r.entryPointPath()); err != nil {
		return err
	}

	root := r.installRoot()
	if _, err := os.Stat(root); err == nil {
		return fmt.Errorf("%w: %s (remove it manually to reinstall this version)",
			ErrInstallRootExists, root)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat install root %s: %w", root, err)
	}

	r.warnIfToolRunning(ctx)

	return nil
}

// ensureWritableDir checks that dir (or, when it does not exist yet, its
// nearest existing ancestor) is writable by the current process. Root is
// trusted without probing.
func ensureWritableDir(dir string) error {
	if os.Geteuid() == 0 {
		return nil
	}

	probe := nearestExistingDir(dir)

	f, err := os.CreateTemp(probe, ".keep-install-probe-")
	if err != nil {
		return fmt.Errorf("%w: %s (run with elevated privilege or choose writable directories)",
			errNotWritable, dir)
	}

	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)

	return nil
}

// nearestExistingDir walks up from dir to the closest directory that exists.
func nearestExistingDir(dir string) string {
	for {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}

		dir = parent
	}
}

// ensureSymlinkOrAbsent refuses a path that exists but is not a symlink, to
// avoid clobbering an unrelated file or directory.
func ensureSymlinkOrAbsent(path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("inspect entry point %s: %w", path, err)
	}

	if info.Mode()&os.ModeSymlink == 0 {
		return fmt.Errorf("%w: %s (remove it manually and retry)", ErrEntryPointConflict, path)
	}

	return nil
}

// warnIfToolRunning logs a warning for each running process with the tool's
// name. Best effort: a failed process listing never blocks the install.
func (r *runner) warnIfToolRunning(ctx context.Context) {
	processes, err := r.listProcesses()
	if err != nil {
		logger.DebugKV(ctx, "Could not list processes", "error", err)
		return
	}

	self := os.Getpid()

	for _, process := range processes {
		if process.Pid() == self || process.Executable() != r.cfg.ToolName {
			continue
		}

		logger.WarnKV(ctx, "Tool is currently running; its entry point will be repointed",
			"executable", r.cfg.ToolName, "pid", process.Pid())
	}
}
