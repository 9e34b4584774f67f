package installer

import (
	"context"
	"errors"
	"fmt"
)

// errPostInstallVerification indicates the freshly installed entry point did
// not run successfully.
var errPostInstallVerification = errors.New("post-install verification failed")

// verifyEntryPoint invokes the installed tool through the stable symlink in
// its side-effect-free version mode and requires a zero exit status. This
// catches execution-environment problems (wrong-architecture binary, missing
// dynamic dependencies) that checksum verification cannot.
func (r *runner) verifyEntryPoint(ctx context.Context) error {
	entryPoint := r.entryPointPath()

	if err := r.runCommand(ctx, entryPoint, "version"); err != nil {
		return fmt.Errorf("%w: %s version: %v", errPostInstallVerification, entryPoint, err)
	}

	return nil
}
