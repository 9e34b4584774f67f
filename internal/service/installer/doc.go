// Package installer orchestrates the install pipeline for the keep CLI:
// platform detection, release resolution, asset download, checksum
// verification, extraction, permission gating, installation into a versioned
// root with a JSON receipt, atomic entry-point symlink repoint, and a final
// liveness check of the installed binary.
//
// The pipeline is strictly sequential and fails fast: every violated
// precondition is terminal, with no retry or rollback. The design refuses
// rather than guesses — an existing install root or a non-symlink entry
// point stops the run.
package installer
