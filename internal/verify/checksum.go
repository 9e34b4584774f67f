package verify

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// sha256HexLength is the length of a hex-encoded SHA-256 digest.
const sha256HexLength = 64

var (
	// errEmptyChecksumFile indicates a sidecar with no content to parse.
	errEmptyChecksumFile = errors.New("checksum file is empty")
	// errNotHexDigest indicates a sidecar token that is not a SHA-256 hex digest.
	errNotHexDigest = errors.New("not a sha256 hex digest")
)

// ChecksumError reports a digest mismatch with both values for diagnostics.
type ChecksumError struct {
	Path     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s: expected %s, actual %s", e.Path, e.Expected, e.Actual)
}

// ParseDigest extracts the published digest from a checksum sidecar: the first
// whitespace-delimited token, which must be a 64-character hex string. The
// sidecar may carry a trailing filename (sha256sum format) or nothing else.
func ParseDigest(sidecar []byte) (string, error) {
	fields := strings.Fields(string(sidecar))
	if len(fields) == 0 {
		return "", errEmptyChecksumFile
	}

	digest := fields[0]
	if !isHexDigest(digest, sha256HexLength) {
		return "", fmt.Errorf("%w: %q", errNotHexDigest, digest)
	}

	return strings.ToLower(digest), nil
}

// FileSHA256 computes the hex-encoded SHA-256 digest of the file's bytes.
func FileSHA256(path string) (string, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}

	defer func() {
		_ = file.Close()
	}()

	hasher := sha256.New()
	if _, err = io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// File verifies the archive at path against the raw contents of its checksum
// sidecar. An unparseable sidecar and a digest mismatch are both terminal.
func File(path string, sidecar []byte) error {
	expected, err := ParseDigest(sidecar)
	if err != nil {
		return fmt.Errorf("parse published digest for %s: %w", path, err)
	}

	actual, err := FileSHA256(path)
	if err != nil {
		return err
	}

	if !strings.EqualFold(expected, actual) {
		return &ChecksumError{
			Path:     path,
			Expected: expected,
			Actual:   actual,
		}
	}

	return nil
}

// isHexDigest reports whether value is a hex string of the expected length.
func isHexDigest(value string, expectedLen int) bool {
	if len(value) != expectedLen {
		return false
	}

	for _, ch := range value {
		if (ch < '0' || ch > '9') && (ch < 'a' || ch > 'f') && (ch < 'A' || ch > 'F') {
			return false
		}
	}

	return true
}
