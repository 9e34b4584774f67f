package archive

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrMalformedArchive indicates an extracted archive missing the expected
// internal layout.
var ErrMalformedArchive = errors.New("malformed archive")

// ExtractTarGz unpacks a .tar.gz archive into dest. Entry paths are
// normalized and confined to dest; anything escaping it is rejected.
func ExtractTarGz(archivePath, dest string) error {
	file, err := os.Open(filepath.Clean(archivePath))
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}

	defer func() {
		_ = file.Close()
	}()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("gzip reader: %w", err)
	}

	defer func() {
		_ = gz.Close()
	}()

	tr := tar.NewReader(gz)

	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return fmt.Errorf("read archive: %w", err)
		}

		relPath, skip := normalizeEntryPath(header.Name)
		if skip {
			continue
		}

		target := filepath.Join(dest, relPath)
		if err = ensureWithinRoot(dest, target); err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err = os.MkdirAll(target, os.FileMode(header.Mode)); err != nil {
				return fmt.Errorf("mkdir %s: %w", target, err)
			}
		case tar.TypeReg:
			if err = writeEntry(target, os.FileMode(header.Mode), tr); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err = os.Symlink(header.Linkname, target); err != nil {
				return fmt.Errorf("symlink %s: %w", target, err)
			}
		default:
			return fmt.Errorf("unsupported tar entry %q", header.Name)
		}
	}

	return nil
}

// ValidateLayout checks the extraction postconditions: an executable file at
// bin/<tool> and a directory at templates/. Either missing condition is a
// terminal malformed-archive error naming the expected path.
func ValidateLayout(root, tool string) error {
	binaryPath := filepath.Join(root, "bin", tool)

	info, err := os.Stat(binaryPath)
	if err != nil || !info.Mode().IsRegular() {
		return fmt.Errorf("%w: missing binary at %s", ErrMalformedArchive, binaryPath)
	}

	if info.Mode().Perm()&0o111 == 0 {
		return fmt.Errorf("%w: binary at %s is not executable", ErrMalformedArchive, binaryPath)
	}

	templatesPath := filepath.Join(root, "templates")

	info, err = os.Stat(templatesPath)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: missing templates directory at %s", ErrMalformedArchive, templatesPath)
	}

	return nil
}

// writeEntry materializes a regular file entry from the tar stream.
func writeEntry(target string, mode os.FileMode, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("mkdir for file %s: %w", target, err)
	}

	f, err := os.OpenFile(filepath.Clean(target), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("create file %s: %w", target, err)
	}

	if _, err = io.Copy(f, r); err != nil {
		_ = f.Close()

		return fmt.Errorf("copy file %s: %w", target, err)
	}

	return f.Close()
}

// normalizeEntryPath cleans a tar entry name, reporting whether it should be
// skipped (the root entry itself or an empty name).
func normalizeEntryPath(name string) (string, bool) {
	clean := path.Clean(name)
	clean = strings.TrimPrefix(clean, "./")

	if clean == "." || clean == "" {
		return "", true
	}

	return clean, false
}

// ensureWithinRoot rejects targets escaping the extraction root.
func ensureWithinRoot(root, target string) error {
	root = filepath.Clean(root)
	target = filepath.Clean(target)

	if target == root {
		return nil
	}

	if !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return fmt.Errorf("illegal archive path %s", target)
	}

	return nil
}
