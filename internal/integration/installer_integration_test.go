package integration

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/keep-tools/keep-install/internal/config"
	"github.com/keep-tools/keep-install/internal/platform"
	"github.com/keep-tools/keep-install/internal/release"
	"github.com/keep-tools/keep-install/internal/service/installer"
)

// hostPlatform resolves the running host's platform or skips the test when
// no release assets are published for it.
func hostPlatform(t *testing.T) platform.Platform {
	t.Helper()

	p, err := platform.DetectHost()
	if err != nil {
		t.Skipf("host platform not supported by release assets: %v", err)
	}

	return p
}

// buildReleaseArchive produces a well-formed release tarball in memory:
// an executable bin/keep shell script plus a templates directory.
func buildReleaseArchive(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer

	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	writeDir := func(name string) {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0o755,
			Typeflag: tar.TypeDir,
		}))
	}
	writeFile := func(name string, mode int64, body []byte) {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     mode,
			Size:     int64(len(body)),
			Typeflag: tar.TypeReg,
		}))

		_, err := tw.Write(body)
		require.NoError(t, err)
	}

	writeDir("bin/")
	writeFile("bin/keep", 0o755, []byte("#!/bin/sh\nexit 0\n"))
	writeDir("templates/")
	writeFile("templates/default.tmpl", 0o644, []byte("template contents"))

	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	return buf.Bytes()
}

// mirror is an httptest-backed release mirror serving metadata, the archive
// and its checksum sidecar for one release.
type mirror struct {
	server        *httptest.Server
	cfgPath       string
	cfg           *config.Config
	archiveDigest string
	downloadHits  atomic.Int64
}

// newMirror stands up the mirror and writes an installer settings file whose
// target directories live under the test's temp root.
func newMirror(t *testing.T, tag, sidecar string, archiveBytes []byte) *mirror {
	t.Helper()

	p := hostPlatform(t)
	dir := t.TempDir()

	sum := sha256.Sum256(archiveBytes)
	m := &mirror{archiveDigest: hex.EncodeToString(sum[:])}

	// The tag is deliberately not validated here so tests can publish
	// malformed tags and assert the installer rejects them.
	assetName := release.AssetName("keep", strings.TrimPrefix(tag, "v"), p.ID())
	downloadBase := fmt.Sprintf("/example/keep/releases/download/%s/", tag)

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/example/keep/releases/latest",
		func(w http.ResponseWriter, _ *http.Request) {
			_, _ = fmt.Fprintf(w, `{"tag_name":%q,"name":"release"}`, tag)
		})
	mux.HandleFunc(downloadBase+assetName,
		func(w http.ResponseWriter, _ *http.Request) {
			m.downloadHits.Add(1)
			_, _ = w.Write(archiveBytes)
		})
	mux.HandleFunc(downloadBase+assetName+release.ChecksumSuffix,
		func(w http.ResponseWriter, _ *http.Request) {
			m.downloadHits.Add(1)
			_, _ = fmt.Fprintf(w, "%s  %s\n", sidecar, assetName)
		})

	m.server = httptest.NewServer(mux)
	t.Cleanup(m.server.Close)

	m.cfg = config.Default()
	m.cfg.MirrorHost = m.server.URL
	m.cfg.MirrorAPI = m.server.URL
	m.cfg.MirrorRepo = "example/keep"
	m.cfg.BinaryDir = filepath.Join(dir, "bin")
	m.cfg.LibraryDir = filepath.Join(dir, "lib", "keep")
	require.NoError(t, os.MkdirAll(m.cfg.BinaryDir, 0o755))

	m.cfgPath = filepath.Join(dir, "keep-install.yaml")
	require.NoError(t, config.Save(m.cfgPath, m.cfg))

	return m
}

// TestInstall_EndToEnd covers the happy path: valid archive and matching
// checksum produce a versioned root, a receipt and a repointed entry point.
func TestInstall_EndToEnd(t *testing.T) {
	archiveBytes := buildReleaseArchive(t)
	sum := sha256.Sum256(archiveBytes)
	m := newMirror(t, "v1.4.0", hex.EncodeToString(sum[:]), archiveBytes)

	err := installer.Run(context.Background(), &installer.Options{
		ConfigPath: m.cfgPath,
		Tag:        "v1.4.0",
	})
	require.NoError(t, err)

	root := filepath.Join(m.cfg.LibraryDir, "1.4.0")

	// Entry point symlink resolves to the versioned binary.
	target, err := os.Readlink(filepath.Join(m.cfg.BinaryDir, "keep"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "bin", "keep"), target)

	// Templates installed.
	contents, err := os.ReadFile(filepath.Join(root, "templates", "default.tmpl"))
	require.NoError(t, err)
	require.Equal(t, []byte("template contents"), contents)

	// Receipt records version, provenance and digest.
	raw, err := os.ReadFile(filepath.Join(root, "receipt.json"))
	require.NoError(t, err)

	var receipt installer.Receipt
	require.NoError(t, json.Unmarshal(raw, &receipt))
	require.Equal(t, "1.4.0", receipt.KeepVersion)
	require.Equal(t, "example/keep", receipt.Source.MirrorRepo)
	require.Equal(t, "v1.4.0", receipt.Source.Tag)
	require.Equal(t, m.archiveDigest, receipt.Source.AssetSHA256)
	require.NotEmpty(t, receipt.InstalledAtUTC)
}

// TestInstall_ChecksumMismatch ensures a wrong published digest aborts the
// run before any install root or symlink appears.
func TestInstall_ChecksumMismatch(t *testing.T) {
	archiveBytes := buildReleaseArchive(t)
	wrongDigest := "00000000000000000000000000000000" +
		"00000000000000000000000000000000"
	m := newMirror(t, "v1.4.0", wrongDigest, archiveBytes)

	err := installer.Run(context.Background(), &installer.Options{
		ConfigPath: m.cfgPath,
		Tag:        "v1.4.0",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "checksum mismatch")
	require.Contains(t, err.Error(), wrongDigest)

	// No install root, no entry point.
	_, err = os.Stat(filepath.Join(m.cfg.LibraryDir, "1.4.0"))
	require.True(t, os.IsNotExist(err))

	_, err = os.Lstat(filepath.Join(m.cfg.BinaryDir, "keep"))
	require.True(t, os.IsNotExist(err))
}

// TestInstall_LatestTagMissingPrefix rejects metadata whose tag_name lacks
// the leading "v" before anything is downloaded.
func TestInstall_LatestTagMissingPrefix(t *testing.T) {
	archiveBytes := buildReleaseArchive(t)
	sum := sha256.Sum256(archiveBytes)
	m := newMirror(t, "1.4.0", hex.EncodeToString(sum[:]), archiveBytes)

	// No overrides: the mirror's latest-release endpoint decides.
	err := installer.Run(context.Background(), &installer.Options{ConfigPath: m.cfgPath})
	require.ErrorIs(t, err, release.ErrInvalidTagFormat)
	require.Zero(t, m.downloadHits.Load())
}

// TestInstall_RootExists fails without touching an existing install root.
func TestInstall_RootExists(t *testing.T) {
	archiveBytes := buildReleaseArchive(t)
	sum := sha256.Sum256(archiveBytes)
	m := newMirror(t, "v1.4.0", hex.EncodeToString(sum[:]), archiveBytes)

	root := filepath.Join(m.cfg.LibraryDir, "1.4.0")
	require.NoError(t, os.MkdirAll(root, 0o755))

	marker := filepath.Join(root, "existing.txt")
	require.NoError(t, os.WriteFile(marker, []byte("untouched"), 0o644))

	err := installer.Run(context.Background(), &installer.Options{
		ConfigPath: m.cfgPath,
		Tag:        "v1.4.0",
	})
	require.ErrorIs(t, err, installer.ErrInstallRootExists)

	contents, err := os.ReadFile(marker)
	require.NoError(t, err)
	require.Equal(t, []byte("untouched"), contents)
	require.Zero(t, m.downloadHits.Load())
}

// TestInstall_EntryPointConflict refuses a non-symlink entry point before
// any download occurs.
func TestInstall_EntryPointConflict(t *testing.T) {
	archiveBytes := buildReleaseArchive(t)
	sum := sha256.Sum256(archiveBytes)
	m := newMirror(t, "v1.4.0", hex.EncodeToString(sum[:]), archiveBytes)

	conflict := filepath.Join(m.cfg.BinaryDir, "keep")
	require.NoError(t, os.WriteFile(conflict, []byte("unrelated file"), 0o644))

	err := installer.Run(context.Background(), &installer.Options{
		ConfigPath: m.cfgPath,
		Tag:        "v1.4.0",
	})
	require.ErrorIs(t, err, installer.ErrEntryPointConflict)
	require.Zero(t, m.downloadHits.Load())

	contents, err := os.ReadFile(conflict)
	require.NoError(t, err)
	require.Equal(t, []byte("unrelated file"), contents)
}

// TestInstall_SecondVersionRepointsEntryPoint installs two versions
// side by side and verifies the symlink follows the newest install.
func TestInstall_SecondVersionRepointsEntryPoint(t *testing.T) {
	archiveBytes := buildReleaseArchive(t)
	sum := sha256.Sum256(archiveBytes)
	m := newMirror(t, "v1.4.0", hex.EncodeToString(sum[:]), archiveBytes)

	require.NoError(t, installer.Run(context.Background(), &installer.Options{
		ConfigPath: m.cfgPath,
		Tag:        "v1.4.0",
	}))

	// Publish v1.5.0 at the same mirror.
	p := hostPlatform(t)
	assetName := release.AssetName("keep", "1.5.0", p.ID())

	m2 := newMirrorAt(t, m, "v1.5.0", assetName, archiveBytes)

	require.NoError(t, installer.Run(context.Background(), &installer.Options{
		ConfigPath: m2.cfgPath,
		Tag:        "v1.5.0",
	}))

	target, err := os.Readlink(filepath.Join(m.cfg.BinaryDir, "keep"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(m.cfg.LibraryDir, "1.5.0", "bin", "keep"), target)

	// Both versioned roots remain.
	_, err = os.Stat(filepath.Join(m.cfg.LibraryDir, "1.4.0", "receipt.json"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(m.cfg.LibraryDir, "1.5.0", "receipt.json"))
	require.NoError(t, err)
}

// newMirrorAt serves an additional release through a new server while
// reusing the target directories of an existing mirror setup.
func newMirrorAt(t *testing.T, base *mirror, tag, assetName string, archiveBytes []byte) *mirror {
	t.Helper()

	sum := sha256.Sum256(archiveBytes)
	digest := hex.EncodeToString(sum[:])
	downloadBase := fmt.Sprintf("/example/keep/releases/download/%s/", tag)

	mux := http.NewServeMux()
	mux.HandleFunc(downloadBase+assetName,
		func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write(archiveBytes)
		})
	mux.HandleFunc(downloadBase+assetName+release.ChecksumSuffix,
		func(w http.ResponseWriter, _ *http.Request) {
			_, _ = fmt.Fprintf(w, "%s  %s\n", digest, assetName)
		})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	cfg := *base.cfg
	cfg.MirrorHost = server.URL
	cfg.MirrorAPI = server.URL

	cfgPath := filepath.Join(t.TempDir(), "keep-install.yaml")
	require.NoError(t, config.Save(cfgPath, &cfg))

	return &mirror{server: server, cfgPath: cfgPath, cfg: &cfg, archiveDigest: digest}
}
