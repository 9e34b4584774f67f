// Package verify implements the installer's sole integrity gate: comparing
// the SHA-256 digest of a downloaded archive against the digest published in
// its .sha256 sidecar.
package verify
