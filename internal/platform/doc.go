// Package platform maps the host OS and CPU architecture to the closed set
// of platform identifiers with published release assets.
package platform
