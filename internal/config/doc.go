// Package config loads, validates and persists installer settings:
// mirror endpoints, the release repository, the tool name and the
// target directories for the entry-point symlink and versioned roots.
//
// Settings are optional; the installer runs with built-in defaults when
// no settings file is present at the default path.
package config
