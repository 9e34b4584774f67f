// Package archive unpacks verified release archives and validates the
// expected internal layout (binary plus templates directory).
package archive
