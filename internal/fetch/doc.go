// Package fetch downloads release assets over HTTP into a private scratch
// area. Downloads are single-attempt with no retry policy; failures report
// the failing URL.
package fetch
