// Package release resolves which release tag to install and derives the
// deterministic asset names and download URLs for it.
//
// Resolution order: an explicit tag override is used verbatim, an explicit
// version override synthesizes the tag, and otherwise the mirror's
// latest-release metadata endpoint is queried. The resulting tag must match
// v<major>.<minor>.<patch> exactly before any asset is addressed.
package release
