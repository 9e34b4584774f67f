package release

import "fmt"

// ChecksumSuffix is appended to an archive asset name to address its
// published digest sidecar.
const ChecksumSuffix = ".sha256"

// Asset names a downloadable artifact and its location at the mirror.
type Asset struct {
	Name        string
	DownloadURL string
}

// AssetName derives the archive asset name from the tool name, version and
// platform identifier: <tool>-<version>-<platform>.tar.gz.
func AssetName(tool, version, platformID string) string {
	return fmt.Sprintf("%s-%s-%s.tar.gz", tool, version, platformID)
}

// Assets derives the archive asset and its checksum sidecar for a release,
// addressed under the mirror's standard download path.
func Assets(mirrorHost, repo, tool, platformID string, rel Release) (archive, checksum Asset) {
	name := AssetName(tool, rel.Version, platformID)
	base := fmt.Sprintf("%s/%s/releases/download/%s", mirrorHost, repo, rel.Tag)

	archive = Asset{
		Name:        name,
		DownloadURL: base + "/" + name,
	}
	checksum = Asset{
		Name:        name + ChecksumSuffix,
		DownloadURL: base + "/" + name + ChecksumSuffix,
	}

	return archive, checksum
}
