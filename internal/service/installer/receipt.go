package installer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// receiptFilename is written once into every install root.
const receiptFilename = "receipt.json"

// receiptFileMode keeps receipts readable but not writable by others.
const receiptFileMode os.FileMode = 0o644

// Receipt is the immutable audit record of one successful install.
type Receipt struct {
	KeepVersion    string          `json:"keep_version"`
	Source         ReceiptSource   `json:"source"`
	Platform       ReceiptPlatform `json:"platform"`
	InstalledAtUTC string          `json:"installed_at_utc"`
}

// ReceiptSource captures provenance: where the asset came from and the digest
// it verified against.
type ReceiptSource struct {
	MirrorRepo  string `json:"mirror_repo"`
	Tag         string `json:"tag"`
	Asset       string `json:"asset"`
	AssetSHA256 string `json:"asset_sha256"`
}

// ReceiptPlatform records the detected host platform.
type ReceiptPlatform struct {
	OS   string `json:"os"`
	Arch string `json:"arch"`
}

// buildReceipt composes the receipt for the current run.
func (r *runner) buildReceipt() *Receipt {
	return &Receipt{
		KeepVersion: r.release.Version,
		Source: ReceiptSource{
			MirrorRepo:  r.cfg.MirrorRepo,
			Tag:         r.release.Tag,
			Asset:       r.archiveAsset.Name,
			AssetSHA256: r.archiveDigest,
		},
		Platform: ReceiptPlatform{
			OS:   r.platform.OS,
			Arch: r.platform.MachineArch,
		},
		InstalledAtUTC: r.now().UTC().Format(time.RFC3339),
	}
}

// writeReceipt serializes the receipt to path.
func (r *runner) writeReceipt(path string) error {
	data, err := json.MarshalIndent(r.buildReceipt(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal receipt: %w", err)
	}

	data = append(data, '\n')

	if err = os.WriteFile(filepath.Clean(path), data, receiptFileMode); err != nil {
		return fmt.Errorf("write receipt %s: %w", path, err)
	}

	return nil
}
