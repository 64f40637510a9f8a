package xfer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// allocateDestination returns a path under dir for name that does not yet
// exist. On collision, a "_<unix seconds>" suffix is inserted before the
// extension (§6, §8, §12, recovered from
// original_source/src/p2p/transfer/file.rs) rather than
// overwriting or refusing the transfer.
func allocateDestination(dir, name string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	candidate := filepath.Join(dir, name)
	if _, err := os.Stat(candidate); os.IsNotExist(err) {
		return candidate, nil
	} else if err != nil {
		return "", err
	}

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	suffixed := fmt.Sprintf("%s_%d%s", base, time.Now().Unix(), ext)
	return filepath.Join(dir, suffixed), nil
}

// dirRootName recovers the directory name to recreate on disk from a Dir
// transfer's Metadata.Name, stripping the ".tar" suffix the original
// source appended to the archive's display name (§12).
func dirRootName(metadataName string) string {
	return strings.TrimSuffix(metadataName, ".tar")
}
