package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"

	"vulnlab/internal/scan"
)

// Fingerprint digests the sorted relative paths of every manifest under
// root. It only needs a directory traversal, no parsing, so it is cheap
// relative to a scan; any added or removed manifest changes it.
func Fingerprint(root string) (string, error) {
	paths, err := scan.Manifests(root)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	for _, p := range paths {
		h.Write([]byte(filepath.ToSlash(p)))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
