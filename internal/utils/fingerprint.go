package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// Fingerprint hashes an unordered set of parts into a stable hex digest.
// Parts are sorted first so the caller's iteration order doesn't matter.
func Fingerprint(parts ...string) string {
	sorted := append([]string(nil), parts...)
	sort.Strings(sorted)

	h := sha256.New()
	h.Write([]byte(strings.Join(sorted, "\n")))
	return hex.EncodeToString(h.Sum(nil))
}
