package connectors

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/text/cases"
)

var separatorReplacer = strings.NewReplacer(" ", "_", "-", "_")

// Normalize folds a raw vendor token for table lookups:
// "Degraded Performance", "degraded-performance" and "DEGRADED_PERFORMANCE" all become
// "degraded_performance".
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	// Casers are stateful, one per call.
	s = cases.Fold().String(s)
	return separatorReplacer.Replace(s)
}

// StableID derives a deterministic identifier for vendor records that carry none,
// so re-syncs of the same entry collapse onto the same key.
func StableID(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
