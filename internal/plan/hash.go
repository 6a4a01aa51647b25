package plan

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
)

// ScenarioHash returns the hex-encoded SHA-256 of the raw scenario file
// bytes (spec.md §3 "scenario_sha256", §6 header line). It is computed over
// the exact file content, not a normalized form, so that any byte-level
// edit is detected by the plan store's ScenarioChanged check.
func ScenarioHash(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
