package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Fingerprint computes the hex-encoded SHA-256 digest of the snapshot's
// canonical encoding.
//
// The fingerprint is both the change detector (persist and mirror only when
// it moves) and the idempotency key on outbound mirror commands, so two
// different inbound events converging to the same resulting state produce
// commands downstream systems can deduplicate.
//
// Deterministic and total for well-formed snapshots:
// Fingerprint(a) == Fingerprint(b) iff the canonical forms are identical.
func Fingerprint(s Incident) (string, error) {
	blob, err := MarshalCanonical(s)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:]), nil
}
