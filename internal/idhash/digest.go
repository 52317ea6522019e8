package idhash

import (
	"crypto/sha256"
	"encoding/hex"
)

// ComputeAlertDigest computes the SHA256 digest of a serialized alert
// payload. Returns hex-encoded hash (64 characters).
func ComputeAlertDigest(payload []byte) string {
	hash := sha256.Sum256(payload)
	return hex.EncodeToString(hash[:])
}
