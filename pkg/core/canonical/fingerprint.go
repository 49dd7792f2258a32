package canonical

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint is the SHA-256 hex digest of the canonical encoding of v.
// It serves as cache key, idempotency key, and result checksum.
func Fingerprint(v interface{}) (string, error) {
	enc, err := Encode(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(enc)
	return hex.EncodeToString(sum[:]), nil
}

// FingerprintBytes hashes pre-encoded canonical bytes.
func FingerprintBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
