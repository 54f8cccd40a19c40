package testutil

import (
	"crypto/sha256"
	"encoding/hex"
)

// SHA256Hex returns the digest the archive would record for data.
func SHA256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
