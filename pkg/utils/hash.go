package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// CalculateBytesSHA256 computes the hex SHA-256 digest of raw bytes.
func CalculateBytesSHA256(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// CalculateStringSHA256 computes the SHA-256 hash of a string.
func CalculateStringSHA256(content string) string {
	return CalculateBytesSHA256([]byte(content))
}

// JoinedSHA256 hashes parts separated by a NUL byte so ("ab","c") and ("a","bc") differ.
func JoinedSHA256(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}
