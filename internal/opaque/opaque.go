// Package opaque generates and digests the opaque secrets used by the
// authentication flows: temp login session IDs, MFA challenge tokens, and
// one-time numeric codes. Raw values travel to the client once; only
// SHA-256 digests are ever stored server-side.
package opaque

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

const rawTokenSize = 32

// NewToken returns a fresh random token as lowercase hex.
func NewToken() (string, error) {
	buf := make([]byte, rawTokenSize)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Digest returns the hex-encoded SHA-256 digest of value.
func Digest(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// Equal compares two digests in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// NewNumericCode returns a random numeric code of the given length.
// Each digit is drawn independently, so the code may carry leading zeros.
func NewNumericCode(length int) (string, error) {
	code := make([]byte, 0, length)
	buf := make([]byte, length)
	for len(code) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			// 250..255 would make 0-5 more likely than 6-9; redraw.
			if b >= 250 {
				continue
			}
			code = append(code, '0'+b%10)
			if len(code) == length {
				break
			}
		}
	}
	return string(code), nil
}
