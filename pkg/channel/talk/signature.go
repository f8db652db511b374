package talk

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const nonceLength = 32

// Sign computes the hex HMAC-SHA256 of nonce||body with the shared bot
// secret. Nextcloud Talk uses the same construction for both directions.
func Sign(secret, nonce string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(nonce))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a candidate hex signature against Sign(secret, nonce, body)
// in constant time. Malformed candidates report false, never an error.
func Verify(secret, nonce string, body []byte, candidate string) bool {
	received, err := hex.DecodeString(candidate)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(nonce))
	mac.Write(body)

	return hmac.Equal(mac.Sum(nil), received)
}

// NewNonce returns a fresh 32-byte random value, hex-encoded. Every signed
// request gets its own nonce; nonces are never reused across calls.
func NewNonce() (string, error) {
	buf := make([]byte, nonceLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
