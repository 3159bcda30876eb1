package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// SignToken derives a URL-safe HMAC-SHA256 signature of value keyed by secret.
func SignToken(secret, value string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(value))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyToken reports whether token is the signature of value under secret.
// The comparison runs in constant time.
func VerifyToken(secret, value, token string) bool {
	if token == "" {
		return false
	}
	expected := SignToken(secret, value)
	return hmac.Equal([]byte(expected), []byte(token))
}
