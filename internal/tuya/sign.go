package tuya

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// The vendor signs every request with HMAC-SHA256 over a canonical string.
// Token requests sign client_id + t, business requests additionally fold in
// the access token. The signature is uppercase hex.

func sha256Hex(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func hmacUpper(secret string, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}

func tokenSignature(accessID, secret, timestamp string, body []byte) string {
	stringToSign := accessID + timestamp + "GET\n" + sha256Hex(body) + "\n\n" + tokenPath
	return hmacUpper(secret, stringToSign)
}

func businessSignature(accessID, secret, token, timestamp, method, path string, body []byte) string {
	stringToSign := accessID + token + timestamp + method + "\n" + sha256Hex(body) + "\n\n" + path
	return hmacUpper(secret, stringToSign)
}
