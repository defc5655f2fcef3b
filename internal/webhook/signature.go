package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const signaturePrefix = "sha256="

// VerifySignature checks the X-Hub-Signature-256 header against the raw
// request body. The header carries "sha256=<hex>" where the digest is the
// HMAC-SHA256 of the exact body bytes keyed with the app secret. Comparison
// is constant-time.
//
// An empty secret disables verification and every body passes. That mode
// exists for local setups without a configured app secret and must not be
// relied on in production.
func VerifySignature(body []byte, signatureHeader, secret string) bool {
	if secret == "" {
		return true
	}

	if !strings.HasPrefix(signatureHeader, signaturePrefix) {
		return false
	}
	presented := strings.TrimPrefix(signatureHeader, signaturePrefix)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(presented))
}
