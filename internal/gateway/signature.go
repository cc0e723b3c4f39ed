package gateway

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strings"
)

// SignatureVerifier validates webhook authenticity. The gateway signs the
// exact raw request body with HMAC-SHA512 using the merchant secret key and
// sends the hex digest in the x-gateway-signature header.
type SignatureVerifier struct {
	Secret string
}

// Verify reports whether the signature matches the raw body. Comparison is
// constant time. An empty signature never matches.
func (v SignatureVerifier) Verify(body []byte, signature string) bool {
	signature = strings.TrimSpace(signature)
	if signature == "" || v.Secret == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(v.Secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// Sign computes the hex HMAC-SHA512 digest of the body. Exposed for tests and
// for outbound webhook emission.
func (v SignatureVerifier) Sign(body []byte) string {
	mac := hmac.New(sha512.New, []byte(v.Secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
