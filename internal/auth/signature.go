package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureVerifier validates the X-Hub-Signature-256 header GitHub attaches
// to webhook deliveries: "sha256=" followed by the hex HMAC-SHA256 of the raw
// request body under the shared webhook secret.
type SignatureVerifier struct {
	secret []byte
}

// NewSignatureVerifier creates a verifier for the given shared secret.
func NewSignatureVerifier(secret string) *SignatureVerifier {
	return &SignatureVerifier{secret: []byte(secret)}
}

// Verify reports whether header is a valid signature over body.
//
// It fails closed: a missing header, a header not of the form
// "<algorithm>=<hex>", or any algorithm other than sha256 all return false.
// The digest comparison is constant-time (hmac.Equal over the raw MAC bytes),
// never a short-circuiting string compare.
//
// The signature covers the exact bytes of the body. Reserializing a JSON
// payload, even to a semantically identical document, invalidates it.
func (v *SignatureVerifier) Verify(body []byte, header string) bool {
	if header == "" {
		return false
	}

	algorithm, digest, ok := strings.Cut(header, "=")
	if !ok {
		return false
	}
	if algorithm != "sha256" {
		return false
	}

	provided, err := hex.DecodeString(digest)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)

	return hmac.Equal(mac.Sum(nil), provided)
}
