package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerify_ValidSignature(t *testing.T) {
	v := NewSignatureVerifier("webhook-secret")
	body := []byte(`{"action":"opened","repository":{"full_name":"octocat/hello"}}`)

	if !v.Verify(body, sign("webhook-secret", body)) {
		t.Error("Verify() rejected a valid signature")
	}
}

func TestVerify_MutatedBody(t *testing.T) {
	v := NewSignatureVerifier("webhook-secret")
	body := []byte(`{"action":"opened"}`)
	header := sign("webhook-secret", body)

	// Flip one byte of the body after signing.
	mutated := make([]byte, len(body))
	copy(mutated, body)
	mutated[3] ^= 0x01

	if v.Verify(mutated, header) {
		t.Error("Verify() accepted a signature over a mutated body")
	}
}

func TestVerify_MutatedDigest(t *testing.T) {
	v := NewSignatureVerifier("webhook-secret")
	body := []byte(`{"action":"opened"}`)
	header := sign("webhook-secret", body)

	// Flip the last hex character of the digest.
	last := header[len(header)-1]
	if last == 'a' {
		last = 'b'
	} else {
		last = 'a'
	}
	mutated := header[:len(header)-1] + string(last)

	if v.Verify(body, mutated) {
		t.Error("Verify() accepted a mutated digest")
	}
}

func TestVerify_FailsClosed(t *testing.T) {
	v := NewSignatureVerifier("webhook-secret")
	body := []byte(`{}`)

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"no separator", "sha256deadbeef"},
		{"unsupported algorithm", "sha1=" + hex.EncodeToString(make([]byte, 20))},
		{"non-hex digest", "sha256=not-hex-at-all"},
		{"empty digest", "sha256="},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if v.Verify(body, tc.header) {
				t.Errorf("Verify(%q) = true, want false", tc.header)
			}
		})
	}
}

func TestVerify_WrongWebhookSecret(t *testing.T) {
	v := NewSignatureVerifier("webhook-secret")
	body := []byte(`{"zen":"Design for failure."}`)

	if v.Verify(body, sign("other-secret", body)) {
		t.Error("Verify() accepted a signature from a different secret")
	}
}

// Signing covers the exact bytes: a semantically identical JSON document with
// different key order or whitespace must fail verification.
func TestVerify_ExactBytesNotSemanticJSON(t *testing.T) {
	v := NewSignatureVerifier("webhook-secret")

	original := []byte(`{"a":1,"b":2}`)
	header := sign("webhook-secret", original)

	var doc map[string]any
	if err := json.Unmarshal(original, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	reserialized, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	if v.Verify(reserialized, header) {
		t.Error("Verify() accepted a reserialized payload; signing must be byte-exact")
	}
}
