// Package signature provides canonical-JSON HMAC-SHA256 webhook signing
// and verification.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Signer computes HMAC-SHA256 signatures for webhook payloads.
type Signer struct{}

// NewSigner returns a new Signer.
func NewSigner() *Signer {
	return &Signer{}
}

// Sign generates the hex-encoded HMAC-SHA256 signature over the canonical
// representation of payload, keyed by secret. Signing the same payload with
// the same secret always yields the same signature.
func (s *Signer) Sign(payload any, secret string) (string, error) {
	return Sign(payload, secret)
}

// Sign generates the hex-encoded HMAC-SHA256 signature over the canonical
// representation of payload, keyed by secret.
func Sign(payload any, secret string) (string, error) {
	canonical, err := Canonicalize(payload)
	if err != nil {
		return "", err
	}
	return SignBytes(canonical, secret), nil
}

// SignBytes signs an already-canonical byte payload.
func SignBytes(canonical []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil))
}
