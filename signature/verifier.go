package signature

import "crypto/hmac"

// Verify checks whether the given hex signature matches the expected
// HMAC-SHA256 signature for the payload and secret. The comparison is
// constant-time.
func (s *Signer) Verify(payload any, sigHex, secret string) bool {
	return Verify(payload, sigHex, secret)
}

// Verify checks whether the given hex signature matches the expected
// HMAC-SHA256 signature for the payload and secret.
func Verify(payload any, sigHex, secret string) bool {
	expected, err := Sign(payload, secret)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(sigHex))
}
