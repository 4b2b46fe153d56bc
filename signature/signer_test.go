package signature_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/umrahops/courier/signature"
)

func TestSignKnownVector(t *testing.T) {
	payload := map[string]any{"booking_id": "bk_01h2x", "amount": 9900}
	secret := "whsec_testsecret123"

	got, err := signature.Sign(payload, secret)
	if err != nil {
		t.Fatal(err)
	}

	// Compute expected HMAC-SHA256 independently over the canonical bytes.
	canonical, err := signature.Canonicalize(payload)
	if err != nil {
		t.Fatal(err)
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(canonical)
	expected := hex.EncodeToString(mac.Sum(nil))

	if got != expected {
		t.Errorf("Sign() = %q, want %q", got, expected)
	}
}

func TestSignDeterministicAcrossRepresentations(t *testing.T) {
	secret := "whsec_determinism"

	type payload struct {
		Amount int    `json:"amount"`
		ID     string `json:"id"`
	}

	// Struct, map, and raw JSON with shuffled key order must all canonicalize
	// to the same bytes and therefore the same signature.
	asStruct := payload{Amount: 100, ID: "bk_1"}
	asMap := map[string]any{"id": "bk_1", "amount": 100}
	asRaw := json.RawMessage(`{"id":"bk_1","amount":100}`)

	sigStruct, err := signature.Sign(asStruct, secret)
	if err != nil {
		t.Fatal(err)
	}
	sigMap, err := signature.Sign(asMap, secret)
	if err != nil {
		t.Fatal(err)
	}
	sigRaw, err := signature.Sign(asRaw, secret)
	if err != nil {
		t.Fatal(err)
	}

	if sigStruct != sigMap || sigMap != sigRaw {
		t.Errorf("signatures differ: struct=%s map=%s raw=%s", sigStruct, sigMap, sigRaw)
	}
}

func TestCanonicalizeSortsNestedKeys(t *testing.T) {
	a := json.RawMessage(`{"z":{"b":2,"a":1},"a":[{"y":1,"x":2}]}`)
	b := json.RawMessage(`{"a":[{"x":2,"y":1}],"z":{"a":1,"b":2}}`)

	ca, err := signature.Canonicalize(a)
	if err != nil {
		t.Fatal(err)
	}
	cb, err := signature.Canonicalize(b)
	if err != nil {
		t.Fatal(err)
	}

	if string(ca) != string(cb) {
		t.Errorf("canonical forms differ: %s vs %s", ca, cb)
	}
	if string(ca) != `{"a":[{"x":2,"y":1}],"z":{"a":1,"b":2}}` {
		t.Errorf("unexpected canonical form: %s", ca)
	}
}

func TestCanonicalizePreservesNumberPrecision(t *testing.T) {
	raw := json.RawMessage(`{"big":9007199254740993,"frac":0.1}`)

	got, err := signature.Canonicalize(raw)
	if err != nil {
		t.Fatal(err)
	}

	// json.Number keeps the literal digits; float64 round-tripping would not.
	if string(got) != `{"big":9007199254740993,"frac":0.1}` {
		t.Errorf("number precision lost: %s", got)
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	payload := map[string]any{"booking_id": "bk_01h2x", "status": "confirmed"}
	secret := "whsec_roundtripsecret"

	sig, err := signature.Sign(payload, secret)
	if err != nil {
		t.Fatal(err)
	}
	if !signature.Verify(payload, sig, secret) {
		t.Error("Verify() returned false for valid signature")
	}
}

func TestVerifyTamperedPayload(t *testing.T) {
	secret := "whsec_tampersecret"
	payload := map[string]any{"paid": true}

	sig, err := signature.Sign(payload, secret)
	if err != nil {
		t.Fatal(err)
	}

	tampered := map[string]any{"paid": false}
	if signature.Verify(tampered, sig, secret) {
		t.Error("Verify() returned true for tampered payload")
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	payload := map[string]any{"data": "value"}

	sig, err := signature.Sign(payload, "whsec_correct")
	if err != nil {
		t.Fatal(err)
	}

	if signature.Verify(payload, sig, "whsec_wrong") {
		t.Error("Verify() returned true for wrong secret")
	}
}

func TestSignatureFormat(t *testing.T) {
	sig, err := signature.Sign(map[string]any{"k": "v"}, "secret")
	if err != nil {
		t.Fatal(err)
	}

	// Plain hex, SHA256 = 32 bytes = 64 hex chars, no prefix.
	if len(sig) != 64 {
		t.Errorf("expected signature length 64, got %d", len(sig))
	}
	if _, err := hex.DecodeString(sig); err != nil {
		t.Errorf("signature is not valid hex: %v", err)
	}
}
