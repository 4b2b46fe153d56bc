package signature

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Canonicalize produces the deterministic byte representation of a payload
// that is fed into the HMAC. Object keys are emitted in lexicographic order
// and numbers pass through as json.Number, so the same payload always
// canonicalizes to the same bytes regardless of how the caller represented it
// (struct, map, or raw JSON).
func Canonicalize(payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("signature: marshal payload: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("signature: decode payload: %w", err)
	}

	// encoding/json sorts map keys, which gives the stable key ordering
	// once the payload has been normalized into maps and slices.
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("signature: canonicalize payload: %w", err)
	}
	return out, nil
}
