package catalog_test

import (
	"encoding/json"
	"testing"

	"github.com/umrahops/courier/catalog"
)

func paymentSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"booking_id": {"type": "string"},
			"amount": {"type": "number"}
		},
		"required": ["booking_id", "amount"]
	}`)
}

func TestValidatorAcceptsValidPayload(t *testing.T) {
	v := catalog.NewValidator()

	payload := map[string]any{"booking_id": "bk_1", "amount": 15000000.0}
	if err := v.Validate(paymentSchema(), payload); err != nil {
		t.Fatalf("expected valid payload, got %v", err)
	}
}

func TestValidatorRejectsMissingRequiredField(t *testing.T) {
	v := catalog.NewValidator()

	payload := map[string]any{"booking_id": "bk_1"}
	if err := v.Validate(paymentSchema(), payload); err == nil {
		t.Fatal("expected validation error for missing required field")
	}
}

func TestValidatorRejectsWrongType(t *testing.T) {
	v := catalog.NewValidator()

	payload := map[string]any{"booking_id": "bk_1", "amount": "not a number"}
	if err := v.Validate(paymentSchema(), payload); err == nil {
		t.Fatal("expected validation error for wrong field type")
	}
}

func TestValidatorNilSchemaSkips(t *testing.T) {
	v := catalog.NewValidator()

	if err := v.Validate(nil, map[string]any{"anything": true}); err != nil {
		t.Fatalf("nil schema must skip validation, got %v", err)
	}
}

func TestValidatorCachesCompiledSchemas(t *testing.T) {
	v := catalog.NewValidator()
	schema := paymentSchema()
	payload := map[string]any{"booking_id": "bk_1", "amount": 100.0}

	// Repeated validation against the same schema exercises the cache path.
	for range 3 {
		if err := v.Validate(schema, payload); err != nil {
			t.Fatal(err)
		}
	}
}

func TestValidatorInvalidSchema(t *testing.T) {
	v := catalog.NewValidator()

	bad := json.RawMessage(`{"type": 42}`)
	if err := v.Validate(bad, map[string]any{}); err == nil {
		t.Fatal("expected error for malformed schema")
	}
}
