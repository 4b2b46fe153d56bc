package catalog

import "encoding/json"

// DefaultDefinitions returns the platform's built-in event type set.
// Payment and contract events carry payload schemas; the rest are free-form.
func DefaultDefinitions() []Definition {
	paymentSchema := json.RawMessage(`{
		"type": "object",
		"required": ["payment_id", "booking_id", "amount", "currency"],
		"properties": {
			"payment_id": {"type": "string"},
			"booking_id": {"type": "string"},
			"amount":     {"type": "number", "minimum": 0},
			"currency":   {"type": "string", "minLength": 3, "maxLength": 3},
			"method":     {"type": "string"}
		}
	}`)

	contractSchema := json.RawMessage(`{
		"type": "object",
		"required": ["contract_id", "package_id"],
		"properties": {
			"contract_id": {"type": "string"},
			"package_id":  {"type": "string"},
			"signed_by":   {"type": "string"}
		}
	}`)

	return []Definition{
		{
			Name:        "payment.confirmed",
			Description: "A booking payment was confirmed.",
			Group:       "payments",
			Schema:      paymentSchema,
			Version:     "2025-06-01",
		},
		{
			Name:        "payment.failed",
			Description: "A booking payment attempt failed.",
			Group:       "payments",
			Schema:      paymentSchema,
			Version:     "2025-06-01",
		},
		{
			Name:        "jamaah.created",
			Description: "A pilgrim record was created.",
			Group:       "jamaah",
			Version:     "2025-06-01",
		},
		{
			Name:        "jamaah.updated",
			Description: "A pilgrim record was updated.",
			Group:       "jamaah",
			Version:     "2025-06-01",
		},
		{
			Name:        "jamaah.deleted",
			Description: "A pilgrim record was deleted.",
			Group:       "jamaah",
			Version:     "2025-06-01",
		},
		{
			Name:        "package.updated",
			Description: "An Umrah package was updated.",
			Group:       "packages",
			Version:     "2025-06-01",
		},
		{
			Name:        "document.approved",
			Description: "A compliance document was approved.",
			Group:       "documents",
			Version:     "2025-06-01",
		},
		{
			Name:        "document.rejected",
			Description: "A compliance document was rejected.",
			Group:       "documents",
			Version:     "2025-06-01",
		},
		{
			Name:        "contract.signed",
			Description: "A partnership contract was signed.",
			Group:       "contracts",
			Schema:      contractSchema,
			Version:     "2025-06-01",
		},
	}
}
