package creon

import (
	"encoding/json"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const addressPattern = `^0x[0-9a-fA-F]{40}$`

const purchaseIntentSchemaJSON = `{
	"type": "object",
	"required": ["merchant_id", "buyer", "product_id", "amount", "currency", "payment_ref", "idempotency_key"],
	"properties": {
		"merchant_id": {"type": "string", "minLength": 1},
		"buyer": {"type": "string", "pattern": "` + addressPattern + `"},
		"product_id": {"type": "string", "minLength": 1},
		"amount": {"type": "string", "minLength": 1},
		"currency": {"type": "string", "minLength": 1},
		"payment_ref": {"type": "string", "minLength": 1},
		"idempotency_key": {"type": "string", "minLength": 1}
	}
}`

const accessIntentSchemaJSON = `{
	"type": "object",
	"required": ["merchant_id", "buyer", "product_id"],
	"properties": {
		"merchant_id": {"type": "string", "minLength": 1},
		"buyer": {"type": "string", "pattern": "` + addressPattern + `"},
		"product_id": {"type": "string", "minLength": 1}
	}
}`

const paymentProofSchemaJSON = `{
	"type": "object",
	"required": ["kind"],
	"properties": {
		"kind": {"type": "string", "enum": ["x402"]}
	}
}`

var (
	purchaseIntentSchema = mustCompileSchema(purchaseIntentSchemaJSON)
	accessIntentSchema   = mustCompileSchema(accessIntentSchemaJSON)
	paymentProofSchema   = mustCompileSchema(paymentProofSchemaJSON)
)

func mustCompileSchema(schemaJSON string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		panic(err)
	}
	return schema
}

// validateAgainst runs raw through schema and flattens the violations into
// one message.
func validateAgainst(schema *gojsonschema.Schema, raw json.RawMessage) (bool, string) {
	if len(raw) == 0 {
		return false, "document is missing"
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return false, err.Error()
	}
	if result.Valid() {
		return true, ""
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	return false, strings.Join(msgs, "; ")
}

// parsePurchaseIntent validates and decodes a raw purchase intent.
func parsePurchaseIntent(raw json.RawMessage) (PurchaseIntent, *WorkflowError) {
	if ok, msg := validateAgainst(purchaseIntentSchema, raw); !ok {
		return PurchaseIntent{}, NewWorkflowError(ErrCodeInvalidInput, "invalid purchase intent: "+msg)
	}
	var intent PurchaseIntent
	if err := json.Unmarshal(raw, &intent); err != nil {
		return PurchaseIntent{}, NewWorkflowError(ErrCodeInvalidInput, "invalid purchase intent: "+err.Error())
	}
	return intent, nil
}

// parseAccessIntent validates and decodes a raw access intent.
func parseAccessIntent(raw json.RawMessage) (AccessIntent, *WorkflowError) {
	if ok, msg := validateAgainst(accessIntentSchema, raw); !ok {
		return AccessIntent{}, NewWorkflowError(ErrCodeInvalidInput, "invalid access intent: "+msg)
	}
	var intent AccessIntent
	if err := json.Unmarshal(raw, &intent); err != nil {
		return AccessIntent{}, NewWorkflowError(ErrCodeInvalidInput, "invalid access intent: "+err.Error())
	}
	return intent, nil
}

// parsePaymentProof checks that a payment proof is present and of a
// recognized kind. The receipt blob is carried through without inspection.
func parsePaymentProof(raw json.RawMessage) (PaymentProof, *WorkflowError) {
	if len(raw) == 0 {
		return PaymentProof{}, NewWorkflowError(ErrCodeMissingPaymentProof, "payment_proof is required")
	}
	if ok, msg := validateAgainst(paymentProofSchema, raw); !ok {
		return PaymentProof{}, NewWorkflowError(ErrCodeMissingPaymentProof, "payment_proof is required: "+msg)
	}
	var proof PaymentProof
	if err := json.Unmarshal(raw, &proof); err != nil {
		return PaymentProof{}, NewWorkflowError(ErrCodeMissingPaymentProof, "payment_proof is required: "+err.Error())
	}
	return proof, nil
}
