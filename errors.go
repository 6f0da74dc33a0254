package creon

import (
	"errors"
	"fmt"
)

// WorkflowError is a tagged workflow failure carrying a stable code and a
// human message. Errors are terminal: the core never retries, and the error
// propagates to the boundary unmodified.
type WorkflowError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Purchase workflow error codes.
const (
	ErrCodeInvalidInput        = "INVALID_INPUT"
	ErrCodeMissingPaymentProof = "MISSING_PAYMENT_PROOF"
	ErrCodeReplayDetected      = "REPLAY_DETECTED"
	ErrCodeIdempotencyConflict = "IDEMPOTENCY_CONFLICT"
	ErrCodeChainError          = "CHAIN_ERROR"
)

// Re-unlock workflow error codes. ErrCodeEntitlementRevoked is reserved:
// the ledger reports revocation as active=false, so this core cannot
// distinguish "revoked" from "never existed" unless the adapter does.
const (
	ErrCodeNoEntitlement      = "NO_ENTITLEMENT"
	ErrCodeEntitlementExpired = "ENTITLEMENT_EXPIRED"
	ErrCodeEntitlementRevoked = "ENTITLEMENT_REVOKED"
	ErrCodeUsesExceeded       = "USES_EXCEEDED"
)

// ErrCodeInternal tags failures outside the workflow taxonomy (store I/O,
// encoding) at the dispatch boundary.
const ErrCodeInternal = "INTERNAL_ERROR"

// NewWorkflowError creates a new tagged workflow error.
func NewWorkflowError(code, message string) *WorkflowError {
	return &WorkflowError{Code: code, Message: message}
}

// chainError tags a ledger adapter failure with CHAIN_ERROR, preserving the
// adapter's message.
func chainError(err error) *WorkflowError {
	return &WorkflowError{Code: ErrCodeChainError, Message: err.Error()}
}

// Service construction errors.
var (
	ErrMissingStore           = errors.New("creon: outcome store is required")
	ErrMissingLedger          = errors.New("creon: ledger adapter is required")
	ErrMissingWorkflowVersion = errors.New("creon: workflow_version is required")
	ErrMissingPolicyVersion   = errors.New("creon: policy_version is required")
)
