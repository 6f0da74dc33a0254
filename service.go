package creon

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Actions recognized by Handle. An empty action defaults to purchase.
const (
	ActionPurchase = "purchase"
	ActionReunlock = "reunlock"
)

// StepLogger receives a progress callback per workflow step. Optional.
type StepLogger func(step int, msg string, fields map[string]any)

// Service runs the purchase and re-unlock workflows against an injected
// outcome store and ledger adapter. Construct one per process and share it
// across invocations; each call is an independent unit of work.
type Service struct {
	store   OutcomeStore
	ledger  LedgerAdapter
	config  Config
	now     func() time.Time
	stepLog StepLogger
}

// Option configures a Service.
type Option func(*Service)

// WithStore sets the outcome store.
func WithStore(store OutcomeStore) Option {
	return func(s *Service) { s.store = store }
}

// WithLedger sets the ledger adapter.
func WithLedger(ledger LedgerAdapter) Option {
	return func(s *Service) { s.ledger = ledger }
}

// WithConfig sets the workflow configuration.
func WithConfig(config Config) Option {
	return func(s *Service) { s.config = config }
}

// WithClock overrides the time source. Used by tests and hosts that pin
// issuance timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithStepLogger installs a per-step progress callback.
func WithStepLogger(log StepLogger) Option {
	return func(s *Service) { s.stepLog = log }
}

// New builds a Service. The store and ledger are required; the config must
// carry workflow and policy versions.
func New(opts ...Option) (*Service, error) {
	s := &Service{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		return nil, ErrMissingStore
	}
	if s.ledger == nil {
		return nil, ErrMissingLedger
	}
	if err := s.config.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) logStep(step int, msg string, fields map[string]any) {
	if s.stepLog != nil {
		s.stepLog(step, msg, fields)
	}
}

// Request is the inbound trigger shape: an action, the intent for that
// action, and (for purchase) a payment proof. PaymentProofAlt accepts the
// camel-cased spelling some hosts send.
type Request struct {
	Action          string          `json:"action,omitempty"`
	Intent          json.RawMessage `json:"intent,omitempty"`
	PaymentProof    json.RawMessage `json:"payment_proof,omitempty"`
	PaymentProofAlt json.RawMessage `json:"paymentProof,omitempty"`
}

// ErrorBody is the error half of a Response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Response is the outbound result shape.
type Response struct {
	OK      bool                   `json:"ok"`
	Outcome *StoredPurchaseOutcome `json:"outcome,omitempty"`
	Grant   *UnlockGrant           `json:"grant,omitempty"`
	TxHash  *common.Hash           `json:"tx_hash,omitempty"`
	Error   *ErrorBody             `json:"error,omitempty"`
}

// Handle parses a raw trigger payload and dispatches it to the matching
// workflow. Workflow errors surface with their stable code; anything else
// maps to INTERNAL_ERROR.
func (s *Service) Handle(ctx context.Context, raw []byte) Response {
	var req Request
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &req); err != nil {
			return errorResponse(NewWorkflowError(ErrCodeInvalidInput, "malformed request: "+err.Error()))
		}
	}

	// Hosts may send the intent as the whole body.
	intent := req.Intent
	if intent == nil {
		intent = raw
	}
	proof := req.PaymentProof
	if proof == nil {
		proof = req.PaymentProofAlt
	}

	switch req.Action {
	case "", ActionPurchase:
		outcome, err := s.Purchase(ctx, intent, proof)
		if err != nil {
			return errorResponse(err)
		}
		return Response{OK: true, Outcome: outcome}
	case ActionReunlock:
		result, err := s.Reunlock(ctx, intent)
		if err != nil {
			return errorResponse(err)
		}
		return Response{OK: true, Grant: &result.Grant, TxHash: result.TxHash}
	default:
		return errorResponse(NewWorkflowError(ErrCodeInvalidInput, "unknown action: "+req.Action))
	}
}

func errorResponse(err error) Response {
	var werr *WorkflowError
	if errors.As(err, &werr) {
		return Response{OK: false, Error: &ErrorBody{Code: werr.Code, Message: werr.Message}}
	}
	return Response{OK: false, Error: &ErrorBody{Code: ErrCodeInternal, Message: "unexpected error"}}
}
