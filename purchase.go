package creon

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/creonlabs/creon-go/canonical"
)

// Purchase executes the exactly-once purchase workflow:
// validate, idempotency check, replay check, entitlement read, conditional
// mint, artifact generation, durable commit. It returns the committed
// outcome, or the stored outcome unchanged when the same idempotency key
// is retried with an identical request.
//
// No store write happens before every required ledger call has succeeded.
// The outcome is committed before the payment-reference record; a crash
// between the two leaves a committed outcome with an unconsumed
// payment-reference slot (see the store package notes on closing this with
// an atomic multi-key write in a production backend).
func (s *Service) Purchase(ctx context.Context, rawIntent, rawProof json.RawMessage) (*StoredPurchaseOutcome, error) {
	s.logStep(1, "validate input", nil)
	intent, werr := parsePurchaseIntent(rawIntent)
	if werr != nil {
		return nil, werr
	}
	if _, werr := parsePaymentProof(rawProof); werr != nil {
		return nil, werr
	}
	s.logStep(1, "input validated", map[string]any{
		"merchant_id": intent.MerchantID,
		"product_id":  intent.ProductID,
		"buyer":       intent.Buyer.Hex(),
	})

	requestHash, err := canonical.HashValue(intent)
	if err != nil {
		return nil, fmt.Errorf("request hash: %w", err)
	}

	existing, err := s.store.GetOutcome(ctx, intent.MerchantID, intent.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("idempotency lookup: %w", err)
	}
	if existing != nil {
		s.logStep(2, "idempotency hit", nil)
		if existing.RequestHash != requestHash {
			return nil, NewWorkflowError(ErrCodeIdempotencyConflict, "idempotency key already used with different input")
		}
		outcome := existing.Outcome
		return &outcome, nil
	}

	replay, err := s.store.GetPaymentRef(ctx, intent.PaymentRef)
	if err != nil {
		return nil, fmt.Errorf("replay lookup: %w", err)
	}
	if replay != nil {
		s.logStep(2, "replay detected", map[string]any{"entitlement_id": replay.EntitlementID.Hex()})
		return nil, NewWorkflowError(ErrCodeReplayDetected, "payment_ref has already been used")
	}

	s.logStep(3, "derive entitlement id", nil)
	derivation := canonical.DeriveEntitlement(intent.MerchantID, intent.Buyer, intent.ProductID)

	s.logStep(4, "read entitlement onchain", nil)
	entitlement, err := s.ledger.ReadEntitlement(ctx, derivation.MerchantIDHash, intent.Buyer, derivation.ProductIDHash)
	if err != nil {
		return nil, chainError(err)
	}

	minted := false
	txHash := common.Hash{}
	if !entitlement.Active {
		s.logStep(5, "mint entitlement onchain", nil)
		txHash, err = s.ledger.WriteGrant(ctx, GrantParams{
			MerchantIDHash: derivation.MerchantIDHash,
			Buyer:          intent.Buyer,
			ProductIDHash:  derivation.ProductIDHash,
		})
		if err != nil {
			return nil, chainError(err)
		}
		minted = true
	}
	s.logStep(5, "entitlement result", map[string]any{"minted": minted, "tx_hash": txHash.Hex()})

	receipt := Receipt{
		Version:         ReceiptVersion,
		MerchantID:      intent.MerchantID,
		Buyer:           intent.Buyer,
		ProductID:       intent.ProductID,
		PaymentRef:      intent.PaymentRef,
		EntitlementID:   derivation.EntitlementID,
		TxHash:          txHash,
		WorkflowVersion: s.config.WorkflowVersion,
		PolicyVersion:   s.config.PolicyVersion,
		IssuedAt:        s.now().UTC().Format(time.RFC3339),
	}

	artifacts, err := BuildArtifacts(receipt, derivation.EntitlementID, txHash, minted, intent.Amount)
	if err != nil {
		return nil, fmt.Errorf("build artifacts: %w", err)
	}
	s.logStep(6, "artifacts built", map[string]any{"receipt_hash": artifacts.ReceiptHash.Hex()})

	outcome := StoredPurchaseOutcome{
		Minted:        minted,
		TxHash:        txHash,
		EntitlementID: derivation.EntitlementID,
		Artifacts: OutcomeArtifacts{
			ReceiptJSON:          artifacts.ReceiptJSON,
			ReceiptHash:          artifacts.ReceiptHash,
			AccountingPacketJSON: artifacts.AccountingPacketJSON,
			AccountingPacketCSV:  artifacts.AccountingPacketCSV,
			AuditBundleJSONL:     artifacts.AuditBundleJSONL,
		},
	}

	if err := s.store.SetOutcome(ctx, intent.MerchantID, intent.IdempotencyKey, requestHash, outcome); err != nil {
		return nil, fmt.Errorf("commit outcome: %w", err)
	}
	if err := s.store.SetPaymentRef(ctx, intent.PaymentRef, derivation.EntitlementID); err != nil {
		return nil, fmt.Errorf("commit payment ref: %w", err)
	}
	s.logStep(7, "idempotency and replay records persisted", nil)

	return &outcome, nil
}
