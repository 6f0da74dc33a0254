package creon

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// GrantParams are the fields of a ledger grant write. The purchase workflow
// mints with unrestricted validity and uses (all zero values).
type GrantParams struct {
	MerchantIDHash common.Hash
	Buyer          common.Address
	ProductIDHash  common.Hash
	ValidUntil     uint64
	MaxUses        uint32
	MetadataHash   common.Hash
}

// LedgerAdapter is the capability interface over on-chain entitlement
// state. It is consumed, not implemented, by the workflows; the evmledger
// package provides an implementation against an entitlement registry
// contract.
//
// Required properties of any implementation: writes are idempotent or
// externally fenced (the ledger's own active flag prevents double-minting
// when two invocations both observe inactive), and a non-success status is
// reported as an error with the adapter's message, never retried here.
// Once issued, a write completes or errors; it is never left ambiguous.
type LedgerAdapter interface {
	ReadEntitlement(ctx context.Context, merchantIDHash common.Hash, buyer common.Address, productIDHash common.Hash) (EntitlementRecord, error)
	WriteGrant(ctx context.Context, params GrantParams) (common.Hash, error)
	ConsumeEntitlement(ctx context.Context, merchantIDHash common.Hash, buyer common.Address, productIDHash common.Hash) (common.Hash, error)
}

// OutcomeRow is a stored idempotency record: the request hash the key was
// first used with, and the committed outcome.
type OutcomeRow struct {
	RequestHash common.Hash           `json:"request_hash"`
	Outcome     StoredPurchaseOutcome `json:"outcome"`
}

// PaymentRefRow records the consumption of a payment reference.
type PaymentRefRow struct {
	EntitlementID common.Hash `json:"entitlement_id"`
}

// OutcomeStore is the durable key/value mapping for idempotency outcomes
// and payment-reference consumption records.
//
// (merchant_id, idempotency_key) uniquely identifies an outcome;
// payment_ref is globally unique across all merchants. Lookups return
// (nil, nil) when the key is absent. Rows are last-write-wins; there is no
// compare-and-set across the two capabilities, so the workflows treat the
// store as the single serialization point per key and never mutate ledger
// state after a store write has failed.
type OutcomeStore interface {
	GetOutcome(ctx context.Context, merchantID, idempotencyKey string) (*OutcomeRow, error)
	SetOutcome(ctx context.Context, merchantID, idempotencyKey string, requestHash common.Hash, outcome StoredPurchaseOutcome) error
	GetPaymentRef(ctx context.Context, paymentRef string) (*PaymentRefRow, error)
	SetPaymentRef(ctx context.Context, paymentRef string, entitlementID common.Hash) error
}
