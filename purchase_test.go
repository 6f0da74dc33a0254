package creon_test

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	creon "github.com/creonlabs/creon-go"
	"github.com/creonlabs/creon-go/store"
)

func TestPurchaseMintsWhenEntitlementInactive(t *testing.T) {
	ledger := &fakeLedger{}
	svc := newMemoryService(ledger)

	outcome, err := svc.Purchase(context.Background(), purchaseIntentJSON("idemp-1", "x402:receipt:abc123"), x402Proof)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !outcome.Minted {
		t.Error("expected minted=true for inactive entitlement")
	}
	if outcome.TxHash != mintTxHash {
		t.Errorf("expected mint tx hash, got %s", outcome.TxHash.Hex())
	}
	if outcome.EntitlementID == (common.Hash{}) {
		t.Error("expected non-zero entitlement id")
	}
	if ledger.grants != 1 {
		t.Errorf("expected exactly one grant write, got %d", ledger.grants)
	}

	// Purchase mints with unrestricted validity and uses.
	if ledger.lastGrant.ValidUntil != 0 || ledger.lastGrant.MaxUses != 0 {
		t.Errorf("expected unrestricted grant, got valid_until=%d max_uses=%d",
			ledger.lastGrant.ValidUntil, ledger.lastGrant.MaxUses)
	}
}

func TestPurchaseSkipsMintWhenEntitlementActive(t *testing.T) {
	ledger := &fakeLedger{record: creon.EntitlementRecord{Active: true}}
	svc := newMemoryService(ledger)

	outcome, err := svc.Purchase(context.Background(), purchaseIntentJSON("idemp-1", "x402:receipt:abc123"), x402Proof)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if outcome.Minted {
		t.Error("expected minted=false for active entitlement")
	}
	if outcome.TxHash != (common.Hash{}) {
		t.Errorf("expected zero-hash sentinel, got %s", outcome.TxHash.Hex())
	}
	if ledger.grants != 0 {
		t.Errorf("expected zero grant writes, got %d", ledger.grants)
	}
}

func TestPurchaseRetryReturnsStoredOutcomeUnchanged(t *testing.T) {
	ledger := &fakeLedger{}
	svc := newMemoryService(ledger)
	intent := purchaseIntentJSON("idemp-1", "x402:receipt:abc123")

	first, err := svc.Purchase(context.Background(), intent, x402Proof)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	second, err := svc.Purchase(context.Background(), intent, x402Proof)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Error("retry must return a byte-identical outcome")
	}
	if first.Artifacts.ReceiptJSON != second.Artifacts.ReceiptJSON ||
		first.Artifacts.AuditBundleJSONL != second.Artifacts.AuditBundleJSONL {
		t.Error("artifacts must be replayed verbatim, not regenerated")
	}
	if ledger.grants != 1 {
		t.Errorf("retry must not touch the ledger, got %d grant writes", ledger.grants)
	}
	if ledger.reads != 1 {
		t.Errorf("retry must not re-read the ledger, got %d reads", ledger.reads)
	}
}

func TestPurchaseIdempotencyKeyReuseWithDifferentInput(t *testing.T) {
	ledger := &fakeLedger{}
	svc := newMemoryService(ledger)

	if _, err := svc.Purchase(context.Background(), purchaseIntentJSON("idemp-1", "x402:receipt:abc123"), x402Proof); err != nil {
		t.Fatalf("first call: %v", err)
	}

	conflicting := purchaseIntentJSON("idemp-1", "x402:receipt:other")
	_, err := svc.Purchase(context.Background(), conflicting, x402Proof)
	if codeOf(err) != creon.ErrCodeIdempotencyConflict {
		t.Fatalf("expected IDEMPOTENCY_CONFLICT, got %v", err)
	}
	if ledger.grants != 1 || ledger.reads != 1 {
		t.Error("conflicting call must not touch the ledger")
	}
}

func TestPurchasePaymentRefReplayDetected(t *testing.T) {
	ledger := &fakeLedger{}
	svc := newMemoryService(ledger)

	if _, err := svc.Purchase(context.Background(), purchaseIntentJSON("idemp-1", "x402:receipt:abc123"), x402Proof); err != nil {
		t.Fatalf("first call: %v", err)
	}

	// Fresh idempotency key, same payment reference.
	_, err := svc.Purchase(context.Background(), purchaseIntentJSON("idemp-2", "x402:receipt:abc123"), x402Proof)
	if codeOf(err) != creon.ErrCodeReplayDetected {
		t.Fatalf("expected REPLAY_DETECTED, got %v", err)
	}
	if ledger.grants != 1 {
		t.Error("replayed payment ref must not reach the ledger")
	}
}

func TestPurchaseMissingPaymentProof(t *testing.T) {
	svc := newMemoryService(&fakeLedger{})

	cases := map[string][]byte{
		"absent":        nil,
		"wrong kind":    []byte(`{"kind":"paypal"}`),
		"not an object": []byte(`"x402"`),
		"missing kind":  []byte(`{"receipt":{}}`),
	}
	for name, proof := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Purchase(context.Background(), purchaseIntentJSON("idemp-1", "x402:receipt:abc123"), proof)
			if codeOf(err) != creon.ErrCodeMissingPaymentProof {
				t.Fatalf("expected MISSING_PAYMENT_PROOF, got %v", err)
			}
		})
	}
}

func TestPurchaseInvalidIntent(t *testing.T) {
	svc := newMemoryService(&fakeLedger{})

	cases := map[string][]byte{
		"empty":            []byte(`{}`),
		"blank merchant":   []byte(`{"merchant_id":"","buyer":"0x000000000000000000000000000000000000dEaD","product_id":"a","amount":"1","currency":"USD","payment_ref":"r","idempotency_key":"k"}`),
		"bad buyer format": []byte(`{"merchant_id":"m","buyer":"not-an-address","product_id":"a","amount":"1","currency":"USD","payment_ref":"r","idempotency_key":"k"}`),
		"not json":         []byte(`nope`),
	}
	for name, intent := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Purchase(context.Background(), intent, x402Proof)
			if codeOf(err) != creon.ErrCodeInvalidInput {
				t.Fatalf("expected INVALID_INPUT, got %v", err)
			}
		})
	}
}

func TestPurchaseChainErrorAbortsBeforeStoreWrites(t *testing.T) {
	ledger := &fakeLedger{readErr: errLedgerDown}
	mem := store.NewMemory()
	svc := newTestService(ledger, mem)

	_, err := svc.Purchase(context.Background(), purchaseIntentJSON("idemp-1", "x402:receipt:abc123"), x402Proof)
	if codeOf(err) != creon.ErrCodeChainError {
		t.Fatalf("expected CHAIN_ERROR, got %v", err)
	}

	row, _ := mem.GetOutcome(context.Background(), "demo-merchant", "idemp-1")
	if row != nil {
		t.Error("no outcome must be committed after a chain failure")
	}
	ref, _ := mem.GetPaymentRef(context.Background(), "x402:receipt:abc123")
	if ref != nil {
		t.Error("no payment ref must be committed after a chain failure")
	}
}

func TestPurchaseWriteGrantFailureSurfacesAsChainError(t *testing.T) {
	ledger := &fakeLedger{writeErr: errLedgerDown}
	svc := newMemoryService(ledger)

	_, err := svc.Purchase(context.Background(), purchaseIntentJSON("idemp-1", "x402:receipt:abc123"), x402Proof)
	if codeOf(err) != creon.ErrCodeChainError {
		t.Fatalf("expected CHAIN_ERROR, got %v", err)
	}
	if !strings.Contains(err.Error(), "ledger down") {
		t.Errorf("adapter message must be preserved, got %q", err.Error())
	}
}

func TestPurchaseStoreFailurePreservesReplaySlot(t *testing.T) {
	// When the outcome commit fails nothing is recorded; a later retry with
	// the same key can still complete.
	ledger := &fakeLedger{}
	mem := store.NewMemory()
	failing := &failingStore{OutcomeStore: mem, failSetOutcome: true}
	svc := newTestService(ledger, failing)

	_, err := svc.Purchase(context.Background(), purchaseIntentJSON("idemp-1", "x402:receipt:abc123"), x402Proof)
	if err == nil || codeOf(err) != "" {
		t.Fatalf("expected an untagged store error, got %v", err)
	}

	failing.failSetOutcome = false
	if _, err := svc.Purchase(context.Background(), purchaseIntentJSON("idemp-1", "x402:receipt:abc123"), x402Proof); err != nil {
		t.Fatalf("retry after store recovery: %v", err)
	}
}

func TestPurchaseOutcomeCommittedBeforePaymentRef(t *testing.T) {
	// Known narrow gap: a failure between the two commits leaves the
	// outcome recorded with the payment-reference slot unconsumed.
	ledger := &fakeLedger{}
	mem := store.NewMemory()
	failing := &failingStore{OutcomeStore: mem, failSetPaymentRef: true}
	svc := newTestService(ledger, failing)

	_, err := svc.Purchase(context.Background(), purchaseIntentJSON("idemp-1", "x402:receipt:abc123"), x402Proof)
	if err == nil {
		t.Fatal("expected payment ref commit failure to surface")
	}

	row, _ := mem.GetOutcome(context.Background(), "demo-merchant", "idemp-1")
	if row == nil {
		t.Error("outcome is committed before the payment ref record")
	}
	ref, _ := mem.GetPaymentRef(context.Background(), "x402:receipt:abc123")
	if ref != nil {
		t.Error("payment ref must remain unconsumed when its commit fails")
	}
}

func TestPurchaseDifferentKeysSamePaymentRefScenario(t *testing.T) {
	// The named scenario: idemp-1 succeeds, idemp-2 reuses the same
	// payment reference and is rejected.
	ledger := &fakeLedger{}
	svc := newMemoryService(ledger)

	first, err := svc.Purchase(context.Background(), purchaseIntentJSON("idemp-1", "x402:receipt:abc123"), x402Proof)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if !first.Minted {
		t.Error("expected first call to mint")
	}

	_, err = svc.Purchase(context.Background(), purchaseIntentJSON("idemp-2", "x402:receipt:abc123"), x402Proof)
	if codeOf(err) != creon.ErrCodeReplayDetected {
		t.Fatalf("expected REPLAY_DETECTED, got %v", err)
	}
}
