package creon_test

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"

	creon "github.com/creonlabs/creon-go"
	"github.com/creonlabs/creon-go/store"
)

var (
	mintTxHash    = common.HexToHash("0x4d696e7465640000000000000000000000000000000000000000000000000001")
	consumeTxHash = common.HexToHash("0x436f6e73756d6564000000000000000000000000000000000000000000000002")
)

// fakeLedger is a hand-rolled ledger adapter that counts every call.
type fakeLedger struct {
	record     creon.EntitlementRecord
	readErr    error
	writeErr   error
	consumeErr error

	reads     int
	grants    int
	consumes  int
	lastGrant creon.GrantParams
}

func (f *fakeLedger) ReadEntitlement(_ context.Context, _ common.Hash, _ common.Address, _ common.Hash) (creon.EntitlementRecord, error) {
	f.reads++
	if f.readErr != nil {
		return creon.EntitlementRecord{}, f.readErr
	}
	return f.record, nil
}

func (f *fakeLedger) WriteGrant(_ context.Context, params creon.GrantParams) (common.Hash, error) {
	f.grants++
	f.lastGrant = params
	if f.writeErr != nil {
		return common.Hash{}, f.writeErr
	}
	return mintTxHash, nil
}

func (f *fakeLedger) ConsumeEntitlement(_ context.Context, _ common.Hash, _ common.Address, _ common.Hash) (common.Hash, error) {
	f.consumes++
	if f.consumeErr != nil {
		return common.Hash{}, f.consumeErr
	}
	return consumeTxHash, nil
}

// failingStore wraps a store and fails selected writes.
type failingStore struct {
	creon.OutcomeStore
	failSetOutcome    bool
	failSetPaymentRef bool
}

var (
	errStoreDown  = errors.New("store unavailable")
	errLedgerDown = errors.New("ledger down")
)

func (f *failingStore) SetOutcome(ctx context.Context, merchantID, idempotencyKey string, requestHash common.Hash, outcome creon.StoredPurchaseOutcome) error {
	if f.failSetOutcome {
		return errStoreDown
	}
	return f.OutcomeStore.SetOutcome(ctx, merchantID, idempotencyKey, requestHash, outcome)
}

func (f *failingStore) SetPaymentRef(ctx context.Context, paymentRef string, entitlementID common.Hash) error {
	if f.failSetPaymentRef {
		return errStoreDown
	}
	return f.OutcomeStore.SetPaymentRef(ctx, paymentRef, entitlementID)
}

var testIssuedAt = time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

func newTestService(ledger creon.LedgerAdapter, st creon.OutcomeStore) *creon.Service {
	svc, err := creon.New(
		creon.WithStore(st),
		creon.WithLedger(ledger),
		creon.WithConfig(creon.Config{
			WorkflowVersion:        "wf-1",
			PolicyVersion:          "pol-1",
			DefaultGrantTTLSeconds: 600,
		}),
		creon.WithClock(func() time.Time { return testIssuedAt }),
	)
	if err != nil {
		panic(err)
	}
	return svc
}

func newMemoryService(ledger creon.LedgerAdapter) *creon.Service {
	return newTestService(ledger, store.NewMemory())
}

func purchaseIntentJSON(idempotencyKey, paymentRef string) json.RawMessage {
	return json.RawMessage(`{
		"merchant_id": "demo-merchant",
		"buyer": "0x000000000000000000000000000000000000dEaD",
		"product_id": "article:42",
		"amount": "10.00",
		"currency": "USD",
		"payment_ref": "` + paymentRef + `",
		"idempotency_key": "` + idempotencyKey + `"
	}`)
}

func accessIntentJSON() json.RawMessage {
	return json.RawMessage(`{
		"merchant_id": "demo-merchant",
		"buyer": "0x000000000000000000000000000000000000dEaD",
		"product_id": "article:42"
	}`)
}

var x402Proof = json.RawMessage(`{"kind":"x402","receipt":{"id":"abc123"}}`)

// codeOf extracts the workflow error code, or empty when err is not tagged.
func codeOf(err error) string {
	var werr *creon.WorkflowError
	if errors.As(err, &werr) {
		return werr.Code
	}
	return ""
}
