// Package store provides the outcome-store backends: a volatile in-memory
// mapping for tests and fallback, and a durable file-backed snapshot that
// survives process restarts. Both expose identical observable behavior
// through the creon.OutcomeStore interface.
package store

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	creon "github.com/creonlabs/creon-go"
)

// Memory is the volatile in-process backend. Safe for concurrent use.
type Memory struct {
	mu       sync.RWMutex
	outcomes map[string]map[string]creon.OutcomeRow
	refs     map[string]creon.PaymentRefRow
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		outcomes: make(map[string]map[string]creon.OutcomeRow),
		refs:     make(map[string]creon.PaymentRefRow),
	}
}

func (m *Memory) GetOutcome(_ context.Context, merchantID, idempotencyKey string) (*creon.OutcomeRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.outcomes[merchantID][idempotencyKey]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (m *Memory) SetOutcome(_ context.Context, merchantID, idempotencyKey string, requestHash common.Hash, outcome creon.StoredPurchaseOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcomes[merchantID] == nil {
		m.outcomes[merchantID] = make(map[string]creon.OutcomeRow)
	}
	m.outcomes[merchantID][idempotencyKey] = creon.OutcomeRow{RequestHash: requestHash, Outcome: outcome}
	return nil
}

func (m *Memory) GetPaymentRef(_ context.Context, paymentRef string) (*creon.PaymentRefRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.refs[paymentRef]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (m *Memory) SetPaymentRef(_ context.Context, paymentRef string, entitlementID common.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refs[paymentRef] = creon.PaymentRefRow{EntitlementID: entitlementID}
	return nil
}
