package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	creon "github.com/creonlabs/creon-go"
)

// snapshot is the on-disk schema: two tables, one row per key. The
// idempotency table is nested merchant -> idempotency key so merchant ids
// containing separator characters cannot collide.
type snapshot struct {
	Idempotency map[string]map[string]creon.OutcomeRow `json:"idempotency"`
	Replay      map[string]creon.PaymentRefRow         `json:"replay"`
}

// File is the durable backend. The full snapshot is rewritten on every
// mutation via a temp file and rename, so a crash mid-write never leaves a
// torn snapshot. Rows are last-write-wins; callers must treat the store as
// the single serialization point per key.
type File struct {
	mu   sync.Mutex
	path string
	snap snapshot
}

// OpenFile opens or creates the snapshot file at path, creating parent
// directories as needed. Open once per process lifetime and share the
// handle across invocations.
func OpenFile(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store: create dir: %w", err)
	}

	f := &File{path: path, snap: snapshot{
		Idempotency: make(map[string]map[string]creon.OutcomeRow),
		Replay:      make(map[string]creon.PaymentRefRow),
	}}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read snapshot: %w", err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &f.snap); err != nil {
			return nil, fmt.Errorf("store: decode snapshot: %w", err)
		}
	}
	if f.snap.Idempotency == nil {
		f.snap.Idempotency = make(map[string]map[string]creon.OutcomeRow)
	}
	if f.snap.Replay == nil {
		f.snap.Replay = make(map[string]creon.PaymentRefRow)
	}
	return f, nil
}

// persistLocked writes the full snapshot. Must be called with mu held.
func (f *File) persistLocked() error {
	data, err := json.Marshal(f.snap)
	if err != nil {
		return fmt.Errorf("store: encode snapshot: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("store: write snapshot: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("store: replace snapshot: %w", err)
	}
	return nil
}

func (f *File) GetOutcome(_ context.Context, merchantID, idempotencyKey string) (*creon.OutcomeRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.snap.Idempotency[merchantID][idempotencyKey]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (f *File) SetOutcome(_ context.Context, merchantID, idempotencyKey string, requestHash common.Hash, outcome creon.StoredPurchaseOutcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snap.Idempotency[merchantID] == nil {
		f.snap.Idempotency[merchantID] = make(map[string]creon.OutcomeRow)
	}
	f.snap.Idempotency[merchantID][idempotencyKey] = creon.OutcomeRow{RequestHash: requestHash, Outcome: outcome}
	return f.persistLocked()
}

func (f *File) GetPaymentRef(_ context.Context, paymentRef string) (*creon.PaymentRefRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.snap.Replay[paymentRef]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (f *File) SetPaymentRef(_ context.Context, paymentRef string, entitlementID common.Hash) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap.Replay[paymentRef] = creon.PaymentRefRow{EntitlementID: entitlementID}
	return f.persistLocked()
}
