package creon

import (
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ReceiptVersion is the current receipt format version embedded in every
// finalized receipt and accounting packet.
const ReceiptVersion = "1"

// PaymentProofKindX402 is the only payment proof kind this core recognizes.
// Proof validity is established by an external validator; only presence and
// kind gate the purchase workflow.
const PaymentProofKindX402 = "x402"

// PurchaseIntent describes who bought what. Immutable once accepted; the
// request hash used for idempotency is computed over the canonical form of
// this struct.
type PurchaseIntent struct {
	MerchantID     string         `json:"merchant_id"`
	Buyer          common.Address `json:"buyer"`
	ProductID      string         `json:"product_id"`
	Amount         string         `json:"amount"`
	Currency       string         `json:"currency"`
	PaymentRef     string         `json:"payment_ref"`
	IdempotencyKey string         `json:"idempotency_key"`
}

// PaymentProof is an opaque payment receipt. The receipt blob is carried
// through untouched; settlement policy lives outside this core.
type PaymentProof struct {
	Kind    string          `json:"kind"`
	Receipt json.RawMessage `json:"receipt,omitempty"`
}

// AccessIntent is the minimal key needed to re-derive an entitlement
// identity for a re-unlock check.
type AccessIntent struct {
	MerchantID string         `json:"merchant_id"`
	Buyer      common.Address `json:"buyer"`
	ProductID  string         `json:"product_id"`
}

// EntitlementRecord is the ledger-resident entitlement state, read-only to
// this core. ValidUntil == 0 means no expiry; MaxUses == 0 means unlimited.
type EntitlementRecord struct {
	Active     bool   `json:"active"`
	ValidFrom  uint64 `json:"valid_from"`
	ValidUntil uint64 `json:"valid_until"`
	MaxUses    uint32 `json:"max_uses"`
	Uses       uint32 `json:"uses"`
}

// Receipt is the canonical record of a completed purchase. Its content hash
// is the stable fingerprint used for accounting cross-referencing.
type Receipt struct {
	Version         string         `json:"version"`
	MerchantID      string         `json:"merchant_id"`
	Buyer           common.Address `json:"buyer"`
	ProductID       string         `json:"product_id"`
	PaymentRef      string         `json:"payment_ref"`
	EntitlementID   common.Hash    `json:"entitlement_id"`
	TxHash          common.Hash    `json:"tx_hash"`
	WorkflowVersion string         `json:"workflow_version"`
	PolicyVersion   string         `json:"policy_version"`
	IssuedAt        string         `json:"issued_at"`
}

// AccountingLine is one side of a double-entry accounting packet.
type AccountingLine struct {
	Account string `json:"account"`
	Debit   string `json:"debit"`
	Credit  string `json:"credit"`
	Memo    string `json:"memo,omitempty"`
}

// AccountingPacket is a balanced set of accounting lines cross-referenced
// to a receipt by its hash.
type AccountingPacket struct {
	Version     string           `json:"version"`
	ReceiptHash common.Hash      `json:"receipt_hash"`
	Lines       []AccountingLine `json:"lines"`
}

// AuditEvent is one record of the append-only audit bundle.
type AuditEvent struct {
	At   string         `json:"at"`
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// OutcomeArtifacts are the persisted artifact encodings of a purchase.
// They are written once and replayed verbatim; nothing here is recomputed.
type OutcomeArtifacts struct {
	ReceiptJSON          string      `json:"receipt_json"`
	ReceiptHash          common.Hash `json:"receipt_hash"`
	AccountingPacketJSON string      `json:"accounting_packet_json"`
	AccountingPacketCSV  string      `json:"accounting_packet_csv"`
	AuditBundleJSONL     string      `json:"audit_bundle_jsonl"`
}

// StoredPurchaseOutcome is the committed result of a purchase, keyed by
// (merchant_id, idempotency_key). Retries with the same key and request
// hash receive a byte-identical copy.
type StoredPurchaseOutcome struct {
	Minted        bool             `json:"minted"`
	TxHash        common.Hash      `json:"tx_hash"`
	EntitlementID common.Hash      `json:"entitlement_id"`
	Artifacts     OutcomeArtifacts `json:"artifacts"`
}

// Grant kinds issued by the re-unlock workflow.
const (
	GrantKindContentToken = "content_token"
	GrantKindSignedURL    = "signed_url"
	GrantKindSessionToken = "session_token"
	GrantKindStreamGrant  = "stream_grant"
)

// UnlockGrant is a short-lived access grant produced fresh on every
// successful re-unlock. Never persisted by this core.
type UnlockGrant struct {
	Kind      string `json:"kind"`
	Token     string `json:"token,omitempty"`
	URL       string `json:"url,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

// ReunlockResult carries the issued grant and, when a usage-consumption
// write happened, the hash of that transaction.
type ReunlockResult struct {
	Grant  UnlockGrant  `json:"grant"`
	TxHash *common.Hash `json:"tx_hash,omitempty"`
}

// Config carries the options the workflows recognize. WorkflowVersion and
// PolicyVersion are embedded into every receipt for audit provenance.
type Config struct {
	WorkflowVersion        string `json:"workflow_version"`
	PolicyVersion          string `json:"policy_version"`
	DefaultGrantTTLSeconds int    `json:"default_grant_ttl_seconds,omitempty"`
}

// fallbackGrantTTL is used when no grant TTL is configured.
const fallbackGrantTTL = 300 * time.Second

// Validate checks that the config has all required fields.
func (c Config) Validate() error {
	if c.WorkflowVersion == "" {
		return ErrMissingWorkflowVersion
	}
	if c.PolicyVersion == "" {
		return ErrMissingPolicyVersion
	}
	return nil
}

// GrantTTL returns the re-unlock grant lifetime, defaulting when unset.
func (c Config) GrantTTL() time.Duration {
	if c.DefaultGrantTTLSeconds <= 0 {
		return fallbackGrantTTL
	}
	return time.Duration(c.DefaultGrantTTLSeconds) * time.Second
}
