package creon

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/creonlabs/creon-go/canonical"
)

// Reunlock enforces usage and expiry policy against the ledger without
// re-charging the buyer, and issues a fresh short-lived grant.
//
// Policy checks run in order: inactive, expired (ValidUntil != 0 and now
// past it), uses exhausted (MaxUses != 0 and Uses at the cap). When usage
// is tracked a single consume write increments the counter and its tx hash
// is returned; unlimited entitlements never touch the chain. Revocation is
// a ledger-state concern: a revoked entitlement reads as inactive here.
func (s *Service) Reunlock(ctx context.Context, rawIntent json.RawMessage) (*ReunlockResult, error) {
	s.logStep(1, "validate input", nil)
	intent, werr := parseAccessIntent(rawIntent)
	if werr != nil {
		return nil, werr
	}
	s.logStep(1, "input validated", map[string]any{
		"merchant_id": intent.MerchantID,
		"product_id":  intent.ProductID,
		"buyer":       intent.Buyer.Hex(),
	})

	s.logStep(2, "derive entitlement id", nil)
	derivation := canonical.DeriveEntitlement(intent.MerchantID, intent.Buyer, intent.ProductID)

	s.logStep(3, "read entitlement onchain", nil)
	entitlement, err := s.ledger.ReadEntitlement(ctx, derivation.MerchantIDHash, intent.Buyer, derivation.ProductIDHash)
	if err != nil {
		return nil, chainError(err)
	}

	if !entitlement.Active {
		return nil, NewWorkflowError(ErrCodeNoEntitlement, "entitlement not found or inactive")
	}

	issuedAt := s.now().UTC()
	if entitlement.ValidUntil != 0 && uint64(issuedAt.Unix()) > entitlement.ValidUntil {
		return nil, NewWorkflowError(ErrCodeEntitlementExpired, "entitlement expired")
	}
	if entitlement.MaxUses != 0 && entitlement.Uses >= entitlement.MaxUses {
		return nil, NewWorkflowError(ErrCodeUsesExceeded, "entitlement usage exceeded")
	}

	var txHash *common.Hash
	if entitlement.MaxUses != 0 {
		s.logStep(4, "consume entitlement usage", nil)
		hash, err := s.ledger.ConsumeEntitlement(ctx, derivation.MerchantIDHash, intent.Buyer, derivation.ProductIDHash)
		if err != nil {
			return nil, chainError(err)
		}
		txHash = &hash
	}
	s.logStep(5, "entitlement allowed", map[string]any{"consumed": txHash != nil})

	grant := UnlockGrant{
		Kind:      GrantKindContentToken,
		Token:     "unlock:" + derivation.EntitlementID.Hex(),
		ExpiresAt: issuedAt.Add(s.config.GrantTTL()).Format(time.RFC3339),
	}
	return &ReunlockResult{Grant: grant, TxHash: txHash}, nil
}
