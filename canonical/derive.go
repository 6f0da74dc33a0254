package canonical

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Derivation is the set of hashes addressing one entitlement.
type Derivation struct {
	MerchantIDHash common.Hash `json:"merchant_id_hash"`
	ProductIDHash  common.Hash `json:"product_id_hash"`
	EntitlementID  common.Hash `json:"entitlement_id"`
}

// DeriveEntitlement computes the stable entitlement identity for a
// (merchant, buyer, product) triple. The id is the keccak-256 digest of
// the fixed packing merchantIDHash || buyer || productIDHash
// (32 + 20 + 32 bytes). Pure: identical inputs always yield the identical
// id, and every call site addressing the same entitlement must use this
// function.
func DeriveEntitlement(merchantID string, buyer common.Address, productID string) Derivation {
	merchantIDHash := ContentHash(merchantID)
	productIDHash := ContentHash(productID)
	entitlementID := crypto.Keccak256Hash(
		merchantIDHash.Bytes(),
		buyer.Bytes(),
		productIDHash.Bytes(),
	)
	return Derivation{
		MerchantIDHash: merchantIDHash,
		ProductIDHash:  productIDHash,
		EntitlementID:  entitlementID,
	}
}
