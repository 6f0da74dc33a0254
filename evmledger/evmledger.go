// Package evmledger implements the ledger adapter against an entitlement
// registry contract on an EVM chain. Reads go through an eth_call with
// ABI-packed calldata; writes are packed here but signed and broadcast by
// an injected sender, so this package never holds key material.
package evmledger

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	creon "github.com/creonlabs/creon-go"
)

const registryABIJSON = `[
	{
		"name": "getEntitlement",
		"type": "function",
		"stateMutability": "view",
		"inputs": [
			{"name": "merchantIdHash", "type": "bytes32"},
			{"name": "buyer", "type": "address"},
			{"name": "productIdHash", "type": "bytes32"}
		],
		"outputs": [
			{"name": "active", "type": "bool"},
			{"name": "validFrom", "type": "uint64"},
			{"name": "validUntil", "type": "uint64"},
			{"name": "maxUses", "type": "uint32"},
			{"name": "uses", "type": "uint32"},
			{"name": "metadataHash", "type": "bytes32"}
		]
	},
	{
		"name": "grantEntitlement",
		"type": "function",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "merchantIdHash", "type": "bytes32"},
			{"name": "buyer", "type": "address"},
			{"name": "productIdHash", "type": "bytes32"},
			{"name": "validUntil", "type": "uint64"},
			{"name": "maxUses", "type": "uint32"},
			{"name": "metadataHash", "type": "bytes32"}
		],
		"outputs": []
	},
	{
		"name": "consumeEntitlement",
		"type": "function",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "merchantIdHash", "type": "bytes32"},
			{"name": "buyer", "type": "address"},
			{"name": "productIdHash", "type": "bytes32"}
		],
		"outputs": [
			{"name": "newUses", "type": "uint32"}
		]
	}
]`

var registryABI = mustParseABI(registryABIJSON)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// ContractCaller is the read capability the adapter needs.
// *ethclient.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// TxSender signs and broadcasts a contract call on behalf of the adapter
// and returns the transaction hash. Implemented by the host runtime; a
// returned error is surfaced verbatim and never retried here.
type TxSender interface {
	SendContractCall(ctx context.Context, to common.Address, calldata []byte) (common.Hash, error)
}

// Adapter reads and writes entitlement state on one registry contract.
type Adapter struct {
	caller   ContractCaller
	sender   TxSender
	registry common.Address
}

// New builds an adapter from an existing caller and sender.
func New(caller ContractCaller, sender TxSender, registry common.Address) *Adapter {
	return &Adapter{caller: caller, sender: sender, registry: registry}
}

// Dial connects to an RPC endpoint and builds an adapter around it.
func Dial(ctx context.Context, rpcURL string, sender TxSender, registry common.Address) (*Adapter, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("evmledger: dial %s: %w", rpcURL, err)
	}
	return New(client, sender, registry), nil
}

// ReadEntitlement fetches the entitlement record for the derived identity.
func (a *Adapter) ReadEntitlement(ctx context.Context, merchantIDHash common.Hash, buyer common.Address, productIDHash common.Hash) (creon.EntitlementRecord, error) {
	calldata, err := registryABI.Pack("getEntitlement", [32]byte(merchantIDHash), buyer, [32]byte(productIDHash))
	if err != nil {
		return creon.EntitlementRecord{}, fmt.Errorf("evmledger: pack getEntitlement: %w", err)
	}

	output, err := a.caller.CallContract(ctx, ethereum.CallMsg{To: &a.registry, Data: calldata}, nil)
	if err != nil {
		return creon.EntitlementRecord{}, fmt.Errorf("evmledger: getEntitlement: %w", err)
	}

	values, err := registryABI.Unpack("getEntitlement", output)
	if err != nil {
		return creon.EntitlementRecord{}, fmt.Errorf("evmledger: decode getEntitlement: %w", err)
	}
	if len(values) < 5 {
		return creon.EntitlementRecord{}, fmt.Errorf("evmledger: getEntitlement returned %d values", len(values))
	}

	record := creon.EntitlementRecord{}
	var ok bool
	if record.Active, ok = values[0].(bool); !ok {
		return creon.EntitlementRecord{}, fmt.Errorf("evmledger: unexpected active type %T", values[0])
	}
	if record.ValidFrom, ok = values[1].(uint64); !ok {
		return creon.EntitlementRecord{}, fmt.Errorf("evmledger: unexpected validFrom type %T", values[1])
	}
	if record.ValidUntil, ok = values[2].(uint64); !ok {
		return creon.EntitlementRecord{}, fmt.Errorf("evmledger: unexpected validUntil type %T", values[2])
	}
	if record.MaxUses, ok = values[3].(uint32); !ok {
		return creon.EntitlementRecord{}, fmt.Errorf("evmledger: unexpected maxUses type %T", values[3])
	}
	if record.Uses, ok = values[4].(uint32); !ok {
		return creon.EntitlementRecord{}, fmt.Errorf("evmledger: unexpected uses type %T", values[4])
	}
	return record, nil
}

// WriteGrant mints or refreshes a grant on the registry.
func (a *Adapter) WriteGrant(ctx context.Context, params creon.GrantParams) (common.Hash, error) {
	calldata, err := registryABI.Pack("grantEntitlement",
		[32]byte(params.MerchantIDHash),
		params.Buyer,
		[32]byte(params.ProductIDHash),
		params.ValidUntil,
		params.MaxUses,
		[32]byte(params.MetadataHash),
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("evmledger: pack grantEntitlement: %w", err)
	}
	txHash, err := a.sender.SendContractCall(ctx, a.registry, calldata)
	if err != nil {
		return common.Hash{}, fmt.Errorf("evmledger: grantEntitlement: %w", err)
	}
	return txHash, nil
}

// ConsumeEntitlement increments the usage counter on the registry.
func (a *Adapter) ConsumeEntitlement(ctx context.Context, merchantIDHash common.Hash, buyer common.Address, productIDHash common.Hash) (common.Hash, error) {
	calldata, err := registryABI.Pack("consumeEntitlement", [32]byte(merchantIDHash), buyer, [32]byte(productIDHash))
	if err != nil {
		return common.Hash{}, fmt.Errorf("evmledger: pack consumeEntitlement: %w", err)
	}
	txHash, err := a.sender.SendContractCall(ctx, a.registry, calldata)
	if err != nil {
		return common.Hash{}, fmt.Errorf("evmledger: consumeEntitlement: %w", err)
	}
	return txHash, nil
}
