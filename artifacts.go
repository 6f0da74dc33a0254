package creon

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/creonlabs/creon-go/canonical"
)

// PurchaseArtifacts holds the finalized receipt and its derived encodings.
type PurchaseArtifacts struct {
	Receipt              Receipt
	ReceiptHash          common.Hash
	ReceiptJSON          string
	AccountingPacketJSON string
	AccountingPacketCSV  string
	AuditBundleJSONL     string
}

// BuildArtifacts finalizes the receipt with the resolved entitlement id and
// tx hash, hashes its canonical form, and derives the accounting packet
// (one balanced cash debit / revenue credit pair) and the three-event audit
// bundle. Pure function of its inputs; the caller persists the encodings
// verbatim and replays them without recomputation.
func BuildArtifacts(receipt Receipt, entitlementID, txHash common.Hash, minted bool, amount string) (PurchaseArtifacts, error) {
	receipt.EntitlementID = entitlementID
	receipt.TxHash = txHash

	canonicalReceipt, err := canonical.Canonicalize(receipt)
	if err != nil {
		return PurchaseArtifacts{}, fmt.Errorf("canonicalize receipt: %w", err)
	}
	receiptHash := canonical.ContentHash(canonicalReceipt)

	receiptJSON, err := json.MarshalIndent(receipt, "", "  ")
	if err != nil {
		return PurchaseArtifacts{}, fmt.Errorf("encode receipt: %w", err)
	}

	packet := AccountingPacket{
		Version:     ReceiptVersion,
		ReceiptHash: receiptHash,
		Lines: []AccountingLine{
			{Account: "cash", Debit: amount, Credit: "0", Memo: "purchase payment"},
			{Account: "revenue", Debit: "0", Credit: amount, Memo: "product sale"},
		},
	}
	packetJSON, err := json.MarshalIndent(packet, "", "  ")
	if err != nil {
		return PurchaseArtifacts{}, fmt.Errorf("encode accounting packet: %w", err)
	}

	csvRows := [][]string{{"account", "debit", "credit", "memo"}}
	for _, line := range packet.Lines {
		csvRows = append(csvRows, []string{line.Account, line.Debit, line.Credit, line.Memo})
	}

	events := []AuditEvent{
		{At: receipt.IssuedAt, Type: "purchase.artifacts", Data: map[string]any{"minted": minted}},
		{At: receipt.IssuedAt, Type: "purchase.receipt", Data: map[string]any{"receipt_hash": receiptHash}},
		{At: receipt.IssuedAt, Type: "purchase.chain", Data: map[string]any{"tx_hash": txHash}},
	}
	var bundle strings.Builder
	for _, event := range events {
		line, err := canonical.Canonicalize(event)
		if err != nil {
			return PurchaseArtifacts{}, fmt.Errorf("canonicalize audit event: %w", err)
		}
		bundle.WriteString(line)
		bundle.WriteByte('\n')
	}

	return PurchaseArtifacts{
		Receipt:              receipt,
		ReceiptHash:          receiptHash,
		ReceiptJSON:          string(receiptJSON),
		AccountingPacketJSON: string(packetJSON),
		AccountingPacketCSV:  toCSV(csvRows),
		AuditBundleJSONL:     bundle.String(),
	}, nil
}

func toCSV(rows [][]string) string {
	var b strings.Builder
	for _, row := range rows {
		b.WriteString(strings.Join(row, ","))
		b.WriteByte('\n')
	}
	return b.String()
}
