// Package canonical provides deterministic content hashing for the
// entitlement core: a canonical JSON serialization in which object keys are
// sorted, a keccak-256 content hash over UTF-8 input, and the entitlement
// identity derivation used as the addressing scheme for ledger state.
package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Canonicalize produces a deterministic serialization of a structured
// value: null, booleans, numbers, and strings encode literally, arrays
// preserve order, and object keys are sorted lexicographically. Two
// semantically equal structures with different field or insertion order
// therefore serialize, and hash, identically. Non-finite numbers are
// rejected.
func Canonicalize(v any) (string, error) {
	// Normalize through encoding/json first: this flattens structs into
	// plain objects and rejects NaN/Inf. UseNumber keeps number literals
	// intact so large integers survive the round trip.
	encoded, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("canonical: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(encoded))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return "", fmt.Errorf("canonical: %w", err)
	}

	var b strings.Builder
	writeValue(&b, tree)
	return b.String(), nil
}

func writeValue(b *strings.Builder, v any) {
	switch t := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		if t {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case json.Number:
		b.WriteString(t.String())
	case string:
		writeString(b, t)
	case []any:
		b.WriteByte('[')
		for i, elem := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			writeValue(b, elem)
		}
		b.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			writeString(b, k)
			b.WriteByte(':')
			writeValue(b, t[k])
		}
		b.WriteByte('}')
	}
}

// writeString encodes s as a JSON string without HTML escaping.
func writeString(b *strings.Builder, s string) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// Encode on a string cannot fail.
	_ = enc.Encode(s)
	b.Write(bytes.TrimRight(buf.Bytes(), "\n"))
}

// ContentHash returns the keccak-256 digest of the UTF-8 bytes of s.
func ContentHash(s string) common.Hash {
	return crypto.Keccak256Hash([]byte(s))
}

// HashValue canonicalizes v and returns the content hash of the result.
func HashValue(v any) (common.Hash, error) {
	c, err := Canonicalize(v)
	if err != nil {
		return common.Hash{}, err
	}
	return ContentHash(c), nil
}
