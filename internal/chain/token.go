// Package chain holds the process-long, read-only address and DEX tables:
// token references, DEX descriptors, and the ABI fragments the rest of the
// scanner packs into eth_call data.
package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// TokenRef is a 20-byte address normalized for cross-component comparison.
// Equality and map keys always use Lower(); Hex() is for wire encoding.
type TokenRef struct {
	addr common.Address
}

// NewTokenRef builds a TokenRef from any hex representation of an address.
func NewTokenRef(hex string) TokenRef {
	return TokenRef{addr: common.HexToAddress(hex)}
}

// TokenRefFromAddress wraps an already-parsed go-ethereum address.
func TokenRefFromAddress(addr common.Address) TokenRef {
	return TokenRef{addr: addr}
}

// Address returns the underlying go-ethereum address.
func (t TokenRef) Address() common.Address { return t.addr }

// Lower is the canonical comparison/cache key form.
func (t TokenRef) Lower() string { return strings.ToLower(t.addr.Hex()) }

// Hex is the checksummed wire-encoding form.
func (t TokenRef) Hex() string { return t.addr.Hex() }

func (t TokenRef) IsZero() bool { return t.addr == (common.Address{}) }

// Less orders two TokenRefs by their lowercase hex form, matching the V2
// convention that token0 < token1 lexicographically.
func (t TokenRef) Less(other TokenRef) bool {
	return strings.Compare(t.Lower(), other.Lower()) < 0
}

// SortPair returns (a, b) reordered so the first is lexicographically
// smaller, matching Uniswap V2's token0/token1 convention.
func SortPair(a, b TokenRef) (TokenRef, TokenRef) {
	if a.Less(b) {
		return a, b
	}
	return b, a
}
