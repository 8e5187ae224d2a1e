// Package resolver implements PairResolver (spec.md §4.5): turning a
// (dex, tokenA, tokenB) triple into a pool address, via CREATE2
// derivation first, factory.getPair as the authoritative fallback, with
// an LRU cache in front of the persistent pairstore.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog/log"

	"github.com/polyarb/scanner/internal/chain"
	"github.com/polyarb/scanner/internal/metrics"
	"github.com/polyarb/scanner/internal/pairstore"
	"github.com/polyarb/scanner/internal/rpcclient"
)

const (
	sourceCreate2 = "create2"
	sourceFactory = "factory"
	lruSize       = 4096
)

type cacheKey struct {
	dex string
	lo  string
	hi  string
}

// Resolver resolves pair addresses, consulting an in-process LRU, then
// the sqlite-backed Store, falling back to on-chain derivation/lookup.
type Resolver struct {
	client  *rpcclient.Client
	fetcher *rpcclient.BatchFetcher
	store   *pairstore.Store
	lru     *lru.Cache[cacheKey, common.Address]
	metrics *metrics.Metrics

	factoryABI abi.ABI
}

func New(client *rpcclient.Client, fetcher *rpcclient.BatchFetcher, store *pairstore.Store, m *metrics.Metrics) (*Resolver, error) {
	cache, err := lru.New[cacheKey, common.Address](lruSize)
	if err != nil {
		return nil, fmt.Errorf("resolver: create lru: %w", err)
	}

	factoryABI, err := abi.JSON(strings.NewReader(chain.UniswapV2FactoryABI))
	if err != nil {
		return nil, fmt.Errorf("resolver: parse factory ABI: %w", err)
	}

	return &Resolver{
		client:     client,
		fetcher:    fetcher,
		store:      store,
		lru:        cache,
		metrics:    m,
		factoryABI: factoryABI,
	}, nil
}

// Resolve returns the pair address for a (dex, tokenA, tokenB) triple.
// tokenA/tokenB may be given in either order; the sorted (token0, token1)
// convention is applied internally. The returned source is "create2" or
// "factory" for a fresh resolution and "" when the address came from the
// LRU or the persistent store. Resolve takes no candidate-supplied pair
// address and does not cross-check one against the derived address.
func (r *Resolver) Resolve(ctx context.Context, dex chain.DexDescriptor, tokenA, tokenB common.Address) (common.Address, string, error) {
	token0, token1 := chain.SortPair(chain.TokenRefFromAddress(tokenA), chain.TokenRefFromAddress(tokenB))
	key := cacheKey{dex: dex.Name, lo: strings.ToLower(token0.Hex()), hi: strings.ToLower(token1.Hex())}

	if addr, ok := r.lru.Get(key); ok {
		return addr, "", nil
	}

	if addr, ok := r.store.Get(dex.Name, token0.Address(), token1.Address()); ok {
		r.lru.Add(key, addr)
		return addr, "", nil
	}

	if dex.HasInitCode() {
		candidate := computePairAddress(dex, token0.Address(), token1.Address())
		exists, err := r.hasCode(ctx, candidate)
		if err != nil {
			log.Debug().Err(err).Str("dex", dex.Name).Msg("resolver: eth_getCode failed, falling through to factory")
		} else if exists {
			r.remember(key, dex.Name, token0.Address(), token1.Address(), candidate, sourceCreate2)
			return candidate, sourceCreate2, nil
		}
	}

	addr, err := r.resolveViaFactory(ctx, dex, token0.Address(), token1.Address())
	if err != nil {
		return common.Address{}, "", err
	}
	if addr == (common.Address{}) {
		return common.Address{}, "", fmt.Errorf("resolver: no pair for %s on %s", dex.Name, tokenPairLabel(token0.Address(), token1.Address()))
	}

	r.remember(key, dex.Name, token0.Address(), token1.Address(), addr, sourceFactory)
	return addr, sourceFactory, nil
}

func (r *Resolver) remember(key cacheKey, dexName string, token0, token1, addr common.Address, source string) {
	r.lru.Add(key, addr)
	if err := r.store.Put(dexName, token0, token1, addr, source); err != nil {
		log.Warn().Err(err).Msg("resolver: failed to persist pair address")
	}
	if r.metrics != nil {
		r.metrics.RecordPairResolved(source)
	}
}

// computePairAddress derives the V2 pair address via CREATE2:
// keccak256(0xff ++ factory ++ salt ++ initCodeHash)[12:], salt being
// keccak256(token0 ++ token1) with tokens pre-sorted.
func computePairAddress(dex chain.DexDescriptor, token0, token1 common.Address) common.Address {
	salt := crypto.Keccak256Hash(append(token0.Bytes(), token1.Bytes()...))

	data := append([]byte{0xff}, dex.Factory.Bytes()...)
	data = append(data, salt.Bytes()...)
	data = append(data, dex.InitCodePairHash[:]...)

	return common.BytesToAddress(crypto.Keccak256(data)[12:])
}

// hasCode issues a direct (non-batched) eth_getCode — a single isolated
// call, not worth routing through BatchFetcher's eth_call-only path.
func (r *Resolver) hasCode(ctx context.Context, addr common.Address) (bool, error) {
	req := rpcclient.Request{
		JSONRPC: "2.0",
		Method:  "eth_getCode",
		Params:  []any{addr.Hex(), "latest"},
		ID:      1,
	}

	body, err := r.client.Post(ctx, req)
	if err != nil {
		return false, err
	}

	var resp struct {
		Result string              `json:"result"`
		Error  *rpcclient.RPCError `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, fmt.Errorf("resolver: decode eth_getCode response: %w", err)
	}
	if resp.Error != nil {
		return false, fmt.Errorf("resolver: eth_getCode: %s", resp.Error.Message)
	}

	return resp.Result != "" && resp.Result != "0x", nil
}

func (r *Resolver) resolveViaFactory(ctx context.Context, dex chain.DexDescriptor, token0, token1 common.Address) (common.Address, error) {
	data, err := r.factoryABI.Pack("getPair", token0, token1)
	if err != nil {
		return common.Address{}, fmt.Errorf("resolver: pack getPair: %w", err)
	}

	results := r.fetcher.Fetch(ctx, []rpcclient.CallRequest{{Target: dex.Factory, Data: data}})
	if len(results) == 0 {
		return common.Address{}, fmt.Errorf("resolver: getPair(%s) call failed on %s", tokenPairLabel(token0, token1), dex.Name)
	}

	unpacked, err := r.factoryABI.Unpack("getPair", results[0].Result)
	if err != nil || len(unpacked) != 1 {
		return common.Address{}, fmt.Errorf("resolver: unpack getPair: %w", err)
	}
	addr, ok := unpacked[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("resolver: getPair returned unexpected type")
	}
	return addr, nil
}

func tokenPairLabel(a, b common.Address) string {
	return a.Hex() + "/" + b.Hex()
}
