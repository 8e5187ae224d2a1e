// Package decimals implements the persistent token→decimals cache
// described in spec.md §4.3: an in-memory map backed by a JSON file on
// disk, authoritative after first successful read.
package decimals

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"github.com/polyarb/scanner/internal/chain"
	"github.com/polyarb/scanner/internal/metrics"
	"github.com/polyarb/scanner/internal/rpcclient"
)

const batchSize = 100

// Cache is a lowercase-address-keyed decimals map, JSON-file backed.
type Cache struct {
	path string

	mu     sync.RWMutex
	values map[string]int

	decimalsABI abi.ABI
	fetcher     *rpcclient.BatchFetcher
	metrics     *metrics.Metrics
}

// Load reads the backing file if it exists (a missing file is not an
// error — it simply starts empty, matching the Python original's
// `if cache_file.exists()` check). m may be nil.
func Load(path string, fetcher *rpcclient.BatchFetcher, m *metrics.Metrics) (*Cache, error) {
	parsedABI, err := abi.JSON(strings.NewReader(chain.ERC20DecimalsABI))
	if err != nil {
		return nil, fmt.Errorf("decimals: parse ABI: %w", err)
	}

	c := &Cache{
		path:        path,
		values:      make(map[string]int),
		decimalsABI: parsedABI,
		fetcher:     fetcher,
		metrics:     m,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("decimals: read cache file: %w", err)
	}
	if len(data) == 0 {
		return c, nil
	}
	if err := json.Unmarshal(data, &c.values); err != nil {
		return nil, fmt.Errorf("decimals: parse cache file: %w", err)
	}
	return c, nil
}

// Get returns a cached value with no I/O.
func (c *Cache) Get(addr common.Address) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key(addr)]
	return v, ok
}

// ResolveAll ensures every address in addrs is in the cache, issuing one
// batched decimals() eth_call per 100 misses (spec.md §4.3). Results
// (success or failure) are written back immediately so misses are not
// repeated; a failed element gets the default decimals. Returns a snapshot
// map for convenience.
func (c *Cache) ResolveAll(ctx context.Context, addrs []common.Address) map[string]int {
	var misses []common.Address
	seen := make(map[string]bool)

	for _, a := range addrs {
		k := key(a)
		if seen[k] {
			continue
		}
		seen[k] = true
		if _, ok := c.Get(a); !ok {
			misses = append(misses, a)
		}
	}

	if len(misses) > 0 {
		if c.metrics != nil {
			c.metrics.DecimalsMisses.Add(float64(len(misses)))
		}
		c.fetchMissing(ctx, misses)
		if err := c.flush(); err != nil {
			log.Warn().Err(err).Msg("decimals: failed to persist cache")
		}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]int, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

func (c *Cache) fetchMissing(ctx context.Context, misses []common.Address) {
	data, err := c.decimalsABI.Pack("decimals")
	if err != nil {
		log.Error().Err(err).Msg("decimals: pack decimals() call")
		c.setDefaultAll(misses)
		return
	}

	for i := 0; i < len(misses); i += batchSize {
		end := i + batchSize
		if end > len(misses) {
			end = len(misses)
		}
		batch := misses[i:end]

		reqs := make([]rpcclient.CallRequest, len(batch))
		for j, addr := range batch {
			reqs[j] = rpcclient.CallRequest{Target: addr, Data: data}
		}

		results := c.fetcher.Fetch(ctx, reqs)
		byIndex := make(map[int]rpcclient.CallResult, len(results))
		for _, r := range results {
			byIndex[r.Index] = r
		}

		c.mu.Lock()
		for j, addr := range batch {
			d := chain.DefaultDecimals
			if res, ok := byIndex[j]; ok {
				if unpacked, err := c.decimalsABI.Unpack("decimals", res.Result); err == nil && len(unpacked) == 1 {
					if raw, ok := unpacked[0].(uint8); ok {
						d = int(raw)
					}
				}
			}
			c.values[key(addr)] = d
		}
		c.mu.Unlock()
	}
}

func (c *Cache) setDefaultAll(addrs []common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range addrs {
		c.values[key(a)] = chain.DefaultDecimals
	}
}

// flush atomically rewrites the backing file (spec.md §6: "rewritten
// atomically after each cycle that made network fetches").
func (c *Cache) flush() error {
	c.mu.RLock()
	data, err := json.MarshalIndent(c.values, "", "  ")
	c.mu.RUnlock()
	if err != nil {
		return err
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".decimals-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, c.path)
}

func key(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}
