// Package candidate implements CandidateSource (spec.md §6): a
// newline-delimited JSON reader over v2_combos.jsonl, and the Candidate
// type itself (spec.md §3).
package candidate

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
)

// VenueRef names a pool on a named DEX, as given in a candidate line.
type VenueRef struct {
	Dex  string `json:"dex"`
	Pair string `json:"pair"`
}

// Candidate mirrors one line of v2_combos.jsonl (spec.md §3/§6).
type Candidate struct {
	Trade common.Address `json:"-"`
	Base  common.Address `json:"-"`
	Buy   VenueRef       `json:"buy"`
	Sell  VenueRef       `json:"sell"`

	TradeHex string `json:"trade"`
	BaseHex  string `json:"base"`
}

// UnmarshalJSON decodes the hex fields into common.Address, so callers
// never see raw strings.
func (c *Candidate) UnmarshalJSON(data []byte) error {
	type alias Candidate
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*c = Candidate(a)
	if !common.IsHexAddress(c.TradeHex) {
		return fmt.Errorf("candidate: invalid trade address %q", c.TradeHex)
	}
	if !common.IsHexAddress(c.BaseHex) {
		return fmt.Errorf("candidate: invalid base address %q", c.BaseHex)
	}
	c.Trade = common.HexToAddress(c.TradeHex)
	c.Base = common.HexToAddress(c.BaseHex)
	return nil
}

// LoadCandidates reads every well-formed line of a v2_combos.jsonl
// file. Malformed lines are skipped, not fatal — candidate ingestion is
// a DecodeFailure per spec.md §7, not a configuration error.
func LoadCandidates(path string) ([]Candidate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("scanner: open candidate file: %w", err)
	}
	defer f.Close()

	var out []Candidate
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var c Candidate
		if err := json.Unmarshal(line, &c); err != nil {
			continue
		}
		if c.Buy.Dex == c.Sell.Dex {
			continue // spec.md §3: buy.dex != sell.dex
		}
		out = append(out, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanner: read candidate file: %w", err)
	}
	return out, nil
}
