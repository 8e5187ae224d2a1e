// Package pairstore is the sqlite-backed half of the PairResolver's
// two-tier cache (spec.md §4.5): pair addresses, once resolved, persist
// across process restarts. internal/resolver puts an in-memory LRU in
// front of this.
package pairstore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS pair_cache (
	dex        TEXT NOT NULL,
	token_lo   TEXT NOT NULL,
	token_hi   TEXT NOT NULL,
	pair       TEXT NOT NULL,
	source     TEXT NOT NULL,
	PRIMARY KEY (dex, token_lo, token_hi)
);
`

// Store wraps the pair_cache table.
type Store struct {
	db *sql.DB
}

// Open creates (or reuses) a sqlite database at dbPath in WAL mode, the
// way the teacher's storage.NewCacheDB does for account_state.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("pairstore: create dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("pairstore: open db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pairstore: enable WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("pairstore: init schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns a previously stored pair address for (dex, tokenA, tokenB),
// regardless of the order the tokens are passed in.
func (s *Store) Get(dex string, tokenA, tokenB common.Address) (common.Address, bool) {
	lo, hi := sortAddrs(tokenA, tokenB)

	var pairHex string
	err := s.db.QueryRow(
		"SELECT pair FROM pair_cache WHERE dex = ? AND token_lo = ? AND token_hi = ?",
		dex, lo, hi,
	).Scan(&pairHex)
	if err != nil {
		return common.Address{}, false
	}
	return common.HexToAddress(pairHex), true
}

// Source returns how the cached address was resolved ("create2" or
// "factory").
func (s *Store) Source(dex string, tokenA, tokenB common.Address) (string, bool) {
	lo, hi := sortAddrs(tokenA, tokenB)

	var source string
	err := s.db.QueryRow(
		"SELECT source FROM pair_cache WHERE dex = ? AND token_lo = ? AND token_hi = ?",
		dex, lo, hi,
	).Scan(&source)
	if err != nil {
		return "", false
	}
	return source, true
}

// Put records a resolved pair address. source is "create2" or "factory".
func (s *Store) Put(dex string, tokenA, tokenB, pair common.Address, source string) error {
	lo, hi := sortAddrs(tokenA, tokenB)
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO pair_cache (dex, token_lo, token_hi, pair, source) VALUES (?, ?, ?, ?, ?)",
		dex, lo, hi, pair.Hex(), source,
	)
	return err
}

// Stats reports the row count, mirroring the teacher's GetStats.
func (s *Store) Stats() (int64, error) {
	var count int64
	err := s.db.QueryRow("SELECT COUNT(*) FROM pair_cache").Scan(&count)
	return count, err
}

func sortAddrs(a, b common.Address) (string, string) {
	ah, bh := strings.ToLower(a.Hex()), strings.ToLower(b.Hex())
	if ah <= bh {
		return ah, bh
	}
	return bh, ah
}
