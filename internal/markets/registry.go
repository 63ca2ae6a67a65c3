// Package markets holds per-market account configuration: pool, custodies,
// oracle accounts, mints. Defaults are compiled in; a JSON override file may
// replace or extend entries. The merge happens once and readers always see a
// complete snapshot.
package markets

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/gagliardetto/solana-go"
)

// MarketConfig is one entry in the JSON override file.
type MarketConfig struct {
	Symbol       string            `json:"symbol"`
	Pool         string            `json:"pool"`
	BaseCustody  string            `json:"base_custody"`
	QuoteCustody string            `json:"quote_custody"`
	BaseMint     string            `json:"base_mint"`
	QuoteMint    string            `json:"quote_mint"`
	InputMint    string            `json:"input_mint,omitempty"`
	Extras       map[string]string `json:"extras,omitempty"`
}

// Market is a parsed, ready-to-use market entry.
type Market struct {
	Symbol       string
	Pool         solana.PublicKey
	BaseCustody  solana.PublicKey
	QuoteCustody solana.PublicKey
	BaseMint     solana.PublicKey
	QuoteMint    solana.PublicKey
	InputMint    solana.PublicKey
	// Extras hold oracle/price accounts and other named roles the
	// interface description requires but the core cannot derive.
	Extras map[string]solana.PublicKey
}

// Registry resolves market symbols to configuration. The snapshot pointer is
// swapped atomically on refresh; readers never observe a partial table.
type Registry struct {
	snapshot atomic.Pointer[map[string]*Market]
}

// NewRegistry merges the compiled-in defaults with an optional override file
// (path may be empty). Overrides replace whole entries by symbol; unknown
// symbols are added.
func NewRegistry(overridePath string) (*Registry, error) {
	merged := make(map[string]*Market, len(defaultMarkets))
	for _, cfg := range defaultMarkets {
		m, err := parseMarket(cfg)
		if err != nil {
			return nil, fmt.Errorf("default market %s: %w", cfg.Symbol, err)
		}
		merged[m.Symbol] = m
	}

	if overridePath != "" {
		overrides, err := loadOverrides(overridePath)
		if err != nil {
			return nil, err
		}
		for _, cfg := range overrides {
			m, err := parseMarket(cfg)
			if err != nil {
				return nil, fmt.Errorf("override market %s: %w", cfg.Symbol, err)
			}
			merged[m.Symbol] = m
		}
	}

	r := &Registry{}
	r.snapshot.Store(&merged)
	return r, nil
}

func loadOverrides(path string) ([]MarketConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read markets override: %w", err)
	}
	var configs []MarketConfig
	if err := json.Unmarshal(data, &configs); err != nil {
		return nil, fmt.Errorf("parse markets override: %w", err)
	}
	return configs, nil
}

// Resolve returns the configuration for a market symbol.
func (r *Registry) Resolve(symbol string) (*Market, error) {
	snap := *r.snapshot.Load()
	if m, ok := snap[strings.ToUpper(symbol)]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("market %q not configured (available: %s)", symbol, strings.Join(r.Symbols(), ", "))
}

// Extra returns a named extra account for a market, failing with the
// specific key name so the operator knows what to configure.
func (m *Market) Extra(name string) (solana.PublicKey, error) {
	if pk, ok := m.Extras[name]; ok {
		return pk, nil
	}
	return solana.PublicKey{}, fmt.Errorf("market %s: account %q not configured; add it to the market override file", m.Symbol, name)
}

// Symbols returns the configured market symbols, sorted.
func (r *Registry) Symbols() []string {
	snap := *r.snapshot.Load()
	out := make([]string, 0, len(snap))
	for s := range snap {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Refresh replaces the whole table from the override file layered over the
// defaults again. Concurrent readers keep the old snapshot until the swap.
func (r *Registry) Refresh(overridePath string) error {
	next, err := NewRegistry(overridePath)
	if err != nil {
		return err
	}
	r.snapshot.Store(next.snapshot.Load())
	return nil
}

func parseMarket(cfg MarketConfig) (*Market, error) {
	symbol := strings.ToUpper(strings.TrimSpace(cfg.Symbol))
	if symbol == "" {
		return nil, fmt.Errorf("missing symbol")
	}
	m := &Market{Symbol: symbol, Extras: make(map[string]solana.PublicKey, len(cfg.Extras))}

	var err error
	if m.Pool, err = parseKey("pool", cfg.Pool); err != nil {
		return nil, err
	}
	if m.BaseCustody, err = parseKey("base_custody", cfg.BaseCustody); err != nil {
		return nil, err
	}
	if m.QuoteCustody, err = parseKey("quote_custody", cfg.QuoteCustody); err != nil {
		return nil, err
	}
	if m.BaseMint, err = parseKey("base_mint", cfg.BaseMint); err != nil {
		return nil, err
	}
	if m.QuoteMint, err = parseKey("quote_mint", cfg.QuoteMint); err != nil {
		return nil, err
	}
	if cfg.InputMint != "" {
		if m.InputMint, err = parseKey("input_mint", cfg.InputMint); err != nil {
			return nil, err
		}
	} else {
		// Collateral flows in as the quote asset unless configured otherwise.
		m.InputMint = m.QuoteMint
	}
	for name, value := range cfg.Extras {
		pk, err := parseKey(name, value)
		if err != nil {
			return nil, err
		}
		m.Extras[name] = pk
	}
	return m, nil
}

func parseKey(name, value string) (solana.PublicKey, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return solana.PublicKey{}, fmt.Errorf("missing %s", name)
	}
	if strings.Contains(value, "ReplaceWith") {
		return solana.PublicKey{}, fmt.Errorf("%s is still a placeholder (%s); update the registry", name, value)
	}
	pk, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	return pk, nil
}
