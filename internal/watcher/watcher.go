// Package watcher polls a set of accounts and reports content changes. It
// keeps only a hash per address between polls, never decoded state.
package watcher

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/solana-perps-engine/internal/rpc"
)

// MultiFetcher is the read capability the watcher polls through.
type MultiFetcher interface {
	GetMultipleAccounts(ctx context.Context, addresses []solana.PublicKey) ([]*rpc.AccountInfo, error)
}

// Change is one observed account transition.
type Change struct {
	Address solana.PublicKey
	Data    []byte
	// Missing is set when the account disappeared (e.g. a filled request
	// account got closed).
	Missing bool
}

// Handler receives changes from Run. It is called on the polling goroutine.
type Handler func(Change)

// Watcher polls addresses on an interval and gates reports on a content
// hash: unchanged accounts produce nothing.
type Watcher struct {
	fetcher   MultiFetcher
	addresses []solana.PublicKey
	interval  time.Duration
	logger    *logrus.Logger

	mu     sync.Mutex
	hashes map[solana.PublicKey][sha256.Size]byte
	seen   map[solana.PublicKey]bool

	stopOnce sync.Once
	stop     chan struct{}
}

func New(fetcher MultiFetcher, addresses []solana.PublicKey, interval time.Duration, logger *logrus.Logger) *Watcher {
	if logger == nil {
		logger = logrus.New()
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Watcher{
		fetcher:   fetcher,
		addresses: addresses,
		interval:  interval,
		logger:    logger,
		hashes:    make(map[solana.PublicKey][sha256.Size]byte, len(addresses)),
		seen:      make(map[solana.PublicKey]bool, len(addresses)),
		stop:      make(chan struct{}),
	}
}

// SeedBaseline records a known prior state for an address, so a transition
// that happens before the first poll still gets reported. Without a seed the
// first observation is the baseline.
func (w *Watcher) SeedBaseline(addr solana.PublicKey, data []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.hashes[addr] = sha256.Sum256(data)
	w.seen[addr] = true
}

// PollOnce fetches every watched address and returns the changes since the
// previous poll. The first observation of an address establishes its
// baseline and reports nothing.
func (w *Watcher) PollOnce(ctx context.Context) ([]Change, error) {
	infos, err := w.fetcher.GetMultipleAccounts(ctx, w.addresses)
	if err != nil {
		return nil, fmt.Errorf("poll accounts: %w", err)
	}
	if len(infos) != len(w.addresses) {
		return nil, fmt.Errorf("poll accounts: got %d results for %d addresses", len(infos), len(w.addresses))
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	var changes []Change
	for i, addr := range w.addresses {
		info := infos[i]
		var hash [sha256.Size]byte
		missing := info == nil
		if !missing {
			hash = sha256.Sum256(info.Data)
		}

		prev, hadBaseline := w.hashes[addr], w.seen[addr]
		w.hashes[addr] = hash
		w.seen[addr] = true

		if !hadBaseline || prev == hash {
			continue
		}
		change := Change{Address: addr, Missing: missing}
		if !missing {
			change.Data = info.Data
		}
		changes = append(changes, change)
	}
	return changes, nil
}

// Run polls until the context expires or Stop is called. The context carries
// the overall deadline; per-call retry bounds live inside the fetcher.
func (w *Watcher) Run(ctx context.Context, handler Handler) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		changes, err := w.PollOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.WithError(err).Warn("poll failed, continuing")
		}
		for _, c := range changes {
			handler(c)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case <-ticker.C:
		}
	}
}

// Stop ends Run at the next loop boundary. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}
