// Package rpcpool multiplexes a set of RPC endpoints behind one retrying
// call surface. All components issue network calls through the pool; none of
// them carry their own backoff loops.
package rpcpool

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/solana-perps-engine/internal/rpc"
)

// ErrFailoverExhausted is returned when every endpoint has been retried up to
// its cap across the full rotation budget.
var ErrFailoverExhausted = errors.New("all rpc endpoints exhausted")

// Caller is the JSON-RPC capability every endpoint client provides. The pool
// rotates across a slice of these; tests substitute fakes.
type Caller interface {
	Endpoint() string
	GetAccountInfo(ctx context.Context, address solana.PublicKey) (*rpc.AccountInfo, error)
	GetMultipleAccounts(ctx context.Context, addresses []solana.PublicKey) ([]*rpc.AccountInfo, error)
	GetLatestBlockhash(ctx context.Context) (solana.Hash, error)
	SimulateTransaction(ctx context.Context, tx *solana.Transaction) (*rpc.SimulationResult, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, sigs []solana.Signature) ([]*rpc.SignatureStatus, error)
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey) (uint64, error)
}

// Pool owns the endpoint set and the retry/rotation state machine.
type Pool struct {
	clients             []Caller
	cur                 atomic.Uint32
	attemptsPerEndpoint int
	maxRotations        int
	backoffBase         time.Duration
	logger              *logrus.Logger
}

// Config for a Pool.
type Config struct {
	Endpoints           []string
	Timeout             time.Duration
	AttemptsPerEndpoint int
	MaxRotations        int
	BackoffBase         time.Duration
	Logger              *logrus.Logger
}

// New builds a pool of transport clients, one per endpoint URL.
func New(cfg Config) (*Pool, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("no rpc endpoints configured")
	}
	clients := make([]Caller, len(cfg.Endpoints))
	for i, url := range cfg.Endpoints {
		clients[i] = rpc.NewClient(rpc.ClientConfig{
			BaseURL: url,
			Timeout: cfg.Timeout,
			Logger:  cfg.Logger,
		})
	}
	return NewWithClients(clients, cfg)
}

// NewWithClients builds a pool over pre-constructed callers.
func NewWithClients(clients []Caller, cfg Config) (*Pool, error) {
	if len(clients) == 0 {
		return nil, fmt.Errorf("no rpc clients provided")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.AttemptsPerEndpoint <= 0 {
		cfg.AttemptsPerEndpoint = 2
	}
	if cfg.MaxRotations <= 0 {
		cfg.MaxRotations = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	return &Pool{
		clients:             clients,
		attemptsPerEndpoint: cfg.AttemptsPerEndpoint,
		maxRotations:        cfg.MaxRotations,
		backoffBase:         cfg.BackoffBase,
		logger:              cfg.Logger,
	}, nil
}

// Run executes op against the current endpoint, retrying rate-limit-class
// failures with exponential backoff up to the per-endpoint cap, then rotates
// to the next endpoint. After maxRotations full passes it gives up with
// ErrFailoverExhausted. Non-transient errors propagate immediately.
func (p *Pool) Run(ctx context.Context, label string, op func(ctx context.Context, c Caller) error) error {
	n := len(p.clients)
	var lastErr error

	for rotation := 0; rotation < p.maxRotations; rotation++ {
		for hop := 0; hop < n; hop++ {
			client := p.clients[p.cur.Load()%uint32(n)]

			for attempt := 0; attempt < p.attemptsPerEndpoint; attempt++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				err := op(ctx, client)
				if err == nil {
					return nil
				}
				if !rpc.IsRateLimit(err) {
					return err
				}
				lastErr = err
				// sleep base*2^attempt plus jitter before the retry
				delay := p.backoffBase * (1 << attempt)
				delay += time.Duration(rand.Int63n(int64(p.backoffBase)))
				p.logger.WithFields(logrus.Fields{
					"call":     label,
					"endpoint": client.Endpoint(),
					"attempt":  attempt + 1,
					"backoff":  delay,
				}).Warn("rate limited, backing off")

				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(delay):
				}
			}

			p.cur.Add(1)
			p.logger.WithFields(logrus.Fields{
				"call": label,
				"next": p.clients[p.cur.Load()%uint32(n)].Endpoint(),
			}).Info("rotating rpc endpoint")
		}
	}

	return fmt.Errorf("%w after %d rotations (%s): %v", ErrFailoverExhausted, p.maxRotations, label, lastErr)
}

// GetAccountInfo fetches one account through the pool.
func (p *Pool) GetAccountInfo(ctx context.Context, address solana.PublicKey) (*rpc.AccountInfo, error) {
	var out *rpc.AccountInfo
	err := p.Run(ctx, "getAccountInfo", func(ctx context.Context, c Caller) error {
		var err error
		out, err = c.GetAccountInfo(ctx, address)
		return err
	})
	return out, err
}

// GetMultipleAccounts fetches several accounts through the pool.
func (p *Pool) GetMultipleAccounts(ctx context.Context, addresses []solana.PublicKey) ([]*rpc.AccountInfo, error) {
	var out []*rpc.AccountInfo
	err := p.Run(ctx, "getMultipleAccounts", func(ctx context.Context, c Caller) error {
		var err error
		out, err = c.GetMultipleAccounts(ctx, addresses)
		return err
	})
	return out, err
}

// GetLatestBlockhash fetches a recent blockhash through the pool.
func (p *Pool) GetLatestBlockhash(ctx context.Context) (solana.Hash, error) {
	var out solana.Hash
	err := p.Run(ctx, "getLatestBlockhash", func(ctx context.Context, c Caller) error {
		var err error
		out, err = c.GetLatestBlockhash(ctx)
		return err
	})
	return out, err
}

// SimulateTransaction simulates a transaction through the pool.
func (p *Pool) SimulateTransaction(ctx context.Context, tx *solana.Transaction) (*rpc.SimulationResult, error) {
	var out *rpc.SimulationResult
	err := p.Run(ctx, "simulateTransaction", func(ctx context.Context, c Caller) error {
		var err error
		out, err = c.SimulateTransaction(ctx, tx)
		return err
	})
	return out, err
}

// SendTransaction submits a transaction through the pool.
func (p *Pool) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	var out solana.Signature
	err := p.Run(ctx, "sendTransaction", func(ctx context.Context, c Caller) error {
		var err error
		out, err = c.SendTransaction(ctx, tx)
		return err
	})
	return out, err
}

// GetSignatureStatuses fetches confirmation statuses through the pool.
func (p *Pool) GetSignatureStatuses(ctx context.Context, sigs []solana.Signature) ([]*rpc.SignatureStatus, error) {
	var out []*rpc.SignatureStatus
	err := p.Run(ctx, "getSignatureStatuses", func(ctx context.Context, c Caller) error {
		var err error
		out, err = c.GetSignatureStatuses(ctx, sigs)
		return err
	})
	return out, err
}

// GetTokenAccountBalance fetches a token balance through the pool.
func (p *Pool) GetTokenAccountBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	var out uint64
	err := p.Run(ctx, "getTokenAccountBalance", func(ctx context.Context, c Caller) error {
		var err error
		out, err = c.GetTokenAccountBalance(ctx, account)
		return err
	})
	return out, err
}
