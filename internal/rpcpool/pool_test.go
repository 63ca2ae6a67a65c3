package rpcpool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-zulfiqar/solana-perps-engine/internal/rpc"
)

type fakeCaller struct {
	name  string
	calls *atomic.Int64
	err   error
}

func (f *fakeCaller) do() error {
	f.calls.Add(1)
	return f.err
}

func (f *fakeCaller) Endpoint() string { return f.name }
func (f *fakeCaller) GetAccountInfo(context.Context, solana.PublicKey) (*rpc.AccountInfo, error) {
	return nil, f.do()
}
func (f *fakeCaller) GetMultipleAccounts(context.Context, []solana.PublicKey) ([]*rpc.AccountInfo, error) {
	return nil, f.do()
}
func (f *fakeCaller) GetLatestBlockhash(context.Context) (solana.Hash, error) {
	return solana.Hash{}, f.do()
}
func (f *fakeCaller) SimulateTransaction(context.Context, *solana.Transaction) (*rpc.SimulationResult, error) {
	return nil, f.do()
}
func (f *fakeCaller) SendTransaction(context.Context, *solana.Transaction) (solana.Signature, error) {
	return solana.Signature{}, f.do()
}
func (f *fakeCaller) GetSignatureStatuses(context.Context, []solana.Signature) ([]*rpc.SignatureStatus, error) {
	return nil, f.do()
}
func (f *fakeCaller) GetTokenAccountBalance(context.Context, solana.PublicKey) (uint64, error) {
	return 0, f.do()
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newFakePool(t *testing.T, n, attempts, rotations int, err error) (*Pool, *atomic.Int64) {
	t.Helper()
	var calls atomic.Int64
	clients := make([]Caller, n)
	for i := range clients {
		clients[i] = &fakeCaller{name: fmt.Sprintf("ep-%d", i), calls: &calls, err: err}
	}
	p, perr := NewWithClients(clients, Config{
		AttemptsPerEndpoint: attempts,
		MaxRotations:        rotations,
		BackoffBase:         time.Millisecond,
		Logger:              quietLogger(),
	})
	require.NoError(t, perr)
	return p, &calls
}

func TestRunExhaustsAfterBoundedAttempts(t *testing.T) {
	const n, attempts, rotations = 3, 2, 2
	p, calls := newFakePool(t, n, attempts, rotations, errors.New("429 Too Many Requests"))

	_, err := p.GetLatestBlockhash(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFailoverExhausted)

	_, rerr := p.GetAccountInfo(context.Background(), solana.PublicKey{})
	require.Error(t, rerr)
	assert.ErrorIs(t, rerr, ErrFailoverExhausted)

	// Two calls were issued above; each one is capped at N*attempts*rotations.
	assert.Equal(t, int64(2*n*attempts*rotations), calls.Load())
}

func TestRunReturnsNonTransientImmediately(t *testing.T) {
	p, calls := newFakePool(t, 3, 2, 3, errors.New("invalid param: WrongSize"))

	_, err := p.GetAccountInfo(context.Background(), solana.PublicKey{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrFailoverExhausted)
	assert.Equal(t, int64(1), calls.Load())
}

func TestRunSucceedsFirstTry(t *testing.T) {
	p, calls := newFakePool(t, 2, 2, 3, nil)

	_, err := p.GetAccountInfo(context.Background(), solana.PublicKey{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), calls.Load())
}

func TestRunRespectsContextCancellation(t *testing.T) {
	p, _ := newFakePool(t, 2, 3, 3, errors.New("rate limited (429)"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.GetAccountInfo(ctx, solana.PublicKey{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRotationSharedAcrossCalls(t *testing.T) {
	var calls atomic.Int64
	limited := &fakeCaller{name: "limited", calls: &calls, err: errors.New("429")}
	healthy := &fakeCaller{name: "healthy", calls: &calls}
	p, err := NewWithClients([]Caller{limited, healthy}, Config{
		AttemptsPerEndpoint: 1,
		MaxRotations:        2,
		BackoffBase:         time.Millisecond,
		Logger:              quietLogger(),
	})
	require.NoError(t, err)

	// First call burns the limited endpoint and succeeds on the healthy one.
	_, err = p.GetAccountInfo(context.Background(), solana.PublicKey{})
	require.NoError(t, err)

	before := calls.Load()
	// The rotation counter advanced, so the next call starts on healthy.
	_, err = p.GetAccountInfo(context.Background(), solana.PublicKey{})
	require.NoError(t, err)
	assert.Equal(t, before+1, calls.Load())
}
