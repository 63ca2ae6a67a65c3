package watcher

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-zulfiqar/solana-perps-engine/internal/rpc"
)

type fakeMultiFetcher struct {
	mu   sync.Mutex
	data map[solana.PublicKey][]byte
}

func (f *fakeMultiFetcher) set(addr solana.PublicKey, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if data == nil {
		delete(f.data, addr)
		return
	}
	f.data[addr] = data
}

func (f *fakeMultiFetcher) GetMultipleAccounts(_ context.Context, addrs []solana.PublicKey) ([]*rpc.AccountInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*rpc.AccountInfo, len(addrs))
	for i, a := range addrs {
		if d, ok := f.data[a]; ok {
			out[i] = &rpc.AccountInfo{Data: append([]byte(nil), d...)}
		}
	}
	return out, nil
}

func newTestWatcher(addrs ...solana.PublicKey) (*Watcher, *fakeMultiFetcher) {
	f := &fakeMultiFetcher{data: make(map[solana.PublicKey][]byte)}
	log := logrus.New()
	log.SetOutput(io.Discard)
	return New(f, addrs, 5*time.Millisecond, log), f
}

var watchedAddr = solana.MustPublicKeyFromBase58("J1oeQoPeuEDmjvyMwBmCWexzCQup77kbKKxV59CnYbd")

func TestPollOnceBaselineIsSilent(t *testing.T) {
	w, f := newTestWatcher(watchedAddr)
	f.set(watchedAddr, []byte{1, 2, 3})

	changes, err := w.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, changes)

	// unchanged content stays silent
	changes, err = w.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestPollOnceReportsContentChange(t *testing.T) {
	w, f := newTestWatcher(watchedAddr)
	f.set(watchedAddr, []byte{1, 2, 3})

	_, err := w.PollOnce(context.Background())
	require.NoError(t, err)

	f.set(watchedAddr, []byte{9, 9, 9})
	changes, err := w.PollOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, watchedAddr, changes[0].Address)
	assert.Equal(t, []byte{9, 9, 9}, changes[0].Data)
	assert.False(t, changes[0].Missing)
}

func TestPollOnceReportsDisappearance(t *testing.T) {
	w, f := newTestWatcher(watchedAddr)
	f.set(watchedAddr, []byte{1})

	_, err := w.PollOnce(context.Background())
	require.NoError(t, err)

	f.set(watchedAddr, nil)
	changes, err := w.PollOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.True(t, changes[0].Missing)
}

func TestSeedBaselineReportsPriorDisappearance(t *testing.T) {
	w, _ := newTestWatcher(watchedAddr)
	w.SeedBaseline(watchedAddr, []byte{1, 2, 3})

	// The account was already gone by the first poll; the seed makes the
	// transition visible instead of becoming a missing baseline.
	changes, err := w.PollOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.True(t, changes[0].Missing)
}

func TestSeedBaselineUnchangedContentStaysSilent(t *testing.T) {
	w, f := newTestWatcher(watchedAddr)
	f.set(watchedAddr, []byte{1, 2, 3})
	w.SeedBaseline(watchedAddr, []byte{1, 2, 3})

	changes, err := w.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, changes)

	f.set(watchedAddr, []byte{4, 5, 6})
	changes, err = w.PollOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, []byte{4, 5, 6}, changes[0].Data)
}

func TestRunDeliversChangesAndStops(t *testing.T) {
	w, f := newTestWatcher(watchedAddr)
	f.set(watchedAddr, []byte{1})

	got := make(chan Change, 1)
	done := make(chan error, 1)
	go func() {
		done <- w.Run(context.Background(), func(c Change) { got <- c })
	}()

	time.Sleep(20 * time.Millisecond)
	f.set(watchedAddr, []byte{2})

	select {
	case c := <-got:
		assert.Equal(t, []byte{2}, c.Data)
	case <-time.After(time.Second):
		t.Fatal("no change delivered")
	}

	w.Stop()
	w.Stop() // idempotent

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("run did not stop")
	}
}

func TestRunHonorsDeadline(t *testing.T) {
	w, _ := newTestWatcher(watchedAddr)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := w.Run(ctx, func(Change) {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
