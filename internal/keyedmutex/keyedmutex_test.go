package keyedmutex

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// waitQueued blocks until key has n queued waiters.
func waitQueued(t *testing.T, k *KeyedMutex, key string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		k.mu.Lock()
		defer k.mu.Unlock()
		l, ok := k.locks[key]
		return ok && len(l.waiters) == n
	}, time.Second, time.Millisecond)
}

func TestRunExclusive_FIFO(t *testing.T) {
	k := New()
	ctx := context.Background()

	unlock, err := k.Lock(ctx, "tag")
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = k.RunExclusive(ctx, "tag", func(context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		}(i)
		waitQueued(t, k, "tag", i+1)
	}

	unlock()
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
	assert.Zero(t, k.Len())
}

func TestRunExclusive_DifferentKeysRunInParallel(t *testing.T) {
	k := New()
	ctx := context.Background()

	unlock, err := k.Lock(ctx, "a")
	require.NoError(t, err)
	defer unlock()

	done := make(chan struct{})
	go func() {
		_ = k.RunExclusive(ctx, "b", func(context.Context) error { return nil })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("key b blocked by key a")
	}
}

func TestRunExclusive_ReleasesOnPanic(t *testing.T) {
	k := New()
	ctx := context.Background()

	func() {
		defer func() {
			assert.NotNil(t, recover())
		}()
		_ = k.RunExclusive(ctx, "tag", func(context.Context) error {
			panic("boom")
		})
	}()

	acquired := make(chan struct{})
	go func() {
		_ = k.RunExclusive(ctx, "tag", func(context.Context) error { return nil })
		close(acquired)
	}()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock not released after panic")
	}
}

func TestRunExclusive_ReturnsFnError(t *testing.T) {
	k := New()
	want := errors.New("stage failed")

	err := k.RunExclusive(context.Background(), "tag", func(context.Context) error { return want })
	assert.ErrorIs(t, err, want)
	assert.Zero(t, k.Len())
}

func TestLock_ContextCancelledWhileQueued(t *testing.T) {
	k := New()

	unlock, err := k.Lock(context.Background(), "tag")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := k.Lock(ctx, "tag")
		errCh <- err
	}()
	waitQueued(t, k, "tag", 1)

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	unlock()
	unlock() // idempotent
	assert.Zero(t, k.Len())

	// lock is usable again
	unlock2, err := k.Lock(context.Background(), "tag")
	require.NoError(t, err)
	unlock2()
}

func TestDo_ReturnsValue(t *testing.T) {
	k := New()

	got, err := Do(context.Background(), k, "tag", func(context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}
