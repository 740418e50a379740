package pool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	divaerrors "github.com/alexisbeaulieu97/diva/pkg/errors"
)

func TestWorkerPoolRunsJobs(t *testing.T) {
	t.Parallel()

	p := NewWorkerPool("test", 2, 4)
	defer p.Close()

	var count atomic.Int32
	futures := make([]*Future, 0, 8)
	for i := 0; i < 8; i++ {
		f, err := p.Submit(context.Background(), func(context.Context) error {
			count.Add(1)
			return nil
		})
		require.NoError(t, err)
		futures = append(futures, f)
	}
	for _, f := range futures {
		require.NoError(t, f.Wait(context.Background()))
	}
	assert.Equal(t, int32(8), count.Load())
}

func TestWorkerPoolBoundsConcurrency(t *testing.T) {
	t.Parallel()

	p := NewWorkerPool("test", 2, 8)
	defer p.Close()

	var running, peak atomic.Int32
	futures := make([]*Future, 0, 6)
	for i := 0; i < 6; i++ {
		f, err := p.Submit(context.Background(), func(context.Context) error {
			n := running.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			running.Add(-1)
			return nil
		})
		require.NoError(t, err)
		futures = append(futures, f)
	}
	for _, f := range futures {
		require.NoError(t, f.Wait(context.Background()))
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestNestedWaitFailsFast(t *testing.T) {
	t.Parallel()

	p := NewWorkerPool("test", 1, 1)
	defer p.Close()

	other, err := p.Submit(context.Background(), func(context.Context) error { return nil })
	require.NoError(t, err)
	require.NoError(t, other.Wait(context.Background()))

	outer, err := p.Submit(context.Background(), func(ctx context.Context) error {
		if err := other.Wait(ctx); !errors.Is(err, divaerrors.ErrNestedWait) {
			return errors.New("expected nested wait error")
		}
		if _, err := p.Submit(ctx, func(context.Context) error { return nil }); !errors.Is(err, divaerrors.ErrNestedWait) {
			return errors.New("expected nested submit error")
		}
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, outer.Wait(context.Background()))
}

func TestPreviewJobCannotWaitOnWorkerPool(t *testing.T) {
	t.Parallel()

	workers := NewWorkerPool("test", 1, 1)
	defer workers.Close()
	previews := NewDiscardingPool()
	defer previews.Close()

	done, err := workers.Submit(context.Background(), func(context.Context) error { return nil })
	require.NoError(t, err)

	f, err := previews.Submit(context.Background(), func(ctx context.Context) error {
		if err := done.Wait(ctx); !errors.Is(err, divaerrors.ErrNestedWait) {
			return errors.New("expected nested wait error")
		}
		if _, err := workers.Submit(ctx, func(context.Context) error { return nil }); !errors.Is(err, divaerrors.ErrNestedWait) {
			return errors.New("expected nested submit error")
		}
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, f.Wait(context.Background()))
}

func TestPanicBecomesFault(t *testing.T) {
	t.Parallel()

	p := NewWorkerPool("test", 1, 0)
	defer p.Close()

	f, err := p.Submit(context.Background(), func(context.Context) error { panic("boom") })
	require.NoError(t, err)
	err = f.Wait(context.Background())
	assert.True(t, divaerrors.IsFault(err))
}

func TestCancelledJobIsNotRun(t *testing.T) {
	t.Parallel()

	p := NewWorkerPool("test", 1, 1)
	defer p.Close()

	release := make(chan struct{})
	blocker, err := p.Submit(context.Background(), func(context.Context) error {
		<-release
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var ran atomic.Bool
	queued, err := p.Submit(ctx, func(context.Context) error {
		ran.Store(true)
		return nil
	})
	require.NoError(t, err)
	cancel()
	close(release)

	require.NoError(t, blocker.Wait(context.Background()))
	assert.ErrorIs(t, queued.Wait(context.Background()), context.Canceled)
	assert.False(t, ran.Load())
}

func TestSubmitAfterCloseFails(t *testing.T) {
	t.Parallel()

	p := NewWorkerPool("test", 1, 0)
	p.Close()
	p.Close()
	_, err := p.Submit(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDiscardingPoolKeepsLatest(t *testing.T) {
	t.Parallel()

	p := NewDiscardingPool()
	defer p.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	first, err := p.Submit(context.Background(), func(context.Context) error {
		close(started)
		<-release
		return nil
	})
	require.NoError(t, err)
	<-started

	var last atomic.Int32
	futures := make([]*Future, 0, 3)
	for i := int32(1); i <= 3; i++ {
		i := i
		f, err := p.Submit(context.Background(), func(context.Context) error {
			last.Store(i)
			return nil
		})
		require.NoError(t, err)
		futures = append(futures, f)
	}
	close(release)

	require.NoError(t, first.Wait(context.Background()))
	assert.ErrorIs(t, futures[0].Wait(context.Background()), ErrDiscarded)
	assert.ErrorIs(t, futures[1].Wait(context.Background()), ErrDiscarded)
	require.NoError(t, futures[2].Wait(context.Background()))
	assert.Equal(t, int32(3), last.Load())
	assert.Equal(t, uint64(2), p.Dropped())
}
