package task

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestHandle_CancelIsIdempotent(t *testing.T) {
	g := NewGroup(context.Background())
	defer g.Close()

	started := make(chan struct{})
	h, ok := g.Start("poll", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	})
	require.True(t, ok)
	<-started

	h.Cancel()
	<-h.Done()
	h.Cancel()
	assert.Equal(t, 0, g.Active())
}

func TestGroup_StartIsExactlyOncePerKey(t *testing.T) {
	g := NewGroup(context.Background())
	defer g.Close()

	var runs int32
	block := func(ctx context.Context) {
		atomic.AddInt32(&runs, 1)
		<-ctx.Done()
	}

	h1, started1 := g.Start("tok-1", block)
	h2, started2 := g.Start("tok-1", block)

	assert.True(t, started1)
	assert.False(t, started2)
	assert.Same(t, h1, h2)
	assert.Equal(t, 1, g.Active())

	g.Close()
	assert.Equal(t, int32(1), atomic.LoadInt32(&runs))
}

func TestGroup_StartAfterFinishRunsAgain(t *testing.T) {
	g := NewGroup(context.Background())
	defer g.Close()

	h, _ := g.Start("k", func(ctx context.Context) {})
	<-h.Done()

	_, started := g.Start("k", func(ctx context.Context) {})
	assert.True(t, started)
	g.Wait()
}

func TestGroup_ReplaceCancelsPrevious(t *testing.T) {
	g := NewGroup(context.Background())
	defer g.Close()

	var cancelled int32
	first := g.Replace("reveal", func(ctx context.Context) {
		<-ctx.Done()
		atomic.StoreInt32(&cancelled, 1)
	})
	second := g.Replace("reveal", func(ctx context.Context) {
		<-ctx.Done()
	})

	<-first.Done()
	assert.Equal(t, int32(1), atomic.LoadInt32(&cancelled))
	assert.Equal(t, 1, g.Active(), "exactly one handle may be active after replace")

	second.Cancel()
	<-second.Done()
}

func TestGroup_ConcurrentReplaceRunsEveryFn(t *testing.T) {
	g := NewGroup(context.Background())
	defer g.Close()

	const n = 16
	var ran int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Replace("reveal", func(ctx context.Context) {
				atomic.AddInt32(&ran, 1)
				<-ctx.Done()
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(n), atomic.LoadInt32(&ran))
	assert.Equal(t, 1, g.Active())
}

func TestGroup_CloseCancelsAllAndRefusesNewWork(t *testing.T) {
	g := NewGroup(context.Background())

	for _, key := range []string{"a", "b", "c"} {
		g.Start(key, func(ctx context.Context) { <-ctx.Done() })
	}
	require.Equal(t, 3, g.Active())

	g.Close()
	assert.Equal(t, 0, g.Active())

	h, started := g.Start("d", func(ctx context.Context) { t.Error("must not run after Close") })
	assert.False(t, started)
	select {
	case <-h.Done():
	default:
		t.Error("handle returned after Close should already be done")
	}
}

func TestGroup_CancelSingleKey(t *testing.T) {
	g := NewGroup(context.Background())
	defer g.Close()

	a, _ := g.Start("a", func(ctx context.Context) { <-ctx.Done() })
	g.Start("b", func(ctx context.Context) { <-ctx.Done() })

	g.Cancel("a")
	<-a.Done()
	assert.Equal(t, 1, g.Active())
}
