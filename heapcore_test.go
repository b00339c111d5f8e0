package heapcore

import (
	"context"
	"testing"
	"time"

	"github.com/outofforest/logger"
	"github.com/outofforest/parallel"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/outofforest/heapcore/gc"
	"github.com/outofforest/heapcore/mapping"
	"github.com/outofforest/heapcore/types"
	"github.com/outofforest/heapcore/value"
)

func newRuntime(t *testing.T, interval time.Duration) *Runtime {
	r, err := New(Config{
		Registry: mapping.Config{Debug: true},
		Collector: gc.Config{
			Interval: interval,
		},
	})
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func TestCollect(t *testing.T) {
	requireT := require.New(t)

	ctx := logger.WithLogger(context.Background(), logger.New(logger.DefaultConfig))
	rt := newRuntime(t, time.Hour)

	rt.Lock()
	a := rt.Registry().Allocate(0)
	b := rt.Registry().Allocate(0)
	key := value.Str("b")
	a.Insert(key, b.Value())
	key.Release()
	b.Insert(value.Int(1), a.Value())
	value.FreeRef(a)
	value.FreeRef(b)

	kept := rt.Registry().Allocate(0)
	arr := value.NewArray(2)
	kept.Insert(value.Int(1), value.Wrap(types.TagArray, arr))
	value.FreeRef(arr)
	rt.Unlock()

	stats, err := rt.Collect(ctx)
	requireT.NoError(err)
	requireT.Equal(3, stats.Mappings)
	requireT.Equal(2, stats.Freed)

	rt.Lock()
	defer rt.Unlock()
	requireT.Equal(1, rt.Registry().Len())
	value.FreeRef(kept)
}

func TestRun(t *testing.T) {
	requireT := require.New(t)

	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), logger.New(logger.DefaultConfig)))
	t.Cleanup(cancel)

	rt := newRuntime(t, 10*time.Millisecond)

	group := parallel.NewGroup(ctx)
	group.Spawn("runtime", parallel.Continue, rt.Run)
	t.Cleanup(func() {
		group.Exit(nil)
		if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			t.Fatal(err)
		}
	})

	rt.Lock()
	for range 10 {
		m := rt.Registry().Allocate(0)
		m.Insert(value.Int(0), m.Value())
		value.FreeRef(m)
	}
	rt.Unlock()

	requireT.Eventually(func() bool {
		rt.Lock()
		defer rt.Unlock()

		return rt.Registry().Len() == 0
	}, 5*time.Second, 10*time.Millisecond)
}
