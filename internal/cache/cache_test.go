package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/refdb/internal/resource"
)

func TestGetSetRemove(t *testing.T) {
	c := New[int64](1024, nil)

	_, ok := c.Get(1)
	assert.False(t, ok)

	c.Set(1, 100)
	v, ok := c.Get(1)
	require.True(t, ok)
	assert.Equal(t, int64(100), v)

	c.Set(1, 200)
	v, _ = c.Get(1)
	assert.Equal(t, int64(200), v)

	c.Remove(1)
	_, ok = c.Get(1)
	assert.False(t, ok)

	hits, misses := c.Stats()
	assert.Equal(t, int64(2), hits)
	assert.Equal(t, int64(2), misses)
}

func TestCapacityBound(t *testing.T) {
	c := New[uint64](numShards*4, nil)
	for i := range uint64(10_000) {
		c.Set(i, i)
	}
	assert.LessOrEqual(t, c.Len(), numShards*4)

	// Whatever survived must still be correct.
	for i := range uint64(10_000) {
		if v, ok := c.Get(i); ok {
			assert.Equal(t, i, v)
		}
	}
}

func TestClear(t *testing.T) {
	rc := resource.NewController(resource.Config{})
	c := New[int](128, rc)
	for i := range uint64(50) {
		c.Set(i, int(i))
	}
	assert.Equal(t, int64(50*entryCost), rc.MemoryUsage())

	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, int64(0), rc.MemoryUsage())
}

func TestMemoryPressureDropsEntries(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 4 * entryCost})
	c := New[int](1024, rc)
	for i := range uint64(100) {
		c.Set(i, int(i))
	}
	assert.LessOrEqual(t, c.Len(), 4)
}

func TestGetOrComputeSingleFlight(t *testing.T) {
	c := New[int64](1024, nil)

	var calls atomic.Int32
	start := make(chan struct{})
	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			v, err := c.GetOrCompute(7, func() (int64, error) {
				calls.Add(1)
				time.Sleep(20 * time.Millisecond)
				return 42, nil
			})
			assert.NoError(t, err)
			assert.Equal(t, int64(42), v)
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestGetOrComputeErrorNotCached(t *testing.T) {
	c := New[int64](1024, nil)
	boom := errors.New("boom")

	_, err := c.GetOrCompute(1, func() (int64, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)

	v, err := c.GetOrCompute(1, func() (int64, error) { return 5, nil })
	require.NoError(t, err)
	assert.Equal(t, int64(5), v)
}
