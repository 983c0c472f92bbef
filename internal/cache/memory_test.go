package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SetGetExpire(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "k", map[string]int{"a": 1}, time.Minute))
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(got))

	now = now.Add(2 * time.Minute)
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, s.Set(ctx, "forever", "raw", 0))
	require.NoError(t, s.Del(ctx, "forever"))
	_, err = s.Get(ctx, "forever")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestMemoryStore_GetOrSetComputesOnce(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	calls := 0
	fn := func() (interface{}, error) {
		calls++
		return []string{"x"}, nil
	}

	for i := 0; i < 3; i++ {
		data, err := s.GetOrSet(ctx, "k", time.Minute, fn)
		require.NoError(t, err)
		assert.JSONEq(t, `["x"]`, string(data))
	}
	assert.Equal(t, 1, calls)

	_, err := s.GetOrSet(ctx, "bad", time.Minute, func() (interface{}, error) { return nil, errors.New("boom") })
	assert.Error(t, err)
	_, err = s.Get(ctx, "bad")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestMemoryStore_SortedSets(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.ReplaceSortedSet(ctx, "z", []ScoredMember{
		{Member: "go", Score: 2},
		{Member: "travel", Score: 5},
		{Member: "cooking", Score: 1},
	}, time.Minute))

	top, err := s.TopScored(ctx, "z", 2)
	require.NoError(t, err)
	assert.Equal(t, []ScoredMember{{Member: "travel", Score: 5}, {Member: "go", Score: 2}}, top)

	require.NoError(t, s.ReplaceSortedSet(ctx, "z", nil, time.Minute))
	top, err = s.TopScored(ctx, "z", 10)
	require.NoError(t, err)
	assert.Empty(t, top)
}

func TestMemoryStore_GetOrSetDoesNotBlockOtherKeys(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.GetOrSet(ctx, "query:slow", time.Minute, func() (interface{}, error) {
			close(started)
			<-release
			return "slow", nil
		})
	}()
	<-started

	fast := make(chan []byte, 1)
	go func() {
		data, err := s.GetOrSet(ctx, "analytics:30", time.Minute, func() (interface{}, error) { return "fast", nil })
		if err == nil {
			fast <- data
		}
	}()

	select {
	case data := <-fast:
		assert.Equal(t, "fast", string(data))
	case <-time.After(time.Second):
		t.Fatal("fill of an unrelated key waited on a slow fill")
	}

	close(release)
	<-done
}

func TestMemoryStore_GetOrSetSharesConcurrentFill(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var calls atomic.Int32
	release := make(chan struct{})
	fn := func() (interface{}, error) {
		calls.Add(1)
		<-release
		return "v", nil
	}

	var wg sync.WaitGroup
	results := make([]string, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data, err := s.GetOrSet(ctx, "k", time.Minute, fn)
			if err == nil {
				results[i] = string(data)
			}
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, "v", r)
	}

	data, err := s.GetOrSet(ctx, "k", time.Minute, func() (interface{}, error) { return "other", nil })
	require.NoError(t, err)
	assert.Equal(t, "v", string(data))
}

func TestMemoryStore_GetOrSetNoStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	calls := 0
	fn := func() (interface{}, error) {
		calls++
		return NoStore([]string{"degraded"}), nil
	}

	for i := 0; i < 2; i++ {
		data, err := s.GetOrSet(ctx, "k", time.Minute, fn)
		require.NoError(t, err)
		assert.JSONEq(t, `["degraded"]`, string(data))
	}
	assert.Equal(t, 2, calls)
	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestMemoryStore_SortedSetTiesByName(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.ReplaceSortedSet(ctx, "z", []ScoredMember{
		{Member: "travel", Score: 2},
		{Member: "cooking", Score: 2},
		{Member: "go", Score: 3},
		{Member: "art", Score: 2},
	}, time.Minute))

	top, err := s.TopScored(ctx, "z", 3)
	require.NoError(t, err)
	assert.Equal(t, []ScoredMember{
		{Member: "go", Score: 3},
		{Member: "art", Score: 2},
		{Member: "cooking", Score: 2},
	}, top)
}
