package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAwaitFill_ReturnsValueOnceStored(t *testing.T) {
	polls := 0
	data, found, err := awaitFill(context.Background(), time.Millisecond, time.Second, func(context.Context) ([]byte, bool, error) {
		polls++
		if polls < 3 {
			return nil, true, nil
		}
		return []byte("answer"), true, nil
	})
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "answer", string(data))
	assert.Equal(t, 3, polls)
}

func TestAwaitFill_LockReleasedWithoutValue(t *testing.T) {
	polls := 0
	_, found, err := awaitFill(context.Background(), time.Millisecond, time.Second, func(context.Context) ([]byte, bool, error) {
		polls++
		return nil, polls < 2, nil
	})
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 2, polls)
}

func TestAwaitFill_SlowFillHandsBackToCaller(t *testing.T) {
	start := time.Now()
	_, found, err := awaitFill(context.Background(), time.Millisecond, 30*time.Millisecond, func(context.Context) ([]byte, bool, error) {
		return nil, true, nil
	})
	require.NoError(t, err)
	assert.False(t, found)
	assert.Less(t, time.Since(start), time.Second)
}

func TestAwaitFill_PollErrorHandsBackToCaller(t *testing.T) {
	_, found, err := awaitFill(context.Background(), time.Millisecond, time.Second, func(context.Context) ([]byte, bool, error) {
		return nil, false, errors.New("connection reset")
	})
	require.NoError(t, err)
	assert.False(t, found)
}

func TestAwaitFill_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := awaitFill(ctx, time.Hour, time.Hour, func(context.Context) ([]byte, bool, error) {
		return nil, true, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestComputeUncached(t *testing.T) {
	data, err := computeUncached(func() (interface{}, error) { return NoStore(map[string]int{"a": 1}), nil })
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(data))

	_, err = computeUncached(func() (interface{}, error) { return nil, errors.New("boom") })
	assert.Error(t, err)
}

func TestSortScored_TiesByName(t *testing.T) {
	members := []ScoredMember{{"travel", 2}, {"go", 5}, {"cooking", 2}}
	sortScored(members)
	assert.Equal(t, []ScoredMember{{"go", 5}, {"cooking", 2}, {"travel", 2}}, members)
}
