package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

var ErrKeyNotFound = errors.New("key not found")

// ScoredMember is one entry of a sorted set
type ScoredMember struct {
	Member string
	Score  float64
}

// Store is the cache surface the services depend on. RedisCache is the
// production implementation; MemoryStore serves single-process runs and tests.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	GetOrSet(ctx context.Context, key string, ttl time.Duration, fn func() (interface{}, error)) ([]byte, error)
	ReplaceSortedSet(ctx context.Context, key string, members []ScoredMember, ttl time.Duration) error
	TopScored(ctx context.Context, key string, n int64) ([]ScoredMember, error)
}

// encode turns a cache value into bytes; strings and byte slices are stored as-is
func encode(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		data, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal value: %w", err)
		}
		return data, nil
	}
}

// NoStore marks a value computed by a GetOrSet fill that must be returned to
// the caller without being cached.
func NoStore(value interface{}) interface{} {
	return noStore{value: value}
}

type noStore struct {
	value interface{}
}

// prepareFill encodes a fill result and reports whether it may be cached
func prepareFill(value interface{}) ([]byte, bool, error) {
	store := true
	if ns, ok := value.(noStore); ok {
		value, store = ns.value, false
	}
	data, err := encode(value)
	return data, store, err
}

// sortScored orders members by score, highest first, then by member name
func sortScored(members []ScoredMember) {
	sort.SliceStable(members, func(i, j int) bool {
		if members[i].Score != members[j].Score {
			return members[i].Score > members[j].Score
		}
		return members[i].Member < members[j].Member
	})
}

var (
	_ Store = (*RedisCache)(nil)
	_ Store = (*MemoryStore)(nil)
)
