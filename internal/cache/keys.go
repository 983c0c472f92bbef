package cache

import (
	"crypto/sha1"
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	SuggestionsTTL = 10 * time.Minute
	AnalyticsTTL   = 2 * time.Minute
	QueryTTL       = 90 * time.Second
	TopicsTTL      = 10 * time.Minute
)

// TopicScoresKey is the sorted set of topic frequencies maintained by the topic scorer
const TopicScoresKey = "analytics:topics:scores"

// SuggestionsKey generates Redis key for follow-up suggestions. The message
// count is part of the key so a new message invalidates the entry.
func SuggestionsKey(conversationID int64, messageCount int) string {
	return fmt.Sprintf("conv:suggestions:%d:%d", conversationID, messageCount)
}

// AnalyticsKey generates Redis key for an analytics snapshot
func AnalyticsKey(days int) string {
	return fmt.Sprintf("analytics:snapshot:days:%d", days)
}

// QueryKey generates Redis key for a cross-conversation query answer
func QueryKey(query string, from, to *time.Time, ids []int64) string {
	sortedIDs := append([]int64(nil), ids...)
	sort.Slice(sortedIDs, func(i, j int) bool { return sortedIDs[i] < sortedIDs[j] })

	var b strings.Builder
	b.WriteString(strings.TrimSpace(query))
	b.WriteString("|")
	if from != nil {
		b.WriteString(from.UTC().Format(time.RFC3339Nano))
	}
	b.WriteString("|")
	if to != nil {
		b.WriteString(to.UTC().Format(time.RFC3339Nano))
	}
	b.WriteString("|")
	for _, id := range sortedIDs {
		fmt.Fprintf(&b, "%d,", id)
	}

	hash := sha1.Sum([]byte(b.String()))
	return fmt.Sprintf("cache:v1:query:%x", hash)
}

// LockKey generates the stampede lock key guarding key
func LockKey(key string) string {
	return fmt.Sprintf("lock:%s", key)
}
