package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"conversation-system/internal/cache"
	"conversation-system/internal/repo"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultDays   = 30
	topTopicLimit = 10
	dateLayout    = "2006-01-02"
)

// Snapshot is the analytics view over stored conversations
type Snapshot struct {
	Summary               Summary          `json:"summary"`
	ConversationsOverTime []DateCount      `json:"conversations_over_time"`
	MessagesOverTime      []DateCount      `json:"messages_over_time"`
	TopTopics             []TopicCount     `json:"top_topics"`
	SentimentDistribution []SentimentCount `json:"sentiment_distribution"`
}

// Summary holds conversation totals
type Summary struct {
	TotalConversations  int     `json:"total_conversations"`
	ActiveConversations int     `json:"active_conversations"`
	EndedConversations  int     `json:"ended_conversations"`
	AverageMessageCount float64 `json:"average_message_count"`
}

// DateCount is a per-day bucket
type DateCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// TopicCount is the number of conversations mentioning a topic
type TopicCount struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}

// SentimentCount is the number of conversations with a sentiment
type SentimentCount struct {
	Sentiment string `json:"sentiment"`
	Count     int    `json:"count"`
}

// AnalyticsService computes analytics snapshots
type AnalyticsService struct {
	repo  repo.Repository
	cache cache.Store
	now   func() time.Time
}

// NewAnalyticsService creates a new AnalyticsService
func NewAnalyticsService(repo repo.Repository, cache cache.Store) *AnalyticsService {
	return &AnalyticsService{
		repo:  repo,
		cache: cache,
		now:   time.Now,
	}
}

// Snapshot returns analytics for the last days days, served from cache when fresh
func (s *AnalyticsService) Snapshot(ctx context.Context, days int) (Snapshot, error) {
	if days <= 0 {
		days = DefaultDays
	}

	data, err := s.cache.GetOrSet(ctx, cache.AnalyticsKey(days), cache.AnalyticsTTL, func() (interface{}, error) {
		return s.compute(ctx, days)
	})
	if err != nil {
		return Snapshot{}, err
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode analytics snapshot: %w", err)
	}
	return snap, nil
}

func (s *AnalyticsService) compute(ctx context.Context, days int) (Snapshot, error) {
	start := time.Now()
	since := s.now().UTC().AddDate(0, 0, -days)

	var (
		counts        repo.StatusCounts
		starts        []time.Time
		messageTimes  []time.Time
		insights      []repo.ConversationInsight
		totalMessages int
		ranked        []cache.ScoredMember
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		counts, err = s.repo.CountConversationsByStatus(gctx)
		return err
	})
	g.Go(func() (err error) {
		starts, err = s.repo.ConversationStartsSince(gctx, since)
		return err
	})
	g.Go(func() (err error) {
		messageTimes, err = s.repo.MessageTimestampsSince(gctx, since)
		return err
	})
	g.Go(func() (err error) {
		insights, err = s.repo.ListConversationInsights(gctx)
		return err
	})
	g.Go(func() (err error) {
		totalMessages, err = s.repo.CountAllMessages(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		ranked, err = s.cache.TopScored(gctx, cache.TopicScoresKey, topTopicLimit)
		if err != nil {
			log.Warn().Err(err).Msg("Topic scores unavailable, counting topics inline")
			ranked = nil
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, fmt.Errorf("failed to compute analytics: %w", err)
	}

	snap := Snapshot{
		Summary: Summary{
			TotalConversations:  counts.Total,
			ActiveConversations: counts.Active,
			EndedConversations:  counts.Ended,
			AverageMessageCount: average(totalMessages, counts.Total),
		},
		ConversationsOverTime: bucketByDate(starts),
		MessagesOverTime:      bucketByDate(messageTimes),
		SentimentDistribution: countSentiments(insights),
	}

	if len(ranked) > 0 {
		snap.TopTopics = make([]TopicCount, len(ranked))
		for i, m := range ranked {
			snap.TopTopics[i] = TopicCount{Topic: m.Member, Count: int(m.Score)}
		}
	} else {
		snap.TopTopics = topN(CountTopics(insights), topTopicLimit)
	}

	log.Debug().
		Dur("duration", time.Since(start)).
		Int("days", days).
		Int("conversations", counts.Total).
		Msg("Computed analytics snapshot")
	return snap, nil
}

// CountTopics counts topic mentions across conversations, most frequent first
func CountTopics(insights []repo.ConversationInsight) []TopicCount {
	counts := make(map[string]int)
	for _, in := range insights {
		for _, topic := range in.KeyTopics {
			if topic == "" {
				continue
			}
			counts[topic]++
		}
	}

	out := make([]TopicCount, 0, len(counts))
	for topic, n := range counts {
		out = append(out, TopicCount{Topic: topic, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Topic < out[j].Topic
	})
	return out
}

func countSentiments(insights []repo.ConversationInsight) []SentimentCount {
	counts := make(map[string]int)
	for _, in := range insights {
		if in.Sentiment == "" {
			continue
		}
		counts[in.Sentiment]++
	}

	out := make([]SentimentCount, 0, len(counts))
	for sentiment, n := range counts {
		out = append(out, SentimentCount{Sentiment: sentiment, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sentiment < out[j].Sentiment })
	return out
}

// bucketByDate counts timestamps per UTC day in ascending date order
func bucketByDate(times []time.Time) []DateCount {
	counts := make(map[string]int)
	for _, t := range times {
		counts[t.UTC().Format(dateLayout)]++
	}

	out := make([]DateCount, 0, len(counts))
	for day, n := range counts {
		out = append(out, DateCount{Date: day, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

func topN(topics []TopicCount, n int) []TopicCount {
	if len(topics) > n {
		return topics[:n]
	}
	return topics
}

func average(total, n int) float64 {
	if n == 0 {
		return 0
	}
	return math.Round(float64(total)/float64(n)*100) / 100
}
