package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"conversation-system/internal/cache"
	"conversation-system/internal/repo"

	"github.com/rs/zerolog/log"
)

// TopicScorer periodically recounts conversation topics into a sorted set
// that snapshots read their top topics from.
type TopicScorer struct {
	repo     repo.Repository
	cache    cache.Store
	ticker   *time.Ticker
	done     chan struct{}
	stopOnce sync.Once
}

func NewTopicScorer(repo repo.Repository, cache cache.Store) *TopicScorer {
	return &TopicScorer{
		repo:  repo,
		cache: cache,
		done:  make(chan struct{}),
	}
}

// Start computes topic scores now and then on every tick
func (ts *TopicScorer) Start(ctx context.Context, interval time.Duration) {
	ts.ticker = time.NewTicker(interval)

	go func() {
		if err := ts.Compute(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to compute topic scores")
		}
		for {
			select {
			case <-ts.ticker.C:
				if err := ts.Compute(ctx); err != nil {
					log.Error().Err(err).Msg("Failed to compute topic scores")
				}
			case <-ts.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	log.Info().Dur("interval", interval).Msg("Topic scorer started")
}

// Stop stops the background computation
func (ts *TopicScorer) Stop() {
	ts.stopOnce.Do(func() {
		if ts.ticker != nil {
			ts.ticker.Stop()
		}
		close(ts.done)
		log.Info().Msg("Topic scorer stopped")
	})
}

// Compute recounts topics across all conversations and replaces the stored scores
func (ts *TopicScorer) Compute(ctx context.Context) error {
	start := time.Now()

	insights, err := ts.repo.ListConversationInsights(ctx)
	if err != nil {
		return fmt.Errorf("failed to load conversation insights: %w", err)
	}

	topics := CountTopics(insights)
	members := make([]cache.ScoredMember, len(topics))
	for i, t := range topics {
		members[i] = cache.ScoredMember{Member: t.Topic, Score: float64(t.Count)}
	}

	if err := ts.cache.ReplaceSortedSet(ctx, cache.TopicScoresKey, members, cache.TopicsTTL); err != nil {
		return fmt.Errorf("failed to store topic scores: %w", err)
	}

	log.Debug().
		Dur("duration", time.Since(start)).
		Int("conversations", len(insights)).
		Int("topics", len(topics)).
		Msg("Completed topic scoring")
	return nil
}
