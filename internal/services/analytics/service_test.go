package analytics

import (
	"context"
	"testing"
	"time"

	"conversation-system/internal/cache"
	"conversation-system/internal/repo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) repo.Repository {
	t.Helper()
	ctx := context.Background()

	db, err := repo.NewDB(ctx, repo.DialectSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(ctx))
	return repo.NewRepository(db)
}

func seed(t *testing.T, r repo.Repository, now time.Time) {
	t.Helper()
	ctx := context.Background()

	type conv struct {
		status    string
		started   time.Time
		topics    []string
		sentiment string
		messages  int
	}
	convs := []conv{
		{repo.StatusEnded, now.AddDate(0, 0, -2), []string{"go", "testing"}, "positive", 4},
		{repo.StatusEnded, now.AddDate(0, 0, -2), []string{"go"}, "neutral", 2},
		{repo.StatusActive, now.AddDate(0, 0, -1), nil, "", 3},
		{repo.StatusEnded, now.AddDate(0, 0, -60), []string{"travel"}, "positive", 3},
	}
	for _, c := range convs {
		created, err := r.CreateConversation(ctx, repo.CreateConversationParams{
			Status:         c.status,
			StartTimestamp: c.started,
			KeyTopics:      c.topics,
			Sentiment:      c.sentiment,
		})
		require.NoError(t, err)
		for i := 0; i < c.messages; i++ {
			_, err := r.CreateMessage(ctx, repo.CreateMessageParams{
				ConversationID: created.ID,
				Content:        "m",
				Sender:         repo.SenderUser,
				Timestamp:      c.started.Add(time.Duration(i) * time.Minute),
			})
			require.NoError(t, err)
		}
	}
}

func TestSnapshot(t *testing.T) {
	r := newTestRepo(t)
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	seed(t, r, now)

	s := NewAnalyticsService(r, cache.NewMemoryStore())
	s.now = func() time.Time { return now }

	snap, err := s.Snapshot(context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, Summary{
		TotalConversations:  4,
		ActiveConversations: 1,
		EndedConversations:  3,
		AverageMessageCount: 3,
	}, snap.Summary)
	assert.Equal(t, []DateCount{{Date: "2024-06-13", Count: 2}, {Date: "2024-06-14", Count: 1}}, snap.ConversationsOverTime)
	assert.Equal(t, []DateCount{{Date: "2024-06-13", Count: 6}, {Date: "2024-06-14", Count: 3}}, snap.MessagesOverTime)
	assert.Equal(t, []TopicCount{{"go", 2}, {"testing", 1}, {"travel", 1}}, snap.TopTopics)
	assert.Equal(t, []SentimentCount{{"neutral", 1}, {"positive", 2}}, snap.SentimentDistribution)
}

func TestSnapshot_IsCached(t *testing.T) {
	r := newTestRepo(t)
	now := time.Now()
	store := cache.NewMemoryStore()
	s := NewAnalyticsService(r, store)

	first, err := s.Snapshot(context.Background(), 7)
	require.NoError(t, err)
	assert.Zero(t, first.Summary.TotalConversations)

	seed(t, r, now)
	second, err := s.Snapshot(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	require.NoError(t, store.Del(context.Background(), cache.AnalyticsKey(7)))
	third, err := s.Snapshot(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 4, third.Summary.TotalConversations)
}

func TestSnapshot_ReadsTopicScores(t *testing.T) {
	r := newTestRepo(t)
	store := cache.NewMemoryStore()
	require.NoError(t, store.ReplaceSortedSet(context.Background(), cache.TopicScoresKey, []cache.ScoredMember{
		{Member: "cached", Score: 9},
	}, time.Minute))

	snap, err := NewAnalyticsService(r, store).Snapshot(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, []TopicCount{{"cached", 9}}, snap.TopTopics)
}

func TestTopicScorer_Compute(t *testing.T) {
	r := newTestRepo(t)
	seed(t, r, time.Now())
	store := cache.NewMemoryStore()

	require.NoError(t, NewTopicScorer(r, store).Compute(context.Background()))

	top, err := store.TopScored(context.Background(), cache.TopicScoresKey, 1)
	require.NoError(t, err)
	assert.Equal(t, []cache.ScoredMember{{Member: "go", Score: 2}}, top)
}

func TestSnapshot_TopicTiesMatchAcrossPaths(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	for _, topics := range [][]string{{"travel", "cooking"}, {"art", "go"}, {"go"}} {
		_, err := r.CreateConversation(ctx, repo.CreateConversationParams{Status: repo.StatusEnded, KeyTopics: topics})
		require.NoError(t, err)
	}

	inline, err := NewAnalyticsService(r, cache.NewMemoryStore()).Snapshot(ctx, 30)
	require.NoError(t, err)

	scored := cache.NewMemoryStore()
	require.NoError(t, NewTopicScorer(r, scored).Compute(ctx))
	fromScores, err := NewAnalyticsService(r, scored).Snapshot(ctx, 30)
	require.NoError(t, err)

	assert.Equal(t, []TopicCount{{"go", 2}, {"art", 1}, {"cooking", 1}, {"travel", 1}}, inline.TopTopics)
	assert.Equal(t, inline.TopTopics, fromScores.TopTopics)
}

func TestTopicScorer_StartStop(t *testing.T) {
	r := newTestRepo(t)
	seed(t, r, time.Now())
	store := cache.NewMemoryStore()

	ts := NewTopicScorer(r, store)
	ts.Start(context.Background(), time.Hour)
	defer ts.Stop()

	assert.Eventually(t, func() bool {
		top, err := store.TopScored(context.Background(), cache.TopicScoresKey, 10)
		return err == nil && len(top) == 3
	}, 2*time.Second, 10*time.Millisecond)

	ts.Stop()
}

func TestCountTopics_SkipsBlank(t *testing.T) {
	got := CountTopics([]repo.ConversationInsight{
		{KeyTopics: []string{"b", "", "a"}},
		{KeyTopics: []string{"a"}},
	})
	assert.Equal(t, []TopicCount{{"a", 2}, {"b", 1}}, got)
}

func TestAverage(t *testing.T) {
	assert.Zero(t, average(5, 0))
	assert.Equal(t, 3.33, average(10, 3))
}
