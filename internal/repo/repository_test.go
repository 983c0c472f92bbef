package repo

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) Repository {
	t.Helper()
	ctx := context.Background()

	db, err := NewDB(ctx, DialectSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(ctx))

	return NewRepository(db)
}

func strPtr(s string) *string { return &s }

func seedMessages(t *testing.T, r Repository, conversationID int64, base time.Time, contents ...string) []Message {
	t.Helper()
	out := make([]Message, 0, len(contents))
	for i, content := range contents {
		sender := SenderUser
		if i%2 == 1 {
			sender = SenderAI
		}
		m, err := r.CreateMessage(context.Background(), CreateMessageParams{
			ConversationID: conversationID,
			Content:        content,
			Sender:         sender,
			Timestamp:      base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
		out = append(out, m)
	}
	return out
}

func TestRebind(t *testing.T) {
	pg := &DB{dialect: DialectPostgres}
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b IN ($2, $3)", pg.rebind("SELECT * FROM t WHERE a = ? AND b IN (?, ?)"))

	lite := &DB{dialect: DialectSQLite}
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}

func TestLockClause(t *testing.T) {
	pg := &DB{dialect: DialectPostgres}
	assert.Equal(t, "SELECT reactions FROM messages WHERE id = $1 FOR UPDATE",
		pg.rebind("SELECT reactions FROM messages WHERE id = ?"+pg.lockClause()))

	lite := &DB{dialect: DialectSQLite}
	assert.Empty(t, lite.lockClause())
}

func TestMigrate_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	db, err := NewDB(ctx, DialectSQLite, ":memory:")
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Migrate(ctx))
	require.NoError(t, db.Migrate(ctx))
}

func TestNewDB_UnknownDialect(t *testing.T) {
	_, err := NewDB(context.Background(), "oracle", "x")
	assert.Error(t, err)
}

func TestCreateAndGetConversation(t *testing.T) {
	ctx := context.Background()
	r := newTestRepository(t)

	created, err := r.CreateConversation(ctx, CreateConversationParams{Title: strPtr("Trip")})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, StatusActive, created.Status)
	assert.Equal(t, "Trip", *created.Title)
	assert.Nil(t, created.EndTimestamp)
	assert.Empty(t, created.KeyTopics)
	assert.NotNil(t, created.KeyTopics)
	assert.False(t, created.IsShared)

	got, err := r.GetConversation(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	_, err = r.GetConversation(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListConversations_NewestFirstWithCounts(t *testing.T) {
	ctx := context.Background()
	r := newTestRepository(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	older, err := r.CreateConversation(ctx, CreateConversationParams{StartTimestamp: base})
	require.NoError(t, err)
	newer, err := r.CreateConversation(ctx, CreateConversationParams{StartTimestamp: base.Add(time.Hour)})
	require.NoError(t, err)
	seedMessages(t, r, older.ID, base, "a", "b", "c")

	list, err := r.ListConversations(ctx, ListConversationsParams{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID)
	assert.Equal(t, older.ID, list[1].ID)
	assert.Equal(t, 3, list[1].MessageCount)
	assert.Equal(t, "Untitled", list[1].DisplayTitle())

	page, err := r.ListConversations(ctx, ListConversationsParams{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, older.ID, page[0].ID)

	active, err := r.ListConversations(ctx, ListConversationsParams{Status: StatusEnded})
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestMessages_OrderingAndRecent(t *testing.T) {
	ctx := context.Background()
	r := newTestRepository(t)
	c, err := r.CreateConversation(ctx, CreateConversationParams{})
	require.NoError(t, err)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	contents := []string{"m1", "m2", "m3", "m4", "m5", "m6", "m7", "m8", "m9", "m10", "m11", "m12"}
	seedMessages(t, r, c.ID, base, contents...)

	all, err := r.ListMessages(ctx, c.ID, 0)
	require.NoError(t, err)
	require.Len(t, all, 12)
	assert.Equal(t, "m1", all[0].Content)
	assert.Equal(t, SenderAI, all[1].Sender)
	assert.Equal(t, base, all[0].Timestamp)

	first, err := r.ListMessages(ctx, c.ID, 5)
	require.NoError(t, err)
	require.Len(t, first, 5)
	assert.Equal(t, "m5", first[4].Content)

	recent, err := r.RecentMessages(ctx, c.ID, 10)
	require.NoError(t, err)
	require.Len(t, recent, 10)
	assert.Equal(t, "m3", recent[0].Content)
	assert.Equal(t, "m12", recent[9].Content)

	n, err := r.CountMessages(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 12, n)
}

func TestFinishConversation(t *testing.T) {
	ctx := context.Background()
	r := newTestRepository(t)
	c, err := r.CreateConversation(ctx, CreateConversationParams{})
	require.NoError(t, err)

	endedAt := time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)
	ended, err := r.FinishConversation(ctx, FinishConversationParams{
		ID:          c.ID,
		Summary:     "Talked about Japan",
		KeyTopics:   []string{"travel", "japan"},
		Sentiment:   "positive",
		ActionItems: []string{"book flights"},
		EndedAt:     endedAt,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusEnded, ended.Status)
	require.NotNil(t, ended.EndTimestamp)
	assert.Equal(t, endedAt, *ended.EndTimestamp)
	assert.Equal(t, []string{"travel", "japan"}, ended.KeyTopics)
	assert.Equal(t, []string{"book flights"}, ended.ActionItems)

	_, err = r.FinishConversation(ctx, FinishConversationParams{ID: c.ID, EndedAt: endedAt})
	assert.ErrorIs(t, err, ErrStateConflict)

	_, err = r.FinishConversation(ctx, FinishConversationParams{ID: 777, EndedAt: endedAt})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestShareTokens(t *testing.T) {
	ctx := context.Background()
	r := newTestRepository(t)
	c, err := r.CreateConversation(ctx, CreateConversationParams{})
	require.NoError(t, err)

	shared, err := r.SetShareToken(ctx, c.ID, strPtr("tok-123"))
	require.NoError(t, err)
	assert.True(t, shared.IsShared)

	got, err := r.GetConversationByShareToken(ctx, "tok-123")
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)

	unshared, err := r.SetShareToken(ctx, c.ID, nil)
	require.NoError(t, err)
	assert.False(t, unshared.IsShared)
	assert.Nil(t, unshared.ShareToken)

	_, err = r.GetConversationByShareToken(ctx, "tok-123")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBranchConversation_CopiesUpToBranchPoint(t *testing.T) {
	ctx := context.Background()
	r := newTestRepository(t)
	source, err := r.CreateConversation(ctx, CreateConversationParams{Title: strPtr("Original")})
	require.NoError(t, err)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	msgs := seedMessages(t, r, source.ID, base, "one", "two", "three", "four")
	_, err = r.AddReaction(ctx, msgs[0].ID, "👍")
	require.NoError(t, err)

	branch, err := r.BranchConversation(ctx, BranchConversationParams{
		SourceID: source.ID,
		Title:    "Branch: Original",
		UpTo:     msgs[1].Timestamp,
	})
	require.NoError(t, err)
	require.NotNil(t, branch.ParentConversation)
	assert.Equal(t, source.ID, *branch.ParentConversation)
	assert.Equal(t, "Branch: Original", *branch.Title)
	assert.Equal(t, 2, branch.MessageCount)

	copied, err := r.ListMessages(ctx, branch.ID, 0)
	require.NoError(t, err)
	require.Len(t, copied, 2)
	assert.Equal(t, "one", copied[0].Content)
	assert.Equal(t, msgs[0].Timestamp, copied[0].Timestamp)
	assert.Empty(t, copied[0].Reactions)

	parent, err := r.GetConversation(ctx, source.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, parent.BranchesCount)
}

func TestDeleteConversation_DetachesBranches(t *testing.T) {
	ctx := context.Background()
	r := newTestRepository(t)
	source, err := r.CreateConversation(ctx, CreateConversationParams{})
	require.NoError(t, err)
	msgs := seedMessages(t, r, source.ID, time.Now(), "hello", "hi")

	branch, err := r.BranchConversation(ctx, BranchConversationParams{SourceID: source.ID, Title: "b", UpTo: msgs[1].Timestamp})
	require.NoError(t, err)

	require.NoError(t, r.DeleteConversation(ctx, source.ID))

	_, err = r.GetConversation(ctx, source.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.GetMessage(ctx, msgs[0].ID)
	assert.ErrorIs(t, err, ErrNotFound)

	orphan, err := r.GetConversation(ctx, branch.ID)
	require.NoError(t, err)
	assert.Nil(t, orphan.ParentConversation)
	assert.Equal(t, 2, orphan.MessageCount)

	assert.ErrorIs(t, r.DeleteConversation(ctx, source.ID), ErrNotFound)
}

func TestMessageActions(t *testing.T) {
	ctx := context.Background()
	r := newTestRepository(t)
	c, err := r.CreateConversation(ctx, CreateConversationParams{})
	require.NoError(t, err)
	msgs := seedMessages(t, r, c.ID, time.Now(), "question")

	m, err := r.AddReaction(ctx, msgs[0].ID, "🎉")
	require.NoError(t, err)
	m, err = r.AddReaction(ctx, m.ID, "🎉")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"🎉": 2}, m.Reactions)

	m, err = r.ToggleBookmark(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, m.IsBookmarked)
	m, err = r.ToggleBookmark(ctx, m.ID)
	require.NoError(t, err)
	assert.False(t, m.IsBookmarked)

	parentID := m.ID
	_, err = r.CreateMessage(ctx, CreateMessageParams{ConversationID: c.ID, Content: "reply", Sender: SenderUser, ParentMessage: &parentID})
	require.NoError(t, err)
	m, err = r.GetMessage(ctx, parentID)
	require.NoError(t, err)
	assert.Equal(t, 1, m.RepliesCount)

	_, err = r.AddReaction(ctx, 4242, "x")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.ToggleBookmark(ctx, 4242)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListConversationsForQuery_Filters(t *testing.T) {
	ctx := context.Background()
	r := newTestRepository(t)
	day := func(d int) time.Time { return time.Date(2024, 3, d, 10, 0, 0, 0, time.UTC) }

	var ended []Conversation
	for _, d := range []int{1, 5, 10} {
		c, err := r.CreateConversation(ctx, CreateConversationParams{StartTimestamp: day(d)})
		require.NoError(t, err)
		c, err = r.FinishConversation(ctx, FinishConversationParams{ID: c.ID, EndedAt: day(d).Add(time.Hour)})
		require.NoError(t, err)
		ended = append(ended, c)
	}
	_, err := r.CreateConversation(ctx, CreateConversationParams{StartTimestamp: day(6)})
	require.NoError(t, err)

	all, err := r.ListConversationsForQuery(ctx, QueryConversationsParams{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ended[2].ID, all[0].ID)

	from, to := day(2), day(9)
	ranged, err := r.ListConversationsForQuery(ctx, QueryConversationsParams{DateFrom: &from, DateTo: &to})
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, ended[1].ID, ranged[0].ID)

	byID, err := r.ListConversationsForQuery(ctx, QueryConversationsParams{IDs: []int64{ended[0].ID, ended[2].ID, 999}})
	require.NoError(t, err)
	require.Len(t, byID, 2)
}

func TestAnalyticsReads(t *testing.T) {
	ctx := context.Background()
	r := newTestRepository(t)
	now := time.Now().UTC()

	a, err := r.CreateConversation(ctx, CreateConversationParams{StartTimestamp: now.Add(-48 * time.Hour)})
	require.NoError(t, err)
	_, err = r.FinishConversation(ctx, FinishConversationParams{ID: a.ID, KeyTopics: []string{"go", "sql"}, Sentiment: "positive", EndedAt: now})
	require.NoError(t, err)
	b, err := r.CreateConversation(ctx, CreateConversationParams{StartTimestamp: now.Add(-60 * 24 * time.Hour)})
	require.NoError(t, err)
	seedMessages(t, r, b.ID, now.Add(-time.Hour), "x", "y")

	counts, err := r.CountConversationsByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusCounts{Total: 2, Active: 1, Ended: 1}, counts)

	starts, err := r.ConversationStartsSince(ctx, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, starts, 1)

	sent, err := r.MessageTimestampsSince(ctx, now.Add(-2*time.Hour))
	require.NoError(t, err)
	assert.Len(t, sent, 2)

	insights, err := r.ListConversationInsights(ctx)
	require.NoError(t, err)
	assert.Len(t, insights, 2)

	total, err := r.CountAllMessages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestAddReaction_ConcurrentReactionsAreAllCounted(t *testing.T) {
	ctx := context.Background()
	r := newTestRepository(t)

	c, err := r.CreateConversation(ctx, CreateConversationParams{})
	require.NoError(t, err)
	msgs := seedMessages(t, r, c.ID, time.Now(), "question")

	const reactions = 20
	var wg sync.WaitGroup
	errs := make(chan error, reactions)
	for i := 0; i < reactions; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.AddReaction(ctx, msgs[0].ID, "👍"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	m, err := r.GetMessage(ctx, msgs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"👍": reactions}, m.Reactions)
}
