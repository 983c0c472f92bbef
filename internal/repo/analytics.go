package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CountConversationsByStatus returns conversation totals
func (r *repository) CountConversationsByStatus(ctx context.Context) (StatusCounts, error) {
	rows, err := r.db.query(ctx, r.db.conn, `SELECT status, COUNT(*) FROM conversations GROUP BY status`)
	if err != nil {
		return StatusCounts{}, fmt.Errorf("failed to count conversations: %w", err)
	}
	defer rows.Close()

	var counts StatusCounts
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return StatusCounts{}, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts.Total += n
		switch status {
		case StatusActive:
			counts.Active = n
		case StatusEnded:
			counts.Ended = n
		}
	}
	if err := rows.Err(); err != nil {
		return StatusCounts{}, fmt.Errorf("failed to iterate status counts: %w", err)
	}
	return counts, nil
}

// ConversationStartsSince returns start timestamps of conversations begun at or after since
func (r *repository) ConversationStartsSince(ctx context.Context, since time.Time) ([]time.Time, error) {
	rows, err := r.db.query(ctx, r.db.conn,
		`SELECT start_timestamp FROM conversations WHERE start_timestamp >= ? ORDER BY start_timestamp`, dbTime(since))
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation starts: %w", err)
	}
	return scanTimes(rows)
}

// MessageTimestampsSince returns timestamps of messages sent at or after since
func (r *repository) MessageTimestampsSince(ctx context.Context, since time.Time) ([]time.Time, error) {
	rows, err := r.db.query(ctx, r.db.conn,
		`SELECT sent_at FROM messages WHERE sent_at >= ? ORDER BY sent_at`, dbTime(since))
	if err != nil {
		return nil, fmt.Errorf("failed to load message timestamps: %w", err)
	}
	return scanTimes(rows)
}

// ListConversationInsights returns topics and sentiment of every conversation
func (r *repository) ListConversationInsights(ctx context.Context) ([]ConversationInsight, error) {
	rows, err := r.db.query(ctx, r.db.conn, `SELECT key_topics, sentiment FROM conversations`)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation insights: %w", err)
	}
	defer rows.Close()

	out := []ConversationInsight{}
	for rows.Next() {
		var topics, sentiment string
		if err := rows.Scan(&topics, &sentiment); err != nil {
			return nil, fmt.Errorf("failed to scan conversation insight: %w", err)
		}
		out = append(out, ConversationInsight{KeyTopics: decodeList(topics), Sentiment: sentiment})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversation insights: %w", err)
	}
	return out, nil
}

// CountAllMessages returns the number of stored messages
func (r *repository) CountAllMessages(ctx context.Context) (int, error) {
	var n int
	if err := r.db.queryRow(ctx, r.db.conn, `SELECT COUNT(*) FROM messages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

func scanTimes(rows *sql.Rows) ([]time.Time, error) {
	defer rows.Close()
	out := []time.Time{}
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan timestamp: %w", err)
		}
		out = append(out, t.UTC())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate timestamps: %w", err)
	}
	return out, nil
}
