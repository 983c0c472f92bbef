package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

const messageColumns = `m.id, m.conversation_id, m.content, m.sender, m.sent_at, m.parent_message_id,
	m.reactions, m.is_bookmarked, m.created_at,
	(SELECT COUNT(*) FROM messages r WHERE r.parent_message_id = m.id) AS replies_count`

const messageOrder = ` ORDER BY m.sent_at, m.id`

func scanMessage(row scanner) (Message, error) {
	var (
		m         Message
		parent    sql.NullInt64
		reactions string
	)
	err := row.Scan(
		&m.ID, &m.ConversationID, &m.Content, &m.Sender, &m.Timestamp, &parent,
		&reactions, &m.IsBookmarked, &m.CreatedAt, &m.RepliesCount,
	)
	if err != nil {
		return Message{}, err
	}
	if parent.Valid {
		m.ParentMessage = &parent.Int64
	}
	m.Timestamp = m.Timestamp.UTC()
	m.CreatedAt = m.CreatedAt.UTC()
	m.Reactions = decodeReactions(reactions)
	return m, nil
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	defer rows.Close()
	out := []Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return out, nil
}

// CreateMessage inserts a message. A zero Timestamp means now.
func (r *repository) CreateMessage(ctx context.Context, arg CreateMessageParams) (Message, error) {
	id, err := r.insertMessage(ctx, r.db.conn, arg)
	if err != nil {
		return Message{}, err
	}
	return r.GetMessage(ctx, id)
}

func (r *repository) insertMessage(ctx context.Context, q querier, arg CreateMessageParams) (int64, error) {
	reactions := arg.Reactions
	if reactions == nil {
		reactions = map[string]int{}
	}
	encoded, err := json.Marshal(reactions)
	if err != nil {
		return 0, fmt.Errorf("failed to encode reactions: %w", err)
	}

	var id int64
	err = r.db.queryRow(ctx, q, `
		INSERT INTO messages (conversation_id, content, sender, sent_at, parent_message_id, reactions, is_bookmarked, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		arg.ConversationID, arg.Content, arg.Sender, normalizeTime(arg.Timestamp), arg.ParentMessage,
		string(encoded), arg.IsBookmarked, Now(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert message: %w", err)
	}
	return id, nil
}

// GetMessage retrieves a message by ID
func (r *repository) GetMessage(ctx context.Context, id int64) (Message, error) {
	m, err := scanMessage(r.db.queryRow(ctx, r.db.conn,
		`SELECT `+messageColumns+` FROM messages m WHERE m.id = ?`, id))
	if err != nil {
		return Message{}, notFound(err, "message", id)
	}
	return m, nil
}

// ListMessages returns the first limit messages in chronological order; limit <= 0 returns all
func (r *repository) ListMessages(ctx context.Context, conversationID int64, limit int) ([]Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages m WHERE m.conversation_id = ?` + messageOrder
	args := []any{conversationID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.query(ctx, r.db.conn, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages for conversation %d: %w", conversationID, err)
	}
	return scanMessages(rows)
}

// RecentMessages returns the last limit messages, oldest first
func (r *repository) RecentMessages(ctx context.Context, conversationID int64, limit int) ([]Message, error) {
	rows, err := r.db.query(ctx, r.db.conn,
		`SELECT `+messageColumns+` FROM messages m WHERE m.conversation_id = ?
		 ORDER BY m.sent_at DESC, m.id DESC LIMIT ?`,
		conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent messages for conversation %d: %w", conversationID, err)
	}
	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// CountMessages returns how many messages a conversation holds
func (r *repository) CountMessages(ctx context.Context, conversationID int64) (int, error) {
	var n int
	err := r.db.queryRow(ctx, r.db.conn,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, conversationID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages for conversation %d: %w", conversationID, err)
	}
	return n, nil
}

// AddReaction increments the counter for emoji on a message
func (r *repository) AddReaction(ctx context.Context, id int64, emoji string) (Message, error) {
	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		var raw string
		if err := r.db.queryRow(ctx, tx, `SELECT reactions FROM messages WHERE id = ?`+r.db.lockClause(), id).Scan(&raw); err != nil {
			return notFound(err, "message", id)
		}

		reactions := decodeReactions(raw)
		reactions[emoji]++
		encoded, err := json.Marshal(reactions)
		if err != nil {
			return fmt.Errorf("failed to encode reactions: %w", err)
		}

		res, err := r.db.exec(ctx, tx, `UPDATE messages SET reactions = ? WHERE id = ?`, string(encoded), id)
		return affectedOne(res, err, "message", id)
	})
	if err != nil {
		return Message{}, err
	}
	return r.GetMessage(ctx, id)
}

// ToggleBookmark flips the bookmark flag on a message
func (r *repository) ToggleBookmark(ctx context.Context, id int64) (Message, error) {
	res, err := r.db.exec(ctx, r.db.conn, `UPDATE messages SET is_bookmarked = NOT is_bookmarked WHERE id = ?`, id)
	if err := affectedOne(res, err, "message", id); err != nil {
		return Message{}, err
	}
	return r.GetMessage(ctx, id)
}
