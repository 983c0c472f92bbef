package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const conversationColumns = `c.id, c.title, c.status, c.start_timestamp, c.end_timestamp, c.summary,
	c.key_topics, c.sentiment, c.action_items, c.share_token, c.is_shared, c.parent_conversation_id,
	c.created_at, c.updated_at,
	(SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id) AS message_count,
	(SELECT COUNT(*) FROM conversations b WHERE b.parent_conversation_id = c.id) AS branches_count`

const conversationOrder = ` ORDER BY c.start_timestamp DESC, c.id DESC`

func scanConversation(row scanner) (Conversation, error) {
	var (
		c           Conversation
		title       sql.NullString
		endedAt     sql.NullTime
		keyTopics   string
		actionItems string
		shareToken  sql.NullString
		parent      sql.NullInt64
	)
	err := row.Scan(
		&c.ID, &title, &c.Status, &c.StartTimestamp, &endedAt, &c.Summary,
		&keyTopics, &c.Sentiment, &actionItems, &shareToken, &c.IsShared, &parent,
		&c.CreatedAt, &c.UpdatedAt,
		&c.MessageCount, &c.BranchesCount,
	)
	if err != nil {
		return Conversation{}, err
	}

	if title.Valid {
		c.Title = &title.String
	}
	if endedAt.Valid {
		t := endedAt.Time.UTC()
		c.EndTimestamp = &t
	}
	if shareToken.Valid {
		c.ShareToken = &shareToken.String
	}
	if parent.Valid {
		c.ParentConversation = &parent.Int64
	}
	c.StartTimestamp = c.StartTimestamp.UTC()
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	c.KeyTopics = decodeList(keyTopics)
	c.ActionItems = decodeList(actionItems)
	return c, nil
}

func scanConversations(rows *sql.Rows) ([]Conversation, error) {
	defer rows.Close()
	out := []Conversation{}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}
	return out, nil
}

// CreateConversation inserts a conversation. Zero values get the defaults of a new, active conversation.
func (r *repository) CreateConversation(ctx context.Context, arg CreateConversationParams) (Conversation, error) {
	id, err := r.insertConversation(ctx, r.db.conn, arg)
	if err != nil {
		return Conversation{}, err
	}
	return r.GetConversation(ctx, id)
}

func (r *repository) insertConversation(ctx context.Context, q querier, arg CreateConversationParams) (int64, error) {
	if arg.Status == "" {
		arg.Status = StatusActive
	}
	keyTopics, err := encodeList(arg.KeyTopics)
	if err != nil {
		return 0, err
	}
	actionItems, err := encodeList(arg.ActionItems)
	if err != nil {
		return 0, err
	}

	now := Now()
	var endedAt any
	if arg.EndTimestamp != nil {
		endedAt = normalizeTime(*arg.EndTimestamp)
	}

	var id int64
	err = r.db.queryRow(ctx, q, `
		INSERT INTO conversations (title, status, start_timestamp, end_timestamp, summary, key_topics,
			sentiment, action_items, parent_conversation_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		arg.Title, arg.Status, normalizeTime(arg.StartTimestamp), endedAt, arg.Summary, keyTopics,
		arg.Sentiment, actionItems, arg.ParentConversation, now, now,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert conversation: %w", err)
	}
	return id, nil
}

// GetConversation retrieves a conversation by ID
func (r *repository) GetConversation(ctx context.Context, id int64) (Conversation, error) {
	c, err := scanConversation(r.db.queryRow(ctx, r.db.conn,
		`SELECT `+conversationColumns+` FROM conversations c WHERE c.id = ?`, id))
	if err != nil {
		return Conversation{}, notFound(err, "conversation", id)
	}
	return c, nil
}

// ListConversations returns conversations newest first
func (r *repository) ListConversations(ctx context.Context, arg ListConversationsParams) ([]Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations c`
	var args []any
	if arg.Status != "" {
		query += ` WHERE c.status = ?`
		args = append(args, arg.Status)
	}
	query += conversationOrder
	if arg.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, arg.Limit, arg.Offset)
	}

	rows, err := r.db.query(ctx, r.db.conn, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return scanConversations(rows)
}

// UpdateConversationTitle sets or clears the title
func (r *repository) UpdateConversationTitle(ctx context.Context, id int64, title *string) (Conversation, error) {
	res, err := r.db.exec(ctx, r.db.conn,
		`UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?`, title, Now(), id)
	if err := affectedOne(res, err, "conversation", id); err != nil {
		return Conversation{}, err
	}
	return r.GetConversation(ctx, id)
}

// DeleteConversation removes a conversation and its messages. Branches are detached.
func (r *repository) DeleteConversation(ctx context.Context, id int64) error {
	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := r.db.exec(ctx, tx,
			`UPDATE conversations SET parent_conversation_id = NULL WHERE parent_conversation_id = ?`, id); err != nil {
			return fmt.Errorf("failed to detach branches: %w", err)
		}
		if _, err := r.db.exec(ctx, tx,
			`UPDATE messages SET parent_message_id = NULL
			 WHERE conversation_id = ? AND parent_message_id IS NOT NULL`, id); err != nil {
			return fmt.Errorf("failed to detach replies: %w", err)
		}
		if _, err := r.db.exec(ctx, tx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete messages: %w", err)
		}
		res, err := r.db.exec(ctx, tx, `DELETE FROM conversations WHERE id = ?`, id)
		return affectedOne(res, err, "conversation", id)
	})
}

// FinishConversation stores the analysis and marks an active conversation ended
func (r *repository) FinishConversation(ctx context.Context, arg FinishConversationParams) (Conversation, error) {
	keyTopics, err := encodeList(arg.KeyTopics)
	if err != nil {
		return Conversation{}, err
	}
	actionItems, err := encodeList(arg.ActionItems)
	if err != nil {
		return Conversation{}, err
	}

	res, err := r.db.exec(ctx, r.db.conn, `
		UPDATE conversations
		SET status = ?, end_timestamp = ?, summary = ?, key_topics = ?, sentiment = ?, action_items = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		StatusEnded, normalizeTime(arg.EndedAt), arg.Summary, keyTopics, arg.Sentiment, actionItems, Now(),
		arg.ID, StatusActive,
	)
	if err != nil {
		return Conversation{}, fmt.Errorf("failed to finish conversation %d: %w", arg.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetConversation(ctx, arg.ID); err != nil {
			return Conversation{}, err
		}
		return Conversation{}, fmt.Errorf("conversation %d is not active: %w", arg.ID, ErrStateConflict)
	}
	return r.GetConversation(ctx, arg.ID)
}

// SetShareToken sets the share token, or clears it when token is nil
func (r *repository) SetShareToken(ctx context.Context, id int64, token *string) (Conversation, error) {
	res, err := r.db.exec(ctx, r.db.conn,
		`UPDATE conversations SET share_token = ?, is_shared = ?, updated_at = ? WHERE id = ?`,
		token, token != nil, Now(), id)
	if err := affectedOne(res, err, "conversation", id); err != nil {
		return Conversation{}, err
	}
	return r.GetConversation(ctx, id)
}

// GetConversationByShareToken retrieves a shared conversation
func (r *repository) GetConversationByShareToken(ctx context.Context, token string) (Conversation, error) {
	c, err := scanConversation(r.db.queryRow(ctx, r.db.conn,
		`SELECT `+conversationColumns+` FROM conversations c WHERE c.share_token = ? AND c.is_shared = ?`,
		token, true))
	if err != nil {
		return Conversation{}, notFound(err, "shared conversation", token)
	}
	return c, nil
}

// BranchConversation creates a child conversation holding copies of the
// source messages sent at or before arg.UpTo.
func (r *repository) BranchConversation(ctx context.Context, arg BranchConversationParams) (Conversation, error) {
	var branchID int64
	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		title := arg.Title
		id, err := r.insertConversation(ctx, tx, CreateConversationParams{
			Title:              &title,
			ParentConversation: &arg.SourceID,
		})
		if err != nil {
			return err
		}
		branchID = id

		// rows are drained before inserting; sqlite runs on a single connection
		rows, err := r.db.query(ctx, tx, `SELECT `+messageColumns+` FROM messages m
			WHERE m.conversation_id = ? AND m.sent_at <= ?`+messageOrder,
			arg.SourceID, normalizeTime(arg.UpTo))
		if err != nil {
			return fmt.Errorf("failed to read messages to branch: %w", err)
		}
		source, err := scanMessages(rows)
		if err != nil {
			return err
		}

		for _, m := range source {
			if _, err := r.insertMessage(ctx, tx, CreateMessageParams{
				ConversationID: id,
				Content:        m.Content,
				Sender:         m.Sender,
				Timestamp:      m.Timestamp,
			}); err != nil {
				return fmt.Errorf("failed to copy message %d into branch: %w", m.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return Conversation{}, err
	}
	return r.GetConversation(ctx, branchID)
}

// ListConversationsForQuery returns ended conversations matching the filters, newest first
func (r *repository) ListConversationsForQuery(ctx context.Context, arg QueryConversationsParams) ([]Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations c WHERE c.status = ?`
	args := []any{StatusEnded}

	if arg.DateFrom != nil {
		query += ` AND c.start_timestamp >= ?`
		args = append(args, dbTime(*arg.DateFrom))
	}
	if arg.DateTo != nil {
		query += ` AND c.start_timestamp <= ?`
		args = append(args, dbTime(*arg.DateTo))
	}
	if len(arg.IDs) > 0 {
		query += ` AND c.id IN (` + strings.TrimSuffix(strings.Repeat("?, ", len(arg.IDs)), ", ") + `)`
		for _, id := range arg.IDs {
			args = append(args, id)
		}
	}
	query += conversationOrder

	rows, err := r.db.query(ctx, r.db.conn, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	return scanConversations(rows)
}

func affectedOne(res sql.Result, err error, what string, id any) error {
	if err != nil {
		return fmt.Errorf("failed to update %s %v: %w", what, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows for %s %v: %w", what, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %v: %w", what, id, ErrNotFound)
	}
	return nil
}
