package repo

import "time"

// Conversation statuses
const (
	StatusActive = "active"
	StatusEnded  = "ended"
)

// Message senders
const (
	SenderUser = "user"
	SenderAI   = "ai"
)

// Conversation represents a stored conversation with derived counts
type Conversation struct {
	ID                 int64      `json:"id"`
	Title              *string    `json:"title"`
	Status             string     `json:"status"`
	StartTimestamp     time.Time  `json:"start_timestamp"`
	EndTimestamp       *time.Time `json:"end_timestamp"`
	Summary            string     `json:"summary"`
	KeyTopics          []string   `json:"key_topics"`
	Sentiment          string     `json:"sentiment"`
	ActionItems        []string   `json:"action_items"`
	ShareToken         *string    `json:"share_token"`
	IsShared           bool       `json:"is_shared"`
	ParentConversation *int64     `json:"parent_conversation"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	MessageCount       int        `json:"message_count"`
	BranchesCount      int        `json:"branches_count"`
}

// DisplayTitle returns the title or "Untitled"
func (c Conversation) DisplayTitle() string {
	if c.Title == nil || *c.Title == "" {
		return "Untitled"
	}
	return *c.Title
}

// Message represents a single chat message
type Message struct {
	ID             int64          `json:"id"`
	ConversationID int64          `json:"conversation_id"`
	Content        string         `json:"content"`
	Sender         string         `json:"sender"`
	Timestamp      time.Time      `json:"timestamp"`
	ParentMessage  *int64         `json:"parent_message"`
	Reactions      map[string]int `json:"reactions"`
	IsBookmarked   bool           `json:"is_bookmarked"`
	CreatedAt      time.Time      `json:"created_at"`
	RepliesCount   int            `json:"replies_count"`
}

// StatusCounts holds conversation totals by status
type StatusCounts struct {
	Total  int
	Active int
	Ended  int
}

// ConversationInsight is the analysis output of a single conversation
type ConversationInsight struct {
	KeyTopics []string
	Sentiment string
}

// Parameter structs for queries
type CreateConversationParams struct {
	Title              *string
	Status             string
	StartTimestamp     time.Time
	EndTimestamp       *time.Time
	Summary            string
	KeyTopics          []string
	Sentiment          string
	ActionItems        []string
	ParentConversation *int64
}

type ListConversationsParams struct {
	Status string
	Limit  int
	Offset int
}

type FinishConversationParams struct {
	ID          int64
	Summary     string
	KeyTopics   []string
	Sentiment   string
	ActionItems []string
	EndedAt     time.Time
}

type BranchConversationParams struct {
	SourceID int64
	Title    string
	UpTo     time.Time
}

type QueryConversationsParams struct {
	DateFrom *time.Time
	DateTo   *time.Time
	IDs      []int64
}

type CreateMessageParams struct {
	ConversationID int64
	Content        string
	Sender         string
	Timestamp      time.Time
	ParentMessage  *int64
	Reactions      map[string]int
	IsBookmarked   bool
}
