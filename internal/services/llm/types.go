package llm

import "time"

// Role tags a turn in a conversation history
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one role-tagged message fed to a provider
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ProviderName identifies a configured LLM backend
type ProviderName string

const (
	ProviderOpenAI    ProviderName = "openai"
	ProviderAnthropic ProviderName = "anthropic"
	ProviderGoogle    ProviderName = "google"
	ProviderLMStudio  ProviderName = "lm_studio"
)

// DefaultContextTurns is how many persisted turns are replayed to the model
const DefaultContextTurns = 10

// DefaultCallTimeout bounds a single provider call
const DefaultCallTimeout = 30 * time.Second

// PlaceholderLMStudioModel is the unconfigured LM Studio model id
const PlaceholderLMStudioModel = "local-model"

// ProviderConfig is the process-wide, read-only provider configuration
type ProviderConfig struct {
	Provider ProviderName

	OpenAIAPIKey string
	OpenAIModel  string

	AnthropicAPIKey string
	AnthropicModel  string

	GoogleAPIKey string
	GoogleModel  string

	LMStudioBaseURL string
	LMStudioModel   string

	// Timeout applies to every adapter call; zero means DefaultCallTimeout.
	Timeout time.Duration
}

func (c ProviderConfig) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultCallTimeout
	}
	return c.Timeout
}

// Summary is the structured analysis of a finished conversation
type Summary struct {
	Summary     string   `json:"summary"`
	KeyTopics   []string `json:"key_topics"`
	Sentiment   string   `json:"sentiment"`
	ActionItems []string `json:"action_items"`
}

// Excerpt is a supporting quote from a past conversation
type Excerpt struct {
	ConversationID int64  `json:"conversation_id"`
	Excerpt        string `json:"excerpt"`
}

// ConversationRef describes a candidate conversation for a cross-conversation query
type ConversationRef struct {
	ID             int64     `json:"id"`
	Title          string    `json:"title"`
	StartTimestamp time.Time `json:"start_timestamp"`
	Summary        string    `json:"summary"`
}

// QueryAnswer is the answer to a question about past conversations
type QueryAnswer struct {
	Answer                  string            `json:"answer"`
	RelevantConversationIDs []int64           `json:"relevant_conversation_ids"`
	RelevantConversations   []ConversationRef `json:"relevant_conversations"`
	Excerpts                []Excerpt         `json:"excerpts"`
	// Degraded is set when the reply could not be parsed and the answer is
	// raw model text. It is not serialized.
	Degraded                bool              `json:"-"`
}
