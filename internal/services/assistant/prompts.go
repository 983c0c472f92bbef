package assistant

const (
	chatSystemPrompt     = "You are a helpful, friendly, and knowledgeable AI assistant. Provide clear, concise, and helpful responses."
	titleSystemPrompt    = "You are a title generator. Return only the title, no explanation."
	analysisSystemPrompt = "You are a conversation analyst. Return only valid JSON, no additional text."
	querySystemPrompt    = "You are a conversation intelligence assistant. Analyze past conversations and answer questions about them. Return only valid JSON."
	suggestSystemPrompt  = "You are a helpful assistant that suggests conversation topics."
)

const titlePromptTemplate = "Generate a short, descriptive title (max 5 words) for a conversation that starts with: '%s'"

const analysisPromptTemplate = `Analyze the following conversation and provide a JSON response with:
1. summary: A brief summary of the conversation (2-3 sentences)
2. key_topics: List of main topics discussed (array of strings)
3. sentiment: Overall sentiment (positive, neutral, or negative)
4. action_items: List of any action items or decisions made (array of strings)

Conversation:
%s

Return only valid JSON in this format:
{
    "summary": "...",
    "key_topics": ["topic1", "topic2"],
    "sentiment": "positive/neutral/negative",
    "action_items": ["item1", "item2"]
}`

const queryPromptTemplate = `Based on the following past conversations, answer this question: "%s"

Past Conversations:
%s

Provide:
1. A direct answer to the question
2. Relevant excerpts from conversations that support your answer
3. Reference conversation IDs when mentioning specific conversations

Format your response as JSON:
{
    "answer": "Your answer here",
    "relevant_conversation_ids": [1, 2],
    "excerpts": [
        {"conversation_id": 1, "excerpt": "relevant text"},
        {"conversation_id": 2, "excerpt": "relevant text"}
    ]
}`

const suggestPromptTemplate = `Based on this conversation context, suggest 3-5 relevant follow-up questions or topics:

%s

Return only a JSON array of suggestions, no other text:
["suggestion1", "suggestion2", "suggestion3"]`
