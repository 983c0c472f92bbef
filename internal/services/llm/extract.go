package llm

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	summaryTextBudget = 500
	answerTextBudget  = 1000
	fallbackRelevant  = 3
)

const (
	noSummaryText     = "No summary available."
	noAnswerText      = "Unable to generate answer."
	unprocessableText = "Unable to process query."
)

// DefaultSuggestions is returned when the model's suggestion list cannot be parsed
var DefaultSuggestions = []string{
	"Tell me more about this topic",
	"What are the next steps?",
	"Can you provide examples?",
}

// StripCodeFence removes a markdown code fence and its json language tag
func StripCodeFence(raw string) string {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		parts := strings.Split(text, "```")
		text = strings.TrimPrefix(parts[1], "json")
	}
	return strings.TrimSpace(text)
}

// DecodeJSON strips fences from raw and decodes the remaining JSON into T.
// The cleaned text is returned as well so callers can degrade with it.
func DecodeJSON[T any](raw string) (T, string, error) {
	var out T
	text := StripCodeFence(raw)
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return out, text, err
	}
	return out, text, nil
}

// decodeObject strips fences from raw and decodes a JSON object into its
// raw fields. A reply that is not an object yields nil fields.
func decodeObject(raw string) (map[string]json.RawMessage, string, error) {
	fields, text, err := DecodeJSON[map[string]json.RawMessage](raw)
	if err != nil {
		return nil, text, err
	}
	if fields == nil {
		return nil, text, fmt.Errorf("reply is not a JSON object")
	}
	return fields, text, nil
}

// ExtractSummary parses a conversation analysis reply. Fields that are missing
// or of an unexpected type fall back to their defaults one by one.
func ExtractSummary(raw string) Summary {
	fields, text, err := decodeObject(raw)
	if err != nil {
		log.Debug().Err(err).Msg("Analysis reply is not valid JSON, degrading to text")
		summary := truncate(text, summaryTextBudget)
		if summary == "" {
			summary = noSummaryText
		}
		return Summary{
			Summary:     summary,
			KeyTopics:   []string{},
			Sentiment:   "neutral",
			ActionItems: []string{},
		}
	}

	return Summary{
		Summary:     stringField(fields, "summary", ""),
		KeyTopics:   stringListField(fields, "key_topics"),
		Sentiment:   stringField(fields, "sentiment", "neutral"),
		ActionItems: stringListField(fields, "action_items"),
	}
}

// ExtractQueryAnswer parses a cross-conversation query reply. Conversation ids
// are resolved against candidates, which must be in the caller's recency order.
func ExtractQueryAnswer(raw string, candidates []ConversationRef) QueryAnswer {
	fields, text, err := decodeObject(raw)
	if err != nil {
		log.Debug().Err(err).Msg("Query reply is not valid JSON, degrading to text")
		answer := truncate(text, answerTextBudget)
		if answer == "" {
			answer = unprocessableText
		}
		relevant := candidates
		if len(relevant) > fallbackRelevant {
			relevant = relevant[:fallbackRelevant]
		}
		return QueryAnswer{
			Answer:                  answer,
			RelevantConversationIDs: refIDs(relevant),
			RelevantConversations:   append([]ConversationRef{}, relevant...),
			Excerpts:                []Excerpt{},
			Degraded:                true,
		}
	}

	byID := make(map[int64]ConversationRef, len(candidates))
	for _, c := range candidates {
		byID[c.ID] = c
	}
	relevant := []ConversationRef{}
	seen := make(map[int64]bool)
	for _, id := range idListField(fields, "relevant_conversation_ids") {
		if ref, ok := byID[id]; ok && !seen[id] {
			seen[id] = true
			relevant = append(relevant, ref)
		}
	}

	return QueryAnswer{
		Answer:                  stringField(fields, "answer", noAnswerText),
		RelevantConversationIDs: refIDs(relevant),
		RelevantConversations:   relevant,
		Excerpts:                excerptsField(fields, "excerpts"),
	}
}

// stringField reads a string field; null, absent or non-string values give def
func stringField(fields map[string]json.RawMessage, key, def string) string {
	var s *string
	if err := json.Unmarshal(fields[key], &s); err != nil || s == nil {
		return def
	}
	return *s
}

// stringListField reads a list of strings. A lone string is wrapped and
// scalar items of other types are formatted.
func stringListField(fields map[string]json.RawMessage, key string) []string {
	var value any
	if err := json.Unmarshal(fields[key], &value); err != nil {
		return []string{}
	}
	switch v := value.(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			switch it := item.(type) {
			case string:
				out = append(out, it)
			case float64, bool:
				out = append(out, fmt.Sprint(it))
			}
		}
		return out
	default:
		return []string{}
	}
}

// idListField reads conversation ids given as numbers or numeric strings
func idListField(fields map[string]json.RawMessage, key string) []int64 {
	var value any
	if err := json.Unmarshal(fields[key], &value); err != nil {
		return nil
	}
	items, ok := value.([]any)
	if !ok {
		items = []any{value}
	}
	out := make([]int64, 0, len(items))
	for _, item := range items {
		if id, ok := toID(item); ok {
			out = append(out, id)
		}
	}
	return out
}

func toID(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case string:
		id, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return id, err == nil
	default:
		return 0, false
	}
}

// excerptsField reads excerpt objects, skipping entries without usable text or id
func excerptsField(fields map[string]json.RawMessage, key string) []Excerpt {
	out := []Excerpt{}
	var items []json.RawMessage
	if err := json.Unmarshal(fields[key], &items); err != nil {
		return out
	}
	for _, rawItem := range items {
		var item map[string]json.RawMessage
		if err := json.Unmarshal(rawItem, &item); err != nil || item == nil {
			continue
		}
		var rawID any
		if err := json.Unmarshal(item["conversation_id"], &rawID); err != nil {
			continue
		}
		id, ok := toID(rawID)
		if !ok {
			continue
		}
		out = append(out, Excerpt{ConversationID: id, Excerpt: stringField(item, "excerpt", "")})
	}
	return out
}

// ExtractSuggestions parses a JSON array of follow-up suggestions
func ExtractSuggestions(raw string) []string {
	value, _, err := DecodeJSON[any](raw)
	if err != nil {
		return append([]string{}, DefaultSuggestions...)
	}

	switch v := value.(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
				continue
			}
			out = append(out, fmt.Sprint(item))
		}
		return out
	case string:
		return []string{v}
	default:
		return append([]string{}, DefaultSuggestions...)
	}
}

// truncate cuts s to at most n characters
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func refIDs(refs []ConversationRef) []int64 {
	ids := make([]int64, len(refs))
	for i, r := range refs {
		ids[i] = r.ID
	}
	return ids
}
