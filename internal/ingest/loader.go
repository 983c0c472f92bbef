package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"conversation-system/internal/repo"
	"conversation-system/internal/services/conversations"

	"github.com/rs/zerolog/log"
)

// Loader handles data ingestion from JSON exports
type Loader struct {
	repo repo.Repository
}

// NewLoader creates a new Loader instance
func NewLoader(repo repo.Repository) *Loader {
	return &Loader{repo: repo}
}

// Load imports path, which may be a single export file or a directory of them
func (l *Loader) Load(ctx context.Context, path string) (int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return l.LoadFromDirectory(ctx, path)
	}
	return l.LoadFromFile(ctx, path)
}

// LoadFromDirectory loads all JSON files from a directory
func (l *Loader) LoadFromDirectory(ctx context.Context, dirPath string) (int, error) {
	total := 0
	err := filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(path), ".json") {
			return nil
		}

		n, err := l.LoadFromFile(ctx, path)
		total += n
		return err
	})
	return total, err
}

// LoadFromFile loads one exported conversation, or an array of them, from a JSON file
func (l *Loader) LoadFromFile(ctx context.Context, filePath string) (int, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to read file %s: %w", filePath, err)
	}

	var exports []conversations.ConversationDetailDTO
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &exports)
	} else {
		var single conversations.ConversationDetailDTO
		err = json.Unmarshal(data, &single)
		exports = append(exports, single)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to decode JSON from %s: %w", filePath, err)
	}

	log.Info().Str("file", filePath).Int("conversations", len(exports)).Msg("Loading conversations")

	loaded := 0
	for i, export := range exports {
		id, err := l.LoadConversation(ctx, export)
		if err != nil {
			log.Warn().Err(err).Str("file", filePath).Int("index", i).Msg("Failed to load conversation")
			continue
		}
		log.Debug().Int64("conversation_id", id).Int("messages", len(export.Messages)).Msg("Loaded conversation")
		loaded++
	}
	return loaded, nil
}

// LoadConversation stores an exported conversation and its messages under new IDs.
// Reactions and bookmarks are kept; reply links are not.
func (l *Loader) LoadConversation(ctx context.Context, export conversations.ConversationDetailDTO) (int64, error) {
	status := export.Status
	if status == "" {
		status = repo.StatusActive
	}
	if status != repo.StatusActive && status != repo.StatusEnded {
		return 0, fmt.Errorf("unknown status %q", status)
	}

	c, err := l.repo.CreateConversation(ctx, repo.CreateConversationParams{
		Title:          export.Title,
		Status:         status,
		StartTimestamp: export.StartTimestamp,
		EndTimestamp:   export.EndTimestamp,
		Summary:        export.Summary,
		KeyTopics:      export.KeyTopics,
		Sentiment:      export.Sentiment,
		ActionItems:    export.ActionItems,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create conversation: %w", err)
	}

	for _, m := range export.Messages {
		if m.Sender != repo.SenderUser && m.Sender != repo.SenderAI {
			return c.ID, fmt.Errorf("message %d has unknown sender %q", m.ID, m.Sender)
		}
		if _, err := l.repo.CreateMessage(ctx, repo.CreateMessageParams{
			ConversationID: c.ID,
			Content:        m.Content,
			Sender:         m.Sender,
			Timestamp:      m.Timestamp,
			Reactions:      m.Reactions,
			IsBookmarked:   m.IsBookmarked,
		}); err != nil {
			return c.ID, fmt.Errorf("failed to create message: %w", err)
		}
	}
	return c.ID, nil
}

// GenerateSampleData stores three sample conversations: two ended with analysis and one active
func (l *Loader) GenerateSampleData(ctx context.Context) error {
	now := time.Now().UTC()
	samples := []conversations.ConversationDetailDTO{
		{
			Title:          stringPtr("Planning a trip to Japan"),
			Status:         repo.StatusEnded,
			StartTimestamp: now.Add(-72 * time.Hour),
			EndTimestamp:   timePtr(now.Add(-71 * time.Hour)),
			Summary:        "The user planned a two-week spring trip to Japan covering Tokyo, Kyoto and Osaka, and asked about rail passes and cherry blossom timing.",
			KeyTopics:      []string{"travel", "japan", "rail pass"},
			Sentiment:      "positive",
			ActionItems:    []string{"Book the Japan Rail Pass", "Reserve a ryokan in Kyoto"},
			Messages: sampleMessages(now.Add(-72*time.Hour),
				"I want to visit Japan for two weeks in April. Where should I go?",
				"April is cherry blossom season. A classic route is Tokyo, then Kyoto, then Osaka, with a day trip to Nara.",
				"Is the Japan Rail Pass worth it for that route?",
				"For Tokyo to Kyoto and Osaka with a return to Tokyo, a 14-day pass usually pays off, especially with extra day trips.",
			),
		},
		{
			Title:          stringPtr("Debugging a Go race condition"),
			Status:         repo.StatusEnded,
			StartTimestamp: now.Add(-30 * time.Hour),
			EndTimestamp:   timePtr(now.Add(-29 * time.Hour)),
			Summary:        "The user tracked down a data race in a map shared between goroutines and fixed it with a mutex after running the race detector.",
			KeyTopics:      []string{"go", "concurrency", "debugging"},
			Sentiment:      "neutral",
			ActionItems:    []string{"Run tests with -race in CI"},
			Messages: sampleMessages(now.Add(-30*time.Hour),
				"My Go service crashes with 'concurrent map writes'. What does that mean?",
				"Two goroutines wrote to the same map without synchronization. Guard the map with a sync.Mutex or use sync.Map.",
				"How can I find every place this happens?",
				"Run your tests with the -race flag. The race detector reports each conflicting access with stack traces.",
			),
		},
		{
			Title:          stringPtr("Learning to cook pasta"),
			Status:         repo.StatusActive,
			StartTimestamp: now.Add(-2 * time.Hour),
			Messages: sampleMessages(now.Add(-2*time.Hour),
				"How much salt should I add to pasta water?",
				"About 10 grams of salt per litre of water is a good starting point.",
			),
		},
	}

	log.Info().Int("conversations", len(samples)).Msg("Generating sample conversations")

	for i, sample := range samples {
		id, err := l.LoadConversation(ctx, sample)
		if err != nil {
			return fmt.Errorf("failed to load sample conversation %d: %w", i, err)
		}
		log.Info().Int64("conversation_id", id).Str("title", *sample.Title).Msg("Generated sample conversation")
	}
	return nil
}

func sampleMessages(start time.Time, contents ...string) []conversations.MessageDTO {
	msgs := make([]conversations.MessageDTO, len(contents))
	for i, content := range contents {
		sender := repo.SenderUser
		if i%2 == 1 {
			sender = repo.SenderAI
		}
		msgs[i] = conversations.MessageDTO{
			Content:   content,
			Sender:    sender,
			Timestamp: start.Add(time.Duration(i) * time.Minute),
		}
	}
	return msgs
}

func stringPtr(s string) *string {
	return &s
}

func timePtr(t time.Time) *time.Time {
	return &t
}
