package conversations

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"conversation-system/internal/repo"
)

// Export formats
const (
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
	FormatPDF      = "pdf"
)

const exportTimeLayout = "2006-01-02 15:04:05.999999-07:00"

// ExportFile is a rendered conversation ready to download
type ExportFile struct {
	ContentType string
	Filename    string
	Body        []byte
}

// Export renders a conversation as a downloadable file. An empty format means json.
func (s *ConversationService) Export(ctx context.Context, id int64, format string) (ExportFile, error) {
	if format == "" {
		format = FormatJSON
	}
	switch format {
	case FormatJSON, FormatMarkdown:
	case FormatPDF:
		return ExportFile{}, fmt.Errorf("pdf export: %w", ErrNotImplemented)
	default:
		return ExportFile{}, fmt.Errorf("%q: %w", format, ErrInvalidFormat)
	}

	c, err := s.repo.GetConversation(ctx, id)
	if err != nil {
		return ExportFile{}, err
	}
	msgs, err := s.repo.ListMessages(ctx, id, 0)
	if err != nil {
		return ExportFile{}, err
	}

	if format == FormatMarkdown {
		return ExportFile{
			ContentType: "text/markdown",
			Filename:    fmt.Sprintf("conversation_%d.md", id),
			Body:        []byte(renderMarkdown(c, msgs)),
		}, nil
	}

	body, err := json.MarshalIndent(toDetailDTO(c, msgs), "", "  ")
	if err != nil {
		return ExportFile{}, fmt.Errorf("failed to encode conversation %d: %w", id, err)
	}
	return ExportFile{
		ContentType: "application/json",
		Filename:    fmt.Sprintf("conversation_%d.json", id),
		Body:        body,
	}, nil
}

func renderMarkdown(c repo.Conversation, msgs []repo.Message) string {
	var b strings.Builder

	title := "Untitled Conversation"
	if c.Title != nil && *c.Title != "" {
		title = *c.Title
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "**Status:** %s\n", c.Status)
	fmt.Fprintf(&b, "**Started:** %s\n", formatExportTime(c.StartTimestamp))
	if c.EndTimestamp != nil {
		fmt.Fprintf(&b, "**Ended:** %s\n", formatExportTime(*c.EndTimestamp))
	}

	if c.Summary != "" {
		fmt.Fprintf(&b, "\n## Summary\n\n%s\n", c.Summary)
	}
	if len(c.KeyTopics) > 0 {
		b.WriteString("\n## Key Topics\n\n")
		for _, topic := range c.KeyTopics {
			fmt.Fprintf(&b, "- %s\n", topic)
		}
	}

	b.WriteString("\n## Messages\n\n")
	for _, m := range msgs {
		speaker := "AI"
		if m.Sender == repo.SenderUser {
			speaker = "You"
		}
		fmt.Fprintf(&b, "**%s:** %s\n\n", speaker, m.Content)
	}
	return b.String()
}

func formatExportTime(t time.Time) string {
	return t.UTC().Format(exportTimeLayout)
}
