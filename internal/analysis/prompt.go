package analysis

import (
	"strings"

	"github.com/omharigupta/datasynth/internal/domain"
)

// SystemPrompt frames every oracle call.
const SystemPrompt = `You are a business analyst assistant. Your job is to:
1. Extract business understanding, objectives, and constraints from conversations
2. Ask clarifying questions to build a complete picture
3. Summarize business requirements clearly

When analyzing scraped data, focus only on business-relevant information.

Always respond with valid JSON in this format:
{
    "response": "your message to the user",
    "knowledge_update": {
        "business_understanding": ["point 1", "point 2"],
        "objectives": ["objective 1"],
        "constraints": ["constraint 1"],
        "summary": "brief summary"
    }
}`

// BuildPrompt renders the user-side prompt: optional context block, the last
// HistoryLimit messages and the request itself.
func BuildPrompt(req Request) string {
	var b strings.Builder
	if ctx := strings.TrimSpace(req.Context); ctx != "" {
		b.WriteString("Context from knowledge base: ")
		b.WriteString(ctx)
		b.WriteString("\n\n")
	}

	b.WriteString("Conversation history:\n")
	for _, m := range domain.RecentMessages(req.History, HistoryLimit) {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteByte('\n')
	}

	b.WriteString("\nUser: ")
	b.WriteString(req.Prompt)
	b.WriteString("\n\nPlease analyze and respond with valid JSON.")
	return b.String()
}
