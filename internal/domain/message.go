package domain

// Message roles used in conversation history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// StoredMessage is a serialized chat message entry.
type StoredMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RecentMessages returns at most the last n messages of history.
func RecentMessages(history []StoredMessage, n int) []StoredMessage {
	if n <= 0 || len(history) == 0 {
		return nil
	}
	if n >= len(history) {
		return append([]StoredMessage{}, history...)
	}
	return append([]StoredMessage{}, history[len(history)-n:]...)
}
