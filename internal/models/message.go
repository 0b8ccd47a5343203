package models

// ChatRole identifies who authored a chat message in the view.
type ChatRole string

const (
	ChatRoleUser ChatRole = "user"
	ChatRoleAI   ChatRole = "ai"
)

// ChatMessage is a single entry of the chat window. Messages are never persisted locally.
type ChatMessage struct {
	Role      ChatRole `json:"role"`
	Text      string   `json:"text"`
	Timestamp string   `json:"timestamp,omitempty"`
}
