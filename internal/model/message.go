package model

import "time"

// MessageRole identifies the speaker of a transcript message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is one transcript entry. Both the text and voice modalities
// append here so a single progress model covers both surfaces. QuestionID
// is empty for free-form voice utterances that wander off the script.
type Message struct {
	ID         string      `json:"id"`
	ForgeID    string      `json:"forge_id"`
	QuestionID string      `json:"question_id,omitempty"`
	Role       MessageRole `json:"role"`
	Content    string      `json:"content"`
	CreatedAt  time.Time   `json:"created_at"`
}
