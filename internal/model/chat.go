package model

import "time"

type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

// ChatMessage is one raw transcript turn. Rows are append-only; they are
// the ground truth memory chunks are distilled from and expanded back into.
type ChatMessage struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"userId"`
	SessionID string    `db:"session_id" json:"sessionId"`
	Role      ChatRole  `db:"role" json:"role"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

type CreateChatMessageParams struct {
	UserID    string
	SessionID string
	Role      ChatRole
	Content   string
}
