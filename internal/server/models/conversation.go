package models

import "time"

type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Conversation is one chat thread of an account with a single tool.
// Messages is only filled when the thread is loaded in full.
type Conversation struct {
	ID        string
	AccountID string
	Tool      string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
	Messages  []*Message
}

type Message struct {
	ID             int64
	ConversationID string
	Sender         Sender
	Content        string
	CreatedAt      time.Time
}
