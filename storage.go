package agentruntime

import (
	"context"
	"time"
)

type TurnStatus string

const (
	TurnRunning   TurnStatus = "running"
	TurnDone      TurnStatus = "done"
	TurnFailed    TurnStatus = "failed"
	TurnCancelled TurnStatus = "cancelled"
)

// Conversation is the journal record of one turn. The journal is write-only from the runtime's
// point of view; session history is never rebuilt from it.
type Conversation struct {
	ID               string `gorm:"primaryKey;size:36"`
	SessionID        string `gorm:"index;size:64;not null"`
	UserMessage      string
	AssistantMessage string
	Status           TurnStatus `gorm:"size:16;not null"`
	Error            string
	ErrorType        string `gorm:"size:32"`
	Rounds           int
	InputTokens      int64
	OutputTokens     int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ConversationUpdate is what FinishConversation writes once a turn terminates.
type ConversationUpdate struct {
	AssistantMessage string
	Status           TurnStatus
	Error            string
	ErrorType        string
	Rounds           int
	Usage            Usage
}

type Storage interface {
	CreateConversation(ctx context.Context, conv *Conversation) error
	FinishConversation(ctx context.Context, turnID string, update ConversationUpdate) error
	GetConversations(ctx context.Context, sessionID string, limit int, offset int) ([]Conversation, error)
	Close() error
}
