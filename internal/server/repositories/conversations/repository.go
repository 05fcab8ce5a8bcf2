// Package conversations stores tool chat threads and their messages. Every
// lookup is scoped to the owning account and tool.
package conversations

import (
	"context"

	"github.com/dmitrijs2005/toolmeter/internal/server/models"
)

type Repository interface {
	// Create inserts the conversation and fills its timestamps.
	Create(ctx context.Context, c *models.Conversation) (*models.Conversation, error)

	// Get returns common.ErrorNotFound unless the conversation exists and
	// belongs to accountID and tool.
	Get(ctx context.Context, accountID, tool, id string) (*models.Conversation, error)

	// ListByAccount returns the account's conversations with tool, most
	// recently active first. Messages are not loaded.
	ListByAccount(ctx context.Context, accountID, tool string) ([]*models.Conversation, error)

	// AddMessage appends m and bumps the conversation's updated_at.
	AddMessage(ctx context.Context, m *models.Message) (*models.Message, error)

	// Messages returns the last limit messages in chronological order; limit <= 0 means all.
	Messages(ctx context.Context, conversationID string, limit int) ([]*models.Message, error)
}
