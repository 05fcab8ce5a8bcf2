package conversations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/toolmeter/internal/common"
	"github.com/dmitrijs2005/toolmeter/internal/dbx"
	"github.com/dmitrijs2005/toolmeter/internal/server/models"
)

const conversationColumns = `id, account_id, tool, title, created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, c *models.Conversation) (*models.Conversation, error) {
	query := `
		INSERT INTO conversations (id, account_id, tool, title)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query, c.ID, c.AccountID, c.Tool, c.Title).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) Get(ctx context.Context, accountID, tool, id string) (*models.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1 AND account_id = $2 AND tool = $3`
	c := &models.Conversation{}
	err := r.db.QueryRowContext(ctx, query, id, accountID, tool).
		Scan(&c.ID, &c.AccountID, &c.Tool, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || dbx.IsInvalidText(err) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) ListByAccount(ctx context.Context, accountID, tool string) ([]*models.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations
		WHERE account_id = $1 AND tool = $2
		ORDER BY updated_at DESC`
	rows, err := r.db.QueryContext(ctx, query, accountID, tool)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Conversation, 0)
	for rows.Next() {
		c := &models.Conversation{}
		if err := rows.Scan(&c.ID, &c.AccountID, &c.Tool, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) AddMessage(ctx context.Context, m *models.Message) (*models.Message, error) {
	query := `
		WITH touched AS (
			UPDATE conversations SET updated_at = now() WHERE id = $1
		)
		INSERT INTO messages (conversation_id, sender, content)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	if err := r.db.QueryRowContext(ctx, query, m.ConversationID, m.Sender, m.Content).Scan(&m.ID, &m.CreatedAt); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return m, nil
}

func (r *PostgresRepository) Messages(ctx context.Context, conversationID string, limit int) ([]*models.Message, error) {
	// LIMIT NULL is LIMIT ALL
	var lim any
	if limit > 0 {
		lim = limit
	}
	query := `
		SELECT id, conversation_id, sender, content, created_at FROM (
			SELECT id, conversation_id, sender, content, created_at
			FROM messages
			WHERE conversation_id = $1
			ORDER BY id DESC
			LIMIT $2
		) recent
		ORDER BY id ASC
	`
	rows, err := r.db.QueryContext(ctx, query, conversationID, lim)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Message, 0)
	for rows.Next() {
		m := &models.Message{}
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Sender, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}
