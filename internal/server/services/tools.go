package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/toolmeter/internal/common"
	"github.com/dmitrijs2005/toolmeter/internal/dbx"
	"github.com/dmitrijs2005/toolmeter/internal/logging"
	"github.com/dmitrijs2005/toolmeter/internal/server/completion"
	"github.com/dmitrijs2005/toolmeter/internal/server/metrics"
	"github.com/dmitrijs2005/toolmeter/internal/server/models"
	"github.com/dmitrijs2005/toolmeter/internal/server/repositories/repomanager"
)

const (
	// MaxPromptLength bounds the user prompt in characters.
	MaxPromptLength = 20000
	// historyLimit is how many earlier messages of a conversation are sent
	// back to the model.
	historyLimit = 20
	titleLength  = 80
)

// Completer produces text for a chat-style request.
type Completer interface {
	Complete(ctx context.Context, req completion.Request) (*completion.Response, error)
}

// Tool is one metered generation endpoint.
type Tool struct {
	Name         string
	Title        string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
	Kind         models.AllowanceKind
}

// DefaultTools is the built-in tool catalog.
func DefaultTools() []Tool {
	return []Tool{
		{
			Name:         "mail-merge",
			Title:        "Mail Merge",
			SystemPrompt: "You are a senior email copywriter. Write a personalised email for the recipient described by the user. Keep it concise and professional.",
			Temperature:  0.3,
			MaxTokens:    1024,
			Kind:         models.AllowanceSend,
		},
		{
			Name:         "caption-rewriter",
			Title:        "Caption Rewriter",
			SystemPrompt: "You are an expert at rewriting and improving social media captions.",
			Temperature:  0.7,
			MaxTokens:    512,
			Kind:         models.AllowanceMessage,
		},
		{
			Name:         "caption-pro",
			Title:        "Caption Pro",
			SystemPrompt: "You are an expert social media content creator.",
			Temperature:  0.7,
			MaxTokens:    512,
			Kind:         models.AllowanceMessage,
		},
		{
			Name:         "ad-caption",
			Title:        "Ad Caption Generator",
			SystemPrompt: "You are an expert ad copywriter focused on conversion.",
			Temperature:  0.7,
			MaxTokens:    512,
			Kind:         models.AllowanceMessage,
		},
		{
			Name:         "hashtag",
			Title:        "Hashtag Generator",
			SystemPrompt: "You are an expert hashtag strategist.",
			Temperature:  0.5,
			MaxTokens:    256,
			Kind:         models.AllowanceMessage,
		},
		{
			Name:         "excel-formula",
			Title:        "Excel Formula Helper",
			SystemPrompt: "You are an expert in Microsoft Excel formulas. Provide clear, concise explanations and formulas.",
			Temperature:  0.2,
			MaxTokens:    1024,
			Kind:         models.AllowanceMessage,
		},
		{
			Name:         "pdf-chat",
			Title:        "PDF Chat",
			SystemPrompt: "You are a helpful assistant for answering questions about PDF documents.",
			Temperature:  0.3,
			MaxTokens:    1024,
			Kind:         models.AllowanceMessage,
		},
	}
}

// Generation is the result of a metered tool call.
type Generation struct {
	Tool           string
	ConversationID string
	Output         string
	Model          string
	Kind           models.AllowanceKind
	Allowance      int64
	Plan           models.Plan
}

// ToolService runs tools. The allowance is consumed only after the
// completion succeeded.
type ToolService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	ledger      *LedgerService
	completer   Completer
	tools       map[string]Tool
	log         logging.Logger
}

func NewToolService(db *sql.DB, m repomanager.RepositoryManager, ledger *LedgerService, completer Completer,
	tools []Tool, log logging.Logger) *ToolService {
	byName := make(map[string]Tool, len(tools))
	for _, t := range tools {
		byName[t.Name] = t
	}
	return &ToolService{
		db:          db,
		repomanager: m,
		ledger:      ledger,
		completer:   completer,
		tools:       byName,
		log:         log,
	}
}

// Tools lists the catalog sorted by name.
func (s *ToolService) Tools() []Tool {
	out := make([]Tool, 0, len(s.tools))
	for _, t := range s.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Generate runs toolName on prompt for the account. An empty conversationID
// starts a new conversation; otherwise it must name one of the account's
// conversations with the same tool. The prompt and the output are stored in
// the transaction that consumes the allowance.
func (s *ToolService) Generate(ctx context.Context, accountID, toolName, conversationID, prompt string) (*Generation, error) {
	tool, ok := s.tools[toolName]
	if !ok {
		return nil, fmt.Errorf("%w: unknown tool %q", common.ErrorNotFound, toolName)
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, fmt.Errorf("%w: prompt is required", common.ErrorValidation)
	}
	if utf8.RuneCountInString(prompt) > MaxPromptLength {
		return nil, fmt.Errorf("%w: prompt exceeds %d characters", common.ErrorValidation, MaxPromptLength)
	}

	account, err := s.repomanager.Accounts(s.db).GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.Allowance(tool.Kind) <= 0 {
		metrics.ToolGenerations.WithLabelValues(tool.Name, "limit_exceeded").Inc()
		return nil, common.ErrLimitExceeded
	}

	var (
		conv    *models.Conversation
		history []*models.Message
	)
	if conversationID != "" {
		repo := s.repomanager.Conversations(s.db)
		conv, err = repo.Get(ctx, accountID, tool.Name, conversationID)
		if err != nil {
			return nil, err
		}
		history, err = repo.Messages(ctx, conv.ID, historyLimit)
		if err != nil {
			return nil, err
		}
	}

	start := time.Now()
	resp, err := s.completer.Complete(ctx, completion.Request{
		Messages:    chatMessages(tool.SystemPrompt, history, prompt),
		Temperature: tool.Temperature,
		MaxTokens:   tool.MaxTokens,
	})
	if err != nil {
		outcome := "error"
		if errors.Is(err, completion.ErrTimeout) {
			outcome = "timeout"
		}
		metrics.CompletionDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
		metrics.ToolGenerations.WithLabelValues(tool.Name, outcome).Inc()
		s.log.Error(ctx, "completion failed", "tool", tool.Name, "account_id", accountID, "error", err)
		return nil, common.ErrorInternal
	}
	metrics.CompletionDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		acc, err := s.ledger.ConsumeIn(ctx, tx, accountID, tool.Kind)
		if err != nil {
			return err
		}
		account = acc

		repo := s.repomanager.Conversations(tx)
		if conv == nil {
			conv, err = repo.Create(ctx, &models.Conversation{
				ID:        uuid.NewString(),
				AccountID: accountID,
				Tool:      tool.Name,
				Title:     titleOf(prompt),
			})
			if err != nil {
				return fmt.Errorf("create conversation: %w", err)
			}
		}
		for _, m := range []*models.Message{
			{ConversationID: conv.ID, Sender: models.SenderUser, Content: prompt},
			{ConversationID: conv.ID, Sender: models.SenderBot, Content: resp.Response},
		} {
			if _, err := repo.AddMessage(ctx, m); err != nil {
				return fmt.Errorf("store message: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrLimitExceeded) {
			// Another request took the last unit while this one was generating.
			metrics.ToolGenerations.WithLabelValues(tool.Name, "limit_exceeded").Inc()
			return nil, common.ErrLimitExceeded
		}
		metrics.ToolGenerations.WithLabelValues(tool.Name, "error").Inc()
		if errors.Is(err, common.ErrorNotFound) || errors.Is(err, common.ErrorValidation) {
			return nil, err
		}
		s.log.Error(ctx, "generation not recorded", "tool", tool.Name, "account_id", accountID, "error", err)
		return nil, common.ErrorInternal
	}

	metrics.ToolGenerations.WithLabelValues(tool.Name, "ok").Inc()
	return &Generation{
		Tool:           tool.Name,
		ConversationID: conv.ID,
		Output:         resp.Response,
		Model:          resp.Model,
		Kind:           tool.Kind,
		Allowance:      account.Allowance(tool.Kind),
		Plan:           account.Plan,
	}, nil
}

// Conversations lists the account's conversations with toolName, most
// recently updated first.
func (s *ToolService) Conversations(ctx context.Context, accountID, toolName string) ([]*models.Conversation, error) {
	if _, ok := s.tools[toolName]; !ok {
		return nil, fmt.Errorf("%w: unknown tool %q", common.ErrorNotFound, toolName)
	}
	return s.repomanager.Conversations(s.db).ListByAccount(ctx, accountID, toolName)
}

// Conversation returns one of the account's conversations with its messages
// in order. Conversations of other accounts are reported as not found.
func (s *ToolService) Conversation(ctx context.Context, accountID, toolName, id string) (*models.Conversation, error) {
	if _, ok := s.tools[toolName]; !ok {
		return nil, fmt.Errorf("%w: unknown tool %q", common.ErrorNotFound, toolName)
	}
	repo := s.repomanager.Conversations(s.db)
	conv, err := repo.Get(ctx, accountID, toolName, id)
	if err != nil {
		return nil, err
	}
	conv.Messages, err = repo.Messages(ctx, conv.ID, 0)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

func chatMessages(system string, history []*models.Message, prompt string) []completion.Message {
	out := make([]completion.Message, 0, len(history)+2)
	out = append(out, completion.Message{Role: completion.RoleSystem, Content: system})
	for _, m := range history {
		role := completion.RoleUser
		if m.Sender == models.SenderBot {
			role = completion.RoleAssistant
		}
		out = append(out, completion.Message{Role: role, Content: m.Content})
	}
	return append(out, completion.Message{Role: completion.RoleUser, Content: prompt})
}

func titleOf(prompt string) string {
	if utf8.RuneCountInString(prompt) <= titleLength {
		return prompt
	}
	return string([]rune(prompt)[:titleLength])
}
