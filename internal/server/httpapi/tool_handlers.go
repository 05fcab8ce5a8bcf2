package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/toolmeter/internal/common"
	"github.com/dmitrijs2005/toolmeter/internal/server/models"
)

type toolDTO struct {
	Name  string               `json:"name"`
	Title string               `json:"title"`
	Kind  models.AllowanceKind `json:"kind"`
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	list := s.tools.Tools()
	out := make([]toolDTO, 0, len(list))
	for _, t := range list {
		out = append(out, toolDTO{Name: t.Name, Title: t.Title, Kind: t.Kind})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": out})
}

type generateRequest struct {
	ChatID string `json:"chatId"`
	Prompt string `json:"prompt"`
}

type generateResponse struct {
	Tool      string               `json:"tool"`
	ChatID    string               `json:"chatId"`
	Output    string               `json:"output"`
	Model     string               `json:"model,omitempty"`
	Kind      models.AllowanceKind `json:"kind"`
	Allowance int64                `json:"allowance"`
	Plan      string               `json:"plan"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	name := r.PathValue("tool")

	gen, err := s.tools.Generate(r.Context(), accountIDFrom(r.Context()), name, req.ChatID, req.Prompt)
	if err != nil {
		if errors.Is(err, common.ErrLimitExceeded) {
			kind := models.AllowanceMessage
			for _, t := range s.tools.Tools() {
				if t.Name == name {
					kind = t.Kind
				}
			}
			writeLimitExceeded(w, kind)
			return
		}
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, generateResponse{
		Tool:      gen.Tool,
		ChatID:    gen.ConversationID,
		Output:    gen.Output,
		Model:     gen.Model,
		Kind:      gen.Kind,
		Allowance: gen.Allowance,
		Plan:      string(gen.Plan),
	})
}

type messageDTO struct {
	ID        int64     `json:"id"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

type chatDTO struct {
	ID        string       `json:"id"`
	Tool      string       `json:"tool"`
	Title     string       `json:"title"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
	Messages  []messageDTO `json:"messages,omitempty"`
}

func toChatDTO(c *models.Conversation) chatDTO {
	out := chatDTO{
		ID:        c.ID,
		Tool:      c.Tool,
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	for _, m := range c.Messages {
		out.Messages = append(out.Messages, messageDTO{
			ID:        m.ID,
			Sender:    string(m.Sender),
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	return out
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	list, err := s.tools.Conversations(r.Context(), accountIDFrom(r.Context()), r.PathValue("tool"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]chatDTO, 0, len(list))
	for _, c := range list {
		out = append(out, toChatDTO(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"chats": out})
}

func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	chat, err := s.tools.Conversation(r.Context(), accountIDFrom(r.Context()), r.PathValue("tool"), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toChatDTO(chat))
}
