package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/toolmeter/internal/common"
	"github.com/dmitrijs2005/toolmeter/internal/server/models"
)

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	list, err := s.ledger.ListAccounts(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]accountDTO, 0, len(list))
	for _, a := range list {
		out = append(out, toAccountDTO(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": out})
}

type resetRequest struct {
	Kind string `json:"kind"`
}

// handleResetLimits accepts an empty body, meaning both counters.
func (s *Server) handleResetLimits(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		s.writeError(w, r, err)
		return
	}
	scope, err := models.ParseAllowanceScope(req.Kind)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", common.ErrorValidation, err))
		return
	}

	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: account %q", common.ErrorNotFound, id))
		return
	}
	acc, err := s.ledger.ResetAllowances(r.Context(), id, scope)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.Info(r.Context(), "admin reset allowances", "admin_id", accountIDFrom(r.Context()), "account_id", id)
	writeJSON(w, http.StatusOK, toAccountDTO(acc))
}
