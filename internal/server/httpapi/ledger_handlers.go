package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/toolmeter/internal/common"
	"github.com/dmitrijs2005/toolmeter/internal/server/models"
)

type consumeRequest struct {
	Kind string `json:"kind"`
}

type consumeResponse struct {
	Kind      models.AllowanceKind `json:"kind"`
	Allowance int64                `json:"allowance"`
	Plan      string               `json:"plan"`
}

func (s *Server) handleConsume(w http.ResponseWriter, r *http.Request) {
	var req consumeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	kind, err := models.ParseAllowanceKind(req.Kind)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", common.ErrorValidation, err))
		return
	}

	acc, err := s.ledger.CheckAndConsume(r.Context(), accountIDFrom(r.Context()), kind)
	if err != nil {
		if errors.Is(err, common.ErrLimitExceeded) {
			writeLimitExceeded(w, kind)
			return
		}
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, consumeResponse{Kind: kind, Allowance: acc.Allowance(kind), Plan: string(acc.Plan)})
}

func (s *Server) handleLimits(w http.ResponseWriter, r *http.Request) {
	ent, err := s.ledger.Entitlement(r.Context(), accountIDFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntitlementDTO(ent))
}
