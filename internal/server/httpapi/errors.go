package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/toolmeter/internal/common"
	"github.com/dmitrijs2005/toolmeter/internal/server/models"
)

type errorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

type errorMapping struct {
	target error
	status int
	code   string
}

// errorMappings is checked in order; the first errors.Is match wins.
var errorMappings = []errorMapping{
	{common.ErrLimitExceeded, http.StatusTooManyRequests, "LimitExceeded"},
	{errRateLimited, http.StatusTooManyRequests, "RateLimited"},
	{common.ErrInvalidSignature, http.StatusBadRequest, "InvalidSignature"},
	{common.ErrOrderNotFound, http.StatusBadRequest, "OrderNotFound"},
	{common.ErrAmountMismatch, http.StatusBadRequest, "AmountMismatch"},
	{common.ErrAlreadyProcessed, http.StatusBadRequest, "AlreadyProcessed"},
	{common.ErrInvalidPlan, http.StatusBadRequest, "InvalidPlan"},
	{common.ErrorValidation, http.StatusBadRequest, "Validation"},
	{common.ErrTokenExpired, http.StatusUnauthorized, "TokenExpired"},
	{common.ErrRefreshTokenExpired, http.StatusUnauthorized, "RefreshTokenExpired"},
	{common.ErrInvalidToken, http.StatusUnauthorized, "InvalidToken"},
	{common.ErrorUnauthorized, http.StatusUnauthorized, "Unauthorized"},
	{common.ErrorForbidden, http.StatusForbidden, "Forbidden"},
	{common.ErrorNotFound, http.StatusNotFound, "NotFound"},
	{common.ErrorAlreadyExists, http.StatusConflict, "AlreadyExists"},
}

func classify(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "Internal"
}

// writeError maps err to a status and JSON body. Unclassified errors are
// logged in full and answered with a generic message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed",
			"request_id", requestIDFrom(r.Context()), "path", r.URL.Path, "error", err)
		writeErrorCode(w, status, code, "internal error")
		return
	}
	writeErrorCode(w, status, code, err.Error())
}

// writeLimitExceeded adds the upgrade prompt for kind.
func writeLimitExceeded(w http.ResponseWriter, kind models.AllowanceKind) {
	writeJSON(w, http.StatusTooManyRequests, errorBody{
		Error:   common.ErrLimitExceeded.Error(),
		Code:    "LimitExceeded",
		Message: fmt.Sprintf("You have reached your %s limit. Please upgrade to continue using the service.", kind),
	})
}

func writeErrorCode(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
