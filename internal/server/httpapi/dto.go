package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/toolmeter/internal/common"
	"github.com/dmitrijs2005/toolmeter/internal/server/models"
	"github.com/dmitrijs2005/toolmeter/internal/server/services"
)

const maxBodyBytes = 1 << 20

var errEmptyBody = fmt.Errorf("%w: request body is required", common.ErrorValidation)

// decodeJSON reads a single JSON object from the body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return fmt.Errorf("%w: malformed JSON body", common.ErrorValidation)
	}
	return nil
}

type accountDTO struct {
	ID                    string     `json:"id"`
	Username              string     `json:"username"`
	Email                 string     `json:"email"`
	Role                  string     `json:"role"`
	Plan                  string     `json:"plan"`
	Active                bool       `json:"active"`
	MessageAllowance      int64      `json:"messageAllowance"`
	EmailAllowance        int64      `json:"emailAllowance"`
	SubscriptionStartedAt *time.Time `json:"subscriptionStartedAt,omitempty"`
	ExpiresAt             *time.Time `json:"expiresAt,omitempty"`
	CreatedAt             time.Time  `json:"createdAt"`
}

func toAccountDTO(a *models.Account) accountDTO {
	return accountDTO{
		ID:                    a.ID,
		Username:              a.Username,
		Email:                 a.Email,
		Role:                  string(a.Role),
		Plan:                  string(a.Plan),
		Active:                a.Active,
		MessageAllowance:      a.MessageAllowance,
		EmailAllowance:        a.SendAllowance,
		SubscriptionStartedAt: a.SubscriptionStartedAt,
		ExpiresAt:             a.ExpiresAt,
		CreatedAt:             a.CreatedAt,
	}
}

type entitlementDTO struct {
	Plan                  string     `json:"plan"`
	MessageAllowance      int64      `json:"messageAllowance"`
	EmailAllowance        int64      `json:"emailAllowance"`
	SubscriptionStartedAt *time.Time `json:"subscriptionStartedAt,omitempty"`
	ExpiresAt             *time.Time `json:"expiresAt,omitempty"`
	Expired               bool       `json:"expired"`
}

func toEntitlementDTO(e *services.Entitlement) entitlementDTO {
	return entitlementDTO{
		Plan:                  string(e.Plan),
		MessageAllowance:      e.MessageAllowance,
		EmailAllowance:        e.SendAllowance,
		SubscriptionStartedAt: e.SubscriptionStartedAt,
		ExpiresAt:             e.ExpiresAt,
		Expired:               e.Expired,
	}
}

type sessionDTO struct {
	User         *accountDTO `json:"user,omitempty"`
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
}

func toSessionDTO(a *models.Account, pair *services.TokenPair) sessionDTO {
	out := sessionDTO{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}
	if a != nil {
		u := toAccountDTO(a)
		out.User = &u
	}
	return out
}
