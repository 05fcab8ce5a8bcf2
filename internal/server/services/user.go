package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/toolmeter/internal/common"
	"github.com/dmitrijs2005/toolmeter/internal/dbx"
	"github.com/dmitrijs2005/toolmeter/internal/server/auth"
	"github.com/dmitrijs2005/toolmeter/internal/server/config"
	"github.com/dmitrijs2005/toolmeter/internal/server/models"
	"github.com/dmitrijs2005/toolmeter/internal/server/repositories/repomanager"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9]{6,32}$`)

const minPasswordLength = 8

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// UserService handles registration, login and token rotation.
type UserService struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	jwtSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
	signupMessageAllowance       int64
	signupSendAllowance          int64
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config) *UserService {
	return &UserService{
		db:                           db,
		repomanager:                  m,
		jwtSecret:                    []byte(cfg.SecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
		signupMessageAllowance:       cfg.SignupMessageAllowance,
		signupSendAllowance:          cfg.SignupSendAllowance,
	}
}

// Register creates a regular account with the signup allowances and logs it in.
func (s *UserService) Register(ctx context.Context, username, email, password string) (*models.Account, *TokenPair, error) {
	account, err := s.newAccount(username, email, password, models.RoleUser)
	if err != nil {
		return nil, nil, err
	}

	var pair *TokenPair
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.repomanager.Accounts(tx).Create(ctx, account); err != nil {
			return err
		}
		var genErr error
		pair, genErr = s.generateTokenPair(ctx, account, tx)
		return genErr
	})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("error creating account: %w", err)
	}
	return account, pair, nil
}

// CreateAccount inserts an account with the given role without issuing tokens.
func (s *UserService) CreateAccount(ctx context.Context, username, email, password string, role models.Role) (*models.Account, error) {
	if role != models.RoleUser && role != models.RoleAdmin {
		return nil, fmt.Errorf("%w: unknown role %q", common.ErrorValidation, role)
	}
	account, err := s.newAccount(username, email, password, role)
	if err != nil {
		return nil, err
	}
	if _, err := s.repomanager.Accounts(s.db).Create(ctx, account); err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("error creating account: %w", err)
	}
	return account, nil
}

func (s *UserService) newAccount(username, email, password string, role models.Role) (*models.Account, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))

	if !usernamePattern.MatchString(username) {
		return nil, fmt.Errorf("%w: username must be 6 to 32 letters or digits", common.ErrorValidation)
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, fmt.Errorf("%w: invalid email address", common.ErrorValidation)
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", common.ErrorValidation, minPasswordLength)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	return &models.Account{
		ID:               uuid.NewString(),
		Username:         username,
		Email:            email,
		PasswordHash:     hash,
		Role:             role,
		Plan:             models.PlanFree,
		Active:           true,
		MessageAllowance: s.signupMessageAllowance,
		SendAllowance:    s.signupSendAllowance,
	}, nil
}

var (
	dummyHashOnce sync.Once
	dummyHash     string
)

// burnPasswordCheck runs one bcrypt comparison against a dummy hash.
func burnPasswordCheck(password string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = auth.HashPassword("toolmeter-dummy-password")
	})
	_, _ = auth.CheckPassword(dummyHash, password)
}

// Login accepts either the email or the username as login.
func (s *UserService) Login(ctx context.Context, login, password string) (*models.Account, *TokenPair, error) {
	login = strings.TrimSpace(login)
	if strings.Contains(login, "@") {
		login = strings.ToLower(login)
	}

	account, err := s.repomanager.Accounts(s.db).GetByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			burnPasswordCheck(password)
			return nil, nil, common.ErrorUnauthorized
		}
		return nil, nil, common.ErrorInternal
	}

	ok, err := auth.CheckPassword(account.PasswordHash, password)
	if err != nil {
		return nil, nil, common.ErrorInternal
	}
	if !ok || !account.Active {
		return nil, nil, common.ErrorUnauthorized
	}

	pair, err := s.generateTokenPair(ctx, account, s.db)
	if err != nil {
		return nil, nil, err
	}
	return account, pair, nil
}

// RefreshToken validates a refresh token, rotates it transactionally, and
// returns a fresh TokenPair. Expired tokens yield ErrRefreshTokenExpired.
func (s *UserService) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	token, err := s.repomanager.RefreshTokens(s.db).Find(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("error searching refresh token: %w", err)
	}
	if token.Expires.Before(time.Now()) {
		return nil, common.ErrRefreshTokenExpired
	}

	account, err := s.repomanager.Accounts(s.db).GetByID(ctx, token.AccountID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("error loading account: %w", err)
	}
	if !account.Active {
		return nil, common.ErrorUnauthorized
	}

	var pair *TokenPair
	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.RefreshTokens(tx).Delete(ctx, refreshToken); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				// Rotated by a concurrent call since Find.
				return common.ErrorUnauthorized
			}
			return fmt.Errorf("error deleting refresh token: %w", err)
		}
		var genErr error
		pair, genErr = s.generateTokenPair(ctx, account, tx)
		return genErr
	}); err != nil {
		return nil, err
	}
	return pair, nil
}

// ChangePassword replaces the account's password after checking the current
// one and revokes every refresh token of the account in the same transaction.
func (s *UserService) ChangePassword(ctx context.Context, accountID, current, next string) error {
	account, err := s.repomanager.Accounts(s.db).GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorUnauthorized
		}
		return fmt.Errorf("error loading account: %w", err)
	}

	ok, err := auth.CheckPassword(account.PasswordHash, current)
	if err != nil {
		return common.ErrorInternal
	}
	if !ok {
		return common.ErrorUnauthorized
	}
	if len(next) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", common.ErrorValidation, minPasswordLength)
	}

	hash, err := auth.HashPassword(next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Accounts(tx).UpdatePassword(ctx, accountID, hash); err != nil {
			return fmt.Errorf("error updating password: %w", err)
		}
		if err := s.repomanager.RefreshTokens(tx).DeleteForAccount(ctx, accountID); err != nil {
			return fmt.Errorf("error revoking refresh tokens: %w", err)
		}
		return nil
	})
}

// Logout revokes every refresh token of the account. Access tokens stay
// valid until they expire.
func (s *UserService) Logout(ctx context.Context, accountID string) error {
	if err := s.repomanager.RefreshTokens(s.db).DeleteForAccount(ctx, accountID); err != nil {
		return fmt.Errorf("error revoking refresh tokens: %w", err)
	}
	return nil
}

// Account returns the account by id.
func (s *UserService) Account(ctx context.Context, accountID string) (*models.Account, error) {
	return s.repomanager.Accounts(s.db).GetByID(ctx, accountID)
}

// Lookup resolves an account id, email or username.
func (s *UserService) Lookup(ctx context.Context, ref string) (*models.Account, error) {
	ref = strings.TrimSpace(ref)
	if _, err := uuid.Parse(ref); err == nil {
		return s.Account(ctx, ref)
	}
	if strings.Contains(ref, "@") {
		ref = strings.ToLower(ref)
	}
	return s.repomanager.Accounts(s.db).GetByLogin(ctx, ref)
}

func (s *UserService) generateTokenPair(ctx context.Context, account *models.Account, tx dbx.DBTX) (*TokenPair, error) {
	access, err := auth.GenerateToken(account.ID, string(account.Role), s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return nil, common.ErrorInternal
	}
	refresh, err := common.MakeRandHexString(32)
	if err != nil {
		return nil, common.ErrorInternal
	}
	if err := s.repomanager.RefreshTokens(tx).Create(ctx, account.ID, refresh, s.refreshTokenValidityDuration); err != nil {
		return nil, common.ErrorInternal
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
