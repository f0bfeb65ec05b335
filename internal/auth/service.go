package auth

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/threst22/pinnaclestore/internal/accounts"
	pkgauth "github.com/threst22/pinnaclestore/pkg/auth"
	"github.com/threst22/pinnaclestore/pkg/auth/session"
	"github.com/threst22/pinnaclestore/pkg/config"
	"github.com/threst22/pinnaclestore/pkg/db/models"
	pkgerrors "github.com/threst22/pinnaclestore/pkg/errors"
	"github.com/threst22/pinnaclestore/pkg/logger"
	"github.com/threst22/pinnaclestore/pkg/security"
)

// LoginInput carries the credentials presented at login.
type LoginInput struct {
	Username string
	Password string
}

// LoginResult returns the minted token and the authenticated account. The
// RequirePasswordChange flag tells the client to force a credential change
// before doing anything else.
type LoginResult struct {
	Token                 string          `json:"token"`
	Account               *models.Account `json:"account"`
	RequirePasswordChange bool            `json:"require_password_change"`
}

// Service owns login, logout, and credential changes.
type Service interface {
	Login(ctx context.Context, input LoginInput) (*LoginResult, error)
	Logout(ctx context.Context, accessID string) error
	ChangePassword(ctx context.Context, accountID uuid.UUID, current, next string) error
}

// SessionStore is the session surface the auth flow needs. Implemented by
// the Redis-backed session manager.
type SessionStore interface {
	Create(ctx context.Context, accessID, accountID string) error
	Revoke(ctx context.Context, accessID string) error
}

type service struct {
	accounts accounts.Service
	sessions SessionStore
	jwt      config.JWTConfig
	logg     *logger.Logger
}

// NewService wires auth dependencies.
func NewService(accountsSvc accounts.Service, sessions SessionStore, jwtCfg config.JWTConfig, logg *logger.Logger) (Service, error) {
	if accountsSvc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "accounts service required")
	}
	if sessions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "session manager required")
	}
	return &service{accounts: accountsSvc, sessions: sessions, jwt: jwtCfg, logg: logg}, nil
}

func (s *service) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	if strings.TrimSpace(input.Username) == "" || input.Password == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "username and password required")
	}

	account, err := s.accounts.GetByUsername(ctx, input.Username)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")
		}
		return nil, err
	}

	ok, err := security.VerifyPassword(input.Password, account.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid credentials")
	}

	accessID := session.NewAccessID()
	token, err := pkgauth.MintAccessToken(s.jwt, time.Now().UTC(), pkgauth.AccessTokenPayload{
		AccountID: account.ID,
		Role:      account.Role,
		JTI:       accessID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint access token")
	}
	if err := s.sessions.Create(ctx, accessID, account.ID.String()); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create session")
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithAccountID(ctx, account.ID.String()), "login succeeded")
	}
	return &LoginResult{
		Token:                 token,
		Account:               account,
		RequirePasswordChange: account.RequirePasswordChange,
	}, nil
}

func (s *service) Logout(ctx context.Context, accessID string) error {
	if strings.TrimSpace(accessID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "access id required")
	}
	if err := s.sessions.Revoke(ctx, accessID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke session")
	}
	return nil
}

// ChangePassword verifies the current credential before writing the new one
// and clears the forced-change flag.
func (s *service) ChangePassword(ctx context.Context, accountID uuid.UUID, current, next string) error {
	if accountID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}

	account, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return err
	}

	ok, err := security.VerifyPassword(current, account.PasswordHash)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "current password is incorrect")
	}

	return s.accounts.SetPassword(ctx, accountID, next, false)
}
