package accounts

import (
	"context"
	"encoding/csv"
	stdErrors "errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/threst22/pinnaclestore/pkg/config"
	"github.com/threst22/pinnaclestore/pkg/db"
	"github.com/threst22/pinnaclestore/pkg/db/models"
	"github.com/threst22/pinnaclestore/pkg/enums"
	pkgerrors "github.com/threst22/pinnaclestore/pkg/errors"
	"github.com/threst22/pinnaclestore/pkg/logger"
	"github.com/threst22/pinnaclestore/pkg/security"
)

const tempPasswordLength = 12

// ProvisionInput creates a new account. When Password is empty a temporary
// credential is generated and the account is flagged for a forced change.
type ProvisionInput struct {
	Username string
	Name     string
	Password string
	Role     enums.AccountRole
}

// ProvisionResult returns the created account plus the temporary password,
// set only when one was generated. It is shown once and never stored.
type ProvisionResult struct {
	Account      *models.Account `json:"account"`
	TempPassword string          `json:"temp_password,omitempty"`
}

// GrantImportResult summarizes a bulk points upload.
type GrantImportResult struct {
	Applied int      `json:"applied"`
	Errors  []string `json:"errors,omitempty"`
}

// Service owns provisioning, profile edits, and grant increments.
type Service interface {
	Provision(ctx context.Context, input ProvisionInput) (*ProvisionResult, error)
	Get(ctx context.Context, accountID uuid.UUID) (*models.Account, error)
	GetByUsername(ctx context.Context, username string) (*models.Account, error)
	UpdateName(ctx context.Context, accountID uuid.UUID, name string) error
	SetPassword(ctx context.Context, accountID uuid.UUID, password string, requireChange bool) error
	ResetPassword(ctx context.Context, accountID uuid.UUID) (string, error)
	GrantPoints(ctx context.Context, accountID uuid.UUID, points int) (*models.Account, error)
	ImportGrantsCSV(ctx context.Context, reader io.Reader) (*GrantImportResult, error)
	Roster(ctx context.Context) ([]models.Account, error)
	Leaderboard(ctx context.Context, limit int) ([]models.Account, error)
}

type service struct {
	repo     Repository
	password config.PasswordConfig
	logg     *logger.Logger
}

// NewService wires account dependencies.
func NewService(repo Repository, passwordCfg config.PasswordConfig, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "accounts repository required")
	}
	return &service{repo: repo, password: passwordCfg, logg: logg}, nil
}

func (s *service) Provision(ctx context.Context, input ProvisionInput) (*ProvisionResult, error) {
	username := strings.TrimSpace(strings.ToLower(input.Username))
	if username == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "username required")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = username
	}
	role := input.Role
	if role == "" {
		role = enums.AccountRoleEmployee
	}
	if !role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid role")
	}

	password := input.Password
	tempPassword := ""
	requireChange := false
	if password == "" {
		generated, err := security.GenerateTempPassword(tempPasswordLength)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate temp password")
		}
		password = generated
		tempPassword = generated
		requireChange = true
	}

	hash, err := security.HashPassword(password, s.password)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	account := &models.Account{
		Username:              username,
		Name:                  name,
		PasswordHash:          hash,
		Role:                  role,
		RequirePasswordChange: requireChange,
	}
	if err := s.repo.Create(ctx, account); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "username already taken")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create account")
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{"account_id": account.ID.String(), "role": string(role)})
		s.logg.Info(logCtx, "account provisioned")
	}
	return &ProvisionResult{Account: account, TempPassword: tempPassword}, nil
}

func (s *service) Get(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	if accountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	account, err := s.repo.Get(ctx, accountID)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load account")
	}
	return account, nil
}

func (s *service) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	username = strings.TrimSpace(strings.ToLower(username))
	if username == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "username required")
	}
	account, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load account")
	}
	return account, nil
}

func (s *service) UpdateName(ctx context.Context, accountID uuid.UUID, name string) error {
	if accountID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "name required")
	}

	updated, err := s.repo.UpdateName(ctx, accountID, name)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update name")
	}
	if !updated {
		return pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
	}
	return nil
}

func (s *service) SetPassword(ctx context.Context, accountID uuid.UUID, password string, requireChange bool) error {
	if accountID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	if len(password) < 8 {
		return pkgerrors.New(pkgerrors.CodeValidation, "password must be at least 8 characters")
	}

	hash, err := security.HashPassword(password, s.password)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}
	updated, err := s.repo.UpdatePassword(ctx, accountID, hash, requireChange)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update password")
	}
	if !updated {
		return pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
	}
	return nil
}

// ResetPassword issues a one-time temporary credential and forces a change
// on next login.
func (s *service) ResetPassword(ctx context.Context, accountID uuid.UUID) (string, error) {
	if accountID == uuid.Nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}

	tempPassword, err := security.GenerateTempPassword(tempPasswordLength)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate temp password")
	}
	hash, err := security.HashPassword(tempPassword, s.password)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash temp password")
	}

	updated, err := s.repo.UpdatePassword(ctx, accountID, hash, true)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update password")
	}
	if !updated {
		return "", pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithAccountID(ctx, accountID.String()), "password reset issued")
	}
	return tempPassword, nil
}

// GrantPoints applies a plain balance increment. Grants do not go through
// the purchase engine because no stock or cost is involved.
func (s *service) GrantPoints(ctx context.Context, accountID uuid.UUID, points int) (*models.Account, error) {
	if accountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	if points <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "points must be positive")
	}

	granted, err := s.repo.GrantPoints(ctx, accountID, points)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "grant points")
	}
	if !granted {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
	}
	return s.Get(ctx, accountID)
}

// ImportGrantsCSV ingests rows of username,points as plain balance
// increments. Bad rows are reported and skipped.
func (s *service) ImportGrantsCSV(ctx context.Context, reader io.Reader) (*GrantImportResult, error) {
	if reader == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "upload body required")
	}

	parser := csv.NewReader(reader)
	parser.FieldsPerRecord = -1
	parser.TrimLeadingSpace = true

	result := &GrantImportResult{}
	rowNum := 0
	for {
		record, err := parser.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse csv")
		}
		rowNum++
		if rowNum == 1 && isGrantHeader(record) {
			continue
		}

		if len(record) < 2 {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: expected username, points", rowNum))
			continue
		}
		points, err := strconv.Atoi(strings.TrimSpace(record[1]))
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: points %q is not a number", rowNum, record[1]))
			continue
		}

		account, err := s.GetByUsername(ctx, record[0])
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", rowNum, err))
			continue
		}
		if _, err := s.GrantPoints(ctx, account.ID, points); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", rowNum, err))
			continue
		}
		result.Applied++
	}
	return result, nil
}

func (s *service) Roster(ctx context.Context) ([]models.Account, error) {
	accounts, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list accounts")
	}
	return accounts, nil
}

func (s *service) Leaderboard(ctx context.Context, limit int) ([]models.Account, error) {
	accounts, err := s.repo.Leaderboard(ctx, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load leaderboard")
	}
	return accounts, nil
}

func isGrantHeader(record []string) bool {
	if len(record) == 0 {
		return false
	}
	first := strings.ToLower(strings.TrimSpace(record[0]))
	return first == "username" || first == "account" || first == "employee"
}
