package notifications

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/threst22/pinnaclestore/pkg/db/models"
	"github.com/threst22/pinnaclestore/pkg/enums"
	pkgerrors "github.com/threst22/pinnaclestore/pkg/errors"
)

// Poster is the write-only surface other services use to deliver messages.
type Poster interface {
	Post(ctx context.Context, tx *gorm.DB, accountID uuid.UUID, kind enums.NotificationKind, message string) error
}

// Service defines mailbox operations.
type Service interface {
	Poster
	List(ctx context.Context, accountID uuid.UUID) (*ListResult, error)
	MarkAllRead(ctx context.Context, accountID uuid.UUID) (int64, error)
}

type service struct {
	repo       Repository
	mailboxCap int
}

// ListResult wraps the mailbox contents and the unread count.
type ListResult struct {
	Items  []models.Notification `json:"items"`
	Unread int64                 `json:"unread"`
}

// NewService wires mailbox dependencies.
func NewService(repo Repository, mailboxCap int) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	if mailboxCap <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "mailbox cap must be positive")
	}
	return &service{repo: repo, mailboxCap: mailboxCap}, nil
}

// Post appends a message to the account mailbox and evicts the oldest rows
// past the cap inside the same transaction.
func (s *service) Post(ctx context.Context, tx *gorm.DB, accountID uuid.UUID, kind enums.NotificationKind, message string) error {
	if accountID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	if !kind.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid notification kind")
	}
	if strings.TrimSpace(message) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "message required")
	}

	repo := s.repo.WithTx(tx)
	notification := &models.Notification{
		AccountID: accountID,
		Kind:      kind,
		Message:   message,
	}
	if err := repo.Create(ctx, notification); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create notification")
	}
	if _, err := repo.TrimToCap(ctx, accountID, s.mailboxCap); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "trim mailbox")
	}
	return nil
}

func (s *service) List(ctx context.Context, accountID uuid.UUID) (*ListResult, error) {
	if accountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}

	rows, err := s.repo.List(ctx, accountID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}
	unread, err := s.repo.UnreadCount(ctx, accountID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count unread notifications")
	}
	return &ListResult{Items: rows, Unread: unread}, nil
}

func (s *service) MarkAllRead(ctx context.Context, accountID uuid.UUID) (int64, error) {
	if accountID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}

	count, err := s.repo.MarkAllRead(ctx, accountID, time.Now().UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	return count, nil
}
