package approvals

import (
	"context"
	stdErrors "errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/threst22/pinnaclestore/internal/notifications"
	"github.com/threst22/pinnaclestore/internal/purchase"
	"github.com/threst22/pinnaclestore/pkg/db/models"
	"github.com/threst22/pinnaclestore/pkg/enums"
	pkgerrors "github.com/threst22/pinnaclestore/pkg/errors"
	"github.com/threst22/pinnaclestore/pkg/logger"
	"github.com/threst22/pinnaclestore/pkg/types"
)

// ResolutionStatus is the terminal outcome of resolving a request.
type ResolutionStatus string

const (
	ResolutionApproved ResolutionStatus = "approved"
	ResolutionDenied   ResolutionStatus = "denied"
)

// Resolution reports how a pending request was resolved. A failed approval
// resolves as a denial rather than an error: the request is consumed either
// way and the requester is notified.
type Resolution struct {
	Status       ResolutionStatus  `json:"status"`
	Reason       string            `json:"reason,omitempty"`
	PriceChanged bool              `json:"price_changed,omitempty"`
	Receipt      *purchase.Receipt `json:"receipt,omitempty"`
}

// Service manages the pending request queue.
type Service interface {
	Submit(ctx context.Context, accountID uuid.UUID, lines []purchase.Line) (*models.PurchaseRequest, error)
	Approve(ctx context.Context, requestID uuid.UUID) (*Resolution, error)
	Deny(ctx context.Context, requestID uuid.UUID) error
	ListPending(ctx context.Context) ([]models.PurchaseRequest, error)
	ListForAccount(ctx context.Context, accountID uuid.UUID) ([]models.PurchaseRequest, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	repo    Repository
	engine  purchase.Engine
	mailbox notifications.Poster
	tx      txRunner
	logg    *logger.Logger
}

// NewService wires approval workflow dependencies.
func NewService(repo Repository, engine purchase.Engine, mailbox notifications.Poster, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "approvals repository required")
	}
	if engine == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "purchase engine required")
	}
	if mailbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notification poster required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	return &service{repo: repo, engine: engine, mailbox: mailbox, tx: tx, logg: logg}, nil
}

// Submit snapshots the cart at current catalog prices and enqueues it.
// Affordability and stock are checked here for early feedback only; the
// authoritative check happens again at approval time.
func (s *service) Submit(ctx context.Context, accountID uuid.UUID, lines []purchase.Line) (*models.PurchaseRequest, error) {
	if accountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	for _, line := range lines {
		if line.ItemID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id required")
		}
		if line.Quantity < 1 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
		}
	}

	account, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load account")
	}

	snapshot, total, err := s.snapshotLines(ctx, purchase.MergeLines(lines))
	if err != nil {
		return nil, err
	}
	if account.PointsBalance < total {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientPoints,
			fmt.Sprintf("balance %d does not cover %d points", account.PointsBalance, total))
	}

	raw, err := types.MarshalLines(snapshot)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "snapshot cart lines")
	}

	request := &models.PurchaseRequest{
		AccountID:   account.ID,
		AccountName: account.Name,
		Lines:       raw,
		TotalPoints: total,
	}
	if err := s.repo.Create(ctx, request); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create purchase request")
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"request_id":   request.ID.String(),
			"account_id":   account.ID.String(),
			"total_points": total,
		})
		s.logg.Info(logCtx, "purchase request submitted")
	}
	return request, nil
}

// Approve consumes the request and runs the purchase engine against current
// catalog state. The engine runs inside a savepoint: a business failure rolls
// back its mutations while the deletion and the denial notification commit,
// so a failed approval is an automatic denial, never a retryable pending
// state. The guarded delete is the double-resolution guard.
func (s *service) Approve(ctx context.Context, requestID uuid.UUID) (*Resolution, error) {
	if requestID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request id required")
	}

	var resolution *Resolution
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		request, err := s.consumeRequest(ctx, repo, requestID)
		if err != nil {
			return err
		}

		lines, err := types.UnmarshalLines(request.Lines)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode request lines")
		}
		input := purchase.ExecuteInput{
			AccountID:  request.AccountID,
			Lines:      toEngineLines(lines),
			IsApproval: true,
		}

		var receipt *purchase.Receipt
		engineErr := tx.Transaction(func(inner *gorm.DB) error {
			got, execErr := s.engine.ExecuteTx(ctx, inner, input)
			if execErr != nil {
				return execErr
			}
			receipt = got
			return nil
		})
		if engineErr != nil {
			if !isBusinessFailure(engineErr) {
				return engineErr
			}
			reason := denialReason(engineErr)
			message := fmt.Sprintf("Request denied: %s. %s", describeRequest(lines), reason)
			if err := s.mailbox.Post(ctx, tx, request.AccountID, enums.NotificationKindError, message); err != nil {
				return err
			}
			resolution = &Resolution{Status: ResolutionDenied, Reason: reason}
			return nil
		}

		priceChanged := receipt.TotalPoints != request.TotalPoints
		if priceChanged {
			message := fmt.Sprintf("Heads up: prices changed since you submitted. Charged %d points instead of %d.",
				receipt.TotalPoints, request.TotalPoints)
			if err := s.mailbox.Post(ctx, tx, request.AccountID, enums.NotificationKindWarning, message); err != nil {
				return err
			}
		}

		resolution = &Resolution{
			Status:       ResolutionApproved,
			PriceChanged: priceChanged,
			Receipt:      receipt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"request_id": requestID.String(),
			"status":     string(resolution.Status),
		})
		s.logg.Info(logCtx, "purchase request resolved")
	}
	return resolution, nil
}

// Deny consumes the request and notifies the requester. No balance or stock
// change.
func (s *service) Deny(ctx context.Context, requestID uuid.UUID) error {
	if requestID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "request id required")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		request, err := s.consumeRequest(ctx, repo, requestID)
		if err != nil {
			return err
		}

		lines, err := types.UnmarshalLines(request.Lines)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode request lines")
		}
		message := fmt.Sprintf("Request denied: %s.", describeRequest(lines))
		return s.mailbox.Post(ctx, tx, request.AccountID, enums.NotificationKindError, message)
	})
}

func (s *service) ListPending(ctx context.Context) ([]models.PurchaseRequest, error) {
	requests, err := s.repo.ListPending(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending requests")
	}
	return requests, nil
}

func (s *service) ListForAccount(ctx context.Context, accountID uuid.UUID) ([]models.PurchaseRequest, error) {
	if accountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	requests, err := s.repo.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list account requests")
	}
	return requests, nil
}

// consumeRequest loads the row and performs the guarded delete. Losing the
// delete race means another admin already resolved it.
func (s *service) consumeRequest(ctx context.Context, repo Repository, requestID uuid.UUID) (*models.PurchaseRequest, error) {
	request, err := repo.Get(ctx, requestID)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "request already resolved or does not exist")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load purchase request")
	}

	deleted, err := repo.DeleteIfExists(ctx, requestID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete purchase request")
	}
	if !deleted {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "request already resolved")
	}
	return request, nil
}

func (s *service) snapshotLines(ctx context.Context, requested []purchase.Line) ([]types.CartLineSnapshot, int, error) {
	ids := make([]uuid.UUID, 0, len(requested))
	for _, line := range requested {
		ids = append(ids, line.ItemID)
	}

	items, err := s.repo.GetItems(ctx, ids)
	if err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load catalog items")
	}
	byID := make(map[uuid.UUID]models.CatalogItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	snapshot := make([]types.CartLineSnapshot, 0, len(requested))
	total := 0
	for _, line := range requested {
		item, ok := byID[line.ItemID]
		if !ok {
			return nil, 0, pkgerrors.New(pkgerrors.CodeNotFound, "catalog item not found").
				WithDetails(map[string]any{"item_id": line.ItemID})
		}
		if item.Stock < line.Quantity {
			return nil, 0, pkgerrors.New(pkgerrors.CodeInsufficientStock,
				fmt.Sprintf("not enough stock for %s", item.Name))
		}
		snapshot = append(snapshot, types.CartLineSnapshot{
			ItemID:    item.ID,
			Name:      item.Name,
			UnitPrice: item.PricePoints,
			Quantity:  line.Quantity,
		})
		total += item.PricePoints * line.Quantity
	}
	return snapshot, total, nil
}

func toEngineLines(snapshot []types.CartLineSnapshot) []purchase.Line {
	lines := make([]purchase.Line, 0, len(snapshot))
	for _, line := range snapshot {
		lines = append(lines, purchase.Line{ItemID: line.ItemID, Quantity: line.Quantity})
	}
	return lines
}

func isBusinessFailure(err error) bool {
	return pkgerrors.HasCode(err, pkgerrors.CodeInsufficientPoints) ||
		pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock) ||
		pkgerrors.HasCode(err, pkgerrors.CodeNotFound)
}

func denialReason(err error) string {
	switch {
	case pkgerrors.HasCode(err, pkgerrors.CodeInsufficientPoints):
		return "Not enough points at approval time."
	case pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock):
		return "Not enough stock at approval time."
	default:
		return "Items are no longer available."
	}
}

func describeRequest(lines []types.CartLineSnapshot) string {
	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		parts = append(parts, fmt.Sprintf("%s x%d", line.Name, line.Quantity))
	}
	if len(parts) == 0 {
		return "your request"
	}
	return strings.Join(parts, ", ")
}
