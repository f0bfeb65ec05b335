package purchase

import (
	"context"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/threst22/pinnaclestore/internal/notifications"
	"github.com/threst22/pinnaclestore/pkg/config"
	"github.com/threst22/pinnaclestore/pkg/db"
	"github.com/threst22/pinnaclestore/pkg/db/models"
	"github.com/threst22/pinnaclestore/pkg/enums"
	pkgerrors "github.com/threst22/pinnaclestore/pkg/errors"
	"github.com/threst22/pinnaclestore/pkg/logger"
	"github.com/threst22/pinnaclestore/pkg/metrics"
	"github.com/threst22/pinnaclestore/pkg/pagination"
	"github.com/threst22/pinnaclestore/pkg/types"
)

// Line is one requested item and quantity. Prices are never accepted from
// the caller; the engine reads them from the catalog at execution time.
type Line struct {
	ItemID   uuid.UUID
	Quantity int
}

// ExecuteInput describes one purchase to apply.
type ExecuteInput struct {
	AccountID uuid.UUID
	Lines     []Line
	// IsApproval posts a success notification to the buyer, used when the
	// purchase resolves an approval request rather than a direct checkout.
	IsApproval bool
}

// Receipt reports the applied purchase.
type Receipt struct {
	NewBalance  int                      `json:"new_balance"`
	TotalPoints int                      `json:"total_points"`
	Lines       []types.CartLineSnapshot `json:"lines"`
}

// HistoryPage is one slice of the global purchase log. NextCursor is empty
// on the last page.
type HistoryPage struct {
	Records    []models.PurchaseHistoryRecord `json:"records"`
	NextCursor string                         `json:"next_cursor,omitempty"`
}

// Engine is the only path that debits balances and decrements stock.
type Engine interface {
	Execute(ctx context.Context, input ExecuteInput) (*Receipt, error)
	ExecuteTx(ctx context.Context, tx *gorm.DB, input ExecuteInput) (*Receipt, error)
	HistoryPage(ctx context.Context, params pagination.Params) (*HistoryPage, error)
	HistoryForAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]models.PurchaseHistoryRecord, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	repo         Repository
	tx           txRunner
	mailbox      notifications.Poster
	metrics      *metrics.PurchaseMetrics
	logg         *logger.Logger
	historyCap   int
	maxRetries   int
	retryBackoff time.Duration
}

// NewService wires the purchase engine dependencies.
func NewService(
	repo Repository,
	tx txRunner,
	mailbox notifications.Poster,
	purchaseMetrics *metrics.PurchaseMetrics,
	logg *logger.Logger,
	cfg config.RewardsConfig,
) (Engine, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "purchase repository required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	if mailbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notification poster required")
	}
	if cfg.PurchaseRetryBackoff <= 0 {
		cfg.PurchaseRetryBackoff = 50 * time.Millisecond
	}
	return &service{
		repo:         repo,
		tx:           tx,
		mailbox:      mailbox,
		metrics:      purchaseMetrics,
		logg:         logg,
		historyCap:   cfg.HistoryCap,
		maxRetries:   cfg.PurchaseMaxRetries,
		retryBackoff: cfg.PurchaseRetryBackoff,
	}, nil
}

// Execute runs one purchase in its own transaction, retrying a bounded
// number of times when the database reports serialization contention.
func (s *service) Execute(ctx context.Context, input ExecuteInput) (*Receipt, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	backoff := retry.WithMaxRetries(uint64(s.maxRetries), retry.NewConstant(s.retryBackoff))

	var receipt *Receipt
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		txErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			got, execErr := s.ExecuteTx(ctx, tx, input)
			if execErr != nil {
				return execErr
			}
			receipt = got
			return nil
		})
		if txErr != nil && db.IsSerializationFailure(txErr) {
			return retry.RetryableError(txErr)
		}
		return txErr
	})
	if err != nil {
		if db.IsSerializationFailure(err) {
			s.metrics.IncOutcome("conflict")
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "purchase retries exhausted")
		}
		return nil, err
	}
	return receipt, nil
}

// ExecuteTx applies the purchase inside the caller's transaction. All writes
// ride on guarded conditional updates so either every mutation lands or the
// surrounding transaction rolls back.
func (s *service) ExecuteTx(ctx context.Context, tx *gorm.DB, input ExecuteInput) (*Receipt, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	repo := s.repo.WithTx(tx)

	account, err := repo.GetAccount(ctx, input.AccountID)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load account")
	}

	lines, total, err := s.snapshotLines(ctx, repo, MergeLines(input.Lines))
	if err != nil {
		return nil, err
	}

	// Balance first so an unaffordable cart reports insufficient points even
	// when stock would also have run short.
	debited, err := repo.DebitBalance(ctx, input.AccountID, total)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "debit balance")
	}
	if !debited {
		s.metrics.IncOutcome("insufficient_points")
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientPoints,
			fmt.Sprintf("balance %d does not cover %d points", account.PointsBalance, total)).
			WithDetails(map[string]any{"total_points": total})
	}

	for _, line := range lines {
		decremented, err := repo.DecrementStock(ctx, line.ItemID, line.Quantity)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement stock")
		}
		if !decremented {
			s.metrics.IncOutcome("insufficient_stock")
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock,
				fmt.Sprintf("not enough stock for %s", line.Name)).
				WithDetails(map[string]any{"item_id": line.ItemID, "item_name": line.Name})
		}
	}

	raw, err := types.MarshalLines(lines)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "snapshot cart lines")
	}
	record := &models.PurchaseHistoryRecord{
		AccountID:   account.ID,
		AccountName: account.Name,
		Lines:       raw,
		TotalPoints: total,
	}
	if err := repo.CreateHistory(ctx, record); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append history")
	}
	if _, err := repo.TrimHistory(ctx, s.historyCap); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "trim history")
	}

	if input.IsApproval {
		message := fmt.Sprintf("Purchase approved: %s (%d points)", describeLines(lines), total)
		if err := s.mailbox.Post(ctx, tx, account.ID, enums.NotificationKindSuccess, message); err != nil {
			return nil, err
		}
	}

	// Re-read inside the transaction so the receipt reflects the debit just
	// applied, not the pre-transaction snapshot.
	updated, err := repo.GetAccount(ctx, input.AccountID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload account")
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"account_id":   account.ID.String(),
			"total_points": total,
			"line_count":   len(lines),
		})
		s.logg.Info(logCtx, "purchase applied")
	}
	s.metrics.IncOutcome("success")
	s.metrics.ObserveSpent(total)

	return &Receipt{
		NewBalance:  updated.PointsBalance,
		TotalPoints: total,
		Lines:       lines,
	}, nil
}

// HistoryPage walks the global log newest first using a keyset cursor, so
// pages stay stable while new purchases land.
func (s *service) HistoryPage(ctx context.Context, params pagination.Params) (*HistoryPage, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid history cursor")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	records, err := s.repo.ListHistoryPage(ctx, cursor, limit+1)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list history")
	}

	page := &HistoryPage{Records: records}
	if len(records) > limit {
		page.Records = records[:limit]
		last := page.Records[limit-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}
	return page, nil
}

func (s *service) HistoryForAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]models.PurchaseHistoryRecord, error) {
	if accountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	records, err := s.repo.ListHistoryByAccount(ctx, accountID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list account history")
	}
	return records, nil
}

// snapshotLines resolves every requested item against the live catalog and
// freezes name and current price for the audit record.
func (s *service) snapshotLines(ctx context.Context, repo Repository, requested []Line) ([]types.CartLineSnapshot, int, error) {
	ids := make([]uuid.UUID, 0, len(requested))
	for _, line := range requested {
		ids = append(ids, line.ItemID)
	}

	items, err := repo.GetItems(ctx, ids)
	if err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load catalog items")
	}
	byID := make(map[uuid.UUID]models.CatalogItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	lines := make([]types.CartLineSnapshot, 0, len(requested))
	total := 0
	for _, line := range requested {
		item, ok := byID[line.ItemID]
		if !ok {
			return nil, 0, pkgerrors.New(pkgerrors.CodeNotFound, "catalog item not found").
				WithDetails(map[string]any{"item_id": line.ItemID})
		}
		lines = append(lines, types.CartLineSnapshot{
			ItemID:    item.ID,
			Name:      item.Name,
			UnitPrice: item.PricePoints,
			Quantity:  line.Quantity,
		})
		total += item.PricePoints * line.Quantity
	}
	return lines, total, nil
}

func validateInput(input ExecuteInput) error {
	if input.AccountID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	if len(input.Lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	for _, line := range input.Lines {
		if line.ItemID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "item id required")
		}
		if line.Quantity < 1 {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
		}
	}
	return nil
}

// MergeLines combines repeated lines for the same item into one, summing
// quantities and preserving first-seen order.
func MergeLines(lines []Line) []Line {
	merged := make([]Line, 0, len(lines))
	index := make(map[uuid.UUID]int, len(lines))
	for _, line := range lines {
		if at, ok := index[line.ItemID]; ok {
			merged[at].Quantity += line.Quantity
			continue
		}
		index[line.ItemID] = len(merged)
		merged = append(merged, line)
	}
	return merged
}

func describeLines(lines []types.CartLineSnapshot) string {
	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		parts = append(parts, fmt.Sprintf("%s x%d", line.Name, line.Quantity))
	}
	return strings.Join(parts, ", ")
}
