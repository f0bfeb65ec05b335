package pricing

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	pkgerrors "github.com/threst22/pinnaclestore/pkg/errors"
)

// Service applies the global inflation percentage to catalog prices.
//
// Effective price is round(base * (1 + inflation/100)), rounded half away
// from zero, floored at zero. Recomputing is idempotent because the base
// price never changes.
type Service interface {
	PriceFor(basePricePoints int, inflationPercent decimal.Decimal) int
	RepriceAll(ctx context.Context, tx *gorm.DB, inflationPercent decimal.Decimal) (int64, error)
}

type service struct {
	repo Repository
}

// NewService wires pricing dependencies.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "pricing repository required")
	}
	return &service{repo: repo}, nil
}

var one = decimal.NewFromInt(1)
var hundred = decimal.NewFromInt(100)

func (s *service) PriceFor(basePricePoints int, inflationPercent decimal.Decimal) int {
	multiplier := one.Add(inflationPercent.Div(hundred))
	price := decimal.NewFromInt(int64(basePricePoints)).Mul(multiplier).Round(0)
	if price.IsNegative() {
		return 0
	}
	return int(price.IntPart())
}

// RepriceAll rewrites every catalog row's effective price from its base
// price. Runs inside the caller's transaction so the settings update and the
// fan-out land together.
func (s *service) RepriceAll(ctx context.Context, tx *gorm.DB, inflationPercent decimal.Decimal) (int64, error) {
	repo := s.repo.WithTx(tx)

	items, err := repo.ListAll(ctx)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list catalog items")
	}

	var updated int64
	for _, item := range items {
		price := s.PriceFor(item.BasePricePoints, inflationPercent)
		if price == item.PricePoints {
			continue
		}
		if err := repo.UpdatePrice(ctx, item.ID, price); err != nil {
			return updated, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update item price")
		}
		updated++
	}
	return updated, nil
}
