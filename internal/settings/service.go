package settings

import (
	"context"
	stdErrors "errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/threst22/pinnaclestore/internal/pricing"
	"github.com/threst22/pinnaclestore/pkg/db/models"
	"github.com/threst22/pinnaclestore/pkg/enums"
	pkgerrors "github.com/threst22/pinnaclestore/pkg/errors"
	"github.com/threst22/pinnaclestore/pkg/logger"
)

// UpdateInput patches the singleton settings row. ExpectedVersion must match
// the version the caller last read. Nil fields are left alone.
type UpdateInput struct {
	Theme            *enums.Theme
	LogoURL          *string
	InflationPercent *decimal.Decimal
	ExpectedVersion  int
}

// Service owns the global settings record and fans inflation changes out to
// the pricing engine.
type Service interface {
	Get(ctx context.Context) (*models.GlobalSettings, error)
	Update(ctx context.Context, input UpdateInput) (*models.GlobalSettings, error)
	InflationPercent(ctx context.Context) (decimal.Decimal, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	repo    Repository
	pricing pricing.Service
	tx      txRunner
	logg    *logger.Logger
}

// NewService wires settings dependencies and seeds the singleton row.
func NewService(ctx context.Context, repo Repository, pricingSvc pricing.Service, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "settings repository required")
	}
	if pricingSvc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "pricing service required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	if err := repo.EnsureDefault(ctx); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "seed settings row")
	}
	return &service{repo: repo, pricing: pricingSvc, tx: tx, logg: logg}, nil
}

func (s *service) Get(ctx context.Context) (*models.GlobalSettings, error) {
	settings, err := s.repo.Get(ctx)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "settings row missing")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load settings")
	}
	return settings, nil
}

// Update applies the patch behind a version guard. When the inflation
// percent changes, every catalog price is recomputed in the same transaction
// so readers never observe a mixed state.
func (s *service) Update(ctx context.Context, input UpdateInput) (*models.GlobalSettings, error) {
	if input.ExpectedVersion <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "expected version required")
	}
	if input.Theme != nil && !input.Theme.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid theme")
	}
	if input.InflationPercent != nil && input.InflationPercent.LessThan(decimal.NewFromInt(-100)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "inflation percent must be at least -100")
	}

	var updated *models.GlobalSettings
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		current, err := repo.Get(ctx)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load settings")
		}

		next := *current
		if input.Theme != nil {
			next.Theme = *input.Theme
		}
		if input.LogoURL != nil {
			next.LogoURL = *input.LogoURL
		}
		inflationChanged := false
		if input.InflationPercent != nil && !input.InflationPercent.Equal(current.InflationPercent) {
			next.InflationPercent = *input.InflationPercent
			inflationChanged = true
		}

		ok, err := repo.UpdateVersioned(ctx, &next, input.ExpectedVersion)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update settings")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "settings changed since last read")
		}

		if inflationChanged {
			if _, err := s.pricing.RepriceAll(ctx, tx, next.InflationPercent); err != nil {
				return err
			}
		}

		next.Version = input.ExpectedVersion + 1
		updated = &next
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithField(ctx, "version", updated.Version)
		s.logg.Info(logCtx, "settings updated")
	}
	return updated, nil
}

func (s *service) InflationPercent(ctx context.Context) (decimal.Decimal, error) {
	settings, err := s.Get(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return settings.InflationPercent, nil
}
