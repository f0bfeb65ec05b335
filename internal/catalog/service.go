package catalog

import (
	"context"
	"encoding/csv"
	stdErrors "errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/threst22/pinnaclestore/internal/pricing"
	"github.com/threst22/pinnaclestore/pkg/db/models"
	pkgerrors "github.com/threst22/pinnaclestore/pkg/errors"
	"github.com/threst22/pinnaclestore/pkg/logger"
)

// InflationSource reads the current global inflation percent. Implemented by
// the settings service.
type InflationSource interface {
	InflationPercent(ctx context.Context) (decimal.Decimal, error)
}

// CreateItemInput describes a new catalog listing. The effective price is
// derived, never supplied.
type CreateItemInput struct {
	Name            string
	BasePricePoints int
	Stock           int
	ImageURL        *string
}

// UpdateItemInput patches an existing listing. Nil fields are left alone.
type UpdateItemInput struct {
	Name            *string
	BasePricePoints *int
	Stock           *int
	ImageURL        *string
}

// ImportResult summarizes a bulk CSV upload.
type ImportResult struct {
	Created int      `json:"created"`
	Errors  []string `json:"errors,omitempty"`
}

// Service owns catalog CRUD and the bulk import path.
type Service interface {
	Create(ctx context.Context, input CreateItemInput) (*models.CatalogItem, error)
	Update(ctx context.Context, itemID uuid.UUID, input UpdateItemInput) (*models.CatalogItem, error)
	Delete(ctx context.Context, itemID uuid.UUID) error
	Get(ctx context.Context, itemID uuid.UUID) (*models.CatalogItem, error)
	List(ctx context.Context) ([]models.CatalogItem, error)
	ListInStock(ctx context.Context) ([]models.CatalogItem, error)
	ImportCSV(ctx context.Context, reader io.Reader) (*ImportResult, error)
}

type service struct {
	repo      Repository
	pricing   pricing.Service
	inflation InflationSource
	logg      *logger.Logger
}

// NewService wires catalog dependencies.
func NewService(repo Repository, pricingSvc pricing.Service, inflation InflationSource, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "catalog repository required")
	}
	if pricingSvc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "pricing service required")
	}
	if inflation == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "inflation source required")
	}
	return &service{repo: repo, pricing: pricingSvc, inflation: inflation, logg: logg}, nil
}

func (s *service) Create(ctx context.Context, input CreateItemInput) (*models.CatalogItem, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item name required")
	}
	if input.BasePricePoints < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "base price must not be negative")
	}
	if input.Stock < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stock must not be negative")
	}

	inflation, err := s.inflation.InflationPercent(ctx)
	if err != nil {
		return nil, err
	}

	item := &models.CatalogItem{
		Name:            strings.TrimSpace(input.Name),
		BasePricePoints: input.BasePricePoints,
		PricePoints:     s.pricing.PriceFor(input.BasePricePoints, inflation),
		Stock:           input.Stock,
		ImageURL:        input.ImageURL,
	}
	if err := s.repo.Create(ctx, item); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create catalog item")
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{"item_id": item.ID.String(), "name": item.Name})
		s.logg.Info(logCtx, "catalog item created")
	}
	return item, nil
}

func (s *service) Update(ctx context.Context, itemID uuid.UUID, input UpdateItemInput) (*models.CatalogItem, error) {
	if itemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id required")
	}

	item, err := s.repo.Get(ctx, itemID)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "catalog item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load catalog item")
	}

	if input.Name != nil {
		if strings.TrimSpace(*input.Name) == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item name required")
		}
		item.Name = strings.TrimSpace(*input.Name)
	}
	if input.BasePricePoints != nil {
		if *input.BasePricePoints < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "base price must not be negative")
		}
		item.BasePricePoints = *input.BasePricePoints

		inflation, err := s.inflation.InflationPercent(ctx)
		if err != nil {
			return nil, err
		}
		item.PricePoints = s.pricing.PriceFor(item.BasePricePoints, inflation)
	}
	if input.Stock != nil {
		// Restocking path. Decrements still belong to the purchase engine.
		if *input.Stock < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "stock must not be negative")
		}
		item.Stock = *input.Stock
	}
	if input.ImageURL != nil {
		item.ImageURL = input.ImageURL
	}

	if err := s.repo.Save(ctx, item); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update catalog item")
	}
	return item, nil
}

func (s *service) Delete(ctx context.Context, itemID uuid.UUID) error {
	if itemID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "item id required")
	}
	deleted, err := s.repo.Delete(ctx, itemID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete catalog item")
	}
	if !deleted {
		return pkgerrors.New(pkgerrors.CodeNotFound, "catalog item not found")
	}
	return nil
}

func (s *service) Get(ctx context.Context, itemID uuid.UUID) (*models.CatalogItem, error) {
	if itemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id required")
	}
	item, err := s.repo.Get(ctx, itemID)
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "catalog item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load catalog item")
	}
	return item, nil
}

func (s *service) List(ctx context.Context) ([]models.CatalogItem, error) {
	items, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list catalog items")
	}
	return items, nil
}

func (s *service) ListInStock(ctx context.Context) ([]models.CatalogItem, error) {
	items, err := s.repo.ListInStock(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list in-stock items")
	}
	return items, nil
}

// ImportCSV ingests rows of name,base_price,stock[,image_url] through the
// same creation path as manual entry. Bad rows are reported and skipped, not
// fatal.
func (s *service) ImportCSV(ctx context.Context, reader io.Reader) (*ImportResult, error) {
	if reader == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "upload body required")
	}

	parser := csv.NewReader(reader)
	parser.FieldsPerRecord = -1
	parser.TrimLeadingSpace = true

	result := &ImportResult{}
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
		if rowNum == 1 && isHeaderRow(record) {
			continue
		}

		input, err := parseItemRow(record)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", rowNum, err))
			continue
		}
		if _, err := s.Create(ctx, input); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", rowNum, err))
			continue
		}
		result.Created++
	}
	return result, nil
}

func parseItemRow(record []string) (CreateItemInput, error) {
	if len(record) < 3 {
		return CreateItemInput{}, fmt.Errorf("expected name, base price, stock")
	}

	name := strings.TrimSpace(record[0])
	basePrice, err := strconv.Atoi(strings.TrimSpace(record[1]))
	if err != nil {
		return CreateItemInput{}, fmt.Errorf("base price %q is not a number", record[1])
	}
	stock, err := strconv.Atoi(strings.TrimSpace(record[2]))
	if err != nil {
		return CreateItemInput{}, fmt.Errorf("stock %q is not a number", record[2])
	}

	input := CreateItemInput{Name: name, BasePricePoints: basePrice, Stock: stock}
	if len(record) > 3 {
		if url := strings.TrimSpace(record[3]); url != "" {
			input.ImageURL = &url
		}
	}
	return input, nil
}

func isHeaderRow(record []string) bool {
	if len(record) == 0 {
		return false
	}
	first := strings.ToLower(strings.TrimSpace(record[0]))
	return first == "name" || first == "item" || first == "item_name"
}
