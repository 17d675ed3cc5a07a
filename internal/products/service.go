package products

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/shopcart-backend/internal/policy"
	"github.com/angelmondragon/shopcart-backend/pkg/db"
	"github.com/angelmondragon/shopcart-backend/pkg/db/models"
	"github.com/angelmondragon/shopcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopcart-backend/pkg/errors"
	"github.com/angelmondragon/shopcart-backend/pkg/logger"
	"github.com/angelmondragon/shopcart-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service exposes admin catalog management.
type Service interface {
	List(ctx context.Context, principal policy.Principal, params pagination.Params) (pagination.Page[models.Product], error)
	Get(ctx context.Context, principal policy.Principal, id uuid.UUID) (*models.Product, error)
	Create(ctx context.Context, principal policy.Principal, input CreateProductInput) (*models.Product, error)
	Update(ctx context.Context, principal policy.Principal, id uuid.UUID, input UpdateProductInput) (*models.Product, error)
	Delete(ctx context.Context, principal policy.Principal, id uuid.UUID) error
}

// CreateProductInput holds the validated payload to create a product.
type CreateProductInput struct {
	Name          string
	Description   *string
	Price         decimal.Decimal
	StockQuantity int
}

// UpdateProductInput holds optional mutation values for a product.
type UpdateProductInput struct {
	Name          *string
	Description   *string
	Price         *decimal.Decimal
	StockQuantity *int
}

// catalogVersioner invalidates cached cart views whose totals depend on prices.
type catalogVersioner interface {
	BumpCatalogVersion(ctx context.Context) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	repo     *Repository
	tx       txRunner
	policy   policy.Policy
	versions catalogVersioner
	logg     *logger.Logger
}

var _ txRunner = (*db.Client)(nil)

// NewService constructs the admin product service.
func NewService(repo *Repository, tx txRunner, pol policy.Policy, versions catalogVersioner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("db client required")
	}
	if pol == nil {
		return nil, fmt.Errorf("policy required")
	}
	if versions == nil {
		return nil, fmt.Errorf("catalog versioner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, tx: tx, policy: pol, versions: versions, logg: logg}, nil
}

func (s *service) List(ctx context.Context, principal policy.Principal, params pagination.Params) (pagination.Page[models.Product], error) {
	if !s.policy.HasRole(principal, enums.UserRoleAdmin) {
		return pagination.Page[models.Product]{}, pkgerrors.New(pkgerrors.CodeForbidden, "Unauthorized to view products")
	}
	rows, total, err := s.repo.List(ctx, params)
	if err != nil {
		return pagination.Page[models.Product]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list products")
	}
	return pagination.NewPage(rows, params, total), nil
}

func (s *service) Get(ctx context.Context, principal policy.Principal, id uuid.UUID) (*models.Product, error) {
	if !s.policy.HasRole(principal, enums.UserRoleAdmin) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "Unauthorized to view products")
	}
	product, err := s.repo.FindProduct(ctx, id, false)
	if err != nil {
		return nil, mapProductErr(err, "load product")
	}
	return product, nil
}

func (s *service) Create(ctx context.Context, principal policy.Principal, input CreateProductInput) (*models.Product, error) {
	if !s.policy.HasRole(principal, enums.UserRoleAdmin) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "Unauthorized to create product")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if err := validatePrice(input.Price); err != nil {
		return nil, err
	}
	if err := validateStock(input.StockQuantity); err != nil {
		return nil, err
	}

	product := &models.Product{
		Name:          name,
		Description:   input.Description,
		Price:         input.Price.Round(2),
		StockQuantity: input.StockQuantity,
	}
	if err := s.repo.Create(ctx, product); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create product")
	}
	return product, nil
}

func (s *service) Update(ctx context.Context, principal policy.Principal, id uuid.UUID, input UpdateProductInput) (*models.Product, error) {
	if !s.policy.HasRole(principal, enums.UserRoleAdmin) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "Unauthorized to update product")
	}
	if input.Name != nil && strings.TrimSpace(*input.Name) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name cannot be empty")
	}
	if input.Price != nil {
		if err := validatePrice(*input.Price); err != nil {
			return nil, err
		}
	}
	if input.StockQuantity != nil {
		if err := validateStock(*input.StockQuantity); err != nil {
			return nil, err
		}
	}

	var updated *models.Product
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		product, err := repo.LockProductForUpdate(ctx, id, false)
		if err != nil {
			return mapProductErr(err, "lock product")
		}
		applyUpdate(product, input)
		if err := repo.Save(ctx, product); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save product")
		}
		updated = product
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.bumpCatalog(ctx)
	return updated, nil
}

func (s *service) Delete(ctx context.Context, principal policy.Principal, id uuid.UUID) error {
	if !s.policy.HasRole(principal, enums.UserRoleAdmin) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "Unauthorized to delete product")
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return mapProductErr(err, "delete product")
	}
	s.bumpCatalog(ctx)
	return nil
}

// bumpCatalog is best effort; a failure leaves cached carts stale until
// their TTL expires.
func (s *service) bumpCatalog(ctx context.Context) {
	if err := s.versions.BumpCatalogVersion(ctx); err != nil {
		s.logg.Error(ctx, "products.catalog_version_bump_failed", err)
	}
}

func applyUpdate(product *models.Product, input UpdateProductInput) {
	if input.Name != nil {
		product.Name = strings.TrimSpace(*input.Name)
	}
	if input.Description != nil {
		product.Description = input.Description
	}
	if input.Price != nil {
		product.Price = input.Price.Round(2)
	}
	if input.StockQuantity != nil {
		product.StockQuantity = *input.StockQuantity
	}
}

func validatePrice(price decimal.Decimal) error {
	if price.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "price must be non-negative")
	}
	return nil
}

func validateStock(stock int) error {
	if stock < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "stock_quantity must be non-negative")
	}
	return nil
}

func mapProductErr(err error, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "Product not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, op)
}
