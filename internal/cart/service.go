package cart

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/angelmondragon/shopcart-backend/internal/policy"
	"github.com/angelmondragon/shopcart-backend/internal/products"
	"github.com/angelmondragon/shopcart-backend/pkg/db"
	"github.com/angelmondragon/shopcart-backend/pkg/db/models"
	"github.com/angelmondragon/shopcart-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/shopcart-backend/pkg/errors"
	"github.com/angelmondragon/shopcart-backend/pkg/logger"
	"github.com/angelmondragon/shopcart-backend/pkg/metrics"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	opAdd            = "add"
	opView           = "view"
	opUpdate         = "update"
	opRemove         = "remove"
	opCheckout       = "checkout"
	opViewCheckedOut = "view_checked_out"
)

const (
	msgForbiddenAdd  = "Only users can add to cart"
	msgForbiddenCart = "Unauthorized to access this cart"
	msgCartNotFound  = "No active cart found"
	msgItemNotFound  = "Cart item not found"
	msgProductAbsent = "Product not found"
)

// Service coordinates carts and product stock. Every mutation runs in one
// transaction.
type Service interface {
	AddToCart(ctx context.Context, principal policy.Principal, items []ItemInput) (*CartView, error)
	ViewCart(ctx context.Context, principal policy.Principal) (*CartView, error)
	UpdateCartItem(ctx context.Context, principal policy.Principal, cartID uuid.UUID, items []ItemInput) (*UpdateResult, error)
	RemoveCartItem(ctx context.Context, principal policy.Principal, cartID uuid.UUID, productIDs []uuid.UUID) error
	Checkout(ctx context.Context, principal policy.Principal) (*CheckoutResult, error)
	ViewCheckedOut(ctx context.Context, principal policy.Principal) ([]models.Cart, error)
}

// ItemInput is one requested line.
type ItemInput struct {
	ProductID uuid.UUID
	Quantity  int
}

// CartView is a cart's lines with their total. CartID is nil when the user
// has no active cart.
type CartView struct {
	CartID     *uuid.UUID        `json:"cart_id,omitempty"`
	Items      []models.CartItem `json:"items"`
	TotalPrice decimal.Decimal   `json:"total_price"`
}

// IsEmpty reports whether the view has no lines.
func (v *CartView) IsEmpty() bool {
	return v == nil || len(v.Items) == 0
}

// UpdateResult is returned by UpdateCartItem.
type UpdateResult struct {
	CartItems  []models.CartItem `json:"cart_item"`
	TotalPrice decimal.Decimal   `json:"total_price"`
}

// CheckoutResult is returned by Checkout.
type CheckoutResult struct {
	CartID uuid.UUID         `json:"cart_id"`
	Items  []models.CartItem `json:"items"`
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

var _ txRunner = (*db.Client)(nil)

// Options tunes optional service behaviour.
type Options struct {
	// RemoveClearsCart deletes the whole active cart after a removal,
	// restoring stock for every remaining line first.
	RemoveClearsCart bool
	Cache            CacheStore
	CacheTTL         time.Duration
	Metrics          *metrics.CartMetrics
}

type service struct {
	carts    *Repository
	products *products.Repository
	tx       txRunner
	policy   policy.Policy
	logg     *logger.Logger
	metrics  *metrics.CartMetrics
	cache    *viewCache

	removeClearsCart bool
}

// NewService wires the cart service.
func NewService(carts *Repository, catalog *products.Repository, tx txRunner, pol policy.Policy, logg *logger.Logger, opts Options) (Service, error) {
	if carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("db client required")
	}
	if pol == nil {
		return nil, fmt.Errorf("policy required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		carts:            carts,
		products:         catalog,
		tx:               tx,
		policy:           pol,
		logg:             logg,
		metrics:          opts.Metrics,
		cache:            newViewCache(opts.Cache, opts.CacheTTL, opts.Metrics, logg),
		removeClearsCart: opts.RemoveClearsCart,
	}, nil
}

func (s *service) AddToCart(ctx context.Context, principal policy.Principal, items []ItemInput) (_ *CartView, err error) {
	defer s.observe(opAdd, time.Now(), &err)

	if !s.policy.HasRole(principal, enums.UserRoleUser) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, msgForbiddenAdd)
	}
	if err := validateItems(items); err != nil {
		return nil, err
	}

	var view CartView
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		carts := s.carts.WithTx(tx)
		catalog := s.products.WithTx(tx)

		cart, err := carts.GetOrCreateActive(ctx, principal.UserID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "get or create active cart")
		}

		locked, err := lockProducts(ctx, catalog, productIDs(items), false)
		if err != nil {
			return err
		}

		total := decimal.Zero
		for _, in := range items {
			product, ok := locked[in.ProductID]
			if !ok {
				return pkgerrors.New(pkgerrors.CodeNotFound, msgProductAbsent)
			}
			if product.StockQuantity < in.Quantity {
				s.metrics.IncStockConflict(opAdd)
				return insufficientStock(product)
			}
			if err := upsertItem(ctx, carts, cart.ID, product.ID, in.Quantity); err != nil {
				return err
			}
			price := product.Price
			product.StockQuantity -= in.Quantity
			if err := catalog.Save(ctx, product); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save product stock")
			}
			total = total.Add(price.Mul(decimal.NewFromInt(int64(in.Quantity))))
		}

		lines, err := carts.ListItems(ctx, cart.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list cart items")
		}
		view = CartView{CartID: &cart.ID, Items: lines, TotalPrice: total}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.invalidate(ctx, principal.UserID)
	return &view, nil
}

func (s *service) ViewCart(ctx context.Context, principal policy.Principal) (_ *CartView, err error) {
	defer s.observe(opView, time.Now(), &err)

	if principal.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return s.cache.get(ctx, principal.UserID, func(ctx context.Context) (*CartView, error) {
		return s.loadActiveView(ctx, principal.UserID)
	})
}

func (s *service) loadActiveView(ctx context.Context, userID uuid.UUID) (*CartView, error) {
	cart, err := s.carts.FindActive(ctx, userID, false)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &CartView{Items: []models.CartItem{}, TotalPrice: decimal.Zero}, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find active cart")
	}
	lines, err := s.carts.ListItems(ctx, cart.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list cart items")
	}
	return &CartView{CartID: &cart.ID, Items: lines, TotalPrice: models.TotalPrice(lines)}, nil
}

func (s *service) UpdateCartItem(ctx context.Context, principal policy.Principal, cartID uuid.UUID, items []ItemInput) (_ *UpdateResult, err error) {
	defer s.observe(opUpdate, time.Now(), &err)

	if err := validateItems(items); err != nil {
		return nil, err
	}
	if err := rejectDuplicates(items); err != nil {
		return nil, err
	}

	var result UpdateResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		carts := s.carts.WithTx(tx)
		catalog := s.products.WithTx(tx)

		cart, err := s.ownedActiveCart(ctx, carts, principal, cartID)
		if err != nil {
			return err
		}

		lines := make([]*models.CartItem, 0, len(items))
		for _, in := range items {
			item, err := carts.FindItem(ctx, cart.ID, in.ProductID)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, msgItemNotFound)
			}
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find cart item")
			}
			lines = append(lines, item)
		}

		locked, err := lockProducts(ctx, catalog, productIDs(items), true)
		if err != nil {
			return err
		}

		for i, in := range items {
			item := lines[i]
			product, ok := locked[in.ProductID]
			if !ok {
				return pkgerrors.New(pkgerrors.CodeNotFound, msgProductAbsent)
			}
			diff := in.Quantity - item.Quantity
			if product.StockQuantity < diff {
				s.metrics.IncStockConflict(opUpdate)
				return insufficientStock(product)
			}
			product.StockQuantity -= diff
			if err := catalog.Save(ctx, product); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save product stock")
			}
			item.Quantity = in.Quantity
			if err := carts.SaveItem(ctx, item); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save cart item")
			}
		}

		all, err := carts.ListItems(ctx, cart.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list cart items")
		}
		result = UpdateResult{CartItems: all, TotalPrice: models.TotalPrice(all)}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.invalidate(ctx, principal.UserID)
	return &result, nil
}

func (s *service) RemoveCartItem(ctx context.Context, principal policy.Principal, cartID uuid.UUID, ids []uuid.UUID) (err error) {
	defer s.observe(opRemove, time.Now(), &err)

	if len(ids) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "items are required")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		carts := s.carts.WithTx(tx)
		catalog := s.products.WithTx(tx)

		cart, err := s.ownedActiveCart(ctx, carts, principal, cartID)
		if err != nil {
			return err
		}

		removed := make(map[uuid.UUID]*models.CartItem, len(ids))
		for _, id := range ids {
			if _, seen := removed[id]; seen {
				continue
			}
			item, err := carts.FindItem(ctx, cart.ID, id)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, msgItemNotFound)
			}
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find cart item")
			}
			removed[id] = item
		}

		toRestore := removed
		if s.removeClearsCart {
			rest, err := carts.ListItems(ctx, cart.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list cart items")
			}
			toRestore = make(map[uuid.UUID]*models.CartItem, len(rest))
			for i := range rest {
				toRestore[rest[i].ProductID] = &rest[i]
			}
		}

		restoreIDs := make([]uuid.UUID, 0, len(toRestore))
		for id := range toRestore {
			restoreIDs = append(restoreIDs, id)
		}
		locked, err := lockProducts(ctx, catalog, restoreIDs, true)
		if err != nil {
			return err
		}

		for id, item := range toRestore {
			product, ok := locked[id]
			if !ok {
				continue
			}
			product.StockQuantity += item.Quantity
			if err := catalog.Save(ctx, product); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "restore product stock")
			}
		}

		if s.removeClearsCart {
			if err := carts.Delete(ctx, cart.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete cart")
			}
			return nil
		}
		for _, item := range removed {
			if err := carts.DeleteItem(ctx, item.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete cart item")
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.cache.invalidate(ctx, principal.UserID)
	return nil
}

func (s *service) Checkout(ctx context.Context, principal policy.Principal) (_ *CheckoutResult, err error) {
	defer s.observe(opCheckout, time.Now(), &err)

	if principal.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}

	var result CheckoutResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		carts := s.carts.WithTx(tx)

		cart, err := carts.FindActive(ctx, principal.UserID, true)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeEmptyCart, "No items in cart to checkout")
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find active cart")
		}
		lines, err := carts.ListItems(ctx, cart.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list cart items")
		}
		if len(lines) == 0 {
			return pkgerrors.New(pkgerrors.CodeEmptyCart, "No items in cart to checkout")
		}
		if err := carts.UpdateStatus(ctx, cart.ID, enums.CartStatusCheckedOut); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check out cart")
		}
		result = CheckoutResult{CartID: cart.ID, Items: lines}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.invalidate(ctx, principal.UserID)
	return &result, nil
}

func (s *service) ViewCheckedOut(ctx context.Context, principal policy.Principal) (_ []models.Cart, err error) {
	defer s.observe(opViewCheckedOut, time.Now(), &err)

	if principal.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	carts, err := s.carts.ListByStatus(ctx, principal.UserID, enums.CartStatusCheckedOut)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list checked out carts")
	}
	return carts, nil
}

// ownedActiveCart locks the cart and enforces ownership. Someone else's cart
// is Forbidden; a missing or checked out cart is NotFound.
func (s *service) ownedActiveCart(ctx context.Context, carts *Repository, principal policy.Principal, cartID uuid.UUID) (*models.Cart, error) {
	cart, err := carts.FindByID(ctx, cartID, true)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, msgCartNotFound)
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find cart")
	}
	if !s.policy.Owns(principal, cart) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, msgForbiddenCart)
	}
	if !cart.IsActive() {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, msgCartNotFound)
	}
	return cart, nil
}

func (s *service) observe(op string, start time.Time, err *error) {
	outcome := metrics.OutcomeSuccess
	if *err != nil {
		outcome = metrics.OutcomeRejected
		if typed := pkgerrors.As(*err); typed == nil || typed.Code() == pkgerrors.CodeInternal {
			outcome = metrics.OutcomeError
		}
	}
	s.metrics.Observe(op, outcome, time.Since(start))
}

// lockProducts takes row locks in id order so two mutations touching the same
// products in different orders cannot deadlock. Missing products are absent
// from the result.
func lockProducts(ctx context.Context, catalog *products.Repository, ids []uuid.UUID, includeSoftDeleted bool) (map[uuid.UUID]*models.Product, error) {
	ordered := slices.Clone(ids)
	slices.SortFunc(ordered, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })
	ordered = slices.Compact(ordered)

	locked := make(map[uuid.UUID]*models.Product, len(ordered))
	for _, id := range ordered {
		product, err := catalog.LockProductForUpdate(ctx, id, includeSoftDeleted)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lock product")
		}
		locked[id] = product
	}
	return locked, nil
}

func upsertItem(ctx context.Context, carts *Repository, cartID, productID uuid.UUID, qty int) error {
	item, err := carts.FindItem(ctx, cartID, productID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err := carts.CreateItem(ctx, &models.CartItem{CartID: cartID, ProductID: productID, Quantity: qty}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create cart item")
		}
		return nil
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "find cart item")
	}
	item.Quantity += qty
	if err := carts.SaveItem(ctx, item); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save cart item")
	}
	return nil
}

func validateItems(items []ItemInput) error {
	if len(items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "items are required")
	}
	for i, in := range items {
		if in.ProductID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "product_id is required").
				WithDetails(map[string]any{"index": i})
		}
		if in.Quantity < 1 {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1").
				WithDetails(map[string]any{"index": i})
		}
	}
	return nil
}

// rejectDuplicates guards absolute-set semantics, where two lines for one
// product would contradict each other.
func rejectDuplicates(items []ItemInput) error {
	seen := make(map[uuid.UUID]struct{}, len(items))
	for i, in := range items {
		if _, ok := seen[in.ProductID]; ok {
			return pkgerrors.New(pkgerrors.CodeValidation, "duplicate product_id").
				WithDetails(map[string]any{"index": i})
		}
		seen[in.ProductID] = struct{}{}
	}
	return nil
}

func insufficientStock(product *models.Product) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, "Insufficient stock for "+product.Name).
		WithDetails(map[string]any{
			"product_id": product.ID,
			"available":  product.StockQuantity,
		})
}

func productIDs(items []ItemInput) []uuid.UUID {
	ids := make([]uuid.UUID, len(items))
	for i, in := range items {
		ids[i] = in.ProductID
	}
	return ids
}
