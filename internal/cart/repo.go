package cart

import (
	"context"

	"github.com/angelmondragon/shopcart-backend/pkg/db/models"
	"github.com/angelmondragon/shopcart-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is the cart store: carts and their line items.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) query(ctx context.Context, lock bool) *gorm.DB {
	q := r.db.WithContext(ctx)
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return q
}

func withProducts(db *gorm.DB) *gorm.DB {
	return db.Unscoped()
}

func itemOrder(db *gorm.DB) *gorm.DB {
	return db.Order("created_at ASC, id ASC")
}

// FindActive returns the user's active cart. With lock set the cart row is
// held until the surrounding transaction ends.
func (r *Repository) FindActive(ctx context.Context, userID uuid.UUID, lock bool) (*models.Cart, error) {
	var cart models.Cart
	err := r.query(ctx, lock).
		Where("user_id = ? AND status = ?", userID, enums.CartStatusActive).
		First(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// FindByID loads any cart by id regardless of owner or status.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID, lock bool) (*models.Cart, error) {
	var cart models.Cart
	if err := r.query(ctx, lock).First(&cart, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &cart, nil
}

// GetOrCreateActive returns the user's active cart, creating it when absent.
// Concurrent creators collide on the partial unique index; the loser's insert
// is discarded and it reads the winner's cart.
func (r *Repository) GetOrCreateActive(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	cart, err := r.FindActive(ctx, userID, true)
	if err == nil {
		return cart, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	fresh := &models.Cart{UserID: userID, Status: enums.CartStatusActive}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:     []clause.Column{{Name: "user_id"}},
			TargetWhere: clause.Where{Exprs: []clause.Expression{clause.Expr{SQL: "status = 'active'"}}},
			DoNothing:   true,
		}).
		Create(fresh)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 1 {
		return fresh, nil
	}
	return r.FindActive(ctx, userID, true)
}

// FindItem returns the line for product in cart.
func (r *Repository) FindItem(ctx context.Context, cartID, productID uuid.UUID) (*models.CartItem, error) {
	var item models.CartItem
	err := r.db.WithContext(ctx).
		Where("cart_id = ? AND product_id = ?", cartID, productID).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// CreateItem inserts a new cart line.
func (r *Repository) CreateItem(ctx context.Context, item *models.CartItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

// SaveItem persists the item quantity.
func (r *Repository) SaveItem(ctx context.Context, item *models.CartItem) error {
	return r.db.WithContext(ctx).
		Model(item).
		Select("quantity", "updated_at").
		Updates(item).Error
}

// DeleteItem removes a cart line.
func (r *Repository) DeleteItem(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.CartItem{}, "id = ?", id).Error
}

// ListItems returns the cart's lines with their products, soft-deleted
// products included.
func (r *Repository) ListItems(ctx context.Context, cartID uuid.UUID) ([]models.CartItem, error) {
	var items []models.CartItem
	err := itemOrder(r.db.WithContext(ctx)).
		Preload("Product", withProducts).
		Where("cart_id = ?", cartID).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// UpdateStatus moves the cart to a new status.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.CartStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status}).Error
}

// Delete removes the cart together with any remaining lines.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.db.WithContext(ctx).Where("cart_id = ?", id).Delete(&models.CartItem{}).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Delete(&models.Cart{}, "id = ?", id).Error
}

// ListByStatus returns the user's carts in status with items and products
// eager-loaded, oldest first.
func (r *Repository) ListByStatus(ctx context.Context, userID uuid.UUID, status enums.CartStatus) ([]models.Cart, error) {
	var carts []models.Cart
	err := r.db.WithContext(ctx).
		Preload("Items", itemOrder).
		Preload("Items.Product", withProducts).
		Where("user_id = ? AND status = ?", userID, status).
		Order("created_at ASC, id ASC").
		Find(&carts).Error
	if err != nil {
		return nil, err
	}
	return carts, nil
}
