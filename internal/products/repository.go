package products

import (
	"context"

	"github.com/angelmondragon/shopcart-backend/pkg/db/models"
	"github.com/angelmondragon/shopcart-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is the catalog store shared by the admin surface and the cart
// mutation paths.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

func (r *Repository) scoped(ctx context.Context, includeSoftDeleted bool) *gorm.DB {
	q := r.db.WithContext(ctx)
	if includeSoftDeleted {
		q = q.Unscoped()
	}
	return q
}

// FindProduct loads a product without locking it.
func (r *Repository) FindProduct(ctx context.Context, id uuid.UUID, includeSoftDeleted bool) (*models.Product, error) {
	var product models.Product
	if err := r.scoped(ctx, includeSoftDeleted).First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// LockProductForUpdate loads a product with SELECT ... FOR UPDATE so the
// caller's transaction owns its stock until commit. Must be called on a
// repository bound to a transaction.
func (r *Repository) LockProductForUpdate(ctx context.Context, id uuid.UUID, includeSoftDeleted bool) (*models.Product, error) {
	var product models.Product
	if err := r.scoped(ctx, includeSoftDeleted).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// Save persists every column of the product. Soft-deleted rows are written
// too so stock can still be restored on them.
func (r *Repository) Save(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Unscoped().Save(product).Error
}

// Create inserts a new product.
func (r *Repository) Create(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

// SoftDelete stamps deleted_at; the row stays for historical cart items.
// Returns gorm.ErrRecordNotFound when no live product matched.
func (r *Repository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&models.Product{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// List returns one page of live products ordered by creation time.
func (r *Repository) List(ctx context.Context, params pagination.Params) ([]models.Product, int64, error) {
	params = params.Normalize()

	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Product{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.Product
	if err := r.db.WithContext(ctx).
		Order("created_at ASC, id ASC").
		Limit(params.PerPage).
		Offset(params.Offset()).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}
