package cart

import (
	"github.com/google/uuid"

	cartsvc "github.com/angelmondragon/shopcart-backend/internal/cart"
)

type itemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"gte=1"`
}

type itemsRequest struct {
	Items []itemRequest `json:"items" validate:"required,min=1,dive"`
}

type removeItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
}

type removeRequest struct {
	Items []removeItemRequest `json:"items" validate:"required,min=1,dive"`
}

// The validator has already checked every product_id.
func (p itemsRequest) toInputs() []cartsvc.ItemInput {
	items := make([]cartsvc.ItemInput, 0, len(p.Items))
	for _, item := range p.Items {
		items = append(items, cartsvc.ItemInput{
			ProductID: uuid.MustParse(item.ProductID),
			Quantity:  item.Quantity,
		})
	}
	return items
}

func (p removeRequest) productIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(p.Items))
	for _, item := range p.Items {
		ids = append(ids, uuid.MustParse(item.ProductID))
	}
	return ids
}
