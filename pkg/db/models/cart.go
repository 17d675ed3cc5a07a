package models

import (
	"time"

	"github.com/angelmondragon/shopcart-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Cart groups a user's items. At most one cart per user is active.
type Cart struct {
	ID        uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID        `gorm:"column:user_id;type:uuid;not null" json:"user_id"`
	Status    enums.CartStatus `gorm:"column:status;type:text;not null;default:'active'" json:"status"`
	Items     []CartItem       `gorm:"foreignKey:CartID" json:"items,omitempty"`
	CreatedAt time.Time        `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time        `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (c *Cart) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

func (c *Cart) IsActive() bool {
	return c.Status == enums.CartStatusActive
}
