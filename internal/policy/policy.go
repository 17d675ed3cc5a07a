package policy

import (
	"github.com/angelmondragon/shopcart-backend/pkg/db/models"
	"github.com/angelmondragon/shopcart-backend/pkg/enums"
	"github.com/google/uuid"
)

// Principal is the authenticated caller as resolved from the access token.
type Principal struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

// Policy answers the authorization questions asked by the domain services.
type Policy interface {
	HasRole(p Principal, role enums.UserRole) bool
	Owns(p Principal, cart *models.Cart) bool
}

// RolePolicy authorizes purely on the principal's role and user id.
type RolePolicy struct{}

func NewRolePolicy() RolePolicy {
	return RolePolicy{}
}

func (RolePolicy) HasRole(p Principal, role enums.UserRole) bool {
	return p.UserID != uuid.Nil && p.Role == role
}

func (RolePolicy) Owns(p Principal, cart *models.Cart) bool {
	return cart != nil && p.UserID != uuid.Nil && cart.UserID == p.UserID
}
