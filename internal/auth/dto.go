package auth

import (
	"github.com/angelmondragon/shopcart-backend/pkg/db/models"
	"github.com/angelmondragon/shopcart-backend/pkg/enums"
)

// TokenPrefix precedes every access token handed to clients.
const TokenPrefix = "Bearer-"

// RegisterRequest is the registration payload. Role defaults to user.
type RegisterRequest struct {
	Name     string         `json:"name" validate:"required,max=255"`
	Email    string         `json:"email" validate:"required,email,max=255"`
	Password string         `json:"password" validate:"required,min=6"`
	Role     enums.UserRole `json:"role,omitempty" validate:"omitempty,oneof=admin user"`
}

// LoginRequest captures the user credentials sent to the login endpoint.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// LoginResponse is the data block of a successful login.
type LoginResponse struct {
	User        *models.User `json:"user"`
	AccessToken string       `json:"access_token"`
}
