package transport

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type UpdateUserRequest struct {
	Name     *string `json:"name"`
	Password *string `json:"password"`
}

type CreateProductRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Count       uint            `json:"count"`
	CategoryID  *uuid.UUID      `json:"category_id"`
}

type PatchProductRequest struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Count       *uint            `json:"count"`
	CategoryID  *uuid.UUID       `json:"category_id"`
}

type CreateCategoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type PatchCategoryRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type CreateCartRequest struct {
	UserID string `json:"user_id"`
}

type AddItemToCartRequest struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

type RemoveItemFromCartRequest struct {
	ProductID uuid.UUID `json:"product_id"`
}

// CartItemView joins a cart line with its product. Subtotal is recomputed at
// read time so the projection tolerates price drift in stored rows.
type CartItemView struct {
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	Price       decimal.Decimal `json:"price"`
	Quantity    uint            `json:"quantity"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

type CartView struct {
	ID     uuid.UUID       `json:"id"`
	UserID uuid.UUID       `json:"user_id"`
	Items  []CartItemView  `json:"items"`
	Total  decimal.Decimal `json:"total"`
}
