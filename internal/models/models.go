package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"     json:"id"`
	Name         string    `gorm:"not null"                 json:"name"`
	Email        string    `gorm:"uniqueIndex;not null"     json:"email"`
	PasswordHash string    `gorm:"not null"                 json:"-"`
	Role         string    `gorm:"not null;default:user"    json:"role"`
}

type RefreshToken struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"     json:"id"`
	Token     string    `gorm:"uniqueIndex;not null"     json:"token"`
	UserID    uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
	ExpiresAt time.Time `gorm:"not null"                 json:"expires_at"`
	Revoked   bool      `gorm:"default:false"            json:"revoked"`
}

type Category struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string    `gorm:"uniqueIndex;not null" json:"name"`
	Description string    `json:"description"`
}

type Product struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"        json:"id"`
	Name        string          `gorm:"uniqueIndex;not null"        json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `gorm:"type:decimal(16,2);not null" json:"price"`
	Count       uint            `json:"count"`
	CategoryID  *uuid.UUID      `gorm:"type:uuid;index"             json:"category_id,omitempty"`
}

// Cart is the per-user aggregate. Total is derived from the item subtotals
// and rewritten after every completed mutation.
type Cart struct {
	ID     uuid.UUID       `gorm:"type:uuid;primaryKey"           json:"id"`
	UserID uuid.UUID       `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	Total  decimal.Decimal `gorm:"type:decimal(16,2);not null"    json:"total"`
	Items  []CartItem      `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE" json:"items"`
}

type CartItem struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey"                            json:"id"`
	CartID    uuid.UUID       `gorm:"type:uuid;uniqueIndex:idx_cart_product;not null" json:"cart_id"`
	ProductID uuid.UUID       `gorm:"type:uuid;uniqueIndex:idx_cart_product;not null" json:"product_id"`
	Quantity  uint            `gorm:"not null;check:quantity>0"                       json:"quantity"`
	Subtotal  decimal.Decimal `gorm:"type:decimal(16,2);not null"                     json:"subtotal"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

func (r *RefreshToken) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

func (c *Category) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

func (c *Cart) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

func (c *CartItem) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

func (Cart) TableName() string     { return "carts" }
func (CartItem) TableName() string { return "cart_items" }
