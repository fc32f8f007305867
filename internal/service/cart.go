package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/pedrohba/store-api/internal/events"
	"github.com/pedrohba/store-api/internal/logging"
	"github.com/pedrohba/store-api/internal/models"
	"github.com/pedrohba/store-api/internal/transport"
)

// CartStore is the durable operation set the engine needs. Absence is
// signalled with gorm.ErrRecordNotFound, uniqueness violations with
// gorm.ErrDuplicatedKey.
type CartStore interface {
	FindCartByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	FindCartByID(ctx context.Context, cartID uuid.UUID) (*models.Cart, error)
	InsertCart(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	DeleteCart(ctx context.Context, cartID uuid.UUID) error
	FindCartItem(ctx context.Context, cartID, productID uuid.UUID) (*models.CartItem, error)
	CreateCartItem(ctx context.Context, item *models.CartItem) error
	UpdateCartItem(ctx context.Context, itemID uuid.UUID, quantity uint, subtotal decimal.Decimal) error
	DeleteCartItem(ctx context.Context, itemID uuid.UUID) error
	ListCartItems(ctx context.Context, cartID uuid.UUID) ([]models.CartItem, error)
	UpdateCartTotal(ctx context.Context, cartID uuid.UUID, total decimal.Decimal) error
}

// PriceOracle resolves a product id to its canonical record.
type PriceOracle interface {
	ResolveProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

type CartService struct {
	Store  CartStore
	Oracle PriceOracle
	Events events.Publisher
}

func NewCartService(store CartStore, oracle PriceOracle, pub events.Publisher) *CartService {
	return &CartService{Store: store, Oracle: oracle, Events: pub}
}

func subtotal(price decimal.Decimal, quantity uint) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
}

func (s *CartService) CreateCart(ctx context.Context, userID string) (*models.Cart, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required: %w", ErrValidation)
	}
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("user_id is not a valid uuid: %w", ErrValidation)
	}

	if _, err := s.Store.FindCartByUser(ctx, uid); err == nil {
		return nil, fmt.Errorf("user already has a cart: %w", ErrConflict)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	cart, err := s.Store.InsertCart(ctx, uid)
	if err != nil {
		// the unique index on carts.user_id caught a concurrent create
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("user already has a cart: %w", ErrConflict)
		}
		return nil, err
	}

	s.publish(ctx, cart.UserID.String(), map[string]any{
		"type":   "cart_created",
		"cartID": cart.ID,
		"userID": cart.UserID,
	})
	return cart, nil
}

func (s *CartService) AddItemToCart(ctx context.Context, cartID, productID uuid.UUID, quantity int) (*models.CartItem, error) {
	if quantity < 1 {
		return nil, fmt.Errorf("quantity must be a positive integer: %w", ErrValidation)
	}
	if productID == uuid.Nil {
		return nil, fmt.Errorf("product_id is required: %w", ErrValidation)
	}

	cart, err := s.Store.FindCartByID(ctx, cartID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("cart not found: %w", ErrNotFound)
		}
		return nil, err
	}

	product, err := s.Oracle.ResolveProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("product not found: %w", ErrNotFound)
		}
		return nil, err
	}

	item, err := s.upsertItem(ctx, cart.ID, product, uint(quantity))
	if err != nil {
		return nil, err
	}

	if _, err := s.UpdateCartTotal(ctx, cart.ID); err != nil {
		return nil, err
	}

	s.publish(ctx, cart.UserID.String(), map[string]any{
		"type":      "cart_item_added",
		"cartID":    cart.ID,
		"productID": product.ID,
		"quantity":  item.Quantity,
	})
	return item, nil
}

// upsertItem increments the existing (cart, product) line or creates it. The
// find-then-create race between two concurrent adds is settled by the unique
// index on (cart_id, product_id): the loser of the insert retries and takes
// the increment path.
func (s *CartService) upsertItem(ctx context.Context, cartID uuid.UUID, product *models.Product, quantity uint) (*models.CartItem, error) {
	const maxAttempts = 2

	for attempt := 0; attempt < maxAttempts; attempt++ {
		item, err := s.Store.FindCartItem(ctx, cartID, product.ID)
		if err == nil {
			newQty := item.Quantity + quantity
			newSub := subtotal(product.Price, newQty)
			if err := s.Store.UpdateCartItem(ctx, item.ID, newQty, newSub); err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					continue // row vanished under us, retry from scratch
				}
				return nil, err
			}
			item.Quantity = newQty
			item.Subtotal = newSub
			return item, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}

		newItem := &models.CartItem{
			CartID:    cartID,
			ProductID: product.ID,
			Quantity:  quantity,
			Subtotal:  subtotal(product.Price, quantity),
		}
		err = s.Store.CreateCartItem(ctx, newItem)
		if err == nil {
			return newItem, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, err
		}
		// a concurrent add won the insert, retry as an increment
	}

	return nil, fmt.Errorf("concurrent cart mutation not resolved: %w", ErrConflict)
}

func (s *CartService) RemoveItemFromCart(ctx context.Context, cartID, productID uuid.UUID) error {
	if productID == uuid.Nil {
		return fmt.Errorf("product_id is required: %w", ErrValidation)
	}

	cart, err := s.Store.FindCartByID(ctx, cartID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("cart not found: %w", ErrNotFound)
		}
		return err
	}

	item, err := s.Store.FindCartItem(ctx, cart.ID, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("item not found in cart: %w", ErrNotFound)
		}
		return err
	}

	if item.Quantity == 1 {
		if err := s.Store.DeleteCartItem(ctx, item.ID); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
	} else {
		product, err := s.Oracle.ResolveProduct(ctx, productID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("product not found: %w", ErrNotFound)
			}
			return err
		}
		newQty := item.Quantity - 1
		if err := s.Store.UpdateCartItem(ctx, item.ID, newQty, subtotal(product.Price, newQty)); err != nil {
			return err
		}
	}

	if _, err := s.UpdateCartTotal(ctx, cart.ID); err != nil {
		return err
	}

	s.publish(ctx, cart.UserID.String(), map[string]any{
		"type":      "cart_item_removed",
		"cartID":    cart.ID,
		"productID": productID,
	})
	return nil
}

// UpdateCartTotal recomputes total = round2(sum of item subtotals) and writes
// it onto the cart. Idempotent: with no intervening item mutation two calls
// store the same value.
func (s *CartService) UpdateCartTotal(ctx context.Context, cartID uuid.UUID) (decimal.Decimal, error) {
	items, err := s.Store.ListCartItems(ctx, cartID)
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal)
	}
	total = total.Round(2)

	if err := s.Store.UpdateCartTotal(ctx, cartID, total); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, fmt.Errorf("cart not found: %w", ErrNotFound)
		}
		return decimal.Zero, err
	}
	return total, nil
}

func (s *CartService) DeleteCart(ctx context.Context, cartID uuid.UUID) error {
	cart, err := s.Store.FindCartByID(ctx, cartID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("cart not found: %w", ErrNotFound)
		}
		return err
	}

	if err := s.Store.DeleteCart(ctx, cart.ID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("cart not found: %w", ErrNotFound)
		}
		return err
	}

	s.publish(ctx, cart.UserID.String(), map[string]any{
		"type":   "cart_deleted",
		"cartID": cart.ID,
		"userID": cart.UserID,
	})
	return nil
}

// GetCart assembles the read projection for a user. A missing cart is a valid
// empty result, not an error. Lines whose product no longer resolves are
// dropped from the view.
func (s *CartService) GetCart(ctx context.Context, userID uuid.UUID) (*transport.CartView, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("user_id is required: %w", ErrValidation)
	}

	cart, err := s.Store.FindCartByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	items, err := s.Store.ListCartItems(ctx, cart.ID)
	if err != nil {
		return nil, err
	}

	views := make([]transport.CartItemView, 0, len(items))
	for _, item := range items {
		product, err := s.Oracle.ResolveProduct(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return nil, err
		}
		views = append(views, transport.CartItemView{
			ProductID:   product.ID,
			ProductName: product.Name,
			Price:       product.Price,
			Quantity:    item.Quantity,
			Subtotal:    subtotal(product.Price, item.Quantity),
		})
	}

	return &transport.CartView{
		ID:     cart.ID,
		UserID: cart.UserID,
		Items:  views,
		Total:  cart.Total.Round(2),
	}, nil
}

func (s *CartService) publish(ctx context.Context, key string, event map[string]any) {
	if s.Events == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.Events.Publish(pubCtx, events.TopicCartEvents, key, event); err != nil {
		logging.FromContext(ctx).Error("event publish error", "topic", events.TopicCartEvents, "error", err)
	}
}
