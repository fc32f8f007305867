package service

import (
	"context"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/pedrohba/store-api/internal/models"
	"github.com/pedrohba/store-api/internal/repo"
)

type stubPublisher struct {
	mu     sync.Mutex
	events []map[string]any
}

func (p *stubPublisher) Publish(ctx context.Context, topic, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if m, ok := event.(map[string]any); ok {
		p.events = append(p.events, m)
	}
	return nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.RefreshToken{},
		&models.Category{},
		&models.Product{},
		&models.Cart{},
		&models.CartItem{},
	))
	return db
}

func newCartTestEnv(t *testing.T) (*CartService, *repo.GormRepo, *stubPublisher) {
	t.Helper()

	r := &repo.GormRepo{DB: newTestDB(t)}
	pub := &stubPublisher{}
	return NewCartService(r, r, pub), r, pub
}

func seedProduct(t *testing.T, r *repo.GormRepo, name, price string) *models.Product {
	t.Helper()

	p := &models.Product{
		Name:  name,
		Price: decimal.RequireFromString(price),
		Count: 100,
	}
	require.NoError(t, r.CreateProduct(context.Background(), p))
	return p
}

func TestCreateCart(t *testing.T) {
	svc, _, _ := newCartTestEnv(t)
	ctx := context.Background()

	userID := uuid.NewString()
	cart, err := svc.CreateCart(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, userID, cart.UserID.String())
	assert.True(t, cart.Total.IsZero(), "new cart total must be 0, got %s", cart.Total)

	items, err := svc.Store.ListCartItems(ctx, cart.ID)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCreateCart_Validation(t *testing.T) {
	svc, _, _ := newCartTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		userID string
	}{
		{name: "empty user id", userID: ""},
		{name: "malformed user id", userID: "not-a-uuid"},
		{name: "numeric user id", userID: "12345"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cart, err := svc.CreateCart(ctx, tt.userID)
			require.Error(t, err)
			assert.Nil(t, cart)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestCreateCart_SecondCartConflicts(t *testing.T) {
	svc, _, _ := newCartTestEnv(t)
	ctx := context.Background()

	userID := uuid.NewString()
	_, err := svc.CreateCart(ctx, userID)
	require.NoError(t, err)

	cart, err := svc.CreateCart(ctx, userID)
	require.Error(t, err)
	assert.Nil(t, cart)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestAddItemToCart_NewItem(t *testing.T) {
	svc, r, _ := newCartTestEnv(t)
	ctx := context.Background()

	product := seedProduct(t, r, "ssd", "499.99")
	cart, err := svc.CreateCart(ctx, uuid.NewString())
	require.NoError(t, err)

	item, err := svc.AddItemToCart(ctx, cart.ID, product.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, uint(2), item.Quantity)
	assert.Equal(t, "999.98", item.Subtotal.String())

	stored, err := r.FindCartByID(ctx, cart.ID)
	require.NoError(t, err)
	assert.Equal(t, "999.98", stored.Total.String())
}

func TestAddItemToCart_RepeatedAddIncrements(t *testing.T) {
	svc, r, _ := newCartTestEnv(t)
	ctx := context.Background()

	product := seedProduct(t, r, "ssd", "499.99")
	cart, err := svc.CreateCart(ctx, uuid.NewString())
	require.NoError(t, err)

	_, err = svc.AddItemToCart(ctx, cart.ID, product.ID, 2)
	require.NoError(t, err)

	item, err := svc.AddItemToCart(ctx, cart.ID, product.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, uint(3), item.Quantity)
	assert.Equal(t, "1499.97", item.Subtotal.String())

	// repeated adds must never create a second row for the same product
	items, err := r.ListCartItems(ctx, cart.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)

	stored, err := r.FindCartByID(ctx, cart.ID)
	require.NoError(t, err)
	assert.Equal(t, "1499.97", stored.Total.String())
}

func TestAddItemToCart_UnknownProduct(t *testing.T) {
	svc, r, _ := newCartTestEnv(t)
	ctx := context.Background()

	cart, err := svc.CreateCart(ctx, uuid.NewString())
	require.NoError(t, err)

	item, err := svc.AddItemToCart(ctx, cart.ID, uuid.New(), 1)
	require.Error(t, err)
	assert.Nil(t, item)
	assert.ErrorIs(t, err, ErrNotFound)

	items, err := r.ListCartItems(ctx, cart.ID)
	require.NoError(t, err)
	assert.Empty(t, items)

	stored, err := r.FindCartByID(ctx, cart.ID)
	require.NoError(t, err)
	assert.True(t, stored.Total.IsZero())
}

func TestAddItemToCart_Validation(t *testing.T) {
	svc, r, _ := newCartTestEnv(t)
	ctx := context.Background()

	product := seedProduct(t, r, "ssd", "10.00")
	cart, err := svc.CreateCart(ctx, uuid.NewString())
	require.NoError(t, err)

	_, err = svc.AddItemToCart(ctx, cart.ID, product.ID, 0)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.AddItemToCart(ctx, cart.ID, product.ID, -3)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.AddItemToCart(ctx, cart.ID, uuid.Nil, 1)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.AddItemToCart(ctx, uuid.New(), product.ID, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAddItemToCart_RetriesLostInsertRace(t *testing.T) {
	svc, r, _ := newCartTestEnv(t)
	ctx := context.Background()

	product := seedProduct(t, r, "ssd", "499.99")
	cart, err := svc.CreateCart(ctx, uuid.NewString())
	require.NoError(t, err)

	racing := &racingStore{GormRepo: r, price: product.Price}
	svc.Store = racing

	item, err := svc.AddItemToCart(ctx, cart.ID, product.ID, 2)
	require.NoError(t, err)
	assert.True(t, racing.raced, "the race path was not exercised")

	// the losing insert retried as an increment over the winner's row
	assert.Equal(t, uint(3), item.Quantity)
	assert.Equal(t, "1499.97", item.Subtotal.String())

	items, err := r.ListCartItems(ctx, cart.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
}

// racingStore makes the first CreateCartItem lose against a simulated
// concurrent writer that inserts a one-unit row for the same pair.
type racingStore struct {
	*repo.GormRepo
	price decimal.Decimal
	raced bool
}

func (s *racingStore) CreateCartItem(ctx context.Context, item *models.CartItem) error {
	if !s.raced {
		s.raced = true
		winner := &models.CartItem{
			CartID:    item.CartID,
			ProductID: item.ProductID,
			Quantity:  1,
			Subtotal:  s.price.Round(2),
		}
		if err := s.GormRepo.CreateCartItem(ctx, winner); err != nil {
			return err
		}
		return gorm.ErrDuplicatedKey
	}
	return s.GormRepo.CreateCartItem(ctx, item)
}

func TestRemoveItemFromCart_LastUnitDeletesItem(t *testing.T) {
	svc, r, _ := newCartTestEnv(t)
	ctx := context.Background()

	product := seedProduct(t, r, "ssd", "499.99")
	cart, err := svc.CreateCart(ctx, uuid.NewString())
	require.NoError(t, err)

	_, err = svc.AddItemToCart(ctx, cart.ID, product.ID, 1)
	require.NoError(t, err)

	require.NoError(t, svc.RemoveItemFromCart(ctx, cart.ID, product.ID))

	items, err := r.ListCartItems(ctx, cart.ID)
	require.NoError(t, err)
	assert.Empty(t, items, "quantity 0 must never be persisted")

	stored, err := r.FindCartByID(ctx, cart.ID)
	require.NoError(t, err)
	assert.True(t, stored.Total.IsZero(), "total must be 0 after last item removal, got %s", stored.Total)
}

func TestRemoveItemFromCart_DecrementsQuantity(t *testing.T) {
	svc, r, _ := newCartTestEnv(t)
	ctx := context.Background()

	product := seedProduct(t, r, "ssd", "499.99")
	cart, err := svc.CreateCart(ctx, uuid.NewString())
	require.NoError(t, err)

	_, err = svc.AddItemToCart(ctx, cart.ID, product.ID, 3)
	require.NoError(t, err)

	require.NoError(t, svc.RemoveItemFromCart(ctx, cart.ID, product.ID))

	item, err := r.FindCartItem(ctx, cart.ID, product.ID)
	require.NoError(t, err)
	assert.Equal(t, uint(2), item.Quantity)
	assert.Equal(t, "999.98", item.Subtotal.String())

	stored, err := r.FindCartByID(ctx, cart.ID)
	require.NoError(t, err)
	assert.Equal(t, "999.98", stored.Total.String())
}

func TestRemoveItemFromCart_NotFound(t *testing.T) {
	svc, r, _ := newCartTestEnv(t)
	ctx := context.Background()

	product := seedProduct(t, r, "ssd", "10.00")
	cart, err := svc.CreateCart(ctx, uuid.NewString())
	require.NoError(t, err)

	err = svc.RemoveItemFromCart(ctx, uuid.New(), product.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	err = svc.RemoveItemFromCart(ctx, cart.ID, product.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemoveItemFromCart_VanishedProduct(t *testing.T) {
	svc, r, _ := newCartTestEnv(t)
	ctx := context.Background()

	product := seedProduct(t, r, "ssd", "10.00")
	cart, err := svc.CreateCart(ctx, uuid.NewString())
	require.NoError(t, err)

	_, err = svc.AddItemToCart(ctx, cart.ID, product.ID, 2)
	require.NoError(t, err)

	require.NoError(t, r.DeleteProduct(ctx, product.ID))

	err = svc.RemoveItemFromCart(ctx, cart.ID, product.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateCartTotal_Idempotent(t *testing.T) {
	svc, r, _ := newCartTestEnv(t)
	ctx := context.Background()

	a := seedProduct(t, r, "ssd", "499.99")
	b := seedProduct(t, r, "hdd", "79.90")
	cart, err := svc.CreateCart(ctx, uuid.NewString())
	require.NoError(t, err)

	_, err = svc.AddItemToCart(ctx, cart.ID, a.ID, 2)
	require.NoError(t, err)
	_, err = svc.AddItemToCart(ctx, cart.ID, b.ID, 1)
	require.NoError(t, err)

	first, err := svc.UpdateCartTotal(ctx, cart.ID)
	require.NoError(t, err)
	second, err := svc.UpdateCartTotal(ctx, cart.ID)
	require.NoError(t, err)

	assert.True(t, first.Equal(second), "totals differ: %s vs %s", first, second)
	assert.Equal(t, "1079.88", second.String())

	stored, err := r.FindCartByID(ctx, cart.ID)
	require.NoError(t, err)
	assert.Equal(t, "1079.88", stored.Total.String())
}

func TestCartTotalMatchesItemSubtotals(t *testing.T) {
	svc, r, _ := newCartTestEnv(t)
	ctx := context.Background()

	a := seedProduct(t, r, "ssd", "499.99")
	b := seedProduct(t, r, "hdd", "79.90")
	c := seedProduct(t, r, "ram", "33.33")
	cart, err := svc.CreateCart(ctx, uuid.NewString())
	require.NoError(t, err)

	_, err = svc.AddItemToCart(ctx, cart.ID, a.ID, 2)
	require.NoError(t, err)
	_, err = svc.AddItemToCart(ctx, cart.ID, b.ID, 3)
	require.NoError(t, err)
	_, err = svc.AddItemToCart(ctx, cart.ID, c.ID, 1)
	require.NoError(t, err)
	require.NoError(t, svc.RemoveItemFromCart(ctx, cart.ID, b.ID))

	items, err := r.ListCartItems(ctx, cart.ID)
	require.NoError(t, err)

	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.Subtotal)
	}

	stored, err := r.FindCartByID(ctx, cart.ID)
	require.NoError(t, err)
	assert.True(t, stored.Total.Equal(sum.Round(2)), "total %s != sum of subtotals %s", stored.Total, sum)
}

func TestGetCart_NoCartIsNotAnError(t *testing.T) {
	svc, _, _ := newCartTestEnv(t)

	view, err := svc.GetCart(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, view)
}

func TestGetCart_Projection(t *testing.T) {
	svc, r, _ := newCartTestEnv(t)
	ctx := context.Background()

	product := seedProduct(t, r, "ssd", "499.99")
	userID := uuid.NewString()
	cart, err := svc.CreateCart(ctx, userID)
	require.NoError(t, err)

	_, err = svc.AddItemToCart(ctx, cart.ID, product.ID, 2)
	require.NoError(t, err)

	view, err := svc.GetCart(ctx, cart.UserID)
	require.NoError(t, err)
	require.NotNil(t, view)

	assert.Equal(t, cart.ID, view.ID)
	assert.Equal(t, userID, view.UserID.String())
	assert.Equal(t, "999.98", view.Total.String())
	require.Len(t, view.Items, 1)
	assert.Equal(t, product.ID, view.Items[0].ProductID)
	assert.Equal(t, "ssd", view.Items[0].ProductName)
	assert.Equal(t, uint(2), view.Items[0].Quantity)
	assert.Equal(t, "999.98", view.Items[0].Subtotal.String())
}

func TestGetCart_SubtotalRecomputedOnPriceDrift(t *testing.T) {
	svc, r, _ := newCartTestEnv(t)
	ctx := context.Background()

	product := seedProduct(t, r, "ssd", "100.00")
	cart, err := svc.CreateCart(ctx, uuid.NewString())
	require.NoError(t, err)

	_, err = svc.AddItemToCart(ctx, cart.ID, product.ID, 2)
	require.NoError(t, err)

	// price changes after the item was added
	newPrice := decimal.RequireFromString("150.00")
	require.NoError(t, r.DB.Model(&models.Product{}).
		Where("id = ?", product.ID).
		Update("price", newPrice).Error)

	view, err := svc.GetCart(ctx, cart.UserID)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)

	// the line is re-priced at read time, the stored aggregate is not
	assert.Equal(t, "300", view.Items[0].Subtotal.String())
	assert.Equal(t, "200", view.Total.String())
}

func TestDeleteCart(t *testing.T) {
	svc, r, _ := newCartTestEnv(t)
	ctx := context.Background()

	product := seedProduct(t, r, "ssd", "499.99")
	cart, err := svc.CreateCart(ctx, uuid.NewString())
	require.NoError(t, err)
	_, err = svc.AddItemToCart(ctx, cart.ID, product.ID, 2)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteCart(ctx, cart.ID))

	view, err := svc.GetCart(ctx, cart.UserID)
	require.NoError(t, err)
	assert.Nil(t, view)

	items, err := r.ListCartItems(ctx, cart.ID)
	require.NoError(t, err)
	assert.Empty(t, items)

	err = svc.DeleteCart(ctx, cart.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCartMutationsPublishEvents(t *testing.T) {
	svc, r, pub := newCartTestEnv(t)
	ctx := context.Background()

	product := seedProduct(t, r, "ssd", "10.00")
	cart, err := svc.CreateCart(ctx, uuid.NewString())
	require.NoError(t, err)
	_, err = svc.AddItemToCart(ctx, cart.ID, product.ID, 1)
	require.NoError(t, err)
	require.NoError(t, svc.RemoveItemFromCart(ctx, cart.ID, product.ID))
	require.NoError(t, svc.DeleteCart(ctx, cart.ID))

	var types []string
	for _, e := range pub.events {
		types = append(types, e["type"].(string))
	}
	assert.Equal(t, []string{"cart_created", "cart_item_added", "cart_item_removed", "cart_deleted"}, types)
}
