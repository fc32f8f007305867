package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pedrohba/store-api/internal/models"
	"github.com/pedrohba/store-api/internal/repo"
	"github.com/pedrohba/store-api/internal/transport"
)

func newCatalogTestEnv(t *testing.T) (*CatalogService, *repo.GormRepo) {
	t.Helper()

	r := &repo.GormRepo{DB: newTestDB(t)}
	return &CatalogService{Repo: r}, r
}

func TestCreateProduct(t *testing.T) {
	svc, _ := newCatalogTestEnv(t)
	ctx := context.Background()

	product, err := svc.CreateProduct(ctx, transport.CreateProductRequest{
		Name:  "ssd",
		Price: decimal.RequireFromString("499.999"),
		Count: 5,
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, product.ID)
	assert.Equal(t, "500", product.Price.String())
}

func TestCreateProduct_Validation(t *testing.T) {
	svc, _ := newCatalogTestEnv(t)
	ctx := context.Background()

	_, err := svc.CreateProduct(ctx, transport.CreateProductRequest{Price: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.CreateProduct(ctx, transport.CreateProductRequest{
		Name:  "ssd",
		Price: decimal.NewFromInt(-1),
	})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateProduct_DuplicateName(t *testing.T) {
	svc, _ := newCatalogTestEnv(t)
	ctx := context.Background()

	_, err := svc.CreateProduct(ctx, transport.CreateProductRequest{Name: "ssd", Price: decimal.NewFromInt(10)})
	require.NoError(t, err)

	_, err = svc.CreateProduct(ctx, transport.CreateProductRequest{Name: "ssd", Price: decimal.NewFromInt(20)})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestPatchProduct(t *testing.T) {
	svc, _ := newCatalogTestEnv(t)
	ctx := context.Background()

	product, err := svc.CreateProduct(ctx, transport.CreateProductRequest{Name: "ssd", Price: decimal.NewFromInt(10), Count: 5})
	require.NoError(t, err)

	newPrice := decimal.RequireFromString("12.50")
	newCount := uint(7)
	updated, err := svc.PatchProduct(ctx, transport.PatchProductRequest{Price: &newPrice, Count: &newCount}, product.ID)
	require.NoError(t, err)
	assert.Equal(t, "12.5", updated.Price.String())
	assert.Equal(t, uint(7), updated.Count)
	assert.Equal(t, "ssd", updated.Name)
}

func TestPatchProduct_Errors(t *testing.T) {
	svc, _ := newCatalogTestEnv(t)
	ctx := context.Background()

	negative := decimal.NewFromInt(-5)
	_, err := svc.PatchProduct(ctx, transport.PatchProductRequest{Price: &negative}, uuid.New())
	assert.ErrorIs(t, err, ErrValidation)

	name := "ghost"
	_, err = svc.PatchProduct(ctx, transport.PatchProductRequest{Name: &name}, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteProduct(t *testing.T) {
	svc, _ := newCatalogTestEnv(t)
	ctx := context.Background()

	product, err := svc.CreateProduct(ctx, transport.CreateProductRequest{Name: "ssd", Price: decimal.NewFromInt(10)})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteProduct(ctx, product.ID))

	_, err = svc.GetProduct(ctx, product.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	err = svc.DeleteProduct(ctx, product.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetProductsByCategory(t *testing.T) {
	svc, r := newCatalogTestEnv(t)
	ctx := context.Background()

	category := &models.Category{Name: "storage"}
	require.NoError(t, r.CreateCategory(ctx, category))

	_, err := svc.CreateProduct(ctx, transport.CreateProductRequest{
		Name:       "ssd",
		Price:      decimal.NewFromInt(10),
		CategoryID: &category.ID,
	})
	require.NoError(t, err)
	_, err = svc.CreateProduct(ctx, transport.CreateProductRequest{Name: "mouse", Price: decimal.NewFromInt(5)})
	require.NoError(t, err)

	products, err := svc.GetProductsByCategory(ctx, category.ID)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "ssd", products[0].Name)

	_, err = svc.GetProductsByCategory(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}
