package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pedrohba/store-api/internal/es"
	"github.com/pedrohba/store-api/internal/events"
	"github.com/pedrohba/store-api/internal/logging"
	"github.com/pedrohba/store-api/internal/models"
	"github.com/pedrohba/store-api/internal/repo"
	"github.com/pedrohba/store-api/internal/transport"
)

type CatalogService struct {
	Repo   *repo.GormRepo
	ES     *elasticsearch.Client // nil disables indexing
	Events events.Publisher
}

func (s *CatalogService) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	product, err := s.Repo.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("product not found: %w", ErrNotFound)
		}
		return nil, err
	}
	return product, nil
}

func (s *CatalogService) GetProducts(ctx context.Context, offset, limit int) (int64, []models.Product, error) {
	return s.Repo.GetProducts(ctx, offset, limit)
}

func (s *CatalogService) GetProductsByCategory(ctx context.Context, categoryID uuid.UUID) ([]models.Product, error) {
	if _, err := s.Repo.GetCategory(ctx, categoryID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("category not found: %w", ErrNotFound)
		}
		return nil, err
	}
	return s.Repo.GetProductsByCategory(ctx, categoryID)
}

func (s *CatalogService) CreateProduct(ctx context.Context, req transport.CreateProductRequest) (*models.Product, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("name is required: %w", ErrValidation)
	}
	if req.Price.IsNegative() {
		return nil, fmt.Errorf("price cannot be negative: %w", ErrValidation)
	}

	if _, err := s.Repo.FindProductByName(ctx, req.Name); err == nil {
		return nil, fmt.Errorf("a product with this name already exists: %w", ErrConflict)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	product := models.Product{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price.Round(2),
		Count:       req.Count,
		CategoryID:  req.CategoryID,
	}
	if err := s.Repo.CreateProduct(ctx, &product); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("a product with this name already exists: %w", ErrConflict)
		}
		return nil, err
	}

	s.indexProduct(ctx, &product)
	s.publishEvent(ctx, map[string]any{"type": "product_created", "productID": product.ID})
	return &product, nil
}

func (s *CatalogService) PatchProduct(ctx context.Context, req transport.PatchProductRequest, id uuid.UUID) (*models.Product, error) {
	if req.Price != nil && req.Price.IsNegative() {
		return nil, fmt.Errorf("price cannot be negative: %w", ErrValidation)
	}

	product, err := s.Repo.PatchProduct(ctx, req, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("product not found: %w", ErrNotFound)
		}
		return nil, err
	}

	s.indexProduct(ctx, product)
	s.publishEvent(ctx, map[string]any{"type": "product_updated", "productID": product.ID})
	return product, nil
}

func (s *CatalogService) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	if err := s.Repo.DeleteProduct(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("product not found: %w", ErrNotFound)
		}
		return err
	}

	s.removeFromIndex(ctx, id)
	s.publishEvent(ctx, map[string]any{"type": "product_deleted", "productID": id})
	return nil
}

func (s *CatalogService) indexProduct(ctx context.Context, product *models.Product) {
	if s.ES == nil {
		return
	}
	l := logging.FromContext(ctx)

	data, err := json.Marshal(product)
	if err != nil {
		l.Error("product index marshal error", "error", err)
		return
	}

	res, err := s.ES.Index(
		es.ProductIndex,
		bytes.NewReader(data),
		s.ES.Index.WithDocumentID(product.ID.String()),
		s.ES.Index.WithContext(ctx),
	)
	if err != nil {
		l.Error("product index error", "productID", product.ID, "error", err)
		return
	}
	defer res.Body.Close()
	if res.IsError() {
		l.Error("product index error", "productID", product.ID, "status", res.Status())
	}
}

func (s *CatalogService) removeFromIndex(ctx context.Context, id uuid.UUID) {
	if s.ES == nil {
		return
	}
	l := logging.FromContext(ctx)

	res, err := s.ES.Delete(es.ProductIndex, id.String(), s.ES.Delete.WithContext(ctx))
	if err != nil {
		l.Error("product index delete error", "productID", id, "error", err)
		return
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != 404 {
		l.Error("product index delete error", "productID", id, "status", res.Status())
	}
}

func (s *CatalogService) publishEvent(ctx context.Context, event map[string]any) {
	if s.Events == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.Events.Publish(pubCtx, events.TopicProductEvents, fmt.Sprint(event["productID"]), event); err != nil {
		logging.FromContext(ctx).Error("event publish error", "topic", events.TopicProductEvents, "error", err)
	}
}
