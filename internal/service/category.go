package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pedrohba/store-api/internal/models"
	"github.com/pedrohba/store-api/internal/repo"
	"github.com/pedrohba/store-api/internal/transport"
)

type CategoryService struct {
	Repo *repo.GormRepo
}

func (s *CategoryService) GetCategories(ctx context.Context) ([]models.Category, error) {
	return s.Repo.GetCategories(ctx)
}

func (s *CategoryService) GetCategory(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	category, err := s.Repo.GetCategory(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("category not found: %w", ErrNotFound)
		}
		return nil, err
	}
	return category, nil
}

func (s *CategoryService) CreateCategory(ctx context.Context, req transport.CreateCategoryRequest) (*models.Category, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("name is required: %w", ErrValidation)
	}

	if _, err := s.Repo.FindCategoryByName(ctx, req.Name); err == nil {
		return nil, fmt.Errorf("a category with this name already exists: %w", ErrConflict)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	category := models.Category{
		Name:        req.Name,
		Description: req.Description,
	}
	if err := s.Repo.CreateCategory(ctx, &category); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("a category with this name already exists: %w", ErrConflict)
		}
		return nil, err
	}
	return &category, nil
}

func (s *CategoryService) PatchCategory(ctx context.Context, req transport.PatchCategoryRequest, id uuid.UUID) (*models.Category, error) {
	if req.Name != nil && *req.Name == "" {
		return nil, fmt.Errorf("name cannot be empty: %w", ErrValidation)
	}

	category, err := s.Repo.PatchCategory(ctx, req, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("category not found: %w", ErrNotFound)
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("a category with this name already exists: %w", ErrConflict)
		}
		return nil, err
	}
	return category, nil
}

func (s *CategoryService) DeleteCategory(ctx context.Context, id uuid.UUID) error {
	if err := s.Repo.DeleteCategory(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("category not found: %w", ErrNotFound)
		}
		return err
	}
	return nil
}
