package service

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/models"
	"storefront/internal/store"
)

// CatalogService serves read-only product and category browsing.
type CatalogService struct {
	repos store.Repositories
}

func NewCatalogService(repos store.Repositories) *CatalogService {
	return &CatalogService{repos: repos}
}

func (s *CatalogService) Product(ctx context.Context, id int64) (*models.Product, error) {
	p, err := s.repos.Products().GetByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load product: %w", err)
	}
	return p, nil
}

func (s *CatalogService) Products(ctx context.Context, limit int) ([]models.Product, error) {
	return s.repos.Products().List(ctx, store.ProductFilter{Limit: limit})
}

func (s *CatalogService) SaleProducts(ctx context.Context, limit int) ([]models.Product, error) {
	return s.repos.Products().List(ctx, store.ProductFilter{OnSale: true, Limit: limit})
}

func (s *CatalogService) ProductsByCategory(ctx context.Context, categoryID int64, limit int) ([]models.Product, error) {
	return s.repos.Products().List(ctx, store.ProductFilter{CategoryID: &categoryID, Limit: limit})
}

func (s *CatalogService) Categories(ctx context.Context) ([]models.Category, error) {
	return s.repos.Products().Categories(ctx)
}
