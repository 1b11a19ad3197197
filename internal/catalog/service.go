// Package catalog manages the tenant's categories and sellable products.
package catalog

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/noah-isme/backend-billing/internal/cache"
	"github.com/noah-isme/backend-billing/internal/common"
)

// Service orchestrates catalog queries, validation, and caching.
type Service struct {
	Store *Store
	Cache *cache.Cache
}

// ListParams captures filters for product listing.
type ListParams struct {
	Query      string
	CategoryID string
	Page       int
	PerPage    int
}

// ProductListResult contains list data and pagination metadata.
type ProductListResult struct {
	Items []Product
	Total int
}

// CategoryInput is the payload for category creation.
type CategoryInput struct {
	Name string `json:"name" validate:"required"`
}

// ProductInput is the payload for product creation and updates.
type ProductInput struct {
	CategoryID   *string `json:"categoryId"`
	Name         string  `json:"name" validate:"required"`
	SellingPrice float64 `json:"sellingPrice" validate:"gte=0"`
	TaxPercent   float64 `json:"taxPercent" validate:"gte=0,lte=100"`
	ItemsPerBox  int     `json:"itemsPerBox" validate:"gte=1"`
	Active       *bool   `json:"active"`
}

func categoriesKey(tenantID string) string {
	return "catalog:" + tenantID + ":categories"
}

func (s *Service) ListCategories(ctx context.Context, tenantID string) ([]Category, error) {
	var cached []Category
	if hit, err := s.Cache.GetJSON(ctx, categoriesKey(tenantID), &cached); err == nil && hit {
		return cached, nil
	}
	categories, err := s.Store.ListCategories(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	_ = s.Cache.SetJSON(ctx, categoriesKey(tenantID), categories)
	return categories, nil
}

func (s *Service) CreateCategory(ctx context.Context, tenantID string, in CategoryInput) (Category, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Category{}, common.BadRequest("VALIDATION_ERROR", "category name is required", nil)
	}
	category, err := s.Store.CreateCategory(ctx, tenantID, name, Slugify(name))
	if err != nil {
		if errors.Is(err, ErrDuplicateSlug) {
			return Category{}, common.NewAppError("DUPLICATE", "category already exists", 409, err)
		}
		return Category{}, err
	}
	s.Cache.Invalidate(ctx, categoriesKey(tenantID))
	return category, nil
}

func (s *Service) ListProducts(ctx context.Context, tenantID string, params ListParams) (ProductListResult, error) {
	offset := (params.Page - 1) * params.PerPage
	items, total, err := s.Store.ListProducts(ctx, tenantID,
		strings.TrimSpace(params.Query), strings.TrimSpace(params.CategoryID), params.PerPage, offset)
	if err != nil {
		return ProductListResult{}, err
	}
	return ProductListResult{Items: items, Total: total}, nil
}

func (s *Service) GetProduct(ctx context.Context, tenantID, productID string) (Product, error) {
	product, err := s.Store.GetProduct(ctx, tenantID, productID)
	if errors.Is(err, ErrNotFound) {
		return Product{}, common.NotFoundErr("product not found")
	}
	return product, err
}

func (s *Service) CreateProduct(ctx context.Context, tenantID string, in ProductInput) (Product, error) {
	if err := validateProductInput(in); err != nil {
		return Product{}, err
	}
	name := strings.TrimSpace(in.Name)
	product, err := s.Store.CreateProduct(ctx, tenantID, Product{
		CategoryID:   in.CategoryID,
		Name:         name,
		Slug:         Slugify(name),
		SellingPrice: in.SellingPrice,
		TaxPercent:   in.TaxPercent,
		ItemsPerBox:  in.ItemsPerBox,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateSlug) {
			return Product{}, common.NewAppError("DUPLICATE", "product already exists", 409, err)
		}
		return Product{}, err
	}
	return product, nil
}

func (s *Service) UpdateProduct(ctx context.Context, tenantID, productID string, in ProductInput) (Product, error) {
	if err := validateProductInput(in); err != nil {
		return Product{}, err
	}
	existing, err := s.GetProduct(ctx, tenantID, productID)
	if err != nil {
		return Product{}, err
	}
	existing.CategoryID = in.CategoryID
	existing.Name = strings.TrimSpace(in.Name)
	existing.SellingPrice = in.SellingPrice
	existing.TaxPercent = in.TaxPercent
	existing.ItemsPerBox = in.ItemsPerBox
	if in.Active != nil {
		existing.Active = *in.Active
	}
	updated, err := s.Store.UpdateProduct(ctx, tenantID, existing)
	if errors.Is(err, ErrNotFound) {
		return Product{}, common.NotFoundErr("product not found")
	}
	return updated, err
}

func validateProductInput(in ProductInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return common.BadRequest("VALIDATION_ERROR", "product name is required", nil)
	}
	if in.SellingPrice < 0 {
		return common.BadRequest("VALIDATION_ERROR", "selling price must not be negative", nil)
	}
	if in.TaxPercent < 0 || in.TaxPercent > 100 {
		return common.BadRequest("VALIDATION_ERROR", "tax percent must be between 0 and 100", nil)
	}
	if in.ItemsPerBox < 1 {
		return common.BadRequest("VALIDATION_ERROR", "items per box must be at least 1", nil)
	}
	return nil
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases the name and collapses non-alphanumeric runs to dashes.
func Slugify(name string) string {
	slug := slugPattern.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
	return strings.Trim(slug, "-")
}

