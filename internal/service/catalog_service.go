package service

import (
	"context"
	"fmt"

	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	"github.com/RoyceAzure/lab/storefront/internal/infra/repository/db"
)

type ICatalogService interface {
	ListProducts(ctx context.Context) ([]model.Product, error)
	GetProduct(ctx context.Context, productID uint) (*model.Product, error)
	GetProductByKey(ctx context.Context, productKey string) (*model.Product, error)
	CreateProduct(ctx context.Context, product *model.Product) error
	UpdateProduct(ctx context.Context, product *model.Product) error
}

// CatalogService 商品目錄
// 讀多寫少，庫存唯一的非管理異動入口是付款確認的扣庫存
type CatalogService struct {
	store db.Store
}

func NewCatalogService(store db.Store) *CatalogService {
	if store == nil {
		panic("catalog service dependency store is nil")
	}
	return &CatalogService{store: store}
}

// ListProducts 依重量排序回傳所有商品，商品頁使用
func (s *CatalogService) ListProducts(ctx context.Context) ([]model.Product, error) {
	return s.store.GetAllProducts(ctx)
}

func (s *CatalogService) GetProduct(ctx context.Context, productID uint) (*model.Product, error) {
	return s.store.GetProductByID(ctx, productID)
}

// GetProductByKey 用購物籃鍵值 ("16", "16.5", "35lb") 查商品
// 錯誤:
//   - db.ErrProductNotFound: 鍵值格式錯誤或商品不存在
func (s *CatalogService) GetProductByKey(ctx context.Context, productKey string) (*model.Product, error) {
	return resolveProduct(ctx, s.store, productKey)
}

func (s *CatalogService) CreateProduct(ctx context.Context, product *model.Product) error {
	if err := validateProduct(product); err != nil {
		return err
	}
	return s.store.CreateProduct(ctx, product)
}

func (s *CatalogService) UpdateProduct(ctx context.Context, product *model.Product) error {
	if err := validateProduct(product); err != nil {
		return err
	}
	return s.store.UpdateProduct(ctx, product)
}

func validateProduct(product *model.Product) error {
	if !product.Weight.IsPositive() {
		return fmt.Errorf("%w: weight must be positive", model.ErrValidationFailed)
	}
	if product.WeightUnit != model.WeightUnitKg && product.WeightUnit != model.WeightUnitLb {
		return fmt.Errorf("%w: unsupported weight unit %q", model.ErrValidationFailed, product.WeightUnit)
	}
	if product.Price.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", model.ErrValidationFailed)
	}
	return nil
}

var _ ICatalogService = (*CatalogService)(nil)
