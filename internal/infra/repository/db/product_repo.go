package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrProductNotFound 商品不存在
	ErrProductNotFound = errors.New("product not found")
)

type ProductRepo struct {
	db *DbDao
}

func NewProductRepo(db *DbDao) *ProductRepo {
	return &ProductRepo{db: db}
}

// Create - 建立商品
func (s *ProductRepo) CreateProduct(ctx context.Context, product *model.Product) error {
	return s.db.WithContext(ctx).Create(product).Error
}

// Read - 根據ID查詢商品
func (s *ProductRepo) GetProductByID(ctx context.Context, productID uint) (*model.Product, error) {
	var product model.Product
	err := s.db.WithContext(ctx).First(&product, productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: id %d", ErrProductNotFound, productID)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// Read - 鎖定商品列後回傳
// 呼叫端必須在交易內使用，否則鎖沒有效果
func (s *ProductRepo) GetProductByIDForUpdate(ctx context.Context, productID uint) (*model.Product, error) {
	var product model.Product
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&product, productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: id %d", ErrProductNotFound, productID)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// Read - 根據 (重量, 單位) 查詢商品
func (s *ProductRepo) GetProductByIdentity(ctx context.Context, weight decimal.Decimal, unit string) (*model.Product, error) {
	var product model.Product
	err := s.db.WithContext(ctx).
		Where("weight = ? AND weight_unit = ?", weight, unit).
		First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s %s", ErrProductNotFound, weight, unit)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// Read - 查詢所有商品，照重量排序
func (s *ProductRepo) GetAllProducts(ctx context.Context) ([]model.Product, error) {
	var products []model.Product
	err := s.db.WithContext(ctx).
		Order("weight asc").Order("weight_unit asc").
		Find(&products).Error
	return products, err
}

// Update - 更新商品
func (s *ProductRepo) UpdateProduct(ctx context.Context, product *model.Product) error {
	return s.db.WithContext(ctx).Omit(clause.Associations).Save(product).Error
}

// Update - 扣庫存，不足時扣到 0 為止，不會變成負數
// 會先鎖定商品列再計算，呼叫端必須在交易內使用
func (s *ProductRepo) DeductProductStockClamped(ctx context.Context, productID uint, quantity int) (int, error) {
	var product model.Product
	if err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&product, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("%w: id %d", ErrProductNotFound, productID)
		}
		return 0, err
	}

	newStock := int(product.Stock) - quantity
	if newStock < 0 {
		newStock = 0
	}

	if err := s.db.WithContext(ctx).Model(&model.Product{}).
		Where("product_id = ?", productID).
		Update("stock", newStock).Error; err != nil {
		return 0, err
	}
	return newStock, nil
}
