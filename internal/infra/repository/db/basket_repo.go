package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrBasketNotFound 用戶沒有購物籃
	ErrBasketNotFound = errors.New("basket not found")
	// ErrBasketItemNotFound 購物籃內沒有該商品
	ErrBasketItemNotFound = errors.New("basket item not found")
)

// 登入用戶的購物籃，一人一籃
// 匿名購物籃走 session，不會進到這裡
type BasketRepo struct {
	db *DbDao
}

func NewBasketRepo(db *DbDao) *BasketRepo {
	return &BasketRepo{db: db}
}

// Read - 取得用戶購物籃，不存在就建立
func (s *BasketRepo) GetOrCreateBasket(ctx context.Context, userID int) (*model.Basket, error) {
	var basket model.Basket
	err := s.db.WithContext(ctx).
		Where(model.Basket{UserID: userID}).
		FirstOrCreate(&basket).Error
	if err != nil {
		return nil, err
	}
	return &basket, nil
}

// Read - 取得用戶購物籃
func (s *BasketRepo) GetBasketByUser(ctx context.Context, userID int) (*model.Basket, error) {
	var basket model.Basket
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&basket).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: user %d", ErrBasketNotFound, userID)
	}
	if err != nil {
		return nil, err
	}
	return &basket, nil
}

// Read - 取得購物籃內所有項目，帶出商品資訊
func (s *BasketRepo) GetBasketItems(ctx context.Context, basketID uint) ([]model.BasketItem, error) {
	var items []model.BasketItem
	err := s.db.WithContext(ctx).
		Preload("Product").
		Where("basket_id = ?", basketID).
		Find(&items).Error
	return items, err
}

// Read - 鎖定購物籃項目後回傳，結帳組訂單時使用
// 呼叫端必須在交易內使用
func (s *BasketRepo) GetBasketItemsForUpdate(ctx context.Context, basketID uint) ([]model.BasketItem, error) {
	var items []model.BasketItem
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Product").
		Where("basket_id = ?", basketID).
		Find(&items).Error
	return items, err
}

// Read - 取得購物籃內單一商品項目
func (s *BasketRepo) GetBasketItem(ctx context.Context, basketID, productID uint) (*model.BasketItem, error) {
	var item model.BasketItem
	err := s.db.WithContext(ctx).
		Where("basket_id = ? AND product_id = ?", basketID, productID).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: basket %d product %d", ErrBasketItemNotFound, basketID, productID)
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Create/Update - 加入商品，已存在就累加數量
// 保留原本的 price_snapshot，價格以第一次加入當下為準
func (s *BasketRepo) AddBasketItem(ctx context.Context, item *model.BasketItem) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "basket_id"}, {Name: "product_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"quantity":   gorm.Expr("basket_items.quantity + excluded.quantity"),
			"updated_at": gorm.Expr("now()"),
		}),
	}).Create(item).Error
}

// Create/Update - 登入合併時使用，累加數量並把 price_snapshot 更新成目前價格
func (s *BasketRepo) MergeBasketItem(ctx context.Context, item *model.BasketItem) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "basket_id"}, {Name: "product_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"quantity":       gorm.Expr("basket_items.quantity + excluded.quantity"),
			"price_snapshot": gorm.Expr("excluded.price_snapshot"),
			"updated_at":     gorm.Expr("now()"),
		}),
	}).Create(item).Error
}

// Update - 直接設定數量
func (s *BasketRepo) SetBasketItemQuantity(ctx context.Context, basketID, productID uint, quantity int) error {
	return s.db.WithContext(ctx).Model(&model.BasketItem{}).
		Where("basket_id = ? AND product_id = ?", basketID, productID).
		Update("quantity", quantity).Error
}

// Delete - 移除單一商品
// 硬刪除，避免軟刪除殘留跟 upsert 的唯一鍵衝突
func (s *BasketRepo) RemoveBasketItem(ctx context.Context, basketID, productID uint) error {
	return s.db.WithContext(ctx).Unscoped().
		Where("basket_id = ? AND product_id = ?", basketID, productID).
		Delete(&model.BasketItem{}).Error
}

// Delete - 清空購物籃
func (s *BasketRepo) ClearBasketItems(ctx context.Context, basketID uint) error {
	return s.db.WithContext(ctx).Unscoped().
		Where("basket_id = ?", basketID).
		Delete(&model.BasketItem{}).Error
}

// Read - 商品在所有購物籃內被保留的總數量
func (s *BasketRepo) SumReservedByProduct(ctx context.Context, productID uint) (int, error) {
	var total int64
	err := s.db.WithContext(ctx).Model(&model.BasketItem{}).
		Where("product_id = ?", productID).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&total).Error
	return int(total), err
}
