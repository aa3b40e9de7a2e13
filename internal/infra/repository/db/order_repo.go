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
	// ErrOrderNotFound 訂單不存在
	ErrOrderNotFound = errors.New("order not found")
)

type OrderRepo struct {
	db *DbDao
}

func NewOrderRepo(db *DbDao) *OrderRepo {
	return &OrderRepo{db: db}
}

// Create - 建立訂單，帶明細一起寫入
func (s *OrderRepo) CreateOrder(ctx context.Context, order *model.Order) error {
	return s.db.WithContext(ctx).Create(order).Error
}

// Read - 根據訂單編號查詢
func (s *OrderRepo) GetOrderByNumber(ctx context.Context, orderNumber string) (*model.Order, error) {
	var order model.Order
	err := s.db.WithContext(ctx).
		Preload("LineItems").
		First(&order, "order_number = ?", orderNumber).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderNumber)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// Read - 鎖定訂單列後回傳，付款確認時使用
// 呼叫端必須在交易內使用
func (s *OrderRepo) GetOrderByNumberForUpdate(ctx context.Context, orderNumber string) (*model.Order, error) {
	var order model.Order
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("LineItems").
		First(&order, "order_number = ?", orderNumber).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderNumber)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// Read - 用戶最近一張待付款訂單
func (s *OrderRepo) GetPendingOrderByUser(ctx context.Context, userID int) (*model.Order, error) {
	var order model.Order
	err := s.db.WithContext(ctx).
		Preload("LineItems").
		Where("user_id = ? AND status = ?", userID, model.OrderStatusPending).
		Order("order_date DESC").
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: no pending order for user %d", ErrOrderNotFound, userID)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// Read - 用戶的訂單歷史，新的在前
func (s *OrderRepo) GetOrdersByUser(ctx context.Context, userID int) ([]model.Order, error) {
	var orders []model.Order
	err := s.db.WithContext(ctx).
		Preload("LineItems").
		Where("user_id = ?", userID).
		Order("order_date DESC").
		Find(&orders).Error
	return orders, err
}

// Update - 更新訂單欄位，明細另外用 ReplaceOrderLineItems 管理
func (s *OrderRepo) UpdateOrder(ctx context.Context, order *model.Order) error {
	return s.db.WithContext(ctx).Omit(clause.Associations).Save(order).Error
}

// Update - 更新訂單狀態
func (s *OrderRepo) UpdateOrderStatus(ctx context.Context, orderID uint, status model.OrderStatus) error {
	return s.db.WithContext(ctx).Model(&model.Order{}).
		Where("order_id = ?", orderID).
		Update("status", status).Error
}

// Update - 付款完成，一次寫入 paid/status/stock_adjusted
// stock_adjusted 是冪等閘門，設起來之後不會再扣第二次庫存
func (s *OrderRepo) MarkOrderPaid(ctx context.Context, orderID uint) error {
	return s.db.WithContext(ctx).Model(&model.Order{}).
		Where("order_id = ?", orderID).
		Updates(map[string]interface{}{
			"paid":           true,
			"status":         model.OrderStatusPaid,
			"stock_adjusted": true,
		}).Error
}

// Update - 重建訂單明細
// 沿用同一張待付款訂單重複結帳時，舊明細全部換掉，不留重複列
func (s *OrderRepo) ReplaceOrderLineItems(ctx context.Context, orderID uint, items []model.OrderLineItem) error {
	if err := s.db.WithContext(ctx).Unscoped().
		Where("order_id = ?", orderID).
		Delete(&model.OrderLineItem{}).Error; err != nil {
		return err
	}

	if len(items) == 0 {
		return nil
	}
	for i := range items {
		items[i].ID = 0
		items[i].OrderID = orderID
	}
	return s.db.WithContext(ctx).Create(&items).Error
}
