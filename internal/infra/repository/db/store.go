package db

import (
	"context"

	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Store 統一的資料庫介面
// Transaction 內拿到的 Store 綁定同一個交易，repo 方法交易內外共用同一套實作
type Store interface {
	// 基礎操作
	GetDB() *gorm.DB
	InitMigrate() error
	Transaction(ctx context.Context, fn func(Store) error) error

	// Product 相關操作
	IProductRepository

	// Basket 相關操作
	IBasketRepository

	// Order 相關操作
	IOrderRepository
}

// IProductRepository Product 相關操作介面
type IProductRepository interface {
	CreateProduct(ctx context.Context, product *model.Product) error
	GetProductByID(ctx context.Context, productID uint) (*model.Product, error)
	GetProductByIDForUpdate(ctx context.Context, productID uint) (*model.Product, error)
	GetProductByIdentity(ctx context.Context, weight decimal.Decimal, unit string) (*model.Product, error)
	GetAllProducts(ctx context.Context) ([]model.Product, error)
	UpdateProduct(ctx context.Context, product *model.Product) error
	DeductProductStockClamped(ctx context.Context, productID uint, quantity int) (int, error)
}

// IBasketRepository Basket 相關操作介面
type IBasketRepository interface {
	GetOrCreateBasket(ctx context.Context, userID int) (*model.Basket, error)
	GetBasketByUser(ctx context.Context, userID int) (*model.Basket, error)
	GetBasketItems(ctx context.Context, basketID uint) ([]model.BasketItem, error)
	GetBasketItemsForUpdate(ctx context.Context, basketID uint) ([]model.BasketItem, error)
	GetBasketItem(ctx context.Context, basketID, productID uint) (*model.BasketItem, error)
	AddBasketItem(ctx context.Context, item *model.BasketItem) error
	MergeBasketItem(ctx context.Context, item *model.BasketItem) error
	SetBasketItemQuantity(ctx context.Context, basketID, productID uint, quantity int) error
	RemoveBasketItem(ctx context.Context, basketID, productID uint) error
	ClearBasketItems(ctx context.Context, basketID uint) error
	SumReservedByProduct(ctx context.Context, productID uint) (int, error)
}

// IOrderRepository Order 相關操作介面
type IOrderRepository interface {
	CreateOrder(ctx context.Context, order *model.Order) error
	GetOrderByNumber(ctx context.Context, orderNumber string) (*model.Order, error)
	GetOrderByNumberForUpdate(ctx context.Context, orderNumber string) (*model.Order, error)
	GetPendingOrderByUser(ctx context.Context, userID int) (*model.Order, error)
	GetOrdersByUser(ctx context.Context, userID int) ([]model.Order, error)
	UpdateOrder(ctx context.Context, order *model.Order) error
	UpdateOrderStatus(ctx context.Context, orderID uint, status model.OrderStatus) error
	MarkOrderPaid(ctx context.Context, orderID uint) error
	ReplaceOrderLineItems(ctx context.Context, orderID uint, items []model.OrderLineItem) error
}

// StoreImpl 統一資料庫實現
type StoreImpl struct {
	db    *gorm.DB
	dbDao *DbDao
	*ProductRepo
	*BasketRepo
	*OrderRepo
}

// NewStore 創建統一資料庫實例
func NewStore(db *gorm.DB) *StoreImpl {
	dbDao := NewDbDao(db)
	return &StoreImpl{
		db:          db,
		dbDao:       dbDao,
		ProductRepo: NewProductRepo(dbDao),
		BasketRepo:  NewBasketRepo(dbDao),
		OrderRepo:   NewOrderRepo(dbDao),
	}
}

func (s *StoreImpl) InitMigrate() error {
	return s.dbDao.InitMigrate()
}

// GetDB 獲取資料庫連接
func (s *StoreImpl) GetDB() *gorm.DB {
	return s.db
}

// Transaction 在單一交易內執行 fn
// fn 裡面一定要用傳進去的 Store，用外面的會跳出交易
func (s *StoreImpl) Transaction(ctx context.Context, fn func(Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}

var (
	_ Store              = (*StoreImpl)(nil)
	_ IProductRepository = (*StoreImpl)(nil)
	_ IBasketRepository  = (*StoreImpl)(nil)
	_ IOrderRepository   = (*StoreImpl)(nil)
)
