package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	evt_model "github.com/RoyceAzure/lab/storefront/internal/domain/model/event"
	"github.com/RoyceAzure/lab/storefront/internal/infra/gateway"
	"github.com/RoyceAzure/lab/storefront/internal/infra/producer"
	"github.com/RoyceAzure/lab/storefront/internal/infra/repository/db"
	"github.com/RoyceAzure/lab/storefront/internal/infra/repository/redis_repo"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

/*	記憶體版的 db.Store
	行為對齊 repo 實作: 讀取回傳複本、upsert 累加數量、交易失敗整包回滾
	Transaction 用互斥鎖序列化，併發測試可以直接打*/

type fakeData struct {
	productSeq uint
	basketSeq  uint
	orderSeq   uint
	lineSeq    uint

	products     map[uint]*model.Product
	baskets      map[uint]*model.Basket
	basketByUser map[int]uint
	basketItems  map[uint]map[uint]*model.BasketItem
	orders       map[uint]*model.Order
	orderByNum   map[string]uint
	orderLines   map[uint][]model.OrderLineItem
}

func newFakeData() *fakeData {
	return &fakeData{
		products:     make(map[uint]*model.Product),
		baskets:      make(map[uint]*model.Basket),
		basketByUser: make(map[int]uint),
		basketItems:  make(map[uint]map[uint]*model.BasketItem),
		orders:       make(map[uint]*model.Order),
		orderByNum:   make(map[string]uint),
		orderLines:   make(map[uint][]model.OrderLineItem),
	}
}

func (d *fakeData) clone() *fakeData {
	c := newFakeData()
	c.productSeq, c.basketSeq, c.orderSeq, c.lineSeq = d.productSeq, d.basketSeq, d.orderSeq, d.lineSeq
	for id, p := range d.products {
		cp := *p
		c.products[id] = &cp
	}
	for id, b := range d.baskets {
		cb := *b
		c.baskets[id] = &cb
	}
	for uid, id := range d.basketByUser {
		c.basketByUser[uid] = id
	}
	for bid, items := range d.basketItems {
		m := make(map[uint]*model.BasketItem, len(items))
		for pid, item := range items {
			ci := *item
			m[pid] = &ci
		}
		c.basketItems[bid] = m
	}
	for id, o := range d.orders {
		co := *o
		c.orders[id] = &co
	}
	for num, id := range d.orderByNum {
		c.orderByNum[num] = id
	}
	for id, lines := range d.orderLines {
		c.orderLines[id] = append([]model.OrderLineItem(nil), lines...)
	}
	return c
}

type fakeStore struct {
	mu   *sync.Mutex
	data *fakeData
	inTx bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{mu: &sync.Mutex{}, data: newFakeData()}
}

func (f *fakeStore) lock() func() {
	if f.inTx {
		return func() {}
	}
	f.mu.Lock()
	return f.mu.Unlock
}

func (f *fakeStore) GetDB() *gorm.DB { return nil }

func (f *fakeStore) InitMigrate() error { return nil }

func (f *fakeStore) Transaction(ctx context.Context, fn func(db.Store) error) error {
	if f.inTx {
		return fn(f)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	backup := f.data.clone()
	err := fn(&fakeStore{mu: f.mu, data: f.data, inTx: true})
	if err != nil {
		*f.data = *backup
	}
	return err
}

// ---- products ----

func (f *fakeStore) CreateProduct(ctx context.Context, product *model.Product) error {
	defer f.lock()()
	for _, p := range f.data.products {
		if p.Weight.Equal(product.Weight) && p.WeightUnit == product.WeightUnit {
			return fmt.Errorf("duplicate key value violates unique constraint \"idx_weight_unit\"")
		}
	}
	f.data.productSeq++
	product.ProductID = f.data.productSeq
	cp := *product
	f.data.products[cp.ProductID] = &cp
	return nil
}

func (f *fakeStore) GetProductByID(ctx context.Context, productID uint) (*model.Product, error) {
	defer f.lock()()
	p, ok := f.data.products[productID]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", db.ErrProductNotFound, productID)
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) GetProductByIDForUpdate(ctx context.Context, productID uint) (*model.Product, error) {
	return f.GetProductByID(ctx, productID)
}

func (f *fakeStore) GetProductByIdentity(ctx context.Context, weight decimal.Decimal, unit string) (*model.Product, error) {
	defer f.lock()()
	for _, p := range f.data.products {
		if p.Weight.Equal(weight) && p.WeightUnit == unit {
			cp := *p
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: %s %s", db.ErrProductNotFound, weight.String(), unit)
}

func (f *fakeStore) GetAllProducts(ctx context.Context) ([]model.Product, error) {
	defer f.lock()()
	products := make([]model.Product, 0, len(f.data.products))
	for _, p := range f.data.products {
		products = append(products, *p)
	}
	sort.Slice(products, func(i, j int) bool {
		if !products[i].Weight.Equal(products[j].Weight) {
			return products[i].Weight.LessThan(products[j].Weight)
		}
		return products[i].WeightUnit < products[j].WeightUnit
	})
	return products, nil
}

func (f *fakeStore) UpdateProduct(ctx context.Context, product *model.Product) error {
	defer f.lock()()
	if _, ok := f.data.products[product.ProductID]; !ok {
		return fmt.Errorf("%w: id %d", db.ErrProductNotFound, product.ProductID)
	}
	cp := *product
	f.data.products[cp.ProductID] = &cp
	return nil
}

func (f *fakeStore) DeductProductStockClamped(ctx context.Context, productID uint, quantity int) (int, error) {
	defer f.lock()()
	p, ok := f.data.products[productID]
	if !ok {
		return 0, fmt.Errorf("%w: id %d", db.ErrProductNotFound, productID)
	}
	newStock := int(p.Stock) - quantity
	if newStock < 0 {
		newStock = 0
	}
	p.Stock = uint(newStock)
	return newStock, nil
}

// ---- baskets ----

func (f *fakeStore) GetOrCreateBasket(ctx context.Context, userID int) (*model.Basket, error) {
	defer f.lock()()
	if id, ok := f.data.basketByUser[userID]; ok {
		cb := *f.data.baskets[id]
		return &cb, nil
	}
	f.data.basketSeq++
	b := &model.Basket{BasketID: f.data.basketSeq, UserID: userID}
	f.data.baskets[b.BasketID] = b
	f.data.basketByUser[userID] = b.BasketID
	f.data.basketItems[b.BasketID] = make(map[uint]*model.BasketItem)
	cb := *b
	return &cb, nil
}

func (f *fakeStore) GetBasketByUser(ctx context.Context, userID int) (*model.Basket, error) {
	defer f.lock()()
	id, ok := f.data.basketByUser[userID]
	if !ok {
		return nil, fmt.Errorf("%w: user %d", db.ErrBasketNotFound, userID)
	}
	cb := *f.data.baskets[id]
	return &cb, nil
}

func (f *fakeStore) GetBasketItems(ctx context.Context, basketID uint) ([]model.BasketItem, error) {
	defer f.lock()()
	items := make([]model.BasketItem, 0, len(f.data.basketItems[basketID]))
	for _, item := range f.data.basketItems[basketID] {
		ci := *item
		if p, ok := f.data.products[ci.ProductID]; ok {
			ci.Product = *p
		}
		items = append(items, ci)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })
	return items, nil
}

func (f *fakeStore) GetBasketItemsForUpdate(ctx context.Context, basketID uint) ([]model.BasketItem, error) {
	return f.GetBasketItems(ctx, basketID)
}

func (f *fakeStore) GetBasketItem(ctx context.Context, basketID, productID uint) (*model.BasketItem, error) {
	defer f.lock()()
	item, ok := f.data.basketItems[basketID][productID]
	if !ok {
		return nil, fmt.Errorf("%w: basket %d product %d", db.ErrBasketItemNotFound, basketID, productID)
	}
	ci := *item
	return &ci, nil
}

func (f *fakeStore) AddBasketItem(ctx context.Context, item *model.BasketItem) error {
	defer f.lock()()
	if f.data.basketItems[item.BasketID] == nil {
		f.data.basketItems[item.BasketID] = make(map[uint]*model.BasketItem)
	}
	if existing, ok := f.data.basketItems[item.BasketID][item.ProductID]; ok {
		existing.Quantity += item.Quantity
		return nil
	}
	ci := *item
	f.data.basketItems[item.BasketID][item.ProductID] = &ci
	return nil
}

func (f *fakeStore) MergeBasketItem(ctx context.Context, item *model.BasketItem) error {
	defer f.lock()()
	if f.data.basketItems[item.BasketID] == nil {
		f.data.basketItems[item.BasketID] = make(map[uint]*model.BasketItem)
	}
	if existing, ok := f.data.basketItems[item.BasketID][item.ProductID]; ok {
		existing.Quantity += item.Quantity
		existing.PriceSnapshot = item.PriceSnapshot
		return nil
	}
	ci := *item
	f.data.basketItems[item.BasketID][item.ProductID] = &ci
	return nil
}

func (f *fakeStore) SetBasketItemQuantity(ctx context.Context, basketID, productID uint, quantity int) error {
	defer f.lock()()
	if item, ok := f.data.basketItems[basketID][productID]; ok {
		item.Quantity = quantity
	}
	return nil
}

func (f *fakeStore) RemoveBasketItem(ctx context.Context, basketID, productID uint) error {
	defer f.lock()()
	delete(f.data.basketItems[basketID], productID)
	return nil
}

func (f *fakeStore) ClearBasketItems(ctx context.Context, basketID uint) error {
	defer f.lock()()
	f.data.basketItems[basketID] = make(map[uint]*model.BasketItem)
	return nil
}

func (f *fakeStore) SumReservedByProduct(ctx context.Context, productID uint) (int, error) {
	defer f.lock()()
	total := 0
	for _, items := range f.data.basketItems {
		if item, ok := items[productID]; ok {
			total += item.Quantity
		}
	}
	return total, nil
}

// ---- orders ----

func (d *fakeData) orderCopy(id uint) *model.Order {
	co := *d.orders[id]
	co.LineItems = append([]model.OrderLineItem(nil), d.orderLines[id]...)
	return &co
}

func (f *fakeStore) CreateOrder(ctx context.Context, order *model.Order) error {
	defer f.lock()()
	if _, ok := f.data.orderByNum[order.OrderNumber]; ok {
		return fmt.Errorf("duplicate key value violates unique constraint on order_number")
	}
	f.data.orderSeq++
	order.OrderID = f.data.orderSeq
	lines := append([]model.OrderLineItem(nil), order.LineItems...)
	for i := range lines {
		f.data.lineSeq++
		lines[i].ID = f.data.lineSeq
		lines[i].OrderID = order.OrderID
	}
	co := *order
	co.LineItems = nil
	f.data.orders[co.OrderID] = &co
	f.data.orderByNum[co.OrderNumber] = co.OrderID
	f.data.orderLines[co.OrderID] = lines
	order.LineItems = lines
	return nil
}

func (f *fakeStore) GetOrderByNumber(ctx context.Context, orderNumber string) (*model.Order, error) {
	defer f.lock()()
	id, ok := f.data.orderByNum[orderNumber]
	if !ok {
		return nil, fmt.Errorf("%w: number %s", db.ErrOrderNotFound, orderNumber)
	}
	return f.data.orderCopy(id), nil
}

func (f *fakeStore) GetOrderByNumberForUpdate(ctx context.Context, orderNumber string) (*model.Order, error) {
	return f.GetOrderByNumber(ctx, orderNumber)
}

func (f *fakeStore) GetPendingOrderByUser(ctx context.Context, userID int) (*model.Order, error) {
	defer f.lock()()
	var found *model.Order
	for id, o := range f.data.orders {
		if o.UserID == nil || *o.UserID != userID || o.Status != model.OrderStatusPending {
			continue
		}
		candidate := f.data.orderCopy(id)
		if found == nil || candidate.OrderDate.After(found.OrderDate) ||
			(candidate.OrderDate.Equal(found.OrderDate) && candidate.OrderID > found.OrderID) {
			found = candidate
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%w: no pending order for user %d", db.ErrOrderNotFound, userID)
	}
	return found, nil
}

func (f *fakeStore) GetOrdersByUser(ctx context.Context, userID int) ([]model.Order, error) {
	defer f.lock()()
	orders := make([]model.Order, 0)
	for id, o := range f.data.orders {
		if o.UserID != nil && *o.UserID == userID {
			orders = append(orders, *f.data.orderCopy(id))
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].OrderDate.After(orders[j].OrderDate) })
	return orders, nil
}

func (f *fakeStore) UpdateOrder(ctx context.Context, order *model.Order) error {
	defer f.lock()()
	if _, ok := f.data.orders[order.OrderID]; !ok {
		return fmt.Errorf("%w: id %d", db.ErrOrderNotFound, order.OrderID)
	}
	co := *order
	co.LineItems = nil
	f.data.orders[co.OrderID] = &co
	return nil
}

func (f *fakeStore) UpdateOrderStatus(ctx context.Context, orderID uint, status model.OrderStatus) error {
	defer f.lock()()
	if o, ok := f.data.orders[orderID]; ok {
		o.Status = status
	}
	return nil
}

func (f *fakeStore) MarkOrderPaid(ctx context.Context, orderID uint) error {
	defer f.lock()()
	if o, ok := f.data.orders[orderID]; ok {
		o.Paid = true
		o.Status = model.OrderStatusPaid
		o.StockAdjusted = true
	}
	return nil
}

func (f *fakeStore) ReplaceOrderLineItems(ctx context.Context, orderID uint, items []model.OrderLineItem) error {
	defer f.lock()()
	lines := append([]model.OrderLineItem(nil), items...)
	for i := range lines {
		f.data.lineSeq++
		lines[i].ID = f.data.lineSeq
		lines[i].OrderID = orderID
	}
	f.data.orderLines[orderID] = lines
	for i := range items {
		items[i].ID = lines[i].ID
		items[i].OrderID = orderID
	}
	return nil
}

var _ db.Store = (*fakeStore)(nil)

// ---- session repo ----

type fakeSessionRepo struct {
	mu    sync.Mutex
	saved map[string]*model.SessionState
	saves int
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{saved: make(map[string]*model.SessionState)}
}

func cloneSession(sess *model.SessionState) *model.SessionState {
	c := *sess
	c.Basket = make(map[string]model.SessionItem, len(sess.Basket))
	for k, v := range sess.Basket {
		c.Basket[k] = v
	}
	return &c
}

func (r *fakeSessionRepo) Load(ctx context.Context, sessionID string) (*model.SessionState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.saved[sessionID]; ok {
		return cloneSession(s), nil
	}
	return model.NewSessionState(sessionID), nil
}

func (r *fakeSessionRepo) Save(ctx context.Context, sess *model.SessionState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved[sess.SessionID] = cloneSession(sess)
	r.saves++
	return nil
}

func (r *fakeSessionRepo) Delete(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.saved, sessionID)
	return nil
}

var _ redis_repo.ISessionRepository = (*fakeSessionRepo)(nil)

// ---- payment gateway ----

type fakeGateway struct {
	mu       sync.Mutex
	requests []gateway.IntentRequest
	err      error
}

func (g *fakeGateway) CreateCheckoutIntent(ctx context.Context, req gateway.IntentRequest) (*gateway.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.requests = append(g.requests, req)
	return &gateway.Intent{
		IntentID:     fmt.Sprintf("pi_test_%04d", len(g.requests)),
		ClientSecret: "cs_test_secret",
		HostedURL:    "https://pay.example.test/" + req.OrderNumber,
	}, nil
}

var _ gateway.IPaymentGateway = (*fakeGateway)(nil)

// ---- order event producer ----

type producedEvent struct {
	eventType   evt_model.EventType
	orderNumber string
}

type fakeProducer struct {
	mu     sync.Mutex
	events []producedEvent
}

func (p *fakeProducer) record(eventType evt_model.EventType, orderNumber string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, producedEvent{eventType: eventType, orderNumber: orderNumber})
}

func (p *fakeProducer) ProduceOrderCreated(ctx context.Context, order *model.Order) error {
	p.record(evt_model.OrderCreatedEventName, order.OrderNumber)
	return nil
}

func (p *fakeProducer) ProduceOrderPaid(ctx context.Context, order *model.Order) error {
	p.record(evt_model.OrderPaidEventName, order.OrderNumber)
	return nil
}

func (p *fakeProducer) ProduceOrderCancelled(ctx context.Context, order *model.Order, message string) error {
	p.record(evt_model.OrderCancelledEventName, order.OrderNumber)
	return nil
}

func (p *fakeProducer) ProduceOrderDispatched(ctx context.Context, order *model.Order) error {
	p.record(evt_model.OrderDispatchedEventName, order.OrderNumber)
	return nil
}

func (p *fakeProducer) Close() error { return nil }

func (p *fakeProducer) countByType(eventType evt_model.EventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	count := 0
	for _, e := range p.events {
		if e.eventType == eventType {
			count++
		}
	}
	return count
}

var _ producer.IOrderEventProducer = (*fakeProducer)(nil)
