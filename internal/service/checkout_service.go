package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	"github.com/RoyceAzure/lab/storefront/internal/infra/gateway"
	"github.com/RoyceAzure/lab/storefront/internal/infra/producer"
	"github.com/RoyceAzure/lab/storefront/internal/infra/repository/db"
	"github.com/RoyceAzure/lab/storefront/internal/infra/repository/redis_repo"
	"github.com/RoyceAzure/lab/storefront/internal/pkg/util"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var (
	// ErrPermissionDenied 不是訂單的擁有者
	ErrPermissionDenied = errors.New("permission denied")
)

// 結帳金額一律使用 gbp
const checkoutCurrency = "gbp"

type ICheckoutService interface {
	Checkout(ctx context.Context, sess *model.SessionState, userID int, contact model.ContactInfo) (*model.Order, error)
	CreateCheckoutIntent(ctx context.Context, sess *model.SessionState, userID int, orderNumber string) (*gateway.Intent, error)
	Resume(ctx context.Context, sess *model.SessionState, userID int, orderNumber string) (*model.Order, error)
	OrderDetail(ctx context.Context, sess *model.SessionState, userID int, orderNumber string) (*model.Order, error)
	Cancel(ctx context.Context, sess *model.SessionState, userID int, orderNumber string) (*model.Order, error)
	OrdersForUser(ctx context.Context, userID int) ([]model.Order, error)
	MarkDispatched(ctx context.Context, orderNumber string) (*model.Order, error)
}

// CheckoutService 把購物籃組成訂單並走付款流程
// 結帳不清購物籃，付款確認前購物籃就是保留量
type CheckoutService struct {
	store       db.Store
	sessionRepo redis_repo.ISessionRepository
	gateway     gateway.IPaymentGateway
	producer    producer.IOrderEventProducer
}

func NewCheckoutService(
	store db.Store,
	sessionRepo redis_repo.ISessionRepository,
	paymentGateway gateway.IPaymentGateway,
	orderProducer producer.IOrderEventProducer,
) *CheckoutService {
	if store == nil {
		panic("checkout service dependency store is nil")
	}
	if sessionRepo == nil {
		panic("checkout service dependency sessionRepo is nil")
	}
	if paymentGateway == nil {
		panic("checkout service dependency paymentGateway is nil")
	}
	if orderProducer == nil {
		panic("checkout service dependency orderProducer is nil")
	}
	return &CheckoutService{
		store:       store,
		sessionRepo: sessionRepo,
		gateway:     paymentGateway,
		producer:    orderProducer,
	}
}

// Checkout 建立或沿用 PENDING 訂單
// 同一個擁有者用同一份購物籃重送結帳單時沿用原訂單，
// 聯絡資料蓋掉重填、明細整批重建、訂單編號不變
// 錯誤:
//   - model.ErrValidationFailed: 聯絡資料不完整或購物籃是空的
func (s *CheckoutService) Checkout(ctx context.Context, sess *model.SessionState, userID int, contact model.ContactInfo) (*model.Order, error) {
	if err := contact.Validate(); err != nil {
		return nil, err
	}
	if userID <= 0 && sess == nil {
		return nil, fmt.Errorf("%w: anonymous checkout requires a session", model.ErrValidationFailed)
	}

	var order *model.Order
	reused := false
	err := s.store.Transaction(ctx, func(tx db.Store) error {
		var snapshot model.BasketSnapshot
		if userID > 0 {
			basket, err := tx.GetBasketByUser(ctx, userID)
			if err != nil && !errors.Is(err, db.ErrBasketNotFound) {
				return err
			}
			if err == nil {
				items, err := tx.GetBasketItemsForUpdate(ctx, basket.BasketID)
				if err != nil {
					return err
				}
				snapshot = snapshotFromItems(items)
			}
		} else {
			snapshot = sess.Snapshot()
		}
		if snapshot.IsEmpty() {
			return fmt.Errorf("%w: basket is empty", model.ErrValidationFailed)
		}

		encoded, err := snapshot.Encode()
		if err != nil {
			return err
		}

		existing, err := s.findReusableOrder(ctx, tx, sess, userID, snapshot)
		if err != nil {
			return err
		}

		lines, total, err := buildOrderLines(ctx, tx, snapshot)
		if err != nil {
			return err
		}

		if existing != nil {
			contact.ApplyTo(existing)
			existing.OrderDate = time.Now().UTC()
			existing.Total = total
			if err := tx.UpdateOrder(ctx, existing); err != nil {
				return err
			}
			if err := tx.ReplaceOrderLineItems(ctx, existing.OrderID, lines); err != nil {
				return err
			}
			existing.LineItems = lines
			order = existing
			reused = true
			return nil
		}

		order = &model.Order{
			OrderNumber:    util.GenerateOrderNumber(),
			OrderDate:      time.Now().UTC(),
			Total:          total,
			OriginalBasket: encoded,
			Status:         model.OrderStatusPending,
			LineItems:      lines,
		}
		if userID > 0 {
			uid := userID
			order.UserID = &uid
		}
		contact.ApplyTo(order)
		return tx.CreateOrder(ctx, order)
	})
	if err != nil {
		return nil, err
	}

	// 匿名訂單把訂單編號綁回 session，這是之後唯一的擁有權憑證
	if userID <= 0 && sess.PendingOrder != order.OrderNumber {
		sess.PendingOrder = order.OrderNumber
		if err := s.sessionRepo.Save(ctx, sess); err != nil {
			return nil, err
		}
	}

	// 沿用舊單不重發事件，下游只會看到一次 order created
	if !reused {
		if perr := s.producer.ProduceOrderCreated(ctx, order); perr != nil {
			log.Warn().Err(perr).Str("order_number", order.OrderNumber).Msg("produce order created event failed")
		}
	}
	return order, nil
}

// findReusableOrder 找可以沿用的 PENDING 訂單
// 快照不一致就回 nil，讓呼叫端開新訂單
func (s *CheckoutService) findReusableOrder(ctx context.Context, tx db.Store, sess *model.SessionState, userID int, snapshot model.BasketSnapshot) (*model.Order, error) {
	var candidate *model.Order
	if userID > 0 {
		order, err := tx.GetPendingOrderByUser(ctx, userID)
		if err != nil {
			if errors.Is(err, db.ErrOrderNotFound) {
				return nil, nil
			}
			return nil, err
		}
		candidate = order
	} else if sess.PendingOrder != "" {
		order, err := tx.GetOrderByNumberForUpdate(ctx, sess.PendingOrder)
		if err != nil {
			if errors.Is(err, db.ErrOrderNotFound) {
				return nil, nil
			}
			return nil, err
		}
		if order.Status != model.OrderStatusPending {
			return nil, nil
		}
		candidate = order
	}
	if candidate == nil {
		return nil, nil
	}

	previous, err := model.DecodeBasketSnapshot(candidate.OriginalBasket)
	if err != nil {
		log.Warn().Err(err).Str("order_number", candidate.OrderNumber).Msg("stored basket snapshot not decodable, create a new order")
		return nil, nil
	}
	if !previous.Equal(snapshot) {
		return nil, nil
	}
	return candidate, nil
}

// CreateCheckoutIntent 向金流建立付款意圖
// 金流失敗訂單留在 PENDING，可以直接重試
// 錯誤:
//   - ErrPermissionDenied: 不是訂單擁有者
//   - model.ErrInvalidStateTransition: 訂單不在 PENDING
//   - gateway.ErrGatewayFailure: 金流端失敗
func (s *CheckoutService) CreateCheckoutIntent(ctx context.Context, sess *model.SessionState, userID int, orderNumber string) (*gateway.Intent, error) {
	order, err := s.store.GetOrderByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if !canAccessOrder(order, sess, userID) {
		return nil, fmt.Errorf("%w: order %s", ErrPermissionDenied, orderNumber)
	}
	if order.Status != model.OrderStatusPending {
		return nil, fmt.Errorf("%w: order %s is %s", model.ErrInvalidStateTransition, orderNumber, order.Status)
	}

	req := gateway.IntentRequest{
		OrderNumber: order.OrderNumber,
		Amount:      order.Total,
		Currency:    checkoutCurrency,
		Metadata:    map[string]string{"order_number": order.OrderNumber},
	}
	for _, line := range order.LineItems {
		req.LineItems = append(req.LineItems, gateway.IntentLineItem{
			Name:     line.ProductName,
			Quantity: line.Quantity,
			Price:    line.Price,
		})
	}

	intent, err := s.gateway.CreateCheckoutIntent(ctx, req)
	if err != nil {
		if errors.Is(err, gateway.ErrGatewayFailure) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", gateway.ErrGatewayFailure, err)
	}
	return intent, nil
}

// Resume 回到付款頁重新付款，只有 PENDING 訂單可以
func (s *CheckoutService) Resume(ctx context.Context, sess *model.SessionState, userID int, orderNumber string) (*model.Order, error) {
	order, err := s.store.GetOrderByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if !canAccessOrder(order, sess, userID) {
		return nil, fmt.Errorf("%w: order %s", ErrPermissionDenied, orderNumber)
	}
	if order.Status != model.OrderStatusPending {
		return nil, fmt.Errorf("%w: order %s is %s", model.ErrInvalidStateTransition, orderNumber, order.Status)
	}
	return order, nil
}

// OrderDetail 訂單明細頁
func (s *CheckoutService) OrderDetail(ctx context.Context, sess *model.SessionState, userID int, orderNumber string) (*model.Order, error) {
	order, err := s.store.GetOrderByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if !canAccessOrder(order, sess, userID) {
		return nil, fmt.Errorf("%w: order %s", ErrPermissionDenied, orderNumber)
	}
	return order, nil
}

// Cancel 取消 PENDING 訂單並釋放保留
// db 購物籃整籃清掉，session 購物籃只有跟訂單快照一致時才清
func (s *CheckoutService) Cancel(ctx context.Context, sess *model.SessionState, userID int, orderNumber string) (*model.Order, error) {
	var order *model.Order
	err := s.store.Transaction(ctx, func(tx db.Store) error {
		var err error
		order, err = tx.GetOrderByNumberForUpdate(ctx, orderNumber)
		if err != nil {
			return err
		}
		if !canAccessOrder(order, sess, userID) {
			return fmt.Errorf("%w: order %s", ErrPermissionDenied, orderNumber)
		}
		if err := order.TransitionTo(model.OrderStatusFailed); err != nil {
			return err
		}
		if err := tx.UpdateOrderStatus(ctx, order.OrderID, model.OrderStatusFailed); err != nil {
			return err
		}

		if order.UserID != nil {
			basket, err := tx.GetBasketByUser(ctx, *order.UserID)
			if err == nil {
				if cerr := tx.ClearBasketItems(ctx, basket.BasketID); cerr != nil {
					return cerr
				}
			} else if !errors.Is(err, db.ErrBasketNotFound) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if sess != nil {
		sessionDirty := false
		if snapshot, derr := model.DecodeBasketSnapshot(order.OriginalBasket); derr == nil {
			if len(sess.Basket) > 0 && sess.Snapshot().Equal(snapshot) {
				sess.ClearBasket()
				sessionDirty = true
			}
		}
		if sess.PendingOrder == order.OrderNumber {
			sess.PendingOrder = ""
			sessionDirty = true
		}
		if sessionDirty {
			if err := s.sessionRepo.Save(ctx, sess); err != nil {
				return nil, err
			}
		}
	}

	if perr := s.producer.ProduceOrderCancelled(ctx, order, "cancelled by customer"); perr != nil {
		log.Warn().Err(perr).Str("order_number", order.OrderNumber).Msg("produce order cancelled event failed")
	}
	return order, nil
}

// OrdersForUser 帳號的歷史訂單，個人頁使用
func (s *CheckoutService) OrdersForUser(ctx context.Context, userID int) ([]model.Order, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: user id required", model.ErrValidationFailed)
	}
	return s.store.GetOrdersByUser(ctx, userID)
}

// MarkDispatched 出貨，只有 PAID 訂單可以
func (s *CheckoutService) MarkDispatched(ctx context.Context, orderNumber string) (*model.Order, error) {
	var order *model.Order
	err := s.store.Transaction(ctx, func(tx db.Store) error {
		var err error
		order, err = tx.GetOrderByNumberForUpdate(ctx, orderNumber)
		if err != nil {
			return err
		}
		if err := order.TransitionTo(model.OrderStatusDispatched); err != nil {
			return err
		}
		return tx.UpdateOrderStatus(ctx, order.OrderID, model.OrderStatusDispatched)
	})
	if err != nil {
		return nil, err
	}

	if perr := s.producer.ProduceOrderDispatched(ctx, order); perr != nil {
		log.Warn().Err(perr).Str("order_number", order.OrderNumber).Msg("produce order dispatched event failed")
	}
	return order, nil
}

// canAccessOrder 訂單存取權
// 帳號訂單看 user id，匿名訂單比對 session 綁定的訂單編號
func canAccessOrder(order *model.Order, sess *model.SessionState, userID int) bool {
	if order.IsOwnedBy(userID) {
		return true
	}
	return sess != nil && sess.PendingOrder == order.OrderNumber
}

// snapshotFromItems 把 db 購物籃轉成正規化快照
func snapshotFromItems(items []model.BasketItem) model.BasketSnapshot {
	snapshot := make(model.BasketSnapshot, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		product := item.Product
		snapshot[product.Key()] = model.SnapshotItem{
			Quantity: item.Quantity,
			Price:    item.PriceSnapshot.StringFixed(2),
		}
	}
	return snapshot
}

// buildOrderLines 把快照展開成訂單明細
// 同商品同單價的項目合併成一條，解析不到的商品略過只留警告
func buildOrderLines(ctx context.Context, store db.Store, snapshot model.BasketSnapshot) ([]model.OrderLineItem, decimal.Decimal, error) {
	keys := make([]string, 0, len(snapshot))
	for key := range snapshot {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	type lineKey struct {
		productID uint
		price     string
	}
	index := make(map[lineKey]int)
	lines := make([]model.OrderLineItem, 0, len(keys))
	total := decimal.Zero

	for _, key := range keys {
		entry := snapshot[key]
		product, err := resolveProduct(ctx, store, key)
		if err != nil {
			if errors.Is(err, db.ErrProductNotFound) {
				log.Warn().Str("product_key", key).Msg("skip unresolvable basket entry on checkout")
				continue
			}
			return nil, decimal.Decimal{}, err
		}
		price, err := decimal.NewFromString(entry.Price)
		if err != nil {
			return nil, decimal.Decimal{}, fmt.Errorf("parse snapshot price %q: %w", entry.Price, err)
		}

		lk := lineKey{productID: product.ProductID, price: price.StringFixed(2)}
		if i, ok := index[lk]; ok {
			lines[i].Quantity += entry.Quantity
		} else {
			productID := product.ProductID
			index[lk] = len(lines)
			lines = append(lines, model.OrderLineItem{
				ProductID:   &productID,
				ProductName: product.Label(),
				Quantity:    entry.Quantity,
				Price:       price,
			})
		}
		total = total.Add(price.Mul(decimal.NewFromInt(int64(entry.Quantity))))
	}
	return lines, total, nil
}

var _ ICheckoutService = (*CheckoutService)(nil)
