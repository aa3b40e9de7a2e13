package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	"github.com/RoyceAzure/lab/storefront/internal/infra/gateway"
	"github.com/RoyceAzure/lab/storefront/internal/infra/producer"
	"github.com/RoyceAzure/lab/storefront/internal/infra/repository/db"
	"github.com/RoyceAzure/lab/storefront/internal/infra/repository/redis_repo"
	"github.com/RoyceAzure/lab/storefront/internal/pkg/util"
	"github.com/rs/zerolog/log"
)

type IPaymentService interface {
	MarkPaid(ctx context.Context, sess *model.SessionState, userID int, orderNumber string) (*model.Order, error)
	HandleGatewayEvent(ctx context.Context, payload []byte, sigHeader string) error
	FinalizeSuccess(ctx context.Context, sess *model.SessionState, orderNumber string) (*model.Order, error)
}

// PaymentService 付款確認與扣庫存
// 訂單的 stock_adjusted 是冪等閘，重送的確認只會生效一次
type PaymentService struct {
	store       db.Store
	sessionRepo redis_repo.ISessionRepository
	verifier    *gateway.WebhookVerifier
	producer    producer.IOrderEventProducer
}

func NewPaymentService(
	store db.Store,
	sessionRepo redis_repo.ISessionRepository,
	verifier *gateway.WebhookVerifier,
	orderProducer producer.IOrderEventProducer,
) *PaymentService {
	if store == nil {
		panic("payment service dependency store is nil")
	}
	if sessionRepo == nil {
		panic("payment service dependency sessionRepo is nil")
	}
	if verifier == nil {
		panic("payment service dependency verifier is nil")
	}
	if orderProducer == nil {
		panic("payment service dependency orderProducer is nil")
	}
	return &PaymentService{
		store:       store,
		sessionRepo: sessionRepo,
		verifier:    verifier,
		producer:    orderProducer,
	}
}

// MarkPaid 客戶端回報付款完成
// 錯誤:
//   - db.ErrOrderNotFound: 訂單不存在
//   - ErrPermissionDenied: 不是訂單擁有者
func (s *PaymentService) MarkPaid(ctx context.Context, sess *model.SessionState, userID int, orderNumber string) (*model.Order, error) {
	order, err := s.store.GetOrderByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if !canAccessOrder(order, sess, userID) {
		return nil, fmt.Errorf("%w: order %s", ErrPermissionDenied, orderNumber)
	}
	return s.confirm(ctx, orderNumber)
}

// HandleGatewayEvent 金流 webhook 入口
// 設定了 webhook secret 就驗簽章，沒設定視為開發環境直接信任
// 不認識的事件種類與不存在的訂單都當成功吞掉，金流端才不會一直重送
func (s *PaymentService) HandleGatewayEvent(ctx context.Context, payload []byte, sigHeader string) error {
	if err := s.verifier.Verify(payload, sigHeader); err != nil {
		return err
	}

	event, err := gateway.ParseWebhookEvent(payload)
	if err != nil {
		return err
	}
	if !event.IsPaymentSuccess() {
		log.Info().Str("event_type", event.Type).Msg("ignore webhook event")
		return nil
	}

	orderNumber := event.OrderNumber()
	if orderNumber == "" {
		log.Warn().Str("event_id", event.ID).Msg("payment event without order number metadata")
		return nil
	}

	if _, err := s.confirm(ctx, orderNumber); err != nil {
		if errors.Is(err, db.ErrOrderNotFound) {
			log.Warn().Str("order_number", orderNumber).Msg("payment event for unknown order")
			return nil
		}
		return err
	}
	return nil
}

// confirm 冪等的付款確認核心
// 同一張訂單只會扣一次庫存，扣過的直接回傳
func (s *PaymentService) confirm(ctx context.Context, orderNumber string) (*model.Order, error) {
	var order *model.Order
	adjustedNow := false

	err := s.store.Transaction(ctx, func(tx db.Store) error {
		var err error
		order, err = tx.GetOrderByNumberForUpdate(ctx, orderNumber)
		if err != nil {
			return err
		}
		if order.StockAdjusted {
			return nil
		}
		if order.Status != model.OrderStatusPending {
			log.Warn().
				Str("order_number", orderNumber).
				Str("status", string(order.Status)).
				Msg("payment confirmation for a non pending order, skip stock adjustment")
			return nil
		}

		for _, line := range order.LineItems {
			productID, ok := s.resolveLineProduct(ctx, tx, line)
			if !ok {
				log.Warn().
					Str("order_number", orderNumber).
					Str("product_name", line.ProductName).
					Msg("order line product unresolvable, skip stock adjustment for this line")
				continue
			}
			newStock, err := tx.DeductProductStockClamped(ctx, productID, line.Quantity)
			if err != nil {
				if errors.Is(err, db.ErrProductNotFound) {
					log.Warn().
						Str("order_number", orderNumber).
						Uint("product_id", productID).
						Msg("order line product missing, skip stock adjustment for this line")
					continue
				}
				return err
			}
			log.Info().
				Str("order_number", orderNumber).
				Uint("product_id", productID).
				Int("quantity", line.Quantity).
				Int("new_stock", newStock).
				Msg("stock adjusted")
		}

		if err := order.TransitionTo(model.OrderStatusPaid); err != nil {
			return err
		}
		if err := tx.MarkOrderPaid(ctx, order.OrderID); err != nil {
			return err
		}
		order.Paid = true
		order.StockAdjusted = true
		adjustedNow = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if adjustedNow {
		s.clearOwnerBasket(ctx, order)
		if perr := s.producer.ProduceOrderPaid(ctx, order); perr != nil {
			log.Warn().Err(perr).Str("order_number", order.OrderNumber).Msg("produce order paid event failed")
		}
	}
	return order, nil
}

// resolveLineProduct 找出明細對應的商品
// 優先用明細上的商品參考，沒有的舊資料退回解析商品名稱
func (s *PaymentService) resolveLineProduct(ctx context.Context, tx db.Store, line model.OrderLineItem) (uint, bool) {
	if line.ProductID != nil {
		return *line.ProductID, true
	}

	weight, unit, err := util.ParseProductLabel(line.ProductName)
	if err != nil {
		return 0, false
	}
	product, err := tx.GetProductByIdentity(ctx, weight, unit)
	if err != nil {
		return 0, false
	}
	return product.ProductID, true
}

// 付款完成後帳號購物籃才真正清空
// 清失敗只留警告，錢已經收了不能讓 webhook 重試整段流程
func (s *PaymentService) clearOwnerBasket(ctx context.Context, order *model.Order) {
	if order.UserID == nil {
		return
	}
	basket, err := s.store.GetBasketByUser(ctx, *order.UserID)
	if err != nil {
		if !errors.Is(err, db.ErrBasketNotFound) {
			log.Warn().Err(err).Int("user_id", *order.UserID).Msg("load basket for clear after payment failed")
		}
		return
	}
	if err := s.store.ClearBasketItems(ctx, basket.BasketID); err != nil {
		log.Warn().Err(err).Int("user_id", *order.UserID).Msg("clear basket after payment failed")
	}
}

// FinalizeSuccess 付款成功頁的收尾
// session 購物籃只有跟訂單快照一致時才清空，中途加的新東西要保留
// 訂單已付款才解除 session 綁定的訂單編號
func (s *PaymentService) FinalizeSuccess(ctx context.Context, sess *model.SessionState, orderNumber string) (*model.Order, error) {
	order, err := s.store.GetOrderByNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return order, nil
	}

	sessionDirty := false
	if snapshot, derr := model.DecodeBasketSnapshot(order.OriginalBasket); derr == nil {
		if len(sess.Basket) > 0 && sess.Snapshot().Equal(snapshot) {
			sess.ClearBasket()
			sessionDirty = true
		}
	}
	if order.Paid && sess.PendingOrder == order.OrderNumber {
		sess.PendingOrder = ""
		sessionDirty = true
	}
	if sessionDirty {
		if err := s.sessionRepo.Save(ctx, sess); err != nil {
			return nil, err
		}
	}
	return order, nil
}

var _ IPaymentService = (*PaymentService)(nil)
