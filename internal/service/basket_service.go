package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	"github.com/RoyceAzure/lab/storefront/internal/infra/repository/db"
	"github.com/RoyceAzure/lab/storefront/internal/infra/repository/redis_repo"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientStock 庫存不足以接受這次的加入或調整
	ErrInsufficientStock = errors.New("insufficient stock")
)

type IBasketService interface {
	View(ctx context.Context, sess *model.SessionState, userID int) (*model.BasketView, error)
	Available(ctx context.Context, sess *model.SessionState, productKey string) (int, error)
	Add(ctx context.Context, sess *model.SessionState, userID int, productKey string, quantity int) error
	Update(ctx context.Context, sess *model.SessionState, userID int, productKey string, quantity int) error
	Remove(ctx context.Context, sess *model.SessionState, userID int, productKey string) error
	Clear(ctx context.Context, sess *model.SessionState, userID int) error
	ItemCount(ctx context.Context, sess *model.SessionState, userID int) (int, error)
	MergeOnLogin(ctx context.Context, sess *model.SessionState, userID int) error
	ConsumeMergeFlag(ctx context.Context, sess *model.SessionState) (bool, error)
}

// BasketService 購物籃
// 登入用戶 (userID > 0) 的購物籃存 db，匿名用戶存 session
// session 狀態只會在交易成功後才寫回 redis
type BasketService struct {
	store       db.Store
	sessionRepo redis_repo.ISessionRepository
}

func NewBasketService(store db.Store, sessionRepo redis_repo.ISessionRepository) *BasketService {
	if store == nil {
		panic("basket service dependency store is nil")
	}
	if sessionRepo == nil {
		panic("basket service dependency sessionRepo is nil")
	}
	return &BasketService{store: store, sessionRepo: sessionRepo}
}

// View 購物籃內容，依商品重量排序
// 登入用戶只看 db 資料列，合併前的 session 內容不重複計算
func (s *BasketService) View(ctx context.Context, sess *model.SessionState, userID int) (*model.BasketView, error) {
	if userID > 0 {
		return s.viewDurable(ctx, userID)
	}
	return s.viewSession(ctx, sess)
}

// Available 顯示用的可賣數量
// 可能為負，表示保留量已超過庫存，顯示端自行決定怎麼呈現
func (s *BasketService) Available(ctx context.Context, sess *model.SessionState, productKey string) (int, error) {
	product, err := resolveProduct(ctx, s.store, productKey)
	if err != nil {
		return 0, err
	}
	reserved, err := s.store.SumReservedByProduct(ctx, product.ProductID)
	if err != nil {
		return 0, err
	}
	return int(product.Stock) - reserved - sess.BasketQuantity(product.Key()), nil
}

// Add 加入商品
// 錯誤:
//   - model.ErrValidationFailed: 數量小於 1
//   - db.ErrProductNotFound: 鍵值解析不到商品
//   - ErrInsufficientStock: 庫存不足
func (s *BasketService) Add(ctx context.Context, sess *model.SessionState, userID int, productKey string, quantity int) error {
	if quantity < 1 {
		return fmt.Errorf("%w: quantity must be at least 1", model.ErrValidationFailed)
	}
	if userID > 0 {
		return s.addDurable(ctx, sess, userID, productKey, quantity)
	}
	return s.addSession(ctx, sess, productKey, quantity)
}

func (s *BasketService) addDurable(ctx context.Context, sess *model.SessionState, userID int, productKey string, quantity int) error {
	sessionDirty := false
	err := s.store.Transaction(ctx, func(tx db.Store) error {
		product, err := resolveProductForUpdate(ctx, tx, productKey)
		if err != nil {
			return err
		}
		key := product.Key()

		basket, err := tx.GetOrCreateBasket(ctx, userID)
		if err != nil {
			return err
		}
		durable := 0
		item, err := tx.GetBasketItem(ctx, basket.BasketID, product.ProductID)
		if err == nil {
			durable = item.Quantity
		} else if !errors.Is(err, db.ErrBasketItemNotFound) {
			return err
		}

		sessionQty := sess.BasketQuantity(key)
		if !stockSatisfies(product.Stock, durable, sessionQty, quantity) {
			// session 殘留: session 還有數量但 db 沒有對應資料列
			// 丟掉殘留後裸庫存夠就放行，失敗一次性回收
			if sessionQty > 0 && durable == 0 && stockSatisfies(product.Stock, 0, 0, quantity) {
				sess.RemoveBasketItem(key)
				sessionDirty = true
			} else {
				return fmt.Errorf("%w: product %s, stock %d", ErrInsufficientStock, key, product.Stock)
			}
		}

		// 已存在就累加數量，價格快照保留第一次加入當下的
		return tx.AddBasketItem(ctx, &model.BasketItem{
			BasketID:      basket.BasketID,
			ProductID:     product.ProductID,
			Quantity:      quantity,
			PriceSnapshot: product.Price,
		})
	})
	if err != nil {
		return err
	}
	if sessionDirty {
		return s.sessionRepo.Save(ctx, sess)
	}
	return nil
}

func (s *BasketService) addSession(ctx context.Context, sess *model.SessionState, productKey string, quantity int) error {
	product, err := resolveProduct(ctx, s.store, productKey)
	if err != nil {
		return err
	}
	key := product.Key()

	sessionQty := sess.BasketQuantity(key)
	if !stockSatisfies(product.Stock, 0, sessionQty, quantity) {
		return fmt.Errorf("%w: product %s, stock %d", ErrInsufficientStock, key, product.Stock)
	}

	price := product.Price
	if existing, ok := sess.Basket[key]; ok && existing.Quantity > 0 {
		price = existing.Price
	}
	sess.SetBasketItem(key, sessionQty+quantity, price)
	return s.sessionRepo.Save(ctx, sess)
}

// Update 直接設定數量，0 以下視同移除
// 數量是取代不是累加，用目前庫存重新驗證
func (s *BasketService) Update(ctx context.Context, sess *model.SessionState, userID int, productKey string, quantity int) error {
	if quantity <= 0 {
		return s.Remove(ctx, sess, userID, productKey)
	}
	if userID > 0 {
		return s.updateDurable(ctx, sess, userID, productKey, quantity)
	}
	return s.updateSession(ctx, sess, productKey, quantity)
}

func (s *BasketService) updateDurable(ctx context.Context, sess *model.SessionState, userID int, productKey string, quantity int) error {
	sessionDirty := false
	err := s.store.Transaction(ctx, func(tx db.Store) error {
		product, err := resolveProductForUpdate(ctx, tx, productKey)
		if err != nil {
			return err
		}
		key := product.Key()

		basket, err := tx.GetOrCreateBasket(ctx, userID)
		if err != nil {
			return err
		}
		hasDurable := true
		if _, err := tx.GetBasketItem(ctx, basket.BasketID, product.ProductID); err != nil {
			if !errors.Is(err, db.ErrBasketItemNotFound) {
				return err
			}
			hasDurable = false
		}

		sessionQty := sess.BasketQuantity(key)
		if !stockSatisfies(product.Stock, 0, sessionQty, quantity) {
			if sessionQty > 0 && !hasDurable && stockSatisfies(product.Stock, 0, 0, quantity) {
				sess.RemoveBasketItem(key)
				sessionDirty = true
			} else {
				return fmt.Errorf("%w: product %s, stock %d", ErrInsufficientStock, key, product.Stock)
			}
		}

		if hasDurable {
			return tx.SetBasketItemQuantity(ctx, basket.BasketID, product.ProductID, quantity)
		}
		return tx.AddBasketItem(ctx, &model.BasketItem{
			BasketID:      basket.BasketID,
			ProductID:     product.ProductID,
			Quantity:      quantity,
			PriceSnapshot: product.Price,
		})
	})
	if err != nil {
		return err
	}
	if sessionDirty {
		return s.sessionRepo.Save(ctx, sess)
	}
	return nil
}

func (s *BasketService) updateSession(ctx context.Context, sess *model.SessionState, productKey string, quantity int) error {
	product, err := resolveProduct(ctx, s.store, productKey)
	if err != nil {
		return err
	}
	key := product.Key()

	if !stockSatisfies(product.Stock, 0, 0, quantity) {
		return fmt.Errorf("%w: product %s, stock %d", ErrInsufficientStock, key, product.Stock)
	}

	price := product.Price
	if existing, ok := sess.Basket[key]; ok && existing.Quantity > 0 {
		price = existing.Price
	}
	sess.SetBasketItem(key, quantity, price)
	return s.sessionRepo.Save(ctx, sess)
}

// Remove 移除商品，不存在就當作已完成
// 商品下架後 session 可能還留著鍵值，一樣要移得掉
func (s *BasketService) Remove(ctx context.Context, sess *model.SessionState, userID int, productKey string) error {
	key, err := canonicalProductKey(productKey)
	if err != nil {
		return err
	}

	if userID > 0 {
		product, perr := resolveProduct(ctx, s.store, key)
		if perr == nil {
			basket, berr := s.store.GetBasketByUser(ctx, userID)
			if berr == nil {
				if rerr := s.store.RemoveBasketItem(ctx, basket.BasketID, product.ProductID); rerr != nil {
					return rerr
				}
			} else if !errors.Is(berr, db.ErrBasketNotFound) {
				return berr
			}
		} else if !errors.Is(perr, db.ErrProductNotFound) {
			return perr
		}
	}

	if _, ok := sess.Basket[key]; ok {
		sess.RemoveBasketItem(key)
		return s.sessionRepo.Save(ctx, sess)
	}
	return nil
}

// Clear 清空購物籃，空籃清空不是錯誤
func (s *BasketService) Clear(ctx context.Context, sess *model.SessionState, userID int) error {
	if userID > 0 {
		basket, err := s.store.GetBasketByUser(ctx, userID)
		if err == nil {
			if cerr := s.store.ClearBasketItems(ctx, basket.BasketID); cerr != nil {
				return cerr
			}
		} else if !errors.Is(err, db.ErrBasketNotFound) {
			return err
		}
	}

	if len(sess.Basket) > 0 {
		sess.ClearBasket()
		return s.sessionRepo.Save(ctx, sess)
	}
	return nil
}

// ItemCount 購物籃總件數，頁面頂端的小紅點用
func (s *BasketService) ItemCount(ctx context.Context, sess *model.SessionState, userID int) (int, error) {
	if userID <= 0 {
		return sess.BasketItemCount(), nil
	}

	basket, err := s.store.GetBasketByUser(ctx, userID)
	if errors.Is(err, db.ErrBasketNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	items, err := s.store.GetBasketItems(ctx, basket.BasketID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, item := range items {
		count += item.Quantity
	}
	return count, nil
}

// MergeOnLogin 登入時把 session 購物籃併進 db 購物籃
// 數量累加，價格快照更新成目前售價
// 解析不到的商品直接丟掉，只留警告
func (s *BasketService) MergeOnLogin(ctx context.Context, sess *model.SessionState, userID int) error {
	if userID <= 0 {
		return fmt.Errorf("%w: merge requires a signed in user", model.ErrValidationFailed)
	}

	keys := make([]string, 0, len(sess.Basket))
	for key, item := range sess.Basket {
		if item.Quantity > 0 {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)

	err := s.store.Transaction(ctx, func(tx db.Store) error {
		basket, err := tx.GetOrCreateBasket(ctx, userID)
		if err != nil {
			return err
		}
		for _, key := range keys {
			item := sess.Basket[key]
			product, err := resolveProduct(ctx, tx, key)
			if err != nil {
				if errors.Is(err, db.ErrProductNotFound) {
					log.Warn().
						Str("product_key", key).
						Int("user_id", userID).
						Msg("drop unresolvable session basket entry on merge")
					continue
				}
				return err
			}
			err = tx.MergeBasketItem(ctx, &model.BasketItem{
				BasketID:      basket.BasketID,
				ProductID:     product.ProductID,
				Quantity:      item.Quantity,
				PriceSnapshot: product.Price,
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	sess.ClearBasket()
	sess.BasketMerged = true
	return s.sessionRepo.Save(ctx, sess)
}

// ConsumeMergeFlag 取出並清除一次性的合併完成旗標
func (s *BasketService) ConsumeMergeFlag(ctx context.Context, sess *model.SessionState) (bool, error) {
	if !sess.BasketMerged {
		return false, nil
	}
	sess.BasketMerged = false
	if err := s.sessionRepo.Save(ctx, sess); err != nil {
		return false, err
	}
	return true, nil
}

type weightedLine struct {
	weight decimal.Decimal
	unit   string
	line   model.BasketLine
}

func buildView(entries []weightedLine) *model.BasketView {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].weight.Equal(entries[j].weight) {
			return entries[i].weight.LessThan(entries[j].weight)
		}
		return entries[i].unit < entries[j].unit
	})

	view := &model.BasketView{
		Lines: make([]model.BasketLine, 0, len(entries)),
		Total: decimal.Zero,
	}
	for _, e := range entries {
		view.Lines = append(view.Lines, e.line)
		view.Total = view.Total.Add(e.line.Subtotal)
		view.ItemCount += e.line.Quantity
	}
	return view
}

func (s *BasketService) viewDurable(ctx context.Context, userID int) (*model.BasketView, error) {
	basket, err := s.store.GetBasketByUser(ctx, userID)
	if errors.Is(err, db.ErrBasketNotFound) {
		return buildView(nil), nil
	}
	if err != nil {
		return nil, err
	}
	items, err := s.store.GetBasketItems(ctx, basket.BasketID)
	if err != nil {
		return nil, err
	}

	entries := make([]weightedLine, 0, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		product := item.Product
		entries = append(entries, weightedLine{
			weight: product.Weight,
			unit:   product.WeightUnit,
			line: model.BasketLine{
				ProductKey:  product.Key(),
				ProductName: product.Label(),
				Quantity:    item.Quantity,
				Price:       item.PriceSnapshot,
				Subtotal:    item.PriceSnapshot.Mul(decimal.NewFromInt(int64(item.Quantity))),
			},
		})
	}
	return buildView(entries), nil
}

func (s *BasketService) viewSession(ctx context.Context, sess *model.SessionState) (*model.BasketView, error) {
	entries := make([]weightedLine, 0, len(sess.Basket))
	for key, item := range sess.Basket {
		if item.Quantity <= 0 {
			continue
		}
		product, err := resolveProduct(ctx, s.store, key)
		if err != nil {
			if errors.Is(err, db.ErrProductNotFound) {
				log.Warn().Str("product_key", key).Msg("skip unresolvable session basket entry on view")
				continue
			}
			return nil, err
		}
		entries = append(entries, weightedLine{
			weight: product.Weight,
			unit:   product.WeightUnit,
			line: model.BasketLine{
				ProductKey:  product.Key(),
				ProductName: product.Label(),
				Quantity:    item.Quantity,
				Price:       item.Price,
				Subtotal:    item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))),
			},
		})
	}
	return buildView(entries), nil
}

var _ IBasketService = (*BasketService)(nil)
