package model

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// SessionState 單一訪客的 session 內容
// 匿名購物籃的唯一真相來源，登入用戶只在合併前暫存
// 服務層只讀寫這個值，存取後端 (redis) 由呼叫端負責
type SessionState struct {
	SessionID    string                 `json:"session_id"`
	Basket       map[string]SessionItem `json:"basket"`        // key: 商品鍵值 (Product.Key())
	PendingOrder string                 `json:"pending_order"` // 匿名結帳後綁定的訂單編號
	BasketMerged bool                   `json:"basket_merged"` // 登入合併完成的一次性旗標
}

type SessionItem struct {
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"` // 加入購物籃當下的單價
}

func NewSessionState(sessionID string) *SessionState {
	return &SessionState{
		SessionID: sessionID,
		Basket:    make(map[string]SessionItem),
	}
}

// BasketQuantity 回傳 session 購物籃中某商品的數量，0 視同不存在
func (s *SessionState) BasketQuantity(productKey string) int {
	item, ok := s.Basket[productKey]
	if !ok {
		return 0
	}
	return item.Quantity
}

func (s *SessionState) SetBasketItem(productKey string, quantity int, price decimal.Decimal) {
	if s.Basket == nil {
		s.Basket = make(map[string]SessionItem)
	}
	if quantity <= 0 {
		delete(s.Basket, productKey)
		return
	}
	s.Basket[productKey] = SessionItem{Quantity: quantity, Price: price}
}

func (s *SessionState) RemoveBasketItem(productKey string) {
	delete(s.Basket, productKey)
}

func (s *SessionState) ClearBasket() {
	s.Basket = make(map[string]SessionItem)
}

// BasketItemCount 購物籃內商品總件數
func (s *SessionState) BasketItemCount() int {
	count := 0
	for _, item := range s.Basket {
		if item.Quantity > 0 {
			count += item.Quantity
		}
	}
	return count
}

// Snapshot 把 session 購物籃轉成正規化快照
func (s *SessionState) Snapshot() BasketSnapshot {
	snapshot := make(BasketSnapshot, len(s.Basket))
	for key, item := range s.Basket {
		if item.Quantity <= 0 {
			continue
		}
		snapshot[key] = SnapshotItem{
			Quantity: item.Quantity,
			Price:    item.Price.StringFixed(2),
		}
	}
	return snapshot
}

// BasketSnapshot 購物籃的正規化快照
// 編碼後存在 Order.OriginalBasket，重複結帳時做冪等比對
// 價格一律使用兩位小數字串，map 序列化時 key 會排序，編碼結果穩定
type BasketSnapshot map[string]SnapshotItem

type SnapshotItem struct {
	Quantity int    `json:"quantity"`
	Price    string `json:"price"`
}

func (s BasketSnapshot) Encode() (string, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func DecodeBasketSnapshot(raw string) (BasketSnapshot, error) {
	if raw == "" {
		return BasketSnapshot{}, nil
	}
	var snapshot BasketSnapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (s BasketSnapshot) IsEmpty() bool {
	return len(s) == 0
}

// Equal 逐項比對兩份快照
func (s BasketSnapshot) Equal(other BasketSnapshot) bool {
	if len(s) != len(other) {
		return false
	}
	for key, item := range s {
		otherItem, ok := other[key]
		if !ok || otherItem != item {
			return false
		}
	}
	return true
}
