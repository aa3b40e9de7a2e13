package model

import (
	"github.com/shopspring/decimal"
)

// 訂單生命週期事件
// 下游 (出貨、通知、報表) 只依賴這些事件，不直接讀訂單資料表
type OrderCreatedEvent struct {
	BaseEvent
	OrderNumber string          `json:"order_number"`
	UserID      *int            `json:"user_id,omitempty"`
	Total       decimal.Decimal `json:"total"`
	ItemCount   int             `json:"item_count"`
}

func (e *OrderCreatedEvent) Type() EventType {
	return OrderCreatedEventName
}

type OrderPaidEvent struct {
	BaseEvent
	OrderNumber string          `json:"order_number"`
	UserID      *int            `json:"user_id,omitempty"`
	Total       decimal.Decimal `json:"total"`
}

func (e *OrderPaidEvent) Type() EventType {
	return OrderPaidEventName
}

type OrderCancelledEvent struct {
	BaseEvent
	OrderNumber string `json:"order_number"`
	UserID      *int   `json:"user_id,omitempty"`
	Message     string `json:"message"` // 取消原因
}

func (e *OrderCancelledEvent) Type() EventType {
	return OrderCancelledEventName
}

type OrderDispatchedEvent struct {
	BaseEvent
	OrderNumber string `json:"order_number"`
}

func (e *OrderDispatchedEvent) Type() EventType {
	return OrderDispatchedEventName
}
