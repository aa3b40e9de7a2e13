package model

import "time"

type BaseEvent struct {
	EventID     string    `json:"eventId"`
	AggregateID string    `json:"aggregateId"` // 訂單編號
	CreatedAt   time.Time `json:"createdAt"`
	EventType   EventType `json:"eventType"`
}

func (e *BaseEvent) GetID() string {
	return e.EventID
}

type EventType string

const (
	OrderCreatedEventName    EventType = "OrderCreated"
	OrderPaidEventName       EventType = "OrderPaid"
	OrderCancelledEventName  EventType = "OrderCancelled"
	OrderDispatchedEventName EventType = "OrderDispatched"
)

type Event interface {
	Type() EventType
	GetID() string
}
