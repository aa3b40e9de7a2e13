package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/RoyceAzure/lab/storefront/internal/domain/model"
	evt_model "github.com/RoyceAzure/lab/storefront/internal/domain/model/event"
	"github.com/RoyceAzure/lab/storefront/internal/infra/producer/balancer"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

const eventTypeHeader = "event_type"

// messageWriter 抽出 kafka.Writer 的寫入介面，測試可以換成記憶體實作
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type IOrderEventProducer interface {
	ProduceOrderCreated(ctx context.Context, order *model.Order) error
	ProduceOrderPaid(ctx context.Context, order *model.Order) error
	ProduceOrderCancelled(ctx context.Context, order *model.Order, message string) error
	ProduceOrderDispatched(ctx context.Context, order *model.Order) error
	Close() error
}

// OrderEventProducer 訂單事件 producer
// message key 使用訂單編號，同一張訂單的事件保證進同一個分區
type OrderEventProducer struct {
	writer messageWriter
}

func NewOrderEventProducer(brokers []string, topic string, numPartitions int) *OrderEventProducer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     balancer.NewOrderKeyBalancer(numPartitions),
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 100 * time.Millisecond,
		Compression:  kafka.Snappy,
		Transport: &kafka.Transport{
			Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
				dialer := &net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}
				return dialer.DialContext(ctx, network, address)
			},
		},
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			log.Error().Msgf("order event producer: "+msg, args...)
		}),
	}

	return &OrderEventProducer{
		writer: writer,
	}
}

func newBaseEvent(orderNumber string, eventType evt_model.EventType) evt_model.BaseEvent {
	return evt_model.BaseEvent{
		EventID:     uuid.New().String(),
		AggregateID: orderNumber,
		CreatedAt:   time.Now().UTC(),
		EventType:   eventType,
	}
}

func (p *OrderEventProducer) ProduceOrderCreated(ctx context.Context, order *model.Order) error {
	event := &evt_model.OrderCreatedEvent{
		BaseEvent:   newBaseEvent(order.OrderNumber, evt_model.OrderCreatedEventName),
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Total:       order.Total,
		ItemCount:   len(order.LineItems),
	}
	return p.produce(ctx, order.OrderNumber, event)
}

func (p *OrderEventProducer) ProduceOrderPaid(ctx context.Context, order *model.Order) error {
	event := &evt_model.OrderPaidEvent{
		BaseEvent:   newBaseEvent(order.OrderNumber, evt_model.OrderPaidEventName),
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Total:       order.Total,
	}
	return p.produce(ctx, order.OrderNumber, event)
}

func (p *OrderEventProducer) ProduceOrderCancelled(ctx context.Context, order *model.Order, message string) error {
	event := &evt_model.OrderCancelledEvent{
		BaseEvent:   newBaseEvent(order.OrderNumber, evt_model.OrderCancelledEventName),
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Message:     message,
	}
	return p.produce(ctx, order.OrderNumber, event)
}

func (p *OrderEventProducer) ProduceOrderDispatched(ctx context.Context, order *model.Order) error {
	event := &evt_model.OrderDispatchedEvent{
		BaseEvent:   newBaseEvent(order.OrderNumber, evt_model.OrderDispatchedEventName),
		OrderNumber: order.OrderNumber,
	}
	return p.produce(ctx, order.OrderNumber, event)
}

func (p *OrderEventProducer) produce(ctx context.Context, orderNumber string, event evt_model.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(orderNumber),
		Value: value,
		Headers: []kafka.Header{
			{
				Key:   eventTypeHeader,
				Value: []byte(event.Type()),
			},
		},
	}

	return p.writer.WriteMessages(ctx, msg)
}

func (p *OrderEventProducer) Close() error {
	return p.writer.Close()
}

var _ IOrderEventProducer = (*OrderEventProducer)(nil)
