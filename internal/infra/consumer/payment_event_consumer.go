package consumer

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/RoyceAzure/lab/storefront/internal/infra/gateway"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

var ErrConsumerClosed = errors.New("consumer closed")

// 金流 relay 轉發時把原始簽章 header 放在這個 kafka header
const signatureHeader = "signature"

const retryWaitTime = time.Second

// kafkaReader 抽出 kafka.Reader 的讀取介面，測試可以換成記憶體實作
type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// PaymentEventHandler 收到金流事件後的處理端，由 payment service 實作
type PaymentEventHandler interface {
	HandleGatewayEvent(ctx context.Context, payload []byte, sigHeader string) error
}

type IPaymentEventConsumer interface {
	Start(ctx context.Context) error
	Stop()
}

// PaymentEventConsumer 消費金流 webhook relay 進來的付款事件
// 邊緣的 webhook receiver 只負責收下原始 payload 與簽章丟上 topic，
// 驗簽與套用都在這裡做，處理失敗的訊息不 commit
type PaymentEventConsumer struct {
	reader    kafkaReader
	handler   PaymentEventHandler
	closeOnce sync.Once
	closeChan chan struct{}
}

func NewPaymentEventConsumer(brokers []string, topic, groupID string, handler PaymentEventHandler) *PaymentEventConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
		Dialer: &kafka.Dialer{
			Timeout:   10 * time.Second,
			DualStack: true,
			KeepAlive: 30 * time.Second,
		},
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			log.Error().Msgf("payment event reader: "+msg, args...)
		}),
	})
	return newPaymentEventConsumer(reader, handler)
}

func newPaymentEventConsumer(reader kafkaReader, handler PaymentEventHandler) *PaymentEventConsumer {
	if reader == nil {
		panic("payment event consumer dependency reader is nil")
	}
	if handler == nil {
		panic("payment event consumer dependency handler is nil")
	}
	return &PaymentEventConsumer{
		reader:    reader,
		handler:   handler,
		closeChan: make(chan struct{}),
	}
}

func (c *PaymentEventConsumer) checkIsClosed() bool {
	select {
	case <-c.closeChan:
		return true
	default:
		return false
	}
}

func (c *PaymentEventConsumer) Start(ctx context.Context) error {
	if c.checkIsClosed() {
		return ErrConsumerClosed
	}

	go c.consumeLoop(ctx)
	return nil
}

func (c *PaymentEventConsumer) consumeLoop(ctx context.Context) {
	for {
		select {
		case <-c.closeChan:
			return
		case <-ctx.Done():
			return
		default:
		}

		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if c.checkIsClosed() || errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				return
			}
			log.Error().Err(err).Msg("fetch payment event failed")
			continue
		}

		if err := c.handle(ctx, msg); err != nil {
			// 暫時性錯誤不 commit，rebalance 或重啟後會重讀到
			log.Error().
				Err(err).
				Int("partition", msg.Partition).
				Int64("offset", msg.Offset).
				Msg("handle payment event failed")

			select {
			case <-c.closeChan:
				return
			case <-time.After(retryWaitTime):
			}
			continue
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			log.Error().Err(err).Int64("offset", msg.Offset).Msg("commit payment event failed")
		}
	}
}

// handle 驗簽並套用單筆付款事件
// 簽章錯或格式爛的訊息重讀幾次都不會變好，記警告後 commit 跳過
func (c *PaymentEventConsumer) handle(ctx context.Context, msg kafka.Message) error {
	err := c.handler.HandleGatewayEvent(ctx, msg.Value, headerValue(msg, signatureHeader))
	if err == nil {
		return nil
	}
	if errors.Is(err, gateway.ErrInvalidSignature) || errors.Is(err, gateway.ErrUnknownEventFormat) {
		log.Warn().
			Err(err).
			Int("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("drop invalid payment event")
		return nil
	}
	return err
}

func headerValue(msg kafka.Message, key string) string {
	for _, header := range msg.Headers {
		if header.Key == key {
			return string(header.Value)
		}
	}
	return ""
}

func (c *PaymentEventConsumer) Stop() {
	if c.checkIsClosed() {
		return
	}

	c.closeOnce.Do(func() {
		close(c.closeChan)
	})

	c.reader.Close()
}

var _ IPaymentEventConsumer = (*PaymentEventConsumer)(nil)
