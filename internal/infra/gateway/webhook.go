package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidSignature webhook 簽章驗證失敗
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrUnknownEventFormat webhook payload 無法解析
	ErrUnknownEventFormat = errors.New("unknown webhook event format")
)

// 會觸發付款確認的事件類型
const (
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventPaymentIntentSucceeded   = "payment_intent.succeeded"
)

// WebhookEvent 金流 webhook 的事件信封
type WebhookEvent struct {
	ID   string           `json:"id"`
	Type string           `json:"type"`
	Data WebhookEventData `json:"data"`
}

type WebhookEventData struct {
	Object WebhookEventObject `json:"object"`
}

type WebhookEventObject struct {
	ID       string            `json:"id"`
	Metadata map[string]string `json:"metadata"`
}

// OrderNumber 從事件 metadata 取出訂單編號，沒有就回空字串
func (e *WebhookEvent) OrderNumber() string {
	return e.Data.Object.Metadata["order_number"]
}

// IsPaymentSuccess 是否為付款成功事件
func (e *WebhookEvent) IsPaymentSuccess() bool {
	return e.Type == EventCheckoutSessionCompleted || e.Type == EventPaymentIntentSucceeded
}

// ParseWebhookEvent 解析 webhook payload
func ParseWebhookEvent(payload []byte) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownEventFormat, err)
	}
	if event.Type == "" {
		return nil, fmt.Errorf("%w: missing event type", ErrUnknownEventFormat)
	}
	return &event, nil
}

// WebhookVerifier 驗證 webhook 簽章
// 簽章格式: "t=<unix timestamp>,v1=<hex hmac>"
// hmac = HMAC-SHA256(secret, "<timestamp>.<payload>")
type WebhookVerifier struct {
	secret    string
	tolerance time.Duration
	now       func() time.Time
}

func NewWebhookVerifier(secret string, tolerance time.Duration) *WebhookVerifier {
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	return &WebhookVerifier{
		secret:    secret,
		tolerance: tolerance,
		now:       time.Now,
	}
}

// Verify 驗證 payload 簽章
// 沒有設定 secret 時不驗證直接放行，開發環境用
func (v *WebhookVerifier) Verify(payload []byte, sigHeader string) error {
	if v.secret == "" {
		return nil
	}

	timestamp, signature, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return err
	}

	// 過期的簽章視同無效，擋重放
	eventTime := time.Unix(timestamp, 0)
	if v.now().Sub(eventTime) > v.tolerance || eventTime.Sub(v.now()) > v.tolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
	}

	expected := ComputeSignature(v.secret, timestamp, payload)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) != 1 {
		return ErrInvalidSignature
	}
	return nil
}

// ComputeSignature 計算簽章，測試與對接端共用
func ComputeSignature(secret string, timestamp int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// BuildSignatureHeader 組簽章 header，測試用
func BuildSignatureHeader(secret string, timestamp int64, payload []byte) string {
	return fmt.Sprintf("t=%d,v1=%s", timestamp, ComputeSignature(secret, timestamp, payload))
}

func parseSignatureHeader(header string) (int64, string, error) {
	if header == "" {
		return 0, "", fmt.Errorf("%w: missing signature header", ErrInvalidSignature)
	}

	var timestamp int64
	var signature string
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, "", fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
			}
			timestamp = ts
		case "v1":
			signature = value
		}
	}

	if timestamp == 0 || signature == "" {
		return 0, "", fmt.Errorf("%w: incomplete signature header", ErrInvalidSignature)
	}
	return timestamp, signature, nil
}
