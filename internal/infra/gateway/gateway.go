package gateway

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrGatewayFailure 金流端呼叫失敗，訂單維持待付款，可重試
	ErrGatewayFailure = errors.New("payment gateway failure")
)

// IPaymentGateway 金流供應商的抽象
// 這裡只負責建立付款意圖，實際的 SDK 串接放在部署端
type IPaymentGateway interface {
	CreateCheckoutIntent(ctx context.Context, req IntentRequest) (*Intent, error)
}

// IntentRequest 建立付款意圖的參數
// Metadata 固定會帶 order_number，webhook 回來靠它對回訂單
type IntentRequest struct {
	OrderNumber string            `json:"order_number"`
	Amount      decimal.Decimal   `json:"amount"`
	Currency    string            `json:"currency"`
	LineItems   []IntentLineItem  `json:"line_items"`
	Metadata    map[string]string `json:"metadata"`
}

type IntentLineItem struct {
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// Intent 金流端回傳的付款媒介
// ClientSecret 給內嵌表單用，HostedURL 給跳轉式結帳用，擇一存在
type Intent struct {
	IntentID     string `json:"intent_id"`
	ClientSecret string `json:"client_secret"`
	HostedURL    string `json:"hosted_url"`
}
