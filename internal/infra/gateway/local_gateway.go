package gateway

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// LocalGateway 不打外部金流的本機實作
// 開發與 demo 用，hosted url 指向自家的模擬付款頁
// 真的 PSP SDK 串接由部署端提供同介面的實作換掉它
type LocalGateway struct {
	baseURL string
}

func NewLocalGateway(baseURL string) *LocalGateway {
	return &LocalGateway{baseURL: strings.TrimRight(baseURL, "/")}
}

func (g *LocalGateway) CreateCheckoutIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	intentID := "pi_local_" + strings.ReplaceAll(uuid.New().String(), "-", "")

	log.Info().
		Str("order_number", req.OrderNumber).
		Str("intent_id", intentID).
		Str("amount", req.Amount.StringFixed(2)).
		Str("currency", req.Currency).
		Int("line_items", len(req.LineItems)).
		Msg("create local checkout intent")

	return &Intent{
		IntentID:     intentID,
		ClientSecret: intentID + "_secret",
		HostedURL:    g.baseURL + "/pay/" + req.OrderNumber,
	}, nil
}

var _ IPaymentGateway = (*LocalGateway)(nil)
