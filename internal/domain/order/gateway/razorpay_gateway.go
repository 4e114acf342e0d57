package gateway

import (
	"errors"
	"fmt"

	"ecommerce_backend/internal/pkg/config"

	razorpay "github.com/razorpay/razorpay-go"
	"github.com/razorpay/razorpay-go/utils"
)

// RazorpayGateway Razorpay 适配实现
type RazorpayGateway struct {
	client *razorpay.Client
	cfg    config.RazorpayConfig
}

// NewRazorpayGateway 创建 Razorpay 网关适配器
func NewRazorpayGateway() (*RazorpayGateway, error) {
	cfg := config.GlobalConfig.Razorpay
	if cfg.KeyID == "" || cfg.KeySecret == "" {
		return nil, errors.New("razorpay config missing")
	}

	client := razorpay.NewClient(cfg.KeyID, cfg.KeySecret)
	// 网关调用必须有界超时，超时按 GatewayError 处理
	// SDK 的 SetTimeout 收 int16，范围在 Validate 里已经卡死
	if cfg.TimeoutSeconds > 0 {
		client.SetTimeout(int16(cfg.TimeoutSeconds))
	}

	return &RazorpayGateway{client: client, cfg: cfg}, nil
}

// CreateOrder 在网关侧创建结算单
func (g *RazorpayGateway) CreateOrder(amount float64, receipt string, notes map[string]interface{}) (*GatewayOrder, error) {
	minor := MinorUnits(amount)

	data := map[string]interface{}{
		"amount":   minor,
		"currency": g.cfg.Currency,
		"receipt":  receipt,
		"notes":    notes,
	}

	body, err := g.client.Order.Create(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	ref, ok := body["id"].(string)
	if !ok || ref == "" {
		return nil, fmt.Errorf("%w: response missing order id", ErrGateway)
	}

	return &GatewayOrder{
		Ref:         ref,
		Amount:      amount,
		AmountMinor: minor,
		Currency:    g.cfg.Currency,
	}, nil
}

// VerifyPaymentSignature 校验客户端回传签名
// SDK 内部对 "order_id|payment_id" 重算 HMAC-SHA256 并做恒定时间比较
func (g *RazorpayGateway) VerifyPaymentSignature(orderRef, paymentRef, signature string) bool {
	if orderRef == "" || paymentRef == "" || signature == "" {
		return false
	}
	params := map[string]interface{}{
		"razorpay_order_id":   orderRef,
		"razorpay_payment_id": paymentRef,
	}
	return utils.VerifyPaymentSignature(params, signature, g.cfg.KeySecret)
}

// VerifyWebhookSignature 针对原始请求体校验 webhook 签名（独立密钥）
func (g *RazorpayGateway) VerifyWebhookSignature(rawBody []byte, signature string) bool {
	if len(rawBody) == 0 || signature == "" || g.cfg.WebhookSecret == "" {
		return false
	}
	return utils.VerifyWebhookSignature(string(rawBody), signature, g.cfg.WebhookSecret)
}

// ClientKey 前端发起结算用的公开 key
func (g *RazorpayGateway) ClientKey() string {
	return g.cfg.KeyID
}

// 确保实现了接口
var _ Gateway = (*RazorpayGateway)(nil)
