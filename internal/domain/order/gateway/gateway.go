package gateway

import (
	"errors"
	"math"
)

// ErrGateway 网关侧失败（下单失败、超时），不落任何本地状态
var ErrGateway = errors.New("payment gateway error")

// GatewayOrder 网关侧创建的结算单
type GatewayOrder struct {
	Ref         string  `json:"id"`
	Amount      float64 `json:"amount"`
	AmountMinor int64   `json:"amountMinor"`
	Currency    string  `json:"currency"`
}

// Gateway 支付网关适配器
// 客户端回传签名与 webhook 验签走两套独立密钥：webhook 必须针对
// 未经解析的原始字节验签，重新序列化不保证字节一致。
type Gateway interface {
	// CreateOrder 在网关侧创建结算单，金额为主货币单位
	CreateOrder(amount float64, receipt string, notes map[string]interface{}) (*GatewayOrder, error)

	// VerifyPaymentSignature 校验客户端回传的 "orderRef|paymentRef" HMAC 签名
	VerifyPaymentSignature(orderRef, paymentRef, signature string) bool

	// VerifyWebhookSignature 针对原始请求体校验 webhook 签名
	VerifyWebhookSignature(rawBody []byte, signature string) bool

	// ClientKey 返回给前端发起结算的公开 key
	ClientKey() string
}

// 主货币单位与最小货币单位之间的换算只在此处进行，且只进行一次

// MinorUnits 主单位转最小单位（如卢比转派士）
func MinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// MajorUnits 最小单位转回主单位
func MajorUnits(minor int64) float64 {
	return float64(minor) / 100
}
