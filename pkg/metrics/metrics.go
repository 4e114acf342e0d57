package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 订单与支付核心指标
var (
	// OrdersCreated 订单创建计数，按支付方式和确认来源区分
	OrdersCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ecommerce",
		Subsystem: "order",
		Name:      "created_total",
		Help:      "Number of orders persisted",
	}, []string{"payment_method", "source"})

	// PaymentConfirmations 支付确认计数，按通道区分
	PaymentConfirmations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ecommerce",
		Subsystem: "payment",
		Name:      "confirmations_total",
		Help:      "Number of payment confirmations processed",
	}, []string{"channel"})

	// WebhookReplays 重复投递的 webhook 计数（幂等命中）
	WebhookReplays = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ecommerce",
		Subsystem: "payment",
		Name:      "webhook_replays_total",
		Help:      "Number of webhook deliveries resolved as idempotent no-ops",
	})

	// SignatureRejections 验签失败计数，按通道区分
	SignatureRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ecommerce",
		Subsystem: "payment",
		Name:      "signature_rejections_total",
		Help:      "Number of rejected payment signatures",
	}, []string{"channel"})

	// StockConflicts 库存不足拒绝计数
	StockConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ecommerce",
		Subsystem: "inventory",
		Name:      "stock_conflicts_total",
		Help:      "Number of reservations rejected for insufficient stock",
	})

	// CompensationFailures 库存补偿失败计数，非零时需要人工核账
	CompensationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ecommerce",
		Subsystem: "inventory",
		Name:      "compensation_failures_total",
		Help:      "Number of failed stock restorations after aborted checkouts",
	})

	// HoldsReleased 过期库存占用回收计数
	HoldsReleased = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ecommerce",
		Subsystem: "inventory",
		Name:      "holds_released_total",
		Help:      "Number of expired checkout holds released by the janitor",
	})
)
