package model

import (
	"encoding/json"
	"time"

	addressModel "ecommerce_backend/internal/domain/address/model"
	baseModel "ecommerce_backend/pkg/model"
)

// Order 订单聚合根
// 创建后只会沿发货/取消/退货状态向前推进，正常运营下永不删除。
// GatewayOrderRef / GatewayPaymentRef 是稀疏唯一键（COD 订单为空），
// 支付对账的幂等完全依赖 GatewayPaymentRef 上的唯一索引。
type Order struct {
	baseModel.BaseModel
	OrderNo   string `gorm:"uniqueIndex;not null" json:"orderNo"`
	UserID    string `gorm:"type:uuid;index;not null" json:"userId"`
	AddressID string `gorm:"type:uuid" json:"addressId"`

	// 下单时刻的地址快照，创建后不可变
	Address addressModel.Snapshot `gorm:"embedded;embeddedPrefix:addr_" json:"address"`

	Items  []OrderItem `gorm:"foreignKey:OrderID" json:"products"`
	Amount float64     `gorm:"not null" json:"amount"`

	PaymentMethod string `gorm:"type:varchar(10);not null" json:"paymentMethod"`
	PaymentStatus string `gorm:"type:varchar(10);default:'pending'" json:"paymentStatus"`

	GatewayOrderRef   *string `gorm:"uniqueIndex" json:"razorpayOrderId,omitempty"`
	GatewayPaymentRef *string `gorm:"uniqueIndex" json:"paymentId,omitempty"`

	// ConfirmationSource 记录哪条通道确认了支付，用于识别并合并重复确认
	ConfirmationSource string `gorm:"type:varchar(10)" json:"source,omitempty"`

	CODStatus string `gorm:"type:varchar(16);default:'not_collected'" json:"codStatus"`

	ShippingStatus   string     `gorm:"type:varchar(20);default:'processing'" json:"shippingStatus"`
	ProcessingAt     time.Time  `json:"processingAt"`
	ShippedAt        *time.Time `json:"shippedAt,omitempty"`
	OutForDeliveryAt *time.Time `json:"outForDeliveryAt,omitempty"`
	DeliveredAt      *time.Time `json:"deliveredAt,omitempty"`
	CancelledAt      *time.Time `json:"cancelledAt,omitempty"`
	ReturnedAt       *time.Time `json:"returnedAt,omitempty"`

	CancelReason string `json:"cancelReason,omitempty"`

	Returns []OrderReturn `gorm:"foreignKey:OrderID" json:"returns,omitempty"`

	RefundStatus      string     `gorm:"type:varchar(20);default:'not_applicable'" json:"refundStatus"`
	RefundRef         string     `json:"refundId,omitempty"`
	RefundAppliedAt   *time.Time `json:"refundAppliedAt,omitempty"`
	RefundProcessedAt *time.Time `json:"refundProcessedAt,omitempty"`
	RefundCompletedAt *time.Time `json:"refundCompletedAt,omitempty"`
	RefundFailedAt    *time.Time `json:"refundFailedAt,omitempty"`
}

// OrderItem 订单行项目，单价取下单时刻的成交价
type OrderItem struct {
	baseModel.BaseModel
	OrderID   string  `gorm:"type:uuid;index;not null" json:"-"`
	ProductID string  `gorm:"type:uuid;not null" json:"product"`
	Quantity  int     `gorm:"not null;check:quantity >= 1" json:"quantity"`
	Size      string  `gorm:"not null" json:"size"`
	UnitPrice float64 `json:"unitPrice"`
}

// OrderReturn 退货子记录，有独立的状态机和时间戳
type OrderReturn struct {
	baseModel.BaseModel
	OrderID   string `gorm:"type:uuid;index;not null" json:"-"`
	ProductID string `gorm:"type:uuid;not null" json:"product"`
	Size      string `gorm:"not null" json:"size"`
	Quantity  int    `gorm:"not null" json:"quantity"`
	Reason    string `json:"reason"`

	Status            string     `gorm:"type:varchar(24);default:'requested'" json:"returnStatus"`
	RequestedAt       time.Time  `json:"requestedAt"`
	PickupScheduledAt *time.Time `json:"pickupScheduledAt,omitempty"`
	PickedUpAt        *time.Time `json:"pickedUpAt,omitempty"`
	WarehousedAt      *time.Time `json:"warehousedAt,omitempty"`
	RejectedAt        *time.Time `json:"rejectedAt,omitempty"`

	AgentName    string `json:"agentName,omitempty"`
	AgentContact string `json:"agentContact,omitempty"`
	TrackingID   string `json:"trackingId,omitempty"`

	Verified bool `gorm:"default:false" json:"returnVerified"`
}

// CheckoutSession 在线支付的结算会话，同时充当库存占用记录
// 库存在下单时刻扣减一次，会话按 GatewayOrderRef 唯一：
// held -> committed（首次支付确认，占用转正，绝不二次扣减）
// held -> released（超时未支付，回补库存）
type CheckoutSession struct {
	baseModel.BaseModel
	GatewayOrderRef string          `gorm:"uniqueIndex;not null" json:"gatewayOrderRef"`
	UserID          string          `gorm:"type:uuid;not null" json:"userId"`
	AddressID       string          `gorm:"type:uuid;not null" json:"addressId"`
	Items           json.RawMessage `gorm:"type:jsonb" json:"items"`
	Amount          float64         `gorm:"not null" json:"amount"`
	Status          string          `gorm:"type:varchar(10);default:'held'" json:"status"`
	ExpiresAt       time.Time       `gorm:"index" json:"expiresAt"`
}

// LineItem 入口处反序列化后的强类型行项目
// 也是结算会话 Items 字段的 JSON 结构
type LineItem struct {
	Product   string  `json:"product"`
	Quantity  int     `json:"quantity"`
	Size      string  `json:"size"`
	UnitPrice float64 `json:"unitPrice,omitempty"`
}

const (
	PaymentMethodCOD    = "cod"
	PaymentMethodOnline = "online"

	PaymentStatusPending  = "pending"
	PaymentStatusPaid     = "paid"
	PaymentStatusFailed   = "failed"
	PaymentStatusRefunded = "refunded"

	SourceClient  = "client"
	SourceWebhook = "webhook"
	SourceBoth    = "both"

	CODNotCollected = "not_collected"
	CODCollected    = "collected"

	ShippingProcessing     = "processing"
	ShippingShipped        = "shipped"
	ShippingOutForDelivery = "out_for_delivery"
	ShippingDelivered      = "delivered"
	ShippingCancelled      = "cancelled"
	ShippingReturned       = "returned"

	ReturnRequested       = "requested"
	ReturnPickupScheduled = "pickup_scheduled"
	ReturnPickedUp        = "picked_up"
	ReturnWarehoused      = "returned_to_warehouse"
	ReturnRejected        = "rejected"

	RefundNotApplicable = "not_applicable"
	RefundApplied       = "refund_applied"
	RefundProcessing    = "refund_processing"
	RefundCompleted     = "refund_completed"
	RefundFailed        = "refund_failed"

	SessionHeld      = "held"
	SessionCommitted = "committed"
	SessionReleased  = "released"
)

// shippingForward 发货主链路的前向转移
var shippingForward = map[string]string{
	ShippingProcessing:     ShippingShipped,
	ShippingShipped:        ShippingOutForDelivery,
	ShippingOutForDelivery: ShippingDelivered,
}

// CanTransitionShipping 校验发货状态转移是否合法
// 主链路只允许逐级前进；cancelled 只能从妥投前的状态进入；returned 只能从 delivered 进入
func CanTransitionShipping(from, to string) bool {
	switch to {
	case ShippingCancelled:
		return from == ShippingProcessing || from == ShippingShipped || from == ShippingOutForDelivery
	case ShippingReturned:
		return from == ShippingDelivered
	default:
		return shippingForward[from] == to
	}
}

// returnForward 退货子状态机的前向转移
var returnForward = map[string]string{
	ReturnRequested:       ReturnPickupScheduled,
	ReturnPickupScheduled: ReturnPickedUp,
	ReturnPickedUp:        ReturnWarehoused,
}

// CanTransitionReturn 校验退货状态转移是否合法
// rejected 只能从 requested / pickup_scheduled 短路进入
func CanTransitionReturn(from, to string) bool {
	if to == ReturnRejected {
		return from == ReturnRequested || from == ReturnPickupScheduled
	}
	return returnForward[from] == to
}
