package repository

import (
	"errors"
	"time"

	"ecommerce_backend/internal/domain/order/model"

	"gorm.io/gorm"
)

var (
	// ErrOrderNotFound 订单不存在
	ErrOrderNotFound = errors.New("order not found")
	// ErrReturnNotFound 退货记录不存在
	ErrReturnNotFound = errors.New("return request not found")
	// ErrDuplicatePaymentRef 支付流水号唯一索引冲突
	// 客户端确认与 webhook 并发竞争同一笔支付时，输掉的一方收到它并转入更新分支
	ErrDuplicatePaymentRef = errors.New("duplicate gateway payment ref")
	// ErrStaleTransition 条件更新未命中，状态已被并发修改或转移不合法
	ErrStaleTransition = errors.New("stale status transition")
)

// shippingStampColumn 发货状态对应的时间戳列
var shippingStampColumn = map[string]string{
	model.ShippingShipped:        "shipped_at",
	model.ShippingOutForDelivery: "out_for_delivery_at",
	model.ShippingDelivered:      "delivered_at",
	model.ShippingCancelled:      "cancelled_at",
	model.ShippingReturned:       "returned_at",
}

// returnStampColumn 退货状态对应的时间戳列
var returnStampColumn = map[string]string{
	model.ReturnPickupScheduled: "pickup_scheduled_at",
	model.ReturnPickedUp:        "picked_up_at",
	model.ReturnWarehoused:      "warehoused_at",
	model.ReturnRejected:        "rejected_at",
}

// refundStampColumn 退款状态对应的时间戳列
var refundStampColumn = map[string]string{
	model.RefundApplied:    "refund_applied_at",
	model.RefundProcessing: "refund_processed_at",
	model.RefundCompleted:  "refund_completed_at",
	model.RefundFailed:     "refund_failed_at",
}

// OrderRepository 接口定义
type OrderRepository interface {
	Create(order *model.Order) error
	GetByID(id string) (*model.Order, error)
	GetByPaymentRef(paymentRef string) (*model.Order, error)
	// MarkPaid 将未支付订单置为已支付，幂等；返回本次调用是否真正发生了转移
	MarkPaid(paymentRef, source string) (bool, error)
	List(userID string, offset, limit int) ([]model.Order, int64, error)
	// UpdateShippingStatus 带 CAS 的发货状态推进，时间戳只写一次
	UpdateShippingStatus(orderID, from, next string, stamp time.Time, cancelReason string) error
	MarkCODCollected(orderID string) error
	CreateReturn(ret *model.OrderReturn) error
	GetReturn(id string) (*model.OrderReturn, error)
	AdvanceReturn(returnID, from, next string, stamp time.Time) error
	VerifyReturn(returnID string) error
	SetRefundStatus(orderID, status, refundRef string, stamp time.Time) error
	Stats() (*model.OrderStats, error)
	TodayStats() (*model.TodayStats, error)
}

type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository 创建新的仓库实例
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

// Create 持久化订单（含行项目）
// gateway_payment_ref 上的唯一索引在这里兜底幂等
func (r *orderRepository) Create(order *model.Order) error {
	if err := r.db.Create(order).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicatePaymentRef
		}
		return err
	}
	return nil
}

func (r *orderRepository) GetByID(id string) (*model.Order, error) {
	var order model.Order
	err := r.db.Preload("Items").Preload("Returns").Where("id = ?", id).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) GetByPaymentRef(paymentRef string) (*model.Order, error) {
	var order model.Order
	err := r.db.Preload("Items").Where("gateway_payment_ref = ?", paymentRef).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// MarkPaid 条件更新，已支付订单重放时不产生任何写入
func (r *orderRepository) MarkPaid(paymentRef, source string) (bool, error) {
	result := r.db.Model(&model.Order{}).
		Where("gateway_payment_ref = ? AND payment_status <> ?", paymentRef, model.PaymentStatusPaid).
		Updates(map[string]interface{}{
			"payment_status":      model.PaymentStatusPaid,
			"confirmation_source": source,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// List 按创建时间倒序分页，userID 为空表示管理员全量查询
func (r *orderRepository) List(userID string, offset, limit int) ([]model.Order, int64, error) {
	var orders []model.Order
	var total int64

	query := r.db.Model(&model.Order{})
	if userID != "" {
		query = query.Where("user_id = ?", userID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Preload("Items").Preload("Returns").
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// UpdateShippingStatus CAS 到期望的当前状态，时间戳列用 COALESCE 保证只写一次
func (r *orderRepository) UpdateShippingStatus(orderID, from, next string, stamp time.Time, cancelReason string) error {
	updates := map[string]interface{}{
		"shipping_status": next,
	}
	if col, ok := shippingStampColumn[next]; ok {
		updates[col] = gorm.Expr("COALESCE("+col+", ?)", stamp)
	}
	if next == model.ShippingCancelled {
		updates["cancel_reason"] = cancelReason
	}

	result := r.db.Model(&model.Order{}).
		Where("id = ? AND shipping_status = ?", orderID, from).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStaleTransition
	}
	return nil
}

func (r *orderRepository) MarkCODCollected(orderID string) error {
	result := r.db.Model(&model.Order{}).
		Where("id = ? AND payment_method = ?", orderID, model.PaymentMethodCOD).
		Updates(map[string]interface{}{
			"cod_status":     model.CODCollected,
			"payment_status": model.PaymentStatusPaid,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *orderRepository) CreateReturn(ret *model.OrderReturn) error {
	return r.db.Create(ret).Error
}

func (r *orderRepository) GetReturn(id string) (*model.OrderReturn, error) {
	var ret model.OrderReturn
	if err := r.db.Where("id = ?", id).First(&ret).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReturnNotFound
		}
		return nil, err
	}
	return &ret, nil
}

// AdvanceReturn 退货子状态机推进，同样走 CAS + 一次性时间戳
func (r *orderRepository) AdvanceReturn(returnID, from, next string, stamp time.Time) error {
	updates := map[string]interface{}{
		"status": next,
	}
	if col, ok := returnStampColumn[next]; ok {
		updates[col] = gorm.Expr("COALESCE("+col+", ?)", stamp)
	}

	result := r.db.Model(&model.OrderReturn{}).
		Where("id = ? AND status = ?", returnID, from).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStaleTransition
	}
	return nil
}

func (r *orderRepository) VerifyReturn(returnID string) error {
	result := r.db.Model(&model.OrderReturn{}).
		Where("id = ?", returnID).
		UpdateColumn("verified", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrReturnNotFound
	}
	return nil
}

// SetRefundStatus 退款生命周期与发货状态相互独立
func (r *orderRepository) SetRefundStatus(orderID, status, refundRef string, stamp time.Time) error {
	updates := map[string]interface{}{
		"refund_status": status,
	}
	if refundRef != "" {
		updates["refund_ref"] = refundRef
	}
	if col, ok := refundStampColumn[status]; ok {
		updates[col] = gorm.Expr("COALESCE("+col+", ?)", stamp)
	}

	result := r.db.Model(&model.Order{}).
		Where("id = ?", orderID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// Stats 全量订单统计
func (r *orderRepository) Stats() (*model.OrderStats, error) {
	stats := &model.OrderStats{}

	type countQuery struct {
		dest *int64
		cond func(*gorm.DB) *gorm.DB
	}
	counts := []countQuery{
		{&stats.TotalOrders, func(q *gorm.DB) *gorm.DB { return q }},
		{&stats.PendingOrders, func(q *gorm.DB) *gorm.DB { return q.Where("payment_status = ?", model.PaymentStatusPending) }},
		{&stats.DeliveredOrders, func(q *gorm.DB) *gorm.DB { return q.Where("shipping_status = ?", model.ShippingDelivered) }},
		{&stats.CancelledOrders, func(q *gorm.DB) *gorm.DB { return q.Where("shipping_status = ?", model.ShippingCancelled) }},
	}
	for _, c := range counts {
		if err := c.cond(r.db.Model(&model.Order{})).Count(c.dest).Error; err != nil {
			return nil, err
		}
	}

	// 销量聚合：总件数 + 去重商品数
	row := r.db.Model(&model.OrderItem{}).
		Select("COALESCE(SUM(quantity), 0), COUNT(DISTINCT product_id)").
		Row()
	if err := row.Scan(&stats.TotalUnitsSold, &stats.DistinctProductCount); err != nil {
		return nil, err
	}

	return stats, nil
}

// TodayStats 当日 processing/delivered 订单统计及客单价
func (r *orderRepository) TodayStats() (*model.TodayStats, error) {
	now := time.Now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	end := start.Add(24 * time.Hour)

	var rows []struct {
		ShippingStatus string
		Count          int64
		TotalAmount    float64
	}
	err := r.db.Model(&model.Order{}).
		Select("shipping_status, COUNT(*) as count, COALESCE(SUM(amount), 0) as total_amount").
		Where("created_at >= ? AND created_at < ?", start, end).
		Where("shipping_status IN ?", []string{model.ShippingProcessing, model.ShippingDelivered}).
		Group("shipping_status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	stats := &model.TodayStats{}
	for _, row := range rows {
		switch row.ShippingStatus {
		case model.ShippingDelivered:
			stats.Completed = row.Count
			if row.Count > 0 {
				stats.AvgOrderValue = row.TotalAmount / float64(row.Count)
			}
		case model.ShippingProcessing:
			stats.Processing = row.Count
		}
	}
	return stats, nil
}
