package service

import (
	"errors"
	"fmt"
	"time"

	"ecommerce_backend/internal/domain/order/model"
	"ecommerce_backend/internal/domain/order/repository"
	"ecommerce_backend/pkg/logger"

	"go.uber.org/zap"
)

// UpdateShippingStatus 推进发货状态
// 以当前库内状态做条件更新，并发修改或不合法转移都会拒绝。
// 已支付的在线订单被取消时自动进入退款流程。
func (s *orderService) UpdateShippingStatus(orderID, next, cancelReason string) error {
	order, err := s.orders.GetByID(orderID)
	if err != nil {
		return err
	}

	if !model.CanTransitionShipping(order.ShippingStatus, next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, order.ShippingStatus, next)
	}
	if next == model.ShippingCancelled && cancelReason == "" {
		return fmt.Errorf("%w: cancellation requires a reason", ErrValidation)
	}

	if err := s.orders.UpdateShippingStatus(orderID, order.ShippingStatus, next, time.Now(), cancelReason); err != nil {
		if errors.Is(err, repository.ErrStaleTransition) {
			return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, order.ShippingStatus, next)
		}
		return err
	}

	if next == model.ShippingCancelled &&
		order.PaymentMethod == model.PaymentMethodOnline &&
		order.PaymentStatus == model.PaymentStatusPaid {
		if err := s.orders.SetRefundStatus(orderID, model.RefundApplied, "", time.Now()); err != nil {
			logger.Log.Warn("Failed to open refund on cancellation",
				zap.String("orderId", orderID),
				zap.Error(err))
		}
	}

	logger.Log.Info("Shipping status updated",
		zap.String("orderId", orderID),
		zap.String("from", order.ShippingStatus),
		zap.String("to", next))
	return nil
}

// ErrNotOrderOwner 请求者不是订单归属用户
var ErrNotOrderOwner = errors.New("order does not belong to requester")

// CancelOrder 用户侧取消订单
// requesterID 非空时校验订单归属；运营后台传空串跳过归属校验
func (s *orderService) CancelOrder(orderID, requesterID, reason string) error {
	if requesterID != "" {
		order, err := s.orders.GetByID(orderID)
		if err != nil {
			return err
		}
		if order.UserID != requesterID {
			return ErrNotOrderOwner
		}
	}
	return s.UpdateShippingStatus(orderID, model.ShippingCancelled, reason)
}

// MarkCODCollected 标记 COD 货款已回收
// 只对 cod 且已妥投的订单生效
func (s *orderService) MarkCODCollected(orderID string) error {
	order, err := s.orders.GetByID(orderID)
	if err != nil {
		return err
	}
	if order.PaymentMethod != model.PaymentMethodCOD {
		return fmt.Errorf("%w: not a cod order", ErrValidation)
	}
	if order.ShippingStatus != model.ShippingDelivered {
		return fmt.Errorf("%w: cod collection before delivery", ErrIllegalTransition)
	}
	return s.orders.MarkCODCollected(orderID)
}

// RequestReturn 发起退货申请
// 仅 delivered 状态的订单可退，且退货行必须能对上原订单行
func (s *orderService) RequestReturn(orderID, requesterID string, input ReturnRequestInput) (*model.OrderReturn, error) {
	order, err := s.orders.GetByID(orderID)
	if err != nil {
		return nil, err
	}
	if requesterID != "" && order.UserID != requesterID {
		return nil, ErrNotOrderOwner
	}
	if order.ShippingStatus != model.ShippingDelivered {
		return nil, fmt.Errorf("%w: order is %s", ErrReturnNotAllowed, order.ShippingStatus)
	}

	matched := false
	for _, it := range order.Items {
		if it.ProductID == input.ProductID && it.Size == input.Size && input.Quantity >= 1 && input.Quantity <= it.Quantity {
			matched = true
			break
		}
	}
	if !matched {
		return nil, fmt.Errorf("%w: return line does not match any order line", ErrValidation)
	}

	ret := &model.OrderReturn{
		OrderID:     orderID,
		ProductID:   input.ProductID,
		Size:        input.Size,
		Quantity:    input.Quantity,
		Reason:      input.Reason,
		Status:      model.ReturnRequested,
		RequestedAt: time.Now(),
	}
	if err := s.orders.CreateReturn(ret); err != nil {
		return nil, err
	}

	logger.Log.Info("Return requested",
		zap.String("orderId", orderID),
		zap.String("returnId", ret.ID))
	return ret, nil
}

// AdvanceReturn 推进退货状态
// 入库完成时把整单标记为 returned 并为已支付在线订单开启退款
func (s *orderService) AdvanceReturn(returnID, next string) error {
	ret, err := s.orders.GetReturn(returnID)
	if err != nil {
		return err
	}
	if !model.CanTransitionReturn(ret.Status, next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, ret.Status, next)
	}

	if err := s.orders.AdvanceReturn(returnID, ret.Status, next, time.Now()); err != nil {
		if errors.Is(err, repository.ErrStaleTransition) {
			return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, ret.Status, next)
		}
		return err
	}

	if next == model.ReturnWarehoused {
		order, err := s.orders.GetByID(ret.OrderID)
		if err != nil {
			return err
		}
		if model.CanTransitionShipping(order.ShippingStatus, model.ShippingReturned) {
			if err := s.orders.UpdateShippingStatus(ret.OrderID, order.ShippingStatus, model.ShippingReturned, time.Now(), ""); err != nil && !errors.Is(err, repository.ErrStaleTransition) {
				return err
			}
		}
		if order.PaymentMethod == model.PaymentMethodOnline && order.PaymentStatus == model.PaymentStatusPaid {
			if err := s.orders.SetRefundStatus(ret.OrderID, model.RefundApplied, "", time.Now()); err != nil {
				logger.Log.Warn("Failed to open refund on warehoused return",
					zap.String("orderId", ret.OrderID),
					zap.Error(err))
			}
		}
	}
	return nil
}

// VerifyReturn 运营核验退货
func (s *orderService) VerifyReturn(returnID string) error {
	return s.orders.VerifyReturn(returnID)
}

// UpdateRefundStatus 推进退款状态（运营后台手工操作）
func (s *orderService) UpdateRefundStatus(orderID, status, refundRef string) error {
	switch status {
	case model.RefundApplied, model.RefundProcessing, model.RefundCompleted, model.RefundFailed:
	default:
		return fmt.Errorf("%w: unknown refund status %q", ErrValidation, status)
	}
	return s.orders.SetRefundStatus(orderID, status, refundRef, time.Now())
}
