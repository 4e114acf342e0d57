package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ecommerce_backend/internal/domain/order/gateway"
	"ecommerce_backend/internal/domain/order/model"
	"ecommerce_backend/internal/domain/order/repository"
	"ecommerce_backend/pkg/logger"
	"ecommerce_backend/pkg/metrics"

	"go.uber.org/zap"
)

// webhookDedupTTL 已处理支付流水在 Redis 里的标记保留时长
const webhookDedupTTL = 24 * time.Hour

// paymentEntity 回调里的支付实体，金额为最小货币单位
type paymentEntity struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"order_id"`
	AmountMinor int64           `json:"amount"`
	Notes       json.RawMessage `json:"notes"`
}

// webhookPayload 网关回调载荷的强类型视图，未知字段一律忽略
type webhookPayload struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity paymentEntity `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// webhookNotes 下单时写进网关结算单的元数据，回调时带回
// 网关在为空时会回传空数组，所以 Notes 先落到 RawMessage 再宽松解码
type webhookNotes struct {
	UserID    string `json:"userId"`
	AddressID string `json:"addressId"`
	Products  string `json:"products"`
}

// HandleWebhook 网关回调确认（异步通道）
// 必须在原始字节上验签。幂等以支付流水号为键：
// 订单已 paid 纯无操作；存在未 paid 订单则标记已支付；不存在则据此创建。
// 与客户端确认并发时靠唯一索引收敛，库存绝不二次扣减。
func (s *orderService) HandleWebhook(rawBody []byte, signature string) error {
	if s.gw == nil {
		return ErrOnlineUnavailable
	}

	if !s.gw.VerifyWebhookSignature(rawBody, signature) {
		metrics.SignatureRejections.WithLabelValues("webhook").Inc()
		return ErrInvalidSignature
	}

	var payload webhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return fmt.Errorf("%w: malformed webhook payload", ErrValidation)
	}

	entity := payload.Payload.Payment.Entity
	if entity.ID == "" {
		return fmt.Errorf("%w: webhook payload missing payment entity", ErrValidation)
	}

	// Redis 快路径：仅在处理成功后写入标记，命中说明是纯重放
	// Redis 不可用时直接走数据库幂等，正确性不依赖这条快路径
	dedupKey := "order:webhook:" + entity.ID
	if s.rdb != nil {
		if n, err := s.rdb.Exists(context.Background(), dedupKey).Result(); err == nil && n > 0 {
			metrics.WebhookReplays.Inc()
			return nil
		}
	}

	if err := s.reconcileWebhook(entity); err != nil {
		return err
	}

	if s.rdb != nil {
		if err := s.rdb.Set(context.Background(), dedupKey, 1, webhookDedupTTL).Err(); err != nil {
			logger.Log.Debug("Webhook dedup marker write failed", zap.Error(err))
		}
	}
	return nil
}

// reconcileWebhook 按支付流水号把回调收敛到订单上
func (s *orderService) reconcileWebhook(entity paymentEntity) error {
	order, err := s.orders.GetByPaymentRef(entity.ID)
	if err == nil {
		if order.PaymentStatus == model.PaymentStatusPaid {
			metrics.WebhookReplays.Inc()
			return nil
		}
		// COD 转在线等场景下存在未支付订单：仅标记已支付
		if _, err := s.orders.MarkPaid(entity.ID, model.SourceBoth); err != nil {
			return err
		}
		metrics.PaymentConfirmations.WithLabelValues("webhook").Inc()
		return nil
	}
	if !errors.Is(err, repository.ErrOrderNotFound) {
		return err
	}

	return s.createFromWebhook(entity)
}

// createFromWebhook 回调先于客户端确认到达：据结算会话（或回传元数据）创建已支付订单
func (s *orderService) createFromWebhook(entity paymentEntity) error {
	checkout, err := s.resolveWebhookCheckout(entity)
	if err != nil {
		return err
	}

	snapshot, err := s.addresses.ResolveSnapshot(checkout.addressID)
	if err != nil {
		s.abandonCheckout(checkout, "address lookup failed on webhook")
		return err
	}

	order := s.buildOrder(checkout.userID, checkout.addressID, snapshot, checkout.items, checkout.amount, model.PaymentMethodOnline)
	order.PaymentStatus = model.PaymentStatusPaid
	order.ConfirmationSource = model.SourceWebhook
	order.GatewayOrderRef = &entity.OrderID
	order.GatewayPaymentRef = &entity.ID

	if err := s.orders.Create(order); err != nil {
		if errors.Is(err, repository.ErrDuplicatePaymentRef) {
			// 客户端确认抢先创建了订单：合并确认来源
			if checkout.freshReservation {
				s.compensateStock(checkout.items, "lost creation race after fresh reservation")
			}
			if _, err := s.orders.MarkPaid(entity.ID, model.SourceBoth); err != nil {
				return err
			}
			metrics.PaymentConfirmations.WithLabelValues("webhook").Inc()
			return nil
		}
		return err
	}

	metrics.OrdersCreated.WithLabelValues(model.PaymentMethodOnline, model.SourceWebhook).Inc()
	metrics.PaymentConfirmations.WithLabelValues("webhook").Inc()
	s.notifyOrder("New Online Order Paid", order)
	return nil
}

// resolveWebhookCheckout 优先用结算会话还原下单上下文，缺失时回退到回调元数据
func (s *orderService) resolveWebhookCheckout(entity paymentEntity) (*resolvedCheckout, error) {
	session, err := s.checkouts.GetByRef(entity.OrderID)
	if err == nil {
		var items []model.LineItem
		if err := json.Unmarshal(session.Items, &items); err != nil {
			return nil, fmt.Errorf("%w: corrupt checkout session items", ErrValidation)
		}
		committed, fresh, err := s.settleHold(session, items)
		if err != nil {
			return nil, err
		}
		return &resolvedCheckout{
			gatewayOrderRef:  session.GatewayOrderRef,
			userID:           session.UserID,
			addressID:        session.AddressID,
			amount:           session.Amount,
			items:            items,
			freshReservation: fresh,
			committedHold:    committed,
		}, nil
	}
	if !errors.Is(err, repository.ErrSessionNotFound) {
		return nil, err
	}

	// 结算会话缺失：回退到下单时写进网关的 notes 元数据
	var notes webhookNotes
	if len(entity.Notes) > 0 {
		// notes 为空时网关回传空数组而非对象，解码失败按缺失处理
		_ = json.Unmarshal(entity.Notes, &notes)
	}
	if notes.UserID == "" {
		return nil, fmt.Errorf("%w: webhook payload carries no usable order context", ErrValidation)
	}

	var raw []model.LineItem
	if err := json.Unmarshal([]byte(notes.Products), &raw); err != nil {
		return nil, fmt.Errorf("%w: malformed products metadata in webhook notes", ErrValidation)
	}
	if err := validateLineItems(raw); err != nil {
		return nil, err
	}

	items, err := s.priceItems(raw)
	if err != nil {
		return nil, err
	}
	if err := s.reserveStock(items); err != nil {
		return nil, err
	}

	return &resolvedCheckout{
		gatewayOrderRef:  entity.OrderID,
		userID:           notes.UserID,
		addressID:        notes.AddressID,
		amount:           gateway.MajorUnits(entity.AmountMinor),
		items:            items,
		freshReservation: true,
	}, nil
}

// StartHoldJanitor 启动过期占用回收协程
// 对 held 超时的结算会话做 held -> released 转移并回补库存；
// 只有抢到转移的协程做回补，和支付确认的 commit 天然互斥。
func (s *orderService) StartHoldJanitor(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.janitorInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.releaseExpiredHolds()
			}
		}
	}()
}

func (s *orderService) releaseExpiredHolds() {
	sessions, err := s.checkouts.ExpiredHeld(time.Now(), 100)
	if err != nil {
		logger.Log.Warn("Expired hold scan failed", zap.Error(err))
		return
	}

	for i := range sessions {
		session := &sessions[i]
		released, err := s.checkouts.Release(session.GatewayOrderRef)
		if err != nil {
			logger.Log.Warn("Hold release failed",
				zap.String("gatewayOrderRef", session.GatewayOrderRef),
				zap.Error(err))
			continue
		}
		if !released {
			// 晚到的支付确认已提交占用
			continue
		}

		var items []model.LineItem
		if err := json.Unmarshal(session.Items, &items); err != nil {
			logger.Log.Error("Corrupt items in expired checkout session",
				zap.String("gatewayOrderRef", session.GatewayOrderRef),
				zap.Error(err))
			continue
		}
		s.compensateStock(items, "hold expired")
		metrics.HoldsReleased.Inc()

		logger.Log.Info("Released expired stock hold",
			zap.String("gatewayOrderRef", session.GatewayOrderRef),
			zap.Time("expiresAt", session.ExpiresAt))
	}
}
