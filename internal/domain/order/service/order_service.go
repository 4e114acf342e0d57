package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	addressModel "ecommerce_backend/internal/domain/address/model"
	addressRepo "ecommerce_backend/internal/domain/address/repository"
	"ecommerce_backend/internal/domain/order/gateway"
	"ecommerce_backend/internal/domain/order/model"
	"ecommerce_backend/internal/domain/order/repository"
	productModel "ecommerce_backend/internal/domain/product/model"
	productRepo "ecommerce_backend/internal/domain/product/repository"
	userRepo "ecommerce_backend/internal/domain/user/repository"
	"ecommerce_backend/pkg/logger"
	"ecommerce_backend/pkg/metrics"
	"ecommerce_backend/pkg/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	// ErrValidation 入参校验失败，不产生任何副作用
	ErrValidation = errors.New("validation failed")
	// ErrInvalidSignature 签名校验失败，硬拒绝，零状态变更
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrIllegalTransition 不合法的状态转移
	ErrIllegalTransition = errors.New("illegal status transition")
	// ErrReturnNotAllowed 当前状态不允许退货
	ErrReturnNotAllowed = errors.New("return not allowed")
	// ErrOnlineUnavailable 支付网关未配置
	ErrOnlineUnavailable = errors.New("online payment unavailable")
)

// Notifier 运营通知出口，实现方必须是非阻塞的
type Notifier interface {
	NotifyAdmin(subject, text, html string)
}

// PlaceOrderInput 下单入参（入口处已反序列化为强类型）
type PlaceOrderInput struct {
	Items         []model.LineItem
	AddressID     string
	Amount        float64
	PaymentMethod string
}

// GatewayCheckout 在线支付下单的返回：网关结算单描述符 + 前端 key
type GatewayCheckout struct {
	GatewayOrderRef string  `json:"orderId"`
	Amount          float64 `json:"amount"`
	AmountMinor     int64   `json:"amountMinor"`
	Currency        string  `json:"currency"`
	ClientKey       string  `json:"key"`
}

// PlaceOrderResult COD 返回已创建订单，online 返回网关结算单
type PlaceOrderResult struct {
	Order    *model.Order     `json:"order,omitempty"`
	Checkout *GatewayCheckout `json:"checkout,omitempty"`
}

// ClientConfirmationInput 客户端支付确认入参
// 身份与行项目字段仅作为无会话时的兜底，存在结算会话时一律以会话为准
type ClientConfirmationInput struct {
	GatewayOrderRef   string
	GatewayPaymentRef string
	Signature         string
	UserID            string
	AddressID         string
	Items             []model.LineItem
	Amount            float64
}

// ReturnRequestInput 退货申请入参
type ReturnRequestInput struct {
	ProductID string
	Size      string
	Quantity  int
	Reason    string
}

// OrderService 订单对账引擎
type OrderService interface {
	PlaceOrder(userID string, input PlaceOrderInput) (*PlaceOrderResult, error)
	ConfirmClientPayment(input ClientConfirmationInput) (*model.Order, error)
	HandleWebhook(rawBody []byte, signature string) error

	ListOrders(userID string, p *utils.Pagination) ([]model.Order, utils.PageMeta, error)
	GetOrderStats() (*model.OrderStats, error)
	GetTodayStats() (*model.TodayStats, error)

	UpdateShippingStatus(orderID, next, cancelReason string) error
	CancelOrder(orderID, requesterID, reason string) error
	MarkCODCollected(orderID string) error
	RequestReturn(orderID, requesterID string, input ReturnRequestInput) (*model.OrderReturn, error)
	AdvanceReturn(returnID, next string) error
	VerifyReturn(returnID string) error
	UpdateRefundStatus(orderID, status, refundRef string) error

	StartHoldJanitor(ctx context.Context)
}

type orderService struct {
	orders    repository.OrderRepository
	checkouts repository.CheckoutRepository
	products  productRepo.ProductRepository
	addresses addressRepo.AddressRepository
	users     userRepo.UserRepository
	gw        gateway.Gateway
	notifier  Notifier
	rdb       *redis.Client

	holdTTL         time.Duration
	janitorInterval time.Duration
}

// NewOrderService 创建订单服务
// gw 为 nil 时仅支持 COD；rdb 为 nil 时跳过 webhook 去重快路径
func NewOrderService(
	orders repository.OrderRepository,
	checkouts repository.CheckoutRepository,
	products productRepo.ProductRepository,
	addresses addressRepo.AddressRepository,
	users userRepo.UserRepository,
	gw gateway.Gateway,
	notifier Notifier,
	rdb *redis.Client,
	holdTTL, janitorInterval time.Duration,
) OrderService {
	return &orderService{
		orders:          orders,
		checkouts:       checkouts,
		products:        products,
		addresses:       addresses,
		users:           users,
		gw:              gw,
		notifier:        notifier,
		rdb:             rdb,
		holdTTL:         holdTTL,
		janitorInterval: janitorInterval,
	}
}

// PlaceOrder 下单
// COD 立即落库；online 只创建网关结算单和库存占用，订单推迟到支付确认时创建。
// 库存恰好在这里扣减一次，后续确认只做占用转正，绝不二次扣减。
func (s *orderService) PlaceOrder(userID string, input PlaceOrderInput) (*PlaceOrderResult, error) {
	if err := s.validatePlaceOrder(userID, input); err != nil {
		return nil, err
	}

	items, err := s.priceItems(input.Items)
	if err != nil {
		return nil, err
	}

	// 原子预留库存，任何一项失败整体不生效
	if err := s.reserveStock(items); err != nil {
		return nil, err
	}

	snapshot, err := s.addresses.ResolveSnapshot(input.AddressID)
	if err != nil {
		// 库存已扣，补偿回补
		s.compensateStock(items, "address lookup failed")
		return nil, err
	}

	if input.PaymentMethod == model.PaymentMethodOnline {
		return s.placeOnlineOrder(userID, input, items)
	}

	order := s.buildOrder(userID, input.AddressID, snapshot, items, input.Amount, model.PaymentMethodCOD)
	order.PaymentStatus = model.PaymentStatusPending

	if err := s.orders.Create(order); err != nil {
		s.compensateStock(items, "cod order persistence failed")
		return nil, err
	}

	metrics.OrdersCreated.WithLabelValues(model.PaymentMethodCOD, "direct").Inc()
	s.notifyOrder("New COD Order Placed", order)

	return &PlaceOrderResult{Order: order}, nil
}

// placeOnlineOrder 创建网关结算单并登记库存占用，不落订单
func (s *orderService) placeOnlineOrder(userID string, input PlaceOrderInput, items []model.LineItem) (*PlaceOrderResult, error) {
	if s.gw == nil {
		s.compensateStock(items, "gateway not configured")
		return nil, ErrOnlineUnavailable
	}

	itemsJSON, err := json.Marshal(items)
	if err != nil {
		s.compensateStock(items, "marshal line items failed")
		return nil, err
	}

	receipt := fmt.Sprintf("receipt_%d", time.Now().UnixMilli())
	notes := map[string]interface{}{
		"userId":    userID,
		"addressId": input.AddressID,
		"products":  string(itemsJSON),
	}

	gwOrder, err := s.gw.CreateOrder(input.Amount, receipt, notes)
	if err != nil {
		s.compensateStock(items, "gateway order creation failed")
		return nil, err
	}

	session := &model.CheckoutSession{
		GatewayOrderRef: gwOrder.Ref,
		UserID:          userID,
		AddressID:       input.AddressID,
		Items:           itemsJSON,
		Amount:          input.Amount,
		Status:          model.SessionHeld,
		ExpiresAt:       time.Now().Add(s.holdTTL),
	}
	if err := s.checkouts.Create(session); err != nil {
		s.compensateStock(items, "checkout session persistence failed")
		return nil, err
	}

	return &PlaceOrderResult{Checkout: &GatewayCheckout{
		GatewayOrderRef: gwOrder.Ref,
		Amount:          gwOrder.Amount,
		AmountMinor:     gwOrder.AmountMinor,
		Currency:        gwOrder.Currency,
		ClientKey:       s.gw.ClientKey(),
	}}, nil
}

// ConfirmClientPayment 客户端支付确认（同步通道）
// 验签不过直接拒绝，零状态变更。与 webhook 竞争同一支付流水时，
// 输掉唯一索引的一方回退到更新分支，最终收敛为一条 source=both 的订单。
func (s *orderService) ConfirmClientPayment(input ClientConfirmationInput) (*model.Order, error) {
	if s.gw == nil {
		return nil, ErrOnlineUnavailable
	}

	if !s.gw.VerifyPaymentSignature(input.GatewayOrderRef, input.GatewayPaymentRef, input.Signature) {
		metrics.SignatureRejections.WithLabelValues("client").Inc()
		return nil, ErrInvalidSignature
	}

	checkout, err := s.resolveCheckout(input)
	if err != nil {
		return nil, err
	}

	snapshot, err := s.addresses.ResolveSnapshot(checkout.addressID)
	if err != nil {
		s.abandonCheckout(checkout, "address lookup failed on confirmation")
		return nil, err
	}

	order := s.buildOrder(checkout.userID, checkout.addressID, snapshot, checkout.items, checkout.amount, model.PaymentMethodOnline)
	order.PaymentStatus = model.PaymentStatusPaid
	order.ConfirmationSource = model.SourceClient
	order.GatewayOrderRef = &input.GatewayOrderRef
	order.GatewayPaymentRef = &input.GatewayPaymentRef

	if err := s.orders.Create(order); err != nil {
		if errors.Is(err, repository.ErrDuplicatePaymentRef) {
			// webhook 先行创建了订单：合并确认来源
			if checkout.freshReservation {
				s.compensateStock(checkout.items, "lost creation race after fresh reservation")
			}
			if _, err := s.orders.MarkPaid(input.GatewayPaymentRef, model.SourceBoth); err != nil {
				return nil, err
			}
			metrics.PaymentConfirmations.WithLabelValues("client").Inc()
			return s.orders.GetByPaymentRef(input.GatewayPaymentRef)
		}
		return nil, err
	}

	metrics.OrdersCreated.WithLabelValues(model.PaymentMethodOnline, model.SourceClient).Inc()
	metrics.PaymentConfirmations.WithLabelValues("client").Inc()
	s.notifyOrder("New Online Order Paid", order)

	return order, nil
}

// resolvedCheckout 确认通道收敛后的结算上下文
type resolvedCheckout struct {
	gatewayOrderRef string
	userID          string
	addressID       string
	amount          float64
	items           []model.LineItem
	// freshReservation 表示本次确认重新扣了库存（占用已过期或无会话），
	// 输掉订单创建竞争时需要把这份扣减补偿回去
	freshReservation bool
	// committedHold 表示本次确认赢得了 held -> committed 转移，
	// 原有占用的归属在这次调用手里
	committedHold bool
}

// ownsReservation 本次调用是否持有一份库存扣减
// 重试的确认（会话早已 committed、又没有新扣减）不持有，补偿一律跳过。
func (c *resolvedCheckout) ownsReservation() bool {
	return c.committedHold || c.freshReservation
}

// resolveCheckout 以结算会话为准收敛确认上下文
// 会话存在：身份/金额/行项目一律取自会话（客户端回传的不可信）；
// 占用 held -> committed 转正，已 released 则重新预留；
// 会话不存在：回退到请求载荷（签名已证明其持有网关签发的标识）。
func (s *orderService) resolveCheckout(input ClientConfirmationInput) (*resolvedCheckout, error) {
	session, err := s.checkouts.GetByRef(input.GatewayOrderRef)
	if err != nil {
		if !errors.Is(err, repository.ErrSessionNotFound) {
			return nil, err
		}
		return s.resolveWithoutSession(input)
	}

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

// settleHold 占用转正；已释放的占用重新预留库存
// 返回本次调用是否赢得了转正、是否发生了新的扣减
func (s *orderService) settleHold(session *model.CheckoutSession, items []model.LineItem) (committed, fresh bool, err error) {
	committed, err = s.checkouts.Commit(session.GatewayOrderRef)
	if err != nil {
		return false, false, err
	}
	if committed {
		return true, false, nil
	}

	// 没抢到转移：要么另一条确认通道已提交，要么回收协程已释放
	current, err := s.checkouts.GetByRef(session.GatewayOrderRef)
	if err != nil {
		return false, false, err
	}
	if current.Status == model.SessionCommitted {
		return false, false, nil
	}

	// 占用已过期释放，支付却成功了：重新预留
	if err := s.reserveStock(items); err != nil {
		return false, false, err
	}
	return false, true, nil
}

// abandonCheckout 确认中途失败的回退
// 只补偿本次调用持有的扣减：重试的确认什么都没扣过，重复补偿会把库存越补越多。
// 转正的会话退回 released，下一次确认走重新预留，而不是再默认占用还在。
func (s *orderService) abandonCheckout(checkout *resolvedCheckout, reason string) {
	if !checkout.ownsReservation() {
		return
	}
	s.compensateStock(checkout.items, reason)
	if checkout.committedHold {
		if _, err := s.checkouts.Reopen(checkout.gatewayOrderRef); err != nil {
			logger.Log.Warn("Failed to reopen checkout session after compensation",
				zap.String("gatewayOrderRef", checkout.gatewayOrderRef),
				zap.Error(err))
		}
	}
}

// resolveWithoutSession 无结算会话时回退到请求载荷
func (s *orderService) resolveWithoutSession(input ClientConfirmationInput) (*resolvedCheckout, error) {
	if input.UserID == "" {
		return nil, fmt.Errorf("%w: missing user for confirmation", ErrValidation)
	}
	if err := validateLineItems(input.Items); err != nil {
		return nil, err
	}
	if !isPositiveAmount(input.Amount) {
		return nil, fmt.Errorf("%w: invalid amount", ErrValidation)
	}

	items, err := s.priceItems(input.Items)
	if err != nil {
		return nil, err
	}
	if err := s.reserveStock(items); err != nil {
		return nil, err
	}

	return &resolvedCheckout{
		gatewayOrderRef:  input.GatewayOrderRef,
		userID:           input.UserID,
		addressID:        input.AddressID,
		amount:           input.Amount,
		items:            items,
		freshReservation: true,
	}, nil
}

// buildOrder 组装订单聚合
func (s *orderService) buildOrder(userID, addressID string, snapshot addressModel.Snapshot, items []model.LineItem, amount float64, method string) *model.Order {
	orderItems := make([]model.OrderItem, 0, len(items))
	for _, it := range items {
		orderItems = append(orderItems, model.OrderItem{
			ProductID: it.Product,
			Quantity:  it.Quantity,
			Size:      it.Size,
			UnitPrice: it.UnitPrice,
		})
	}

	return &model.Order{
		OrderNo:        fmt.Sprintf("%s%s", time.Now().Format("20060102150405"), uuid.New().String()[:8]),
		UserID:         userID,
		AddressID:      addressID,
		Address:        snapshot,
		Items:          orderItems,
		Amount:         amount,
		PaymentMethod:  method,
		ShippingStatus: model.ShippingProcessing,
		ProcessingAt:   time.Now(),
		CODStatus:      model.CODNotCollected,
		RefundStatus:   model.RefundNotApplicable,
	}
}

// priceItems 以当前成交价固化行项目单价
func (s *orderService) priceItems(items []model.LineItem) ([]model.LineItem, error) {
	priced := make([]model.LineItem, len(items))
	cache := make(map[string]float64)

	for i, it := range items {
		price, ok := cache[it.Product]
		if !ok {
			product, err := s.products.GetByID(it.Product)
			if err != nil {
				return nil, err
			}
			price = product.Price
			if product.DiscountedPrice > 0 {
				price = product.DiscountedPrice
			}
			cache[it.Product] = price
		}
		priced[i] = it
		priced[i].UnitPrice = price
	}
	return priced, nil
}

func (s *orderService) reserveStock(items []model.LineItem) error {
	err := s.products.ReserveStock(stockLines(items))
	if errors.Is(err, productRepo.ErrInsufficientStock) {
		metrics.StockConflicts.Inc()
	}
	return err
}

// compensateStock 补偿性回补库存
// 回补失败只记告警和指标，不向调用方传播（接受的最终一致风险，需要人工核账）
func (s *orderService) compensateStock(items []model.LineItem, reason string) {
	if err := s.products.RestoreStock(stockLines(items)); err != nil {
		metrics.CompensationFailures.Inc()
		logger.Log.Warn("Stock compensation failed, manual reconciliation required",
			zap.String("reason", reason),
			zap.Error(err))
	}
}

func stockLines(items []model.LineItem) []productModel.StockLine {
	lines := make([]productModel.StockLine, 0, len(items))
	for _, it := range items {
		lines = append(lines, productModel.StockLine{
			ProductID: it.Product,
			Size:      it.Size,
			Quantity:  it.Quantity,
		})
	}
	return lines
}

// validatePlaceOrder 下单入参校验，失败无任何副作用
func (s *orderService) validatePlaceOrder(userID string, input PlaceOrderInput) error {
	if userID == "" {
		return fmt.Errorf("%w: missing user id", ErrValidation)
	}
	if err := validateLineItems(input.Items); err != nil {
		return err
	}
	if input.AddressID == "" {
		return fmt.Errorf("%w: missing address id", ErrValidation)
	}
	if !isPositiveAmount(input.Amount) {
		return fmt.Errorf("%w: invalid amount", ErrValidation)
	}
	if input.PaymentMethod != model.PaymentMethodCOD && input.PaymentMethod != model.PaymentMethodOnline {
		return fmt.Errorf("%w: invalid payment method", ErrValidation)
	}

	exists, err := s.users.Exists(userID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: user not found", ErrValidation)
	}
	return nil
}

func validateLineItems(items []model.LineItem) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: no products selected", ErrValidation)
	}
	for _, it := range items {
		if it.Product == "" || it.Quantity < 1 || strings.TrimSpace(it.Size) == "" {
			return fmt.Errorf("%w: invalid product, quantity, or size in product list", ErrValidation)
		}
	}
	return nil
}

func isPositiveAmount(amount float64) bool {
	return amount > 0 && !math.IsNaN(amount) && !math.IsInf(amount, 0)
}

// notifyOrder 给运营邮箱投递订单通知，失败不影响主流程
func (s *orderService) notifyOrder(subject string, order *model.Order) {
	if s.notifier == nil {
		return
	}

	text := fmt.Sprintf("Order %s placed. Amount: %.2f, payment method: %s",
		order.ID, order.Amount, order.PaymentMethod)

	var b strings.Builder
	fmt.Fprintf(&b, "<h2>%s</h2>", subject)
	fmt.Fprintf(&b, "<p><strong>Order ID:</strong> %s</p>", order.ID)
	fmt.Fprintf(&b, "<p><strong>User ID:</strong> %s</p>", order.UserID)
	fmt.Fprintf(&b, "<p><strong>Amount:</strong> %.2f</p>", order.Amount)
	fmt.Fprintf(&b, "<p><strong>Payment Method:</strong> %s</p>", order.PaymentMethod)
	fmt.Fprintf(&b, "<p><strong>Name:</strong> %s %s</p>", order.Address.FirstName, order.Address.LastName)
	fmt.Fprintf(&b, "<p><strong>City:</strong> %s, %s %s</p>", order.Address.City, order.Address.State, order.Address.Zip)
	for _, it := range order.Items {
		fmt.Fprintf(&b, "<p>Product: %s, Size: %s, Qty: %d, Price: %.2f</p>",
			it.ProductID, it.Size, it.Quantity, it.UnitPrice)
	}

	s.notifier.NotifyAdmin(subject, text, b.String())
}
