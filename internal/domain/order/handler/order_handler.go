package handler

import (
	"errors"
	"net/http"

	addressRepo "ecommerce_backend/internal/domain/address/repository"
	"ecommerce_backend/internal/domain/order/model"
	"ecommerce_backend/internal/domain/order/repository"
	"ecommerce_backend/internal/domain/order/service"
	productRepo "ecommerce_backend/internal/domain/product/repository"
	userModel "ecommerce_backend/internal/domain/user/model"
	"ecommerce_backend/internal/pkg/middleware"
	"ecommerce_backend/pkg/response"
	"ecommerce_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

type OrderHandler struct {
	service service.OrderService
}

func NewOrderHandler(s service.OrderService) *OrderHandler {
	return &OrderHandler{service: s}
}

type LineItemInput struct {
	Product  string `json:"product" binding:"required"`
	Quantity int    `json:"quantity" binding:"required,min=1"`
	Size     string `json:"size" binding:"required"`
}

type CreateOrderInput struct {
	Products      []LineItemInput `json:"products" binding:"required,min=1,dive"`
	AddressID     string          `json:"addressId" binding:"required"`
	Amount        float64         `json:"amount" binding:"required,gt=0"`
	PaymentMethod string          `json:"paymentMethod" binding:"required,oneof=cod online"`
}

// CreateOrder 下单
// @Summary 下单
// @Tags Order
// @Accept json
// @Produce json
// @Param userId path string true "User ID"
// @Param input body CreateOrderInput true "Order Info"
// @Success 201 {object} response.Response
// @Router /orders/create-order/{userId} [post]
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	userID := c.Param("userId")
	if !h.authorizeUser(c, userID) {
		return
	}

	var input CreateOrderInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	result, err := h.service.PlaceOrder(userID, service.PlaceOrderInput{
		Items:         toLineItems(input.Products),
		AddressID:     input.AddressID,
		Amount:        input.Amount,
		PaymentMethod: input.PaymentMethod,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	response.Created(c, result)
}

type VerifyPaymentInput struct {
	RazorpayOrderID   string          `json:"razorpay_order_id" binding:"required"`
	RazorpayPaymentID string          `json:"razorpay_payment_id" binding:"required"`
	RazorpaySignature string          `json:"razorpay_signature" binding:"required"`
	AddressID         string          `json:"addressId"`
	Products          []LineItemInput `json:"products"`
	Amount            float64         `json:"amount"`
}

// VerifyPayment 客户端支付确认
// @Summary 客户端支付确认
// @Tags Order
// @Accept json
// @Produce json
// @Param input body VerifyPaymentInput true "Payment proof"
// @Success 200 {object} response.Response
// @Router /orders/verify-payment [post]
func (h *OrderHandler) VerifyPayment(c *gin.Context) {
	var input VerifyPaymentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	order, err := h.service.ConfirmClientPayment(service.ClientConfirmationInput{
		GatewayOrderRef:   input.RazorpayOrderID,
		GatewayPaymentRef: input.RazorpayPaymentID,
		Signature:         input.RazorpaySignature,
		UserID:            middleware.UserIDFromContext(c),
		AddressID:         input.AddressID,
		Items:             toLineItems(input.Products),
		Amount:            input.Amount,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	response.Success(c, order)
}

// Webhook 支付网关回调
// 必须在原始字节上验签，任何反序列化都在验签之后
// @Summary 支付网关回调
// @Tags Order
// @Router /orders/webhook [post]
func (h *OrderHandler) Webhook(c *gin.Context) {
	rawBody, err := c.GetRawData()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, "unreadable request body")
		return
	}

	signature := c.GetHeader("X-Razorpay-Signature")
	if err := h.service.HandleWebhook(rawBody, signature); err != nil {
		if errors.Is(err, service.ErrInvalidSignature) {
			response.Error(c, http.StatusBadRequest, response.ErrInvalidSignature, "Invalid webhook signature")
			return
		}
		h.writeError(c, err)
		return
	}

	// 网关只看 2xx，重试由它自己驱动
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetOrders 用户订单列表
// @Summary 用户订单列表
// @Tags Order
// @Produce json
// @Param userId path string true "User ID"
// @Param page query int false "Page"
// @Param limit query int false "Limit"
// @Success 200 {object} response.Response
// @Router /orders/get-orders/{userId} [get]
func (h *OrderHandler) GetOrders(c *gin.Context) {
	userID := c.Param("userId")
	if !h.authorizeUser(c, userID) {
		return
	}
	h.listOrders(c, userID)
}

// GetAllOrders 全量订单列表（运营后台）
// @Summary 全量订单列表
// @Tags Order
// @Produce json
// @Param page query int false "Page"
// @Param limit query int false "Limit"
// @Success 200 {object} response.Response
// @Router /orders/all-orders [get]
func (h *OrderHandler) GetAllOrders(c *gin.Context) {
	h.listOrders(c, "")
}

func (h *OrderHandler) listOrders(c *gin.Context, userID string) {
	var p utils.Pagination
	if err := c.ShouldBindQuery(&p); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	orders, meta, err := h.service.ListOrders(userID, &p)
	if err != nil {
		h.writeError(c, err)
		return
	}

	response.Success(c, gin.H{
		"orders":      orders,
		"currentPage": meta.CurrentPage,
		"totalPages":  meta.TotalPages,
		"totalOrders": meta.TotalCount,
		"hasNext":     meta.HasNext,
		"hasPrev":     meta.HasPrev,
		"limit":       meta.Limit,
	})
}

// GetOrderStats 订单统计
// @Summary 订单统计
// @Tags Order
// @Produce json
// @Success 200 {object} response.Response
// @Router /orders/order-status [get]
func (h *OrderHandler) GetOrderStats(c *gin.Context) {
	stats, err := h.service.GetOrderStats()
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, stats)
}

// GetTodayStats 今日订单统计
// @Summary 今日订单统计
// @Tags Order
// @Produce json
// @Success 200 {object} response.Response
// @Router /orders/today-order-stats [get]
func (h *OrderHandler) GetTodayStats(c *gin.Context) {
	stats, err := h.service.GetTodayStats()
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, stats)
}

type ShippingStatusInput struct {
	Status       string `json:"status" binding:"required"`
	CancelReason string `json:"cancelReason"`
}

// UpdateShippingStatus 推进发货状态（运营后台）
// @Summary 推进发货状态
// @Tags Order
// @Accept json
// @Produce json
// @Param orderId path string true "Order ID"
// @Param input body ShippingStatusInput true "Next status"
// @Success 200 {object} response.Response
// @Router /orders/shipping-status/{orderId} [put]
func (h *OrderHandler) UpdateShippingStatus(c *gin.Context) {
	var input ShippingStatusInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	if err := h.service.UpdateShippingStatus(c.Param("orderId"), input.Status, input.CancelReason); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, "Shipping status updated")
}

type CancelOrderInput struct {
	Reason string `json:"reason" binding:"required"`
}

// CancelOrder 用户取消订单
// @Summary 取消订单
// @Tags Order
// @Accept json
// @Produce json
// @Param orderId path string true "Order ID"
// @Param input body CancelOrderInput true "Cancel reason"
// @Success 200 {object} response.Response
// @Router /orders/{orderId}/cancel [post]
func (h *OrderHandler) CancelOrder(c *gin.Context) {
	var input CancelOrderInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	requesterID := middleware.UserIDFromContext(c)
	if h.isAdmin(c) {
		requesterID = ""
	}

	if err := h.service.CancelOrder(c.Param("orderId"), requesterID, input.Reason); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, "Order cancelled")
}

// MarkCODCollected 标记 COD 货款已回收（运营后台）
// @Summary 标记 COD 已回款
// @Tags Order
// @Produce json
// @Param orderId path string true "Order ID"
// @Success 200 {object} response.Response
// @Router /orders/cod-collected/{orderId} [put]
func (h *OrderHandler) MarkCODCollected(c *gin.Context) {
	if err := h.service.MarkCODCollected(c.Param("orderId")); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, "COD marked as collected")
}

type ReturnRequestInputBody struct {
	Product  string `json:"product" binding:"required"`
	Size     string `json:"size" binding:"required"`
	Quantity int    `json:"quantity" binding:"required,min=1"`
	Reason   string `json:"reason" binding:"required"`
}

// RequestReturn 发起退货申请
// @Summary 发起退货
// @Tags Order
// @Accept json
// @Produce json
// @Param orderId path string true "Order ID"
// @Param input body ReturnRequestInputBody true "Return line"
// @Success 201 {object} response.Response
// @Router /orders/returns/{orderId} [post]
func (h *OrderHandler) RequestReturn(c *gin.Context) {
	var input ReturnRequestInputBody
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	requesterID := middleware.UserIDFromContext(c)
	if h.isAdmin(c) {
		requesterID = ""
	}

	ret, err := h.service.RequestReturn(c.Param("orderId"), requesterID, service.ReturnRequestInput{
		ProductID: input.Product,
		Size:      input.Size,
		Quantity:  input.Quantity,
		Reason:    input.Reason,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Created(c, ret)
}

type ReturnStatusInput struct {
	Status string `json:"status" binding:"required"`
}

// AdvanceReturn 推进退货状态（运营后台）
// @Summary 推进退货状态
// @Tags Order
// @Accept json
// @Produce json
// @Param returnId path string true "Return ID"
// @Param input body ReturnStatusInput true "Next status"
// @Success 200 {object} response.Response
// @Router /orders/returns/{returnId}/status [put]
func (h *OrderHandler) AdvanceReturn(c *gin.Context) {
	var input ReturnStatusInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	if err := h.service.AdvanceReturn(c.Param("returnId"), input.Status); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, "Return status updated")
}

// VerifyReturn 核验退货（运营后台）
// @Summary 核验退货
// @Tags Order
// @Produce json
// @Param returnId path string true "Return ID"
// @Success 200 {object} response.Response
// @Router /orders/returns/{returnId}/verify [put]
func (h *OrderHandler) VerifyReturn(c *gin.Context) {
	if err := h.service.VerifyReturn(c.Param("returnId")); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, "Return verified")
}

type RefundStatusInput struct {
	Status    string `json:"status" binding:"required"`
	RefundRef string `json:"refundId"`
}

// UpdateRefundStatus 推进退款状态（运营后台）
// @Summary 推进退款状态
// @Tags Order
// @Accept json
// @Produce json
// @Param orderId path string true "Order ID"
// @Param input body RefundStatusInput true "Refund status"
// @Success 200 {object} response.Response
// @Router /orders/refund-status/{orderId} [put]
func (h *OrderHandler) UpdateRefundStatus(c *gin.Context) {
	var input RefundStatusInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
		return
	}

	if err := h.service.UpdateRefundStatus(c.Param("orderId"), input.Status, input.RefundRef); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, "Refund status updated")
}

// authorizeUser 校验路径里的用户和认证用户一致，管理员放行
func (h *OrderHandler) authorizeUser(c *gin.Context, userID string) bool {
	if userID == "" {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, "missing user id")
		return false
	}
	if h.isAdmin(c) || middleware.UserIDFromContext(c) == userID {
		return true
	}
	response.Error(c, http.StatusForbidden, response.ErrNoPermission, "Cannot operate on another user's orders")
	return false
}

func (h *OrderHandler) isAdmin(c *gin.Context) bool {
	role, _ := c.Get("role")
	roleInt, ok := role.(int)
	return ok && roleInt == userModel.RoleAdmin
}

// writeError 把服务层错误映射为统一响应
func (h *OrderHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, err.Error())
	case errors.Is(err, service.ErrInvalidSignature):
		response.Error(c, http.StatusBadRequest, response.ErrInvalidSignature, "Invalid payment signature")
	case errors.Is(err, service.ErrNotOrderOwner):
		response.Error(c, http.StatusForbidden, response.ErrNoPermission, "Cannot operate on another user's orders")
	case errors.Is(err, service.ErrOnlineUnavailable):
		response.Error(c, http.StatusServiceUnavailable, response.ErrGateway, "Online payment is not available")
	case errors.Is(err, service.ErrIllegalTransition):
		response.Fail(c, response.ErrIllegalTransition, err.Error())
	case errors.Is(err, service.ErrReturnNotAllowed):
		response.Fail(c, response.ErrReturnNotAllowed, err.Error())
	case errors.Is(err, productRepo.ErrInsufficientStock):
		response.Fail(c, response.ErrInsufficientStock, "Insufficient stock for requested items")
	case errors.Is(err, productRepo.ErrProductNotFound):
		response.Error(c, http.StatusNotFound, response.ErrProductNotFound, "Product not found")
	case errors.Is(err, productRepo.ErrVariantNotFound):
		response.Error(c, http.StatusNotFound, response.ErrVariantNotFound, "Requested size not available for product")
	case errors.Is(err, addressRepo.ErrAddressNotFound):
		response.Error(c, http.StatusNotFound, response.ErrAddressNotFound, "Address not found")
	case errors.Is(err, repository.ErrOrderNotFound), errors.Is(err, repository.ErrReturnNotFound):
		response.Error(c, http.StatusNotFound, response.ErrOrderNotFound, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, err.Error())
	}
}

func toLineItems(items []LineItemInput) []model.LineItem {
	out := make([]model.LineItem, 0, len(items))
	for _, it := range items {
		out = append(out, model.LineItem{
			Product:  it.Product,
			Quantity: it.Quantity,
			Size:     it.Size,
		})
	}
	return out
}
