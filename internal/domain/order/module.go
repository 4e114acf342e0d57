package order

import (
	"context"
	"time"

	addressRepo "ecommerce_backend/internal/domain/address/repository"
	"ecommerce_backend/internal/domain/order/gateway"
	"ecommerce_backend/internal/domain/order/handler"
	"ecommerce_backend/internal/domain/order/repository"
	"ecommerce_backend/internal/domain/order/service"
	productRepo "ecommerce_backend/internal/domain/product/repository"
	userRepo "ecommerce_backend/internal/domain/user/repository"
	"ecommerce_backend/internal/pkg/config"
	"ecommerce_backend/internal/pkg/mailer"
	"ecommerce_backend/internal/pkg/middleware"
	"ecommerce_backend/internal/pkg/registry"
	"ecommerce_backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// OrderModule 订单模块
type OrderModule struct{}

func init() {
	registry.Register(&OrderModule{})
}

func (m *OrderModule) Name() string {
	return "order"
}

func (m *OrderModule) Priority() int {
	// 订单模块依赖用户/地址/商品模块
	return 30
}

func (m *OrderModule) Init(ctx *registry.ModuleContext) error {
	// 1. 依赖注入
	oRepo := repository.NewOrderRepository(ctx.DB)
	cRepo := repository.NewCheckoutRepository(ctx.DB)
	pRepo := productRepo.NewProductRepository(ctx.DB)
	aRepo := addressRepo.NewAddressRepository(ctx.DB)
	uRepo := userRepo.NewUserRepository(ctx.DB)

	// 2. 支付网关，未配置时只支持 COD
	var gw gateway.Gateway
	if config.GlobalConfig.Razorpay.KeyID != "" {
		rzp, err := gateway.NewRazorpayGateway()
		if err != nil {
			logger.Log.Error("Failed to init Razorpay gateway: " + err.Error())
		} else {
			gw = rzp
		}
	}

	// 3. 运营通知，未配置 SMTP 时不投递
	var notifier service.Notifier
	if config.GlobalConfig.SMTP.Host != "" {
		ml := mailer.NewMailer(config.GlobalConfig.SMTP, 2, 100)
		ml.Start()
		notifier = ml
	}

	holdTTL := time.Duration(config.GlobalConfig.Order.HoldTTLMinutes) * time.Minute
	janitorInterval := time.Duration(config.GlobalConfig.Order.JanitorIntervalSeconds) * time.Second

	oService := service.NewOrderService(
		oRepo, cRepo, pRepo, aRepo, uRepo,
		gw, notifier, ctx.Redis,
		holdTTL, janitorInterval,
	)

	// 4. 过期库存占用回收协程
	oService.StartHoldJanitor(context.Background())

	oHandler := handler.NewOrderHandler(oService)

	// 5. 路由注册
	setupRoutes(ctx.Router, oHandler)

	return nil
}

func setupRoutes(r *gin.Engine, h *handler.OrderHandler) {
	g := r.Group("/orders")

	// 网关回调 (无需鉴权，靠原始字节验签)
	g.POST("/webhook", h.Webhook)

	// 需要鉴权的接口
	auth := g.Group("")
	auth.Use(middleware.AuthMiddleware())
	{
		auth.POST("/create-order/:userId", h.CreateOrder)
		auth.POST("/verify-payment", h.VerifyPayment)
		auth.GET("/get-orders/:userId", h.GetOrders)
		auth.POST("/:orderId/cancel", h.CancelOrder)
		auth.POST("/returns/:orderId", h.RequestReturn)

		// 需要管理员权限的接口
		admin := auth.Group("")
		admin.Use(middleware.AdminMiddleware())
		{
			admin.GET("/all-orders", h.GetAllOrders)
			admin.GET("/order-status", h.GetOrderStats)
			admin.GET("/today-order-stats", h.GetTodayStats)
			admin.PUT("/shipping-status/:orderId", h.UpdateShippingStatus)
			admin.PUT("/cod-collected/:orderId", h.MarkCODCollected)
			admin.PUT("/returns/:returnId/status", h.AdvanceReturn)
			admin.PUT("/returns/:returnId/verify", h.VerifyReturn)
			admin.PUT("/refund-status/:orderId", h.UpdateRefundStatus)
		}
	}
}
