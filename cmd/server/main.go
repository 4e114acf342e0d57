package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ecommerce_backend/internal/pkg/config"
	"ecommerce_backend/internal/pkg/middleware"
	"ecommerce_backend/internal/pkg/registry"
	"ecommerce_backend/pkg/database"
	"ecommerce_backend/pkg/logger"

	// 模块通过 init 自注册
	_ "ecommerce_backend/internal/domain/order"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// @title E-commerce Backend API
// @version 1.0
// @description Order placement and payment reconciliation service
// @BasePath /
func main() {
	config.LoadConfig()

	logger.InitLogger(config.GlobalConfig.App.Debug)
	defer logger.Sync()

	db := database.InitDatabase()
	rdb := database.InitRedis()

	gin.SetMode(config.GlobalConfig.Server.Mode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.RateLimitMiddleware())

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Razorpay-Signature"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// 初始化所有业务模块
	if err := registry.InitModules(&registry.ModuleContext{
		DB:     db,
		Redis:  rdb,
		Router: r,
	}); err != nil {
		logger.Log.Fatal("Failed to initialize modules", zap.Error(err))
	}

	srv := &http.Server{
		Addr:    ":" + config.GlobalConfig.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Log.Info("Server starting", zap.String("port", config.GlobalConfig.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// 优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}
	logger.Log.Info("Server exited")
}
