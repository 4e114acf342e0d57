package config

import (
	"errors"
	"log"
	"math"
	"os"

	"github.com/spf13/viper"
)

// Config 全局配置结构体
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	App      AppConfig      `mapstructure:"app"`
	Razorpay RazorpayConfig `mapstructure:"razorpay"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
	Order    OrderConfig    `mapstructure:"order"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	Port     string `mapstructure:"port"`
	SSLMode  string `mapstructure:"sslmode"`
	TimeZone string `mapstructure:"timezone"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Expire int64  `mapstructure:"expire"` // 小时
}

type AppConfig struct {
	Env   string `mapstructure:"env"`
	Debug bool   `mapstructure:"debug"`
}

// RazorpayConfig 支付网关配置
// KeySecret 用于客户端回传签名验证，WebhookSecret 用于异步回调验签，两者是独立密钥、独立信任边界
type RazorpayConfig struct {
	KeyID          string `mapstructure:"key_id"`
	KeySecret      string `mapstructure:"key_secret"`
	WebhookSecret  string `mapstructure:"webhook_secret"`
	Currency       string `mapstructure:"currency"`
	TimeoutSeconds int64  `mapstructure:"timeout_seconds"`
}

// SMTPConfig 运营通知邮件配置
type SMTPConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	From       string `mapstructure:"from"`
	AdminEmail string `mapstructure:"admin_email"`
}

// OrderConfig 订单模块配置
type OrderConfig struct {
	HoldTTLMinutes         int `mapstructure:"hold_ttl_minutes"`         // 在线支付库存占用时长
	JanitorIntervalSeconds int `mapstructure:"janitor_interval_seconds"` // 过期占用回收周期
}

var GlobalConfig Config

// Validate 验证配置
func (c *Config) Validate() error {
	if c.JWT.Secret == "" || c.JWT.Secret == "your_super_secret_key" {
		return errors.New("please set a secure JWT secret in production")
	}
	if len(c.JWT.Secret) < 32 {
		return errors.New("JWT secret should be at least 32 characters")
	}

	if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
		return errors.New("database configuration is incomplete")
	}

	if c.Redis.Addr == "" {
		return errors.New("redis address is required")
	}

	// 网关密钥缺失时仅支持 COD，在线支付入口会直接报错
	if c.Razorpay.KeyID != "" && c.Razorpay.KeySecret == "" {
		return errors.New("razorpay key_secret is required when key_id is set")
	}

	// SDK 超时参数是 int16 秒，越界会溢出成负数把超时关掉
	if c.Razorpay.TimeoutSeconds < 0 || c.Razorpay.TimeoutSeconds > math.MaxInt16 {
		return errors.New("razorpay timeout_seconds must be between 0 and 32767")
	}

	return nil
}

// LoadConfig 加载配置
func LoadConfig() {
	// 获取环境变量，默认为dev
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}

	// 根据环境选择配置文件
	configName := "config"
	if env != "" && env != "dev" {
		configName = "config." + env
	}

	viper.SetConfigName(configName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	// 设置默认值
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("jwt.expire", 24)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("app.env", "dev")
	viper.SetDefault("app.debug", true)
	viper.SetDefault("razorpay.currency", "INR")
	viper.SetDefault("razorpay.timeout_seconds", 10)
	viper.SetDefault("order.hold_ttl_minutes", 30)
	viper.SetDefault("order.janitor_interval_seconds", 60)

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Warning: Config file not found, using defaults or env vars: %v", err)
	}

	// 绑定环境变量
	viper.AutomaticEnv()

	if err := viper.Unmarshal(&GlobalConfig); err != nil {
		log.Fatalf("Unable to decode into struct: %v", err)
	}

	// 手动覆盖，以防 viper 无法正确解析复杂结构或环境变量
	if host := os.Getenv("DB_HOST"); host != "" {
		GlobalConfig.Database.Host = host
	}
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		GlobalConfig.Redis.Addr = redisAddr
	}
	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		GlobalConfig.JWT.Secret = jwtSecret
	}
	if keySecret := os.Getenv("RAZORPAY_KEY_SECRET"); keySecret != "" {
		GlobalConfig.Razorpay.KeySecret = keySecret
	}
	if whSecret := os.Getenv("RAZORPAY_WEBHOOK_SECRET"); whSecret != "" {
		GlobalConfig.Razorpay.WebhookSecret = whSecret
	}

	// 验证配置
	if err := GlobalConfig.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	log.Printf("Configuration loaded and validated successfully. Environment: %s", GlobalConfig.App.Env)
}
