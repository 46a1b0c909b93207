package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/notify"
)

// Config holds the complete application configuration, loadable from
// environment variables (SHOP_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (SHOP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (SHOP_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Auth         AuthConfig
	Pricing      PricingConfig
	Cart         CartConfig
	Order        OrderConfig
	Payment      PaymentConfig
	Shipping     ShippingConfig
	Kafka        notify.Config
	Redis        RedisConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// AuthConfig controls bearer token validation.
type AuthConfig struct {
	JWTSecret string `usage:"HS256 secret of shopper and admin tokens" flag:"jwt-secret"`
	Issuer    string `default:"" usage:"Expected token issuer, empty to skip the check"`
}

// PricingConfig holds pricing parameters.
type PricingConfig struct {
	WrappingCostPerItem float64 `default:"25" usage:"Gift wrap charge per checkout line"`
}

// CartConfig holds cart limits.
type CartConfig struct {
	MaxLineQuantity int `default:"5" usage:"Maximum quantity of a single cart line"`
}

// OrderConfig holds order lifecycle policy.
type OrderConfig struct {
	ReturnWindowDays     int    `default:"14" usage:"Days after placement a line may be cancelled, returned or exchanged"`
	EstimateDeliveryDays int    `default:"7" usage:"Days added to the placement date for the delivery estimate"`
	PaymentMethod        string `default:"razorpay" usage:"Payment method recorded on refunds"`
}

// PaymentConfig holds payment gateway credentials.
type PaymentConfig struct {
	BaseURL   string        `default:"https://api.razorpay.com" usage:"Payment gateway API base URL"`
	KeyID     string        `usage:"Payment gateway key id"`
	KeySecret string        `usage:"Payment gateway key secret, also used to verify signatures"`
	Currency  string        `default:"INR" usage:"Currency of gateway orders"`
	Timeout   time.Duration `default:"10s" usage:"Payment gateway request timeout"`
}

// ShippingConfig holds ShipCorrect credentials.
type ShippingConfig struct {
	BaseURL      string        `default:"https://shipcorrect.com" usage:"ShipCorrect API base URL"`
	APIKey       string        `usage:"ShipCorrect API key"`
	Username     string        `usage:"ShipCorrect username"`
	Password     string        `usage:"ShipCorrect password"`
	Timeout      time.Duration `default:"15s" usage:"ShipCorrect request timeout"`
	UnitWeightKg float64       `default:"0.5" usage:"Weight assumed for one unit of any product"`
}

// RedisConfig selects the shared rate limit store. An empty Addr keeps rate
// limiting in process memory.
type RedisConfig struct {
	Addr     string `default:"" usage:"Redis address (host:port)"`
	Password string `default:"" usage:"Redis password"`
	DB       int    `default:"0" usage:"Redis database number"`
}

// RateLimitConfig controls the per-client rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "SHOP",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set SHOP_DATABASE_URL or DATABASE_URL")
	case c.Auth.JWTSecret == "":
		return errors.New("JWT secret is required: set SHOP_AUTH_JWT_SECRET")
	case c.Payment.KeySecret == "":
		return errors.New("payment key secret is required: set SHOP_PAYMENT_KEY_SECRET")
	case c.Cart.MaxLineQuantity <= 0:
		return errors.New("cart max line quantity must be positive")
	case c.Order.ReturnWindowDays <= 0:
		return errors.New("order return window must be positive")
	case c.Pricing.WrappingCostPerItem < 0:
		return errors.New("wrapping cost must not be negative")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's SHOP_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
