package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	JWT        JWTConfig
	Deal       DealConfig
	Cloudinary CloudinaryConfig
	Payment    PaymentConfig
	Gateway    GatewayConfig
	Firebase   FirebaseConfig
}

type ServerConfig struct {
	Port         string
	Env          string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// CodeRateLimit caps delivery-code submissions per user per minute.
	CodeRateLimit int
}

type DatabaseConfig struct {
	Driver          string // mysql or postgres
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// JWTConfig only verifies tokens; issuing them belongs to the account service.
type JWTConfig struct {
	AccessSecret string
	AccessExpiry time.Duration
	Issuer       string
}

type DealConfig struct {
	Currency     string
	FeeBps       int64 // platform fee in basis points of the gross amount
	MinFee       int64
	CodeHashCost int
}

type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

type PaymentConfig struct {
	WebhookSecret string
	PaymentExpiry time.Duration
}

// GatewayConfig for the hosted checkout provider.
type GatewayConfig struct {
	BaseURL        string
	Email          string
	Password       string
	WebhookBaseURL string // callback is WebhookBaseURL + /api/v1/webhooks/payment
}

type FirebaseConfig struct {
	CredentialsFile string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          getEnv("PORT", "8099"),
			Env:           getEnv("APP_ENV", "development"),
			ReadTimeout:   10 * time.Second,
			WriteTimeout:  10 * time.Second,
			CodeRateLimit: getEnvInt("CODE_RATE_LIMIT", 10),
		},
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", "mysql"),
			DSN:             getEnv("DB_DSN", "parcelhop:parcelhop@tcp(localhost:3306)/parcelhop?charset=utf8mb4&parseTime=True&loc=UTC"),
			MaxIdleConns:    10,
			MaxOpenConns:    100,
			ConnMaxLifetime: time.Hour,
		},
		JWT: JWTConfig{
			AccessSecret: getEnv("JWT_ACCESS_SECRET", "change-me-in-production"),
			AccessExpiry: 15 * time.Minute,
			Issuer:       getEnv("JWT_ISSUER", "parcelhop"),
		},
		Deal: DealConfig{
			Currency:     getEnv("DEAL_CURRENCY", "KES"),
			FeeBps:       int64(getEnvInt("DEAL_FEE_BPS", 500)),
			MinFee:       int64(getEnvInt("DEAL_MIN_FEE", 0)),
			CodeHashCost: getEnvInt("DEAL_CODE_HASH_COST", 10),
		},
		Cloudinary: CloudinaryConfig{
			CloudName: getEnv("CLOUDINARY_CLOUD_NAME", ""),
			APIKey:    getEnv("CLOUDINARY_API_KEY", ""),
			APISecret: getEnv("CLOUDINARY_API_SECRET", ""),
			Folder:    getEnv("CLOUDINARY_FOLDER", "parcelhop/handoff"),
		},
		Payment: PaymentConfig{
			WebhookSecret: getEnv("PAYMENT_WEBHOOK_SECRET", ""),
			PaymentExpiry: 30 * time.Minute,
		},
		Gateway: GatewayConfig{
			BaseURL:        getEnv("GATEWAY_BASE_URL", "https://card-api.theliberec.com"),
			Email:          getEnv("GATEWAY_EMAIL", ""),
			Password:       getEnv("GATEWAY_PASSWORD", ""),
			WebhookBaseURL: getEnv("GATEWAY_WEBHOOK_BASE_URL", "http://localhost:8099"),
		},
		Firebase: FirebaseConfig{
			CredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", ""),
		},
	}
}

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
