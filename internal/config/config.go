package config

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Port string

	// WhatsApp Business Cloud API credentials
	PhoneNumberID             string
	AccessToken               string
	WhatsAppBusinessAccountID string
	VerifyToken               string
	// AppSecret is the Meta app secret used to check X-Hub-Signature-256 on
	// incoming webhooks. When empty, signature verification is skipped
	// entirely. That is an operational choice for local setups without a
	// configured app secret, not a safe default: production deployments
	// must set WHATSAPP_APP_SECRET.
	AppSecret  string
	APIVersion string

	// Role assigned to WhatsApp users auto-registered via webhook.
	DefaultUserRole string

	// Database
	DBDriver   string // postgres or sqlite
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	DBPath     string // sqlite only
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		logrus.Warn("No .env file loaded")
	}

	return &Config{
		Port: getEnv("PORT", "8080"),

		PhoneNumberID:             getEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
		AccessToken:               getEnv("WHATSAPP_ACCESS_TOKEN", ""),
		WhatsAppBusinessAccountID: getEnv("WHATSAPP_BUSINESS_ACCOUNT_ID", ""),
		VerifyToken:               getEnv("WHATSAPP_WEBHOOK_VERIFY_TOKEN", ""),
		AppSecret:                 getEnv("WHATSAPP_APP_SECRET", ""),
		APIVersion:                getEnv("WHATSAPP_API_VERSION", "v21.0"),

		DefaultUserRole: getEnv("WHATSAPP_DEFAULT_USER_ROLE", "guest"),

		DBDriver:   getEnv("DB_DRIVER", "sqlite"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "whatsapp_admin"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),
		DBPath:     getEnv("DB_PATH", "./whatsapp_admin.db"),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
