package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// This function will Load the ENVIORNMENT VARIABLES from .env if GO_ENV variable is not set
func LoadENV() error {
	goEnv := os.Getenv("GO_ENV")

	if goEnv == "" || goEnv == "development" {
		err := godotenv.Load()
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}

	return nil
}

type Config struct {
	Env      string
	Port     int
	Database Database
	JWT      JWT
	Redis    Redis
	PayU     PayU
	App      App
	Kafka    Kafka
	Spaces   Spaces
	Cron     Cron
}

type Database struct {
	Driver   string // postgres or sqlite
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type JWT struct {
	Secret        string
	Issuer        string
	Expiry        time.Duration
	RefreshExpiry time.Duration
}

type Redis struct {
	URL string
}

// PayU holds merchant credentials and gateway endpoints
type PayU struct {
	MerchantKey     string
	MerchantSalt    string
	Mode            string // test or live
	PaymentURL      string
	VerifyURL       string
	ServiceProvider string
	Timeout         time.Duration
}

type App struct {
	BaseURL        string // public URL of this API, used for surl/furl
	FrontendURL    string // where the browser lands after a callback
	AllowedOrigins string
	AdminEmail     string
	AdminPassword  string
}

type Kafka struct {
	Brokers      []string
	PaymentTopic string
}

type Spaces struct {
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	Endpoint  string
	CDNURL    string
}

// Enabled reports whether callback archiving can be configured
func (s Spaces) Enabled() bool {
	return s.Bucket != "" && s.Region != "" && s.AccessKey != "" && s.SecretKey != ""
}

type Cron struct {
	Enabled           bool
	StalePaymentAfter time.Duration
}

// IsDevelopment reports whether the service runs with a development profile
func (c *Config) IsDevelopment() bool {
	return c.Env == "" || c.Env == "development"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", 8080)
	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("JWT_ISSUER", "course-marketplace-api")
	v.SetDefault("JWT_EXPIRY", 24*time.Hour)
	v.SetDefault("JWT_REFRESH_EXPIRY", 7*24*time.Hour)
	v.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	v.SetDefault("PAYU_MODE", "test")
	v.SetDefault("PAYU_SERVICE_PROVIDER", "payu_paisa")
	v.SetDefault("PAYU_TIMEOUT", 15*time.Second)
	v.SetDefault("APP_BASE_URL", "http://localhost:8080")
	v.SetDefault("FRONTEND_URL", "http://localhost:3000")
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:3001")
	v.SetDefault("KAFKA_PAYMENT_TOPIC", "payments")
	v.SetDefault("CRON_ENABLED", true)
	v.SetDefault("STALE_PAYMENT_AFTER", 30*time.Minute)
}

// Load reads the configuration from the environment
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Env:  v.GetString("GO_ENV"),
		Port: v.GetInt("PORT"),
		Database: Database{
			Driver:   v.GetString("DB_DRIVER"),
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			User:     v.GetString("DB_USER_NAME"),
			Password: v.GetString("DB_PASSWORD"),
			Name:     v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSL_MODE"),
		},
		JWT: JWT{
			Secret:        v.GetString("JWT_SECRET"),
			Issuer:        v.GetString("JWT_ISSUER"),
			Expiry:        v.GetDuration("JWT_EXPIRY"),
			RefreshExpiry: v.GetDuration("JWT_REFRESH_EXPIRY"),
		},
		Redis: Redis{
			URL: v.GetString("REDIS_URL"),
		},
		PayU: PayU{
			MerchantKey:     v.GetString("PAYU_MERCHANT_KEY"),
			MerchantSalt:    v.GetString("PAYU_MERCHANT_SALT"),
			Mode:            strings.ToLower(v.GetString("PAYU_MODE")),
			PaymentURL:      v.GetString("PAYU_PAYMENT_URL"),
			VerifyURL:       v.GetString("PAYU_VERIFY_URL"),
			ServiceProvider: v.GetString("PAYU_SERVICE_PROVIDER"),
			Timeout:         v.GetDuration("PAYU_TIMEOUT"),
		},
		App: App{
			BaseURL:        strings.TrimRight(v.GetString("APP_BASE_URL"), "/"),
			FrontendURL:    strings.TrimRight(v.GetString("FRONTEND_URL"), "/"),
			AllowedOrigins: v.GetString("ALLOWED_ORIGINS"),
			AdminEmail:     v.GetString("ADMIN_EMAIL"),
			AdminPassword:  v.GetString("ADMIN_PASSWORD"),
		},
		Kafka: Kafka{
			Brokers:      splitList(v.GetString("KAFKA_BROKERS")),
			PaymentTopic: v.GetString("KAFKA_PAYMENT_TOPIC"),
		},
		Spaces: Spaces{
			AccessKey: v.GetString("DO_SPACES_ACCESS_KEY"),
			SecretKey: v.GetString("DO_SPACES_SECRET_KEY"),
			Bucket:    v.GetString("DO_SPACES_BUCKET"),
			Region:    v.GetString("DO_SPACES_REGION"),
			Endpoint:  v.GetString("DO_SPACES_ENDPOINT"),
			CDNURL:    v.GetString("DO_SPACES_CDN_ENDPOINT"),
		},
		Cron: Cron{
			Enabled:           v.GetBool("CRON_ENABLED"),
			StalePaymentAfter: v.GetDuration("STALE_PAYMENT_AFTER"),
		},
	}

	if cfg.Spaces.Endpoint == "" && cfg.Spaces.Region != "" {
		cfg.Spaces.Endpoint = fmt.Sprintf("%s.digitaloceanspaces.com", cfg.Spaces.Region)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings the service cannot start without
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return errors.New("JWT_SECRET environment variable is not set")
	}
	if c.PayU.Mode != "test" && c.PayU.Mode != "live" {
		return fmt.Errorf("PAYU_MODE must be test or live, got %q", c.PayU.Mode)
	}
	if !c.IsDevelopment() && (c.PayU.MerchantKey == "" || c.PayU.MerchantSalt == "") {
		return errors.New("PAYU_MERCHANT_KEY and PAYU_MERCHANT_SALT are required outside development")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
