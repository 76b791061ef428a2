package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
)

type Config struct {
	Port     string `env:"PORT" envDefault:"8080"`
	DBDriver string `env:"DB_DRIVER" envDefault:"mysql"`

	DBUser                 string `env:"DB_USER"`
	DBPassword             string `env:"DB_PASSWORD"`
	DBHost                 string `env:"DB_HOST"` // e.g. tcp(host:3306) or unix(/cloudsql/instance)
	DBName                 string `env:"DB_NAME"`
	DBPort                 string `env:"DB_PORT" envDefault:"3306"`
	InstanceConnectionName string `env:"INSTANCE_CONNECTION_NAME"`
	DatabaseURL            string `env:"DATABASE_URL"` // postgres only

	FirebaseProjectID     string `env:"FIREBASE_PROJECT_ID"`
	GoogleCredentialsJSON string `env:"GOOGLE_CREDENTIALS_JSON"`
	StorageBucket         string `env:"STORAGE_BUCKET"`

	RedisAddr string `env:"REDIS_ADDR"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	MailFrom     string `env:"MAIL_FROM" envDefault:"Farm Market <no-reply@farmmarket.local>"`

	StripeSecretKey     string `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
	PaymentCurrency     string `env:"PAYMENT_CURRENCY" envDefault:"usd"`

	FrontendURL            string        `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`
	DefaultDeliveryDays    int           `env:"ORDER_DEFAULT_DELIVERY_DAYS" envDefault:"7"`
	OrderTxTimeout         time.Duration `env:"ORDER_TX_TIMEOUT" envDefault:"5s"`
	NotifyWorkers          int           `env:"NOTIFY_WORKERS" envDefault:"4"`
	NotifyQueueSize        int           `env:"NOTIFY_QUEUE_SIZE" envDefault:"1024"`
	ProductRequireApproval bool          `env:"PRODUCT_REQUIRE_APPROVAL" envDefault:"false"`
	CORSAllowedOrigins     []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	GitSHA    string `env:"GIT_SHA" envDefault:"dev"`
	BuildTime string `env:"BUILD_TIME"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate fills non-positive tunables with defaults and checks the database settings.
func (c *Config) Validate() error {
	c.DBDriver = strings.ToLower(strings.TrimSpace(c.DBDriver))
	switch c.DBDriver {
	case "mysql":
		var missing []string
		if c.DBUser == "" {
			missing = append(missing, "DB_USER")
		}
		if c.DBHost == "" && c.InstanceConnectionName == "" {
			missing = append(missing, "DB_HOST")
		}
		if c.DBName == "" {
			missing = append(missing, "DB_NAME")
		}
		if len(missing) > 0 {
			return fmt.Errorf("missing required env: %s", strings.Join(missing, ", "))
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for postgres")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.DefaultDeliveryDays <= 0 {
		c.DefaultDeliveryDays = 7
	}
	if c.OrderTxTimeout <= 0 {
		c.OrderTxTimeout = 5 * time.Second
	}
	if c.NotifyWorkers <= 0 {
		c.NotifyWorkers = 1
	}
	if c.NotifyQueueSize <= 0 {
		c.NotifyQueueSize = 1024
	}
	return nil
}

func (c *Config) MailEnabled() bool {
	return c.SMTPHost != ""
}
