package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
)

type Config struct {
	App               AppConfig
	HTTP              ServerConfig
	GRPC              ServerConfig
	MySQL             MySQLConfig
	Log               LogConfig
	InternalEndpoints InternalEndpointsConfig
	Gateways          GatewaysConfig
	Platform          PlatformConfig
	Billing           BillingConfig
	Jobs              JobsConfig
	Redis             RedisConfig
	RabbitMQ          RabbitMQConfig
	Metrics           MetricsConfig
}

type AppConfig struct {
	ServiceName string
	APIKey      string
	// CronSecret authenticates the scheduler trigger endpoint.
	CronSecret      string
	TrustCronHeader bool
}

type ServerConfig struct {
	Host string
	Port string
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

type InternalEndpointsConfig struct {
	AuthGRPCAddr string
}

type GatewaysConfig struct {
	PayUSandboxURL     string
	PayUProductionURL  string
	WompiSandboxURL    string
	WompiProductionURL string
	MercadoPagoBaseURL string
	HTTPTimeout        time.Duration
}

// PlatformConfig holds the platform's own Wompi account used to bill merchants.
type PlatformConfig struct {
	WompiPublicKey    string
	WompiPrivateKey   string
	WompiEventsSecret string
	WompiProduction   bool
	Currency          string
}

type BillingConfig struct {
	MaxAttempts         int32
	RetryInterval       time.Duration
	ChargeTimeout       time.Duration
	Concurrency         int
	BatchSize           int32
	LockTTL             time.Duration
	ReconcileStaleAfter time.Duration
	ReminderLead        time.Duration
	DefaultCurrency     string
	DefaultPayerEmail   string
	DefaultPayerName    string
}

type JobsConfig struct {
	BillingInterval         time.Duration
	MerchantBillingInterval time.Duration
	ReconcileInterval       time.Duration
	RemindersInterval       time.Duration
	BillingSchedule         string
	ReconcileSchedule       string
	RemindersSchedule       string
}

type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	LockPrefix string
}

type RabbitMQConfig struct {
	URL      string
	Exchange string
}

type MetricsConfig struct {
	Enabled bool
	Path    string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}
	dsn, err := normalizeDSN(mysqlDSN)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		App: AppConfig{
			ServiceName:     getEnv("APP_SERVICE_NAME", "billing-service"),
			APIKey:          getEnv("APP_API_KEY", ""),
			CronSecret:      getEnv("CRON_SECRET", ""),
			TrustCronHeader: getBoolEnv("CRON_TRUST_HEADER", false),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		GRPC: ServerConfig{
			Host: getEnv("GRPC_HOST", "0.0.0.0"),
			Port: getEnv("GRPC_PORT", "9090"),
		},
		MySQL: MySQLConfig{
			DSN:             dsn,
			MaxOpenConns:    getIntEnv("MYSQL_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("MYSQL_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getMinutesEnv("MYSQL_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		InternalEndpoints: InternalEndpointsConfig{
			AuthGRPCAddr: getEnv("AUTH_SERVICE_GRPC_ADDR", "localhost:9090"),
		},
		Gateways: GatewaysConfig{
			PayUSandboxURL:     getEnv("PAYU_SANDBOX_URL", ""),
			PayUProductionURL:  getEnv("PAYU_PRODUCTION_URL", ""),
			WompiSandboxURL:    getEnv("WOMPI_SANDBOX_URL", ""),
			WompiProductionURL: getEnv("WOMPI_PRODUCTION_URL", ""),
			MercadoPagoBaseURL: getEnv("MERCADOPAGO_BASE_URL", ""),
			HTTPTimeout:        getSecondsEnv("GATEWAY_HTTP_TIMEOUT_SECONDS", 20*time.Second),
		},
		Platform: PlatformConfig{
			WompiPublicKey:    getEnv("PLATFORM_WOMPI_PUBLIC_KEY", ""),
			WompiPrivateKey:   getEnv("PLATFORM_WOMPI_PRIVATE_KEY", ""),
			WompiEventsSecret: getEnv("PLATFORM_WOMPI_EVENTS_SECRET", ""),
			WompiProduction:   getBoolEnv("PLATFORM_WOMPI_PRODUCTION", false),
			Currency:          getEnv("PLATFORM_CURRENCY", "COP"),
		},
		Billing: BillingConfig{
			MaxAttempts:         int32(getIntEnv("BILLING_MAX_ATTEMPTS", 3)),
			RetryInterval:       getHoursEnv("BILLING_RETRY_INTERVAL_HOURS", 24*time.Hour),
			ChargeTimeout:       getSecondsEnv("BILLING_CHARGE_TIMEOUT_SECONDS", 30*time.Second),
			Concurrency:         getIntEnv("BILLING_CONCURRENCY", 4),
			BatchSize:           int32(getIntEnv("BILLING_BATCH_SIZE", 200)),
			LockTTL:             getSecondsEnv("BILLING_LOCK_TTL_SECONDS", 120*time.Second),
			ReconcileStaleAfter: getMinutesEnv("BILLING_RECONCILE_STALE_AFTER_MINUTES", 30*time.Minute),
			ReminderLead:        getHoursEnv("BILLING_REMINDER_LEAD_HOURS", 72*time.Hour),
			DefaultCurrency:     getEnv("BILLING_DEFAULT_CURRENCY", "COP"),
			DefaultPayerEmail:   getEnv("BILLING_DEFAULT_PAYER_EMAIL", "no-email@example.com"),
			DefaultPayerName:    getEnv("BILLING_DEFAULT_PAYER_NAME", "Cliente"),
		},
		Jobs: JobsConfig{
			BillingInterval:         getMinutesEnv("BILLING_RUN_INTERVAL_MINUTES", 60*time.Minute),
			MerchantBillingInterval: getMinutesEnv("BILLING_MERCHANTS_INTERVAL_MINUTES", 60*time.Minute),
			ReconcileInterval:       getMinutesEnv("BILLING_RECONCILE_INTERVAL_MINUTES", 10*time.Minute),
			RemindersInterval:       getMinutesEnv("BILLING_REMINDERS_INTERVAL_MINUTES", 24*60*time.Minute),
			BillingSchedule:         getEnv("BILLING_SCHEDULE", "0 6 * * *"),
			ReconcileSchedule:       getEnv("BILLING_RECONCILE_SCHEDULE", "*/10 * * * *"),
			RemindersSchedule:       getEnv("BILLING_REMINDERS_SCHEDULE", "0 9 * * *"),
		},
		Redis: RedisConfig{
			Addr:       getEnv("REDIS_ADDR", ""),
			Password:   getEnv("REDIS_PASSWORD", ""),
			DB:         getIntEnv("REDIS_DB", 0),
			LockPrefix: getEnv("REDIS_LOCK_PREFIX", "billing:lock"),
		},
		RabbitMQ: RabbitMQConfig{
			URL:      getEnv("RABBITMQ_URL", ""),
			Exchange: getEnv("RABBITMQ_NOTIFICATIONS_EXCHANGE", "billing.notifications"),
		},
		Metrics: MetricsConfig{
			Enabled: getBoolEnv("METRICS_ENABLED", true),
			Path:    getEnv("METRICS_PATH", "/metrics"),
		},
	}
	if err := cfg.Billing.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate requires the subscription lock to outlive a single charge attempt.
func (c BillingConfig) validate() error {
	if c.ChargeTimeout <= 0 {
		return errors.New("BILLING_CHARGE_TIMEOUT_SECONDS must be positive")
	}
	if c.LockTTL <= c.ChargeTimeout {
		return fmt.Errorf("BILLING_LOCK_TTL_SECONDS (%s) must be greater than BILLING_CHARGE_TIMEOUT_SECONDS (%s)", c.LockTTL, c.ChargeTimeout)
	}
	return nil
}

// normalizeDSN forces the driver options the repositories rely on: time columns scanned into
// time.Time in UTC, and matched (not changed) rows reported by UPDATE.
func normalizeDSN(raw string) (string, error) {
	parsed, err := mysqlDriver.ParseDSN(raw)
	if err != nil {
		return "", fmt.Errorf("invalid MYSQL_DSN: %w", err)
	}
	parsed.ParseTime = true
	parsed.ClientFoundRows = true
	parsed.Loc = time.UTC
	return parsed.FormatDSN(), nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getHoursEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if hours, err := strconv.Atoi(value); err == nil {
			return time.Duration(hours) * time.Hour
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
