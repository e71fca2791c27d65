package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"coursepay/internal/payment"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Processor payment.Settings
	Callback  CallbackConfig
	Checkout  CheckoutConfig
	Telegram  TelegramConfig
	Admin     AdminConfig
}

type ServerConfig struct {
	Port    int
	Env     string // "development", "production"
	BaseURL string

	// TrustedProxies lists the reverse proxy networks allowed to set
	// X-Forwarded-For.
	TrustedProxies []string
}

type DatabaseConfig struct {
	Host    string
	Port    string
	Name    string
	User    string
	Pass    string
	Charset string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// SlowQuery is the threshold above which gorm logs a query as slow.
	SlowQuery time.Duration
}

type RedisConfig struct {
	Addr string
	Pass string
	DB   int
}

type CallbackConfig struct {
	Rate         float64
	Burst        int
	ReplayTTL    time.Duration
	AllowedCIDRs []string
}

type CheckoutConfig struct {
	// ExpiryGrace is added to the processor session timeout before an
	// abandoned checkout returns to the cart.
	ExpiryGrace time.Duration
}

type TelegramConfig struct {
	Token      string
	ReportChat string
}

type AdminConfig struct {
	APIKey string
}

func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// CheckoutTTL is how long a checkout may stay in paying.
func (c *Config) CheckoutTTL() time.Duration {
	return c.Processor.SessionTimeout + c.Checkout.ExpiryGrace
}

func newViper() *viper.Viper {
	// Load .env file (ignore error if missing)
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("APP_PORT", 8080)
	v.SetDefault("APP_ENV", "production")
	v.SetDefault("APP_BASE_URL", "")
	v.SetDefault("APP_TRUSTED_PROXIES", "")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "3306")
	v.SetDefault("DB_CHARSET", "utf8mb4")
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "1h")
	v.SetDefault("DB_SLOW_QUERY", "200ms")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CONFIG_FILE", "config.yaml")

	v.SetDefault("PROCESSOR_HASH_ALGORITHM", string(payment.AlgorithmSHA256))
	v.SetDefault("PROCESSOR_ORDER_PREFIX", "COURSE")
	v.SetDefault("PROCESSOR_MAX_RETRY", 3)
	v.SetDefault("PROCESSOR_SESSION_TIMEOUT", "20m")
	v.SetDefault("PROCESSOR_CONFIRM_SCREEN", false)

	v.SetDefault("CALLBACK_RATE", 5)
	v.SetDefault("CALLBACK_BURST", 20)
	v.SetDefault("CALLBACK_REPLAY_TTL", "24h")
	v.SetDefault("CALLBACK_ALLOWED_CIDRS", "")
	v.SetDefault("CHECKOUT_EXPIRY_GRACE", "10m")
	return v
}

// Load reads configuration from .env, environment variables and the optional
// YAML file named by CONFIG_FILE, which may carry the two field mapping tables.
func Load() (*Config, error) {
	v := newViper()

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	sessionTimeout, err := duration(v, "PROCESSOR_SESSION_TIMEOUT")
	if err != nil {
		return nil, err
	}
	replayTTL, err := duration(v, "CALLBACK_REPLAY_TTL")
	if err != nil {
		return nil, err
	}
	grace, err := duration(v, "CHECKOUT_EXPIRY_GRACE")
	if err != nil {
		return nil, err
	}

	purchaseFields := v.GetStringMapString("PROCESSOR_PURCHASE_FIELDS")
	if len(purchaseFields) == 0 {
		purchaseFields = payment.DefaultPurchaseFields()
	}
	resultFields := v.GetStringMapString("PROCESSOR_RESULT_FIELDS")
	if len(resultFields) == 0 {
		resultFields = payment.DefaultResultFields()
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:    v.GetInt("APP_PORT"),
			Env:     v.GetString("APP_ENV"),
			BaseURL: strings.TrimRight(v.GetString("APP_BASE_URL"), "/"),

			TrustedProxies: splitList(v.GetString("APP_TRUSTED_PROXIES")),
		},
		Database: databaseConfig(v),
		Redis: RedisConfig{
			Addr: v.GetString("REDIS_ADDR"),
			Pass: v.GetString("REDIS_PASS"),
			DB:   v.GetInt("REDIS_DB"),
		},
		Processor: payment.Settings{
			EntryURL:       v.GetString("PROCESSOR_ENTRY_URL"),
			AccessKey:      v.GetString("PROCESSOR_ACCESS_KEY"),
			Secret:         v.GetString("PROCESSOR_SECRET"),
			HashAlgorithm:  v.GetString("PROCESSOR_HASH_ALGORITHM"),
			OrderPrefix:    v.GetString("PROCESSOR_ORDER_PREFIX"),
			PurchaseFields: purchaseFields,
			ResultFields:   resultFields,
			MaxRetry:       v.GetInt("PROCESSOR_MAX_RETRY"),
			SessionTimeout: sessionTimeout,
			ConfirmScreen:  v.GetBool("PROCESSOR_CONFIRM_SCREEN"),
			ReturnURL:      v.GetString("PROCESSOR_RETURN_URL"),
			CancelURL:      v.GetString("PROCESSOR_CANCEL_URL"),
		},
		Callback: CallbackConfig{
			Rate:         v.GetFloat64("CALLBACK_RATE"),
			Burst:        v.GetInt("CALLBACK_BURST"),
			ReplayTTL:    replayTTL,
			AllowedCIDRs: splitList(v.GetString("CALLBACK_ALLOWED_CIDRS")),
		},
		Checkout: CheckoutConfig{
			ExpiryGrace: grace,
		},
		Telegram: TelegramConfig{
			Token:      v.GetString("TELEGRAM_BOT_TOKEN"),
			ReportChat: v.GetString("TELEGRAM_REPORT_CHAT"),
		},
		Admin: AdminConfig{
			APIKey: v.GetString("ADMIN_API_KEY"),
		},
	}

	if cfg.Processor.EntryURL == "" {
		return nil, fmt.Errorf("%w: PROCESSOR_ENTRY_URL is not set", payment.ErrConfig)
	}
	return cfg, nil
}

// LoadDatabaseOnly reads just the database settings, for maintenance commands
// that must run without a processor account.
func LoadDatabaseOnly() (*DatabaseConfig, error) {
	v := newViper()
	db := databaseConfig(v)
	if db.Name == "" {
		return nil, fmt.Errorf("%w: DB_NAME is not set", payment.ErrConfig)
	}
	return &db, nil
}

func databaseConfig(v *viper.Viper) DatabaseConfig {
	return DatabaseConfig{
		Host:    v.GetString("DB_HOST"),
		Port:    v.GetString("DB_PORT"),
		Name:    v.GetString("DB_NAME"),
		User:    v.GetString("DB_USER"),
		Pass:    v.GetString("DB_PASS"),
		Charset: v.GetString("DB_CHARSET"),

		MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
		ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
		SlowQuery:       v.GetDuration("DB_SLOW_QUERY"),
	}
}

func readConfigFile(v *viper.Viper) error {
	path := v.GetString("CONFIG_FILE")
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	return nil
}

func duration(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", payment.ErrConfig, key, err)
	}
	return d, nil
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

// DSN returns the MySQL DSN string for GORM.
func (d *DatabaseConfig) DSN() string {
	return d.User + ":" + d.Pass + "@tcp(" + d.Host + ":" + d.Port + ")/" + d.Name + "?charset=" + d.Charset + "&parseTime=True&loc=Local"
}
