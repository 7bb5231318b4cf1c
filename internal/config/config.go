package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

/*
Config holds all configuration required by the API process.
All values MUST come from environment variables.
No business logic should depend on raw env vars.
*/
type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Money     MoneyConfig
	RateLimit RateLimitConfig
	Outbox    OutboxConfig
	Kafka     KafkaConfig
}

/* ===================== APP ===================== */

type AppConfig struct {
	Env         string
	Port        int
	Maintenance bool // loaded from APP_MAINTENANCE; no handler consults it, so mutations are accepted either way
}

/* ===================== DATABASE ===================== */

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string // disable, require, verify-ca, verify-full
}

/* ===================== REDIS ===================== */

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	UseTLS   bool
}

/* ===================== AUTH ===================== */

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

/* ===================== MONEY ===================== */

// moneyCurrencies is the fixed currency set the core recognizes.
var moneyCurrencies = []string{"USD", "EUR", "GBP"}

// MoneyConfig carries the per-currency caps the engine enforces on every
// mutation (spec §6). Values are kept as decimal strings; cmd/api's
// buildLimits parses them into internal/money.Amount before the engine
// is built.
type MoneyConfig struct {
	MaxTransactionAmount map[string]string
	MaxWalletBalance     map[string]string
}

/* ===================== RATE LIMIT ===================== */

// RateLimitConfig carries the per-scope per-minute thresholds the
// limiter enforces (spec §4.4).
type RateLimitConfig struct {
	WalletPerMinute int
	UserPerMinute   int
	GlobalPerMinute int
}

/* ===================== OUTBOX ===================== */

// OutboxConfig tunes the relay's polling cadence (spec §4.3).
type OutboxConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

/* ===================== KAFKA ===================== */

// KafkaConfig identifies the event log the outbox relay publishes to
// (spec §6).
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

/* ===================== LOAD ===================== */

func Load() (Config, error) {
	var parseErrs []error
	var err error

	c := Config{}

	/* ---- APP ---- */
	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	c.App.Port, err = mustInt("APP_PORT")
	parseErrs = append(parseErrs, err)

	c.App.Maintenance = strings.ToLower(os.Getenv("APP_MAINTENANCE")) == "true"

	/* ---- DB ---- */
	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	c.DB.Port, err = mustInt("DB_PORT")
	parseErrs = append(parseErrs, err)

	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	/* ---- REDIS ---- */
	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	c.Redis.Port, err = mustInt("REDIS_PORT")
	parseErrs = append(parseErrs, err)

	c.Redis.Password = os.Getenv("REDIS_PASSWORD")
	c.Redis.UseTLS = strings.ToLower(os.Getenv("REDIS_TLS")) == "true"

	/* ---- AUTH ---- */
	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))

	c.Auth.AccessTokenTTL, err = mustDuration("JWT_ACCESS_TTL")
	parseErrs = append(parseErrs, err)

	c.Auth.RefreshTokenTTL, err = mustDuration("JWT_REFRESH_TTL")
	parseErrs = append(parseErrs, err)

	/* ---- MONEY ---- */
	c.Money.MaxTransactionAmount = map[string]string{}
	c.Money.MaxWalletBalance = map[string]string{}
	for _, cur := range moneyCurrencies {
		if v := strings.TrimSpace(os.Getenv("MONEY_MAX_TRANSACTION_" + cur)); v != "" {
			c.Money.MaxTransactionAmount[cur] = v
		}
		if v := strings.TrimSpace(os.Getenv("MONEY_MAX_BALANCE_" + cur)); v != "" {
			c.Money.MaxWalletBalance[cur] = v
		}
	}

	/* ---- RATE LIMIT ---- */
	c.RateLimit.WalletPerMinute, _ = optionalInt("RATE_LIMIT_WALLET_PER_MINUTE")
	c.RateLimit.UserPerMinute, _ = optionalInt("RATE_LIMIT_USER_PER_MINUTE")
	c.RateLimit.GlobalPerMinute, _ = optionalInt("RATE_LIMIT_GLOBAL_PER_MINUTE")

	/* ---- OUTBOX ---- */
	c.Outbox.PollInterval, err = mustDuration("OUTBOX_POLL_INTERVAL")
	parseErrs = append(parseErrs, err)
	c.Outbox.BatchSize, _ = optionalInt("OUTBOX_BATCH_SIZE")

	/* ---- KAFKA ---- */
	if v := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	c.Kafka.Topic = strings.TrimSpace(os.Getenv("KAFKA_TOPIC"))

	/* ---- APPLY DEFAULTS (NO SIDE EFFECTS IN VALIDATE) ---- */
	if c.Auth.AccessTokenTTL == 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL == 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.DB.SSLMode == "" && !c.IsProduction() {
		c.DB.SSLMode = "disable"
	}
	if c.Outbox.PollInterval == 0 {
		c.Outbox.PollInterval = 2 * time.Second
	}
	if c.Outbox.BatchSize == 0 {
		c.Outbox.BatchSize = 100
	}

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}

	return c, nil
}

/* ===================== VALIDATION ===================== */

func (c Config) Validate() error {
	var errs []error

	/* ---- APP ---- */
	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	}
	if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be local, dev, staging, or production"))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be valid"))
	}

	/* ---- DB ---- */
	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 {
		errs = append(errs, errors.New("DB_PORT is required"))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.IsProduction() && c.DB.SSLMode == "" {
		errs = append(errs, errors.New("DB_SSLMODE required in production"))
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("invalid DB_SSLMODE"))
	}

	/* ---- REDIS ---- */
	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 {
		errs = append(errs, errors.New("REDIS_PORT is required"))
	}

	/* ---- AUTH ---- */
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE required in production"))
		}
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	/* ---- OUTBOX / KAFKA ---- */
	if c.Outbox.BatchSize <= 0 {
		errs = append(errs, errors.New("OUTBOX_BATCH_SIZE must be positive"))
	}
	if c.Outbox.PollInterval <= 0 {
		errs = append(errs, errors.New("OUTBOX_POLL_INTERVAL must be positive"))
	}
	if len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is required"))
	}
	if c.Kafka.Topic == "" {
		errs = append(errs, errors.New("KAFKA_TOPIC is required"))
	}

	return joinErrors(errs)
}

/* ===================== HELPERS ===================== */

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	return strconv.Atoi(v)
}

func optionalInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func mustDuration(key string) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be valid duration like 15m", key)
	}
	return d, nil
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	var b strings.Builder
	n := 0
	for _, e := range errs {
		if e == nil {
			continue
		}
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
		n++
	}
	if n == 0 {
		return nil
	}
	return errors.New("config errors:\n" + strings.TrimSpace(b.String()))
}
