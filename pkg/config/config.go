package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

const (
	EnvPrefix = "DSTARS"

	AppEnvDev  = "dev"
	AppEnvProd = "production"
)

// Env var names shared with tests and deploy tooling.
const (
	EnvAppEnv    = "DSTARS_APP_ENV"
	EnvPort      = "DSTARS_APP_PORT"
	EnvDBDSN     = "DSTARS_DB_DSN"
	EnvDBHost    = "DSTARS_DB_HOST"
	EnvDBUser    = "DSTARS_DB_USER"
	EnvDBName    = "DSTARS_DB_NAME"
	EnvRedisURL  = "DSTARS_REDIS_URL"
	EnvJWTSecret = "DSTARS_JWT_SECRET"
	EnvJWTIssuer = "DSTARS_JWT_ISSUER"
	EnvJWTExp    = "DSTARS_JWT_EXPIRATION_MINUTES"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Verification  VerificationConfig
	Billing       BillingConfig
	Card          CardConfig
	Mail          MailConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Billing.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"DSTARS_APP_ENV" required:"true"`
	Port         string `envconfig:"DSTARS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"DSTARS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"DSTARS_LOG_WARN_STACK" default:"false"`
	PublicURL    string `envconfig:"DSTARS_APP_PUBLIC_URL" default:"http://localhost:8080"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"DSTARS_DB_DSN"`
	Driver string `envconfig:"DSTARS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"DSTARS_DB_HOST"`
	LegacyPort     int    `envconfig:"DSTARS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"DSTARS_DB_USER"`
	LegacyPassword string `envconfig:"DSTARS_DB_PASSWORD"`
	LegacyName     string `envconfig:"DSTARS_DB_NAME"`
	LegacySSLMode  string `envconfig:"DSTARS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"DSTARS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DSTARS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DSTARS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"DSTARS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"DSTARS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"DSTARS_REDIS_ADDR"`
	Password     string        `envconfig:"DSTARS_REDIS_PASSWORD"`
	DB           int           `envconfig:"DSTARS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"DSTARS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"DSTARS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DSTARS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"DSTARS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"DSTARS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"DSTARS_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"DSTARS_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"DSTARS_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"DSTARS_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"DSTARS_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"DSTARS_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"DSTARS_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"DSTARS_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"DSTARS_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"DSTARS_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"DSTARS_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"DSTARS_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"DSTARS_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"DSTARS_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"DSTARS_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"DSTARS_AUTO_MIGRATE" default:"false"`
}

// VerificationConfig tunes email verification codes and download tokens.
type VerificationConfig struct {
	CodeTTL        time.Duration `envconfig:"DSTARS_VERIFICATION_CODE_TTL" default:"10m"`
	ResendCooldown time.Duration `envconfig:"DSTARS_VERIFICATION_RESEND_COOLDOWN" default:"60s"`
	MaxAttempts    int           `envconfig:"DSTARS_VERIFICATION_MAX_ATTEMPTS" default:"5"`
	TokenTTL       time.Duration `envconfig:"DSTARS_DOWNLOAD_TOKEN_TTL" default:"24h"`
}

// BillingConfig carries the registration fee formula and external id prefixes.
type BillingConfig struct {
	FeeRate          string `envconfig:"DSTARS_BILLING_FEE_RATE" default:"0.06"`
	FixedFee         string `envconfig:"DSTARS_BILLING_FIXED_FEE" default:"0"`
	MembershipPrefix string `envconfig:"DSTARS_BILLING_MEMBERSHIP_PREFIX" default:"DSTARS"`
	InvoicePrefix    string `envconfig:"DSTARS_BILLING_INVOICE_PREFIX" default:"DSTARS-INV"`
	PaymentPrefix    string `envconfig:"DSTARS_BILLING_PAYMENT_PREFIX" default:"DSTARS-PAY"`
}

// FeeRateDecimal parses the configured fee rate.
func (b BillingConfig) FeeRateDecimal() decimal.Decimal {
	d, err := decimal.NewFromString(b.FeeRate)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// FixedFeeDecimal parses the configured fixed fee.
func (b BillingConfig) FixedFeeDecimal() decimal.Decimal {
	d, err := decimal.NewFromString(b.FixedFee)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (b BillingConfig) validate() error {
	if _, err := decimal.NewFromString(b.FeeRate); err != nil {
		return fmt.Errorf("invalid billing fee rate %q: %w", b.FeeRate, err)
	}
	if _, err := decimal.NewFromString(b.FixedFee); err != nil {
		return fmt.Errorf("invalid billing fixed fee %q: %w", b.FixedFee, err)
	}
	return nil
}

// CardConfig controls virtual card rendering and the signed validation URL.
type CardConfig struct {
	StorageDir    string        `envconfig:"DSTARS_CARD_STORAGE_DIR" default:"storage"`
	SigningSecret string        `envconfig:"DSTARS_CARD_SIGNING_SECRET" required:"true"`
	SignedURLTTL  time.Duration `envconfig:"DSTARS_CARD_SIGNED_URL_TTL" default:"8760h"`
}

type MailConfig struct {
	SendgridAPIKey string `envconfig:"DSTARS_SENDGRID_API_KEY"`
	FromEmail      string `envconfig:"DSTARS_MAIL_FROM_EMAIL" default:"no-reply@dstarsfitness.com"`
	FromName       string `envconfig:"DSTARS_MAIL_FROM_NAME" default:"DStars Fitness"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
