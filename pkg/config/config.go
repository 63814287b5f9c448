package config

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Eventing      EventingConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	BigQuery      BigQueryConfig
	Outbox        OutboxConfig
	Razorpay      RazorpayConfig
	Stripe        StripeConfig
	Sendgrid      SendgridConfig
	Cron          CronConfig
	Marketplace   MarketplaceConfig
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads the environment, derives the database DSN when only the split
// host/user/name variables are set, then checks value ranges.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if !cfg.FeatureFlags.UseSQLite && cfg.DB.DSN == "" {
		dsn, err := cfg.DB.legacyDSN()
		if err != nil {
			return nil, err
		}
		cfg.DB.DSN = dsn
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges envconfig cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if access := time.Duration(c.JWT.ExpirationMinutes) * time.Minute; c.JWT.RefreshTokenTTL() <= access {
		return fmt.Errorf("invalid config: %s must exceed the access token lifetime", EnvRefreshTokenTTLMinutes)
	}
	return nil
}

type AppConfig struct {
	Env            string   `envconfig:"COMPONENTRY_APP_ENV" required:"true"`
	Port           string   `envconfig:"COMPONENTRY_APP_PORT" required:"true"`
	LogLevel       string   `envconfig:"COMPONENTRY_LOG_LEVEL" default:"info"`
	LogWarnStack   bool     `envconfig:"COMPONENTRY_LOG_WARN_STACK" default:"false"`
	AllowedOrigins []string `envconfig:"COMPONENTRY_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"COMPONENTRY_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"COMPONENTRY_DB_DSN"`
	Driver string `envconfig:"COMPONENTRY_DB_DRIVER" default:"postgres" validate:"oneof=postgres sqlite"`

	SQLitePath string `envconfig:"COMPONENTRY_SQLITE_PATH" default:"componentry.db"`

	LegacyHost     string `envconfig:"COMPONENTRY_DB_HOST"`
	LegacyPort     int    `envconfig:"COMPONENTRY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"COMPONENTRY_DB_USER"`
	LegacyPassword string `envconfig:"COMPONENTRY_DB_PASSWORD"`
	LegacyName     string `envconfig:"COMPONENTRY_DB_NAME"`
	LegacySSLMode  string `envconfig:"COMPONENTRY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"COMPONENTRY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"COMPONENTRY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"COMPONENTRY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"COMPONENTRY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"COMPONENTRY_REDIS_URL" required:"true"`
	Address      string        `envconfig:"COMPONENTRY_REDIS_ADDR"`
	Password     string        `envconfig:"COMPONENTRY_REDIS_PASSWORD"`
	DB           int           `envconfig:"COMPONENTRY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"COMPONENTRY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"COMPONENTRY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"COMPONENTRY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"COMPONENTRY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"COMPONENTRY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"COMPONENTRY_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"COMPONENTRY_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"COMPONENTRY_JWT_EXPIRATION_MINUTES" required:"true" validate:"gt=0"`
	RefreshTokenTTLMinutes int    `envconfig:"COMPONENTRY_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"COMPONENTRY_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"COMPONENTRY_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"COMPONENTRY_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"COMPONENTRY_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"COMPONENTRY_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"COMPONENTRY_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"COMPONENTRY_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"COMPONENTRY_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"COMPONENTRY_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"COMPONENTRY_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"COMPONENTRY_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"COMPONENTRY_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"COMPONENTRY_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"COMPONENTRY_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
	WebhookDedupTTL      time.Duration `envconfig:"COMPONENTRY_WEBHOOK_DEDUP_TTL" default:"168h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"COMPONENTRY_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"COMPONENTRY_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"COMPONENTRY_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DomainTopic              string `envconfig:"COMPONENTRY_PUBSUB_DOMAIN_TOPIC" default:"componentry-domain-events"`
	NotificationSubscription string `envconfig:"COMPONENTRY_PUBSUB_NOTIFICATION_SUBSCRIPTION" default:"componentry-notifications"`
	AnalyticsSubscription    string `envconfig:"COMPONENTRY_PUBSUB_ANALYTICS_SUBSCRIPTION" default:"componentry-analytics"`
}

type BigQueryConfig struct {
	Dataset       string `envconfig:"COMPONENTRY_BIGQUERY_DATASET" default:"componentry"`
	RevenueTable  string `envconfig:"COMPONENTRY_BIGQUERY_REVENUE_TABLE" default:"revenue_events"`
	InsertRetries int    `envconfig:"COMPONENTRY_BIGQUERY_INSERT_RETRIES" default:"3"`
	CreateTables  bool   `envconfig:"COMPONENTRY_BIGQUERY_CREATE_TABLES" default:"false"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"COMPONENTRY_OUTBOX_PUBLISH_BATCH_SIZE" default:"50" validate:"gt=0,lte=500"`
	PollIntervalMS int           `envconfig:"COMPONENTRY_OUTBOX_PUBLISH_POLL_MS" default:"500" validate:"gt=0"`
	MaxAttempts    int           `envconfig:"COMPONENTRY_OUTBOX_MAX_ATTEMPTS" default:"10" validate:"gt=0"`
	Retention      time.Duration `envconfig:"COMPONENTRY_OUTBOX_RETENTION" default:"720h"`
}

type RazorpayConfig struct {
	KeyID         string `envconfig:"COMPONENTRY_RAZORPAY_KEY_ID"`
	KeySecret     string `envconfig:"COMPONENTRY_RAZORPAY_KEY_SECRET"`
	WebhookSecret string `envconfig:"COMPONENTRY_RAZORPAY_WEBHOOK_SECRET"`
	Currency      string `envconfig:"COMPONENTRY_RAZORPAY_CURRENCY" default:"INR"`
}

// Enabled reports whether order creation and verification can run.
func (r RazorpayConfig) Enabled() bool {
	return strings.TrimSpace(r.KeyID) != "" && strings.TrimSpace(r.KeySecret) != ""
}

type StripeConfig struct {
	APIKey        string `envconfig:"COMPONENTRY_STRIPE_API_KEY"`
	WebhookSecret string `envconfig:"COMPONENTRY_STRIPE_WEBHOOK_SECRET"`
	Env           string `envconfig:"COMPONENTRY_STRIPE_ENV" default:"test" validate:"omitempty,oneof=test live"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type SendgridConfig struct {
	APIKey      string `envconfig:"COMPONENTRY_SENDGRID_API_KEY"`
	DefaultFrom string `envconfig:"COMPONENTRY_SENDGRID_FROM_EMAIL" default:"billing@componentry.dev"`
	FromName    string `envconfig:"COMPONENTRY_SENDGRID_FROM_NAME" default:"Componentry"`
}

type CronConfig struct {
	LockTTL              time.Duration `envconfig:"COMPONENTRY_CRON_LOCK_TTL" default:"30m"`
	Schedule             string        `envconfig:"COMPONENTRY_CRON_SCHEDULE" default:"10 0 * * *"`
	ReminderDaysBefore   int           `envconfig:"COMPONENTRY_CRON_REMINDER_DAYS_BEFORE" default:"3" validate:"gte=1,lte=30"`
	ReminderDedupTTL     time.Duration `envconfig:"COMPONENTRY_CRON_REMINDER_DEDUP_TTL" default:"240h"`
	SubscriptionBatchCap int           `envconfig:"COMPONENTRY_CRON_SUBSCRIPTION_BATCH" default:"500"`
}

type MarketplaceConfig struct {
	ListingCacheTTL   time.Duration `envconfig:"COMPONENTRY_MARKETPLACE_LISTING_CACHE_TTL" default:"1m"`
	DeveloperSharePct int           `envconfig:"COMPONENTRY_MARKETPLACE_DEVELOPER_SHARE_PCT" default:"70" validate:"gte=0,lte=100"`
}

// legacyDSN assembles a postgres URL from the split COMPONENTRY_DB_* vars.
func (db DBConfig) legacyDSN() (string, error) {
	var missing []string
	for env, value := range map[string]string{EnvDBHost: db.LegacyHost, EnvDBUser: db.LegacyUser, EnvDBName: db.LegacyName} {
		if value == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return "", fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	user := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		user = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}
	dsn := url.URL{
		Scheme: "postgres",
		User:   user,
		Host:   net.JoinHostPort(db.LegacyHost, strconv.Itoa(db.LegacyPort)),
		Path:   db.LegacyName,
	}
	if db.LegacySSLMode != "" {
		dsn.RawQuery = url.Values{"sslmode": {db.LegacySSLMode}}.Encode()
	}
	return dsn.String(), nil
}
