package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "BAZAAR"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv             = "BAZAAR_APP_ENV"
	EnvPort               = "BAZAAR_APP_PORT"
	EnvDBDSN              = "BAZAAR_DB_DSN"
	EnvDBHost             = "BAZAAR_DB_HOST"
	EnvDBUser             = "BAZAAR_DB_USER"
	EnvDBName             = "BAZAAR_DB_NAME"
	EnvRedisURL           = "BAZAAR_REDIS_URL"
	EnvJWTSecret          = "BAZAAR_JWT_SECRET"
	EnvJWTIssuer          = "BAZAAR_JWT_ISSUER"
	EnvPaymentsSecret     = "BAZAAR_PAYMENTS_WEBHOOK_SECRET"
	EnvCarrierSecret      = "BAZAAR_CARRIER_WEBHOOK_SECRET"
	EnvDefaultTaxRate     = "BAZAAR_DEFAULT_TAX_RATE"
	EnvCategoryTaxRates   = "BAZAAR_CATEGORY_TAX_RATES"
	EnvReturnWindowDays   = "BAZAAR_RETURN_WINDOW_DAYS"
	EnvOutboxSink         = "BAZAAR_OUTBOX_SINK"
	EnvKafkaBrokers       = "BAZAAR_KAFKA_BROKERS"
	EnvShippingFeePaise   = "BAZAAR_SHIPPING_FEE_PAISE"
	EnvFreeShippingAbove  = "BAZAAR_FREE_SHIPPING_ABOVE_PAISE"
	EnvDefaultCommission  = "BAZAAR_DEFAULT_COMMISSION_RATE"
	EnvCategoryCommission = "BAZAAR_CATEGORY_COMMISSION_RATES"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Fulfillment  FulfillmentConfig
	Payments     PaymentsConfig
	Carrier      CarrierConfig
	Square       SquareConfig
	Outbox       OutboxConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Kafka        KafkaConfig
	Cron         CronConfig
	Telemetry    TelemetryConfig
	HTTP         HTTPConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Outbox.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"BAZAAR_APP_ENV" required:"true"`
	Port         string `envconfig:"BAZAAR_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"BAZAAR_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"BAZAAR_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"BAZAAR_LOG_FORMAT" default:"json"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// HTTPConfig covers the API edge: allowed browser origins and request throttling.
type HTTPConfig struct {
	CORSOrigins      []string      `envconfig:"BAZAAR_CORS_ORIGINS" default:"http://localhost:3000"`
	RateLimitWindow  time.Duration `envconfig:"BAZAAR_RATE_LIMIT_WINDOW" default:"1m"`
	ActorRateLimit   int           `envconfig:"BAZAAR_RATE_LIMIT_PER_ACTOR" default:"120"`
	IPRateLimit      int           `envconfig:"BAZAAR_RATE_LIMIT_PER_IP" default:"300"`
	WebhookRateLimit int           `envconfig:"BAZAAR_RATE_LIMIT_WEBHOOKS" default:"600"`
}

type ServiceConfig struct {
	Kind string `envconfig:"BAZAAR_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN string `envconfig:"BAZAAR_DB_DSN"`

	LegacyHost     string `envconfig:"BAZAAR_DB_HOST"`
	LegacyPort     int    `envconfig:"BAZAAR_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"BAZAAR_DB_USER"`
	LegacyPassword string `envconfig:"BAZAAR_DB_PASSWORD"`
	LegacyName     string `envconfig:"BAZAAR_DB_NAME"`
	LegacySSLMode  string `envconfig:"BAZAAR_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BAZAAR_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BAZAAR_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BAZAAR_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BAZAAR_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"BAZAAR_REDIS_URL" required:"true"`
	Address      string        `envconfig:"BAZAAR_REDIS_ADDR"`
	Password     string        `envconfig:"BAZAAR_REDIS_PASSWORD"`
	DB           int           `envconfig:"BAZAAR_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BAZAAR_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BAZAAR_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BAZAAR_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BAZAAR_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BAZAAR_REDIS_WRITE_TIMEOUT" default:"5s"`
	KeyPrefix    string        `envconfig:"BAZAAR_REDIS_KEY_PREFIX" default:"bz"`
}

type JWTConfig struct {
	Secret            string `envconfig:"BAZAAR_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"BAZAAR_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"BAZAAR_JWT_EXPIRATION_MINUTES" default:"60"`
	Audience          string `envconfig:"BAZAAR_JWT_AUDIENCE" default:"bazaar-api"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"BAZAAR_AUTO_MIGRATE" default:"false"`
}

// FulfillmentConfig holds the money rules applied at checkout and the return policy.
// Rates are decimal strings ("0.18"); maps use envconfig's "key:value,key:value" form.
type FulfillmentConfig struct {
	Currency                string            `envconfig:"BAZAAR_CURRENCY" default:"INR"`
	DefaultTaxRate          string            `envconfig:"BAZAAR_DEFAULT_TAX_RATE" default:"0.18"`
	CategoryTaxRates        map[string]string `envconfig:"BAZAAR_CATEGORY_TAX_RATES"`
	DefaultCommissionRate   string            `envconfig:"BAZAAR_DEFAULT_COMMISSION_RATE" default:"0.10"`
	CategoryCommissionRates map[string]string `envconfig:"BAZAAR_CATEGORY_COMMISSION_RATES"`
	ShippingFeePaise        int64             `envconfig:"BAZAAR_SHIPPING_FEE_PAISE" default:"0"`
	FreeShippingAbovePaise  int64             `envconfig:"BAZAAR_FREE_SHIPPING_ABOVE_PAISE" default:"0"`
	ReturnWindowDays        int               `envconfig:"BAZAAR_RETURN_WINDOW_DAYS" default:"7"`
	Timezone                string            `envconfig:"BAZAAR_TIMEZONE" default:"Asia/Kolkata"`
}

// Location resolves the timezone that return windows count calendar days in.
func (f FulfillmentConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(f.Timezone)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return loc, nil
}

// ReturnWindow converts the configured day count to a duration.
func (f FulfillmentConfig) ReturnWindow() time.Duration {
	days := f.ReturnWindowDays
	if days <= 0 {
		days = 7
	}
	return time.Duration(days) * 24 * time.Hour
}

type PaymentsConfig struct {
	WebhookSecret  string        `envconfig:"BAZAAR_PAYMENTS_WEBHOOK_SECRET" required:"true"`
	IdempotencyTTL time.Duration `envconfig:"BAZAAR_PAYMENTS_IDEMPOTENCY_TTL" default:"720h"`
}

type CarrierConfig struct {
	BaseURL       string        `envconfig:"BAZAAR_CARRIER_BASE_URL"`
	APIToken      string        `envconfig:"BAZAAR_CARRIER_API_TOKEN"`
	WebhookSecret string        `envconfig:"BAZAAR_CARRIER_WEBHOOK_SECRET" required:"true"`
	Timeout       time.Duration `envconfig:"BAZAAR_CARRIER_TIMEOUT" default:"10s"`
}

type SquareConfig struct {
	AccessToken string `envconfig:"BAZAAR_SQUARE_ACCESS_TOKEN"`
	Env         string `envconfig:"BAZAAR_SQUARE_ENV" default:"sandbox"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

// Enabled reports whether refunds can be pushed to Square.
func (s SquareConfig) Enabled() bool {
	return strings.TrimSpace(s.AccessToken) != ""
}

const (
	OutboxSinkPubSub = "pubsub"
	OutboxSinkKafka  = "kafka"
)

type OutboxConfig struct {
	Sink           string `envconfig:"BAZAAR_OUTBOX_SINK" default:"pubsub"`
	BatchSize      int    `envconfig:"BAZAAR_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int    `envconfig:"BAZAAR_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int    `envconfig:"BAZAAR_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (o *OutboxConfig) validate() error {
	o.Sink = strings.ToLower(strings.TrimSpace(o.Sink))
	switch o.Sink {
	case OutboxSinkPubSub, OutboxSinkKafka:
		return nil
	default:
		return fmt.Errorf("%s must be %q or %q", EnvOutboxSink, OutboxSinkPubSub, OutboxSinkKafka)
	}
}

type GCPConfig struct {
	ProjectID string `envconfig:"BAZAAR_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	OrdersTopic      string `envconfig:"BAZAAR_PUBSUB_ORDERS_TOPIC" default:"bazaar-order-events"`
	FulfillmentTopic string `envconfig:"BAZAAR_PUBSUB_FULFILLMENT_TOPIC" default:"bazaar-fulfillment-events"`
	ReturnsTopic     string `envconfig:"BAZAAR_PUBSUB_RETURNS_TOPIC" default:"bazaar-return-events"`
	InvoicesTopic    string `envconfig:"BAZAAR_PUBSUB_INVOICES_TOPIC" default:"bazaar-invoice-events"`
}

type KafkaConfig struct {
	Brokers     []string `envconfig:"BAZAAR_KAFKA_BROKERS"`
	TopicPrefix string   `envconfig:"BAZAAR_KAFKA_TOPIC_PREFIX" default:""`
}

// TelemetryConfig configures OTLP trace export. An empty endpoint disables export.
type TelemetryConfig struct {
	OTLPEndpoint   string  `envconfig:"BAZAAR_OTLP_ENDPOINT"`
	Insecure       bool    `envconfig:"BAZAAR_OTLP_INSECURE" default:"true"`
	SampleRatio    float64 `envconfig:"BAZAAR_TRACE_SAMPLE_RATIO" default:"1"`
	ServiceVersion string  `envconfig:"BAZAAR_SERVICE_VERSION" default:"dev"`
	// MetricsAddr is where worker binaries expose /metrics; empty disables it.
	MetricsAddr    string  `envconfig:"BAZAAR_METRICS_ADDR" default:":9090"`
}

type CronConfig struct {
	Interval             time.Duration `envconfig:"BAZAAR_CRON_INTERVAL" default:"5m"`
	JobTimeout           time.Duration `envconfig:"BAZAAR_CRON_JOB_TIMEOUT" default:"2m"`
	ShipmentMaxAttempts  int           `envconfig:"BAZAAR_CRON_SHIPMENT_MAX_ATTEMPTS" default:"5"`
	BatchSize            int           `envconfig:"BAZAAR_CRON_BATCH_SIZE" default:"100"`
	UnpaidOrderTTL       time.Duration `envconfig:"BAZAAR_CRON_UNPAID_ORDER_TTL" default:"24h"`
	OutboxRetentionDays  int           `envconfig:"BAZAAR_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
	LedgerRetentionDays  int           `envconfig:"BAZAAR_CRON_LEDGER_RETENTION_DAYS" default:"90"`
	FailureRetentionDays int           `envconfig:"BAZAAR_CRON_WEBHOOK_FAILURE_RETENTION_DAYS" default:"30"`
	RefundStaleAfter     time.Duration `envconfig:"BAZAAR_CRON_REFUND_STALE_AFTER" default:"15m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	missing := []string{}
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
