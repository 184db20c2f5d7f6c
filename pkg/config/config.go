package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Company      CompanyConfig
	Documents    DocumentsConfig
	Renderer     RendererConfig
	Storage      StorageConfig
	Square       SquareConfig
	Mailbox      MailboxConfig
	Mail         MailConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Cron         CronConfig
	Orders       OrdersConfig
	VAT          VATConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if cfg.App.IsProd() && (cfg.FeatureFlags.UseSQLite || strings.EqualFold(cfg.DB.Driver, "sqlite")) {
		return nil, fmt.Errorf("sqlite database is not allowed when %s=%s", EnvAppEnv, AppEnvProd)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"SETTLEMENT_APP_ENV" required:"true"`
	Port         string   `envconfig:"SETTLEMENT_APP_PORT" default:"8080"`
	CORSOrigins  []string `envconfig:"SETTLEMENT_CORS_ORIGINS"`
	LogLevel     string   `envconfig:"SETTLEMENT_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"SETTLEMENT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"SETTLEMENT_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"SETTLEMENT_DB_DSN"`
	Driver string `envconfig:"SETTLEMENT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SETTLEMENT_DB_HOST"`
	LegacyPort     int    `envconfig:"SETTLEMENT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SETTLEMENT_DB_USER"`
	LegacyPassword string `envconfig:"SETTLEMENT_DB_PASSWORD"`
	LegacyName     string `envconfig:"SETTLEMENT_DB_NAME"`
	LegacySSLMode  string `envconfig:"SETTLEMENT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SETTLEMENT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SETTLEMENT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SETTLEMENT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SETTLEMENT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SETTLEMENT_REDIS_URL"`
	Address      string        `envconfig:"SETTLEMENT_REDIS_ADDR"`
	Password     string        `envconfig:"SETTLEMENT_REDIS_PASSWORD"`
	DB           int           `envconfig:"SETTLEMENT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SETTLEMENT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SETTLEMENT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SETTLEMENT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SETTLEMENT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SETTLEMENT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret string `envconfig:"SETTLEMENT_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"SETTLEMENT_JWT_ISSUER" required:"true"`
	// ExpirationMinutes only applies to tokens minted by settlementctl.
	ExpirationMinutes int `envconfig:"SETTLEMENT_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"SETTLEMENT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"SETTLEMENT_AUTO_MIGRATE" default:"false"`
}

// CompanyConfig describes the issuer printed on every document.
type CompanyConfig struct {
	Name            string `envconfig:"SETTLEMENT_COMPANY_NAME" default:""`
	Address         string `envconfig:"SETTLEMENT_COMPANY_ADDRESS"`
	CompanyID       string `envconfig:"SETTLEMENT_COMPANY_ID"`
	VATID           string `envconfig:"SETTLEMENT_COMPANY_VAT_ID"`
	Email           string `envconfig:"SETTLEMENT_COMPANY_EMAIL"`
	IBAN            string `envconfig:"SETTLEMENT_COMPANY_IBAN"`
	BankAccount     string `envconfig:"SETTLEMENT_COMPANY_BANK_ACCOUNT"`
	DomesticCountry string `envconfig:"SETTLEMENT_COMPANY_COUNTRY" default:"CZ"`
}

type DocumentsConfig struct {
	ProformaDueDays int    `envconfig:"SETTLEMENT_PROFORMA_DUE_DAYS" default:"7"`
	InvoiceDueDays  int    `envconfig:"SETTLEMENT_INVOICE_DUE_DAYS" default:"14"`
	LocalDir        string `envconfig:"SETTLEMENT_DOCUMENTS_LOCAL_DIR" default:"var/documents"`
	PublicBaseURL   string `envconfig:"SETTLEMENT_PUBLIC_BASE_URL" default:"http://localhost:8080"`
	TimeZone        string `envconfig:"SETTLEMENT_DOCUMENTS_TIMEZONE" default:"Europe/Prague"`
}

type RendererConfig struct {
	ChromiumPath string        `envconfig:"SETTLEMENT_PDF_CHROMIUM_PATH"`
	Timeout      time.Duration `envconfig:"SETTLEMENT_PDF_TIMEOUT" default:"20s"`
}

type StorageConfig struct {
	Endpoint  string `envconfig:"SETTLEMENT_STORAGE_ENDPOINT"`
	AccessKey string `envconfig:"SETTLEMENT_STORAGE_ACCESS_KEY"`
	SecretKey string `envconfig:"SETTLEMENT_STORAGE_SECRET_KEY"`
	Bucket    string `envconfig:"SETTLEMENT_STORAGE_BUCKET" default:"documents"`
	UseSSL    bool   `envconfig:"SETTLEMENT_STORAGE_USE_SSL" default:"true"`
	// PublicURL is the base the object key is appended to when building pdf_url.
	PublicURL string `envconfig:"SETTLEMENT_STORAGE_PUBLIC_URL"`
}

func (s StorageConfig) Enabled() bool {
	return strings.TrimSpace(s.Endpoint) != "" && strings.TrimSpace(s.AccessKey) != ""
}

type SquareConfig struct {
	AccessToken     string        `envconfig:"SETTLEMENT_SQUARE_ACCESS_TOKEN"`
	WebhookSecret   string        `envconfig:"SETTLEMENT_SQUARE_WEBHOOK_SECRET"`
	WebhookURL      string        `envconfig:"SETTLEMENT_SQUARE_WEBHOOK_URL"`
	Env             string        `envconfig:"SETTLEMENT_SQUARE_ENV" default:"sandbox"`
	LocationID      string        `envconfig:"SETTLEMENT_SQUARE_LOCATION_ID"`
	CheckoutURL     string        `envconfig:"SETTLEMENT_SQUARE_CHECKOUT_URL" default:"http://localhost:3000/checkout/card"`
	VerifyTimeout   time.Duration `envconfig:"SETTLEMENT_SQUARE_VERIFY_TIMEOUT" default:"5s"`
	IdempotencyTTL  time.Duration `envconfig:"SETTLEMENT_SQUARE_IDEMPOTENCY_TTL" default:"72h"`
	IdempotencyKind string        `envconfig:"SETTLEMENT_SQUARE_IDEMPOTENCY_SCOPE" default:"square-webhook"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

func (s SquareConfig) Enabled() bool {
	return strings.TrimSpace(s.AccessToken) != ""
}

type MailboxConfig struct {
	Host           string        `envconfig:"SETTLEMENT_MAILBOX_HOST"`
	Port           int           `envconfig:"SETTLEMENT_MAILBOX_PORT" default:"993"`
	Username       string        `envconfig:"SETTLEMENT_MAILBOX_USERNAME"`
	Password       string        `envconfig:"SETTLEMENT_MAILBOX_PASSWORD"`
	Folder         string        `envconfig:"SETTLEMENT_MAILBOX_FOLDER" default:"INBOX"`
	SubjectPattern string        `envconfig:"SETTLEMENT_MAILBOX_SUBJECT" default:"Příjem na kontě"`
	PatternsFile   string        `envconfig:"SETTLEMENT_MAILBOX_PATTERNS_FILE"`
	Timeout        time.Duration `envconfig:"SETTLEMENT_MAILBOX_TIMEOUT" default:"30s"`
}

// Configured reports whether credentials are present; the bank job skips otherwise.
func (m MailboxConfig) Configured() bool {
	return strings.TrimSpace(m.Host) != "" &&
		strings.TrimSpace(m.Username) != "" &&
		m.Password != ""
}

type MailConfig struct {
	SendgridAPIKey string `envconfig:"SETTLEMENT_SENDGRID_API_KEY"`
	FromEmail      string `envconfig:"SETTLEMENT_MAIL_FROM" default:"billing@localhost"`
	FromName       string `envconfig:"SETTLEMENT_MAIL_FROM_NAME" default:"Billing"`
	OperatorEmail  string `envconfig:"SETTLEMENT_OPERATOR_EMAIL"`
	Workers        int    `envconfig:"SETTLEMENT_MAIL_WORKERS" default:"2"`
	QueueSize      int    `envconfig:"SETTLEMENT_MAIL_QUEUE_SIZE" default:"100"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"SETTLEMENT_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"SETTLEMENT_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	OrdersSubscription string `envconfig:"SETTLEMENT_PUBSUB_ORDERS_SUBSCRIPTION"`
	AlertsTopic        string `envconfig:"SETTLEMENT_PUBSUB_ALERTS_TOPIC"`
}

type CronConfig struct {
	Interval        time.Duration `envconfig:"SETTLEMENT_CRON_INTERVAL" default:"15m"`
	LockTTL         time.Duration `envconfig:"SETTLEMENT_CRON_LOCK_TTL" default:"14m"`
	RecoveryMinAge  time.Duration `envconfig:"SETTLEMENT_CRON_RECOVERY_MIN_AGE" default:"10m"`
	RecoveryBatch   int           `envconfig:"SETTLEMENT_CRON_RECOVERY_BATCH" default:"50"`
	MetricsDisabled bool          `envconfig:"SETTLEMENT_CRON_METRICS_DISABLED" default:"false"`
}

type OrdersConfig struct {
	BaseURL string        `envconfig:"SETTLEMENT_ORDERS_BASE_URL" default:"http://localhost:9000"`
	APIKey  string        `envconfig:"SETTLEMENT_ORDERS_API_KEY"`
	Timeout time.Duration `envconfig:"SETTLEMENT_ORDERS_TIMEOUT" default:"10s"`
}

type VATConfig struct {
	BaseURL string        `envconfig:"SETTLEMENT_VAT_BASE_URL" default:"https://ec.europa.eu/taxation_customs/vies/rest-api"`
	Timeout time.Duration `envconfig:"SETTLEMENT_VAT_TIMEOUT" default:"8s"`
	Enabled bool          `envconfig:"SETTLEMENT_VAT_ENABLED" default:"true"`
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
