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
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Password     PasswordConfig
	Rewards      RewardsConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PINNACLE_APP_ENV" required:"true"`
	Port         string `envconfig:"PINNACLE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"PINNACLE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PINNACLE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"PINNACLE_DB_DSN"`
	Driver string `envconfig:"PINNACLE_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"PINNACLE_DB_HOST"`
	Port     int    `envconfig:"PINNACLE_DB_PORT" default:"5432"`
	User     string `envconfig:"PINNACLE_DB_USER"`
	Password string `envconfig:"PINNACLE_DB_PASSWORD"`
	Name     string `envconfig:"PINNACLE_DB_NAME"`
	SSLMode  string `envconfig:"PINNACLE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PINNACLE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PINNACLE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PINNACLE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PINNACLE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PINNACLE_REDIS_URL"`
	Address      string        `envconfig:"PINNACLE_REDIS_ADDR"`
	Password     string        `envconfig:"PINNACLE_REDIS_PASSWORD"`
	DB           int           `envconfig:"PINNACLE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PINNACLE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PINNACLE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PINNACLE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PINNACLE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PINNACLE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"PINNACLE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"PINNACLE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"PINNACLE_JWT_EXPIRATION_MINUTES" default:"480"`
}

// TokenTTL returns the access token lifetime.
func (j JWTConfig) TokenTTL() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return 0
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"PINNACLE_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"PINNACLE_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"PINNACLE_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"PINNACLE_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"PINNACLE_ARGON_KEY_LEN" default:"32"`
}

// RewardsConfig bounds the mailbox, the history window, and purchase retries.
type RewardsConfig struct {
	MailboxCap           int           `envconfig:"PINNACLE_MAILBOX_CAP" default:"20"`
	HistoryCap           int           `envconfig:"PINNACLE_HISTORY_CAP" default:"500"`
	PurchaseMaxRetries   int           `envconfig:"PINNACLE_PURCHASE_MAX_RETRIES" default:"3"`
	PurchaseRetryBackoff time.Duration `envconfig:"PINNACLE_PURCHASE_RETRY_BACKOFF" default:"50ms"`
	IdempotencyTTL       time.Duration `envconfig:"PINNACLE_IDEMPOTENCY_TTL" default:"24h"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"PINNACLE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"PINNACLE_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range requiredDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
