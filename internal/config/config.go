package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/taskguard/taskguard-go/internal/crypto"
)

// DevSecret is the signing secret used when SECRET_KEY is unset. It is
// refused in production.
const DevSecret = "dev-secret-change-in-production"

// MaxTokenTTL bounds JWT_TTL.
const MaxTokenTTL = 30 * time.Minute

// Store drivers.
const (
	StoreMongo  = "mongo"
	StoreMySQL  = "mysql"
	StoreMemory = "memory"
)

type Config struct {
	Port      string `envconfig:"PORT" default:"8080"`
	Env       string `envconfig:"ENV" default:"development"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	StoreDriver string `envconfig:"STORE_DRIVER" default:"mongo"`
	MongoURI    string `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	DBName      string `envconfig:"DB_NAME" default:"taskguard"`
	DatabaseDSN string `envconfig:"DATABASE_DSN" default:"root:password@tcp(127.0.0.1:3306)/taskguard"`
	RedisAddr   string `envconfig:"REDIS_ADDR"`

	SecretKey   string        `envconfig:"SECRET_KEY" default:"dev-secret-change-in-production"`
	TokenTTL    time.Duration `envconfig:"JWT_TTL" default:"30m"`
	JWTIssuer   string        `envconfig:"JWT_ISSUER" default:"taskguard"`
	JWTAudience string        `envconfig:"JWT_AUDIENCE" default:"taskguard-api"`

	HashMemoryKB    uint32 `envconfig:"HASH_MEMORY_KB" default:"65536"`
	HashIterations  uint32 `envconfig:"HASH_ITERATIONS" default:"3"`
	HashParallelism uint8  `envconfig:"HASH_PARALLELISM" default:"2"`

	BootstrapAdminEmail    string `envconfig:"BOOTSTRAP_ADMIN_EMAIL"`
	BootstrapAdminPassword string `envconfig:"BOOTSTRAP_ADMIN_PASSWORD"`

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// Load reads a .env file when present, then the environment, and
// validates the result. The bool reports whether a .env file was read.
func Load() (Config, bool, error) {
	loaded := godotenv.Load() == nil

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, loaded, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, loaded, err
	}
	return cfg, loaded, nil
}

// Validate rejects settings the server must not start with.
func (c Config) Validate() error {
	var errs []error

	if c.IsProduction() {
		if c.SecretKey == DevSecret {
			errs = append(errs, errors.New("SECRET_KEY must be set in production environment"))
		} else if len(c.SecretKey) < 32 {
			errs = append(errs, errors.New("SECRET_KEY must be at least 32 bytes in production environment"))
		}
	}
	if c.SecretKey == "" {
		errs = append(errs, errors.New("SECRET_KEY must not be empty"))
	}
	if c.TokenTTL <= 0 || c.TokenTTL > MaxTokenTTL {
		errs = append(errs, fmt.Errorf("JWT_TTL must be in (0, %s], got %s", MaxTokenTTL, c.TokenTTL))
	}

	switch c.StoreDriver {
	case StoreMongo:
		if c.MongoURI == "" {
			errs = append(errs, errors.New("MONGO_URI is required for the mongo store"))
		}
	case StoreMySQL:
		if c.DatabaseDSN == "" {
			errs = append(errs, errors.New("DATABASE_DSN is required for the mysql store"))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}

	return errors.Join(errs...)
}

// IsProduction reports whether ENV is production.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// HashParams returns the password hashing parameters.
func (c Config) HashParams() crypto.HashParams {
	return crypto.HashParams{
		Memory:      c.HashMemoryKB,
		Iterations:  c.HashIterations,
		Parallelism: c.HashParallelism,
	}
}

// NewLogger builds the process logger from LOG_FORMAT and LOG_LEVEL.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
