package config

import (
	"log"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Database struct {
	Driver      string `envconfig:"DRIVER" default:"postgres"`
	Host        string `envconfig:"HOST"`
	Port        string `envconfig:"PORT" default:"5432"`
	User        string `envconfig:"USERNAME"`
	Password    string `envconfig:"PASSWORD"`
	Name        string `envconfig:"NAME"`
	SSLMode     string `envconfig:"SSLMODE" default:"disable"`
	Synchronize bool   `envconfig:"SYNCHRONIZE" default:"false"`
	Trace       bool   `envconfig:"TRACE" default:"false"`
}

type Cache struct {
	Size int           `envconfig:"SIZE" default:"1000"`
	TTL  time.Duration `envconfig:"TTL" default:"5m"`
}

type Kafka struct {
	Brokers    []string `envconfig:"BROKERS"`
	Topic      string   `envconfig:"TOPIC" default:"orders"`
	Group      string   `envconfig:"GROUP" default:"order-service"`
	Workers    int      `envconfig:"WORKERS" default:"4"`
	Partitions int      `envconfig:"PARTITIONS" default:"1"`
}

type Breaker struct {
	Threshold   uint32        `envconfig:"THRESHOLD" default:"5"`
	OpenTimeout time.Duration `envconfig:"OPEN_TIMEOUT" default:"10s"`
	MaxHalfOpen uint32        `envconfig:"MAX_HALF_OPEN" default:"3"`
}

type Retry struct {
	Attempts     int           `envconfig:"ATTEMPTS" default:"5"`
	Base         time.Duration `envconfig:"BASE" default:"100ms"`
	Max          time.Duration `envconfig:"MAX" default:"5s"`
	JitterFactor float64       `envconfig:"JITTER_FACTOR" default:"0.3"`
}

type Config struct {
	HTTPAddr    string   `envconfig:"HTTP_ADDR" default:":3002"`
	LogLevel    string   `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string   `envconfig:"LOG_FORMAT" default:"json"`
	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"*"`
	SQLitePath  string   `envconfig:"SQLITE_PATH" default:"orders.db"`

	DB      Database `envconfig:"DB"`
	Cache   Cache    `envconfig:"CACHE"`
	Kafka   Kafka    `envconfig:"KAFKA"`
	Breaker Breaker  `envconfig:"BREAKER"`
	Retry   Retry    `envconfig:"RETRY"`
}

// Load fatals on error; main has nothing useful to do without a config.
func Load() Config {
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	return cfg
}

// LoadConfig reads ENV_FILE (default .env) if present, then the process
// environment. Variables already set in the environment win.
func LoadConfig() (Config, error) {
	envFile := strings.TrimSpace(os.Getenv("ENV_FILE"))
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Load(envFile)

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	cfg.normalize()

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.DB.Driver = strings.ToLower(strings.TrimSpace(c.DB.Driver))
	c.Kafka.Brokers = trimAll(c.Kafka.Brokers)
	c.CORSOrigins = trimAll(c.CORSOrigins)

	if c.Cache.Size <= 0 {
		log.Printf("CACHE_SIZE is %d, adjusting to 1", c.Cache.Size)
		c.Cache.Size = 1
	}
	if c.Kafka.Workers <= 0 {
		log.Printf("KAFKA_WORKERS is %d, adjusting to 1", c.Kafka.Workers)
		c.Kafka.Workers = 1
	}
	if c.Retry.Attempts < 0 {
		log.Printf("RETRY_ATTEMPTS is %d, adjusting to 0", c.Retry.Attempts)
		c.Retry.Attempts = 0
	}
	if c.Retry.Base <= 0 {
		log.Printf("RETRY_BASE is %v, adjusting to 100ms", c.Retry.Base)
		c.Retry.Base = 100 * time.Millisecond
	}
	if c.Retry.Max < c.Retry.Base {
		log.Printf("RETRY_MAX (%v) < RETRY_BASE (%v), adjusting max to base", c.Retry.Max, c.Retry.Base)
		c.Retry.Max = c.Retry.Base
	}
}

func (c Config) validate() error {
	switch c.DB.Driver {
	case DriverPostgres:
		var missing []string
		req := []struct{ key, val string }{
			{"DB_HOST", c.DB.Host},
			{"DB_USERNAME", c.DB.User},
			{"DB_PASSWORD", c.DB.Password},
			{"DB_NAME", c.DB.Name},
		}
		for _, r := range req {
			if strings.TrimSpace(r.val) == "" {
				missing = append(missing, r.key)
			}
		}
		if len(missing) > 0 {
			return &missingEnvError{Keys: missing}
		}
	case DriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return &missingEnvError{Keys: []string{"SQLITE_PATH"}}
		}
	default:
		return &invalidEnvError{Key: "DB_DRIVER", Value: c.DB.Driver}
	}

	if c.KafkaEnabled() && strings.TrimSpace(c.Kafka.Topic) == "" {
		return &missingEnvError{Keys: []string{"KAFKA_TOPIC"}}
	}
	return nil
}

// KafkaEnabled reports whether order ingestion from Kafka should run.
func (c Config) KafkaEnabled() bool {
	return len(c.Kafka.Brokers) > 0
}

type missingEnvError struct{ Keys []string }

func (e *missingEnvError) Error() string {
	return "missing required envs: " + strings.Join(e.Keys, ", ")
}

type invalidEnvError struct{ Key, Value string }

func (e *invalidEnvError) Error() string {
	return "invalid value for " + e.Key + ": " + e.Value
}

// DSN builds a proper Postgres URL, safely escaping user/pass and query.
func (c Config) DSN() string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.DB.User, c.DB.Password),
		Host:   net.JoinHostPort(c.DB.Host, c.DB.Port),
		Path:   "/" + c.DB.Name,
	}
	q := url.Values{}
	if c.DB.SSLMode != "" {
		q.Set("sslmode", c.DB.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func trimAll(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, p := range in {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
