package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	BackendMemory   = "memory"
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
)

type Config struct {
	HTTPPort            string        `envconfig:"HTTP_PORT" default:"8080"`
	GRPCPort            string        `envconfig:"GRPC_PORT" default:"50060"`
	RequestTimeout      time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	ShutdownTimeout     time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	MaxRequestBodyBytes int64         `envconfig:"MAX_REQUEST_BODY_BYTES" default:"1048576"`

	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding string `envconfig:"LOG_ENCODING" default:"json"`

	JWTSecret          string   `envconfig:"JWT_SECRET" required:"true"`
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`

	CartBackend string        `envconfig:"CART_BACKEND" default:"memory"`
	CartTTL     time.Duration `envconfig:"CART_TTL" default:"2160h"`
	MongoURI    string        `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	MongoDBName string        `envconfig:"MONGO_DB_NAME" default:"cartdb"`

	OrderBackend string `envconfig:"ORDER_BACKEND" default:"memory"`
	DBHost       string `envconfig:"DB_HOST" default:"localhost"`
	DBPort       int    `envconfig:"DB_PORT" default:"5432"`
	DBUser       string `envconfig:"DB_USER" default:"postgres"`
	DBPassword   string `envconfig:"DB_PASSWORD" default:"postgres"`
	DBName       string `envconfig:"DB_NAME" default:"orders"`

	CatalogDBPath string `envconfig:"CATALOG_DB_PATH" default:"catalog.db"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`

	KafkaBrokers []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC" default:"order-events"`

	OrderStatusPolicy string `envconfig:"ORDER_STATUS_POLICY" default:"permissive"`
}

// Load reads an optional .env file and then the process environment.
// The returned warning is non-empty when no .env file was found.
func Load(envFiles ...string) (*Config, string, error) {
	var warning string
	if err := godotenv.Load(envFiles...); err != nil {
		warning = fmt.Sprintf("no .env file loaded: %v", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, warning, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, warning, err
	}
	return &cfg, warning, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must not be empty")
	}
	switch c.CartBackend {
	case BackendMemory, BackendMongo:
	default:
		return fmt.Errorf("CART_BACKEND must be %q or %q, got %q", BackendMemory, BackendMongo, c.CartBackend)
	}
	switch c.OrderBackend {
	case BackendMemory, BackendPostgres:
	default:
		return fmt.Errorf("ORDER_BACKEND must be %q or %q, got %q", BackendMemory, BackendPostgres, c.OrderBackend)
	}
	switch c.OrderStatusPolicy {
	case "permissive", "strict":
	default:
		return fmt.Errorf("ORDER_STATUS_POLICY must be \"permissive\" or \"strict\", got %q", c.OrderStatusPolicy)
	}
	switch c.LogEncoding {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_ENCODING must be \"json\" or \"console\", got %q", c.LogEncoding)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}
	return nil
}
