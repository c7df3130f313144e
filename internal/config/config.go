package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `env:",prefix=SERVER_"`
	Database  DatabaseConfig  `env:",prefix=DB_"`
	App       AppConfig       `env:",prefix=APP_"`
	Transport TransportConfig `env:",prefix=TRANSPORT_"`
	Send      SendConfig      `env:",prefix=SEND_"`
	Queue     QueueConfig     `env:",prefix=QUEUE_"`
	Redis     RedisConfig     `env:",prefix=REDIS_"`
}

type ServerConfig struct {
	Port         string        `env:"PORT,default=8080"`
	Host         string        `env:"HOST,default=0.0.0.0"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT,default=30s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT,default=10m"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string `env:"HOST,default=localhost"`
	Port     string `env:"PORT,default=5432"`
	User     string `env:"USER,default=postgres"`
	Password string `env:"PASSWORD,default=postgres"`
	Name     string `env:"NAME,default=mailleopard"`
	SSLMode  string `env:"SSL_MODE,default=disable"`
	MaxConns int    `env:"MAX_CONNS,default=25"`
	MinConns int    `env:"MIN_CONNS,default=5"`
}

type AppConfig struct {
	Environment       string   `env:"ENVIRONMENT,default=development"`
	LogLevel          string   `env:"LOG_LEVEL,default=info"`
	LogOutput         string   `env:"LOG_OUTPUT,default=stdout"`
	LogFile           string   `env:"LOG_FILE,default=logs/mailleopard.log"`
	URL               string   `env:"URL,default=http://localhost:8080"`
	BrandName         string   `env:"BRAND_NAME,default=The Company Theatre"`
	PhysicalAddress   string   `env:"PHYSICAL_ADDRESS,default=Toronto, ON, Canada"`
	DefaultFromName   string   `env:"DEFAULT_FROM_NAME,default=The Company Theatre"`
	DefaultFromEmail  string   `env:"DEFAULT_FROM_EMAIL,default=hello@example.com"`
	UnsubscribeSecret string   `env:"UNSUBSCRIBE_SECRET,required"`
	CronSecret        string   `env:"CRON_SECRET"`
	CORSOrigins       []string `env:"CORS_ORIGINS,default=http://localhost:3000"`
}

// TransportConfig selects and configures the outbound ESP.
type TransportConfig struct {
	Provider         string  `env:"PROVIDER,default=log"`
	SendGridAPIKey   string  `env:"SENDGRID_API_KEY"`
	SendGridEndpoint string  `env:"SENDGRID_ENDPOINT"`
	SESRegion        string  `env:"SES_REGION,default=us-east-1"`
	SESAccessKey     string  `env:"SES_ACCESS_KEY"`
	SESSecretKey     string  `env:"SES_SECRET_KEY"`
	SMTPAddr         string  `env:"SMTP_ADDR"`
	SMTPUsername     string  `env:"SMTP_USERNAME"`
	SMTPPassword     string  `env:"SMTP_PASSWORD"`
	MaxPerSecond     float64 `env:"MAX_PER_SECOND,default=0"`
}

type SendConfig struct {
	BatchSize         int           `env:"BATCH_SIZE,default=10"`
	BatchPause        time.Duration `env:"BATCH_PAUSE,default=100ms"`
	SchedulerInterval time.Duration `env:"SCHEDULER_INTERVAL,default=1m"`
}

// QueueConfig: an empty AMQPURL keeps tracking writes in-process.
type QueueConfig struct {
	AMQPURL string `env:"AMQP_URL"`
}

type RedisConfig struct {
	URL       string        `env:"URL"`
	DedupeTTL time.Duration `env:"DEDUPE_TTL,default=24h"`
}

// Load loads configuration from environment variables
func Load(ctx context.Context) (*Config, error) {
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith is Load with an explicit lookuper, used by tests.
func LoadWith(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}
	if cfg.App.IsProduction() && cfg.Transport.Provider == "log" {
		return nil, fmt.Errorf("TRANSPORT_PROVIDER=log is not allowed when APP_ENVIRONMENT=production")
	}
	return &cfg, nil
}

// GetDatabaseURL returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

func (c *AppConfig) IsProduction() bool {
	return c.Environment == "production"
}
