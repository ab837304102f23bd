package config

import (
	"fmt"
	"net/url"
	"time"

	pkgconfig "github.com/acaidelivery/checkout/pkg/config"
	"github.com/acaidelivery/checkout/pkg/database"
	"github.com/acaidelivery/checkout/pkg/httpclient"
	"github.com/acaidelivery/checkout/pkg/tracing"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Config holds all configuration for the checkout service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort           int      `env:"HTTP_PORT" envDefault:"8080"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// Persistence
	StoreBackend string `env:"STORE_BACKEND" envDefault:"memory"`
	Redis        database.RedisConfig
	Postgres     database.PostgresConfig
	// Slow store operations are logged above this threshold.
	SlowStoreMs int `env:"LOG_SLOW_STORE_MS" envDefault:"200"`

	// Kafka
	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Upstreams
	ViaCEPBaseURL      string `env:"VIACEP_BASE_URL" envDefault:"https://viacep.com.br"`
	NominatimBaseURL   string `env:"NOMINATIM_BASE_URL" envDefault:"https://nominatim.openstreetmap.org"`
	NominatimUserAgent string `env:"NOMINATIM_USER_AGENT" envDefault:"acai-checkout/0.1"`

	// Nominatim's public usage policy allows one request per second.
	NominatimRPS float64 `env:"NOMINATIM_RATE_LIMIT_RPS" envDefault:"1"`

	PixGatewayURL      string `env:"PIX_GATEWAY_URL" envDefault:"http://localhost/api/generate-pix.php"`
	PixProductLabel    string `env:"PIX_PRODUCT_LABEL" envDefault:"Rei do Açai Delivery"`
	UpstreamTimeout    int    `env:"UPSTREAM_TIMEOUT_SECONDS" envDefault:"10"`
	UpstreamMaxRetries int    `env:"UPSTREAM_MAX_RETRIES" envDefault:"0"`

	// Circuit breaker settings for upstream calls
	CBMaxRequests  uint32  `env:"CB_MAX_REQUESTS" envDefault:"1"`
	CBInterval     int     `env:"CB_INTERVAL_SECONDS" envDefault:"60"`
	CBTimeout      int     `env:"CB_TIMEOUT_SECONDS" envDefault:"30"`
	CBFailureRatio float64 `env:"CB_FAILURE_RATIO" envDefault:"0.5"`
	CBMinRequests  uint32  `env:"CB_MIN_REQUESTS" envDefault:"5"`

	// Checkout behavior
	ShippingLatencyMs        int `env:"SHIPPING_LATENCY_MS" envDefault:"2000"`
	PaymentSessionTTL        int `env:"PAYMENT_SESSION_TTL_SECONDS" envDefault:"900"`
	WorkspaceIdleMinutes     int `env:"WORKSPACE_IDLE_MINUTES" envDefault:"30"`
	WorkspaceViewlessSeconds int `env:"WORKSPACE_VIEWLESS_IDLE_SECONDS" envDefault:"120"`
	WorkspaceSweepSeconds    int `env:"WORKSPACE_SWEEP_SECONDS" envDefault:"60"`

	// OpenTelemetry
	Tracing tracing.Config
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load checkout config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	switch c.StoreBackend {
	case StoreMemory, StoreRedis:
	case StorePostgres:
		if c.Postgres.Host == "" {
			return fmt.Errorf("POSTGRES_HOST is required")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be one of memory, redis, postgres, got %q", c.StoreBackend)
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED is set")
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.Tracing.SampleRate)
	}
	if c.UpstreamMaxRetries < 0 {
		return fmt.Errorf("UPSTREAM_MAX_RETRIES must not be negative, got %d", c.UpstreamMaxRetries)
	}
	if c.ShippingLatencyMs < 0 {
		return fmt.Errorf("SHIPPING_LATENCY_MS must not be negative, got %d", c.ShippingLatencyMs)
	}
	if c.PaymentSessionTTL < 1 {
		return fmt.Errorf("PAYMENT_SESSION_TTL_SECONDS must be positive, got %d", c.PaymentSessionTTL)
	}
	for name, rawURL := range map[string]string{
		"VIACEP_BASE_URL":    c.ViaCEPBaseURL,
		"NOMINATIM_BASE_URL": c.NominatimBaseURL,
		"PIX_GATEWAY_URL":    c.PixGatewayURL,
	} {
		if rawURL == "" {
			return fmt.Errorf("%s is required", name)
		}
		if _, err := url.ParseRequestURI(rawURL); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, rawURL, err)
		}
	}
	return nil
}

// HTTPClient returns the client settings shared by every upstream.
func (c *Config) HTTPClient(userAgent string) httpclient.Config {
	hc := httpclient.DefaultConfig()
	hc.Timeout = time.Duration(c.UpstreamTimeout) * time.Second
	hc.MaxRetries = c.UpstreamMaxRetries
	hc.UserAgent = userAgent
	return hc
}

// CircuitBreaker returns the breaker settings for the named upstream.
func (c *Config) CircuitBreaker(name string) httpclient.CircuitBreakerConfig {
	return httpclient.CircuitBreakerConfig{
		Name:         name,
		MaxRequests:  c.CBMaxRequests,
		Interval:     time.Duration(c.CBInterval) * time.Second,
		Timeout:      time.Duration(c.CBTimeout) * time.Second,
		FailureRatio: c.CBFailureRatio,
		MinRequests:  c.CBMinRequests,
	}
}

// ShippingLatency is the simulated quote computation time.
func (c *Config) ShippingLatency() time.Duration {
	return time.Duration(c.ShippingLatencyMs) * time.Millisecond
}

// SessionTTL is the payment window.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.PaymentSessionTTL) * time.Second
}

// WorkspaceIdle is how long an unused device workspace is kept.
func (c *Config) WorkspaceIdle() time.Duration {
	return time.Duration(c.WorkspaceIdleMinutes) * time.Minute
}

// WorkspaceViewlessIdle is how long a workspace without an open checkout is
// kept.
func (c *Config) WorkspaceViewlessIdle() time.Duration {
	return time.Duration(c.WorkspaceViewlessSeconds) * time.Second
}

// WorkspaceSweepInterval is how often idle workspaces are looked for.
func (c *Config) WorkspaceSweepInterval() time.Duration {
	return time.Duration(c.WorkspaceSweepSeconds) * time.Second
}
