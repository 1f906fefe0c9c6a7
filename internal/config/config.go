// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"

	"go.uber.org/fx"
)

// Config carries every tunable the service reads at startup.
type Config struct {
	Environment string
	HTTPAddr    string

	// APIToken guards the event ingress. Empty disables auth, which is
	// only sensible in development.
	APIToken string

	Database Database

	// Scheduler knobs.
	SchedulerInterval time.Duration
	TaskPickingLimit  int

	// Provider call knobs.
	RequestAttempts int
	RequestTimeout  time.Duration

	// Rule engine knobs.
	ViolationGracePeriod  time.Duration
	PlateMatchMaxDistance int

	SGAdmin SGAdmin
	Peers   Peers
	Tracing Tracing
}

// Tracing configures the OTLP trace exporter.
type Tracing struct {
	Enabled       bool
	Endpoint      string
	Protocol      string
	SamplingRatio float64
}

// Database holds connection settings for the relational store.
type Database struct {
	Driver string
	DSN    string
}

// SGAdmin configures the parking-management platform client.
type SGAdmin struct {
	BaseURL        string
	ClientID       string
	ClientSecret   string
	AlertToken     string
	RequestTimeout time.Duration
}

// Peers configures the payment/violation microservice clients.
type Peers struct {
	PaymentBaseURL   string
	ViolationBaseURL string
	RetryWorkers     int
}

// Load reads the environment and applies defaults.
func Load() Config {
	cfg := Config{
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		APIToken:    getenv("API_TOKEN", ""),
		Database: Database{
			Driver: getenv("DB_DRIVER", "postgres"),
			DSN:    getenv("DB_DSN", ""),
		},
		SchedulerInterval:     getduration("SCHEDULER_INTERVAL", 0),
		TaskPickingLimit:      getint("TASK_PICKING_LIMIT", 0),
		RequestAttempts:       getint("REQUEST_ATTEMPTS", 0),
		RequestTimeout:        getduration("REQUEST_TIMEOUT", 0),
		ViolationGracePeriod:  getduration("VIOLATION_GRACE_PERIOD", 0),
		PlateMatchMaxDistance: getint("PLATE_MATCH_MAX_DISTANCE", 0),
		SGAdmin: SGAdmin{
			BaseURL:        getenv("SG_ADMIN_BASE_URL", ""),
			ClientID:       getenv("SG_ADMIN_CLIENT_ID", ""),
			ClientSecret:   getenv("SG_ADMIN_CLIENT_SECRET", ""),
			AlertToken:     getenv("SG_ADMIN_ALERT_TOKEN", ""),
			RequestTimeout: getduration("SG_ADMIN_API_REQUEST_TIMEOUT", 0),
		},
		Peers: Peers{
			PaymentBaseURL:   getenv("PAYMENT_SERVICE_BASE_URL", ""),
			ViolationBaseURL: getenv("VIOLATION_SERVICE_BASE_URL", ""),
			RetryWorkers:     getint("PEER_RETRY_WORKERS", 0),
		},
		Tracing: Tracing{
			Enabled:       getbool("TRACING_ENABLED", false),
			Endpoint:      getenv("OTLP_ENDPOINT", ""),
			Protocol:      getenv("OTLP_PROTOCOL", "grpc"),
			SamplingRatio: getfloat("TRACE_SAMPLING_RATIO", 0.1),
		},
	}
	return cfg.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.SchedulerInterval <= 0 {
		c.SchedulerInterval = time.Minute
	}
	if c.TaskPickingLimit <= 0 {
		c.TaskPickingLimit = 10
	}
	if c.RequestAttempts <= 0 {
		c.RequestAttempts = 3
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.ViolationGracePeriod <= 0 {
		c.ViolationGracePeriod = 20 * time.Minute
	}
	if c.PlateMatchMaxDistance <= 0 {
		c.PlateMatchMaxDistance = 2
	}
	if c.SGAdmin.RequestTimeout <= 0 {
		c.SGAdmin.RequestTimeout = 3 * time.Second
	}
	if c.Peers.RetryWorkers <= 0 {
		c.Peers.RetryWorkers = 4
	}
	return c
}

// IsProduction reports whether the service runs with production settings.
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getbool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getfloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getduration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

// Module exposes Config to the fx graph.
var Module = fx.Module("config",
	fx.Provide(Load),
)
