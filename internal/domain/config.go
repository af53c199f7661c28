package domain

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the complete Mizan configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Engine settings
	Analytics AnalyticsConfig `json:"analytics"`
	Dispatch  DispatchConfig  `json:"dispatch"`
	Schedule  ScheduleConfig  `json:"schedule"`

	// Schools served by this process (worker subscriptions, scheduled jobs)
	SchoolIDs []string `json:"schoolIds"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// AnalyticsConfig holds the tunable thresholds of the scoring engine.
type AnalyticsConfig struct {
	WindowDays int `json:"windowDays"`

	// MasteryThreshold is the minimum average grade for a completed unit to
	// count as mastered.
	MasteryThreshold float64 `json:"masteryThreshold"`

	// NegativeProportion is the share of negative behavior records above which
	// a weakness is reported.
	NegativeProportion float64 `json:"negativeProportion"`

	// Trend thresholds per series. Attendance percentages move in larger
	// steps than grades, so its threshold is coarser.
	GradeTrendThreshold      float64 `json:"gradeTrendThreshold"`
	AttendanceTrendThreshold float64 `json:"attendanceTrendThreshold"`
	BehaviorTrendThreshold   float64 `json:"behaviorTrendThreshold"`

	// LookaheadPeriods is how many periods ahead the risk prediction projects.
	LookaheadPeriods int `json:"lookaheadPeriods"`

	// OverduePaymentCritical is the overdue count above which the system
	// alert escalates to critical.
	OverduePaymentCritical int `json:"overduePaymentCritical"`
}

// DispatchConfig controls notification dispatch towards the delivery channel.
type DispatchConfig struct {
	// Notifier selects the delivery adapter: "log" or "bus".
	Notifier    string        `json:"notifier"`
	Workers     int           `json:"workers"`
	RatePerSec  float64       `json:"ratePerSec"`
	Burst       int           `json:"burst"`
	DedupWindow time.Duration `json:"dedupWindow"`
}

// ScheduleConfig controls the periodic jobs.
type ScheduleConfig struct {
	Enabled           bool          `json:"enabled"`
	PaymentScanEvery  time.Duration `json:"paymentScanEvery"`
	MonthlyCheckEvery time.Duration `json:"monthlyCheckEvery"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite + channels + in-memory cache.
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + NATS + Redis.
	TierPro Tier = "pro"
)

// DefaultAnalyticsConfig returns the engine thresholds used in production.
func DefaultAnalyticsConfig() AnalyticsConfig {
	return AnalyticsConfig{
		WindowDays:               30,
		MasteryThreshold:         90,
		NegativeProportion:       0.3,
		GradeTrendThreshold:      1.0,
		AttendanceTrendThreshold: 5.0,
		BehaviorTrendThreshold:   1.0,
		LookaheadPeriods:         1,
		OverduePaymentCritical:   10,
	}
}

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./mizan.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
			InsightTTL:   10 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Analytics: DefaultAnalyticsConfig(),
		Dispatch: DispatchConfig{
			Notifier:    "log",
			Workers:     4,
			RatePerSec:  5,
			Burst:       1,
			DedupWindow: 24 * time.Hour,
		},
		Schedule: ScheduleConfig{
			Enabled:           true,
			PaymentScanEvery:  24 * time.Hour,
			MonthlyCheckEvery: time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "mizan",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "mizan",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		InsightTTL:     10 * time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
		QueueGroup:        "mizan-worker",
	}
	cfg.Dispatch.Notifier = "bus"
	cfg.Tracing.Enabled = true
	return cfg
}

// LoadConfig loads a .env file when present and applies MIZAN_* overrides on
// top of the tier defaults.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded, using process environment")
	}

	cfg := DefaultConfig()
	if os.Getenv("MIZAN_TIER") == string(TierPro) {
		cfg = ProConfig()
	}

	applyEnv(cfg)
	return cfg
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("MIZAN_HOST"); v != "" {
		cfg.Server.Host = v
	}
	cfg.Server.Port = envInt("MIZAN_PORT", cfg.Server.Port)

	if v := os.Getenv("MIZAN_SQLITE_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("MIZAN_POSTGRES_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	cfg.Repository.PostgresPort = envInt("MIZAN_POSTGRES_PORT", cfg.Repository.PostgresPort)
	if v := os.Getenv("MIZAN_POSTGRES_USER"); v != "" {
		cfg.Repository.PostgresUser = v
	}
	if v := os.Getenv("MIZAN_POSTGRES_PASSWORD"); v != "" {
		cfg.Repository.PostgresPassword = v
	}
	if v := os.Getenv("MIZAN_POSTGRES_DB"); v != "" {
		cfg.Repository.PostgresDB = v
	}
	if v := os.Getenv("MIZAN_POSTGRES_SSLMODE"); v != "" {
		cfg.Repository.PostgresSSLMode = v
	}

	if v := os.Getenv("MIZAN_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("MIZAN_REDIS_PASSWORD"); v != "" {
		cfg.Cache.RedisPassword = v
	}
	if v := os.Getenv("MIZAN_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv("MIZAN_NATS_TOKEN"); v != "" {
		cfg.EventBus.NATSToken = v
	}

	cfg.Analytics.WindowDays = envInt("MIZAN_WINDOW_DAYS", cfg.Analytics.WindowDays)
	if v := os.Getenv("MIZAN_NOTIFIER"); v != "" {
		cfg.Dispatch.Notifier = v
	}
	cfg.Dispatch.Workers = envInt("MIZAN_DISPATCH_WORKERS", cfg.Dispatch.Workers)
	if v := os.Getenv("MIZAN_DISPATCH_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.Dispatch.RatePerSec = f
		}
	}

	if v := os.Getenv("MIZAN_SCHOOLS"); v != "" {
		cfg.SchoolIDs = nil
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				cfg.SchoolIDs = append(cfg.SchoolIDs, id)
			}
		}
	}
	if os.Getenv("MIZAN_SCHEDULER") == "false" {
		cfg.Schedule.Enabled = false
	}

	if v := os.Getenv("MIZAN_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if os.Getenv("MIZAN_DEBUG") == "true" {
		cfg.Logging.Level = "debug"
	}
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("ignoring invalid integer env var", "key", key, "value", v)
		return fallback
	}
	return n
}
