package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/steiner385/MachShop-sub017/domain/entity"
)

// Config is the full configuration for the reconciliation service.
type Config struct {
	Service    ServiceConfig    `mapstructure:"service"`
	Server     ServerConfig     `mapstructure:"server"`
	Detection  DetectionConfig  `mapstructure:"detection"`
	Reporting  ReportingConfig  `mapstructure:"reporting"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Providers  ProvidersConfig  `mapstructure:"providers"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServiceConfig contains service identity settings.
type ServiceConfig struct {
	Name          string `mapstructure:"name"`
	Environment   string `mapstructure:"environment"`
	IntegrationID string `mapstructure:"integration_id"`
}

// ServerConfig contains HTTP server settings for the thin JSON edge.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DetectionConfig controls field-comparison semantics and severity
// classification. The tolerance values are deployment policy, not law; the
// defaults match observed integration behavior.
type DetectionConfig struct {
	// NumericTolerance is the relative difference below which two numbers are
	// considered equal, e.g. 0.0001 for 0.01%.
	NumericTolerance float64 `mapstructure:"numeric_tolerance"`

	// TimestampTolerance is the absolute skew below which two timestamps are
	// considered equal.
	TimestampTolerance time.Duration `mapstructure:"timestamp_tolerance"`

	// CriticalFields maps entity types to fields whose discrepancies are
	// escalated above the LOW default.
	CriticalFields map[string][]string `mapstructure:"critical_fields"`

	// MasterDataFields lists fields owned by the ERP; discrepancies there are
	// suggested for automatic sync correction.
	MasterDataFields []string `mapstructure:"master_data_fields"`

	// AlternateKeys maps entity types to the business key used when primary
	// ids do not line up across systems.
	AlternateKeys map[string]string `mapstructure:"alternate_keys"`
}

// CriticalFieldsFor returns the critical-field set for an entity type.
func (d DetectionConfig) CriticalFieldsFor(entityType entity.EntityType) []string {
	return d.CriticalFields[string(entityType)]
}

// AlternateKeyFor returns the fallback business key for an entity type, or "".
func (d DetectionConfig) AlternateKeyFor(entityType entity.EntityType) string {
	return d.AlternateKeys[string(entityType)]
}

// ReportingConfig controls report scoring and history queries.
type ReportingConfig struct {
	// Severity penalty weights for the data quality score. Only the ordering
	// (critical > high > medium >= low) is contractual.
	PenaltyCritical float64 `mapstructure:"penalty_critical"`
	PenaltyHigh     float64 `mapstructure:"penalty_high"`
	PenaltyMedium   float64 `mapstructure:"penalty_medium"`
	PenaltyLow      float64 `mapstructure:"penalty_low"`

	// MaxTrendLookback caps GetTrends windows regardless of what is requested.
	MaxTrendLookback time.Duration `mapstructure:"max_trend_lookback"`
}

// SchedulerConfig controls the sync job queue and retry behavior.
type SchedulerConfig struct {
	DefaultMaxRetries int           `mapstructure:"default_max_retries"`
	RetryBackoffBase  time.Duration `mapstructure:"retry_backoff_base"`
	RetryBackoffMax   time.Duration `mapstructure:"retry_backoff_max"`
	QueuePreviewSize  int           `mapstructure:"queue_preview_size"`
	JobTimeout        time.Duration `mapstructure:"job_timeout"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
}

// ProvidersConfig configures the MES/ERP record provider clients.
type ProvidersConfig struct {
	MES ProviderConfig `mapstructure:"mes"`
	ERP ProviderConfig `mapstructure:"erp"`
}

// ProviderConfig configures one record provider endpoint.
type ProviderConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RatePerSecond  float64       `mapstructure:"rate_per_second"`
	Burst          int           `mapstructure:"burst"`
	BreakerEnabled bool          `mapstructure:"breaker_enabled"`
}

// StorageConfig selects and configures persistence backends.
type StorageConfig struct {
	// Backend is "memory" or "postgres".
	Backend  string         `mapstructure:"backend"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig configures the relational store.
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	BreakerEnabled  bool          `mapstructure:"breaker_enabled"`
}

// RedisConfig configures the report/queue-status cache.
type RedisConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	TTL         time.Duration `mapstructure:"ttl"`
	Format      string        `mapstructure:"format"`      // json, msgpack
	Compression string        `mapstructure:"compression"` // none, lz4
}

// NotifyConfig configures the audit/notification sink.
type NotifyConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig reads configuration from the given directory and the environment.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(path)
	v.SetEnvPrefix("RECONCILER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(err, "failed to read config file")
		}
		// Defaults plus environment are a complete configuration.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "erp-reconciler")
	v.SetDefault("service.environment", "development")
	v.SetDefault("service.integration_id", "mes-erp-default")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8085)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)

	v.SetDefault("detection.numeric_tolerance", 0.0001)
	v.SetDefault("detection.timestamp_tolerance", time.Second)
	v.SetDefault("detection.critical_fields", map[string][]string{
		"supplier":       {"status", "paymentTerms"},
		"purchase_order": {"quantity", "status", "unitPrice"},
		"work_order":     {"quantityOrdered", "status", "priority"},
		"inventory":      {"quantityOnHand", "unitCost"},
	})
	v.SetDefault("detection.master_data_fields", []string{
		"name", "description", "supplierName", "partNumber",
	})
	v.SetDefault("detection.alternate_keys", map[string]string{
		"supplier":       "supplierCode",
		"purchase_order": "poNumber",
		"work_order":     "workOrderNumber",
		"inventory":      "materialNumber",
	})

	v.SetDefault("reporting.penalty_critical", 15.0)
	v.SetDefault("reporting.penalty_high", 5.0)
	v.SetDefault("reporting.penalty_medium", 2.0)
	v.SetDefault("reporting.penalty_low", 0.5)
	v.SetDefault("reporting.max_trend_lookback", 90*24*time.Hour)

	v.SetDefault("scheduler.default_max_retries", 3)
	v.SetDefault("scheduler.retry_backoff_base", 2*time.Second)
	v.SetDefault("scheduler.retry_backoff_max", 5*time.Minute)
	v.SetDefault("scheduler.queue_preview_size", 5)
	v.SetDefault("scheduler.job_timeout", 2*time.Minute)
	v.SetDefault("scheduler.poll_interval", time.Second)

	v.SetDefault("providers.mes.base_url", "http://localhost:8080/api/v1")
	v.SetDefault("providers.mes.timeout", 30*time.Second)
	v.SetDefault("providers.mes.rate_per_second", 20.0)
	v.SetDefault("providers.mes.burst", 40)
	v.SetDefault("providers.mes.breaker_enabled", true)
	v.SetDefault("providers.erp.base_url", "http://localhost:8081/api/v1")
	v.SetDefault("providers.erp.timeout", 30*time.Second)
	v.SetDefault("providers.erp.rate_per_second", 10.0)
	v.SetDefault("providers.erp.burst", 20)
	v.SetDefault("providers.erp.breaker_enabled", true)

	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.postgres.max_open_conns", 25)
	v.SetDefault("storage.postgres.max_idle_conns", 5)
	v.SetDefault("storage.postgres.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("storage.postgres.breaker_enabled", true)
	v.SetDefault("storage.redis.enabled", false)
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("storage.redis.ttl", 10*time.Minute)
	v.SetDefault("storage.redis.format", "msgpack")
	v.SetDefault("storage.redis.compression", "lz4")

	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.topic", "integration.events")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks configuration invariants before the service starts.
func (c *Config) Validate() error {
	if c.Detection.NumericTolerance < 0 || c.Detection.NumericTolerance >= 1 {
		return errors.New("detection.numeric_tolerance must be in [0, 1)")
	}
	if c.Detection.TimestampTolerance < 0 {
		return errors.New("detection.timestamp_tolerance must not be negative")
	}
	if c.Reporting.PenaltyCritical <= c.Reporting.PenaltyHigh {
		return errors.New("reporting.penalty_critical must exceed penalty_high")
	}
	if c.Reporting.PenaltyHigh <= c.Reporting.PenaltyMedium {
		return errors.New("reporting.penalty_high must exceed penalty_medium")
	}
	if c.Reporting.PenaltyMedium < c.Reporting.PenaltyLow {
		return errors.New("reporting.penalty_medium must not be below penalty_low")
	}
	if c.Reporting.MaxTrendLookback <= 0 {
		return errors.New("reporting.max_trend_lookback must be positive")
	}
	if c.Scheduler.DefaultMaxRetries < 0 {
		return errors.New("scheduler.default_max_retries must not be negative")
	}
	if c.Scheduler.RetryBackoffBase <= 0 || c.Scheduler.RetryBackoffMax < c.Scheduler.RetryBackoffBase {
		return errors.New("scheduler retry backoff bounds are inconsistent")
	}
	if c.Storage.Backend != "memory" && c.Storage.Backend != "postgres" {
		return errors.Errorf("unsupported storage backend: %s", c.Storage.Backend)
	}
	if c.Storage.Backend == "postgres" && c.Storage.Postgres.DSN == "" {
		return errors.New("storage.postgres.dsn is required for the postgres backend")
	}
	if c.Notify.Enabled && len(c.Notify.Brokers) == 0 {
		return errors.New("notify.brokers is required when notifications are enabled")
	}
	return nil
}
