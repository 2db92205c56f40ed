package domain

import "time"

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `koanf:"server" json:"server"`

	// Component configurations
	Repository RepositoryConfig `koanf:"repository" json:"repository"`
	Cache      CacheConfig      `koanf:"cache" json:"cache"`
	EventBus   EventBusConfig   `koanf:"bus" json:"eventBus"`
	Worker     WorkerConfig     `koanf:"worker" json:"worker"`

	// Policy storage
	Policy PolicyStoreConfig `koanf:"policy" json:"policy"`

	// Fixtures seeds the demo case set on startup when the case table is empty.
	Fixtures bool `koanf:"fixtures" json:"fixtures"`

	// Observability
	Logging LoggingConfig `koanf:"logging" json:"logging"`
	Tracing TracingConfig `koanf:"tracing" json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host" json:"host"`
	Port            int           `koanf:"port" json:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout" json:"readTimeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout" json:"writeTimeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" json:"shutdownTimeout"`
	AllowedOrigins  []string      `koanf:"allowed_origins" json:"allowedOrigins"`
}

// WorkerConfig controls asynchronous case evaluation.
type WorkerConfig struct {
	Enabled     bool `koanf:"enabled" json:"enabled"`
	Concurrency int  `koanf:"concurrency" json:"concurrency" validate:"min=0"`
}

// PolicyStoreConfig selects where the policy document is persisted.
type PolicyStoreConfig struct {
	// Backend is "repository", "cache" or "none".
	Backend string `koanf:"backend" json:"backend" validate:"oneof=repository cache none"`
	Key     string `koanf:"key" json:"key"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level" json:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" json:"format" validate:"oneof=json text"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `koanf:"enabled" json:"enabled"`
	ServiceName string `koanf:"service_name" json:"serviceName"`
}

// DefaultPolicyKey is the storage key of the policy document.
const DefaultPolicyKey = "aml-policy-config"

// DefaultConfig returns a single-node configuration: SQLite, in-memory cache, channel bus.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
			FactsTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Worker: WorkerConfig{
			Enabled:     true,
			Concurrency: 4,
		},
		Policy: PolicyStoreConfig{
			Backend: "repository",
			Key:     DefaultPolicyKey,
		},
		Fixtures: true,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}

// ClusterConfig returns a configuration for a shared deployment:
// PostgreSQL, Redis and NATS.
func ClusterConfig() *Config {
	cfg := DefaultConfig()
	cfg.Repository = RepositoryConfig{
		Driver:          "postgres",
		PostgresHost:    "localhost",
		PostgresPort:    5432,
		PostgresDB:      "kestrel",
		PostgresSSLMode: "disable",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
		FactsTTL:       5 * time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Fixtures = false
	cfg.Tracing.Enabled = true
	return cfg
}
