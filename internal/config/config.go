package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Neo4j       Neo4jConfig       `mapstructure:"neo4j"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Attribution AttributionConfig `mapstructure:"attribution"`
	Audit       AuditConfig       `mapstructure:"audit"`
	Backend     BackendConfig     `mapstructure:"backend"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
	Security    SecurityConfig    `mapstructure:"security"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
	Docs bool   `mapstructure:"docs"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConnections int           `mapstructure:"max_connections"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// RedisConfig covers sessions, rate limiting and the attribution cache.
type RedisConfig struct {
	URL        string        `mapstructure:"url"`
	MaxRetries int           `mapstructure:"max_retries"`
	PoolSize   int           `mapstructure:"pool_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type Neo4jConfig struct {
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
	Topics        struct {
		DecisionTraces    string `mapstructure:"decision_traces"`
		DecisionTracesDLQ string `mapstructure:"decision_traces_dlq"`
		ExplainEvents     string `mapstructure:"explain_events"`
	} `mapstructure:"topics"`
}

type AuthConfig struct {
	JWTSecret string            `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration     `mapstructure:"token_ttl"`
	APIKeys   map[string]string `mapstructure:"api_keys"` // key -> role
	RateLimit RateLimitConfig   `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Default int           `mapstructure:"default"`
	Admin   int           `mapstructure:"admin"`
	Window  time.Duration `mapstructure:"window"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AttributionConfig holds the default blend used when a request does not
// carry one, plus memo and cache sizing.
type AttributionConfig struct {
	DefaultBlend   BlendConfig   `mapstructure:"default_blend"`
	MemoSize       int           `mapstructure:"memo_size"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	MaxItems       int           `mapstructure:"max_items"`
	ResolveAnchors bool          `mapstructure:"resolve_anchors"`
	PublishEvents  bool          `mapstructure:"publish_events"`
}

type BlendConfig struct {
	Pop  float64 `mapstructure:"pop"`
	Cooc float64 `mapstructure:"cooc"`
	Als  float64 `mapstructure:"als"`
}

// AuditConfig controls decision-trace lookup after an asynchronous write.
type AuditConfig struct {
	Source            string        `mapstructure:"source"` // postgres or backend
	LookupAttempts    int           `mapstructure:"lookup_attempts"`
	LookupBaseDelay   time.Duration `mapstructure:"lookup_base_delay"`
	NamespaceFallback bool          `mapstructure:"namespace_fallback"`
	ConsumeTraces     bool          `mapstructure:"consume_traces"`
}

type BackendConfig struct {
	BaseURL        string               `mapstructure:"base_url"`
	APIKey         string               `mapstructure:"api_key"`
	OrgID          string               `mapstructure:"org_id"`
	Timeout        time.Duration        `mapstructure:"timeout"`
	Retries        int                  `mapstructure:"retries"`
	RetryDelay     time.Duration        `mapstructure:"retry_delay"`
	RetryBackoff   bool                 `mapstructure:"retry_backoff"`
	Jitter         bool                 `mapstructure:"jitter"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

type CircuitBreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	ResetTimeout     time.Duration `mapstructure:"reset_timeout"`
}

type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPath string `mapstructure:"metrics_path"`
}

type SecurityConfig struct {
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

func Load() (*Config, error) {
	viper.SetConfigName("app")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	// Set defaults
	setDefaults()

	// Environment variable overrides
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional, continue with env vars and defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "development")
	viper.SetDefault("server.docs", true)

	// Database defaults
	viper.SetDefault("database.max_connections", 10)
	viper.SetDefault("database.max_idle_time", "15m")
	viper.SetDefault("database.max_lifetime", "1h")
	viper.SetDefault("database.connect_timeout", "10s")

	// Redis defaults
	viper.SetDefault("redis.url", "localhost:6379")
	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.timeout", "5s")

	// Kafka defaults
	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.consumer_group", "pirex-admin")
	viper.SetDefault("kafka.topics.decision_traces", "decision-traces")
	viper.SetDefault("kafka.topics.decision_traces_dlq", "decision-traces-dlq")
	viper.SetDefault("kafka.topics.explain_events", "explain-events")

	// Auth defaults
	viper.SetDefault("auth.token_ttl", "12h")
	viper.SetDefault("auth.rate_limit.default", 600)
	viper.SetDefault("auth.rate_limit.admin", 6000)
	viper.SetDefault("auth.rate_limit.window", "1m")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	// Attribution defaults
	viper.SetDefault("attribution.default_blend.pop", 1.0)
	viper.SetDefault("attribution.default_blend.cooc", 0.5)
	viper.SetDefault("attribution.default_blend.als", 0.0)
	viper.SetDefault("attribution.memo_size", 4096)
	viper.SetDefault("attribution.cache_ttl", "10m")
	viper.SetDefault("attribution.max_items", 200)
	viper.SetDefault("attribution.resolve_anchors", true)
	viper.SetDefault("attribution.publish_events", true)

	// Audit defaults
	viper.SetDefault("audit.source", "postgres")
	viper.SetDefault("audit.lookup_attempts", 6)
	viper.SetDefault("audit.lookup_base_delay", "250ms")
	viper.SetDefault("audit.namespace_fallback", false)
	viper.SetDefault("audit.consume_traces", true)

	// Backend client defaults
	viper.SetDefault("backend.base_url", "http://localhost:8081")
	viper.SetDefault("backend.timeout", "30s")
	viper.SetDefault("backend.retries", 3)
	viper.SetDefault("backend.retry_delay", "1s")
	viper.SetDefault("backend.retry_backoff", true)
	viper.SetDefault("backend.jitter", true)
	viper.SetDefault("backend.circuit_breaker.enabled", true)
	viper.SetDefault("backend.circuit_breaker.failure_threshold", 5)
	viper.SetDefault("backend.circuit_breaker.reset_timeout", "30s")

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", true)
	viper.SetDefault("monitoring.metrics_path", "/metrics")

	// Security defaults
	viper.SetDefault("security.cors.allowed_origins", []string{"*"})
	viper.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	viper.SetDefault("security.cors.allowed_headers", []string{"*"})
}
