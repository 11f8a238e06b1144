package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Source names known to the engine.
const (
	SourceYahoo        = "yahoo_finance"
	SourceCoinGecko    = "coingecko"
	SourceAlphaVantage = "alpha_vantage"
	SourceFinnhub      = "finnhub"
	SourceNewsAPI      = "newsapi"
)

type Config struct {
	Environment string                  `yaml:"environment" default:"development" validate:"required"`
	Logger      LoggerConfig            `yaml:"logger"`
	Server      ServerConfig            `yaml:"server"`
	Metrics     MetricsConfig           `yaml:"metrics"`
	Scheduler   SchedulerConfig         `yaml:"scheduler"`
	Sources     map[string]SourceConfig `yaml:"sources"`
	// Priorities maps an asset class to the ordered source names tried for it.
	Priorities map[string][]string `yaml:"priorities"`
	Watchlist  []string            `yaml:"watchlist"`
	Cache      CacheConfig         `yaml:"cache"`
	RateLimit  RateLimitConfig     `yaml:"rate_limit"`
	Publish    PublishConfig       `yaml:"publish"`
	Postgres   PostgresConfig      `yaml:"postgres"`
	Kafka      KafkaConfig         `yaml:"kafka"`
	ClickHouse ClickHouseConfig    `yaml:"clickhouse"`
}

type LoggerConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"console" validate:"oneof=json console"`
	Output string `yaml:"output" default:"stdout"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"15s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	SlowRequest     time.Duration `yaml:"slow_request" default:"2s"`
	CORSOrigins     []string      `yaml:"cors_origins" default:"[\"*\"]"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics"`
}

type SchedulerConfig struct {
	TickInterval        time.Duration `yaml:"tick_interval" default:"30s" validate:"gt=0"`
	HealthResetInterval time.Duration `yaml:"health_reset_interval" default:"5m" validate:"gt=0"`
	CleanupInterval     time.Duration `yaml:"cleanup_interval" default:"1h" validate:"gt=0"`
	Concurrency         int           `yaml:"concurrency" default:"10" validate:"gt=0"`
	Retention           time.Duration `yaml:"retention" default:"2160h" validate:"gt=0"`
	HistoryDays         int           `yaml:"history_days" default:"50" validate:"gt=0,lte=365"`
	Cooldown            time.Duration `yaml:"cooldown" default:"5m" validate:"gt=0"`
}

type SourceConfig struct {
	Enabled   *bool         `yaml:"enabled"`
	BaseURL   string        `yaml:"base_url" validate:"required,url"`
	APIKey    string        `yaml:"api_key"`
	Priority  int           `yaml:"priority" validate:"gte=0"`
	RateLimit int           `yaml:"rate_limit" validate:"gte=0"` // calls per minute, 0 = unlimited
	Timeout   time.Duration `yaml:"timeout" validate:"gt=0"`
}

// IsEnabled treats an absent flag as enabled.
func (s SourceConfig) IsEnabled() bool { return s.Enabled == nil || *s.Enabled }

type CacheConfig struct {
	Backend    string        `yaml:"backend" default:"layered" validate:"oneof=memory redis layered"`
	TTL        time.Duration `yaml:"ttl" default:"5m" validate:"gt=0"`
	SummaryTTL time.Duration `yaml:"summary_ttl" default:"10m" validate:"gt=0"`
	MemorySize int           `yaml:"memory_size" default:"1000" validate:"gt=0"`
	Redis      RedisConfig   `yaml:"redis"`
}

type RedisConfig struct {
	Host     string `yaml:"host" default:"localhost"`
	Port     int    `yaml:"port" default:"6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" default:"0"`
	Prefix   string `yaml:"prefix" default:"marketpulse"`
	PoolSize int    `yaml:"pool_size" default:"10"`
}

type RateLimitConfig struct {
	// Backend is redis (shared counters) or memory (single process).
	Backend string        `yaml:"backend" default:"redis" validate:"oneof=memory redis"`
	Window  time.Duration `yaml:"window" default:"1m" validate:"gt=0"`
}

type PublishConfig struct {
	MinInterval time.Duration `yaml:"min_interval" default:"1s"`
	RetryBuffer int           `yaml:"retry_buffer" default:"256" validate:"gte=0"`
	RetryMax    int           `yaml:"retry_max" default:"5" validate:"gte=0"`
	BackoffMin  time.Duration `yaml:"backoff_min" default:"200ms"`
	BackoffMax  time.Duration `yaml:"backoff_max" default:"10s"`
}

type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled" default:"true"`
	Host            string        `yaml:"host" default:"localhost"`
	Port            int           `yaml:"port" default:"5432"`
	User            string        `yaml:"user" default:"postgres"`
	Password        string        `yaml:"password"`
	DBName          string        `yaml:"dbname" default:"marketpulse"`
	SSLMode         string        `yaml:"sslmode" default:"disable"`
	MaxOpenConns    int           `yaml:"max_open_conns" default:"20"`
	MaxIdleConns    int           `yaml:"max_idle_conns" default:"5"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" default:"30m"`
}

// EnabledSources returns the names of enabled sources, sorted.
func (c *Config) EnabledSources() []string {
	out := make([]string, 0, len(c.Sources))
	for name, s := range c.Sources {
		if s.IsEnabled() {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// DSN returns the lib/pq connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

type KafkaConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Brokers        []string `yaml:"brokers"`
	Topic          string   `yaml:"topic" default:"market.updates"`
	WatchlistTopic string   `yaml:"watchlist_topic" default:"market.watchlist"`
	LogTopic       string   `yaml:"log_topic" default:"market.logs"`
	RequiredAcks   int      `yaml:"required_acks" default:"1"`
	Compression    string   `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
	Producer       struct {
		MaxAttempts  int           `yaml:"max_attempts" default:"5"`
		Linger       time.Duration `yaml:"linger" default:"10ms"`
		BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		Async        bool          `yaml:"async"`
	} `yaml:"producer"`
	Consumer struct {
		GroupID    string        `yaml:"group_id" default:"marketpulse"`
		Workers    int           `yaml:"workers" default:"2"`
		BufferSize int           `yaml:"buffer_size" default:"64"`
		RetryMax   int           `yaml:"retry_max" default:"3"`
		BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
		BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
		MinBytes   int           `yaml:"min_bytes" default:"1"`
		MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
	} `yaml:"consumer"`
}

type ClickHouseConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Host             string        `yaml:"host" default:"localhost"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"marketpulse"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
}

// DefaultWatchlist is used when neither the file nor WATCHLIST set one.
var DefaultWatchlist = []string{
	"AAPL", "MSFT", "GOOGL", "AMZN", "TSLA", "NVDA", "META", "NFLX",
	"BTC", "ETH", "ADA", "SOL", "DOT", "MATIC", "AVAX", "ATOM",
	"^GSPC", "^DJI", "^IXIC",
	"EURUSD=X", "GBPUSD=X", "USDJPY=X",
}

// DefaultSources returns the built-in provider table.
func DefaultSources() map[string]SourceConfig {
	return map[string]SourceConfig{
		SourceYahoo:        {BaseURL: "https://query1.finance.yahoo.com", Priority: 1, RateLimit: 2000, Timeout: 10 * time.Second},
		SourceCoinGecko:    {BaseURL: "https://api.coingecko.com/api/v3", Priority: 1, RateLimit: 10, Timeout: 10 * time.Second},
		SourceAlphaVantage: {BaseURL: "https://www.alphavantage.co", Priority: 2, RateLimit: 5, Timeout: 15 * time.Second},
		SourceFinnhub:      {BaseURL: "https://finnhub.io/api/v1", Priority: 2, RateLimit: 60, Timeout: 10 * time.Second},
		SourceNewsAPI:      {BaseURL: "https://newsapi.org/v2", Priority: 1, RateLimit: 1000, Timeout: 15 * time.Second},
	}
}

// DefaultPriorities returns the built-in per asset class source order.
func DefaultPriorities() map[string][]string {
	return map[string][]string{
		"crypto": {SourceCoinGecko, SourceYahoo},
		"stock":  {SourceYahoo, SourceAlphaVantage, SourceFinnhub},
		"forex":  {SourceYahoo, SourceAlphaVantage},
	}
}

// Default returns a fully defaulted configuration.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("set defaults: %w", err)
	}
	c.fillBuiltins()
	return &c, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("set defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.fillBuiltins()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads .env (if present), the YAML file, then applies environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.ApplyEnv(os.Getenv)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// ApplyEnv overrides secrets and endpoints from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	setKey := func(name, env string) {
		if v := getenv(env); v != "" {
			s := c.Sources[name]
			s.APIKey = v
			c.Sources[name] = s
		}
	}
	setKey(SourceAlphaVantage, "ALPHA_VANTAGE_API_KEY")
	setKey(SourceNewsAPI, "NEWS_API_KEY")
	setKey(SourceFinnhub, "FINNHUB_API_KEY")

	if v := getenv("REDIS_HOST"); v != "" {
		c.Cache.Redis.Host = v
	}
	if v := getenv("REDIS_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Cache.Redis.Port = p
		}
	}
	if v := getenv("REDIS_PASSWORD"); v != "" {
		c.Cache.Redis.Password = v
	}
	if v := getenv("POSTGRES_HOST"); v != "" {
		c.Postgres.Host = v
	}
	if v := getenv("POSTGRES_USER"); v != "" {
		c.Postgres.User = v
	}
	if v := getenv("POSTGRES_PASSWORD"); v != "" {
		c.Postgres.Password = v
	}
	if v := getenv("POSTGRES_DB"); v != "" {
		c.Postgres.DBName = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := getenv("WATCHLIST"); v != "" {
		c.Watchlist = splitList(v)
	}
}

// Validate checks struct rules and cross references.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	for name, s := range c.Sources {
		if err := validator.New().Struct(s); err != nil {
			return fmt.Errorf("sources.%s: %w", name, err)
		}
	}
	var errs []error
	for class, names := range c.Priorities {
		switch class {
		case "stock", "crypto", "forex":
		default:
			errs = append(errs, fmt.Errorf("priorities: unknown asset class %q", class))
		}
		for _, n := range names {
			if _, ok := c.Sources[n]; !ok {
				errs = append(errs, fmt.Errorf("priorities.%s: unknown source %q", class, n))
			}
		}
	}
	if len(c.Watchlist) == 0 {
		errs = append(errs, errors.New("watchlist cannot be empty"))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers is required when kafka is enabled"))
	}
	return errors.Join(errs...)
}

// fillBuiltins merges the built-in source table, priorities and watchlist
// under whatever the file provided.
func (c *Config) fillBuiltins() {
	builtin := DefaultSources()
	if c.Sources == nil {
		c.Sources = make(map[string]SourceConfig, len(builtin))
	}
	for name, def := range builtin {
		s, ok := c.Sources[name]
		if !ok {
			c.Sources[name] = def
			continue
		}
		if s.BaseURL == "" {
			s.BaseURL = def.BaseURL
		}
		if s.Timeout <= 0 {
			s.Timeout = def.Timeout
		}
		if s.RateLimit == 0 {
			s.RateLimit = def.RateLimit
		}
		if s.Priority == 0 {
			s.Priority = def.Priority
		}
		c.Sources[name] = s
	}
	if len(c.Priorities) == 0 {
		c.Priorities = DefaultPriorities()
	}
	if len(c.Watchlist) == 0 {
		c.Watchlist = append([]string(nil), DefaultWatchlist...)
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
