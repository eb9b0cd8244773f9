package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"

	"FinCast/pkg/logger"
)

type Config struct {
	Environment string           `yaml:"environment" default:"development"`
	Server      ServerConfig     `yaml:"server"`
	Logger      logger.Config    `yaml:"logger"`
	Metrics     MetricsConfig    `yaml:"metrics"`
	Tracing     TracingConfig    `yaml:"tracing"`
	Forecast    ForecastConfig   `yaml:"forecast"`
	MarketData  MarketDataConfig `yaml:"market_data"`
	Cache       CacheConfig      `yaml:"cache"`
	Redis       RedisConfig      `yaml:"redis"`
	Queue       QueueConfig      `yaml:"queue"`
	Kafka       KafkaConfig      `yaml:"kafka"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse"`
	InfluxDB    InfluxDBConfig   `yaml:"influxdb"`
	Ledger      LedgerConfig     `yaml:"ledger"`
	Scheduler   SchedulerConfig  `yaml:"scheduler"`
	RateLimit   RateLimitConfig  `yaml:"ratelimit"`
	Symbols     []string         `yaml:"symbols" default:"[\"AAPL\",\"GOOG\",\"MSFT\",\"AMZN\",\"TSLA\",\"META\",\"NFLX\",\"NVDA\",\"BABA\",\"INTC\"]"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" default:"0.0.0.0"`
	Port            int           `yaml:"port" default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"10m"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	AllowOrigins    []string      `yaml:"allow_origins" default:"[\"*\"]"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics"`
}

type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name" default:"fincast"`
	SampleRatio float64 `yaml:"sample_ratio" default:"1"`
}

// ForecastConfig mirrors the model hyperparameters plus how much history to fetch.
type ForecastConfig struct {
	Lookback      int           `yaml:"lookback" default:"60"`
	Horizon       int           `yaml:"horizon" default:"30"`
	Epochs        int           `yaml:"epochs" default:"100"`
	BatchSize     int           `yaml:"batch_size" default:"32"`
	LearningRate  float64       `yaml:"learning_rate" default:"0.001"`
	HiddenSize    int           `yaml:"hidden_size" default:"50"`
	TrainFraction float64       `yaml:"train_fraction" default:"0.8"`
	Seed          int64         `yaml:"seed"`
	Workers       int           `yaml:"workers" default:"1"`
	HistoryDays   int           `yaml:"history_days" default:"1825"`
	Timeout       time.Duration `yaml:"timeout" default:"10m"`
}

type MarketDataConfig struct {
	Provider     string        `yaml:"provider" default:"alphavantage"`
	CacheTTL     time.Duration `yaml:"cache_ttl" default:"1h"`
	AlphaVantage struct {
		APIKey  string        `yaml:"api_key"`
		BaseURL string        `yaml:"base_url" default:"https://www.alphavantage.co"`
		Timeout time.Duration `yaml:"timeout" default:"20s"`
	} `yaml:"alphavantage"`
	Yahoo struct {
		BaseURL string        `yaml:"base_url" default:"https://query1.finance.yahoo.com"`
		Timeout time.Duration `yaml:"timeout" default:"20s"`
	} `yaml:"yahoo"`
}

type CacheConfig struct {
	Backend         string        `yaml:"backend" default:"memory"` // memory | redis | layered
	MemoryMaxSize   int           `yaml:"memory_max_size" default:"10000"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" default:"1m"`
	Prefix          string        `yaml:"prefix" default:"fincast"`
}

type RedisConfig struct {
	Host     string `yaml:"host" default:"localhost"`
	Port     int    `yaml:"port" default:"6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size" default:"10"`
}

type QueueConfig struct {
	Backend    string        `yaml:"backend" default:"memory"` // memory | redis
	Workers    int           `yaml:"workers" default:"2"`
	QueueSize  int           `yaml:"queue_size" default:"100"`
	RetryLimit int           `yaml:"retry_limit"`
	RetryDelay time.Duration `yaml:"retry_delay" default:"5s"`
	JobTTL     time.Duration `yaml:"job_ttl" default:"24h"`
}

type KafkaConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Brokers      []string `yaml:"brokers" default:"[\"localhost:9092\"]"`
	RequiredAcks int      `yaml:"required_acks" default:"-1"`
	Compression  string   `yaml:"compression" default:"snappy"`
	Topics       struct {
		Forecasts string `yaml:"forecasts" default:"forecast.results"`
		Bars      string `yaml:"bars" default:"market.daily_bars"`
		Errors    string `yaml:"errors" default:"fincast.errors"`
	} `yaml:"topics"`
	Producer struct {
		MaxAttempts  int           `yaml:"max_attempts" default:"5"`
		Linger       time.Duration `yaml:"linger" default:"50ms"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	} `yaml:"producer"`
	Consumer struct {
		Enabled    bool          `yaml:"enabled"`
		GroupID    string        `yaml:"group_id" default:"fincast-bars"`
		Workers    int           `yaml:"workers" default:"4"`
		BufferSize int           `yaml:"buffer_size" default:"256"`
		RetryMax   int           `yaml:"retry_max" default:"3"`
		BackoffMin time.Duration `yaml:"backoff_min" default:"200ms"`
		BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
		DLQTopic   string        `yaml:"dlq_topic" default:"market.daily_bars.dlq"`
	} `yaml:"consumer"`
}

type ClickHouseConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Host         string        `yaml:"host" default:"localhost"`
	Port         int           `yaml:"port" default:"9000"`
	Database     string        `yaml:"database" default:"fincast"`
	User         string        `yaml:"user" default:"default"`
	Password     string        `yaml:"password"`
	UseHTTP      bool          `yaml:"use_http"`
	DialTimeout  time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout  time.Duration `yaml:"read_timeout" default:"30s"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"30s"`
}

type InfluxDBConfig struct {
	URL         string `yaml:"url" default:"http://localhost:8086"`
	Token       string `yaml:"token"`
	Org         string `yaml:"org" default:"fincast"`
	Bucket      string `yaml:"bucket" default:"prices"`
	Measurement string `yaml:"measurement" default:"stock_prices"`
}

type LedgerConfig struct {
	Path string `yaml:"path" default:"data/ledger.db"`
}

type SchedulerConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Spec      string   `yaml:"spec" default:"0 30 22 * * 1-5"`
	Watchlist []string `yaml:"watchlist"`
}

type RateLimitConfig struct {
	Enabled bool          `yaml:"enabled" default:"true"`
	RPS     float64       `yaml:"rps" default:"1"`
	Burst   int           `yaml:"burst" default:"3"`
	IdleTTL time.Duration `yaml:"idle_ttl" default:"10m"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var c Config
	if err := defaults.Set(&c); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return &c
}

// Load reads and parses a YAML configuration file. Missing keys keep their defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes on top of the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// ApplyEnv overrides selected fields from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv("ALPHAVANTAGE_API_KEY"); v != "" {
		c.MarketData.AlphaVantage.APIKey = v
	}
	if v := getenv("MARKET_PROVIDER"); v != "" {
		c.MarketData.Provider = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		host, port, found := strings.Cut(v, ":")
		c.Redis.Host = host
		if found {
			p, err := strconv.Atoi(port)
			if err != nil {
				return fmt.Errorf("REDIS_ADDR port: %w", err)
			}
			c.Redis.Port = p
		}
	}
	if v := getenv("FORECAST_SEED"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("FORECAST_SEED: %w", err)
		}
		c.Forecast.Seed = seed
	}
	if v := getenv("WATCHLIST"); v != "" {
		c.Scheduler.Watchlist = splitList(v)
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	switch c.MarketData.Provider {
	case "alphavantage", "yahoo", "clickhouse", "influxdb":
	default:
		return fmt.Errorf("market_data.provider must be alphavantage, yahoo, clickhouse or influxdb, got '%s'", c.MarketData.Provider)
	}
	if c.MarketData.Provider == "clickhouse" && !c.ClickHouse.Enabled {
		return fmt.Errorf("market_data.provider 'clickhouse' requires clickhouse.enabled")
	}
	if c.MarketData.Provider == "influxdb" && c.InfluxDB.Token == "" {
		return fmt.Errorf("influxdb.token is required for market_data.provider 'influxdb'")
	}
	switch c.Cache.Backend {
	case "memory", "redis", "layered":
	default:
		return fmt.Errorf("cache.backend must be memory, redis or layered, got '%s'", c.Cache.Backend)
	}
	switch c.Queue.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("queue.backend must be memory or redis, got '%s'", c.Queue.Backend)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Kafka.Consumer.Enabled && !c.ClickHouse.Enabled {
		return fmt.Errorf("kafka.consumer requires clickhouse.enabled to store bars")
	}
	if c.Scheduler.Enabled && len(c.Scheduler.Watchlist) == 0 {
		return fmt.Errorf("scheduler.watchlist cannot be empty when the scheduler is enabled")
	}
	if len(c.Symbols) == 0 {
		return fmt.Errorf("symbols cannot be empty")
	}
	if c.Forecast.HistoryDays <= c.Forecast.Lookback {
		return fmt.Errorf("forecast.history_days (%d) must exceed forecast.lookback (%d)", c.Forecast.HistoryDays, c.Forecast.Lookback)
	}
	return nil
}
