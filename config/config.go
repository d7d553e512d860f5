package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"anomaly-stream-processor/delivery"
	"anomaly-stream-processor/detector"
	"anomaly-stream-processor/pipeline"
)

// Config is the full application configuration, populated from built-in
// defaults, then an optional YAML file, then ANOMALY_* environment
// variables, and validated once before use.
type Config struct {
	Server struct {
		Addr         string        `mapstructure:"addr"`
		ReadTimeout  time.Duration `mapstructure:"read_timeout"`
		WriteTimeout time.Duration `mapstructure:"write_timeout"`
		IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	} `mapstructure:"server"`

	Detector struct {
		WindowSize      int      `mapstructure:"window_size"`
		StdDevThreshold float64  `mapstructure:"std_dev_threshold"`
		MinSamples      int      `mapstructure:"min_samples"`
		Metrics         []string `mapstructure:"metrics"`
		UseIQR          bool     `mapstructure:"use_iqr"`
		IQRMultiplier   float64  `mapstructure:"iqr_multiplier"`
		UseMAD          bool     `mapstructure:"use_mad"`
		MADThreshold    float64  `mapstructure:"mad_threshold"`
	} `mapstructure:"detector"`

	Delivery struct {
		BatchMode     bool          `mapstructure:"batch_mode"`
		MaxBatchSize  int           `mapstructure:"max_batch_size"`
		FlushInterval time.Duration `mapstructure:"flush_interval"`
		MaxPending    int           `mapstructure:"max_pending"`

		Redis struct {
			Addr    string        `mapstructure:"addr"`
			Channel string        `mapstructure:"channel"`
			TTL     time.Duration `mapstructure:"ttl"`
		} `mapstructure:"redis"`
	} `mapstructure:"delivery"`

	Pipeline struct {
		Workers   int `mapstructure:"workers"`
		QueueSize int `mapstructure:"queue_size"`
	} `mapstructure:"pipeline"`

	Ingest struct {
		// AMQPURL enables the message-queue sample source when non-empty.
		AMQPURL    string `mapstructure:"amqp_url"`
		Exchange   string `mapstructure:"exchange"`
		RoutingKey string `mapstructure:"routing_key"`
		Queue      string `mapstructure:"queue"`
	} `mapstructure:"ingest"`

	Logging struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"logging"`
}

// Load reads configuration from the given file path (optional; defaults and
// environment variables alone are a valid configuration).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("ANOMALY")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		// A miss on the search path is fine, defaults + env apply. An
		// explicitly named file that cannot be read is not.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)

	v.SetDefault("detector.window_size", 100)
	v.SetDefault("detector.std_dev_threshold", 3.0)
	v.SetDefault("detector.min_samples", 10)
	v.SetDefault("detector.metrics", []string{"cpu_usage", "memory_usage", "network_io"})
	v.SetDefault("detector.use_iqr", false)
	v.SetDefault("detector.iqr_multiplier", 1.5)
	v.SetDefault("detector.use_mad", false)
	v.SetDefault("detector.mad_threshold", 3.0)

	v.SetDefault("delivery.batch_mode", true)
	v.SetDefault("delivery.max_batch_size", 500)
	v.SetDefault("delivery.flush_interval", 5*time.Second)
	v.SetDefault("delivery.max_pending", 0) // derived from max_batch_size
	v.SetDefault("delivery.redis.addr", "localhost:6379")
	v.SetDefault("delivery.redis.channel", "anomaly_events")
	v.SetDefault("delivery.redis.ttl", 5*time.Minute)

	v.SetDefault("pipeline.workers", 0) // derived from NumCPU
	v.SetDefault("pipeline.queue_size", 10000)

	v.SetDefault("logging.level", "info")
}

func (c *Config) Validate() error {
	var errs []string

	if c.Server.Addr == "" {
		errs = append(errs, "server.addr must not be empty")
	}
	if c.Detector.WindowSize <= 0 {
		errs = append(errs, "detector.window_size must be positive")
	}
	if c.Detector.StdDevThreshold <= 0 {
		errs = append(errs, "detector.std_dev_threshold must be positive")
	}
	if c.Detector.MinSamples < 2 {
		errs = append(errs, "detector.min_samples must be at least 2")
	}
	if len(c.Detector.Metrics) == 0 {
		errs = append(errs, "detector.metrics must name at least one metric")
	}
	if c.Detector.IQRMultiplier <= 0 {
		errs = append(errs, "detector.iqr_multiplier must be positive")
	}
	if c.Detector.MADThreshold <= 0 {
		errs = append(errs, "detector.mad_threshold must be positive")
	}
	if c.Delivery.MaxBatchSize <= 0 {
		errs = append(errs, "delivery.max_batch_size must be positive")
	}
	if c.Delivery.FlushInterval <= 0 {
		errs = append(errs, "delivery.flush_interval must be positive")
	}
	if c.Delivery.Redis.Addr == "" {
		errs = append(errs, "delivery.redis.addr must not be empty")
	}
	if c.Ingest.AMQPURL != "" && c.Ingest.Queue == "" {
		errs = append(errs, "ingest.queue is required when ingest.amqp_url is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// DetectorConfig maps the detection section onto the detector package's
// config struct.
func (c *Config) DetectorConfig() detector.Config {
	return detector.Config{
		WindowSize:      c.Detector.WindowSize,
		StdDevThreshold: c.Detector.StdDevThreshold,
		MinSamples:      c.Detector.MinSamples,
		Metrics:         c.Detector.Metrics,
		UseIQR:          c.Detector.UseIQR,
		IQRMultiplier:   c.Detector.IQRMultiplier,
		UseMAD:          c.Detector.UseMAD,
		MADThreshold:    c.Detector.MADThreshold,
	}
}

func (c *Config) DeliveryOptions() delivery.Options {
	return delivery.Options{
		BatchMode:     c.Delivery.BatchMode,
		MaxBatchSize:  c.Delivery.MaxBatchSize,
		FlushInterval: c.Delivery.FlushInterval,
		MaxPending:    c.Delivery.MaxPending,
	}
}

func (c *Config) PipelineOptions() pipeline.Options {
	return pipeline.Options{
		Workers:   c.Pipeline.Workers,
		QueueSize: c.Pipeline.QueueSize,
	}
}
