package config

import (
	"log/slog"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App        AppConfig
	Detection  DetectionConfig
	Alerting   AlertingConfig
	Threats    ThreatsConfig
	Notify     NotifyConfig
	Metrics    MetricsConfig
	ClickHouse ClickHouseConfig
}

type AppConfig struct {
	Env  string
	Port int
	Host string
}

type DetectionConfig struct {
	Interval time.Duration
	Workers  int
}

type AlertingConfig struct {
	Interval time.Duration
}

type ThreatsConfig struct {
	Interval       time.Duration
	EventRetention time.Duration
	RulesDir       string
}

type NotifyConfig struct {
	SendTimeout time.Duration
}

type MetricsConfig struct {
	Lookback time.Duration
}

type ClickHouseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/app")
	viper.AddConfigPath("/etc/argus")

	// Environment variables
	viper.AutomaticEnv()

	bindEnvVars()
	setDefaults()

	// Try to read config file (optional)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("Error reading config file", "error", err)
		}
	}

	config := &Config{
		App: AppConfig{
			Env:  viper.GetString("APP_ENV"),
			Port: viper.GetInt("APP_PORT"),
			Host: viper.GetString("APP_HOST"),
		},
		Detection: DetectionConfig{
			Interval: viper.GetDuration("DETECTION_INTERVAL"),
			Workers:  viper.GetInt("DETECTION_WORKERS"),
		},
		Alerting: AlertingConfig{
			Interval: viper.GetDuration("ALERTING_INTERVAL"),
		},
		Threats: ThreatsConfig{
			Interval:       viper.GetDuration("THREATS_INTERVAL"),
			EventRetention: viper.GetDuration("THREATS_EVENT_RETENTION"),
			RulesDir:       viper.GetString("THREATS_RULES_DIR"),
		},
		Notify: NotifyConfig{
			SendTimeout: viper.GetDuration("NOTIFY_SEND_TIMEOUT"),
		},
		Metrics: MetricsConfig{
			Lookback: viper.GetDuration("METRICS_LOOKBACK"),
		},
		ClickHouse: ClickHouseConfig{
			Enabled:  viper.GetBool("CLICKHOUSE_ENABLED"),
			Host:     viper.GetString("CLICKHOUSE_HOST"),
			Port:     viper.GetInt("CLICKHOUSE_PORT"),
			User:     viper.GetString("CLICKHOUSE_USER"),
			Password: viper.GetString("CLICKHOUSE_PASSWORD"),
			Database: viper.GetString("CLICKHOUSE_DATABASE"),
		},
	}

	return config, nil
}

func bindEnvVars() {
	// App
	viper.BindEnv("APP_ENV")
	viper.BindEnv("APP_PORT")
	viper.BindEnv("APP_HOST")

	// Engines
	viper.BindEnv("DETECTION_INTERVAL")
	viper.BindEnv("DETECTION_WORKERS")
	viper.BindEnv("ALERTING_INTERVAL")
	viper.BindEnv("THREATS_INTERVAL")
	viper.BindEnv("THREATS_EVENT_RETENTION")
	viper.BindEnv("THREATS_RULES_DIR")

	// Notifications
	viper.BindEnv("NOTIFY_SEND_TIMEOUT")

	// Metric windows
	viper.BindEnv("METRICS_LOOKBACK")

	// ClickHouse audit archive
	viper.BindEnv("CLICKHOUSE_ENABLED")
	viper.BindEnv("CLICKHOUSE_HOST")
	viper.BindEnv("CLICKHOUSE_PORT")
	viper.BindEnv("CLICKHOUSE_USER")
	viper.BindEnv("CLICKHOUSE_PASSWORD")
	viper.BindEnv("CLICKHOUSE_DATABASE")
}

func setDefaults() {
	// App defaults
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("APP_PORT", 8080)
	viper.SetDefault("APP_HOST", "0.0.0.0")

	// Engine defaults
	viper.SetDefault("DETECTION_INTERVAL", time.Minute)
	viper.SetDefault("DETECTION_WORKERS", 4)
	viper.SetDefault("ALERTING_INTERVAL", time.Minute)
	viper.SetDefault("THREATS_INTERVAL", 30*time.Second)
	viper.SetDefault("THREATS_EVENT_RETENTION", 24*time.Hour)
	viper.SetDefault("THREATS_RULES_DIR", "rules")

	// Notification defaults
	viper.SetDefault("NOTIFY_SEND_TIMEOUT", 10*time.Second)

	// Metric window defaults
	viper.SetDefault("METRICS_LOOKBACK", 24*time.Hour)

	// ClickHouse defaults (archive disabled unless configured)
	viper.SetDefault("CLICKHOUSE_ENABLED", false)
	viper.SetDefault("CLICKHOUSE_HOST", "localhost")
	viper.SetDefault("CLICKHOUSE_PORT", 9000)
	viper.SetDefault("CLICKHOUSE_USER", "argus")
	viper.SetDefault("CLICKHOUSE_DATABASE", "argus")
}

func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

func SetupLogger(cfg *Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if cfg.IsDevelopment() {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}
