package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Keepa     KeepaConfig     `mapstructure:"keepa"`
	Batch     BatchConfig     `mapstructure:"batch"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Notify    NotifyConfig    `mapstructure:"notify"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres
	Path            string        `mapstructure:"path"`   // sqlite file path
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN builds the connection string for the configured driver.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
	}
	return c.Path
}

type KeepaConfig struct {
	APIKey          string        `mapstructure:"api_key"`
	APIURL          string        `mapstructure:"api_url"`
	Timeout         time.Duration `mapstructure:"timeout"`
	RequestsPerSec  float64       `mapstructure:"requests_per_sec"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryWaitTime   time.Duration `mapstructure:"retry_wait_time"`
	StatsDays       int           `mapstructure:"stats_days"`
	AmazonDomainID  int           `mapstructure:"amazon_domain_id"`
}

type BatchConfig struct {
	Size    int `mapstructure:"size"`
	Workers int `mapstructure:"workers"`
}

type AlertsConfig struct {
	HistoricalDays int `mapstructure:"historical_days"`
}

type SchedulerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Timezone string `mapstructure:"timezone"`
	Hour     int    `mapstructure:"hour"`
	Minute   int    `mapstructure:"minute"`
}

type StorageConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Type      string `mapstructure:"type"` // s3, r2, s3compatible
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
}

type NotifyConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/pricewatch.db")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("keepa.api_url", "https://api.keepa.com")
	v.SetDefault("keepa.timeout", 30*time.Second)
	v.SetDefault("keepa.requests_per_sec", 1.0)
	v.SetDefault("keepa.max_retries", 3)
	v.SetDefault("keepa.retry_wait_time", 2*time.Second)
	v.SetDefault("keepa.stats_days", 180)
	v.SetDefault("keepa.amazon_domain_id", 1)
	// ~119 UPCs per batch so one batch stays inside the Keepa call budget
	// (2500 identifiers / 21 batches)
	v.SetDefault("batch.size", 119)
	v.SetDefault("batch.workers", 3)
	v.SetDefault("alerts.historical_days", 30)
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.timezone", "Asia/Taipei")
	v.SetDefault("scheduler.hour", 20)
	v.SetDefault("scheduler.minute", 0)
	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.type", "s3")
	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("storage.bucket", "pricewatch-reports")
	v.SetDefault("notify.timeout", 10*time.Second)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("keepa.api_key", "KEEPA_API_KEY")
	v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")
	v.BindEnv("notify.webhook_url", "NOTIFY_WEBHOOK_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
