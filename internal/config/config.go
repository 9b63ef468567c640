// File: internal/config/config.go
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	// AppBaseURL is the storefront origin used in renewal links.
	AppBaseURL string `yaml:"app_base_url"`
	// RateLimitPerMinute caps subscribe/renew calls per vendor.
	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type MpesaConfig struct {
	Enabled        bool    `yaml:"enabled"`
	BaseURL        string  `yaml:"base_url"`
	ConsumerKey    string  `yaml:"consumer_key"`
	ConsumerSecret string  `yaml:"consumer_secret"`
	ShortCode      string  `yaml:"short_code"`
	Passkey        string  `yaml:"passkey"`
	CallbackURL    string  `yaml:"callback_url"`
	CallbackToken  string  `yaml:"callback_token"`
	RatePerSecond  float64 `yaml:"rate_per_second"`
	// Timeout bounds every Daraja call.
	Timeout time.Duration `yaml:"timeout"`
}

type CardConfig struct {
	Enabled   bool          `yaml:"enabled"`
	BaseURL   string        `yaml:"base_url"`
	SecretKey string        `yaml:"secret_key"`
	Timeout   time.Duration `yaml:"timeout"`
}

type MailConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type AlertsConfig struct {
	TelegramToken string  `yaml:"telegram_token"`
	AdminChatIDs  []int64 `yaml:"admin_chat_ids"`
}

type SchedulerConfig struct {
	ExpiryCron    string        `yaml:"expiry_cron"`
	RemindersCron string        `yaml:"reminders_cron"`
	RenewalsCron  string        `yaml:"renewals_cron"`
	ReconcileCron string        `yaml:"reconcile_cron"`
	RunTimeout    time.Duration `yaml:"run_timeout"`
	Workers       int           `yaml:"workers"`
}

type LifecycleConfig struct {
	ReminderWindow     time.Duration `yaml:"reminder_window"`
	ReminderThrottle   time.Duration `yaml:"reminder_throttle"`
	RenewalWindow      time.Duration `yaml:"renewal_window"`
	ReconcileAfter     time.Duration `yaml:"reconcile_after"`
	PendingFailAfter   time.Duration `yaml:"pending_fail_after"`
	ReconcileBatchSize int           `yaml:"reconcile_batch_size"`
}

type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key"`
}

type Config struct {
	Log       LogConfig       `yaml:"log"`
	HTTP      HTTPConfig      `yaml:"http"`
	Auth      AuthConfig      `yaml:"auth"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Mpesa     MpesaConfig     `yaml:"mpesa"`
	Card      CardConfig      `yaml:"card"`
	Mail      MailConfig      `yaml:"mail"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Lifecycle LifecycleConfig `yaml:"lifecycle"`
	Security  SecurityConfig  `yaml:"security"`

	Runtime RuntimeConfig `yaml:"-"`
}

// DevJWTSecret signs tokens in dev mode when auth.jwt_secret is unset.
const DevJWTSecret = "dev-only-jwt-secret"

// LoadConfig parses -config, -env and -dev flags and loads the file.
func LoadConfig() (*Config, error) {
	var configPath, envPath string
	var dev bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.StringVar(&envPath, "env", ".env", "optional dotenv file with secrets")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()

	return Load(configPath, envPath, dev)
}

// Load reads the dotenv file (if present) into the environment, expands
// ${VAR} references in the yaml and applies defaults.
func Load(configPath, envPath string, dev bool) (*Config, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env: %w", err)
		}
	}

	b, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Auth.JWTSecret == "" && !dev {
		return nil, errors.New("auth.jwt_secret is required")
	}
	if cfg.Mpesa.Enabled && (cfg.Mpesa.ConsumerKey == "" || cfg.Mpesa.ShortCode == "" || cfg.Mpesa.Passkey == "") {
		return nil, errors.New("mpesa.consumer_key, short_code and passkey are required when mpesa is enabled")
	}

	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = DevJWTSecret
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 30 * time.Second
	}
	if cfg.HTTP.RateLimitPerMinute <= 0 {
		cfg.HTTP.RateLimitPerMinute = 10
	}
	if cfg.Auth.TokenTTL <= 0 {
		cfg.Auth.TokenTTL = 24 * time.Hour
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	if cfg.Mpesa.BaseURL == "" {
		cfg.Mpesa.BaseURL = "https://sandbox.safaricom.co.ke"
	}
	if cfg.Mpesa.RatePerSecond <= 0 {
		cfg.Mpesa.RatePerSecond = 5
	}
	if cfg.Mpesa.Timeout <= 0 {
		cfg.Mpesa.Timeout = 15 * time.Second
	}
	if cfg.Card.Timeout <= 0 {
		cfg.Card.Timeout = 20 * time.Second
	}
	if cfg.Mail.Port == 0 {
		cfg.Mail.Port = 587
	}

	if cfg.Scheduler.ExpiryCron == "" {
		cfg.Scheduler.ExpiryCron = "0 * * * *"
	}
	if cfg.Scheduler.RemindersCron == "" {
		cfg.Scheduler.RemindersCron = "0 9 * * *"
	}
	if cfg.Scheduler.RenewalsCron == "" {
		cfg.Scheduler.RenewalsCron = "0 6 * * *"
	}
	if cfg.Scheduler.ReconcileCron == "" {
		cfg.Scheduler.ReconcileCron = "*/10 * * * *"
	}
	if cfg.Scheduler.RunTimeout <= 0 {
		cfg.Scheduler.RunTimeout = 30 * time.Minute
	}
	if cfg.Scheduler.Workers <= 0 {
		cfg.Scheduler.Workers = 2
	}

	if cfg.Lifecycle.ReminderWindow <= 0 {
		cfg.Lifecycle.ReminderWindow = 7 * 24 * time.Hour
	}
	if cfg.Lifecycle.ReminderThrottle <= 0 {
		cfg.Lifecycle.ReminderThrottle = 24 * time.Hour
	}
	if cfg.Lifecycle.RenewalWindow <= 0 {
		cfg.Lifecycle.RenewalWindow = 3 * 24 * time.Hour
	}
	if cfg.Lifecycle.ReconcileAfter <= 0 {
		cfg.Lifecycle.ReconcileAfter = 5 * time.Minute
	}
	if cfg.Lifecycle.PendingFailAfter <= 0 {
		cfg.Lifecycle.PendingFailAfter = 24 * time.Hour
	}
	if cfg.Lifecycle.ReconcileBatchSize <= 0 {
		cfg.Lifecycle.ReconcileBatchSize = 100
	}
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
