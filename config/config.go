// Package config handles loading and validation of application configuration
// from environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/firstnattapon/24wash-backend/logger"
	"github.com/spf13/viper"
)

// Environment represents the application's running environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	Environment Environment `mapstructure:"ENVIRONMENT" yaml:"environment"`
	Port        string      `mapstructure:"PORT" yaml:"port"`
	Version     string      `mapstructure:"VERSION" yaml:"version"`
}

// RedisConfig holds connection details for the coupon store and the machine
// command queue.
type RedisConfig struct {
	Address        string `mapstructure:"ADDRESS" yaml:"address"`
	Password       string `mapstructure:"PASSWORD" yaml:"password"`
	DB             int    `mapstructure:"DB" yaml:"db"`
	UseTLS         bool   `mapstructure:"USE_TLS" yaml:"use_tls"`
	PoolSize       int    `mapstructure:"POOL_SIZE" yaml:"pool_size"`
	MinIdleConns   int    `mapstructure:"MIN_IDLE_CONNS" yaml:"min_idle_conns"`
	TimeoutSeconds int    `mapstructure:"TIMEOUT_SECONDS" yaml:"timeout_seconds"`
}

// DatabaseConfig holds PostgreSQL connection details for the decision audit
// trail. The audit store is optional; the engine runs without it.
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"ENABLED" yaml:"enabled"`
	Host     string `mapstructure:"HOST" yaml:"host"`
	Port     int    `mapstructure:"PORT" yaml:"port"`
	User     string `mapstructure:"USER" yaml:"user"`
	Password string `mapstructure:"PASSWORD" yaml:"password"`
	Name     string `mapstructure:"NAME" yaml:"name"`
	SSLMode  string `mapstructure:"SSL_MODE" yaml:"ssl_mode"`
}

// ConnString returns a key-value pgx connection string.
func (c *DatabaseConfig) ConnString() string {
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, sslmode)
}

// SlipOKConfig holds credentials for the primary slip-verification service.
type SlipOKConfig struct {
	BranchID       string `mapstructure:"BRANCH_ID" yaml:"branch_id"`
	APIKey         string `mapstructure:"API_KEY" yaml:"api_key"`
	BaseURL        string `mapstructure:"BASE_URL" yaml:"base_url"`
	TimeoutSeconds int    `mapstructure:"TIMEOUT_SECONDS" yaml:"timeout_seconds"`
	// BypassCodes are verifier failure codes that still mean "genuine
	// bank-originated slip" (bank outage, post-transfer grace period).
	BypassCodes []int `mapstructure:"BYPASS_CODES" yaml:"bypass_codes"`
}

// VisionConfig holds credentials for the fallback vision-model extractor.
// An empty API key leaves the extractor inert; the pipeline then treats
// every bypass case as a failed extraction.
type VisionConfig struct {
	APIKey         string `mapstructure:"API_KEY" yaml:"api_key"`
	Model          string `mapstructure:"MODEL" yaml:"model"`
	BaseURL        string `mapstructure:"BASE_URL" yaml:"base_url"`
	TimeoutSeconds int    `mapstructure:"TIMEOUT_SECONDS" yaml:"timeout_seconds"`
	MaxDimension   int    `mapstructure:"MAX_DIMENSION" yaml:"max_dimension"`
	JPEGQuality    int    `mapstructure:"JPEG_QUALITY" yaml:"jpeg_quality"`
}

// Enabled reports whether the vision extractor is configured.
func (c *VisionConfig) Enabled() bool {
	return c.APIKey != ""
}

// LineConfig holds credentials for the LINE Messaging API transport.
type LineConfig struct {
	ChannelSecret      string `mapstructure:"CHANNEL_SECRET" yaml:"channel_secret"`
	ChannelAccessToken string `mapstructure:"CHANNEL_ACCESS_TOKEN" yaml:"channel_access_token"`
	APIBaseURL         string `mapstructure:"API_BASE_URL" yaml:"api_base_url"`
	BlobBaseURL        string `mapstructure:"BLOB_BASE_URL" yaml:"blob_base_url"`
}

// AlertConfig holds configuration for operator alert emails, sent on every
// system-error outcome. Optional: alerts are skipped when no key is set.
type AlertConfig struct {
	ResendAPIKey   string `mapstructure:"RESEND_API_KEY" yaml:"resend_api_key"`
	FromAddress    string `mapstructure:"FROM_ADDRESS" yaml:"from_address"`
	FromName       string `mapstructure:"FROM_NAME" yaml:"from_name"`
	OperatorEmail  string `mapstructure:"OPERATOR_EMAIL" yaml:"operator_email"`
	TimeoutSeconds int    `mapstructure:"TIMEOUT_SECONDS" yaml:"timeout_seconds"`
}

// Enabled reports whether operator alerting is configured.
func (c *AlertConfig) Enabled() bool {
	return c.ResendAPIKey != "" && c.OperatorEmail != ""
}

// ChannelsConfig holds the static machine-channel tables. Amounts identify
// machines; keys are decimal string encodings as reported by the verifier.
type ChannelsConfig struct {
	// SlipMapping maps an amount key ("20", "20.0", "30.01") to a machine
	// channel prefix. Integral and fractional encodings of the same value
	// must resolve identically; the resolver handles the collapse.
	SlipMapping map[string]string `mapstructure:"SLIP_MAPPING" yaml:"slip_mapping"`
	// CouponMachines maps a machine selector digit to a full channel path.
	CouponMachines map[string]string `mapstructure:"COUPON_MACHINES" yaml:"coupon_machines"`
	// DefaultPath receives commands when no channel matches and Strict is off.
	DefaultPath string `mapstructure:"DEFAULT_PATH" yaml:"default_path"`
	// Strict makes an unmatched amount a hard amount-mismatch error instead
	// of falling back to DefaultPath.
	Strict bool `mapstructure:"STRICT" yaml:"strict"`
}

// Config aggregates all application configuration sections.
type Config struct {
	Server   ServerConfig   `mapstructure:"SERVER" yaml:"server"`
	Redis    RedisConfig    `mapstructure:"REDIS" yaml:"redis"`
	Database DatabaseConfig `mapstructure:"DATABASE" yaml:"database"`
	SlipOK   SlipOKConfig   `mapstructure:"SLIPOK" yaml:"slipok"`
	Vision   VisionConfig   `mapstructure:"VISION" yaml:"vision"`
	Line     LineConfig     `mapstructure:"LINE" yaml:"line"`
	Alert    AlertConfig    `mapstructure:"ALERT" yaml:"alert"`
	Channels ChannelsConfig `mapstructure:"CHANNELS" yaml:"channels"`
}

// IsProduction returns true if the application is running in production.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == EnvProduction
}

// bindEnvVars binds multiple environment variables to config keys.
// Format: []{configKey, envVar}
func bindEnvVars(v *viper.Viper, bindings [][2]string) error {
	for _, b := range bindings {
		if err := v.BindEnv(b[0], b[1]); err != nil {
			return fmt.Errorf("failed to bind %s: %w", b[0], err)
		}
	}
	return nil
}

// LoadConfig loads configuration from environment variables using Viper,
// sets default values, unmarshals, and validates.
func LoadConfig() (*Config, error) {
	v := viper.New()
	log := logger.GetLogger()

	v.SetDefault("SERVER.ENVIRONMENT", EnvDevelopment)
	v.SetDefault("SERVER.PORT", "8080")
	v.SetDefault("REDIS.ADDRESS", "localhost:6379")
	v.SetDefault("REDIS.PASSWORD", "")
	v.SetDefault("REDIS.DB", 0)
	v.SetDefault("REDIS.USE_TLS", false)
	v.SetDefault("REDIS.POOL_SIZE", 3)
	v.SetDefault("REDIS.MIN_IDLE_CONNS", 1)
	v.SetDefault("REDIS.TIMEOUT_SECONDS", 5)
	v.SetDefault("DATABASE.ENABLED", false)
	v.SetDefault("DATABASE.HOST", "localhost")
	v.SetDefault("DATABASE.PORT", 5432)
	v.SetDefault("DATABASE.USER", "postgres")
	v.SetDefault("DATABASE.PASSWORD", "")
	v.SetDefault("DATABASE.NAME", "wash_audit")
	v.SetDefault("DATABASE.SSL_MODE", "disable")
	v.SetDefault("SLIPOK.BASE_URL", "https://api.slipok.com/api/line/apikey")
	v.SetDefault("SLIPOK.TIMEOUT_SECONDS", 15)
	// 1009 = temporary bank outage, 1010 = bank requires post-transfer wait.
	// Both mean the slip is genuine.
	v.SetDefault("SLIPOK.BYPASS_CODES", []int{1009, 1010})
	v.SetDefault("VISION.MODEL", "gpt-4o-mini")
	v.SetDefault("VISION.BASE_URL", "https://api.openai.com/v1")
	v.SetDefault("VISION.TIMEOUT_SECONDS", 15)
	v.SetDefault("VISION.MAX_DIMENSION", 1024)
	v.SetDefault("VISION.JPEG_QUALITY", 85)
	v.SetDefault("LINE.API_BASE_URL", "https://api.line.me")
	v.SetDefault("LINE.BLOB_BASE_URL", "https://api-data.line.me")
	v.SetDefault("ALERT.FROM_NAME", "24WASH")
	v.SetDefault("ALERT.TIMEOUT_SECONDS", 10)
	v.SetDefault("CHANNELS.DEFAULT_PATH", "payment_commands")
	v.SetDefault("CHANNELS.STRICT", false)
	v.SetDefault("CHANNELS.SLIP_MAPPING", map[string]string{
		"20":    "20",
		"20.0":  "20",
		"30.01": "301",
		"40":    "40",
		"40.0":  "40",
		"50":    "50",
		"50.0":  "50",
	})
	v.SetDefault("CHANNELS.COUPON_MACHINES", map[string]string{
		"1": "20/payment_commands",
		"2": "302/payment_commands",
		"3": "301/payment_commands",
		"4": "payment_commands",
	})
	v.SetDefault("LOG_LEVEL", "info")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	envBindings := [][2]string{
		{"SERVER.ENVIRONMENT", "SERVER_ENVIRONMENT"},
		{"SERVER.PORT", "PORT"},
		{"REDIS.ADDRESS", "REDIS_ADDRESS"},
		{"REDIS.PASSWORD", "REDIS_PASSWORD"},
		{"REDIS.DB", "REDIS_DB"},
		{"REDIS.USE_TLS", "REDIS_USE_TLS"},
		{"DATABASE.ENABLED", "DB_AUDIT_ENABLED"},
		{"DATABASE.HOST", "DB_HOST"},
		{"DATABASE.PORT", "DB_PORT"},
		{"DATABASE.USER", "DB_USER"},
		{"DATABASE.PASSWORD", "DB_PASSWORD"},
		{"DATABASE.NAME", "DB_NAME"},
		{"DATABASE.SSL_MODE", "DB_SSL_MODE"},
		{"SLIPOK.BRANCH_ID", "SLIPOK_BRANCH_ID"},
		{"SLIPOK.API_KEY", "SLIPOK_API_KEY"},
		{"SLIPOK.BASE_URL", "SLIPOK_BASE_URL"},
		{"VISION.API_KEY", "VISION_API_KEY"},
		{"VISION.MODEL", "VISION_MODEL"},
		{"VISION.BASE_URL", "VISION_BASE_URL"},
		{"LINE.CHANNEL_SECRET", "LINE_CHANNEL_SECRET"},
		{"LINE.CHANNEL_ACCESS_TOKEN", "LINE_CHANNEL_ACCESS_TOKEN"},
		{"ALERT.RESEND_API_KEY", "ALERT_RESEND_API_KEY"},
		{"ALERT.FROM_ADDRESS", "ALERT_FROM_ADDRESS"},
		{"ALERT.OPERATOR_EMAIL", "ALERT_OPERATOR_EMAIL"},
		{"CHANNELS.DEFAULT_PATH", "CHANNELS_DEFAULT_PATH"},
		{"CHANNELS.STRICT", "CHANNELS_STRICT"},
	}

	if err := bindEnvVars(v, envBindings); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal failed: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	log.Infow("Configuration loaded",
		"environment", cfg.Server.Environment,
		"server_port", cfg.Server.Port,
		"redis_address", cfg.Redis.Address,
		"slipok_branch", cfg.SlipOK.BranchID,
		"slipok_key", logger.MaskAPIKey(cfg.SlipOK.APIKey),
		"vision_enabled", cfg.Vision.Enabled(),
		"audit_enabled", cfg.Database.Enabled,
		"alerts_enabled", cfg.Alert.Enabled(),
		"channels_strict", cfg.Channels.Strict,
	)
	return &cfg, nil
}

// validateConfig checks if the loaded configuration values are valid.
func validateConfig(cfg *Config) error {
	log := logger.GetLogger()

	if cfg.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	if cfg.Redis.Address == "" {
		return fmt.Errorf("redis address is required")
	}
	if cfg.Redis.TimeoutSeconds <= 0 {
		return fmt.Errorf("redis timeout must be positive")
	}

	if cfg.SlipOK.BranchID == "" {
		return fmt.Errorf("slipok branch ID is required")
	}
	if cfg.SlipOK.APIKey == "" {
		return fmt.Errorf("slipok API key is required")
	}
	if cfg.SlipOK.TimeoutSeconds <= 0 {
		return fmt.Errorf("slipok timeout must be positive")
	}

	if cfg.Vision.Enabled() {
		if cfg.Vision.MaxDimension <= 0 {
			return fmt.Errorf("vision max dimension must be positive")
		}
		if cfg.Vision.JPEGQuality < 1 || cfg.Vision.JPEGQuality > 100 {
			return fmt.Errorf("vision JPEG quality must be between 1 and 100")
		}
	} else {
		log.Warn("Vision API key is not set; bypass slips will be rejected as system errors")
	}

	if cfg.Line.ChannelSecret == "" || cfg.Line.ChannelAccessToken == "" {
		if cfg.Server.Environment == EnvProduction {
			return fmt.Errorf("LINE channel secret and access token are required in production")
		}
		log.Warn("LINE credentials are not set; webhook signature verification will fail")
	}

	if cfg.Database.Enabled {
		if cfg.Database.Host == "" || cfg.Database.Name == "" {
			return fmt.Errorf("database host and name are required when audit is enabled")
		}
	}

	if cfg.Alert.Enabled() && cfg.Alert.FromAddress == "" {
		return fmt.Errorf("alert from address is required when alerting is enabled")
	}

	if cfg.Channels.DefaultPath == "" && !cfg.Channels.Strict {
		return fmt.Errorf("a default channel path is required unless strict matching is enabled")
	}
	if len(cfg.Channels.SlipMapping) == 0 {
		return fmt.Errorf("at least one slip channel mapping is required")
	}

	return nil
}
