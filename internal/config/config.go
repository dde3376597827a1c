package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the service configuration. Values come from an optional YAML file
// and are then overridden by environment variables.
type Config struct {
	Port        string `yaml:"port"`
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"logLevel"`
	DatabaseURL string `yaml:"databaseURL"`
	DebugRoutes bool   `yaml:"debugRoutes"`

	JWTSecret   string        `yaml:"jwtSecret"`
	JWTIssuer   string        `yaml:"jwtIssuer"`
	JWTAudience string        `yaml:"jwtAudience"`
	JWTLeeway   time.Duration `yaml:"jwtLeeway"`
	AuthTimeout time.Duration `yaml:"authTimeout"`

	AMQPURL      string `yaml:"amqpURL"`
	AMQPExchange string `yaml:"amqpExchange"`

	RedisAddr                 string `yaml:"redisAddr"`
	RedisPassword             string `yaml:"redisPassword"`
	SendRateLimitPerMinute    int    `yaml:"sendRateLimitPerMinute"`
	ConnectRateLimitPerMinute int    `yaml:"connectRateLimitPerMinute"`

	Media MediaConfig `yaml:"media"`

	OTLPEndpoint string `yaml:"otlpEndpoint"`
}

type MediaConfig struct {
	Endpoint     string   `yaml:"endpoint"`
	AccessKey    string   `yaml:"accessKey"`
	SecretKey    string   `yaml:"secretKey"`
	Bucket       string   `yaml:"bucket"`
	UseSSL       bool     `yaml:"useSSL"`
	PublicURL    string   `yaml:"publicURL"`
	MaxBytes     int64    `yaml:"maxBytes"`
	AllowedTypes []string `yaml:"allowedTypes"`
}

// Enabled reports whether an object store is configured.
func (m MediaConfig) Enabled() bool {
	return m.Endpoint != "" && m.Bucket != ""
}

func defaults() Config {
	return Config{
		Port:                      "8083",
		Environment:               "local",
		LogLevel:                  "info",
		JWTLeeway:                 30 * time.Second,
		AuthTimeout:               5 * time.Second,
		AMQPExchange:              "chat.events",
		SendRateLimitPerMinute:    60,
		ConnectRateLimitPerMinute: 30,
		Media: MediaConfig{
			Bucket:       "chat-attachments",
			MaxBytes:     10 << 20,
			AllowedTypes: []string{"image/*", "video/*", "audio/*", "application/pdf"},
		},
	}
}

// Load reads path if it is set and exists, then applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return cfg, fmt.Errorf("read config: %w", err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Port, "PORT")
	setString(&cfg.Environment, "ENVIRONMENT")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.DatabaseURL, "DB_DSN")
	setString(&cfg.JWTSecret, "JWT_SECRET")
	setString(&cfg.JWTIssuer, "JWT_ISSUER")
	setString(&cfg.JWTAudience, "JWT_AUDIENCE")
	setString(&cfg.AMQPURL, "AMQP_URL")
	setString(&cfg.AMQPExchange, "AMQP_EXCHANGE")
	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.RedisPassword, "REDIS_PASSWORD")
	setString(&cfg.Media.Endpoint, "MEDIA_ENDPOINT")
	setString(&cfg.Media.AccessKey, "MEDIA_ACCESS_KEY")
	setString(&cfg.Media.SecretKey, "MEDIA_SECRET_KEY")
	setString(&cfg.Media.Bucket, "MEDIA_BUCKET")
	setString(&cfg.Media.PublicURL, "MEDIA_PUBLIC_URL")
	setString(&cfg.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")

	if v := os.Getenv("MEDIA_ALLOWED_TYPES"); v != "" {
		cfg.Media.AllowedTypes = splitList(v)
	}

	var errs []error
	errs = append(errs,
		setDuration(&cfg.JWTLeeway, "JWT_LEEWAY"),
		setDuration(&cfg.AuthTimeout, "AUTH_TIMEOUT"),
		setInt(&cfg.SendRateLimitPerMinute, "SEND_RATE_LIMIT_PER_MINUTE"),
		setInt(&cfg.ConnectRateLimitPerMinute, "CONNECT_RATE_LIMIT_PER_MINUTE"),
		setBool(&cfg.Media.UseSSL, "MEDIA_USE_SSL"),
		setBool(&cfg.DebugRoutes, "DEBUG_ROUTES"),
	)
	if v := os.Getenv("MEDIA_MAX_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: MEDIA_MAX_BYTES: %w", err))
		} else {
			cfg.Media.MaxBytes = n
		}
	}
	return errors.Join(errs...)
}

func validate(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("config: port is required")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DB_DSN)")
	}
	if cfg.JWTSecret == "" {
		return errors.New("config: jwtSecret is required (set in config.yaml or JWT_SECRET)")
	}
	if cfg.AuthTimeout <= 0 {
		return errors.New("config: authTimeout must be positive")
	}
	if cfg.Media.MaxBytes <= 0 {
		return errors.New("config: media.maxBytes must be positive")
	}
	if cfg.Media.Enabled() {
		u, err := url.Parse(cfg.Media.PublicURL)
		if cfg.Media.PublicURL == "" || err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return errors.New("config: media.publicURL must be an absolute http(s) URL when media is enabled (set in config.yaml or MEDIA_PUBLIC_URL)")
		}
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = strings.TrimSpace(v)
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = b
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = d
	return nil
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
