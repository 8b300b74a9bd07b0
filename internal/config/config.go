package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config holds all configuration for the server
type Config struct {
	Port           string
	MongoURI       string
	DBName         string
	JWTSecret      string
	TokenExpiry    time.Duration
	AllowedOrigins []string
	LogLevel       string
	Timezone       string

	RateLimitPerMinute int

	Redis       RedisConfig
	Kafka       KafkaConfig
	Storage     StorageConfig
	Credentials CredentialsConfig
	GitHub      GitHubConfig
	SMTP        SMTPConfig
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

// StorageConfig selects where generated report documents live.
type StorageConfig struct {
	Type       string // "local" or "s3"
	ReportsDir string
	S3         S3Config
}

type S3Config struct {
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	Endpoint  string
}

type CredentialsConfig struct {
	Dir string
	Key string
}

type GitHubConfig struct {
	WebhookSecret string
	MockMode      bool
}

type SMTPConfig struct {
	Host     string
	Port     string
	Sender   string
	Password string
}

// LoadConfig reads an optional .env file, then the environment.
func LoadConfig(envFile string) (*Config, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, errors.Wrap(err, "failed to load env file")
			}
		}
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		Port:               v.GetString("PORT"),
		MongoURI:           v.GetString("MONGO_URI"),
		DBName:             v.GetString("MONGO_DB_NAME"),
		JWTSecret:          v.GetString("JWT_SECRET"),
		TokenExpiry:        v.GetDuration("TOKEN_EXPIRY"),
		AllowedOrigins:     splitList(v.GetString("ALLOWED_ORIGINS")),
		LogLevel:           v.GetString("LOG_LEVEL"),
		Timezone:           v.GetString("SCHEDULER_TIMEZONE"),
		RateLimitPerMinute: v.GetInt("RATE_LIMIT_PER_MINUTE"),
		Redis: RedisConfig{
			Enabled:  v.GetBool("REDIS_ENABLED"),
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Kafka: KafkaConfig{
			Enabled: v.GetBool("KAFKA_ENABLED"),
			Brokers: splitList(v.GetString("KAFKA_BROKERS")),
			Topic:   v.GetString("KAFKA_TOPIC"),
		},
		Storage: StorageConfig{
			Type:       strings.ToLower(v.GetString("STORAGE_TYPE")),
			ReportsDir: v.GetString("REPORTS_DIR"),
			S3: S3Config{
				Bucket:    v.GetString("S3_BUCKET"),
				Region:    v.GetString("S3_REGION"),
				AccessKey: v.GetString("S3_ACCESS_KEY"),
				SecretKey: v.GetString("S3_SECRET_KEY"),
				Endpoint:  v.GetString("S3_ENDPOINT"),
			},
		},
		Credentials: CredentialsConfig{
			Dir: v.GetString("CREDENTIALS_DIR"),
			Key: v.GetString("CREDENTIALS_KEY"),
		},
		GitHub: GitHubConfig{
			WebhookSecret: v.GetString("GITHUB_WEBHOOK_SECRET"),
			MockMode:      v.GetBool("INTEGRATIONS_MOCK_MODE"),
		},
		SMTP: SMTPConfig{
			Host:     v.GetString("SMTP_HOST"),
			Port:     v.GetString("SMTP_PORT"),
			Sender:   v.GetString("SMTP_SENDER"),
			Password: v.GetString("SMTP_PASSWORD"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DB_NAME", "synergysphere")
	v.SetDefault("TOKEN_EXPIRY", "168h")
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:3000")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SCHEDULER_TIMEZONE", "UTC")
	v.SetDefault("RATE_LIMIT_PER_MINUTE", 300)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("KAFKA_ENABLED", false)
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_TOPIC", "synergysphere.events")

	v.SetDefault("STORAGE_TYPE", "local")
	v.SetDefault("REPORTS_DIR", "./reports")
	v.SetDefault("S3_REGION", "us-east-1")

	v.SetDefault("CREDENTIALS_DIR", "./.credentials")

	v.SetDefault("INTEGRATIONS_MOCK_MODE", false)
	v.SetDefault("SMTP_PORT", "587")
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET must be set")
	}
	if c.TokenExpiry <= 0 {
		return errors.New("TOKEN_EXPIRY must be a positive duration")
	}
	switch c.Storage.Type {
	case "local":
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return errors.New("S3_BUCKET must be set when STORAGE_TYPE is s3")
		}
	default:
		return errors.Errorf("unknown STORAGE_TYPE %q", c.Storage.Type)
	}
	if c.Credentials.Key == "" {
		c.Credentials.Key = c.JWTSecret
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return errors.Wrap(err, "invalid SCHEDULER_TIMEZONE")
	}
	return nil
}

// Location returns the scheduler time zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
