/**
 * @description
 * Configuration for the staff portal backend. Values come from environment
 * variables (optionally seeded from a .env file) through viper.
 *
 * @dependencies
 * - github.com/spf13/viper
 */
package config

import (
	"errors"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	ServerPort  string `mapstructure:"SERVER_PORT"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`

	RedisURL    string `mapstructure:"REDIS_URL"`
	RedisPrefix string `mapstructure:"REDIS_KEY_PREFIX"`

	RabbitMQURL     string        `mapstructure:"RABBITMQ_URL"`
	EventsExchange  string        `mapstructure:"EVENTS_EXCHANGE"`
	ApprovalQueue   string        `mapstructure:"APPROVAL_QUEUE"`
	OutboxRetention time.Duration `mapstructure:"OUTBOX_RETENTION"`

	JWTSecret          string        `mapstructure:"JWT_SECRET"`
	SessionTTL         time.Duration `mapstructure:"SESSION_TTL"`
	SessionLoadTimeout time.Duration `mapstructure:"SESSION_LOAD_TIMEOUT"`

	OTPTTL         time.Duration `mapstructure:"OTP_TTL"`
	OTPMaxAttempts int           `mapstructure:"OTP_MAX_ATTEMPTS"`
	OTPRateLimit   int           `mapstructure:"OTP_RATE_LIMIT"`
	OTPRateWindow  time.Duration `mapstructure:"OTP_RATE_WINDOW"`
	OTPDevCode     string        `mapstructure:"OTP_DEV_CODE"`

	AuthIPRateLimit  int           `mapstructure:"AUTH_IP_RATE_LIMIT"`
	AuthIPRateWindow time.Duration `mapstructure:"AUTH_IP_RATE_WINDOW"`

	SMSGatewayURL    string `mapstructure:"SMS_GATEWAY_URL"`
	SMSGatewayAPIKey string `mapstructure:"SMS_GATEWAY_API_KEY"`
	SMSSenderID      string `mapstructure:"SMS_SENDER_ID"`

	RangeMaxDays       int    `mapstructure:"RANGE_MAX_DAYS"`
	EnableSampleRoutes bool   `mapstructure:"ENABLE_SAMPLE_ROUTES"`
	Timezone           string `mapstructure:"TIMEZONE"`

	SyncOngoingJobsSchedule  string `mapstructure:"SYNC_ONGOING_JOBS_SCHEDULE"`
	ReportOpenShiftsSchedule string `mapstructure:"REPORT_OPEN_SHIFTS_SCHEDULE"`
	PruneOutboxSchedule      string `mapstructure:"PRUNE_OUTBOX_SCHEDULE"`
}

var configKeys = []string{
	"SERVER_PORT",
	"DATABASE_URL",
	"DB_MAX_CONNS",
	"DB_MIN_CONNS",
	"LOG_LEVEL",
	"REDIS_URL",
	"REDIS_KEY_PREFIX",
	"RABBITMQ_URL",
	"EVENTS_EXCHANGE",
	"APPROVAL_QUEUE",
	"OUTBOX_RETENTION",
	"JWT_SECRET",
	"SESSION_TTL",
	"SESSION_LOAD_TIMEOUT",
	"OTP_TTL",
	"OTP_MAX_ATTEMPTS",
	"OTP_RATE_LIMIT",
	"OTP_RATE_WINDOW",
	"OTP_DEV_CODE",
	"AUTH_IP_RATE_LIMIT",
	"AUTH_IP_RATE_WINDOW",
	"SMS_GATEWAY_URL",
	"SMS_GATEWAY_API_KEY",
	"SMS_SENDER_ID",
	"RANGE_MAX_DAYS",
	"ENABLE_SAMPLE_ROUTES",
	"TIMEZONE",
	"SYNC_ONGOING_JOBS_SCHEDULE",
	"REPORT_OPEN_SHIFTS_SCHEDULE",
	"PRUNE_OUTBOX_SCHEDULE",
}

// LoadConfig reads configuration from the environment and an optional .env file in path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("DB_MAX_CONNS", 10)
	viper.SetDefault("DB_MIN_CONNS", 2)
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	viper.SetDefault("REDIS_KEY_PREFIX", "zense")
	viper.SetDefault("EVENTS_EXCHANGE", "staff_events")
	viper.SetDefault("APPROVAL_QUEUE", "staff_portal.approvals")
	viper.SetDefault("OUTBOX_RETENTION", "168h")
	viper.SetDefault("SESSION_TTL", "168h")
	viper.SetDefault("SESSION_LOAD_TIMEOUT", "5s")
	viper.SetDefault("OTP_TTL", "5m")
	viper.SetDefault("OTP_MAX_ATTEMPTS", 5)
	viper.SetDefault("OTP_RATE_LIMIT", 5)
	viper.SetDefault("OTP_RATE_WINDOW", "15m")
	viper.SetDefault("AUTH_IP_RATE_LIMIT", 30)
	viper.SetDefault("AUTH_IP_RATE_WINDOW", "1m")
	viper.SetDefault("SMS_SENDER_ID", "ZENSE")
	viper.SetDefault("RANGE_MAX_DAYS", 93)
	viper.SetDefault("ENABLE_SAMPLE_ROUTES", false)
	viper.SetDefault("TIMEZONE", "Asia/Kolkata")
	viper.SetDefault("SYNC_ONGOING_JOBS_SCHEDULE", "*/5 * * * *")
	viper.SetDefault("REPORT_OPEN_SHIFTS_SCHEDULE", "30 0 * * *") // 00:30 daily
	viper.SetDefault("PRUNE_OUTBOX_SCHEDULE", "0 3 * * *")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	for _, key := range configKeys {
		_ = viper.BindEnv(key)
	}

	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
		err = nil
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	// Platform-provided PORT wins over SERVER_PORT.
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.RedisPrefix = strings.TrimSuffix(strings.TrimSpace(config.RedisPrefix), ":")
	if config.RedisPrefix == "" {
		config.RedisPrefix = "zense"
	}
	if config.RangeMaxDays <= 0 {
		config.RangeMaxDays = 93
	}
	if config.OTPMaxAttempts <= 0 {
		config.OTPMaxAttempts = 5
	}

	if strings.TrimSpace(config.DatabaseURL) == "" {
		return config, errors.New("DATABASE_URL is required")
	}
	if strings.TrimSpace(config.JWTSecret) == "" {
		return config, errors.New("JWT_SECRET is required")
	}
	if len(config.JWTSecret) < 32 {
		return config, errors.New("JWT_SECRET must be at least 32 characters")
	}

	return config, nil
}
