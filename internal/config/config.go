/**
 * @description
 * This package handles the configuration management for the payout-service. It
 * uses the Viper library to read configuration from environment variables (with
 * an optional .env file), providing a centralized way to manage application
 * settings.
 *
 * Transfer-rule thresholds and challenge parameters are configuration with
 * sane defaults rather than hardcoded constants, so the policy can be tuned
 * per deployment without a rebuild.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the payout-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort           string `mapstructure:"SERVER_PORT"`
	DatabaseURL          string `mapstructure:"DATABASE_URL"`
	RedisURL             string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL          string `mapstructure:"RABBITMQ_URL"`
	PayoutEventQueue     string `mapstructure:"PAYOUT_EVENT_QUEUE"`
	PayoutEventExchange  string `mapstructure:"PAYOUT_EVENT_EXCHANGE"`
	GatewayBaseURL       string `mapstructure:"GATEWAY_BASE_URL"`
	NotifierBaseURL      string `mapstructure:"NOTIFIER_BASE_URL"`
	NotifierAPIKey       string `mapstructure:"NOTIFIER_API_KEY"`
	JWKSURL              string `mapstructure:"JWKS_URL"`

	// Transfer rule thresholds, in paise.
	IMPSCeiling int64 `mapstructure:"IMPS_CEILING"`
	UPICeiling  int64 `mapstructure:"UPI_CEILING"`
	RTGSFloor   int64 `mapstructure:"RTGS_FLOOR"`

	// Step-up challenge parameters.
	ChallengeTTLSeconds      int    `mapstructure:"CHALLENGE_TTL_SECONDS"`
	ChallengeMaxAttempts     int    `mapstructure:"CHALLENGE_MAX_ATTEMPTS"`
	ChallengeRateLimitPerMin int    `mapstructure:"CHALLENGE_RATE_LIMIT_PER_MINUTE"`
	GatewayTimeoutSeconds    int    `mapstructure:"GATEWAY_TIMEOUT_SECONDS"`
	ReconciliationPageSize   int    `mapstructure:"RECONCILIATION_PAGE_SIZE"`
	DailySyncCronSpec        string `mapstructure:"DAILY_SYNC_CRON"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "payouts:rate_limit")
	viper.SetDefault("PAYOUT_EVENT_QUEUE", "payout_service.payout_updates")
	viper.SetDefault("PAYOUT_EVENT_EXCHANGE", "payouts.events")
	viper.SetDefault("IMPS_CEILING", 500000)
	viper.SetDefault("UPI_CEILING", 100000)
	viper.SetDefault("RTGS_FLOOR", 200000)
	viper.SetDefault("CHALLENGE_TTL_SECONDS", 300)
	viper.SetDefault("CHALLENGE_MAX_ATTEMPTS", 3)
	viper.SetDefault("CHALLENGE_RATE_LIMIT_PER_MINUTE", 5)
	viper.SetDefault("GATEWAY_TIMEOUT_SECONDS", 30)
	viper.SetDefault("RECONCILIATION_PAGE_SIZE", 100)
	viper.SetDefault("DAILY_SYNC_CRON", "0 0 * * *")

	// Bind environment variables explicitly to ensure they appear in Unmarshal.
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("PAYOUT_EVENT_QUEUE")
	_ = viper.BindEnv("PAYOUT_EVENT_EXCHANGE")
	_ = viper.BindEnv("GATEWAY_BASE_URL")
	_ = viper.BindEnv("NOTIFIER_BASE_URL")
	_ = viper.BindEnv("NOTIFIER_API_KEY")
	_ = viper.BindEnv("JWKS_URL")
	_ = viper.BindEnv("IMPS_CEILING")
	_ = viper.BindEnv("UPI_CEILING")
	_ = viper.BindEnv("RTGS_FLOOR")
	_ = viper.BindEnv("CHALLENGE_TTL_SECONDS")
	_ = viper.BindEnv("CHALLENGE_MAX_ATTEMPTS")
	_ = viper.BindEnv("CHALLENGE_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("GATEWAY_TIMEOUT_SECONDS")
	_ = viper.BindEnv("RECONCILIATION_PAGE_SIZE")
	_ = viper.BindEnv("DAILY_SYNC_CRON")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	// Thresholds must stay positive; a misconfigured zero would reject every
	// IMPS/UPI payout or wave every RTGS payout through.
	if config.IMPSCeiling <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive IMPS ceiling; using default\" value=%d", config.IMPSCeiling)
		config.IMPSCeiling = 500000
	}
	if config.UPICeiling <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive UPI ceiling; using default\" value=%d", config.UPICeiling)
		config.UPICeiling = 100000
	}
	if config.RTGSFloor <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive RTGS floor; using default\" value=%d", config.RTGSFloor)
		config.RTGSFloor = 200000
	}
	if config.ChallengeTTLSeconds <= 0 {
		config.ChallengeTTLSeconds = 300
	}
	if config.ChallengeMaxAttempts <= 0 {
		config.ChallengeMaxAttempts = 3
	}
	if config.GatewayTimeoutSeconds <= 0 {
		config.GatewayTimeoutSeconds = 30
	}
	if config.ReconciliationPageSize <= 0 {
		config.ReconciliationPageSize = 100
	}
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "payouts:rate_limit"
	}

	return
}
