package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	SMTP       SMTPConfig       `mapstructure:"smtp"`
	Scheduling SchedulingConfig `mapstructure:"scheduling"`
	Scoring    ScoringConfig    `mapstructure:"scoring"`
	Analytics  AnalyticsConfig  `mapstructure:"analytics"`
}

type ServerConfig struct {
	Port           int    `mapstructure:"port"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	RateLimitRPS   int    `mapstructure:"rate_limit_rps"`
	RateLimitBurst int    `mapstructure:"rate_limit_burst"`
	LogLevel       string `mapstructure:"log_level"`
	LogPretty      bool   `mapstructure:"log_pretty"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	URL          string `mapstructure:"url"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// SchedulingConfig bounds booking requests and the check-then-write lock.
type SchedulingConfig struct {
	MinDurationMinutes int `mapstructure:"min_duration_minutes"`
	MaxDurationMinutes int `mapstructure:"max_duration_minutes"`
	MinAdvanceMinutes  int `mapstructure:"min_advance_minutes"`
	MaxAdvanceDays     int `mapstructure:"max_advance_days"`
	SlotStepMinutes    int `mapstructure:"slot_step_minutes"`
	LockTTLSeconds     int `mapstructure:"lock_ttl_seconds"`
	DefaultTimezone    string `mapstructure:"default_timezone"`
}

func (c SchedulingConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// ScoringConfig makes the suggestion engine's weights explicit configuration
// rather than hidden constants. Scores are clamped to [0,100] after summing.
type ScoringConfig struct {
	BaseScore           int `mapstructure:"base_score"`
	TimeOfDayMatch      int `mapstructure:"time_of_day_match"`
	SpecializationMatch int `mapstructure:"specialization_match"`
	LowUtilizationMax   int `mapstructure:"low_utilization_max"`
	UrgencyProximityMax int `mapstructure:"urgency_proximity_max"`
	UrgentDecayHours    int `mapstructure:"urgent_decay_hours"`
}

// AnalyticsConfig holds the externally configurable overbooking thresholds.
type AnalyticsConfig struct {
	DailyExcessMedium  int     `mapstructure:"daily_excess_medium"`
	DailyExcessHigh    int     `mapstructure:"daily_excess_high"`
	HourlyExcessMedium int     `mapstructure:"hourly_excess_medium"`
	HourlyExcessHigh   int     `mapstructure:"hourly_excess_high"`
	HighUtilizationPct float64 `mapstructure:"high_utilization_pct"`
	CacheTTLSeconds    int     `mapstructure:"cache_ttl_seconds"`
}

func (c AnalyticsConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.AutomaticEnv()
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.timeout_seconds", 30)
	viper.SetDefault("server.rate_limit_rps", 100)
	viper.SetDefault("server.rate_limit_burst", 200)
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("server.log_pretty", false)

	viper.SetDefault("database.sslmode", "disable")

	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.min_idle_conns", 2)

	viper.SetDefault("scheduling.min_duration_minutes", 15)
	viper.SetDefault("scheduling.max_duration_minutes", 240)
	viper.SetDefault("scheduling.min_advance_minutes", 0)
	viper.SetDefault("scheduling.max_advance_days", 90)
	viper.SetDefault("scheduling.slot_step_minutes", 30)
	viper.SetDefault("scheduling.lock_ttl_seconds", 10)
	viper.SetDefault("scheduling.default_timezone", "UTC")

	viper.SetDefault("scoring.base_score", 50)
	viper.SetDefault("scoring.time_of_day_match", 15)
	viper.SetDefault("scoring.specialization_match", 20)
	viper.SetDefault("scoring.low_utilization_max", 10)
	viper.SetDefault("scoring.urgency_proximity_max", 15)
	viper.SetDefault("scoring.urgent_decay_hours", 48)

	viper.SetDefault("analytics.daily_excess_medium", 2)
	viper.SetDefault("analytics.daily_excess_high", 5)
	viper.SetDefault("analytics.hourly_excess_medium", 1)
	viper.SetDefault("analytics.hourly_excess_high", 3)
	viper.SetDefault("analytics.high_utilization_pct", 90)
	viper.SetDefault("analytics.cache_ttl_seconds", 60)
}
