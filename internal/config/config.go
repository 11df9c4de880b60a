// Package config loads the recognized configuration set (§6) via viper, binding the
// double-underscore environment convention (HYPERLIQUID__SYMBOL, ...) on top of an
// optional config file and hardcoded defaults. Invalid values are rejected at boot by
// Validate.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"hlpulse/internal/errs"
)

// TelegramConfig carries the optional whale-alert notifier settings.
type TelegramConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	BotToken    string `mapstructure:"bot_token"`
	ChatID      int64  `mapstructure:"chat_id"`
	MinPriority string `mapstructure:"min_priority"` // CRITICAL, HIGH, MEDIUM, LOW
}

// RetentionConfig is the per-collection TTL in days (§6 persistent document store).
type RetentionConfig struct {
	TraderPositionsDays int `mapstructure:"trader_positions_days"`
	TraderScoresDays    int `mapstructure:"trader_scores_days"`
	CandlesDays         int `mapstructure:"candles_days"`
	SignalsDays         int `mapstructure:"signals_days"`
	TraderSignalsDays   int `mapstructure:"trader_signals_days"`
	LeaderboardDays     int `mapstructure:"leaderboard_days"`
}

// ROIMultipliers scales raw ROI into score points (§4.2).
type ROIMultipliers struct {
	AllTime float64 `mapstructure:"all_time"`
	Month   float64 `mapstructure:"month"`
	Week    float64 `mapstructure:"week"`
}

// TagThreshold names the account-value cutoff for a single tag.
type TagThreshold struct {
	Threshold float64 `mapstructure:"threshold"`
}

// TagsConfig is the closed tag-threshold vocabulary (§4.2).
type TagsConfig struct {
	Whale TagThreshold `mapstructure:"whale"`
	Large TagThreshold `mapstructure:"large"`
}

// ScoringConfig is the full leaderboard scoring configuration (§4.2, §6).
type ScoringConfig struct {
	ROIMultipliers    ROIMultipliers `mapstructure:"roi_multipliers"`
	Tags              TagsConfig     `mapstructure:"tags"`
	ConsistencyBonus  float64        `mapstructure:"consistency_bonus"`
	MinScore          float64        `mapstructure:"min_score"`
	MaxCount          int            `mapstructure:"max_count"`
	MinAccountValue   float64        `mapstructure:"min_account_value"`
	RequirePositive   []string       `mapstructure:"require_positive"`
	ExcludedAddresses []string       `mapstructure:"excluded_addresses"`
	ExcludedTags      []string       `mapstructure:"excluded_tags"`
}

// DimensionWeights combines the four weighting dimensions into a composite (§4.4).
type DimensionWeights struct {
	Performance float64 `mapstructure:"performance"`
	Size        float64 `mapstructure:"size"`
	Recency     float64 `mapstructure:"recency"`
	Regime      float64 `mapstructure:"regime"`
}

// PerformanceSubWeights combines the six performance sub-metrics (§4.4).
type PerformanceSubWeights struct {
	Sharpe       float64 `mapstructure:"sharpe"`
	Sortino      float64 `mapstructure:"sortino"`
	Consistency  float64 `mapstructure:"consistency"`
	MaxDrawdown  float64 `mapstructure:"max_drawdown"`
	WinRate      float64 `mapstructure:"win_rate"`
	ProfitFactor float64 `mapstructure:"profit_factor"`
}

// WeightingConfig is the full weighting-engine configuration (§4.4, §6).
type WeightingConfig struct {
	DimensionWeights DimensionWeights      `mapstructure:"dimension_weights"`
	PerformanceSub   PerformanceSubWeights `mapstructure:"performance_sub_weights"`
}

// AlertsConfig is the whale-alert detector configuration (§4.6, §6).
type AlertsConfig struct {
	AlphaWhaleThreshold float64 `mapstructure:"alpha_whale_threshold"`
	WhaleThreshold      float64 `mapstructure:"whale_threshold"`
	EliteThreshold      float64 `mapstructure:"elite_threshold"`
	MaxAgeHours         int     `mapstructure:"max_age_hours"`
}

// HTTPConfig is the internal snapshot/health/metrics surface binding (§6).
type HTTPConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// LogConfig controls the root logger (ambient stack).
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config is the single immutable configuration value assembled at boot (§9 design note:
// "Config becomes a single immutable value containing the enumerated options").
type Config struct {
	MongoURL      string `mapstructure:"mongo_url"`
	MongoDatabase string `mapstructure:"mongo_database"`

	RedisURL string `mapstructure:"redis_url"`

	HyperliquidSymbol      string  `mapstructure:"hyperliquid_symbol"`
	HyperliquidTradeMinUSD float64 `mapstructure:"hyperliquid_trade_min_usd"`

	LeaderboardRefreshSeconds int `mapstructure:"leaderboard_refresh_seconds"`
	HealthCheckSeconds        int `mapstructure:"health_check_seconds"`

	Retention RetentionConfig `mapstructure:"retention"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	Weighting WeightingConfig `mapstructure:"weighting"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`

	HTTP     HTTPConfig     `mapstructure:"http"`
	Log      LogConfig      `mapstructure:"log"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// Load builds a Config from an optional file at path (a missing file falls back to
// defaults rather than erroring) overlaid with environment variables using the
// double-underscore nesting convention from §6.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()
	bindEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
				return nil, &errs.ConfigError{Key: path, Err: err}
			}
		}
	}

	var cfg Config
	strict := func(dc *mapstructure.DecoderConfig) { dc.ErrorUnused = true }
	if err := v.Unmarshal(&cfg, strict); err != nil {
		return nil, &errs.ConfigError{Key: "unmarshal", Err: err}
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("hyperliquid_symbol", "BTC")
	v.SetDefault("hyperliquid_trade_min_usd", 0)

	v.SetDefault("leaderboard_refresh_seconds", 3600)
	v.SetDefault("health_check_seconds", 600)

	v.SetDefault("retention.trader_positions_days", 30)
	v.SetDefault("retention.trader_scores_days", 90)
	v.SetDefault("retention.candles_days", 30)
	v.SetDefault("retention.signals_days", 30)
	v.SetDefault("retention.trader_signals_days", 30)
	v.SetDefault("retention.leaderboard_days", 90)

	v.SetDefault("scoring.roi_multipliers.all_time", 30)
	v.SetDefault("scoring.roi_multipliers.month", 50)
	v.SetDefault("scoring.roi_multipliers.week", 100)
	v.SetDefault("scoring.tags.whale.threshold", 10_000_000)
	v.SetDefault("scoring.tags.large.threshold", 1_000_000)
	v.SetDefault("scoring.consistency_bonus", 5)
	v.SetDefault("scoring.min_score", 50)
	v.SetDefault("scoring.max_count", 500)
	v.SetDefault("scoring.min_account_value", 0)

	v.SetDefault("weighting.dimension_weights.performance", 0.40)
	v.SetDefault("weighting.dimension_weights.size", 0.30)
	v.SetDefault("weighting.dimension_weights.recency", 0.20)
	v.SetDefault("weighting.dimension_weights.regime", 0.10)
	v.SetDefault("weighting.performance_sub_weights.sharpe", 0.25)
	v.SetDefault("weighting.performance_sub_weights.sortino", 0.20)
	v.SetDefault("weighting.performance_sub_weights.consistency", 0.20)
	v.SetDefault("weighting.performance_sub_weights.max_drawdown", 0.15)
	v.SetDefault("weighting.performance_sub_weights.win_rate", 0.10)
	v.SetDefault("weighting.performance_sub_weights.profit_factor", 0.10)

	v.SetDefault("alerts.alpha_whale_threshold", 20_000_000)
	v.SetDefault("alerts.whale_threshold", 10_000_000)
	v.SetDefault("alerts.elite_threshold", 80)
	v.SetDefault("alerts.max_age_hours", 24)

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8090)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.min_priority", "HIGH")
}

func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("hyperliquid_symbol", "HYPERLIQUID__SYMBOL")
	_ = v.BindEnv("mongo_url", "MONGO__URL")
	_ = v.BindEnv("mongo_database", "MONGO__DATABASE")
	_ = v.BindEnv("redis_url", "REDIS__URL")
	_ = v.BindEnv("http.host", "API_HOST")
	_ = v.BindEnv("http.port", "API_PORT")
	_ = v.BindEnv("log.level", "LOG_LEVEL")
	_ = v.BindEnv("telegram.bot_token", "TELEGRAM__BOT_TOKEN")
	_ = v.BindEnv("telegram.chat_id", "TELEGRAM__CHAT_ID")
	_ = v.BindEnv("retention.trader_positions_days", "RETENTION__TRADER_POSITIONS_DAYS")
}

// Validate rejects configuration states that would put the process in an
// unrunnable state; a ConfigError here aborts the process per §7.
func Validate(cfg *Config) error {
	if cfg.HyperliquidSymbol == "" {
		return &errs.ConfigError{Key: "hyperliquid_symbol", Err: fmt.Errorf("must not be empty")}
	}
	if cfg.Scoring.MaxCount <= 0 {
		return &errs.ConfigError{Key: "scoring.max_count", Err: fmt.Errorf("must be positive")}
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return &errs.ConfigError{Key: "http.port", Err: fmt.Errorf("out of range: %d", cfg.HTTP.Port)}
	}
	sum := cfg.Weighting.DimensionWeights.Performance + cfg.Weighting.DimensionWeights.Size +
		cfg.Weighting.DimensionWeights.Recency + cfg.Weighting.DimensionWeights.Regime
	if sum < 0.99 || sum > 1.01 {
		return &errs.ConfigError{Key: "weighting.dimension_weights", Err: fmt.Errorf("must sum to 1.0, got %f", sum)}
	}
	return nil
}
