package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Kraken    Kraken    `mapstructure:"kraken"`
	Trading   Trading   `mapstructure:"trading"`
	Risk      Risk      `mapstructure:"risk"`
	Sentiment Sentiment `mapstructure:"sentiment"`
	Assets    Assets    `mapstructure:"assets"`
	BotA      BotA      `mapstructure:"bot_a"`
	BotB      BotB      `mapstructure:"bot_b"`
	Schedule  Schedule  `mapstructure:"schedule"`
	Logger    Logger    `mapstructure:"logger"`
	Server    Server    `mapstructure:"server"`
	Database  Database  `mapstructure:"database"`
}

// Kraken holds the configuration for the Kraken API.
type Kraken struct {
	ApiKey         string  `mapstructure:"apiKey"`
	SecretKey      string  `mapstructure:"secretKey"` // base64-encoded
	BaseURL        string  `mapstructure:"base_url"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
	CacheTTL       int     `mapstructure:"cache_ttl"` // seconds
}

// Trading holds the global trading flags and order constraints.
type Trading struct {
	MockMode             bool    `mapstructure:"mock_mode"`
	RealTradingEnabled   bool    `mapstructure:"real_trading_enabled"`
	ConfirmationRequired bool    `mapstructure:"confirmation_required"`
	EmergencyStop        bool    `mapstructure:"emergency_stop"`
	Pair                 string  `mapstructure:"pair"`
	EthPair              string  `mapstructure:"eth_pair"`
	MinOrderVolume       float64 `mapstructure:"min_order_volume"`
	FeeRate              float64 `mapstructure:"fee_rate"`
}

// Risk holds the ceilings consulted by the risk gate.
type Risk struct {
	MaxPositionUSD    float64 `mapstructure:"max_position_usd"`
	BotADailyLossUSD  float64 `mapstructure:"bot_a_daily_loss_usd"`
	BotBDailyLossUSD  float64 `mapstructure:"bot_b_daily_loss_usd"`
	BotAMaxPositions  int     `mapstructure:"bot_a_max_positions"`
	BotBMaxPositions  int     `mapstructure:"bot_b_max_positions"`
	MinConfidence     float64 `mapstructure:"min_confidence"`
	BotBMinConfidence float64 `mapstructure:"bot_b_min_confidence"`
}

// Sentiment holds the configuration for the fear & greed reader.
type Sentiment struct {
	ApiURL           string  `mapstructure:"api_url"`
	FetchIntervalMin int     `mapstructure:"fetch_interval_min"`
	RetentionRows    int     `mapstructure:"retention_rows"`
	TrendPair        string  `mapstructure:"trend_pair"`
	EmaPeriod        int     `mapstructure:"ema_period"`
	TrendDeadbandPct float64 `mapstructure:"trend_deadband_pct"`
}

// Assets maps display assets to the broker currency codes that may hold
// their balance, in resolution priority order. The broker reports the same
// asset under several historical spellings; the first present, non-zero
// code wins.
type Assets struct {
	USD []string `mapstructure:"usd"`
	BTC []string `mapstructure:"btc"`
	ETH []string `mapstructure:"eth"`
}

// BotA holds the parameters for the aggressive cycling strategy.
type BotA struct {
	StartBalance     float64 `mapstructure:"start_balance"`
	CycleTarget      float64 `mapstructure:"cycle_target"`
	TargetMultiplier float64 `mapstructure:"target_multiplier"`
	MinConfidence    float64 `mapstructure:"min_confidence"`
	TradeFraction    float64 `mapstructure:"trade_fraction"`
}

// BotB holds the parameters for the conservative donation strategy.
type BotB struct {
	StartBalance  float64 `mapstructure:"start_balance"`
	MinConfidence float64 `mapstructure:"min_confidence"`
	TradeFraction float64 `mapstructure:"trade_fraction"`
	DonationRate  float64 `mapstructure:"donation_rate"`
}

// Schedule holds the cron expressions for strategy ticks and maintenance
// jobs. Expressions include a seconds field.
type Schedule struct {
	BotACron        string `mapstructure:"bot_a"`
	BotBCron        string `mapstructure:"bot_b"`
	DailySnapshot   string `mapstructure:"daily_snapshot"`
	WeeklySnapshot  string `mapstructure:"weekly_snapshot"`
	MonthlySnapshot string `mapstructure:"monthly_snapshot"`
	MonthlyReport   string `mapstructure:"monthly_report"`
	SentimentTrim   string `mapstructure:"sentiment_trim"`
}

// Server holds the configuration for the HTTP API server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}

func setDefaults() {
	viper.SetDefault("kraken.base_url", "https://api.kraken.com")
	viper.SetDefault("kraken.rate_limit", 1) // public requests per second
	viper.SetDefault("kraken.rate_limit_burst", 3)
	viper.SetDefault("kraken.cache_ttl", 15)

	viper.SetDefault("trading.mock_mode", true)
	viper.SetDefault("trading.real_trading_enabled", false)
	viper.SetDefault("trading.confirmation_required", true)
	viper.SetDefault("trading.emergency_stop", false)
	viper.SetDefault("trading.pair", "XXBTZUSD")
	viper.SetDefault("trading.eth_pair", "XETHZUSD")
	viper.SetDefault("trading.min_order_volume", 0.0001)
	viper.SetDefault("trading.fee_rate", 0.0026)

	viper.SetDefault("risk.max_position_usd", 100)
	viper.SetDefault("risk.bot_a_daily_loss_usd", 25)
	viper.SetDefault("risk.bot_b_daily_loss_usd", 10)
	viper.SetDefault("risk.bot_a_max_positions", 3)
	viper.SetDefault("risk.bot_b_max_positions", 1)
	viper.SetDefault("risk.min_confidence", 0.3)
	viper.SetDefault("risk.bot_b_min_confidence", 0.7)

	viper.SetDefault("sentiment.api_url", "https://api.alternative.me/fng/")
	viper.SetDefault("sentiment.fetch_interval_min", 15)
	viper.SetDefault("sentiment.retention_rows", 1000)
	viper.SetDefault("sentiment.trend_pair", "XXBTZUSD")
	viper.SetDefault("sentiment.ema_period", 200)
	viper.SetDefault("sentiment.trend_deadband_pct", 2.0)

	viper.SetDefault("assets.usd", []string{"ZUSD", "USD"})
	viper.SetDefault("assets.btc", []string{"XXBT", "XBT", "BTC"})
	viper.SetDefault("assets.eth", []string{"XETH", "ETH"})

	viper.SetDefault("bot_a.start_balance", 100)
	viper.SetDefault("bot_a.cycle_target", 150)
	viper.SetDefault("bot_a.target_multiplier", 1.5)
	viper.SetDefault("bot_a.min_confidence", 0.6)
	viper.SetDefault("bot_a.trade_fraction", 0.5)

	viper.SetDefault("bot_b.start_balance", 100)
	viper.SetDefault("bot_b.min_confidence", 0.7)
	viper.SetDefault("bot_b.trade_fraction", 0.1)
	viper.SetDefault("bot_b.donation_rate", 0.5)

	viper.SetDefault("schedule.bot_a", "0 */5 * * * *")
	viper.SetDefault("schedule.bot_b", "0 */15 * * * *")
	viper.SetDefault("schedule.daily_snapshot", "0 0 0 * * *")
	viper.SetDefault("schedule.weekly_snapshot", "0 1 0 * * 1")
	viper.SetDefault("schedule.monthly_snapshot", "0 2 0 1 * *")
	viper.SetDefault("schedule.monthly_report", "0 5 0 1 * *")
	viper.SetDefault("schedule.sentiment_trim", "0 30 3 * * *")

	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.format", "console")

	viper.SetDefault("server.port", 8080)

	viper.SetDefault("database.dsn", "charitybot.db")
}
