package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const (
	configFilePathENV = "CONFIG_FILE"
	defaultConfigFile = "configs/values_local.yaml"
)

const (
	ModeLive  = "live"
	ModePaper = "paper"
)

// Config ...
type Config struct {
	Service struct {
		Name       string `mapstructure:"name"`
		LogLevel   string `mapstructure:"log_level"`
		HealthAddr string `mapstructure:"health_addr"`
	} `mapstructure:"service"`

	Exchange struct {
		Mode          string  `mapstructure:"mode"` // live | paper
		APIKey        string  `mapstructure:"api_key"`
		APISecret     string  `mapstructure:"api_secret"`
		Testnet       bool    `mapstructure:"testnet"`
		RateLimit     float64 `mapstructure:"rate_limit"` // запросов в секунду
		Burst         int     `mapstructure:"burst"`
		PaperPrice    string  `mapstructure:"paper_price"`
		PaperQuote    string  `mapstructure:"paper_quote"`
		PaperBase     string  `mapstructure:"paper_base"`
		MaxOpenOrders int     `mapstructure:"max_open_orders"`
	} `mapstructure:"exchange"`

	Trading struct {
		Symbol           string        `mapstructure:"symbol"`
		MarginMin        string        `mapstructure:"margin_min"` // множитель цены, 1.002 => +0.2%
		MarginMax        string        `mapstructure:"margin_max"`
		SleepMin         time.Duration `mapstructure:"sleep_min"`
		SleepMax         time.Duration `mapstructure:"sleep_max"`
		BuyCancelTimeout time.Duration `mapstructure:"buy_cancel_timeout"`
		PollInterval     time.Duration `mapstructure:"poll_interval"`
		BackoffMax       time.Duration `mapstructure:"backoff_max"`
		MaxPlaceAttempts int           `mapstructure:"max_place_attempts"`
		SellRemaining    bool          `mapstructure:"sell_remaining"`
	} `mapstructure:"trading"`

	Ladder struct {
		Remainder      string  `mapstructure:"remainder"`   // highest | lowest | spread
		AmountMode     string  `mapstructure:"amount_mode"` // exact | capped
		MaxOrdersRatio float64 `mapstructure:"max_orders_ratio"`
		MergeMinOrders int     `mapstructure:"merge_min_orders"`
	} `mapstructure:"ladder"`

	Journal struct {
		CSVPath string `mapstructure:"csv_path"`
		DSN     string `mapstructure:"dsn"`
	} `mapstructure:"journal"`

	Telegram struct {
		Token  string `mapstructure:"token"`
		ChatID int64  `mapstructure:"chat_id"`
	} `mapstructure:"telegram"`

	Tracing struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
	} `mapstructure:"tracing"`

	Stream struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"stream"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "ladder_bot")
	v.SetDefault("service.log_level", "info")
	v.SetDefault("service.health_addr", ":8080")

	v.SetDefault("exchange.mode", ModePaper)
	v.SetDefault("exchange.testnet", false)
	v.SetDefault("exchange.rate_limit", 10.0)
	v.SetDefault("exchange.burst", 5)
	v.SetDefault("exchange.paper_price", "100")
	v.SetDefault("exchange.paper_quote", "1000")
	v.SetDefault("exchange.paper_base", "0")
	v.SetDefault("exchange.max_open_orders", 200)

	v.SetDefault("trading.symbol", "BTCUSDT")
	v.SetDefault("trading.margin_min", "1.002")
	v.SetDefault("trading.margin_max", "1.01")
	v.SetDefault("trading.sleep_min", "10s")
	v.SetDefault("trading.sleep_max", "10m")
	v.SetDefault("trading.buy_cancel_timeout", "24h")
	v.SetDefault("trading.poll_interval", "2s")
	v.SetDefault("trading.backoff_max", "60s")
	v.SetDefault("trading.max_place_attempts", 2)
	v.SetDefault("trading.sell_remaining", false)

	v.SetDefault("ladder.remainder", "highest")
	v.SetDefault("ladder.amount_mode", "exact")
	v.SetDefault("ladder.max_orders_ratio", 0.8)
	v.SetDefault("ladder.merge_min_orders", 10)

	v.SetDefault("journal.csv_path", "")
	v.SetDefault("journal.dsn", "")

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.chat_id", 0)

	v.SetDefault("tracing.host", "")
	v.SetDefault("tracing.port", 6831)

	v.SetDefault("stream.enabled", false)
}

// NewConfig: .env -> yaml из CONFIG_FILE -> переменные окружения (TRADING_SYMBOL, EXCHANGE_API_KEY, ...).
func NewConfig() (*Config, error) {
	_ = godotenv.Load()

	path := os.Getenv(configFilePathENV)
	if path == "" {
		path = defaultConfigFile
	}
	return Load(path)
}

// Load читает конфиг из path. Отсутствующий файл не ошибка: работают дефолты и окружение.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, statErr := os.Stat(path); statErr == nil {
				return nil, errors.Wrapf(err, "read config %s", path)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Trading.Symbol == "" {
		return errors.New("trading.symbol is required")
	}
	switch c.Exchange.Mode {
	case ModePaper:
	case ModeLive:
		if c.Exchange.APIKey == "" || c.Exchange.APISecret == "" {
			return errors.New("exchange.api_key and exchange.api_secret are required in live mode")
		}
	default:
		return errors.Errorf("exchange.mode %q: want live or paper", c.Exchange.Mode)
	}

	mMin, err := decimal.NewFromString(c.Trading.MarginMin)
	if err != nil {
		return errors.Wrap(err, "trading.margin_min")
	}
	mMax, err := decimal.NewFromString(c.Trading.MarginMax)
	if err != nil {
		return errors.Wrap(err, "trading.margin_max")
	}
	if mMin.LessThan(decimal.NewFromInt(1)) || mMax.LessThan(mMin) {
		return errors.Errorf("trading margins [%s, %s] must satisfy 1 <= min <= max", mMin, mMax)
	}
	if c.Trading.SleepMin <= 0 || c.Trading.SleepMax < c.Trading.SleepMin {
		return errors.Errorf("trading sleep [%s, %s] must satisfy 0 < min <= max", c.Trading.SleepMin, c.Trading.SleepMax)
	}
	if c.Ladder.MaxOrdersRatio <= 0 || c.Ladder.MaxOrdersRatio > 1 {
		return errors.Errorf("ladder.max_orders_ratio %v must be in (0, 1]", c.Ladder.MaxOrdersRatio)
	}
	if c.Exchange.RateLimit <= 0 || c.Exchange.Burst <= 0 {
		return errors.New("exchange.rate_limit and exchange.burst must be positive")
	}
	return nil
}

// Margins возвращает границы наценки. Значения уже проверены в Validate.
func (c *Config) Margins() (decimal.Decimal, decimal.Decimal) {
	return decimal.RequireFromString(c.Trading.MarginMin), decimal.RequireFromString(c.Trading.MarginMax)
}

// OrdersRatio: доля лимита ордеров биржи для лестницы.
func (c *Config) OrdersRatio() decimal.Decimal {
	return decimal.NewFromFloat(c.Ladder.MaxOrdersRatio)
}
