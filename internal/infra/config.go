package infra

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"autobay/internal/domain"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config는 애플리케이션의 모든 설정을 담습니다.
// LoadConfig로 로드된 후에 환경 변수를 통해 민감 내용을 덮어씁니다.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Exchange struct {
		Name              string        `yaml:"name"`
		RestURL           string        `yaml:"rest_url"`
		APIKey            string        `yaml:"api_key"`
		Secret            string        `yaml:"secret"`
		Paper             bool          `yaml:"paper"`
		PaperQuoteBalance string        `yaml:"paper_quote_balance"`
		RequestsPerSecond float64       `yaml:"requests_per_second"`
		RecvWindowMS      int           `yaml:"recv_window_ms"`
		Timeout           time.Duration `yaml:"timeout"`
		AmountPrecision   int32         `yaml:"amount_precision"`
		PricePrecision    int32         `yaml:"price_precision"`
	} `yaml:"exchange"`

	Telegram struct {
		Token       string `yaml:"token"`
		ChatID      int64  `yaml:"chat_id"`
		PollTimeout int    `yaml:"poll_timeout"`
	} `yaml:"telegram"`

	Strategy struct {
		Symbol         string          `yaml:"symbol"`
		OrderSize      decimal.Decimal `yaml:"order_size"`
		ProfitMargin   decimal.Decimal `yaml:"profit_margin"`
		DropThreshold  decimal.Decimal `yaml:"drop_threshold"`
		ReplenishDelay time.Duration   `yaml:"replenish_delay"`
		TickInterval   time.Duration   `yaml:"tick_interval"`
		PriceCacheTTL  time.Duration   `yaml:"price_cache"`
		PollWorkers    int             `yaml:"poll_workers"`
		PollDelay      time.Duration   `yaml:"poll_delay"`
		OrderAttempts  int             `yaml:"order_attempts"`
	} `yaml:"strategy"`

	Backoff struct {
		Base time.Duration `yaml:"base"`
		Max  time.Duration `yaml:"max"`
	} `yaml:"backoff"`

	State struct {
		Backend     string `yaml:"backend"` // "file" or "redis"
		Path        string `yaml:"path"`
		RedisAddr   string `yaml:"redis_addr"`
		RedisKey    string `yaml:"redis_key"`
		JournalPath string `yaml:"journal_path"`
	} `yaml:"state"`

	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`
}

// DefaultConfig returns the configuration used when a value is not set.
func DefaultConfig() *Config {
	var cfg Config
	cfg.App.Name = "autobay"
	cfg.App.Version = "dev"

	cfg.Exchange.Name = "mexc"
	cfg.Exchange.RestURL = "https://api.mexc.com"
	cfg.Exchange.PaperQuoteBalance = "100"
	cfg.Exchange.RequestsPerSecond = 10
	cfg.Exchange.RecvWindowMS = 5000
	cfg.Exchange.Timeout = 10 * time.Second
	cfg.Exchange.AmountPrecision = 2
	cfg.Exchange.PricePrecision = 6

	cfg.Telegram.PollTimeout = 60

	cfg.Strategy.Symbol = "KAS/USDT"
	cfg.Strategy.OrderSize = decimal.NewFromInt(15)
	cfg.Strategy.ProfitMargin = decimal.RequireFromString("0.005")
	cfg.Strategy.DropThreshold = decimal.RequireFromString("0.01")
	cfg.Strategy.ReplenishDelay = 30 * time.Second
	cfg.Strategy.TickInterval = time.Second
	cfg.Strategy.PriceCacheTTL = 5 * time.Second
	cfg.Strategy.PollWorkers = 3
	cfg.Strategy.PollDelay = 200 * time.Millisecond
	cfg.Strategy.OrderAttempts = 3

	cfg.Backoff.Base = 5 * time.Second
	cfg.Backoff.Max = 60 * time.Second

	cfg.State.Backend = "file"
	cfg.State.Path = "bot_state.json"
	cfg.State.RedisAddr = "localhost:6379"
	cfg.State.RedisKey = "autobay:state"
	cfg.State.JournalPath = "data/journal.db"

	cfg.Logging.Level = "info"
	cfg.Logging.Dir = "logs"
	return &cfg
}

// LoadConfig는 설정 파일을 읽고 파싱합니다.
// A missing file is not an error: defaults plus environment are used.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// defaults + env only
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	// 4원칙: 보안 우선 - 환경 변수 오버라이드 지원
	if err := overrideWithEnv(cfg); err != nil {
		return nil, err
	}

	// 5원칙: 설정 유효성 검사
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	// Credentials
	if !c.Exchange.Paper {
		if c.Exchange.APIKey == "" {
			return &domain.ConfigError{Field: "EXCHANGE_API_KEY", Err: errors.New("not set")}
		}
		if c.Exchange.Secret == "" {
			return &domain.ConfigError{Field: "EXCHANGE_SECRET", Err: errors.New("not set")}
		}
	}
	if c.Telegram.Token == "" {
		return &domain.ConfigError{Field: "TELEGRAM_TOKEN", Err: errors.New("not set")}
	}
	if c.Telegram.ChatID == 0 {
		return &domain.ConfigError{Field: "TELEGRAM_CHAT_ID", Err: errors.New("not set")}
	}

	// Strategy
	if _, err := domain.ParseMarket(c.Strategy.Symbol); err != nil {
		return &domain.ConfigError{Field: "strategy.symbol", Err: err}
	}
	if !c.Strategy.OrderSize.IsPositive() {
		return &domain.ConfigError{Field: "strategy.order_size", Err: errors.New("must be positive")}
	}
	if !c.Strategy.ProfitMargin.IsPositive() {
		return &domain.ConfigError{Field: "strategy.profit_margin", Err: errors.New("must be positive")}
	}
	one := decimal.NewFromInt(1)
	if !c.Strategy.DropThreshold.IsPositive() || c.Strategy.DropThreshold.GreaterThanOrEqual(one) {
		return &domain.ConfigError{Field: "strategy.drop_threshold", Err: errors.New("must be in (0, 1)")}
	}
	if c.Strategy.PollWorkers <= 0 {
		return &domain.ConfigError{Field: "strategy.poll_workers", Err: errors.New("must be positive")}
	}
	if c.Strategy.OrderAttempts <= 0 {
		return &domain.ConfigError{Field: "strategy.order_attempts", Err: errors.New("must be positive")}
	}
	if c.Backoff.Base <= 0 || c.Backoff.Max < c.Backoff.Base {
		return &domain.ConfigError{Field: "backoff", Err: errors.New("need 0 < base <= max")}
	}

	// State
	switch c.State.Backend {
	case "file", "redis":
	default:
		return &domain.ConfigError{Field: "state.backend", Err: fmt.Errorf("unknown backend %q", c.State.Backend)}
	}

	return nil
}

// overrideWithEnv는 환경 변수가 존재할 경우 설정 값을 덮어씁니다.
func overrideWithEnv(cfg *Config) error {
	if key := os.Getenv("EXCHANGE_API_KEY"); key != "" {
		cfg.Exchange.APIKey = key
	}
	if secret := os.Getenv("EXCHANGE_SECRET"); secret != "" {
		cfg.Exchange.Secret = secret
	}
	if token := os.Getenv("TELEGRAM_TOKEN"); token != "" {
		cfg.Telegram.Token = token
	}
	if chat := os.Getenv("TELEGRAM_CHAT_ID"); chat != "" {
		id, err := strconv.ParseInt(chat, 10, 64)
		if err != nil {
			return &domain.ConfigError{Field: "TELEGRAM_CHAT_ID", Err: err}
		}
		cfg.Telegram.ChatID = id
	}
	return nil
}
