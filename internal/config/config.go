// Package config loads and validates the YAML configuration for the trading
// system: brokerage credentials, cache address, logging, alerting, and the
// per-symbol strategy definitions.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"looptrader/internal/domain"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the trading system.
type Config struct {
	Alpaca     Alpaca           `yaml:"alpaca"`
	Cache      Cache            `yaml:"cache"`
	Logging    Logging          `yaml:"logging"`
	Journal    Journal          `yaml:"journal"`
	Alerting   Alerting         `yaml:"alerting"`
	Trading    Trading          `yaml:"trading"`
	Strategies []StrategyConfig `yaml:"strategies"`
}

// Alpaca holds credentials and endpoints for the Alpaca broker API.
type Alpaca struct {
	APIKey     string `yaml:"api_key"`
	APISecret  string `yaml:"api_secret"`
	UseSandbox bool   `yaml:"use_sandbox"`
	BaseURL    string `yaml:"base_url"` // optional, overrides the sandbox switch
	Feed       string `yaml:"feed"`     // market-data feed: "iex" or "sip"
}

// ResolveBaseURL returns the trading API endpoint, honouring an explicit
// override first and the sandbox switch second.
func (a Alpaca) ResolveBaseURL() string {
	if a.BaseURL != "" {
		return a.BaseURL
	}
	if a.UseSandbox {
		return "https://paper-api.alpaca.markets"
	}
	return "https://api.alpaca.markets"
}

// Cache holds the market-state cache service address.
type Cache struct {
	Addr string `yaml:"addr"`
}

// Logging configures the application logger.
type Logging struct {
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// Journal configures the SQLite fill journal. An empty path disables it.
type Journal struct {
	Path string `yaml:"path"`
}

// Alerting configures the outbound e-mail alert channel.
type Alerting struct {
	Enabled        bool     `yaml:"enabled"`
	APIKey         string   `yaml:"api_key"`
	From           string   `yaml:"from"`
	To             string   `yaml:"to"`
	StatusInterval Duration `yaml:"status_interval"`
}

// Trading holds execution cadence parameters shared by all workers.
type Trading struct {
	UpdateInterval  Duration `yaml:"update_interval"`
	SleepAfterError Duration `yaml:"sleep_after_error"`
	SettleDelay     Duration `yaml:"settle_delay"`
	StaggerStart    Duration `yaml:"stagger_start"`
	RateLimitPerMin int      `yaml:"rate_limit_per_min"`
}

// PhaseParams holds the order parameters for one lifecycle phase. The signal
// price arms submission; the spreads derive the concrete limit/stop prices.
type PhaseParams struct {
	SignalPrice      float64 `yaml:"signal_price"`
	OrderType        string  `yaml:"order_type"`
	LimitSpread      float64 `yaml:"limit_spread"`
	StopSpread       float64 `yaml:"stop_spread"`
	TakeProfitSpread float64 `yaml:"take_profit_spread"` // bracket orders only
	StopLossSpread   float64 `yaml:"stop_loss_spread"`   // bracket orders only
	JumpSpread       float64 `yaml:"jump_spread"`        // loop phase only
}

// StrategyConfig defines one traded symbol. One worker owns one strategy.
type StrategyConfig struct {
	Symbol      string      `yaml:"symbol"`
	Quantity    float64     `yaml:"quantity"`
	InitialSide string      `yaml:"initial_side"`
	TimeInForce string      `yaml:"time_in_force"`
	Retries     int         `yaml:"retries"`
	Initial     PhaseParams `yaml:"initial"`
	Loop        PhaseParams `yaml:"loop"`
}

// Duration is a time.Duration that unmarshals from YAML strings like "1s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides, fills defaults, and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}
	if v := os.Getenv("CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SENDGRID_API_KEY"); v != "" {
		cfg.Alerting.APIKey = v
	}

	// Standard Alpaca env vars take highest priority, matching the SDK.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// applyDefaults fills zero-valued fields with working defaults.
func applyDefaults(cfg *Config) {
	if cfg.Cache.Addr == "" {
		cfg.Cache.Addr = "localhost:5555"
	}
	if cfg.Alpaca.Feed == "" {
		cfg.Alpaca.Feed = "iex"
	}
	if cfg.Trading.UpdateInterval == 0 {
		cfg.Trading.UpdateInterval = Duration(time.Second)
	}
	if cfg.Trading.SleepAfterError == 0 {
		cfg.Trading.SleepAfterError = Duration(time.Second)
	}
	if cfg.Trading.SettleDelay == 0 {
		cfg.Trading.SettleDelay = Duration(2 * time.Second)
	}
	if cfg.Trading.RateLimitPerMin == 0 {
		cfg.Trading.RateLimitPerMin = 200
	}
	if cfg.Alerting.StatusInterval == 0 {
		cfg.Alerting.StatusInterval = Duration(time.Minute)
	}
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

var validTIF = map[string]bool{
	"day": true, "gtc": true, "opg": true, "cls": true, "ioc": true, "fok": true,
}

// Validate checks the whole configuration. It is called by Load, so a Config
// obtained from Load is always valid.
func (c *Config) Validate() error {
	if c.Alpaca.APIKey == "" || c.Alpaca.APISecret == "" {
		return fmt.Errorf("alpaca: api_key and api_secret are required")
	}
	if len(c.Strategies) == 0 {
		return fmt.Errorf("strategies: at least one strategy is required")
	}
	if c.Alerting.Enabled && (c.Alerting.From == "" || c.Alerting.To == "") {
		return fmt.Errorf("alerting: from and to are required when enabled")
	}

	seen := make(map[string]bool, len(c.Strategies))
	for i := range c.Strategies {
		s := &c.Strategies[i]
		if err := s.validate(); err != nil {
			return fmt.Errorf("strategies[%d] (%s): %w", i, s.Symbol, err)
		}
		if seen[s.Symbol] {
			return fmt.Errorf("strategies[%d]: duplicate symbol %q", i, s.Symbol)
		}
		seen[s.Symbol] = true
	}
	return nil
}

func (s *StrategyConfig) validate() error {
	if s.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if s.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive")
	}
	side := domain.Side(s.InitialSide)
	if side != domain.SideBuy && side != domain.SideSell {
		return fmt.Errorf("initial_side must be %q or %q", domain.SideBuy, domain.SideSell)
	}
	if !validTIF[s.TimeInForce] {
		return fmt.Errorf("invalid time_in_force %q", s.TimeInForce)
	}
	if s.Retries < 0 {
		return fmt.Errorf("retries must not be negative")
	}
	if err := s.Initial.validate(domain.PhaseInitial); err != nil {
		return fmt.Errorf("initial: %w", err)
	}
	if err := s.Loop.validate(domain.PhaseLoop); err != nil {
		return fmt.Errorf("loop: %w", err)
	}
	return nil
}

// validate enforces the price parameters each order type needs: market orders
// need none, limit orders need a limit spread, stop orders a stop spread,
// stop-limit both, and bracket orders an entry limit spread plus both legs.
func (p *PhaseParams) validate(phase domain.Phase) error {
	if p.SignalPrice <= 0 {
		return fmt.Errorf("signal_price must be positive")
	}
	switch domain.OrderType(p.OrderType) {
	case domain.OrderTypeMarket:
		// No derived prices.
	case domain.OrderTypeLimit:
		if p.LimitSpread <= 0 {
			return fmt.Errorf("limit orders require a positive limit_spread")
		}
	case domain.OrderTypeStop:
		if p.StopSpread <= 0 {
			return fmt.Errorf("stop orders require a positive stop_spread")
		}
	case domain.OrderTypeStopLimit:
		if p.LimitSpread <= 0 || p.StopSpread <= 0 {
			return fmt.Errorf("stop-limit orders require positive limit_spread and stop_spread")
		}
	case domain.OrderTypeBracket:
		if p.LimitSpread <= 0 {
			return fmt.Errorf("bracket orders require a positive limit_spread for the entry leg")
		}
		if p.TakeProfitSpread <= 0 || p.StopLossSpread <= 0 {
			return fmt.Errorf("bracket orders require positive take_profit_spread and stop_loss_spread")
		}
	default:
		return fmt.Errorf("invalid order_type %q", p.OrderType)
	}
	if phase == domain.PhaseInitial && p.JumpSpread != 0 {
		return fmt.Errorf("jump_spread only applies to the loop phase")
	}
	if p.JumpSpread < 0 {
		return fmt.Errorf("jump_spread must not be negative")
	}
	return nil
}
