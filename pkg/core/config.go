package core

import (
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	// MainnetURL is the production Binance spot REST base URL.
	MainnetURL = "https://api.binance.com"
	// TestnetURL is the spot testnet REST base URL.
	TestnetURL = "https://testnet.binance.vision"
	// MainnetWSURL is the production market-stream WebSocket URL.
	MainnetWSURL = "wss://stream.binance.com:9443/ws"
	// TestnetWSURL is the testnet market-stream WebSocket URL.
	TestnetWSURL = "wss://testnet.binance.vision/ws"
)

// Credentials holds the API key material used to sign exchange requests.
// It is loaded once at startup and must never appear in logs or errors.
type Credentials struct {
	APIKey     string `json:"-"`
	SecretKey  string `json:"-"`
	Passphrase string `json:"-"`
}

// Configured reports whether both key halves are present.
func (c *Credentials) Configured() bool {
	return c != nil && c.APIKey != "" && c.SecretKey != ""
}

// GuardConfig holds optional order guardrails. A zero value disables the
// corresponding check.
type GuardConfig struct {
	// MaxNotionalPerOrder caps price*quantity of a single order.
	MaxNotionalPerOrder float64 `json:"max_notional_per_order" validate:"min=0"`
	// MaxQtyPerOrder caps the quantity of a single order.
	MaxQtyPerOrder float64 `json:"max_qty_per_order" validate:"min=0"`
	// MaxPriceDeviationPct caps how far a limit price may sit from the
	// last traded price, in percent.
	MaxPriceDeviationPct float64 `json:"max_price_deviation_pct" validate:"min=0"`
}

// Config contains all settings for the exchange client and dispatcher.
type Config struct {
	// Env selects mainnet or testnet endpoints.
	Env string `json:"env" validate:"oneof=mainnet testnet"`
	// BaseURL overrides the REST endpoint derived from Env when non-empty.
	BaseURL string `json:"base_url,omitempty" validate:"omitempty,url"`
	// Credentials are required for signed operations only.
	Credentials *Credentials `json:"-"`

	// RecvWindow is the drift tolerance sent with signed requests.
	RecvWindow time.Duration `json:"recv_window" validate:"min=1ms,max=60s"`
	// Timeout bounds each HTTP request.
	Timeout time.Duration `json:"timeout" validate:"min=1ms"`
	// MaxRetries bounds additional attempts after a transient failure.
	MaxRetries   int           `json:"max_retries" validate:"min=0"`
	RetryWaitMin time.Duration `json:"retry_wait_min" validate:"min=0"`
	RetryWaitMax time.Duration `json:"retry_wait_max" validate:"min=0"`

	// RequestWeightPerMinute is the REQUEST_WEIGHT ceiling per rolling minute.
	RequestWeightPerMinute int `json:"request_weight_per_minute" validate:"min=1"`
	// OrdersPer10s is the ORDERS ceiling per ten seconds.
	OrdersPer10s int `json:"orders_per_10s" validate:"min=1"`
	// RawRequestsPer5m caps total request count regardless of weight.
	RawRequestsPerFiveMinutes int `json:"raw_requests_per_5m" validate:"min=1"`

	CircuitBreakerEnabled          bool          `json:"circuit_breaker_enabled"`
	CircuitBreakerFailThreshold    int           `json:"circuit_breaker_fail_threshold"`
	CircuitBreakerSuccessThreshold int           `json:"circuit_breaker_success_threshold"`
	CircuitBreakerTimeout          time.Duration `json:"circuit_breaker_timeout"`

	// TimeSyncInterval is how often the clock offset is refreshed in the
	// background. Zero disables the refresher.
	TimeSyncInterval time.Duration `json:"time_sync_interval" validate:"min=0"`

	Guard GuardConfig `json:"guard"`

	LogLevel string `json:"log_level" validate:"omitempty,oneof=debug info warn error"`
}

// DefaultConfig returns a Config with the published Binance spot limits and
// conservative networking defaults.
func DefaultConfig() *Config {
	return &Config{
		Env:        "mainnet",
		RecvWindow: 5 * time.Second,
		Timeout:    15 * time.Second,

		MaxRetries:   3,
		RetryWaitMin: 100 * time.Millisecond,
		RetryWaitMax: 2 * time.Second,

		RequestWeightPerMinute:    6000,
		OrdersPer10s:              100,
		RawRequestsPerFiveMinutes: 61000,

		CircuitBreakerEnabled:          true,
		CircuitBreakerFailThreshold:    5,
		CircuitBreakerSuccessThreshold: 2,
		CircuitBreakerTimeout:          30 * time.Second,

		TimeSyncInterval: 10 * time.Minute,

		LogLevel: "info",
	}
}

var validate = validator.New()

// Validate checks the configuration against its struct tags plus the
// circuit-breaker cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.CircuitBreakerEnabled {
		if c.CircuitBreakerFailThreshold <= 0 {
			return NewError(KindInternal, "circuit breaker fail threshold must be positive when enabled")
		}
		if c.CircuitBreakerSuccessThreshold <= 0 {
			return NewError(KindInternal, "circuit breaker success threshold must be positive when enabled")
		}
		if c.CircuitBreakerTimeout <= 0 {
			return NewError(KindInternal, "circuit breaker timeout must be positive when enabled")
		}
	}
	return nil
}

// ResolveBaseURL returns the REST base URL, honoring the override.
func (c *Config) ResolveBaseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	if c.Env == "testnet" {
		return TestnetURL
	}
	return MainnetURL
}

// ResolveWSURL returns the market-stream WebSocket URL for the environment.
func (c *Config) ResolveWSURL() string {
	if c.Env == "testnet" {
		return TestnetWSURL
	}
	return MainnetWSURL
}

// WithCredentials sets the API credentials and returns the config for chaining.
func (c *Config) WithCredentials(creds *Credentials) *Config {
	c.Credentials = creds
	return c
}

// WithTestnet switches the config to testnet endpoints.
func (c *Config) WithTestnet() *Config {
	c.Env = "testnet"
	return c
}

// WithTimeout sets the request timeout and returns the config for chaining.
func (c *Config) WithTimeout(timeout time.Duration) *Config {
	c.Timeout = timeout
	return c
}
