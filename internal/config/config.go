// Package config loads server settings from the environment and an optional
// config file, and maps them onto the exchange configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"binancemcp/pkg/core"
)

// Server holds the process-level settings around the dispatch core.
type Server struct {
	// ListenAddr is the HTTP listen address for the streamable transport.
	ListenAddr string
	// Transport selects "stdio" or "http".
	Transport string
	// AgentKey, when set, is required in the X-Agent-Key header of every
	// HTTP request.
	AgentKey string
	// StreamSymbols are pre-subscribed mini-ticker symbols for the price
	// cache backing the deviation guard.
	StreamSymbols []string
	// PriceMaxAge bounds how stale a cached price may be.
	PriceMaxAge time.Duration

	Exchange *core.Config
}

// setDefaults registers every known key so AutomaticEnv picks them up.
func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "mainnet")
	v.SetDefault("http_base", "")
	v.SetDefault("api_key", "")
	v.SetDefault("api_secret", "")
	v.SetDefault("agent_key", "")

	v.SetDefault("listen_addr", ":8000")
	v.SetDefault("mcp_transport", "stdio")
	v.SetDefault("log_level", "info")

	v.SetDefault("recv_window_ms", 5000)
	v.SetDefault("timeout_ms", 15000)
	v.SetDefault("max_retries", 3)
	v.SetDefault("time_sync_interval", "10m")

	v.SetDefault("request_weight_per_minute", 6000)
	v.SetDefault("orders_per_10s", 100)
	v.SetDefault("raw_requests_per_5m", 61000)

	v.SetDefault("max_notional_per_order", 0.0)
	v.SetDefault("max_qty_per_order", 0.0)
	v.SetDefault("max_price_deviation_pct", 0.0)

	v.SetDefault("stream_symbols", "")
	v.SetDefault("price_max_age", "30s")
}

// Load reads configuration from BINANCE_-prefixed environment variables and
// an optional config file path. Environment wins over file values.
func Load(cfgFile string) (*Server, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("BINANCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	exchange := core.DefaultConfig()
	exchange.Env = v.GetString("env")
	exchange.BaseURL = v.GetString("http_base")
	exchange.RecvWindow = time.Duration(v.GetInt("recv_window_ms")) * time.Millisecond
	exchange.Timeout = time.Duration(v.GetInt("timeout_ms")) * time.Millisecond
	exchange.MaxRetries = v.GetInt("max_retries")
	exchange.TimeSyncInterval = v.GetDuration("time_sync_interval")
	exchange.RequestWeightPerMinute = v.GetInt("request_weight_per_minute")
	exchange.OrdersPer10s = v.GetInt("orders_per_10s")
	exchange.RawRequestsPerFiveMinutes = v.GetInt("raw_requests_per_5m")
	exchange.LogLevel = v.GetString("log_level")

	exchange.Guard = core.GuardConfig{
		MaxNotionalPerOrder:  v.GetFloat64("max_notional_per_order"),
		MaxQtyPerOrder:       v.GetFloat64("max_qty_per_order"),
		MaxPriceDeviationPct: v.GetFloat64("max_price_deviation_pct"),
	}

	if key := v.GetString("api_key"); key != "" {
		exchange.Credentials = &core.Credentials{
			APIKey:    key,
			SecretKey: v.GetString("api_secret"),
		}
	}

	if err := exchange.Validate(); err != nil {
		return nil, fmt.Errorf("invalid exchange config: %w", err)
	}

	srv := &Server{
		ListenAddr:    v.GetString("listen_addr"),
		Transport:     v.GetString("mcp_transport"),
		AgentKey:      v.GetString("agent_key"),
		StreamSymbols: splitCSV(v.GetString("stream_symbols")),
		PriceMaxAge:   v.GetDuration("price_max_age"),
		Exchange:      exchange,
	}

	if srv.Transport != "stdio" && srv.Transport != "http" {
		return nil, fmt.Errorf("unsupported transport %q (want stdio or http)", srv.Transport)
	}
	return srv, nil
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.ToUpper(p))
		}
	}
	return out
}
