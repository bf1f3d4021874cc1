// Command binance-mcp-server exposes Binance spot market and account
// operations as MCP tools over stdio or streamable HTTP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"binancemcp/internal/config"
	"binancemcp/internal/mcpserver"
	"binancemcp/internal/ratelimit"
	"binancemcp/pkg/binance"
	"binancemcp/pkg/dispatch"
	"binancemcp/pkg/registry"
	"binancemcp/pkg/stream"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:     "binance-mcp-server",
		Short:   "MCP server for Binance spot trading tools",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfgFile)
		},
	}
	cmd.Flags().StringVarP(&cfgFile, "config", "c", "", "path to config file (optional; env vars win)")
	return cmd
}

func run(cfgFile string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Exchange.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := binance.NewClient(cfg.Exchange, logger)
	if err != nil {
		return fmt.Errorf("build exchange client: %w", err)
	}
	defer client.Close()

	if err := client.Start(ctx); err != nil {
		logger.Warn().Err(err).Msg("clock sync failed at startup; continuing")
	}

	guard, prices := buildGuard(ctx, cfg, logger)
	if prices != nil {
		defer prices.Close()
	}

	limiter := ratelimit.New(ratelimit.FromCoreConfig(cfg.Exchange))
	reg := registry.NewWithBuiltins()
	dispatcher := dispatch.New(reg, limiter, client, guard, logger)

	srv := mcpserver.New(mcpserver.Config{
		Version:    version,
		ListenAddr: cfg.ListenAddr,
		AgentKey:   cfg.AgentKey,
	}, mcpserver.Deps{
		Registry:   reg,
		Dispatcher: dispatcher,
		Client:     client,
		Limiter:    limiter,
		Exchange:   cfg.Exchange,
	}, logger)

	logger.Info().
		Str("version", version).
		Str("env", cfg.Exchange.Env).
		Str("transport", cfg.Transport).
		Int("tools", len(reg.List())).
		Msg("starting")

	if cfg.Transport == "http" {
		return srv.RunHTTP(ctx)
	}
	return srv.RunStdio(ctx)
}

// buildGuard wires the order guardrails, attaching a live price stream when
// the deviation limit needs one.
func buildGuard(ctx context.Context, cfg *config.Server, logger zerolog.Logger) (*dispatch.Guard, *stream.Service) {
	guardCfg := cfg.Exchange.Guard
	if guardCfg.MaxNotionalPerOrder == 0 && guardCfg.MaxQtyPerOrder == 0 && guardCfg.MaxPriceDeviationPct == 0 {
		return nil, nil
	}

	var svc *stream.Service
	var prices dispatch.PriceSource
	if guardCfg.MaxPriceDeviationPct > 0 && len(cfg.StreamSymbols) > 0 {
		svc = stream.NewService(cfg.Exchange.ResolveWSURL(), cfg.PriceMaxAge, logger)
		if err := svc.Start(ctx, cfg.StreamSymbols...); err != nil {
			logger.Warn().Err(err).Msg("price stream unavailable; deviation guard inactive")
		} else {
			prices = svc.Cache()
		}
	}

	return dispatch.NewGuard(guardCfg, prices), svc
}

// newLogger builds the process logger. Logs go to stderr so the stdio MCP
// transport keeps stdout to itself.
func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}
