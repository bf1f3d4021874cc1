package registry

import "binancemcp/pkg/core"

// klineIntervals are the chart intervals the exchange accepts.
var klineIntervals = []string{
	"1s", "1m", "3m", "5m", "15m", "30m",
	"1h", "2h", "4h", "6h", "8h", "12h",
	"1d", "3d", "1w", "1M",
}

// Builtins returns the full tool catalogue, one definition per supported
// exchange operation.
func Builtins() []*ToolDefinition {
	symbol := func(required bool) ParamSpec {
		return ParamSpec{
			Name:        "symbol",
			Type:        TypeString,
			Description: "Trading pair, e.g. BTCUSDT or BTC/USDT",
			Required:    required,
		}
	}
	side := ParamSpec{
		Name:        "side",
		Type:        TypeString,
		Description: "Order side",
		Required:    true,
		Enum:        []string{"BUY", "SELL"},
	}
	tif := ParamSpec{
		Name:        "tif",
		Type:        TypeString,
		Description: "Time in force (default GTC)",
		Enum:        []string{"GTC", "IOC", "FOK"},
	}

	return []*ToolDefinition{
		{
			Name:        "get_server_time",
			Description: "Get the exchange server time and the local clock offset",
			Operation:   core.OpGetServerTime,
		},
		{
			Name:        "get_exchange_info",
			Description: "Get trading rules and symbol filters, optionally for one symbol",
			Operation:   core.OpGetExchangeInfo,
			Params:      []ParamSpec{symbol(false)},
		},
		{
			Name:        "get_ticker",
			Description: "Get the 24h ticker statistics for a symbol",
			Operation:   core.OpGetTicker,
			Params:      []ParamSpec{symbol(true)},
		},
		{
			Name:        "get_price",
			Description: "Get the latest traded price for a symbol",
			Operation:   core.OpGetPrice,
			Params:      []ParamSpec{symbol(true)},
		},
		{
			Name:        "get_order_book",
			Description: "Get the order book for a symbol",
			Operation:   core.OpGetOrderBook,
			Params: []ParamSpec{
				symbol(true),
				{
					Name:        "limit",
					Type:        TypeInteger,
					Description: "Depth levels per side (default 100, max 5000)",
				},
			},
		},
		{
			Name:        "get_klines",
			Description: "Get candlestick data for a symbol",
			Operation:   core.OpGetKlines,
			Params: []ParamSpec{
				symbol(true),
				{
					Name:        "interval",
					Type:        TypeString,
					Description: "Candle interval (default 1m)",
					Enum:        klineIntervals,
				},
				{
					Name:        "limit",
					Type:        TypeInteger,
					Description: "Number of candles (default 500, max 1000)",
				},
			},
		},
		{
			Name:        "get_balances",
			Description: "Get account balances; zero balances are omitted",
			Operation:   core.OpGetBalances,
			Params: []ParamSpec{
				{
					Name:        "assets",
					Type:        TypeString,
					Description: "Comma-separated asset filter, e.g. BTC,USDT",
				},
			},
		},
		{
			Name:        "get_open_orders",
			Description: "Get open orders, optionally filtered by symbol",
			Operation:   core.OpGetOpenOrders,
			Params:      []ParamSpec{symbol(false)},
		},
		{
			Name:        "place_limit_order",
			Description: "Place a limit order",
			Operation:   core.OpPlaceLimitOrder,
			Params: []ParamSpec{
				symbol(true),
				side,
				{
					Name:        "price",
					Type:        TypeString,
					Description: "Limit price as a decimal string",
					Required:    true,
				},
				{
					Name:        "qty",
					Type:        TypeString,
					Description: "Order quantity as a decimal string",
					Required:    true,
				},
				tif,
				{
					Name:        "client_id",
					Type:        TypeString,
					Description: "Client order ID for idempotent placement",
				},
			},
		},
		{
			Name:        "place_oco_order",
			Description: "Place a one-cancels-the-other order pair (limit plus stop-limit)",
			Operation:   core.OpPlaceOCOOrder,
			Params: []ParamSpec{
				symbol(true),
				side,
				{
					Name:        "quantity",
					Type:        TypeString,
					Description: "Order quantity as a decimal string",
					Required:    true,
				},
				{
					Name:        "price",
					Type:        TypeString,
					Description: "Limit leg price as a decimal string",
					Required:    true,
				},
				{
					Name:        "stop",
					Type:        TypeString,
					Description: "Stop trigger price as a decimal string",
					Required:    true,
				},
				{
					Name:        "stop_limit",
					Type:        TypeString,
					Description: "Stop-limit leg price as a decimal string",
					Required:    true,
				},
				tif,
				{
					Name:        "client_id",
					Type:        TypeString,
					Description: "Client list ID for idempotent placement",
				},
			},
		},
		{
			Name:        "cancel_order",
			Description: "Cancel an open order by order ID or client order ID",
			Operation:   core.OpCancelOrder,
			Params: []ParamSpec{
				symbol(true),
				{
					Name:        "order_id",
					Type:        TypeString,
					Description: "Exchange order ID",
				},
				{
					Name:        "client_order_id",
					Type:        TypeString,
					Description: "Client order ID given at placement",
				},
			},
		},
	}
}
