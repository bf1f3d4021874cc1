package core

// EndpointClass groups exchange operations that share a rate-limit budget.
type EndpointClass int

const (
	// ClassRequest is Binance's REQUEST_WEIGHT budget covering every REST call.
	ClassRequest EndpointClass = iota
	// ClassOrders is Binance's ORDERS budget covering order placement.
	ClassOrders
)

// String returns the Binance rate-limit type name for the class.
func (c EndpointClass) String() string {
	return [...]string{"REQUEST_WEIGHT", "ORDERS"}[c]
}

// Operation identifies one exchange action exposed as a tool. The set is
// closed: adding an operation requires a new constant, a protocol builder,
// and a tool definition, all checked at startup.
type Operation int

// Operation constants for the supported Binance spot endpoints.
const (
	// OpGetServerTime retrieves the exchange server time.
	OpGetServerTime Operation = iota
	// OpGetExchangeInfo retrieves trading rules and symbol filters.
	OpGetExchangeInfo
	// OpGetTicker retrieves 24h rolling ticker statistics for a symbol.
	OpGetTicker
	// OpGetPrice retrieves the latest trade price for a symbol.
	OpGetPrice
	// OpGetOrderBook retrieves order book depth.
	OpGetOrderBook
	// OpGetKlines retrieves candlestick data.
	OpGetKlines
	// OpGetBalances retrieves account balances.
	OpGetBalances
	// OpGetOpenOrders retrieves open orders.
	OpGetOpenOrders
	// OpPlaceLimitOrder submits a limit order.
	OpPlaceLimitOrder
	// OpPlaceOCOOrder submits a one-cancels-the-other order list.
	OpPlaceOCOOrder
	// OpCancelOrder cancels an existing order.
	OpCancelOrder
)

// String returns the string representation of the operation.
func (o Operation) String() string {
	return [...]string{
		"GET_SERVER_TIME",
		"GET_EXCHANGE_INFO",
		"GET_TICKER",
		"GET_PRICE",
		"GET_ORDER_BOOK",
		"GET_KLINES",
		"GET_BALANCES",
		"GET_OPEN_ORDERS",
		"PLACE_LIMIT_ORDER",
		"PLACE_OCO_ORDER",
		"CANCEL_ORDER",
	}[o]
}

// Class returns the rate-limit budget the operation consumes.
// Order placement counts against ORDERS; everything else, including
// cancellation, counts against REQUEST_WEIGHT only.
func (o Operation) Class() EndpointClass {
	switch o {
	case OpPlaceLimitOrder, OpPlaceOCOOrder:
		return ClassOrders
	default:
		return ClassRequest
	}
}

// Mutating reports whether the operation changes exchange-side state.
// Mutating calls are allowed to finish even when the caller disconnects,
// so order state is never left ambiguous.
func (o Operation) Mutating() bool {
	switch o {
	case OpPlaceLimitOrder, OpPlaceOCOOrder, OpCancelOrder:
		return true
	default:
		return false
	}
}

// RequiresAuth reports whether the operation needs a signed request.
func (o Operation) RequiresAuth() bool {
	switch o {
	case OpGetBalances, OpGetOpenOrders, OpPlaceLimitOrder, OpPlaceOCOOrder, OpCancelOrder:
		return true
	default:
		return false
	}
}
