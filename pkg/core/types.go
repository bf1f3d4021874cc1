package core

import (
	"time"

	"github.com/cockroachdb/apd/v3"
)

// Side represents the direction of an order.
type Side int

const (
	// SideBuy indicates an order to purchase an asset.
	SideBuy Side = iota
	// SideSell indicates an order to sell an asset.
	SideSell
)

// String returns "BUY" or "SELL".
func (s Side) String() string {
	return [...]string{"BUY", "SELL"}[s]
}

// MarshalJSON implements json.Marshaler for Side.
func (s Side) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler for Side. It accepts both
// uppercase and lowercase forms.
func (s *Side) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"BUY"`, `"buy"`:
		*s = SideBuy
	case `"SELL"`, `"sell"`:
		*s = SideSell
	}
	return nil
}

// ParseSide converts a string to a Side. The second return value is false
// for unrecognized input.
func ParseSide(s string) (Side, bool) {
	switch s {
	case "BUY", "buy":
		return SideBuy, true
	case "SELL", "sell":
		return SideSell, true
	}
	return SideBuy, false
}

// TimeInForce controls how long an order remains active.
type TimeInForce int

const (
	// GTC keeps the order active until filled or canceled.
	GTC TimeInForce = iota
	// IOC fills what it can immediately and cancels the rest.
	IOC
	// FOK fills the entire order immediately or cancels it.
	FOK
)

// String returns the Binance wire form of the time-in-force.
func (t TimeInForce) String() string {
	return [...]string{"GTC", "IOC", "FOK"}[t]
}

// ParseTimeInForce converts a string to a TimeInForce. The second return
// value is false for unrecognized input.
func ParseTimeInForce(s string) (TimeInForce, bool) {
	switch s {
	case "GTC", "gtc":
		return GTC, true
	case "IOC", "ioc":
		return IOC, true
	case "FOK", "fok":
		return FOK, true
	}
	return GTC, false
}

// OrderStatus represents the lifecycle state of an order.
type OrderStatus int

const (
	// StatusNew indicates the order has been accepted by the exchange.
	StatusNew OrderStatus = iota
	// StatusPartiallyFilled indicates partial execution.
	StatusPartiallyFilled
	// StatusFilled indicates complete execution.
	StatusFilled
	// StatusCanceled indicates the order has been canceled.
	StatusCanceled
	// StatusRejected indicates the exchange rejected the order.
	StatusRejected
	// StatusExpired indicates the order expired per its time-in-force.
	StatusExpired
)

// String returns the string representation of the order status.
func (s OrderStatus) String() string {
	return [...]string{"NEW", "PARTIALLY_FILLED", "FILLED", "CANCELED", "REJECTED", "EXPIRED"}[s]
}

// MarshalJSON implements json.Marshaler for OrderStatus.
func (s OrderStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// IsTerminal reports whether no further status changes are possible.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusFilled || s == StatusCanceled || s == StatusRejected || s == StatusExpired
}

// ServerTime is the exchange clock reading together with the offset the
// client derived from it.
type ServerTime struct {
	ServerTime time.Time     `json:"server_time"`
	Offset     time.Duration `json:"offset"`
}

// Ticker holds 24h rolling statistics for a symbol.
type Ticker struct {
	Symbol             string      `json:"symbol"`
	Last               apd.Decimal `json:"price"`
	Bid                apd.Decimal `json:"bid"`
	Ask                apd.Decimal `json:"ask"`
	High               apd.Decimal `json:"high"`
	Low                apd.Decimal `json:"low"`
	Volume             apd.Decimal `json:"volume"`
	PriceChangePercent apd.Decimal `json:"price_change_percent"`
	Timestamp          time.Time   `json:"timestamp"`
}

// Price is the latest trade price of a symbol.
type Price struct {
	Symbol string      `json:"symbol"`
	Price  apd.Decimal `json:"price"`
}

// PriceLevel is one price/quantity pair in an order book.
type PriceLevel struct {
	Price    apd.Decimal `json:"price"`
	Quantity apd.Decimal `json:"quantity"`
}

// OrderBook is a depth snapshot, bids and asks best-first.
type OrderBook struct {
	Symbol       string       `json:"symbol"`
	LastUpdateID int64        `json:"last_update_id"`
	Bids         []PriceLevel `json:"bids"`
	Asks         []PriceLevel `json:"asks"`
}

// Kline is one OHLCV candlestick.
type Kline struct {
	Symbol    string      `json:"symbol"`
	OpenTime  time.Time   `json:"open_time"`
	CloseTime time.Time   `json:"close_time"`
	Open      apd.Decimal `json:"open"`
	High      apd.Decimal `json:"high"`
	Low       apd.Decimal `json:"low"`
	Close     apd.Decimal `json:"close"`
	Volume    apd.Decimal `json:"volume"`
}

// Balance is the holdings of one asset. Total = Free + Locked.
type Balance struct {
	Asset  string      `json:"asset"`
	Free   apd.Decimal `json:"free"`
	Locked apd.Decimal `json:"locked"`
	Total  apd.Decimal `json:"total"`
}

// Order is a normalized exchange order.
type Order struct {
	ID            string      `json:"id"`
	ClientOrderID string      `json:"client_order_id,omitempty"`
	Symbol        string      `json:"symbol"`
	Side          Side        `json:"side"`
	Type          string      `json:"type"`
	Status        OrderStatus `json:"status"`
	TimeInForce   string      `json:"time_in_force,omitempty"`
	Price         apd.Decimal `json:"price"`
	Quantity      apd.Decimal `json:"quantity"`
	ExecutedQty   apd.Decimal `json:"executed_qty"`
	CreatedAt     time.Time   `json:"created_at"`
}

// OrderList is a normalized OCO order list: the limit leg and the
// stop-loss-limit leg created together.
type OrderList struct {
	ListID        int64   `json:"list_id"`
	ClientListID  string  `json:"client_list_id,omitempty"`
	Symbol        string  `json:"symbol"`
	ListStatus    string  `json:"list_status"`
	Orders        []Order `json:"orders"`
	TransactionAt time.Time `json:"transaction_at"`
}

// SymbolInfo is the subset of exchange trading rules a caller needs to
// size orders: precision and the core filters.
type SymbolInfo struct {
	Symbol     string `json:"symbol"`
	Status     string `json:"status"`
	BaseAsset  string `json:"base_asset"`
	QuoteAsset string `json:"quote_asset"`
	// MinQty, MaxQty, and StepSize come from the LOT_SIZE filter.
	MinQty   apd.Decimal `json:"min_qty"`
	MaxQty   apd.Decimal `json:"max_qty"`
	StepSize apd.Decimal `json:"step_size"`
	// MinNotional comes from the NOTIONAL filter.
	MinNotional apd.Decimal `json:"min_notional"`
	// TickSize comes from the PRICE_FILTER filter.
	TickSize apd.Decimal `json:"tick_size"`
}

// ExchangeInfo is a normalized exchange-rules snapshot.
type ExchangeInfo struct {
	Timezone   string       `json:"timezone"`
	ServerTime time.Time    `json:"server_time"`
	Symbols    []SymbolInfo `json:"symbols"`
}
