package binance

import (
	"strconv"
	"time"

	"github.com/cockroachdb/apd/v3"

	"binancemcp/pkg/core"
)

// binanceServerTime is the raw /api/v3/time response.
type binanceServerTime struct {
	ServerTime int64 `json:"serverTime"`
}

// binanceTicker is the raw 24hr ticker response.
type binanceTicker struct {
	Symbol             string      `json:"symbol"`
	LastPrice          apd.Decimal `json:"lastPrice"`
	BidPrice           apd.Decimal `json:"bidPrice"`
	AskPrice           apd.Decimal `json:"askPrice"`
	HighPrice          apd.Decimal `json:"highPrice"`
	LowPrice           apd.Decimal `json:"lowPrice"`
	Volume             apd.Decimal `json:"volume"`
	PriceChangePercent apd.Decimal `json:"priceChangePercent"`
}

// binancePrice is the raw ticker/price response.
type binancePrice struct {
	Symbol string      `json:"symbol"`
	Price  apd.Decimal `json:"price"`
}

// binanceOrderBook is the raw depth response.
type binanceOrderBook struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

// binanceKline is the array-shaped kline entry:
// [openTime, open, high, low, close, volume, closeTime, ...].
type binanceKline []any

// binanceBalance is one asset entry in the account response.
type binanceBalance struct {
	Asset  string      `json:"asset"`
	Free   apd.Decimal `json:"free"`
	Locked apd.Decimal `json:"locked"`
}

// binanceAccount is the raw /api/v3/account response.
type binanceAccount struct {
	CanTrade bool             `json:"canTrade"`
	Balances []binanceBalance `json:"balances"`
}

// binanceOrder is the raw order response.
type binanceOrder struct {
	Symbol        string      `json:"symbol"`
	OrderID       int64       `json:"orderId"`
	ClientOrderID string      `json:"clientOrderId"`
	Price         apd.Decimal `json:"price"`
	OrigQty       apd.Decimal `json:"origQty"`
	ExecutedQty   apd.Decimal `json:"executedQty"`
	Status        string      `json:"status"`
	Type          string      `json:"type"`
	Side          string      `json:"side"`
	TimeInForce   string      `json:"timeInForce"`
	TransactTime  int64       `json:"transactTime"`
	Time          int64       `json:"time"`
}

// binanceOrderList is the raw OCO order-list response.
type binanceOrderList struct {
	OrderListID       int64          `json:"orderListId"`
	ListClientOrderID string         `json:"listClientOrderId"`
	ListOrderStatus   string         `json:"listOrderStatus"`
	Symbol            string         `json:"symbol"`
	TransactionTime   int64          `json:"transactionTime"`
	OrderReports      []binanceOrder `json:"orderReports"`
}

// binanceFilter is one symbol filter; only the fields the normalizer reads
// are declared.
type binanceFilter struct {
	FilterType  string      `json:"filterType"`
	MinQty      apd.Decimal `json:"minQty"`
	MaxQty      apd.Decimal `json:"maxQty"`
	StepSize    apd.Decimal `json:"stepSize"`
	MinNotional apd.Decimal `json:"minNotional"`
	TickSize    apd.Decimal `json:"tickSize"`
}

// binanceSymbol is one symbol entry in the exchangeInfo response.
type binanceSymbol struct {
	Symbol     string          `json:"symbol"`
	Status     string          `json:"status"`
	BaseAsset  string          `json:"baseAsset"`
	QuoteAsset string          `json:"quoteAsset"`
	Filters    []binanceFilter `json:"filters"`
}

// binanceExchangeInfo is the raw /api/v3/exchangeInfo response.
type binanceExchangeInfo struct {
	Timezone   string          `json:"timezone"`
	ServerTime int64           `json:"serverTime"`
	Symbols    []binanceSymbol `json:"symbols"`
}

// Normalizer converts raw Binance payloads to canonical core types.
type Normalizer struct{}

// NewNormalizer creates a Normalizer instance.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// NormalizeServerTime converts a raw server-time response.
func (n *Normalizer) NormalizeServerTime(data *binanceServerTime) *core.ServerTime {
	server := time.UnixMilli(data.ServerTime)
	return &core.ServerTime{
		ServerTime: server,
		Offset:     time.Until(server).Round(time.Millisecond),
	}
}

// NormalizeTicker converts a raw ticker to a canonical Ticker.
func (n *Normalizer) NormalizeTicker(data *binanceTicker) *core.Ticker {
	return &core.Ticker{
		Symbol:             data.Symbol,
		Last:               data.LastPrice,
		Bid:                data.BidPrice,
		Ask:                data.AskPrice,
		High:               data.HighPrice,
		Low:                data.LowPrice,
		Volume:             data.Volume,
		PriceChangePercent: data.PriceChangePercent,
		Timestamp:          time.Now(),
	}
}

// NormalizePrice converts a raw price to a canonical Price.
func (n *Normalizer) NormalizePrice(data *binancePrice) *core.Price {
	return &core.Price{Symbol: data.Symbol, Price: data.Price}
}

// NormalizeOrderBook converts raw depth levels to a canonical OrderBook.
func (n *Normalizer) NormalizeOrderBook(data *binanceOrderBook, symbol string) (*core.OrderBook, error) {
	book := &core.OrderBook{
		Symbol:       symbol,
		LastUpdateID: data.LastUpdateID,
		Bids:         make([]core.PriceLevel, 0, len(data.Bids)),
		Asks:         make([]core.PriceLevel, 0, len(data.Asks)),
	}

	for _, level := range data.Bids {
		pl, err := parseLevel(level)
		if err != nil {
			return nil, err
		}
		book.Bids = append(book.Bids, pl)
	}
	for _, level := range data.Asks {
		pl, err := parseLevel(level)
		if err != nil {
			return nil, err
		}
		book.Asks = append(book.Asks, pl)
	}
	return book, nil
}

func parseLevel(level []string) (core.PriceLevel, error) {
	var pl core.PriceLevel
	if len(level) < 2 {
		return pl, core.NewError(core.KindInternal, "malformed depth level")
	}
	if _, _, err := pl.Price.SetString(level[0]); err != nil {
		return pl, core.NewError(core.KindInternal, "malformed depth price: "+level[0])
	}
	if _, _, err := pl.Quantity.SetString(level[1]); err != nil {
		return pl, core.NewError(core.KindInternal, "malformed depth quantity: "+level[1])
	}
	return pl, nil
}

// NormalizeKlines converts array-shaped klines to canonical Klines.
func (n *Normalizer) NormalizeKlines(data []binanceKline, symbol string) ([]core.Kline, error) {
	klines := make([]core.Kline, 0, len(data))
	for _, raw := range data {
		if len(raw) < 7 {
			return nil, core.NewError(core.KindInternal, "malformed kline entry")
		}
		k := core.Kline{
			Symbol:    symbol,
			OpenTime:  time.UnixMilli(asInt64(raw[0])),
			CloseTime: time.UnixMilli(asInt64(raw[6])),
		}
		if err := setDecimal(&k.Open, raw[1]); err != nil {
			return nil, err
		}
		if err := setDecimal(&k.High, raw[2]); err != nil {
			return nil, err
		}
		if err := setDecimal(&k.Low, raw[3]); err != nil {
			return nil, err
		}
		if err := setDecimal(&k.Close, raw[4]); err != nil {
			return nil, err
		}
		if err := setDecimal(&k.Volume, raw[5]); err != nil {
			return nil, err
		}
		klines = append(klines, k)
	}
	return klines, nil
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	}
	return 0
}

func setDecimal(d *apd.Decimal, v any) error {
	s, ok := v.(string)
	if !ok {
		return core.NewError(core.KindInternal, "malformed kline field")
	}
	if _, _, err := d.SetString(s); err != nil {
		return core.NewError(core.KindInternal, "malformed kline decimal: "+s)
	}
	return nil
}

// NormalizeBalances converts an account response to canonical Balances,
// dropping assets with neither free nor locked amounts.
func (n *Normalizer) NormalizeBalances(data *binanceAccount) []core.Balance {
	balances := make([]core.Balance, 0, len(data.Balances))
	for _, b := range data.Balances {
		if b.Free.IsZero() && b.Locked.IsZero() {
			continue
		}
		bal := core.Balance{Asset: b.Asset, Free: b.Free, Locked: b.Locked}
		// Exact decimal addition never fails for finite operands.
		_, _ = apd.BaseContext.Add(&bal.Total, &b.Free, &b.Locked)
		balances = append(balances, bal)
	}
	return balances
}

// NormalizeOrder converts a raw order to a canonical Order.
func (n *Normalizer) NormalizeOrder(data *binanceOrder) *core.Order {
	created := data.TransactTime
	if created == 0 {
		created = data.Time
	}

	side, _ := core.ParseSide(data.Side)

	return &core.Order{
		ID:            strconv.FormatInt(data.OrderID, 10),
		ClientOrderID: data.ClientOrderID,
		Symbol:        data.Symbol,
		Side:          side,
		Type:          data.Type,
		Status:        parseOrderStatus(data.Status),
		TimeInForce:   data.TimeInForce,
		Price:         data.Price,
		Quantity:      data.OrigQty,
		ExecutedQty:   data.ExecutedQty,
		CreatedAt:     time.UnixMilli(created),
	}
}

// NormalizeOrders converts a slice of raw orders.
func (n *Normalizer) NormalizeOrders(data []binanceOrder) []core.Order {
	orders := make([]core.Order, 0, len(data))
	for i := range data {
		orders = append(orders, *n.NormalizeOrder(&data[i]))
	}
	return orders
}

// NormalizeOrderList converts a raw OCO response.
func (n *Normalizer) NormalizeOrderList(data *binanceOrderList) *core.OrderList {
	return &core.OrderList{
		ListID:        data.OrderListID,
		ClientListID:  data.ListClientOrderID,
		Symbol:        data.Symbol,
		ListStatus:    data.ListOrderStatus,
		Orders:        n.NormalizeOrders(data.OrderReports),
		TransactionAt: time.UnixMilli(data.TransactionTime),
	}
}

// NormalizeExchangeInfo converts raw exchange rules, flattening the filters
// each symbol carries into the canonical SymbolInfo fields.
func (n *Normalizer) NormalizeExchangeInfo(data *binanceExchangeInfo) *core.ExchangeInfo {
	info := &core.ExchangeInfo{
		Timezone:   data.Timezone,
		ServerTime: time.UnixMilli(data.ServerTime),
		Symbols:    make([]core.SymbolInfo, 0, len(data.Symbols)),
	}

	for _, s := range data.Symbols {
		si := core.SymbolInfo{
			Symbol:     s.Symbol,
			Status:     s.Status,
			BaseAsset:  s.BaseAsset,
			QuoteAsset: s.QuoteAsset,
		}
		for _, f := range s.Filters {
			switch f.FilterType {
			case "LOT_SIZE":
				si.MinQty = f.MinQty
				si.MaxQty = f.MaxQty
				si.StepSize = f.StepSize
			case "NOTIONAL", "MIN_NOTIONAL":
				si.MinNotional = f.MinNotional
			case "PRICE_FILTER":
				si.TickSize = f.TickSize
			}
		}
		info.Symbols = append(info.Symbols, si)
	}
	return info
}

func parseOrderStatus(status string) core.OrderStatus {
	switch status {
	case "NEW":
		return core.StatusNew
	case "PARTIALLY_FILLED":
		return core.StatusPartiallyFilled
	case "FILLED":
		return core.StatusFilled
	case "CANCELED", "PENDING_CANCEL":
		return core.StatusCanceled
	case "REJECTED":
		return core.StatusRejected
	case "EXPIRED", "EXPIRED_IN_MATCH":
		return core.StatusExpired
	default:
		return core.StatusNew
	}
}
