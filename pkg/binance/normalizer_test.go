package binance

import (
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binancemcp/pkg/core"
)

func TestNormalizer_Ticker(t *testing.T) {
	raw := []byte(`{
		"symbol": "BTCUSDT",
		"lastPrice": "50123.45",
		"bidPrice": "50123.00",
		"askPrice": "50124.00",
		"highPrice": "51000.00",
		"lowPrice": "49000.00",
		"volume": "12345.678",
		"priceChangePercent": "-1.25"
	}`)

	var data binanceTicker
	require.NoError(t, sonic.Unmarshal(raw, &data))

	ticker := NewNormalizer().NormalizeTicker(&data)
	assert.Equal(t, "BTCUSDT", ticker.Symbol)
	assert.Equal(t, "50123.45", ticker.Last.String())
	assert.Equal(t, "-1.25", ticker.PriceChangePercent.String())
	assert.False(t, ticker.Timestamp.IsZero())
}

func TestNormalizer_OrderBook(t *testing.T) {
	data := &binanceOrderBook{
		LastUpdateID: 42,
		Bids:         [][]string{{"50000.00", "1.5"}, {"49999.00", "2.0"}},
		Asks:         [][]string{{"50001.00", "0.7"}},
	}

	book, err := NewNormalizer().NormalizeOrderBook(data, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", book.Symbol)
	assert.Equal(t, int64(42), book.LastUpdateID)
	require.Len(t, book.Bids, 2)
	require.Len(t, book.Asks, 1)
	assert.Equal(t, "50000.00", book.Bids[0].Price.String())
	assert.Equal(t, "0.7", book.Asks[0].Quantity.String())
}

func TestNormalizer_OrderBook_Malformed(t *testing.T) {
	data := &binanceOrderBook{Bids: [][]string{{"not-a-number", "1"}}}

	_, err := NewNormalizer().NormalizeOrderBook(data, "BTCUSDT")
	assert.Error(t, err)
}

func TestNormalizer_Klines(t *testing.T) {
	raw := []byte(`[
		[1700000000000, "100.0", "110.0", "95.0", "105.0", "1234.5", 1700000059999, "0", 0, "0", "0", "0"]
	]`)

	var data []binanceKline
	require.NoError(t, sonic.Unmarshal(raw, &data))

	klines, err := NewNormalizer().NormalizeKlines(data, "ETHUSDT")
	require.NoError(t, err)
	require.Len(t, klines, 1)

	k := klines[0]
	assert.Equal(t, "ETHUSDT", k.Symbol)
	assert.Equal(t, time.UnixMilli(1700000000000), k.OpenTime)
	assert.Equal(t, time.UnixMilli(1700000059999), k.CloseTime)
	assert.Equal(t, "100.0", k.Open.String())
	assert.Equal(t, "105.0", k.Close.String())
	assert.Equal(t, "1234.5", k.Volume.String())
}

func TestNormalizer_Klines_TruncatedEntry(t *testing.T) {
	_, err := NewNormalizer().NormalizeKlines([]binanceKline{{float64(1), "1"}}, "X")
	assert.Error(t, err)
}

func TestNormalizer_Balances_DropsEmpty(t *testing.T) {
	raw := []byte(`{
		"canTrade": true,
		"balances": [
			{"asset": "BTC", "free": "0.5", "locked": "0.1"},
			{"asset": "DUST", "free": "0", "locked": "0.00000000"},
			{"asset": "USDT", "free": "0", "locked": "250.00"}
		]
	}`)

	var data binanceAccount
	require.NoError(t, sonic.Unmarshal(raw, &data))

	balances := NewNormalizer().NormalizeBalances(&data)
	require.Len(t, balances, 2)
	assert.Equal(t, "BTC", balances[0].Asset)
	assert.Equal(t, "0.6", balances[0].Total.String())
	assert.Equal(t, "USDT", balances[1].Asset)
	assert.Equal(t, "250.00", balances[1].Total.String())
}

func TestNormalizer_Order(t *testing.T) {
	raw := []byte(`{
		"symbol": "BTCUSDT",
		"orderId": 123456789,
		"clientOrderId": "my-order-1",
		"price": "50000.00",
		"origQty": "0.010",
		"executedQty": "0.005",
		"status": "PARTIALLY_FILLED",
		"type": "LIMIT",
		"side": "BUY",
		"timeInForce": "GTC",
		"transactTime": 1700000000000
	}`)

	var data binanceOrder
	require.NoError(t, sonic.Unmarshal(raw, &data))

	order := NewNormalizer().NormalizeOrder(&data)
	assert.Equal(t, "123456789", order.ID)
	assert.Equal(t, "my-order-1", order.ClientOrderID)
	assert.Equal(t, core.SideBuy, order.Side)
	assert.Equal(t, core.StatusPartiallyFilled, order.Status)
	assert.Equal(t, "0.010", order.Quantity.String())
	assert.Equal(t, time.UnixMilli(1700000000000), order.CreatedAt)
}

func TestNormalizer_OrderList(t *testing.T) {
	data := &binanceOrderList{
		OrderListID:       77,
		ListClientOrderID: "oco-1",
		ListOrderStatus:   "EXECUTING",
		Symbol:            "BTCUSDT",
		TransactionTime:   1700000000000,
		OrderReports: []binanceOrder{
			{Symbol: "BTCUSDT", OrderID: 1, Side: "SELL", Status: "NEW"},
			{Symbol: "BTCUSDT", OrderID: 2, Side: "SELL", Status: "NEW"},
		},
	}

	list := NewNormalizer().NormalizeOrderList(data)
	assert.Equal(t, int64(77), list.ListID)
	assert.Equal(t, "oco-1", list.ClientListID)
	require.Len(t, list.Orders, 2)
	assert.Equal(t, "1", list.Orders[0].ID)
	assert.Equal(t, core.SideSell, list.Orders[0].Side)
}

func TestNormalizer_ExchangeInfo_FlattensFilters(t *testing.T) {
	raw := []byte(`{
		"timezone": "UTC",
		"serverTime": 1700000000000,
		"symbols": [{
			"symbol": "BTCUSDT",
			"status": "TRADING",
			"baseAsset": "BTC",
			"quoteAsset": "USDT",
			"filters": [
				{"filterType": "PRICE_FILTER", "tickSize": "0.01"},
				{"filterType": "LOT_SIZE", "minQty": "0.00001", "maxQty": "9000", "stepSize": "0.00001"},
				{"filterType": "NOTIONAL", "minNotional": "5.00"}
			]
		}]
	}`)

	var data binanceExchangeInfo
	require.NoError(t, sonic.Unmarshal(raw, &data))

	info := NewNormalizer().NormalizeExchangeInfo(&data)
	require.Len(t, info.Symbols, 1)

	s := info.Symbols[0]
	assert.Equal(t, "BTCUSDT", s.Symbol)
	assert.Equal(t, "0.00001", s.MinQty.String())
	assert.Equal(t, "9000", s.MaxQty.String())
	assert.Equal(t, "5.00", s.MinNotional.String())
	assert.Equal(t, "0.01", s.TickSize.String())
}

func TestParseOrderStatus(t *testing.T) {
	assert.Equal(t, core.StatusNew, parseOrderStatus("NEW"))
	assert.Equal(t, core.StatusFilled, parseOrderStatus("FILLED"))
	assert.Equal(t, core.StatusCanceled, parseOrderStatus("PENDING_CANCEL"))
	assert.Equal(t, core.StatusExpired, parseOrderStatus("EXPIRED_IN_MATCH"))
	assert.Equal(t, core.StatusNew, parseOrderStatus("SOMETHING_ELSE"))
}
