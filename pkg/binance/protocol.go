package binance

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"resty.dev/v3"

	"binancemcp/pkg/core"
)

// Protocol builds exchange-specific requests, signs them, and parses
// responses into canonical types.
type Protocol struct {
	normalizer *Normalizer
}

// NewProtocol creates a Binance spot protocol instance.
func NewProtocol() *Protocol {
	return &Protocol{normalizer: NewNormalizer()}
}

// SupportedOperations returns the closed set of operations this protocol
// can build requests for.
func (p *Protocol) SupportedOperations() []core.Operation {
	return []core.Operation{
		core.OpGetServerTime,
		core.OpGetExchangeInfo,
		core.OpGetTicker,
		core.OpGetPrice,
		core.OpGetOrderBook,
		core.OpGetKlines,
		core.OpGetBalances,
		core.OpGetOpenOrders,
		core.OpPlaceLimitOrder,
		core.OpPlaceOCOOrder,
		core.OpCancelOrder,
	}
}

// BuildRequest constructs the HTTP request descriptor for the given
// operation. Weights follow the published /api/v3 weight table.
func (p *Protocol) BuildRequest(op core.Operation, params core.Params) (*core.Request, error) {
	switch op {
	case core.OpGetServerTime:
		return core.NewRequest(http.MethodGet, "/api/v3/time").SetWeight(1), nil
	case core.OpGetExchangeInfo:
		return p.buildExchangeInfoRequest(params)
	case core.OpGetTicker:
		return p.buildTickerRequest(params)
	case core.OpGetPrice:
		return p.buildPriceRequest(params)
	case core.OpGetOrderBook:
		return p.buildOrderBookRequest(params)
	case core.OpGetKlines:
		return p.buildKlinesRequest(params)
	case core.OpGetBalances:
		return core.NewRequest(http.MethodGet, "/api/v3/account").
			SetWeight(20).
			SetRequireAuth(true), nil
	case core.OpGetOpenOrders:
		return p.buildOpenOrdersRequest(params)
	case core.OpPlaceLimitOrder:
		return p.buildLimitOrderRequest(params)
	case core.OpPlaceOCOOrder:
		return p.buildOCOOrderRequest(params)
	case core.OpCancelOrder:
		return p.buildCancelOrderRequest(params)
	default:
		return nil, core.NewError(core.KindInternal, fmt.Sprintf("unsupported operation: %s", op))
	}
}

func (p *Protocol) buildExchangeInfoRequest(params core.Params) (*core.Request, error) {
	req := core.NewRequest(http.MethodGet, "/api/v3/exchangeInfo").SetWeight(20)
	if symbol := optionalString(params, "symbol"); symbol != "" {
		req.SetQuery("symbol", formatSymbol(symbol))
	}
	return req, nil
}

func (p *Protocol) buildTickerRequest(params core.Params) (*core.Request, error) {
	symbol, err := requiredString(params, "symbol")
	if err != nil {
		return nil, err
	}
	return core.NewRequest(http.MethodGet, "/api/v3/ticker/24hr").
		SetQuery("symbol", formatSymbol(symbol)).
		SetWeight(2), nil
}

func (p *Protocol) buildPriceRequest(params core.Params) (*core.Request, error) {
	symbol, err := requiredString(params, "symbol")
	if err != nil {
		return nil, err
	}
	return core.NewRequest(http.MethodGet, "/api/v3/ticker/price").
		SetQuery("symbol", formatSymbol(symbol)).
		SetWeight(2), nil
}

func (p *Protocol) buildOrderBookRequest(params core.Params) (*core.Request, error) {
	symbol, err := requiredString(params, "symbol")
	if err != nil {
		return nil, err
	}
	limit := optionalInt(params, "limit", 100)

	return core.NewRequest(http.MethodGet, "/api/v3/depth").
		SetQuery("symbol", formatSymbol(symbol)).
		SetQuery("limit", strconv.Itoa(limit)).
		SetWeight(depthWeight(limit)), nil
}

// depthWeight maps a depth limit to its request weight per the Binance
// weight table.
func depthWeight(limit int) int {
	switch {
	case limit <= 100:
		return 5
	case limit <= 500:
		return 25
	case limit <= 1000:
		return 50
	default:
		return 250
	}
}

func (p *Protocol) buildKlinesRequest(params core.Params) (*core.Request, error) {
	symbol, err := requiredString(params, "symbol")
	if err != nil {
		return nil, err
	}
	interval := optionalStringDefault(params, "interval", "1m")
	limit := optionalInt(params, "limit", 500)

	return core.NewRequest(http.MethodGet, "/api/v3/klines").
		SetQuery("symbol", formatSymbol(symbol)).
		SetQuery("interval", interval).
		SetQuery("limit", strconv.Itoa(limit)).
		SetWeight(2), nil
}

func (p *Protocol) buildOpenOrdersRequest(params core.Params) (*core.Request, error) {
	req := core.NewRequest(http.MethodGet, "/api/v3/openOrders").SetRequireAuth(true)
	if symbol := optionalString(params, "symbol"); symbol != "" {
		req.SetQuery("symbol", formatSymbol(symbol))
		req.SetWeight(6)
	} else {
		// Querying every symbol is drastically more expensive.
		req.SetWeight(80)
	}
	return req, nil
}

func (p *Protocol) buildLimitOrderRequest(params core.Params) (*core.Request, error) {
	symbol, err := requiredString(params, "symbol")
	if err != nil {
		return nil, err
	}
	side, err := requiredString(params, "side")
	if err != nil {
		return nil, err
	}
	price, err := requiredString(params, "price")
	if err != nil {
		return nil, err
	}
	qty, err := requiredString(params, "qty")
	if err != nil {
		return nil, err
	}

	req := core.NewRequest(http.MethodPost, "/api/v3/order").
		SetQuery("symbol", formatSymbol(symbol)).
		SetQuery("side", strings.ToUpper(side)).
		SetQuery("type", "LIMIT").
		SetQuery("timeInForce", strings.ToUpper(optionalStringDefault(params, "tif", "GTC"))).
		SetQuery("price", price).
		SetQuery("quantity", qty).
		SetQuery("newOrderRespType", "RESULT").
		SetWeight(1).
		SetClass(core.ClassOrders).
		SetRequireAuth(true)

	if clientID := optionalString(params, "client_id"); clientID != "" {
		req.SetQuery("newClientOrderId", clientID)
	}
	return req, nil
}

func (p *Protocol) buildOCOOrderRequest(params core.Params) (*core.Request, error) {
	symbol, err := requiredString(params, "symbol")
	if err != nil {
		return nil, err
	}
	side, err := requiredString(params, "side")
	if err != nil {
		return nil, err
	}
	qty, err := requiredString(params, "quantity")
	if err != nil {
		return nil, err
	}
	price, err := requiredString(params, "price")
	if err != nil {
		return nil, err
	}
	stop, err := requiredString(params, "stop")
	if err != nil {
		return nil, err
	}
	stopLimit, err := requiredString(params, "stop_limit")
	if err != nil {
		return nil, err
	}

	req := core.NewRequest(http.MethodPost, "/api/v3/order/oco").
		SetQuery("symbol", formatSymbol(symbol)).
		SetQuery("side", strings.ToUpper(side)).
		SetQuery("quantity", qty).
		SetQuery("price", price).
		SetQuery("stopPrice", stop).
		SetQuery("stopLimitPrice", stopLimit).
		SetQuery("stopLimitTimeInForce", strings.ToUpper(optionalStringDefault(params, "tif", "GTC"))).
		SetQuery("newOrderRespType", "RESULT").
		SetWeight(1).
		SetClass(core.ClassOrders).
		SetRequireAuth(true)

	if clientID := optionalString(params, "client_id"); clientID != "" {
		req.SetQuery("listClientOrderId", clientID)
	}
	return req, nil
}

func (p *Protocol) buildCancelOrderRequest(params core.Params) (*core.Request, error) {
	symbol, err := requiredString(params, "symbol")
	if err != nil {
		return nil, err
	}

	orderID := optionalString(params, "order_id")
	clientOrderID := optionalString(params, "client_order_id")
	if orderID == "" && clientOrderID == "" {
		return nil, core.NewInvalidArgumentError([]string{"order_id or client_order_id is required"})
	}

	req := core.NewRequest(http.MethodDelete, "/api/v3/order").
		SetQuery("symbol", formatSymbol(symbol)).
		SetWeight(1).
		SetRequireAuth(true)

	if orderID != "" {
		req.SetQuery("orderId", orderID)
	}
	if clientOrderID != "" {
		req.SetQuery("origClientOrderId", clientOrderID)
	}
	return req, nil
}

// SignQuery adds timestamp, recvWindow, and signature parameters to the
// query values. The timestamp must already include the clock offset.
func (p *Protocol) SignQuery(values url.Values, creds *core.Credentials, timestamp time.Time, recvWindow time.Duration) error {
	if !creds.Configured() {
		return core.ErrNoCredentials
	}

	values.Set("timestamp", strconv.FormatInt(timestamp.UnixMilli(), 10))
	values.Set("recvWindow", strconv.FormatInt(recvWindow.Milliseconds(), 10))
	values.Set("signature", signHMAC(values.Encode(), creds.SecretKey))
	return nil
}

func signHMAC(message, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(message))
	return hex.EncodeToString(h.Sum(nil))
}

// binanceAPIError is the {code, msg} error body Binance returns.
type binanceAPIError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// Binance error codes the client needs to recognize.
const (
	codeInvalidTimestamp = -1021
	codeTooManyRequests  = -1003
	codeInvalidSignature = -1022
)

// ParseError decodes an error response into a structured core.Error.
func (p *Protocol) ParseError(resp *resty.Response) *core.Error {
	status := resp.StatusCode()

	var apiErr binanceAPIError
	if err := sonic.Unmarshal(resp.Bytes(), &apiErr); err != nil || apiErr.Code == 0 {
		if status >= 500 {
			return core.NewExchangeError(core.KindTransient, status, "", fmt.Sprintf("HTTP error: %s", resp.Status()))
		}
		return core.NewExchangeError(core.KindExchangeRejection, status, "", fmt.Sprintf("HTTP error: %s", resp.Status()))
	}

	kind := classifyError(status, apiErr.Code)
	e := core.NewExchangeError(kind, status, strconv.Itoa(apiErr.Code), apiErr.Msg)
	if kind == core.KindRateLimitExceeded {
		e.RetryAfter = retryAfterHeader(resp)
	}
	return e
}

func classifyError(status, code int) core.Kind {
	switch {
	case code == codeInvalidTimestamp:
		return core.KindClockSkew
	case status == http.StatusTooManyRequests, status == 418, code == codeTooManyRequests:
		// 418 is Binance's IP auto-ban escalation of 429.
		return core.KindRateLimitExceeded
	case status >= 500:
		return core.KindTransient
	default:
		return core.KindExchangeRejection
	}
}

func retryAfterHeader(resp *resty.Response) time.Duration {
	if v := resp.Header().Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return time.Minute
}

// ParseResponse parses a successful HTTP response into the canonical type
// for the operation.
func (p *Protocol) ParseResponse(op core.Operation, resp *resty.Response) (any, error) {
	if resp == nil {
		return nil, core.NewError(core.KindInternal, "nil response")
	}
	if resp.StatusCode() >= 400 {
		return nil, p.ParseError(resp)
	}

	body := resp.Bytes()

	switch op {
	case core.OpGetServerTime:
		var data binanceServerTime
		if err := sonic.Unmarshal(body, &data); err != nil {
			return nil, fmt.Errorf("unmarshal server time: %w", err)
		}
		return p.normalizer.NormalizeServerTime(&data), nil

	case core.OpGetExchangeInfo:
		var data binanceExchangeInfo
		if err := sonic.Unmarshal(body, &data); err != nil {
			return nil, fmt.Errorf("unmarshal exchange info: %w", err)
		}
		return p.normalizer.NormalizeExchangeInfo(&data), nil

	case core.OpGetTicker:
		var data binanceTicker
		if err := sonic.Unmarshal(body, &data); err != nil {
			return nil, fmt.Errorf("unmarshal ticker: %w", err)
		}
		return p.normalizer.NormalizeTicker(&data), nil

	case core.OpGetPrice:
		var data binancePrice
		if err := sonic.Unmarshal(body, &data); err != nil {
			return nil, fmt.Errorf("unmarshal price: %w", err)
		}
		return p.normalizer.NormalizePrice(&data), nil

	case core.OpGetOrderBook:
		var data binanceOrderBook
		if err := sonic.Unmarshal(body, &data); err != nil {
			return nil, fmt.Errorf("unmarshal order book: %w", err)
		}
		return p.normalizer.NormalizeOrderBook(&data, "")

	case core.OpGetKlines:
		var data []binanceKline
		if err := sonic.Unmarshal(body, &data); err != nil {
			return nil, fmt.Errorf("unmarshal klines: %w", err)
		}
		return p.normalizer.NormalizeKlines(data, "")

	case core.OpGetBalances:
		var data binanceAccount
		if err := sonic.Unmarshal(body, &data); err != nil {
			return nil, fmt.Errorf("unmarshal account: %w", err)
		}
		return p.normalizer.NormalizeBalances(&data), nil

	case core.OpGetOpenOrders:
		var data []binanceOrder
		if err := sonic.Unmarshal(body, &data); err != nil {
			return nil, fmt.Errorf("unmarshal orders: %w", err)
		}
		return p.normalizer.NormalizeOrders(data), nil

	case core.OpPlaceLimitOrder, core.OpCancelOrder:
		var data binanceOrder
		if err := sonic.Unmarshal(body, &data); err != nil {
			return nil, fmt.Errorf("unmarshal order: %w", err)
		}
		return p.normalizer.NormalizeOrder(&data), nil

	case core.OpPlaceOCOOrder:
		var data binanceOrderList
		if err := sonic.Unmarshal(body, &data); err != nil {
			return nil, fmt.Errorf("unmarshal order list: %w", err)
		}
		return p.normalizer.NormalizeOrderList(&data), nil

	default:
		var result any
		if err := sonic.Unmarshal(body, &result); err != nil {
			return nil, fmt.Errorf("unmarshal response: %w", err)
		}
		return result, nil
	}
}

// formatSymbol strips the slash from pair notation: "BTC/USDT" -> "BTCUSDT".
func formatSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "/", ""))
}

func requiredString(params core.Params, key string) (string, error) {
	val, ok := params[key]
	if !ok {
		return "", core.NewInvalidArgumentError([]string{fmt.Sprintf("missing required parameter: %s", key)})
	}
	str, ok := val.(string)
	if !ok {
		return "", core.NewInvalidArgumentError([]string{fmt.Sprintf("parameter %s must be a string", key)})
	}
	if str == "" {
		return "", core.NewInvalidArgumentError([]string{fmt.Sprintf("parameter %s cannot be empty", key)})
	}
	return str, nil
}

func optionalString(params core.Params, key string) string {
	if val, ok := params[key].(string); ok {
		return val
	}
	return ""
}

func optionalStringDefault(params core.Params, key, def string) string {
	if val, ok := params[key].(string); ok && val != "" {
		return val
	}
	return def
}

func optionalInt(params core.Params, key string, def int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
