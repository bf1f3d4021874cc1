package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binancemcp/pkg/core"
)

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := New()

	def := &ToolDefinition{Name: "get_ticker", Operation: core.OpGetTicker}
	require.NoError(t, r.Register(def))

	got, ok := r.Lookup("get_ticker")
	require.True(t, ok)
	assert.Equal(t, core.OpGetTicker, got.Operation)

	_, ok = r.Lookup("nope")
	assert.False(t, ok)
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	r := New()

	require.NoError(t, r.Register(&ToolDefinition{Name: "t"}))
	err := r.Register(&ToolDefinition{Name: "t"})
	assert.ErrorIs(t, err, core.ErrDuplicateTool)
}

func TestRegistry_RejectsUnnamed(t *testing.T) {
	r := New()
	assert.Error(t, r.Register(&ToolDefinition{}))
	assert.Error(t, r.Register(nil))
}

func TestRegistry_ListPreservesRegistrationOrder(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(&ToolDefinition{Name: "zz"}))
	require.NoError(t, r.Register(&ToolDefinition{Name: "aa"}))

	defs := r.List()
	require.Len(t, defs, 2)
	assert.Equal(t, "zz", defs[0].Name)
	assert.Equal(t, "aa", defs[1].Name)

	assert.Equal(t, []string{"aa", "zz"}, r.Names())
}

func TestRegistry_Validate_CollectsAllViolations(t *testing.T) {
	r := NewWithBuiltins()
	def, ok := r.Lookup("place_limit_order")
	require.True(t, ok)

	err := r.Validate(def, core.Params{
		"side":    "HOLD",
		"qty":     123,
		"bogus":   true,
		"another": "x",
	})
	require.Error(t, err)

	e := core.AsError(err)
	assert.Equal(t, core.KindInvalidArgument, e.Kind)

	// Missing symbol and price, bad side enum, wrong qty type, two unknowns.
	assert.Len(t, e.Fields, 6)
	assert.Contains(t, err.Error(), "symbol")
	assert.Contains(t, err.Error(), "price")
	assert.Contains(t, err.Error(), "side")
	assert.Contains(t, err.Error(), "qty")
	assert.Contains(t, err.Error(), "unknown parameter: another")
	assert.Contains(t, err.Error(), "unknown parameter: bogus")
}

func TestRegistry_Validate_EnumIsCaseInsensitive(t *testing.T) {
	r := NewWithBuiltins()
	def, ok := r.Lookup("place_limit_order")
	require.True(t, ok)

	err := r.Validate(def, core.Params{
		"symbol": "BTCUSDT",
		"side":   "buy",
		"price":  "50000",
		"qty":    "0.001",
	})
	assert.NoError(t, err)
}

func TestRegistry_Validate_IntegerAcceptsWholeFloats(t *testing.T) {
	r := NewWithBuiltins()
	def, ok := r.Lookup("get_order_book")
	require.True(t, ok)

	// JSON numbers arrive as float64.
	assert.NoError(t, r.Validate(def, core.Params{"symbol": "BTCUSDT", "limit": float64(100)}))

	err := r.Validate(def, core.Params{"symbol": "BTCUSDT", "limit": 99.5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limit")
}

func TestRegistry_Validate_EmptyRequiredString(t *testing.T) {
	r := NewWithBuiltins()
	def, ok := r.Lookup("get_ticker")
	require.True(t, ok)

	err := r.Validate(def, core.Params{"symbol": ""})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "symbol")
}

func TestRegistry_Validate_NoParamsToolRejectsAnyArgument(t *testing.T) {
	r := NewWithBuiltins()
	def, ok := r.Lookup("get_server_time")
	require.True(t, ok)

	assert.NoError(t, r.Validate(def, core.Params{}))

	err := r.Validate(def, core.Params{"symbol": "BTCUSDT"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown parameter: symbol")
}

func TestBuiltins_CoverEveryOperation(t *testing.T) {
	seen := make(map[core.Operation]bool)
	for _, def := range Builtins() {
		seen[def.Operation] = true
	}

	for _, op := range []core.Operation{
		core.OpGetServerTime, core.OpGetExchangeInfo, core.OpGetTicker,
		core.OpGetPrice, core.OpGetOrderBook, core.OpGetKlines,
		core.OpGetBalances, core.OpGetOpenOrders, core.OpPlaceLimitOrder,
		core.OpPlaceOCOOrder, core.OpCancelOrder,
	} {
		assert.True(t, seen[op], op.String())
	}
}

func TestToolDefinition_InputSchema(t *testing.T) {
	r := NewWithBuiltins()
	def, ok := r.Lookup("place_limit_order")
	require.True(t, ok)

	schema := def.InputSchema()
	assert.Equal(t, "object", schema.Type)
	assert.ElementsMatch(t, []string{"symbol", "side", "price", "qty"}, schema.Required)

	side, ok := schema.Properties["side"]
	require.True(t, ok)
	assert.Equal(t, "string", side.Type)
	assert.ElementsMatch(t, []any{"BUY", "SELL"}, side.Enum)
}
