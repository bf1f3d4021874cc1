// Package stream keeps a live view of last traded prices, fed by the
// exchange's mini-ticker WebSocket stream. The dispatcher's order guard
// reads it to bound limit prices against the market.
package stream

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/rs/zerolog"

	"binancemcp/pkg/binance"
)

// DefaultMaxAge is how long a cached price stays usable without an update.
const DefaultMaxAge = 30 * time.Second

type entry struct {
	price apd.Decimal
	at    time.Time
}

// PriceCache is a concurrent-safe last-price map with a staleness bound.
// A price older than maxAge is treated as absent.
type PriceCache struct {
	mu     sync.RWMutex
	prices map[string]entry
	maxAge time.Duration

	now func() time.Time
}

// NewPriceCache creates a cache; maxAge <= 0 uses DefaultMaxAge.
func NewPriceCache(maxAge time.Duration) *PriceCache {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &PriceCache{
		prices: make(map[string]entry),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Update stores the last price for a symbol.
func (c *PriceCache) Update(symbol string, price apd.Decimal, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[symbol] = entry{price: price, at: at}
}

// LastPrice returns the cached price for a symbol if it is fresh enough.
func (c *PriceCache) LastPrice(symbol string) (*apd.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.prices[symbol]
	if !ok || c.now().Sub(e.at) > c.maxAge {
		return nil, false
	}
	price := new(apd.Decimal).Set(&e.price)
	return price, true
}

// Len returns the number of tracked symbols, fresh or not.
func (c *PriceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.prices)
}

// Service ties a market-stream connection to a PriceCache and manages the
// symbol subscriptions.
type Service struct {
	client *binance.StreamClient
	cache  *PriceCache
	logger zerolog.Logger
}

// NewService creates a price service for the given stream URL.
func NewService(wsURL string, maxAge time.Duration, logger zerolog.Logger) *Service {
	s := &Service{
		client: binance.NewStreamClient(wsURL, logger),
		cache:  NewPriceCache(maxAge),
		logger: logger.With().Str("component", "price_service").Logger(),
	}
	s.client.OnTicker(func(mt binance.MiniTicker) {
		s.cache.Update(mt.Symbol, mt.Close, mt.EventTime)
	})
	return s
}

// Cache returns the underlying price cache.
func (s *Service) Cache() *PriceCache {
	return s.cache
}

// Start connects the stream and subscribes to the given symbols.
func (s *Service) Start(ctx context.Context, symbols ...string) error {
	if err := s.client.Connect(ctx); err != nil {
		return err
	}
	if len(symbols) > 0 {
		if err := s.client.Subscribe(symbols...); err != nil {
			return err
		}
	}
	s.logger.Info().Strs("symbols", symbols).Msg("price stream started")
	return nil
}

// Track adds symbols to the live subscription set.
func (s *Service) Track(symbols ...string) error {
	return s.client.Subscribe(symbols...)
}

// Close tears down the stream connection.
func (s *Service) Close() error {
	return s.client.Close()
}
