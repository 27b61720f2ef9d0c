package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// MarketData exposes the latest known price per symbol.
type MarketData interface {
	Price(symbol string) (float64, bool)
	Snapshot() map[string]float64
}

var symbolPattern = regexp.MustCompile(`^[A-Z0-9]{5,12}$`)

// ValidSymbol reports whether a ticker symbol is well formed (e.g. BTCUSDT).
func ValidSymbol(symbol string) bool {
	return symbolPattern.MatchString(symbol)
}

// MarketFeed keeps a live price snapshot from a Binance-style miniTicker
// websocket stream, falling back to the REST snapshot endpoint when the
// stream is unavailable.
type MarketFeed struct {
	cfg    *MarketConfig
	client *http.Client

	mu     sync.RWMutex
	prices map[string]float64

	cancel context.CancelFunc
	done   chan struct{}
}

// NewMarketFeed creates a feed for the configured symbols. Call Start to
// begin streaming.
func NewMarketFeed(cfg *MarketConfig) *MarketFeed {
	return &MarketFeed{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		prices: make(map[string]float64),
		done:   make(chan struct{}),
	}
}

// Price returns the latest price for the symbol, false when never seen.
func (f *MarketFeed) Price(symbol string) (float64, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.prices[strings.ToUpper(symbol)]
	return p, ok
}

// Snapshot copies the full price table, used to capture a consistent view
// before applying a trading transition.
func (f *MarketFeed) Snapshot() map[string]float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]float64, len(f.prices))
	for k, v := range f.prices {
		out[k] = v
	}
	return out
}

// SetPrice records a price. Exported for the snapshot path and tests.
func (f *MarketFeed) SetPrice(symbol string, price float64) {
	f.mu.Lock()
	f.prices[strings.ToUpper(symbol)] = price
	f.mu.Unlock()
}

// Start seeds prices from the snapshot endpoint and launches the stream loop.
func (f *MarketFeed) Start(ctx context.Context) {
	ctx, f.cancel = context.WithCancel(ctx)
	if err := f.refreshSnapshot(ctx); err != nil {
		log.Warn().Err(err).Msg("market snapshot seed failed")
	}
	go f.streamLoop(ctx)
}

// Close stops the stream loop and waits for it to exit.
func (f *MarketFeed) Close() {
	if f.cancel != nil {
		f.cancel()
		<-f.done
	}
}

type miniTicker struct {
	Symbol string `json:"s"`
	Close  string `json:"c"`
}

type snapshotEntry struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

func (f *MarketFeed) refreshSnapshot(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cfg.SnapshotURL, nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("snapshot status %d", resp.StatusCode)
	}

	var entries []snapshotEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return err
	}
	wanted := make(map[string]bool, len(f.cfg.Symbols))
	for _, s := range f.cfg.Symbols {
		wanted[strings.ToUpper(s)] = true
	}
	for _, e := range entries {
		if !wanted[strings.ToUpper(e.Symbol)] {
			continue
		}
		if p, err := strconv.ParseFloat(e.Price, 64); err == nil {
			f.SetPrice(e.Symbol, p)
		}
	}
	return nil
}

func (f *MarketFeed) streamLoop(ctx context.Context) {
	defer close(f.done)
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		started := time.Now()
		if err := f.streamOnce(ctx); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Dur("retry_in", backoff).Msg("market stream disconnected")
			// Keep settlement math usable while the stream is down.
			if err := f.refreshSnapshot(ctx); err != nil {
				log.Warn().Err(err).Msg("market snapshot fallback failed")
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff, time.Since(started))
	}
}

// nextBackoff doubles the reconnect delay up to 30s. A connection that stayed
// up for a minute counts as recovered, so the next drop starts over at 1s
// instead of staying pinned at the ceiling from old instability.
func nextBackoff(prev, connected time.Duration) time.Duration {
	if connected >= time.Minute {
		return time.Second
	}
	next := prev * 2
	if next > 30*time.Second {
		next = 30 * time.Second
	}
	return next
}

func (f *MarketFeed) streamOnce(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.cfg.StreamURL, nil)
	if err != nil {
		return fmt.Errorf("dial stream: %w", err)
	}
	defer conn.Close()

	streams := make([]string, 0, len(f.cfg.Symbols))
	for _, s := range f.cfg.Symbols {
		streams = append(streams, strings.ToLower(s)+"@miniTicker")
	}
	sub := map[string]any{"method": "SUBSCRIBE", "params": streams, "id": 1}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		var tick miniTicker
		if err := conn.ReadJSON(&tick); err != nil {
			return err
		}
		if tick.Symbol == "" {
			continue // subscription ack
		}
		if p, err := strconv.ParseFloat(tick.Close, 64); err == nil {
			f.SetPrice(tick.Symbol, p)
		}
	}
}
