package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextBackoff(t *testing.T) {
	// rapid drops keep doubling up to the ceiling
	b := time.Second
	b = nextBackoff(b, time.Second)
	assert.Equal(t, 2*time.Second, b)
	b = nextBackoff(b, time.Second)
	assert.Equal(t, 4*time.Second, b)
	for i := 0; i < 10; i++ {
		b = nextBackoff(b, time.Second)
	}
	assert.Equal(t, 30*time.Second, b)

	// a long-lived connection resets the ladder
	b = nextBackoff(b, 2*time.Minute)
	assert.Equal(t, time.Second, b)

	// just under the recovery threshold keeps climbing
	assert.Equal(t, 2*time.Second, nextBackoff(time.Second, 59*time.Second))
}

func TestMarketFeedPrices(t *testing.T) {
	f := NewMarketFeed(&MarketConfig{Symbols: []string{"BTCUSDT"}})
	_, ok := f.Price("BTCUSDT")
	assert.False(t, ok)

	f.SetPrice("btcusdt", 42000.5)
	p, ok := f.Price("BTCUSDT")
	assert.True(t, ok)
	assert.Equal(t, 42000.5, p)

	snap := f.Snapshot()
	assert.Equal(t, map[string]float64{"BTCUSDT": 42000.5}, snap)
	// the snapshot is a copy
	snap["BTCUSDT"] = 1
	p, _ = f.Price("BTCUSDT")
	assert.Equal(t, 42000.5, p)
}
