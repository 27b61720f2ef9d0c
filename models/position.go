package models

import (
	"time"
)

// PositionDirection is the side of a leveraged futures position.
type PositionDirection string

const (
	DirectionLong  PositionDirection = "LONG"
	DirectionShort PositionDirection = "SHORT"
)

// Position is one open leveraged paper-trading position. A position is owned
// exclusively by one user within one guild and survives across interactions.
type Position struct {
	ID         string            `json:"id"`
	GuildID    string            `json:"guild_id"`
	UserID     string            `json:"user_id"`
	Symbol     string            `json:"symbol"`
	Direction  PositionDirection `json:"direction"`
	EntryPrice float64           `json:"entry_price"`
	Quantity   float64           `json:"quantity"`
	Leverage   int               `json:"leverage"`
	Stake      int64             `json:"stake"`
	TakeProfit *float64          `json:"take_profit,omitempty"`
	StopLoss   *float64          `json:"stop_loss,omitempty"`
	OpenedAt   time.Time         `json:"opened_at"`
}

// PnLPercent returns the leveraged profit ratio in percent, clamped so that a
// position can never lose more than its margin.
func (p *Position) PnLPercent(current float64) float64 {
	if p.EntryPrice <= 0 {
		return 0
	}
	move := (current - p.EntryPrice) / p.EntryPrice
	if p.Direction == DirectionShort {
		move = -move
	}
	pct := move * float64(p.Leverage) * 100
	if pct < -100 {
		return -100
	}
	return pct
}

// PnLAmount returns the absolute profit in currency units for the position at
// the given mark price, floored at the loss of the full stake.
func (p *Position) PnLAmount(current float64) float64 {
	amt := (current - p.EntryPrice) * p.Quantity
	if p.Direction == DirectionShort {
		amt = -amt
	}
	if amt < -float64(p.Stake) {
		return -float64(p.Stake)
	}
	return amt
}

// Liquidated reports whether the position has lost its entire margin.
func (p *Position) Liquidated(current float64) bool {
	return p.PnLPercent(current) <= -100
}
