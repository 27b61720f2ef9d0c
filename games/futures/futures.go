// Package futures implements the leveraged paper-trading game: position
// math, the interactive dashboard session, and the liquidation sweep.
package futures

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"arcade-go/models"
	"arcade-go/session"
	"arcade-go/utils"
)

const (
	// Kind is the game identifier used for routing and events.
	Kind = "futures"

	// MaxLeverage bounds position leverage.
	MaxLeverage = 100
	// NotionalCap bounds stake × leverage.
	NotionalCap = 50_000
)

var (
	ErrBadSymbol    = errors.New("symbol must look like BTCUSDT")
	ErrBadDirection = errors.New("direction must be LONG or SHORT")
	ErrBadStake     = errors.New("stake must be positive")
	ErrBadLeverage  = fmt.Errorf("leverage must be between 1 and %d", MaxLeverage)
	ErrNotionalCap  = fmt.Errorf("stake × leverage cannot exceed %s", utils.FormatCoins(NotionalCap))
	ErrNoPrice      = errors.New("no market price available for that symbol")
)

// ValidateOpen checks all open-position parameters before any state mutation
// or external call.
func ValidateOpen(symbol string, direction models.PositionDirection, stake int64, leverage int) error {
	if !utils.ValidSymbol(symbol) {
		return ErrBadSymbol
	}
	if direction != models.DirectionLong && direction != models.DirectionShort {
		return ErrBadDirection
	}
	if stake <= 0 {
		return ErrBadStake
	}
	if leverage < 1 || leverage > MaxLeverage {
		return ErrBadLeverage
	}
	if stake*int64(leverage) > NotionalCap {
		return ErrNotionalCap
	}
	return nil
}

// Quantity returns the position size for a stake at a given entry price.
func Quantity(stake int64, leverage int, entryPrice float64) float64 {
	return float64(stake) * float64(leverage) / entryPrice
}

// Average folds an additional stake at the current price into the position,
// recomputing the entry price as the weighted-average cost basis.
func Average(p *models.Position, addStake int64, price float64) {
	addQty := Quantity(addStake, p.Leverage, price)
	total := p.Quantity + addQty
	if total <= 0 {
		return
	}
	p.EntryPrice = (p.EntryPrice*p.Quantity + price*addQty) / total
	p.Quantity = total
	p.Stake += addStake
}

// ClosePayout is the amount credited back when a position closes at the given
// price: the original stake plus signed PnL, never negative.
func ClosePayout(p *models.Position, price float64) int64 {
	payout := float64(p.Stake) + p.PnLAmount(price)
	if payout < 0 {
		return 0
	}
	return int64(payout)
}

// State is the dashboard session state: a working copy of the user's open
// positions plus the last price snapshot.
type State struct {
	Owner     string
	Positions []models.Position
	Selected  string
	Prices    map[string]float64
	StartedAt time.Time
	Over      bool
}

// Game implements session.Game for the trading dashboard. The ledger is used
// only to load the opening snapshot; all mutation goes through Apply effects.
type Game struct {
	Ledger utils.Ledger
	Market utils.MarketData
}

// Kind returns the game identifier.
func (g *Game) Kind() string { return Kind }

// Initial loads the user's open positions and the current price snapshot.
func (g *Game) Initial(args map[string]string) (session.State, error) {
	ctx, cancel := contextWithTimeout()
	defer cancel()
	positions, err := g.Ledger.ListPositions(ctx, args["guild"], args["owner"])
	if err != nil {
		return nil, fmt.Errorf("load positions: %w", err)
	}
	st := State{
		Owner:     args["owner"],
		Prices:    g.Market.Snapshot(),
		StartedAt: time.Now(),
	}
	for _, p := range positions {
		st.Positions = append(st.Positions, *p)
	}
	return st, nil
}

// Apply handles dashboard actions. Closing a position requests the ledger
// effects (delete + credit) and drops it from the working copy; refresh pulls
// the action's price snapshot into the view.
func (g *Game) Apply(st session.State, act session.Action) (session.State, session.Step) {
	s := st.(State)

	switch act.Name {
	case session.ActStop:
		s.Over = true
		return s, session.Step{Terminal: true, Reason: session.ReasonStop}
	case session.ActTimeout:
		s.Over = true
		return s, session.Step{Terminal: true, Reason: session.ReasonTimeout}
	case session.ActExpire:
		s.Over = true
		return s, session.Step{Terminal: true, Reason: session.ReasonExpired}

	case "select":
		s.Selected = act.Args["value"]
		s.Prices = mergePrices(s.Prices, act.Prices)
		return s, session.Step{Moved: true}

	case "refresh":
		s.Prices = mergePrices(s.Prices, act.Prices)
		return s, session.Step{Moved: true}

	case "close":
		if s.Selected == "" {
			return s, session.Step{Invalid: true, Note: "Select a position first."}
		}
		idx := -1
		for i, p := range s.Positions {
			if p.ID == s.Selected {
				idx = i
				break
			}
		}
		if idx < 0 {
			return s, session.Step{Invalid: true, Note: "That position is no longer open."}
		}
		pos := s.Positions[idx]
		price, ok := act.Prices[pos.Symbol]
		if !ok {
			return s, session.Step{Invalid: true, Note: "No market price available right now."}
		}

		payout := ClosePayout(&pos, price)
		s.Positions = append(s.Positions[:idx], s.Positions[idx+1:]...)
		s.Selected = ""
		s.Prices = mergePrices(s.Prices, act.Prices)

		effects := []session.Effect{{Kind: session.EffectClosePosition, Position: &pos}}
		if payout > 0 {
			effects = append(effects, session.Effect{Kind: session.EffectCredit, Amount: payout, Position: &pos})
		}
		note := fmt.Sprintf("Closed %s %s at %.4f for %s %s (%.1f%%).",
			pos.Direction, pos.Symbol, price, utils.FormatCoins(payout), utils.CoinEmoji, pos.PnLPercent(price))
		return s, session.Step{Moved: true, Note: note, Effects: effects}
	}

	return s, session.Step{Invalid: true, Note: "Unknown action."}
}

// Terminal reports whether the dashboard was closed.
func (g *Game) Terminal(st session.State) bool {
	return st.(State).Over
}

// Settle is a no-op for the dashboard: position effects are applied per
// action, and open positions stay live under the sweep after the session ends.
func (g *Game) Settle(st session.State, reason string) session.Settlement {
	return session.Settlement{}
}

// View renders the positions table with select/close/refresh controls.
func (g *Game) View(st session.State) (*discordgo.MessageEmbed, []discordgo.MessageComponent) {
	s := st.(State)
	embed := utils.CreateBrandedEmbed("Futures", positionsTable(s), utils.ColorPlaying)
	embed.Footer = &discordgo.MessageEmbedFooter{
		Text: "Open positions with /futures open. Liquidation hits at -100% PnL.",
	}
	return embed, controls(s)
}

// FinalView renders the closed dashboard. Positions stay open.
func (g *Game) FinalView(st session.State, out *session.Outcome) *discordgo.MessageEmbed {
	s := st.(State)
	embed := utils.CreateBrandedEmbed("Futures — Dashboard Closed", positionsTable(s), utils.ColorNeutral)
	embed.Footer = &discordgo.MessageEmbedFooter{
		Text: "Open positions remain live and are watched for liquidation.",
	}
	return embed
}

func positionsTable(s State) string {
	if len(s.Positions) == 0 {
		return "No open positions."
	}
	var b strings.Builder
	for _, p := range s.Positions {
		marker := "▫️"
		if p.ID == s.Selected {
			marker = "🔹"
		}
		if price, ok := s.Prices[p.Symbol]; ok {
			b.WriteString(fmt.Sprintf("%s **%s %s** x%d — entry %.4f, mark %.4f, PnL **%+.1f%%** (%+.0f %s)\n",
				marker, p.Direction, p.Symbol, p.Leverage, p.EntryPrice, price,
				p.PnLPercent(price), p.PnLAmount(price), utils.CoinEmoji))
		} else {
			b.WriteString(fmt.Sprintf("%s **%s %s** x%d — entry %.4f, no market price\n",
				marker, p.Direction, p.Symbol, p.Leverage, p.EntryPrice))
		}
	}
	return b.String()
}

func controls(s State) []discordgo.MessageComponent {
	id := func(action string) string { return Kind + ":" + action + ":" + s.Owner }
	comps := []discordgo.MessageComponent{}

	if len(s.Positions) > 0 {
		options := make([]discordgo.SelectMenuOption, 0, len(s.Positions))
		for _, p := range s.Positions {
			options = append(options, discordgo.SelectMenuOption{
				Label:   fmt.Sprintf("%s %s x%d", p.Direction, p.Symbol, p.Leverage),
				Value:   p.ID,
				Default: p.ID == s.Selected,
			})
		}
		comps = append(comps, discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.SelectMenu{CustomID: id("select"), Placeholder: "Pick a position", Options: options},
		}})
	}

	comps = append(comps, discordgo.ActionsRow{Components: []discordgo.MessageComponent{
		discordgo.Button{CustomID: id("close"), Label: "Close Position", Style: discordgo.DangerButton, Disabled: len(s.Positions) == 0},
		discordgo.Button{CustomID: id("refresh"), Label: "Refresh", Style: discordgo.SecondaryButton},
		discordgo.Button{CustomID: id(session.ActStop), Label: "Done", Style: discordgo.SecondaryButton},
	}})
	return comps
}

func mergePrices(old, fresh map[string]float64) map[string]float64 {
	if len(fresh) == 0 {
		return old
	}
	out := make(map[string]float64, len(old)+len(fresh))
	for k, v := range old {
		out[k] = v
	}
	for k, v := range fresh {
		out[k] = v
	}
	return out
}
