package futures

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"arcade-go/models"
	"arcade-go/session"
	"arcade-go/utils"
)

func contextWithTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

// Handlers wires the futures slash commands to the collaborators.
type Handlers struct {
	Shell  *session.Shell
	Ledger utils.Ledger
	Market utils.MarketData
	Events utils.EventPublisher
}

// Cmd is the /futures command with its subcommands.
func Cmd() *discordgo.ApplicationCommand {
	leverageMin := float64(1)
	return &discordgo.ApplicationCommand{
		Name:        "futures",
		Description: "Paper-trade crypto futures with leverage.",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "view",
				Description: "Open your positions dashboard",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "open",
				Description: "Open a leveraged position",
				Options: []*discordgo.ApplicationCommandOption{
					{Type: discordgo.ApplicationCommandOptionString, Name: "symbol", Description: "Ticker symbol (e.g. BTCUSDT)", Required: true},
					{Type: discordgo.ApplicationCommandOptionString, Name: "direction", Description: "LONG or SHORT", Required: true, Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "LONG", Value: "LONG"},
						{Name: "SHORT", Value: "SHORT"},
					}},
					{Type: discordgo.ApplicationCommandOptionString, Name: "stake", Description: "Stake amount (e.g. 500, 10k, half)", Required: true},
					{Type: discordgo.ApplicationCommandOptionInteger, Name: "leverage", Description: "Leverage (1-100)", Required: true, MinValue: &leverageMin, MaxValue: MaxLeverage},
					{Type: discordgo.ApplicationCommandOptionNumber, Name: "take_profit", Description: "Optional take-profit price"},
					{Type: discordgo.ApplicationCommandOptionNumber, Name: "stop_loss", Description: "Optional stop-loss price"},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "average",
				Description: "Add stake to a position at the current price",
				Options: []*discordgo.ApplicationCommandOption{
					{Type: discordgo.ApplicationCommandOptionString, Name: "symbol", Description: "Symbol of your open position", Required: true},
					{Type: discordgo.ApplicationCommandOptionString, Name: "stake", Description: "Additional stake amount", Required: true},
				},
			},
		},
	}
}

// HandleCommand dispatches /futures subcommands.
func (h *Handlers) HandleCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	if len(data.Options) == 0 {
		return
	}
	switch data.Options[0].Name {
	case "view":
		h.Shell.Launch(s, i, &Game{Ledger: h.Ledger, Market: h.Market}, nil)
	case "open":
		h.handleOpen(s, i, data.Options[0].Options)
	case "average":
		h.handleAverage(s, i, data.Options[0].Options)
	}
}

// HandleComponent routes dashboard button and menu presses.
func (h *Handlers) HandleComponent(s *discordgo.Session, i *discordgo.InteractionCreate) {
	h.Shell.Route(s, i, Kind)
}

func (h *Handlers) handleOpen(s *discordgo.Session, i *discordgo.InteractionCreate, opts []*discordgo.ApplicationCommandInteractionDataOption) {
	user := utils.InteractionUser(i)
	var symbol, direction, stakeStr string
	var leverage int
	var takeProfit, stopLoss *float64
	for _, opt := range opts {
		switch opt.Name {
		case "symbol":
			symbol = strings.ToUpper(strings.TrimSpace(opt.StringValue()))
		case "direction":
			direction = opt.StringValue()
		case "stake":
			stakeStr = opt.StringValue()
		case "leverage":
			leverage = int(opt.IntValue())
		case "take_profit":
			v := opt.FloatValue()
			takeProfit = &v
		case "stop_loss":
			v := opt.FloatValue()
			stopLoss = &v
		}
	}

	ctx, cancel := contextWithTimeout()
	defer cancel()

	u, err := h.Ledger.GetUser(ctx, i.GuildID, user.ID)
	if err != nil {
		_ = utils.SendInteractionResponse(s, i, utils.ErrorEmbed("Futures", "Could not load your account."), nil, true)
		return
	}
	stake, err := utils.ParseBet(stakeStr, u.Balance)
	if err != nil || stake <= 0 {
		_ = utils.SendInteractionResponse(s, i, utils.ErrorEmbed("Futures", "Invalid stake amount."), nil, true)
		return
	}
	dir := models.PositionDirection(direction)
	if err := ValidateOpen(symbol, dir, stake, leverage); err != nil {
		_ = utils.SendInteractionResponse(s, i, utils.ErrorEmbed("Futures", err.Error()), nil, true)
		return
	}
	price, ok := h.Market.Price(symbol)
	if !ok || price <= 0 {
		_ = utils.SendInteractionResponse(s, i, utils.ErrorEmbed("Futures", ErrNoPrice.Error()), nil, true)
		return
	}

	// The debit re-checks the balance atomically; the earlier read may be
	// stale by now.
	if _, err := h.Ledger.AdjustBalance(ctx, i.GuildID, user.ID, -stake); err != nil {
		if errors.Is(err, utils.ErrInsufficientFunds) {
			_ = utils.SendInteractionResponse(s, i, utils.InsufficientFundsEmbed(stake, u.Balance), nil, true)
			return
		}
		_ = utils.SendInteractionResponse(s, i, utils.ErrorEmbed("Futures", "Could not place your stake."), nil, true)
		return
	}

	pos := &models.Position{
		GuildID:    i.GuildID,
		UserID:     user.ID,
		Symbol:     symbol,
		Direction:  dir,
		EntryPrice: price,
		Quantity:   Quantity(stake, leverage, price),
		Leverage:   leverage,
		Stake:      stake,
		TakeProfit: takeProfit,
		StopLoss:   stopLoss,
	}
	if err := h.Ledger.CreatePosition(ctx, pos); err != nil {
		log.Error().Err(err).Str("symbol", symbol).Msg("create position failed")
		if _, rerr := h.Ledger.AdjustBalance(ctx, i.GuildID, user.ID, stake); rerr != nil {
			log.Error().Err(rerr).Msg("refund after failed open")
		}
		_ = utils.SendInteractionResponse(s, i, utils.ErrorEmbed("Futures", "Could not open the position."), nil, true)
		return
	}

	h.Events.Publish("position.open", pos)

	embed := utils.CreateBrandedEmbed("Position Opened", "", utils.ColorWin)
	embed.Fields = []*discordgo.MessageEmbedField{
		{Name: "Position", Value: fmt.Sprintf("%s %s x%d", pos.Direction, pos.Symbol, pos.Leverage), Inline: true},
		{Name: "Entry", Value: fmt.Sprintf("%.4f", pos.EntryPrice), Inline: true},
		{Name: "Stake", Value: fmt.Sprintf("%s %s", utils.FormatCoins(stake), utils.CoinEmoji), Inline: true},
	}
	_ = utils.SendInteractionResponse(s, i, embed, nil, false)
}

func (h *Handlers) handleAverage(s *discordgo.Session, i *discordgo.InteractionCreate, opts []*discordgo.ApplicationCommandInteractionDataOption) {
	user := utils.InteractionUser(i)
	var symbol, stakeStr string
	for _, opt := range opts {
		switch opt.Name {
		case "symbol":
			symbol = strings.ToUpper(strings.TrimSpace(opt.StringValue()))
		case "stake":
			stakeStr = opt.StringValue()
		}
	}

	ctx, cancel := contextWithTimeout()
	defer cancel()

	positions, err := h.Ledger.ListPositions(ctx, i.GuildID, user.ID)
	if err != nil {
		_ = utils.SendInteractionResponse(s, i, utils.ErrorEmbed("Futures", "Could not load your positions."), nil, true)
		return
	}
	var pos *models.Position
	for _, p := range positions {
		if p.Symbol == symbol {
			pos = p
			break
		}
	}
	if pos == nil {
		_ = utils.SendInteractionResponse(s, i, utils.ErrorEmbed("Futures", "You have no open position on that symbol."), nil, true)
		return
	}

	u, err := h.Ledger.GetUser(ctx, i.GuildID, user.ID)
	if err != nil {
		_ = utils.SendInteractionResponse(s, i, utils.ErrorEmbed("Futures", "Could not load your account."), nil, true)
		return
	}
	stake, err := utils.ParseBet(stakeStr, u.Balance)
	if err != nil || stake <= 0 {
		_ = utils.SendInteractionResponse(s, i, utils.ErrorEmbed("Futures", "Invalid stake amount."), nil, true)
		return
	}
	if (pos.Stake+stake)*int64(pos.Leverage) > NotionalCap {
		_ = utils.SendInteractionResponse(s, i, utils.ErrorEmbed("Futures", ErrNotionalCap.Error()), nil, true)
		return
	}
	price, ok := h.Market.Price(symbol)
	if !ok || price <= 0 {
		_ = utils.SendInteractionResponse(s, i, utils.ErrorEmbed("Futures", ErrNoPrice.Error()), nil, true)
		return
	}

	if _, err := h.Ledger.AdjustBalance(ctx, i.GuildID, user.ID, -stake); err != nil {
		if errors.Is(err, utils.ErrInsufficientFunds) {
			_ = utils.SendInteractionResponse(s, i, utils.InsufficientFundsEmbed(stake, u.Balance), nil, true)
			return
		}
		_ = utils.SendInteractionResponse(s, i, utils.ErrorEmbed("Futures", "Could not place your stake."), nil, true)
		return
	}

	oldEntry := pos.EntryPrice
	Average(pos, stake, price)
	if err := h.Ledger.UpdatePosition(ctx, pos); err != nil {
		log.Error().Err(err).Str("position", pos.ID).Msg("average update failed")
		if _, rerr := h.Ledger.AdjustBalance(ctx, i.GuildID, user.ID, stake); rerr != nil {
			log.Error().Err(rerr).Msg("refund after failed average")
		}
		_ = utils.SendInteractionResponse(s, i, utils.ErrorEmbed("Futures", "Could not update the position."), nil, true)
		return
	}

	embed := utils.CreateBrandedEmbed("Position Averaged", "", utils.ColorWin)
	embed.Fields = []*discordgo.MessageEmbedField{
		{Name: "Position", Value: fmt.Sprintf("%s %s x%d", pos.Direction, pos.Symbol, pos.Leverage), Inline: true},
		{Name: "Entry", Value: fmt.Sprintf("%.4f → %.4f", oldEntry, pos.EntryPrice), Inline: true},
		{Name: "Total Stake", Value: fmt.Sprintf("%s %s", utils.FormatCoins(pos.Stake), utils.CoinEmoji), Inline: true},
	}
	_ = utils.SendInteractionResponse(s, i, embed, nil, false)
}

// Sweeper periodically force-closes liquidated positions and executes
// take-profit / stop-loss triggers.
type Sweeper struct {
	Ledger   utils.Ledger
	Market   utils.MarketData
	Events   utils.EventPublisher
	Interval time.Duration
}

// Run blocks until the context is cancelled.
func (w *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Sweeper) sweep(ctx context.Context) {
	positions, err := w.Ledger.ListAllPositions(ctx)
	if err != nil {
		log.Error().Err(err).Msg("liquidation sweep list failed")
		return
	}
	for _, pos := range positions {
		price, ok := w.Market.Price(pos.Symbol)
		if !ok || price <= 0 {
			continue
		}

		switch {
		case pos.Liquidated(price):
			// Margin exhausted: the stake is forfeited, nothing comes back.
			// The delete doubles as the settlement claim; losing the race to
			// another closer means it was already settled.
			if err := w.Ledger.DeletePosition(ctx, pos.ID); err != nil {
				if !errors.Is(err, utils.ErrPositionNotFound) {
					log.Error().Err(err).Str("position", pos.ID).Msg("liquidation delete failed")
				}
				continue
			}
			w.Events.Publish("position.liquidated", pos)
			log.Info().Str("position", pos.ID).Str("symbol", pos.Symbol).Msg("position liquidated")

		case triggered(pos, price):
			payout := ClosePayout(pos, price)
			if err := w.Ledger.DeletePosition(ctx, pos.ID); err != nil {
				if !errors.Is(err, utils.ErrPositionNotFound) {
					log.Error().Err(err).Str("position", pos.ID).Msg("trigger delete failed")
				}
				continue
			}
			if payout > 0 {
				if _, err := w.Ledger.AdjustBalance(ctx, pos.GuildID, pos.UserID, payout); err != nil {
					log.Error().Err(err).Str("position", pos.ID).Msg("trigger payout failed")
				}
			}
			w.Events.Publish("position.triggered", pos)
			log.Info().Str("position", pos.ID).Float64("price", price).Msg("tp/sl trigger closed")
		}
	}
}

// triggered reports whether the mark price crossed the position's take-profit
// or stop-loss level.
func triggered(p *models.Position, price float64) bool {
	if p.TakeProfit != nil {
		if p.Direction == models.DirectionLong && price >= *p.TakeProfit {
			return true
		}
		if p.Direction == models.DirectionShort && price <= *p.TakeProfit {
			return true
		}
	}
	if p.StopLoss != nil {
		if p.Direction == models.DirectionLong && price <= *p.StopLoss {
			return true
		}
		if p.Direction == models.DirectionShort && price >= *p.StopLoss {
			return true
		}
	}
	return false
}
