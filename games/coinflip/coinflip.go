// Package coinflip implements the instant coinflip wager.
package coinflip

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"arcade-go/utils"
)

const (
	// Kind is the game identifier used for XP and events.
	Kind = "coinflip"

	xpPerProfit = 2
	cooldown    = 15 * time.Second
)

// Handler wires /coinflip to the ledger.
type Handler struct {
	Ledger utils.Ledger
	Events utils.EventPublisher
}

// Cmd is the slash command definition.
func Cmd() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "coinflip",
		Description: "Flip a coin, double or nothing.",
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionString, Name: "bet", Description: "Bet amount (e.g. 500, 10k, half, all)", Required: true},
			{Type: discordgo.ApplicationCommandOptionString, Name: "side", Description: "Your call", Required: true, Choices: []*discordgo.ApplicationCommandOptionChoice{
				{Name: "Heads", Value: "heads"},
				{Name: "Tails", Value: "tails"},
			}},
		},
	}
}

// Handle resolves one flip: validate, debit, flip, credit on win.
func (h *Handler) Handle(s *discordgo.Session, i *discordgo.InteractionCreate) {
	user := utils.InteractionUser(i)
	var betStr, side string
	for _, opt := range i.ApplicationCommandData().Options {
		switch opt.Name {
		case "bet":
			betStr = opt.StringValue()
		case "side":
			side = opt.StringValue()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if until, err := h.Ledger.GetCooldown(ctx, i.GuildID, user.ID, Kind); err == nil && until != nil {
		_ = utils.SendInteractionResponse(s, i,
			utils.ErrorEmbed("Slow Down", fmt.Sprintf("You can flip again in %s.", time.Until(*until).Round(time.Second))), nil, true)
		return
	}

	u, err := h.Ledger.GetUser(ctx, i.GuildID, user.ID)
	if err != nil {
		_ = utils.SendInteractionResponse(s, i, utils.ErrorEmbed("Coinflip", "Could not load your account."), nil, true)
		return
	}
	bet, err := utils.ParseBet(betStr, u.Balance)
	if err != nil || bet <= 0 {
		_ = utils.SendInteractionResponse(s, i, utils.ErrorEmbed("Coinflip", "Invalid bet."), nil, true)
		return
	}

	// Debit re-checks the balance atomically.
	if _, err := h.Ledger.AdjustBalance(ctx, i.GuildID, user.ID, -bet); err != nil {
		if errors.Is(err, utils.ErrInsufficientFunds) {
			_ = utils.SendInteractionResponse(s, i, utils.InsufficientFundsEmbed(bet, u.Balance), nil, true)
			return
		}
		_ = utils.SendInteractionResponse(s, i, utils.ErrorEmbed("Coinflip", "Could not place your bet."), nil, true)
		return
	}

	result := "tails"
	if rand.Intn(2) == 0 {
		result = "heads"
	}
	won := result == side

	var balance int64
	profit := -bet
	if won {
		profit = bet
		if after, err := h.Ledger.AdjustBalance(ctx, i.GuildID, user.ID, 2*bet); err != nil {
			log.Error().Err(err).Msg("coinflip payout failed")
		} else {
			balance = after.Balance
		}
		if _, err := h.Ledger.AddXP(ctx, i.GuildID, user.ID, Kind, profit*xpPerProfit); err != nil {
			log.Error().Err(err).Msg("coinflip xp failed")
		}
	}

	if err := h.Ledger.SetCooldown(ctx, i.GuildID, user.ID, Kind, time.Now().Add(cooldown)); err != nil {
		log.Warn().Err(err).Msg("coinflip cooldown failed")
	}
	h.Events.Publish("settlement", utils.SettlementEvent{
		GuildID: i.GuildID, UserID: user.ID, Game: Kind,
		Earnings: profit, Reason: "flip", At: time.Now().UTC(),
	})

	title := "🪙 " + result
	color := utils.ColorLoss
	desc := fmt.Sprintf("It landed on **%s** — you lost **%s** %s.", result, utils.FormatCoins(bet), utils.CoinEmoji)
	if won {
		color = utils.ColorWin
		desc = fmt.Sprintf("It landed on **%s** — you won **%s** %s!\nNew balance: **%s** %s",
			result, utils.FormatCoins(bet), utils.CoinEmoji, utils.FormatCoins(balance), utils.CoinEmoji)
	}
	_ = utils.SendInteractionResponse(s, i, utils.CreateBrandedEmbed(title, desc, color), nil, false)
}
