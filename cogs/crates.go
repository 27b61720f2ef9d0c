package cogs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/bwmarrin/discordgo"

	"arcade-go/utils"
)

func bytesReader(b []byte) io.Reader { return bytes.NewReader(b) }

// crateReward is one weighted entry of the crate loot table.
type crateReward struct {
	Name   string
	Emoji  string
	Amount int64
	Weight int
}

var crateTable = []crateReward{
	{"Common stash", "🪨", 100, 50},
	{"Uncommon pouch", "🥉", 300, 30},
	{"Rare haul", "🥈", 750, 14},
	{"Epic vault", "🥇", 2000, 5},
	{"Legendary jackpot", "💎", 10000, 1},
}

// Crates handles /crate: debit the cost, roll the weighted table, credit the
// reward.
type Crates struct {
	Ledger utils.Ledger
	Events utils.EventPublisher
	Cfg    *utils.EconomyConfig
}

// Cmd is the slash command definition.
func (c *Crates) Cmd() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "crate",
		Description: fmt.Sprintf("Open a crate for %d coins", c.Cfg.CrateCost),
	}
}

// Handle opens one crate.
func (c *Crates) Handle(s *discordgo.Session, i *discordgo.InteractionCreate) {
	user := utils.InteractionUser(i)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	u, err := c.Ledger.GetUser(ctx, i.GuildID, user.ID)
	if err != nil {
		_ = utils.SendInteractionResponse(s, i, utils.ErrorEmbed("Crate", "Could not load your account."), nil, true)
		return
	}
	if _, err := c.Ledger.AdjustBalance(ctx, i.GuildID, user.ID, -c.Cfg.CrateCost); err != nil {
		if errors.Is(err, utils.ErrInsufficientFunds) {
			_ = utils.SendInteractionResponse(s, i, utils.InsufficientFundsEmbed(c.Cfg.CrateCost, u.Balance), nil, true)
			return
		}
		_ = utils.SendInteractionResponse(s, i, utils.ErrorEmbed("Crate", "Could not open the crate."), nil, true)
		return
	}

	reward := rollCrate(rand.Intn)
	after, err := c.Ledger.AdjustBalance(ctx, i.GuildID, user.ID, reward.Amount)
	var balance int64
	if err == nil {
		balance = after.Balance
	}

	c.Events.Publish("crate", map[string]any{
		"guild_id": i.GuildID, "user_id": user.ID,
		"reward": reward.Name, "amount": reward.Amount,
	})

	color := utils.ColorNeutral
	if reward.Amount > c.Cfg.CrateCost {
		color = utils.ColorWin
	}
	embed := utils.CreateBrandedEmbed(
		fmt.Sprintf("%s %s", reward.Emoji, reward.Name),
		fmt.Sprintf("The crate held **%s** %s!\nNew balance: **%s** %s",
			utils.FormatCoins(reward.Amount), utils.CoinEmoji,
			utils.FormatCoins(balance), utils.CoinEmoji),
		color,
	)
	_ = utils.SendInteractionResponse(s, i, embed, nil, false)
}

// rollCrate picks a weighted entry; intn is injectable for tests.
func rollCrate(intn func(int) int) crateReward {
	total := 0
	for _, r := range crateTable {
		total += r.Weight
	}
	roll := intn(total)
	for _, r := range crateTable {
		if roll < r.Weight {
			return r
		}
		roll -= r.Weight
	}
	return crateTable[0]
}
