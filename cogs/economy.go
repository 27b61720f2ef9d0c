// Package cogs holds the non-session command handlers: economy, social
// emotions, and crate openings.
package cogs

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"arcade-go/utils"
)

// Economy handles /balance, /daily and /profile.
type Economy struct {
	Ledger utils.Ledger
	Cfg    *utils.EconomyConfig
}

// Cmds returns the economy slash command definitions.
func (e *Economy) Cmds() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{Name: "balance", Description: "Check your coin balance"},
		{Name: "daily", Description: "Claim your daily reward"},
		{Name: "profile", Description: "View your rank, XP and balance"},
	}
}

// HandleBalance replies with the current balance.
func (e *Economy) HandleBalance(s *discordgo.Session, i *discordgo.InteractionCreate) {
	user := utils.InteractionUser(i)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	u, err := e.Ledger.GetUser(ctx, i.GuildID, user.ID)
	if err != nil {
		_ = utils.SendInteractionResponse(s, i, utils.ErrorEmbed("Balance", "Could not load your account."), nil, true)
		return
	}
	embed := utils.CreateBrandedEmbed(
		fmt.Sprintf("%s's Balance", user.Username),
		fmt.Sprintf("You have **%s** %s", utils.FormatCoins(u.Balance), utils.CoinEmoji),
		utils.BotColor,
	)
	_ = utils.SendInteractionResponse(s, i, embed, nil, false)
}

// HandleDaily credits the daily reward once per 24h window.
func (e *Economy) HandleDaily(s *discordgo.Session, i *discordgo.InteractionCreate) {
	user := utils.InteractionUser(i)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if until, err := e.Ledger.GetCooldown(ctx, i.GuildID, user.ID, "daily"); err == nil && until != nil {
		_ = utils.SendInteractionResponse(s, i,
			utils.ErrorEmbed("Daily", fmt.Sprintf("Already claimed. Come back in %s.", time.Until(*until).Round(time.Minute))), nil, true)
		return
	}

	u, err := e.Ledger.AdjustBalance(ctx, i.GuildID, user.ID, e.Cfg.DailyReward)
	if err != nil {
		_ = utils.SendInteractionResponse(s, i, utils.ErrorEmbed("Daily", "Could not credit your reward."), nil, true)
		return
	}
	if err := e.Ledger.SetCooldown(ctx, i.GuildID, user.ID, "daily", time.Now().Add(24*time.Hour)); err != nil {
		log.Warn().Err(err).Msg("daily cooldown failed")
	}

	embed := utils.CreateBrandedEmbed(
		"Daily Reward",
		fmt.Sprintf("You claimed **%s** %s!\nNew balance: **%s** %s",
			utils.FormatCoins(e.Cfg.DailyReward), utils.CoinEmoji,
			utils.FormatCoins(u.Balance), utils.CoinEmoji),
		utils.ColorWin,
	)
	_ = utils.SendInteractionResponse(s, i, embed, nil, false)
}

// HandleProfile shows rank, XP and balance.
func (e *Economy) HandleProfile(s *discordgo.Session, i *discordgo.InteractionCreate) {
	user := utils.InteractionUser(i)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	u, err := e.Ledger.GetUser(ctx, i.GuildID, user.ID)
	if err != nil {
		_ = utils.SendInteractionResponse(s, i, utils.ErrorEmbed("Profile", "Could not load your account."), nil, true)
		return
	}
	rank, needed := utils.RankForXP(u.TotalXP)

	embed := utils.CreateBrandedEmbed(fmt.Sprintf("%s's Profile", user.Username), "", rank.Color)
	embed.Fields = []*discordgo.MessageEmbedField{
		{Name: "Rank", Value: fmt.Sprintf("%s %s", rank.Icon, rank.Name), Inline: true},
		{Name: "Total XP", Value: utils.FormatCoins(u.TotalXP), Inline: true},
		{Name: "Balance", Value: fmt.Sprintf("%s %s", utils.FormatCoins(u.Balance), utils.CoinEmoji), Inline: true},
	}
	if needed > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Next Rank", Value: fmt.Sprintf("%s XP to go", utils.FormatCoins(needed)), Inline: true,
		})
	}
	_ = utils.SendInteractionResponse(s, i, embed, nil, false)
}
