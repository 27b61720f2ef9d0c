package cogs

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"arcade-go/utils"
)

// Social handles the emotion commands (/hug, /slap). They carry no economy
// effect; the visual comes from the render service with a text fallback.
type Social struct {
	Renderer utils.Renderer
}

var emotions = map[string]string{
	"hug":  "%s gives %s a warm hug 🤗",
	"slap": "%s slaps %s 👋",
}

// Cmds returns the emotion slash command definitions.
func (so *Social) Cmds() []*discordgo.ApplicationCommand {
	cmds := make([]*discordgo.ApplicationCommand, 0, len(emotions))
	for name := range emotions {
		cmds = append(cmds, &discordgo.ApplicationCommand{
			Name:        name,
			Description: fmt.Sprintf("Send a %s to someone", name),
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionUser, Name: "target", Description: "Who deserves it", Required: true},
			},
		})
	}
	return cmds
}

// Handle validates the target, renders the card, and replies. Targeting
// yourself or a bot is rejected before anything else happens.
func (so *Social) Handle(s *discordgo.Session, i *discordgo.InteractionCreate) {
	name := i.ApplicationCommandData().Name
	format, ok := emotions[name]
	if !ok {
		return
	}
	actor := utils.InteractionUser(i)
	target := i.ApplicationCommandData().Options[0].UserValue(s)
	if target == nil {
		return
	}
	if target.ID == actor.ID {
		_ = utils.SendInteractionResponse(s, i, utils.ErrorEmbed("Nope", "You can't target yourself."), nil, true)
		return
	}
	if target.Bot {
		_ = utils.SendInteractionResponse(s, i, utils.ErrorEmbed("Nope", "Bots don't have feelings. Probably."), nil, true)
		return
	}

	line := fmt.Sprintf(format, actor.Mention(), target.Mention())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	result, err := so.Renderer.Render(ctx, "emotion_card", map[string]any{
		"emotion": name,
		"actor":   actor.Username,
		"target":  target.Username,
	})
	if err != nil {
		if err != utils.ErrRendererDisabled {
			log.Warn().Err(err).Str("emotion", name).Msg("render failed, text fallback")
		}
		_ = utils.SendInteractionResponse(s, i, utils.CreateBrandedEmbed("", line, utils.BotColor), nil, false)
		return
	}

	embed := utils.CreateBrandedEmbed("", line, result.DominantColor)
	embed.Image = &discordgo.MessageEmbedImage{URL: "attachment://" + name + ".png"}
	_ = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Files: []*discordgo.File{{
				Name:        name + ".png",
				ContentType: result.ContentType,
				Reader:      bytesReader(result.Image),
			}},
		},
	})
}
