package session

import (
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"arcade-go/utils"
)

// Shell is the Discord-facing collector glue shared by every game kind. It
// launches sessions from slash commands and routes component presses into the
// session harness.
type Shell struct {
	Reg      *Registry
	Deps     Deps
	Timeouts Timeouts
	Market   utils.MarketData
}

// Launch starts a session for the invoking user, rejecting the command when
// one is already live for the (channel, user) key.
func (sh *Shell) Launch(s *discordgo.Session, i *discordgo.InteractionCreate, g Game, args map[string]string) {
	user := utils.InteractionUser(i)
	if user == nil {
		return
	}
	key := Key{ChannelID: i.ChannelID, UserID: user.ID}

	if args == nil {
		args = make(map[string]string)
	}
	args["owner"] = user.ID
	args["channel"] = i.ChannelID
	args["guild"] = i.GuildID

	sess, err := New(key, i.GuildID, g, args, sh.Reg, sh.Deps, sh.Timeouts)
	if err != nil {
		if err == ErrAlreadyActive {
			_ = utils.SendInteractionResponse(s, i,
				utils.ErrorEmbed("Already Running", "Finish or stop your current game first."), nil, true)
			return
		}
		_ = utils.SendInteractionResponse(s, i, utils.ErrorEmbed(g.Kind(), err.Error()), nil, true)
		return
	}

	if err := utils.DeferInteractionResponse(s, i, false); err != nil {
		sess.Release()
		return
	}

	embed, comps := sess.View()
	if err := utils.EditOriginalInteraction(s, i, embed, comps, nil); err != nil {
		log.Error().Err(err).Str("game", g.Kind()).Msg("initial reply failed")
		sess.Release()
		return
	}

	// Capture the live message so timer expiry can finalize it.
	channelID := i.ChannelID
	messageID := ""
	if resp, err := s.InteractionResponse(i.Interaction); err == nil && resp != nil {
		messageID = resp.ID
	}
	sess.Start(func(final *discordgo.MessageEmbed) {
		if messageID == "" {
			return
		}
		embeds := []*discordgo.MessageEmbed{final}
		comps := []discordgo.MessageComponent{}
		if _, err := s.ChannelMessageEditComplex(&discordgo.MessageEdit{
			Channel: channelID, ID: messageID, Embeds: &embeds, Components: &comps,
		}); err != nil {
			log.Warn().Err(err).Str("game", g.Kind()).Msg("final edit failed")
		}
	})
}

// Route dispatches one component press. Custom IDs are
// "<kind>:<action>:<ownerID>[:<extra>]"; the owner segment recovers the
// session key, and the presser is checked against it before any mutation.
func (sh *Shell) Route(s *discordgo.Session, i *discordgo.InteractionCreate, kind string) {
	parts := strings.Split(i.MessageComponentData().CustomID, ":")
	if len(parts) < 3 || parts[0] != kind {
		return
	}
	action, owner := parts[1], parts[2]

	presser := utils.InteractionUser(i)
	if presser == nil {
		return
	}

	sess, ok := sh.Reg.Get(Key{ChannelID: i.ChannelID, UserID: owner})
	if !ok {
		_ = utils.EphemeralReply(s, i, "That game has already ended.")
		return
	}

	act := Action{Name: action, Args: map[string]string{}}
	if len(parts) > 3 {
		act.Args["extra"] = strings.Join(parts[3:], ":")
	}
	if sh.Market != nil {
		act.Prices = sh.Market.Snapshot()
	}
	// Menu selections carry their value alongside the custom id.
	if data := i.MessageComponentData(); len(data.Values) > 0 {
		act.Args["value"] = data.Values[0]
	}

	res, err := sess.HandleAction(presser.ID, act)
	switch {
	case err == ErrNotOwner:
		_ = utils.EphemeralReply(s, i, "This isn't your game.")
		return
	case err == ErrFinished:
		_ = utils.EphemeralReply(s, i, "This game has already ended.")
		return
	case err != nil:
		log.Error().Err(err).Str("game", kind).Msg("action failed")
		_ = utils.EphemeralReply(s, i, "Something went wrong.")
		return
	}

	if res.Step.Invalid {
		// Feedback without regenerating the board.
		note := res.Step.Note
		if note == "" {
			note = "Invalid move."
		}
		_ = utils.EphemeralReply(s, i, note)
		return
	}

	if res.Step.Terminal {
		_ = utils.UpdateComponentInteraction(s, i, res.Embed, []discordgo.MessageComponent{})
		return
	}
	_ = utils.UpdateComponentInteraction(s, i, res.Embed, res.Components)
}
