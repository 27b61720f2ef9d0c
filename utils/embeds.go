package utils

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
)

// Shared palette and economy constants.
const (
	BotColor     = 0x5865F2
	ColorWin     = 0x2ECC71
	ColorLoss    = 0xE74C3C
	ColorNeutral = 0xF39C12
	ColorPlaying = 0x3498DB

	CoinEmoji = "🪙"
)

// CreateBrandedEmbed creates a basic embed with bot branding.
func CreateBrandedEmbed(title, description string, color int) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Timestamp:   time.Now().Format(time.RFC3339),
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Arcade",
		},
	}
}

// ErrorEmbed is a red embed for validation failures.
func ErrorEmbed(title, description string) *discordgo.MessageEmbed {
	return CreateBrandedEmbed(title, description, ColorLoss)
}

// InsufficientFundsEmbed tells the user their balance cannot cover the amount.
func InsufficientFundsEmbed(required, balance int64) *discordgo.MessageEmbed {
	return CreateBrandedEmbed(
		"Not Enough Coins",
		fmt.Sprintf("You need **%s** %s but only have **%s** %s.\nUse `/daily` to claim your daily reward.",
			FormatCoins(required), CoinEmoji, FormatCoins(balance), CoinEmoji),
		ColorLoss,
	)
}

// TimeoutEmbed marks a session ended by inactivity.
func TimeoutEmbed(game string) *discordgo.MessageEmbed {
	return CreateBrandedEmbed(
		"⏰ Session Ended",
		fmt.Sprintf("Your %s session ended due to inactivity. Winnings were settled automatically.", game),
		ColorNeutral,
	)
}

// SendInteractionResponse sends an initial embed reply, optionally ephemeral.
func SendInteractionResponse(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, components []discordgo.MessageComponent, ephemeral bool) error {
	data := &discordgo.InteractionResponseData{
		Embeds:     []*discordgo.MessageEmbed{embed},
		Components: components,
	}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
}

// DeferInteractionResponse acknowledges a command so a slow handler can edit later.
func DeferInteractionResponse(s *discordgo.Session, i *discordgo.InteractionCreate, ephemeral bool) error {
	data := &discordgo.InteractionResponseData{}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: data,
	})
}

// EditOriginalInteraction edits the deferred or original reply.
func EditOriginalInteraction(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, components []discordgo.MessageComponent, files []*discordgo.File) error {
	edit := &discordgo.WebhookEdit{
		Embeds: &[]*discordgo.MessageEmbed{embed},
	}
	if components != nil {
		edit.Components = &components
	}
	if files != nil {
		edit.Files = files
	}
	_, err := s.InteractionResponseEdit(i.Interaction, edit)
	return err
}

// UpdateComponentInteraction responds to a button press by updating the message.
func UpdateComponentInteraction(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, components []discordgo.MessageComponent) error {
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{embed},
			Components: components,
		},
	})
}

// AcknowledgeComponentInteraction acks a button press without changing the message.
func AcknowledgeComponentInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) error {
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	})
}

// EphemeralFollowup sends a private notice tied to the interaction.
func EphemeralFollowup(s *discordgo.Session, i *discordgo.InteractionCreate, content string) error {
	_, err := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Content: content,
		Flags:   discordgo.MessageFlagsEphemeral,
	})
	return err
}

// EphemeralReply answers a component interaction privately without touching the message.
func EphemeralReply(s *discordgo.Session, i *discordgo.InteractionCreate, content string) error {
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}

// InteractionUser resolves the acting user for both guild and DM interactions.
func InteractionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}
