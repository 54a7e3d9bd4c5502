package discord

import (
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// Responder answers interactions. *discordgo.Session implements it.
type Responder interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
}

// respond sends one interaction response. Failures are logged only: the
// interaction token is single-use, so there is nothing to retry.
func respond(s Responder, i *discordgo.InteractionCreate, typ discordgo.InteractionResponseType, data *discordgo.InteractionResponseData) {
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{Type: typ, Data: data}); err != nil {
		slog.Warn("discord: interaction response failed", "type", int(typ), "err", err)
	}
}

// Reply answers with an ephemeral text message.
func Reply(s Responder, i *discordgo.InteractionCreate, content string) {
	respond(s, i, discordgo.InteractionResponseChannelMessageWithSource, &discordgo.InteractionResponseData{
		Content: content,
		Flags:   discordgo.MessageFlagsEphemeral,
	})
}

// Replyf is [Reply] with formatting.
func Replyf(s Responder, i *discordgo.InteractionCreate, format string, args ...any) {
	Reply(s, i, fmt.Sprintf(format, args...))
}

// ReplyError answers with err's message.
func ReplyError(s Responder, i *discordgo.InteractionCreate, err error) {
	Replyf(s, i, "Error: %v", err)
}

// ReplyEmbed answers with an ephemeral embed.
func ReplyEmbed(s Responder, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	respond(s, i, discordgo.InteractionResponseChannelMessageWithSource, &discordgo.InteractionResponseData{
		Embeds: []*discordgo.MessageEmbed{embed},
		Flags:  discordgo.MessageFlagsEphemeral,
	})
}

// ReplyChoices answers an autocomplete interaction. nil choices show an empty
// list.
func ReplyChoices(s Responder, i *discordgo.InteractionCreate, choices []*discordgo.ApplicationCommandOptionChoice) {
	if choices == nil {
		choices = []*discordgo.ApplicationCommandOptionChoice{}
	}
	respond(s, i, discordgo.InteractionApplicationCommandAutocompleteResult, &discordgo.InteractionResponseData{
		Choices: choices,
	})
}

// UpdateMessage replaces the embeds of the message a component belongs to and
// removes its buttons.
func UpdateMessage(s Responder, i *discordgo.InteractionCreate, embeds []*discordgo.MessageEmbed) {
	respond(s, i, discordgo.InteractionResponseUpdateMessage, &discordgo.InteractionResponseData{
		Embeds:     embeds,
		Components: []discordgo.MessageComponent{},
	})
}
