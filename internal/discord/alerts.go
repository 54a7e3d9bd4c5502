package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/noisewatch/internal/alert"
)

// AckPrefix prefixes the custom_id of the acknowledge button on alert
// embeds. The notification id follows the prefix.
const AckPrefix = "noise_ack:"

// Embed sidebar colours.
const (
	embedColorGreen  = 0x2ECC71
	embedColorRed    = 0xE74C3C
	embedColorOrange = 0xE67E22
	embedColorYellow = 0xF1C40F
	embedColorGrey   = 0x95A5A6
)

// MessageSender posts and edits channel messages. *discordgo.Session
// implements it.
type MessageSender interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditEmbed(channelID, messageID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// AlertSink posts one embed per fired alert.
type AlertSink struct {
	sender    MessageSender
	channelID string
}

// NewAlertSink returns an AlertSink posting to channelID.
func NewAlertSink(sender MessageSender, channelID string) *AlertSink {
	return &AlertSink{sender: sender, channelID: channelID}
}

// Notify posts the alert embed. Alerts with a notification id carry an
// acknowledge button.
func (a *AlertSink) Notify(ctx context.Context, d alert.Decision) error {
	msg := &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{BuildAlertEmbed(d)}}
	if id := d.Notification.ID; id != "" {
		msg.Components = []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "Acknowledge",
					Style:    discordgo.SecondaryButton,
					CustomID: AckPrefix + id,
				},
			}},
		}
	}
	if _, err := a.sender.ChannelMessageSendComplex(a.channelID, msg, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: post alert: %w", err)
	}
	return nil
}

// BuildAlertEmbed renders a fired alert.
func BuildAlertEmbed(d alert.Decision) *discordgo.MessageEmbed {
	color := embedColorYellow
	switch d.Class {
	case alert.ClassCritical:
		color = embedColorRed
	case alert.ClassAmbient:
		color = embedColorOrange
	}
	return &discordgo.MessageEmbed{
		Title:       d.Title,
		Description: d.Message,
		Color:       color,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Loudness", Value: fmt.Sprintf("%.1f dB", d.Loudness), Inline: true},
			{Name: "Threshold", Value: fmt.Sprintf("%.0f dB", d.Threshold), Inline: true},
			{Name: "Sound", Value: string(d.Label), Inline: true},
		},
		Footer:    &discordgo.MessageEmbedFooter{Text: d.Class.String() + " alert"},
		Timestamp: d.At.UTC().Format(time.RFC3339),
	}
}

// AcknowledgedEmbed marks an alert embed as handled.
func AcknowledgedEmbed(orig *discordgo.MessageEmbed, by string) *discordgo.MessageEmbed {
	out := *orig
	out.Color = embedColorGrey
	out.Footer = &discordgo.MessageEmbedFooter{Text: "Acknowledged by " + by}
	return &out
}
