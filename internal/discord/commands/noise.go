// Package commands implements Discord slash command handlers for noisewatch.
package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/noisewatch/internal/discord"
	"github.com/MrWong99/noisewatch/internal/monitor"
	"github.com/MrWong99/noisewatch/internal/observe"
	"github.com/MrWong99/noisewatch/internal/profile"
)

// maxChoices is the Discord limit for autocomplete choices.
const maxChoices = 25

// Sessions starts and stops monitoring. *monitor.SessionManager implements it.
type Sessions interface {
	Start(ctx context.Context, startedBy string) (monitor.SessionInfo, error)
	Stop(ctx context.Context) error
	IsActive() bool
	Info() monitor.SessionInfo
}

// Preferences reads and changes the user settings. *profile.Settings
// implements it.
type Preferences interface {
	Select(ctx context.Context, name string) (profile.Profile, error)
	Selected(ctx context.Context) (profile.Profile, bool, error)
	SetNotificationsEnabled(ctx context.Context, on bool) error
}

// Acknowledger marks a notification as viewed. store.NotificationStore
// implements it.
type Acknowledger interface {
	MarkViewed(ctx context.Context, id string) error
}

// NoiseCommands holds the dependencies for /noise slash commands.
type NoiseCommands struct {
	sessions Sessions
	live     *monitor.LiveState
	prefs    Preferences
	catalog  *profile.Catalog
	acks     Acknowledger
	access   *discord.Access
}

// NoiseConfig holds the dependencies of [NewNoiseCommands].
type NoiseConfig struct {
	Sessions    Sessions
	Live        *monitor.LiveState
	Preferences Preferences
	Catalog     *profile.Catalog
	Acks        Acknowledger

	// Access guards start, stop and settings changes. nil lets everyone.
	Access *discord.Access
}

// NewNoiseCommands creates a NoiseCommands and registers its handlers with
// router.
func NewNoiseCommands(router *discord.Router, cfg NoiseConfig) *NoiseCommands {
	if cfg.Access == nil {
		cfg.Access = discord.NewAccess()
	}
	nc := &NoiseCommands{
		sessions: cfg.Sessions,
		live:     cfg.Live,
		prefs:    cfg.Preferences,
		catalog:  cfg.Catalog,
		acks:     cfg.Acks,
		access:   cfg.Access,
	}
	nc.Register(router)
	return nc
}

// Register adds the /noise command, its subcommands, the profile
// autocomplete and the alert acknowledge button to router.
func (nc *NoiseCommands) Register(router *discord.Router) {
	router.Command(nc.Definition(), func(_ context.Context, s discord.Responder, i *discordgo.InteractionCreate) {
		discord.Reply(s, i, "Please use a subcommand, e.g. `/noise status`.")
	})
	router.On("noise/status", nc.handleStatus)
	router.On("noise/start", nc.access.Require("start monitoring", nc.handleStart))
	router.On("noise/stop", nc.access.Require("stop monitoring", nc.handleStop))
	router.On("noise/profile", nc.access.Require("change the profile", nc.handleProfile))
	router.On("noise/alerts", nc.access.Require("change alerts", nc.handleAlerts))
	router.Autocomplete("noise/profile", nc.autocompleteProfile)
	router.Component(discord.AckPrefix, nc.handleAck)
}

// Definition returns the ApplicationCommand definition for Discord.
func (nc *NoiseCommands) Definition() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        "noise",
		Description: "Ambient noise monitor",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "status",
				Description: "Show the current noise level",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "start",
				Description: "Start monitoring",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "stop",
				Description: "Stop monitoring",
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "profile",
				Description: "Select the activity profile",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:         discordgo.ApplicationCommandOptionString,
						Name:         "name",
						Description:  "Profile name; leave empty to use the default threshold",
						Required:     false,
						Autocomplete: true,
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "alerts",
				Description: "Turn alert notifications on or off",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionBoolean,
						Name:        "enabled",
						Description: "Whether alerts are raised",
						Required:    true,
					},
				},
			},
		},
	}
}

func (nc *NoiseCommands) handleStatus(ctx context.Context, s discord.Responder, i *discordgo.InteractionCreate) {
	snap := nc.live.Snapshot()
	state := "stopped"
	if snap.Monitoring {
		state = "monitoring"
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "State", Value: state, Inline: true},
		{Name: "Level", Value: fmt.Sprintf("%.1f dB", snap.Loudness), Inline: true},
		{Name: "Sound", Value: string(snap.Label), Inline: true},
	}
	if p, ok, err := nc.prefs.Selected(ctx); err == nil {
		name := "Default Mode"
		if ok {
			name = fmt.Sprintf("%s (%d dB)", p.Name, p.Threshold)
		}
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Profile", Value: name, Inline: true})
	}
	discord.ReplyEmbed(s, i, &discordgo.MessageEmbed{
		Title:  "Noise Monitor",
		Fields: fields,
	})
}

func (nc *NoiseCommands) handleStart(ctx context.Context, s discord.Responder, i *discordgo.InteractionCreate) {
	info, err := nc.sessions.Start(ctx, "discord:"+userID(i))
	switch {
	case errors.Is(err, monitor.ErrSessionActive):
		discord.Reply(s, i, "Monitoring is already running.")
	case errors.Is(err, monitor.ErrMonitoringUnavailable):
		discord.Reply(s, i, "The microphone is not available.")
	case err != nil:
		discord.ReplyError(s, i, err)
	default:
		discord.Replyf(s, i, "Monitoring started (session `%s`).", info.SessionID)
	}
}

func (nc *NoiseCommands) handleStop(ctx context.Context, s discord.Responder, i *discordgo.InteractionCreate) {
	err := nc.sessions.Stop(ctx)
	switch {
	case errors.Is(err, monitor.ErrNoSession):
		discord.Reply(s, i, "Monitoring is not running.")
	case err != nil:
		discord.ReplyError(s, i, err)
	default:
		discord.Reply(s, i, "Monitoring stopped.")
	}
}

func (nc *NoiseCommands) handleProfile(ctx context.Context, s discord.Responder, i *discordgo.InteractionCreate) {
	name, _ := subOption(i, "name").(string)
	p, err := nc.prefs.Select(ctx, name)
	switch {
	case errors.Is(err, profile.ErrUnknownProfile):
		discord.Replyf(s, i, "No profile matches %q.", name)
	case err != nil:
		discord.ReplyError(s, i, err)
	case p.ID == "":
		discord.Reply(s, i, "Profile cleared; using the default threshold.")
	default:
		discord.Replyf(s, i, "Profile set to **%s** (%d dB).", p.Name, p.Threshold)
	}
}

func (nc *NoiseCommands) handleAlerts(ctx context.Context, s discord.Responder, i *discordgo.InteractionCreate) {
	on, _ := subOption(i, "enabled").(bool)
	if err := nc.prefs.SetNotificationsEnabled(ctx, on); err != nil {
		discord.ReplyError(s, i, err)
		return
	}
	if on {
		discord.Reply(s, i, "Alerts enabled.")
		return
	}
	discord.Reply(s, i, "Alerts disabled.")
}

func (nc *NoiseCommands) autocompleteProfile(_ context.Context, s discord.Responder, i *discordgo.InteractionCreate) {
	typed, _ := subOption(i, "name").(string)
	typed = strings.ToLower(strings.TrimSpace(typed))

	var choices []*discordgo.ApplicationCommandOptionChoice
	for _, p := range nc.catalog.List() {
		if typed != "" && !strings.Contains(strings.ToLower(p.Name), typed) {
			continue
		}
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: p.Name, Value: p.Name})
		if len(choices) == maxChoices {
			break
		}
	}
	discord.ReplyChoices(s, i, choices)
}

func (nc *NoiseCommands) handleAck(ctx context.Context, s discord.Responder, i *discordgo.InteractionCreate) {
	id := strings.TrimPrefix(i.MessageComponentData().CustomID, discord.AckPrefix)
	if err := nc.acks.MarkViewed(ctx, id); err != nil {
		observe.Logger(ctx).Warn("discord: acknowledge notification", "id", id, "err", err)
		discord.ReplyError(s, i, err)
		return
	}

	var embeds []*discordgo.MessageEmbed
	if i.Message != nil {
		for _, e := range i.Message.Embeds {
			embeds = append(embeds, discord.AcknowledgedEmbed(e, displayName(i)))
		}
	}
	discord.UpdateMessage(s, i, embeds)
}

// subOption returns the value of the named option of the invoked subcommand,
// or nil.
func subOption(i *discordgo.InteractionCreate, name string) any {
	data := i.ApplicationCommandData()
	if len(data.Options) == 0 {
		return nil
	}
	for _, o := range data.Options[0].Options {
		if o.Name == name {
			return o.Value
		}
	}
	return nil
}

func userID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return "unknown"
}

func displayName(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.Username
	}
	if i.User != nil {
		return i.User.Username
	}
	return "someone"
}
