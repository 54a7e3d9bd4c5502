// Package discord is the Discord surface of noisewatch: it posts alert and
// status embeds to one channel and lets members start, stop and tune the
// monitor through the /noise slash command.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
)

// ErrDisconnected is returned by [Bot.Check] while the gateway is down.
var ErrDisconnected = errors.New("discord: gateway disconnected")

// Config configures a [Bot].
type Config struct {
	// Token is the bot token without the "Bot " prefix.
	Token string

	// GuildID is the guild the commands are registered in.
	GuildID string

	// ChannelID receives alert and status embeds.
	ChannelID string

	// ManagerRoles may start and stop monitoring and change settings.
	// Empty lets everyone do so.
	ManagerRoles []string
}

// Bot is a connected gateway session plus the interaction router.
type Bot struct {
	session   *discordgo.Session
	router    *Router
	access    *Access
	guildID   string
	channelID string
	connected atomic.Bool

	mu         sync.Mutex
	registered []*discordgo.ApplicationCommand
	closeOnce  sync.Once
}

// New opens the gateway session. Handlers added to [Bot.Router] before
// [Bot.Run] are registered as slash commands.
func New(_ context.Context, cfg Config) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds

	b := &Bot{
		session:   session,
		router:    NewRouter(),
		access:    NewAccess(cfg.ManagerRoles...),
		guildID:   cfg.GuildID,
		channelID: cfg.ChannelID,
	}
	session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		b.connected.Store(true)
		slog.Info("discord: gateway ready", "user", r.User.Username, "guilds", len(r.Guilds))
	})
	session.AddHandler(func(_ *discordgo.Session, _ *discordgo.Resumed) {
		b.connected.Store(true)
	})
	session.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
		b.connected.Store(false)
		slog.Warn("discord: gateway disconnected")
	})
	session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		b.router.Dispatch(s, i)
	})

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("discord: open session: %w", err)
	}
	return b, nil
}

// GuildID returns the guild commands are registered in.
func (b *Bot) GuildID() string { return b.guildID }

// ChannelID returns the channel that receives embeds.
func (b *Bot) ChannelID() string { return b.channelID }

// Session returns the gateway session. It satisfies [MessageSender].
func (b *Bot) Session() *discordgo.Session { return b.session }

// Router returns the interaction router.
func (b *Bot) Router() *Router { return b.router }

// Access returns the manager role check.
func (b *Bot) Access() *Access { return b.access }

// Check reports whether the gateway is connected. It is meant for the
// readiness probe.
func (b *Bot) Check(context.Context) error {
	if !b.connected.Load() {
		return ErrDisconnected
	}
	return nil
}

// Run registers the router's commands, blocks until ctx is done, then
// removes them again so stale commands do not linger in the guild.
func (b *Bot) Run(ctx context.Context) error {
	appID := b.session.State.User.ID
	if cmds := b.router.ApplicationCommands(); len(cmds) > 0 {
		registered, err := b.session.ApplicationCommandBulkOverwrite(appID, b.guildID, cmds)
		if err != nil {
			return fmt.Errorf("discord: register commands: %w", err)
		}
		b.mu.Lock()
		b.registered = registered
		b.mu.Unlock()
		slog.Info("discord: commands registered", "count", len(registered))
	}

	<-ctx.Done()

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, cmd := range b.registered {
		if err := b.session.ApplicationCommandDelete(appID, b.guildID, cmd.ID); err != nil {
			slog.Warn("discord: delete command", "name", cmd.Name, "err", err)
		}
	}
	b.registered = nil
	return nil
}

// Close disconnects from the gateway. It is safe to call more than once.
func (b *Bot) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.connected.Store(false)
		if cerr := b.session.Close(); cerr != nil {
			err = fmt.Errorf("discord: close session: %w", cerr)
		}
	})
	return err
}
